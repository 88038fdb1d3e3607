package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lostmyalias/skyspoofer-trial-bot/internal/linking"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/output"
)

var (
	accountsListOutput string
	accountsListOut    string
	accountsListOutDir string
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Inspect linked Discord accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List linked accounts and their dispensed keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(accountsListOutput)
		if err != nil {
			return err
		}

		kv, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer kv.Close() // nolint:errcheck // best-effort cleanup

		stored, err := kv.Scan(cmd.Context(), linking.PrefixAccount)
		if err != nil {
			return err
		}

		accounts := make([]linking.Account, 0, len(stored))
		for _, entry := range stored {
			discordID := strings.TrimPrefix(entry, linking.PrefixAccount)
			account, err := linking.LoadAccount(cmd.Context(), kv, discordID)
			if err != nil {
				return fmt.Errorf("load account %s: %w", discordID, err)
			}
			accounts = append(accounts, account)
		}

		outPath := strings.TrimSpace(accountsListOut)
		outDir := strings.TrimSpace(accountsListOutDir)
		if outPath != "" && outDir != "" {
			return fmt.Errorf("--out and --out-dir are mutually exclusive")
		}

		ext := outputExtension(format)
		if outDir != "" {
			var err error
			outDir, err = ensureOutDir(outDir)
			if err != nil {
				return err
			}
			outPath = filepath.Join(outDir, fmt.Sprintf("accounts.list.%s", ext))
		}

		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := output.NewFormatter(format).FormatAccounts(accounts)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsListCmd)

	accountsListCmd.Flags().StringVar(&accountsListOutput, "output-format", string(output.FormatTable), "Output format: table|json|markdown")
	accountsListCmd.Flags().StringVar(&accountsListOut, "out", "", "Write output to a file (default stdout)")
	accountsListCmd.Flags().StringVar(&accountsListOutDir, "out-dir", "", "Write output to a directory")
}
