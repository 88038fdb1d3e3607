package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lostmyalias/skyspoofer-trial-bot/internal/linking"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/output"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/store"
)

var (
	keysListOutput string
	keysListOut    string
	keysListOutDir string
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the trial key pool",
	Long: `Manage the pool of single-use trial keys.

Keys added here are claimed atomically by the OAuth callback, one per
linked Discord account. A removed key can no longer be dispensed.`,
}

var keysAddCmd = &cobra.Command{
	Use:   "add <key>...",
	Short: "Add keys to the pool",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kv, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer kv.Close() // nolint:errcheck // best-effort cleanup

		added := 0
		for _, raw := range args {
			key := strings.TrimSpace(raw)
			if key == "" {
				continue
			}
			exists, err := kv.Exists(cmd.Context(), linking.PrefixKey+key)
			if err != nil {
				return err
			}
			if exists {
				fmt.Fprintf(cmd.OutOrStdout(), "skipped %s (already in pool)\n", key)
				continue
			}
			if err := kv.Set(cmd.Context(), linking.PrefixKey+key, []byte{}); err != nil {
				return err
			}
			added++
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Added %d key(s)\n", added)
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available keys in the pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(keysListOutput)
		if err != nil {
			return err
		}

		kv, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer kv.Close() // nolint:errcheck // best-effort cleanup

		stored, err := kv.Scan(cmd.Context(), linking.PrefixKey)
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(stored))
		for _, entry := range stored {
			keys = append(keys, strings.TrimPrefix(entry, linking.PrefixKey))
		}

		outPath := strings.TrimSpace(keysListOut)
		outDir := strings.TrimSpace(keysListOutDir)
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
			outPath = filepath.Join(outDir, fmt.Sprintf("keys.list.%s", ext))
		}

		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := output.NewFormatter(format).FormatPool(keys)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

var keysRemoveCmd = &cobra.Command{
	Use:   "remove <key>...",
	Short: "Remove keys from the pool",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kv, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer kv.Close() // nolint:errcheck // best-effort cleanup

		removed := 0
		for _, raw := range args {
			key := strings.TrimSpace(raw)
			if key == "" {
				continue
			}
			err := kv.Delete(cmd.Context(), linking.PrefixKey+key)
			if errors.Is(err, store.ErrNotFound) {
				fmt.Fprintf(cmd.OutOrStdout(), "skipped %s (not in pool)\n", key)
				continue
			}
			if err != nil {
				return err
			}
			removed++
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d key(s)\n", removed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysAddCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysRemoveCmd)

	keysListCmd.Flags().StringVar(&keysListOutput, "output-format", string(output.FormatTable), "Output format: table|json|markdown")
	keysListCmd.Flags().StringVar(&keysListOut, "out", "", "Write output to a file (default stdout)")
	keysListCmd.Flags().StringVar(&keysListOutDir, "out-dir", "", "Write output to a directory")
}
