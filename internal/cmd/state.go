package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lostmyalias/skyspoofer-trial-bot/internal/config"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/discord"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/linking"
)

var stateIssueUser string

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Manage pending OAuth state tokens",
}

var stateIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a one-time state token for a Discord user",
	Long: `Issue a one-time OAuth state token bound to a Discord user id.

The printed authorization URL carries the token; the callback consumes it
exactly once. Issuing normally happens from the Discord bot side, this
command covers manual testing and support flows.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := strings.TrimSpace(stateIssueUser)
		if userID == "" {
			return fmt.Errorf("--user is required")
		}

		kv, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer kv.Close() // nolint:errcheck // best-effort cleanup

		token := uuid.NewString()
		if err := linking.IssueState(cmd.Context(), kv, token, userID); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "State token: %s\n", token)

		// Print the full consent URL when credentials are configured
		cfg := config.GetConfig()
		if cfg != nil && strings.TrimSpace(cfg.Discord.ClientID) != "" {
			client, err := discord.New(cfg.Discord)
			if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Authorize URL: %s\n", client.AuthorizeURL(token))
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateIssueCmd)

	stateIssueCmd.Flags().StringVar(&stateIssueUser, "user", "", "Discord user id to bind the token to")
}
