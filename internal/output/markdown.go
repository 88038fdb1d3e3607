package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/lostmyalias/skyspoofer-trial-bot/internal/linking"
)

// MarkdownFormatter renders listings as markdown tables.
type MarkdownFormatter struct{}

// FormatPool renders the available key pool as Markdown.
func (f *MarkdownFormatter) FormatPool(keys []string) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Trial key pool\n\n")
	sb.WriteString("| # | Key |\n")
	sb.WriteString("|---|-----|\n")

	for i, key := range keys {
		sb.WriteString(fmt.Sprintf("| %d | %s |\n", i+1, escapeMarkdownCell(key)))
	}

	sb.WriteString(fmt.Sprintf("\n**Available**: %d\n", len(keys)))
	return sb.String(), nil
}

// FormatAccounts renders linked accounts as Markdown.
func (f *MarkdownFormatter) FormatAccounts(accounts []linking.Account) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Linked accounts\n\n")
	sb.WriteString("| Discord ID | Email | First Linked | Key | Dispensed |\n")
	sb.WriteString("|------------|-------|--------------|-----|----------|\n")

	dispensed := 0
	for _, account := range accounts {
		if account.DispensedKey != "" {
			dispensed++
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			escapeMarkdownCell(account.DiscordID),
			escapeMarkdownCell(emptyDash(account.Email)),
			account.FirstLinkedAt.UTC().Format(time.RFC3339),
			escapeMarkdownCell(emptyDash(account.DispensedKey)),
			formatTimePtr(account.LastDispensedAt),
		))
	}

	sb.WriteString(fmt.Sprintf("\n**Dispensed**: %d/%d\n", dispensed, len(accounts)))
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
