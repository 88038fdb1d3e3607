package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/lostmyalias/skyspoofer-trial-bot/internal/linking"
)

// TableFormatter renders listings as an ASCII table.
type TableFormatter struct{}

// FormatPool renders the available key pool as a table.
func (f *TableFormatter) FormatPool(keys []string) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Key"})

	for i, key := range keys {
		t.AppendRow(table.Row{i + 1, key})
	}

	t.AppendFooter(table.Row{"", fmt.Sprintf("%d available", len(keys))})
	return t.Render(), nil
}

// FormatAccounts renders linked accounts as a table.
func (f *TableFormatter) FormatAccounts(accounts []linking.Account) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Discord ID", "Email", "First Linked", "Key", "Dispensed"})

	dispensed := 0
	for _, account := range accounts {
		if account.DispensedKey != "" {
			dispensed++
		}
		t.AppendRow(table.Row{
			account.DiscordID,
			emptyDash(account.Email),
			account.FirstLinkedAt.UTC().Format(time.RFC3339),
			emptyDash(account.DispensedKey),
			formatTimePtr(account.LastDispensedAt),
		})
	}

	t.AppendFooter(table.Row{
		"",
		"",
		"",
		fmt.Sprintf("%d/%d dispensed", dispensed, len(accounts)),
		"",
	})
	return t.Render(), nil
}

func emptyDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func formatTimePtr(ts *time.Time) string {
	if ts == nil {
		return "-"
	}
	return ts.UTC().Format(time.RFC3339)
}
