package output

import (
	"encoding/json"

	"github.com/lostmyalias/skyspoofer-trial-bot/internal/linking"
)

// JSONFormatter renders listings as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// FormatPool renders the key pool as a JSON array.
func (f *JSONFormatter) FormatPool(keys []string) (string, error) {
	if keys == nil {
		keys = []string{}
	}
	return f.marshal(keys)
}

// FormatAccounts renders linked accounts as a JSON array.
func (f *JSONFormatter) FormatAccounts(accounts []linking.Account) (string, error) {
	if accounts == nil {
		accounts = []linking.Account{}
	}
	return f.marshal(accounts)
}
