package linking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lostmyalias/skyspoofer-trial-bot/internal/store"
)

// Key prefixes in the shared store.
const (
	PrefixState   = "state:"
	PrefixAccount = "user:"
	PrefixKey     = "key:"
)

// AuthState is the one-time record correlating an OAuth redirect with the
// Discord user who initiated the link. Issued before the callback arrives,
// consumed exactly once by it.
type AuthState struct {
	UserID string `json:"user_id"`
}

// Account is the durable record for a linked Discord identity.
// FirstLinkedAt is written once on creation and never overwritten;
// DispensedKey holds the most recently claimed pool key.
type Account struct {
	DiscordID       string     `json:"discord_id"`
	Email           string     `json:"email,omitempty"`
	FirstLinkedAt   time.Time  `json:"first_linked_at"`
	DispensedKey    string     `json:"dispensed_key,omitempty"`
	LastDispensedAt *time.Time `json:"last_dispensed_at,omitempty"`
}

// takeState atomically consumes the state token. Returns store.ErrNotFound
// when the token is unknown or already consumed.
func takeState(ctx context.Context, kv store.KV, token string) (AuthState, error) {
	raw, err := kv.Take(ctx, PrefixState+token)
	if err != nil {
		return AuthState{}, err
	}

	var state AuthState
	if err := json.Unmarshal(raw, &state); err != nil {
		return AuthState{}, fmt.Errorf("decode state record: %w", err)
	}
	return state, nil
}

// IssueState stores a fresh state token for a pending link request.
func IssueState(ctx context.Context, kv store.KV, token, userID string) error {
	raw, err := json.Marshal(AuthState{UserID: userID})
	if err != nil {
		return fmt.Errorf("encode state record: %w", err)
	}
	return kv.Set(ctx, PrefixState+token, raw)
}

// LoadAccount fetches the account record for a Discord id.
func LoadAccount(ctx context.Context, kv store.KV, discordID string) (Account, error) {
	raw, err := kv.Get(ctx, PrefixAccount+discordID)
	if err != nil {
		return Account{}, err
	}

	var account Account
	if err := json.Unmarshal(raw, &account); err != nil {
		return Account{}, fmt.Errorf("decode account record: %w", err)
	}
	return account, nil
}

// SaveAccount persists an account record.
func SaveAccount(ctx context.Context, kv store.KV, account Account) error {
	raw, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("encode account record: %w", err)
	}
	return kv.Set(ctx, PrefixAccount+account.DiscordID, raw)
}
