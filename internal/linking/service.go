// Package linking implements the OAuth callback flow: admission, one-time
// state consumption, idempotent account linking, and atomic trial-key
// dispensing with an audit notification on every branch.
package linking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	apperrors "github.com/lostmyalias/skyspoofer-trial-bot/internal/errors"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/discord"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/metrics"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/notify"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/observability"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/ratelimit"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/store"
)

// IdentityClient exchanges an authorization code for an access token and
// fetches the authorizing user's profile.
type IdentityClient interface {
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, accessToken string) (discord.Profile, error)
}

// Courier delivers a dispensed key to the user. Failures are reported but
// never fatal: the dispense is not rolled back.
type Courier interface {
	OpenDirectChannel(ctx context.Context, userID string) (string, error)
	SendKeyMessage(ctx context.Context, channelID, key string) error
}

// Config holds the handler policy knobs loaded at process start.
type Config struct {
	// RedirectURL is the fixed destination returned on every non-error
	// outcome.
	RedirectURL string `mapstructure:"redirect_url"`

	// CallTimeout bounds each external call (identity exchange, delivery).
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// Service orchestrates the callback flow. All collaborators are injected;
// the service holds no state beyond them.
type Service struct {
	kv       store.KV
	limiter  *ratelimit.Limiter
	identity IdentityClient
	courier  Courier
	notifier notify.Notifier

	redirectURL string
	callTimeout time.Duration
	now         func() time.Time
}

// NewService wires the callback service.
func NewService(kv store.KV, limiter *ratelimit.Limiter, identity IdentityClient, courier Courier, notifier notify.Notifier, cfg Config) *Service {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		kv:          kv,
		limiter:     limiter,
		identity:    identity,
		courier:     courier,
		notifier:    notifier,
		redirectURL: cfg.RedirectURL,
		callTimeout: timeout,
		now:         time.Now,
	}
}

// HandleCallback runs the full flow for one inbound callback request and
// returns the redirect destination. Errors are gofulmen envelopes whose codes
// map onto the documented HTTP statuses (429, 400, 500).
func (s *Service) HandleCallback(ctx context.Context, clientAddr, code, state string) (string, *gferrors.ErrorEnvelope) {
	if !s.limiter.Admit(clientAddr) {
		s.notifier.Notify(ctx, "🚫 Rate Limit Exceeded",
			fmt.Sprintf("IP %s exceeded OAuth callback rate limit.", clientAddr),
			notify.SeverityAbuse)
		metrics.RecordLinkAttempt("rate_limited")
		return "", apperrors.NewRateLimitedError("Too many requests")
	}

	if code == "" || state == "" {
		s.notifier.Notify(ctx, "⚠️ Invalid OAuth State",
			fmt.Sprintf("Missing code or state. ip=%s", clientAddr),
			notify.SeverityWarning)
		metrics.RecordLinkAttempt("invalid_request")
		return "", apperrors.NewInvalidInputError("Missing code or state")
	}

	// One-shot consumption: the token is removed in the same step that reads
	// it, so a concurrent duplicate request cannot pass this check.
	authState, err := takeState(ctx, s.kv, state)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.notifier.Notify(ctx, "⚠️ Invalid OAuth State",
				fmt.Sprintf("State not found or expired: %s (ip=%s)", state, clientAddr),
				notify.SeverityWarning)
			metrics.RecordLinkAttempt("invalid_state")
			return "", apperrors.NewInvalidInputError("Invalid state")
		}
		s.notifier.Notify(ctx, "🔥 Bot Error",
			fmt.Sprintf("State lookup failed: %v", err),
			notify.SeverityError)
		metrics.RecordLinkAttempt("store_error")
		return "", apperrors.NewInternalError("State lookup failed")
	}

	discordID := authState.UserID

	if err := s.resolveAccount(ctx, discordID, clientAddr); err != nil {
		metrics.RecordLinkAttempt("store_error")
		return "", apperrors.NewInternalError("Account lookup failed")
	}

	if err := s.fetchAndRecordEmail(ctx, discordID, code); err != nil {
		metrics.RecordLinkAttempt("exchange_failed")
		return "", apperrors.NewInternalError("OAuth failure")
	}
	metrics.RecordLinkAttempt("linked")

	s.dispenseKey(ctx, discordID)

	return s.redirectURL, nil
}

// resolveAccount creates the account record on first link. A pre-existing
// record is flagged to staff but deliberately left untouched; re-links flow
// through the rest of the pipeline like a first-time link.
func (s *Service) resolveAccount(ctx context.Context, discordID, clientAddr string) error {
	exists, err := s.kv.Exists(ctx, PrefixAccount+discordID)
	if err != nil {
		s.notifyStoreError(ctx, discordID, err)
		return err
	}

	if exists {
		s.notifier.Notify(ctx, "🚫 Duplicate OAuth Attempt",
			fmt.Sprintf("<@%s> tried to re-link. (ip=%s)", discordID, clientAddr),
			notify.SeverityAbuse)
		return nil
	}

	account := Account{
		DiscordID:     discordID,
		FirstLinkedAt: s.now().UTC(),
	}
	if err := SaveAccount(ctx, s.kv, account); err != nil {
		s.notifyStoreError(ctx, discordID, err)
		return err
	}
	return nil
}

// fetchAndRecordEmail performs the identity exchange and stores the profile
// email. Transport errors, provider rejections, and a missing email are one
// failure class; the account record persists without a key in all of them.
func (s *Service) fetchAndRecordEmail(ctx context.Context, discordID, code string) error {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	email, err := s.fetchEmail(callCtx, code)
	if err != nil {
		s.notifier.Notify(ctx, "🔥 Bot Error",
			fmt.Sprintf("OAuth token/user fetch error for <@%s>: %v", discordID, err),
			notify.SeverityError)
		return err
	}

	account, err := LoadAccount(ctx, s.kv, discordID)
	if err != nil {
		s.notifyStoreError(ctx, discordID, err)
		return err
	}
	account.Email = email
	if err := SaveAccount(ctx, s.kv, account); err != nil {
		s.notifyStoreError(ctx, discordID, err)
		return err
	}

	s.notifier.Notify(ctx, "🔗 Discord Linked",
		fmt.Sprintf("<@%s> linked (%s).", discordID, email),
		notify.SeveritySuccess)
	return nil
}

func (s *Service) fetchEmail(ctx context.Context, code string) (string, error) {
	token, err := s.identity.ExchangeCode(ctx, code)
	if err != nil {
		return "", err
	}

	profile, err := s.identity.FetchProfile(ctx, token)
	if err != nil {
		return "", err
	}
	if profile.Email == "" {
		return "", errors.New("email scope missing")
	}
	return profile.Email, nil
}

// dispenseKey claims one pool key atomically and records it against the
// account. An empty pool is not an error; delivery failure is reported but
// never rolls the claim back (at-most-once dispense, best-effort delivery).
func (s *Service) dispenseKey(ctx context.Context, discordID string) {
	claimed, _, err := s.kv.TakeFirst(ctx, PrefixKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logDebug("Key pool empty, skipping dispense", zap.String("discord_id", discordID))
			return
		}
		s.notifier.Notify(ctx, "🔥 Bot Error",
			fmt.Sprintf("Key pool claim failed for <@%s>: %v", discordID, err),
			notify.SeverityError)
		return
	}
	key := strings.TrimPrefix(claimed, PrefixKey)

	account, err := LoadAccount(ctx, s.kv, discordID)
	if err == nil {
		dispensedAt := s.now().UTC()
		account.DispensedKey = key
		account.LastDispensedAt = &dispensedAt
		err = SaveAccount(ctx, s.kv, account)
	}
	if err != nil {
		s.notifier.Notify(ctx, "🔥 Bot Error",
			fmt.Sprintf("Failed to record key **%s** for <@%s>: %v", key, discordID, err),
			notify.SeverityError)
		return
	}

	s.deliverKey(ctx, discordID, key)

	s.notifier.Notify(ctx, "🔑 Key Dispensed",
		fmt.Sprintf("<@%s> was issued **%s**.", discordID, key),
		notify.SeveritySuccess)
	metrics.RecordKeyDispensed()
}

func (s *Service) deliverKey(ctx context.Context, discordID, key string) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	channelID, err := s.courier.OpenDirectChannel(callCtx, discordID)
	if err == nil {
		err = s.courier.SendKeyMessage(callCtx, channelID, key)
	}
	if err != nil {
		s.notifier.Notify(ctx, "📭 DM Delivery Failed",
			fmt.Sprintf("Could not DM <@%s> **%s**: %v", discordID, key, err),
			notify.SeverityWarning)
	}
}

func (s *Service) notifyStoreError(ctx context.Context, discordID string, err error) {
	s.notifier.Notify(ctx, "🔥 Bot Error",
		fmt.Sprintf("Store failure for <@%s>: %v", discordID, err),
		notify.SeverityError)
}

func logDebug(msg string, fields ...zap.Field) {
	if observability.ServerLogger != nil {
		observability.ServerLogger.Debug(msg, fields...)
	}
}
