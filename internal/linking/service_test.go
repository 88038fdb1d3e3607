package linking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lostmyalias/skyspoofer-trial-bot/internal/errors"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/discord"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/notify"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/ratelimit"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/store"
)

type fakeIdentity struct {
	exchangeErr error
	profileErr  error
	profile     discord.Profile
}

func (f *fakeIdentity) ExchangeCode(ctx context.Context, code string) (string, error) {
	if f.exchangeErr != nil {
		return "", f.exchangeErr
	}
	return "token-" + code, nil
}

func (f *fakeIdentity) FetchProfile(ctx context.Context, accessToken string) (discord.Profile, error) {
	if f.profileErr != nil {
		return discord.Profile{}, f.profileErr
	}
	return f.profile, nil
}

type fakeCourier struct {
	mu       sync.Mutex
	openErr  error
	sendErr  error
	sentKeys []string
}

func (f *fakeCourier) OpenDirectChannel(ctx context.Context, userID string) (string, error) {
	if f.openErr != nil {
		return "", f.openErr
	}
	return "chan-" + userID, nil
}

func (f *fakeCourier) SendKeyMessage(ctx context.Context, channelID, key string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	f.sentKeys = append(f.sentKeys, key)
	f.mu.Unlock()
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (r *recordingNotifier) Notify(ctx context.Context, title, body string, severity notify.Severity) {
	r.mu.Lock()
	r.titles = append(r.titles, title)
	r.mu.Unlock()
}

func (r *recordingNotifier) has(title string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.titles {
		if t == title {
			return true
		}
	}
	return false
}

type fixture struct {
	kv       *store.Memory
	identity *fakeIdentity
	courier  *fakeCourier
	notifier *recordingNotifier
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		kv:       store.NewMemory(),
		identity: &fakeIdentity{profile: discord.Profile{ID: "42", Email: "user@example.com"}},
		courier:  &fakeCourier{},
		notifier: &recordingNotifier{},
	}
	f.svc = NewService(f.kv,
		ratelimit.New(ratelimit.Config{Limit: 100, Window: time.Minute}),
		f.identity, f.courier, f.notifier,
		Config{RedirectURL: "https://skyspoofer.com", CallTimeout: time.Second})
	return f
}

func (f *fixture) seedState(t *testing.T, token, userID string) {
	t.Helper()
	require.NoError(t, IssueState(context.Background(), f.kv, token, userID))
}

func (f *fixture) seedKey(t *testing.T, key string) {
	t.Helper()
	require.NoError(t, f.kv.Set(context.Background(), PrefixKey+key, nil))
}

func TestHandleCallbackFirstLinkDispensesKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedState(t, "st-1", "42")
	f.seedKey(t, "TRIAL-AAA")

	redirect, envErr := f.svc.HandleCallback(ctx, "1.2.3.4", "code-1", "st-1")
	require.Nil(t, envErr)
	assert.Equal(t, "https://skyspoofer.com", redirect)

	account, err := LoadAccount(ctx, f.kv, "42")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", account.Email)
	assert.Equal(t, "TRIAL-AAA", account.DispensedKey)
	require.NotNil(t, account.LastDispensedAt)
	assert.False(t, account.FirstLinkedAt.IsZero())

	keys, err := f.kv.Scan(ctx, PrefixKey)
	require.NoError(t, err)
	assert.Empty(t, keys, "claimed key must be removed from the pool")

	assert.Equal(t, []string{"TRIAL-AAA"}, f.courier.sentKeys)
	assert.True(t, f.notifier.has("🔗 Discord Linked"))
	assert.True(t, f.notifier.has("🔑 Key Dispensed"))

	// state token consumed
	exists, err := f.kv.Exists(ctx, PrefixState+"st-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestHandleCallbackUnknownState(t *testing.T) {
	f := newFixture(t)

	_, envErr := f.svc.HandleCallback(context.Background(), "1.2.3.4", "code-1", "nope")
	require.NotNil(t, envErr)
	assert.Equal(t, "INVALID_INPUT", envErr.Code)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusFromEnvelope(envErr))
	assert.True(t, f.notifier.has("⚠️ Invalid OAuth State"))

	keys, err := f.kv.Scan(context.Background(), PrefixAccount)
	require.NoError(t, err)
	assert.Empty(t, keys, "no account record may be created")
}

func TestHandleCallbackMissingParams(t *testing.T) {
	f := newFixture(t)

	_, envErr := f.svc.HandleCallback(context.Background(), "1.2.3.4", "", "st")
	require.NotNil(t, envErr)
	assert.Equal(t, "INVALID_INPUT", envErr.Code)

	_, envErr = f.svc.HandleCallback(context.Background(), "1.2.3.4", "code", "")
	require.NotNil(t, envErr)
	assert.Equal(t, "INVALID_INPUT", envErr.Code)
}

func TestHandleCallbackRateLimited(t *testing.T) {
	f := newFixture(t)
	f.svc.limiter = ratelimit.New(ratelimit.Config{Limit: 2, Window: time.Minute})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		f.svc.HandleCallback(ctx, "9.9.9.9", "", "")
	}

	_, envErr := f.svc.HandleCallback(ctx, "9.9.9.9", "code", "st")
	require.NotNil(t, envErr)
	assert.Equal(t, "RATE_LIMITED", envErr.Code)
	assert.Equal(t, http.StatusTooManyRequests, apperrors.HTTPStatusFromEnvelope(envErr))
	assert.True(t, f.notifier.has("🚫 Rate Limit Exceeded"))
}

func TestHandleCallbackConcurrentSameState(t *testing.T) {
	f := newFixture(t)
	f.seedState(t, "st-race", "42")

	const racers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, envErr := f.svc.HandleCallback(context.Background(), "1.2.3.4", "code", "st-race")
			mu.Lock()
			defer mu.Unlock()
			if envErr == nil {
				succeeded++
			} else if envErr.Code == "INVALID_INPUT" {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded, "exactly one request may consume the state")
	assert.Equal(t, racers-1, rejected)
}

func TestHandleCallbackEmptyPoolStillSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedState(t, "st-1", "42")

	redirect, envErr := f.svc.HandleCallback(ctx, "1.2.3.4", "code", "st-1")
	require.Nil(t, envErr)
	assert.Equal(t, "https://skyspoofer.com", redirect)

	account, err := LoadAccount(ctx, f.kv, "42")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", account.Email)
	assert.Empty(t, account.DispensedKey)
	assert.Nil(t, account.LastDispensedAt)
	assert.False(t, f.notifier.has("🔑 Key Dispensed"))
}

func TestHandleCallbackProfileWithoutEmail(t *testing.T) {
	f := newFixture(t)
	f.identity.profile = discord.Profile{ID: "42"}
	ctx := context.Background()
	f.seedState(t, "st-1", "42")
	f.seedKey(t, "TRIAL-AAA")

	_, envErr := f.svc.HandleCallback(ctx, "1.2.3.4", "code", "st-1")
	require.NotNil(t, envErr)
	assert.Equal(t, "INTERNAL_ERROR", envErr.Code)
	assert.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatusFromEnvelope(envErr))
	assert.True(t, f.notifier.has("🔥 Bot Error"))

	// Account record persists without email or key.
	account, err := LoadAccount(ctx, f.kv, "42")
	require.NoError(t, err)
	assert.Empty(t, account.Email)
	assert.Empty(t, account.DispensedKey)

	keys, err := f.kv.Scan(ctx, PrefixKey)
	require.NoError(t, err)
	assert.Len(t, keys, 1, "pool must be untouched on exchange failure")
}

func TestHandleCallbackExchangeFailure(t *testing.T) {
	f := newFixture(t)
	f.identity.exchangeErr = errors.New("token endpoint 400")
	f.seedState(t, "st-1", "42")

	_, envErr := f.svc.HandleCallback(context.Background(), "1.2.3.4", "code", "st-1")
	require.NotNil(t, envErr)
	assert.Equal(t, "INTERNAL_ERROR", envErr.Code)
}

func TestHandleCallbackRelinkKeepsFirstLinkedAtAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedState(t, "st-1", "42")
	_, envErr := f.svc.HandleCallback(ctx, "1.2.3.4", "code", "st-1")
	require.Nil(t, envErr)

	first, err := LoadAccount(ctx, f.kv, "42")
	require.NoError(t, err)

	// Second link attempt with a fresh state and an available key.
	f.seedState(t, "st-2", "42")
	f.seedKey(t, "TRIAL-BBB")
	_, envErr = f.svc.HandleCallback(ctx, "1.2.3.4", "code", "st-2")
	require.Nil(t, envErr)

	assert.True(t, f.notifier.has("🚫 Duplicate OAuth Attempt"))

	again, err := LoadAccount(ctx, f.kv, "42")
	require.NoError(t, err)
	assert.Equal(t, first.FirstLinkedAt, again.FirstLinkedAt,
		"first_linked_at must never change on re-link")
	// Audit-but-allow: the re-link still flows through dispensing.
	assert.Equal(t, "TRIAL-BBB", again.DispensedKey)
}

func TestHandleCallbackConcurrentDispenseClaimsDistinctKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const users = 6
	const poolSize = 4
	for i := 0; i < poolSize; i++ {
		f.seedKey(t, fmt.Sprintf("TRIAL-%03d", i))
	}
	for i := 0; i < users; i++ {
		f.seedState(t, fmt.Sprintf("st-%d", i), fmt.Sprintf("user-%d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := fmt.Sprintf("10.0.0.%d", i)
			_, envErr := f.svc.HandleCallback(ctx, addr, "code", fmt.Sprintf("st-%d", i))
			if envErr != nil {
				t.Errorf("unexpected error: %v", envErr)
			}
		}(i)
	}
	wg.Wait()

	// Pool fully drained, each key on exactly one account.
	keys, err := f.kv.Scan(ctx, PrefixKey)
	require.NoError(t, err)
	assert.Empty(t, keys)

	seen := map[string]string{}
	dispensed := 0
	for i := 0; i < users; i++ {
		account, err := LoadAccount(ctx, f.kv, fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
		if account.DispensedKey == "" {
			continue
		}
		dispensed++
		if owner, dup := seen[account.DispensedKey]; dup {
			t.Fatalf("key %s dispensed to both %s and %s", account.DispensedKey, owner, account.DiscordID)
		}
		seen[account.DispensedKey] = account.DiscordID
	}
	assert.Equal(t, poolSize, dispensed, "pool size must decrease by exactly one per dispense")
}

func TestHandleCallbackDeliveryFailureDoesNotRollBackDispense(t *testing.T) {
	f := newFixture(t)
	f.courier.sendErr = errors.New("cannot DM user")
	ctx := context.Background()
	f.seedState(t, "st-1", "42")
	f.seedKey(t, "TRIAL-AAA")

	redirect, envErr := f.svc.HandleCallback(ctx, "1.2.3.4", "code", "st-1")
	require.Nil(t, envErr)
	assert.Equal(t, "https://skyspoofer.com", redirect)

	assert.True(t, f.notifier.has("📭 DM Delivery Failed"))
	assert.True(t, f.notifier.has("🔑 Key Dispensed"))

	account, err := LoadAccount(ctx, f.kv, "42")
	require.NoError(t, err)
	assert.Equal(t, "TRIAL-AAA", account.DispensedKey, "dispense is kept even when delivery fails")

	keys, err := f.kv.Scan(ctx, PrefixKey)
	require.NoError(t, err)
	assert.Empty(t, keys)
}
