// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taibuivan/identity/internal/platform/notify"
	"github.com/taibuivan/identity/internal/platform/sec"
	"github.com/taibuivan/identity/internal/platform/throttle"
)

// # Clock

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (clock *fakeClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

func (clock *fakeClock) Advance(d time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = clock.now.Add(d)
}

// # Credential Store

type memoryStore struct {
	mu        sync.Mutex
	accounts  map[string]*Account
	conflicts int
	saves     int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{accounts: map[string]*Account{}}
}

func cloneAccount(account *Account) *Account {
	clone := *account
	if account.Lockout.EndUTC != nil {
		end := *account.Lockout.EndUTC
		clone.Lockout.EndUTC = &end
	}
	if account.LastLoginAt != nil {
		last := *account.LastLoginAt
		clone.LastLoginAt = &last
	}
	return &clone
}

// injectConflicts makes the next n saves lose the race against a phantom writer.
func (store *memoryStore) injectConflicts(n int) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.conflicts = n
}

func (store *memoryStore) get(id string) *Account {
	store.mu.Lock()
	defer store.mu.Unlock()
	if account, ok := store.accounts[id]; ok {
		return cloneAccount(account)
	}
	return nil
}

// confirm marks an account as confirmed without going through a token.
func (store *memoryStore) confirm(id string) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.accounts[id].EmailConfirmed = true
}

func (store *memoryStore) FindByID(_ context.Context, id string) (*Account, error) {
	if account := store.get(id); account != nil {
		return account, nil
	}
	return nil, ErrAccountNotFound
}

func (store *memoryStore) FindByEmail(_ context.Context, normalizedEmail string) (*Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, account := range store.accounts {
		if account.NormalizedEmail == normalizedEmail {
			return cloneAccount(account), nil
		}
	}
	return nil, ErrAccountNotFound
}

// errValueTooLong mirrors the Postgres string_data_right_truncation failure.
var errValueTooLong = errors.New("value too long for type character varying(64)")

func (store *memoryStore) Create(_ context.Context, account *Account) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if utf8.RuneCountInString(account.DisplayName) > DisplayNameMaxLength {
		return errValueTooLong
	}
	for _, existing := range store.accounts {
		if existing.NormalizedEmail == account.NormalizedEmail {
			return ErrDuplicateEmail
		}
	}
	account.Version = 1
	store.accounts[account.ID] = cloneAccount(account)
	return nil
}

func (store *memoryStore) Save(_ context.Context, account *Account) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	current, ok := store.accounts[account.ID]
	if !ok {
		return ErrVersionConflict
	}

	if store.conflicts > 0 {
		store.conflicts--
		current.Version++
		return ErrVersionConflict
	}

	if current.Version != account.Version {
		return ErrVersionConflict
	}

	for id, existing := range store.accounts {
		if id != account.ID && existing.NormalizedEmail == account.NormalizedEmail {
			return ErrDuplicateEmail
		}
	}

	account.Version++
	store.accounts[account.ID] = cloneAccount(account)
	store.saves++
	return nil
}

// # Session Repository

type memorySessions struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: map[string]*Session{}}
}

func (repository *memorySessions) Create(_ context.Context, session *Session) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	clone := *session
	repository.sessions[session.ID] = &clone
	return nil
}

func (repository *memorySessions) FindByTokenHash(_ context.Context, tokenHash string) (*Session, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	for _, session := range repository.sessions {
		if session.TokenHash == tokenHash && !session.IsRevoked {
			clone := *session
			return &clone, nil
		}
	}
	return nil, ErrSessionInvalid
}

func (repository *memorySessions) ListActive(_ context.Context, userID string) ([]*Session, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	var active []*Session
	for _, session := range repository.sessions {
		if session.UserID == userID && !session.IsRevoked {
			clone := *session
			active = append(active, &clone)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.After(active[j].CreatedAt) })
	return active, nil
}

func (repository *memorySessions) Revoke(_ context.Context, userID, sessionID string) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	session, ok := repository.sessions[sessionID]
	if !ok || session.UserID != userID || session.IsRevoked {
		return ErrSessionInvalid
	}
	session.IsRevoked = true
	return nil
}

func (repository *memorySessions) RevokeAll(_ context.Context, userID string) error {
	return repository.RevokeOthers(context.Background(), userID, "")
}

func (repository *memorySessions) RevokeOthers(_ context.Context, userID, currentSessionID string) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	for id, session := range repository.sessions {
		if session.UserID == userID && id != currentSessionID {
			session.IsRevoked = true
		}
	}
	return nil
}

func (repository *memorySessions) DeleteExpired(context.Context) (int64, error) {
	return 0, nil
}

func (repository *memorySessions) activeCount(userID string) int {
	active, _ := repository.ListActive(context.Background(), userID)
	return len(active)
}

// # Notifier

type captureNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (notifier *captureNotifier) Enqueue(_ context.Context, message notify.Message) error {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	notifier.messages = append(notifier.messages, message)
	return nil
}

func (notifier *captureNotifier) count() int {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	return len(notifier.messages)
}

func (notifier *captureNotifier) last(t *testing.T) notify.Message {
	t.Helper()
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.NotEmpty(t, notifier.messages, "no message was enqueued")
	return notifier.messages[len(notifier.messages)-1]
}

// failingNotifier refuses every message the way a saturated dispatcher does.
type failingNotifier struct {
	mu       sync.Mutex
	attempts int
}

func (notifier *failingNotifier) Enqueue(context.Context, notify.Message) error {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	notifier.attempts++
	return notify.ErrQueueFull
}

func (notifier *failingNotifier) count() int {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	return notifier.attempts
}

var tokenPattern = regexp.MustCompile(`token=([A-Za-z0-9._-]+)`)

// lastToken extracts the security token from the most recent message link.
func (notifier *captureNotifier) lastToken(t *testing.T) string {
	t.Helper()
	match := tokenPattern.FindStringSubmatch(notifier.last(t).TextBody)
	require.Len(t, match, 2, "message carries no token link")
	return match[1]
}

// # Throttle

type denyingThrottle struct{}

func (denyingThrottle) Allow(context.Context, string) (throttle.Result, error) {
	return throttle.Result{Allowed: false, RetryAfter: time.Minute}, nil
}

// # Metrics

type outcomeLog struct {
	mu       sync.Mutex
	outcomes []string
}

func (log *outcomeLog) ObserveAuth(operation, outcome string) {
	log.mu.Lock()
	defer log.mu.Unlock()
	log.outcomes = append(log.outcomes, operation+"="+outcome)
}

func (log *outcomeLog) has(entry string) bool {
	log.mu.Lock()
	defer log.mu.Unlock()
	for _, outcome := range log.outcomes {
		if outcome == entry {
			return true
		}
	}
	return false
}

// # Harness

const (
	testPassword  = "Corr3ct-Horse!"
	otherPassword = "N3w-Battery!Staple"
	testSecret    = "0123456789abcdef0123456789abcdef"
)

type harness struct {
	service  *Service
	store    *memoryStore
	sessions *memorySessions
	notifier *captureNotifier
	clock    *fakeClock
	metrics  *outcomeLog
	jwt      *sec.TokenService
}

type harnessOption func(*Dependencies, *Settings)

func withThrottle(t Throttle) harnessOption {
	return func(deps *Dependencies, _ *Settings) { deps.Throttle = t }
}

func withNotifier(notifier Notifier) harnessOption {
	return func(deps *Dependencies, _ *Settings) { deps.Notifier = notifier }
}

func withoutConfirmedEmail() harnessOption {
	return func(_ *Dependencies, settings *Settings) { settings.RequireConfirmedEmail = false }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	clock := newFakeClock()

	codec, err := NewTokenCodec([]byte(testSecret), "identity.test/security", WithTokenClock(clock.Now))
	require.NoError(t, err)

	renderer, err := NewMessageRenderer("https://id.yomira.test", "Yomira")
	require.NoError(t, err)

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	jwtService := sec.NewTokenServiceWithKey(privateKey, &privateKey.PublicKey, "identity.test")

	h := &harness{
		store:    newMemoryStore(),
		sessions: newMemorySessions(),
		notifier: &captureNotifier{},
		clock:    clock,
		metrics:  &outcomeLog{},
		jwt:      jwtService,
	}

	deps := Dependencies{
		Store:        h.store,
		Sessions:     h.sessions,
		Tokens:       codec,
		AccessTokens: jwtService,
		Hasher:       sec.NewBcryptHasher(bcrypt.MinCost),
		Notifier:     h.notifier,
		Messages:     renderer,
		Metrics:      h.metrics,
		Lockout:      DefaultLockoutPolicy(),
		Passwords:    DefaultPasswordPolicy(),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	settings := DefaultSettings()

	for _, opt := range opts {
		opt(&deps, &settings)
	}

	h.service = NewService(deps, settings, WithClock(clock.Now))
	return h
}

// register creates an account and returns it with the confirmation token it was mailed.
func (h *harness) register(t *testing.T, email string) (*Account, string) {
	t.Helper()
	account, err := h.service.Register(context.Background(), RegisterInput{Email: email, Password: testPassword})
	require.NoError(t, err)
	return account, h.notifier.lastToken(t)
}

// registerConfirmed creates an account and confirms it.
func (h *harness) registerConfirmed(t *testing.T, email string) *Account {
	t.Helper()
	account, token := h.register(t, email)
	require.NoError(t, h.service.ConfirmEmail(context.Background(), account.ID, token))
	return h.store.get(account.ID)
}

func (h *harness) login(email, password string) (*LoginSession, error) {
	return h.service.Login(context.Background(), LoginInput{
		Email:     email,
		Password:  password,
		UserAgent: "go-test",
		IPAddress: "127.0.0.1",
	})
}

func containsAll(s string, parts ...string) bool {
	for _, part := range parts {
		if !strings.Contains(s, part) {
			return false
		}
	}
	return true
}
