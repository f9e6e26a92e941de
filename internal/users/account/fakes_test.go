// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/taibuivan/identity/internal/platform/sec"
	"github.com/taibuivan/identity/internal/users/auth"
)

var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// # Profile Store

type memoryProfiles struct {
	mu        sync.Mutex
	accounts  map[string]*auth.Account
	deleted   map[string]bool
	conflicts int
}

func newMemoryProfiles(accounts ...*auth.Account) *memoryProfiles {
	store := &memoryProfiles{accounts: map[string]*auth.Account{}, deleted: map[string]bool{}}
	for _, account := range accounts {
		store.accounts[account.ID] = account
	}
	return store
}

func (store *memoryProfiles) FindByID(_ context.Context, id string) (*auth.Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, ok := store.accounts[id]
	if !ok || store.deleted[id] {
		return nil, auth.ErrAccountNotFound
	}
	clone := *account
	return &clone, nil
}

func (store *memoryProfiles) UpdateProfile(_ context.Context, account *auth.Account) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.conflicts > 0 {
		store.conflicts--
		store.accounts[account.ID].Version++
		return auth.ErrVersionConflict
	}
	current, ok := store.accounts[account.ID]
	if !ok || store.deleted[account.ID] || current.Version != account.Version {
		return auth.ErrVersionConflict
	}
	account.Version++
	clone := *account
	store.accounts[account.ID] = &clone
	return nil
}

// rotateStamp simulates a credential change made through the auth flows.
func (store *memoryProfiles) rotateStamp(id, stamp string) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.accounts[id].SecurityStamp = stamp
}

func (store *memoryProfiles) SoftDelete(_ context.Context, id string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.accounts[id]; !ok || store.deleted[id] {
		return auth.ErrAccountNotFound
	}
	store.deleted[id] = true
	return nil
}

// # Sessions

type memorySessions struct {
	mu       sync.Mutex
	sessions map[string]*auth.Session
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: map[string]*auth.Session{}}
}

// add stores a live session for userID bound to the given refresh token.
func (repository *memorySessions) add(userID, id, token string, createdAt time.Time) {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	repository.sessions[id] = &auth.Session{
		ID:        id,
		UserID:    userID,
		TokenHash: sec.HashToken(token),
		UserAgent: "test-agent/" + id,
		IPAddress: "203.0.113.7",
		ExpiresAt: testNow.Add(24 * time.Hour),
		CreatedAt: createdAt,
	}
}

func (repository *memorySessions) FindByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	for _, session := range repository.sessions {
		if session.TokenHash == tokenHash {
			clone := *session
			return &clone, nil
		}
	}
	return nil, auth.ErrSessionInvalid
}

func (repository *memorySessions) ListActive(_ context.Context, userID string) ([]*auth.Session, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	sessions := make([]*auth.Session, 0)
	for _, session := range repository.sessions {
		if session.UserID == userID && !session.IsRevoked {
			clone := *session
			sessions = append(sessions, &clone)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.After(sessions[j].CreatedAt) })
	return sessions, nil
}

func (repository *memorySessions) Revoke(_ context.Context, userID, sessionID string) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	session, ok := repository.sessions[sessionID]
	if !ok || session.UserID != userID || session.IsRevoked {
		return auth.ErrSessionInvalid
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
	for _, session := range repository.sessions {
		if session.UserID == userID && session.ID != currentSessionID {
			session.IsRevoked = true
		}
	}
	return nil
}

func (repository *memorySessions) active(userID string) []string {
	sessions, _ := repository.ListActive(context.Background(), userID)
	ids := make([]string, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.ID)
	}
	sort.Strings(ids)
	return ids
}

// # Harness

const (
	ownerID    = "019531c2-8f4e-7c1a-9b3d-5e2f6a7b8c9d"
	otherID    = "019531c2-8f4e-7c1a-9b3d-5e2f6a7b8c9e"
	ownerStamp = "owner-stamp"
)

type harness struct {
	service  *Service
	profiles *memoryProfiles
	sessions *memorySessions
	lockout  auth.LockoutPolicy
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	owner := &auth.Account{
		ID:              ownerID,
		Email:           "tai@yomira.app",
		NormalizedEmail: "tai@yomira.app",
		SecurityStamp:   ownerStamp,
		EmailConfirmed:  true,
		Role:            sec.RoleMember,
		DisplayName:     "Tai",
		Version:         1,
		Lockout:         auth.LockoutState{Enabled: true},
		CreatedAt:       testNow.Add(-time.Hour),
		UpdatedAt:       testNow.Add(-time.Hour),
	}
	other := &auth.Account{
		ID:              otherID,
		Email:           "lan@yomira.app",
		NormalizedEmail: "lan@yomira.app",
		Role:            sec.RoleMember,
		DisplayName:     "Lan",
		Version:         1,
	}

	profiles := newMemoryProfiles(owner, other)
	sessions := newMemorySessions()
	lockout := auth.DefaultLockoutPolicy()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := NewService(profiles, sessions, lockout, logger,
		WithClock(func() time.Time { return testNow }))

	return &harness{service: service, profiles: profiles, sessions: sessions, lockout: lockout}
}
