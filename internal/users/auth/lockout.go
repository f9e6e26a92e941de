// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import "time"

// # Lockout State

// LockoutState is the per-account brute-force tracking persisted with the account.
type LockoutState struct {
	// Enabled is copied from [LockoutPolicy.AllowedForNewAccounts] at registration.
	Enabled bool `json:"enabled"`

	// FailedAccessCount counts consecutive failed logins since the last success or lockout.
	FailedAccessCount int `json:"failed_access_count"`

	// EndUTC is the instant the current lockout expires. Nil when never locked.
	EndUTC *time.Time `json:"lockout_end,omitempty"`
}

// # Lockout Policy

// LockoutPolicy decides when repeated login failures lock an account.
//
// It is a pure value: every method takes the current state and returns the next one,
// and the caller is responsible for persisting it.
type LockoutPolicy struct {
	MaxFailedAttempts     int
	LockoutDuration       time.Duration
	AllowedForNewAccounts bool
}

// DefaultLockoutPolicy returns three attempts, a two minute lockout, enabled for new accounts.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxFailedAttempts:     3,
		LockoutDuration:       2 * time.Minute,
		AllowedForNewAccounts: true,
	}
}

// NewState returns the state assigned to a freshly registered account.
func (policy LockoutPolicy) NewState() LockoutState {
	return LockoutState{Enabled: policy.AllowedForNewAccounts}
}

/*
RecordFailure registers one failed login.

Description: Increments the counter. When lockout is enabled and the counter
reaches MaxFailedAttempts, the lockout end is set to now + LockoutDuration and
the counter starts over so an expired lockout begins a fresh window.

Parameters:
  - state: LockoutState
  - now: time.Time

Returns:
  - LockoutState: Next state
*/
func (policy LockoutPolicy) RecordFailure(state LockoutState, now time.Time) LockoutState {
	state.FailedAccessCount++

	if state.Enabled && policy.MaxFailedAttempts > 0 && state.FailedAccessCount >= policy.MaxFailedAttempts {
		end := now.Add(policy.LockoutDuration).UTC()
		state.EndUTC = &end
		state.FailedAccessCount = 0
	}

	return state
}

// RecordSuccess clears the counter and any lockout.
func (policy LockoutPolicy) RecordSuccess(state LockoutState) LockoutState {
	state.FailedAccessCount = 0
	state.EndUTC = nil
	return state
}

// IsLockedOut reports whether the account is locked at now.
func (policy LockoutPolicy) IsLockedOut(state LockoutState, now time.Time) bool {
	return state.Enabled && state.EndUTC != nil && now.Before(*state.EndUTC)
}
