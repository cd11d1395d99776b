package main

import (
	"fmt"
	"time"
)

// Rate-limited actions.
const ActionLogin = "login"

// RateLimiter tracks attempts per (action, ip, identifier) key in fixed
// windows backed by the shared store, so the counter survives restarts and
// is shared across instances.
type RateLimiter struct {
	db DB
}

func NewRateLimiter(db DB) *RateLimiter {
	return &RateLimiter{db: db}
}

// CheckAndIncrement reports whether the key is over its budget and counts
// this attempt if not. Decision order: a missing record starts a window at
// one attempt; a stale window resets to one; a saturated counter blocks
// without further increments; anything else increments.
//
// The read and the write are separate statements, so concurrent requests
// for the same key can race. The increment itself is conditional
// (attempts < max inside the UPDATE), which keeps the counter capped; the
// worst case is one extra admitted attempt per window, fine for slowing
// brute force.
func (rl *RateLimiter) CheckAndIncrement(action, identifier, ip string, maxAttempts int, window time.Duration) (bool, error) {
	hash := hashIdentifier(identifier)

	rec, err := rl.db.GetRateLimit(action, ip, hash)
	if err != nil {
		return false, fmt.Errorf("rate limit lookup: %w", err)
	}

	if rec == nil {
		if err := rl.db.InsertRateLimit(action, ip, hash); err != nil {
			return false, fmt.Errorf("rate limit insert: %w", err)
		}
		return false, nil
	}

	if time.Since(rec.WindowStart) > window {
		if err := rl.db.ResetRateLimit(rec.ID); err != nil {
			return false, fmt.Errorf("rate limit reset: %w", err)
		}
		return false, nil
	}

	if rec.Attempts >= maxAttempts {
		return true, nil
	}

	incremented, err := rl.db.IncrementRateLimit(rec.ID, maxAttempts)
	if err != nil {
		return false, fmt.Errorf("rate limit increment: %w", err)
	}
	// A failed conditional increment means another request saturated the
	// counter first; treat it as blocked.
	return !incremented, nil
}

// Clear removes the record for the key, called after a successful login so
// the next failure starts a fresh window.
func (rl *RateLimiter) Clear(action, identifier, ip string) error {
	return rl.db.DeleteRateLimit(action, ip, hashIdentifier(identifier))
}
