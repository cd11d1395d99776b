package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWindow = 900 * time.Second

func TestRateLimiterBlocksAfterMaxAttempts(t *testing.T) {
	db := NewMemoryDB()
	rl := NewRateLimiter(db)

	for i := 1; i <= 5; i++ {
		blocked, err := rl.CheckAndIncrement(ActionLogin, "user@example.com", "10.0.0.1", 5, testWindow)
		require.NoError(t, err)
		assert.False(t, blocked, "attempt %d should not be blocked", i)
	}

	blocked, err := rl.CheckAndIncrement(ActionLogin, "user@example.com", "10.0.0.1", 5, testWindow)
	require.NoError(t, err)
	assert.True(t, blocked, "sixth attempt should be blocked")

	// blocked attempts must not grow the counter
	rec, err := db.GetRateLimit(ActionLogin, "10.0.0.1", hashIdentifier("user@example.com"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 5, rec.Attempts)
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(NewMemoryDB())

	for i := 0; i < 6; i++ {
		_, err := rl.CheckAndIncrement(ActionLogin, "user@example.com", "10.0.0.1", 5, testWindow)
		require.NoError(t, err)
	}

	// different IP, same identifier
	blocked, err := rl.CheckAndIncrement(ActionLogin, "user@example.com", "10.0.0.2", 5, testWindow)
	require.NoError(t, err)
	assert.False(t, blocked)

	// same IP, different identifier
	blocked, err = rl.CheckAndIncrement(ActionLogin, "other@example.com", "10.0.0.1", 5, testWindow)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestRateLimiterStaleWindowResets(t *testing.T) {
	db := NewMemoryDB()
	rl := NewRateLimiter(db)
	hash := hashIdentifier("user@example.com")

	for i := 0; i < 6; i++ {
		_, err := rl.CheckAndIncrement(ActionLogin, "user@example.com", "10.0.0.1", 5, testWindow)
		require.NoError(t, err)
	}

	// age the window past its budget
	db.mu.Lock()
	db.limits[limitKey(ActionLogin, "10.0.0.1", hash)].WindowStart = time.Now().Add(-testWindow - time.Second)
	db.mu.Unlock()

	blocked, err := rl.CheckAndIncrement(ActionLogin, "user@example.com", "10.0.0.1", 5, testWindow)
	require.NoError(t, err)
	assert.False(t, blocked, "stale window must not block")

	rec, err := db.GetRateLimit(ActionLogin, "10.0.0.1", hash)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.Attempts, "stale window resets the counter")
}

func TestRateLimiterClear(t *testing.T) {
	db := NewMemoryDB()
	rl := NewRateLimiter(db)
	hash := hashIdentifier("user@example.com")

	for i := 0; i < 3; i++ {
		_, err := rl.CheckAndIncrement(ActionLogin, "user@example.com", "10.0.0.1", 5, testWindow)
		require.NoError(t, err)
	}

	require.NoError(t, rl.Clear(ActionLogin, "user@example.com", "10.0.0.1"))

	rec, err := db.GetRateLimit(ActionLogin, "10.0.0.1", hash)
	require.NoError(t, err)
	assert.Nil(t, rec, "clear removes the record")

	// next attempt starts a fresh window at one
	blocked, err := rl.CheckAndIncrement(ActionLogin, "user@example.com", "10.0.0.1", 5, testWindow)
	require.NoError(t, err)
	assert.False(t, blocked)

	rec, err = db.GetRateLimit(ActionLogin, "10.0.0.1", hash)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.Attempts)
}
