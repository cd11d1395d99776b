package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := hashPassword("CorrectHorse7Battery")
	require.NoError(t, err)
	assert.True(t, comparePassword(hash, "CorrectHorse7Battery"))
	assert.False(t, comparePassword(hash, "correcthorse7battery"))
	assert.False(t, comparePassword(hash, ""))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "user@example.com", normalizeEmail("  User@Example.COM "))
	assert.Equal(t, "", normalizeEmail("   "))
}

func TestValidEmail(t *testing.T) {
	assert.True(t, validEmail("user@example.com"))
	assert.True(t, validEmail("first.last+tag@sub.example.org"))
	assert.False(t, validEmail(""))
	assert.False(t, validEmail("not-an-email"))
	assert.False(t, validEmail("spaces in@example.com"))
}

func TestHashIdentifier(t *testing.T) {
	h := hashIdentifier("User@Example.com")
	assert.Len(t, h, 64)
	// normalization happens before hashing
	assert.Equal(t, h, hashIdentifier("user@example.com"))
	assert.NotEqual(t, h, hashIdentifier("other@example.com"))
	assert.NotContains(t, h, "@")
}

func TestPasswordPolicyErrors(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErrs int
	}{
		{"valid", "Sufficient1Length", 0},
		{"too short", "Short1a", 1},
		{"missing classes", "alllowercaseletters", 1},
		{"short and weak", "short1", 2},
		{"no digit", "NoDigitsHereAtAll", 1},
		{"no upper", "nouppercase123456", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, passwordPolicyErrors(tt.password), tt.wantErrs)
		})
	}
}
