package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/mail"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

func genToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashPassword(p string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.DefaultCost)
	return string(b), err
}

func comparePassword(hash, p string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// hashIdentifier produces the fixed-length digest stored in rate-limit rows.
// Raw identifiers (emails) never reach the table.
func hashIdentifier(identifier string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(identifier)))
	return hex.EncodeToString(sum[:])
}

// passwordPolicyErrors returns the user-facing messages for a password that
// misses the registration policy, empty when the password is acceptable.
func passwordPolicyErrors(password string) []string {
	var errs []string
	if len(password) < 12 {
		errs = append(errs, "Password must be at least 12 characters.")
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		errs = append(errs, "Password must include upper-case, lower-case, and a number.")
	}
	return errs
}
