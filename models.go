package main

import "time"

// UserStatus is the closed set of account states. Anything but active is
// refused at login.
type UserStatus string

const (
	StatusActive    UserStatus = "active"
	StatusInactive  UserStatus = "inactive"
	StatusSuspended UserStatus = "suspended"
)

func (s UserStatus) CanLogin() bool {
	return s == StatusActive
}

// User represents a registered account. Emails are stored lower-cased.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Status       UserStatus
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RateLimitRecord is one fixed attempt window for an (action, ip, identifier)
// key. The identifier is stored only as a one-way hash.
type RateLimitRecord struct {
	ID             int64
	Action         string
	IPAddress      string
	IdentifierHash string
	Attempts       int
	WindowStart    time.Time
}

// SecurityEvent is one append-only audit row. Rows are never updated or
// deleted.
type SecurityEvent struct {
	ID           int64
	EventType    string
	UserID       *int64
	IPAddress    string
	UserAgent    string
	MetadataJSON string
	CreatedAt    time.Time
}

// CustomerProfile is the KYC-lite profile gating access to the dApp.
// Optional fields are empty strings in memory and NULL at rest.
type CustomerProfile struct {
	UserID       int64
	FullName     string
	Phone        string
	Country      string
	City         string
	AddressLine1 string
	AddressLine2 string
	Company      string
	IDType       string
	IDNumber     string
	DateOfBirth  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
