package main

import "errors"

// ErrDuplicateIdentity is returned by CreateUser when the normalized email is
// already registered.
var ErrDuplicateIdentity = errors.New("email already registered")

// User-facing messages. Credential and email-format failures share one
// message so responses do not reveal whether an account exists.
const (
	msgInvalidCSRF        = "Invalid CSRF token. Please refresh and try again."
	msgInvalidCredentials = "Invalid credentials."
	msgInvalidEmail       = "Please provide a valid email address."
	msgRateLimited        = "Too many login attempts. Please wait and try again."
	msgAccountInactive    = "Account is not active. Please contact support."
	msgDuplicateEmail     = "An account with this email already exists."
)
