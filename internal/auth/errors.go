package auth

import "errors"

var (
	// ErrEmailTaken is returned when registering an address that already
	// has an account.
	ErrEmailTaken = errors.New("auth: user with this email already exists")
	// ErrNoSuchUser and ErrInvalidPassword are deliberately distinct.
	// This leaks account existence on the login path; see the hardening
	// note in DESIGN.md.
	ErrNoSuchUser      = errors.New("auth: no account with this email")
	ErrInvalidPassword = errors.New("auth: invalid password")
	// ErrInvalidActionToken covers bad or expired email-confirmation and
	// password-reset tokens.
	ErrInvalidActionToken = errors.New("auth: invalid or expired token")
	// ErrValidation marks malformed registration or credential input.
	ErrValidation = errors.New("auth: validation failed")
)
