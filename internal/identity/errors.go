package identity

import "errors"

var (
	ErrNotFound     = errors.New("identity: not found")
	ErrEmailTaken   = errors.New("identity: email already registered")
	ErrStaleToken   = errors.New("identity: stored token no longer matches")
	ErrInvalidInput = errors.New("identity: invalid input")
)
