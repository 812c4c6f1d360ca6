// Package authz carries the authenticated principal through request
// contexts and defines the sentinel errors shared by every access
// decision in the API.
package authz

import (
	"context"
	"errors"
)

var (
	// ErrUnauthorized is returned when no authenticated principal is
	// available for a protected operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when an authenticated principal lacks the
	// required privilege for an operation.
	ErrForbidden = errors.New("forbidden")
)

// Principal is the authenticated identity attached to a request after
// access token validation.
type Principal struct {
	UserID string
	Email  string
	Name   string
	Admin  bool
}

type ctxKey string

const principalKey ctxKey = "authz_principal"

// ContextWithPrincipal returns a context carrying the authenticated principal.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the authenticated principal from the
// context. The boolean reports whether a principal was present.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
