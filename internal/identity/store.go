package identity

import (
	"context"
	"time"
)

// Store describes persistence operations required for account state.
type Store interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Delete(ctx context.Context, id string) error

	UpdatePassword(ctx context.Context, userID, passwordHash string) error

	// SetRefreshToken installs the account's active refresh token,
	// replacing whatever was stored before.
	SetRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error

	// RotateRefreshToken swaps oldToken for newToken only if oldToken is
	// still the stored value. Returns ErrStaleToken when a concurrent
	// rotation or a revocation won the race.
	RotateRefreshToken(ctx context.Context, userID, oldToken, newToken string, expiresAt time.Time) error

	// ClearRefreshToken revokes the account's session. Clearing an
	// already-empty token is not an error.
	ClearRefreshToken(ctx context.Context, userID string) error

	SetConfirmToken(ctx context.Context, userID, tokenHash string) error
	ConfirmEmail(ctx context.Context, userID string) error

	SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, userID string) error
}
