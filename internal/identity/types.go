package identity

import "time"

// Account roles. Admins bypass per-document authorization checks.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a registered account.
type User struct {
	ID             string
	Email          string
	PasswordHash   string
	FirstName      string
	LastName       string
	Role           string
	EmailConfirmed bool

	// ConfirmTokenHash holds the SHA-256 hash of the outstanding email
	// confirmation token, empty once the address is confirmed.
	ConfirmTokenHash string

	// ResetTokenHash and ResetTokenExpiresAt track the outstanding
	// password reset token. A zero expiry means no reset is pending.
	ResetTokenHash    string
	ResetTokenExpires time.Time

	// RefreshToken is the single active refresh token for the account.
	// Empty means the session has been revoked or never established.
	RefreshToken        string
	RefreshTokenExpires time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName returns the display name used in issued tokens and emails.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}
