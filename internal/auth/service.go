// Package auth implements the account lifecycle: registration, login,
// logout, email confirmation and password reset. It composes the
// identity store, the token engine and the mail sender without any
// crypto or authorization logic of its own.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"collabdoc.org/internal/audit"
	"collabdoc.org/internal/email"
	"collabdoc.org/internal/identity"
	"collabdoc.org/internal/obs"
	"collabdoc.org/internal/token"
)

const resetTokenTTL = time.Hour

// RegisterInput carries the registration form.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Result is a successful authentication outcome.
type Result struct {
	User *identity.User
	Pair token.Pair
}

// Service implements the account use cases.
type Service struct {
	users   identity.Store
	tokens  *token.Engine
	mail    email.Sender
	baseURL string
	now     func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(users identity.Store, tokens *token.Engine, mail email.Sender, baseURL string, opts ...Option) *Service {
	s := &Service{
		users:   users,
		tokens:  tokens,
		mail:    mail,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account and signs the user in. If token issuance
// fails after the account row was written, the row is deleted again so
// a retry is possible. The confirmation mail is best effort.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	if err := validateName("first name", in.FirstName); err != nil {
		return nil, err
	}
	if err := validateName("last name", in.LastName); err != nil {
		return nil, err
	}

	emailAddr := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := s.users.FindByEmail(ctx, emailAddr); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, identity.ErrNotFound) {
		return nil, fmt.Errorf("look up email: %w", err)
	}

	hash, err := identity.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	confirmToken, err := newActionToken()
	if err != nil {
		return nil, err
	}

	u := &identity.User{
		Email:            emailAddr,
		PasswordHash:     hash,
		FirstName:        strings.TrimSpace(in.FirstName),
		LastName:         strings.TrimSpace(in.LastName),
		ConfirmTokenHash: hashActionToken(confirmToken),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	pair, err := s.tokens.IssuePair(ctx, u)
	if err != nil {
		// Compensating delete keeps the email reusable after a partial
		// registration.
		if delErr := s.users.Delete(ctx, u.ID); delErr != nil {
			obs.Logger().Printf(`{"type":"auth","msg":"compensating delete failed","user_id":%q,"error":%q}`, u.ID, delErr.Error())
		}
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	callback := s.callbackURL("/v1/auth/confirm-email", u.Email, confirmToken)
	if err := s.mail.SendEmailConfirmation(ctx, u.Email, callback); err != nil {
		obs.Logger().Printf(`{"type":"auth","msg":"confirmation email failed","user_id":%q,"error":%q}`, u.ID, err.Error())
	}

	_ = audit.LogEvent(ctx, "user.registered", map[string]any{"user_id": u.ID})
	return &Result{User: u, Pair: pair}, nil
}

// Login verifies credentials and issues a fresh token pair, replacing
// any previous session.
func (s *Service) Login(ctx context.Context, emailAddr, password string) (*Result, error) {
	if err := validateEmail(emailAddr); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrValidation)
	}

	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(emailAddr)))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrNoSuchUser
		}
		return nil, fmt.Errorf("look up email: %w", err)
	}
	if err := identity.VerifyPassword(u.PasswordHash, password); err != nil {
		return nil, ErrInvalidPassword
	}

	pair, err := s.tokens.IssuePair(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	_ = audit.LogEvent(ctx, "user.logged_in", map[string]any{"user_id": u.ID})
	return &Result{User: u, Pair: pair}, nil
}

// Logout revokes the user's refresh token. Unknown users are ignored.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.tokens.Revoke(ctx, userID); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	_ = audit.LogEvent(ctx, "user.logged_out", map[string]any{"user_id": userID})
	return nil
}

// Refresh exchanges an access/refresh token pair for a rotated one.
func (s *Service) Refresh(ctx context.Context, accessToken, refreshToken string) (token.Pair, error) {
	return s.tokens.Refresh(ctx, accessToken, refreshToken)
}

// VerifyEmail confirms the account's address with the emailed token.
func (s *Service) VerifyEmail(ctx context.Context, emailAddr, actionToken string) error {
	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(emailAddr)))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return ErrInvalidActionToken
		}
		return fmt.Errorf("look up email: %w", err)
	}
	if u.ConfirmTokenHash == "" || !actionTokenMatches(u.ConfirmTokenHash, actionToken) {
		return ErrInvalidActionToken
	}
	if err := s.users.ConfirmEmail(ctx, u.ID); err != nil {
		return fmt.Errorf("confirm email: %w", err)
	}
	_ = audit.LogEvent(ctx, "user.email_confirmed", map[string]any{"user_id": u.ID})
	return nil
}

// ForgotPassword issues a time-limited reset token and mails the reset
// link.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) error {
	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(emailAddr)))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return ErrNoSuchUser
		}
		return fmt.Errorf("look up email: %w", err)
	}

	resetToken, err := newActionToken()
	if err != nil {
		return err
	}
	expiry := s.now().UTC().Add(resetTokenTTL)
	if err := s.users.SetResetToken(ctx, u.ID, hashActionToken(resetToken), expiry); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	callback := s.callbackURL("/reset-password", u.Email, resetToken)
	if err := s.mail.SendPasswordReset(ctx, u.Email, callback); err != nil {
		obs.Logger().Printf(`{"type":"auth","msg":"reset email failed","user_id":%q,"error":%q}`, u.ID, err.Error())
	}
	_ = audit.LogEvent(ctx, "user.password_reset_requested", map[string]any{"user_id": u.ID})
	return nil
}

// ResetPassword sets a new password given a valid reset token, then
// revokes the refresh token so existing sessions do not survive the
// credential change.
func (s *Service) ResetPassword(ctx context.Context, emailAddr, actionToken, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(emailAddr)))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return ErrInvalidActionToken
		}
		return fmt.Errorf("look up email: %w", err)
	}
	if u.ResetTokenHash == "" || !actionTokenMatches(u.ResetTokenHash, actionToken) {
		return ErrInvalidActionToken
	}
	if u.ResetTokenExpires.IsZero() || s.now().After(u.ResetTokenExpires) {
		return ErrInvalidActionToken
	}

	hash, err := identity.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.users.ClearResetToken(ctx, u.ID); err != nil {
		return fmt.Errorf("clear reset token: %w", err)
	}
	if err := s.tokens.Revoke(ctx, u.ID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	_ = audit.LogEvent(ctx, "user.password_reset", map[string]any{"user_id": u.ID})
	return nil
}

func (s *Service) callbackURL(path, emailAddr, actionToken string) string {
	q := url.Values{}
	q.Set("email", emailAddr)
	q.Set("token", actionToken)
	return s.baseURL + path + "?" + q.Encode()
}

func newActionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashActionToken(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}

func actionTokenMatches(storedHash, tok string) bool {
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(hashActionToken(tok))) == 1
}
