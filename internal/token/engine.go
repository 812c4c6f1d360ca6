// Package token issues and validates the JWT access tokens and opaque
// refresh tokens backing API sessions. Access tokens are short-lived
// HS256 JWTs; refresh tokens are random values persisted on the user
// row and rotated on every use.
package token

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"collabdoc.org/internal/authz"
	"collabdoc.org/internal/identity"
)

var (
	// ErrInvalidToken covers malformed tokens, bad signatures, wrong
	// issuer or audience, and expired access tokens.
	ErrInvalidToken = errors.New("token: invalid token")
	// ErrRefreshMismatch is returned when the presented refresh token is
	// not the account's current one, either because it was already
	// rotated or because the session was revoked.
	ErrRefreshMismatch = errors.New("token: refresh token mismatch")
	// ErrRefreshExpired is returned when the stored refresh token has
	// passed its expiry.
	ErrRefreshExpired = errors.New("token: refresh token expired")
)

// Both wrap ErrInvalidToken so the HTTP boundary maps them the same
// way while logs keep the precise cause.
var (
	// ErrMissingSubject is returned for tokens without a sub claim.
	ErrMissingSubject = fmt.Errorf("%w: missing subject claim", ErrInvalidToken)
	// ErrUnknownSubject is returned when the token's subject does not
	// resolve to a live account.
	ErrUnknownSubject = fmt.Errorf("%w: unknown subject", ErrInvalidToken)
)

const refreshTokenBytes = 32

// Claims is the access token payload.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Pair is one issued access/refresh token pair.
type Pair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Engine signs, validates, rotates and revokes tokens.
type Engine struct {
	store      identity.Store
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds a token engine over the given account store.
func NewEngine(store identity.Store, secret, issuer, audience string, accessTTL, refreshTTL time.Duration, opts ...Option) (*Engine, error) {
	if secret == "" {
		return nil, errors.New("token: signing secret is required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token: token lifetimes must be positive")
	}
	e := &Engine{
		store:      store,
		secret:     []byte(secret),
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// GenerateAccessToken signs a new access token for the user.
func (e *Engine) GenerateAccessToken(u *identity.User) (string, time.Time, error) {
	now := e.now().UTC()
	expiresAt := now.Add(e.accessTTL)
	claims := Claims{
		Email: u.Email,
		Name:  u.FullName(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ID:        uuid.NewString(),
			Issuer:    e.issuer,
			Audience:  jwt.ClaimStrings{e.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// GenerateRefreshToken returns a fresh opaque refresh token.
func (e *Engine) GenerateRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// IssuePair signs an access token and installs a new refresh token for
// the user, replacing any previous session.
func (e *Engine) IssuePair(ctx context.Context, u *identity.User) (Pair, error) {
	access, accessExp, err := e.GenerateAccessToken(u)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := e.GenerateRefreshToken()
	if err != nil {
		return Pair{}, err
	}
	refreshExp := e.now().UTC().Add(e.refreshTTL)
	if err := e.store.SetRefreshToken(ctx, u.ID, refresh, refreshExp); err != nil {
		return Pair{}, fmt.Errorf("store refresh token: %w", err)
	}
	return Pair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Authenticate fully validates an access token and resolves it to a
// live principal. Tokens of deleted accounts are rejected.
func (e *Engine) Authenticate(ctx context.Context, raw string) (authz.Principal, error) {
	claims, err := e.parse(raw, false)
	if err != nil {
		return authz.Principal{}, err
	}
	u, err := e.store.Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return authz.Principal{}, ErrUnknownSubject
		}
		return authz.Principal{}, err
	}
	return authz.Principal{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.FullName(),
		Admin:  u.Role == identity.RoleAdmin,
	}, nil
}

// Refresh exchanges an expired access token plus its refresh token for
// a new pair. The old refresh token is invalidated atomically; of two
// concurrent refreshes with the same token only one succeeds.
func (e *Engine) Refresh(ctx context.Context, accessToken, refreshToken string) (Pair, error) {
	// The access token may be expired here; its signature, issuer and
	// audience are still verified.
	claims, err := e.parse(accessToken, true)
	if err != nil {
		return Pair{}, err
	}
	u, err := e.store.Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return Pair{}, ErrUnknownSubject
		}
		return Pair{}, err
	}
	if u.RefreshToken == "" ||
		subtle.ConstantTimeCompare([]byte(u.RefreshToken), []byte(refreshToken)) != 1 {
		return Pair{}, ErrRefreshMismatch
	}
	if e.now().After(u.RefreshTokenExpires) {
		return Pair{}, ErrRefreshExpired
	}

	access, accessExp, err := e.GenerateAccessToken(u)
	if err != nil {
		return Pair{}, err
	}
	next, err := e.GenerateRefreshToken()
	if err != nil {
		return Pair{}, err
	}
	refreshExp := e.now().UTC().Add(e.refreshTTL)
	if err := e.store.RotateRefreshToken(ctx, u.ID, refreshToken, next, refreshExp); err != nil {
		if errors.Is(err, identity.ErrStaleToken) {
			return Pair{}, ErrRefreshMismatch
		}
		return Pair{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	return Pair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     next,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Revoke invalidates the user's refresh token. Revoking an account with
// no active session succeeds.
func (e *Engine) Revoke(ctx context.Context, userID string) error {
	return e.store.ClearRefreshToken(ctx, userID)
}

func (e *Engine) parse(raw string, ignoreExpiry bool) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if ignoreExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	} else {
		opts = append(opts,
			jwt.WithIssuer(e.issuer),
			jwt.WithAudience(e.audience),
			jwt.WithTimeFunc(e.now),
		)
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return e.secret, nil
	}, opts...)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if ignoreExpiry {
		// WithoutClaimsValidation skips issuer and audience checks too,
		// so repeat them by hand.
		if claims.Issuer != e.issuer {
			return nil, ErrInvalidToken
		}
		var audOK bool
		for _, aud := range claims.Audience {
			if aud == e.audience {
				audOK = true
				break
			}
		}
		if !audOK {
			return nil, ErrInvalidToken
		}
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}
