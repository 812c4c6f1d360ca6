package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"collabdoc.org/internal/ids"
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore is a Store backed by process memory, used in tests and
// local development.
type InMemoryStore struct {
	mu      sync.RWMutex
	users   map[string]*User
	byEmail map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

func cloneUser(u *User) *User {
	c := *u
	return &c
}

func (s *InMemoryStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(u.Email)
	if _, exists := s.byEmail[key]; exists {
		return ErrEmailTaken
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = cloneUser(u)
	s.byEmail[key] = u.ID
	return nil
}

func (s *InMemoryStore) Find(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *InMemoryStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byEmail, strings.ToLower(u.Email))
	delete(s.users, id)
	return nil
}

func (s *InMemoryStore) mutate(id string, fn func(*User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return s.mutate(userID, func(u *User) { u.PasswordHash = passwordHash })
}

func (s *InMemoryStore) SetRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	return s.mutate(userID, func(u *User) {
		u.RefreshToken = token
		u.RefreshTokenExpires = expiresAt
	})
}

func (s *InMemoryStore) RotateRefreshToken(ctx context.Context, userID, oldToken, newToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	if u.RefreshToken == "" || u.RefreshToken != oldToken {
		return ErrStaleToken
	}
	u.RefreshToken = newToken
	u.RefreshTokenExpires = expiresAt
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) ClearRefreshToken(ctx context.Context, userID string) error {
	err := s.mutate(userID, func(u *User) {
		u.RefreshToken = ""
		u.RefreshTokenExpires = time.Time{}
	})
	if err == ErrNotFound {
		return nil
	}
	return err
}

func (s *InMemoryStore) SetConfirmToken(ctx context.Context, userID, tokenHash string) error {
	return s.mutate(userID, func(u *User) { u.ConfirmTokenHash = tokenHash })
}

func (s *InMemoryStore) ConfirmEmail(ctx context.Context, userID string) error {
	return s.mutate(userID, func(u *User) {
		u.EmailConfirmed = true
		u.ConfirmTokenHash = ""
	})
}

func (s *InMemoryStore) SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	return s.mutate(userID, func(u *User) {
		u.ResetTokenHash = tokenHash
		u.ResetTokenExpires = expiresAt
	})
}

func (s *InMemoryStore) ClearResetToken(ctx context.Context, userID string) error {
	return s.mutate(userID, func(u *User) {
		u.ResetTokenHash = ""
		u.ResetTokenExpires = time.Time{}
	})
}
