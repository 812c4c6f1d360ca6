package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"collabdoc.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const userColumns = `id, email, password_hash, first_name, last_name, role, email_confirmed,
	confirm_token_hash, reset_token_hash, reset_token_expires_at,
	refresh_token, refresh_token_expires_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var (
		u            User
		resetExpires sql.NullTime
		tokenExpires sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role, &u.EmailConfirmed,
		&u.ConfirmTokenHash, &u.ResetTokenHash, &resetExpires,
		&u.RefreshToken, &tokenExpires, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if resetExpires.Valid {
		u.ResetTokenExpires = resetExpires.Time
	}
	if tokenExpires.Valid {
		u.RefreshTokenExpires = tokenExpires.Time
	}
	return &u, nil
}

func (s *PGStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, password_hash, first_name, last_name, role, confirm_token_hash)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.ConfirmTokenHash,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email)
	return scanUser(row)
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`,
		userID, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) SetRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set refresh_token=$2, refresh_token_expires_at=$3, updated_at=now() where id=$1`,
		userID, token, expiresAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) RotateRefreshToken(ctx context.Context, userID, oldToken, newToken string, expiresAt time.Time) error {
	// Compare-and-swap on the stored token: of two concurrent refreshes
	// using the same token, exactly one update matches.
	res, err := s.db.ExecContext(ctx,
		`update users set refresh_token=$3, refresh_token_expires_at=$4, updated_at=now()
		 where id=$1 and refresh_token=$2 and refresh_token <> ''`,
		userID, oldToken, newToken, expiresAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleToken
	}
	return nil
}

func (s *PGStore) ClearRefreshToken(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`update users set refresh_token='', refresh_token_expires_at=null, updated_at=now() where id=$1`,
		userID)
	return err
}

func (s *PGStore) SetConfirmToken(ctx context.Context, userID, tokenHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set confirm_token_hash=$2, updated_at=now() where id=$1`,
		userID, tokenHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) ConfirmEmail(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set email_confirmed=true, confirm_token_hash='', updated_at=now() where id=$1`,
		userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set reset_token_hash=$2, reset_token_expires_at=$3, updated_at=now() where id=$1`,
		userID, tokenHash, expiresAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) ClearResetToken(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`update users set reset_token_hash='', reset_token_expires_at=null, updated_at=now() where id=$1`,
		userID)
	return err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
