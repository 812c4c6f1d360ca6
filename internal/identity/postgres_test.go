package identity

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func userRows(u *User) *sqlmock.Rows {
	var resetExpires, tokenExpires any
	if !u.ResetTokenExpires.IsZero() {
		resetExpires = u.ResetTokenExpires
	}
	if !u.RefreshTokenExpires.IsZero() {
		tokenExpires = u.RefreshTokenExpires
	}
	return sqlmock.NewRows([]string{
		"id", "email", "password_hash", "first_name", "last_name", "role", "email_confirmed",
		"confirm_token_hash", "reset_token_hash", "reset_token_expires_at",
		"refresh_token", "refresh_token_expires_at", "created_at", "updated_at",
	}).AddRow(
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.EmailConfirmed,
		u.ConfirmTokenHash, u.ResetTokenHash, resetExpires,
		u.RefreshToken, tokenExpires, time.Now(), time.Now(),
	)
}

func TestPGStoreFindByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGStore(db)
	want := &User{
		ID:           "u-1",
		Email:        "ada@example.com",
		PasswordHash: "hash",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Role:         RoleUser,
		RefreshToken: "tok-1",
	}
	mock.ExpectQuery("select id, email, password_hash.*from users where email=").
		WithArgs("ada@example.com").
		WillReturnRows(userRows(want))

	got, err := store.FindByEmail(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if got.ID != want.ID || got.RefreshToken != "tok-1" {
		t.Fatalf("unexpected user: %+v", got)
	}
	if !got.RefreshTokenExpires.IsZero() {
		t.Fatalf("expected zero expiry for null column, got %v", got.RefreshTokenExpires)
	}

	mock.ExpectQuery("select id, email, password_hash.*from users where email=").
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)
	if _, err := store.FindByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreRotateRefreshToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGStore(db)
	expiry := time.Now().Add(24 * time.Hour)

	mock.ExpectExec("update users set refresh_token=").
		WithArgs("u-1", "tok-old", "tok-new", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.RotateRefreshToken(context.Background(), "u-1", "tok-old", "tok-new", expiry); err != nil {
		t.Fatalf("RotateRefreshToken: %v", err)
	}

	// A stale token matches no row.
	mock.ExpectExec("update users set refresh_token=").
		WithArgs("u-1", "tok-old", "tok-next", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = store.RotateRefreshToken(context.Background(), "u-1", "tok-old", "tok-next", expiry)
	if !errors.Is(err, ErrStaleToken) {
		t.Fatalf("expected ErrStaleToken, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreUpdatePasswordMissingUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGStore(db)
	mock.ExpectExec("update users set password_hash=").
		WithArgs("ghost", "hash").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.UpdatePassword(context.Background(), "ghost", "hash"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
