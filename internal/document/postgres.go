package document

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"collabdoc.org/internal/ids"
)

var (
	_ Store           = (*PGStore)(nil)
	_ PermissionStore = (*PGPermissionStore)(nil)
)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const documentColumns = `id, title, content, owner_id, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	var d Document
	if err := row.Scan(&d.ID, &d.Title, &d.Content, &d.OwnerID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *PGStore) Create(ctx context.Context, d *Document) error {
	if d.ID == "" {
		d.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into documents(id, title, content, owner_id) values($1,$2,$3,$4)`,
		d.ID, d.Title, d.Content, d.OwnerID,
	)
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+documentColumns+` from documents where id=$1`, id)
	return scanDocument(row)
}

func (s *PGStore) Update(ctx context.Context, d *Document) error {
	res, err := s.db.ExecContext(ctx,
		`update documents set title=$2, content=$3, updated_at=now() where id=$1`,
		d.ID, d.Title, d.Content)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from documents where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListForUser(ctx context.Context, userID string) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+documentColumns+` from documents d
		 where d.owner_id=$1
		    or exists (
		       select 1 from document_permissions p
		       where p.document_id=d.id and p.user_id=$1 and p.revoked_at is null)
		 order by d.title`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Permission store ----------------------------------------------------------

// PGPermissionStore implements PermissionStore using PostgreSQL. A
// partial unique index on (document_id, user_id) over active rows is
// the last line of defense against duplicate active grants.
type PGPermissionStore struct {
	db *sql.DB
}

func NewPGPermissionStore(db *sql.DB) *PGPermissionStore {
	return &PGPermissionStore{db: db}
}

const permissionColumns = `id, document_id, user_id, role, granted_by, granted_at, revoked_at, revoked_by`

func scanPermission(row interface{ Scan(...any) error }) (*Permission, error) {
	var (
		p         Permission
		revokedAt sql.NullTime
		revokedBy sql.NullString
	)
	if err := row.Scan(&p.ID, &p.DocumentID, &p.UserID, &p.Role, &p.GrantedBy, &p.GrantedAt, &revokedAt, &revokedBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if revokedAt.Valid {
		p.RevokedAt = revokedAt.Time
	}
	p.RevokedBy = revokedBy.String
	return &p, nil
}

func (s *PGPermissionStore) ActiveGrant(ctx context.Context, documentID, userID string) (*Permission, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+permissionColumns+` from document_permissions
		 where document_id=$1 and user_id=$2 and revoked_at is null`,
		documentID, userID)
	return scanPermission(row)
}

func (s *PGPermissionStore) ListByDocument(ctx context.Context, documentID string) ([]*Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+permissionColumns+` from document_permissions
		 where document_id=$1 and revoked_at is null order by role asc, granted_at asc`,
		documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func (s *PGPermissionStore) ListByUser(ctx context.Context, userID string) ([]*Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select p.id, p.document_id, p.user_id, p.role, p.granted_by, p.granted_at, p.revoked_at, p.revoked_by
		 from document_permissions p
		 join documents d on d.id = p.document_id
		 where p.user_id=$1 and p.revoked_at is null
		 order by d.title`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func collectPermissions(rows *sql.Rows) ([]*Permission, error) {
	var perms []*Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *PGPermissionStore) Grant(ctx context.Context, p *Permission) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Supersede by revoke-then-insert inside one transaction. The row
	// lock serializes concurrent grants for the same pair.
	if _, err := tx.ExecContext(ctx,
		`update document_permissions
		 set revoked_at=now(), revoked_by=$3
		 where document_id=$1 and user_id=$2 and revoked_at is null`,
		p.DocumentID, p.UserID, p.GrantedBy); err != nil {
		return err
	}
	if err := tx.QueryRowContext(ctx,
		`insert into document_permissions(id, document_id, user_id, role, granted_by)
		 values($1,$2,$3,$4,$5) returning granted_at`,
		p.ID, p.DocumentID, p.UserID, int(p.Role), p.GrantedBy).Scan(&p.GrantedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return tx.Commit()
}

func (s *PGPermissionStore) Revoke(ctx context.Context, documentID, userID, revokedBy string) error {
	_, err := s.db.ExecContext(ctx,
		`update document_permissions
		 set revoked_at=now(), revoked_by=$3
		 where document_id=$1 and user_id=$2 and revoked_at is null`,
		documentID, userID, revokedBy)
	return err
}
