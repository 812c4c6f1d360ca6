package document

import "context"

// Store persists documents.
type Store interface {
	Create(ctx context.Context, d *Document) error
	Find(ctx context.Context, id string) (*Document, error)
	Update(ctx context.Context, d *Document) error
	Delete(ctx context.Context, id string) error

	// ListForUser returns documents the user owns or holds an active
	// grant on, ordered by title.
	ListForUser(ctx context.Context, userID string) ([]*Document, error)
}

// PermissionStore persists document grants.
type PermissionStore interface {
	// ActiveGrant returns the single active grant for the pair, or
	// ErrNotFound when none exists.
	ActiveGrant(ctx context.Context, documentID, userID string) (*Permission, error)

	// ListByDocument returns the document's active grants ordered by
	// role, most privileged first.
	ListByDocument(ctx context.Context, documentID string) ([]*Permission, error)

	// ListByUser returns the user's active grants across documents,
	// ordered by document title.
	ListByUser(ctx context.Context, userID string) ([]*Permission, error)

	// Grant revokes any active grant for the same (document, user) pair
	// and inserts the new one in a single transaction, so two active
	// rows can never coexist.
	Grant(ctx context.Context, p *Permission) error

	// Revoke marks the pair's active grant as revoked. Revoking a pair
	// with no active grant is not an error.
	Revoke(ctx context.Context, documentID, userID, revokedBy string) error
}
