package document

import (
	"context"
	"errors"

	"collabdoc.org/internal/authz"
)

// Authorizer is the single decision point for document access. Both the
// HTTP route gate and each service operation call it independently.
type Authorizer struct {
	perms PermissionStore
}

func NewAuthorizer(perms PermissionStore) *Authorizer {
	return &Authorizer{perms: perms}
}

// Authorize answers whether the context's principal may perform an
// action requiring the given role on the document. Checks run in
// order: unauthenticated deny, admin allow, owner allow, then grant
// sufficiency.
func (a *Authorizer) Authorize(ctx context.Context, doc *Document, required Role) error {
	p, ok := authz.PrincipalFromContext(ctx)
	if !ok {
		return authz.ErrUnauthorized
	}
	if p.Admin {
		return nil
	}
	return a.check(ctx, doc, p.UserID, required)
}

// HasPermission reports whether the user holds the required role on the
// document. Ownership satisfies any required role without a grant row.
func (a *Authorizer) HasPermission(ctx context.Context, doc *Document, userID string, required Role) (bool, error) {
	err := a.check(ctx, doc, userID, required)
	if errors.Is(err, authz.ErrForbidden) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (a *Authorizer) check(ctx context.Context, doc *Document, userID string, required Role) error {
	if doc.OwnerID == userID {
		return nil
	}
	grant, err := a.perms.ActiveGrant(ctx, doc.ID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return authz.ErrForbidden
		}
		return err
	}
	if !grant.Role.AtLeast(required) {
		return authz.ErrForbidden
	}
	return nil
}
