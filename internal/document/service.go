package document

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"collabdoc.org/internal/audit"
	"collabdoc.org/internal/authz"
	"collabdoc.org/internal/identity"
)

const (
	maxTitleLen = 200
)

// Service implements the document use cases. Every operation resolves
// the acting principal from the context, fetches the target document
// before authorizing, and re-checks authorization itself even though
// the HTTP layer gates routes too.
type Service struct {
	docs  Store
	perms PermissionStore
	users identity.Store
	authz *Authorizer
}

func NewService(docs Store, perms PermissionStore, users identity.Store) *Service {
	return &Service{
		docs:  docs,
		perms: perms,
		users: users,
		authz: NewAuthorizer(perms),
	}
}

// Authorizer exposes the shared decision point for the HTTP route gate.
func (s *Service) Authorizer() *Authorizer {
	return s.authz
}

// Gate resolves the document and runs the authorization decision
// without performing any mutation. The HTTP layer calls it before the
// handler body; each operation then re-checks on its own.
func (s *Service) Gate(ctx context.Context, documentID string, required Role) error {
	doc, err := s.docs.Find(ctx, documentID)
	if err != nil {
		return err
	}
	return s.authz.Authorize(ctx, doc, required)
}

func validateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if len(title) > maxTitleLen {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidInput, maxTitleLen)
	}
	return nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	return nil
}

func principal(ctx context.Context) (authz.Principal, error) {
	p, ok := authz.PrincipalFromContext(ctx)
	if !ok {
		return authz.Principal{}, authz.ErrUnauthorized
	}
	return p, nil
}

// Create stores a new document owned by the acting principal.
func (s *Service) Create(ctx context.Context, title, content string) (*Document, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if err := validateContent(content); err != nil {
		return nil, err
	}

	doc := &Document{
		Title:   strings.TrimSpace(title),
		Content: content,
		OwnerID: p.UserID,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	_ = audit.LogEvent(ctx, "document.created", map[string]any{
		"document_id": doc.ID,
	})
	return doc, nil
}

// Get returns a document the principal may at least view.
func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	doc, err := s.docs.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, doc, RoleViewer); err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns documents the given user owns or has been granted. An
// empty userID means the acting principal; listing on behalf of another
// user is admin-only.
func (s *Service) List(ctx context.Context, userID string) ([]*Document, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if userID == "" || userID == p.UserID {
		return s.docs.ListForUser(ctx, p.UserID)
	}
	if !p.Admin {
		return nil, authz.ErrForbidden
	}
	return s.docs.ListForUser(ctx, userID)
}

// Update rewrites a document's title and content. Requires editor.
func (s *Service) Update(ctx context.Context, id, title, content string) (*Document, error) {
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if err := validateContent(content); err != nil {
		return nil, err
	}
	doc, err := s.docs.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, doc, RoleEditor); err != nil {
		return nil, err
	}

	doc.Title = strings.TrimSpace(title)
	doc.Content = content
	if err := s.docs.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}
	_ = audit.LogEvent(ctx, "document.updated", map[string]any{
		"document_id": doc.ID,
	})
	return doc, nil
}

// Delete removes a document. Requires owner.
func (s *Service) Delete(ctx context.Context, id string) error {
	doc, err := s.docs.Find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authz.Authorize(ctx, doc, RoleOwner); err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	_ = audit.LogEvent(ctx, "document.deleted", map[string]any{
		"document_id": doc.ID,
	})
	return nil
}

// Share grants a user a role on a document, superseding any existing
// grant for the pair. Only owners (and admins) may share, and only
// editor or viewer roles can be granted; ownership is not transferable
// through sharing.
func (s *Service) Share(ctx context.Context, documentID, userID string, role Role) (*Permission, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if role != RoleEditor && role != RoleViewer {
		return nil, fmt.Errorf("%w: role must be editor or viewer", ErrInvalidInput)
	}
	doc, err := s.docs.Find(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, doc, RoleOwner); err != nil {
		return nil, err
	}
	target, err := s.users.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if target.ID == doc.OwnerID {
		return nil, fmt.Errorf("%w: document owner already has full access", ErrInvalidInput)
	}

	grant := &Permission{
		DocumentID: doc.ID,
		UserID:     target.ID,
		Role:       role,
		GrantedBy:  p.UserID,
	}
	if err := s.perms.Grant(ctx, grant); err != nil {
		return nil, fmt.Errorf("grant permission: %w", err)
	}
	_ = audit.LogEvent(ctx, "document.shared", map[string]any{
		"document_id": doc.ID,
		"user_id":     target.ID,
		"role":        role.String(),
	})
	return grant, nil
}

// Permissions lists a document's active grants. Requires owner.
func (s *Service) Permissions(ctx context.Context, documentID string) ([]*Permission, error) {
	doc, err := s.docs.Find(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, doc, RoleOwner); err != nil {
		return nil, err
	}
	return s.perms.ListByDocument(ctx, documentID)
}

// RevokePermission revokes a user's active grant on a document.
// Requires owner. Revoking when no grant is active succeeds.
func (s *Service) RevokePermission(ctx context.Context, documentID, userID string) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	doc, err := s.docs.Find(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.authz.Authorize(ctx, doc, RoleOwner); err != nil {
		return err
	}
	if err := s.perms.Revoke(ctx, documentID, userID, p.UserID); err != nil {
		return fmt.Errorf("revoke permission: %w", err)
	}
	_ = audit.LogEvent(ctx, "document.permission_revoked", map[string]any{
		"document_id": doc.ID,
		"user_id":     userID,
	})
	return nil
}
