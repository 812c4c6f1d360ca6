// Package document holds the document domain model, its persistence
// interfaces and the authorization decision applied to every document
// operation.
package document

import (
	"fmt"
	"strings"
	"time"
)

// Role is a document-level privilege. Lower numeric value means more
// privilege; compare through AtLeast, never with raw operators.
type Role int

const (
	RoleOwner  Role = 1
	RoleEditor Role = 2
	RoleViewer Role = 3
	RoleNone   Role = 4
)

// AtLeast reports whether the role satisfies the required privilege.
// RoleNone never satisfies anything.
func (r Role) AtLeast(required Role) bool {
	if r < RoleOwner || r >= RoleNone {
		return false
	}
	return r <= required
}

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleEditor:
		return "editor"
	case RoleViewer:
		return "viewer"
	case RoleNone:
		return "none"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ParseRole converts the wire representation of a role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "owner":
		return RoleOwner, nil
	case "editor":
		return RoleEditor, nil
	case "viewer":
		return RoleViewer, nil
	case "none":
		return RoleNone, nil
	default:
		return RoleNone, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
}

// Document is a stored document with a single owning account.
type Document struct {
	ID        string
	Title     string
	Content   string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Permission is one grant of a role on a document. Grants are never
// deleted, only revoked, so the full history stays queryable.
type Permission struct {
	ID         string
	DocumentID string
	UserID     string
	Role       Role
	GrantedBy  string
	GrantedAt  time.Time

	// RevokedAt and RevokedBy are zero while the grant is active.
	RevokedAt time.Time
	RevokedBy string
}

// Active reports whether the grant has not been revoked.
func (p *Permission) Active() bool {
	return p.RevokedAt.IsZero()
}
