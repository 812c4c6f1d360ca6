package document

import (
	"context"
	"sort"
	"sync"
	"time"

	"collabdoc.org/internal/ids"
)

var (
	_ Store           = (*InMemoryStore)(nil)
	_ PermissionStore = (*InMemoryPermissionStore)(nil)
)

// InMemoryStore is a Store backed by process memory, used in tests and
// local development.
type InMemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]*Document
	perms *InMemoryPermissionStore
}

// NewInMemoryStore builds a document store. The permission store is
// consulted by ListForUser, so both sides share one constructor.
func NewInMemoryStore() (*InMemoryStore, *InMemoryPermissionStore) {
	perms := &InMemoryPermissionStore{}
	s := &InMemoryStore{docs: make(map[string]*Document), perms: perms}
	perms.docs = s
	return s, perms
}

func cloneDocument(d *Document) *Document {
	c := *d
	return &c
}

func (s *InMemoryStore) Create(ctx context.Context, d *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = ids.New()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	s.docs[d.ID] = cloneDocument(d)
	return nil
}

func (s *InMemoryStore) Find(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDocument(d), nil
}

func (s *InMemoryStore) Update(ctx context.Context, d *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.docs[d.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Title = d.Title
	cur.Content = d.Content
	cur.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return ErrNotFound
	}
	delete(s.docs, id)
	return nil
}

func (s *InMemoryStore) ListForUser(ctx context.Context, userID string) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []*Document
	for _, d := range s.docs {
		if d.OwnerID == userID || s.perms.hasActiveGrant(d.ID, userID) {
			docs = append(docs, cloneDocument(d))
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Title < docs[j].Title })
	return docs, nil
}

// InMemoryPermissionStore keeps the full grant history in memory.
type InMemoryPermissionStore struct {
	mu     sync.RWMutex
	grants []*Permission
	docs   *InMemoryStore
}

func clonePermission(p *Permission) *Permission {
	c := *p
	return &c
}

func (s *InMemoryPermissionStore) hasActiveGrant(documentID, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.grants {
		if p.DocumentID == documentID && p.UserID == userID && p.Active() {
			return true
		}
	}
	return false
}

func (s *InMemoryPermissionStore) ActiveGrant(ctx context.Context, documentID, userID string) (*Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.grants {
		if p.DocumentID == documentID && p.UserID == userID && p.Active() {
			return clonePermission(p), nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryPermissionStore) ListByDocument(ctx context.Context, documentID string) ([]*Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var perms []*Permission
	for _, p := range s.grants {
		if p.DocumentID == documentID && p.Active() {
			perms = append(perms, clonePermission(p))
		}
	}
	sort.SliceStable(perms, func(i, j int) bool { return perms[i].Role < perms[j].Role })
	return perms, nil
}

func (s *InMemoryPermissionStore) ListByUser(ctx context.Context, userID string) ([]*Permission, error) {
	s.mu.RLock()
	var perms []*Permission
	for _, p := range s.grants {
		if p.UserID == userID && p.Active() {
			perms = append(perms, clonePermission(p))
		}
	}
	s.mu.RUnlock()

	titles := make(map[string]string, len(perms))
	if s.docs != nil {
		for _, p := range perms {
			if d, err := s.docs.Find(ctx, p.DocumentID); err == nil {
				titles[p.DocumentID] = d.Title
			}
		}
	}
	sort.SliceStable(perms, func(i, j int) bool {
		return titles[perms[i].DocumentID] < titles[perms[j].DocumentID]
	})
	return perms, nil
}

func (s *InMemoryPermissionStore) Grant(ctx context.Context, p *Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, existing := range s.grants {
		if existing.DocumentID == p.DocumentID && existing.UserID == p.UserID && existing.Active() {
			existing.RevokedAt = now
			existing.RevokedBy = p.GrantedBy
		}
	}
	if p.ID == "" {
		p.ID = ids.New()
	}
	p.GrantedAt = now
	s.grants = append(s.grants, clonePermission(p))
	return nil
}

func (s *InMemoryPermissionStore) Revoke(ctx context.Context, documentID, userID, revokedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, p := range s.grants {
		if p.DocumentID == documentID && p.UserID == userID && p.Active() {
			p.RevokedAt = now
			p.RevokedBy = revokedBy
		}
	}
	return nil
}

// History returns every grant ever made for the document, active and
// revoked, in grant order. Test helper.
func (s *InMemoryPermissionStore) History(documentID string) []*Permission {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var perms []*Permission
	for _, p := range s.grants {
		if p.DocumentID == documentID {
			perms = append(perms, clonePermission(p))
		}
	}
	return perms
}
