package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"collabdoc.org/internal/authz"
	"collabdoc.org/internal/document"
)

type createDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type updateDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type shareDocumentRequest struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
}

type documentResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type permissionResponse struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	UserID     string    `json:"user_id"`
	Role       string    `json:"role"`
	GrantedBy  string    `json:"granted_by"`
	GrantedAt  time.Time `json:"granted_at"`
}

func toDocumentResponse(d *document.Document) documentResponse {
	return documentResponse{
		ID:        d.ID,
		Title:     d.Title,
		Content:   d.Content,
		OwnerID:   d.OwnerID,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func toPermissionResponse(p *document.Permission) permissionResponse {
	return permissionResponse{
		ID:         p.ID,
		DocumentID: p.DocumentID,
		UserID:     p.UserID,
		Role:       p.Role.String(),
		GrantedBy:  p.GrantedBy,
		GrantedAt:  p.GrantedAt,
	}
}

func (a *API) handleDocumentsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listDocuments(w, r)
	case http.MethodPost:
		a.createDocument(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listDocuments(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	docs, err := a.docs.List(r.Context(), userID)
	if err != nil {
		handleDocumentError(w, r, err)
		return
	}
	items := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		items = append(items, toDocumentResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	doc, err := a.docs.Create(r.Context(), req.Title, req.Content)
	if err != nil {
		handleDocumentError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/documents/"+doc.ID)
	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

func (a *API) handleShare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req shareDocumentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.DocumentID == "" || req.UserID == "" {
		writeError(w, r, http.StatusBadRequest, "document_id and user_id are required")
		return
	}
	role, err := document.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	// Route gate; the service re-checks on its own.
	if err := a.docs.Gate(r.Context(), req.DocumentID, document.RoleOwner); err != nil {
		handleDocumentError(w, r, err)
		return
	}
	grant, err := a.docs.Share(r.Context(), req.DocumentID, req.UserID, role)
	if err != nil {
		handleDocumentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPermissionResponse(grant))
}

func (a *API) handleDocumentResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		a.handleDocument(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleDocumentPermissions(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "permissions":
		a.handleDocumentPermission(w, r, parts[0], parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleDocument(w http.ResponseWriter, r *http.Request, id string) {
	var required document.Role
	switch r.Method {
	case http.MethodGet:
		required = document.RoleViewer
	case http.MethodPut:
		required = document.RoleEditor
	case http.MethodDelete:
		required = document.RoleOwner
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
		return
	}
	if err := a.docs.Gate(r.Context(), id, required); err != nil {
		handleDocumentError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		doc, err := a.docs.Get(r.Context(), id)
		if err != nil {
			handleDocumentError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDocumentResponse(doc))
	case http.MethodPut:
		var req updateDocumentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		doc, err := a.docs.Update(r.Context(), id, req.Title, req.Content)
		if err != nil {
			handleDocumentError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDocumentResponse(doc))
	case http.MethodDelete:
		if err := a.docs.Delete(r.Context(), id); err != nil {
			handleDocumentError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *API) handleDocumentPermissions(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if err := a.docs.Gate(r.Context(), id, document.RoleOwner); err != nil {
		handleDocumentError(w, r, err)
		return
	}
	perms, err := a.docs.Permissions(r.Context(), id)
	if err != nil {
		handleDocumentError(w, r, err)
		return
	}
	items := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		items = append(items, toPermissionResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleDocumentPermission(w http.ResponseWriter, r *http.Request, id, userID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if err := a.docs.Gate(r.Context(), id, document.RoleOwner); err != nil {
		handleDocumentError(w, r, err)
		return
	}
	if err := a.docs.RevokePermission(r.Context(), id, userID); err != nil {
		handleDocumentError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleDocumentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, document.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, document.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, authz.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, authz.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "insufficient permissions")
	case errors.Is(err, document.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
