package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"collabdoc.org/internal/auth"
	"collabdoc.org/internal/document"
	"collabdoc.org/internal/email"
	"collabdoc.org/internal/identity"
	"collabdoc.org/internal/token"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	users   *identity.InMemoryStore
}

type nopSender struct{}

func (nopSender) SendEmailConfirmation(ctx context.Context, to, callbackURL string) error { return nil }
func (nopSender) SendPasswordReset(ctx context.Context, to, callbackURL string) error     { return nil }
func (nopSender) Send(ctx context.Context, to, subject, htmlBody string) error            { return nil }

var _ email.Sender = nopSender{}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	users := identity.NewInMemoryStore()
	docs, perms := document.NewInMemoryStore()
	engine, err := token.NewEngine(users, "0123456789abcdef0123456789abcdef", "collabdoc", "collabdoc-api",
		time.Hour, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	accounts := auth.NewService(users, engine, nopSender{}, "http://localhost:8080")
	docSvc := document.NewService(docs, perms, users)

	api := New(ReadyProbe{}, "test", accounts, docSvc, engine)
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		users:   users,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func (c *apiClient) register(emailAddr string) authResponse {
	c.t.Helper()
	resp := c.post("/v1/auth/register", map[string]string{
		"email":      emailAddr,
		"password":   "Abc12345!",
		"first_name": "Test",
		"last_name":  "User",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register status: %d", resp.StatusCode)
	}
	var res authResponse
	decodeBody(c.t, resp, &res)
	return res
}

func bearerHeaders(accessToken string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + accessToken}
}

func TestHealthEndpoints(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.get("/readyz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRegisterLoginRefreshFlow(t *testing.T) {
	c := newTestAPI(t)
	res := c.register("a@b.com")
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatalf("expected token pair in register response")
	}
	if !res.AccessTokenExpiresAt.After(time.Now()) {
		t.Fatalf("expected future access expiry")
	}

	// duplicate email
	dup := c.post("/v1/auth/register", map[string]string{
		"email": "a@b.com", "password": "Abc12345!", "first_name": "T", "last_name": "U",
	}, nil)
	if dup.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register status: %d", dup.StatusCode)
	}
	dup.Body.Close()

	login := c.post("/v1/auth/login", map[string]string{
		"email": "a@b.com", "password": "Abc12345!",
	}, nil)
	if login.StatusCode != http.StatusOK {
		t.Fatalf("login status: %d", login.StatusCode)
	}
	var loginRes authResponse
	decodeBody(t, login, &loginRes)

	refresh := c.post("/v1/auth/refresh", map[string]string{
		"access_token":  loginRes.AccessToken,
		"refresh_token": loginRes.RefreshToken,
	}, nil)
	if refresh.StatusCode != http.StatusOK {
		t.Fatalf("refresh status: %d", refresh.StatusCode)
	}
	var pair tokenPairResponse
	decodeBody(t, refresh, &pair)
	if pair.RefreshToken == loginRes.RefreshToken {
		t.Fatalf("refresh token was not rotated")
	}

	// replaying the consumed refresh token fails
	replay := c.post("/v1/auth/refresh", map[string]string{
		"access_token":  loginRes.AccessToken,
		"refresh_token": loginRes.RefreshToken,
	}, nil)
	if replay.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replay status: %d", replay.StatusCode)
	}
	replay.Body.Close()
}

func TestLoginErrors(t *testing.T) {
	c := newTestAPI(t)
	c.register("a@b.com")

	bad := c.post("/v1/auth/login", map[string]string{"email": "a@b.com", "password": "Wrong1234!"}, nil)
	if bad.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password status: %d", bad.StatusCode)
	}
	bad.Body.Close()

	missing := c.post("/v1/auth/login", map[string]string{"email": "nobody@b.com", "password": "Abc12345!"}, nil)
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing user status: %d", missing.StatusCode)
	}
	missing.Body.Close()
}

func TestLogoutRevokesSession(t *testing.T) {
	c := newTestAPI(t)
	res := c.register("a@b.com")

	logout := c.post("/v1/auth/logout", nil, bearerHeaders(res.AccessToken))
	if logout.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status: %d", logout.StatusCode)
	}
	logout.Body.Close()

	refresh := c.post("/v1/auth/refresh", map[string]string{
		"access_token":  res.AccessToken,
		"refresh_token": res.RefreshToken,
	}, nil)
	if refresh.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh after logout status: %d", refresh.StatusCode)
	}
	refresh.Body.Close()

	noAuth := c.post("/v1/auth/logout", nil, nil)
	if noAuth.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated logout status: %d", noAuth.StatusCode)
	}
	noAuth.Body.Close()
}

func TestDocumentCRUDAndSharing(t *testing.T) {
	c := newTestAPI(t)
	owner := c.register("owner@b.com")
	guest := c.register("guest@b.com")

	created := c.post("/v1/documents", map[string]string{
		"title": "Notes", "content": "hello",
	}, bearerHeaders(owner.AccessToken))
	if created.StatusCode != http.StatusCreated {
		t.Fatalf("create status: %d", created.StatusCode)
	}
	var doc documentResponse
	decodeBody(t, created, &doc)

	// owner reads, stranger is rejected
	got := c.get("/v1/documents/"+doc.ID, nil, bearerHeaders(owner.AccessToken))
	if got.StatusCode != http.StatusOK {
		t.Fatalf("owner get status: %d", got.StatusCode)
	}
	got.Body.Close()
	denied := c.get("/v1/documents/"+doc.ID, nil, bearerHeaders(guest.AccessToken))
	if denied.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger get status: %d", denied.StatusCode)
	}
	denied.Body.Close()
	anon := c.get("/v1/documents/"+doc.ID, nil, nil)
	if anon.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous get status: %d", anon.StatusCode)
	}
	anon.Body.Close()

	// share as viewer: read works, write does not
	share := c.post("/v1/documents/share", map[string]string{
		"document_id": doc.ID, "user_id": guest.User.ID, "role": "viewer",
	}, bearerHeaders(owner.AccessToken))
	if share.StatusCode != http.StatusCreated {
		t.Fatalf("share status: %d", share.StatusCode)
	}
	share.Body.Close()

	read := c.get("/v1/documents/"+doc.ID, nil, bearerHeaders(guest.AccessToken))
	if read.StatusCode != http.StatusOK {
		t.Fatalf("viewer get status: %d", read.StatusCode)
	}
	read.Body.Close()

	update := c.do(http.MethodPut, "/v1/documents/"+doc.ID, map[string]string{
		"title": "Notes", "content": "edited",
	}, bearerHeaders(guest.AccessToken))
	if update.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer update status: %d", update.StatusCode)
	}
	update.Body.Close()

	// re-share as editor supersedes the viewer grant
	reshare := c.post("/v1/documents/share", map[string]string{
		"document_id": doc.ID, "user_id": guest.User.ID, "role": "editor",
	}, bearerHeaders(owner.AccessToken))
	if reshare.StatusCode != http.StatusCreated {
		t.Fatalf("reshare status: %d", reshare.StatusCode)
	}
	reshare.Body.Close()

	update = c.do(http.MethodPut, "/v1/documents/"+doc.ID, map[string]string{
		"title": "Notes", "content": "edited",
	}, bearerHeaders(guest.AccessToken))
	if update.StatusCode != http.StatusOK {
		t.Fatalf("editor update status: %d", update.StatusCode)
	}
	update.Body.Close()

	// sharing by a non-owner is rejected by the gate
	escalate := c.post("/v1/documents/share", map[string]string{
		"document_id": doc.ID, "user_id": owner.User.ID, "role": "viewer",
	}, bearerHeaders(guest.AccessToken))
	if escalate.StatusCode != http.StatusForbidden {
		t.Fatalf("editor share status: %d", escalate.StatusCode)
	}
	escalate.Body.Close()

	// grant listing shows one active grant
	perms := c.get("/v1/documents/"+doc.ID+"/permissions", nil, bearerHeaders(owner.AccessToken))
	if perms.StatusCode != http.StatusOK {
		t.Fatalf("permissions status: %d", perms.StatusCode)
	}
	var permList struct {
		Items []permissionResponse `json:"items"`
	}
	decodeBody(t, perms, &permList)
	if len(permList.Items) != 1 || permList.Items[0].Role != "editor" {
		t.Fatalf("unexpected grants: %+v", permList.Items)
	}

	// revoke and verify access is gone
	revoke := c.do(http.MethodDelete, "/v1/documents/"+doc.ID+"/permissions/"+guest.User.ID, nil,
		bearerHeaders(owner.AccessToken))
	if revoke.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke status: %d", revoke.StatusCode)
	}
	revoke.Body.Close()
	read = c.get("/v1/documents/"+doc.ID, nil, bearerHeaders(guest.AccessToken))
	if read.StatusCode != http.StatusForbidden {
		t.Fatalf("revoked viewer status: %d", read.StatusCode)
	}
	read.Body.Close()

	// editor cannot delete, owner can
	del := c.do(http.MethodDelete, "/v1/documents/"+doc.ID, nil, bearerHeaders(guest.AccessToken))
	if del.StatusCode != http.StatusForbidden {
		t.Fatalf("guest delete status: %d", del.StatusCode)
	}
	del.Body.Close()
	del = c.do(http.MethodDelete, "/v1/documents/"+doc.ID, nil, bearerHeaders(owner.AccessToken))
	if del.StatusCode != http.StatusNoContent {
		t.Fatalf("owner delete status: %d", del.StatusCode)
	}
	del.Body.Close()

	missing := c.get("/v1/documents/"+doc.ID, nil, bearerHeaders(owner.AccessToken))
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted document status: %d", missing.StatusCode)
	}
	missing.Body.Close()
}

func TestDocumentValidationAndErrors(t *testing.T) {
	c := newTestAPI(t)
	owner := c.register("owner@b.com")

	blank := c.post("/v1/documents", map[string]string{"title": " ", "content": "x"},
		bearerHeaders(owner.AccessToken))
	if blank.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank title status: %d", blank.StatusCode)
	}
	blank.Body.Close()

	unknownRole := c.post("/v1/documents/share", map[string]string{
		"document_id": "whatever", "user_id": "whoever", "role": "superuser",
	}, bearerHeaders(owner.AccessToken))
	if unknownRole.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown role status: %d", unknownRole.StatusCode)
	}
	unknownRole.Body.Close()

	missing := c.get("/v1/documents/nope", nil, bearerHeaders(owner.AccessToken))
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing doc status: %d", missing.StatusCode)
	}
	missing.Body.Close()

	badToken := c.get("/v1/documents", nil, bearerHeaders("garbage"))
	if badToken.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status: %d", badToken.StatusCode)
	}
	badToken.Body.Close()
}

func TestDocumentList(t *testing.T) {
	c := newTestAPI(t)
	owner := c.register("owner@b.com")

	for _, title := range []string{"Beta", "Alpha"} {
		resp := c.post("/v1/documents", map[string]string{"title": title, "content": "x"},
			bearerHeaders(owner.AccessToken))
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create %s status: %d", title, resp.StatusCode)
		}
		resp.Body.Close()
	}

	list := c.get("/v1/documents", nil, bearerHeaders(owner.AccessToken))
	if list.StatusCode != http.StatusOK {
		t.Fatalf("list status: %d", list.StatusCode)
	}
	var body struct {
		Items []documentResponse `json:"items"`
	}
	decodeBody(t, list, &body)
	if len(body.Items) != 2 || body.Items[0].Title != "Alpha" || body.Items[1].Title != "Beta" {
		t.Fatalf("unexpected list: %+v", body.Items)
	}

	// Listing another user's documents is admin-only.
	guest := c.register("guest@b.com")
	denied := c.get("/v1/documents", url.Values{"user_id": {owner.User.ID}},
		bearerHeaders(guest.AccessToken))
	if denied.StatusCode != http.StatusForbidden {
		t.Fatalf("cross-user list status: %d", denied.StatusCode)
	}
	denied.Body.Close()
}

func TestConfirmEmailEndpoint(t *testing.T) {
	c := newTestAPI(t)
	c.register("a@b.com")

	resp := c.get("/v1/auth/confirm-email", url.Values{
		"email": {"a@b.com"},
		"token": {"not-the-token"},
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad confirm token status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.get("/v1/auth/confirm-email", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing params status: %d", resp.StatusCode)
	}
	resp.Body.Close()
}
