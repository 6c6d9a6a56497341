package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/keyfold/keyfold-server/internal/api"
	"github.com/keyfold/keyfold-server/internal/ratelimit"
	"github.com/keyfold/keyfold-server/internal/services"
	"github.com/keyfold/keyfold-server/internal/session"
	"github.com/keyfold/keyfold-server/internal/store"
	"github.com/keyfold/keyfold-server/internal/store/sqlite"
)

// env is one running service instance with a cookie-aware client, mirroring
// how a browser talks to the API.
type env struct {
	ts     *httptest.Server
	client *http.Client
	store  store.Store
	csrf   string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "vault.db"))
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	router := api.NewRouter(api.RouterDeps{
		Store:         st,
		Users:         services.NewUserService(st),
		Vault:         services.NewVaultService(st),
		Sessions:      session.NewManager(st.Sessions(), time.Hour),
		SignupLimiter: ratelimit.NewSignupLimiter(5, 24*time.Hour),
	})
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &env{ts: ts, client: &http.Client{Jar: jar}, store: st}
}

func (e *env) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.csrf != "" {
		req.Header.Set("X-CSRF-Token", e.csrf)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func (e *env) signup(t *testing.T, email string) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"email":        email,
		"password":     "correct-horse",
		"encryptedKey": "enc-key-" + email,
	})
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup %s: status %d", email, resp.StatusCode)
	}
}

func (e *env) login(t *testing.T, email string) map[string]interface{} {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": "correct-horse",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d", email, resp.StatusCode)
	}
	var out map[string]interface{}
	decodeBody(t, resp, &out)
	csrf, _ := out["csrfToken"].(string)
	if csrf == "" {
		t.Fatal("login response missing csrfToken")
	}
	e.csrf = csrf
	return out
}

func (e *env) createCollection(t *testing.T, name string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/collections", map[string]string{"name": name})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create collection: status %d", resp.StatusCode)
	}
	var out map[string]interface{}
	decodeBody(t, resp, &out)
	return out["uuid"].(string)
}

func TestSignupProvisionsDefaultCollection(t *testing.T) {
	e := newEnv(t)
	e.signup(t, "a@example.com")
	e.login(t, "a@example.com")

	resp := e.do(t, http.MethodGet, "/api/collections", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list collections: status %d", resp.StatusCode)
	}
	var out struct {
		Collections []struct {
			Name string `json:"name"`
		} `json:"collections"`
		Count int `json:"count"`
	}
	decodeBody(t, resp, &out)
	if out.Count != 1 || out.Collections[0].Name != "Default" {
		t.Fatalf("expected a single Default collection, got %+v", out)
	}
}

func TestSignupDuplicateEmailIsBadRequest(t *testing.T) {
	e := newEnv(t)
	e.signup(t, "a@example.com")

	resp := e.do(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"email":        "a@EXAMPLE.com",
		"password":     "correct-horse",
		"encryptedKey": "enc",
	})
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate signup: status %d, want 400", resp.StatusCode)
	}
}

func TestSignupFieldValidation(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"email":        "not-an-email",
		"password":     "short",
		"encryptedKey": "",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid signup: status %d, want 400", resp.StatusCode)
	}
	var out struct {
		Fields map[string]string `json:"fields"`
	}
	decodeBody(t, resp, &out)
	for _, f := range []string{"email", "password", "encryptedKey"} {
		if out.Fields[f] == "" {
			t.Errorf("expected field error for %s, got %v", f, out.Fields)
		}
	}
}

func TestSignupThrottle(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 5; i++ {
		e.signup(t, fmt.Sprintf("user%d@example.com", i))
	}
	resp := e.do(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"email":        "user6@example.com",
		"password":     "correct-horse",
		"encryptedKey": "enc",
	})
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("sixth signup: status %d, want 429", resp.StatusCode)
	}
}

func TestLoginSetsCookiesAndReturnsKey(t *testing.T) {
	e := newEnv(t)
	e.signup(t, "a@example.com")

	resp := e.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "a@example.com",
		"password": "correct-horse",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
	var sawSession, sawCSRF bool
	for _, c := range resp.Cookies() {
		switch c.Name {
		case "vault_session":
			sawSession = true
			if !c.HttpOnly {
				t.Error("session cookie must be HttpOnly")
			}
		case "vault_csrf":
			sawCSRF = true
			if c.HttpOnly {
				t.Error("csrf cookie must be readable by the client")
			}
		}
	}
	if !sawSession || !sawCSRF {
		t.Fatalf("missing cookies, session=%v csrf=%v", sawSession, sawCSRF)
	}
	var out map[string]interface{}
	decodeBody(t, resp, &out)
	if out["encryptedKey"] != "enc-key-a@example.com" {
		t.Fatalf("login did not return the encrypted key: %v", out["encryptedKey"])
	}
}

func TestLoginWithoutKeyRecordIsForbidden(t *testing.T) {
	e := newEnv(t)

	// An account provisioned without a key record (tooling path) has
	// nothing to unlock; login must refuse it, not issue a session.
	if _, err := services.NewUserService(e.store).CreateUser(context.Background(), "legacy@example.com", "correct-horse"); err != nil {
		t.Fatalf("create legacy user: %v", err)
	}

	resp := e.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "legacy@example.com",
		"password": "correct-horse",
	})
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("login without key record: status %d, want 403", resp.StatusCode)
	}
	for _, c := range resp.Cookies() {
		if c.Name == "vault_session" && c.Value != "" {
			t.Fatal("refused login must not set a session cookie")
		}
	}
}

func TestLoginFieldValidation(t *testing.T) {
	e := newEnv(t)
	e.signup(t, "a@example.com")

	resp := e.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "",
		"password": "",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank login fields: status %d, want 400", resp.StatusCode)
	}
	var out struct {
		Fields map[string]string `json:"fields"`
	}
	decodeBody(t, resp, &out)
	for _, f := range []string{"email", "password"} {
		if out.Fields[f] == "" {
			t.Errorf("expected field error for %s, got %v", f, out.Fields)
		}
	}

	resp = e.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "not-an-email",
		"password": "correct-horse",
	})
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed login email: status %d, want 400", resp.StatusCode)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	e := newEnv(t)
	e.signup(t, "a@example.com")

	resp := e.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "a@example.com",
		"password": "wrong",
	})
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("bad login: status %d, want 403", resp.StatusCode)
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/api/collections", "/api/items", "/api/users/me"} {
		resp := e.do(t, http.MethodGet, path, nil)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("GET %s without session: status %d, want 403", path, resp.StatusCode)
		}
	}
}

func TestCSRFRequiredOnUnsafeMethods(t *testing.T) {
	e := newEnv(t)
	e.signup(t, "a@example.com")
	e.login(t, "a@example.com")

	// Reads pass without the header.
	e.csrf = ""
	resp := e.do(t, http.MethodGet, "/api/collections", nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("read without csrf header: status %d", resp.StatusCode)
	}

	// Writes do not.
	resp = e.do(t, http.MethodPost, "/api/collections", map[string]string{"name": "X"})
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("write without csrf header: status %d, want 403", resp.StatusCode)
	}

	e.csrf = "forged"
	resp = e.do(t, http.MethodPost, "/api/collections", map[string]string{"name": "X"})
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("write with forged csrf header: status %d, want 403", resp.StatusCode)
	}
}

func TestCrossTenantLookupsAre404(t *testing.T) {
	alice := newEnv(t)
	alice.signup(t, "alice@example.com")
	alice.login(t, "alice@example.com")
	col := alice.createCollection(t, "Secrets")

	resp := alice.do(t, http.MethodPost, "/api/items", map[string]string{
		"collectionUuid": col,
		"encryptedData":  "ciphertext",
	})
	var item map[string]interface{}
	decodeBody(t, resp, &item)
	itemUUID := item["uuid"].(string)

	// Second account on the same instance; the real UUIDs exist but belong
	// to alice.
	e := alice
	e.signup(t, "mallory@example.com")
	e.login(t, "mallory@example.com")

	for _, path := range []string{
		"/api/collections/" + col,
		"/api/items/" + itemUUID,
	} {
		r := e.do(t, http.MethodGet, path, nil)
		_ = r.Body.Close()
		if r.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s as foreign user: status %d, want 404", path, r.StatusCode)
		}
		r = e.do(t, http.MethodDelete, path, nil)
		_ = r.Body.Close()
		if r.StatusCode != http.StatusNotFound {
			t.Errorf("DELETE %s as foreign user: status %d, want 404", path, r.StatusCode)
		}
	}
}

func TestMalformedUUIDIsBadRequest(t *testing.T) {
	e := newEnv(t)
	e.signup(t, "a@example.com")
	e.login(t, "a@example.com")

	resp := e.do(t, http.MethodGet, "/api/collections/not-a-uuid", nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed uuid: status %d, want 400", resp.StatusCode)
	}
}

func TestItemLifecycle(t *testing.T) {
	e := newEnv(t)
	e.signup(t, "a@example.com")
	e.login(t, "a@example.com")

	colX := e.createCollection(t, "X")
	colY := e.createCollection(t, "Y")

	// Create in X.
	resp := e.do(t, http.MethodPost, "/api/items", map[string]string{
		"collectionUuid": colX,
		"encryptedData":  "v1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create item: status %d", resp.StatusCode)
	}
	var item struct {
		UUID           string `json:"uuid"`
		CollectionUUID string `json:"collectionUuid"`
		EncryptedData  string `json:"encryptedData"`
	}
	decodeBody(t, resp, &item)
	if item.CollectionUUID != colX {
		t.Fatalf("item created in %s, want %s", item.CollectionUUID, colX)
	}

	// Update data in place.
	resp = e.do(t, http.MethodPut, "/api/items/"+item.UUID, map[string]string{
		"encryptedData": "v2",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update item: status %d", resp.StatusCode)
	}
	decodeBody(t, resp, &item)
	if item.EncryptedData != "v2" || item.CollectionUUID != colX {
		t.Fatalf("in-place update changed the wrong fields: %+v", item)
	}

	// Move to Y.
	resp = e.do(t, http.MethodPut, "/api/items/"+item.UUID, map[string]string{
		"encryptedData":  "v2",
		"collectionUuid": colY,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("move item: status %d", resp.StatusCode)
	}
	decodeBody(t, resp, &item)
	if item.CollectionUUID != colY {
		t.Fatalf("item not moved, still in %s", item.CollectionUUID)
	}

	// Filtered listing follows the move.
	resp = e.do(t, http.MethodGet, "/api/items?collection="+colX, nil)
	var listing struct {
		Count int `json:"count"`
	}
	decodeBody(t, resp, &listing)
	if listing.Count != 0 {
		t.Fatalf("collection X should be empty, has %d items", listing.Count)
	}

	// Blank data is refused.
	resp = e.do(t, http.MethodPut, "/api/items/"+item.UUID, map[string]string{
		"encryptedData": "",
	})
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank data update: status %d, want 400", resp.StatusCode)
	}

	// Delete, then the item is gone.
	resp = e.do(t, http.MethodDelete, "/api/items/"+item.UUID, nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete item: status %d", resp.StatusCode)
	}
	resp = e.do(t, http.MethodGet, "/api/items/"+item.UUID, nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: status %d, want 404", resp.StatusCode)
	}
}

func TestCollectionRenameAndDelete(t *testing.T) {
	e := newEnv(t)
	e.signup(t, "a@example.com")
	e.login(t, "a@example.com")

	col := e.createCollection(t, "Before")

	resp := e.do(t, http.MethodPut, "/api/collections/"+col, map[string]string{"name": "After"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rename: status %d", resp.StatusCode)
	}
	var out map[string]interface{}
	decodeBody(t, resp, &out)
	if out["name"] != "After" {
		t.Fatalf("rename did not stick: %v", out["name"])
	}

	resp = e.do(t, http.MethodPut, "/api/collections/"+col, map[string]string{"name": ""})
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank rename: status %d, want 400", resp.StatusCode)
	}

	resp = e.do(t, http.MethodDelete, "/api/collections/"+col, nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete collection: status %d", resp.StatusCode)
	}
	resp = e.do(t, http.MethodGet, "/api/collections/"+col, nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: status %d, want 404", resp.StatusCode)
	}
}

func TestUserKeyEndpoint(t *testing.T) {
	e := newEnv(t)
	e.signup(t, "a@example.com")
	e.login(t, "a@example.com")

	resp := e.do(t, http.MethodGet, "/api/users/me/key", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get key: status %d", resp.StatusCode)
	}
	var out struct {
		EncryptedKey string `json:"encryptedKey"`
	}
	decodeBody(t, resp, &out)
	if out.EncryptedKey != "enc-key-a@example.com" {
		t.Fatalf("wrong key payload %q", out.EncryptedKey)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	e := newEnv(t)
	e.signup(t, "a@example.com")
	e.login(t, "a@example.com")

	resp := e.do(t, http.MethodPost, "/api/auth/logout", nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: status %d", resp.StatusCode)
	}

	resp = e.do(t, http.MethodGet, "/api/users/me", nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("request after logout: status %d, want 403", resp.StatusCode)
	}
}

func TestDeleteAccount(t *testing.T) {
	e := newEnv(t)
	e.signup(t, "a@example.com")
	e.login(t, "a@example.com")

	resp := e.do(t, http.MethodDelete, "/api/users/me", nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete account: status %d", resp.StatusCode)
	}

	resp = e.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "a@example.com",
		"password": "correct-horse",
	})
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("login after account deletion: status %d, want 403", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodGet, "/api/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: status %d", resp.StatusCode)
	}
	var out struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &out)
	if out.Status != "healthy" {
		t.Fatalf("status %q, want healthy", out.Status)
	}
}
