package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"epicnotes/internal/auth"
	"epicnotes/internal/cookies"
	"epicnotes/internal/email"
	"epicnotes/internal/notes"
	"epicnotes/internal/totp"
)

// captureSender records outbound mail instead of delivering it.
type captureSender struct {
	mu   sync.Mutex
	sent []email.Message
}

func (c *captureSender) Send(_ context.Context, m email.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, m)
	return nil
}

func (c *captureSender) last(t *testing.T) email.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		t.Fatal("no email was sent")
	}
	return c.sent[len(c.sent)-1]
}

type harness struct {
	handler  http.Handler
	repo     *auth.InMemoryRepository
	svc      *auth.Service
	verifier *auth.Verifier
	github   *auth.GitHubAuthenticator
	sender   *captureSender
	cookies  map[string]*http.Cookie
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	repo := auth.NewInMemoryRepository()
	svc := auth.NewService(repo, 30*24*time.Hour, 2*time.Hour)
	verifier := auth.NewVerifier(repo, totp.New())
	github := auth.NewGitHubAuthenticator("client-id", "client-secret", "http://localhost/auth/github/callback")
	sender := &captureSender{}

	handler := NewRouter(Dependencies{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Auth:           svc,
		Verifier:       verifier,
		GitHub:         github,
		Emails:         sender,
		Jars:           cookies.NewJars([]string{"test-secret"}, false),
		Notes:          notes.NewInMemoryRepository(),
		BaseURL:        "http://localhost:8080",
		AppName:        "Epic Notes",
		AllowedOrigins: []string{"http://localhost:8080"},
	})

	return &harness{
		handler:  handler,
		repo:     repo,
		svc:      svc,
		verifier: verifier,
		github:   github,
		sender:   sender,
		cookies:  make(map[string]*http.Cookie),
	}
}

// do performs a request, carrying and updating the harness cookie jar like a
// browser would.
func (h *harness) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range h.cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(h.cookies, c.Name)
			continue
		}
		h.cookies[c.Name] = c
	}
	return rec
}

func (h *harness) signupUser(t *testing.T, username, emailAddr, password string) *auth.User {
	t.Helper()
	user, _, err := h.svc.Signup(context.Background(), auth.SignupInput{
		Email:    emailAddr,
		Username: username,
		Password: password,
	})
	if err != nil {
		t.Fatalf("signup %s: %v", username, err)
	}
	return user
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func redirectTo(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	target, _ := decodeBody(t, rec)["redirectTo"].(string)
	return target
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLoginAndMe(t *testing.T) {
	h := newHarness(t)
	h.signupUser(t, "kody", "kody@example.com", "password123")
	h.cookies = map[string]*http.Cookie{}

	rec := h.do(t, http.MethodPost, "/auth/login", map[string]any{
		"username": "kody",
		"password": "password123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := redirectTo(t, rec); got != "/" {
		t.Errorf("redirectTo = %q, want /", got)
	}
	if h.cookies[cookies.SessionCookieName] == nil {
		t.Fatal("no session cookie set")
	}

	rec = h.do(t, http.MethodGet, "/me", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["username"]; got != "kody" {
		t.Errorf("username = %v", got)
	}
}

func TestLoginErrorsAreUniform(t *testing.T) {
	h := newHarness(t)
	h.signupUser(t, "kody", "kody@example.com", "password123")
	h.cookies = map[string]*http.Cookie{}

	unknown := h.do(t, http.MethodPost, "/auth/login", map[string]any{
		"username": "nobody",
		"password": "password123",
	})
	wrongPass := h.do(t, http.MethodPost, "/auth/login", map[string]any{
		"username": "kody",
		"password": "wrong-password",
	})

	if unknown.Code != http.StatusBadRequest || wrongPass.Code != http.StatusBadRequest {
		t.Fatalf("statuses = %d, %d, want 400 for both", unknown.Code, wrongPass.Code)
	}
	// The response must not reveal which part was wrong.
	if unknown.Body.String() != wrongPass.Body.String() {
		t.Errorf("responses differ:\n%s\n%s", unknown.Body.String(), wrongPass.Body.String())
	}
	if h.cookies[cookies.SessionCookieName] != nil {
		t.Error("session cookie set on failed login")
	}
}

func TestLoginRememberPinsCookie(t *testing.T) {
	h := newHarness(t)
	h.signupUser(t, "kody", "kody@example.com", "password123")
	h.cookies = map[string]*http.Cookie{}

	h.do(t, http.MethodPost, "/auth/login", map[string]any{
		"username": "kody",
		"password": "password123",
		"remember": true,
	})

	c := h.cookies[cookies.SessionCookieName]
	if c == nil {
		t.Fatal("no session cookie set")
	}
	if c.MaxAge <= 0 {
		t.Errorf("MaxAge = %d, want positive for remembered login", c.MaxAge)
	}
}

func TestLoginRedirectToIsSanitized(t *testing.T) {
	h := newHarness(t)
	h.signupUser(t, "kody", "kody@example.com", "password123")

	for _, evil := range []string{"https://evil.example", "//evil.example", "%2F%2Fevil.example"} {
		h.cookies = map[string]*http.Cookie{}
		rec := h.do(t, http.MethodPost, "/auth/login", map[string]any{
			"username":   "kody",
			"password":   "password123",
			"redirectTo": evil,
		})
		if got := redirectTo(t, rec); got != "/" {
			t.Errorf("redirectTo(%q) = %q, want /", evil, got)
		}
	}
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.signupUser(t, "kody", "kody@example.com", "password123")
	h.cookies = map[string]*http.Cookie{}

	h.do(t, http.MethodPost, "/auth/login", map[string]any{
		"username": "kody", "password": "password123",
	})

	rec := h.do(t, http.MethodPost, "/auth/logout", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}
	if h.cookies[cookies.SessionCookieName] != nil {
		t.Error("session cookie survived logout")
	}

	rec = h.do(t, http.MethodGet, "/me", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("me after logout = %d, want 401", rec.Code)
	}
}

func TestRequireUserRedirect(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/notes/", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := redirectTo(t, rec); got != "/login?redirectTo=%2Fnotes%2F" {
		t.Errorf("redirectTo = %q", got)
	}
}

func TestRequireAnonymous(t *testing.T) {
	h := newHarness(t)
	h.signupUser(t, "kody", "kody@example.com", "password123")
	h.cookies = map[string]*http.Cookie{}
	h.do(t, http.MethodPost, "/auth/login", map[string]any{
		"username": "kody", "password": "password123",
	})

	rec := h.do(t, http.MethodPost, "/auth/login", map[string]any{
		"username": "kody", "password": "password123",
	})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
}

func TestStaleSessionCookieIsDestroyed(t *testing.T) {
	h := newHarness(t)
	user := h.signupUser(t, "kody", "kody@example.com", "password123")
	h.cookies = map[string]*http.Cookie{}
	h.do(t, http.MethodPost, "/auth/login", map[string]any{
		"username": "kody", "password": "password123",
	})

	// Revoke everything server-side; the cookie is now a dangling pointer.
	if _, err := h.repo.DeleteUserSessions(context.Background(), user.ID); err != nil {
		t.Fatalf("delete sessions: %v", err)
	}

	rec := h.do(t, http.MethodGet, "/me", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if h.cookies[cookies.SessionCookieName] != nil {
		t.Error("stale session cookie was not destroyed")
	}
}
