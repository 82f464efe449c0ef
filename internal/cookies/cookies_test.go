package cookies

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var testSecrets = []string{"test-secret-one"}

func requestWithCookies(t *testing.T, rec *httptest.ResponseRecorder) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestJarRoundTrip(t *testing.T) {
	jar := NewJar(SessionCookieName, 0, false, testSecrets)

	rec := httptest.NewRecorder()
	in := SessionPayload{SessionID: "abc-123", VerifiedTime: time.Now().UTC().Truncate(time.Second), Remember: true}
	if err := jar.Commit(rec, in, CommitOptions{}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var out SessionPayload
	if err := jar.Get(requestWithCookies(t, rec), &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.SessionID != in.SessionID || !out.VerifiedTime.Equal(in.VerifiedTime) || !out.Remember {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestJarMissingCookie(t *testing.T) {
	jar := NewJar(SessionCookieName, 0, false, testSecrets)

	var out SessionPayload
	err := jar.Get(httptest.NewRequest(http.MethodGet, "/", nil), &out)
	if err != ErrNoCookie {
		t.Fatalf("err = %v, want ErrNoCookie", err)
	}
}

func TestJarRejectsTamperedValue(t *testing.T) {
	jar := NewJar(SessionCookieName, 0, false, testSecrets)

	rec := httptest.NewRecorder()
	if err := jar.Commit(rec, SessionPayload{SessionID: "abc-123"}, CommitOptions{}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		c.Value += "x"
		req.AddCookie(c)
	}

	var out SessionPayload
	if err := jar.Get(req, &out); err != ErrNoCookie {
		t.Fatalf("err = %v, want ErrNoCookie for tampered cookie", err)
	}
}

func TestJarRejectsForeignSignature(t *testing.T) {
	signer := NewJar(SessionCookieName, 0, false, []string{"other-secret"})
	jar := NewJar(SessionCookieName, 0, false, testSecrets)

	rec := httptest.NewRecorder()
	if err := signer.Commit(rec, SessionPayload{SessionID: "abc-123"}, CommitOptions{}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var out SessionPayload
	if err := jar.Get(requestWithCookies(t, rec), &out); err != ErrNoCookie {
		t.Fatalf("err = %v, want ErrNoCookie for foreign signature", err)
	}
}

func TestJarSecretRotation(t *testing.T) {
	oldJar := NewJar(SessionCookieName, 0, false, []string{"old-secret"})
	rotated := NewJar(SessionCookieName, 0, false, []string{"new-secret", "old-secret"})

	rec := httptest.NewRecorder()
	if err := oldJar.Commit(rec, SessionPayload{SessionID: "abc-123"}, CommitOptions{}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Cookies signed with a retired secret still verify.
	var out SessionPayload
	if err := rotated.Get(requestWithCookies(t, rec), &out); err != nil {
		t.Fatalf("get with rotated secrets: %v", err)
	}
	if out.SessionID != "abc-123" {
		t.Errorf("sessionId = %q", out.SessionID)
	}
}

func TestCommitLifetimes(t *testing.T) {
	t.Run("session length by default", func(t *testing.T) {
		jar := NewJar(SessionCookieName, 0, false, testSecrets)
		rec := httptest.NewRecorder()
		if err := jar.Commit(rec, SessionPayload{SessionID: "s"}, CommitOptions{}); err != nil {
			t.Fatalf("commit: %v", err)
		}
		c := rec.Result().Cookies()[0]
		if c.MaxAge != 0 || !c.Expires.IsZero() {
			t.Errorf("MaxAge = %d, Expires = %v, want session cookie", c.MaxAge, c.Expires)
		}
	})

	t.Run("expires pins the cookie", func(t *testing.T) {
		jar := NewJar(SessionCookieName, 0, false, testSecrets)
		rec := httptest.NewRecorder()
		expires := time.Now().Add(24 * time.Hour)
		if err := jar.Commit(rec, SessionPayload{SessionID: "s"}, CommitOptions{Expires: expires}); err != nil {
			t.Fatalf("commit: %v", err)
		}
		c := rec.Result().Cookies()[0]
		if c.MaxAge <= 0 {
			t.Errorf("MaxAge = %d, want positive", c.MaxAge)
		}
	})

	t.Run("jar default max age", func(t *testing.T) {
		jar := NewJar(VerificationCookieName, TransientMaxAge, false, testSecrets)
		rec := httptest.NewRecorder()
		if err := jar.Commit(rec, VerificationPayload{OnboardingEmail: "a@b.co"}, CommitOptions{}); err != nil {
			t.Fatalf("commit: %v", err)
		}
		c := rec.Result().Cookies()[0]
		if c.MaxAge != int(TransientMaxAge.Seconds()) {
			t.Errorf("MaxAge = %d, want %d", c.MaxAge, int(TransientMaxAge.Seconds()))
		}
	})
}

func TestDestroy(t *testing.T) {
	jar := NewJar(SessionCookieName, 0, false, testSecrets)
	rec := httptest.NewRecorder()
	jar.Destroy(rec)

	c := rec.Result().Cookies()[0]
	if c.MaxAge != -1 {
		t.Errorf("MaxAge = %d, want -1", c.MaxAge)
	}
	if c.Value != "" {
		t.Errorf("Value = %q, want empty", c.Value)
	}
}

func TestCookieAttributes(t *testing.T) {
	jar := NewJar(SessionCookieName, 0, true, testSecrets)
	rec := httptest.NewRecorder()
	if err := jar.Commit(rec, SessionPayload{SessionID: "s"}, CommitOptions{}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	c := rec.Result().Cookies()[0]
	if !c.HttpOnly {
		t.Error("cookie not HttpOnly")
	}
	if !c.Secure {
		t.Error("cookie not Secure")
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", c.SameSite)
	}
	if c.Path != "/" {
		t.Errorf("Path = %q, want /", c.Path)
	}
}

func TestToastFlash(t *testing.T) {
	jar := NewJar(ToastCookieName, 0, false, testSecrets)

	rec := httptest.NewRecorder()
	if err := SetToast(jar, rec, Toast{Title: "Done", Description: "It worked", Type: "success"}); err != nil {
		t.Fatalf("set toast: %v", err)
	}

	readRec := httptest.NewRecorder()
	toast := TakeToast(jar, readRec, requestWithCookies(t, rec))
	if toast == nil || toast.Title != "Done" {
		t.Fatalf("toast = %+v", toast)
	}

	// Take clears the cookie.
	cleared := readRec.Result().Cookies()
	if len(cleared) == 0 || cleared[0].MaxAge != -1 {
		t.Error("toast cookie not destroyed after read")
	}

	if toast := TakeToast(jar, httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil)); toast != nil {
		t.Errorf("toast = %+v, want nil without cookie", toast)
	}
}
