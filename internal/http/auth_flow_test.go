package http

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"testing"

	"epicnotes/internal/auth"
	"epicnotes/internal/cookies"
	"epicnotes/internal/totp"
)

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

func codeFromEmail(t *testing.T, body string) string {
	t.Helper()
	code := codePattern.FindString(body)
	if code == "" {
		t.Fatalf("no code found in email body:\n%s", body)
	}
	return code
}

// enableTwoFactor enrolls and confirms an authenticator for the user, going
// through the verifier directly.
func (h *harness) enableTwoFactor(t *testing.T, user *auth.User) {
	t.Helper()
	ctx := context.Background()

	record, err := h.verifier.PrepareTwoFactor(ctx, user.ID.String())
	if err != nil {
		t.Fatalf("prepare 2fa: %v", err)
	}
	ok, err := h.verifier.ConfirmTwoFactorSetup(ctx, h.totpCode(t, record), user.ID.String())
	if err != nil || !ok {
		t.Fatalf("confirm 2fa = (%v, %v)", ok, err)
	}
}

// totpCode derives the code an authenticator app would currently show.
func (h *harness) totpCode(t *testing.T, record *auth.Verification) string {
	t.Helper()
	code, err := totp.New().Code(totp.Key{
		Secret:    record.Secret,
		Algorithm: record.Algorithm,
		Digits:    record.Digits,
		Period:    record.Period,
		CharSet:   record.CharSet,
	})
	if err != nil {
		t.Fatalf("derive code: %v", err)
	}
	return code
}

func (h *harness) currentTwoFactorCode(t *testing.T, user *auth.User) string {
	t.Helper()
	record, err := h.repo.FindVerification(context.Background(), user.ID.String(), auth.VerificationTwoFactor)
	if err != nil || record == nil {
		t.Fatalf("standing 2fa record = (%v, %v)", record, err)
	}
	return h.totpCode(t, record)
}

func TestSignupOnboardingFlow(t *testing.T) {
	h := newHarness(t)

	// Step 1: request a verification code.
	rec := h.do(t, http.MethodPost, "/auth/signup", map[string]any{
		"email": "kody@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("signup status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := redirectTo(t, rec); !strings.HasPrefix(got, "/verify?") {
		t.Fatalf("redirectTo = %q", got)
	}

	msg := h.sender.last(t)
	if msg.To != "kody@example.com" {
		t.Errorf("email sent to %q", msg.To)
	}
	code := codeFromEmail(t, msg.Text)

	// Step 2: prove control of the address.
	rec = h.do(t, http.MethodPost, "/verify", map[string]any{
		"code":   code,
		"type":   "onboarding",
		"target": "kody@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := redirectTo(t, rec); got != "/onboarding" {
		t.Errorf("redirectTo = %q, want /onboarding", got)
	}
	if h.cookies[cookies.VerificationCookieName] == nil {
		t.Fatal("no verification cookie after verify")
	}

	// The code is one-time: replaying it fails.
	replay := h.do(t, http.MethodPost, "/verify", map[string]any{
		"code":   code,
		"type":   "onboarding",
		"target": "kody@example.com",
	})
	if replay.Code != http.StatusBadRequest {
		t.Errorf("replayed code status = %d, want 400", replay.Code)
	}

	// Step 3: complete the profile.
	rec = h.do(t, http.MethodPost, "/auth/onboarding", map[string]any{
		"username": "kody",
		"name":     "Kody",
		"password": "password123",
		"remember": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("onboarding status = %d: %s", rec.Code, rec.Body.String())
	}
	if h.cookies[cookies.SessionCookieName] == nil {
		t.Fatal("no session cookie after onboarding")
	}
	if h.cookies[cookies.VerificationCookieName] != nil {
		t.Error("verification cookie survived onboarding")
	}

	rec = h.do(t, http.MethodGet, "/me", nil)
	if got := decodeBody(t, rec)["email"]; got != "kody@example.com" {
		t.Errorf("email = %v", got)
	}
}

func TestSignupExistingEmail(t *testing.T) {
	h := newHarness(t)
	h.signupUser(t, "kody", "kody@example.com", "password123")
	h.cookies = map[string]*http.Cookie{}

	rec := h.do(t, http.MethodPost, "/auth/signup", map[string]any{
		"email": "kody@example.com",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestOnboardingWithoutVerifiedEmail(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/auth/onboarding", map[string]any{
		"username": "kody",
		"password": "password123",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := redirectTo(t, rec); got != "/signup" {
		t.Errorf("redirectTo = %q, want /signup", got)
	}
}

func TestTwoFactorLoginFlow(t *testing.T) {
	h := newHarness(t)
	user := h.signupUser(t, "kody", "kody@example.com", "password123")
	h.enableTwoFactor(t, user)
	h.cookies = map[string]*http.Cookie{}

	// Correct credentials only get as far as the challenge.
	rec := h.do(t, http.MethodPost, "/auth/login", map[string]any{
		"username":   "kody",
		"password":   "password123",
		"remember":   true,
		"redirectTo": "/notes",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	target := redirectTo(t, rec)
	if !strings.HasPrefix(target, "/verify?") || !strings.Contains(target, "type=2fa") {
		t.Fatalf("redirectTo = %q, want 2fa challenge", target)
	}
	if h.cookies[cookies.SessionCookieName] != nil {
		t.Fatal("primary cookie committed before the 2FA challenge")
	}
	if h.cookies[cookies.VerificationCookieName] == nil {
		t.Fatal("no verification cookie holding the pending session")
	}

	// The pending session is unusable without the code.
	if rec := h.do(t, http.MethodGet, "/me", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("me before 2fa = %d, want 401", rec.Code)
	}

	// Pass the challenge.
	rec = h.do(t, http.MethodPost, "/verify", map[string]any{
		"code":       h.currentTwoFactorCode(t, user),
		"type":       "2fa",
		"target":     user.ID.String(),
		"redirectTo": "/notes",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := redirectTo(t, rec); got != "/notes" {
		t.Errorf("redirectTo = %q, want /notes", got)
	}

	session := h.cookies[cookies.SessionCookieName]
	if session == nil {
		t.Fatal("no primary cookie after passing 2FA")
	}
	if session.MaxAge <= 0 {
		t.Error("remember choice lost across the 2FA detour")
	}
	if h.cookies[cookies.VerificationCookieName] != nil {
		t.Error("verification cookie survived the 2FA step")
	}

	if rec := h.do(t, http.MethodGet, "/me", nil); rec.Code != http.StatusOK {
		t.Errorf("me after 2fa = %d", rec.Code)
	}
}

func TestTwoFactorLoginWrongCode(t *testing.T) {
	h := newHarness(t)
	user := h.signupUser(t, "kody", "kody@example.com", "password123")
	h.enableTwoFactor(t, user)
	h.cookies = map[string]*http.Cookie{}

	h.do(t, http.MethodPost, "/auth/login", map[string]any{
		"username": "kody", "password": "password123",
	})

	rec := h.do(t, http.MethodPost, "/verify", map[string]any{
		"code":   "000000",
		"type":   "2fa",
		"target": user.ID.String(),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if h.cookies[cookies.SessionCookieName] != nil {
		t.Error("primary cookie committed on wrong code")
	}
}

func TestTwoFactorRevokedPendingSession(t *testing.T) {
	h := newHarness(t)
	user := h.signupUser(t, "kody", "kody@example.com", "password123")
	h.enableTwoFactor(t, user)
	h.cookies = map[string]*http.Cookie{}

	h.do(t, http.MethodPost, "/auth/login", map[string]any{
		"username": "kody", "password": "password123",
	})

	// The pending session is revoked (e.g. password reset) before the code
	// arrives.
	if _, err := h.repo.DeleteUserSessions(context.Background(), user.ID); err != nil {
		t.Fatalf("delete sessions: %v", err)
	}

	rec := h.do(t, http.MethodPost, "/verify", map[string]any{
		"code":   h.currentTwoFactorCode(t, user),
		"type":   "2fa",
		"target": user.ID.String(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := redirectTo(t, rec); got != "/login" {
		t.Errorf("redirectTo = %q, want /login", got)
	}
	if h.cookies[cookies.SessionCookieName] != nil {
		t.Error("primary cookie committed for a revoked session")
	}
}

func TestForgotPasswordResetFlow(t *testing.T) {
	h := newHarness(t)
	h.signupUser(t, "kody", "kody@example.com", "password123")
	h.cookies = map[string]*http.Cookie{}

	rec := h.do(t, http.MethodPost, "/auth/forgot-password", map[string]any{
		"usernameOrEmail": "kody@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("forgot-password status = %d: %s", rec.Code, rec.Body.String())
	}

	msg := h.sender.last(t)
	if msg.To != "kody@example.com" {
		t.Errorf("reset email sent to %q", msg.To)
	}
	code := codeFromEmail(t, msg.Text)

	rec = h.do(t, http.MethodPost, "/verify", map[string]any{
		"code":   code,
		"type":   "forgot-password",
		"target": "kody",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := redirectTo(t, rec); got != "/reset-password" {
		t.Errorf("redirectTo = %q, want /reset-password", got)
	}

	rec = h.do(t, http.MethodPost, "/auth/reset-password", map[string]any{
		"password":        "new-password",
		"confirmPassword": "new-password",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reset-password status = %d: %s", rec.Code, rec.Body.String())
	}

	// Old password out, new password in.
	if user, _ := h.svc.Login(context.Background(), "kody", "password123"); user != nil {
		t.Error("old password still works")
	}
	if user, _ := h.svc.Login(context.Background(), "kody", "new-password"); user == nil {
		t.Error("new password rejected")
	}
}

func TestResetPasswordWithoutVerification(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/auth/reset-password", map[string]any{
		"password":        "new-password",
		"confirmPassword": "new-password",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChangeEmailFlow(t *testing.T) {
	h := newHarness(t)
	user := h.signupUser(t, "kody", "kody@example.com", "password123")
	h.cookies = map[string]*http.Cookie{}
	h.do(t, http.MethodPost, "/auth/login", map[string]any{
		"username": "kody", "password": "password123",
	})

	rec := h.do(t, http.MethodPost, "/settings/profile/change-email", map[string]any{
		"email": "new@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("change-email status = %d: %s", rec.Code, rec.Body.String())
	}

	// The code goes to the address being claimed.
	msg := h.sender.last(t)
	if msg.To != "new@example.com" {
		t.Fatalf("code sent to %q, want new@example.com", msg.To)
	}
	code := codeFromEmail(t, msg.Text)

	rec = h.do(t, http.MethodPost, "/verify", map[string]any{
		"code":   code,
		"type":   "change-email",
		"target": user.ID.String(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d: %s", rec.Code, rec.Body.String())
	}

	got, err := h.svc.User(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if got.Email != "new@example.com" {
		t.Errorf("email = %q, want new@example.com", got.Email)
	}

	// The old address gets a notice.
	notice := h.sender.last(t)
	if notice.To != "kody@example.com" {
		t.Errorf("notice sent to %q, want old address", notice.To)
	}
}

func TestChangeEmailToExistingAddress(t *testing.T) {
	h := newHarness(t)
	h.signupUser(t, "kody", "kody@example.com", "password123")
	h.signupUser(t, "hannah", "hannah@example.com", "password123")
	h.cookies = map[string]*http.Cookie{}
	h.do(t, http.MethodPost, "/auth/login", map[string]any{
		"username": "kody", "password": "password123",
	})

	rec := h.do(t, http.MethodPost, "/settings/profile/change-email", map[string]any{
		"email": "hannah@example.com",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChangeEmailRequiresFreshTwoFactor(t *testing.T) {
	h := newHarness(t)
	user := h.signupUser(t, "kody", "kody@example.com", "password123")
	h.enableTwoFactor(t, user)
	h.cookies = map[string]*http.Cookie{}

	// Log in through the 2FA gate.
	h.do(t, http.MethodPost, "/auth/login", map[string]any{
		"username": "kody", "password": "password123",
	})
	h.do(t, http.MethodPost, "/verify", map[string]any{
		"code":   h.currentTwoFactorCode(t, user),
		"type":   "2fa",
		"target": user.ID.String(),
	})

	// Fresh verification: allowed straight through.
	rec := h.do(t, http.MethodPost, "/settings/profile/change-email", map[string]any{
		"email": "new@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTwoFactorSkippedWhileVerificationFresh(t *testing.T) {
	h := newHarness(t)
	user := h.signupUser(t, "kody", "kody@example.com", "password123")
	h.enableTwoFactor(t, user)
	h.cookies = map[string]*http.Cookie{}

	// First login goes through the challenge and stamps the verified time.
	h.do(t, http.MethodPost, "/auth/login", map[string]any{
		"username": "kody", "password": "password123",
	})
	h.do(t, http.MethodPost, "/verify", map[string]any{
		"code":   h.currentTwoFactorCode(t, user),
		"type":   "2fa",
		"target": user.ID.String(),
	})

	// The session behind the cookie is revoked, but the signed verified time
	// the cookie carries is still fresh.
	if _, err := h.repo.DeleteUserSessions(context.Background(), user.ID); err != nil {
		t.Fatalf("delete sessions: %v", err)
	}

	rec := h.do(t, http.MethodPost, "/auth/login", map[string]any{
		"username": "kody", "password": "password123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := redirectTo(t, rec); got != "/" {
		t.Errorf("redirectTo = %q, want / without a second challenge", got)
	}
	if h.cookies[cookies.SessionCookieName] == nil {
		t.Fatal("no primary cookie after login inside the fresh window")
	}
	if rec := h.do(t, http.MethodGet, "/me", nil); rec.Code != http.StatusOK {
		t.Errorf("me after login = %d", rec.Code)
	}
}
