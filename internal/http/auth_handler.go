package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"epicnotes/internal/auth"
	"epicnotes/internal/cookies"
	"epicnotes/internal/email"
)

// AuthHandler serves the credential flows: login, logout, signup with email
// verification, and password reset.
type AuthHandler struct {
	auth     *auth.Service
	verifier *auth.Verifier
	emails   email.Sender
	jars     *cookies.Jars
	flow     *sessionFlow
	baseURL  string
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *auth.Service, verifier *auth.Verifier, emails email.Sender, jars *cookies.Jars, flow *sessionFlow, baseURL string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     svc,
		verifier: verifier,
		emails:   emails,
		jars:     jars,
		flow:     flow,
		baseURL:  baseURL,
		logger:   logger,
	}
}

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Remember   bool   `json:"remember"`
	RedirectTo string `json:"redirectTo"`
}

// Login checks credentials, mints a session, and either commits the primary
// cookie or routes through the 2FA challenge. The error message is identical
// for unknown usernames and wrong passwords.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}

	user, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Error("login failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	if user == nil {
		writeError(w, http.StatusBadRequest, "invalid username or password")
		return
	}

	session, err := h.auth.CreateSession(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("create session failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	redirectTo, err := h.flow.HandleNewSession(w, r, session, req.Remember, req.RedirectTo)
	if err != nil {
		h.logger.Error("handle new session failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"redirectTo": redirectTo})
}

// Logout deletes the server-side session and clears the primary cookie.
// Safe to call with a stale cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if info := sessionFromContext(r.Context()); info != nil {
		h.auth.Logout(r.Context(), info.Session.ID)
	}
	h.jars.Session.Destroy(w)
	writeJSON(w, http.StatusOK, map[string]string{"redirectTo": "/"})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	info := sessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       info.User.ID,
		"email":    info.User.Email,
		"username": info.User.Username,
		"name":     info.User.Name,
		"imageUrl": info.User.ImageURL,
	})
}

type signupRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirectTo"`
}

// Signup starts account creation by emailing a one-time code to the address.
// The account itself is only created once the code is confirmed and the
// onboarding form submitted.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(req.Email, "@") {
		writeFieldError(w, "email", "invalid email")
		return
	}

	existing, err := h.auth.UserByEmail(r.Context(), req.Email)
	if err != nil {
		h.logger.Error("signup lookup failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	if existing != nil {
		writeFieldError(w, "email", "a user already exists with this email")
		return
	}

	code, err := h.verifier.Prepare(r.Context(), auth.VerificationOnboarding, req.Email, auth.CodePeriod)
	if err != nil {
		h.logger.Error("prepare onboarding code failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	verifyURL := auth.VerifyURL(h.baseURL, auth.VerificationOnboarding, req.Email, code, req.RedirectTo)
	msg := email.Message{
		To:      req.Email,
		Subject: "Welcome to Epic Notes!",
		Text:    fmt.Sprintf("Here's your verification code: %s\n\nOr open this link: %s\n", code, verifyURL),
		HTML:    fmt.Sprintf("<p>Here's your verification code: <strong>%s</strong></p><p>Or <a href=%q>click here to verify</a>.</p>", code, verifyURL),
	}
	if err := h.emails.Send(r.Context(), msg); err != nil {
		h.logger.Error("send onboarding email failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not send verification email")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"redirectTo": auth.VerifyURL("", auth.VerificationOnboarding, req.Email, "", req.RedirectTo),
	})
}

type onboardingRequest struct {
	Username   string `json:"username"`
	Name       string `json:"name"`
	Password   string `json:"password"`
	Remember   bool   `json:"remember"`
	RedirectTo string `json:"redirectTo"`
}

// Onboarding creates the account for an email that passed verification. The
// verified address lives in the verification cookie, never in the request
// body, so clients cannot substitute an unverified one.
func (h *AuthHandler) Onboarding(w http.ResponseWriter, r *http.Request) {
	var payload cookies.VerificationPayload
	if err := h.jars.Verification.Get(r, &payload); err != nil || payload.OnboardingEmail == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":      "verify your email first",
			"redirectTo": "/signup",
		})
		return
	}

	var req onboardingRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}
	if len(req.Password) < 6 {
		writeFieldError(w, "password", "password must be at least 6 characters")
		return
	}

	user, session, err := h.auth.Signup(r.Context(), auth.SignupInput{
		Email:    payload.OnboardingEmail,
		Username: req.Username,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		h.writeSignupError(w, err)
		return
	}

	h.jars.Verification.Destroy(w)
	if err := h.flow.CommitSession(w, session, req.Remember, time.Time{}); err != nil {
		h.logger.Error("commit session failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	_ = cookies.SetToast(h.jars.Toast, w, cookies.Toast{
		Title:       "Welcome",
		Description: "Thanks for signing up!",
		Type:        "success",
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"redirectTo": safeRedirect(req.RedirectTo),
		"username":   user.Username,
	})
}

// OnboardingGitHub creates an account whose only credential is the GitHub
// connection stashed during the OAuth callback.
func (h *AuthHandler) OnboardingGitHub(w http.ResponseWriter, r *http.Request) {
	var payload cookies.VerificationPayload
	if err := h.jars.Verification.Get(r, &payload); err != nil || payload.OnboardingEmail == "" || payload.ProviderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":      "start over with your provider",
			"redirectTo": "/login",
		})
		return
	}

	var req onboardingRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}

	var imageURL string
	if payload.PrefilledProfile != nil {
		imageURL = payload.PrefilledProfile.ImageURL
	}

	user, session, err := h.auth.SignupWithConnection(r.Context(), auth.SignupInput{
		Email:    payload.OnboardingEmail,
		Username: req.Username,
		Name:     req.Name,
	}, auth.ProviderGitHub, payload.ProviderID, imageURL)
	if err != nil {
		h.writeSignupError(w, err)
		return
	}

	h.jars.Verification.Destroy(w)
	if err := h.flow.CommitSession(w, session, req.Remember, time.Time{}); err != nil {
		h.logger.Error("commit session failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	_ = cookies.SetToast(h.jars.Toast, w, cookies.Toast{
		Title:       "Welcome",
		Description: "Thanks for signing up!",
		Type:        "success",
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"redirectTo": safeRedirect(req.RedirectTo),
		"username":   user.Username,
	})
}

func (h *AuthHandler) writeSignupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrDuplicate):
		writeError(w, http.StatusBadRequest, "a user already exists with this username or email")
	default:
		h.logger.Error("signup failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
	}
}

type forgotPasswordRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
}

// ForgotPassword emails a reset code to the account's address.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}

	user, err := h.auth.UserByUsernameOrEmail(r.Context(), req.UsernameOrEmail)
	if err != nil {
		h.logger.Error("forgot password lookup failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	if user == nil {
		writeFieldError(w, "usernameOrEmail", "no user exists with this username or email")
		return
	}

	code, err := h.verifier.Prepare(r.Context(), auth.VerificationForgotPassword, user.Username, auth.CodePeriod)
	if err != nil {
		h.logger.Error("prepare reset code failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	verifyURL := auth.VerifyURL(h.baseURL, auth.VerificationForgotPassword, user.Username, code, "")
	msg := email.Message{
		To:      user.Email,
		Subject: "Epic Notes Password Reset",
		Text:    fmt.Sprintf("Here's your verification code: %s\n\nOr open this link: %s\n", code, verifyURL),
		HTML:    fmt.Sprintf("<p>Here's your verification code: <strong>%s</strong></p><p>Or <a href=%q>click here to reset your password</a>.</p>", code, verifyURL),
	}
	if err := h.emails.Send(r.Context(), msg); err != nil {
		h.logger.Error("send reset email failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not send reset email")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"redirectTo": auth.VerifyURL("", auth.VerificationForgotPassword, user.Username, "", ""),
	})
}

type resetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ResetPassword replaces the password for the user whose reset code was
// consumed. The username comes from the verification cookie written by that
// step.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload cookies.VerificationPayload
	if err := h.jars.Verification.Get(r, &payload); err != nil || payload.ResetPasswordUsername == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":      "reset link expired, request a new one",
			"redirectTo": "/forgot-password",
		})
		return
	}

	var req resetPasswordRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}
	if len(req.Password) < 6 {
		writeFieldError(w, "password", "password must be at least 6 characters")
		return
	}
	if req.Password != req.ConfirmPassword {
		writeFieldError(w, "confirmPassword", "passwords must match")
		return
	}

	if err := h.auth.ResetPassword(r.Context(), payload.ResetPasswordUsername, req.Password); err != nil {
		if errors.Is(err, auth.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("reset password failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	h.jars.Verification.Destroy(w)
	_ = cookies.SetToast(h.jars.Toast, w, cookies.Toast{
		Title:       "Password reset",
		Description: "Sign in with your new password.",
		Type:        "success",
	})
	writeJSON(w, http.StatusOK, map[string]string{"redirectTo": "/login"})
}

// handleOnboardingVerified is the post-consume step for onboarding codes:
// stash the now-verified email and send the user to the onboarding form.
func (h *AuthHandler) handleOnboardingVerified(w http.ResponseWriter, r *http.Request, target, redirectTo string) (string, error) {
	payload := cookies.VerificationPayload{OnboardingEmail: target}
	if err := h.jars.Verification.Commit(w, payload, cookies.CommitOptions{}); err != nil {
		return "", err
	}
	return "/onboarding", nil
}

// handleForgotPasswordVerified is the post-consume step for reset codes:
// stash the account's username and send the user to the new-password form.
func (h *AuthHandler) handleForgotPasswordVerified(w http.ResponseWriter, r *http.Request, target, redirectTo string) (string, error) {
	user, err := h.auth.UserByUsernameOrEmail(r.Context(), target)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "/forgot-password", nil
	}
	payload := cookies.VerificationPayload{ResetPasswordUsername: user.Username}
	if err := h.jars.Verification.Commit(w, payload, cookies.CommitOptions{}); err != nil {
		return "", err
	}
	return "/reset-password", nil
}
