package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"epicnotes/internal/auth"
	"epicnotes/internal/cookies"
	"epicnotes/internal/email"
)

// SettingsHandler serves profile settings that need verification round-trips,
// currently the change-email flow: a code goes to the NEW address, and the
// old address gets a notice once the change lands.
type SettingsHandler struct {
	auth     *auth.Service
	verifier *auth.Verifier
	emails   email.Sender
	jars     *cookies.Jars
	baseURL  string
	logger   *slog.Logger
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(svc *auth.Service, verifier *auth.Verifier, emails email.Sender, jars *cookies.Jars, baseURL string, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{auth: svc, verifier: verifier, emails: emails, jars: jars, baseURL: baseURL, logger: logger}
}

type changeEmailRequest struct {
	Email string `json:"email"`
}

// ChangeEmail starts the flow: the new address must be unused, and proof of
// control comes from the code emailed to it. The pending address is stashed
// in the verification cookie, keyed to this user via the challenge target.
func (h *SettingsHandler) ChangeEmail(w http.ResponseWriter, r *http.Request) {
	info := sessionFromContext(r.Context())

	var req changeEmailRequest
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
		h.logger.Error("change-email lookup failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	if existing != nil {
		writeFieldError(w, "email", "this email is already in use")
		return
	}

	target := info.User.ID.String()
	code, err := h.verifier.Prepare(r.Context(), auth.VerificationChangeEmail, target, auth.CodePeriod)
	if err != nil {
		h.logger.Error("prepare change-email code failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	payload := cookies.VerificationPayload{NewEmail: req.Email}
	if err := h.jars.Verification.Commit(w, payload, cookies.CommitOptions{}); err != nil {
		h.logger.Error("commit verification cookie failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	verifyURL := auth.VerifyURL(h.baseURL, auth.VerificationChangeEmail, target, code, "")
	msg := email.Message{
		To:      req.Email,
		Subject: "Epic Notes Email Change Verification",
		Text:    fmt.Sprintf("Here's your verification code: %s\n\nOr open this link: %s\n", code, verifyURL),
		HTML:    fmt.Sprintf("<p>Here's your verification code: <strong>%s</strong></p><p>Or <a href=%q>click here to verify</a>.</p>", code, verifyURL),
	}
	if err := h.emails.Send(r.Context(), msg); err != nil {
		h.logger.Error("send change-email code failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not send verification email")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"redirectTo": auth.VerifyURL("", auth.VerificationChangeEmail, target, "", ""),
	})
}

// handleChangeEmailVerified is the post-consume step: the target is the user
// id, the pending address comes from the verification cookie, and the old
// address gets a heads-up in case the account was hijacked.
func (h *SettingsHandler) handleChangeEmailVerified(w http.ResponseWriter, r *http.Request, target, redirectTo string) (string, error) {
	var payload cookies.VerificationPayload
	if err := h.jars.Verification.Get(r, &payload); err != nil || payload.NewEmail == "" {
		h.jars.Verification.Destroy(w)
		_ = cookies.SetToast(h.jars.Toast, w, cookies.Toast{
			Title:       "Expired",
			Description: "The email change took too long. Please start over.",
			Type:        "error",
		})
		return "/settings/profile", nil
	}
	h.jars.Verification.Destroy(w)

	info := sessionFromContext(r.Context())
	if info == nil || info.User.ID.String() != target {
		_ = cookies.SetToast(h.jars.Toast, w, cookies.Toast{
			Title:       "Expired",
			Description: "Please sign in and start the email change again.",
			Type:        "error",
		})
		return "/login", nil
	}

	oldEmail := info.User.Email
	if err := h.auth.ChangeEmail(r.Context(), info.User.ID, payload.NewEmail); err != nil {
		return "", err
	}

	notice := email.Message{
		To:      oldEmail,
		Subject: "Epic Notes email changed",
		Text: fmt.Sprintf("We're writing to let you know that your Epic Notes email has been changed to %s. "+
			"If you did not request this change, please contact support immediately.\n", payload.NewEmail),
	}
	if err := h.emails.Send(r.Context(), notice); err != nil {
		// The change already landed; a failed notice is logged, not fatal.
		h.logger.Error("send change notice failed", slog.String("error", err.Error()))
	}

	_ = cookies.SetToast(h.jars.Toast, w, cookies.Toast{
		Title:       "Email changed",
		Description: "Your email has been changed to " + payload.NewEmail + ".",
		Type:        "success",
	})
	return "/settings/profile", nil
}
