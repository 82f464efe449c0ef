package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"epicnotes/internal/auth"
	"epicnotes/internal/cookies"
)

// TwoFactorHandler manages authenticator enrollment: generating the shared
// secret, confirming the first code, and disabling 2FA.
type TwoFactorHandler struct {
	verifier *auth.Verifier
	jars     *cookies.Jars
	flow     *sessionFlow
	issuer   string
	logger   *slog.Logger
}

// NewTwoFactorHandler creates a new TwoFactorHandler.
func NewTwoFactorHandler(verifier *auth.Verifier, jars *cookies.Jars, flow *sessionFlow, issuer string, logger *slog.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{verifier: verifier, jars: jars, flow: flow, issuer: issuer, logger: logger}
}

// Status reports whether 2FA is enabled for the current user.
func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	info := sessionFromContext(r.Context())

	enabled, err := h.verifier.TwoFactorEnabled(r.Context(), info.User.ID.String())
	if err != nil {
		h.logger.Error("2fa status failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

// Enable starts enrollment: a new secret is stored as a pending record and
// returned with its otpauth URI for the authenticator app to scan. 2FA is
// not active until Confirm succeeds.
func (h *TwoFactorHandler) Enable(w http.ResponseWriter, r *http.Request) {
	info := sessionFromContext(r.Context())

	record, err := h.verifier.PrepareTwoFactor(r.Context(), info.User.ID.String())
	if err != nil {
		h.logger.Error("prepare 2fa failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"secret":     record.Secret,
		"otpauthUri": h.otpauthURI(info.User.Email, record),
	})
}

type twoFactorConfirmRequest struct {
	Code string `json:"code"`
}

// Confirm checks the first code from the authenticator app and activates
// 2FA. The current session's verified time is refreshed so the user is not
// immediately challenged again.
func (h *TwoFactorHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	info := sessionFromContext(r.Context())

	var req twoFactorConfirmRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}

	ok, err := h.verifier.ConfirmTwoFactorSetup(r.Context(), req.Code, info.User.ID.String())
	if err != nil {
		h.logger.Error("confirm 2fa failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	if !ok {
		writeFieldError(w, "code", "invalid code")
		return
	}

	if err := h.flow.CommitSession(w, info.Session, info.Remember, h.flow.now()); err != nil {
		h.logger.Error("commit session failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	_ = cookies.SetToast(h.jars.Toast, w, cookies.Toast{
		Title:       "Enabled",
		Description: "Two-factor authentication has been enabled.",
		Type:        "success",
	})
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": true})
}

// Disable removes the standing 2FA record. Guarded by the recent
// verification middleware so a stolen session cannot switch 2FA off.
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	info := sessionFromContext(r.Context())

	if err := h.verifier.DisableTwoFactor(r.Context(), info.User.ID.String()); err != nil {
		h.logger.Error("disable 2fa failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	_ = cookies.SetToast(h.jars.Toast, w, cookies.Toast{
		Title:       "Disabled",
		Description: "Two-factor authentication has been disabled.",
		Type:        "success",
	})
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": false})
}

func (h *TwoFactorHandler) otpauthURI(accountName string, record *auth.Verification) string {
	q := url.Values{}
	q.Set("secret", record.Secret)
	q.Set("issuer", h.issuer)
	q.Set("algorithm", record.Algorithm)
	q.Set("digits", fmt.Sprintf("%d", record.Digits))
	q.Set("period", fmt.Sprintf("%d", int(record.Period.Seconds())))
	return fmt.Sprintf("otpauth://totp/%s:%s?%s",
		url.PathEscape(h.issuer), url.PathEscape(accountName), q.Encode())
}
