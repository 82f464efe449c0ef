package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"epicnotes/internal/auth"
	"epicnotes/internal/cookies"
)

// sessionFlow owns the step between "credentials accepted" and "primary
// cookie committed". When the user has 2FA enabled the session is minted but
// only its id is stashed in the short-lived verification cookie; the primary
// cookie is not written until the TOTP challenge passes.
type sessionFlow struct {
	auth *auth.Service
	jars *cookies.Jars
	now  func() time.Time
}

func newSessionFlow(svc *auth.Service, jars *cookies.Jars) *sessionFlow {
	return &sessionFlow{auth: svc, jars: jars, now: time.Now}
}

// HandleNewSession decides whether a freshly minted session needs the 2FA
// detour. It writes the appropriate cookie and returns the path the client
// should navigate to next.
func (f *sessionFlow) HandleNewSession(w http.ResponseWriter, r *http.Request, session *auth.Session, remember bool, redirectTo string) (string, error) {
	// A still-fresh verified time from an earlier challenge rides along in
	// the presented cookie and skips the re-prompt, even when the session it
	// belonged to is gone.
	var verifiedTime time.Time
	var presented cookies.SessionPayload
	if err := f.jars.Session.Get(r, &presented); err == nil {
		verifiedTime = presented.VerifiedTime
	}

	required, err := f.auth.ShouldRequestTwoFA(r.Context(), session.UserID, verifiedTime)
	if err != nil {
		return "", err
	}

	if required {
		payload := cookies.VerificationPayload{
			UnverifiedSessionID: session.ID.String(),
			Remember:            remember,
		}
		if err := f.jars.Verification.Commit(w, payload, cookies.CommitOptions{}); err != nil {
			return "", fmt.Errorf("commit verification cookie: %w", err)
		}
		return auth.VerifyURL("", auth.VerificationTwoFactor, session.UserID.String(), "", safeRedirect(redirectTo)), nil
	}

	if err := f.CommitSession(w, session, remember, verifiedTime); err != nil {
		return "", err
	}
	return safeRedirect(redirectTo), nil
}

// CommitSession writes the primary cookie. With remember the cookie is
// pinned to the session's expiration; otherwise it lasts the browser
// session.
func (f *sessionFlow) CommitSession(w http.ResponseWriter, session *auth.Session, remember bool, verifiedTime time.Time) error {
	payload := cookies.SessionPayload{
		SessionID:    session.ID.String(),
		VerifiedTime: verifiedTime,
		Remember:     remember,
	}
	var opts cookies.CommitOptions
	if remember {
		opts.Expires = session.ExpirationDate
	}
	if err := f.jars.Session.Commit(w, payload, opts); err != nil {
		return fmt.Errorf("commit session cookie: %w", err)
	}
	return nil
}

// HandleTwoFactorVerified finishes a passed TOTP challenge. Two cases:
// a pending login (the unverified session id was stashed at login time) and
// a step-up for an already signed-in user refreshing their verified time.
func (f *sessionFlow) HandleTwoFactorVerified(w http.ResponseWriter, r *http.Request, redirectTo string) (string, error) {
	var payload cookies.VerificationPayload
	stashed := f.jars.Verification.Get(r, &payload) == nil
	f.jars.Verification.Destroy(w)

	if stashed && payload.UnverifiedSessionID != "" {
		sessionID, err := uuid.Parse(payload.UnverifiedSessionID)
		if err != nil {
			return f.expiredLogin(w), nil
		}
		session, err := f.auth.ValidateSession(r.Context(), sessionID)
		if err != nil {
			return "", err
		}
		if session == nil {
			return f.expiredLogin(w), nil
		}
		if err := f.CommitSession(w, session, payload.Remember, f.now()); err != nil {
			return "", err
		}
		return safeRedirect(redirectTo), nil
	}

	// Step-up: refresh the verified time on the current session.
	if info := sessionFromContext(r.Context()); info != nil {
		if err := f.CommitSession(w, info.Session, info.Remember, f.now()); err != nil {
			return "", err
		}
		return safeRedirect(redirectTo), nil
	}

	return f.expiredLogin(w), nil
}

func (f *sessionFlow) expiredLogin(w http.ResponseWriter) string {
	_ = cookies.SetToast(f.jars.Toast, w, cookies.Toast{
		Title:       "Signed out",
		Description: "Your sign-in took too long. Please try again.",
		Type:        "error",
	})
	return "/login"
}
