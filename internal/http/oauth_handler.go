package http

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"epicnotes/internal/auth"
	"epicnotes/internal/cookies"
)

// OAuthHandler runs the GitHub OAuth round-trip: initiating the consent
// redirect with a signed state nonce, and the callback that turns the
// provider identity into a login, a link, or an onboarding detour.
type OAuthHandler struct {
	auth   *auth.Service
	github *auth.GitHubAuthenticator
	jars   *cookies.Jars
	flow   *sessionFlow
	logger *slog.Logger
}

// NewOAuthHandler creates a new OAuthHandler.
func NewOAuthHandler(svc *auth.Service, github *auth.GitHubAuthenticator, jars *cookies.Jars, flow *sessionFlow, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{auth: svc, github: github, jars: jars, flow: flow, logger: logger}
}

// Initiate stashes a random state nonce in the connection cookie and sends
// the browser to GitHub's consent page. Works for both anonymous logins and
// signed-in users linking a connection.
func (h *OAuthHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	state, err := auth.GenerateState()
	if err != nil {
		h.logger.Error("generate state failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	payload := cookies.ConnectionPayload{
		State:      state,
		RedirectTo: r.URL.Query().Get("redirectTo"),
	}
	if err := h.jars.Connection.Commit(w, payload, cookies.CommitOptions{}); err != nil {
		h.logger.Error("commit connection cookie failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusFound)
}

// Callback handles GitHub's redirect back. The state in the query must match
// the one in the connection cookie; the cookie is destroyed either way so a
// nonce can never be replayed.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var payload cookies.ConnectionPayload
	err := h.jars.Connection.Get(r, &payload)
	h.jars.Connection.Destroy(w)

	state := r.URL.Query().Get("state")
	if err != nil || state == "" ||
		subtle.ConstantTimeCompare([]byte(state), []byte(payload.State)) != 1 {
		redirectWithToast(w, r, h.jars.Toast, "/login", cookies.Toast{
			Title:       "Auth failed",
			Description: "The sign-in request could not be validated. Please try again.",
			Type:        "error",
		})
		return
	}

	profile, err := h.github.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		h.logger.Error("github exchange failed", slog.String("error", err.Error()))
		redirectWithToast(w, r, h.jars.Toast, "/login", cookies.Toast{
			Title:       "Auth failed",
			Description: "There was an error authenticating with GitHub.",
			Type:        "error",
		})
		return
	}

	existing, err := h.auth.Connection(r.Context(), auth.ProviderGitHub, profile.ID)
	if err != nil {
		h.logger.Error("find connection failed", slog.String("error", err.Error()))
		h.serverErrorRedirect(w, r)
		return
	}
	info := sessionFromContext(r.Context())

	// Identity already linked somewhere, and a user is signed in.
	if existing != nil && info != nil {
		if existing.UserID == info.User.ID {
			redirectWithToast(w, r, h.jars.Toast, "/settings/profile/connections", cookies.Toast{
				Title:       "Already connected",
				Description: "Your " + profile.Username + " GitHub account is already connected.",
				Type:        "message",
			})
			return
		}
		redirectWithToast(w, r, h.jars.Toast, "/settings/profile/connections", cookies.Toast{
			Title:       "Already connected",
			Description: "The " + profile.Username + " GitHub account is already connected to another account.",
			Type:        "error",
		})
		return
	}

	// Signed-in user linking a new connection.
	if info != nil {
		if err := h.auth.LinkConnection(r.Context(), info.User.ID, auth.ProviderGitHub, profile.ID); err != nil {
			if errors.Is(err, auth.ErrDuplicate) {
				redirectWithToast(w, r, h.jars.Toast, "/settings/profile/connections", cookies.Toast{
					Title:       "Already connected",
					Description: "This GitHub account is already connected to another account.",
					Type:        "error",
				})
				return
			}
			h.logger.Error("link connection failed", slog.String("error", err.Error()))
			h.serverErrorRedirect(w, r)
			return
		}
		redirectWithToast(w, r, h.jars.Toast, "/settings/profile/connections", cookies.Toast{
			Title:       "Connected",
			Description: "Your " + profile.Username + " GitHub account has been connected.",
			Type:        "success",
		})
		return
	}

	// Anonymous visitor with a linked identity: log them in.
	if existing != nil {
		h.loginForUser(w, r, existing.UserID, payload.RedirectTo)
		return
	}

	// No connection yet, but the provider email matches a local account:
	// link and log in.
	user, err := h.auth.UserByEmail(r.Context(), profile.Email)
	if err != nil {
		h.logger.Error("find user by email failed", slog.String("error", err.Error()))
		h.serverErrorRedirect(w, r)
		return
	}
	if user != nil {
		if err := h.auth.LinkConnection(r.Context(), user.ID, auth.ProviderGitHub, profile.ID); err != nil {
			h.logger.Error("link connection failed", slog.String("error", err.Error()))
			h.serverErrorRedirect(w, r)
			return
		}
		_ = cookies.SetToast(h.jars.Toast, w, cookies.Toast{
			Title:       "Connected",
			Description: "Your " + profile.Username + " GitHub account has been connected.",
			Type:        "message",
		})
		h.loginForUser(w, r, user.ID, payload.RedirectTo)
		return
	}

	// Brand new identity: stash the verified provider profile and detour
	// through onboarding to pick a username.
	verification := cookies.VerificationPayload{
		OnboardingEmail: profile.Email,
		ProviderID:      profile.ID,
		PrefilledProfile: &cookies.PrefilledProfile{
			Email:    profile.Email,
			Username: auth.SanitizeUsername(profile.Username),
			Name:     profile.Name,
			ImageURL: profile.ImageURL,
		},
	}
	if err := h.jars.Verification.Commit(w, verification, cookies.CommitOptions{}); err != nil {
		h.logger.Error("commit verification cookie failed", slog.String("error", err.Error()))
		h.serverErrorRedirect(w, r)
		return
	}
	http.Redirect(w, r, "/onboarding/github", http.StatusSeeOther)
}

// loginForUser mints a session for an OAuth-authenticated user and routes
// through the usual new-session path, 2FA gate included. OAuth logins do not
// offer a remember checkbox; the cookie lasts the browser session.
func (h *OAuthHandler) loginForUser(w http.ResponseWriter, r *http.Request, userID uuid.UUID, redirectTo string) {
	session, err := h.auth.CreateSession(r.Context(), userID)
	if err != nil {
		h.logger.Error("create session failed", slog.String("error", err.Error()))
		h.serverErrorRedirect(w, r)
		return
	}
	target, err := h.flow.HandleNewSession(w, r, session, false, redirectTo)
	if err != nil {
		h.logger.Error("handle new session failed", slog.String("error", err.Error()))
		h.serverErrorRedirect(w, r)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *OAuthHandler) serverErrorRedirect(w http.ResponseWriter, r *http.Request) {
	redirectWithToast(w, r, h.jars.Toast, "/login", cookies.Toast{
		Title:       "Auth failed",
		Description: "Something went wrong. Please try again.",
		Type:        "error",
	})
}
