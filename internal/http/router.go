// Package http wires the authentication and notes flows into a chi router.
// Handlers speak JSON; state between requests travels in signed cookies.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"epicnotes/internal/auth"
	"epicnotes/internal/cookies"
	"epicnotes/internal/email"
	"epicnotes/internal/notes"
)

// Dependencies carries everything the router needs.
type Dependencies struct {
	Logger         *slog.Logger
	Auth           *auth.Service
	Verifier       *auth.Verifier
	GitHub         *auth.GitHubAuthenticator
	Emails         email.Sender
	Jars           *cookies.Jars
	Notes          notes.Repository
	BaseURL        string
	AppName        string
	AllowedOrigins []string
	Production     bool
}

// NewRouter builds the HTTP routing tree.
func NewRouter(deps Dependencies) http.Handler {
	flow := newSessionFlow(deps.Auth, deps.Jars)

	authHandler := NewAuthHandler(deps.Auth, deps.Verifier, deps.Emails, deps.Jars, flow, deps.BaseURL, deps.Logger)
	oauthHandler := NewOAuthHandler(deps.Auth, deps.GitHub, deps.Jars, flow, deps.Logger)
	connectionsHandler := NewConnectionsHandler(deps.Auth, deps.GitHub, deps.Logger)
	twoFactorHandler := NewTwoFactorHandler(deps.Verifier, deps.Jars, flow, deps.AppName, deps.Logger)
	settingsHandler := NewSettingsHandler(deps.Auth, deps.Verifier, deps.Emails, deps.Jars, deps.BaseURL, deps.Logger)
	notesHandler := NewNotesHandler(deps.Notes, deps.Logger)

	verifyHandler := NewVerifyHandler(deps.Verifier, deps.Logger)
	verifyHandler.Register(auth.VerificationOnboarding, authHandler.handleOnboardingVerified)
	verifyHandler.Register(auth.VerificationForgotPassword, authHandler.handleForgotPasswordVerified)
	verifyHandler.Register(auth.VerificationChangeEmail, settingsHandler.handleChangeEmailVerified)
	verifyHandler.Register(auth.VerificationTwoFactor, func(w http.ResponseWriter, req *http.Request, _, redirectTo string) (string, error) {
		return flow.HandleTwoFactorVerified(w, req, redirectTo)
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(RequestLogger(deps.Logger))
	r.Use(SecurityHeaders(deps.Production))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(LoadSession(deps.Auth, deps.Jars))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/toast", func(w http.ResponseWriter, req *http.Request) {
		if toast := cookies.TakeToast(deps.Jars.Toast, w, req); toast != nil {
			writeJSON(w, http.StatusOK, toast)
			return
		}
		writeJSON(w, http.StatusOK, nil)
	})

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(RequireAnonymous)
			r.Post("/login", authHandler.Login)
			r.Post("/signup", authHandler.Signup)
			r.Post("/onboarding", authHandler.Onboarding)
			r.Post("/onboarding/github", authHandler.OnboardingGitHub)
			r.Post("/forgot-password", authHandler.ForgotPassword)
			r.Post("/reset-password", authHandler.ResetPassword)
		})

		r.Post("/logout", authHandler.Logout)

		// The OAuth routes serve both anonymous logins and signed-in users
		// linking a connection, so neither guard applies.
		r.Get("/github", oauthHandler.Initiate)
		r.Post("/github", oauthHandler.Initiate)
		r.Get("/github/callback", oauthHandler.Callback)
	})

	r.Get("/verify", verifyHandler.Verify)
	r.Post("/verify", verifyHandler.Verify)

	r.Group(func(r chi.Router) {
		r.Use(RequireUser)

		r.Get("/me", authHandler.Me)

		r.Route("/settings/profile", func(r chi.Router) {
			r.Get("/connections", connectionsHandler.List)
			r.Delete("/connections/{connectionID}", connectionsHandler.Delete)

			r.Get("/two-factor", twoFactorHandler.Status)
			r.Post("/two-factor/enable", twoFactorHandler.Enable)
			r.Post("/two-factor/verify", twoFactorHandler.Confirm)

			r.Group(func(r chi.Router) {
				r.Use(RequireRecentVerification(deps.Auth))
				r.Post("/change-email", settingsHandler.ChangeEmail)
				r.Post("/two-factor/disable", twoFactorHandler.Disable)
			})
		})

		r.Route("/notes", func(r chi.Router) {
			r.Get("/", notesHandler.List)
			r.Post("/", notesHandler.Create)
			r.Get("/{noteID}", notesHandler.Get)
			r.Put("/{noteID}", notesHandler.Update)
			r.Delete("/{noteID}", notesHandler.Delete)
		})
	})

	return r
}
