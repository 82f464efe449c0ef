package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"epicnotes/internal/auth"
	"epicnotes/internal/cookies"
)

type contextKey string

const sessionInfoKey contextKey = "sessionInfo"

// sessionInfo is the authenticated request state the session middleware
// resolves from the primary cookie.
type sessionInfo struct {
	User         *auth.User
	Session      *auth.Session
	VerifiedTime time.Time
	Remember     bool
}

func sessionFromContext(ctx context.Context) *sessionInfo {
	info, _ := ctx.Value(sessionInfoKey).(*sessionInfo)
	return info
}

// RequestLogger logs one line per request with method, path, status, and
// duration.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// SecurityHeaders sets baseline response headers. HSTS is only sent when the
// app terminates TLS (production).
func SecurityHeaders(production bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "same-origin")
			if production {
				h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoadSession resolves the primary cookie into the request context. Cookies
// that reference a missing or expired session are destroyed so the browser
// stops presenting them.
func LoadSession(svc *auth.Service, jars *cookies.Jars) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var payload cookies.SessionPayload
			if err := jars.Session.Get(r, &payload); err != nil {
				next.ServeHTTP(w, r)
				return
			}

			sessionID, err := uuid.Parse(payload.SessionID)
			if err != nil {
				jars.Session.Destroy(w)
				next.ServeHTTP(w, r)
				return
			}

			session, err := svc.ValidateSession(r.Context(), sessionID)
			if err != nil || session == nil {
				jars.Session.Destroy(w)
				next.ServeHTTP(w, r)
				return
			}

			user, err := svc.User(r.Context(), session.UserID)
			if err != nil || user == nil {
				jars.Session.Destroy(w)
				next.ServeHTTP(w, r)
				return
			}

			info := &sessionInfo{
				User:         user,
				Session:      session,
				VerifiedTime: payload.VerifiedTime,
				Remember:     payload.Remember,
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionInfoKey, info)))
		})
	}
}

// RequireUser rejects unauthenticated requests with a login redirect that
// carries the original destination.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sessionFromContext(r.Context()) == nil {
			target := r.URL.Path
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			q := url.Values{"redirectTo": {target}}
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error":      "unauthorized",
				"redirectTo": "/login?" + q.Encode(),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAnonymous sends already-authenticated users back to the app.
func RequireAnonymous(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sessionFromContext(r.Context()) != nil {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRecentVerification gates sensitive settings behind a fresh 2FA
// confirmation. Users without 2FA pass through; users with 2FA must have
// confirmed within the re-verification window or are sent to the challenge.
func RequireRecentVerification(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := sessionFromContext(r.Context())
			if info == nil {
				RequireUser(next).ServeHTTP(w, r)
				return
			}

			stale, err := svc.ShouldRequestTwoFA(r.Context(), info.User.ID, info.VerifiedTime)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "something went wrong")
				return
			}
			if stale {
				target := r.URL.Path
				if r.URL.RawQuery != "" {
					target += "?" + r.URL.RawQuery
				}
				writeJSON(w, http.StatusForbidden, map[string]string{
					"error":      "please reverify your account",
					"redirectTo": auth.VerifyURL("", auth.VerificationTwoFactor, info.User.ID.String(), "", target),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
