package cookies

import "time"

// Cookie names follow the original Epic Notes app.
const (
	SessionCookieName      = "en_session"
	ConnectionCookieName   = "en_connection"
	VerificationCookieName = "en_verification"
	ToastCookieName        = "en_toast"
)

// TransientMaxAge bounds the OAuth state and verification-flow cookies.
const TransientMaxAge = 10 * time.Minute

// SessionPayload is the primary auth cookie: the persisted session id, the
// time of the last successful 2FA confirmation, and whether the user asked
// to stay signed in. Remember is carried so later re-commits (e.g. updating
// VerifiedTime) keep the cookie's lifetime.
type SessionPayload struct {
	SessionID    string    `json:"sessionId"`
	VerifiedTime time.Time `json:"verifiedTime,omitzero"`
	Remember     bool      `json:"remember,omitempty"`
}

// ConnectionPayload carries the OAuth state nonce across the provider
// round-trip.
type ConnectionPayload struct {
	State      string `json:"state"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

// PrefilledProfile is the provider profile stashed for the
// onboarding-with-provider form.
type PrefilledProfile struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// VerificationPayload carries cross-step flow data: which fields are set
// depends on the flow (onboarding, OAuth onboarding, 2FA login, password
// reset, change email).
type VerificationPayload struct {
	OnboardingEmail       string            `json:"onboardingEmail,omitempty"`
	PrefilledProfile      *PrefilledProfile `json:"prefilledProfile,omitempty"`
	ProviderID            string            `json:"providerId,omitempty"`
	UnverifiedSessionID   string            `json:"unverifiedSessionId,omitempty"`
	Remember              bool              `json:"remember,omitempty"`
	ResetPasswordUsername string            `json:"resetPasswordUsername,omitempty"`
	NewEmail              string            `json:"newEmail,omitempty"`
}
