package auth

import (
	"time"

	"github.com/google/uuid"
)

// User is a local account. The password hash lives in its own table and is
// only surfaced through Repository.FindPasswordHash.
type User struct {
	ID        uuid.UUID
	Email     string
	Username  string
	Name      string
	ImageURL  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is a persisted proof of authentication referenced by an opaque id
// stored client-side in the primary cookie.
type Session struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	ExpirationDate time.Time
	CreatedAt      time.Time
}

// Expired reports whether the session is no longer valid at the given time.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpirationDate.After(now)
}

// VerificationType names the purpose of a one-time code challenge.
type VerificationType string

const (
	VerificationOnboarding     VerificationType = "onboarding"
	VerificationForgotPassword VerificationType = "forgot-password"
	VerificationChangeEmail    VerificationType = "change-email"
	VerificationTwoFactor      VerificationType = "2fa"

	// VerificationTwoFactorSetup is the transient record used while a user
	// is enrolling an authenticator app. Once the first code is confirmed
	// it is promoted to VerificationTwoFactor.
	VerificationTwoFactorSetup VerificationType = "2fa-verify"
)

// ParseVerificationType validates the externally supplied type parameter of
// the verify endpoint. The setup type is internal and deliberately excluded.
func ParseVerificationType(raw string) (VerificationType, bool) {
	switch VerificationType(raw) {
	case VerificationOnboarding, VerificationForgotPassword, VerificationChangeEmail, VerificationTwoFactor:
		return VerificationType(raw), true
	}
	return "", false
}

// Verification is an outstanding one-time code challenge keyed by
// (target, type). A nil ExpiresAt never expires (used for 2FA enrollment).
type Verification struct {
	Target    string
	Type      VerificationType
	Secret    string
	Algorithm string
	Digits    int
	Period    time.Duration
	CharSet   string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Usable reports whether the verification may still be consumed.
func (v Verification) Usable(now time.Time) bool {
	return v.ExpiresAt == nil || v.ExpiresAt.After(now)
}

// ProviderGitHub is the only OAuth provider currently wired up.
const ProviderGitHub = "github"

// Connection links a local user to an external OAuth identity.
// (ProviderName, ProviderID) is unique across all users.
type Connection struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	ProviderName string
	ProviderID   string
	CreatedAt    time.Time
}
