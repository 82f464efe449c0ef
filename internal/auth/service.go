package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrValidation marks input errors the caller should surface as field-level
// messages rather than server errors.
var ErrValidation = errors.New("validation error")

// dummyHash keeps login timing uniform when the username does not exist.
// bcrypt hash of an unguessable throwaway value.
var dummyHash = []byte("$2a$10$Xt2aBIAYW0eKLAa5Tz5pU.1FJGmMEJ1Ak0MAGKFxnTMFV5Xlr9Npu")

// Service provides the authentication business logic: credential checks,
// session issuance, the two-factor gate, and connection policy.
type Service struct {
	repo           Repository
	sessionTTL     time.Duration
	reverifyWindow time.Duration
	now            func() time.Time
}

// NewService creates a new auth Service. reverifyWindow bounds how long a
// 2FA confirmation stays fresh before login prompts again.
func NewService(repo Repository, sessionTTL, reverifyWindow time.Duration) *Service {
	if sessionTTL == 0 {
		sessionTTL = 30 * 24 * time.Hour
	}
	if reverifyWindow == 0 {
		reverifyWindow = 2 * time.Hour
	}
	return &Service{
		repo:           repo,
		sessionTTL:     sessionTTL,
		reverifyWindow: reverifyWindow,
		now:            time.Now,
	}
}

// Login verifies the username/password pair. It returns (nil, nil) on any
// mismatch so callers cannot distinguish a wrong username from a wrong
// password.
func (s *Service) Login(ctx context.Context, username, password string) (*User, error) {
	user, err := s.repo.FindUserByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	hash := dummyHash
	if user != nil {
		stored, err := s.repo.FindPasswordHash(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("find password: %w", err)
		}
		if stored != nil {
			hash = stored
		} else {
			// connection-only account; burn a compare anyway
			user = nil
		}
	}

	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return nil, nil
	}
	if user == nil {
		return nil, nil
	}
	return user, nil
}

// CreateSession mints a persisted session for the user.
func (s *Service) CreateSession(ctx context.Context, userID uuid.UUID) (*Session, error) {
	now := s.now()
	session := Session{
		ID:             uuid.New(),
		UserID:         userID,
		ExpirationDate: now.Add(s.sessionTTL),
		CreatedAt:      now,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &session, nil
}

// ValidateSession returns the session if it exists and has not expired.
// Expired rows are deleted best-effort and reported as missing.
func (s *Service) ValidateSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	session, err := s.repo.FindSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}
	if session.Expired(s.now()) {
		_ = s.repo.DeleteSession(ctx, session.ID)
		return nil, nil
	}
	return session, nil
}

// UserForSession resolves the owning user of a valid session.
func (s *Service) UserForSession(ctx context.Context, id uuid.UUID) (*User, error) {
	session, err := s.ValidateSession(ctx, id)
	if err != nil || session == nil {
		return nil, err
	}
	return s.repo.FindUserByID(ctx, session.UserID)
}

// Logout deletes the session. It succeeds even when the session is already
// gone.
func (s *Service) Logout(ctx context.Context, id uuid.UUID) {
	_ = s.repo.DeleteSession(ctx, id)
}

// SignupInput collects the fields required to create a local account.
type SignupInput struct {
	Email    string
	Username string
	Name     string
	Password string
}

// Signup hashes the password and creates the user, password, and first
// session. The email must already have been verified via the onboarding
// flow.
func (s *Service) Signup(ctx context.Context, input SignupInput) (*User, *Session, error) {
	user, err := s.newUserFromInput(input.Email, input.Username, input.Name)
	if err != nil {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.repo.CreateUserWithPassword(ctx, user, hash)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.CreateSession(ctx, created.ID)
	if err != nil {
		return nil, nil, err
	}
	return &created, session, nil
}

// SignupWithConnection creates a user whose only credential is an OAuth
// connection, in the same transaction, then mints the first session.
func (s *Service) SignupWithConnection(ctx context.Context, input SignupInput, providerName, providerID, imageURL string) (*User, *Session, error) {
	user, err := s.newUserFromInput(input.Email, input.Username, input.Name)
	if err != nil {
		return nil, nil, err
	}
	user.ImageURL = imageURL

	conn := Connection{
		ID:           uuid.New(),
		UserID:       user.ID,
		ProviderName: providerName,
		ProviderID:   providerID,
		CreatedAt:    user.CreatedAt,
	}

	created, err := s.repo.CreateUserWithConnection(ctx, user, conn)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.CreateSession(ctx, created.ID)
	if err != nil {
		return nil, nil, err
	}
	return &created, session, nil
}

func (s *Service) newUserFromInput(email, username, name string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.ToLower(strings.TrimSpace(username))

	if !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if !usernamePattern.MatchString(username) {
		return User{}, fmt.Errorf("%w: username must be 3-20 characters, letters, digits, and underscores", ErrValidation)
	}

	now := s.now()
	return User{
		ID:        uuid.New(),
		Email:     email,
		Username:  username,
		Name:      strings.TrimSpace(name),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,20}$`)

// ShouldRequestTwoFA decides whether a freshly minted session must pass the
// TOTP challenge before the primary cookie may reference it. True when the
// user has 2FA enabled and the last confirmation is older than the
// re-verification window.
func (s *Service) ShouldRequestTwoFA(ctx context.Context, userID uuid.UUID, verifiedTime time.Time) (bool, error) {
	verification, err := s.repo.FindVerification(ctx, userID.String(), VerificationTwoFactor)
	if err != nil {
		return false, fmt.Errorf("find 2fa verification: %w", err)
	}
	if verification == nil {
		return false, nil
	}
	return s.now().Sub(verifiedTime) > s.reverifyWindow, nil
}

// ResetPassword rehashes and replaces the user's password, then revokes all
// of their sessions.
func (s *Service) ResetPassword(ctx context.Context, username, newPassword string) error {
	user, err := s.repo.FindUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("%w: unknown user", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpsertPasswordHash(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	if _, err := s.repo.DeleteUserSessions(ctx, user.ID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// ChangeEmail updates the user's email after the new address was verified.
func (s *Service) ChangeEmail(ctx context.Context, userID uuid.UUID, newEmail string) error {
	newEmail = strings.ToLower(strings.TrimSpace(newEmail))
	if !strings.Contains(newEmail, "@") {
		return fmt.Errorf("%w: invalid email", ErrValidation)
	}
	return s.repo.UpdateUserEmail(ctx, userID, newEmail)
}

// CanDeleteConnection reports whether removing one connection still leaves
// the user with a way to authenticate: a password, or another connection.
func (s *Service) CanDeleteConnection(ctx context.Context, userID uuid.UUID) (bool, error) {
	hash, err := s.repo.FindPasswordHash(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("find password: %w", err)
	}
	if hash != nil {
		return true, nil
	}

	conns, err := s.repo.ListUserConnections(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("list connections: %w", err)
	}
	return len(conns) > 1, nil
}

// DeleteConnection removes the connection after checking the
// last-auth-factor invariant. ErrValidation when deletion would lock the
// user out or the connection is not theirs.
func (s *Service) DeleteConnection(ctx context.Context, connectionID, userID uuid.UUID) error {
	ok, err := s.CanDeleteConnection(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: you cannot delete your last connection unless you have a password", ErrValidation)
	}

	count, err := s.repo.DeleteConnection(ctx, connectionID, userID)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: connection not found", ErrValidation)
	}
	return nil
}

// User fetches a user by id.
func (s *Service) User(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.FindUserByID(ctx, id)
}

// UserByEmail fetches a user by email address.
func (s *Service) UserByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// UserByUsernameOrEmail resolves the forgot-password target, which may be
// either identifier.
func (s *Service) UserByUsernameOrEmail(ctx context.Context, target string) (*User, error) {
	target = strings.ToLower(strings.TrimSpace(target))
	if strings.Contains(target, "@") {
		return s.repo.FindUserByEmail(ctx, target)
	}
	return s.repo.FindUserByUsername(ctx, target)
}

// Connection fetches a connection by external identity.
func (s *Service) Connection(ctx context.Context, providerName, providerID string) (*Connection, error) {
	return s.repo.FindConnection(ctx, providerName, providerID)
}

// Connections lists the user's connections.
func (s *Service) Connections(ctx context.Context, userID uuid.UUID) ([]Connection, error) {
	return s.repo.ListUserConnections(ctx, userID)
}

// LinkConnection attaches an external identity to an existing user.
func (s *Service) LinkConnection(ctx context.Context, userID uuid.UUID, providerName, providerID string) error {
	return s.repo.CreateConnection(ctx, Connection{
		ID:           uuid.New(),
		UserID:       userID,
		ProviderName: providerName,
		ProviderID:   providerID,
		CreatedAt:    s.now(),
	})
}
