package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrDuplicate is returned when an insert collides with a unique constraint
// (username, email, or provider identity).
var ErrDuplicate = errors.New("auth: duplicate record")

// Repository defines the persistence contract for users, sessions,
// verifications, and connections. Lookups return (nil, nil) when no row
// matches.
type Repository interface {
	// User operations
	FindUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	// CreateUserWithPassword inserts the user and password hash atomically.
	CreateUserWithPassword(ctx context.Context, user User, passwordHash []byte) (User, error)
	// CreateUserWithConnection inserts the user and OAuth connection atomically.
	CreateUserWithConnection(ctx context.Context, user User, conn Connection) (User, error)
	UpdateUserEmail(ctx context.Context, id uuid.UUID, email string) error

	// Password operations. FindPasswordHash returns (nil, nil) for users
	// that only authenticate through connections.
	FindPasswordHash(ctx context.Context, userID uuid.UUID) ([]byte, error)
	UpsertPasswordHash(ctx context.Context, userID uuid.UUID, hash []byte) error

	// Session operations
	CreateSession(ctx context.Context, session Session) error
	FindSession(ctx context.Context, id uuid.UUID) (*Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	DeleteUserSessions(ctx context.Context, userID uuid.UUID) (int64, error)

	// Verification operations. Upsert replaces any outstanding challenge
	// for the same (target, type). Delete returns the number of rows
	// removed so racing consumers of a one-time code can detect a loss.
	UpsertVerification(ctx context.Context, v Verification) error
	FindVerification(ctx context.Context, target string, typ VerificationType) (*Verification, error)
	DeleteVerification(ctx context.Context, target string, typ VerificationType) (int64, error)

	// Connection operations
	FindConnection(ctx context.Context, providerName, providerID string) (*Connection, error)
	ListUserConnections(ctx context.Context, userID uuid.UUID) ([]Connection, error)
	CreateConnection(ctx context.Context, conn Connection) error
	DeleteConnection(ctx context.Context, id, userID uuid.UUID) (int64, error)
}
