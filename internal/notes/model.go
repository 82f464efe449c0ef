// Package notes is the thin CRUD layer the auth core protects. It stays
// deliberately small: the interesting behavior lives in the session and
// verification primitives guarding it.
package notes

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a note does not exist or belongs to someone
// else.
var ErrNotFound = errors.New("note not found")

// Note is a user-owned note.
type Note struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"ownerId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Repository defines note persistence.
type Repository interface {
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Note, error)
	Find(ctx context.Context, id uuid.UUID) (*Note, error)
	Create(ctx context.Context, note Note) error
	Update(ctx context.Context, note Note) error
	Delete(ctx context.Context, id, ownerID uuid.UUID) (int64, error)
}
