package notes

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemoryRepository is a Repository backed by a map, used for local
// development and tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	notes map[uuid.UUID]Note
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{notes: make(map[uuid.UUID]Note)}
}

// ListByOwner returns the user's notes, newest first.
func (r *InMemoryRepository) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Note
	for _, note := range r.notes {
		if note.OwnerID == ownerID {
			out = append(out, note)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Find returns a note by id.
func (r *InMemoryRepository) Find(_ context.Context, id uuid.UUID) (*Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if note, ok := r.notes[id]; ok {
		return &note, nil
	}
	return nil, nil
}

// Create inserts a note.
func (r *InMemoryRepository) Create(_ context.Context, note Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notes[note.ID] = note
	return nil
}

// Update rewrites a note's title and content.
func (r *InMemoryRepository) Update(_ context.Context, note Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.notes[note.ID]; ok && existing.OwnerID == note.OwnerID {
		r.notes[note.ID] = note
	}
	return nil
}

// Delete removes a note owned by the user.
func (r *InMemoryRepository) Delete(_ context.Context, id, ownerID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if note, ok := r.notes[id]; ok && note.OwnerID == ownerID {
		delete(r.notes, id)
		return 1, nil
	}
	return 0, nil
}
