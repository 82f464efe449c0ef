package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository is a Repository backed by maps, used for local
// development and tests.
type InMemoryRepository struct {
	mu            sync.RWMutex
	users         map[uuid.UUID]User
	passwords     map[uuid.UUID][]byte
	sessions      map[uuid.UUID]Session
	verifications map[verificationKey]Verification
	connections   map[uuid.UUID]Connection
}

type verificationKey struct {
	target string
	typ    VerificationType
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:         make(map[uuid.UUID]User),
		passwords:     make(map[uuid.UUID][]byte),
		sessions:      make(map[uuid.UUID]Session),
		verifications: make(map[verificationKey]Verification),
		connections:   make(map[uuid.UUID]Connection),
	}
}

// FindUserByID looks up a user by id.
func (r *InMemoryRepository) FindUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if user, ok := r.users[id]; ok {
		return &user, nil
	}
	return nil, nil
}

// FindUserByEmail looks up a user by email.
func (r *InMemoryRepository) FindUserByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

// FindUserByUsername looks up a user by username.
func (r *InMemoryRepository) FindUserByUsername(_ context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if user.Username == username {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

// CreateUserWithPassword inserts a user and their password hash.
func (r *InMemoryRepository) CreateUserWithPassword(_ context.Context, user User, passwordHash []byte) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUserUnique(user); err != nil {
		return User{}, err
	}

	r.users[user.ID] = user
	hash := make([]byte, len(passwordHash))
	copy(hash, passwordHash)
	r.passwords[user.ID] = hash
	return user, nil
}

// CreateUserWithConnection inserts a user and their OAuth connection.
func (r *InMemoryRepository) CreateUserWithConnection(_ context.Context, user User, conn Connection) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUserUnique(user); err != nil {
		return User{}, err
	}
	for _, existing := range r.connections {
		if existing.ProviderName == conn.ProviderName && existing.ProviderID == conn.ProviderID {
			return User{}, fmt.Errorf("%w: connections_provider_name_provider_id_key", ErrDuplicate)
		}
	}

	r.users[user.ID] = user
	r.connections[conn.ID] = conn
	return user, nil
}

func (r *InMemoryRepository) checkUserUnique(user User) error {
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return fmt.Errorf("%w: users_email_key", ErrDuplicate)
		}
		if existing.Username == user.Username {
			return fmt.Errorf("%w: users_username_key", ErrDuplicate)
		}
	}
	return nil
}

// UpdateUserEmail changes a user's email address.
func (r *InMemoryRepository) UpdateUserEmail(_ context.Context, id uuid.UUID, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.ID != id && existing.Email == email {
			return fmt.Errorf("%w: users_email_key", ErrDuplicate)
		}
	}

	user, ok := r.users[id]
	if !ok {
		return nil
	}
	user.Email = email
	user.UpdatedAt = time.Now()
	r.users[id] = user
	return nil
}

// FindPasswordHash returns the stored hash, or nil when the user has none.
func (r *InMemoryRepository) FindPasswordHash(_ context.Context, userID uuid.UUID) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hash, ok := r.passwords[userID]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(hash))
	copy(out, hash)
	return out, nil
}

// UpsertPasswordHash sets or replaces the user's password hash.
func (r *InMemoryRepository) UpsertPasswordHash(_ context.Context, userID uuid.UUID, hash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := make([]byte, len(hash))
	copy(stored, hash)
	r.passwords[userID] = stored
	return nil
}

// CreateSession inserts a session.
func (r *InMemoryRepository) CreateSession(_ context.Context, session Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.ID] = session
	return nil
}

// FindSession looks up a session by id.
func (r *InMemoryRepository) FindSession(_ context.Context, id uuid.UUID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if session, ok := r.sessions[id]; ok {
		return &session, nil
	}
	return nil, nil
}

// DeleteSession removes a session if present.
func (r *InMemoryRepository) DeleteSession(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

// DeleteUserSessions removes every session owned by the user.
func (r *InMemoryRepository) DeleteUserSessions(_ context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for id, session := range r.sessions {
		if session.UserID == userID {
			delete(r.sessions, id)
			count++
		}
	}
	return count, nil
}

// UpsertVerification creates or replaces the challenge for (target, type).
func (r *InMemoryRepository) UpsertVerification(_ context.Context, v Verification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.verifications[verificationKey{v.Target, v.Type}] = v
	return nil
}

// FindVerification returns the unexpired challenge for (target, type), if any.
func (r *InMemoryRepository) FindVerification(_ context.Context, target string, typ VerificationType) (*Verification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.verifications[verificationKey{target, typ}]
	if !ok || !v.Usable(time.Now()) {
		return nil, nil
	}
	return &v, nil
}

// DeleteVerification removes the challenge and reports the removed count.
func (r *InMemoryRepository) DeleteVerification(_ context.Context, target string, typ VerificationType) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := verificationKey{target, typ}
	if _, ok := r.verifications[key]; !ok {
		return 0, nil
	}
	delete(r.verifications, key)
	return 1, nil
}

// FindConnection looks up a connection by external identity.
func (r *InMemoryRepository) FindConnection(_ context.Context, providerName, providerID string) (*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conn := range r.connections {
		if conn.ProviderName == providerName && conn.ProviderID == providerID {
			c := conn
			return &c, nil
		}
	}
	return nil, nil
}

// ListUserConnections returns all connections owned by the user.
func (r *InMemoryRepository) ListUserConnections(_ context.Context, userID uuid.UUID) ([]Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []Connection
	for _, conn := range r.connections {
		if conn.UserID == userID {
			conns = append(conns, conn)
		}
	}
	return conns, nil
}

// CreateConnection links an external identity to a user.
func (r *InMemoryRepository) CreateConnection(_ context.Context, conn Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.connections {
		if existing.ProviderName == conn.ProviderName && existing.ProviderID == conn.ProviderID {
			return fmt.Errorf("%w: connections_provider_name_provider_id_key", ErrDuplicate)
		}
	}
	r.connections[conn.ID] = conn
	return nil
}

// DeleteConnection removes a connection owned by the user.
func (r *InMemoryRepository) DeleteConnection(_ context.Context, id, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[id]
	if !ok || conn.UserID != userID {
		return 0, nil
	}
	delete(r.connections, id)
	return 1, nil
}
