package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type userRow struct {
	ID        uuid.UUID `db:"id"`
	Email     string    `db:"email"`
	Username  string    `db:"username"`
	Name      string    `db:"name"`
	ImageURL  string    `db:"image_url"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r userRow) toUser() *User {
	return &User{
		ID:        r.ID,
		Email:     r.Email,
		Username:  r.Username,
		Name:      r.Name,
		ImageURL:  r.ImageURL,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

const userColumns = `id, email, username, name, image_url, created_at, updated_at`

// FindUserByID looks up a user by id.
func (r *PostgresRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindUserByEmail looks up a user by email address.
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return r.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// FindUserByUsername looks up a user by username.
func (r *PostgresRepository) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	return r.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *PostgresRepository) findUser(ctx context.Context, query string, arg any) (*User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toUser(), nil
}

// CreateUserWithPassword inserts a user and their password hash in one transaction.
func (r *PostgresRepository) CreateUserWithPassword(ctx context.Context, user User, passwordHash []byte) (User, error) {
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertUser(ctx, tx, user); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO passwords (user_id, hash, created_at, updated_at) VALUES ($1, $2, $3, $3)`,
			user.ID, string(passwordHash), user.CreatedAt,
		)
		return err
	})
	if err != nil {
		return User{}, translateConstraint(err)
	}
	return user, nil
}

// CreateUserWithConnection inserts a user and their OAuth connection in one transaction.
func (r *PostgresRepository) CreateUserWithConnection(ctx context.Context, user User, conn Connection) (User, error) {
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertUser(ctx, tx, user); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO connections (id, user_id, provider_name, provider_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
			conn.ID, user.ID, conn.ProviderName, conn.ProviderID, conn.CreatedAt,
		)
		return err
	})
	if err != nil {
		return User{}, translateConstraint(err)
	}
	return user, nil
}

func insertUser(ctx context.Context, tx *sqlx.Tx, user User) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, email, username, name, image_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Email, user.Username, user.Name, user.ImageURL, user.CreatedAt, user.UpdatedAt,
	)
	return err
}

// UpdateUserEmail changes a user's email address.
func (r *PostgresRepository) UpdateUserEmail(ctx context.Context, id uuid.UUID, email string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = $2, updated_at = $3 WHERE id = $1`,
		id, email, time.Now(),
	)
	return translateConstraint(err)
}

// FindPasswordHash returns the stored bcrypt hash for the user, or nil if
// the user has no password.
func (r *PostgresRepository) FindPasswordHash(ctx context.Context, userID uuid.UUID) ([]byte, error) {
	var hash string
	err := r.db.GetContext(ctx, &hash, `SELECT hash FROM passwords WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return []byte(hash), nil
}

// UpsertPasswordHash sets or replaces the user's password hash.
func (r *PostgresRepository) UpsertPasswordHash(ctx context.Context, userID uuid.UUID, hash []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO passwords (user_id, hash, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (user_id) DO UPDATE SET hash = EXCLUDED.hash, updated_at = now()`,
		userID, string(hash),
	)
	return err
}

// CreateSession inserts a new session.
func (r *PostgresRepository) CreateSession(ctx context.Context, session Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expiration_date, created_at) VALUES ($1, $2, $3, $4)`,
		session.ID, session.UserID, session.ExpirationDate, session.CreatedAt,
	)
	return err
}

type sessionRow struct {
	ID             uuid.UUID `db:"id"`
	UserID         uuid.UUID `db:"user_id"`
	ExpirationDate time.Time `db:"expiration_date"`
	CreatedAt      time.Time `db:"created_at"`
}

// FindSession looks up a session by id.
func (r *PostgresRepository) FindSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, user_id, expiration_date, created_at FROM sessions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &Session{ID: row.ID, UserID: row.UserID, ExpirationDate: row.ExpirationDate, CreatedAt: row.CreatedAt}, nil
}

// DeleteSession removes a session. Deleting a missing session is not an error.
func (r *PostgresRepository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// DeleteUserSessions removes every session owned by the user.
func (r *PostgresRepository) DeleteUserSessions(ctx context.Context, userID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type verificationRow struct {
	Target    string       `db:"target"`
	Type      string       `db:"type"`
	Secret    string       `db:"secret"`
	Algorithm string       `db:"algorithm"`
	Digits    int          `db:"digits"`
	Period    int          `db:"period"`
	CharSet   string       `db:"char_set"`
	ExpiresAt sql.NullTime `db:"expires_at"`
	CreatedAt time.Time    `db:"created_at"`
}

// UpsertVerification creates or replaces the outstanding challenge for
// (target, type).
func (r *PostgresRepository) UpsertVerification(ctx context.Context, v Verification) error {
	var expiresAt sql.NullTime
	if v.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *v.ExpiresAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verifications (target, type, secret, algorithm, digits, period, char_set, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (target, type) DO UPDATE SET
			secret = EXCLUDED.secret,
			algorithm = EXCLUDED.algorithm,
			digits = EXCLUDED.digits,
			period = EXCLUDED.period,
			char_set = EXCLUDED.char_set,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at`,
		v.Target, string(v.Type), v.Secret, v.Algorithm, v.Digits, int(v.Period.Seconds()), v.CharSet, expiresAt, v.CreatedAt,
	)
	return err
}

// FindVerification returns the unexpired challenge for (target, type), if any.
func (r *PostgresRepository) FindVerification(ctx context.Context, target string, typ VerificationType) (*Verification, error) {
	var row verificationRow
	err := r.db.GetContext(ctx, &row, `
		SELECT target, type, secret, algorithm, digits, period, char_set, expires_at, created_at
		FROM verifications
		WHERE target = $1 AND type = $2 AND (expires_at IS NULL OR expires_at > now())`,
		target, string(typ),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	v := Verification{
		Target:    row.Target,
		Type:      VerificationType(row.Type),
		Secret:    row.Secret,
		Algorithm: row.Algorithm,
		Digits:    row.Digits,
		Period:    time.Duration(row.Period) * time.Second,
		CharSet:   row.CharSet,
		CreatedAt: row.CreatedAt,
	}
	if row.ExpiresAt.Valid {
		t := row.ExpiresAt.Time
		v.ExpiresAt = &t
	}
	return &v, nil
}

// DeleteVerification removes the challenge and reports how many rows went
// away. A zero count means a concurrent consumer got there first.
func (r *PostgresRepository) DeleteVerification(ctx context.Context, target string, typ VerificationType) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM verifications WHERE target = $1 AND type = $2`, target, string(typ))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type connectionRow struct {
	ID           uuid.UUID `db:"id"`
	UserID       uuid.UUID `db:"user_id"`
	ProviderName string    `db:"provider_name"`
	ProviderID   string    `db:"provider_id"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r connectionRow) toConnection() Connection {
	return Connection{ID: r.ID, UserID: r.UserID, ProviderName: r.ProviderName, ProviderID: r.ProviderID, CreatedAt: r.CreatedAt}
}

// FindConnection looks up a connection by external identity.
func (r *PostgresRepository) FindConnection(ctx context.Context, providerName, providerID string) (*Connection, error) {
	var row connectionRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, user_id, provider_name, provider_id, created_at
		FROM connections
		WHERE provider_name = $1 AND provider_id = $2`,
		providerName, providerID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	conn := row.toConnection()
	return &conn, nil
}

// ListUserConnections returns all connections owned by the user.
func (r *PostgresRepository) ListUserConnections(ctx context.Context, userID uuid.UUID) ([]Connection, error) {
	var rows []connectionRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, provider_name, provider_id, created_at
		FROM connections
		WHERE user_id = $1
		ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}

	conns := make([]Connection, 0, len(rows))
	for _, row := range rows {
		conns = append(conns, row.toConnection())
	}
	return conns, nil
}

// CreateConnection links an external identity to a user.
func (r *PostgresRepository) CreateConnection(ctx context.Context, conn Connection) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO connections (id, user_id, provider_name, provider_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
		conn.ID, conn.UserID, conn.ProviderName, conn.ProviderID, conn.CreatedAt,
	)
	return translateConstraint(err)
}

// DeleteConnection removes a connection owned by the user and reports how
// many rows were removed.
func (r *PostgresRepository) DeleteConnection(ctx context.Context, id, userID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM connections WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// translateConstraint maps Postgres unique violations to ErrDuplicate so
// callers can surface field-level validation errors instead of 500s.
func translateConstraint(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
	}
	return err
}
