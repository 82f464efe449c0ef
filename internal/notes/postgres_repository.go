package notes

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type noteRow struct {
	ID        uuid.UUID `db:"id"`
	OwnerID   uuid.UUID `db:"owner_id"`
	Title     string    `db:"title"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r noteRow) toNote() Note {
	return Note{ID: r.ID, OwnerID: r.OwnerID, Title: r.Title, Content: r.Content, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

// ListByOwner returns the user's notes, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Note, error) {
	var rows []noteRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, owner_id, title, content, created_at, updated_at
		FROM notes WHERE owner_id = $1 ORDER BY updated_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}

	out := make([]Note, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toNote())
	}
	return out, nil
}

// Find returns a note by id.
func (r *PostgresRepository) Find(ctx context.Context, id uuid.UUID) (*Note, error) {
	var row noteRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, owner_id, title, content, created_at, updated_at
		FROM notes WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	note := row.toNote()
	return &note, nil
}

// Create inserts a note.
func (r *PostgresRepository) Create(ctx context.Context, note Note) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notes (id, owner_id, title, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		note.ID, note.OwnerID, note.Title, note.Content, note.CreatedAt, note.UpdatedAt)
	return err
}

// Update rewrites a note's title and content.
func (r *PostgresRepository) Update(ctx context.Context, note Note) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notes SET title = $3, content = $4, updated_at = $5
		WHERE id = $1 AND owner_id = $2`,
		note.ID, note.OwnerID, note.Title, note.Content, note.UpdatedAt)
	return err
}

// Delete removes a note owned by the user.
func (r *PostgresRepository) Delete(ctx context.Context, id, ownerID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
