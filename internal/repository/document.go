package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"messenger-sync/internal/models"
)

// ChangeChannel is the Postgres notification channel carrying written paths
const ChangeChannel = "document_changes"

// DocumentRepository stores the document tree in Postgres. The first path
// segment selects a row of the documents table and the rest address into its
// JSONB value.
type DocumentRepository struct {
	db       *pgxpool.Pool
	watches  *watchSet
	dispatch *dispatcher
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{
		db:       db,
		watches:  newWatchSet(),
		dispatch: newDispatcher(),
	}
}

// Get returns the JSON value stored at path
func (r *DocumentRepository) Get(ctx context.Context, path string) (json.RawMessage, error) {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return nil, models.ErrNotFound
	}

	query := `SELECT value #> $2 FROM documents WHERE key = $1`

	var data []byte
	err := r.db.QueryRow(ctx, query, segs[0], segs[1:]).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document %s: %w", path, err)
	}
	if data == nil || string(data) == "null" {
		return nil, models.ErrNotFound
	}
	return data, nil
}

// Set replaces the value at path. The owning row is locked for the duration
// of this one write only.
func (r *DocumentRepository) Set(ctx context.Context, path string, value any) error {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("failed to set document: empty path")
	}

	v, err := normalize(value)
	if err != nil {
		return fmt.Errorf("failed to set document %s: %w", path, err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current any
	var data []byte
	err = tx.QueryRow(ctx, `SELECT value FROM documents WHERE key = $1 FOR UPDATE`, segs[0]).Scan(&data)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to lock document %s: %w", segs[0], err)
	default:
		if err := json.Unmarshal(data, &current); err != nil {
			return fmt.Errorf("failed to decode document %s: %w", segs[0], err)
		}
	}

	updated := assign(current, segs[1:], v)
	if updated == nil {
		if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE key = $1`, segs[0]); err != nil {
			return fmt.Errorf("failed to delete document %s: %w", segs[0], err)
		}
	} else {
		encoded, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("failed to encode document %s: %w", segs[0], err)
		}
		query := `
			INSERT INTO documents (key, value, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		`
		if _, err := tx.Exec(ctx, query, segs[0], encoded); err != nil {
			return fmt.Errorf("failed to write document %s: %w", segs[0], err)
		}
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, ChangeChannel, path); err != nil {
		return fmt.Errorf("failed to notify change: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit document %s: %w", path, err)
	}
	return nil
}

// Observe registers onChange for path. The current value is delivered first;
// later deliveries require Listen to be running.
func (r *DocumentRepository) Observe(ctx context.Context, path string, onChange ChangeFunc) (*Watch, error) {
	w := r.watches.add(path, onChange)

	seq := w.nextRead()
	raw, err := r.Get(ctx, path)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		w.Cancel()
		return nil, err
	}
	r.dispatch.enqueue(w, seq, raw, err)

	return w, nil
}

// Listen consumes change notifications until ctx is done and refreshes every
// watch related to a written path.
func (r *DocumentRepository) Listen(ctx context.Context) error {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		return fmt.Errorf("failed to listen for changes: %w", err)
	}
	log.Info().Str("channel", ChangeChannel).Msg("Listening for document changes")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to wait for notification: %w", err)
		}
		r.refresh(ctx, n.Payload)
	}
}

func (r *DocumentRepository) refresh(ctx context.Context, path string) {
	for _, w := range r.watches.affected(SplitPath(path)) {
		seq := w.nextRead()
		raw, err := r.Get(ctx, w.path)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			log.Error().Err(err).Str("path", w.path).Msg("Failed to refresh watch")
			continue
		}
		r.dispatch.enqueue(w, seq, raw, err)
	}
}

// Close stops watch delivery. The pool is owned by the caller.
func (r *DocumentRepository) Close() {
	r.dispatch.close()
}
