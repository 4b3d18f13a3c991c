package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hbomb79/Trove/internal/database"
)

// PostgresStore persists sessions in the progress_session table, allowing
// counters to be shared by every Trove process using the same database.
// Increments are performed as a single upsert, so concurrent writers
// never lose an update.
type PostgresStore struct {
	db       database.Queryable
	ttl      time.Duration
	interval time.Duration
}

func NewPostgresStore(db database.Queryable, config Config) *PostgresStore {
	config = config.withDefaults()
	return &PostgresStore{db: db, ttl: config.TTL, interval: config.JanitorInterval}
}

// Run removes expired session rows periodically until the context is cancelled.
func (store *PostgresStore) Run(ctx context.Context) error {
	ticker := time.NewTicker(store.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := store.db.ExecContext(ctx, `DELETE FROM progress_session WHERE expires_at <= $1`, time.Now()); err != nil {
				log.Warnf("Failed to evict expired progress sessions: %v\n", err)
			}
		}
	}
}

// An expired row is treated as if it did not exist: its counters restart
// from the delta and its flags are dropped.
const upsertSessionSql = `
	INSERT INTO progress_session(session_id, total, done, failed, cancelled, scanning, expires_at)
	VALUES ($1, $2, $3, $4, $5, FALSE, $6)
	ON CONFLICT (session_id) DO UPDATE SET
		total = CASE WHEN progress_session.expires_at <= $7 THEN EXCLUDED.total ELSE progress_session.total + EXCLUDED.total END,
		done = CASE WHEN progress_session.expires_at <= $7 THEN EXCLUDED.done ELSE progress_session.done + EXCLUDED.done END,
		failed = CASE WHEN progress_session.expires_at <= $7 THEN EXCLUDED.failed ELSE progress_session.failed + EXCLUDED.failed END,
		cancelled = EXCLUDED.cancelled OR (progress_session.cancelled AND progress_session.expires_at > $7),
		scanning = progress_session.scanning AND progress_session.expires_at > $7,
		expires_at = EXCLUDED.expires_at`

func (store *PostgresStore) upsert(ctx context.Context, sessionID string, total, done, failed int64, cancelled bool) error {
	if sessionID == "" {
		return nil
	}

	now := time.Now()
	if _, err := store.db.ExecContext(ctx, upsertSessionSql, sessionID, total, done, failed, cancelled, now.Add(store.ttl), now); err != nil {
		return fmt.Errorf("failed to update progress session %s: %w", sessionID, err)
	}

	return nil
}

func (store *PostgresStore) IncrementTotal(ctx context.Context, sessionID string) error {
	return store.upsert(ctx, sessionID, 1, 0, 0, false)
}

func (store *PostgresStore) IncrementDone(ctx context.Context, sessionID string) error {
	return store.upsert(ctx, sessionID, 0, 1, 0, false)
}

func (store *PostgresStore) IncrementFailed(ctx context.Context, sessionID string) error {
	return store.upsert(ctx, sessionID, 0, 0, 1, false)
}

func (store *PostgresStore) SetCancelled(ctx context.Context, sessionID string) error {
	return store.upsert(ctx, sessionID, 0, 0, 0, true)
}

func (store *PostgresStore) Get(ctx context.Context, sessionID string) (Counters, error) {
	var counters Counters
	if sessionID == "" {
		return counters, nil
	}

	err := store.db.GetContext(ctx, &counters, `
		SELECT total, done, failed, cancelled FROM progress_session
		WHERE session_id = $1 AND expires_at > $2
	`, sessionID, time.Now())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Counters{}, fmt.Errorf("failed to read progress session %s: %w", sessionID, err)
	}

	return counters, nil
}

func (store *PostgresStore) IsCancelled(ctx context.Context, sessionID string) (bool, error) {
	c, err := store.Get(ctx, sessionID)
	return c.Cancelled, err
}

func (store *PostgresStore) BeginScan(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return true, nil
	}

	now := time.Now()
	rows, err := store.db.ExecContext(ctx, `
		INSERT INTO progress_session(session_id, total, done, failed, cancelled, scanning, expires_at)
		VALUES ($1, 0, 0, 0, FALSE, TRUE, $2)
		ON CONFLICT (session_id) DO UPDATE SET
			total = CASE WHEN progress_session.expires_at <= $3 THEN 0 ELSE progress_session.total END,
			done = CASE WHEN progress_session.expires_at <= $3 THEN 0 ELSE progress_session.done END,
			failed = CASE WHEN progress_session.expires_at <= $3 THEN 0 ELSE progress_session.failed END,
			cancelled = progress_session.cancelled AND progress_session.expires_at > $3,
			scanning = TRUE,
			expires_at = EXCLUDED.expires_at
		WHERE progress_session.scanning = FALSE OR progress_session.expires_at <= $3
	`, sessionID, now.Add(store.ttl), now)
	if err != nil {
		return false, fmt.Errorf("failed to mark scan running for session %s: %w", sessionID, err)
	}

	affected, err := rows.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (store *PostgresStore) EndScan(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	_, err := store.db.ExecContext(ctx, `
		UPDATE progress_session SET scanning = FALSE, cancelled = FALSE, expires_at = $2
		WHERE session_id = $1
	`, sessionID, time.Now().Add(store.ttl))
	if err != nil {
		return fmt.Errorf("failed to clear scan state for session %s: %w", sessionID, err)
	}

	return nil
}
