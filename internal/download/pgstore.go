package download

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/hbomb79/Trove/internal/database"
	"github.com/jmoiron/sqlx"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// PostgresStore persists transfers and chunks, allowing several Trove
// processes to share one download queue. The per-domain ceiling is
// enforced across processes by serialising claims for a domain behind a
// transaction-scoped advisory lock.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (store *PostgresStore) CreateTransfer(ctx context.Context, t *Transfer) error {
	_, err := store.db.NamedExecContext(ctx, `
		INSERT INTO transfer(id, file_id, session_id, batch_id, source_url, domain, status, total_bytes, accepts_ranges,
			bytes_downloaded, last_broadcast_percent, finalizing, destination_path, error, queued_at)
		VALUES (:id, :file_id, :session_id, :batch_id, :source_url, :domain, :status, :total_bytes, :accepts_ranges,
			:bytes_downloaded, :last_broadcast_percent, :finalizing, :destination_path, :error, :queued_at)
	`, t)
	if err != nil {
		return fmt.Errorf("failed to insert transfer %s: %w", t.ID, err)
	}

	return nil
}

func (store *PostgresStore) GetTransfer(ctx context.Context, id uuid.UUID) (*Transfer, error) {
	return getTransfer(ctx, store.db, id)
}

func getTransfer(ctx context.Context, db database.Queryable, id uuid.UUID) (*Transfer, error) {
	var t Transfer
	if err := db.GetContext(ctx, &t, `SELECT * FROM transfer WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, fmt.Errorf("failed to select transfer %s: %w", id, err)
	}

	return &t, nil
}

func (store *PostgresStore) ListTransfers(ctx context.Context) ([]*Transfer, error) {
	var transfers []*Transfer
	if err := store.db.SelectContext(ctx, &transfers, `SELECT * FROM transfer ORDER BY queued_at, id`); err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}

	return transfers, nil
}

func (store *PostgresStore) ListChunks(ctx context.Context, transferID uuid.UUID) ([]*Chunk, error) {
	var chunks []*Chunk
	if err := store.db.SelectContext(ctx, &chunks, `SELECT * FROM transfer_chunk WHERE transfer_id = $1 ORDER BY idx`, transferID); err != nil {
		return nil, fmt.Errorf("failed to list chunks for transfer %s: %w", transferID, err)
	}

	return chunks, nil
}

func (store *PostgresStore) PlanTransfer(ctx context.Context, transferID uuid.UUID, probe ProbeResult, chunks []*Chunk) error {
	var total *int64
	if probe.Size >= 0 {
		total = &probe.Size
	}

	return database.WrapTx(store.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE transfer SET total_bytes = $2, accepts_ranges = $3 WHERE id = $1`, transferID, total, probe.AcceptsRanges)
		if err != nil {
			return fmt.Errorf("failed to record probe for transfer %s: %w", transferID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrTransferNotFound
		}

		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO transfer_chunk(transfer_id, idx, range_start, range_end, bytes_downloaded, status, part_path, attempts)
			VALUES (:transfer_id, :idx, :range_start, :range_end, :bytes_downloaded, :status, :part_path, :attempts)
		`, chunks); err != nil {
			return fmt.Errorf("failed to insert chunks for transfer %s: %w", transferID, err)
		}

		return nil
	})
}

func (store *PostgresStore) ClaimChunk(ctx context.Context, params ClaimParams) (*Chunk, *Transfer, error) {
	var (
		claimedChunk    *Chunk
		claimedTransfer *Transfer
	)

	err := database.WrapTx(store.db, func(tx *sqlx.Tx) error {
		fullDomains := make([]string, 0)
		for {
			query := psql.Select("c.transfer_id", "c.idx", "t.domain").
				From("transfer_chunk c").
				Join("transfer t ON t.id = c.transfer_id").
				Where(squirrel.Eq{
					"c.status":     ChunkPending,
					"t.status":     []TransferStatus{TransferQueued, TransferDownloading},
					"t.finalizing": false,
				})
			if len(fullDomains) > 0 {
				query = query.Where(squirrel.NotEq{"t.domain": fullDomains})
			}

			q, args, err := query.OrderBy("t.queued_at", "t.id", "c.idx").Limit(1).Suffix("FOR UPDATE OF c SKIP LOCKED").ToSql()
			if err != nil {
				return fmt.Errorf("failed to construct claim query: %w", err)
			}

			var candidate struct {
				TransferID uuid.UUID `db:"transfer_id"`
				Index      int       `db:"idx"`
				Domain     string    `db:"domain"`
			}
			if err := tx.GetContext(ctx, &candidate, q, args...); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil
				}
				return fmt.Errorf("failed to select claimable chunk: %w", err)
			}

			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, candidate.Domain); err != nil {
				return fmt.Errorf("failed to lock domain %s: %w", candidate.Domain, err)
			}

			inFlight, err := countDownloading(ctx, tx, candidate.Domain)
			if err != nil {
				return err
			}
			if inFlight >= params.DomainCeiling {
				fullDomains = append(fullDomains, candidate.Domain)
				continue
			}

			now := time.Now()
			var chunk Chunk
			if err := tx.GetContext(ctx, &chunk, `
				UPDATE transfer_chunk
				SET status = $3, attempts = attempts + 1, owner = $4, lease_expires_at = $5, error = NULL,
					started_at = COALESCE(started_at, $6)
				WHERE transfer_id = $1 AND idx = $2 AND status = $7
				RETURNING *
			`, candidate.TransferID, candidate.Index, ChunkDownloading, params.Owner, now.Add(params.Lease), now, ChunkPending); err != nil {
				return fmt.Errorf("failed to claim chunk %d of transfer %s: %w", candidate.Index, candidate.TransferID, err)
			}

			if _, err := tx.ExecContext(ctx, `
				UPDATE transfer SET status = $2, started_at = $3 WHERE id = $1 AND status = $4
			`, candidate.TransferID, TransferDownloading, now, TransferQueued); err != nil {
				return fmt.Errorf("failed to start transfer %s: %w", candidate.TransferID, err)
			}

			transfer, err := getTransfer(ctx, tx, candidate.TransferID)
			if err != nil {
				return err
			}

			claimedChunk, claimedTransfer = &chunk, transfer
			return nil
		}
	})
	if err != nil {
		return nil, nil, err
	}

	return claimedChunk, claimedTransfer, nil
}

func (store *PostgresStore) CountDownloading(ctx context.Context, domain string) (int, error) {
	return countDownloading(ctx, store.db, domain)
}

func countDownloading(ctx context.Context, db database.Queryable, domain string) (int, error) {
	var count int
	err := db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM transfer_chunk c JOIN transfer t ON t.id = c.transfer_id
		WHERE t.domain = $1 AND c.status = $2 AND c.lease_expires_at > $3
	`, domain, ChunkDownloading, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to count downloading chunks for domain %s: %w", domain, err)
	}

	return count, nil
}

func (store *PostgresStore) RenewLease(ctx context.Context, transferID uuid.UUID, idx int, owner string, lease time.Duration) error {
	return store.updateOwned(ctx, transferID, idx, owner, psql.Update("transfer_chunk").Set("lease_expires_at", time.Now().Add(lease)))
}

func (store *PostgresStore) RecordChunkProgress(ctx context.Context, transferID uuid.UUID, idx int, owner string, bytes int64) (TransferProgress, error) {
	var progress TransferProgress
	err := database.WrapTx(store.db, func(tx *sqlx.Tx) error {
		if err := updateOwned(ctx, tx, transferID, idx, owner, psql.Update("transfer_chunk").Set("bytes_downloaded", bytes)); err != nil {
			return err
		}

		var err error
		progress, err = refreshTransferBytes(ctx, tx, transferID)
		return err
	})

	return progress, err
}

// refreshTransferBytes raises the transfer's downloaded bytes to the sum of
// its chunks' progress, clamped to the total. It is never lowered.
func refreshTransferBytes(ctx context.Context, db database.Queryable, transferID uuid.UUID) (TransferProgress, error) {
	var row struct {
		BytesDownloaded      int64  `db:"bytes_downloaded"`
		TotalBytes           *int64 `db:"total_bytes"`
		LastBroadcastPercent int    `db:"last_broadcast_percent"`
	}

	err := db.GetContext(ctx, &row, `
		UPDATE transfer SET bytes_downloaded = GREATEST(bytes_downloaded, LEAST(
			COALESCE((SELECT SUM(bytes_downloaded) FROM transfer_chunk WHERE transfer_id = $1), 0),
			COALESCE(total_bytes, 9223372036854775807)
		))
		WHERE id = $1
		RETURNING bytes_downloaded, total_bytes, last_broadcast_percent
	`, transferID)
	if err != nil {
		return TransferProgress{}, fmt.Errorf("failed to refresh bytes for transfer %s: %w", transferID, err)
	}

	return TransferProgress{BytesDownloaded: row.BytesDownloaded, TotalBytes: row.TotalBytes, LastBroadcastPercent: row.LastBroadcastPercent}, nil
}

func (store *PostgresStore) CompleteChunk(ctx context.Context, transferID uuid.UUID, idx int, owner string, bytes int64) error {
	return store.releaseChunk(ctx, transferID, idx, owner, psql.Update("transfer_chunk").SetMap(map[string]any{
		"status":           ChunkCompleted,
		"bytes_downloaded": bytes,
		"finished_at":      time.Now(),
		"error":            nil,
	}))
}

func (store *PostgresStore) RequeueChunk(ctx context.Context, transferID uuid.UUID, idx int, owner string, cause string) error {
	return store.releaseChunk(ctx, transferID, idx, owner, psql.Update("transfer_chunk").SetMap(map[string]any{
		"status": ChunkPending,
		"error":  cause,
	}))
}

func (store *PostgresStore) FailChunk(ctx context.Context, transferID uuid.UUID, idx int, owner string, cause string) error {
	return store.releaseChunk(ctx, transferID, idx, owner, psql.Update("transfer_chunk").SetMap(map[string]any{
		"status":    ChunkFailed,
		"error":     cause,
		"failed_at": time.Now(),
	}))
}

func (store *PostgresStore) releaseChunk(ctx context.Context, transferID uuid.UUID, idx int, owner string, builder squirrel.UpdateBuilder) error {
	return database.WrapTx(store.db, func(tx *sqlx.Tx) error {
		if err := updateOwned(ctx, tx, transferID, idx, owner, builder.Set("owner", nil).Set("lease_expires_at", nil)); err != nil {
			return err
		}

		_, err := refreshTransferBytes(ctx, tx, transferID)
		return err
	})
}

func (store *PostgresStore) updateOwned(ctx context.Context, transferID uuid.UUID, idx int, owner string, builder squirrel.UpdateBuilder) error {
	return updateOwned(ctx, store.db, transferID, idx, owner, builder)
}

// updateOwned applies the update only if the chunk is still downloading
// under the owner given, returning errLeaseLost otherwise.
func updateOwned(ctx context.Context, db database.Queryable, transferID uuid.UUID, idx int, owner string, builder squirrel.UpdateBuilder) error {
	q, args, err := builder.Where(squirrel.Eq{
		"transfer_id": transferID,
		"idx":         idx,
		"owner":       owner,
		"status":      ChunkDownloading,
	}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to construct chunk update: %w", err)
	}

	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("failed to update chunk %d of transfer %s: %w", idx, transferID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return errLeaseLost
	}

	return nil
}

func (store *PostgresStore) ReclaimExpiredLeases(ctx context.Context, maxClaims int) (ReclaimResult, error) {
	result := ReclaimResult{}
	now := time.Now()

	err := database.WrapTx(store.db, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &result.Failed, `
			WITH failed AS (
				UPDATE transfer_chunk
				SET status = $1, owner = NULL, lease_expires_at = NULL, failed_at = $2,
					error = 'lease expired after ' || attempts || ' claims'
				WHERE status = $3 AND lease_expires_at <= $2 AND attempts >= $4
				RETURNING transfer_id
			)
			SELECT DISTINCT transfer_id FROM failed
		`, ChunkFailed, now, ChunkDownloading, maxClaims); err != nil {
			return fmt.Errorf("failed to fail exhausted chunks: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE transfer_chunk SET status = $1, owner = NULL, lease_expires_at = NULL
			WHERE status = $2 AND lease_expires_at <= $3
		`, ChunkPending, ChunkDownloading, now)
		if err != nil {
			return fmt.Errorf("failed to requeue expired chunks: %w", err)
		}

		requeued, err := res.RowsAffected()
		result.Requeued = int(requeued)
		return err
	})

	return result, err
}

func (store *PostgresStore) AdvanceBroadcastPercent(ctx context.Context, transferID uuid.UUID, percent int) (bool, error) {
	res, err := store.db.ExecContext(ctx, `
		UPDATE transfer SET last_broadcast_percent = $2 WHERE id = $1 AND last_broadcast_percent < $2
	`, transferID, percent)
	if err != nil {
		return false, fmt.Errorf("failed to advance broadcast percent for transfer %s: %w", transferID, err)
	}

	n, err := res.RowsAffected()
	return n == 1, err
}

func (store *PostgresStore) TransitionTransfer(ctx context.Context, transferID uuid.UUID, to TransferStatus, cause string) (bool, error) {
	now := time.Now()
	builder := psql.Update("transfer").Set("status", to).Where(squirrel.Eq{"id": transferID, "status": allowedTransitions[to]})
	switch to {
	case TransferDownloading:
		builder = builder.Set("started_at", now)
	case TransferCompleted, TransferCanceled:
		builder = builder.Set("finished_at", now)
	case TransferFailed:
		builder = builder.Set("failed_at", now)
	}
	if cause != "" {
		builder = builder.Set("error", cause)
	}

	q, args, err := builder.ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to construct transfer transition: %w", err)
	}

	res, err := store.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition transfer %s to %s: %w", transferID, to, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := store.GetTransfer(ctx, transferID); err != nil {
			return false, err
		}
	}

	return n == 1, nil
}

func (store *PostgresStore) ClaimFinalization(ctx context.Context, transferID uuid.UUID) (bool, error) {
	res, err := store.db.ExecContext(ctx, `
		UPDATE transfer SET finalizing = TRUE WHERE id = $1 AND finalizing = FALSE AND status = $2
	`, transferID, TransferDownloading)
	if err != nil {
		return false, fmt.Errorf("failed to claim finalization of transfer %s: %w", transferID, err)
	}

	n, err := res.RowsAffected()
	return n == 1, err
}

func (store *PostgresStore) DeleteChunks(ctx context.Context, transferID uuid.UUID) error {
	if _, err := store.db.ExecContext(ctx, `DELETE FROM transfer_chunk WHERE transfer_id = $1`, transferID); err != nil {
		return fmt.Errorf("failed to delete chunks of transfer %s: %w", transferID, err)
	}

	return nil
}
