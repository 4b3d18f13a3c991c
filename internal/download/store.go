package download

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type (
	// ClaimParams control which pending chunk ClaimChunk may hand out.
	ClaimParams struct {
		Owner         string
		DomainCeiling int
		Lease         time.Duration
	}

	// TransferProgress is the state of a transfer after a chunk reported
	// progress, used to decide whether a progress event is due.
	TransferProgress struct {
		BytesDownloaded      int64
		TotalBytes           *int64
		LastBroadcastPercent int
	}

	// ReclaimResult describes the outcome of a lease sweep.
	ReclaimResult struct {
		Requeued int
		// Failed holds the transfers which had a chunk failed because it
		// exhausted its claims while its lease was expired.
		Failed []uuid.UUID
	}

	// Store is the durable home of transfers and their chunks. Every status
	// write is conditional on the current status, so concurrent writers
	// (including other processes) can never move an entity backwards.
	Store interface {
		CreateTransfer(ctx context.Context, transfer *Transfer) error
		GetTransfer(ctx context.Context, id uuid.UUID) (*Transfer, error)
		ListTransfers(ctx context.Context) ([]*Transfer, error)
		ListChunks(ctx context.Context, transferID uuid.UUID) ([]*Chunk, error)

		// PlanTransfer persists the probed size and the planned chunks
		// together, in a single unit.
		PlanTransfer(ctx context.Context, transferID uuid.UUID, probe ProbeResult, chunks []*Chunk) error

		// ClaimChunk atomically claims the oldest pending chunk whose domain
		// has fewer than DomainCeiling live downloading chunks. The owning
		// transfer is moved from queued to downloading. Returns nil (and no
		// error) when nothing is claimable.
		ClaimChunk(ctx context.Context, params ClaimParams) (*Chunk, *Transfer, error)
		RenewLease(ctx context.Context, transferID uuid.UUID, idx int, owner string, lease time.Duration) error
		RecordChunkProgress(ctx context.Context, transferID uuid.UUID, idx int, owner string, bytes int64) (TransferProgress, error)
		CompleteChunk(ctx context.Context, transferID uuid.UUID, idx int, owner string, bytes int64) error
		RequeueChunk(ctx context.Context, transferID uuid.UUID, idx int, owner string, cause string) error
		FailChunk(ctx context.Context, transferID uuid.UUID, idx int, owner string, cause string) error
		ReclaimExpiredLeases(ctx context.Context, maxClaims int) (ReclaimResult, error)
		CountDownloading(ctx context.Context, domain string) (int, error)

		// AdvanceBroadcastPercent raises the last broadcast percentage of the
		// transfer, returning true only for the caller which raised it.
		AdvanceBroadcastPercent(ctx context.Context, transferID uuid.UUID, percent int) (bool, error)
		TransitionTransfer(ctx context.Context, transferID uuid.UUID, to TransferStatus, cause string) (bool, error)
		ClaimFinalization(ctx context.Context, transferID uuid.UUID) (bool, error)
		DeleteChunks(ctx context.Context, transferID uuid.UUID) error
	}
)
