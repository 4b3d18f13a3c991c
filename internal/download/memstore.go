package download

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps transfers and chunks in process memory. A single
// mutex guards all state, which makes every method trivially atomic.
type MemoryStore struct {
	mutex     sync.Mutex
	transfers map[uuid.UUID]*Transfer
	chunks    map[uuid.UUID][]*Chunk
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transfers: make(map[uuid.UUID]*Transfer),
		chunks:    make(map[uuid.UUID][]*Chunk),
		now:       time.Now,
	}
}

func (store *MemoryStore) CreateTransfer(_ context.Context, transfer *Transfer) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if _, ok := store.transfers[transfer.ID]; ok {
		return fmt.Errorf("transfer %s already exists", transfer.ID)
	}

	clone := *transfer
	store.transfers[transfer.ID] = &clone
	return nil
}

func (store *MemoryStore) GetTransfer(_ context.Context, id uuid.UUID) (*Transfer, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	t, ok := store.transfers[id]
	if !ok {
		return nil, ErrTransferNotFound
	}

	clone := *t
	return &clone, nil
}

func (store *MemoryStore) ListTransfers(_ context.Context) ([]*Transfer, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	out := make([]*Transfer, 0, len(store.transfers))
	for _, t := range store.sortedTransfers() {
		clone := *t
		out = append(out, &clone)
	}

	return out, nil
}

func (store *MemoryStore) ListChunks(_ context.Context, transferID uuid.UUID) ([]*Chunk, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	chunks := store.chunks[transferID]
	out := make([]*Chunk, 0, len(chunks))
	for _, c := range chunks {
		clone := *c
		out = append(out, &clone)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (store *MemoryStore) PlanTransfer(_ context.Context, transferID uuid.UUID, probe ProbeResult, chunks []*Chunk) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	t, ok := store.transfers[transferID]
	if !ok {
		return ErrTransferNotFound
	}
	if len(store.chunks[transferID]) > 0 {
		return fmt.Errorf("transfer %s has already been planned", transferID)
	}

	if probe.Size >= 0 {
		total := probe.Size
		t.TotalBytes = &total
	}
	t.AcceptsRanges = probe.AcceptsRanges

	planned := make([]*Chunk, len(chunks))
	for i, c := range chunks {
		clone := *c
		planned[i] = &clone
	}
	store.chunks[transferID] = planned

	return nil
}

func (store *MemoryStore) ClaimChunk(_ context.Context, params ClaimParams) (*Chunk, *Transfer, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	now := store.now()
	inFlight := store.downloadingByDomain(now)
	for _, t := range store.sortedTransfers() {
		if t.Status.IsTerminal() || t.Finalizing || inFlight[t.Domain] >= params.DomainCeiling {
			continue
		}

		for _, c := range store.chunks[t.ID] {
			if c.Status != ChunkPending {
				continue
			}

			owner := params.Owner
			lease := now.Add(params.Lease)
			c.Status = ChunkDownloading
			c.Attempts++
			c.Owner = &owner
			c.LeaseExpiresAt = &lease
			c.Error = nil
			if c.StartedAt == nil {
				c.StartedAt = &now
			}

			if t.Status == TransferQueued {
				t.Status = TransferDownloading
				t.StartedAt = &now
			}

			chunkClone, transferClone := *c, *t
			return &chunkClone, &transferClone, nil
		}
	}

	return nil, nil, nil
}

// downloadingByDomain counts chunks holding a live lease per domain.
// Caller must hold the mutex.
func (store *MemoryStore) downloadingByDomain(now time.Time) map[string]int {
	counts := make(map[string]int)
	for id, chunks := range store.chunks {
		for _, c := range chunks {
			if c.Status == ChunkDownloading && c.LeaseExpiresAt != nil && c.LeaseExpiresAt.After(now) {
				counts[store.transfers[id].Domain]++
			}
		}
	}

	return counts
}

func (store *MemoryStore) CountDownloading(_ context.Context, domain string) (int, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	return store.downloadingByDomain(store.now())[domain], nil
}

func (store *MemoryStore) RenewLease(_ context.Context, transferID uuid.UUID, idx int, owner string, lease time.Duration) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	c, err := store.ownedChunk(transferID, idx, owner)
	if err != nil {
		return err
	}

	expiry := store.now().Add(lease)
	c.LeaseExpiresAt = &expiry
	return nil
}

func (store *MemoryStore) RecordChunkProgress(_ context.Context, transferID uuid.UUID, idx int, owner string, bytes int64) (TransferProgress, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	c, err := store.ownedChunk(transferID, idx, owner)
	if err != nil {
		return TransferProgress{}, err
	}

	c.BytesDownloaded = bytes
	t := store.transfers[transferID]
	store.refreshTransferBytes(t)

	return TransferProgress{BytesDownloaded: t.BytesDownloaded, TotalBytes: t.TotalBytes, LastBroadcastPercent: t.LastBroadcastPercent}, nil
}

// refreshTransferBytes raises the transfer's downloaded bytes to the sum of
// its chunks' progress. It is never lowered. Caller must hold the mutex.
func (store *MemoryStore) refreshTransferBytes(t *Transfer) {
	var sum int64
	for _, c := range store.chunks[t.ID] {
		sum += c.BytesDownloaded
	}
	if t.TotalBytes != nil && sum > *t.TotalBytes {
		sum = *t.TotalBytes
	}
	if sum > t.BytesDownloaded {
		t.BytesDownloaded = sum
	}
}

func (store *MemoryStore) CompleteChunk(_ context.Context, transferID uuid.UUID, idx int, owner string, bytes int64) error {
	return store.releaseChunk(transferID, idx, owner, func(c *Chunk, now time.Time) {
		c.Status = ChunkCompleted
		c.BytesDownloaded = bytes
		c.FinishedAt = &now
		c.Error = nil
	})
}

func (store *MemoryStore) RequeueChunk(_ context.Context, transferID uuid.UUID, idx int, owner string, cause string) error {
	return store.releaseChunk(transferID, idx, owner, func(c *Chunk, _ time.Time) {
		c.Status = ChunkPending
		c.Error = &cause
	})
}

func (store *MemoryStore) FailChunk(_ context.Context, transferID uuid.UUID, idx int, owner string, cause string) error {
	return store.releaseChunk(transferID, idx, owner, func(c *Chunk, now time.Time) {
		c.Status = ChunkFailed
		c.Error = &cause
		c.FailedAt = &now
	})
}

func (store *MemoryStore) releaseChunk(transferID uuid.UUID, idx int, owner string, f func(*Chunk, time.Time)) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	c, err := store.ownedChunk(transferID, idx, owner)
	if err != nil {
		return err
	}

	f(c, store.now())
	c.Owner = nil
	c.LeaseExpiresAt = nil
	store.refreshTransferBytes(store.transfers[transferID])
	return nil
}

// ownedChunk returns the chunk if it is downloading under the given owner.
// Caller must hold the mutex.
func (store *MemoryStore) ownedChunk(transferID uuid.UUID, idx int, owner string) (*Chunk, error) {
	for _, c := range store.chunks[transferID] {
		if c.Index == idx {
			if c.Status != ChunkDownloading || c.Owner == nil || *c.Owner != owner {
				return nil, errLeaseLost
			}
			return c, nil
		}
	}

	return nil, errLeaseLost
}

func (store *MemoryStore) ReclaimExpiredLeases(_ context.Context, maxClaims int) (ReclaimResult, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	now := store.now()
	result := ReclaimResult{}
	for id, chunks := range store.chunks {
		failed := false
		for _, c := range chunks {
			if c.Status != ChunkDownloading || c.LeaseExpiresAt == nil || c.LeaseExpiresAt.After(now) {
				continue
			}

			c.Owner = nil
			c.LeaseExpiresAt = nil
			if c.Attempts >= maxClaims {
				cause := fmt.Sprintf("lease expired after %d claims", c.Attempts)
				c.Status = ChunkFailed
				c.Error = &cause
				c.FailedAt = &now
				failed = true
			} else {
				c.Status = ChunkPending
				result.Requeued++
			}
		}

		if failed {
			result.Failed = append(result.Failed, id)
		}
	}

	return result, nil
}

func (store *MemoryStore) AdvanceBroadcastPercent(_ context.Context, transferID uuid.UUID, percent int) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	t, ok := store.transfers[transferID]
	if !ok {
		return false, ErrTransferNotFound
	}
	if percent <= t.LastBroadcastPercent {
		return false, nil
	}

	t.LastBroadcastPercent = percent
	return true, nil
}

func (store *MemoryStore) TransitionTransfer(_ context.Context, transferID uuid.UUID, to TransferStatus, cause string) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	t, ok := store.transfers[transferID]
	if !ok {
		return false, ErrTransferNotFound
	}
	if !t.Status.CanTransitionTo(to) {
		return false, nil
	}

	now := store.now()
	t.Status = to
	switch to {
	case TransferDownloading:
		t.StartedAt = &now
	case TransferCompleted, TransferCanceled:
		t.FinishedAt = &now
	case TransferFailed:
		t.FailedAt = &now
	}
	if cause != "" {
		t.Error = &cause
	}

	return true, nil
}

func (store *MemoryStore) ClaimFinalization(_ context.Context, transferID uuid.UUID) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	t, ok := store.transfers[transferID]
	if !ok {
		return false, ErrTransferNotFound
	}
	if t.Finalizing || t.Status != TransferDownloading {
		return false, nil
	}

	t.Finalizing = true
	return true, nil
}

func (store *MemoryStore) DeleteChunks(_ context.Context, transferID uuid.UUID) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	delete(store.chunks, transferID)
	return nil
}

// sortedTransfers returns the transfers oldest first. Caller must hold the mutex.
func (store *MemoryStore) sortedTransfers() []*Transfer {
	out := make([]*Transfer, 0, len(store.transfers))
	for _, t := range store.transfers {
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].QueuedAt.Equal(out[j].QueuedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].QueuedAt.Before(out[j].QueuedAt)
	})
	return out
}
