package download_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Trove/internal/catalog"
	"github.com/hbomb79/Trove/internal/download"
	"github.com/hbomb79/Trove/tests/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract runs the behaviour which every Store implementation must
// share. newFileID must return the ID of an existing catalog file.
func storeContract(t *testing.T, store download.Store, newFileID func() uuid.UUID) {
	ctx := context.Background()

	newTransfer := func(domain string, size int64, chunkSize int64) *download.Transfer {
		transfer := &download.Transfer{
			ID:              uuid.New(),
			FileID:          newFileID(),
			SourceURL:       "https://" + domain + "/file",
			Domain:          domain,
			Status:          download.TransferQueued,
			DestinationPath: "/tmp/" + domain,
			QueuedAt:        time.Now().Add(-time.Minute).Truncate(time.Microsecond),
		}
		require.NoError(t, store.CreateTransfer(ctx, transfer))

		probe := download.ProbeResult{Size: size, AcceptsRanges: true}
		chunks := download.PlanChunks(transfer.ID, "/parts", probe, download.ChunkPolicy{ChunkSize: chunkSize, MinChunkSize: 1, MaxChunks: 16})
		require.NoError(t, store.PlanTransfer(ctx, transfer.ID, probe, chunks))

		return transfer
	}

	claim := func(owner string, lease time.Duration) (*download.Chunk, *download.Transfer) {
		chunk, transfer, err := store.ClaimChunk(ctx, download.ClaimParams{Owner: owner, DomainCeiling: 2, Lease: lease})
		require.NoError(t, err)
		return chunk, transfer
	}

	first := newTransfer("a.example", 300, 100)
	second := newTransfer("b.example", 50, 100)

	_, err := store.GetTransfer(ctx, uuid.New())
	assert.ErrorIs(t, err, download.ErrTransferNotFound)
	assert.Error(t, store.PlanTransfer(ctx, first.ID, download.ProbeResult{Size: 1}, nil), "transfers may only be planned once")

	t.Run("claims respect the domain ceiling", func(t *testing.T) {
		c0, claimed := claim("w0", time.Minute)
		require.NotNil(t, c0)
		assert.Equal(t, first.ID, c0.TransferID)
		assert.Equal(t, 0, c0.Index)
		assert.Equal(t, 1, c0.Attempts)
		assert.Equal(t, download.TransferDownloading, claimed.Status)
		assert.NotNil(t, claimed.StartedAt)

		c1, _ := claim("w1", time.Minute)
		require.NotNil(t, c1)
		assert.Equal(t, 1, c1.Index)

		// a.example is now full, so the next claim skips to b.example
		c2, _ := claim("w2", time.Minute)
		require.NotNil(t, c2)
		assert.Equal(t, second.ID, c2.TransferID)

		nothing, _ := claim("w3", time.Minute)
		assert.Nil(t, nothing, "no chunk may be claimed while every domain is full")

		inFlight, err := store.CountDownloading(ctx, "a.example")
		require.NoError(t, err)
		assert.Equal(t, 2, inFlight)
	})

	t.Run("only the owner may report on a chunk", func(t *testing.T) {
		_, err := store.RecordChunkProgress(ctx, first.ID, 0, "imposter", 10)
		assert.Error(t, err)
		assert.Error(t, store.CompleteChunk(ctx, first.ID, 0, "imposter", 100))

		progress, err := store.RecordChunkProgress(ctx, first.ID, 0, "w0", 60)
		require.NoError(t, err)
		assert.EqualValues(t, 60, progress.BytesDownloaded)
		require.NotNil(t, progress.TotalBytes)
		assert.EqualValues(t, 300, *progress.TotalBytes)

		// Progress reported lower than before never lowers the transfer's bytes.
		progress, err = store.RecordChunkProgress(ctx, first.ID, 0, "w0", 20)
		require.NoError(t, err)
		assert.EqualValues(t, 60, progress.BytesDownloaded)

		require.NoError(t, store.RenewLease(ctx, first.ID, 0, "w0", time.Minute))
		assert.Error(t, store.RenewLease(ctx, first.ID, 0, "w1", time.Minute))
	})

	t.Run("releasing a chunk frees its domain slot", func(t *testing.T) {
		require.NoError(t, store.CompleteChunk(ctx, first.ID, 0, "w0", 100))
		assert.Error(t, store.CompleteChunk(ctx, first.ID, 0, "w0", 100), "a released chunk is no longer owned")

		c2, _ := claim("w4", time.Minute)
		require.NotNil(t, c2)
		assert.Equal(t, first.ID, c2.TransferID)
		assert.Equal(t, 2, c2.Index)

		require.NoError(t, store.RequeueChunk(ctx, first.ID, 1, "w1", "transient"))
		chunks, err := store.ListChunks(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		assert.Equal(t, download.ChunkCompleted, chunks[0].Status)
		assert.Equal(t, download.ChunkPending, chunks[1].Status)
		assert.Nil(t, chunks[1].Owner)
		require.NotNil(t, chunks[1].Error)
		assert.Equal(t, "transient", *chunks[1].Error)
	})

	t.Run("expired leases are reclaimed", func(t *testing.T) {
		c1, _ := claim("w5", -time.Second)
		require.NotNil(t, c1)
		assert.Equal(t, 1, c1.Index)
		assert.Equal(t, 2, c1.Attempts)

		result, err := store.ReclaimExpiredLeases(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Requeued)
		assert.Empty(t, result.Failed)

		c1, _ = claim("w6", -time.Second)
		require.NotNil(t, c1)
		assert.Equal(t, 3, c1.Attempts)

		result, err = store.ReclaimExpiredLeases(ctx, 3)
		require.NoError(t, err)
		assert.Zero(t, result.Requeued)
		assert.Equal(t, []uuid.UUID{first.ID}, result.Failed, "a chunk out of claims fails instead of requeueing")
	})

	t.Run("transfer transitions are guarded", func(t *testing.T) {
		advanced, err := store.AdvanceBroadcastPercent(ctx, first.ID, 40)
		require.NoError(t, err)
		assert.True(t, advanced)
		advanced, err = store.AdvanceBroadcastPercent(ctx, first.ID, 40)
		require.NoError(t, err)
		assert.False(t, advanced)

		claimed, err := store.ClaimFinalization(ctx, first.ID)
		require.NoError(t, err)
		assert.True(t, claimed)
		claimed, err = store.ClaimFinalization(ctx, first.ID)
		require.NoError(t, err)
		assert.False(t, claimed, "finalization may only be claimed once")

		ok, err := store.TransitionTransfer(ctx, first.ID, download.TransferFailed, "boom")
		require.NoError(t, err)
		assert.True(t, ok)

		for _, to := range []download.TransferStatus{download.TransferQueued, download.TransferDownloading, download.TransferCompleted, download.TransferCanceled} {
			ok, err := store.TransitionTransfer(ctx, first.ID, to, "")
			require.NoError(t, err)
			assert.False(t, ok, "failed transfer must not move to %s", to)
		}

		transfer, err := store.GetTransfer(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, download.TransferFailed, transfer.Status)
		require.NotNil(t, transfer.Error)
		assert.Equal(t, "boom", *transfer.Error)
		assert.NotNil(t, transfer.FailedAt)

		_, err = store.TransitionTransfer(ctx, uuid.New(), download.TransferFailed, "")
		assert.ErrorIs(t, err, download.ErrTransferNotFound)
	})

	t.Run("chunks can be deleted", func(t *testing.T) {
		require.NoError(t, store.DeleteChunks(ctx, first.ID))
		chunks, err := store.ListChunks(ctx, first.ID)
		require.NoError(t, err)
		assert.Empty(t, chunks)

		transfers, err := store.ListTransfers(ctx)
		require.NoError(t, err)
		assert.Len(t, transfers, 2)
	})
}

func Test_MemoryStore(t *testing.T) {
	storeContract(t, download.NewMemoryStore(), uuid.New)
}

func Test_PostgresStore(t *testing.T) {
	db := helpers.NewDatabase(t)
	files := catalog.NewPostgresStore(db)

	storeContract(t, download.NewPostgresStore(db), func() uuid.UUID {
		file := catalog.NewFile()
		require.NoError(t, files.CreateFile(context.Background(), file))
		return file.ID
	})
}
