package progress_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hbomb79/Trove/internal/progress"
	"github.com/hbomb79/Trove/tests/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_PostgresStore_Counters(t *testing.T) {
	db := helpers.NewDatabase(t)
	store := progress.NewPostgresStore(db, progress.Config{TTL: time.Hour, JanitorInterval: time.Minute})
	ctx := context.Background()

	wg := sync.WaitGroup{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(fail bool) {
			defer wg.Done()
			assert.NoError(t, store.IncrementTotal(ctx, "pg-session"))
			assert.NoError(t, store.IncrementDone(ctx, "pg-session"))
			if fail {
				assert.NoError(t, store.IncrementFailed(ctx, "pg-session"))
			}
		}(i%4 == 0)
	}
	wg.Wait()

	counters, err := store.Get(ctx, "pg-session")
	require.NoError(t, err)
	assert.Equal(t, progress.Counters{Total: 20, Done: 20, Failed: 5}, counters)

	unknown, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, progress.Counters{}, unknown)
}

func Test_PostgresStore_CancelAndScanMarker(t *testing.T) {
	db := helpers.NewDatabase(t)
	store := progress.NewPostgresStore(db, progress.Config{TTL: time.Hour, JanitorInterval: time.Minute})
	ctx := context.Background()

	ok, err := store.BeginScan(ctx, "scan")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.BeginScan(ctx, "scan")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetCancelled(ctx, "scan"))
	cancelled, err := store.IsCancelled(ctx, "scan")
	require.NoError(t, err)
	assert.True(t, cancelled)

	require.NoError(t, store.EndScan(ctx, "scan"))
	cancelled, _ = store.IsCancelled(ctx, "scan")
	assert.False(t, cancelled)

	ok, _ = store.BeginScan(ctx, "scan")
	assert.True(t, ok)
}

func Test_PostgresStore_ExpiredSessionRestarts(t *testing.T) {
	db := helpers.NewDatabase(t)
	store := progress.NewPostgresStore(db, progress.Config{TTL: time.Hour, JanitorInterval: time.Minute})
	ctx := context.Background()

	require.NoError(t, store.IncrementTotal(ctx, "old"))
	require.NoError(t, store.SetCancelled(ctx, "old"))
	_, err := db.Exec(`UPDATE progress_session SET expires_at = $1 WHERE session_id = 'old'`, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	counters, _ := store.Get(ctx, "old")
	assert.Equal(t, progress.Counters{}, counters)

	require.NoError(t, store.IncrementTotal(ctx, "old"))
	counters, _ = store.Get(ctx, "old")
	assert.Equal(t, progress.Counters{Total: 1}, counters)
}
