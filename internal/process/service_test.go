package process_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Trove/internal/catalog"
	"github.com/hbomb79/Trove/internal/classify"
	"github.com/hbomb79/Trove/internal/event"
	"github.com/hbomb79/Trove/internal/metrics"
	"github.com/hbomb79/Trove/internal/process"
	"github.com/hbomb79/Trove/internal/process/mocks"
	"github.com/hbomb79/Trove/internal/progress"
	"github.com/hbomb79/Trove/tests/helpers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	files    *catalog.MemoryStore
	progress *progress.MemoryStore
	bus      event.EventCoordinator
	metrics  *metrics.Metrics
	service  *process.Service

	mutex     sync.Mutex
	snapshots []event.ProcessingProgress
	processed []uuid.UUID
}

func newServiceFixture(t *testing.T, parallelism int) *serviceFixture {
	f := &serviceFixture{
		files:    catalog.NewMemoryStore(),
		progress: progress.NewMemoryStore(progress.Config{}),
		bus:      event.New(),
		metrics:  metrics.New(prometheus.NewRegistry()),
	}

	f.bus.RegisterHandlerFunction(event.ProcessingProgressEvent, func(_ event.Event, payload event.Payload) {
		f.mutex.Lock()
		defer f.mutex.Unlock()
		f.snapshots = append(f.snapshots, payload.(event.ProcessingProgress))
	})
	f.bus.RegisterHandlerFunction(event.FileProcessedEvent, func(_ event.Event, payload event.Payload) {
		f.mutex.Lock()
		defer f.mutex.Unlock()
		f.processed = append(f.processed, payload.(uuid.UUID))
	})

	config := process.Config{Parallelism: parallelism, ThumbnailDir: t.TempDir(), ThumbnailWidth: 32, JPEGQuality: 80, PosterOffset: 0.1}
	service, err := process.New(config, f.files, f.progress, mocks.NewMockProber(t), mocks.NewMockFrameExtractor(t), f.bus, f.metrics)
	require.NoError(t, err)
	f.service = service

	return f
}

func (f *serviceFixture) start(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.service.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("processing service did not stop")
		}
	})
}

// submit counts the file in to the session and then enqueues its job, in
// the same order the classifier does.
func (f *serviceFixture) submit(t *testing.T, file *catalog.File, sessionID string, family classify.Family) {
	ctx := context.Background()
	require.NoError(t, f.progress.IncrementTotal(ctx, sessionID))
	require.NoError(t, f.service.Enqueue(ctx, classify.Job{FileID: file.ID, SessionID: sessionID, Family: family}))
}

func Test_Service_FanOutReportsEveryJobOnce(t *testing.T) {
	f := newServiceFixture(t, 3)
	dir := t.TempDir()

	const good, bad = 6, 2
	expectedProcessed := make([]uuid.UUID, 0, good)
	for i := 0; i < good; i++ {
		file := localFile(t, f.files, dir, fmt.Sprintf("good-%d.png", i), helpers.PNGBytes(t, 40+i, 20, i%2 == 0))
		expectedProcessed = append(expectedProcessed, file.ID)
		f.submit(t, file, "session", classify.Image)
	}
	for i := 0; i < bad; i++ {
		file := localFile(t, f.files, dir, fmt.Sprintf("bad-%d.png", i), []byte(fmt.Sprintf("corrupt %d", i)))
		f.submit(t, file, "session", classify.Image)
	}

	f.start(t)

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		counters, err := f.progress.Get(context.Background(), "session")
		assert.NoError(c, err)
		assert.EqualValues(c, good+bad, counters.Total)
		assert.EqualValues(c, good+bad, counters.Done)
		assert.EqualValues(c, bad, counters.Failed)
		assert.Empty(c, f.service.Jobs())
	}, 5*time.Second, 10*time.Millisecond)

	f.mutex.Lock()
	defer f.mutex.Unlock()

	assert.ElementsMatch(t, expectedProcessed, f.processed)
	assert.Len(t, f.snapshots, good+bad, "every job should publish exactly one progress snapshot")
	for _, snapshot := range f.snapshots {
		assert.Equal(t, "session", snapshot.SessionID)
		assert.LessOrEqual(t, snapshot.Failed, snapshot.Done)
		assert.LessOrEqual(t, snapshot.Done, snapshot.Total)
	}

	assert.Equal(t, float64(good), testutil.ToFloat64(f.metrics.ProcessingJobsTotal.WithLabelValues("image", "done")))
	assert.Equal(t, float64(bad), testutil.ToFloat64(f.metrics.ProcessingJobsTotal.WithLabelValues("image", "failed")))
}

func Test_Service_CancelledSessionIsNotProcessed(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, 2)
	dir := t.TempDir()

	ids := make([]uuid.UUID, 0, 3)
	for i := 0; i < 3; i++ {
		file := localFile(t, f.files, dir, fmt.Sprintf("img-%d.png", i), helpers.PNGBytes(t, 8, 8, false))
		ids = append(ids, file.ID)
		f.submit(t, file, "cancelled", classify.Image)
	}
	require.NoError(t, f.progress.SetCancelled(ctx, "cancelled"))

	f.start(t)

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		assert.Empty(c, f.service.Jobs())
	}, 5*time.Second, 10*time.Millisecond)

	counters, err := f.progress.Get(ctx, "cancelled")
	require.NoError(t, err)
	assert.EqualValues(t, 3, counters.Total)
	assert.Zero(t, counters.Done)
	assert.Zero(t, counters.Failed)

	for _, id := range ids {
		file, err := f.files.GetFile(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, file.ThumbnailPath, "cancelled files must not be processed")
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()
	assert.Empty(t, f.snapshots)
	assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.ProcessingJobsTotal.WithLabelValues("image", "cancelled")))
}

func Test_Service_AlreadyProcessedCountsAsDone(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, 1)
	file := localFile(t, f.files, t.TempDir(), "song.mp3", make([]byte, 512))
	require.NoError(t, f.files.MarkMetadataExtracted(ctx, file.ID))

	// The prober mock has no expectations, so processing the file would fail.
	f.submit(t, file, "s", classify.Audio)
	f.start(t)

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		counters, err := f.progress.Get(ctx, "s")
		assert.NoError(c, err)
		assert.EqualValues(c, 1, counters.Done)
		assert.Zero(c, counters.Failed)
	}, 5*time.Second, 10*time.Millisecond)
}

func Test_Service_RejectsUnsupportedFamily(t *testing.T) {
	f := newServiceFixture(t, 1)
	err := f.service.Enqueue(context.Background(), classify.Job{FileID: uuid.New(), Family: classify.Unsupported})
	assert.ErrorIs(t, err, process.ErrNoProcessor)
	assert.Empty(t, f.service.Jobs())
}
