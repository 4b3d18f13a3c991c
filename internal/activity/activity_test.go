package activity_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Trove/internal/activity"
	"github.com/hbomb79/Trove/internal/activity/mocks"
	"github.com/hbomb79/Trove/internal/event"
	"github.com/hbomb79/Trove/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

var testTimings = activity.Timings{
	Debounce:      50 * time.Millisecond,
	Max:           200 * time.Millisecond,
	RapidDebounce: 30 * time.Millisecond,
	RapidMax:      100 * time.Millisecond,
}

func startService(t *testing.T, broadcaster activity.Broadcaster) event.EventCoordinator {
	bus := event.New()
	service := activity.New(broadcaster, bus, testTimings)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, service.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Handler channels are registered by Run
	time.Sleep(20 * time.Millisecond)
	return bus
}

type recorder struct {
	sync.Mutex
	calls []any
}

func (r *recorder) record(v any) {
	r.Lock()
	defer r.Unlock()
	r.calls = append(r.calls, v)
}

func (r *recorder) snapshot() []any {
	r.Lock()
	defer r.Unlock()
	return append([]any(nil), r.calls...)
}

func Test_BurstOfTransferUpdatesIsDebounced(t *testing.T) {
	broadcaster := mocks.NewMockBroadcaster(t)
	rec := &recorder{}
	broadcaster.EXPECT().BroadcastTransferUpdate(mock.Anything).
		Run(func(id uuid.UUID) { rec.record(id) }).
		Return(nil)

	bus := startService(t, broadcaster)
	a, b := uuid.New(), uuid.New()
	for i := 0; i < 5; i++ {
		bus.Dispatch(event.TransferUpdateEvent, a)
	}
	bus.Dispatch(event.TransferUpdateEvent, b)

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		assert.ElementsMatch(c, []any{a, b}, rec.snapshot())
	}, time.Second, 10*time.Millisecond)

	time.Sleep(testTimings.Max)
	assert.Len(t, rec.snapshot(), 2, "max timer must not broadcast again once debounce fired")
}

func Test_ContinuousProgressIsBroadcastByMaxTimer(t *testing.T) {
	broadcaster := mocks.NewMockBroadcaster(t)
	rec := &recorder{}
	broadcaster.EXPECT().BroadcastTransferProgress(mock.Anything).
		Run(func(id uuid.UUID) { rec.record(id) }).
		Return(nil)

	bus := startService(t, broadcaster)
	id := uuid.New()

	// Events arrive faster than the debounce, so only the max timer fires
	deadline := time.Now().Add(3 * testTimings.RapidMax)
	for time.Now().Before(deadline) {
		bus.Dispatch(event.TransferProgressEvent, id)
		time.Sleep(testTimings.RapidDebounce / 3)
	}

	assert.GreaterOrEqual(t, len(rec.snapshot()), 2)
}

func Test_FinalSessionEventsAreBroadcastImmediately(t *testing.T) {
	broadcaster := mocks.NewMockBroadcaster(t)
	rec := &recorder{}
	broadcaster.EXPECT().BroadcastProcessingProgress(mock.Anything).
		Run(func(p event.ProcessingProgress) { rec.record(p) }).
		Return(nil)
	broadcaster.EXPECT().BroadcastScanProgress(mock.Anything).
		Run(func(p event.ScanProgress) { rec.record(p) }).
		Return(nil)

	bus := startService(t, broadcaster)
	bus.Dispatch(event.ProcessingProgressEvent, event.ProcessingProgress{SessionID: "s", Total: 3, Done: 1})
	bus.Dispatch(event.ProcessingProgressEvent, event.ProcessingProgress{SessionID: "s", Total: 3, Done: 2})
	bus.Dispatch(event.ProcessingProgressEvent, event.ProcessingProgress{SessionID: "s", Total: 3, Done: 3, Failed: 1})
	bus.Dispatch(event.ScanProgressEvent, event.ScanProgress{SessionID: "s", Enqueued: 3, Total: 3, State: "completed"})

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		assert.Equal(c, []any{
			event.ProcessingProgress{SessionID: "s", Total: 3, Done: 3, Failed: 1},
			event.ScanProgress{SessionID: "s", Enqueued: 3, Total: 3, State: "completed"},
		}, rec.snapshot())
	}, time.Second, 5*time.Millisecond)

	time.Sleep(2 * testTimings.RapidMax)
	assert.Len(t, rec.snapshot(), 2, "pending progress is replaced by the final broadcast")
}
