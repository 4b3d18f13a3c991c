package index_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Trove/internal/event"
	"github.com/hbomb79/Trove/internal/index"
	"github.com/hbomb79/Trove/internal/metrics"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	payload index.Notification
}

// flakyPublisher fails the first failures publishes made to each subject.
type flakyPublisher struct {
	mutex     sync.Mutex
	failures  int
	attempts  map[string]int
	published []published
}

func (publisher *flakyPublisher) Publish(_ context.Context, subject string, payload []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	publisher.mutex.Lock()
	defer publisher.mutex.Unlock()

	publisher.attempts[subject]++
	if publisher.attempts[subject] <= publisher.failures {
		return nil, errors.New("nats: no responders available for request")
	}

	var notification index.Notification
	if err := json.Unmarshal(payload, &notification); err != nil {
		return nil, err
	}
	publisher.published = append(publisher.published, published{subject, notification})
	return &jetstream.PubAck{Stream: "TROVE_INDEX"}, nil
}

func (publisher *flakyPublisher) snapshot() []published {
	publisher.mutex.Lock()
	defer publisher.mutex.Unlock()
	return append([]published(nil), publisher.published...)
}

func testConfig() index.Config {
	return index.Config{
		SubjectPrefix:   "trove",
		StreamName:      "TROVE_INDEX",
		QueueSize:       8,
		MaxAttempts:     3,
		PublishTimeout:  time.Second,
		RetryBackoff:    5 * time.Millisecond,
		RetryMaxBackoff: 20 * time.Millisecond,
	}
}

func runNotifier(t *testing.T, notifier *index.Notifier) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, notifier.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestNotifier_PublishesEventsToSubjects(t *testing.T) {
	publisher := &flakyPublisher{attempts: map[string]int{}}
	m := metrics.New(prometheus.NewRegistry())
	notifier := index.NewWithPublisher(testConfig(), publisher, m)

	bus := event.New()
	notifier.Subscribe(bus)
	runNotifier(t, notifier)

	fileID := uuid.New()
	bus.Dispatch(event.FileFinalizedEvent, fileID)
	bus.Dispatch(event.FileProcessedEvent, fileID)

	require.Eventually(t, func() bool { return len(publisher.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)

	subjects := map[string]uuid.UUID{}
	for _, p := range publisher.snapshot() {
		subjects[p.subject] = p.payload.FileID
		assert.False(t, p.payload.At.IsZero())
	}
	assert.Equal(t, map[string]uuid.UUID{"trove.file.finalized": fileID, "trove.file.processed": fileID}, subjects)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IndexPublishTotal.WithLabelValues("published")))
}

func TestNotifier_RetriesTransientFailures(t *testing.T) {
	publisher := &flakyPublisher{attempts: map[string]int{}, failures: 2}
	m := metrics.New(prometheus.NewRegistry())
	notifier := index.NewWithPublisher(testConfig(), publisher, m)
	runNotifier(t, notifier)

	notifier.Notify(index.FileFinalized, uuid.New())

	require.Eventually(t, func() bool { return len(publisher.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IndexPublishTotal.WithLabelValues("retried")))
	assert.Empty(t, notifier.Errors())
}

func TestNotifier_ReportsExhaustedRetries(t *testing.T) {
	publisher := &flakyPublisher{attempts: map[string]int{}, failures: 10}
	m := metrics.New(prometheus.NewRegistry())
	notifier := index.NewWithPublisher(testConfig(), publisher, m)
	runNotifier(t, notifier)

	fileID := uuid.New()
	notifier.Notify(index.FileProcessed, fileID)

	select {
	case err := <-notifier.Errors():
		assert.Contains(t, err.Error(), fileID.String())
		assert.Contains(t, err.Error(), "3 attempt(s)")
	case <-time.After(2 * time.Second):
		t.Fatal("expected a publication error")
	}
	assert.Empty(t, publisher.snapshot())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexPublishTotal.WithLabelValues("failed")))
}

func TestNotifier_DropsWhenQueueFull(t *testing.T) {
	config := testConfig()
	config.QueueSize = 1
	m := metrics.New(prometheus.NewRegistry())
	notifier := index.NewWithPublisher(config, &flakyPublisher{attempts: map[string]int{}}, m)

	// Not running, so the second notification has nowhere to go
	notifier.Notify(index.FileFinalized, uuid.New())
	notifier.Notify(index.FileFinalized, uuid.New())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexPublishTotal.WithLabelValues("dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexQueueDepth))
	require.Len(t, notifier.Errors(), 1)
}

func TestNotifier_DisabledWithoutURL(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	notifier, err := index.New(testConfig(), m)
	require.NoError(t, err)

	notifier.Notify(index.FileFinalized, uuid.New())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.IndexQueueDepth))
	runNotifier(t, notifier)
}
