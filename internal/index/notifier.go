// Package index notifies an external indexer, over NATS JetStream, that
// files have been finalized or processed. Publication happens in the
// background and failures are retried independently of the pipeline
// which raised the notification.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Trove/internal/event"
	"github.com/hbomb79/Trove/internal/metrics"
	"github.com/hbomb79/Trove/pkg/logger"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

var log = logger.Get("IndexNotify")

const errorBufferSize = 32

type (
	Kind string

	Config struct {
		URL             string        `yaml:"url" env:"INDEX_NATS_URL"`
		SubjectPrefix   string        `yaml:"subject_prefix" env:"INDEX_SUBJECT_PREFIX" env-default:"trove" validate:"required"`
		StreamName      string        `yaml:"stream_name" env:"INDEX_STREAM_NAME" env-default:"TROVE_INDEX" validate:"required"`
		QueueSize       int           `yaml:"queue_size" env:"INDEX_QUEUE_SIZE" env-default:"1024" validate:"gte=1"`
		MaxAttempts     int           `yaml:"max_attempts" env:"INDEX_MAX_ATTEMPTS" env-default:"5" validate:"gte=1"`
		PublishTimeout  time.Duration `yaml:"publish_timeout" env:"INDEX_PUBLISH_TIMEOUT" env-default:"5s" validate:"gt=0"`
		RetryBackoff    time.Duration `yaml:"retry_backoff" env:"INDEX_RETRY_BACKOFF" env-default:"1s" validate:"gte=0"`
		RetryMaxBackoff time.Duration `yaml:"retry_max_backoff" env:"INDEX_RETRY_MAX_BACKOFF" env-default:"30s" validate:"gte=0"`
	}

	Notification struct {
		FileID uuid.UUID `json:"fileId"`
		At     time.Time `json:"at"`
	}

	// Publisher is the part of a JetStream context used to publish
	// notifications.
	Publisher interface {
		Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
	}

	pending struct {
		kind     Kind
		payload  Notification
		attempts int
		due      time.Time
	}

	Notifier struct {
		config    Config
		publisher Publisher
		conn      *nats.Conn
		metrics   *metrics.Metrics
		queue     chan *pending
		errCh     chan error
	}
)

const (
	FileFinalized Kind = "file.finalized"
	FileProcessed Kind = "file.processed"
)

// New connects to the NATS server configured. When no URL is configured the
// returned notifier discards every notification.
func New(config Config, metrics *metrics.Metrics) (*Notifier, error) {
	if config.URL == "" {
		log.Emit(logger.WARNING, "No index URL configured, index notifications are disabled\n")
		return NewWithPublisher(config, nil, metrics), nil
	}

	conn, err := nats.Connect(config.URL,
		nats.Name("trove-index-notifier"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warnf("NATS disconnected: %v\n", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("NATS reconnected to %s\n", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to JetStream: %w", err)
	}

	notifier := NewWithPublisher(config, js, metrics)
	notifier.conn = conn
	return notifier, nil
}

// EnsureStream creates (or updates) the JetStream stream which captures
// every subject the notifier publishes to.
func EnsureStream(ctx context.Context, js jetstream.JetStream, config Config) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     config.StreamName,
		Subjects: []string{config.SubjectPrefix + ".file.>"},
	})

	return err
}

func NewWithPublisher(config Config, publisher Publisher, metrics *metrics.Metrics) *Notifier {
	if config.QueueSize <= 0 {
		config.QueueSize = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	return &Notifier{
		config:    config,
		publisher: publisher,
		metrics:   metrics,
		queue:     make(chan *pending, config.QueueSize),
		errCh:     make(chan error, errorBufferSize),
	}
}

// Errors returns the channel on which terminal publication failures are
// reported. Errors are dropped when nobody drains the channel.
func (notifier *Notifier) Errors() <-chan error { return notifier.errCh }

// Subscribe registers the notifier for the file lifecycle events.
func (notifier *Notifier) Subscribe(bus event.EventHandler) {
	bus.RegisterHandlerFunction(event.FileFinalizedEvent, func(_ event.Event, payload event.Payload) {
		notifier.Notify(FileFinalized, payload.(uuid.UUID))
	})
	bus.RegisterHandlerFunction(event.FileProcessedEvent, func(_ event.Event, payload event.Payload) {
		notifier.Notify(FileProcessed, payload.(uuid.UUID))
	})
}

// Notify queues a notification for publication without blocking. If the
// queue is full the notification is dropped and reported as an error.
func (notifier *Notifier) Notify(kind Kind, fileID uuid.UUID) {
	if notifier.publisher == nil {
		return
	}

	item := &pending{kind: kind, payload: Notification{FileID: fileID, At: time.Now().UTC()}}
	select {
	case notifier.queue <- item:
		notifier.metrics.IndexQueueDepth.Inc()
	default:
		notifier.metrics.IndexPublishTotal.WithLabelValues("dropped").Inc()
		notifier.reportError(fmt.Errorf("index queue full, dropped %s notification for file %s", kind, fileID))
	}
}

// Run publishes queued notifications until the context is cancelled.
// Notifications which fail to publish are held back and retried with
// an exponential backoff, without delaying those behind them.
func (notifier *Notifier) Run(ctx context.Context) error {
	if notifier.conn != nil {
		defer notifier.conn.Close()
		if js, ok := notifier.publisher.(jetstream.JetStream); ok {
			if err := EnsureStream(ctx, js, notifier.config); err != nil {
				log.Warnf("Failed to ensure index stream %s exists: %v\n", notifier.config.StreamName, err)
			}
		}
	}

	log.Emit(logger.NEW, "Index notifier started\n")
	var retries []*pending
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if n := len(notifier.queue) + len(retries); n > 0 {
				log.Warnf("Index notifier stopping with %d unpublished notification(s)\n", n)
			}
			log.Emit(logger.STOP, "Index notifier stopped\n")
			return nil
		case item := <-notifier.queue:
			notifier.metrics.IndexQueueDepth.Dec()
			if retry := notifier.publish(ctx, item); retry != nil {
				retries = insertRetry(retries, retry)
			}
		case <-timer.C:
			now := time.Now()
			for len(retries) > 0 && !retries[0].due.After(now) {
				item := retries[0]
				retries = retries[1:]
				if retry := notifier.publish(ctx, item); retry != nil {
					retries = insertRetry(retries, retry)
				}
			}
		}

		if len(retries) > 0 {
			timer.Reset(time.Until(retries[0].due))
		}
	}
}

// publish makes a single attempt at publishing the notification, returning
// the notification if it should be tried again.
func (notifier *Notifier) publish(ctx context.Context, item *pending) *pending {
	payload, err := json.Marshal(item.payload)
	if err != nil {
		notifier.fail(item, err)
		return nil
	}

	item.attempts++
	subject := notifier.config.SubjectPrefix + "." + string(item.kind)
	publishCtx, cancel := context.WithTimeout(ctx, notifier.config.PublishTimeout)
	defer cancel()

	if _, err := notifier.publisher.Publish(publishCtx, subject, payload); err != nil {
		if item.attempts >= notifier.config.MaxAttempts || ctx.Err() != nil {
			notifier.fail(item, err)
			return nil
		}

		delay := backoff(notifier.config.RetryBackoff, notifier.config.RetryMaxBackoff, item.attempts)
		log.Warnf("Publishing %s for file %s failed (attempt %d/%d), retrying in %s: %v\n", subject, item.payload.FileID, item.attempts, notifier.config.MaxAttempts, delay, err)
		notifier.metrics.IndexPublishTotal.WithLabelValues("retried").Inc()
		item.due = time.Now().Add(delay)
		return item
	}

	log.Verbosef("Published %s for file %s\n", subject, item.payload.FileID)
	notifier.metrics.IndexPublishTotal.WithLabelValues("published").Inc()
	return nil
}

func (notifier *Notifier) fail(item *pending, err error) {
	notifier.metrics.IndexPublishTotal.WithLabelValues("failed").Inc()
	notifier.reportError(fmt.Errorf("failed to publish %s notification for file %s after %d attempt(s): %w", item.kind, item.payload.FileID, item.attempts, err))
}

func (notifier *Notifier) reportError(err error) {
	select {
	case notifier.errCh <- err:
	default:
	}
}

func insertRetry(retries []*pending, item *pending) []*pending {
	i := sort.Search(len(retries), func(i int) bool { return retries[i].due.After(item.due) })
	retries = append(retries, nil)
	copy(retries[i+1:], retries[i:])
	retries[i] = item
	return retries
}

func backoff(base, maxBackoff time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	delay := base << (attempt - 1)
	if delay <= 0 || (maxBackoff > 0 && delay > maxBackoff) {
		return maxBackoff
	}

	return delay
}
