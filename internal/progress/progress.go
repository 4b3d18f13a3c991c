// Package progress tracks the ephemeral processing counters and
// cancellation flag of a session. Sessions expire after a period of
// inactivity so that abandoned sessions clean themselves up.
package progress

import (
	"context"
	"time"
)

type (
	// Counters is a point-in-time view of a session. An expired or
	// unknown session reads as the zero value.
	Counters struct {
		Total     int64 `json:"total" db:"total"`
		Done      int64 `json:"done" db:"done"`
		Failed    int64 `json:"failed" db:"failed"`
		Cancelled bool  `json:"cancelled" db:"cancelled"`
	}

	// Store is the shared, concurrency-safe home of all session counters. An
	// empty session ID is accepted by every method and is a no-op, as work
	// which was not started as part of a session has nothing to report to.
	Store interface {
		IncrementTotal(ctx context.Context, sessionID string) error
		IncrementDone(ctx context.Context, sessionID string) error
		IncrementFailed(ctx context.Context, sessionID string) error
		Get(ctx context.Context, sessionID string) (Counters, error)

		SetCancelled(ctx context.Context, sessionID string) error
		IsCancelled(ctx context.Context, sessionID string) (bool, error)

		// BeginScan marks the session as having a running scan, returning
		// false if one is already running.
		BeginScan(ctx context.Context, sessionID string) (bool, error)
		// EndScan clears the running marker and the cancellation flag so
		// that the session may be scanned again.
		EndScan(ctx context.Context, sessionID string) error
	}

	Config struct {
		TTL             time.Duration `yaml:"ttl" env:"PROGRESS_TTL" env-default:"1h" validate:"gt=0"`
		JanitorInterval time.Duration `yaml:"janitor_interval" env:"PROGRESS_JANITOR_INTERVAL" env-default:"1m" validate:"gt=0"`
	}
)

const (
	defaultTTL             = time.Hour
	defaultJanitorInterval = time.Minute
)

// withDefaults fills in any zero durations, so a zero Config is usable.
func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = defaultJanitorInterval
	}

	return c
}

// Finished returns true if every item counted in to the session has
// reported a result.
func (c Counters) Finished() bool { return c.Done >= c.Total }
