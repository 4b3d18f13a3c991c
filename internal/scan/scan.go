// Package scan enumerates bulk sources of files, creating a catalog record
// for every item not already known and routing it in to the pipeline: local
// files straight to classification, remote files to the download
// coordinator.
package scan

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Trove/internal/classify"
	"github.com/hbomb79/Trove/internal/download"
)

var (
	ErrScanInProgress = errors.New("a scan is already running for this session")

	errStopEnumeration = errors.New("enumeration stopped")
)

type (
	// Item is a single candidate found by a Source. Exactly one of Path (a
	// local file) or URL (a remote resource) is set.
	Item struct {
		Path    string
		URL     string
		Name    string
		ModTime time.Time
	}

	// Source enumerates items in batches. The visit function returning an
	// error stops the enumeration, and that error is returned by Enumerate.
	Source interface {
		Enumerate(ctx context.Context, visit func([]Item) error) error
	}

	State string

	Classifier interface {
		Classify(ctx context.Context, req classify.Request) (classify.Family, error)
	}

	Downloader interface {
		StartTransfer(ctx context.Context, req download.Request) (uuid.UUID, error)
	}

	Config struct {
		// A forced rescan of the watch path is performed on this interval
		// to guard against the filesystem watcher missing events.
		ForceSyncSeconds int `yaml:"force_sync_seconds" env:"SCAN_FORCE_SYNC_SECONDS" env-default:"300" validate:"gte=1"`

		// Directory watched for new files. Watching is disabled when empty.
		WatchPath string `yaml:"watch_path" env:"SCAN_WATCH_PATH"`

		// Files whose name matches any of these expressions are ignored.
		Blacklist []string `yaml:"blacklist" env:"SCAN_BLACKLIST" env-separator:","`

		// New files are likely still being copied in by some external
		// software, so files are held until their modtime is at least
		// this far in the past.
		RequiredModTimeAgeSeconds int `yaml:"required_modtime_age_seconds" env:"SCAN_REQUIRED_MODTIME_AGE_SECONDS" env-default:"120" validate:"gte=0"`
	}
)

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

func (config *Config) RequiredModTimeAgeDuration() time.Duration {
	return time.Duration(config.RequiredModTimeAgeSeconds) * time.Second
}

func (config *Config) ForceSyncDuration() time.Duration {
	return time.Duration(config.ForceSyncSeconds) * time.Second
}

func (item Item) IsRemote() bool { return item.URL != "" }
