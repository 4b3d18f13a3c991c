// Package process runs the type-specific processing of classified files.
// Each file is handled by exactly one job, and every job reports its
// outcome to the progress store of the session it belongs to.
package process

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Trove/internal/catalog"
	"github.com/hbomb79/Trove/internal/classify"
	"github.com/hbomb79/Trove/internal/media"
)

type (
	JobStatus string

	Job struct {
		ID         uuid.UUID       `json:"id"`
		FileID     uuid.UUID       `json:"fileId"`
		SessionID  string          `json:"sessionId,omitempty"`
		Family     classify.Family `json:"-"`
		Status     JobStatus       `json:"status"`
		Error      *string         `json:"error,omitempty"`
		QueuedAt   time.Time       `json:"queuedAt"`
		StartedAt  *time.Time      `json:"startedAt,omitempty"`
		FinishedAt *time.Time      `json:"finishedAt,omitempty"`
	}

	// Processor handles the files of a single media family.
	Processor interface {
		// AlreadyProcessed reports whether the work of this processor has
		// already been recorded against the file.
		AlreadyProcessed(ctx context.Context, file *catalog.File) (bool, error)
		Process(ctx context.Context, file *catalog.File) error
	}

	Prober interface {
		Probe(ctx context.Context, path string) (*media.Probe, error)
	}

	FrameExtractor interface {
		ExtractFrame(ctx context.Context, path string, at time.Duration, output string) error
	}

	Config struct {
		Parallelism    int     `yaml:"parallelism" env:"PROCESSING_PARALLELISM" env-default:"4" validate:"gte=1"`
		ThumbnailDir   string  `yaml:"thumbnail_dir" env:"PROCESSING_THUMBNAIL_DIR" env-default:"~/.trove/thumbnails" validate:"required"`
		ThumbnailWidth int     `yaml:"thumbnail_width" env:"PROCESSING_THUMBNAIL_WIDTH" env-default:"320" validate:"gte=16"`
		JPEGQuality    int     `yaml:"jpeg_quality" env:"PROCESSING_JPEG_QUALITY" env-default:"85" validate:"gte=1,lte=100"`
		PosterOffset   float64 `yaml:"poster_offset" env:"PROCESSING_POSTER_OFFSET" env-default:"0.1" validate:"gte=0,lt=1"`
	}
)

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobDone      JobStatus = "done"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

func (s JobStatus) IsFinished() bool {
	return s == JobDone || s == JobFailed || s == JobCancelled
}
