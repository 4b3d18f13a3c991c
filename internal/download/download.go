package download

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidURL        = errors.New("url must be absolute http(s) with a host")
	ErrAlreadyDownloaded = errors.New("file has already been downloaded")
	ErrProbeFailed       = errors.New("failed to probe origin")
	ErrTransferNotFound  = errors.New("transfer does not exist")

	ErrNotFound            = errors.New("origin: resource not found")
	ErrRangeNotSatisfiable = errors.New("origin: range not satisfiable")
	ErrForbidden           = errors.New("origin: access forbidden")
	ErrRangeIgnored        = errors.New("origin: range request ignored")
	ErrClientError         = errors.New("origin: request rejected")
	ErrServerError         = errors.New("origin: server error")
	ErrIntegrity           = errors.New("integrity check failed")

	errLeaseLost = errors.New("chunk lease no longer held")
)

type (
	TransferStatus string
	ChunkStatus    string

	Transfer struct {
		ID                   uuid.UUID      `db:"id" json:"id"`
		FileID               uuid.UUID      `db:"file_id" json:"fileId"`
		SessionID            *string        `db:"session_id" json:"sessionId,omitempty"`
		BatchID              *uuid.UUID     `db:"batch_id" json:"batchId,omitempty"`
		SourceURL            string         `db:"source_url" json:"sourceUrl"`
		Domain               string         `db:"domain" json:"domain"`
		Status               TransferStatus `db:"status" json:"status"`
		TotalBytes           *int64         `db:"total_bytes" json:"totalBytes,omitempty"`
		AcceptsRanges        bool           `db:"accepts_ranges" json:"acceptsRanges"`
		BytesDownloaded      int64          `db:"bytes_downloaded" json:"bytesDownloaded"`
		LastBroadcastPercent int            `db:"last_broadcast_percent" json:"percent"`
		Finalizing           bool           `db:"finalizing" json:"-"`
		DestinationPath      string         `db:"destination_path" json:"destinationPath"`
		Error                *string        `db:"error" json:"error,omitempty"`
		QueuedAt             time.Time      `db:"queued_at" json:"queuedAt"`
		StartedAt            *time.Time     `db:"started_at" json:"startedAt,omitempty"`
		FinishedAt           *time.Time     `db:"finished_at" json:"finishedAt,omitempty"`
		FailedAt             *time.Time     `db:"failed_at" json:"failedAt,omitempty"`
	}

	Chunk struct {
		TransferID      uuid.UUID   `db:"transfer_id" json:"transferId"`
		Index           int         `db:"idx" json:"index"`
		RangeStart      int64       `db:"range_start" json:"rangeStart"`
		RangeEnd        int64       `db:"range_end" json:"rangeEnd"`
		BytesDownloaded int64       `db:"bytes_downloaded" json:"bytesDownloaded"`
		Status          ChunkStatus `db:"status" json:"status"`
		PartPath        string      `db:"part_path" json:"-"`
		Attempts        int         `db:"attempts" json:"attempts"`
		Owner           *string     `db:"owner" json:"owner,omitempty"`
		LeaseExpiresAt  *time.Time  `db:"lease_expires_at" json:"leaseExpiresAt,omitempty"`
		Error           *string     `db:"error" json:"error,omitempty"`
		StartedAt       *time.Time  `db:"started_at" json:"startedAt,omitempty"`
		FinishedAt      *time.Time  `db:"finished_at" json:"finishedAt,omitempty"`
		FailedAt        *time.Time  `db:"failed_at" json:"failedAt,omitempty"`
	}

	// Request describes a download to be started by the coordinator. When
	// the FileID refers to a file which is already downloaded, the request
	// is rejected unless Force is set.
	Request struct {
		URL       string
		FileID    uuid.UUID
		Force     bool
		SessionID string
		BatchID   *uuid.UUID
	}

	Config struct {
		DownloadDir string `yaml:"download_dir" env:"DOWNLOAD_DIR" env-default:"~/.trove/downloads" validate:"required"`
		PartsDir    string `yaml:"parts_dir" env:"DOWNLOAD_PARTS_DIR" env-default:"~/.trove/parts" validate:"required"`

		ChunkWorkers            int     `yaml:"chunk_workers" env:"DOWNLOAD_CHUNK_WORKERS" env-default:"8" validate:"gte=1"`
		DomainConcurrency       int     `yaml:"domain_concurrency" env:"DOWNLOAD_DOMAIN_CONCURRENCY" env-default:"2" validate:"gte=1"`
		DomainRequestsPerSecond float64 `yaml:"domain_requests_per_second" env:"DOWNLOAD_DOMAIN_RPS" env-default:"0" validate:"gte=0"`

		MultipartThreshold   int64 `yaml:"multipart_threshold" env:"DOWNLOAD_MULTIPART_THRESHOLD" env-default:"4194304" validate:"gte=0"`
		ChunkSize            int64 `yaml:"chunk_size" env:"DOWNLOAD_CHUNK_SIZE" env-default:"8388608" validate:"gte=1"`
		MinChunkSize         int64 `yaml:"min_chunk_size" env:"DOWNLOAD_MIN_CHUNK_SIZE" env-default:"1048576" validate:"gte=1"`
		MaxChunksPerTransfer int   `yaml:"max_chunks_per_transfer" env:"DOWNLOAD_MAX_CHUNKS" env-default:"16" validate:"gte=1"`

		ProbeAttempts       int           `yaml:"probe_attempts" env:"DOWNLOAD_PROBE_ATTEMPTS" env-default:"2" validate:"gte=1"`
		ProbeTimeout        time.Duration `yaml:"probe_timeout" env:"DOWNLOAD_PROBE_TIMEOUT" env-default:"30s" validate:"gt=0"`
		ChunkAttempts       int           `yaml:"chunk_attempts" env:"DOWNLOAD_CHUNK_ATTEMPTS" env-default:"3" validate:"gte=1"`
		MaxChunkClaims      int           `yaml:"max_chunk_claims" env:"DOWNLOAD_MAX_CHUNK_CLAIMS" env-default:"3" validate:"gte=1"`
		ChunkAttemptTimeout time.Duration `yaml:"chunk_attempt_timeout" env:"DOWNLOAD_CHUNK_ATTEMPT_TIMEOUT" env-default:"5m" validate:"gt=0"`
		RetryBackoff        time.Duration `yaml:"retry_backoff" env:"DOWNLOAD_RETRY_BACKOFF" env-default:"500ms" validate:"gte=0"`
		RetryMaxBackoff     time.Duration `yaml:"retry_max_backoff" env:"DOWNLOAD_RETRY_MAX_BACKOFF" env-default:"10s" validate:"gte=0"`

		ChunkLease         time.Duration `yaml:"chunk_lease" env:"DOWNLOAD_CHUNK_LEASE" env-default:"1m" validate:"gt=0"`
		LeaseSweepInterval time.Duration `yaml:"lease_sweep_interval" env:"DOWNLOAD_LEASE_SWEEP_INTERVAL" env-default:"15s" validate:"gt=0"`

		ProgressFlushBytes    int64         `yaml:"progress_flush_bytes" env:"DOWNLOAD_PROGRESS_FLUSH_BYTES" env-default:"262144" validate:"gte=1"`
		ProgressFlushInterval time.Duration `yaml:"progress_flush_interval" env:"DOWNLOAD_PROGRESS_FLUSH_INTERVAL" env-default:"500ms" validate:"gt=0"`
	}
)

const (
	TransferQueued      TransferStatus = "queued"
	TransferDownloading TransferStatus = "downloading"
	TransferCompleted   TransferStatus = "completed"
	TransferFailed      TransferStatus = "failed"
	TransferCanceled    TransferStatus = "canceled"

	ChunkPending     ChunkStatus = "pending"
	ChunkDownloading ChunkStatus = "downloading"
	ChunkCompleted   ChunkStatus = "completed"
	ChunkFailed      ChunkStatus = "failed"
)

// allowedTransitions maps each transfer status to the statuses it may be
// entered from. Terminal statuses are never left.
var allowedTransitions = map[TransferStatus][]TransferStatus{
	TransferDownloading: {TransferQueued},
	TransferCompleted:   {TransferDownloading},
	TransferFailed:      {TransferQueued, TransferDownloading},
	TransferCanceled:    {TransferQueued, TransferDownloading},
}

func (s TransferStatus) IsTerminal() bool {
	return s == TransferCompleted || s == TransferFailed || s == TransferCanceled
}

// CanTransitionTo reports whether a transfer currently in this status
// may move to the target status.
func (s TransferStatus) CanTransitionTo(target TransferStatus) bool {
	for _, from := range allowedTransitions[target] {
		if from == s {
			return true
		}
	}

	return false
}

// Percent returns the whole percentage of the transfer which has been
// downloaded, or 0 if the total size is unknown.
func (t *Transfer) Percent() int {
	return percentOf(t.BytesDownloaded, t.TotalBytes)
}

func percentOf(bytes int64, total *int64) int {
	if total == nil || *total <= 0 {
		return 0
	}

	p := int(bytes * 100 / *total)
	if p > 100 {
		return 100
	}
	return p
}

// OpenEnded is true for the single chunk of a transfer whose size
// could not be determined.
func (c *Chunk) OpenEnded() bool { return c.RangeEnd < 0 }

// Size returns the number of bytes covered by the chunk, or -1 if the
// chunk is open-ended.
func (c *Chunk) Size() int64 {
	if c.OpenEnded() {
		return -1
	}

	return c.RangeEnd - c.RangeStart + 1
}
