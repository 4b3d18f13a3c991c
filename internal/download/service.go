package download

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Trove/internal/catalog"
	"github.com/hbomb79/Trove/internal/classify"
	"github.com/hbomb79/Trove/internal/event"
	"github.com/hbomb79/Trove/internal/metrics"
	"github.com/hbomb79/Trove/pkg/logger"
	"github.com/hbomb79/Trove/pkg/worker"
	"golang.org/x/time/rate"
)

var (
	log = logger.Get("DownloadServ")

	ErrTransferFinished = errors.New("transfer has already finished")
)

type (
	// Classifier receives files once they have been published by the finalizer.
	Classifier interface {
		Classify(ctx context.Context, req classify.Request) (classify.Family, error)
	}

	// Service coordinates the lifecycle of transfers: it plans the chunks of
	// new transfers, runs a pool of chunk workers which claim chunks subject
	// to the per-domain ceiling, and finalizes transfers once every chunk
	// has completed.
	Service struct {
		config     Config
		store      Store
		origin     Origin
		files      catalog.Store
		classifier Classifier
		eventBus   event.EventDispatcher
		metrics    *metrics.Metrics

		pool *worker.WorkerPool
		ctx  context.Context

		limiterMutex sync.Mutex
		limiters     map[string]*rate.Limiter
	}
)

func New(config Config, store Store, origin Origin, files catalog.Store, classifier Classifier, eventBus event.EventDispatcher, metrics *metrics.Metrics) (*Service, error) {
	for _, dir := range []string{config.DownloadDir, config.PartsDir} {
		if err := os.MkdirAll(dir, os.ModeDir|os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create download directory %s: %w", dir, err)
		}
	}

	return &Service{
		config:     config,
		store:      store,
		origin:     origin,
		files:      files,
		classifier: classifier,
		eventBus:   eventBus,
		metrics:    metrics,
		pool:       worker.NewWorkerPool(),
		limiters:   make(map[string]*rate.Limiter),
	}, nil
}

// Run resumes any work left over from a previous run, starts the chunk
// worker pool and then periodically sweeps expired chunk leases until the
// context is cancelled.
func (service *Service) Run(ctx context.Context) error {
	service.ctx = ctx

	service.sweepLeases(ctx)
	service.collectOrphanedParts(ctx)
	service.resumeTransfers(ctx)

	for i := 0; i < service.config.ChunkWorkers; i++ {
		label := fmt.Sprintf("chunk-%d", i)
		if err := service.pool.PushWorker(worker.NewWorker(label, service.workerTick)); err != nil {
			return err
		}
	}
	if err := service.pool.Start(); err != nil {
		return err
	}
	defer service.pool.Close()

	service.wakeupWorkers()

	ticker := time.NewTicker(service.config.LeaseSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Emit(logger.STOP, "Download service shutting down\n")
			return nil
		case <-ticker.C:
			service.sweepLeases(ctx)
			service.wakeupWorkers()
		}
	}
}

// StartTransfer creates a transfer for the request, probes the origin and
// plans the chunks of the transfer. When probing fails the transfer is
// failed without any chunks, and the returned error wraps ErrProbeFailed
// (the ID of the failed transfer is still returned).
func (service *Service) StartTransfer(ctx context.Context, req Request) (uuid.UUID, error) {
	source, err := parseSourceURL(req.URL)
	if err != nil {
		return uuid.Nil, err
	}

	file, err := service.files.GetFile(ctx, req.FileID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to find target file %s: %w", req.FileID, err)
	}
	if file.IsDownloaded() && !req.Force {
		return uuid.Nil, ErrAlreadyDownloaded
	}

	transfer := &Transfer{
		ID:              uuid.New(),
		FileID:          file.ID,
		BatchID:         req.BatchID,
		SourceURL:       source.String(),
		Domain:          RegistrableDomain(source),
		Status:          TransferQueued,
		DestinationPath: DestinationPath(service.config.DownloadDir, file.ID, source),
		QueuedAt:        time.Now(),
	}
	if req.SessionID != "" {
		transfer.SessionID = &req.SessionID
	}

	if err := service.store.CreateTransfer(ctx, transfer); err != nil {
		return uuid.Nil, err
	}
	log.Emit(logger.NEW, "Queued transfer %s for %s (domain %s)\n", transfer.ID, transfer.SourceURL, transfer.Domain)
	service.eventBus.Dispatch(event.TransferUpdateEvent, transfer.ID)

	probe, err := service.probe(ctx, transfer.SourceURL)
	if err != nil {
		service.failTransfer(ctx, transfer, fmt.Sprintf("probe failed: %v", err))
		return transfer.ID, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}

	chunks := PlanChunks(transfer.ID, service.config.PartsDir, probe, service.config.chunkPolicy())
	var total *int64
	if probe.Size >= 0 {
		total = &probe.Size
	}
	if err := ValidateChunkSet(chunks, total); err != nil {
		service.failTransfer(ctx, transfer, err.Error())
		return transfer.ID, err
	}

	if err := service.store.PlanTransfer(ctx, transfer.ID, probe, chunks); err != nil {
		service.failTransfer(ctx, transfer, fmt.Sprintf("failed to persist plan: %v", err))
		return transfer.ID, err
	}

	log.Infof("Planned transfer %s: %d chunk(s), size=%d, ranges=%v\n", transfer.ID, len(chunks), probe.Size, probe.AcceptsRanges)
	service.wakeupWorkers()
	return transfer.ID, nil
}

// probe asks the origin about the resource, retrying transient failures.
func (service *Service) probe(ctx context.Context, sourceURL string) (ProbeResult, error) {
	var lastErr error
	for attempt := 1; attempt <= service.config.ProbeAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, backoffDelay(service.config.RetryBackoff, service.config.RetryMaxBackoff, attempt-1)); err != nil {
				return ProbeResult{}, err
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, service.config.ProbeTimeout)
		result, err := service.origin.Probe(probeCtx, sourceURL)
		cancel()
		if err == nil {
			return result, nil
		}

		lastErr = err
		if isPermanent(err) {
			break
		}
		log.Warnf("Probe attempt %d/%d of %s failed: %v\n", attempt, service.config.ProbeAttempts, sourceURL, err)
	}

	return ProbeResult{}, lastErr
}

// CancelTransfer moves a queued or downloading transfer to canceled. Chunks
// which are mid-flight finish their current attempt, but no further chunk
// of the transfer will be claimed.
func (service *Service) CancelTransfer(ctx context.Context, id uuid.UUID) error {
	ok, err := service.store.TransitionTransfer(ctx, id, TransferCanceled, "canceled by request")
	if err != nil {
		return err
	}
	if !ok {
		return ErrTransferFinished
	}

	log.Emit(logger.REMOVE, "Transfer %s canceled\n", id)
	service.metrics.TransfersTotal.WithLabelValues(string(TransferCanceled)).Inc()
	service.eventBus.Dispatch(event.TransferUpdateEvent, id)

	if t, err := service.store.GetTransfer(ctx, id); err == nil {
		service.cleanupIfIdle(ctx, t)
	}
	return nil
}

func (service *Service) Transfer(ctx context.Context, id uuid.UUID) (*Transfer, error) {
	return service.store.GetTransfer(ctx, id)
}

func (service *Service) Transfers(ctx context.Context) ([]*Transfer, error) {
	return service.store.ListTransfers(ctx)
}

func (service *Service) Chunks(ctx context.Context, id uuid.UUID) ([]*Chunk, error) {
	if _, err := service.store.GetTransfer(ctx, id); err != nil {
		return nil, err
	}

	return service.store.ListChunks(ctx, id)
}

// evaluateTransfer inspects the chunks of a transfer after one of them
// reached a terminal outcome. A single failed chunk fails the transfer,
// and once every chunk has completed the transfer is finalized (at most
// once, guarded by the store's finalization claim).
func (service *Service) evaluateTransfer(ctx context.Context, id uuid.UUID) {
	transfer, err := service.store.GetTransfer(ctx, id)
	if err != nil {
		log.Errorf("Failed to evaluate transfer %s: %v\n", id, err)
		return
	}
	if transfer.Status.IsTerminal() {
		service.cleanupIfIdle(ctx, transfer)
		return
	}

	chunks, err := service.store.ListChunks(ctx, id)
	if err != nil {
		log.Errorf("Failed to list chunks of transfer %s: %v\n", id, err)
		return
	}
	if len(chunks) == 0 {
		return
	}

	for _, c := range chunks {
		if c.Status == ChunkFailed {
			cause := fmt.Sprintf("chunk %d failed", c.Index)
			if c.Error != nil {
				cause = fmt.Sprintf("%s: %s", cause, *c.Error)
			}
			service.failTransfer(ctx, transfer, cause)
			return
		}
		if c.Status != ChunkCompleted {
			return
		}
	}

	claimed, err := service.store.ClaimFinalization(ctx, id)
	if err != nil {
		log.Errorf("Failed to claim finalization of transfer %s: %v\n", id, err)
		return
	}
	if !claimed {
		return
	}

	if err := service.finalize(ctx, transfer, chunks); err != nil {
		log.Errorf("Finalization of transfer %s failed: %v\n", id, err)
		service.failTransfer(ctx, transfer, err.Error())
	}
}

// failTransfer moves the transfer to failed, recording the cause on both
// the transfer and its target file.
func (service *Service) failTransfer(ctx context.Context, transfer *Transfer, cause string) {
	ok, err := service.store.TransitionTransfer(ctx, transfer.ID, TransferFailed, cause)
	if err != nil {
		log.Errorf("Failed to mark transfer %s as failed (cause: %s): %v\n", transfer.ID, cause, err)
		return
	}
	if !ok {
		return
	}

	log.Warnf("Transfer %s failed: %s\n", transfer.ID, cause)
	if err := service.files.RecordDownloadError(ctx, transfer.FileID, cause); err != nil {
		log.Warnf("Failed to record download error on file %s: %v\n", transfer.FileID, err)
	}

	service.metrics.TransfersTotal.WithLabelValues(string(TransferFailed)).Inc()
	service.eventBus.Dispatch(event.TransferUpdateEvent, transfer.ID)
	service.cleanupIfIdle(ctx, transfer)
}

// cleanupIfIdle removes the part files of a transfer which did not
// complete, once no chunk worker is still writing to them.
func (service *Service) cleanupIfIdle(ctx context.Context, transfer *Transfer) {
	chunks, err := service.store.ListChunks(ctx, transfer.ID)
	if err != nil {
		return
	}
	for _, c := range chunks {
		if c.Status == ChunkDownloading {
			return
		}
	}

	service.removeParts(transfer.ID)
}

func (service *Service) removeParts(transferID uuid.UUID) {
	dir := filepath.Join(service.config.PartsDir, transferID.String())
	if err := os.RemoveAll(dir); err != nil {
		log.Warnf("Failed to remove part directory %s: %v\n", dir, err)
	}
}

// sweepLeases returns chunks whose lease has expired (i.e. their worker
// crashed or stalled) to pending, freeing their domain slot.
func (service *Service) sweepLeases(ctx context.Context) {
	result, err := service.store.ReclaimExpiredLeases(ctx, service.config.MaxChunkClaims)
	if err != nil {
		log.Errorf("Failed to reclaim expired chunk leases: %v\n", err)
		return
	}

	if result.Requeued > 0 {
		log.Infof("Reclaimed %d chunk(s) with expired leases\n", result.Requeued)
	}
	for _, id := range result.Failed {
		service.evaluateTransfer(ctx, id)
	}
}

// collectOrphanedParts removes part directories which belong to transfers
// that no longer exist, or that will never use them again.
func (service *Service) collectOrphanedParts(ctx context.Context) {
	entries, err := os.ReadDir(service.config.PartsDir)
	if err != nil {
		log.Warnf("Failed to read parts directory %s: %v\n", service.config.PartsDir, err)
		return
	}

	for _, entry := range entries {
		id, err := uuid.Parse(entry.Name())
		if err != nil || !entry.IsDir() {
			continue
		}

		t, err := service.store.GetTransfer(ctx, id)
		if errors.Is(err, ErrTransferNotFound) || (err == nil && t.Status.IsTerminal()) {
			log.Emit(logger.REMOVE, "Removing orphaned parts of transfer %s\n", id)
			service.removeParts(id)
		}
	}
}

// resumeTransfers re-evaluates every unfinished transfer, so that those
// which completed all of their chunks before a restart are finalized.
func (service *Service) resumeTransfers(ctx context.Context) {
	transfers, err := service.store.ListTransfers(ctx)
	if err != nil {
		log.Errorf("Failed to list transfers for resumption: %v\n", err)
		return
	}

	for _, t := range transfers {
		if t.Status == TransferDownloading {
			service.evaluateTransfer(ctx, t.ID)
		}
	}
}

func (service *Service) wakeupWorkers() {
	if err := service.pool.WakeupWorkers(); err != nil {
		log.Debugf("Unable to wake chunk workers: %v\n", err)
	}
}

// limiterFor returns the shared request rate limiter for the domain.
func (service *Service) limiterFor(domain string) *rate.Limiter {
	service.limiterMutex.Lock()
	defer service.limiterMutex.Unlock()

	if l, ok := service.limiters[domain]; ok {
		return l
	}

	limit := rate.Inf
	if rps := service.config.DomainRequestsPerSecond; rps > 0 {
		limit = rate.Limit(rps)
	}

	l := rate.NewLimiter(limit, max(1, service.config.DomainConcurrency))
	service.limiters[domain] = l
	return l
}

// DestinationPath returns where the file will be published:
// '<dir>/<first two characters of ID>/<ID><extension of URL path>'.
func DestinationPath(downloadDir string, fileID uuid.UUID, source *url.URL) string {
	id := fileID.String()
	return filepath.Join(downloadDir, id[:2], id+safeExtension(source.Path))
}

func safeExtension(urlPath string) string {
	ext := strings.ToLower(path.Ext(urlPath))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}

	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}

	return ext
}
