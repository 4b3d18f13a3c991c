package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Trove/internal/event"
	"github.com/hbomb79/Trove/pkg/worker"
)

const copyBufferSize = 32 * 1024

// chunkRun holds the state of a single claimed chunk as it is worked.
type chunkRun struct {
	transfer *Transfer
	chunk    *Chunk
	owner    string
	have     int64
}

// workerTick is the work function of the chunk workers: it claims one
// chunk (if any is claimable) and runs it to an outcome.
func (service *Service) workerTick(w worker.Worker) (bool, error) {
	ctx := service.ctx
	if ctx.Err() != nil {
		return false, nil
	}

	owner := fmt.Sprintf("%s/%s", w.Label(), uuid.NewString())
	chunk, transfer, err := service.store.ClaimChunk(ctx, ClaimParams{
		Owner:         owner,
		DomainCeiling: service.config.DomainConcurrency,
		Lease:         service.config.ChunkLease,
	})
	if err != nil {
		return false, fmt.Errorf("failed to claim chunk: %w", err)
	}
	if chunk == nil {
		return false, nil
	}

	service.runChunk(ctx, &chunkRun{transfer: transfer, chunk: chunk, owner: owner})
	return true, nil
}

// runChunk makes up to ChunkAttempts attempts at downloading the claimed
// chunk, then records the outcome. Every outcome (including a panic)
// releases the chunk, and with it the domain slot it held.
func (service *Service) runChunk(ctx context.Context, run *chunkRun) {
	t, c := run.transfer, run.chunk
	started := time.Now()
	inFlight := service.metrics.ChunksInFlight.WithLabelValues(t.Domain)
	inFlight.Inc()
	defer inFlight.Dec()

	log.Debugf("Worker %s claimed chunk %d of transfer %s (claim %d)\n", run.owner, c.Index, t.ID, c.Attempts)

	chunkCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go service.renewLease(chunkCtx, cancel, run)

	var attemptErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				attemptErr = fmt.Errorf("chunk worker panic: %v", r)
			}
		}()

		attemptErr = service.attemptChunk(chunkCtx, run)
	}()

	service.metrics.ChunkDuration.WithLabelValues(t.Domain).Observe(time.Since(started).Seconds())

	// The parent context may be cancelled during shutdown, but the outcome
	// must still be recorded.
	releaseCtx, releaseCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer releaseCancel()

	var releaseErr error
	terminal := true
	switch {
	case attemptErr == nil:
		service.metrics.ChunkAttemptsTotal.WithLabelValues(t.Domain, "completed").Inc()
		releaseErr = service.store.CompleteChunk(releaseCtx, t.ID, c.Index, run.owner, run.have)
	case errors.Is(attemptErr, errLeaseLost) || errors.Is(context.Cause(chunkCtx), errLeaseLost):
		log.Warnf("Worker %s lost the lease on chunk %d of transfer %s\n", run.owner, c.Index, t.ID)
		return
	case ctx.Err() != nil:
		terminal = false
		releaseErr = service.store.RequeueChunk(releaseCtx, t.ID, c.Index, run.owner, "interrupted by shutdown")
	case isPermanent(attemptErr):
		service.metrics.ChunkAttemptsTotal.WithLabelValues(t.Domain, "failed").Inc()
		releaseErr = service.store.FailChunk(releaseCtx, t.ID, c.Index, run.owner, attemptErr.Error())
	case c.Attempts >= service.config.MaxChunkClaims:
		service.metrics.ChunkAttemptsTotal.WithLabelValues(t.Domain, "exhausted").Inc()
		releaseErr = service.store.FailChunk(releaseCtx, t.ID, c.Index, run.owner, fmt.Sprintf("exhausted %d claims: %v", c.Attempts, attemptErr))
	default:
		// Give the slot back so that chunks of other domains may use this
		// worker. The chunk will be claimed again later.
		terminal = false
		service.metrics.ChunkAttemptsTotal.WithLabelValues(t.Domain, "requeued").Inc()
		log.Warnf("Requeueing chunk %d of transfer %s after claim %d/%d failed: %v\n", c.Index, t.ID, c.Attempts, service.config.MaxChunkClaims, attemptErr)
		releaseErr = service.store.RequeueChunk(releaseCtx, t.ID, c.Index, run.owner, attemptErr.Error())
	}

	if releaseErr != nil {
		log.Errorf("Failed to record outcome of chunk %d of transfer %s: %v\n", c.Index, t.ID, releaseErr)
		return
	}

	if terminal {
		service.evaluateTransfer(releaseCtx, t.ID)
	}
}

// attemptChunk retries the download of the chunk with exponential backoff
// until it succeeds, fails permanently or the attempt budget is spent.
func (service *Service) attemptChunk(ctx context.Context, run *chunkRun) error {
	var err error
	for attempt := 1; attempt <= service.config.ChunkAttempts; attempt++ {
		if attempt > 1 {
			if sleepErr := sleepCtx(ctx, backoffDelay(service.config.RetryBackoff, service.config.RetryMaxBackoff, attempt-1)); sleepErr != nil {
				return sleepErr
			}
		}

		err = service.downloadChunk(ctx, run)
		if err == nil || isPermanent(err) || errors.Is(err, errLeaseLost) || ctx.Err() != nil {
			return err
		}

		log.Warnf("Attempt %d/%d of chunk %d of transfer %s failed: %v\n", attempt, service.config.ChunkAttempts, run.chunk.Index, run.transfer.ID, err)
	}

	return err
}

// downloadChunk performs a single attempt: the part file is resumed from its
// current length (where the origin allows), and the response is streamed in
// to it. Writes never exceed the size of the chunk.
func (service *Service) downloadChunk(ctx context.Context, run *chunkRun) error {
	t, c := run.transfer, run.chunk
	if err := service.limiterFor(t.Domain).Wait(ctx); err != nil {
		return err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, service.config.ChunkAttemptTimeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(c.PartPath), os.ModeDir|os.ModePerm); err != nil {
		return fmt.Errorf("failed to create part directory: %w", err)
	}

	part, err := os.OpenFile(c.PartPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open part file: %w", err)
	}
	defer part.Close()

	stat, err := part.Stat()
	if err != nil {
		return err
	}

	size := c.Size()
	have := stat.Size()
	if have > 0 && (c.OpenEnded() || !t.AcceptsRanges || have > size) {
		if err := part.Truncate(0); err != nil {
			return err
		}
		have = 0
	}
	run.have = have

	if size >= 0 && have == size {
		return part.Sync()
	}
	if _, err := part.Seek(have, io.SeekStart); err != nil {
		return err
	}

	fetch := FetchRequest{URL: t.SourceURL, Start: c.RangeStart + have, End: c.RangeEnd}
	if !t.AcceptsRanges || c.OpenEnded() {
		fetch = FetchRequest{URL: t.SourceURL, Start: 0, End: -1, Whole: true}
	} else if c.RangeStart == 0 && have == 0 && t.TotalBytes != nil && c.RangeEnd == *t.TotalBytes-1 {
		fetch.Whole = true
	}

	body, err := service.origin.Fetch(attemptCtx, fetch)
	if err != nil {
		return err
	}
	defer body.Close()

	buf := make([]byte, copyBufferSize)
	unflushed := int64(0)
	lastFlush := time.Now()
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			write := int64(n)
			overflow := size >= 0 && run.have+write > size
			if overflow {
				write = size - run.have
			}

			if _, err := part.Write(buf[:write]); err != nil {
				return fmt.Errorf("failed to write part file: %w", err)
			}
			run.have += write
			unflushed += write

			if overflow {
				_ = part.Truncate(0)
				run.have = 0
				return fmt.Errorf("%w: origin sent more than the %d bytes of chunk %d", ErrIntegrity, size, c.Index)
			}
		}

		if unflushed >= service.config.ProgressFlushBytes || (unflushed > 0 && time.Since(lastFlush) >= service.config.ProgressFlushInterval) {
			if err := service.flushProgress(ctx, run, unflushed); err != nil {
				return err
			}
			unflushed = 0
			lastFlush = time.Now()
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = service.flushProgress(ctx, run, unflushed)
			return fmt.Errorf("failed reading from origin: %w", readErr)
		}
	}

	if err := part.Sync(); err != nil {
		return err
	}
	if err := service.flushProgress(ctx, run, unflushed); err != nil {
		return err
	}

	if size >= 0 && run.have != size {
		return fmt.Errorf("%w: chunk %d received %d of %d bytes", ErrIntegrity, c.Index, run.have, size)
	}

	return nil
}

// flushProgress records the chunk's progress, dispatching a progress event
// if the transfer crossed a whole percent boundary.
func (service *Service) flushProgress(ctx context.Context, run *chunkRun, delta int64) error {
	t := run.transfer
	service.metrics.BytesDownloaded.WithLabelValues(t.Domain).Add(float64(delta))

	progress, err := service.store.RecordChunkProgress(ctx, t.ID, run.chunk.Index, run.owner, run.have)
	if err != nil {
		return err
	}

	percent := percentOf(progress.BytesDownloaded, progress.TotalBytes)
	if percent <= progress.LastBroadcastPercent {
		return nil
	}

	if advanced, err := service.store.AdvanceBroadcastPercent(ctx, t.ID, percent); err != nil {
		log.Warnf("Failed to advance broadcast percentage of transfer %s: %v\n", t.ID, err)
	} else if advanced {
		service.eventBus.Dispatch(event.TransferProgressEvent, t.ID)
	}

	return nil
}

// renewLease extends the chunk's lease periodically while it is being
// worked. If the lease is lost, the work is cancelled.
func (service *Service) renewLease(ctx context.Context, cancel context.CancelCauseFunc, run *chunkRun) {
	interval := max(service.config.ChunkLease/3, 10*time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := service.store.RenewLease(ctx, run.transfer.ID, run.chunk.Index, run.owner, service.config.ChunkLease)
			if errors.Is(err, errLeaseLost) {
				cancel(errLeaseLost)
				return
			} else if err != nil && ctx.Err() == nil {
				log.Warnf("Failed to renew lease on chunk %d of transfer %s: %v\n", run.chunk.Index, run.transfer.ID, err)
			}
		}
	}
}
