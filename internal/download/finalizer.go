package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hbomb79/Trove/internal/classify"
	"github.com/hbomb79/Trove/internal/event"
	"github.com/hbomb79/Trove/pkg/logger"
)

// finalize merges the completed parts of the transfer in to its destination.
// The parts are concatenated strictly by index in to a staging file which is
// verified and then renamed in to place, so the destination is never
// observed partially written. Returns an error (and leaves the target file
// record untouched) if any verification fails.
func (service *Service) finalize(ctx context.Context, transfer *Transfer, chunks []*Chunk) error {
	if err := ValidateChunkSet(chunks, transfer.TotalBytes); err != nil {
		return err
	}
	for _, c := range chunks {
		if c.Status != ChunkCompleted {
			return fmt.Errorf("%w: chunk %d is %s", ErrIntegrity, c.Index, c.Status)
		}
	}

	dest := transfer.DestinationPath
	if err := os.MkdirAll(filepath.Dir(dest), os.ModeDir|os.ModePerm); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	staging := fmt.Sprintf("%s.staging-%s", dest, transfer.ID)
	written, err := mergeParts(staging, chunks)
	if err != nil {
		_ = os.Remove(staging)
		return err
	}

	if transfer.TotalBytes != nil && written != *transfer.TotalBytes {
		_ = os.Remove(staging)
		return fmt.Errorf("%w: merged %d bytes but transfer expects %d", ErrIntegrity, written, *transfer.TotalBytes)
	}

	if err := os.Rename(staging, dest); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("failed to publish %s: %w", dest, err)
	}

	now := time.Now()
	if err := service.files.MarkDownloaded(ctx, transfer.FileID, dest, written, now); err != nil {
		return fmt.Errorf("failed to update file %s: %w", transfer.FileID, err)
	}

	if ok, err := service.store.TransitionTransfer(ctx, transfer.ID, TransferCompleted, ""); err != nil {
		return err
	} else if !ok {
		log.Warnf("Transfer %s was finalized but could not be marked completed (canceled concurrently?)\n", transfer.ID)
	}

	service.removeParts(transfer.ID)
	if err := service.store.DeleteChunks(ctx, transfer.ID); err != nil {
		log.Warnf("Failed to delete chunks of finalized transfer %s: %v\n", transfer.ID, err)
	}

	log.Emit(logger.SUCCESS, "Transfer %s finalized to %s (%d bytes)\n", transfer.ID, dest, written)
	service.metrics.TransfersTotal.WithLabelValues(string(TransferCompleted)).Inc()
	service.metrics.FinalizedFileSize.Observe(float64(written))
	service.eventBus.Dispatch(event.TransferUpdateEvent, transfer.ID)
	service.eventBus.Dispatch(event.FileFinalizedEvent, transfer.FileID)

	sessionID := ""
	if transfer.SessionID != nil {
		sessionID = *transfer.SessionID
	}
	if _, err := service.classifier.Classify(ctx, classify.Request{FileID: transfer.FileID, SessionID: sessionID}); err != nil {
		log.Warnf("Classification of file %s failed: %v\n", transfer.FileID, err)
	}

	return nil
}

// mergeParts streams every part, in order, in to a freshly created file at
// the staging path. Each bounded part must hold exactly its chunk's bytes.
func mergeParts(staging string, chunks []*Chunk) (int64, error) {
	out, err := os.OpenFile(staging, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create staging file: %w", err)
	}
	defer out.Close()

	var written int64
	for _, c := range chunks {
		n, err := appendPart(out, c)
		if err != nil {
			return 0, err
		}
		written += n
	}

	if err := out.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync staging file: %w", err)
	}

	return written, out.Close()
}

func appendPart(out io.Writer, c *Chunk) (int64, error) {
	part, err := os.Open(c.PartPath)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to open part %d: %w", ErrIntegrity, c.Index, err)
	}
	defer part.Close()

	stat, err := part.Stat()
	if err != nil {
		return 0, err
	}
	if size := c.Size(); size >= 0 && stat.Size() != size {
		return 0, fmt.Errorf("%w: part %d holds %d bytes, expected %d", ErrIntegrity, c.Index, stat.Size(), size)
	}

	n, err := io.Copy(out, part)
	if err != nil {
		return 0, fmt.Errorf("failed to copy part %d: %w", c.Index, err)
	}

	return n, nil
}
