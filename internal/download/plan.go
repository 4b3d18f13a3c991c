package download

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

type (
	// ChunkPolicy controls how a transfer is partitioned.
	ChunkPolicy struct {
		MultipartThreshold int64
		ChunkSize          int64
		MinChunkSize       int64
		MaxChunks          int
	}

	// ProbeResult describes what the origin told us about a resource.
	// Size is -1 when the origin did not report one.
	ProbeResult struct {
		Size          int64
		AcceptsRanges bool
		ContentType   string
	}
)

func (config Config) chunkPolicy() ChunkPolicy {
	return ChunkPolicy{
		MultipartThreshold: config.MultipartThreshold,
		ChunkSize:          config.ChunkSize,
		MinChunkSize:       config.MinChunkSize,
		MaxChunks:          config.MaxChunksPerTransfer,
	}
}

// PlanChunks partitions the probed resource in to pending chunks. Only an
// origin which honours byte ranges and reports a size above the multipart
// threshold is split, in to chunks of ChunkSize (raised so that no more
// than MaxChunks are produced, and never below MinChunkSize). All other
// resources are fetched as a single chunk, which is open-ended when the
// size is unknown.
func PlanChunks(transferID uuid.UUID, partsDir string, probe ProbeResult, policy ChunkPolicy) []*Chunk {
	newChunk := func(idx int, start, end int64) *Chunk {
		return &Chunk{
			TransferID: transferID,
			Index:      idx,
			RangeStart: start,
			RangeEnd:   end,
			Status:     ChunkPending,
			PartPath:   PartPath(partsDir, transferID, idx),
		}
	}

	size := probe.Size
	if size < 0 {
		return []*Chunk{newChunk(0, 0, -1)}
	}
	if size == 0 {
		// Zero-length resources still need a chunk to drive the transfer
		// to completion; it is open-ended so no range is requested.
		return []*Chunk{newChunk(0, 0, -1)}
	}
	if !probe.AcceptsRanges || size <= policy.MultipartThreshold {
		return []*Chunk{newChunk(0, 0, size-1)}
	}

	chunkSize := max(policy.ChunkSize, policy.MinChunkSize, 1)
	if policy.MaxChunks > 0 {
		if minForCap := ceilDiv(size, int64(policy.MaxChunks)); minForCap > chunkSize {
			chunkSize = minForCap
		}
	}

	count := int(ceilDiv(size, chunkSize))
	chunks := make([]*Chunk, 0, count)
	for idx := 0; idx < count; idx++ {
		start := int64(idx) * chunkSize
		end := min(start+chunkSize, size) - 1
		chunks = append(chunks, newChunk(idx, start, end))
	}

	return chunks
}

// ValidateChunkSet checks that the chunks, which must be supplied in index
// order, have contiguous indices from zero and contiguous non-overlapping
// ranges starting at zero. When the total is known the ranges must cover
// exactly [0, total).
func ValidateChunkSet(chunks []*Chunk, total *int64) error {
	if len(chunks) == 0 {
		return fmt.Errorf("%w: transfer has no chunks", ErrIntegrity)
	}

	var next int64
	for i, c := range chunks {
		if c.Index != i {
			return fmt.Errorf("%w: chunk at position %d has index %d", ErrIntegrity, i, c.Index)
		}
		if c.RangeStart != next {
			return fmt.Errorf("%w: chunk %d starts at %d, expected %d", ErrIntegrity, i, c.RangeStart, next)
		}

		if c.OpenEnded() {
			if len(chunks) != 1 {
				return fmt.Errorf("%w: open-ended chunk %d in multi-chunk transfer", ErrIntegrity, i)
			}
			return nil
		}

		if c.RangeEnd < c.RangeStart {
			return fmt.Errorf("%w: chunk %d has inverted range %d-%d", ErrIntegrity, i, c.RangeStart, c.RangeEnd)
		}
		next = c.RangeEnd + 1
	}

	if total != nil && next != *total {
		return fmt.Errorf("%w: chunks cover %d bytes, expected %d", ErrIntegrity, next, *total)
	}

	return nil
}

// PartPath returns the location of the part file for a chunk. Parts are
// grouped in a directory per transfer so that leftovers can be collected
// by transfer ID.
func PartPath(partsDir string, transferID uuid.UUID, idx int) string {
	return filepath.Join(partsDir, transferID.String(), strconv.Itoa(idx)+".part")
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
