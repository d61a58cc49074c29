package chunker

import (
	"errors"
	"fmt"
)

const (
	// MinChunkSizeBytes is the smallest chunk size the distribution service
	// accepts. Plans with a smaller chunk size are rejected before any
	// negotiation happens.
	MinChunkSizeBytes = 5 * 1024 * 1024

	// DefaultChunkSizeBytes matches the service's recommended 24 MiB chunks.
	DefaultChunkSizeBytes = 24 * 1024 * 1024
)

// ErrEmptySource is returned when a plan is requested for a zero-byte artifact.
var ErrEmptySource = errors.New("artifact is empty, nothing to upload")

// ErrChunkSizeTooSmall is returned when the requested chunk size is below MinChunkSizeBytes.
var ErrChunkSizeTooSmall = fmt.Errorf("chunk size is below the minimum of %d bytes", MinChunkSizeBytes)

// Chunk is one byte range of the artifact. Numbers are 1-based and contiguous,
// Start and End are inclusive offsets into the source file.
type Chunk struct {
	Number int
	Start  int64
	End    int64
	Size   int64
}

// Plan splits totalSize bytes into chunkSize-sized ranges. The returned chunks
// are contiguous, non-overlapping and cover exactly [0, totalSize). The last
// chunk carries the remainder when totalSize is not a multiple of chunkSize.
func Plan(totalSize, chunkSize int64) ([]Chunk, error) {
	if totalSize <= 0 {
		return nil, ErrEmptySource
	}
	if chunkSize < MinChunkSizeBytes {
		return nil, ErrChunkSizeTooSmall
	}

	count := int((totalSize + chunkSize - 1) / chunkSize)
	chunks := make([]Chunk, 0, count)
	for i := 0; i < count; i++ {
		start := int64(i) * chunkSize
		size := chunkSize
		if remaining := totalSize - start; remaining < size {
			size = remaining
		}
		chunks = append(chunks, Chunk{
			Number: i + 1,
			Start:  start,
			End:    start + size - 1,
			Size:   size,
		})
	}
	return chunks, nil
}
