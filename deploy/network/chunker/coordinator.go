package chunker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
)

// ChunkError is the terminal failure of one chunk. StatusCode and Body are set
// when the service rejected the chunk, Err when the request itself failed.
type ChunkError struct {
	Number     int
	StatusCode int
	Body       string
	Err        error
}

func (e *ChunkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chunk %d: %s", e.Number, e.Err)
	}
	return fmt.Sprintf("chunk %d rejected with status %d: %s", e.Number, e.StatusCode, e.Body)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// TransferError aggregates every failed chunk of a parallel run.
type TransferError struct {
	Failed []*ChunkError
}

func (e *TransferError) Error() string {
	msgs := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("%d chunk(s) failed: %s", len(e.Failed), strings.Join(msgs, "; "))
}

// Coordinator drives chunk transmissions and keeps the progress table current.
type Coordinator struct {
	throttle int
	progress *ProgressTable
	logger   log.Logger
}

// NewCoordinator creates a coordinator. throttle caps the number of concurrent
// transmissions in the parallel policy; values below 1 fall back to DefaultThrottle.
func NewCoordinator(throttle int, progress *ProgressTable, logger log.Logger) *Coordinator {
	if throttle < 1 {
		throttle = DefaultThrottle
	}
	return &Coordinator{
		throttle: throttle,
		progress: progress,
		logger:   logger,
	}
}

// RunSequential transmits chunks strictly in order. The byte-range protocol
// requires it: the service tracks its accumulated offset, so a chunk may only
// be sent once the previous chunk's response arrived.
//
// A Complete outcome stops the run. Receiving it before the planned last chunk
// is unusual and is surfaced as a warning, not an error.
func (c *Coordinator) RunSequential(ctx context.Context, plan []Chunk, source PayloadSource, tx Transmitter) error {
	for i, chunk := range plan {
		body, err := source.Payload(chunk)
		if err != nil {
			c.progress.markFailed(chunk.Number)
			return &ChunkError{Number: chunk.Number, Err: err}
		}

		c.progress.markInFlight(chunk.Number)
		outcome, err := tx.Transmit(ctx, chunk, body)
		if err != nil {
			c.progress.markFailed(chunk.Number)
			return &ChunkError{Number: chunk.Number, Err: err}
		}

		switch outcome.Kind {
		case OutcomeContinue:
			c.progress.markCommitted(chunk.Number)
			if i == len(plan)-1 {
				return &ChunkError{
					Number: chunk.Number,
					Err:    fmt.Errorf("service expects more data after the final chunk (%d of %d)", chunk.Number, len(plan)),
				}
			}
		case OutcomeComplete:
			c.progress.markCommitted(chunk.Number)
			if i < len(plan)-1 {
				c.logger.Warnf("Upload reported complete at chunk %d of %d, skipping the remaining chunks", chunk.Number, len(plan))
			}
			return nil
		case OutcomeFatal:
			c.progress.markFailed(chunk.Number)
			return &ChunkError{Number: chunk.Number, StatusCode: outcome.StatusCode, Body: outcome.Body}
		}
	}
	return nil
}

// RunParallel transmits chunks through a bounded worker pool. Chunk order is
// reconstructed by the service from chunk numbers, so local completion order
// does not matter. A failed chunk marks the whole run as failed, but workers
// already in flight finish first; the returned TransferError lists every
// failed chunk.
func (c *Coordinator) RunParallel(ctx context.Context, plan []Chunk, source PayloadSource, tx Transmitter) error {
	results := make(chan *ChunkError, len(plan))
	semaphore := make(chan struct{}, c.throttle)

	for _, chunk := range plan {
		go func(chunk Chunk) {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			results <- c.transmitOne(ctx, chunk, source, tx)
		}(chunk)
	}

	var failed []*ChunkError
	for range plan {
		if chunkErr := <-results; chunkErr != nil {
			failed = append(failed, chunkErr)
		}
	}

	if len(failed) > 0 {
		sort.Slice(failed, func(i, j int) bool { return failed[i].Number < failed[j].Number })
		return &TransferError{Failed: failed}
	}
	return nil
}

func (c *Coordinator) transmitOne(ctx context.Context, chunk Chunk, source PayloadSource, tx Transmitter) *ChunkError {
	body, err := source.Payload(chunk)
	if err != nil {
		c.progress.markFailed(chunk.Number)
		return &ChunkError{Number: chunk.Number, Err: err}
	}

	c.progress.markInFlight(chunk.Number)
	outcome, err := tx.Transmit(ctx, chunk, body)
	if err != nil {
		c.progress.markFailed(chunk.Number)
		return &ChunkError{Number: chunk.Number, Err: err}
	}

	switch outcome.Kind {
	case OutcomeContinue, OutcomeComplete:
		c.progress.markCommitted(chunk.Number)
		return nil
	default:
		c.progress.markFailed(chunk.Number)
		return &ChunkError{Number: chunk.Number, StatusCode: outcome.StatusCode, Body: outcome.Body}
	}
}
