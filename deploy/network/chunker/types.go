// Package chunker splits an artifact into byte ranges and drives their
// transmission, either strictly in order or through a bounded worker pool.
package chunker

import (
	"context"
	"fmt"
	"io"
)

// Status is the lifecycle state of a single chunk.
type Status int

const (
	// StatusPending means the chunk has not been handed to a transmitter yet.
	StatusPending Status = iota
	// StatusInFlight means a transmitter is currently sending the chunk.
	StatusInFlight
	// StatusCommitted means the remote service acknowledged the chunk.
	StatusCommitted
	// StatusFailed means the chunk reached a terminal error. Failed is terminal
	// for the whole upload, there is no transition back to Pending.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInFlight:
		return "in-flight"
	case StatusCommitted:
		return "committed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// OutcomeKind classifies the server's answer to one chunk transmission.
type OutcomeKind int

const (
	// OutcomeContinue means the chunk was accepted and more chunks are expected.
	OutcomeContinue OutcomeKind = iota
	// OutcomeComplete means the chunk was accepted and the upload is done.
	OutcomeComplete
	// OutcomeFatal means the chunk was rejected.
	OutcomeFatal
)

// Outcome is the classified result of one chunk transmission.
// StatusCode and Body are only meaningful for OutcomeFatal.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	Body       string
}

// Transmitter sends exactly one chunk using the wire protocol dictated by the
// upload session. A returned error indicates a transport-level failure (the
// request never produced a classifiable response).
type Transmitter interface {
	Transmit(ctx context.Context, chunk Chunk, body io.Reader) (Outcome, error)
}

// PayloadSource provides the payload bytes of a chunk. Payload may be called
// concurrently for different chunks.
type PayloadSource interface {
	Payload(chunk Chunk) (io.Reader, error)
}
