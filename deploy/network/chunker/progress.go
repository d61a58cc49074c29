package chunker

import (
	"sync"
	"time"
)

// ProgressTable tracks per-chunk transfer state. It is the only mutable state
// shared between workers; every transition goes through the mutex so Snapshot
// can be called from a renderer goroutine while transmissions are in flight.
type ProgressTable struct {
	mu        sync.Mutex
	totalSize int64
	entries   map[int]*progressEntry
	order     []int
}

type progressEntry struct {
	chunk    Chunk
	status   Status
	started  time.Time
	finished time.Time
}

// NewProgressTable creates a table with one Pending entry per planned chunk.
func NewProgressTable(plan []Chunk, totalSize int64) *ProgressTable {
	entries := make(map[int]*progressEntry, len(plan))
	order := make([]int, 0, len(plan))
	for _, c := range plan {
		entries[c.Number] = &progressEntry{chunk: c, status: StatusPending}
		order = append(order, c.Number)
	}
	return &ProgressTable{
		totalSize: totalSize,
		entries:   entries,
		order:     order,
	}
}

func (t *ProgressTable) markInFlight(number int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[number]; ok && e.status == StatusPending {
		e.status = StatusInFlight
		e.started = time.Now()
	}
}

func (t *ProgressTable) markCommitted(number int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[number]; ok && e.status != StatusFailed {
		e.status = StatusCommitted
		e.finished = time.Now()
	}
}

func (t *ProgressTable) markFailed(number int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// Committed never regresses.
	if e, ok := t.entries[number]; ok && e.status != StatusCommitted {
		e.status = StatusFailed
		e.finished = time.Now()
	}
}

// ChunkProgress is a read-only projection of one chunk's state.
type ChunkProgress struct {
	Number  int
	Status  Status
	Bytes   int64
	Elapsed time.Duration
	// BytesPerSec is the chunk's transfer rate, available once it committed.
	BytesPerSec float64
}

// Snapshot is a read-only projection of the whole table.
type Snapshot struct {
	Chunks         []ChunkProgress
	CommittedBytes int64
	TotalBytes     int64
	Percent        float64
	InFlight       int
}

// Snapshot returns the current state of every chunk. Safe to call concurrently
// with in-flight transmitters; it never blocks a transmitter on a renderer.
func (t *ProgressTable) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		Chunks:     make([]ChunkProgress, 0, len(t.order)),
		TotalBytes: t.totalSize,
	}
	for _, number := range t.order {
		e := t.entries[number]
		cp := ChunkProgress{
			Number: e.chunk.Number,
			Status: e.status,
		}
		switch e.status {
		case StatusInFlight:
			cp.Elapsed = time.Since(e.started)
			snap.InFlight++
		case StatusCommitted:
			cp.Bytes = e.chunk.Size
			cp.Elapsed = e.finished.Sub(e.started)
			if secs := cp.Elapsed.Seconds(); secs > 0 {
				cp.BytesPerSec = float64(e.chunk.Size) / secs
			}
			snap.CommittedBytes += e.chunk.Size
		case StatusFailed:
			cp.Elapsed = e.finished.Sub(e.started)
		}
		snap.Chunks = append(snap.Chunks, cp)
	}
	if t.totalSize > 0 {
		snap.Percent = float64(snap.CommittedBytes) / float64(t.totalSize) * 100
	}
	return snap
}
