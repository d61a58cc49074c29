package chunker

import (
	"fmt"
	"io"
	"os"
)

// FileSource reads chunk payloads lazily from a file on disk. Each chunk is a
// disjoint byte range, so concurrent reads need no locking: every payload is an
// independent SectionReader backed by ReadAt.
type FileSource struct {
	file *os.File
	size int64
}

// NewFileSource opens path for reading chunk payloads.
func NewFileSource(path string) (*FileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, fmt.Errorf("stat artifact: %w", err)
	}

	return &FileSource{file: file, size: info.Size()}, nil
}

// Size returns the total size of the underlying file in bytes.
func (s *FileSource) Size() int64 {
	return s.size
}

// Payload returns a reader over the chunk's byte range.
func (s *FileSource) Payload(chunk Chunk) (io.Reader, error) {
	if chunk.Start < 0 || chunk.Start+chunk.Size > s.size {
		return nil, fmt.Errorf("chunk %d range [%d, %d] is outside the artifact (%d bytes)",
			chunk.Number, chunk.Start, chunk.End, s.size)
	}
	return io.NewSectionReader(s.file, chunk.Start, chunk.Size), nil
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
