package network

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/gofrs/uuid"
)

// ProtocolVariant selects the wire protocol of an upload session. The variant
// is fixed at negotiation time; transmitters and the finalizer dispatch on it.
type ProtocolVariant int

const (
	// ByteRangeResumable is the two-phase resumable protocol: an initiating
	// request returns a dedicated upload URL and raw chunks are PUT with
	// Content-Range headers. Completion is implicit in the last chunk's response.
	ByteRangeResumable ProtocolVariant = iota
	// ChunkIDFinalize sends each chunk as an independently numbered JSON unit
	// under a client-generated upload id, closed by an explicit finalize call.
	ChunkIDFinalize
)

func (v ProtocolVariant) String() string {
	switch v {
	case ByteRangeResumable:
		return "byte-range"
	case ChunkIDFinalize:
		return "chunk-id"
	default:
		return fmt.Sprintf("protocol(%d)", int(v))
	}
}

// UploadSession describes one negotiated upload attempt. Sessions are never
// reused across attempts and are not persisted, so a crashed upload cannot be
// resumed; callers start over with a fresh session.
type UploadSession struct {
	Variant ProtocolVariant
	// UploadURL is the concrete chunk endpoint (byte-range variant only).
	UploadURL string
	// UploadID is the opaque client-generated session id (chunk-id variant only).
	UploadID  string
	ChunkSize int64
	TotalSize int64
}

// newChunkIDSession starts a chunk-id session. No network round trip is
// needed: all state travels in each chunk request body.
func newChunkIDSession(chunkSize, totalSize int64) (UploadSession, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return UploadSession{}, fmt.Errorf("generate upload id: %w", err)
	}
	return UploadSession{
		Variant:   ChunkIDFinalize,
		UploadID:  id.String(),
		ChunkSize: chunkSize,
		TotalSize: totalSize,
	}, nil
}

// legacyAPIPathPrefix is still returned in upload locations by older service
// deployments. It is rewritten to the versioned API path of the configured base.
const legacyAPIPathPrefix = "/API/"

// resolveUploadLocation turns the upload-location header value into an
// absolute URL. Relative locations are resolved against the scheme and host of
// the API base, and the legacy /API/ path segment is rewritten to the base's
// current API path.
func resolveUploadLocation(apiBaseURL, location string) (string, error) {
	if location == "" {
		return "", fmt.Errorf("empty upload location")
	}

	base, err := url.Parse(apiBaseURL)
	if err != nil {
		return "", fmt.Errorf("parse API base URL: %w", err)
	}
	loc, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse upload location: %w", err)
	}

	if loc.Scheme == "" {
		loc.Scheme = base.Scheme
	}
	if loc.Host == "" {
		loc.Host = base.Host
	}
	if strings.HasPrefix(loc.Path, legacyAPIPathPrefix) {
		loc.Path = path.Join(base.Path, strings.TrimPrefix(loc.Path, legacyAPIPathPrefix))
	}

	return loc.String(), nil
}
