package network

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChunkSize = 5 * 1024 * 1024

func writeArtifact(t *testing.T, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "App-1.2.3.zip")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 253)
	}
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

// byteRangeServer implements the resumable byte-range protocol for tests:
// the initiating POST answers 308 with an upload location, chunk PUTs answer
// 308 until the accumulated offset covers the declared total.
type byteRangeServer struct {
	mu            sync.Mutex
	totalSize     int64
	received      int64
	sessionOpened bool
	chunkRanges   []string
}

func (s *byteRangeServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/upload"):
			s.sessionOpened = true
			s.totalSize, _ = strconv.ParseInt(r.Header.Get("X-Upload-Content-Length"), 10, 64)
			w.Header().Set("X-Upload-Location", "/sessions/test-session")
			w.WriteHeader(http.StatusPermanentRedirect)
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/sessions/"):
			n, _ := io.Copy(io.Discard, r.Body)
			s.received += n
			s.chunkRanges = append(s.chunkRanges, r.Header.Get("Content-Range"))
			if s.received >= s.totalSize {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusPermanentRedirect)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func TestUploadByteRange(t *testing.T) {
	backend := &byteRangeServer{}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	size := int64(2*testChunkSize + 1024)
	path := writeArtifact(t, size)

	err := Upload(context.Background(), UploadParams{
		APIBaseURL:  server.URL,
		Token:       "test-token",
		ArchivePath: path,
		Target: UploadTarget{
			OrgID:     "org-1",
			PackageID: "pkg-1",
			VersionID: "ver-1",
			Platform:  "Mac_Intel",
			FileName:  filepath.Base(path),
		},
		Protocol:  ByteRangeResumable,
		ChunkSize: testChunkSize,
	}, log.NewLogger())

	require.NoError(t, err)
	assert.True(t, backend.sessionOpened)
	assert.Equal(t, size, backend.received)
	require.Len(t, backend.chunkRanges, 3)
	assert.Equal(t, fmt.Sprintf("bytes 0-%d/%d", testChunkSize-1, size), backend.chunkRanges[0])
	assert.Equal(t, fmt.Sprintf("bytes %d-%d/%d", 2*testChunkSize, size-1, size), backend.chunkRanges[2])
}

func TestUploadByteRangeNegotiationFailureSendsNoChunk(t *testing.T) {
	var chunkRequests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			chunkRequests++
			return
		}
		// 308 without the upload-location header
		w.WriteHeader(http.StatusPermanentRedirect)
	}))
	defer server.Close()

	path := writeArtifact(t, testChunkSize+10)

	err := Upload(context.Background(), UploadParams{
		APIBaseURL:  server.URL,
		Token:       "test-token",
		ArchivePath: path,
		Target:      UploadTarget{PackageID: "pkg-1", VersionID: "ver-1", Platform: "Mac_Intel"},
		Protocol:    ByteRangeResumable,
		ChunkSize:   testChunkSize,
	}, log.NewLogger())

	var protocolErr *ProtocolError
	require.ErrorAs(t, err, &protocolErr)
	assert.Equal(t, 0, chunkRequests, "no chunk may be transmitted after a failed negotiation")
}

// chunkIDServer implements the chunk-id/finalize protocol for tests.
type chunkIDServer struct {
	mu        sync.Mutex
	chunks    map[int][]byte
	finalized int
	uploadIDs map[string]struct{}
}

func (s *chunkIDServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		switch r.URL.Path {
		case "/software-repository/upload/chunk":
			var req chunkUploadRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			data, err := base64.StdEncoding.DecodeString(req.ChunkData)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if s.chunks == nil {
				s.chunks = map[int][]byte{}
				s.uploadIDs = map[string]struct{}{}
			}
			s.chunks[req.ChunkNumber] = data
			s.uploadIDs[req.UploadID] = struct{}{}
			w.WriteHeader(http.StatusOK)
		case "/software-repository/upload/finalize":
			s.finalized++
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func TestUploadChunkIDFinalize(t *testing.T) {
	backend := &chunkIDServer{}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	size := int64(3*testChunkSize + 512)
	path := writeArtifact(t, size)

	err := Upload(context.Background(), UploadParams{
		APIBaseURL:  server.URL,
		Token:       "test-token",
		ArchivePath: path,
		Target: UploadTarget{
			OrgID:     "org-1",
			PackageID: "pkg-1",
			VersionID: "ver-1",
			Platform:  "Mac_AppleSilicon",
			FileName:  filepath.Base(path),
		},
		Protocol:  ChunkIDFinalize,
		ChunkSize: testChunkSize,
		Throttle:  2,
	}, log.NewLogger())

	require.NoError(t, err)
	assert.Equal(t, 1, backend.finalized, "finalize must be called exactly once")
	require.Len(t, backend.chunks, 4)
	assert.Len(t, backend.uploadIDs, 1, "all chunks share one upload id")

	var total int64
	for _, data := range backend.chunks {
		total += int64(len(data))
	}
	assert.Equal(t, size, total)
	assert.Len(t, backend.chunks[4], 512)
}

func TestUploadChunkIDFailedChunkSkipsFinalize(t *testing.T) {
	var finalized int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.URL.Path {
		case "/software-repository/upload/chunk":
			var req chunkUploadRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if req.ChunkNumber == 2 {
				w.WriteHeader(http.StatusInsufficientStorage)
				w.Write([]byte("quota exceeded")) //nolint:errcheck
				return
			}
			w.WriteHeader(http.StatusOK)
		case "/software-repository/upload/finalize":
			finalized++
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	path := writeArtifact(t, int64(2*testChunkSize+100))

	err := Upload(context.Background(), UploadParams{
		APIBaseURL:  server.URL,
		Token:       "test-token",
		ArchivePath: path,
		Target:      UploadTarget{PackageID: "pkg-1", VersionID: "ver-1", FileName: "a.zip"},
		Protocol:    ChunkIDFinalize,
		ChunkSize:   testChunkSize,
		Throttle:    2,
	}, log.NewLogger())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 2")
	assert.Equal(t, 0, finalized, "finalize must not run when a chunk failed")
}

func TestUploadValidation(t *testing.T) {
	logger := log.NewLogger()

	t.Run("missing base URL", func(t *testing.T) {
		err := Upload(context.Background(), UploadParams{Token: "t", ArchivePath: "x"}, logger)
		var configErr *ConfigError
		assert.ErrorAs(t, err, &configErr)
	})

	t.Run("missing token", func(t *testing.T) {
		err := Upload(context.Background(), UploadParams{APIBaseURL: "https://example.com", ArchivePath: "x"}, logger)
		var configErr *ConfigError
		assert.ErrorAs(t, err, &configErr)
	})

	t.Run("empty artifact", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.zip")
		require.NoError(t, os.WriteFile(path, nil, 0600))
		err := Upload(context.Background(), UploadParams{
			APIBaseURL:  "https://example.com",
			Token:       "t",
			ArchivePath: path,
		}, logger)
		var configErr *ConfigError
		assert.ErrorAs(t, err, &configErr)
	})

	t.Run("chunk size below floor", func(t *testing.T) {
		path := writeArtifact(t, 100)
		err := Upload(context.Background(), UploadParams{
			APIBaseURL:  "https://example.com",
			Token:       "t",
			ArchivePath: path,
			ChunkSize:   1024,
		}, logger)
		var configErr *ConfigError
		assert.ErrorAs(t, err, &configErr)
	})
}
