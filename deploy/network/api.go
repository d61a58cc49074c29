package network

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/endpointops/go-deployutils/deploy/network/chunker"
	"github.com/hashicorp/go-retryablehttp"
)

const octetStreamContentType = "application/octet-stream"

type chunkUploadMetadata struct {
	OrganizationID string `json:"organization_id"`
	PackageID      string `json:"package_id"`
	VersionID      string `json:"version_id"`
	Platform       string `json:"platform"`
}

type chunkUploadRequest struct {
	UploadID    string               `json:"upload_id"`
	FileName    string               `json:"file_name"`
	ChunkNumber int                  `json:"chunk_number"`
	TotalChunks int                  `json:"total_chunks"`
	ChunkData   string               `json:"chunk_data"`
	Metadata    *chunkUploadMetadata `json:"metadata,omitempty"`
}

type finalizeRequest struct {
	UploadID    string `json:"upload_id"`
	FileName    string `json:"file_name"`
	TotalChunks int    `json:"total_chunks"`
}

// apiClient talks to the software-repository endpoints of the distribution
// service. Control-plane calls (finalize) go through the retryable client;
// session negotiation and chunk bodies use a plain client because the wire
// protocol is fail-fast and 308 responses must not be treated as redirects.
type apiClient struct {
	httpClient  *retryablehttp.Client
	chunkClient *http.Client
	baseURL     string
	accessToken string
	logger      log.Logger
}

func newAPIClient(client *retryablehttp.Client, chunkClient *http.Client, baseURL string, accessToken string, logger log.Logger) apiClient {
	if chunkClient == nil {
		chunkClient = chunker.DefaultHTTPClient()
	}
	return apiClient{
		httpClient:  client,
		chunkClient: chunkClient,
		baseURL:     baseURL,
		accessToken: accessToken,
		logger:      logger,
	}
}

// openByteRangeSession performs the initiating request of the byte-range
// protocol. The service answers 308 and names the concrete chunk endpoint in
// the X-Upload-Location header; anything else is a protocol error.
func (c apiClient) openByteRangeSession(ctx context.Context, target UploadTarget, chunkSize int64) (UploadSession, error) {
	url := fmt.Sprintf("%s/software-repository/all/%s/versions/%s/upload?platform=%s",
		c.baseURL, target.PackageID, target.VersionID, target.Platform)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte("{}")))
	if err != nil {
		return UploadSession{}, fmt.Errorf("create session request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Upload-Content-Type", octetStreamContentType)
	req.Header.Set("X-Upload-Content-Length", fmt.Sprintf("%d", target.TotalSize))

	resp, err := c.chunkClient.Do(req)
	if err != nil {
		return UploadSession{}, &NetworkError{Op: "open upload session", Err: err}
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	if isAuthStatus(resp.StatusCode) {
		return UploadSession{}, &AuthError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusPermanentRedirect {
		return UploadSession{}, &ProtocolError{
			Reason:     "session negotiation expected a 308 continuation",
			StatusCode: resp.StatusCode,
			Body:       readErrorBody(resp.Body),
		}
	}

	location := resp.Header.Get("X-Upload-Location")
	if location == "" {
		return UploadSession{}, &ProtocolError{
			Reason:     "session negotiation returned 308 without an X-Upload-Location header",
			StatusCode: resp.StatusCode,
			Body:       readErrorBody(resp.Body),
		}
	}
	uploadURL, err := resolveUploadLocation(c.baseURL, location)
	if err != nil {
		return UploadSession{}, &ProtocolError{Reason: fmt.Sprintf("invalid upload location %q: %s", location, err)}
	}

	c.logger.Debugf("Upload session opened at %s", uploadURL)
	return UploadSession{
		Variant:   ByteRangeResumable,
		UploadURL: uploadURL,
		ChunkSize: chunkSize,
		TotalSize: target.TotalSize,
	}, nil
}

// putChunk transmits one raw chunk of the byte-range protocol.
// 308 means the service expects more chunks, a final 2xx means done.
func (c apiClient) putChunk(ctx context.Context, session UploadSession, chunk chunker.Chunk, body io.Reader) (chunker.Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.UploadURL, body)
	if err != nil {
		return chunker.Outcome{}, fmt.Errorf("create chunk request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Content-Type", octetStreamContentType)
	req.Header.Set("X-Upload-Content-Type", octetStreamContentType)
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", chunk.Start, chunk.End, session.TotalSize))
	req.ContentLength = chunk.Size

	resp, err := c.chunkClient.Do(req)
	if err != nil {
		return chunker.Outcome{}, &NetworkError{Op: fmt.Sprintf("transmit chunk %d", chunk.Number), Err: err}
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	switch resp.StatusCode {
	case http.StatusPermanentRedirect:
		return chunker.Outcome{Kind: chunker.OutcomeContinue}, nil
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return chunker.Outcome{Kind: chunker.OutcomeComplete}, nil
	default:
		return chunker.Outcome{
			Kind:       chunker.OutcomeFatal,
			StatusCode: resp.StatusCode,
			Body:       readErrorBody(resp.Body),
		}, nil
	}
}

// postChunk transmits one chunk of the chunk-id protocol as a JSON unit.
// Completion is signaled by the finalize call, never by a chunk response.
func (c apiClient) postChunk(ctx context.Context, request chunkUploadRequest) (chunker.Outcome, error) {
	url := fmt.Sprintf("%s/software-repository/upload/chunk", c.baseURL)

	payload, err := json.Marshal(request)
	if err != nil {
		return chunker.Outcome{}, fmt.Errorf("encode chunk request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return chunker.Outcome{}, fmt.Errorf("create chunk request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.chunkClient.Do(req)
	if err != nil {
		return chunker.Outcome{}, &NetworkError{Op: fmt.Sprintf("transmit chunk %d", request.ChunkNumber), Err: err}
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return chunker.Outcome{
			Kind:       chunker.OutcomeFatal,
			StatusCode: resp.StatusCode,
			Body:       readErrorBody(resp.Body),
		}, nil
	}
	return chunker.Outcome{Kind: chunker.OutcomeContinue}, nil
}

// finalize closes a chunk-id session after every chunk committed.
func (c apiClient) finalize(ctx context.Context, session UploadSession, fileName string, totalChunks int) error {
	url := fmt.Sprintf("%s/software-repository/upload/finalize", c.baseURL)

	body, err := json.Marshal(finalizeRequest{
		UploadID:    session.UploadID,
		FileName:    fileName,
		TotalChunks: totalChunks,
	})
	if err != nil {
		return fmt.Errorf("encode finalize request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("create finalize request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))
	req.Header.Set("Content-Type", "application/json")

	dump, err := httputil.DumpRequest(req.Request, true)
	if err != nil {
		c.logger.Warnf("error while dumping request: %s", err)
	}
	c.logger.Debugf("Finalize request dump: %s", string(dump))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: "finalize upload", Err: err}
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	if isAuthStatus(resp.StatusCode) {
		return &AuthError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &FinalizeError{StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
	return nil
}

func readErrorBody(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	return string(data)
}

// byteRangeTransmitter sends raw chunks to the session's upload URL.
type byteRangeTransmitter struct {
	client  apiClient
	session UploadSession
}

func (t byteRangeTransmitter) Transmit(ctx context.Context, chunk chunker.Chunk, body io.Reader) (chunker.Outcome, error) {
	return t.client.putChunk(ctx, t.session, chunk, body)
}

// chunkIDTransmitter encodes chunk payloads and posts them as JSON units.
// Only the first chunk carries the target metadata.
type chunkIDTransmitter struct {
	client      apiClient
	session     UploadSession
	target      UploadTarget
	totalChunks int
}

func (t chunkIDTransmitter) Transmit(ctx context.Context, chunk chunker.Chunk, body io.Reader) (chunker.Outcome, error) {
	payload, err := io.ReadAll(body)
	if err != nil {
		return chunker.Outcome{}, fmt.Errorf("read chunk %d payload: %w", chunk.Number, err)
	}

	request := chunkUploadRequest{
		UploadID:    t.session.UploadID,
		FileName:    t.target.FileName,
		ChunkNumber: chunk.Number,
		TotalChunks: t.totalChunks,
		ChunkData:   base64.StdEncoding.EncodeToString(payload),
	}
	if chunk.Number == 1 {
		request.Metadata = &chunkUploadMetadata{
			OrganizationID: t.target.OrgID,
			PackageID:      t.target.PackageID,
			VersionID:      t.target.VersionID,
			Platform:       t.target.Platform,
		}
	}

	return t.client.postChunk(ctx, request)
}
