package network

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/docker/go-units"
	"github.com/endpointops/go-deployutils/deploy/network/chunker"
)

// progressLogInterval is how often the default progress renderer reports.
const progressLogInterval = 5 * time.Second

// UploadTarget identifies where an artifact lands in the software repository.
// It is produced by a target resolver and read-only to the upload engine.
type UploadTarget struct {
	OrgID     string
	PackageID string
	VersionID string
	Platform  string
	FileName  string
	TotalSize int64
}

// UploadParams ...
type UploadParams struct {
	APIBaseURL  string
	Token       string
	ArchivePath string
	Target      UploadTarget
	Protocol    ProtocolVariant
	// ChunkSize in bytes; defaults to chunker.DefaultChunkSizeBytes.
	ChunkSize int64
	// Throttle caps concurrent chunk transmissions in the chunk-id protocol.
	// The byte-range protocol is always sequential regardless of this value.
	Throttle int
	// Progress, when set, receives a snapshot every few seconds while chunks
	// are in flight. When nil, snapshots are logged instead.
	Progress func(chunker.Snapshot)
}

// Upload transmits an artifact to the distribution service using the
// protocol variant in params. There is no automatic retry of the whole upload
// and no resumption of an interrupted session: a failed upload is restarted
// with a brand-new Upload call.
func Upload(ctx context.Context, params UploadParams, logger log.Logger) error {
	if params.APIBaseURL == "" {
		return &ConfigError{Reason: "API base URL is empty"}
	}
	if params.Token == "" {
		return &ConfigError{Reason: "API token is empty"}
	}

	info, err := os.Stat(params.ArchivePath)
	if err != nil {
		return &ConfigError{Reason: fmt.Sprintf("artifact not found: %s", err)}
	}
	if info.Size() == 0 {
		return &ConfigError{Reason: fmt.Sprintf("artifact %s is empty", params.ArchivePath)}
	}
	params.Target.TotalSize = info.Size()

	chunkSize := params.ChunkSize
	if chunkSize == 0 {
		chunkSize = chunker.DefaultChunkSizeBytes
	}

	plan, err := chunker.Plan(info.Size(), chunkSize)
	if err != nil {
		return &ConfigError{Reason: err.Error()}
	}
	logger.Debugf("Planned %d chunk(s) of %s for %s",
		len(plan),
		units.HumanSizeWithPrecision(float64(chunkSize), 3),
		units.HumanSizeWithPrecision(float64(info.Size()), 3))

	client := newAPIClient(retryhttp.NewClient(logger), chunker.DefaultHTTPClient(), params.APIBaseURL, params.Token, logger)

	session, tx, err := negotiate(ctx, client, params, chunkSize, len(plan))
	if err != nil {
		return fmt.Errorf("open upload session: %w", err)
	}

	source, err := chunker.NewFileSource(params.ArchivePath)
	if err != nil {
		return &ConfigError{Reason: err.Error()}
	}
	defer func() {
		if err := source.Close(); err != nil {
			logger.Warnf("failed to close artifact: %s", err)
		}
	}()

	progress := chunker.NewProgressTable(plan, info.Size())
	stopProgress := reportProgress(progress, params.Progress, logger)
	defer stopProgress()

	coordinator := chunker.NewCoordinator(params.Throttle, progress, logger)
	switch session.Variant {
	case ByteRangeResumable:
		// Chunk acceptance depends on the service's accumulated offset, so
		// transmission is strictly ordered.
		err = coordinator.RunSequential(ctx, plan, source, tx)
	default:
		err = coordinator.RunParallel(ctx, plan, source, tx)
	}
	if err != nil {
		return fmt.Errorf("transmit chunks: %w", err)
	}

	if session.Variant == ChunkIDFinalize {
		if err := client.finalize(ctx, session, params.Target.FileName, len(plan)); err != nil {
			return fmt.Errorf("finalize upload: %w", err)
		}
	}

	snap := progress.Snapshot()
	logger.Debugf("Uploaded %s in %d chunk(s)", units.HumanSizeWithPrecision(float64(snap.CommittedBytes), 3), len(plan))
	return nil
}

func negotiate(ctx context.Context, client apiClient, params UploadParams, chunkSize int64, totalChunks int) (UploadSession, chunker.Transmitter, error) {
	switch params.Protocol {
	case ByteRangeResumable:
		session, err := client.openByteRangeSession(ctx, params.Target, chunkSize)
		if err != nil {
			return UploadSession{}, nil, err
		}
		return session, byteRangeTransmitter{client: client, session: session}, nil
	case ChunkIDFinalize:
		session, err := newChunkIDSession(chunkSize, params.Target.TotalSize)
		if err != nil {
			return UploadSession{}, nil, err
		}
		return session, chunkIDTransmitter{
			client:      client,
			session:     session,
			target:      params.Target,
			totalChunks: totalChunks,
		}, nil
	default:
		return UploadSession{}, nil, &ConfigError{Reason: fmt.Sprintf("unknown protocol variant %d", params.Protocol)}
	}
}

// reportProgress renders snapshots at a fixed interval until the returned stop
// function is called. Snapshot never blocks a transmitter on the renderer.
func reportProgress(table *chunker.ProgressTable, observer func(chunker.Snapshot), logger log.Logger) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(progressLogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				snap := table.Snapshot()
				if observer != nil {
					observer(snap)
					continue
				}
				logger.Printf("Uploaded %s of %s (%.1f%%), %d chunk(s) in flight",
					units.HumanSizeWithPrecision(float64(snap.CommittedBytes), 3),
					units.HumanSizeWithPrecision(float64(snap.TotalBytes), 3),
					snap.Percent,
					snap.InFlight)
			}
		}
	}()
	return func() { close(done) }
}
