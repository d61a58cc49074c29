package deploy

import (
	"io/fs"
	"time"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	stepanalytics "github.com/endpointops/go-deployutils/analytics"
)

type deployTracker struct {
	tracker analytics.Tracker
	logger  log.Logger
}

func newDeployTracker(envRepo env.Repository, logger log.Logger) deployTracker {
	p := analytics.Properties{
		"region": envRepo.Get("DEPLOY_REGION"),
		"org_id": envRepo.Get("DEPLOY_ORG_ID"),
	}
	tracker, err := stepanalytics.NewDeployTracker(envRepo, logger, func(l log.Logger, shared ...analytics.Properties) analytics.Tracker {
		return analytics.NewDefaultTracker(l, envRepo, append(shared, p)...)
	})
	if err != nil {
		// no execution id in the environment, events are still tagged with the rest
		tracker = analytics.NewDefaultTracker(logger, envRepo, p)
	}
	return deployTracker{
		tracker: tracker,
		logger:  logger,
	}
}

func (t *deployTracker) logArtifactPackaged(packagingTime time.Duration, info fs.FileInfo) {
	properties := analytics.Properties{
		"packaging_time_s":   packagingTime.Truncate(time.Second).Seconds(),
		"archive_size_bytes": info.Size(),
	}
	t.tracker.Enqueue("deploy_artifact_packaged", properties)
}

func (t *deployTracker) logArtifactFetched(fetchTime time.Duration, sourceURL string) {
	properties := analytics.Properties{
		"fetch_time_s": fetchTime.Truncate(time.Second).Seconds(),
		"source_url":   sourceURL,
	}
	t.tracker.Enqueue("deploy_artifact_fetched", properties)
}

func (t *deployTracker) logArtifactUploaded(uploadTime time.Duration, info fs.FileInfo, platformCount int) {
	properties := analytics.Properties{
		"upload_time_s":     uploadTime.Truncate(time.Second).Seconds(),
		"upload_size_bytes": info.Size(),
		"platform_count":    platformCount,
	}
	t.tracker.Enqueue("deploy_artifact_uploaded", properties)
}

func (t *deployTracker) logUploadSkipped(reason string) {
	properties := analytics.Properties{
		"reason": reason,
	}
	t.tracker.Enqueue("deploy_upload_skipped", properties)
}

func (t *deployTracker) wait() {
	t.tracker.Wait()
}
