package analytics

import (
	"fmt"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
)

// TrackerFactory creates a tracker preloaded with the given shared properties.
type TrackerFactory func(log.Logger, ...analytics.Properties) analytics.Tracker

const (
	DeployExecutionIDEnvKey = "DEPLOY_EXECUTION_ID"
	DeployExecutionID       = "deploy_execution_id"
)

// NewDeployTracker returns a tracker that stamps every event with the current
// deploy execution's id.
func NewDeployTracker(repository env.Repository, logger log.Logger, trackerFactory TrackerFactory) (analytics.Tracker, error) {
	executionID := repository.Get(DeployExecutionIDEnvKey)
	if executionID == "" {
		return nil, fmt.Errorf("no deploy execution ID found")
	}
	return trackerFactory(logger, analytics.Properties{DeployExecutionID: executionID}), nil
}

// NewDefaultDeployTracker ...
func NewDefaultDeployTracker(repository env.Repository, logger log.Logger) (analytics.Tracker, error) {
	return NewDeployTracker(repository, logger, func(logger log.Logger, properties ...analytics.Properties) analytics.Tracker {
		return analytics.NewDefaultTracker(logger, repository, properties...)
	})
}
