package deploy

import (
	"context"
	"fmt"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/endpointops/go-deployutils/deploy/network"
)

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) Get(key string) string {
	value, ok := repo.envVars[key]
	if ok {
		return value
	} else {
		return ""
	}
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	repo.envVars[key] = ""
	return nil
}

func (repo fakeEnvRepo) List() []string {
	envs := []string{}
	for k, v := range repo.envVars {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}

type fakeUploader struct {
	uploads []network.UploadParams
	err     error
}

func (u *fakeUploader) Upload(ctx context.Context, params network.UploadParams, logger log.Logger) error {
	u.uploads = append(u.uploads, params)
	return u.err
}

type fakeFetcher struct {
	fetched []network.FetchParams
	err     error
}

func (f *fakeFetcher) Fetch(ctx context.Context, params network.FetchParams, logger log.Logger) (string, error) {
	f.fetched = append(f.fetched, params)
	if f.err != nil {
		return "", f.err
	}
	return params.DownloadPath, nil
}

type fakeTracker struct {
	events []string
}

func (t *fakeTracker) Enqueue(eventName string, properties ...analytics.Properties) {
	t.events = append(t.events, eventName)
}

func (t *fakeTracker) Wait() {}

func (t *fakeTracker) IsTracking() bool {
	return true
}
