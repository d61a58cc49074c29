package network

import (
	"context"

	"github.com/bitrise-io/go-utils/v2/log"
)

// Uploader ...
type Uploader interface {
	Upload(context.Context, UploadParams, log.Logger) error
}

// Fetcher ...
type Fetcher interface {
	Fetch(context.Context, FetchParams, log.Logger) (string, error)
}

// DefaultUploader ...
type DefaultUploader struct{}

// Upload ...
func (u DefaultUploader) Upload(ctx context.Context, params UploadParams, logger log.Logger) error {
	return Upload(ctx, params, logger)
}

// DefaultFetcher ...
type DefaultFetcher struct{}

// Fetch ...
func (f DefaultFetcher) Fetch(ctx context.Context, params FetchParams, logger log.Logger) (string, error) {
	return Fetch(ctx, params, logger)
}
