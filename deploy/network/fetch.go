package network

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/melbahja/got"
)

// FetchParams ...
type FetchParams struct {
	// SourceURL is the http(s) location of the installer artifact.
	SourceURL string
	// DownloadPath is where the artifact is written locally.
	DownloadPath string
}

// Fetch downloads a remote installer artifact so it can be packaged and
// uploaded like a local one. Returns the local path of the download.
func Fetch(ctx context.Context, params FetchParams, logger log.Logger) (string, error) {
	if params.SourceURL == "" {
		return "", fmt.Errorf("source URL is empty")
	}
	if params.DownloadPath == "" {
		return "", fmt.Errorf("download path is empty")
	}

	retryableHTTPClient := retryhttp.NewClient(logger)
	retryableHTTPClient.CheckRetry = createCustomRetryFunction(logger)

	logger.Debugf("Fetch artifact from %s", params.SourceURL)
	if err := fetchFile(ctx, retryableHTTPClient.StandardClient(), params.SourceURL, params.DownloadPath); err != nil {
		return "", fmt.Errorf("failed to fetch artifact: %w", err)
	}

	return params.DownloadPath, nil
}

func createCustomRetryFunction(logger log.Logger) func(context.Context, *http.Response, error) (bool, error) {
	return func(ctx context.Context, resp *http.Response, downloadErr error) (bool, error) {
		retry, err := retryablehttp.DefaultRetryPolicy(ctx, resp, downloadErr)
		logger.Debugf("CheckRetry: retry=%v ; err=%+v ; downloadErr=%+v", retry, err, downloadErr)
		return retry, err
	}
}

func fetchFile(ctx context.Context, client *http.Client, url string, dest string) error {
	downloader := got.New()
	downloader.Client = client

	return downloader.Do(got.NewDownload(ctx, url, dest))
}
