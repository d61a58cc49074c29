package stepconf

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/filedownloader"
	"github.com/bitrise-io/go-utils/v2/fileutil"
	"github.com/bitrise-io/go-utils/v2/pathutil"
)

const fileScheme = "file://"

// FileProvider resolves step inputs that reference a file either by a
// `file://` path or by a remote http(s) URL.
type FileProvider interface {
	// LocalPath makes the referenced file available on disk. `file://` inputs
	// resolve to their absolute local path, remote URLs are downloaded to a
	// temporary directory first.
	LocalPath(ctx context.Context, path string) (string, error)

	// Contents opens the referenced file for streaming. The caller closes the
	// returned reader.
	Contents(ctx context.Context, path string) (io.ReadCloser, error)
}

type fileProvider struct {
	downloader   filedownloader.Downloader
	fileManager  fileutil.FileManager
	pathProvider pathutil.PathProvider
	pathModifier pathutil.PathModifier
}

// NewFileProvider ...
func NewFileProvider(downloader filedownloader.Downloader, fileManager fileutil.FileManager, pathProvider pathutil.PathProvider, pathModifier pathutil.PathModifier) FileProvider {
	return &fileProvider{
		downloader:   downloader,
		fileManager:  fileManager,
		pathProvider: pathProvider,
		pathModifier: pathModifier,
	}
}

// LocalPath ...
func (f *fileProvider) LocalPath(ctx context.Context, path string) (string, error) {
	if strings.HasPrefix(path, fileScheme) {
		return f.stripFileScheme(path)
	}
	return f.download(ctx, path)
}

// Contents ...
func (f *fileProvider) Contents(ctx context.Context, path string) (io.ReadCloser, error) {
	if strings.HasPrefix(path, fileScheme) {
		localPath, err := f.stripFileScheme(path)
		if err != nil {
			return nil, err
		}
		return f.fileManager.Open(localPath)
	}
	return f.downloader.Get(ctx, path)
}

func (f *fileProvider) stripFileScheme(path string) (string, error) {
	return f.pathModifier.AbsPath(strings.TrimPrefix(path, fileScheme))
}

func (f *fileProvider) download(ctx context.Context, srcURL string) (string, error) {
	tmpDir, err := f.pathProvider.CreateTempDir("deploy-input")
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}

	localPath := filepath.Join(tmpDir, downloadedFileName(srcURL))
	if err := f.downloader.Download(ctx, localPath, srcURL); err != nil {
		return "", fmt.Errorf("failed to download file from %s: %w", srcURL, err)
	}

	return localPath, nil
}

// downloadedFileName keeps the remote file name when the URL carries one so
// artifact name parsing keeps working on the downloaded copy.
func downloadedFileName(srcURL string) string {
	parsed, err := url.Parse(srcURL)
	if err != nil {
		return "download"
	}
	name := filepath.Base(parsed.Path)
	if name == "." || name == "/" {
		return "download"
	}
	return name
}
