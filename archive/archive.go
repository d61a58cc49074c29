package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/bitrise-io/go-utils/v2/command"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/klauspost/compress/flate"
)

// PackagerDependencyChecker ...
type PackagerDependencyChecker interface {
	CheckDependencies() bool
}

// DependencyChecker ...
type DependencyChecker struct {
	logger  log.Logger
	envRepo env.Repository
}

// NewDependencyChecker ...
func NewDependencyChecker(logger log.Logger, envRepo env.Repository) *DependencyChecker {
	return &DependencyChecker{
		logger:  logger,
		envRepo: envRepo,
	}
}

// CheckDependencies ...
func (dc *DependencyChecker) CheckDependencies() bool {
	cmdFactory := command.NewFactory(dc.envRepo)
	cmd := cmdFactory.Create("which", []string{"zip"}, nil)
	dc.logger.Debugf("$ %s", cmd.PrintableCommandArgs())

	_, err := cmd.RunAndReturnTrimmedCombinedOutput()
	return err == nil
}

// Packager creates installer archives in zip format, the format the
// distribution service expects for every platform.
type Packager struct {
	logger            log.Logger
	envRepo           env.Repository
	dependencyChecker PackagerDependencyChecker
}

// NewPackager ...
func NewPackager(logger log.Logger, envRepo env.Repository, dependencyChecker PackagerDependencyChecker) *Packager {
	return &Packager{
		logger:            logger,
		envRepo:           envRepo,
		dependencyChecker: dependencyChecker,
	}
}

// Package creates a zip archive at archivePath from the provided files and
// folders. Entries are stored relative to their include path so the archive
// unpacks the same way regardless of where it was built.
func (p *Packager) Package(archivePath string, includePaths []string) error {
	haveZip := p.dependencyChecker.CheckDependencies()

	if !haveZip {
		p.logger.Infof("Falling back to native zip implementation.")
		if err := p.packageWithGoLib(archivePath, includePaths); err != nil {
			return fmt.Errorf("package files: %w", err)
		}
		return nil
	}

	p.logger.Infof("Using installed zip binary")
	if err := p.packageWithBinary(archivePath, includePaths); err != nil {
		return fmt.Errorf("package files: %w", err)
	}
	return nil
}

func (p *Packager) packageWithBinary(archivePath string, includePaths []string) error {
	cmdFactory := command.NewFactory(p.envRepo)

	// -r: recurse into directories
	// -X: no extra platform file attributes, keeps archives byte-stable
	// -q: quiet, progress is logged by the caller
	zipArgs := []string{"-r", "-X", "-q", archivePath}
	zipArgs = append(zipArgs, includePaths...)

	cmd := cmdFactory.Create("zip", zipArgs, nil)
	p.logger.Debugf("$ %s", cmd.PrintableCommandArgs())

	out, err := cmd.RunAndReturnTrimmedCombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("command failed with exit status %d (%s):\n%w", exitErr.ExitCode(), cmd.PrintableCommandArgs(), errors.New(out))
		}
		return fmt.Errorf("executing command failed (%s): %w", cmd.PrintableCommandArgs(), err)
	}

	return nil
}

func (p *Packager) packageWithGoLib(archivePath string, includePaths []string) error {
	archiveFile, err := os.OpenFile(archivePath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}

	zw := zip.NewWriter(archiveFile)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})

	for _, includePath := range includePaths {
		cleanPath := filepath.Clean(includePath)
		baseDir := filepath.Dir(cleanPath)

		if err := filepath.Walk(cleanPath, func(file string, fi os.FileInfo, e error) error {
			if e != nil {
				return e
			}
			if fi.IsDir() {
				return nil
			}
			if !fi.Mode().IsRegular() {
				p.logger.Debugf("Skipping non-regular file: %s", file)
				return nil
			}

			relName, err := filepath.Rel(baseDir, file)
			if err != nil {
				return fmt.Errorf("determine archive entry name: %w", err)
			}

			header, err := zip.FileInfoHeader(fi)
			if err != nil {
				return fmt.Errorf("create file header: %w", err)
			}
			header.Name = filepath.ToSlash(relName)
			header.Method = zip.Deflate

			entry, err := zw.CreateHeader(header)
			if err != nil {
				return fmt.Errorf("create archive entry: %w", err)
			}

			data, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open file: %w", err)
			}
			if _, err := io.Copy(entry, data); err != nil {
				data.Close() //nolint:errcheck
				return fmt.Errorf("copy to archive entry: %w", err)
			}
			if err := data.Close(); err != nil {
				return fmt.Errorf("close file: %w", err)
			}

			return nil
		}); err != nil {
			zw.Close()          //nolint:errcheck
			archiveFile.Close() //nolint:errcheck
			return fmt.Errorf("iterate on files: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		archiveFile.Close() //nolint:errcheck
		return fmt.Errorf("close archive writer: %w", err)
	}
	if err := archiveFile.Close(); err != nil {
		return fmt.Errorf("close archive file: %w", err)
	}

	return nil
}

// AreAllPathsEmpty checks if the provided paths are all nonexistent files or empty directories
func AreAllPathsEmpty(includePaths []string) bool {
	allEmpty := true

	for _, path := range includePaths {
		fileInfo, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if !fileInfo.IsDir() {
			allEmpty = false
			break
		}

		file, err := os.Open(path)
		if err != nil {
			continue
		}
		_, err = file.Readdirnames(1)
		if errors.Is(err, io.EOF) {
			continue
		}
		if err == nil {
			allEmpty = false
			break
		}
	}

	return allEmpty
}
