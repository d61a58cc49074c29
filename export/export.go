package export

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/bitrise-io/go-utils/v2/command"
	"github.com/bitrise-io/go-utils/v2/fileutil"
)

// Exporter ...
type Exporter struct {
	cmdFactory  command.Factory
	fileManager fileutil.FileManager
}

// NewExporter ...
func NewExporter(cmdFactory command.Factory) Exporter {
	return Exporter{
		cmdFactory:  cmdFactory,
		fileManager: fileutil.NewFileManager(),
	}
}

// ExportOutput is used for exposing values for later workflow steps.
// Regular env vars are isolated between steps, so instead of calling `os.Setenv()`, use this to explicitly expose
// a value for subsequent steps.
func (e *Exporter) ExportOutput(key, value string) error {
	cmd := e.cmdFactory.Create("envman", []string{"add", "--key", key, "--value", value}, nil)
	return runExport(cmd)
}

// ExportOutputNoExpand works like ExportOutput but does not expand environment variables in the value.
// This can be used when the value is untrusted or is beyond the control of the step.
func (e *Exporter) ExportOutputNoExpand(key, value string) error {
	cmd := e.cmdFactory.Create("envman", []string{"add", "--key", key, "--value", value, "--no-expand"}, nil)
	return runExport(cmd)
}

// ExportSecretOutput is used for exposing secret values for later workflow steps.
func (e *Exporter) ExportSecretOutput(key, value string) error {
	cmd := e.cmdFactory.Create("envman", []string{"add", "--key", key, "--value", value, "--sensitive"}, nil)
	return runExport(cmd)
}

// ExportOutputFile is a convenience method for copying sourcePath to destinationPath and then exporting the
// absolute destination path with ExportOutput()
func (e *Exporter) ExportOutputFile(key, sourcePath, destinationPath string) error {
	absSourcePath, err := filepath.Abs(sourcePath)
	if err != nil {
		return err
	}
	absDestinationPath, err := filepath.Abs(destinationPath)
	if err != nil {
		return err
	}

	if absSourcePath != absDestinationPath {
		if err = copyFile(absSourcePath, absDestinationPath); err != nil {
			return err
		}
	}

	return e.ExportOutput(key, absDestinationPath)
}

// ExportOutputDir is a convenience method for copying sourceDir to destinationDir and then exporting the
// absolute destination dir with ExportOutput()
func (e *Exporter) ExportOutputDir(sourceDir, destinationDir, envKey string) error {
	absSourceDir, err := filepath.Abs(sourceDir)
	if err != nil {
		return err
	}

	absDestinationDir, err := filepath.Abs(destinationDir)
	if err != nil {
		return err
	}

	if absSourceDir != absDestinationDir {
		if err := copyDir(absSourceDir, absDestinationDir); err != nil {
			return err
		}
	}

	return e.ExportOutput(envKey, absDestinationDir)
}

// ExportOutputFileContent ...
func (e *Exporter) ExportOutputFileContent(content, dst, envKey string) error {
	if err := e.fileManager.WriteBytes(dst, []byte(content)); err != nil {
		return err
	}

	return e.ExportOutputFile(envKey, dst, dst)
}

func runExport(cmd command.Command) error {
	out, err := cmd.RunAndReturnTrimmedCombinedOutput()
	if err != nil {
		return fmt.Errorf("exporting output with envman failed: %s, output: %s", err, out)
	}
	return nil
}

func copyFile(source, destination string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(destination)
	if err != nil {
		return err
	}
	defer func(out *os.File) {
		err := out.Close()
		if err != nil {
			log.Fatalf("Failed to close output file: %s", err)
		}
	}(out)

	_, err = io.Copy(out, in)
	if err != nil {
		return err
	}
	return nil
}

func copyFilePreservingMode(src, dst string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	// create destination file with same mode
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer func(out *os.File) {
		err := out.Close()
		if err != nil {
			log.Fatalf("Failed to close output file: %s", err)
		}
	}(out)

	if _, err := io.Copy(out, in); err != nil {
		return err
	}

	return nil
}

func copySymlink(src, dst string) error {
	linkTarget, err := os.Readlink(src)
	if err != nil {
		return err
	}
	return os.Symlink(linkTarget, dst)
}

func copyDir(srcDir, dstDir string) error {
	srcDir = filepath.Clean(srcDir)
	dstDir = filepath.Clean(dstDir)

	info, err := os.Lstat(srcDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("source is not a directory: %s", srcDir)
	}

	// create destination root
	if err := os.MkdirAll(dstDir, info.Mode()); err != nil {
		return err
	}

	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		targetPath := filepath.Join(dstDir, rel)

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			if err := copySymlink(path, targetPath); err != nil {
				return err
			}
		case info.IsDir():
			if err := os.MkdirAll(targetPath, info.Mode()); err != nil {
				return err
			}
		default:
			if err := copyFilePreservingMode(path, targetPath, info); err != nil {
				return err
			}
		}
		return nil
	})
}
