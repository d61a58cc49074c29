package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDependencyChecker struct {
	available bool
}

func (c fakeDependencyChecker) CheckDependencies() bool {
	return c.available
}

func TestPackageWithGoLib(t *testing.T) {
	sourceDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(sourceDir, "payload", "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, "payload", "installer.pkg"), []byte("installer bytes"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, "payload", "nested", "postinstall.sh"), []byte("#!/bin/sh\n"), 0755))

	archivePath := filepath.Join(t.TempDir(), "App-1.0.0.zip")

	packager := NewPackager(log.NewLogger(), nil, fakeDependencyChecker{available: false})
	require.NoError(t, packager.Package(archivePath, []string{filepath.Join(sourceDir, "payload")}))

	reader, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	defer reader.Close() //nolint:errcheck

	var names []string
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"payload/installer.pkg", "payload/nested/postinstall.sh"}, names)

	content, err := reader.Open("payload/installer.pkg")
	require.NoError(t, err)
	buf := make([]byte, 32)
	n, _ := content.Read(buf)
	assert.Equal(t, "installer bytes", string(buf[:n]))
	require.NoError(t, content.Close())
}

func TestPackageOverwritesExistingArchive(t *testing.T) {
	sourceDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, "a.txt"), []byte("a"), 0644))

	archivePath := filepath.Join(t.TempDir(), "out.zip")
	require.NoError(t, os.WriteFile(archivePath, []byte("stale content that is not a zip"), 0644))

	packager := NewPackager(log.NewLogger(), nil, fakeDependencyChecker{available: false})
	require.NoError(t, packager.Package(archivePath, []string{sourceDir}))

	reader, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
}

func TestAreAllPathsEmpty(t *testing.T) {
	basePath := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(basePath, "empty_dir"), 0700))
	require.NoError(t, os.MkdirAll(filepath.Join(basePath, "first_level", "second_level"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(basePath, "first_level", "second_level", "nested_file.txt"), []byte("hello"), 0700))

	tests := []struct {
		name         string
		includePaths []string
		want         bool
	}{
		{
			name:         "single empty dir",
			includePaths: []string{filepath.Join(basePath, "empty_dir")},
			want:         true,
		},
		{
			name:         "dir with files",
			includePaths: []string{filepath.Join(basePath, "first_level")},
			want:         false,
		},
		{
			name:         "nonexistent dir",
			includePaths: []string{filepath.Join(basePath, "this doesn't exist")},
			want:         true,
		},
		{
			name: "mixed empty and file paths",
			includePaths: []string{
				filepath.Join(basePath, "empty_dir"),
				filepath.Join(basePath, "first_level", "second_level", "nested_file.txt"),
			},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AreAllPathsEmpty(tt.includePaths))
		})
	}
}
