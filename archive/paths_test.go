package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPaths(t *testing.T) {
	basePath := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(basePath, "builds", "mac"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(basePath, "builds", "win"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(basePath, "builds", "mac", "App.pkg"), []byte("mac"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(basePath, "builds", "win", "App.msi"), []byte("win"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(basePath, "readme.txt"), []byte("doc"), 0644))

	logger := log.NewLogger()
	pathModifier := pathutil.NewPathModifier()
	pathChecker := pathutil.NewPathChecker()

	t.Run("plain path kept", func(t *testing.T) {
		got, err := ExpandPaths([]string{filepath.Join(basePath, "readme.txt")}, pathModifier, pathChecker, logger)
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(basePath, "readme.txt")}, got)
	})

	t.Run("wildcard expanded", func(t *testing.T) {
		got, err := ExpandPaths([]string{filepath.Join(basePath, "builds", "**", "App.*")}, pathModifier, pathChecker, logger)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{
			filepath.Join(basePath, "builds", "mac", "App.pkg"),
			filepath.Join(basePath, "builds", "win", "App.msi"),
		}, got)
	})

	t.Run("missing path dropped", func(t *testing.T) {
		got, err := ExpandPaths([]string{
			filepath.Join(basePath, "no-such-file"),
			filepath.Join(basePath, "readme.txt"),
		}, pathModifier, pathChecker, logger)
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(basePath, "readme.txt")}, got)
	})

	t.Run("pattern without match dropped", func(t *testing.T) {
		got, err := ExpandPaths([]string{filepath.Join(basePath, "builds", "*.dmg")}, pathModifier, pathChecker, logger)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
