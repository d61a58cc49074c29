package archive

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bmatcuk/doublestar/v4"
)

// ExpandPaths resolves wildcard patterns in the provided include paths and
// drops entries that do not exist on disk. Non-pattern paths are kept as-is
// after resolving to absolute form.
func ExpandPaths(
	paths []string,
	pathModifier pathutil.PathModifier,
	pathChecker pathutil.PathChecker,
	logger log.Logger,
) ([]string, error) {
	var expandedPaths []string
	for _, path := range paths {
		if !strings.Contains(path, "*") {
			expandedPaths = append(expandedPaths, path)
			continue
		}

		base, pattern := doublestar.SplitPattern(path)
		absBase, err := pathModifier.AbsPath(base) // resolves ~/ and expands any envs
		if err != nil {
			return nil, err
		}
		matches, err := doublestar.Glob(os.DirFS(absBase), pattern, doublestar.WithNoFollow())
		if matches == nil {
			logger.Warnf("No match for path pattern: %s", path)
			continue
		}
		if err != nil {
			logger.Warnf("Error in path pattern '%s': %s", path, err)
			continue
		}

		for _, match := range matches {
			expandedPaths = append(expandedPaths, filepath.Join(base, match))
		}
	}

	var finalPaths []string
	for _, path := range expandedPaths {
		absPath, err := pathModifier.AbsPath(path)
		if err != nil {
			logger.Warnf("Failed to parse path %s, error: %s", path, err)
			continue
		}

		exists, err := pathChecker.IsPathExists(absPath)
		if err != nil {
			logger.Warnf("Failed to check path %s, error: %s", absPath, err)
		}
		if !exists {
			logger.Warnf("Include path doesn't exist: %s", path)
			continue
		}

		finalPaths = append(finalPaths, absPath)
	}

	return finalPaths, nil
}
