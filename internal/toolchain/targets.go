package toolchain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNoTargets indicates a configured pattern matched nothing.
var ErrNoTargets = errors.New("toolchain: target matched no paths")

// Target is one concrete path to validate by compilation.
type Target struct {
	Path  string
	IsDir bool
}

// ExpandTargets resolves the configured validation targets against root.
// Plain paths must exist; patterns containing glob characters are expanded
// with doublestar (supporting ** recursion). Results are deduplicated and
// sorted for stable stage output.
func ExpandTargets(root string, patterns []string) ([]Target, error) {
	seen := make(map[string]bool)
	var targets []Target

	add := func(path string) error {
		if seen[path] {
			return nil
		}
		info, err := os.Stat(filepath.Join(root, path))
		if err != nil {
			return fmt.Errorf("stat target %s: %w", path, err)
		}
		seen[path] = true
		targets = append(targets, Target{Path: path, IsDir: info.IsDir()})
		return nil
	}

	for _, pattern := range patterns {
		if !containsGlob(pattern) {
			if err := add(pattern); err != nil {
				return nil, err
			}
			continue
		}

		matches, err := doublestar.Glob(os.DirFS(root), pattern)
		if err != nil {
			return nil, fmt.Errorf("expand pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrNoTargets, pattern)
		}
		for _, m := range matches {
			if err := add(m); err != nil {
				return nil, err
			}
		}
	}

	sort.Slice(targets, func(i, j int) bool { return targets[i].Path < targets[j].Path })
	return targets, nil
}

// containsGlob reports whether the pattern uses glob syntax.
func containsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
