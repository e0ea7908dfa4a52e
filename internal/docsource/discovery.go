package docsource

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// discoverFiles returns the sorted, deduplicated absolute paths of regular
// files matching any of the patterns.
func discoverFiles(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var result []string

	for _, pattern := range patterns {
		pattern, err := absPattern(pattern)
		if err != nil {
			return nil, err
		}

		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, err
		}

		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil {
				continue
			}
			info, err := os.Stat(abs)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			if !seen[abs] {
				seen[abs] = true
				result = append(result, abs)
			}
		}
	}

	sort.Strings(result)
	return result, nil
}

func absPattern(pattern string) (string, error) {
	if filepath.IsAbs(pattern) {
		return pattern, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, pattern), nil
}

// watchDirs returns the static directory prefix of every pattern.
func watchDirs(patterns []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, pattern := range patterns {
		abs, err := absPattern(pattern)
		if err != nil {
			continue
		}
		dir := staticPrefix(abs)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// staticPrefix returns the longest directory path before the first glob character.
func staticPrefix(pattern string) string {
	for i, c := range pattern {
		if c == '*' || c == '?' || c == '[' || c == '{' {
			return filepath.Dir(pattern[:i])
		}
	}
	return filepath.Dir(pattern)
}

// matchesAny reports whether path matches any of the patterns.
func matchesAny(path string, patterns []string) bool {
	for _, pattern := range patterns {
		abs, err := absPattern(pattern)
		if err != nil {
			continue
		}
		if ok, _ := doublestar.PathMatch(abs, path); ok {
			return true
		}
	}
	return false
}
