// Package strings provides string manipulation utilities.
package strings

import (
	"path/filepath"
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
//	DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "})
//	// Returns: []string{"foo", "bar"}
func DedupeAndTrim(values []string) []string {
	return dedupe(values, strings.TrimSpace)
}

// DedupePaths is DedupeAndTrim for filesystem paths: entries are cleaned and
// a leading "~/" is expanded against home, so "~/Pictures/" and
// "/home/u/Pictures" collapse into one entry.
func DedupePaths(values []string, home string) []string {
	return dedupe(values, func(v string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return ""
		}
		if home != "" && (v == "~" || strings.HasPrefix(v, "~/")) {
			v = filepath.Join(home, strings.TrimPrefix(v, "~"))
		}
		return filepath.Clean(v)
	})
}

func dedupe(values []string, normalize func(string) string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		n := normalize(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			result = append(result, n)
		}
	}

	return result
}
