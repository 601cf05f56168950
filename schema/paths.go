package schema

import (
	"regexp"
	"strings"
)

var bracketSegment = regexp.MustCompile(`\[\s*['"]([^'"]*)['"]\s*\]`)

// NormalizePath turns bracket paths such as a['b']['c'] into the dotted
// form a.b.c used everywhere else.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = bracketSegment.ReplaceAllString(path, ".$1")
	parts := SplitPath(path)
	return JoinPath(parts...)
}

// SplitPath splits a dotted path, dropping empty segments.
func SplitPath(path string) []string {
	raw := strings.Split(path, ".")
	out := raw[:0]
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinPath joins path segments with dots.
func JoinPath(parts ...string) string {
	return strings.Join(parts, ".")
}

// NormalizePaths normalizes paths and drops empty and repeated entries,
// keeping first occurrence order.
func NormalizePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		p = NormalizePath(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
