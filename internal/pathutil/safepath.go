// Package pathutil holds path checks shared by the content loader and the
// static file resolver.
package pathutil

import "strings"

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// Unsafe reports whether a request path contains NULs, backslashes or
// parent references that must never reach a filesystem lookup.
func Unsafe(p string) bool {
	return strings.ContainsAny(p, "\x00\\") || strings.Contains(p, "..") || HasDotSegments(p)
}

// ValidSlug reports whether s can name a single content file: non-empty,
// no separators, no leading dot, no control characters.
func ValidSlug(s string) bool {
	if s == "" || len(s) > 200 || strings.HasPrefix(s, ".") {
		return false
	}
	for _, r := range s {
		if r == '/' || r == '\\' || r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}
