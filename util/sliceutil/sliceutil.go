package sliceutil

import (
	"strings"
)

// ContainsStringIgnoreCase reports whether s contains v using
// case-insensitive comparison.
func ContainsStringIgnoreCase(s []string, v string) bool {
	for _, i := range s {
		if strings.EqualFold(i, v) {
			return true
		}
	}
	return false
}

// Clone returns a copy of the given slice. A nil slice stays nil.
func Clone[T any](s []T) []T {
	if s == nil {
		return nil
	}

	c := make([]T, len(s))
	copy(c, s)
	return c
}
