// Package interests defines the canonical interest tags users can declare
// for matchmaking and the set operations the matcher needs over them.
package interests

import "strings"

// Options is the canonical tag list, in menu order. Stored interests only
// ever contain these codes.
var Options = []string{
	"movies",
	"music",
	"sport",
	"games",
	"it",
	"travel",
	"books",
}

var valid = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Options))
	for _, code := range Options {
		m[code] = struct{}{}
	}
	return m
}()

// Valid reports whether code is a known canonical tag.
func Valid(code string) bool {
	_, ok := valid[strings.ToLower(strings.TrimSpace(code))]
	return ok
}

// Normalize lowercases, trims, deduplicates and drops unknown codes,
// preserving the first occurrence order.
func Normalize(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		code := strings.ToLower(strings.TrimSpace(item))
		if code == "" {
			continue
		}
		if _, ok := valid[code]; !ok {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

// Overlap reports whether the two tag sets intersect. An empty set never
// overlaps anything, not even another empty set.
func Overlap(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, code := range a {
		set[code] = struct{}{}
	}
	for _, code := range b {
		if _, ok := set[code]; ok {
			return true
		}
	}
	return false
}

// Toggle adds the code if absent or removes it if present, returning the
// updated set.
func Toggle(current []string, code string) []string {
	out := make([]string, 0, len(current)+1)
	removed := false
	for _, item := range current {
		if item == code {
			removed = true
			continue
		}
		out = append(out, item)
	}
	if !removed {
		out = append(out, code)
	}
	return out
}
