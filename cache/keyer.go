package cache

import (
	"slices"
	"strings"
)

// keySeparator divides audience from scope key. It cannot appear in a URI.
const keySeparator = "\x1f"

// NormalizeScopes returns scopes sorted with duplicates and empty entries
// removed. The input is not modified.
func NormalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// ScopeKey is the sorted, comma-joined scope list.
func ScopeKey(scopes []string) string {
	return strings.Join(NormalizeScopes(scopes), ",")
}

// Key derives the cache key for (audience, scopes).
// Format: <audience> 0x1F <scope key>
func Key(audience string, scopes []string) string {
	return audience + keySeparator + ScopeKey(scopes)
}
