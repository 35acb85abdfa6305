package keyset

import "strings"

// NormalizeQuery trims a search query and collapses whitespace runs, so
// equivalent spellings share one cache entry.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
