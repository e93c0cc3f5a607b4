package tools

import (
	"slices"
	"strings"
)

// SuggestKeys returns up to limit catalog keys that look like a mistyped query.
// Keys containing the query as a substring rank first, then keys within a small
// edit distance of the query. Ties break on key order.
func SuggestKeys(query string, keys []string, limit int) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || limit <= 0 {
		return nil
	}

	// Shorter queries get stricter matching
	maxDistance := min(max(len([]rune(query))/3, 1), 3)

	type candidate struct {
		key      string
		distance int
	}
	var candidates []candidate
	for _, key := range keys {
		lower := strings.ToLower(key)
		if strings.Contains(lower, query) {
			candidates = append(candidates, candidate{key: key})
			continue
		}
		best := editDistance(query, lower)
		for _, segment := range splitKey(lower) {
			best = min(best, editDistance(query, segment))
		}
		if best <= maxDistance {
			candidates = append(candidates, candidate{key: key, distance: best})
		}
	}

	slices.SortFunc(candidates, func(a, b candidate) int {
		if a.distance != b.distance {
			return a.distance - b.distance
		}
		return strings.Compare(a.key, b.key)
	})

	out := make([]string, 0, min(limit, len(candidates)))
	for _, c := range candidates[:min(limit, len(candidates))] {
		out = append(out, c.key)
	}
	return out
}

func splitKey(key string) []string {
	return strings.FieldsFunc(key, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == ' '
	})
}

// editDistance is the Levenshtein distance between a and b, counted in runes.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
