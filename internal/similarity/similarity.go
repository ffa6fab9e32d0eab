// Package similarity implements the edit-distance based string similarity used
// to recover matches between résumé terms and job text that differ by typos,
// casing or stem variants.
package similarity

import (
	"strings"
)

const (
	// DefaultThreshold is the minimum similarity FindBestMatch must strictly exceed.
	DefaultThreshold = 0.7
	// containmentScore is returned when one string contains the other.
	containmentScore = 0.9
)

// Match is the best candidate found by FindBestMatch.
type Match struct {
	Word       string
	Similarity float64
}

// Distance returns the Levenshtein distance between a and b. Insertions,
// deletions and substitutions all cost 1. The comparison is rune based and
// case sensitive: callers lowercase first.
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[lb]
}

// Similarity scores a and b in [0,1]. Equal strings (ignoring case) score 1,
// a string containing the other scores 0.9, everything else falls back to
// 1 - distance/maxLen. Callers must not rely on symmetry for the containment
// shortcut; the edit-distance path is symmetric.
func Similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return containmentScore
	}

	maxLen := max(len([]rune(a)), len([]rune(b)))
	return 1 - float64(Distance(a, b))/float64(maxLen)
}

// FindBestMatch returns the candidate most similar to word. Only candidates
// strictly above threshold qualify and the first one seen wins a tie.
func FindBestMatch(word string, candidates []string, threshold float64) (Match, bool) {
	best := Match{Similarity: threshold}
	found := false

	for _, candidate := range candidates {
		s := Similarity(word, candidate)
		if s > best.Similarity {
			best = Match{Word: candidate, Similarity: s}
			found = true
		}
	}

	if !found {
		return Match{}, false
	}
	return best, true
}
