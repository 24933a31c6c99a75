package resolve

import "strings"

// NameSimilarity computes Jaccard similarity on normalized word sets. Used to
// propose fuzzy catalog matches when neither barcode nor part number lines up.
func NameSimilarity(a, b string) float64 {
	wordsA := wordSet(NormalizeName(a))
	wordsB := wordSet(NormalizeName(b))

	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}

	union := len(wordsA)
	for w := range wordsB {
		if !wordsA[w] {
			union++
		}
	}

	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(s)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		// Strip common punctuation.
		w = strings.Trim(w, ".,;:!?()[]{}\"'")
		if w != "" {
			set[w] = true
		}
	}
	return set
}
