// Package similarity scores how closely two pieces of text overlap.
// All KB matching and deduplication decisions are based on Score.
package similarity

import "strings"

// Tokenize lower-cases text and splits it on every rune outside [a-z0-9].
// Empty tokens are dropped.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// Jaccard returns |A∩B| / |A∪B| over the token sets of a and b.
// Duplicate tokens count once. Returns 0 if either side is empty.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}

	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Score tokenizes both strings and returns their Jaccard index.
func Score(a, b string) float64 {
	return Jaccard(Tokenize(a), Tokenize(b))
}
