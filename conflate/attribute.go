package conflate

import (
	"fmt"
	"strings"
	"unicode"
)

// AttributeMatcher scores candidates by the similarity of one named attribute:
// 1 - levenshtein/maxLen over normalized values. Missing or empty values on
// either side leave the candidate unscored.
type AttributeMatcher struct {
	Attribute string
}

// Match implements FeatureMatcher.
func (m AttributeMatcher) Match(target *Feature, candidates *FeatureCollection) (*MatchSet, error) {
	ms := NewMatchSet(target, candidates.Schema())
	tv := attributeText(target, m.Attribute)
	if tv == "" {
		return ms, nil
	}
	for _, c := range candidates.Features() {
		cv := attributeText(c, m.Attribute)
		if cv == "" {
			continue
		}
		if err := ms.Add(c, Similarity(tv, cv)); err != nil {
			return nil, fmt.Errorf("attribute %s: %w", m.Attribute, err)
		}
	}
	return ms, nil
}

func attributeText(f *Feature, name string) string {
	v, ok := f.Attribute(name)
	if !ok || v == nil {
		return ""
	}
	return normalize(fmt.Sprint(v))
}

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
// Two empty strings are identical.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// normalize lowercases, strips punctuation and collapses whitespace.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
