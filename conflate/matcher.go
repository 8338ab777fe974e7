package conflate

import (
	"fmt"

	"github.com/paulmach/orb"
)

// FeatureMatcher scores the candidates of a collection against one target.
// Implementations must be pure functions of their inputs and must only emit
// scores in [0, 1]; a candidate scored 0 is equivalent to an absent one.
type FeatureMatcher interface {
	Match(target *Feature, candidates *FeatureCollection) (*MatchSet, error)
}

// FeatureMatcherFunc adapts a function to the FeatureMatcher interface.
type FeatureMatcherFunc func(target *Feature, candidates *FeatureCollection) (*MatchSet, error)

// Match calls f(target, candidates).
func (f FeatureMatcherFunc) Match(target *Feature, candidates *FeatureCollection) (*MatchSet, error) {
	return f(target, candidates)
}

// CandidateMatcher scores a single target geometry against a single candidate
// geometry, independently of any other candidate.
type CandidateMatcher interface {
	Score(target, candidate orb.Geometry) float64
}

// CandidateMatcherFunc adapts a function to the CandidateMatcher interface.
type CandidateMatcherFunc func(target, candidate orb.Geometry) float64

// Score calls f(target, candidate).
func (f CandidateMatcherFunc) Score(target, candidate orb.Geometry) float64 {
	return f(target, candidate)
}

// EachCandidate lifts a pairwise CandidateMatcher to a FeatureMatcher that
// scores every candidate of the collection in order.
func EachCandidate(cm CandidateMatcher) FeatureMatcher {
	return independentMatcher{cm}
}

type independentMatcher struct {
	cm CandidateMatcher
}

func (m independentMatcher) Match(target *Feature, candidates *FeatureCollection) (*MatchSet, error) {
	ms := NewMatchSet(target, candidates.Schema())
	for _, c := range candidates.Features() {
		if err := ms.Add(c, m.cm.Score(target.Geometry, c.Geometry)); err != nil {
			return nil, fmt.Errorf("scoring %s against %s: %w", target.ID(), c.ID(), err)
		}
	}
	return ms, nil
}
