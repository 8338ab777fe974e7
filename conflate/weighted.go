package conflate

import (
	"errors"
	"fmt"
	"math"
)

// ErrNegativeWeight is returned when a weighted matcher is given a negative or
// non-finite weight.
var ErrNegativeWeight = errors.New("weight must be a finite non-negative number")

// scoreEpsilon absorbs floating point residue when normalized weights of
// perfect scores sum to slightly above one.
const scoreEpsilon = 1e-9

// Weighted pairs a matcher with its relative weight.
type Weighted struct {
	Matcher FeatureMatcher
	Weight  float64
}

// WeightedMatcher runs several matchers and combines their scores into a
// weighted average. Matchers with weight 0 are dropped at construction and
// are never invoked.
type WeightedMatcher struct {
	matchers []Weighted
	total    float64
}

// NewWeightedMatcher creates a WeightedMatcher. Entries are evaluated in the
// order given.
func NewWeightedMatcher(entries ...Weighted) (*WeightedMatcher, error) {
	wm := &WeightedMatcher{}
	for i, e := range entries {
		if math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) || e.Weight < 0 {
			return nil, fmt.Errorf("matcher %d: %w: %v", i, ErrNegativeWeight, e.Weight)
		}
		if e.Weight == 0 {
			continue
		}
		if e.Matcher == nil {
			return nil, fmt.Errorf("matcher %d: nil matcher with weight %v", i, e.Weight)
		}
		wm.matchers = append(wm.matchers, e)
		wm.total += e.Weight
	}
	return wm, nil
}

// Len returns the number of retained (non-zero weight) matchers.
func (wm *WeightedMatcher) Len() int { return len(wm.matchers) }

// NormalizedWeights returns each retained matcher's weight divided by the
// total, in evaluation order.
func (wm *WeightedMatcher) NormalizedWeights() []float64 {
	out := make([]float64, len(wm.matchers))
	for i, m := range wm.matchers {
		out[i] = m.Weight / wm.total
	}
	return out
}

// Match scores candidates with every retained matcher. A candidate's score is
// the sum of normalized weight times score over the matchers that scored it;
// matchers that did not score it contribute nothing.
//
// Sums are accumulated per candidate in matcher order and emitted in candidate
// collection order, so results are bit-for-bit reproducible. Candidates that
// are not members of the collection are ignored.
func (wm *WeightedMatcher) Match(target *Feature, candidates *FeatureCollection) (*MatchSet, error) {
	result := NewMatchSet(target, candidates.Schema())
	if wm.total == 0 {
		return result, nil
	}

	sets := make([]*MatchSet, len(wm.matchers))
	for i, m := range wm.matchers {
		ms, err := m.Matcher.Match(target, candidates)
		if err != nil {
			return nil, err
		}
		sets[i] = ms
	}

	weights := wm.NormalizedWeights()
	for _, c := range candidates.Features() {
		var sum float64
		scored := false
		for i, ms := range sets {
			if s, ok := ms.Score(c.ID()); ok {
				sum += weights[i] * s
				scored = true
			}
		}
		if !scored {
			continue
		}
		if sum > 1 && sum < 1+scoreEpsilon {
			sum = 1
		}
		if err := result.Add(c, sum); err != nil {
			return nil, fmt.Errorf("combining scores for %s: %w", c.ID(), err)
		}
	}
	return result, nil
}
