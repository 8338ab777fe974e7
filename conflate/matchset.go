package conflate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

var (
	// ErrInvalidScore is returned when a score outside [0, 1] (or NaN) is
	// added to a MatchSet. Scores are never clamped.
	ErrInvalidScore = errors.New("invalid score")

	// ErrDuplicateCandidate is returned when the same candidate identity is
	// added to a MatchSet twice. Combining scores is the job of a composite
	// matcher, not of the set.
	ErrDuplicateCandidate = errors.New("duplicate candidate")
)

// Match is one scored candidate.
type Match struct {
	Candidate *Feature
	Score     float64
}

// MatchSet is the append-only set of scored candidates for one target. Zero
// scores are never stored. The top entry (highest score, first inserted wins
// ties) is tracked as entries are added.
type MatchSet struct {
	target  *Feature
	schema  *Schema
	matches []Match
	seen    map[FeatureID]int
	top     int
}

// NewMatchSet creates an empty set for target whose candidates conform to
// schema. target may be nil for sets that are not bound to a target.
func NewMatchSet(target *Feature, schema *Schema) *MatchSet {
	return &MatchSet{target: target, schema: schema, top: -1}
}

// Add records a candidate with its score. A zero score is accepted and
// ignored.
func (ms *MatchSet) Add(candidate *Feature, score float64) error {
	if math.IsNaN(score) || score < 0 || score > 1 {
		return fmt.Errorf("%w: %v for candidate %s", ErrInvalidScore, score, candidate.ID())
	}
	if score == 0 {
		return nil
	}
	if ms.seen == nil {
		ms.seen = make(map[FeatureID]int)
	}
	if _, dup := ms.seen[candidate.ID()]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateCandidate, candidate.ID())
	}
	ms.seen[candidate.ID()] = len(ms.matches)
	ms.matches = append(ms.matches, Match{Candidate: candidate, Score: score})
	if ms.top < 0 || score > ms.matches[ms.top].Score {
		ms.top = len(ms.matches) - 1
	}
	return nil
}

// Target returns the feature this set was built for.
func (ms *MatchSet) Target() *Feature { return ms.target }

// Schema returns the candidate schema.
func (ms *MatchSet) Schema() *Schema { return ms.schema }

// Len returns the number of stored (non-zero) matches.
func (ms *MatchSet) Len() int { return len(ms.matches) }

// IsEmpty reports whether no candidate was scored above zero.
func (ms *MatchSet) IsEmpty() bool { return len(ms.matches) == 0 }

// At returns the ith match in insertion order.
func (ms *MatchSet) At(i int) Match { return ms.matches[i] }

// Matches returns a copy of all matches in insertion order.
func (ms *MatchSet) Matches() []Match {
	out := make([]Match, len(ms.matches))
	copy(out, ms.matches)
	return out
}

// Score returns the score recorded for the candidate identity.
func (ms *MatchSet) Score(id FeatureID) (float64, bool) {
	i, ok := ms.seen[id]
	if !ok {
		return 0, false
	}
	return ms.matches[i].Score, true
}

// Top returns the highest scoring match. ok is false for an empty set.
func (ms *MatchSet) Top() (m Match, ok bool) {
	if ms.top < 0 {
		return Match{}, false
	}
	return ms.matches[ms.top], true
}

// TopScore returns the highest score, or 0 for an empty set.
func (ms *MatchSet) TopScore() float64 {
	m, _ := ms.Top()
	return m.Score
}

// TopMatch returns the highest scoring candidate, or nil for an empty set.
func (ms *MatchSet) TopMatch() *Feature {
	m, _ := ms.Top()
	return m.Candidate
}

// Envelope returns the bounding box of the matched candidates.
func (ms *MatchSet) Envelope() (orb.Bound, bool) {
	if len(ms.matches) == 0 {
		return orb.Bound{}, false
	}
	env := ms.matches[0].Candidate.Bound()
	for _, m := range ms.matches[1:] {
		env = env.Union(m.Candidate.Bound())
	}
	return env, true
}

type matchJSON struct {
	Candidate FeatureID `json:"candidate"`
	Score     float64   `json:"score"`
}

// MarshalJSON encodes the set as a list of {candidate, score} entries.
func (ms *MatchSet) MarshalJSON() ([]byte, error) {
	out := make([]matchJSON, len(ms.matches))
	for i, m := range ms.matches {
		out[i] = matchJSON{Candidate: m.Candidate.ID(), Score: m.Score}
	}
	return json.Marshal(out)
}
