package conflate

// Pair is a single accepted correspondence between a reference (target)
// feature and a subject (candidate) feature.
type Pair struct {
	Target    *Feature `json:"-"`
	Candidate *Feature `json:"-"`
	Score     float64  `json:"score"`

	TargetID    FeatureID `json:"target"`
	CandidateID FeatureID `json:"candidate"`
}

// NewPair creates a pair.
func NewPair(target, candidate *Feature, score float64) Pair {
	return Pair{
		Target:      target,
		Candidate:   candidate,
		Score:       score,
		TargetID:    target.ID(),
		CandidateID: candidate.ID(),
	}
}

// Pairs flattens the result into one pair per target, using each match set's
// top entry. Targets with empty sets or a top score below minScore are
// skipped. Pairs are ordered by target identity.
func (r Result) Pairs(minScore float64) []Pair {
	pairs := make([]Pair, 0, len(r))
	for _, id := range r.IDs() {
		ms := r[id]
		top, ok := ms.Top()
		if !ok || top.Score < minScore {
			continue
		}
		pairs = append(pairs, NewPair(ms.Target(), top.Candidate, top.Score))
	}
	return pairs
}

// Unmatched returns the identities of targets without any scored candidate,
// in ascending order.
func (r Result) Unmatched() []FeatureID {
	var ids []FeatureID
	for _, id := range r.IDs() {
		if r[id].IsEmpty() {
			ids = append(ids, id)
		}
	}
	return ids
}
