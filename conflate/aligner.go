package conflate

import (
	"github.com/paulmach/orb"
)

// CentroidAligner removes translational offset before scoring: both the
// target and the candidate are copied and moved so that their own centroids
// sit on the origin, and the inner matcher scores the copies. The inner
// matcher therefore judges shape and size, not location.
type CentroidAligner struct {
	inner CandidateMatcher
}

// NewCentroidAligner wraps inner.
func NewCentroidAligner(inner CandidateMatcher) *CentroidAligner {
	return &CentroidAligner{inner: inner}
}

// Align returns a copy of g translated so its centroid is at the origin.
func (a *CentroidAligner) Align(g orb.Geometry) orb.Geometry {
	c := Centroid(g)
	return TransformGeometry(g, Translation(-c[0], -c[1]))
}

// Score aligns copies of target and candidate and delegates to the inner
// matcher.
func (a *CentroidAligner) Score(target, candidate orb.Geometry) float64 {
	return a.inner.Score(a.Align(target), a.Align(candidate))
}

// Match scores every candidate in the collection against target.
func (a *CentroidAligner) Match(target *Feature, candidates *FeatureCollection) (*MatchSet, error) {
	return EachCandidate(a).Match(target, candidates)
}
