package conflate

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// CentroidDistanceMatcher scores by the distance between centroids, falling
// linearly from 1 at distance 0 to 0 at MaxDistance.
type CentroidDistanceMatcher struct {
	MaxDistance float64
}

// Score implements CandidateMatcher.
func (m CentroidDistanceMatcher) Score(target, candidate orb.Geometry) float64 {
	d := planar.Distance(Centroid(target), Centroid(candidate))
	if d == 0 {
		return 1
	}
	if m.MaxDistance <= 0 {
		return 0
	}
	return clampScore(1 - d/m.MaxDistance)
}

// OverlapMatcher scores the overlap of the two bounding boxes: the
// intersection area divided by the union area. Two identical degenerate
// bounds (points, axis-parallel lines) score 1.
type OverlapMatcher struct{}

// Score implements CandidateMatcher.
func (OverlapMatcher) Score(target, candidate orb.Geometry) float64 {
	a, b := target.Bound(), candidate.Bound()
	if !a.Intersects(b) {
		return 0
	}
	inter := boundArea(intersectBound(a, b))
	union := boundArea(a) + boundArea(b) - inter
	if union <= 0 {
		if a.Equal(b) {
			return 1
		}
		return 0
	}
	return clampScore(inter / union)
}

// AreaMatcher scores the ratio of the smaller to the larger planar area.
// Two zero-area geometries score 1; a zero-area geometry against an areal one
// scores 0.
type AreaMatcher struct{}

// Score implements CandidateMatcher.
func (AreaMatcher) Score(target, candidate orb.Geometry) float64 {
	a := math.Abs(planar.Area(target))
	b := math.Abs(planar.Area(candidate))
	if a == 0 && b == 0 {
		return 1
	}
	return clampScore(math.Min(a, b) / math.Max(a, b))
}

// ShapeMatcher compares vertex clouds. In each direction it takes the
// fraction of vertices lying within MaxDistance of the other geometry's
// vertices, damped by the mean inlier distance; the score is the mean of
// both directions. Usually wrapped in a CentroidAligner so that only shape
// is compared.
type ShapeMatcher struct {
	MaxDistance float64
}

// Score implements CandidateMatcher.
func (m ShapeMatcher) Score(target, candidate orb.Geometry) float64 {
	if m.MaxDistance <= 0 {
		return 0
	}
	tv, cv := vertices(target), vertices(candidate)
	if len(tv) == 0 || len(cv) == 0 {
		return 0
	}
	forward := inlierScore(tv, cv, m.MaxDistance)
	backward := inlierScore(cv, tv, m.MaxDistance)
	return clampScore((forward + backward) / 2)
}

// inlierScore is high when most source points have a close target point.
// Score = fraction / (1 + avgDist / (2 * maxDist)), which lies in [0, 1].
func inlierScore(source, target []orb.Point, maxDist float64) float64 {
	inliers := 0
	total := 0.0
	for _, sp := range source {
		best := math.MaxFloat64
		for _, tp := range target {
			if d := planar.Distance(sp, tp); d < best {
				best = d
			}
		}
		if best <= maxDist {
			inliers++
			total += best
		}
	}
	if inliers == 0 {
		return 0
	}
	fraction := float64(inliers) / float64(len(source))
	avg := total / float64(inliers)
	return fraction / (1.0 + avg/(2*maxDist))
}

// vertices flattens a geometry into its points. Closing ring points are
// dropped so a closed ring does not weight its first vertex twice.
func vertices(g orb.Geometry) []orb.Point {
	var pts []orb.Point
	switch g := g.(type) {
	case orb.Point:
		pts = append(pts, g)
	case orb.MultiPoint:
		pts = append(pts, g...)
	case orb.LineString:
		pts = append(pts, g...)
	case orb.MultiLineString:
		for _, ls := range g {
			pts = append(pts, ls...)
		}
	case orb.Ring:
		pts = append(pts, openRing(g)...)
	case orb.Polygon:
		for _, r := range g {
			pts = append(pts, openRing(r)...)
		}
	case orb.MultiPolygon:
		for _, p := range g {
			pts = append(pts, vertices(p)...)
		}
	case orb.Collection:
		for _, c := range g {
			pts = append(pts, vertices(c)...)
		}
	case orb.Bound:
		pts = append(pts, openRing(g.ToRing())...)
	}
	return pts
}

func openRing(r orb.Ring) []orb.Point {
	if len(r) > 1 && r.Closed() {
		return r[:len(r)-1]
	}
	return r
}

func intersectBound(a, b orb.Bound) orb.Bound {
	return orb.Bound{
		Min: orb.Point{math.Max(a.Min[0], b.Min[0]), math.Max(a.Min[1], b.Min[1])},
		Max: orb.Point{math.Min(a.Max[0], b.Max[0]), math.Min(a.Max[1], b.Max[1])},
	}
}

func boundArea(b orb.Bound) float64 {
	w := b.Max[0] - b.Min[0]
	h := b.Max[1] - b.Min[1]
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// clampScore maps out-of-range arithmetic results of a scoring formula into
// [0, 1]. It is only applied to values computed by the leaf matchers
// themselves; MatchSet.Add still rejects invalid scores from elsewhere.
func clampScore(s float64) float64 {
	switch {
	case math.IsNaN(s), s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}
