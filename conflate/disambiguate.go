package conflate

import (
	"sort"
)

// DisambiguatingFinder enforces a one-to-one relationship between targets and
// candidates in the result of an inner finder.
//
// All scored (target, candidate) pairs are ranked globally by descending
// score, ties broken by target identity and then candidate identity. Pairs
// are accepted greedily unless their target or candidate is already taken, so
// a target whose best candidate went to a stronger pairing falls back to its
// next best candidate still available. Nothing is rescored.
type DisambiguatingFinder struct {
	Inner CollectionMatchFinder
}

// NewDisambiguatingFinder wraps inner.
func NewDisambiguatingFinder(inner CollectionMatchFinder) *DisambiguatingFinder {
	return &DisambiguatingFinder{Inner: inner}
}

type scoredPair struct {
	target    *Feature
	candidate *Feature
	score     float64
}

// rankPairs sorts pairs by score descending, then by target and candidate
// identity ascending.
func rankPairs(pairs []scoredPair) {
	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.target.ID() != b.target.ID() {
			return a.target.ID() < b.target.ID()
		}
		return a.candidate.ID() < b.candidate.ID()
	})
}

// Match implements CollectionMatchFinder. If cancellation is requested the
// global assignment is skipped and an empty result is returned.
func (d *DisambiguatingFinder) Match(targets, candidates *FeatureCollection, monitor Monitor) (Result, error) {
	if monitor == nil {
		monitor = NopMonitor{}
	}
	raw, err := d.Inner.Match(targets, candidates, monitor)
	if err != nil {
		return nil, err
	}
	if monitor.IsCancelRequested() {
		return Result{}, nil
	}

	pairs := make([]scoredPair, 0, raw.ScoredPairs())
	for _, ms := range raw {
		for _, m := range ms.matches {
			pairs = append(pairs, scoredPair{target: ms.Target(), candidate: m.Candidate, score: m.Score})
		}
	}

	monitor.Report("Sorting scores")
	rankPairs(pairs)

	monitor.Report("Discarding inferior matches")
	takenTargets := make(map[FeatureID]struct{}, len(pairs))
	takenCandidates := make(map[FeatureID]struct{}, len(pairs))
	accepted := make(map[FeatureID]scoredPair)
	for i, p := range pairs {
		monitor.ReportProgress(i+1, len(pairs), "matches")
		if _, ok := takenTargets[p.target.ID()]; ok {
			continue
		}
		if _, ok := takenCandidates[p.candidate.ID()]; ok {
			continue
		}
		takenTargets[p.target.ID()] = struct{}{}
		takenCandidates[p.candidate.ID()] = struct{}{}
		accepted[p.target.ID()] = p
	}

	result := make(Result, targets.Len())
	for _, t := range targets.Features() {
		ms := NewMatchSet(t, candidates.Schema())
		if p, ok := accepted[t.ID()]; ok {
			if err := ms.Add(p.candidate, p.score); err != nil {
				return nil, err
			}
		}
		result[t.ID()] = ms
	}
	return result, nil
}
