package conflate

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Result maps each target identity to the match set computed for it. Every
// target of a completed run is present, including targets with empty sets.
type Result map[FeatureID]*MatchSet

// IDs returns the target identities in ascending order.
func (r Result) IDs() []FeatureID {
	ids := make([]FeatureID, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ScoredPairs returns the total number of (target, candidate) entries across
// all match sets.
func (r Result) ScoredPairs() int {
	n := 0
	for _, ms := range r {
		n += ms.Len()
	}
	return n
}

// CollectionMatchFinder matches every feature of a target collection against
// a candidate collection.
//
// A run that completes returns one entry per target. If the monitor requests
// cancellation the run stops at the next target boundary and returns a
// well-formed partial (possibly empty) result with a nil error.
type CollectionMatchFinder interface {
	Match(targets, candidates *FeatureCollection, monitor Monitor) (Result, error)
}

// DefaultWorkers is the per-target scoring parallelism used when Workers is
// not set.
const DefaultWorkers = 4

// BasicFinder pre-filters candidates by envelope and scores each target with
// Matcher. Targets are scored in parallel; the candidate collection is only
// read during a run.
type BasicFinder struct {
	Matcher FeatureMatcher

	// Buffer pads each target's bound before querying candidates. A negative
	// buffer disables the pre-filter and scores every candidate.
	Buffer float64

	// Workers bounds the number of targets scored concurrently.
	Workers int
}

// Match implements CollectionMatchFinder.
func (f *BasicFinder) Match(targets, candidates *FeatureCollection, monitor Monitor) (Result, error) {
	if monitor == nil {
		monitor = NopMonitor{}
	}
	monitor.Report("Finding matches")

	// Compute the envelope up front so concurrent queries only read it.
	candidates.Envelope()

	workers := f.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	total := targets.Len()
	sets := make([]*MatchSet, total)
	var done atomic.Int64

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(workers)

	for i, t := range targets.Features() {
		if monitor.IsCancelRequested() || ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if monitor.IsCancelRequested() || ctx.Err() != nil {
				return nil
			}
			ms, err := f.matchOne(t, candidates)
			if err != nil {
				return fmt.Errorf("matching target %s: %w", t.ID(), err)
			}
			sets[i] = ms
			monitor.ReportProgress(int(done.Add(1)), total, "features")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make(Result, total)
	for _, ms := range sets {
		if ms != nil {
			result[ms.Target().ID()] = ms
		}
	}
	return result, nil
}

func (f *BasicFinder) matchOne(target *Feature, candidates *FeatureCollection) (*MatchSet, error) {
	pool := candidates
	if f.Buffer >= 0 {
		pool = candidates.Subset(candidates.Query(target.Bound().Pad(f.Buffer)))
	}
	if pool.IsEmpty() {
		return NewMatchSet(target, candidates.Schema()), nil
	}
	ms, err := f.Matcher.Match(target, pool)
	if err != nil {
		return nil, err
	}
	if ms.Target() == nil || ms.Target().ID() != target.ID() {
		// Rebind sets built by matchers that do not track their target.
		rebound := NewMatchSet(target, candidates.Schema())
		for _, m := range ms.matches {
			if err := rebound.Add(m.Candidate, m.Score); err != nil {
				return nil, err
			}
		}
		ms = rebound
	}
	return ms, nil
}
