package conflate

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Run is the outcome of one matching session between a reference and a
// subject dataset.
type Run struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"startedAt"`
	DurationMs int64         `json:"durationMs"`
	Cancelled  bool          `json:"cancelled"`
	References int           `json:"references"`
	Subjects   int           `json:"subjects"`
	Scored     int           `json:"scored"`
	Pairs      []Pair        `json:"pairs"`
	Unmatched  []FeatureID   `json:"unmatched"`
	Result     Result        `json:"-"`
	Duration   time.Duration `json:"-"`
}

// BuildFinder assembles the finder pipeline described by cfg: one leaf
// matcher per entry (optionally centroid-aligned), combined by a
// WeightedMatcher, driven by a BasicFinder, and wrapped in a
// DisambiguatingFinder unless disambiguation is turned off.
func BuildFinder(cfg MatchingConfig) (CollectionMatchFinder, error) {
	basic, err := newBasicFinder(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.ShouldDisambiguate() {
		return NewDisambiguatingFinder(basic), nil
	}
	return basic, nil
}

func newBasicFinder(cfg MatchingConfig) (*BasicFinder, error) {
	entries := make([]Weighted, 0, len(cfg.Matchers))
	for i, mc := range cfg.Matchers {
		m, err := buildMatcher(mc)
		if err != nil {
			return nil, fmt.Errorf("matcher %d: %w", i, err)
		}
		entries = append(entries, Weighted{Matcher: m, Weight: mc.Weight})
	}

	wm, err := NewWeightedMatcher(entries...)
	if err != nil {
		return nil, err
	}
	for _, mc := range cfg.Matchers {
		if mc.Type == MatcherCentroidDistance && !mc.Align && cfg.Buffer >= 0 && mc.MaxDistance > cfg.Buffer {
			log.Printf("[MATCH] Warning: buffer %v is smaller than centroid-distance maxDistance %v; farther candidates are never scored",
				cfg.Buffer, mc.MaxDistance)
		}
	}
	return &BasicFinder{Matcher: wm, Buffer: cfg.Buffer, Workers: cfg.Workers}, nil
}

func buildMatcher(mc MatcherConfig) (FeatureMatcher, error) {
	var cm CandidateMatcher
	switch mc.Type {
	case MatcherCentroidDistance:
		cm = CentroidDistanceMatcher{MaxDistance: mc.MaxDistance}
	case MatcherOverlap:
		cm = OverlapMatcher{}
	case MatcherArea:
		cm = AreaMatcher{}
	case MatcherShape:
		cm = ShapeMatcher{MaxDistance: mc.MaxDistance}
	case MatcherAttribute:
		if mc.Attribute == "" {
			return nil, fmt.Errorf("attribute matcher needs an attribute name")
		}
		return AttributeMatcher{Attribute: mc.Attribute}, nil
	default:
		return nil, fmt.Errorf("unknown matcher type %q", mc.Type)
	}

	if mc.Align {
		return NewCentroidAligner(cm), nil
	}
	return EachCandidate(cm), nil
}

// countingFinder records how many entries its inner finder scored.
type countingFinder struct {
	inner  CollectionMatchFinder
	scored atomic.Int64
}

func (c *countingFinder) Match(targets, candidates *FeatureCollection, monitor Monitor) (Result, error) {
	r, err := c.inner.Match(targets, candidates, monitor)
	if err == nil {
		c.scored.Store(int64(r.ScoredPairs()))
	}
	return r, err
}

// GenerateMatches matches every reference feature against the subject
// dataset. Cancelling ctx stops the run; when the finder saw the cancellation
// the returned Run is marked Cancelled and carries whatever it produced.
func GenerateMatches(ctx context.Context, reference, subject *FeatureCollection, cfg MatchingConfig, monitor Monitor) (*Run, error) {
	run := &Run{
		ID:         uuid.NewString(),
		StartedAt:  time.Now(),
		References: reference.Len(),
		Subjects:   subject.Len(),
	}

	basic, err := newBasicFinder(cfg)
	if err != nil {
		observeRun(runResultError, time.Since(run.StartedAt), 0, 0)
		return nil, err
	}

	counter := &countingFinder{inner: basic}
	var finder CollectionMatchFinder = counter
	if cfg.ShouldDisambiguate() {
		finder = NewDisambiguatingFinder(counter)
	}

	mon := WithContext(ctx, monitor)
	result, err := finder.Match(reference, subject, mon)
	run.Duration = time.Since(run.StartedAt)
	run.DurationMs = run.Duration.Milliseconds()
	if err != nil {
		observeRun(runResultError, run.Duration, 0, 0)
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}

	run.Result = result
	run.Scored = int(counter.scored.Load())
	run.Cancelled = mon.CancelObserved()
	run.Pairs = result.Pairs(cfg.MinScore)
	run.Unmatched = result.Unmatched()

	if run.Cancelled {
		observeRun(runResultCancelled, run.Duration, 0, 0)
		log.Printf("[MATCH] Run %s cancelled after %v", run.ID, run.Duration)
		return run, nil
	}
	observeRun(runResultOK, run.Duration, len(run.Pairs), run.Scored)
	log.Printf("[MATCH] Run %s: %d references, %d subjects, %d scored, %d pairs in %v",
		run.ID, run.References, run.Subjects, run.Scored, len(run.Pairs), run.Duration)
	return run, nil
}

// Calibrate applies the dataset's manual rotation and translation to every
// feature in fc, rotating around the collection's envelope center.
func Calibrate(fc *FeatureCollection, dc DatasetConfig) {
	if !dc.HasManualCalibration() {
		return
	}
	b, ok := fc.Envelope()
	if !ok {
		return
	}
	fc.Transform(dc.CalibrationTransform(b.Center()))
}

// LoadDataset reads a GeoJSON dataset from the configured path or URL and
// applies its manual calibration. Conversion failures are logged and
// returned; they do not fail the load.
func LoadDataset(ctx context.Context, name string, dc DatasetConfig, opts ...FetchOption) (*FeatureCollection, []ConversionError, error) {
	load := LoadOptions{IDProperty: dc.IDProperty, Prefix: name}

	var (
		fc       *FeatureCollection
		convErrs []ConversionError
	)
	switch {
	case dc.Path != "":
		data, err := os.ReadFile(dc.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s dataset: %w", name, err)
		}
		fc, convErrs, err = LoadGeoJSON(data, load)
		if err != nil {
			return nil, nil, fmt.Errorf("%s dataset: %w", name, err)
		}
	case dc.URL != "":
		var err error
		fc, convErrs, err = FetchCollection(ctx, dc.URL, load, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("fetching %s dataset: %w", name, err)
		}
	default:
		return nil, nil, fmt.Errorf("%s dataset has neither path nor url", name)
	}

	for _, ce := range convErrs {
		log.Printf("[MATCH] Skipping %s %v", name, ce)
	}
	Calibrate(fc, dc)
	return fc, convErrs, nil
}
