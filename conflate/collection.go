package conflate

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// ErrSchemaMismatch is returned when a feature does not conform to the schema
// of the collection it is added to.
var ErrSchemaMismatch = errors.New("schema mismatch")

// ErrDuplicateFeature is returned when a feature's identity is already present
// in the collection. Match results are keyed by identity.
var ErrDuplicateFeature = errors.New("duplicate feature identity")

// FeatureCollection is an ordered set of features sharing one schema, with
// unique identities. Its
// envelope is computed lazily and kept exact across mutations: adds extend a
// cached envelope, removals invalidate it.
//
// A collection is not safe for concurrent mutation. Concurrent reads are safe
// once the envelope has been computed, which every finder does before fanning
// out.
type FeatureCollection struct {
	schema   *Schema
	features []*Feature
	byID     map[FeatureID]*Feature

	envelope      orb.Bound
	envelopeValid bool
}

// NewFeatureCollection creates an empty collection for the given schema.
func NewFeatureCollection(schema *Schema) *FeatureCollection {
	return &FeatureCollection{schema: schema, byID: make(map[FeatureID]*Feature)}
}

// NewFeatureCollectionFrom creates a collection holding features.
func NewFeatureCollectionFrom(schema *Schema, features []*Feature) (*FeatureCollection, error) {
	fc := NewFeatureCollection(schema)
	fc.features = make([]*Feature, 0, len(features))
	if err := fc.AddAll(features); err != nil {
		return nil, err
	}
	return fc, nil
}

// Schema returns the collection's schema.
func (fc *FeatureCollection) Schema() *Schema { return fc.schema }

// Len returns the number of features.
func (fc *FeatureCollection) Len() int { return len(fc.features) }

// IsEmpty reports whether the collection holds no features.
func (fc *FeatureCollection) IsEmpty() bool { return len(fc.features) == 0 }

// At returns the ith feature.
func (fc *FeatureCollection) At(i int) *Feature { return fc.features[i] }

// Features returns the features in insertion order. The returned slice must
// not be modified.
func (fc *FeatureCollection) Features() []*Feature { return fc.features }

// Add appends a feature. The feature must share the collection's schema and
// carry an identity not yet in the collection.
func (fc *FeatureCollection) Add(f *Feature) error {
	if err := fc.checkAdd(f); err != nil {
		return err
	}
	fc.add(f)
	return nil
}

func (fc *FeatureCollection) checkAdd(f *Feature) error {
	if f.schema != fc.schema {
		return fmt.Errorf("adding %s: %w", f.id, ErrSchemaMismatch)
	}
	if _, dup := fc.ByID(f.id); dup {
		return fmt.Errorf("adding %s: %w", f.id, ErrDuplicateFeature)
	}
	return nil
}

func (fc *FeatureCollection) add(f *Feature) {
	if fc.byID == nil {
		fc.byID = make(map[FeatureID]*Feature)
	}
	fc.byID[f.id] = f
	fc.features = append(fc.features, f)
	if fc.envelopeValid {
		fc.envelope = fc.envelope.Union(f.Bound())
	}
}

// AddAll appends features in order. Nothing is added if any feature has a
// foreign schema or repeats an identity.
func (fc *FeatureCollection) AddAll(features []*Feature) error {
	batch := make(map[FeatureID]struct{}, len(features))
	for _, f := range features {
		if err := fc.checkAdd(f); err != nil {
			return err
		}
		if _, dup := batch[f.id]; dup {
			return fmt.Errorf("adding %s: %w", f.id, ErrDuplicateFeature)
		}
		batch[f.id] = struct{}{}
	}
	for _, f := range features {
		fc.add(f)
	}
	return nil
}

// RemoveFunc removes every feature for which remove returns true and returns
// the removed features in their original order.
func (fc *FeatureCollection) RemoveFunc(remove func(*Feature) bool) []*Feature {
	var removed []*Feature
	kept := fc.features[:0]
	for _, f := range fc.features {
		if remove(f) {
			removed = append(removed, f)
			delete(fc.byID, f.id)
			continue
		}
		kept = append(kept, f)
	}
	// Clear the tail so removed features can be collected.
	for i := len(kept); i < len(fc.features); i++ {
		fc.features[i] = nil
	}
	fc.features = kept
	if len(removed) > 0 {
		fc.envelopeValid = false
	}
	return removed
}

// RemoveInBound removes the features whose bounds intersect b.
func (fc *FeatureCollection) RemoveInBound(b orb.Bound) []*Feature {
	return fc.RemoveFunc(func(f *Feature) bool {
		return f.Bound().Intersects(b)
	})
}

// Envelope returns the bounding box of all features. The second return value
// is false for an empty collection.
func (fc *FeatureCollection) Envelope() (orb.Bound, bool) {
	if len(fc.features) == 0 {
		return orb.Bound{}, false
	}
	if !fc.envelopeValid {
		env := fc.features[0].Bound()
		for _, f := range fc.features[1:] {
			env = env.Union(f.Bound())
		}
		fc.envelope = env
		fc.envelopeValid = true
	}
	return fc.envelope, true
}

// Query returns the features whose bounds intersect b, in collection order.
func (fc *FeatureCollection) Query(b orb.Bound) []*Feature {
	env, ok := fc.Envelope()
	if !ok || !env.Intersects(b) {
		return nil
	}
	var result []*Feature
	for _, f := range fc.features {
		if f.Bound().Intersects(b) {
			result = append(result, f)
		}
	}
	return result
}

// Subset returns a new collection with the same schema holding features. The
// features are shared, not copied.
func (fc *FeatureCollection) Subset(features []*Feature) *FeatureCollection {
	sub := &FeatureCollection{
		schema:   fc.schema,
		features: make([]*Feature, len(features)),
		byID:     make(map[FeatureID]*Feature, len(features)),
	}
	copy(sub.features, features)
	for _, f := range features {
		sub.byID[f.id] = f
	}
	return sub
}

// ByID returns the feature with the given identity.
func (fc *FeatureCollection) ByID(id FeatureID) (*Feature, bool) {
	f, ok := fc.byID[id]
	return f, ok
}

// Transform replaces every geometry with a transformed copy and invalidates
// the envelope. Used for manual dataset calibration before matching.
func (fc *FeatureCollection) Transform(m AffineMatrix) {
	if m.IsIdentity() {
		return
	}
	for _, f := range fc.features {
		f.Geometry = TransformGeometry(f.Geometry, m)
	}
	fc.envelopeValid = false
}
