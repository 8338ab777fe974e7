package conflate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	errNullGeometry        = errors.New("null geometry")
	errEmptyGeometry       = errors.New("empty geometry")
	errUnsupportedGeometry = errors.New("unsupported geometry type")
	errDuplicateID         = errors.New("duplicate feature id")
)

// LoadOptions controls how GeoJSON features are turned into Features.
type LoadOptions struct {
	// IDProperty names the property used as identity when a GeoJSON feature
	// has no top-level id.
	IDProperty string

	// Prefix is used to synthesize "<prefix>/<index>" identities when neither
	// an id nor IDProperty is available.
	Prefix string
}

// ConversionError reports a GeoJSON feature that could not be converted. The
// feature is left out of the resulting collection.
type ConversionError struct {
	Index int
	ID    string
	Err   error
}

func (e ConversionError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("feature %d (%s): %v", e.Index, e.ID, e.Err)
	}
	return fmt.Sprintf("feature %d: %v", e.Index, e.Err)
}

func (e ConversionError) Unwrap() error { return e.Err }

// LoadGeoJSON parses a GeoJSON FeatureCollection document.
func LoadGeoJSON(data []byte, opts LoadOptions) (*FeatureCollection, []ConversionError, error) {
	gfc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing GeoJSON: %w", err)
	}
	fc, convErrs := FromGeoJSON(gfc, opts)
	return fc, convErrs, nil
}

// FromGeoJSON converts GeoJSON features into a FeatureCollection. The schema
// is the sorted union of all property keys of the convertible features, each
// typed as a string attribute. Features that cannot be converted are reported
// and skipped, never silently dropped.
func FromGeoJSON(gfc *geojson.FeatureCollection, opts LoadOptions) (*FeatureCollection, []ConversionError) {
	type pending struct {
		id    FeatureID
		geom  orb.Geometry
		props geojson.Properties
	}

	var (
		convErrs []ConversionError
		accepted []pending
		seen     = make(map[FeatureID]int)
		keys     = make(map[string]struct{})
	)

	for i, gf := range gfc.Features {
		id := featureIdentity(gf, i, opts)
		if err := checkGeometry(gf.Geometry); err != nil {
			convErrs = append(convErrs, ConversionError{Index: i, ID: string(id), Err: err})
			continue
		}
		if first, dup := seen[id]; dup {
			convErrs = append(convErrs, ConversionError{
				Index: i, ID: string(id),
				Err: fmt.Errorf("%w: first seen at feature %d", errDuplicateID, first),
			})
			continue
		}
		seen[id] = i
		for k := range gf.Properties {
			keys[k] = struct{}{}
		}
		accepted = append(accepted, pending{id: id, geom: gf.Geometry, props: gf.Properties})
	}

	names := make([]string, 0, len(keys))
	for k := range keys {
		if k == GeometryAttribute {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)
	attrs := make([]Attribute, len(names))
	for i, n := range names {
		attrs[i] = Attribute{Name: n, Type: AttributeString}
	}
	// Names are unique and never the geometry attribute, so this cannot fail.
	schema, _ := NewSchema(attrs...)

	features := make([]*Feature, 0, len(accepted))
	for _, p := range accepted {
		values := make([]interface{}, len(names))
		for i, n := range names {
			if v, ok := p.props[n]; ok && v != nil {
				values[i] = stringValue(v)
			}
		}
		f, err := NewFeature(p.id, schema, p.geom, values...)
		if err != nil {
			convErrs = append(convErrs, ConversionError{Index: seen[p.id], ID: string(p.id), Err: err})
			continue
		}
		features = append(features, f)
	}
	// Identities were deduplicated above and every feature uses schema.
	fc, _ := NewFeatureCollectionFrom(schema, features)

	sort.Slice(convErrs, func(i, j int) bool { return convErrs[i].Index < convErrs[j].Index })
	return fc, convErrs
}

func featureIdentity(gf *geojson.Feature, index int, opts LoadOptions) FeatureID {
	if gf.ID != nil {
		if s := fmt.Sprint(gf.ID); s != "" {
			return FeatureID(s)
		}
	}
	if opts.IDProperty != "" {
		if v, ok := gf.Properties[opts.IDProperty]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return FeatureID(s)
			}
		}
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "feature"
	}
	return FeatureID(fmt.Sprintf("%s/%d", prefix, index))
}

func checkGeometry(g orb.Geometry) error {
	switch g := g.(type) {
	case nil:
		return errNullGeometry
	case orb.Point:
		return nil
	case orb.MultiPoint:
		if len(g) == 0 {
			return errEmptyGeometry
		}
	case orb.LineString:
		if len(g) < 2 {
			return errEmptyGeometry
		}
	case orb.MultiLineString:
		if len(g) == 0 {
			return errEmptyGeometry
		}
	case orb.Polygon:
		if len(g) == 0 || len(g[0]) < 4 {
			return errEmptyGeometry
		}
	case orb.MultiPolygon:
		if len(g) == 0 {
			return errEmptyGeometry
		}
	default:
		return fmt.Errorf("%w: %s", errUnsupportedGeometry, g.GeoJSONType())
	}
	return nil
}

func stringValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ToGeoJSON converts a collection back into a GeoJSON FeatureCollection with
// identities preserved.
func ToGeoJSON(fc *FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	for _, f := range fc.Features() {
		gf := geojson.NewFeature(f.Geometry)
		gf.ID = string(f.ID())
		for k, v := range f.Properties() {
			gf.Properties[k] = v
		}
		out.Append(gf)
	}
	return out
}

// PairsToGeoJSON renders pairs as LineStrings joining the target centroid to
// the candidate centroid, carrying identities and score as properties. Pairs
// without features (e.g. loaded from a cache) are skipped.
func PairsToGeoJSON(pairs []Pair) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	for _, p := range pairs {
		if p.Target == nil || p.Candidate == nil {
			continue
		}
		line := orb.LineString{Centroid(p.Target.Geometry), Centroid(p.Candidate.Geometry)}
		gf := geojson.NewFeature(line)
		gf.ID = fmt.Sprintf("%s->%s", p.TargetID, p.CandidateID)
		gf.Properties["target"] = string(p.TargetID)
		gf.Properties["candidate"] = string(p.CandidateID)
		gf.Properties["score"] = p.Score
		out.Append(gf)
	}
	return out
}
