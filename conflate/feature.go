package conflate

import (
	"fmt"

	"github.com/paulmach/orb"
)

// FeatureID is the stable identity of a feature. It is assigned by the source
// adapter and never derived from geometry or attributes, so two features with
// identical geometry remain distinct.
type FeatureID string

// AttributeType describes the value type stored in a schema attribute
type AttributeType string

const (
	AttributeGeometry AttributeType = "geometry"
	AttributeString   AttributeType = "string"
	AttributeNumber   AttributeType = "number"
)

// GeometryAttribute is the name of the distinguished geometry attribute every
// schema carries.
const GeometryAttribute = "__GEOMETRY__"

// Attribute is a single named, typed column of a Schema.
type Attribute struct {
	Name string        `json:"name"`
	Type AttributeType `json:"type"`
}

// Schema is the ordered attribute layout shared by reference across all
// features of one collection. The geometry attribute is implicit and always
// present; Attributes lists the non-geometry columns in order.
type Schema struct {
	attributes []Attribute
	index      map[string]int
}

// NewSchema creates a schema with the given non-geometry attributes in order.
// Duplicate names are rejected.
func NewSchema(attrs ...Attribute) (*Schema, error) {
	s := &Schema{index: make(map[string]int, len(attrs))}
	for _, a := range attrs {
		if err := s.add(a); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Schema) add(a Attribute) error {
	if a.Name == "" || a.Name == GeometryAttribute {
		return fmt.Errorf("invalid attribute name %q", a.Name)
	}
	if _, dup := s.index[a.Name]; dup {
		return fmt.Errorf("duplicate attribute %q", a.Name)
	}
	s.index[a.Name] = len(s.attributes)
	s.attributes = append(s.attributes, a)
	return nil
}

// Len returns the number of non-geometry attributes.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.attributes)
}

// Attributes returns a copy of the non-geometry attributes in schema order.
func (s *Schema) Attributes() []Attribute {
	if s == nil {
		return nil
	}
	out := make([]Attribute, len(s.attributes))
	copy(out, s.attributes)
	return out
}

// IndexOf returns the position of the named attribute, or -1.
func (s *Schema) IndexOf(name string) int {
	if s == nil {
		return -1
	}
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Feature is a geometric record: identity, geometry and ordered attribute
// values conforming to a Schema.
type Feature struct {
	id         FeatureID
	schema     *Schema
	Geometry   orb.Geometry
	attributes []interface{}
}

// NewFeature creates a feature. values must hold exactly one entry per schema
// attribute, in schema order.
func NewFeature(id FeatureID, schema *Schema, geom orb.Geometry, values ...interface{}) (*Feature, error) {
	if id == "" {
		return nil, fmt.Errorf("feature id is required")
	}
	if geom == nil {
		return nil, fmt.Errorf("feature %s: geometry is required", id)
	}
	if len(values) != schema.Len() {
		return nil, fmt.Errorf("feature %s: %w: %d values for %d attributes",
			id, ErrSchemaMismatch, len(values), schema.Len())
	}
	attrs := make([]interface{}, len(values))
	copy(attrs, values)
	return &Feature{id: id, schema: schema, Geometry: geom, attributes: attrs}, nil
}

// ID returns the feature's stable identity.
func (f *Feature) ID() FeatureID { return f.id }

// Schema returns the schema the feature conforms to.
func (f *Feature) Schema() *Schema { return f.schema }

// Attribute returns the value of the named attribute and whether the schema
// defines it.
func (f *Feature) Attribute(name string) (interface{}, bool) {
	i := f.schema.IndexOf(name)
	if i < 0 {
		return nil, false
	}
	return f.attributes[i], true
}

// Bound returns the bounding box of the feature's geometry.
func (f *Feature) Bound() orb.Bound {
	return f.Geometry.Bound()
}

// Properties returns the attributes as a name->value map, omitting nil values.
func (f *Feature) Properties() map[string]interface{} {
	props := make(map[string]interface{}, len(f.attributes))
	for i, a := range f.schema.attributes {
		if v := f.attributes[i]; v != nil {
			props[a.Name] = v
		}
	}
	return props
}

func (f *Feature) String() string {
	return fmt.Sprintf("%s(%s)", f.id, f.Geometry.GeoJSONType())
}
