package conflate

// TranslationOffset represents a 2D translation offset for calibration
type TranslationOffset struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// DatasetConfig describes where a dataset comes from and how to read it.
type DatasetConfig struct {
	Path       string `yaml:"path,omitempty" json:"path,omitempty"`
	URL        string `yaml:"url,omitempty" json:"url,omitempty"`
	Topic      string `yaml:"topic,omitempty" json:"topic,omitempty"`
	IDProperty string `yaml:"idProperty,omitempty" json:"idProperty,omitempty"`

	Rotation    *float64           `yaml:"rotation,omitempty" json:"rotation,omitempty"`       // Optional manual rotation (degrees, CCW, around the dataset centroid)
	Translation *TranslationOffset `yaml:"translation,omitempty" json:"translation,omitempty"` // Optional manual translation applied after rotation
}

// HasManualCalibration returns true if the dataset has rotation or translation overrides
func (dc *DatasetConfig) HasManualCalibration() bool {
	return dc.Rotation != nil || dc.Translation != nil
}

// GetRotation returns the rotation value or 0 if not set
func (dc *DatasetConfig) GetRotation() float64 {
	if dc.Rotation != nil {
		return *dc.Rotation
	}
	return 0
}

// GetTranslation returns the translation value or (0,0) if not set
func (dc *DatasetConfig) GetTranslation() TranslationOffset {
	if dc.Translation != nil {
		return *dc.Translation
	}
	return TranslationOffset{}
}

// Matcher types accepted in MatcherConfig.Type.
const (
	MatcherCentroidDistance = "centroid-distance"
	MatcherOverlap          = "overlap"
	MatcherArea             = "area"
	MatcherShape            = "shape"
	MatcherAttribute        = "attribute"
)

// MatcherConfig configures one weighted scoring strategy.
type MatcherConfig struct {
	Type        string  `yaml:"type" json:"type"`
	Weight      float64 `yaml:"weight" json:"weight"`
	MaxDistance float64 `yaml:"maxDistance,omitempty" json:"maxDistance,omitempty"`
	Attribute   string  `yaml:"attribute,omitempty" json:"attribute,omitempty"`
	Align       bool    `yaml:"align,omitempty" json:"align,omitempty"` // wrap in a CentroidAligner
}

// MatchingConfig configures the finder pipeline.
type MatchingConfig struct {
	Buffer       float64         `yaml:"buffer" json:"buffer"`
	Workers      int             `yaml:"workers,omitempty" json:"workers,omitempty"`
	Disambiguate *bool           `yaml:"disambiguate,omitempty" json:"disambiguate,omitempty"` // default true
	MinScore     float64         `yaml:"minScore,omitempty" json:"minScore,omitempty"`
	Matchers     []MatcherConfig `yaml:"matchers" json:"matchers"`
}

// ShouldDisambiguate returns the disambiguate setting, defaulting to true.
func (mc *MatchingConfig) ShouldDisambiguate() bool {
	return mc.Disambiguate == nil || *mc.Disambiguate
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// Config represents the full configuration file
type Config struct {
	Reference DatasetConfig  `yaml:"reference" json:"reference"`
	Subject   DatasetConfig  `yaml:"subject" json:"subject"`
	Matching  MatchingConfig `yaml:"matching" json:"matching"`
	MQTT      MQTTConfig     `yaml:"mqtt" json:"mqtt"`
	CacheFile string         `yaml:"cacheFile,omitempty" json:"cacheFile,omitempty"`
}

// DefaultMatchingConfig returns a centroid-distance plus aligned-overlap
// pipeline with disambiguation enabled.
func DefaultMatchingConfig() MatchingConfig {
	return MatchingConfig{
		Buffer:  50,
		Workers: DefaultWorkers,
		Matchers: []MatcherConfig{
			{Type: MatcherCentroidDistance, Weight: 1, MaxDistance: 50},
			{Type: MatcherOverlap, Weight: 1, Align: true},
		},
	}
}
