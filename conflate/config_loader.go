package conflate

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"
)

// LoadConfig loads the configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	return config, nil
}

// ParseConfig parses and validates YAML configuration. Matching settings the
// file leaves out fall back to DefaultMatchingConfig; an explicit buffer of 0
// is kept.
func ParseConfig(data []byte) (*Config, error) {
	config := Config{Matching: MatchingConfig{Buffer: DefaultMatchingConfig().Buffer}}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if len(config.Matching.Matchers) == 0 {
		defaults := DefaultMatchingConfig()
		config.Matching.Matchers = defaults.Matchers
	}
	if config.Matching.Workers == 0 {
		config.Matching.Workers = DefaultWorkers
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the matching pipeline settings.
func (c *Config) Validate() error {
	m := c.Matching
	if m.Workers < 0 {
		return fmt.Errorf("matching.workers must not be negative")
	}
	if m.MinScore < 0 || m.MinScore > 1 {
		return fmt.Errorf("matching.minScore must be within [0, 1], got %v", m.MinScore)
	}

	for i, mc := range m.Matchers {
		if mc.Weight < 0 {
			return fmt.Errorf("matching.matchers[%d].weight must not be negative", i)
		}
		switch mc.Type {
		case MatcherCentroidDistance, MatcherShape:
			if mc.MaxDistance <= 0 {
				return fmt.Errorf("matching.matchers[%d].maxDistance is required for %s", i, mc.Type)
			}
		case MatcherOverlap, MatcherArea:
		case MatcherAttribute:
			if mc.Attribute == "" {
				return fmt.Errorf("matching.matchers[%d].attribute is required for %s", i, mc.Type)
			}
			if mc.Align {
				return fmt.Errorf("matching.matchers[%d]: align is not supported for %s", i, mc.Type)
			}
		default:
			return fmt.Errorf("matching.matchers[%d]: unknown type %q", i, mc.Type)
		}
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// MQTTSettings returns the MQTT settings with environment overrides applied:
// MQTT_BROKER, MQTT_CLIENT_ID, MQTT_USERNAME, MQTT_PASSWORD and
// MQTT_PUBLISH_PREFIX take precedence over the file.
func (c *Config) MQTTSettings() MQTTConfig {
	s := c.MQTT
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		s.Broker = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		s.ClientID = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		s.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		s.Password = v
	}
	if v := os.Getenv("MQTT_PUBLISH_PREFIX"); v != "" {
		s.PublishPrefix = v
	}
	if s.ClientID == "" {
		s.ClientID = "tudoconflate"
	}
	if s.PublishPrefix == "" {
		s.PublishPrefix = "conflate"
	}
	return s
}

// CalibrationTransform builds the affine transform for a dataset's manual
// calibration: rotation around pivot, then translation.
func (dc *DatasetConfig) CalibrationTransform(pivot orb.Point) AffineMatrix {
	if !dc.HasManualCalibration() {
		return Identity()
	}
	t := dc.GetTranslation()
	return RotationAround(dc.GetRotation(), pivot, t.X, t.Y)
}
