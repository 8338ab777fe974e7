package conflate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func floatPtr(v float64) *float64 { return &v }

func validConfigYAML() string {
	return `reference:
  path: data/cadastre.geojson
  idProperty: parcel_id
subject:
  topic: survey/buildings
  rotation: 1.5
  translation:
    x: 2
    y: -3
matching:
  buffer: 25
  workers: 2
  disambiguate: false
  minScore: 0.3
  matchers:
    - type: centroid-distance
      weight: 2
      maxDistance: 40
    - type: attribute
      weight: 1
      attribute: name
mqtt:
  broker: tcp://localhost:1883
  publishPrefix: conflate-test
  clientId: tudoconflate-test
cacheFile: /tmp/run.json
`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

// ---------------------------------------------------------------------------
// LoadConfig / ParseConfig
// ---------------------------------------------------------------------------

func TestLoadConfig_NotExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfigYAML()))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Reference.Path != "data/cadastre.geojson" || cfg.Reference.IDProperty != "parcel_id" {
		t.Errorf("Reference = %+v", cfg.Reference)
	}
	if cfg.Subject.Topic != "survey/buildings" {
		t.Errorf("Subject.Topic = %q", cfg.Subject.Topic)
	}
	if !cfg.Subject.HasManualCalibration() || cfg.Subject.GetRotation() != 1.5 {
		t.Errorf("Subject calibration = %+v", cfg.Subject)
	}
	if got := cfg.Subject.GetTranslation(); got.X != 2 || got.Y != -3 {
		t.Errorf("Subject translation = %+v", got)
	}

	m := cfg.Matching
	if m.Buffer != 25 || m.Workers != 2 || m.MinScore != 0.3 {
		t.Errorf("Matching = %+v", m)
	}
	if m.ShouldDisambiguate() {
		t.Error("disambiguate: false should be honoured")
	}
	if len(m.Matchers) != 2 {
		t.Fatalf("len(Matchers) = %d, want 2", len(m.Matchers))
	}
	if m.Matchers[0].Type != MatcherCentroidDistance || m.Matchers[0].MaxDistance != 40 {
		t.Errorf("Matchers[0] = %+v", m.Matchers[0])
	}
	if m.Matchers[1].Attribute != "name" {
		t.Errorf("Matchers[1] = %+v", m.Matchers[1])
	}
	if cfg.CacheFile != "/tmp/run.json" {
		t.Errorf("CacheFile = %q", cfg.CacheFile)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("reference:\n  path: a.geojson\nsubject:\n  path: b.geojson\n"))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	defaults := DefaultMatchingConfig()
	if len(cfg.Matching.Matchers) != len(defaults.Matchers) {
		t.Fatalf("default matchers not applied: %+v", cfg.Matching.Matchers)
	}
	for i := range defaults.Matchers {
		if cfg.Matching.Matchers[i] != defaults.Matchers[i] {
			t.Errorf("Matchers[%d] = %+v, want %+v", i, cfg.Matching.Matchers[i], defaults.Matchers[i])
		}
	}
	if cfg.Matching.Workers != DefaultWorkers {
		t.Errorf("Workers = %d, want %d", cfg.Matching.Workers, DefaultWorkers)
	}
	if !cfg.Matching.ShouldDisambiguate() {
		t.Error("disambiguation should default to on")
	}
	if cfg.Reference.HasManualCalibration() {
		t.Error("no calibration configured")
	}
}

func TestParseConfig_BufferDefault(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want float64
	}{
		{"no matching section", "reference:\n  path: a.geojson\n", DefaultMatchingConfig().Buffer},
		{"matchers without buffer", "matching:\n  matchers:\n    - {type: centroid-distance, weight: 1, maxDistance: 100}\n", DefaultMatchingConfig().Buffer},
		{"explicit zero", "matching:\n  buffer: 0\n", 0},
		{"filtering disabled", "matching:\n  buffer: -1\n", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("ParseConfig: %v", err)
			}
			if cfg.Matching.Buffer != tt.want {
				t.Errorf("Buffer = %v, want %v", cfg.Matching.Buffer, tt.want)
			}
		})
	}
}

func TestParseConfig_OmittedBufferStillMatchesNearbyPoints(t *testing.T) {
	cfg, err := ParseConfig([]byte("matching:\n  matchers:\n    - {type: centroid-distance, weight: 1, maxDistance: 100}\n"))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	schema := nameSchema(t)
	reference := mustCollection(t, schema, mustFeature(t, "r1", schema, orb.Point{0, 0}))
	subject := mustCollection(t, schema, mustFeature(t, "s1", schema, orb.Point{1, 0}))

	run, err := GenerateMatches(context.Background(), reference, subject, cfg.Matching, nil)
	if err != nil {
		t.Fatalf("GenerateMatches: %v", err)
	}
	if len(run.Pairs) != 1 || run.Pairs[0].CandidateID != "s1" {
		t.Fatalf("pairs = %+v, want r1 -> s1", run.Pairs)
	}
	if !almostEqual(run.Pairs[0].Score, 0.99) {
		t.Errorf("score = %v, want 0.99", run.Pairs[0].Score)
	}
}

func TestParseConfig_InvalidYAML(t *testing.T) {
	if _, err := ParseConfig([]byte("matching: [unclosed")); err == nil {
		t.Fatal("expected YAML error")
	}
}

func TestParseConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "negative workers",
			yaml:    "matching:\n  workers: -1\n",
			wantErr: "workers",
		},
		{
			name:    "min score above one",
			yaml:    "matching:\n  minScore: 1.5\n",
			wantErr: "minScore",
		},
		{
			name: "negative weight",
			yaml: `matching:
  matchers:
    - type: overlap
      weight: -1
`,
			wantErr: "weight",
		},
		{
			name: "centroid distance without maxDistance",
			yaml: `matching:
  matchers:
    - type: centroid-distance
      weight: 1
`,
			wantErr: "maxDistance",
		},
		{
			name: "shape without maxDistance",
			yaml: `matching:
  matchers:
    - type: shape
      weight: 1
`,
			wantErr: "maxDistance",
		},
		{
			name: "attribute without name",
			yaml: `matching:
  matchers:
    - type: attribute
      weight: 1
`,
			wantErr: "attribute is required",
		},
		{
			name: "aligned attribute",
			yaml: `matching:
  matchers:
    - type: attribute
      weight: 1
      attribute: name
      align: true
`,
			wantErr: "align",
		},
		{
			name: "unknown type",
			yaml: `matching:
  matchers:
    - type: hausdorff
      weight: 1
`,
			wantErr: "unknown type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	disambiguate := false
	cfg := &Config{
		Reference: DatasetConfig{URL: "http://example.test/ref.geojson", IDProperty: "id"},
		Subject:   DatasetConfig{Path: "sub.geojson", Rotation: floatPtr(90)},
		Matching: MatchingConfig{
			Buffer:       10,
			Workers:      3,
			Disambiguate: &disambiguate,
			Matchers: []MatcherConfig{
				{Type: MatcherArea, Weight: 0.5, Align: true},
				{Type: MatcherShape, Weight: 0.5, MaxDistance: 2},
			},
		},
		MQTT: MQTTConfig{Broker: "tcp://broker:1883"},
	}

	path := filepath.Join(t.TempDir(), "saved.yaml")
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if loaded.Reference != cfg.Reference {
		t.Errorf("Reference = %+v, want %+v", loaded.Reference, cfg.Reference)
	}
	if loaded.Subject.GetRotation() != 90 {
		t.Errorf("Subject rotation = %v, want 90", loaded.Subject.GetRotation())
	}
	if loaded.Matching.ShouldDisambiguate() {
		t.Error("disambiguate flag lost")
	}
	if len(loaded.Matching.Matchers) != 2 || loaded.Matching.Matchers[1] != cfg.Matching.Matchers[1] {
		t.Errorf("Matchers = %+v", loaded.Matching.Matchers)
	}
	if loaded.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("Broker = %q", loaded.MQTT.Broker)
	}
}

// ---------------------------------------------------------------------------
// MQTTSettings
// ---------------------------------------------------------------------------

func TestMQTTSettings_Defaults(t *testing.T) {
	for _, k := range []string{"MQTT_BROKER", "MQTT_CLIENT_ID", "MQTT_USERNAME", "MQTT_PASSWORD", "MQTT_PUBLISH_PREFIX"} {
		t.Setenv(k, "")
	}
	cfg := &Config{MQTT: MQTTConfig{Broker: "tcp://file:1883"}}
	s := cfg.MQTTSettings()

	if s.Broker != "tcp://file:1883" {
		t.Errorf("Broker = %q", s.Broker)
	}
	if s.ClientID != "tudoconflate" {
		t.Errorf("ClientID = %q, want tudoconflate", s.ClientID)
	}
	if s.PublishPrefix != "conflate" {
		t.Errorf("PublishPrefix = %q, want conflate", s.PublishPrefix)
	}
}

func TestMQTTSettings_EnvOverrides(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://env:1883")
	t.Setenv("MQTT_CLIENT_ID", "env-client")
	t.Setenv("MQTT_USERNAME", "user")
	t.Setenv("MQTT_PASSWORD", "secret")
	t.Setenv("MQTT_PUBLISH_PREFIX", "env/prefix")

	cfg := &Config{MQTT: MQTTConfig{Broker: "tcp://file:1883", ClientID: "file-client"}}
	s := cfg.MQTTSettings()

	want := MQTTConfig{
		Broker:        "tcp://env:1883",
		ClientID:      "env-client",
		Username:      "user",
		Password:      "secret",
		PublishPrefix: "env/prefix",
	}
	if s != want {
		t.Errorf("MQTTSettings() = %+v, want %+v", s, want)
	}
	if cfg.MQTT.Broker != "tcp://file:1883" {
		t.Error("MQTTSettings must not mutate the config")
	}
}

// ---------------------------------------------------------------------------
// Calibration
// ---------------------------------------------------------------------------

func TestCalibrationTransform(t *testing.T) {
	none := DatasetConfig{}
	if !none.CalibrationTransform(orb.Point{5, 5}).IsIdentity() {
		t.Error("uncalibrated dataset should yield identity")
	}

	dc := DatasetConfig{Rotation: floatPtr(90), Translation: &TranslationOffset{X: 1, Y: 0}}
	m := dc.CalibrationTransform(orb.Point{1, 1})

	// The pivot stays fixed under rotation, then moves by the translation.
	got := TransformPoint(orb.Point{1, 1}, m)
	if !almostEqual(got[0], 2) || !almostEqual(got[1], 1) {
		t.Errorf("pivot -> %v, want [2 1]", got)
	}
	got = TransformPoint(orb.Point{2, 1}, m)
	if !almostEqual(got[0], 2) || !almostEqual(got[1], 2) {
		t.Errorf("(2,1) -> %v, want [2 2]", got)
	}
}
