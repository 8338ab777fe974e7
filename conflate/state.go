package conflate

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Dataset roles.
const (
	RoleReference = "reference"
	RoleSubject   = "subject"
)

// SessionStore holds the latest reference and subject datasets and the latest
// run for HTTP endpoints and MQTT re-runs.
type SessionStore struct {
	mu        sync.RWMutex
	datasets  map[string]*FeatureCollection
	run       *Run
	cachePath string // empty disables persistence
}

// NewSessionStore creates an in-memory store.
func NewSessionStore() *SessionStore {
	return &SessionStore{datasets: make(map[string]*FeatureCollection)}
}

// NewSessionStoreWithCache creates a store that persists the latest run to
// cachePath. If the file exists the cached run is loaded on creation; cached
// pairs carry identities and scores but no geometries.
func NewSessionStoreWithCache(cachePath string) *SessionStore {
	st := NewSessionStore()
	st.cachePath = cachePath
	if cachePath != "" {
		if run, err := LoadRun(cachePath); err == nil {
			st.run = run
			log.Printf("[STORE] Loaded cached run %s (%d pairs)", run.ID, len(run.Pairs))
		}
	}
	return st
}

// SetDataset stores the latest collection for a role.
func (st *SessionStore) SetDataset(role string, fc *FeatureCollection) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.datasets[role] = fc
}

// Dataset returns the latest collection for a role.
func (st *SessionStore) Dataset(role string) (*FeatureCollection, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	fc, ok := st.datasets[role]
	return fc, ok
}

// Datasets returns the reference and subject collections once both are known.
func (st *SessionStore) Datasets() (reference, subject *FeatureCollection, ok bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	reference, okRef := st.datasets[RoleReference]
	subject, okSub := st.datasets[RoleSubject]
	return reference, subject, okRef && okSub
}

// LatestRun returns the most recent run, or nil if none exists.
func (st *SessionStore) LatestRun() *Run {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.run
}

// SetRun records run as the latest and persists it when a cache path is
// configured. Cancelled runs are kept in memory only.
func (st *SessionStore) SetRun(run *Run) error {
	st.mu.Lock()
	st.run = run
	cachePath := st.cachePath
	st.mu.Unlock()

	if cachePath == "" || run == nil || run.Cancelled {
		return nil
	}
	if err := SaveRun(run, cachePath); err != nil {
		return err
	}
	log.Printf("[STORE] Saved run %s to %s", run.ID, cachePath)
	return nil
}

// SaveRun writes a run to a JSON file on disk.
func SaveRun(run *Run, path string) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write run cache: %w", err)
	}
	return nil
}

// LoadRun reads a run from a JSON file on disk.
func LoadRun(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run cache: %w", err)
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run cache: %w", err)
	}
	return &run, nil
}
