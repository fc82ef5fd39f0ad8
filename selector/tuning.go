package selector

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/gpudag/netrt/netlog"
)

// TuningKey identifies one tuned decision, widened per spec.md §9's
// supplemented detail (original_source/kernel_selector/core/auto_tuner.h):
// the key is a (device, driver, host, params) quadruple, not the params
// hash alone — the same shape tuned on different hardware must not share
// an entry.
type TuningKey struct {
	DeviceID      string `json:"device_id"`
	DriverVersion string `json:"driver_version"`
	HostVersion   string `json:"host_version"`
	ParamsHash    string `json:"params_hash"`
}

// TuningEntry is the recorded override: which candidate to force, and
// which of its internal tune indices (e.g. a specific tile size variant).
type TuningEntry struct {
	ImplName  string `json:"impl_name"`
	TuneIndex int    `json:"tune_index"`
}

// TuningStore is a JSON-backed map from TuningKey to TuningEntry, guarded
// by a mutex so concurrent builds sharing one on-disk file never race —
// spec.md §4.3's "protected by a mutex for concurrent runs".
type TuningStore struct {
	mu      sync.Mutex
	path    string
	entries map[TuningKey]TuningEntry
	dirty   bool
	log     *logrus.Logger
}

// NewTuningStore returns an empty store bound to path; nothing is read
// until Load is called.
func NewTuningStore(path string) *TuningStore {
	return &TuningStore{path: path, entries: make(map[TuningKey]TuningEntry), log: netlog.Discard()}
}

// tuningFile is the on-disk JSON shape: a flat list, since Go maps cannot
// have struct keys marshal directly.
type tuningFile struct {
	Entries []tuningRecord `json:"entries"`
}

type tuningRecord struct {
	Key   TuningKey   `json:"key"`
	Entry TuningEntry `json:"entry"`
}

// LoadTuningStore reads path's JSON tuning file. A missing or corrupt
// file yields an empty store, never an error.
func LoadTuningStore(path string) *TuningStore {
	s := NewTuningStore(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var tf tuningFile
	if err := json.Unmarshal(data, &tf); err != nil {
		s.log.Warn("selector: tuning file corrupt, starting cold")
		return s
	}
	for _, rec := range tf.Entries {
		s.entries[rec.Key] = rec.Entry
	}
	return s
}

// Lookup returns the recorded override for key, if any.
func (s *TuningStore) Lookup(key TuningKey) (TuningEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok
}

// Record stores (or replaces) key's tuned decision and marks the store
// dirty so a subsequent Save rewrites the file.
func (s *TuningStore) Record(key TuningKey, entry TuningEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	s.dirty = true
}

// Save rewrites the on-disk file if the store is dirty; a clean store's
// Save is a no-op, matching cache.Store.Close's per-store dirty bit.
func (s *TuningStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	tf := tuningFile{Entries: make([]tuningRecord, 0, len(s.entries))}
	for k, v := range s.entries {
		tf.Entries = append(tf.Entries, tuningRecord{Key: k, Entry: v})
	}
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Len reports the number of recorded overrides.
func (s *TuningStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
