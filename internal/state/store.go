// Package state implements FTL2's persistent snapshot of dynamic hosts and
// user key/value pairs, with crash-safe atomic writes.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/eniac111/ftl2/internal/types"
)

// snapshotVersion is the on-disk format version this implementation writes
// and the highest version it will load; a higher version on disk is
// refused rather than guessed at.
const snapshotVersion = 1

// snapshot is the on-disk JSON shape: {version, hosts, vars}.
type snapshot struct {
	Version int                          `json:"version"`
	Hosts   map[string]map[string]string `json:"hosts"`
	Vars    map[string]string            `json:"vars"`
}

// Store holds the in-memory snapshot and serializes writers: at most one
// writer at a time, readers observe the last-committed state.
type Store struct {
	mu    sync.Mutex
	path  string
	snap  snapshot
	dirty bool
}

// Load reads path into a Store; a missing file yields an empty snapshot.
// A malformed file that exists is a fatal InventoryInvalid-class error,
// consistent with the fail-closed posture elsewhere.
func Load(path string) (*Store, error) {
	s := &Store{
		path: path,
		snap: snapshot{Version: snapshotVersion, Hosts: map[string]map[string]string{}, Vars: map[string]string{}},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, types.NewError(types.KindInventoryInvalid, "cannot read state file", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, types.NewError(types.KindInventoryInvalid, "malformed state file", err)
	}
	if snap.Version > snapshotVersion {
		return nil, types.NewError(types.KindInventoryInvalid, "state file version is newer than this build supports", nil)
	}
	if snap.Hosts == nil {
		snap.Hosts = map[string]map[string]string{}
	}
	if snap.Vars == nil {
		snap.Vars = map[string]string{}
	}
	snap.Version = snapshotVersion
	s.snap = snap
	return s, nil
}

// PutHost stages a host attribute update; call Flush to persist.
func (s *Store) PutHost(name string, attrs map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Hosts[name] = attrs
	s.dirty = true
}

// PutVar stages a user KV update; call Flush to persist.
func (s *Store) PutVar(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Vars[key] = value
	s.dirty = true
}

// GetVar reads a previously stored user KV.
func (s *Store) GetVar(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.snap.Vars[key]
	return v, ok
}

// Has reports whether key exists in vars.
func (s *Store) Has(key string) bool {
	_, ok := s.GetVar(key)
	return ok
}

// Hosts returns a snapshot copy of the persisted hosts.
func (s *Store) Hosts() map[string]map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[string]string, len(s.snap.Hosts))
	for k, v := range s.snap.Hosts {
		cp := make(map[string]string, len(v))
		for ak, av := range v {
			cp[ak] = av
		}
		out[k] = cp
	}
	return out
}

// Flush atomically persists pending writes: write-to-temp, fsync, rename.
// A no-op when nothing is dirty.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if !s.dirty {
		return nil
	}
	if s.path == "" {
		s.dirty = false
		return nil
	}

	data, err := json.MarshalIndent(s.snap, "", "  ")
	if err != nil {
		return types.NewError(types.KindInventoryInvalid, "cannot marshal state snapshot", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.NewError(types.KindInventoryInvalid, "cannot create state directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return types.NewError(types.KindInventoryInvalid, "cannot create temp state file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return types.NewError(types.KindInventoryInvalid, "cannot write temp state file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return types.NewError(types.KindInventoryInvalid, "cannot fsync temp state file", err)
	}
	if err := tmp.Close(); err != nil {
		return types.NewError(types.KindInventoryInvalid, "cannot close temp state file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return types.NewError(types.KindInventoryInvalid, "cannot rename state file into place", err)
	}

	s.dirty = false
	return nil
}
