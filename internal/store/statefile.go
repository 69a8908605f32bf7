// Package store provides moltbot's persistence: one JSON state file per
// concern under the data directory, plus a SQLite observation archive.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"moltbot/internal/logging"
)

// StateFile persists a single JSON-serializable record. Absence of the file
// is not an error: Load leaves the destination untouched and reports found=false
// so owners initialize with their documented defaults.
type StateFile struct {
	path string
}

// NewStateFile creates a state file handle under dir.
func NewStateFile(dir, name string) *StateFile {
	return &StateFile{path: filepath.Join(dir, name)}
}

// Path returns the backing file path.
func (f *StateFile) Path() string {
	return f.path
}

// Load reads the file into v. Returns found=false (and no error) if the file
// does not exist yet.
func (f *StateFile) Load(v interface{}) (bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	return true, nil
}

// Save writes v to the file, creating the directory on first write.
func (f *StateFile) Save(v interface{}) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.StoreError("Failed to create state directory %s: %v", dir, err)
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logging.StoreError("Failed to marshal state for %s: %v", f.path, err)
		return err
	}

	if err := os.WriteFile(f.path, data, 0644); err != nil {
		logging.StoreError("Failed to write state file %s: %v", f.path, err)
		return err
	}
	logging.StoreDebug("State saved: %s (%d bytes)", f.path, len(data))
	return nil
}

// Canonical state file names, one per concern.
const (
	HeartbeatStateFile = "heartbeat_state.json"
	RateLimitStateFile = "rate_limits.json"
	KarmaHistoryFile   = "karma_history.json"
	IntelCacheFile     = "intelligence_cache.json"
)
