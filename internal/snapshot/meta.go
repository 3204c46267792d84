package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/felixgeelhaar/maestro/internal/errors"
)

// metaFileName is the run metadata file under the cache root.
const metaFileName = "meta.json"

// metaVersion is the run metadata schema version.
const metaVersion = 1

// DecisionSummary records the last conductor decision for diagnostics and
// for the conductor's own "last run" context.
type DecisionSummary struct {
	Run      bool     `json:"run"`
	Tasks    []string `json:"tasks,omitempty"`
	Timeout  string   `json:"timeout,omitempty"`
	Priority string   `json:"priority,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// Meta is the persisted run metadata for a watched directory.
type Meta struct {
	Version      int              `json:"version"`
	LastRunAt    time.Time        `json:"last_run_at,omitzero"`
	LastSnapshot *Snapshot        `json:"last_snapshot,omitempty"`
	LastDecision *DecisionSummary `json:"last_decision,omitempty"`
}

// LoadMeta reads the run metadata, returning an empty record when the file
// is absent or unreadable.
func (s *Store) LoadMeta() *Meta {
	empty := &Meta{Version: metaVersion}

	data, err := afero.ReadFile(s.fs, filepath.Join(s.cacheDir, metaFileName))
	if err != nil {
		return empty
	}

	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil || meta.Version != metaVersion {
		return empty
	}
	return &meta
}

// SaveMeta persists the run metadata with temp-file-then-atomic-rename.
func (s *Store) SaveMeta(meta *Meta) error {
	if err := s.fs.MkdirAll(s.cacheDir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeDirectoryFailed, "failed to create cache dir", err)
	}

	meta.Version = metaVersion
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileMarshal, "failed to marshal run metadata", err)
	}

	path := filepath.Join(s.cacheDir, metaFileName)
	tmp := path + fmt.Sprintf(".tmp.%d", os.Getpid())
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeCacheWriteFailed, "failed to write run metadata", err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return errors.Wrap(errors.ErrCodeCacheWriteFailed, "failed to replace run metadata", err)
	}
	return nil
}
