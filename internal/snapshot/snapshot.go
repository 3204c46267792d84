// Package snapshot maintains a low-cost, persistent view of a directory
// tree's state across invocations. The durable fingerprint table is the
// cache; it is rewritten with temp-file-then-rename so racing readers see
// either the old table or the new one, never a torn write.
package snapshot

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/maestro/internal/config"
	"github.com/felixgeelhaar/maestro/internal/errors"
	"github.com/felixgeelhaar/maestro/internal/log"
)

// tableVersion is the fingerprint table schema version. Tables with any
// other version are discarded and rebuilt from a full rescan.
const tableVersion = 1

// tableFileName is the durable fingerprint table under the cache root.
const tableFileName = "fingerprints.json"

// fingerprintUnmeasured marks files above the mtime ceiling.
const fingerprintUnmeasured = "unmeasured"

// SizeClass buckets a project by file count.
type SizeClass string

// Size classes, ordered.
const (
	SizeSmall  SizeClass = "small"
	SizeMedium SizeClass = "medium"
	SizeLarge  SizeClass = "large"
)

// ClassForFileCount maps a file count onto a size class using the
// configured breakpoints. It is a pure function, recomputed on every
// snapshot rather than cached.
func ClassForFileCount(count int, sizing config.SizingConfig) SizeClass {
	switch {
	case count < sizing.SmallMaxFiles:
		return SizeSmall
	case count < sizing.MediumMaxFiles:
		return SizeMedium
	default:
		return SizeLarge
	}
}

// Snapshot is a point-in-time summary of the watched directory.
type Snapshot struct {
	FileCount    int       `json:"file_count"`
	TotalLines   int       `json:"total_lines"`
	SizeClass    SizeClass `json:"size_class"`
	ChangedFiles []string  `json:"changed_files"`
	ChangeCount  int       `json:"change_count"`
	CapturedAt   time.Time `json:"captured_at"`
}

// entry is the per-path record in the fingerprint table.
type entry struct {
	Fingerprint string    `json:"fingerprint"`
	Size        int64     `json:"size"`
	Lines       int       `json:"lines,omitempty"`
	SeenAt      time.Time `json:"seen_at"`
}

// table is the durable fingerprint table.
type table struct {
	Version int              `json:"version"`
	Entries map[string]entry `json:"entries"`
}

// textExtensions are the suffixes whose line counts contribute to
// TotalLines.
var textExtensions = map[string]struct{}{
	".go": {}, ".py": {}, ".js": {}, ".ts": {}, ".tsx": {}, ".jsx": {},
	".md": {}, ".txt": {}, ".json": {}, ".yaml": {}, ".yml": {},
}

// ignoredDirs are directory names never descended into.
var ignoredDirs = map[string]struct{}{
	"node_modules": {},
	"vendor":       {},
	"__pycache__":  {},
}

// Store captures snapshots of one watched directory and persists the
// fingerprint table under its cache root.
type Store struct {
	fs       afero.Fs
	root     string
	cacheDir string
	cache    config.CacheConfig
	sizing   config.SizingConfig
	clock    clockwork.Clock
	logger   *log.Logger
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithFs injects a filesystem, used by tests with an in-memory fs.
func WithFs(fsys afero.Fs) StoreOption {
	return func(s *Store) { s.fs = fsys }
}

// WithClock injects a clock.
func WithClock(clock clockwork.Clock) StoreOption {
	return func(s *Store) { s.clock = clock }
}

// WithLogger injects a logger.
func WithLogger(logger *log.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a snapshot store for root, persisting state under
// cacheDir.
func NewStore(root, cacheDir string, cache config.CacheConfig, sizing config.SizingConfig, opts ...StoreOption) *Store {
	s := &Store{
		fs:       afero.NewOsFs(),
		root:     root,
		cacheDir: cacheDir,
		cache:    cache,
		sizing:   sizing,
		clock:    clockwork.NewRealClock(),
		logger:   log.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot walks the watched directory and returns its current state.
// The first call fingerprints everything; later calls recompute only
// files that are new or modified since their recorded observation, and
// opportunistically prune entries whose files vanished.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	if ok, err := afero.DirExists(s.fs, s.root); err != nil || !ok {
		return nil, errors.New(errors.ErrCodeCacheRootMissing,
			fmt.Sprintf("watched directory does not exist: %s", s.root))
	}

	tbl := s.loadTable()
	now := s.clock.Now().UTC()

	seen := make(map[string]struct{})
	var changed []string
	fileCount := 0
	totalLines := 0

	walkErr := afero.Walk(s.fs, s.root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			// Unreadable subtrees degrade to "not observed" rather than
			// failing the whole snapshot.
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if info.IsDir() {
			if s.skipDir(path, info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		fileCount++
		seen[rel] = struct{}{}

		prev, known := tbl.Entries[rel]
		if known && info.Size() == prev.Size && !info.ModTime().After(prev.SeenAt) {
			// Unchanged by cheap checks: reuse the cached fingerprint.
			totalLines += prev.Lines
			return nil
		}

		fp, lines := s.fingerprint(path, info)
		totalLines += lines

		if !known || prev.Fingerprint != fp {
			changed = append(changed, rel)
		}
		tbl.Entries[rel] = entry{
			Fingerprint: fp,
			Size:        info.Size(),
			Lines:       lines,
			SeenAt:      now,
		}
		return nil
	})
	if walkErr != nil {
		return nil, errors.Wrap(errors.ErrCodeCacheWalkFailed,
			fmt.Sprintf("walk failed for %s", s.root), walkErr)
	}

	// Prune entries for files that no longer exist.
	for rel := range tbl.Entries {
		if _, ok := seen[rel]; !ok {
			delete(tbl.Entries, rel)
		}
	}

	if err := s.saveTable(tbl); err != nil {
		// Persistence failure costs incrementality, not correctness.
		s.logger.WithError(err).Warn("fingerprint table write failed")
	}

	sort.Strings(changed)
	return &Snapshot{
		FileCount:    fileCount,
		TotalLines:   totalLines,
		SizeClass:    ClassForFileCount(fileCount, s.sizing),
		ChangedFiles: changed,
		ChangeCount:  len(changed),
		CapturedAt:   now,
	}, nil
}

// skipDir reports whether a directory subtree is excluded from the walk.
func (s *Store) skipDir(path, name string) bool {
	if path == s.root {
		return false
	}
	if path == s.cacheDir {
		return true
	}
	if strings.HasPrefix(name, ".") {
		return true
	}
	_, ignored := ignoredDirs[name]
	return ignored
}

// fingerprint computes the fingerprint and line count for a file.
// Small files get a content hash, mid-size files a size/mtime stamp,
// and files above the ceiling are recorded but unmeasured.
func (s *Store) fingerprint(path string, info fs.FileInfo) (string, int) {
	size := info.Size()
	if size > s.cache.MtimeMaxBytes {
		return fingerprintUnmeasured, 0
	}
	if size > s.cache.HashMaxBytes {
		return fmt.Sprintf("%d:%d", size, info.ModTime().UnixNano()), 0
	}

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		// Unreadable files count as changed on every pass.
		return fmt.Sprintf("unreadable:%d", s.clock.Now().UnixNano()), 0
	}

	sum := blake3.Sum256(data)
	lines := 0
	if _, ok := textExtensions[strings.ToLower(filepath.Ext(path))]; ok {
		lines = countLines(data)
	}
	return hex.EncodeToString(sum[:]), lines
}

func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}

// loadTable reads the fingerprint table. Any failure, including a schema
// mismatch, degrades to a cold cache.
func (s *Store) loadTable() *table {
	empty := &table{Version: tableVersion, Entries: make(map[string]entry)}

	path := filepath.Join(s.cacheDir, tableFileName)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return empty
	}

	var tbl table
	if err := json.Unmarshal(data, &tbl); err != nil {
		s.logger.WithError(errors.NewCacheCorruptError(path, err)).Warn("rebuilding fingerprint table")
		return empty
	}
	if tbl.Version != tableVersion || tbl.Entries == nil {
		return empty
	}
	return &tbl
}

// saveTable persists the table with temp-file-then-atomic-rename.
func (s *Store) saveTable(tbl *table) error {
	if err := s.fs.MkdirAll(s.cacheDir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeDirectoryFailed, "failed to create cache dir", err)
	}

	data, err := json.MarshalIndent(tbl, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileMarshal, "failed to marshal fingerprint table", err)
	}

	path := filepath.Join(s.cacheDir, tableFileName)
	tmp := path + fmt.Sprintf(".tmp.%d", os.Getpid())
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeCacheWriteFailed, "failed to write fingerprint table", err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return errors.Wrap(errors.ErrCodeCacheWriteFailed, "failed to replace fingerprint table", err)
	}
	return nil
}
