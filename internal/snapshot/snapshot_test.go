package snapshot

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/maestro/internal/config"
)

const testRoot = "/project"

func testStore(t *testing.T, fsys afero.Fs) *Store {
	t.Helper()
	cfg := config.Default()
	return NewStore(testRoot, filepath.Join(testRoot, ".maestro"), cfg.Cache, cfg.Sizing, WithFs(fsys))
}

func writeFiles(t *testing.T, fsys afero.Fs, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(testRoot, name)
		require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0o644))
	}
}

func TestSnapshotFirstCallSeesEverythingAsChanged(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, map[string]string{
		"main.go":       "package main\n",
		"lib/util.go":   "package lib\n\nfunc F() {}\n",
		"docs/notes.md": "# notes\n",
	})

	s := testStore(t, fsys)
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, snap.FileCount)
	assert.Equal(t, 3, snap.ChangeCount)
	assert.ElementsMatch(t, []string{"main.go", "lib/util.go", "docs/notes.md"}, snap.ChangedFiles)
	assert.Equal(t, SizeSmall, snap.SizeClass)
	assert.Equal(t, 5, snap.TotalLines)
	assert.False(t, snap.CapturedAt.IsZero())
}

func TestSnapshotIdempotentWithoutMutation(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, map[string]string{
		"a.go": "package a\n",
		"b.go": "package b\n",
	})

	s := testStore(t, fsys)
	_, err := s.Snapshot(context.Background())
	require.NoError(t, err)

	second, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second.ChangedFiles)
	assert.Equal(t, 0, second.ChangeCount)
	assert.Equal(t, 2, second.FileCount)
}

func TestSnapshotDetectsModifiedAndNewFiles(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, map[string]string{
		"a.go": "package a\n",
		"b.go": "package b\n",
	})

	s := testStore(t, fsys)
	_, err := s.Snapshot(context.Background())
	require.NoError(t, err)

	writeFiles(t, fsys, map[string]string{
		"a.go":   "package a\n\nfunc A() {}\n",
		"new.go": "package a\n",
	})

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.go", "new.go"}, snap.ChangedFiles)
	assert.Equal(t, 3, snap.FileCount)
}

func TestSnapshotPrunesVanishedFiles(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, map[string]string{
		"a.go": "package a\n",
		"b.go": "package b\n",
	})

	s := testStore(t, fsys)
	_, err := s.Snapshot(context.Background())
	require.NoError(t, err)

	require.NoError(t, fsys.Remove(filepath.Join(testRoot, "b.go")))

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.FileCount)
	assert.Empty(t, snap.ChangedFiles)

	// The pruned entry must not resurface as "unchanged" if recreated.
	writeFiles(t, fsys, map[string]string{"b.go": "package b\n"})
	snap, err = s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b.go"}, snap.ChangedFiles)
}

func TestSnapshotIgnoresHiddenAndVendoredTrees(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, map[string]string{
		"a.go":                     "package a\n",
		".git/HEAD":                "ref: refs/heads/main\n",
		".maestro/meta.json":       "{}",
		"node_modules/x/index.js":  "x\n",
		"vendor/lib/lib.go":        "package lib\n",
		"sub/__pycache__/m.pyc":    "bin",
		"sub/ok.py":                "print()\n",
	})

	s := testStore(t, fsys)
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.FileCount)
	assert.ElementsMatch(t, []string{"a.go", "sub/ok.py"}, snap.ChangedFiles)
}

func TestSnapshotCorruptTableRebuildsCold(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, map[string]string{"a.go": "package a\n"})

	s := testStore(t, fsys)
	_, err := s.Snapshot(context.Background())
	require.NoError(t, err)

	tablePath := filepath.Join(testRoot, ".maestro", tableFileName)
	require.NoError(t, afero.WriteFile(fsys, tablePath, []byte("{not json"), 0o644))

	// Cold cache: everything is changed again, and the table heals.
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, snap.ChangedFiles)

	snap, err = s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.ChangedFiles)
}

func TestSnapshotMissingRoot(t *testing.T) {
	s := testStore(t, afero.NewMemMapFs())
	_, err := s.Snapshot(context.Background())
	assert.Error(t, err)
}

func TestSizeClassMonotonicity(t *testing.T) {
	sizing := config.Default().Sizing

	prev := SizeSmall
	rank := map[SizeClass]int{SizeSmall: 0, SizeMedium: 1, SizeLarge: 2}
	for count := 0; count <= 600; count += 10 {
		class := ClassForFileCount(count, sizing)
		assert.GreaterOrEqual(t, rank[class], rank[prev], "count=%d", count)
		prev = class
	}

	assert.Equal(t, SizeSmall, ClassForFileCount(40, sizing))
	assert.Equal(t, SizeSmall, ClassForFileCount(99, sizing))
	assert.Equal(t, SizeMedium, ClassForFileCount(100, sizing))
	assert.Equal(t, SizeMedium, ClassForFileCount(499, sizing))
	assert.Equal(t, SizeLarge, ClassForFileCount(500, sizing))
}

func TestLargeFileFingerprints(t *testing.T) {
	fsys := afero.NewMemMapFs()
	cfg := config.Default()
	cfg.Cache.HashMaxBytes = 8
	cfg.Cache.MtimeMaxBytes = 32

	writeFiles(t, fsys, map[string]string{
		"small.txt": "tiny\n",
		"mid.bin":   "0123456789abcdef",
		"huge.bin":  fmt.Sprintf("%064d", 0),
	})

	s := NewStore(testRoot, filepath.Join(testRoot, ".maestro"), cfg.Cache, cfg.Sizing, WithFs(fsys))
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	// All three are new, whatever their fingerprint strategy.
	assert.Equal(t, 3, snap.ChangeCount)

	// Only hashed text files contribute lines.
	assert.Equal(t, 1, snap.TotalLines)

	snap, err = s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.ChangedFiles)
}

func TestMetaRoundTrip(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, map[string]string{"a.go": "package a\n"})

	s := testStore(t, fsys)
	assert.Equal(t, metaVersion, s.LoadMeta().Version)

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)

	meta := s.LoadMeta()
	meta.LastRunAt = snap.CapturedAt
	meta.LastSnapshot = snap
	meta.LastDecision = &DecisionSummary{Run: true, Tasks: []string{"ringo"}, Reason: "test"}
	require.NoError(t, s.SaveMeta(meta))

	loaded := s.LoadMeta()
	require.NotNil(t, loaded.LastSnapshot)
	assert.Equal(t, snap.FileCount, loaded.LastSnapshot.FileCount)
	require.NotNil(t, loaded.LastDecision)
	assert.True(t, loaded.LastDecision.Run)
	assert.Equal(t, snap.CapturedAt.Unix(), loaded.LastRunAt.Unix())
}
