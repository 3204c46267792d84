package lock

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/maestro/internal/config"
)

func testLockConfig() config.LockConfig {
	return config.LockConfig{
		StaleAfter:   10 * time.Minute,
		PollInterval: 5 * time.Millisecond,
		BlockTimeout: 250 * time.Millisecond,
	}
}

func TestAcquireRelease(t *testing.T) {
	m, err := NewManager(t.TempDir(), testLockConfig())
	require.NoError(t, err)

	l := m.Acquire(context.Background(), "pete", false)
	require.NotNil(t, l)
	assert.Equal(t, "pete", l.Resource)
	assert.True(t, m.IsLocked("pete"))

	m.Release(l)
	assert.False(t, m.IsLocked("pete"))
}

func TestAcquireNonBlockingContention(t *testing.T) {
	dir := t.TempDir()
	m1, err := NewManager(dir, testLockConfig())
	require.NoError(t, err)
	m2, err := NewManager(dir, testLockConfig())
	require.NoError(t, err)

	l := m1.Acquire(context.Background(), "pete", false)
	require.NotNil(t, l)

	// A second manager over the same directory must not acquire.
	assert.Nil(t, m2.Acquire(context.Background(), "pete", false))
	assert.True(t, m2.IsLocked("pete"))

	// Unrelated resources stay acquirable.
	other := m2.Acquire(context.Background(), "john", false)
	require.NotNil(t, other)
	m2.Release(other)

	m1.Release(l)
	l2 := m2.Acquire(context.Background(), "pete", false)
	require.NotNil(t, l2)
	m2.Release(l2)
}

func TestAcquireBlockingWaitsForRelease(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, testLockConfig())
	require.NoError(t, err)

	l := m.Acquire(context.Background(), "pete", false)
	require.NotNil(t, l)

	go func() {
		time.Sleep(30 * time.Millisecond)
		m.Release(l)
	}()

	l2 := m.Acquire(context.Background(), "pete", true)
	require.NotNil(t, l2)
	m.Release(l2)
}

func TestAcquireBlockingGivesUp(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, testLockConfig())
	require.NoError(t, err)

	l := m.Acquire(context.Background(), "pete", false)
	require.NotNil(t, l)
	defer m.Release(l)

	start := time.Now()
	assert.Nil(t, m.Acquire(context.Background(), "pete", true))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestStaleReclamation(t *testing.T) {
	dir := t.TempDir()
	clock := clockwork.NewFakeClock()

	m, err := NewManager(dir, testLockConfig(), WithClock(clock))
	require.NoError(t, err)

	l := m.Acquire(context.Background(), "pete", false)
	require.NotNil(t, l)

	// Under the threshold the holder is respected.
	clock.Advance(9 * time.Minute)
	assert.Nil(t, m.Acquire(context.Background(), "pete", false))
	assert.True(t, m.IsLocked("pete"))

	// Past the threshold the marker is reclaimable even though the
	// original holder never released it.
	clock.Advance(2 * time.Minute)
	assert.False(t, m.IsLocked("pete"))

	l2 := m.Acquire(context.Background(), "pete", false)
	require.NotNil(t, l2)
	m.Release(l2)
}

func TestSweepCountsReclaimedMarkers(t *testing.T) {
	dir := t.TempDir()
	clock := clockwork.NewFakeClock()

	m, err := NewManager(dir, testLockConfig(), WithClock(clock))
	require.NoError(t, err)

	require.NotNil(t, m.Acquire(context.Background(), "john", false))
	require.NotNil(t, m.Acquire(context.Background(), "george", false))

	assert.Equal(t, 0, m.Sweep())

	clock.Advance(11 * time.Minute)
	assert.Equal(t, 2, m.Sweep())
	assert.Empty(t, m.List())
}

func TestListReportsHolders(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, testLockConfig())
	require.NoError(t, err)

	l := m.Acquire(context.Background(), "ringo", false)
	require.NotNil(t, l)
	defer m.Release(l)

	markers := m.List()
	require.Contains(t, markers, "ringo")
	assert.Equal(t, l.Marker.PID, markers["ringo"].PID)
	assert.False(t, markers["ringo"].AcquiredAt.IsZero())
}

// Phase goroutines acquire through a single shared Manager, so exclusion
// must hold in-process too, not just across processes.
func TestConcurrentAcquireSingleHolder(t *testing.T) {
	m, err := NewManager(t.TempDir(), testLockConfig())
	require.NoError(t, err)

	const workers = 16
	var held atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l := m.Acquire(context.Background(), "pete", false); l != nil {
				held.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), held.Load())
	assert.True(t, m.IsLocked("pete"))
}

// A marker missing its payload must not be reclaimed while fresh: it may be
// corruption from a crash, and deleting it young would let two holders in.
func TestSweepSparesFreshUnreadableMarker(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, testLockConfig())
	require.NoError(t, err)

	petePath := filepath.Join(dir, "pete"+markerSuffix)
	require.NoError(t, os.WriteFile(petePath, nil, 0o644))

	// An unrelated acquisition sweeps first; the fresh marker survives it.
	l := m.Acquire(context.Background(), "john", false)
	require.NotNil(t, l)
	defer m.Release(l)

	_, statErr := os.Stat(petePath)
	require.NoError(t, statErr, "fresh marker must survive a sibling's sweep")
	assert.Nil(t, m.Acquire(context.Background(), "pete", false))
}

func TestSweepReclaimsOldUnreadableMarker(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, testLockConfig())
	require.NoError(t, err)

	path := filepath.Join(dir, "pete"+markerSuffix)
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	old := time.Now().Add(-11 * time.Minute)
	require.NoError(t, os.Chtimes(path, old, old))

	assert.Equal(t, 1, m.Sweep())
	assert.Empty(t, m.List())
}

// The claim never leaves a payload-less marker behind, even transiently
// observable ones: whatever exists under the lock dir is valid JSON.
func TestMarkersAreAlwaysComplete(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, testLockConfig())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			resource := string(rune('a' + n))
			if l := m.Acquire(context.Background(), resource, false); l != nil {
				m.Release(l)
			}
		}(i)
	}
	wg.Wait()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		if e.Name() == guardFileName {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		assert.NotEmpty(t, data, "marker %s has no payload", e.Name())
	}
}

func TestSanitizeResourceNames(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, testLockConfig())
	require.NoError(t, err)

	l := m.Acquire(context.Background(), "band/agent one", false)
	require.NotNil(t, l)
	assert.True(t, m.IsLocked("band/agent one"))
	m.Release(l)
}
