// Package lock provides process-safe mutual exclusion over named resources
// via marker files, with reclamation of abandoned markers.
//
// A resource is held by whichever process managed to create its marker file
// with O_EXCL. Markers older than the staleness threshold are reclaimed by
// any process before its own acquisition attempt, regardless of whether the
// original holder is still alive: a slow holder losing its lock is preferred
// over a crashed holder blocking everyone forever.
package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"

	"github.com/felixgeelhaar/maestro/internal/config"
	"github.com/felixgeelhaar/maestro/internal/log"
)

// markerSuffix is appended to the sanitized resource name.
const markerSuffix = ".lock"

// guardFileName is the flock file serializing sweep-then-claim sections.
const guardFileName = ".guard"

// Marker is the JSON payload of a lock marker file.
type Marker struct {
	PID        int       `json:"pid"`
	Host       string    `json:"host"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Lock represents a held lock on a named resource.
type Lock struct {
	// Resource is the logical name the lock protects.
	Resource string

	// Marker is the payload written to the marker file.
	Marker Marker

	path string
}

// Manager coordinates locks for a single lock directory.
//
// The sweep-then-claim critical section is doubly guarded: mu serializes
// goroutines sharing this Manager, the flock serializes other processes.
// The flock alone is not enough in-process, because a second Lock() on an
// already-held flock instance returns immediately.
type Manager struct {
	dir          string
	staleAfter   time.Duration
	pollInterval time.Duration
	blockTimeout time.Duration
	clock        clockwork.Clock
	logger       *log.Logger
	mu           sync.Mutex
	guard        *flock.Flock
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock injects a clock, used by tests to control staleness.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithLogger injects a logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a lock manager rooted at dir, creating it if needed.
func NewManager(dir string, cfg config.LockConfig, opts ...Option) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	m := &Manager{
		dir:          dir,
		staleAfter:   cfg.StaleAfter,
		pollInterval: cfg.PollInterval,
		blockTimeout: cfg.BlockTimeout,
		clock:        clockwork.NewRealClock(),
		logger:       log.DefaultLogger(),
		guard:        flock.New(filepath.Join(dir, guardFileName)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Acquire attempts to take the lock for resource. In non-blocking mode it
// returns nil immediately when a live, non-stale holder exists. In blocking
// mode it polls until acquisition or until ctx or the block timeout expires.
// Failures to write the marker are logged and reported as a nil lock, never
// as an error: lock trouble must only ever mean less work happens.
func (m *Manager) Acquire(ctx context.Context, resource string, blocking bool) *Lock {
	if !blocking {
		return m.tryAcquire(resource)
	}

	ctx, cancel := context.WithTimeout(ctx, m.blockTimeout)
	defer cancel()

	var acquired *Lock
	poll := backoff.WithContext(backoff.NewConstantBackOff(m.pollInterval), ctx)
	err := backoff.Retry(func() error {
		if l := m.tryAcquire(resource); l != nil {
			acquired = l
			return nil
		}
		return errHeld
	}, poll)
	if err != nil {
		return nil
	}
	return acquired
}

// errHeld signals one failed polling attempt inside blocking Acquire.
var errHeld = &heldError{}

type heldError struct{}

func (*heldError) Error() string { return "resource is held" }

// tryAcquire performs one sweep-then-claim attempt under both guards.
func (m *Manager) tryAcquire(resource string) *Lock {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.guard.Lock(); err != nil {
		m.logger.Warn("lock guard unavailable", "resource", resource, "error", err)
		return nil
	}
	defer func() {
		if err := m.guard.Unlock(); err != nil {
			m.logger.Warn("lock guard release failed", "error", err)
		}
	}()

	m.sweepLocked()

	host, _ := os.Hostname()
	marker := Marker{
		PID:        os.Getpid(),
		Host:       host,
		AcquiredAt: m.clock.Now().UTC(),
	}

	path := m.markerPath(resource)
	if err := m.claimMarker(path, marker); err != nil {
		if os.IsExist(err) {
			return nil
		}
		m.logger.WithError(err).Warn("lock marker claim failed", "resource", resource)
		return nil
	}

	return &Lock{Resource: resource, Marker: marker, path: path}
}

// claimMarker publishes the marker atomically: the payload is written to a
// private temp file first and linked into place, so a marker file is either
// absent or complete. A half-written marker must never be visible, or a
// concurrent sweep would judge it unreadable.
func (m *Manager) claimMarker(path string, marker Marker) error {
	data, err := json.Marshal(marker)
	if err != nil {
		return err
	}

	tmp := path + fmt.Sprintf(".claim.%d", os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	defer os.Remove(tmp)

	// Link fails with EEXIST when the resource is already held.
	return os.Link(tmp, path)
}

// Release removes the marker for a held lock.
func (m *Manager) Release(l *Lock) {
	if l == nil {
		return
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		m.logger.WithError(err).Warn("lock release failed", "resource", l.Resource)
	}
}

// IsLocked reports whether resource currently has a non-stale holder.
func (m *Manager) IsLocked(resource string) bool {
	marker, err := m.readMarker(m.markerPath(resource))
	if err != nil {
		return false
	}
	return !m.isStale(marker)
}

// Sweep removes all stale markers and returns how many were reclaimed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.guard.Lock(); err != nil {
		m.logger.Warn("lock guard unavailable for sweep", "error", err)
		return 0
	}
	defer func() { _ = m.guard.Unlock() }()
	return m.sweepLocked()
}

// List returns the current markers keyed by resource name.
func (m *Manager) List() map[string]Marker {
	out := make(map[string]Marker)
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), markerSuffix) {
			continue
		}
		marker, err := m.readMarker(filepath.Join(m.dir, e.Name()))
		if err != nil {
			continue
		}
		out[strings.TrimSuffix(e.Name(), markerSuffix)] = marker
	}
	return out
}

// sweepLocked deletes stale markers. Callers must hold the guard flock,
// except on paths where losing a race only costs one acquisition attempt.
func (m *Manager) sweepLocked() int {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		m.logger.WithError(err).Warn("lock sweep failed")
		return 0
	}

	reclaimed := 0
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), markerSuffix) {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		marker, err := m.readMarker(path)
		if err != nil {
			// Unreadable markers are corruption, not contention, but a
			// fresh one still gets the full staleness grace by file age
			// before being treated as abandoned.
			if info, statErr := os.Stat(path); statErr == nil &&
				time.Since(info.ModTime()) <= m.staleAfter {
				continue
			}
			if rmErr := os.Remove(path); rmErr == nil {
				reclaimed++
			}
			continue
		}
		if m.isStale(marker) {
			if rmErr := os.Remove(path); rmErr == nil {
				m.logger.Info("reclaimed stale lock",
					"resource", strings.TrimSuffix(e.Name(), markerSuffix),
					"age", m.clock.Now().UTC().Sub(marker.AcquiredAt).Round(time.Second))
				reclaimed++
			}
		}
	}
	return reclaimed
}

func (m *Manager) isStale(marker Marker) bool {
	return m.clock.Now().UTC().Sub(marker.AcquiredAt) > m.staleAfter
}

func (m *Manager) readMarker(path string) (Marker, error) {
	var marker Marker
	data, err := os.ReadFile(path)
	if err != nil {
		return marker, err
	}
	if err := json.Unmarshal(data, &marker); err != nil {
		return marker, err
	}
	return marker, nil
}

func (m *Manager) markerPath(resource string) string {
	return filepath.Join(m.dir, sanitize(resource)+markerSuffix)
}

// sanitize maps a resource name onto a safe file name.
func sanitize(resource string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, resource)
}
