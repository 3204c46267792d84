// Package conductor decides, per inbound request, whether the band runs at
// all, which tasks run, and with what time budget. The reasoning-backed
// strategy is explicitly a heuristic the system tolerates being wrong; a
// deterministic fallback guarantees a usable decision on every path.
package conductor

import (
	"context"
	"time"

	"github.com/felixgeelhaar/maestro/internal/config"
	"github.com/felixgeelhaar/maestro/internal/snapshot"
)

// Priority is the urgency attached to a run decision.
type Priority string

// Priorities.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Decision is the run/skip verdict for one inbound request.
// Invariant: Run == false implies Tasks is empty.
type Decision struct {
	Run      bool          `json:"run"`
	Tasks    []string      `json:"tasks,omitempty"`
	Timeout  time.Duration `json:"timeout"`
	Priority Priority      `json:"priority"`
	Reason   string        `json:"reason"`
}

// Request is the input to a decision.
type Request struct {
	// Prompt is the free-text request from the inbound event.
	Prompt string

	// Snapshot is the current project state.
	Snapshot *snapshot.Snapshot

	// LastRun is when the band last ran for this project; zero if never.
	LastRun time.Time
}

// Strategy produces a Decision for a request. Implementations may fail or
// overrun; the Conductor owns the fallback.
type Strategy interface {
	Decide(ctx context.Context, req Request) (Decision, error)
}

// TimeoutFor computes the adaptive per-task budget: a base chosen by size
// class plus a capped per-changed-file bonus.
func TimeoutFor(snap *snapshot.Snapshot, sizing config.SizingConfig) time.Duration {
	base := sizing.BaseTimeoutSmall
	if snap != nil {
		switch snap.SizeClass {
		case snapshot.SizeMedium:
			base = sizing.BaseTimeoutMedium
		case snapshot.SizeLarge:
			base = sizing.BaseTimeoutLarge
		}
	}

	bonus := time.Duration(0)
	if snap != nil {
		bonus = time.Duration(snap.ChangeCount) * sizing.PerChangedFileBonus
		if bonus > sizing.ChangedFileBonusCap {
			bonus = sizing.ChangedFileBonusCap
		}
	}
	return base + bonus
}
