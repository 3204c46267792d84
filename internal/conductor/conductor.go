package conductor

import (
	"context"
	"time"

	"github.com/felixgeelhaar/maestro/internal/config"
	"github.com/felixgeelhaar/maestro/internal/log"
)

// Conductor wraps a Strategy with a hard time bound and the deterministic
// fallback. Strategy failure never becomes "do nothing": missed work is
// worse than extra latency, so the fallback runs the full task set at the
// snapshot-computed timeout.
type Conductor struct {
	strategy        Strategy
	roster          Roster
	sizing          config.SizingConfig
	decisionTimeout time.Duration
	logger          *log.Logger
}

// New creates a Conductor around the given strategy.
func New(strategy Strategy, roster Roster, sizing config.SizingConfig, decisionTimeout time.Duration, logger *log.Logger) *Conductor {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &Conductor{
		strategy:        strategy,
		roster:          roster,
		sizing:          sizing,
		decisionTimeout: decisionTimeout,
		logger:          logger,
	}
}

// Decide returns a Decision for the request. The returned Decision always
// satisfies the invariant Run == false implies empty Tasks.
func (c *Conductor) Decide(ctx context.Context, req Request) Decision {
	ctx, cancel := context.WithTimeout(ctx, c.decisionTimeout)
	defer cancel()

	decision, err := c.strategy.Decide(ctx, req)
	if err != nil {
		c.logger.WithError(err).Warn("conductor strategy failed, using fallback decision")
		return c.Fallback(req)
	}

	if !decision.Run {
		decision.Tasks = nil
	}
	if decision.Run && decision.Timeout <= 0 {
		decision.Timeout = TimeoutFor(req.Snapshot, c.sizing)
	}
	if !decision.Priority.Valid() {
		decision.Priority = PriorityMedium
	}
	return decision
}

// Fallback is the deterministic default decision: the full task set at the
// snapshot-computed timeout.
func (c *Conductor) Fallback(req Request) Decision {
	return Decision{
		Run:      true,
		Tasks:    append([]string(nil), c.roster.Full...),
		Timeout:  TimeoutFor(req.Snapshot, c.sizing),
		Priority: PriorityMedium,
		Reason:   "conductor unavailable, running full task set",
	}
}
