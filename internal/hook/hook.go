package hook

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/maestro/internal/agent"
	"github.com/felixgeelhaar/maestro/internal/band"
	"github.com/felixgeelhaar/maestro/internal/conductor"
	"github.com/felixgeelhaar/maestro/internal/config"
	"github.com/felixgeelhaar/maestro/internal/errors"
	"github.com/felixgeelhaar/maestro/internal/lock"
	"github.com/felixgeelhaar/maestro/internal/log"
	"github.com/felixgeelhaar/maestro/internal/provider"
	"github.com/felixgeelhaar/maestro/internal/snapshot"
)

// locksDirName is the lock directory under the cache root.
const locksDirName = "locks"

// Hook handles one inbound event end to end.
type Hook struct {
	cfg       *config.Config
	out       io.Writer
	logger    *log.Logger
	client    provider.Client
	lookupEnv func(string) (string, bool)
}

// Option customizes a Hook.
type Option func(*Hook)

// WithClient injects a provider client, used by tests.
func WithClient(client provider.Client) Option {
	return func(h *Hook) { h.client = client }
}

// WithEnvLookup injects the environment lookup, used by tests.
func WithEnvLookup(lookup func(string) (string, bool)) Option {
	return func(h *Hook) { h.lookupEnv = lookup }
}

// New creates a hook writing its passthrough and report to out.
func New(cfg *config.Config, out io.Writer, logger *log.Logger, opts ...Option) *Hook {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	h := &Hook{
		cfg:       cfg,
		out:       out,
		logger:    logger,
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.client == nil {
		h.client = provider.NewCLIClient(cfg.Provider, logger)
	}
	return h
}

// Handle processes one raw event payload. The payload is forwarded to the
// output unchanged before anything else happens; all engine activity only
// ever appends after it. Handle never returns an error for malformed or
// unknown input, because a hook failure must not disturb the host session.
func (h *Hook) Handle(ctx context.Context, raw []byte) error {
	if _, err := h.out.Write(raw); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to forward event payload", err)
	}

	// A child spawned by this engine re-entering the hook would recurse
	// into the provider forever. Children are marked explicitly at spawn
	// time, so the check is a plain environment read.
	if v, ok := h.lookupEnv(provider.ChildMarkerEnv); ok && v == provider.ChildMarkerValue {
		h.logger.Debug("child invocation detected, passing through")
		return nil
	}

	ev, err := parseEvent(raw)
	if err != nil {
		h.logger.WithError(errors.NewMalformedEventError(err)).Warn("passing event through unprocessed")
		return nil
	}

	workDir := ev.Cwd
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			h.logger.WithError(err).Warn("no working directory, passing through")
			return nil
		}
	}

	switch ev.HookEventName {
	case EventUserPromptSubmit:
		h.handlePrompt(ctx, ev, workDir)
	case EventStop:
		h.handleStop(ctx, ev, workDir)
	default:
		h.logger.Debug("unknown event, passing through", "event", ev.HookEventName)
	}
	return nil
}

// handlePrompt is the pre-request path: snapshot, decide, maybe run the
// band and append its report after the forwarded payload.
func (h *Hook) handlePrompt(ctx context.Context, ev *Event, workDir string) {
	store, locks, ok := h.engine(workDir)
	if !ok {
		return
	}

	snap, err := store.Snapshot(ctx)
	if err != nil {
		// A failed snapshot degrades the decision input, never the run.
		h.logger.WithError(err).Warn("snapshot failed, deciding without project state")
	}

	meta := store.LoadMeta()
	decision := h.decide(ctx, conductor.Request{
		Prompt:   ev.Prompt,
		Snapshot: snap,
		LastRun:  meta.LastRunAt,
	})

	h.logger.Info("conductor decision",
		"run", decision.Run, "tasks", decision.Tasks,
		"timeout", decision.Timeout, "reason", decision.Reason)

	if decision.Run {
		registry := agent.NewRegistry(h.client, h.cfg.Provider, h.logger)
		tasks := registry.Tasks(decision.Tasks, agent.KindSynthesis, decision.Timeout)

		runID := uuid.NewString()[:8]
		results := band.NewRunner(locks, h.logger).Run(ctx, band.GroupByPhase(tasks), band.Input{
			Prompt:         ev.Prompt,
			WorkDir:        workDir,
			TranscriptPath: ev.TranscriptPath,
			Budget:         decision.Timeout,
		})

		report := band.RenderReport(results, band.ReportOptions{
			RunID:  runID,
			Reason: decision.Reason,
			Titles: agent.Titles(),
			Order:  agent.Order(),
		})
		if report != "" {
			_, _ = io.WriteString(h.out, "\n\n"+report)
		}
		meta.LastRunAt = time.Now().UTC()
	}

	// A failed snapshot leaves the last-known-good one in place.
	if snap != nil {
		meta.LastSnapshot = snap
	}
	meta.LastDecision = &snapshot.DecisionSummary{
		Run:      decision.Run,
		Tasks:    decision.Tasks,
		Timeout:  decision.Timeout.String(),
		Priority: string(decision.Priority),
		Reason:   decision.Reason,
	}
	if err := store.SaveMeta(meta); err != nil {
		h.logger.WithError(err).Warn("run metadata write failed")
	}
}

// handleStop is the post-response path: the maintenance agents run on a
// generous budget with no conductor and no appended report. Locks keep
// overlapping sessions from doubling the work.
func (h *Hook) handleStop(ctx context.Context, ev *Event, workDir string) {
	_, locks, ok := h.engine(workDir)
	if !ok {
		return
	}

	registry := agent.NewRegistry(h.client, h.cfg.Provider, h.logger)
	tasks := registry.Tasks(agent.IDs(agent.KindMaintenance), agent.KindMaintenance, h.cfg.Maintenance.TaskTimeout)

	results := band.NewRunner(locks, h.logger).Run(ctx, band.GroupByPhase(tasks), band.Input{
		Prompt:         ev.Prompt,
		WorkDir:        workDir,
		TranscriptPath: ev.TranscriptPath,
	})

	for _, phase := range results {
		for _, res := range phase {
			h.logger.Info("maintenance task finished", "task", res.TaskID, "status", res.Status)
		}
	}
}

// decide picks the reasoning-backed strategy when the provider is reachable
// and the deterministic heuristic otherwise. Either way the conductor's
// fallback guarantees a usable decision.
func (h *Hook) decide(ctx context.Context, req conductor.Request) conductor.Decision {
	roster := conductor.DefaultRoster()

	var strategy conductor.Strategy
	if h.client.IsAvailable() {
		strategy = conductor.NewModelStrategy(h.client, h.cfg.Conductor.Model, roster, h.cfg.Sizing)
	} else {
		h.logger.Debug("provider unavailable, using deterministic conductor")
		strategy = conductor.NewHeuristic(roster, h.cfg.Sizing)
	}

	c := conductor.New(strategy, roster, h.cfg.Sizing, h.cfg.Conductor.DecisionTimeout, h.logger)
	return c.Decide(ctx, req)
}

// engine builds the per-directory snapshot store and lock manager.
func (h *Hook) engine(workDir string) (*snapshot.Store, *lock.Manager, bool) {
	cacheRoot := config.CacheRoot(workDir)

	locks, err := lock.NewManager(filepath.Join(cacheRoot, locksDirName), h.cfg.Lock, lock.WithLogger(h.logger))
	if err != nil {
		h.logger.WithError(err).Warn("lock manager unavailable, passing through")
		return nil, nil, false
	}

	store := snapshot.NewStore(workDir, cacheRoot, h.cfg.Cache, h.cfg.Sizing, snapshot.WithLogger(h.logger))
	return store, locks, true
}
