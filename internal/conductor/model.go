package conductor

import (
	"bytes"
	"context"
	"encoding/json"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/felixgeelhaar/maestro/internal/config"
	"github.com/felixgeelhaar/maestro/internal/errors"
	"github.com/felixgeelhaar/maestro/internal/provider"
)

//go:embed prompt.tmpl
var promptTemplate string

// wireDecision is the JSON shape the reasoning model must produce.
type wireDecision struct {
	ShouldRun *bool    `json:"should_run"`
	Reason    string   `json:"reason"`
	Agents    []string `json:"agents"`
	Timeout   int      `json:"timeout"`
	Priority  string   `json:"priority"`
}

// ModelStrategy asks the reasoning provider to make the decision. It is
// the only non-deterministic component in the engine: callers must treat
// its output as a heuristic and tolerate failure.
type ModelStrategy struct {
	client provider.Client
	model  string
	roster Roster
	sizing config.SizingConfig
	tmpl   *template.Template
}

// NewModelStrategy creates a reasoning-backed strategy.
func NewModelStrategy(client provider.Client, model string, roster Roster, sizing config.SizingConfig) *ModelStrategy {
	return &ModelStrategy{
		client: client,
		model:  model,
		roster: roster,
		sizing: sizing,
		tmpl:   template.Must(template.New("conductor").Parse(promptTemplate)),
	}
}

// Decide implements Strategy by delegating to the provider and validating
// shape and value ranges of the reply.
func (s *ModelStrategy) Decide(ctx context.Context, req Request) (Decision, error) {
	prompt, err := s.renderPrompt(req)
	if err != nil {
		return Decision{}, err
	}

	resp, err := s.client.Generate(ctx, &provider.GenerateRequest{Prompt: prompt, Model: s.model})
	if err != nil {
		return Decision{}, err
	}

	return s.parse(resp.Text)
}

func (s *ModelStrategy) renderPrompt(req Request) (string, error) {
	lastRun := "never"
	if !req.LastRun.IsZero() {
		lastRun = fmt.Sprintf("%s ago", time.Since(req.LastRun).Round(time.Minute))
	}

	data := map[string]any{
		"Prompt":                  req.Prompt,
		"FileCount":               0,
		"SizeClass":               "small",
		"ChangeCount":             0,
		"LastRun":                 lastRun,
		"Agents":                  strings.Join(s.roster.Full, ", "),
		"SuggestedTimeoutSeconds": int(TimeoutFor(req.Snapshot, s.sizing).Seconds()),
	}
	if req.Snapshot != nil {
		data["FileCount"] = req.Snapshot.FileCount
		data["SizeClass"] = string(req.Snapshot.SizeClass)
		data["ChangeCount"] = req.Snapshot.ChangeCount
	}

	var b bytes.Buffer
	if err := s.tmpl.Execute(&b, data); err != nil {
		return "", errors.Wrap(errors.ErrCodeConductorMalformed, "failed to render conductor prompt", err)
	}
	return b.String(), nil
}

// parse validates the model reply: required keys present, known priority,
// selected agents drawn from the roster, sane timeout.
func (s *ModelStrategy) parse(text string) (Decision, error) {
	raw := stripFences(text)

	var wire wireDecision
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return Decision{}, errors.Wrap(errors.ErrCodeConductorMalformed, "conductor reply is not valid JSON", err)
	}
	if wire.ShouldRun == nil {
		return Decision{}, errors.New(errors.ErrCodeConductorMalformed, "conductor reply missing should_run")
	}
	if wire.Reason == "" {
		return Decision{}, errors.New(errors.ErrCodeConductorMalformed, "conductor reply missing reason")
	}

	priority := Priority(wire.Priority)
	if !priority.Valid() {
		return Decision{}, errors.New(errors.ErrCodeConductorMalformed,
			fmt.Sprintf("conductor reply has unknown priority %q", wire.Priority))
	}

	if !*wire.ShouldRun {
		return Decision{Run: false, Priority: priority, Reason: wire.Reason}, nil
	}

	known := make(map[string]struct{}, len(s.roster.Full))
	for _, id := range s.roster.Full {
		known[id] = struct{}{}
	}
	var tasks []string
	for _, id := range wire.Agents {
		if _, ok := known[id]; ok {
			tasks = append(tasks, id)
		}
	}
	if len(tasks) == 0 {
		return Decision{}, errors.New(errors.ErrCodeConductorMalformed,
			"conductor reply selected no known agents for a run decision")
	}
	if wire.Timeout <= 0 {
		return Decision{}, errors.New(errors.ErrCodeConductorMalformed,
			fmt.Sprintf("conductor reply has invalid timeout %d", wire.Timeout))
	}

	return Decision{
		Run:      true,
		Tasks:    tasks,
		Timeout:  time.Duration(wire.Timeout) * time.Second,
		Priority: priority,
		Reason:   wire.Reason,
	}, nil
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if idx := strings.Index(trimmed, "```json"); idx >= 0 {
		trimmed = trimmed[idx+len("```json"):]
	} else if idx := strings.Index(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[idx+len("```"):]
	} else {
		return trimmed
	}
	if end := strings.Index(trimmed, "```"); end >= 0 {
		trimmed = trimmed[:end]
	}
	return strings.TrimSpace(trimmed)
}
