// Package agent defines the band members: named units of delegated work,
// each with an embedded prompt template, a phase, and the event kinds it
// serves. Most agents delegate to the reasoning provider; gilfoyle runs a
// purely local scan.
package agent

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/felixgeelhaar/maestro/internal/band"
	"github.com/felixgeelhaar/maestro/internal/config"
	"github.com/felixgeelhaar/maestro/internal/log"
	"github.com/felixgeelhaar/maestro/internal/provider"
)

//go:embed prompts/*.md
var promptFS embed.FS

// Kind is the event kind an agent serves.
type Kind int

const (
	// KindSynthesis agents run on pre-request events.
	KindSynthesis Kind = 1 << iota
	// KindMaintenance agents run on post-response events.
	KindMaintenance
)

// definition describes one band member.
type definition struct {
	id     string
	title  string
	phase  int
	kinds  Kind
	model  string // overrides the registry default when set
	prompt string // template file under prompts/; empty for local agents
	local  func(ctx context.Context, tc *band.TaskContext) (string, error)
}

// definitions is the band lineup, in stable display order.
var definitions = []definition{
	{id: "john", title: "John (Structure)", phase: 1, kinds: KindSynthesis | KindMaintenance, prompt: "john.md"},
	{id: "george", title: "George (Narrative)", phase: 1, kinds: KindSynthesis | KindMaintenance, prompt: "george.md"},
	{id: "pete", title: "Pete (Technical)", phase: 1, kinds: KindSynthesis | KindMaintenance, prompt: "pete.md"},
	{id: "paul", title: "Paul (Wild Idea)", phase: 1, kinds: KindSynthesis, model: "opus", prompt: "paul.md"},
	{id: "ringo", title: "Ringo (Synthesis)", phase: 2, kinds: KindSynthesis, prompt: "ringo.md"},
	{id: "marie", title: "Marie (Maintenance)", phase: 1, kinds: KindMaintenance, prompt: "marie.md"},
	{id: "gilfoyle", title: "Gilfoyle (Build Health)", phase: 1, kinds: KindMaintenance, local: buildHealthScan},
}

// Registry builds executable band tasks around a provider client.
type Registry struct {
	client provider.Client
	model  string
	logger *log.Logger
	tmpl   map[string]*template.Template
}

// NewRegistry creates the agent registry.
func NewRegistry(client provider.Client, cfg config.ProviderConfig, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.DefaultLogger()
	}

	tmpl := make(map[string]*template.Template)
	for _, def := range definitions {
		if def.prompt == "" {
			continue
		}
		data, err := promptFS.ReadFile("prompts/" + def.prompt)
		if err != nil {
			// Embedded files cannot go missing in a built binary.
			panic(fmt.Sprintf("agent prompt missing: %s", def.prompt))
		}
		tmpl[def.id] = template.Must(template.New(def.id).Parse(string(data)))
	}

	return &Registry{
		client: client,
		model:  cfg.Model,
		logger: logger,
		tmpl:   tmpl,
	}
}

// IDs returns the agent IDs serving the given kind, in display order.
func IDs(kind Kind) []string {
	var ids []string
	for _, def := range definitions {
		if def.kinds&kind != 0 {
			ids = append(ids, def.id)
		}
	}
	return ids
}

// Order returns all agent IDs in stable display order.
func Order() []string {
	ids := make([]string, 0, len(definitions))
	for _, def := range definitions {
		ids = append(ids, def.id)
	}
	return ids
}

// Titles maps agent IDs to display titles for report rendering.
func Titles() map[string]string {
	titles := make(map[string]string, len(definitions))
	for _, def := range definitions {
		titles[def.id] = def.title
	}
	return titles
}

// Tasks builds band tasks for the selected agent IDs restricted to a kind.
// Unknown IDs and agents of the wrong kind are dropped.
func (r *Registry) Tasks(ids []string, kind Kind, defaultTimeout time.Duration) []band.Task {
	selected := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		selected[id] = struct{}{}
	}

	var tasks []band.Task
	for _, def := range definitions {
		if _, ok := selected[def.id]; !ok {
			continue
		}
		if def.kinds&kind == 0 {
			r.logger.Debug("agent not eligible for this event kind, dropping", "agent", def.id)
			continue
		}
		tasks = append(tasks, band.Task{
			ID:      def.id,
			Phase:   def.phase,
			Timeout: defaultTimeout,
			Run:     r.taskFunc(def),
		})
	}
	return tasks
}

// taskFunc binds one agent definition to an executable task function.
func (r *Registry) taskFunc(def definition) band.TaskFunc {
	if def.local != nil {
		return def.local
	}

	return func(ctx context.Context, tc *band.TaskContext) (string, error) {
		prompt, err := r.renderPrompt(def, tc)
		if err != nil {
			return "", err
		}

		model := def.model
		if model == "" {
			model = r.model
		}

		client := r.client
		if cli, ok := client.(*provider.CLIClient); ok && tc.WorkDir != "" {
			client = cli.WithWorkDir(tc.WorkDir)
		}

		resp, err := client.Generate(ctx, &provider.GenerateRequest{Prompt: prompt, Model: model})
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	}
}

// renderPrompt fills the agent's template from the task context.
func (r *Registry) renderPrompt(def definition, tc *band.TaskContext) (string, error) {
	data := map[string]any{
		"Prompt":       tc.Prompt,
		"WorkDir":      tc.WorkDir,
		"Project":      filepath.Base(tc.WorkDir),
		"Transcript":   transcriptTail(tc.TranscriptPath),
		"Code":         extractFencedCode(tc.Prompt),
		"PriorOutputs": priorOutputs(tc.Prior),
	}

	var b bytes.Buffer
	if err := r.tmpl[def.id].Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt for %s: %w", def.id, err)
	}
	return b.String(), nil
}

// priorOutputs formats earlier-phase results for synthesis prompts.
func priorOutputs(prior map[string]band.TaskResult) string {
	if len(prior) == 0 {
		return "[none this turn]"
	}

	var b strings.Builder
	for _, def := range definitions {
		res, ok := prior[def.id]
		if !ok || res.Status != band.StatusOK || strings.TrimSpace(res.Output) == "" {
			continue
		}
		fmt.Fprintf(&b, "## %s\n%s\n\n", def.title, strings.TrimSpace(res.Output))
	}
	if b.Len() == 0 {
		return "[none this turn]"
	}
	return strings.TrimSpace(b.String())
}

// extractFencedCode returns the first fenced code block in the prompt.
func extractFencedCode(prompt string) string {
	parts := strings.Split(prompt, "```")
	if len(parts) < 3 {
		return "[No code]"
	}
	code := parts[1]
	// Drop a language tag on the opening fence.
	if idx := strings.IndexByte(code, '\n'); idx >= 0 {
		first := strings.TrimSpace(code[:idx])
		if first != "" && !strings.ContainsAny(first, " \t") {
			code = code[idx+1:]
		}
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return "[No code]"
	}
	return code
}
