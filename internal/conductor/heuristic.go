package conductor

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/maestro/internal/config"
)

// skipPrefixes mark pure information-lookup phrasing: the primary response
// answers these on its own and the band adds nothing but latency.
var skipPrefixes = []string{
	"what is",
	"what does",
	"how do i",
	"explain",
	"can you help me understand",
	"tell me about",
	"show me",
	"list",
	"where is",
	"why does",
	"when should",
}

// broadIntent marks requests that touch enough of the project to justify
// the full band.
var broadIntent = []string{
	"refactor",
	"implement",
	"create",
	"add feature",
	"build",
	"design",
	"architect",
	"migrate",
	"optimize",
	"redesign",
}

// shortPromptLimit is the length below which a prompt is assumed to be a
// simple question.
const shortPromptLimit = 20

// Roster names the tasks the heuristic can select from.
type Roster struct {
	// Full is the complete pre-request task set, in phase order.
	Full []string

	// Synthesizer always runs when anything runs.
	Synthesizer string

	// Structure handles file-layout questions.
	Structure string

	// Narrative handles conversational-context questions.
	Narrative string
}

// DefaultRoster matches the standard band lineup.
func DefaultRoster() Roster {
	return Roster{
		Full:        []string{"john", "george", "pete", "paul", "ringo"},
		Synthesizer: "ringo",
		Structure:   "john",
		Narrative:   "george",
	}
}

// Heuristic is the fully deterministic decision strategy: lookup phrasing
// skips, narrow questions get a minimal subset, broad intent gets the full
// set.
type Heuristic struct {
	roster Roster
	sizing config.SizingConfig
}

// NewHeuristic creates the deterministic strategy.
func NewHeuristic(roster Roster, sizing config.SizingConfig) *Heuristic {
	return &Heuristic{roster: roster, sizing: sizing}
}

// Decide implements Strategy. It never returns an error.
func (h *Heuristic) Decide(_ context.Context, req Request) (Decision, error) {
	prompt := strings.ToLower(strings.TrimSpace(req.Prompt))
	timeout := TimeoutFor(req.Snapshot, h.sizing)

	if len(prompt) < shortPromptLimit {
		return Decision{
			Run:      false,
			Timeout:  0,
			Priority: PriorityLow,
			Reason:   "prompt too short for analysis to help",
		}, nil
	}

	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(prompt, prefix) {
			return Decision{
				Run:      false,
				Timeout:  0,
				Priority: PriorityLow,
				Reason:   fmt.Sprintf("simple question pattern: %q", prefix),
			}, nil
		}
	}

	for _, marker := range broadIntent {
		if strings.Contains(prompt, marker) {
			return Decision{
				Run:      true,
				Tasks:    append([]string(nil), h.roster.Full...),
				Timeout:  timeout,
				Priority: PriorityHigh,
				Reason:   fmt.Sprintf("broad intent detected: %q", marker),
			}, nil
		}
	}

	// Narrow-scope code question: the synthesizer plus one specialist.
	specialist := h.roster.Narrative
	if strings.Contains(prompt, "structure") || strings.Contains(prompt, "files") {
		specialist = h.roster.Structure
	}
	return Decision{
		Run:      true,
		Tasks:    []string{specialist, h.roster.Synthesizer},
		Timeout:  timeout,
		Priority: PriorityMedium,
		Reason:   "narrow question, minimal task subset",
	}, nil
}
