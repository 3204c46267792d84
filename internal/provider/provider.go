// Package provider wraps the external reasoning CLI the band delegates to.
// The CLI is an opaque prompt-in/text-out subprocess that may fail or time
// out; callers own their budgets via context deadlines.
package provider

import (
	"context"
	"time"
)

// ChildMarkerEnv is the environment variable set on every subprocess this
// engine spawns. The hook entry point uses it to detect re-entrant
// self-invocation. It is threaded explicitly through the spawn call rather
// than inherited ambiently, so it cannot leak into unrelated children.
const ChildMarkerEnv = "MAESTRO_CHILD"

// ChildMarkerValue is the value assigned to ChildMarkerEnv.
const ChildMarkerValue = "1"

// GenerateRequest is a single prompt-in/text-out call.
type GenerateRequest struct {
	// Prompt is the full prompt text, passed on stdin.
	Prompt string

	// Model optionally selects a model; empty uses the client default.
	Model string
}

// GenerateResponse is the provider's reply.
type GenerateResponse struct {
	// Text is the trimmed stdout of the provider.
	Text string

	// Latency is the end-to-end call duration.
	Latency time.Duration
}

// Client is the interface the conductor and agents consume.
type Client interface {
	// Generate sends a prompt and returns the text response. The context
	// deadline bounds the call; exceeding it terminates the subprocess.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// IsAvailable reports whether the provider can be invoked at all.
	IsAvailable() bool
}
