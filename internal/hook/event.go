// Package hook is the orchestration entry point invoked by the interactive
// assistant's event stream. It reads one event from stdin, forwards the
// payload to stdout byte-for-byte, and only ever appends to it. No failure
// inside the engine may disturb the passthrough.
package hook

import "encoding/json"

// Event names delivered by the assistant.
const (
	// EventUserPromptSubmit fires before the primary response is produced.
	EventUserPromptSubmit = "UserPromptSubmit"

	// EventStop fires after the primary response finished.
	EventStop = "Stop"
)

// Event is the inbound payload shape. Unknown fields are ignored; the raw
// bytes, not this struct, are what gets forwarded.
type Event struct {
	HookEventName  string `json:"hook_event_name"`
	Prompt         string `json:"prompt"`
	Cwd            string `json:"cwd"`
	TranscriptPath string `json:"transcript_path"`
}

// parseEvent decodes the payload, failing on anything that is not a JSON
// object.
func parseEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
