package provider

import (
	"context"
	"sync"
	"time"
)

// MockClient is a scriptable in-memory provider for tests.
type MockClient struct {
	mu sync.Mutex

	// Response is returned verbatim when Respond is nil.
	Response string

	// Respond, when set, computes the response from the request.
	Respond func(req *GenerateRequest) (string, error)

	// Delay simulates provider latency, honoring context cancellation.
	Delay time.Duration

	// Available mirrors IsAvailable; defaults handled by NewMockClient.
	Available bool

	// Calls records every request in order.
	Calls []*GenerateRequest
}

// NewMockClient creates an available mock returning the given text.
func NewMockClient(response string) *MockClient {
	return &MockClient{Response: response, Available: true}
}

// Generate implements Client.
func (m *MockClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	respond := m.Respond
	response := m.Response
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if respond != nil {
		text, err := respond(req)
		if err != nil {
			return nil, err
		}
		return &GenerateResponse{Text: text}, nil
	}
	return &GenerateResponse{Text: response}, nil
}

// IsAvailable implements Client.
func (m *MockClient) IsAvailable() bool {
	return m.Available
}

// CallCount returns how many Generate calls were made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
