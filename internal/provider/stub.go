package provider

import (
	"context"
	"sync"
	"time"
)

// StubProvider replays canned responses. It is used for offline runs and
// tests.
type StubProvider struct {
	mu        sync.Mutex
	Responses []Response
	// Fallback is returned once Responses is exhausted.
	Fallback Response
	// Delay simulates model latency.
	Delay time.Duration
}

// NewStubProvider returns a stub that answers with the given contents, in
// order, and then repeats the last one.
func NewStubProvider(contents ...string) *StubProvider {
	p := &StubProvider{Fallback: Response{Content: "..."}}
	for _, c := range contents {
		p.Responses = append(p.Responses, Response{
			Content: c,
			Usage:   Usage{CompletionTokens: 1, TotalTokens: 1},
		})
	}
	if n := len(p.Responses); n > 0 {
		p.Fallback = p.Responses[n-1]
	}
	return p
}

func (m *StubProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Responses) == 0 {
		resp := m.Fallback
		return &resp, nil
	}

	resp := m.Responses[0]
	m.Responses = m.Responses[1:]
	return &resp, nil
}

func (m *StubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *StubProvider) Name() string {
	return "stub"
}
