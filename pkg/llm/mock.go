package llm

import (
	"context"
	"sync"
)

// MockClient is a scripted Client for tests. Responses are returned in
// order; the last one repeats once the script is exhausted. Set Err to
// make every call fail.
type MockClient struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Handler   func(req Request) (string, error)
	Calls     []Request
	index     int
}

func (m *MockClient) Complete(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)

	if err := ctx.Err(); err != nil {
		return "", ErrCanceled
	}
	if m.Handler != nil {
		return m.Handler(req)
	}
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", nil
	}
	response := m.Responses[min(m.index, len(m.Responses)-1)]
	m.index++
	return response, nil
}

// CallCount returns how many times Complete was invoked.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
