package mock

import (
	"context"
	"sync"

	"github.com/poiesic/lexrag/ai"
)

// MockGenerator is a test double for ai.Generator. By default it echoes the
// user prompt prefixed with "answer: ".
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	GenerateFunc func(ctx context.Context, prompt ai.Prompt) (string, error)

	mu      sync.Mutex
	prompts []ai.Prompt
}

// NewMockGenerator creates a mock generator with default echo behavior.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate records prompt and returns the configured response.
func (m *MockGenerator) Generate(ctx context.Context, prompt ai.Prompt) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt)
	}
	return "answer: " + prompt.User, nil
}

// CallCount returns the number of times Generate was called.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// LastPrompt returns the most recent prompt, or the zero Prompt.
func (m *MockGenerator) LastPrompt() ai.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ai.Prompt{}
	}
	return m.prompts[len(m.prompts)-1]
}

// Reset clears recorded prompts and the custom function.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = nil
	m.GenerateFunc = nil
}
