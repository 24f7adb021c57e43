package llm

import (
	"context"
	"sync"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
)

// MockClient is a configurable generator for testing.
// Set Response or Err to control what Generate returns.
type MockClient struct {
	Response string
	Err      error

	mu    sync.Mutex
	Calls []domain.GenerateRequest
}

func NewMockClient() *MockClient {
	return &MockClient{
		Response: `{"summary":"Mock reflection","insights":[],"emotional_state":{},"drift_detected":false}`,
	}
}

func (c *MockClient) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, req)
	c.mu.Unlock()
	if c.Err != nil {
		return "", c.Err
	}
	return c.Response, nil
}

func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}
