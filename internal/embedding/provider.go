package embedding

import (
	"fmt"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
)

const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// NewClient creates an embedder for the named provider.
func NewClient(provider, apiKey, model string, dimensions int) (domain.Embedder, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI embedding provider")
		}
		return NewOpenAIClient(apiKey, model, dimensions), nil

	case ProviderMock:
		return NewMockClient(dimensions), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid options: openai, mock)", provider)
	}
}
