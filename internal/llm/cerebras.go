package llm

const (
	cerebrasAPIURL = "https://api.cerebras.ai/v1/chat/completions"
	cerebrasModel  = "llama-3.3-70b"
)

// NewCerebrasClient returns a client for Cerebras, which speaks the OpenAI
// chat completions format.
func NewCerebrasClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = cerebrasModel
	}
	c := NewOpenAIClient(apiKey, model)
	c.name = "cerebras"
	c.url = cerebrasAPIURL
	return c
}
