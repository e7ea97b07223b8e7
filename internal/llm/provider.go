// Package llm provides the text-generation provider abstraction and the
// fallback chain the bot generates every reply through.
package llm

import "context"

// Request holds parameters for a single generation attempt. The prompt is
// an opaque blob rendered by the persona builder; providers send it as a
// single user message.
type Request struct {
	Prompt      string
	MaxTokens   int     // 0 means the provider default
	Temperature float64 // 0 means the provider default
}

// Response holds a provider's generation result.
type Response struct {
	Text  string
	Model string
}

// Provider is a single text-generation backend. Implementations must
// treat every failure mode (timeout, transport error, non-2xx, empty
// body) as a returned error, never a panic.
type Provider interface {
	// Name returns the provider identifier (e.g., "cloudflare", "openai").
	Name() string

	// Complete sends a generation request and returns the response.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ProviderError represents a generation backend failure.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Provider != "" {
		return e.Provider + ": " + e.Message
	}
	return e.Message
}
