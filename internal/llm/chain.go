package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// DefaultApology is sent when every configured backend fails.
const DefaultApology = "both APIs are down.. can u check it out?"

// defaultAttemptTimeout bounds a single backend call.
const defaultAttemptTimeout = 30 * time.Second

// Chain tries providers in fixed priority order until one returns
// non-empty text. It never surfaces an error to the caller: when every
// backend fails, Generate returns the configured apology string, so the
// orchestration layer always has usable text to send.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	apology   string
}

// NewChain creates a fallback chain over the given providers, in order.
func NewChain(providers []Provider, timeout time.Duration, apology string) *Chain {
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	if apology == "" {
		apology = DefaultApology
	}
	return &Chain{providers: providers, timeout: timeout, apology: apology}
}

// Len returns the number of configured providers.
func (c *Chain) Len() int { return len(c.providers) }

// Generate runs the prompt through the chain. First non-empty success
// wins; later providers are not tried. The chain performs no side
// effects beyond the backend calls — history mutation belongs to the
// caller.
func (c *Chain) Generate(ctx context.Context, prompt string) string {
	for _, p := range c.providers {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := p.Complete(attemptCtx, Request{Prompt: prompt})
		cancel()

		if err != nil {
			slog.Warn("generation backend failed, trying next",
				"provider", p.Name(),
				"error", err,
			)
			continue
		}

		text := strings.TrimSpace(resp.Text)
		if text == "" {
			slog.Warn("generation backend returned empty text, trying next",
				"provider", p.Name(),
				"model", resp.Model,
			)
			continue
		}

		slog.Info("generation succeeded",
			"provider", p.Name(),
			"model", resp.Model,
			"len", len(text),
		)
		return text
	}

	slog.Error("all generation backends failed", "providers", len(c.providers))
	return c.apology
}
