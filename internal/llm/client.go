// Package llm wraps the completion backends the subconscious processor can
// use to propose graph operations.
package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lazypower/lattice/internal/apperr"
	"github.com/lazypower/lattice/internal/config"
)

// Client completes a single prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (*Response, error)
}

// Response holds the result of a completion.
type Response struct {
	Content    string
	Provider   string
	TokensUsed int
}

const (
	defaultCLIModel       = "haiku"
	defaultAnthropicModel = "claude-haiku-4-5-20251001"
	defaultOllamaURL      = "http://localhost:11434"
	defaultOllamaModel    = "llama3.2"
)

// NewClient builds the client named by cfg.Provider. An empty provider
// returns a nil Client; callers fall back to heuristics.
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "claude-cli":
		return NewClaudeCLI(or(cfg.Model, defaultCLIModel)), nil
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, apperr.Validation("llm", "anthropic provider requires ANTHROPIC_API_KEY or llm.anthropic_key")
		}
		return NewAnthropic(cfg.AnthropicKey, or(cfg.Model, defaultAnthropicModel)), nil
	case "ollama":
		return NewOllama(or(cfg.OllamaURL, defaultOllamaURL), or(cfg.OllamaModel, defaultOllamaModel)), nil
	default:
		return nil, apperr.Validation("llm", "unknown provider %q", cfg.Provider)
	}
}

// Complete calls c and logs provider, token usage and latency. Backend
// failures are reported as Upstream errors.
func Complete(ctx context.Context, c Client, prompt string) (*Response, error) {
	start := time.Now()
	resp, err := c.Complete(ctx, prompt)
	if err != nil {
		return nil, apperr.Upstream("llm", "completion failed", err)
	}
	if resp == nil {
		return nil, apperr.Upstream("llm", "empty response", nil)
	}
	log.Debug().Str("provider", resp.Provider).Int("tokens", resp.TokensUsed).
		Dur("took", time.Since(start)).Msg("llm: completion")
	return resp, nil
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
