// Package embedding turns text into fixed-length vectors. Providers do the
// math; Service adds caching, a request budget and failure isolation.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lazypower/lattice/internal/config"
)

// Provider generates vector embeddings for text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
	Dimensions() int
}

// Ollama uses Ollama's embedding API.
type Ollama struct {
	url    string
	model  string
	dims   int
	client *http.Client
}

// NewOllama creates a provider backed by Ollama's /api/embed endpoint.
// Request deadlines come from the caller's context.
func NewOllama(url, model string, dims int) *Ollama {
	return &Ollama{
		url:    url,
		model:  model,
		dims:   dims,
		client: &http.Client{},
	}
}

func (o *Ollama) Model() string   { return "ollama:" + o.model }
func (o *Ollama) Dimensions() int { return o.dims }

// Embed sends text to Ollama's embed endpoint and returns the embedding vector.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(map[string]any{
		"model": o.model,
		"input": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed status %d: %s", resp.StatusCode, respBody)
	}

	var result struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings")
	}
	if got := len(result.Embeddings[0]); got != o.dims {
		return nil, fmt.Errorf("ollama returned %d dimensions, want %d", got, o.dims)
	}
	return result.Embeddings[0], nil
}

// ProbeOllama checks if Ollama is reachable and the embedding model is available.
func ProbeOllama(ctx context.Context, url, model string) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	reqBody, _ := json.Marshal(map[string]any{"model": model, "input": "test"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/api/embed", bytes.NewReader(reqBody))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// NewProvider picks a provider from config. "auto" probes Ollama and falls
// back to the hashing provider when it is unreachable.
func NewProvider(ctx context.Context, cfg config.EmbeddingConfig) Provider {
	switch cfg.Provider {
	case "ollama":
		return NewOllama(cfg.OllamaURL, cfg.Model, cfg.Dimensions)
	case "hashing":
		return NewHashing(cfg.Dimensions)
	}
	if ProbeOllama(ctx, cfg.OllamaURL, cfg.Model) {
		log.Info().Str("model", cfg.Model).Msg("embedding: using ollama")
		return NewOllama(cfg.OllamaURL, cfg.Model, cfg.Dimensions)
	}
	log.Warn().Str("url", cfg.OllamaURL).Msg("embedding: ollama unreachable, using hashing fallback")
	return NewHashing(cfg.Dimensions)
}
