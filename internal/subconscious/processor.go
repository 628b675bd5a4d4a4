// Package subconscious turns session events into proposed memory operations.
// The Processor is stateless: its output depends only on the snapshot and
// event it is given, and it never writes to storage.
package subconscious

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lazypower/lattice/internal/config"
	"github.com/lazypower/lattice/internal/engine"
	"github.com/lazypower/lattice/internal/llm"
	"github.com/lazypower/lattice/internal/protocol"
)

// Event is what happened in a closed session.
type Event struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// Processor proposes operations for an event.
type Processor struct {
	llm           llm.Client // nil = heuristic only
	minEventChars int
	maxOps        int
}

// NewProcessor creates a Processor. client may be nil.
func NewProcessor(client llm.Client, cfg config.SubconsciousConfig) *Processor {
	return &Processor{llm: client, minEventChars: cfg.MinEventChars, maxOps: cfg.MaxOps}
}

// Process returns the operations to apply for ev, consistent with snap.
// Events shorter than the configured minimum yield nothing. When the LLM is
// unavailable or returns garbage, the heuristic proposer is used instead.
func (p *Processor) Process(ctx context.Context, snap *engine.Snapshot, ev Event) ([]protocol.Call, error) {
	text := strings.TrimSpace(ev.Text)
	if len(text) < p.minEventChars {
		log.Debug().Str("session", ev.SessionID).Int("chars", len(text)).Msg("subconscious: event too short")
		return nil, nil
	}
	ev.Text = text

	var proposals []protocol.Call
	source := "heuristic"
	if p.llm != nil {
		var err error
		proposals, err = p.proposeLLM(ctx, snap, ev)
		if err != nil {
			log.Warn().Err(err).Str("session", ev.SessionID).Msg("subconscious: llm proposal failed, using heuristic")
			proposals = nil
		} else {
			source = "llm"
		}
	}
	if source == "heuristic" {
		proposals = propose(snap, ev)
	}

	calls := filter(snap, proposals, p.maxOps)
	log.Info().Str("session", ev.SessionID).Str("source", source).
		Int("proposed", len(proposals)).Int("kept", len(calls)).Msg("subconscious: processed event")
	return calls, nil
}

func (p *Processor) proposeLLM(ctx context.Context, snap *engine.Snapshot, ev Event) ([]protocol.Call, error) {
	prompt := llm.SubconsciousPrompt(renderGraph(snap), renderLedger(snap), ev.Text, p.maxOps)
	resp, err := llm.Complete(ctx, p.llm, prompt)
	if err != nil {
		return nil, err
	}
	calls, err := parseProposals(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parse proposals: %w", err)
	}
	return calls, nil
}
