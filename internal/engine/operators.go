package engine

import (
	"context"
	"errors"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/lazypower/lattice/internal/apperr"
	"github.com/lazypower/lattice/internal/store"
)

// Forget pushes a node away from the core by amount (default from config).
// Content is never removed.
func (e *Engine) Forget(ctx context.Context, subject string, nodeID int64, amount *float64) (*store.Node, error) {
	if err := requireSubject("forget", subject); err != nil {
		return nil, err
	}
	delta := orDefault(amount, e.memory.ForgetAmount)
	if delta < 0 {
		return nil, apperr.Validation("forget", "amount must be non-negative")
	}

	var node *store.Node
	err := e.mutate(ctx, subject, func(q *store.Queries) error {
		if _, _, err := graphInScope(ctx, q, subject, nodeID); err != nil {
			return err
		}
		if err := q.AddDepth(ctx, nodeID, delta); err != nil {
			return err
		}
		var err error
		node, err = q.GetNode(ctx, nodeID)
		return err
	})
	if err != nil {
		return nil, wrap("forget", err)
	}
	return node, nil
}

// ReinforceParams selects nodes by tag or id. Both selectors union.
type ReinforceParams struct {
	Tags    []string
	NodeIDs []int64
	Amount  *float64
}

// ReinforceResult reports which nodes were reinforced.
type ReinforceResult struct {
	Affected int     `json:"affected"`
	NodeIDs  []int64 `json:"nodeIds"`
	Amount   float64 `json:"amount"`
}

// Reinforce raises gravity on every selected node, clamped to salience.
// A selector that matches nothing is a no-op, not an error, even when the
// subject has no graph yet.
func (e *Engine) Reinforce(ctx context.Context, subject string, p ReinforceParams) (*ReinforceResult, error) {
	if err := requireSubject("reinforce", subject); err != nil {
		return nil, err
	}
	if len(p.Tags) == 0 && len(p.NodeIDs) == 0 {
		return nil, apperr.Validation("reinforce", "tags or nodeIds required")
	}
	delta := orDefault(p.Amount, e.memory.ReinforceAmount)
	if delta < 0 {
		return nil, apperr.Validation("reinforce", "amount must be non-negative")
	}

	result := &ReinforceResult{NodeIDs: []int64{}, Amount: delta}
	err := e.mutate(ctx, subject, func(q *store.Queries) error {
		graph, err := q.GetGraphBySubject(ctx, subject)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ids, err := q.NodeIDsByTags(ctx, graph.ID, p.Tags)
		if err != nil {
			return err
		}
		ids = append(ids, p.NodeIDs...)
		slices.Sort(ids)
		ids = slices.Compact(ids)

		// Keep only ids that live in this graph.
		nodes, err := q.GetNodesByIDs(ctx, ids)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			if n.GraphID == graph.ID {
				result.NodeIDs = append(result.NodeIDs, n.ID)
			}
		}
		n, err := q.AddGravity(ctx, graph.ID, result.NodeIDs, delta)
		result.Affected = int(n)
		return err
	})
	if err != nil {
		return nil, wrap("reinforce", err)
	}

	log.Debug().Str("subject", subject).Int("affected", result.Affected).Float64("amount", delta).Msg("reinforce")
	return result, nil
}

// DeleteNode hard-deletes a node and its edges, leaving an audit record.
// The ledger keeps any entries that referenced it.
func (e *Engine) DeleteNode(ctx context.Context, subject string, nodeID int64, actor, reason string) (*store.Node, error) {
	if err := requireSubject("delete node", subject); err != nil {
		return nil, err
	}
	var deleted *store.Node
	err := e.mutate(ctx, subject, func(q *store.Queries) error {
		if _, _, err := graphInScope(ctx, q, subject, nodeID); err != nil {
			return err
		}
		var err error
		deleted, err = q.DeleteNode(ctx, nodeID, actor, reason)
		return err
	})
	if err != nil {
		return nil, wrap("delete node", err)
	}
	log.Info().Str("subject", subject).Int64("node", nodeID).Str("actor", actor).Msg("node deleted")
	return deleted, nil
}
