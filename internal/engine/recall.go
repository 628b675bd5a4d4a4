package engine

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lazypower/lattice/internal/apperr"
	"github.com/lazypower/lattice/internal/store"
	"github.com/lazypower/lattice/internal/vecmath"
)

// RecallOptions narrows and sizes a recall. Zero values mean no filter;
// IncludeEdges defaults to true when nil.
type RecallOptions struct {
	MaxResults   int
	NodeTypes    []string
	Tags         []string
	MinGravity   float64
	IncludeEdges *bool
}

// ScoredNode is a ranked recall hit.
type ScoredNode struct {
	Node       store.Node `json:"node"`
	Score      float64    `json:"score"`
	Similarity float64    `json:"similarity"`
}

// ContextNode is a node one hop away from a ranked hit. It may also be ranked.
type ContextNode struct {
	Node store.Node `json:"node"`
	Via  store.Edge `json:"via"`
}

// RecallResult holds ranked hits followed by their one-hop context.
type RecallResult struct {
	Query   string        `json:"query"`
	Results []ScoredNode  `json:"results"`
	Context []ContextNode `json:"context,omitempty"`
}

// Recall ranks the subject's nodes against query. Ranked nodes are touched:
// their access count rises and gravity gets the access boost. Nodes missing
// an embedding for the current model are embedded and persisted on the way.
func (e *Engine) Recall(ctx context.Context, subject, query string, opts RecallOptions) (*RecallResult, error) {
	if err := requireSubject("recall", subject); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Validation("recall", "query is required")
	}
	if opts.MinGravity < 0 {
		return nil, apperr.Validation("recall", "minGravity must be non-negative")
	}
	limit := opts.MaxResults
	if limit <= 0 {
		limit = e.recall.MaxResults
	}
	result := &RecallResult{Query: query, Results: []ScoredNode{}}

	qvec, err := e.embed.Embed(ctx, query)
	if err != nil {
		return nil, wrap("recall", err)
	}

	r := e.reader()
	graph, err := r.GetGraphBySubject(ctx, subject)
	if errors.Is(err, apperr.ErrNotFound) {
		return result, nil
	}
	if err != nil {
		return nil, wrap("recall", err)
	}
	candidates, err := r.ListNodes(ctx, graph.ID, store.NodeFilter{
		Types:      opts.NodeTypes,
		Tags:       opts.Tags,
		MinGravity: opts.MinGravity,
	})
	if err != nil {
		return nil, wrap("recall", err)
	}
	if len(candidates) == 0 {
		return result, nil
	}

	vectors, err := r.VectorsForGraph(ctx, graph.ID)
	if err != nil {
		return nil, wrap("recall", err)
	}
	fresh, err := e.embedMissing(ctx, candidates, vectors, len(qvec))
	if err != nil {
		return nil, wrap("recall", err)
	}

	ranked := e.rank(qvec, candidates, vectors, fresh)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	// Persisting fresh vectors and the access boost are best-effort: on
	// failure the ranking is still returned as computed.
	var touched []ScoredNode
	err = e.mutate(ctx, subject, func(q *store.Queries) error {
		for id, vec := range fresh {
			if err := q.SaveVector(ctx, id, vec, e.embed.Model()); err != nil {
				return err
			}
		}
		ids := make([]int64, 0, len(ranked))
		for _, hit := range ranked {
			err := q.TouchAccess(ctx, hit.Node.ID, e.memory.BoostFactor)
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			ids = append(ids, hit.Node.ID)
		}
		nodes, err := q.GetNodesByIDs(ctx, ids)
		if err != nil {
			return err
		}
		byID := make(map[int64]store.Node, len(nodes))
		for _, n := range nodes {
			byID[n.ID] = n
		}
		for _, hit := range ranked {
			if n, ok := byID[hit.Node.ID]; ok {
				hit.Node = n
				touched = append(touched, hit)
			}
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("recall: access update failed")
		touched = ranked
	}
	result.Results = append(result.Results, touched...)

	if opts.IncludeEdges == nil || *opts.IncludeEdges {
		result.Context, err = e.oneHop(ctx, result.Results)
		if err != nil {
			return nil, wrap("recall", err)
		}
	}

	log.Debug().Str("subject", subject).Int("candidates", len(candidates)).
		Int("results", len(result.Results)).Int("context", len(result.Context)).Msg("recall")
	return result, nil
}

// embedMissing embeds candidates whose stored vector is absent, was made by a
// different model, or has the wrong length.
func (e *Engine) embedMissing(ctx context.Context, nodes []store.Node, vectors map[int64]store.VectorRecord, dims int) (map[int64][]float64, error) {
	model := e.embed.Model()
	var ids []int64
	var texts []string
	for _, n := range nodes {
		v, ok := vectors[n.ID]
		if ok && v.Model == model && len(v.Embedding) == dims {
			continue
		}
		ids = append(ids, n.ID)
		texts = append(texts, n.Content)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	vecs, err := e.embed.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	fresh := make(map[int64][]float64, len(ids))
	for i, id := range ids {
		fresh[id] = vecs[i]
	}
	log.Debug().Int("count", len(ids)).Str("model", model).Msg("recall: embedded missing vectors")
	return fresh, nil
}

// rank scores candidates and sorts them by score, then most recent access,
// then id.
func (e *Engine) rank(qvec []float64, nodes []store.Node, vectors map[int64]store.VectorRecord, fresh map[int64][]float64) []ScoredNode {
	var maxGravity float64
	for _, n := range nodes {
		maxGravity = max(maxGravity, n.Gravity)
	}

	scored := make([]ScoredNode, 0, len(nodes))
	for _, n := range nodes {
		vec, ok := fresh[n.ID]
		if !ok {
			vec = vectors[n.ID].Embedding
		}
		sim, err := vecmath.Cosine(qvec, vec)
		if err != nil {
			log.Warn().Err(err).Int64("node", n.ID).Msg("recall: skip node")
			continue
		}
		scored = append(scored, ScoredNode{
			Node:       n,
			Similarity: sim,
			Score:      Score(e.recall.SimilarityWeight, e.recall.GravityWeight, e.recall.DepthWeight, sim, n.Gravity, maxGravity, n.Depth),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Node.LastAccessedAt != b.Node.LastAccessedAt {
			return a.Node.LastAccessedAt > b.Node.LastAccessedAt
		}
		return a.Node.ID < b.Node.ID
	})
	return scored
}

// Score blends similarity, normalized gravity and closeness to the core.
// With positive weights it rises strictly with similarity and with gravity,
// and falls strictly with depth.
func Score(wSim, wGrav, wDepth, similarity, gravity, maxGravity, depth float64) float64 {
	var g float64
	if maxGravity > 0 {
		g = gravity / maxGravity
	}
	return wSim*similarity + wGrav*g + wDepth*(1/(1+depth))
}

// oneHop collects the targets of every outgoing edge of the ranked hits,
// including targets that are ranked themselves. Each (hit, target) pair
// appears once, via its heaviest edge.
func (e *Engine) oneHop(ctx context.Context, hits []ScoredNode) ([]ContextNode, error) {
	if len(hits) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.Node.ID
	}

	r := e.reader()
	edges, err := r.ListOutgoingEdges(ctx, ids)
	if err != nil {
		return nil, err
	}
	type pair struct{ source, target int64 }
	seen := make(map[pair]bool, len(edges))
	var via []store.Edge
	var targets []int64
	for _, edge := range edges {
		p := pair{edge.SourceID, edge.TargetID}
		if seen[p] {
			continue
		}
		seen[p] = true
		via = append(via, edge)
		targets = append(targets, edge.TargetID)
	}
	if len(via) == 0 {
		return nil, nil
	}

	nodes, err := r.GetNodesByIDs(ctx, targets)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]store.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	out := make([]ContextNode, 0, len(via))
	for _, edge := range via {
		if n, ok := byID[edge.TargetID]; ok {
			out = append(out, ContextNode{Node: n, Via: edge})
		}
	}
	return out, nil
}
