package engine

import (
	"context"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lazypower/lattice/internal/apperr"
	"github.com/lazypower/lattice/internal/store"
)

// RememberParams describes a new memory. Nil pointers take configured defaults.
type RememberParams struct {
	Content      string
	NodeType     string
	Salience     *float64
	Gravity      *float64
	Depth        *float64
	Confidence   *float64
	Tags         []string
	SourceType   string
	SourceID     string
	RelatedTo    []int64
	RelationType string // for RelatedTo edges; default "references"
}

// RememberResult is the stored node plus any edges created alongside it.
// Duplicate is set when identical content already existed; no node was
// written, but missing RelatedTo edges from the existing node are created.
type RememberResult struct {
	Node      *store.Node  `json:"node"`
	Edges     []store.Edge `json:"edges,omitempty"`
	Duplicate bool         `json:"duplicate"`
}

// Remember stores content as a node in the subject's graph, creating the
// graph on first use. The embedding is computed before the subject lock is
// taken so slow providers never block other writers.
func (e *Engine) Remember(ctx context.Context, subject string, p RememberParams) (*RememberResult, error) {
	if err := requireSubject("remember", subject); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Content) == "" {
		return nil, apperr.Validation("remember", "content is required")
	}
	if !slices.Contains(store.NodeTypes, p.NodeType) {
		return nil, apperr.Validation("remember", "unknown node type %q", p.NodeType)
	}
	relation := p.RelationType
	if relation == "" {
		relation = "references"
	}
	if !slices.Contains(store.RelationTypes, relation) {
		return nil, apperr.Validation("remember", "unknown relation type %q", relation)
	}

	vec, err := e.embed.Embed(ctx, p.Content)
	if err != nil {
		return nil, wrap("remember", err)
	}

	var result RememberResult
	err = e.mutate(ctx, subject, func(q *store.Queries) error {
		graph, err := q.GetOrCreateGraph(ctx, subject)
		if err != nil {
			return err
		}
		existing, err := q.FindNodeByHash(ctx, graph.ID, store.ContentHash(p.Content))
		if err != nil {
			return err
		}
		if existing != nil {
			result = RememberResult{Node: existing, Duplicate: true}
			return e.relateTo(ctx, q, &result, p.RelatedTo, relation)
		}

		node, err := q.CreateNode(ctx, store.NewNode{
			GraphID:    graph.ID,
			Content:    p.Content,
			NodeType:   p.NodeType,
			Salience:   orDefault(p.Salience, e.memory.DefaultSalience),
			Gravity:    p.Gravity,
			Depth:      orDefault(p.Depth, e.memory.DefaultDepth),
			Confidence: p.Confidence,
			SourceType: p.SourceType,
			SourceID:   p.SourceID,
			Tags:       p.Tags,
		})
		if err != nil {
			return err
		}
		if err := q.SaveVector(ctx, node.ID, vec, e.embed.Model()); err != nil {
			return err
		}

		result.Node = node
		return e.relateTo(ctx, q, &result, p.RelatedTo, relation)
	})
	if err != nil {
		return nil, wrap("remember", err)
	}

	log.Debug().Str("subject", subject).Int64("node", result.Node.ID).
		Bool("duplicate", result.Duplicate).Int("edges", len(result.Edges)).Msg("remember")
	return &result, nil
}

// relateTo links the remembered node to each target, skipping edges that
// already exist. New edges are appended to res.Edges.
func (e *Engine) relateTo(ctx context.Context, q *store.Queries, res *RememberResult, targets []int64, relation string) error {
	for _, target := range targets {
		exists, err := q.EdgeExists(ctx, res.Node.ID, target, relation)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		edge, err := q.CreateEdge(ctx, res.Node.ID, target, relation, nil, "")
		if err != nil {
			return err
		}
		res.Edges = append(res.Edges, *edge)
	}
	return nil
}

// RelateParams describes a directed edge between two nodes of one subject.
type RelateParams struct {
	SourceID     int64
	TargetID     int64
	RelationType string
	Weight       *float64
	Context      string
}

// Relate creates an edge. Both endpoints must belong to the subject's graph.
func (e *Engine) Relate(ctx context.Context, subject string, p RelateParams) (*store.Edge, error) {
	if err := requireSubject("relate", subject); err != nil {
		return nil, err
	}
	var edge *store.Edge
	err := e.mutate(ctx, subject, func(q *store.Queries) error {
		if _, _, err := graphInScope(ctx, q, subject, p.SourceID); err != nil {
			return err
		}
		var err error
		edge, err = q.CreateEdge(ctx, p.SourceID, p.TargetID, p.RelationType, p.Weight, p.Context)
		return err
	})
	if err != nil {
		return nil, wrap("relate", err)
	}
	return edge, nil
}

// ObserveParams describes a ledger entry.
type ObserveParams struct {
	EntryType     string
	Content       string
	Confidence    *float64
	RelatedNodeID *int64
	Actor         string
}

// Observe appends to the subject's ledger. A related node, when given, must
// exist in the subject's graph at write time.
func (e *Engine) Observe(ctx context.Context, subject string, p ObserveParams) (*store.LedgerEntry, error) {
	if err := requireSubject("observe", subject); err != nil {
		return nil, err
	}
	var entry *store.LedgerEntry
	err := e.mutate(ctx, subject, func(q *store.Queries) error {
		if p.RelatedNodeID != nil {
			if _, _, err := graphInScope(ctx, q, subject, *p.RelatedNodeID); err != nil {
				return err
			}
		}
		var err error
		entry, err = q.AppendLedger(ctx, subject, p.EntryType, p.Content, p.Confidence, p.RelatedNodeID, p.Actor)
		return err
	})
	if err != nil {
		return nil, wrap("observe", err)
	}
	return entry, nil
}
