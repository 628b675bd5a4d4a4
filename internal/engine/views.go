package engine

import (
	"context"
	"errors"
	"time"

	"github.com/lazypower/lattice/internal/apperr"
	"github.com/lazypower/lattice/internal/embedding"
	"github.com/lazypower/lattice/internal/store"
	"github.com/lazypower/lattice/internal/vecmath"
)

// Position summarizes where the subject sits in embedding space. Core is
// the centroid of the highest-gravity nodes, recent the centroid of the
// newest ones.
type Position struct {
	Dimensions  int     `json:"dimensions"`
	CoreNodes   int     `json:"coreNodes"`
	RecentNodes int     `json:"recentNodes"`
	Coherence   float64 `json:"coherence"` // mean cosine of core nodes to the core centroid
	Drift       float64 `json:"drift"`     // distance between core and recent centroids
}

// WhoAmIResult is the read-only composite identity view.
type WhoAmIResult struct {
	SubjectID    string              `json:"subjectId"`
	Exists       bool                `json:"exists"`
	Graph        *store.Graph        `json:"graph,omitempty"`
	Position     *Position           `json:"position,omitempty"`
	Modalities   map[string]int      `json:"modalities"`
	AvgGravity   float64             `json:"avgGravity"`
	AvgDepth     float64             `json:"avgDepth"`
	TopNodes     []store.Node        `json:"topNodes"`
	RecentLedger []store.LedgerEntry `json:"recentLedger"`
}

// WhoAmI reports the subject's identity summary. It never mutates anything,
// including access counters.
func (e *Engine) WhoAmI(ctx context.Context, subject string) (*WhoAmIResult, error) {
	if err := requireSubject("who_am_i", subject); err != nil {
		return nil, err
	}
	r := e.reader()
	out := &WhoAmIResult{
		SubjectID:    subject,
		Modalities:   map[string]int{},
		TopNodes:     []store.Node{},
		RecentLedger: []store.LedgerEntry{},
	}

	ledger, err := r.ListRecentLedger(ctx, subject, e.memory.LedgerLimit)
	if err != nil {
		return nil, wrap("who_am_i", err)
	}
	if ledger != nil {
		out.RecentLedger = ledger
	}

	graph, err := r.GetGraphBySubject(ctx, subject)
	if errors.Is(err, apperr.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, wrap("who_am_i", err)
	}
	out.Exists = true
	out.Graph = graph

	stats, err := r.GraphStats(ctx, graph.ID, 0)
	if err != nil {
		return nil, wrap("who_am_i", err)
	}
	out.Modalities = stats.Modalities
	out.AvgGravity = stats.AvgGravity
	out.AvgDepth = stats.AvgDepth

	top, err := r.ListNodes(ctx, graph.ID, store.NodeFilter{Limit: e.memory.TopNodes})
	if err != nil {
		return nil, wrap("who_am_i", err)
	}
	recent, err := r.ListRecentNodes(ctx, graph.ID, e.memory.TopNodes)
	if err != nil {
		return nil, wrap("who_am_i", err)
	}
	if top != nil {
		out.TopNodes = top
	}

	vectors, err := r.VectorsForGraph(ctx, graph.ID)
	if err != nil {
		return nil, wrap("who_am_i", err)
	}
	out.Position = position(top, recent, vectors)
	return out, nil
}

// position computes centroids over whichever nodes have vectors of the
// dominant length. It returns nil when no core node has a vector.
func position(core, recent []store.Node, vectors map[int64]store.VectorRecord) *Position {
	coreVecs := vectorsOf(core, vectors, 0)
	if len(coreVecs) == 0 {
		return nil
	}
	dims := len(coreVecs[0])
	recentVecs := vectorsOf(recent, vectors, dims)

	centroid, err := vecmath.Centroid(coreVecs)
	if err != nil {
		return nil
	}
	p := &Position{Dimensions: dims, CoreNodes: len(coreVecs), RecentNodes: len(recentVecs)}

	var total float64
	for _, v := range coreVecs {
		sim, _ := vecmath.Cosine(v, centroid)
		total += sim
	}
	p.Coherence = total / float64(len(coreVecs))

	if len(recentVecs) > 0 {
		recentCentroid, err := vecmath.Centroid(recentVecs)
		if err == nil {
			p.Drift, _ = vecmath.Euclidean(centroid, recentCentroid)
		}
	}
	return p
}

// vectorsOf returns embeddings for nodes, keeping only vectors of length dims
// (or of the first vector's length when dims is 0).
func vectorsOf(nodes []store.Node, vectors map[int64]store.VectorRecord, dims int) [][]float64 {
	var out [][]float64
	for _, n := range nodes {
		v, ok := vectors[n.ID]
		if !ok || len(v.Embedding) == 0 {
			continue
		}
		if dims == 0 {
			dims = len(v.Embedding)
		}
		if len(v.Embedding) == dims {
			out = append(out, v.Embedding)
		}
	}
	return out
}

// Activity counts what happened in a recent window.
type Activity struct {
	Since         int64 `json:"since"`
	NodesCreated  int   `json:"nodesCreated"`
	NodesAccessed int   `json:"nodesAccessed"`
	LedgerEntries int   `json:"ledgerEntries"`
}

// StatusResult holds aggregate graph statistics.
type StatusResult struct {
	SubjectID      string          `json:"subjectId"`
	Exists         bool            `json:"exists"`
	NodeCount      int             `json:"nodeCount"`
	EdgeCount      int             `json:"edgeCount"`
	Version        int64           `json:"version"`
	AvgDepth       float64         `json:"avgDepth"`
	AvgGravity     float64         `json:"avgGravity"`
	TopNodes       []store.Node    `json:"topNodes"`
	Recent         Activity        `json:"recent"`
	Modalities     map[string]int  `json:"modalities"`
	OldestMemoryAt *int64          `json:"oldestMemoryAt,omitempty"`
	NewestMemoryAt *int64          `json:"newestMemoryAt,omitempty"`
	Embedding      embedding.Stats `json:"embedding"`
}

// StatusWindow is the span covered by StatusResult.Recent.
const StatusWindow = 24 * time.Hour

// Status reports aggregate statistics. It is read-only and idempotent.
func (e *Engine) Status(ctx context.Context, subject string) (*StatusResult, error) {
	if err := requireSubject("status", subject); err != nil {
		return nil, err
	}
	since := time.Now().Add(-StatusWindow).UnixMilli()
	r := e.reader()
	out := &StatusResult{
		SubjectID:  subject,
		TopNodes:   []store.Node{},
		Modalities: map[string]int{},
		Recent:     Activity{Since: since},
		Embedding:  e.embed.Stats(),
	}

	ledgerCount, err := r.CountLedgerSince(ctx, subject, since)
	if err != nil {
		return nil, wrap("status", err)
	}
	out.Recent.LedgerEntries = ledgerCount

	graph, err := r.GetGraphBySubject(ctx, subject)
	if errors.Is(err, apperr.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, wrap("status", err)
	}
	out.Exists = true
	out.NodeCount = graph.NodeCount
	out.EdgeCount = graph.EdgeCount
	out.Version = graph.Version
	out.OldestMemoryAt = graph.OldestMemoryAt
	out.NewestMemoryAt = graph.NewestMemoryAt

	stats, err := r.GraphStats(ctx, graph.ID, since)
	if err != nil {
		return nil, wrap("status", err)
	}
	out.AvgDepth = stats.AvgDepth
	out.AvgGravity = stats.AvgGravity
	out.Modalities = stats.Modalities
	out.Recent.NodesCreated = stats.NodesCreatedSince
	out.Recent.NodesAccessed = stats.NodesAccessedSince

	top, err := r.ListNodes(ctx, graph.ID, store.NodeFilter{Limit: e.memory.TopNodes})
	if err != nil {
		return nil, wrap("status", err)
	}
	if top != nil {
		out.TopNodes = top
	}
	return out, nil
}

// Snapshot is a read-only copy of a subject's graph and recent ledger.
type Snapshot struct {
	SubjectID string              `json:"subjectId"`
	Graph     *store.Graph        `json:"graph,omitempty"`
	Nodes     []store.Node        `json:"nodes"`
	Edges     []store.Edge        `json:"edges"`
	Ledger    []store.LedgerEntry `json:"ledger"`
}

// Snapshot loads the subject's nodes, edges and recent ledger. A subject
// without a graph yields an empty snapshot.
func (e *Engine) Snapshot(ctx context.Context, subject string) (*Snapshot, error) {
	if err := requireSubject("snapshot", subject); err != nil {
		return nil, err
	}
	r := e.reader()
	snap := &Snapshot{SubjectID: subject}

	ledger, err := r.ListRecentLedger(ctx, subject, e.memory.LedgerLimit)
	if err != nil {
		return nil, wrap("snapshot", err)
	}
	snap.Ledger = ledger

	graph, err := r.GetGraphBySubject(ctx, subject)
	if errors.Is(err, apperr.ErrNotFound) {
		return snap, nil
	}
	if err != nil {
		return nil, wrap("snapshot", err)
	}
	snap.Graph = graph

	if snap.Nodes, err = r.ListNodes(ctx, graph.ID, store.NodeFilter{}); err != nil {
		return nil, wrap("snapshot", err)
	}
	if snap.Edges, err = r.ListEdgesForGraph(ctx, graph.ID); err != nil {
		return nil, wrap("snapshot", err)
	}
	return snap, nil
}

// Node returns the snapshot node with id, if present.
func (s *Snapshot) Node(id int64) (store.Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return store.Node{}, false
}

// HasEdge reports whether an identical edge already exists.
func (s *Snapshot) HasEdge(source, target int64, relation string) bool {
	for _, e := range s.Edges {
		if e.SourceID == source && e.TargetID == target && e.RelationType == relation {
			return true
		}
	}
	return false
}

// Tags returns every tag used in the snapshot.
func (s *Snapshot) Tags() []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range s.Nodes {
		for _, t := range n.Tags {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}
