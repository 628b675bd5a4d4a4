package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/lattice/internal/apperr"
	"github.com/lazypower/lattice/internal/config"
	"github.com/lazypower/lattice/internal/embedding"
	"github.com/lazypower/lattice/internal/store"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := embedding.NewService(embedding.NewHashing(2048), embedding.Options{CacheSize: 100, BatchSize: 4})
	return New(db, svc, config.Default())
}

func remember(t *testing.T, e *Engine, subject, content string, tags ...string) *store.Node {
	t.Helper()
	res, err := e.Remember(context.Background(), subject, RememberParams{
		Content:  content,
		NodeType: "insight",
		Tags:     tags,
	})
	require.NoError(t, err)
	require.False(t, res.Duplicate)
	return res.Node
}

func ptr[T any](v T) *T { return &v }

func TestRememberCreatesGraph(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	node := remember(t, e, "s1", "Prefers async communication", "communication")
	assert.Equal(t, 1.0, node.Salience)
	assert.Equal(t, 1.0, node.Gravity)
	assert.Equal(t, 0.5, node.Depth)
	assert.Equal(t, []string{"communication"}, node.Tags)

	graph, err := e.DB().GetGraphBySubject(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, graph.NodeCount)
	assert.Equal(t, graph.ID, node.GraphID)

	vec, err := e.DB().GetVector(ctx, node.ID)
	require.NoError(t, err)
	require.NotNil(t, vec)
	assert.Equal(t, "hashing-v1", vec.Model)
}

func TestRememberDuplicateReturnsExisting(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	first := remember(t, e, "s1", "Prefers async communication")

	res, err := e.Remember(ctx, "s1", RememberParams{Content: "  Prefers async communication ", NodeType: "fact"})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, first.ID, res.Node.ID)

	graph, err := e.DB().GetGraphBySubject(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, graph.NodeCount)

	// Same content under another subject is a separate memory.
	other := remember(t, e, "s2", "Prefers async communication")
	assert.NotEqual(t, first.ID, other.ID)
}

func TestRememberDuplicateAddsMissingRelations(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	first := remember(t, e, "s1", "Prefers async communication")
	tz := remember(t, e, "s1", "Works across timezones")
	focus := remember(t, e, "s1", "Protects deep work mornings")

	params := RememberParams{
		Content:      "Prefers async communication",
		NodeType:     "insight",
		RelatedTo:    []int64{tz.ID},
		RelationType: "causes",
	}
	res, err := e.Remember(ctx, "s1", params)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, first.ID, res.Node.ID)
	require.Len(t, res.Edges, 1)
	assert.Equal(t, first.ID, res.Edges[0].SourceID)
	assert.Equal(t, tz.ID, res.Edges[0].TargetID)

	// Existing edges are skipped, new ones are added.
	params.RelatedTo = []int64{tz.ID, focus.ID}
	res, err = e.Remember(ctx, "s1", params)
	require.NoError(t, err)
	require.Len(t, res.Edges, 1)
	assert.Equal(t, focus.ID, res.Edges[0].TargetID)

	edges, err := e.DB().ListEdgesForNode(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	graph, err := e.DB().GetGraphBySubject(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, graph.NodeCount)
	assert.Equal(t, 2, graph.EdgeCount)
}

func TestRememberValidation(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	_, err := e.Remember(ctx, "s1", RememberParams{Content: "", NodeType: "insight"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = e.Remember(ctx, "s1", RememberParams{Content: "x", NodeType: "nonsense"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = e.Remember(ctx, "", RememberParams{Content: "x", NodeType: "insight"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestRememberWithRelatedIsAtomic(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	base := remember(t, e, "s1", "Uses Go for backend services")

	res, err := e.Remember(ctx, "s1", RememberParams{
		Content:   "Likes small composable packages",
		NodeType:  "pattern",
		RelatedTo: []int64{base.ID},
	})
	require.NoError(t, err)
	require.Len(t, res.Edges, 1)
	assert.Equal(t, "references", res.Edges[0].RelationType)
	assert.Equal(t, base.ID, res.Edges[0].TargetID)

	_, err = e.Remember(ctx, "s1", RememberParams{
		Content:   "Points at nothing",
		NodeType:  "insight",
		RelatedTo: []int64{9999},
	})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	graph, err := e.DB().GetGraphBySubject(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, graph.NodeCount, "failed remember leaves no node behind")
	assert.Equal(t, 1, graph.EdgeCount)
}

func TestRecallScenario(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	async := remember(t, e, "s1", "Prefers async communication", "communication")
	remember(t, e, "s1", "Enjoys hiking on weekends")
	remember(t, e, "s1", "Works mostly in Python")

	res, err := e.Recall(ctx, "s1", "communication style", RecallOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, async.ID, res.Results[0].Node.ID)
	assert.Greater(t, res.Results[0].Similarity, 0.0)

	for _, hit := range res.Results {
		assert.Equal(t, 1, hit.Node.AccessCount)
	}
}

func TestRecallEmptyGraph(t *testing.T) {
	e := testEngine(t)
	res, err := e.Recall(context.Background(), "nobody", "anything", RecallOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Empty(t, res.Context)

	_, err = e.Recall(context.Background(), "nobody", "  ", RecallOptions{})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestRecallSubjectIsolation(t *testing.T) {
	e := testEngine(t)
	remember(t, e, "s1", "Prefers async communication")

	res, err := e.Recall(context.Background(), "s2", "async communication", RecallOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
}

func TestRecallHigherGravityRanksHigher(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	// Same bag of words, so the hashing embedder gives equal similarity.
	low, err := e.Remember(ctx, "s1", RememberParams{Content: "alpha beta", NodeType: "fact", Gravity: ptr(0.2)})
	require.NoError(t, err)
	high, err := e.Remember(ctx, "s1", RememberParams{Content: "beta alpha", NodeType: "fact", Gravity: ptr(0.9)})
	require.NoError(t, err)

	res, err := e.Recall(ctx, "s1", "alpha beta", RecallOptions{})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, high.Node.ID, res.Results[0].Node.ID)
	assert.Equal(t, low.Node.ID, res.Results[1].Node.ID)
	assert.InDelta(t, res.Results[0].Similarity, res.Results[1].Similarity, 1e-9)
}

func TestRecallShallowerRanksHigher(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	deep, err := e.Remember(ctx, "s1", RememberParams{Content: "gamma delta", NodeType: "fact", Depth: ptr(3.0)})
	require.NoError(t, err)
	shallow, err := e.Remember(ctx, "s1", RememberParams{Content: "delta gamma", NodeType: "fact", Depth: ptr(0.0)})
	require.NoError(t, err)

	res, err := e.Recall(ctx, "s1", "gamma delta", RecallOptions{})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, shallow.Node.ID, res.Results[0].Node.ID)
	assert.Equal(t, deep.Node.ID, res.Results[1].Node.ID)
}

func TestRecallFiltersAndLimit(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	remember(t, e, "s1", "Deploys with Kubernetes", "infra")
	remember(t, e, "s1", "Monitors with Prometheus", "infra")
	remember(t, e, "s1", "Drinks coffee at noon", "habits")

	res, err := e.Recall(ctx, "s1", "infrastructure tooling", RecallOptions{Tags: []string{"infra"}})
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)
	for _, hit := range res.Results {
		assert.Contains(t, hit.Node.Tags, "infra")
	}

	res, err = e.Recall(ctx, "s1", "anything", RecallOptions{MaxResults: 1})
	require.NoError(t, err)
	assert.Len(t, res.Results, 1)

	res, err = e.Recall(ctx, "s1", "anything", RecallOptions{NodeTypes: []string{"decision"}})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
}

func TestRecallOneHopContext(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	target := remember(t, e, "s1", "Sleeps poorly before launches")
	res, err := e.Remember(ctx, "s1", RememberParams{
		Content:      "Ships releases on Fridays",
		NodeType:     "pattern",
		RelatedTo:    []int64{target.ID},
		RelationType: "causes",
	})
	require.NoError(t, err)

	got, err := e.Recall(ctx, "s1", "ships releases fridays", RecallOptions{MaxResults: 1})
	require.NoError(t, err)
	require.Len(t, got.Results, 1)
	assert.Equal(t, res.Node.ID, got.Results[0].Node.ID)
	require.Len(t, got.Context, 1)
	assert.Equal(t, target.ID, got.Context[0].Node.ID)
	assert.Equal(t, "causes", got.Context[0].Via.RelationType)

	// Context nodes are not touched.
	n, err := e.DB().GetNode(ctx, target.ID)
	require.NoError(t, err)
	assert.Zero(t, n.AccessCount)

	got, err = e.Recall(ctx, "s1", "ships releases fridays", RecallOptions{MaxResults: 1, IncludeEdges: ptr(false)})
	require.NoError(t, err)
	assert.Empty(t, got.Context)
}

func TestRecallContextIncludesRankedTargets(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	a := remember(t, e, "s1", "Prefers async communication")
	b := remember(t, e, "s1", "Works across timezones")
	_, err := e.Relate(ctx, "s1", RelateParams{SourceID: a.ID, TargetID: b.ID, RelationType: "causes"})
	require.NoError(t, err)

	got, err := e.Recall(ctx, "s1", "Prefers async communication", RecallOptions{})
	require.NoError(t, err)
	require.Len(t, got.Results, 2)
	assert.Equal(t, a.ID, got.Results[0].Node.ID)

	var contextIDs []int64
	for _, c := range got.Context {
		contextIDs = append(contextIDs, c.Node.ID)
		assert.Equal(t, a.ID, c.Via.SourceID)
	}
	assert.Equal(t, []int64{b.ID}, contextIDs)
}

func TestRecallEmbedsMissingVectors(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	graph, err := e.DB().GetOrCreateGraph(ctx, "s1")
	require.NoError(t, err)
	node, err := e.DB().CreateNode(ctx, store.NewNode{GraphID: graph.ID, Content: "imported memory", NodeType: "fact", Salience: 1})
	require.NoError(t, err)

	res, err := e.Recall(ctx, "s1", "imported memory", RecallOptions{})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)

	vec, err := e.DB().GetVector(ctx, node.ID)
	require.NoError(t, err)
	require.NotNil(t, vec)
	assert.Equal(t, "hashing-v1", vec.Model)
}

func TestRecallAccessBoostRespectsSalience(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	res, err := e.Remember(ctx, "s1", RememberParams{Content: "boost me", NodeType: "fact", Salience: ptr(2.0), Gravity: ptr(1.0)})
	require.NoError(t, err)

	got, err := e.Recall(ctx, "s1", "boost me", RecallOptions{})
	require.NoError(t, err)
	require.Len(t, got.Results, 1)
	assert.InDelta(t, 1.1, got.Results[0].Node.Gravity, 1e-9)

	for i := 0; i < 20; i++ {
		_, err := e.Recall(ctx, "s1", "boost me", RecallOptions{})
		require.NoError(t, err)
	}
	n, err := e.DB().GetNode(ctx, res.Node.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, n.Gravity)
}

func TestScoreMonotonic(t *testing.T) {
	base := Score(0.6, 0.3, 0.1, 0.5, 1, 2, 1)
	assert.Greater(t, Score(0.6, 0.3, 0.1, 0.6, 1, 2, 1), base)
	assert.Greater(t, Score(0.6, 0.3, 0.1, 0.5, 1.5, 2, 1), base)
	assert.Less(t, Score(0.6, 0.3, 0.1, 0.5, 1, 2, 2), base)
	assert.NotPanics(t, func() { Score(0.6, 0.3, 0.1, 0.5, 0, 0, 0) })
}

func TestForget(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	node := remember(t, e, "s1", "Used to live in Berlin")

	got, err := e.Forget(ctx, "s1", node.ID, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, got.Depth, 1e-9)
	assert.Equal(t, node.Content, got.Content)

	got, err = e.Forget(ctx, "s1", node.ID, ptr(2.0))
	require.NoError(t, err)
	assert.InDelta(t, 2.6, got.Depth, 1e-9)

	_, err = e.Forget(ctx, "s1", node.ID, ptr(-1.0))
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = e.Forget(ctx, "s1", 9999, nil)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	remember(t, e, "s2", "Other subject")
	_, err = e.Forget(ctx, "s2", node.ID, nil)
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "nodes of other subjects are invisible")
}

func TestReinforceUnionAndClamp(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	mk := func(content string, tags ...string) *store.Node {
		res, err := e.Remember(ctx, "s1", RememberParams{
			Content: content, NodeType: "fact", Salience: ptr(1.0), Gravity: ptr(0.2), Tags: tags,
		})
		require.NoError(t, err)
		return res.Node
	}
	a := mk("tagged one", "work")
	b := mk("tagged two", "work")
	c := mk("untagged")
	d := mk("left alone")

	res, err := e.Reinforce(ctx, "s1", ReinforceParams{Tags: []string{"WORK"}, NodeIDs: []int64{c.ID, a.ID}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Affected)
	assert.ElementsMatch(t, []int64{a.ID, b.ID, c.ID}, res.NodeIDs)

	for _, id := range []int64{a.ID, b.ID, c.ID} {
		n, err := e.DB().GetNode(ctx, id)
		require.NoError(t, err)
		assert.InDelta(t, 0.7, n.Gravity, 1e-9)
	}
	n, err := e.DB().GetNode(ctx, d.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, n.Gravity, 1e-9)

	_, err = e.Reinforce(ctx, "s1", ReinforceParams{NodeIDs: []int64{a.ID}, Amount: ptr(5.0)})
	require.NoError(t, err)
	n, err = e.DB().GetNode(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, n.Gravity, "clamped to salience")
}

func TestReinforceNoMatchIsNoop(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	res, err := e.Reinforce(ctx, "ghost", ReinforceParams{Tags: []string{"nothing"}})
	require.NoError(t, err)
	assert.Zero(t, res.Affected)

	remember(t, e, "s1", "something")
	res, err = e.Reinforce(ctx, "s1", ReinforceParams{Tags: []string{"nothing"}, NodeIDs: []int64{9999}})
	require.NoError(t, err)
	assert.Zero(t, res.Affected)

	_, err = e.Reinforce(ctx, "s1", ReinforceParams{})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestConcurrentReinforceSerializes(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	res, err := e.Remember(ctx, "s1", RememberParams{Content: "contended", NodeType: "fact", Salience: ptr(5.0), Gravity: ptr(1.0)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Reinforce(ctx, "s1", ReinforceParams{NodeIDs: []int64{res.Node.ID}, Amount: ptr(0.5)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := e.DB().GetNode(ctx, res.Node.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, n.Gravity)
}

func TestRelate(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	a := remember(t, e, "s1", "first")
	b := remember(t, e, "s1", "second")
	other := remember(t, e, "s2", "elsewhere")

	edge, err := e.Relate(ctx, "s1", RelateParams{SourceID: a.ID, TargetID: b.ID, RelationType: "supports", Weight: ptr(0.4)})
	require.NoError(t, err)
	assert.Equal(t, 0.4, edge.Weight)

	_, err = e.Relate(ctx, "s1", RelateParams{SourceID: a.ID, TargetID: b.ID, RelationType: "supports"})
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	_, err = e.Relate(ctx, "s1", RelateParams{SourceID: a.ID, TargetID: other.ID, RelationType: "supports"})
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	_, err = e.Relate(ctx, "s1", RelateParams{SourceID: a.ID, TargetID: b.ID, RelationType: "likes"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = e.Relate(ctx, "s1", RelateParams{SourceID: 9999, TargetID: b.ID, RelationType: "supports"})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestObserve(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	entry, err := e.Observe(ctx, "s1", ObserveParams{EntryType: "observation", Content: "Asked about deadlines twice", Actor: "tutor"})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.EntryID)
	assert.Equal(t, 1.0, entry.Confidence)

	other := remember(t, e, "s2", "not yours")
	_, err = e.Observe(ctx, "s1", ObserveParams{EntryType: "inference", Content: "x", RelatedNodeID: &other.ID})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = e.Observe(ctx, "s1", ObserveParams{EntryType: "gossip", Content: "x"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestWhoAmIIsReadOnly(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	a := remember(t, e, "s1", "Prefers async communication")
	remember(t, e, "s1", "Enjoys hiking on weekends")
	_, err := e.Observe(ctx, "s1", ObserveParams{EntryType: "pattern", Content: "Writes late at night"})
	require.NoError(t, err)

	before, err := e.DB().GetGraphBySubject(ctx, "s1")
	require.NoError(t, err)

	who, err := e.WhoAmI(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, who.Exists)
	assert.Len(t, who.TopNodes, 2)
	assert.Len(t, who.RecentLedger, 1)
	assert.Equal(t, 2, who.Modalities["insight"])
	require.NotNil(t, who.Position)
	assert.Equal(t, 2048, who.Position.Dimensions)
	assert.Greater(t, who.Position.Coherence, 0.0)

	after, err := e.DB().GetGraphBySubject(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	n, err := e.DB().GetNode(ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, n.AccessCount)

	empty, err := e.WhoAmI(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, empty.Exists)
	assert.Nil(t, empty.Position)
}

func TestStatus(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	a := remember(t, e, "s1", "one")
	b := remember(t, e, "s1", "two")
	_, err := e.Relate(ctx, "s1", RelateParams{SourceID: a.ID, TargetID: b.ID, RelationType: "temporal"})
	require.NoError(t, err)
	_, err = e.Observe(ctx, "s1", ObserveParams{EntryType: "observation", Content: "noted"})
	require.NoError(t, err)
	_, err = e.Recall(ctx, "s1", "one", RecallOptions{MaxResults: 1})
	require.NoError(t, err)

	st, err := e.Status(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, st.Exists)
	assert.Equal(t, 2, st.NodeCount)
	assert.Equal(t, 1, st.EdgeCount)
	assert.Equal(t, 2, st.Recent.NodesCreated)
	assert.Equal(t, 1, st.Recent.NodesAccessed)
	assert.Equal(t, 1, st.Recent.LedgerEntries)
	assert.InDelta(t, 0.5, st.AvgDepth, 1e-9)
	assert.Len(t, st.TopNodes, 2)
	assert.NotNil(t, st.OldestMemoryAt)
	assert.Equal(t, "hashing-v1", st.Embedding.Model)

	again, err := e.Status(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, st.Version, again.Version)

	ghost, err := e.Status(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ghost.Exists)
	assert.Zero(t, ghost.NodeCount)
}

func TestBatchRollsBackOnError(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	err := e.Batch(ctx, "s1", func(b *Engine) error {
		if _, err := b.Remember(ctx, "s1", RememberParams{Content: "kept only on commit", NodeType: "fact"}); err != nil {
			return err
		}
		_, err := b.Forget(ctx, "s1", 9999, nil)
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = e.DB().GetGraphBySubject(ctx, "s1")
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "graph creation rolled back too")

	err = e.Batch(ctx, "s1", func(b *Engine) error {
		res, err := b.Remember(ctx, "s1", RememberParams{Content: "committed", NodeType: "fact"})
		if err != nil {
			return err
		}
		_, err = b.Reinforce(ctx, "s1", ReinforceParams{NodeIDs: []int64{res.Node.ID}})
		return err
	})
	require.NoError(t, err)
	graph, err := e.DB().GetGraphBySubject(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, graph.NodeCount)
}

func TestBatchIsBoundToSubject(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	err := e.Batch(ctx, "s1", func(b *Engine) error {
		_, err := b.Observe(ctx, "s2", ObserveParams{EntryType: "observation", Content: "cross"})
		return err
	})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestSubjectLockHonorsContext(t *testing.T) {
	locks := NewSubjectLocks()
	unlock, err := locks.Lock(context.Background(), "s1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Lock(ctx, "s1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := locks.Lock(context.Background(), "s2")
	require.NoError(t, err)
	other()

	unlock()
	again, err := locks.Lock(context.Background(), "s1")
	require.NoError(t, err)
	again()
}

func TestDeleteNode(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	a := remember(t, e, "s1", "to be removed")
	b := remember(t, e, "s1", "stays")
	_, err := e.Relate(ctx, "s1", RelateParams{SourceID: a.ID, TargetID: b.ID, RelationType: "precedes"})
	require.NoError(t, err)
	_, err = e.Observe(ctx, "s1", ObserveParams{EntryType: "surfaced", Content: "surfaced a", RelatedNodeID: &a.ID})
	require.NoError(t, err)

	deleted, err := e.DeleteNode(ctx, "s1", a.ID, "admin", "requested")
	require.NoError(t, err)
	assert.Equal(t, a.ID, deleted.ID)

	graph, err := e.DB().GetGraphBySubject(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, graph.NodeCount)
	assert.Equal(t, 0, graph.EdgeCount)

	audit, err := e.DB().ListAudit(ctx, graph.ID, 10)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, "admin", audit[0].Actor)

	ledger, err := e.DB().ListRecentLedger(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Len(t, ledger, 1, "ledger survives node deletion")
}

func TestSnapshot(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	a := remember(t, e, "s1", "snap one", "alpha")
	b := remember(t, e, "s1", "snap two", "beta")
	_, err := e.Relate(ctx, "s1", RelateParams{SourceID: a.ID, TargetID: b.ID, RelationType: "develops"})
	require.NoError(t, err)

	snap, err := e.Snapshot(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, snap.Nodes, 2)
	assert.True(t, snap.HasEdge(a.ID, b.ID, "develops"))
	assert.False(t, snap.HasEdge(b.ID, a.ID, "develops"))
	_, ok := snap.Node(b.ID)
	assert.True(t, ok)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, snap.Tags())

	empty, err := e.Snapshot(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, empty.Graph)
	assert.Empty(t, empty.Nodes)
}
