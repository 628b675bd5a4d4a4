package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/lattice/internal/apperr"
	"github.com/lazypower/lattice/internal/config"
	"github.com/lazypower/lattice/internal/embedding"
	"github.com/lazypower/lattice/internal/engine"
	"github.com/lazypower/lattice/internal/store"
)

func testDispatcher(t *testing.T) (*Dispatcher, *engine.Engine, *Metrics) {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := embedding.NewService(embedding.NewHashing(512), embedding.Options{CacheSize: 50, BatchSize: 4})
	eng := engine.New(db, svc, config.Default())
	m := NewMetrics(prometheus.NewRegistry())
	return NewDispatcher(eng, m), eng, m
}

func call(t *testing.T, op string, args any) Call {
	t.Helper()
	c, err := NewCall(op, args)
	require.NoError(t, err)
	return c
}

func TestDecodeValid(t *testing.T) {
	op, err := Decode(OpRemember, json.RawMessage(`{"content":"Prefers async communication","nodeType":"insight","tags":["comms"]}`))
	require.NoError(t, err)
	rem, ok := op.(*Remember)
	require.True(t, ok)
	assert.Equal(t, "insight", rem.NodeType)
	assert.Equal(t, []string{"comms"}, rem.Tags)

	op, err = Decode(OpStatus, nil)
	require.NoError(t, err)
	assert.Equal(t, OpStatus, op.Name())

	_, err = Decode(OpWhoAmI, json.RawMessage(`null`))
	require.NoError(t, err)
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		op   string
		args string
		want string
	}{
		{"unknown op", "teleport", `{}`, "unknown operation"},
		{"bad json", OpRecall, `{"query":`, "invalid arguments"},
		{"unknown field", OpRecall, `{"query":"x","bogus":1}`, "invalid arguments"},
		{"missing content", OpRemember, `{"nodeType":"insight"}`, "content is required"},
		{"bad node type", OpRemember, `{"content":"x","nodeType":"dream"}`, "nodeType: unknown value"},
		{"confidence range", OpObserve, `{"entryType":"observation","content":"x","confidence":1.5}`, "confidence"},
		{"bad relation", OpRelate, `{"sourceId":1,"targetId":2,"relationType":"likes"}`, "relationType"},
		{"missing node id", OpForget, `{}`, "nodeId is required"},
		{"negative amount", OpForget, `{"nodeId":1,"amount":-1}`, "amount"},
		{"empty reinforce", OpReinforce, `{"tags":[]}`, "tags or nodeIds required"},
		{"missing query", OpRecall, `{}`, "query is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.op, json.RawMessage(tt.args))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrValidation))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSchemasCoverEveryOperation(t *testing.T) {
	schemas := Schemas()
	require.Len(t, schemas, len(Names))
	for i, s := range schemas {
		assert.Equal(t, Names[i], s.Name)
		assert.NotEmpty(t, s.Description)
		assert.Equal(t, "object", s.InputSchema["type"])

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(s.RawInputSchema(), &decoded))
	}

	remember := schemas[0].InputSchema
	assert.Equal(t, []string{"content", "nodeType"}, remember["required"])
	props := remember["properties"].(map[string]any)
	nodeType := props["nodeType"].(map[string]any)
	assert.Equal(t, store.NodeTypes, nodeType["enum"])
}

func TestExecuteAllOperations(t *testing.T) {
	d, _, m := testDispatcher(t)
	ctx := context.Background()

	res, err := d.Execute(ctx, "s1", call(t, OpRemember, map[string]any{
		"content": "Prefers async communication", "nodeType": "insight", "tags": []string{"comms"},
	}))
	require.NoError(t, err)
	first := res.(*engine.RememberResult).Node

	res, err = d.Execute(ctx, "s1", call(t, OpRemember, map[string]any{
		"content": "Replies within a day", "nodeType": "pattern",
	}))
	require.NoError(t, err)
	second := res.(*engine.RememberResult).Node

	_, err = d.Execute(ctx, "s1", call(t, OpRelate, map[string]any{
		"sourceId": first.ID, "targetId": second.ID, "relationType": "supports",
	}))
	require.NoError(t, err)

	res, err = d.Execute(ctx, "s1", call(t, OpRecall, map[string]any{"query": "communication style"}))
	require.NoError(t, err)
	recall := res.(*engine.RecallResult)
	require.NotEmpty(t, recall.Results)
	assert.Equal(t, first.ID, recall.Results[0].Node.ID)

	_, err = d.Execute(ctx, "s1", call(t, OpObserve, map[string]any{"entryType": "observation", "content": "Asked for written notes"}))
	require.NoError(t, err)

	res, err = d.Execute(ctx, "s1", call(t, OpForget, map[string]any{"nodeId": second.ID}))
	require.NoError(t, err)
	assert.InDelta(t, 0.6, res.(*store.Node).Depth, 1e-9)

	res, err = d.Execute(ctx, "s1", call(t, OpReinforce, map[string]any{"tags": []string{"comms"}}))
	require.NoError(t, err)
	assert.Equal(t, 1, res.(*engine.ReinforceResult).Affected)

	res, err = d.Execute(ctx, "s1", Call{Op: OpWhoAmI})
	require.NoError(t, err)
	assert.True(t, res.(*engine.WhoAmIResult).Exists)

	res, err = d.Execute(ctx, "s1", Call{Op: OpStatus})
	require.NoError(t, err)
	assert.Equal(t, 2, res.(*engine.StatusResult).NodeCount)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ops.WithLabelValues(OpRemember, "ok")))
}

func TestExecuteDistinguishesErrorKinds(t *testing.T) {
	d, _, m := testDispatcher(t)
	ctx := context.Background()

	_, err := d.Execute(ctx, "s1", call(t, OpForget, map[string]any{"nodeId": 42}))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = d.Execute(ctx, "s1", Call{Op: OpRecall, Args: json.RawMessage(`{"query":""}`)})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	res, err := d.Execute(ctx, "s1", call(t, OpReinforce, map[string]any{"nodeIds": []int64{42}}))
	require.NoError(t, err, "no match is not an error")
	assert.Zero(t, res.(*engine.ReinforceResult).Affected)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ops.WithLabelValues(OpForget, "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ops.WithLabelValues(OpRecall, "validation")))
}

func TestApplyBatchIsAtomic(t *testing.T) {
	d, eng, _ := testDispatcher(t)
	ctx := context.Background()

	calls := []Call{
		call(t, OpRemember, map[string]any{"content": "batched memory", "nodeType": "fact"}),
		call(t, OpObserve, map[string]any{"entryType": "observation", "content": "batched entry"}),
		call(t, OpForget, map[string]any{"nodeId": 9999}),
	}
	_, err := d.ApplyBatch(ctx, "s1", calls)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "call 2")

	snap, err := eng.Snapshot(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, snap.Nodes)
	assert.Empty(t, snap.Ledger)

	results, err := d.ApplyBatch(ctx, "s1", calls[:2])
	require.NoError(t, err)
	require.Len(t, results, 2)
	snap, err = eng.Snapshot(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, snap.Nodes, 1)
	assert.Len(t, snap.Ledger, 1)
}

func TestApplyBatchValidatesBeforeApplying(t *testing.T) {
	d, eng, _ := testDispatcher(t)
	ctx := context.Background()

	_, err := d.ApplyBatch(ctx, "s1", []Call{
		call(t, OpRemember, map[string]any{"content": "never stored", "nodeType": "fact"}),
		{Op: "teleport"},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "call 1")

	st, err := eng.Status(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, st.Exists)
}
