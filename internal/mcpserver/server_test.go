package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/lattice/internal/config"
	"github.com/lazypower/lattice/internal/embedding"
	"github.com/lazypower/lattice/internal/engine"
	"github.com/lazypower/lattice/internal/protocol"
	"github.com/lazypower/lattice/internal/store"
)

func testServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := embedding.NewService(embedding.NewHashing(512), embedding.Options{CacheSize: 50, BatchSize: 4})
	eng := engine.New(db, svc, config.Default())
	d := protocol.NewDispatcher(eng, protocol.NewMetrics(prometheus.NewRegistry()))
	return New(d, "s1", "test"), eng
}

func callTool(t *testing.T, s *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := s.handler(name)(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return tc.Text
}

func TestToolsRegistered(t *testing.T) {
	s, _ := testServer(t)

	resp := s.MCP().HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var out struct {
		Result struct {
			Tools []struct {
				Name        string         `json:"name"`
				InputSchema map[string]any `json:"inputSchema"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	require.Len(t, out.Result.Tools, len(protocol.Names))

	names := make([]string, len(out.Result.Tools))
	for i, tool := range out.Result.Tools {
		names[i] = tool.Name
		assert.Equal(t, "object", tool.InputSchema["type"])
	}
	assert.ElementsMatch(t, protocol.Names, names)
}

func TestRememberAndRecallTools(t *testing.T) {
	s, eng := testServer(t)

	res := callTool(t, s, protocol.OpRemember, map[string]any{
		"content":  "Prefers async communication",
		"nodeType": "insight",
		"tags":     []any{"communication"},
	})
	require.False(t, res.IsError, text(t, res))

	snap, err := eng.Snapshot(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, snap.Nodes, 1)

	res = callTool(t, s, protocol.OpRecall, map[string]any{"query": "communication style"})
	require.False(t, res.IsError, text(t, res))

	var out engine.RecallResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &out))
	require.Len(t, out.Results, 1)
	assert.Equal(t, "Prefers async communication", out.Results[0].Node.Content)
}

func TestToolWithoutArguments(t *testing.T) {
	s, _ := testServer(t)

	res := callTool(t, s, protocol.OpStatus, nil)
	require.False(t, res.IsError, text(t, res))

	var out engine.StatusResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &out))
	assert.Equal(t, "s1", out.SubjectID)
	assert.False(t, out.Exists)
}

func TestToolErrorsCarryKind(t *testing.T) {
	s, _ := testServer(t)

	tests := []struct {
		name string
		op   string
		args map[string]any
		kind string
	}{
		{"missing field", protocol.OpRecall, map[string]any{}, "validation"},
		{"unknown field", protocol.OpRecall, map[string]any{"query": "x", "limit": 3}, "validation"},
		{"missing node", protocol.OpForget, map[string]any{"nodeId": 42}, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := callTool(t, s, tt.op, tt.args)
			require.True(t, res.IsError)

			var body struct {
				Error struct {
					Kind    string `json:"kind"`
					Message string `json:"message"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal([]byte(text(t, res)), &body))
			assert.Equal(t, tt.kind, body.Error.Kind)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}
