// Package mcpserver exposes the memory operations as MCP tools over stdio.
// Every tool acts on the single subject the server was started for.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lazypower/lattice/internal/apperr"
	"github.com/lazypower/lattice/internal/protocol"
)

// Server wraps an MCP server bound to one subject.
type Server struct {
	mcp        *server.MCPServer
	dispatcher *protocol.Dispatcher
	subject    string
}

// New creates a Server and registers one tool per operation.
func New(d *protocol.Dispatcher, subject, version string) *Server {
	s := &Server{
		dispatcher: d,
		subject:    subject,
		mcp: server.NewMCPServer(
			"lattice",
			version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
			server.WithInstructions(instructions),
		),
	}
	for _, schema := range protocol.Schemas() {
		s.mcp.AddTool(mcp.NewToolWithRawSchema(schema.Name, schema.Description, schema.RawInputSchema()), s.handler(schema.Name))
	}
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves on stdin/stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handler(op string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args json.RawMessage
		if m := req.GetArguments(); len(m) > 0 {
			raw, err := json.Marshal(m)
			if err != nil {
				return toolError(apperr.Validation(op, "invalid arguments: %v", err)), nil
			}
			args = raw
		}

		result, err := s.dispatcher.Execute(ctx, s.subject, protocol.Call{Op: op, Args: args})
		if err != nil {
			return toolError(err), nil
		}
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return toolError(apperr.Storage(op, err)), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}

// toolError reports err to the model as {"error":{"kind","message"}}.
func toolError(err error) *mcp.CallToolResult {
	body, _ := json.Marshal(map[string]any{
		"error": map[string]string{
			"kind":    apperr.KindOf(err).String(),
			"message": err.Error(),
		},
	})
	return mcp.NewToolResultError(string(body))
}

const instructions = `lattice is a long-term memory graph about one subject.

- Use recall before answering questions that depend on what you know about the subject.
- Use remember for durable facts, preferences and decisions; it deduplicates identical content.
- Use relate to connect memories, observe to record inferences in the ledger.
- Use reinforce when a memory proves relevant again and forget when it stops mattering.
- who_am_i and status are read-only summaries.`
