package subconscious

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/lazypower/lattice/internal/engine"
	"github.com/lazypower/lattice/internal/protocol"
)

const (
	maxPromptNodes   = 50
	maxRenderedChars = 160
	maxContentChars  = 800
)

// renderGraph lists the highest-gravity nodes one per line.
func renderGraph(snap *engine.Snapshot) string {
	var b strings.Builder
	for i, n := range snap.Nodes {
		if i == maxPromptNodes {
			fmt.Fprintf(&b, "... %d more\n", len(snap.Nodes)-maxPromptNodes)
			break
		}
		fmt.Fprintf(&b, "%d | %s | %.2f/%.2f | %.2f | %s | %s\n",
			n.ID, n.NodeType, n.Gravity, n.Salience, n.Depth,
			strings.Join(n.Tags, ","), truncateClean(oneLine(n.Content), maxRenderedChars))
	}
	return b.String()
}

func renderLedger(snap *engine.Snapshot) string {
	var b strings.Builder
	for _, e := range snap.Ledger {
		fmt.Fprintf(&b, "- [%s] %s\n", e.EntryType, truncateClean(oneLine(e.Content), maxRenderedChars))
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateClean truncates a string to maxLen, cutting at the last word boundary
// to avoid mid-word breaks.
func truncateClean(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncated := s[:maxLen]
	if idx := strings.LastIndexFunc(truncated, unicode.IsSpace); idx > maxLen/2 {
		truncated = truncated[:idx]
	}
	return strings.TrimSpace(truncated)
}

// parseProposals extracts the JSON array of calls from a model response,
// tolerating code fences and surrounding prose.
func parseProposals(content string) ([]protocol.Call, error) {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) > 2 {
			content = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}
	content = strings.TrimSpace(content)

	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var calls []protocol.Call
	if err := json.Unmarshal([]byte(content[start:end+1]), &calls); err != nil {
		return nil, fmt.Errorf("unmarshal proposals: %w", err)
	}
	return calls, nil
}
