package subconscious

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lazypower/lattice/internal/embedding"
	"github.com/lazypower/lattice/internal/engine"
	"github.com/lazypower/lattice/internal/protocol"
)

const (
	heuristicReinforce = 0.1
	minOverlapTokens   = 3
	minOverlapRatio    = 0.5
	summaryChars       = 280
)

var rememberLine = regexp.MustCompile(`(?i)\bremember:\s*(.+)`)

// propose is the deterministic fallback. It reinforces nodes the event
// mentions, remembers explicit "remember:" lines and records one observation
// summarizing the event.
func propose(snap *engine.Snapshot, ev Event) []protocol.Call {
	var calls []protocol.Call
	add := func(op string, args any) {
		c, err := protocol.NewCall(op, args)
		if err == nil {
			calls = append(calls, c)
		}
	}

	lower := strings.ToLower(ev.Text)
	eventTokens := tokenSet(ev.Text)

	var tags []string
	for _, tag := range snap.Tags() {
		if strings.Contains(lower, tag) {
			tags = append(tags, tag)
		}
	}
	var ids []int64
	for _, n := range snap.Nodes {
		if overlaps(tokenSet(n.Content), eventTokens) {
			ids = append(ids, n.ID)
		}
	}
	if len(tags) > 0 || len(ids) > 0 {
		amount := heuristicReinforce
		add(protocol.OpReinforce, protocol.Reinforce{Tags: tags, NodeIDs: ids, Amount: &amount})
	}

	for _, line := range strings.Split(ev.Text, "\n") {
		m := rememberLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		content := strings.TrimSpace(m[1])
		if content == "" {
			continue
		}
		add(protocol.OpRemember, protocol.Remember{
			Content:    content,
			NodeType:   "fact",
			SourceType: "session",
			SourceID:   ev.SessionID,
		})
	}

	summary := truncateClean(oneLine(ev.Text), summaryChars)
	if ev.SessionID != "" {
		summary = fmt.Sprintf("Session %s: %s", ev.SessionID, summary)
	}
	add(protocol.OpObserve, protocol.Observe{
		EntryType: "observation",
		Content:   summary,
		Actor:     actor,
	})
	return calls
}

// tokenSet keeps tokens long enough to carry meaning.
func tokenSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, tok := range embedding.Tokenize(text) {
		if len(tok) > 3 {
			set[tok] = true
		}
	}
	return set
}

// overlaps reports strong overlap: enough shared tokens, covering at least
// half of the node's tokens.
func overlaps(node, event map[string]bool) bool {
	if len(node) == 0 {
		return false
	}
	shared := 0
	for tok := range node {
		if event[tok] {
			shared++
		}
	}
	return shared >= minOverlapTokens && float64(shared)/float64(len(node)) >= minOverlapRatio
}
