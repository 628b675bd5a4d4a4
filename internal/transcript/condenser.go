package transcript

import (
	"strings"
)

const (
	userMax               = 2000
	firstLastAssistantMax = 1000
	midAssistantMax       = 200
)

// Condense reduces transcript entries to event text, in order:
// - user messages up to 2000 chars
// - first and last assistant messages up to 1000 chars
// - other assistant messages up to 200 chars
// Other roles are dropped.
func Condense(entries []ParsedEntry) string {
	first, last := -1, -1
	for i, e := range entries {
		if e.Role == "assistant" {
			if first < 0 {
				first = i
			}
			last = i
		}
	}

	var b strings.Builder
	for i, e := range entries {
		switch e.Role {
		case "user":
			b.WriteString("[USER] ")
			b.WriteString(truncate(e.Text, userMax))
		case "assistant":
			b.WriteString("[ASSISTANT] ")
			if i == first || i == last {
				b.WriteString(truncate(e.Text, firstLastAssistantMax))
			} else {
				b.WriteString(truncate(e.Text, midAssistantMax))
			}
		default:
			continue
		}
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
