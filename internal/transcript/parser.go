// Package transcript turns JSONL session transcripts into event text for the
// subconscious processor.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Entry is one transcript line. Two shapes are accepted: the nested
// {"type", "message": {"role", "content"}} form and a flat {"role", "content"}.
type Entry struct {
	Type    string          `json:"type"`
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Message json.RawMessage `json:"message"`
}

// Message is the nested message form.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"` // string or []ContentItem
}

// ContentItem represents a single content block (text, tool_use, tool_result).
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ParsedEntry holds a fully parsed transcript entry.
type ParsedEntry struct {
	Role string // "user", "assistant", "system"
	Text string
}

var systemReminderRe = regexp.MustCompile(`<system-reminder>[\s\S]*?</system-reminder>`)

// ParseFile reads a JSONL transcript file and returns parsed entries.
func ParseFile(path string) ([]ParsedEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// ParseLines parses transcript content held in a string.
func ParseLines(content string) ([]ParsedEntry, error) {
	return Parse(strings.NewReader(content))
}

// Parse reads JSONL from r. Malformed lines are skipped.
func Parse(r io.Reader) ([]ParsedEntry, error) {
	var entries []ParsedEntry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB line buffer

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := parseLine([]byte(line))
		if err != nil {
			continue
		}
		if entry != nil {
			entries = append(entries, *entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	return entries, nil
}

func parseLine(line []byte) (*ParsedEntry, error) {
	var entry Entry
	if err := json.Unmarshal(line, &entry); err != nil {
		return nil, err
	}

	role, content := entry.Role, entry.Content
	if entry.Message != nil {
		var msg Message
		if err := json.Unmarshal(entry.Message, &msg); err != nil {
			return nil, err
		}
		role, content = msg.Role, msg.Content
	}
	if role == "" {
		role = entry.Type
	}
	if role == "" || content == nil {
		return nil, nil
	}

	text := extractText(content)
	text = systemReminderRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if len(text) < 5 {
		return nil, nil
	}
	if strings.HasPrefix(text, "{") {
		return nil, nil
	}
	return &ParsedEntry{Role: role, Text: text}, nil
}

// extractText handles the polymorphic content field.
// It may be a plain string or an array of ContentItem.
func extractText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var items []ContentItem
	if err := json.Unmarshal(raw, &items); err == nil {
		var texts []string
		for _, item := range items {
			if item.Type == "text" && item.Text != "" {
				texts = append(texts, item.Text)
			}
		}
		return strings.Join(texts, "\n")
	}
	return ""
}

// CountUserMessages returns the number of user messages in the entries.
func CountUserMessages(entries []ParsedEntry) int {
	count := 0
	for _, e := range entries {
		if e.Role == "user" {
			count++
		}
	}
	return count
}

// IsInternal reports whether the first user message starts with sentinel,
// marking a session lattice opened itself.
func IsInternal(entries []ParsedEntry, sentinel string) bool {
	for _, e := range entries {
		if e.Role == "user" {
			return strings.HasPrefix(e.Text, sentinel)
		}
	}
	return false
}
