package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLines(t *testing.T) {
	lines := `{"type":"user","message":{"role":"user","content":"Hello, help me with fractions"}}
{"type":"assistant","message":{"role":"assistant","content":"Sure, let's start with halves."}}
{"role":"user","content":"I always mix up numerators"}
{"role":"assistant","content":"The numerator is the top number."}`

	entries, err := ParseLines(lines)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, ParsedEntry{Role: "user", Text: "Hello, help me with fractions"}, entries[0])
	assert.Equal(t, "assistant", entries[1].Role)
	assert.Equal(t, ParsedEntry{Role: "user", Text: "I always mix up numerators"}, entries[2])
}

func TestParseLinesContentArray(t *testing.T) {
	lines := `{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"Here is the plan:"},{"type":"tool_use","id":"tu_1","name":"Write"}]}}`

	entries, err := ParseLines(lines)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Here is the plan:", entries[0].Text)
}

func TestParseLinesSkips(t *testing.T) {
	lines := `{"type":"user","message":{"role":"user","content":"ok"}}
{"type":"user","message":{"role":"user","content":"{\"json\":\"data\"}"}}
not json at all
{broken json
{"type":"user"}
{"type":"user","message":{"role":"user","content":"This is a real message"}}`

	entries, err := ParseLines(lines)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "This is a real message", entries[0].Text)
}

func TestParseLinesStripsSystemReminder(t *testing.T) {
	lines := `{"type":"user","message":{"role":"user","content":"Do something <system-reminder>ignore this</system-reminder> please help"}}`

	entries, err := ParseLines(lines)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Do something  please help", entries[0].Text)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"role":"user","content":"Prefers written feedback"}`+"\n"), 0o644))

	entries, err := ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}

func TestCountUserMessages(t *testing.T) {
	entries := []ParsedEntry{
		{Role: "user", Text: "hello"},
		{Role: "assistant", Text: "hi"},
		{Role: "user", Text: "world"},
	}
	assert.Equal(t, 2, CountUserMessages(entries))
}

func TestIsInternal(t *testing.T) {
	assert.True(t, IsInternal([]ParsedEntry{{Role: "user", Text: "[lattice-internal] propose"}}, "[lattice-internal]"))
	assert.False(t, IsInternal([]ParsedEntry{
		{Role: "user", Text: "normal question"},
		{Role: "user", Text: "[lattice-internal] later"},
	}, "[lattice-internal]"))
	assert.False(t, IsInternal(nil, "[lattice-internal]"))
}

func TestCondenseKeepsOrder(t *testing.T) {
	entries := []ParsedEntry{
		{Role: "user", Text: "Help me study for the exam"},
		{Role: "assistant", Text: "Sure, I can help."},
		{Role: "assistant", Text: "Here is some middle content."},
		{Role: "system", Text: "dropped system text"},
		{Role: "assistant", Text: "Final answer here."},
		{Role: "user", Text: "Thanks that works"},
	}

	result := Condense(entries)
	want := "[USER] Help me study for the exam\n\n" +
		"[ASSISTANT] Sure, I can help.\n\n" +
		"[ASSISTANT] Here is some middle content.\n\n" +
		"[ASSISTANT] Final answer here.\n\n" +
		"[USER] Thanks that works"
	assert.Equal(t, want, result)
}

func TestCondenseTruncation(t *testing.T) {
	long := strings.Repeat("x", 3000)
	entries := []ParsedEntry{
		{Role: "assistant", Text: long},
		{Role: "assistant", Text: long},
		{Role: "assistant", Text: long},
		{Role: "user", Text: long},
	}

	parts := strings.Split(Condense(entries), "\n\n")
	require.Len(t, parts, 4)
	assert.Len(t, parts[0], len("[ASSISTANT] ")+firstLastAssistantMax+3)
	assert.Len(t, parts[1], len("[ASSISTANT] ")+midAssistantMax+3)
	assert.Len(t, parts[2], len("[ASSISTANT] ")+firstLastAssistantMax+3)
	assert.Len(t, parts[3], len("[USER] ")+userMax+3)
}

func TestCondenseEmpty(t *testing.T) {
	assert.Empty(t, Condense(nil))
	assert.Empty(t, Condense([]ParsedEntry{}))
}
