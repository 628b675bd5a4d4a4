package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ClaudeCLI calls the Claude CLI (`claude -p`) as a subprocess.
type ClaudeCLI struct {
	binary  string
	model   string
	timeout time.Duration
}

// NewClaudeCLI creates a new Claude CLI client.
func NewClaudeCLI(model string) *ClaudeCLI {
	return &ClaudeCLI{
		binary:  "claude",
		model:   model,
		timeout: 120 * time.Second,
	}
}

// Complete pipes the prompt to the CLI in print mode and returns its result.
func (c *ClaudeCLI) Complete(ctx context.Context, prompt string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binary, "-p", "--model", c.model, "--max-turns", "1", "--output-format", "json")
	cmd.Stdin = strings.NewReader(prompt)

	// The child must not fire our own hooks again.
	cmd.Env = filterEnv(os.Environ())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("claude cli: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return parseCLIOutput(stdout.Bytes())
}

// cliResult is the envelope printed by --output-format json.
type cliResult struct {
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// parseCLIOutput reads the JSON envelope, falling back to plain text for
// CLI versions that ignore --output-format.
func parseCLIOutput(out []byte) (*Response, error) {
	out = bytes.TrimSpace(out)
	var res cliResult
	if err := json.Unmarshal(out, &res); err != nil {
		return &Response{Content: string(out), Provider: "claude-cli"}, nil
	}
	if res.IsError {
		return nil, fmt.Errorf("claude cli: %s", res.Result)
	}
	return &Response{
		Content:    strings.TrimSpace(res.Result),
		Provider:   "claude-cli",
		TokensUsed: res.Usage.InputTokens + res.Usage.OutputTokens,
	}, nil
}

// filterEnv removes CLAUDE_* and LATTICE_* variables so the subprocess
// neither re-enters hooks nor inherits our server settings.
func filterEnv(env []string) []string {
	filtered := make([]string, 0, len(env))
	for _, e := range env {
		if !strings.HasPrefix(e, "CLAUDE_") && !strings.HasPrefix(e, "LATTICE_") {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
