// Package hooks handles agent host hook events. Hooks must never break the
// host: every failure is returned for the caller to report, and the process
// still exits 0.
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Handle reads HookInput from stdin and dispatches on event. A server that
// is down is not an error.
func Handle(ctx context.Context, event string, stdin io.Reader, client *Client, subject string) error {
	var input HookInput
	if err := json.NewDecoder(stdin).Decode(&input); err != nil {
		return fmt.Errorf("decode stdin: %w", err)
	}

	if !client.Healthy(ctx) {
		return nil
	}

	switch event {
	case "end":
		return handleEnd(ctx, client, subject, &input)
	default:
		return fmt.Errorf("unknown hook event: %s", event)
	}
}
