package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// handleEnd asks the server to close the session. The server reads the
// transcript itself and processes it in the background.
func handleEnd(ctx context.Context, client *Client, subject string, input *HookInput) error {
	if input.SessionID == "" {
		return fmt.Errorf("session_id missing")
	}
	body, err := json.Marshal(map[string]string{"transcriptPath": input.TranscriptPath})
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/api/subjects/%s/sessions/%s/close", url.PathEscape(subject), url.PathEscape(input.SessionID))
	_, err = client.Post(ctx, path, body)
	return err
}
