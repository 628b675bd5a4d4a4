package hooks

// HookInput is the JSON the agent host sends on stdin to hook handlers.
// Only the SessionEnd fields are read.
type HookInput struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	CWD            string `json:"cwd"`
	HookEventName  string `json:"hook_event_name"`
	Reason         string `json:"reason,omitempty"`
}
