package types

// MonitorEvent is pushed to /ws/monitor subscribers for every ingested frame.
type MonitorEvent struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	FrameIndex int    `json:"frame_index"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

const (
	EventResult = "result"
	EventError  = "error"
)
