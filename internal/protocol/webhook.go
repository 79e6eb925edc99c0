package protocol

import "encoding/json"

// Webhook event types delivered by the task provider. Anything else is
// acknowledged with 200 and ignored so new provider events never bounce.
const (
	TaskEventStopped  = "task_stopped"
	TaskEventProgress = "task_progress"
	TaskEventThinking = "task_thinking"
)

// Stop reasons carried on task_stopped events.
const (
	StopReasonFinish      = "finish"
	StopReasonError       = "error"
	StopReasonUserStopped = "user_stopped"
)

// TaskEvent is the webhook body posted by the task provider. The same shape
// comes back from the status poll endpoint, so the webhook handler and the
// poller share one completion path.
type TaskEvent struct {
	TaskID         string          `json:"task_id"`
	EventType      string          `json:"event_type"`
	StopReason     string          `json:"stop_reason,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	ThinkingSteps  []ThinkingStep  `json:"thinking_steps,omitempty"`
	ThinkingAction *ThinkingAction `json:"thinking_action,omitempty"`
	SlidePreview   *SlidePreview   `json:"slide_preview,omitempty"`
	Progress       *int            `json:"progress,omitempty"`
	CurrentStep    string          `json:"current_step,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
}

// Encode marshals a payload for embedding in an Event. Marshal errors are
// swallowed; payload types are plain structs that cannot fail to encode.
func Encode(v interface{}) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
