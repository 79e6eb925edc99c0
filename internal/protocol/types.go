package protocol

import "encoding/json"

// Event is the envelope for everything the relay fans out to a user's room.
// Timestamp is stamped server-side at emit time (ISO-8601 UTC).
type Event struct {
	Name      string          `json:"event"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// Relay event names. Clients subscribe by name after authenticating.
const (
	EventGenerationStatus    = "generation:status"
	EventGenerationProgress  = "generation:progress"
	EventGenerationCompleted = "generation:completed"
	EventGenerationError     = "generation:error"
	EventThinkingStepUpdate  = "thinking:step:update"
	EventThinkingActionAdd   = "thinking:action:add"
	EventSlidePreviewUpdate  = "slide:preview:update"
	EventTopicsGenerated     = "topics:generated"
	EventToolAction          = "tool:action"
	EventPresentationReady   = "presentation:ready"
	EventPresentationError   = "presentation:error"
)

// GenerationStatus reports a coarse lifecycle change for a presentation.
type GenerationStatus struct {
	PresentationID string `json:"presentation_id"`
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
}

// GenerationProgress reports fine-grained progress (0-100) with a step label.
type GenerationProgress struct {
	PresentationID string `json:"presentation_id"`
	Progress       int    `json:"progress"`
	CurrentStep    string `json:"current_step,omitempty"`
}

// GenerationCompleted is sent once per presentation when slides are persisted.
type GenerationCompleted struct {
	PresentationID string `json:"presentation_id"`
	SlidesCount    int    `json:"slides_count"`
}

// GenerationError carries a human-readable failure reason.
type GenerationError struct {
	PresentationID string `json:"presentation_id"`
	Reason         string `json:"reason"`
}

// ThinkingStep mirrors the task provider's reasoning trace.
type ThinkingStep struct {
	PresentationID string `json:"presentation_id"`
	Step           string `json:"step"`
	Status         string `json:"status,omitempty"`
}

// ThinkingAction is a single tool/action entry in the provider's trace.
type ThinkingAction struct {
	PresentationID string `json:"presentation_id"`
	Action         string `json:"action"`
	Detail         string `json:"detail,omitempty"`
}

// SlidePreview carries an intermediate render of one slide.
type SlidePreview struct {
	PresentationID string `json:"presentation_id"`
	SlideIndex     int    `json:"slide_index"`
	PreviewURL     string `json:"preview_url,omitempty"`
	Title          string `json:"title,omitempty"`
}

// TopicsGenerated is sent when the topic plan for a presentation is ready.
type TopicsGenerated struct {
	PresentationID string   `json:"presentation_id"`
	Topics         []string `json:"topics"`
}

// ToolAction reports an agent tool invocation to the UI.
type ToolAction struct {
	Tool    string `json:"tool"`
	Phase   string `json:"phase"` // start, finish, error
	Detail  string `json:"detail,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
}

// PresentationReady is the terminal success notification.
type PresentationReady struct {
	PresentationID string `json:"presentation_id"`
	SlidesCount    int    `json:"slides_count"`
}

// PresentationError is the terminal failure notification.
type PresentationError struct {
	PresentationID string `json:"presentation_id"`
	Reason         string `json:"reason"`
}
