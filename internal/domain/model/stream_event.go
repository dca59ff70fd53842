package model

// StreamEventType enumerates the events of one chat turn as seen by the UI.
type StreamEventType string

const (
	EventThreadAssigned StreamEventType = "thread_assigned"
	EventToken          StreamEventType = "token"
	EventCitations      StreamEventType = "citations"
	EventDone           StreamEventType = "done"
	EventError          StreamEventType = "error"
	EventFunnel         StreamEventType = "funnel"
	EventBubble         StreamEventType = "bubble"
)

// StreamEvent is one record of the turn stream. Fields are set per Type.
type StreamEvent struct {
	Type       StreamEventType `json:"type"`
	ThreadID   string          `json:"threadId,omitempty"`
	Text       string          `json:"text,omitempty"`
	Citations  []Citation      `json:"citations,omitempty"`
	Advisory   bool            `json:"advisory,omitempty"`
	Disclaimer string          `json:"disclaimer,omitempty"`
	Content    string          `json:"content,omitempty"`
	FromCache  bool            `json:"fromCache,omitempty"`

	// bubble / funnel
	AssistantID    string `json:"assistantId,omitempty"`
	AssistantLabel string `json:"assistantLabel,omitempty"`
	Placeholder    string `json:"placeholder,omitempty"`

	// error
	Category string `json:"category,omitempty"`
	Message  string `json:"message,omitempty"`
}
