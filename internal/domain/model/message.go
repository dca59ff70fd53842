package model

// Role of a chat message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Citation references a source document used in an assistant answer.
type Citation struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename,omitempty"`
	Quote    string `json:"quote,omitempty"`
	Link     string `json:"link,omitempty"`
}

// Message is one entry of a chat session. Only the in-flight assistant message
// is mutated after being appended.
type Message struct {
	Role           Role       `json:"role"`
	Content        string     `json:"content"`
	Citations      []Citation `json:"citations,omitempty"`
	AssistantID    string     `json:"assistantId,omitempty"`
	AssistantLabel string     `json:"assistantLabel,omitempty"`
}

// InFlight reports whether the message is an assistant bubble still waiting for content.
func (m Message) InFlight() bool {
	return m.Role == RoleAssistant && m.Content == ""
}
