package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"colleague-chat/internal/domain"
)

const (
	DefaultTitle   = "Nieuwe chat"
	titleMaxRunes  = 50
	titleEllipsis  = "..."
	MaxMessageRune = 2000
)

// ChatSession is the aggregate root for one conversation in the sidebar.
// ThreadID is assigned at most once; later turns reuse it.
type ChatSession struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Messages         []Message         `json:"messages"`
	ThreadID         string            `json:"threadId,omitempty"`
	ColleagueID      string            `json:"colleagueId,omitempty"`
	AssistantThreads map[string]string `json:"assistantThreads,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	LastMessageAt    time.Time         `json:"lastMessageAt"`
}

func NewChatSession(id, colleagueID string, now time.Time) *ChatSession {
	return &ChatSession{
		ID:            id,
		Title:         DefaultTitle,
		Messages:      make([]Message, 0, 8),
		ColleagueID:   colleagueID,
		CreatedAt:     now,
		LastMessageAt: now,
	}
}

// AssignThread binds the primary provider thread. Re-assigning the same id is a no-op;
// a different id is refused.
func (s *ChatSession) AssignThread(threadID string) error {
	return assignOnce(&s.ThreadID, threadID)
}

// AssignAssistantThread binds the thread used for a mentioned colleague.
func (s *ChatSession) AssignAssistantThread(colleagueID, threadID string) error {
	if colleagueID == "" || colleagueID == s.ColleagueID {
		return s.AssignThread(threadID)
	}
	if s.AssistantThreads == nil {
		s.AssistantThreads = make(map[string]string)
	}
	cur := s.AssistantThreads[colleagueID]
	if err := assignOnce(&cur, threadID); err != nil {
		return err
	}
	s.AssistantThreads[colleagueID] = cur
	return nil
}

// ThreadFor returns the thread held for the given colleague, "" if none.
func (s *ChatSession) ThreadFor(colleagueID string) string {
	if colleagueID == "" || colleagueID == s.ColleagueID {
		return s.ThreadID
	}
	return s.AssistantThreads[colleagueID]
}

func assignOnce(dst *string, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ErrInvalidArgument
	}
	if *dst == "" {
		*dst = id
		return nil
	}
	if *dst != id {
		return fmt.Errorf("thread already assigned (%s): %w", *dst, domain.ErrAlreadyExists)
	}
	return nil
}

// AppendUser adds a user message and refreshes the derived title.
func (s *ChatSession) AppendUser(text string, now time.Time) {
	s.Messages = append(s.Messages, Message{Role: RoleUser, Content: text})
	s.LastMessageAt = now
	s.refreshTitle()
}

// AppendAssistant adds a complete assistant message (e.g. a funnel question).
func (s *ChatSession) AppendAssistant(text, assistantID, label string, now time.Time) {
	s.Messages = append(s.Messages, Message{
		Role:           RoleAssistant,
		Content:        text,
		AssistantID:    assistantID,
		AssistantLabel: label,
	})
	s.LastMessageAt = now
}

// BeginAssistant appends an empty in-flight bubble and returns its index.
func (s *ChatSession) BeginAssistant(assistantID, label string, now time.Time) int {
	s.Messages = append(s.Messages, Message{Role: RoleAssistant, AssistantID: assistantID, AssistantLabel: label})
	s.LastMessageAt = now
	return len(s.Messages) - 1
}

// FinishAssistant sets the final content and citations of the bubble at idx.
// An empty final text is replaced by noAnswer.
func (s *ChatSession) FinishAssistant(idx int, final string, citations []Citation, noAnswer string, now time.Time) {
	if idx < 0 || idx >= len(s.Messages) {
		return
	}
	if strings.TrimSpace(final) == "" {
		final = noAnswer
	}
	s.Messages[idx].Content = final
	s.Messages[idx].Citations = citations
	s.LastMessageAt = now
}

// RemoveMessage drops the message at idx (used to discard a failed bubble).
func (s *ChatSession) RemoveMessage(idx int) {
	if idx < 0 || idx >= len(s.Messages) {
		return
	}
	s.Messages = append(s.Messages[:idx], s.Messages[idx+1:]...)
}

func (s *ChatSession) refreshTitle() {
	if s.Title != "" && s.Title != DefaultTitle {
		return
	}
	for _, m := range s.Messages {
		if m.Role == RoleUser && strings.TrimSpace(m.Content) != "" {
			s.Title = DeriveTitle(m.Content)
			return
		}
	}
	s.Title = DefaultTitle
}

// DeriveTitle takes the first 50 characters of text, adding an ellipsis when cut.
func DeriveTitle(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= titleMaxRunes {
		return text
	}
	r := []rune(text)
	return string(r[:titleMaxRunes]) + titleEllipsis
}
