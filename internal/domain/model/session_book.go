package model

import (
	"sort"

	"colleague-chat/internal/domain"
)

// MaxSessions is the number of sessions retained per owner.
const MaxSessions = 50

// SessionBook is the persisted document holding all sessions of one owner.
// Sessions are kept in insertion order; the oldest is evicted past MaxSessions.
type SessionBook struct {
	Owner      string         `json:"-"`
	Sessions   []*ChatSession `json:"sessions"`
	LastActive string         `json:"lastActive,omitempty"`
}

func NewSessionBook(owner string) *SessionBook {
	return &SessionBook{Owner: owner, Sessions: make([]*ChatSession, 0, 4)}
}

// Add inserts a session, marks it active and evicts the oldest entries past the cap.
func (b *SessionBook) Add(s *ChatSession) {
	b.Sessions = append(b.Sessions, s)
	if over := len(b.Sessions) - MaxSessions; over > 0 {
		b.Sessions = append([]*ChatSession(nil), b.Sessions[over:]...)
	}
	b.LastActive = s.ID
}

func (b *SessionBook) Find(id string) (*ChatSession, error) {
	for _, s := range b.Sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, domain.ErrNotFound
}

// Active returns the active session, or ErrNotFound when none is selected.
func (b *SessionBook) Active() (*ChatSession, error) {
	if b.LastActive == "" {
		return nil, domain.ErrNotFound
	}
	return b.Find(b.LastActive)
}

func (b *SessionBook) Select(id string) (*ChatSession, error) {
	s, err := b.Find(id)
	if err != nil {
		return nil, err
	}
	b.LastActive = id
	return s, nil
}

// Delete removes a session; when it was active, no session stays active.
func (b *SessionBook) Delete(id string) error {
	for i, s := range b.Sessions {
		if s.ID == id {
			b.Sessions = append(b.Sessions[:i], b.Sessions[i+1:]...)
			if b.LastActive == id {
				b.LastActive = ""
			}
			return nil
		}
	}
	return domain.ErrNotFound
}

// List returns sessions newest activity first, optionally filtered by colleague.
func (b *SessionBook) List(colleagueID string) []*ChatSession {
	out := make([]*ChatSession, 0, len(b.Sessions))
	for _, s := range b.Sessions {
		if colleagueID != "" && s.ColleagueID != colleagueID {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}
