package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2/packages/ssestream"

	"colleague-chat/internal/domain"
	"colleague-chat/internal/domain/ports/adapter"
)

// runStream decodes the Assistants server-sent events of one run.
type runStream struct {
	dec  ssestream.Decoder
	cur  adapter.RunEvent
	err  error
	done bool
}

var _ adapter.RunStream = (*runStream)(nil)

func (s *runStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	for s.dec.Next() {
		ev := s.dec.Event()
		if ev.Type == "done" {
			s.done = true
			return false
		}
		re, ok, err := decodeRunEvent(ev.Type, ev.Data)
		if err != nil {
			s.err = err
			return false
		}
		if !ok {
			continue
		}
		s.cur = re
		return true
	}
	if err := s.dec.Err(); err != nil {
		s.err = classify("read run stream", err)
	}
	return false
}

func (s *runStream) Event() adapter.RunEvent { return s.cur }
func (s *runStream) Err() error              { return s.err }
func (s *runStream) Close() error            { return s.dec.Close() }

// decodeRunEvent turns one SSE record into a RunEvent. ok is false for records
// the relay does not consume (step events, in-progress notifications).
func decodeRunEvent(typ string, data []byte) (adapter.RunEvent, bool, error) {
	switch typ {
	case "thread.created":
		var t wireThread
		if err := unmarshal(typ, data, &t); err != nil {
			return adapter.RunEvent{}, false, err
		}
		return adapter.RunEvent{Kind: adapter.RunThreadCreated, ThreadID: t.ID}, true, nil

	case "thread.run.created":
		var r wireRun
		if err := unmarshal(typ, data, &r); err != nil {
			return adapter.RunEvent{}, false, err
		}
		return adapter.RunEvent{Kind: adapter.RunCreated, ThreadID: r.ThreadID, RunID: r.ID}, true, nil

	case "thread.message.delta":
		var d struct {
			Delta struct {
				Content []wireContent `json:"content"`
			} `json:"delta"`
		}
		if err := unmarshal(typ, data, &d); err != nil {
			return adapter.RunEvent{}, false, err
		}
		text, anns := flattenContent(d.Delta.Content)
		return adapter.RunEvent{Kind: adapter.RunTextDelta, Text: text, Annotations: anns}, true, nil

	case "thread.message.completed":
		var m wireMessage
		if err := unmarshal(typ, data, &m); err != nil {
			return adapter.RunEvent{}, false, err
		}
		if m.Role != "" && m.Role != "assistant" {
			return adapter.RunEvent{}, false, nil
		}
		tm := m.toThreadMessage()
		return adapter.RunEvent{Kind: adapter.RunMessageCompleted, ThreadID: m.ThreadID, Text: tm.Content, Annotations: tm.Annotations}, true, nil

	case "thread.run.completed":
		var r wireRun
		if err := unmarshal(typ, data, &r); err != nil {
			return adapter.RunEvent{}, false, err
		}
		return adapter.RunEvent{Kind: adapter.RunCompleted, ThreadID: r.ThreadID, RunID: r.ID}, true, nil

	case "thread.run.failed", "thread.run.cancelled", "thread.run.expired", "thread.run.incomplete":
		var r wireRun
		if err := unmarshal(typ, data, &r); err != nil {
			return adapter.RunEvent{}, false, err
		}
		reason := r.failure()
		if reason == "" {
			reason = strings.TrimPrefix(typ, "thread.run.")
		}
		return adapter.RunEvent{Kind: adapter.RunFailed, ThreadID: r.ThreadID, RunID: r.ID, Reason: reason}, true, nil

	case "error":
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Error   *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		msg, code := e.Message, e.Code
		if e.Error != nil {
			msg, code = e.Error.Message, e.Error.Code
		}
		switch code {
		case "rate_limit_exceeded":
			return adapter.RunEvent{}, false, fmt.Errorf("stream error: %s: %w", msg, domain.ErrRateLimited)
		case "insufficient_quota":
			return adapter.RunEvent{}, false, fmt.Errorf("stream error: %s: %w", msg, domain.ErrQuotaExceeded)
		}
		return adapter.RunEvent{}, false, fmt.Errorf("stream error: %s: %w", msg, domain.ErrUpstream)
	}
	return adapter.RunEvent{}, false, nil
}

func unmarshal(typ string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %v: %w", typ, err, domain.ErrUpstreamFormat)
	}
	return nil
}

// --- wire shapes ---

type wireThread struct {
	ID string `json:"id"`
}

type wireRun struct {
	ID        string `json:"id"`
	ThreadID  string `json:"thread_id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
}

func (r wireRun) failure() string {
	if r.LastError != nil && r.LastError.Message != "" {
		return r.LastError.Message
	}
	if r.IncompleteDetails != nil {
		return r.IncompleteDetails.Reason
	}
	return ""
}

func (r wireRun) toRun() adapter.Run {
	return adapter.Run{ID: r.ID, ThreadID: r.ThreadID, Status: adapter.RunStatus(r.Status), LastError: r.failure()}
}

type wireAnnotation struct {
	Type         string `json:"type"`
	Text         string `json:"text"`
	FileCitation *struct {
		FileID string `json:"file_id"`
		Quote  string `json:"quote"`
	} `json:"file_citation"`
}

type wireContent struct {
	Type string `json:"type"`
	Text *struct {
		Value       string           `json:"value"`
		Annotations []wireAnnotation `json:"annotations"`
	} `json:"text"`
}

type wireMessage struct {
	ID       string        `json:"id"`
	ThreadID string        `json:"thread_id"`
	Role     string        `json:"role"`
	Content  []wireContent `json:"content"`
}

func (m wireMessage) toThreadMessage() adapter.ThreadMessage {
	text, anns := flattenContent(m.Content)
	return adapter.ThreadMessage{Role: m.Role, Content: text, Annotations: anns}
}

// flattenContent joins the text parts and collects file citations in order.
func flattenContent(parts []wireContent) (string, []adapter.Annotation) {
	var b strings.Builder
	var anns []adapter.Annotation
	for _, p := range parts {
		if p.Type != "text" || p.Text == nil {
			continue
		}
		b.WriteString(p.Text.Value)
		for _, a := range p.Text.Annotations {
			if a.Type != "file_citation" || a.FileCitation == nil || a.FileCitation.FileID == "" {
				continue
			}
			anns = append(anns, adapter.Annotation{FileID: a.FileCitation.FileID, Quote: a.FileCitation.Quote, Text: a.Text})
		}
	}
	return b.String(), anns
}
