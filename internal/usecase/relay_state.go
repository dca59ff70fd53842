package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"colleague-chat/internal/domain/model"
	"colleague-chat/internal/domain/ports/adapter"
)

// relayState accumulates one provider run. It is only ever replaced, never mutated in place.
type relayState struct {
	ThreadID    string
	RunID       string
	Text        string
	Tokens      int
	Annotations []adapter.Annotation
	Done        bool
	Failure     string
}

// reduce folds one run event into the state and returns the UI events it produces.
func reduce(s relayState, ev adapter.RunEvent) (relayState, []model.StreamEvent) {
	switch ev.Kind {
	case adapter.RunThreadCreated:
		if s.ThreadID == "" {
			s.ThreadID = ev.ThreadID
		}
	case adapter.RunCreated:
		s.RunID = ev.RunID
	case adapter.RunTextDelta:
		s.Annotations = appendAnnotations(s.Annotations, ev.Annotations)
		if ev.Text == "" {
			return s, nil
		}
		s.Text += ev.Text
		s.Tokens++
		return s, []model.StreamEvent{{Type: model.EventToken, Text: ev.Text}}
	case adapter.RunMessageCompleted:
		s.Annotations = appendAnnotations(s.Annotations, ev.Annotations)
	case adapter.RunCompleted:
		s.Done = true
	case adapter.RunFailed:
		s.Failure = ev.Reason
		if s.Failure == "" {
			s.Failure = "unknown"
		}
	}
	return s, nil
}

func appendAnnotations(dst, src []adapter.Annotation) []adapter.Annotation {
	if len(src) == 0 {
		return dst
	}
	out := make([]adapter.Annotation, 0, len(dst)+len(src))
	out = append(out, dst...)
	return append(out, src...)
}

// QuestionHash is the response-cache key: sha256 of the trimmed, lower-cased question,
// scoped by assistant when scope is non-empty.
func QuestionHash(question, scope string) string {
	norm := strings.ToLower(strings.TrimSpace(question))
	if scope != "" {
		norm = scope + "\x00" + norm
	}
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

// wordChunks splits text into words with their trailing whitespace so that the
// concatenation of the chunks equals text.
func wordChunks(text string) []string {
	var (
		out     []string
		start   int
		inSpace bool
	)
	for i, r := range text {
		space := unicode.IsSpace(r)
		if inSpace && !space && i > start {
			out = append(out, text[start:i])
			start = i
		}
		inSpace = space
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
