// Package funnel implements the scripted intake questions asked before the
// first real assistant query of a session. All functions are pure.
package funnel

import (
	"fmt"
	"strings"

	"colleague-chat/internal/domain"
	"colleague-chat/internal/domain/model"
)

// InitialQuestionKey holds the utterance that opened the funnel.
const InitialQuestionKey = "initial_question"

// Step is the outcome of one Advance call.
type Step struct {
	// Next is nil once the last question has been answered.
	Next *model.FunnelState
	// Prompt is the next question, or the compiled query when Next is nil.
	Prompt      string
	Placeholder string
}

// Done reports whether the funnel finished with this step.
func (s Step) Done() bool { return s.Next == nil }

// Start opens a funnel at step 0 with the initial utterance recorded.
func Start(initialText string, questions []model.FunnelQuestion) model.FunnelState {
	qs := make([]model.FunnelQuestion, len(questions))
	copy(qs, questions)
	return model.FunnelState{
		IsActive:      len(qs) > 0,
		CurrentStep:   0,
		CollectedData: map[string]string{InitialQuestionKey: initialText},
		Questions:     qs,
	}
}

// CurrentQuestion returns the question waiting for an answer.
func CurrentQuestion(state model.FunnelState) (model.FunnelQuestion, bool) {
	if !state.IsActive || state.CurrentStep < 0 || state.CurrentStep >= len(state.Questions) {
		return model.FunnelQuestion{}, false
	}
	return state.Questions[state.CurrentStep], true
}

// Placeholder is the input hint to show while the current question is open.
func Placeholder(state model.FunnelState) string {
	q, ok := CurrentQuestion(state)
	if !ok {
		return ""
	}
	return q.Placeholder
}

// Advance records answer under the current question and moves one step.
// The answer is stored verbatim.
func Advance(state model.FunnelState, answer string) (Step, error) {
	q, ok := CurrentQuestion(state)
	if !ok {
		return Step{}, fmt.Errorf("funnel not active: %w", domain.ErrInvalidArgument)
	}
	data := make(map[string]string, len(state.CollectedData)+1)
	for k, v := range state.CollectedData {
		data[k] = v
	}
	data[q.ID] = answer

	nextStep := state.CurrentStep + 1
	if nextStep >= len(state.Questions) {
		return Step{Prompt: Compile(state.Questions, data)}, nil
	}
	next := model.FunnelState{
		IsActive:      true,
		CurrentStep:   nextStep,
		CollectedData: data,
		Questions:     state.Questions,
	}
	nq := state.Questions[nextStep]
	return Step{Next: &next, Prompt: nq.Question, Placeholder: nq.Placeholder}, nil
}

// Compile renders the collected answers into the query sent to the assistant.
func Compile(questions []model.FunnelQuestion, data map[string]string) string {
	var b strings.Builder
	b.WriteString("Oorspronkelijke vraag: ")
	b.WriteString(strings.TrimSpace(data[InitialQuestionKey]))
	b.WriteString("\n")
	for _, q := range questions {
		b.WriteString("\n")
		b.WriteString(q.Question)
		b.WriteString("\nAntwoord: ")
		b.WriteString(strings.TrimSpace(data[q.ID]))
		b.WriteString("\n")
	}
	b.WriteString("\nZoek in de documentatie en beantwoord de vraag op basis van bovenstaande gegevens.")
	return b.String()
}
