//go:build !integration

package funnel

import (
	"errors"
	"strings"
	"testing"

	"colleague-chat/internal/domain"
	"colleague-chat/internal/domain/model"
)

func TestStart(t *testing.T) {
	st := Start("Hello", model.DefaultFunnel)
	if !st.IsActive || st.CurrentStep != 0 {
		t.Fatalf("want active at step 0, got %+v", st)
	}
	if got := st.CollectedData[InitialQuestionKey]; got != "Hello" {
		t.Errorf("initial_question = %q, want Hello", got)
	}
	if q, ok := CurrentQuestion(st); !ok || q.ID != "component_type" {
		t.Errorf("current question = %+v", q)
	}
	if Placeholder(st) != "Bijv. verdampers" {
		t.Errorf("placeholder = %q", Placeholder(st))
	}
}

func TestAdvance_NRepliesFinish(t *testing.T) {
	questions := model.DefaultFunnel
	st := Start("Hello", questions)
	answers := []string{"verdampers", "RTK-1234", "wat is de maximale druk"}

	var step Step
	var err error
	for i, a := range answers {
		step, err = Advance(st, a)
		if err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
		if i < len(answers)-1 {
			if step.Done() {
				t.Fatalf("funnel finished early at reply %d", i+1)
			}
			if step.Prompt != questions[i+1].Question {
				t.Errorf("reply %d prompt = %q", i+1, step.Prompt)
			}
			st = *step.Next
		}
	}
	if !step.Done() {
		t.Fatal("want funnel done after N replies")
	}
	for _, want := range append(answers, "Hello") {
		if !strings.Contains(step.Prompt, want) {
			t.Errorf("compiled prompt misses %q:\n%s", want, step.Prompt)
		}
	}
	for _, q := range questions {
		if step.Prompt == q.Question {
			t.Errorf("compiled prompt must not be a funnel question")
		}
	}
}

func TestAdvance_DoesNotMutateInput(t *testing.T) {
	st := Start("Hello", model.DefaultFunnel)
	if _, err := Advance(st, "verdampers"); err != nil {
		t.Fatal(err)
	}
	if _, ok := st.CollectedData["component_type"]; ok {
		t.Error("Advance must not mutate the given state")
	}
}

func TestAdvance_Inactive(t *testing.T) {
	_, err := Advance(model.FunnelState{}, "x")
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}
