package engine

import "testing"

func TestTransitionTerminalAtTotal(t *testing.T) {
	for _, input := range []string{"", "yes", "5", "whatever you say"} {
		step := Transition(3, input, 3, true)
		if step.Kind != StepCompleted {
			t.Fatalf("ordinal==total with input %q: expected completed, got %v", input, step.Kind)
		}
	}
	if step := Transition(7, "5", 3, true); step.Kind != StepCompleted {
		t.Fatalf("ordinal past total must complete, got %v", step.Kind)
	} else if step.Record {
		t.Fatalf("ordinal past total maps to no question; nothing to record")
	}
}

func TestTransitionFinalAnswerRecorded(t *testing.T) {
	step := Transition(3, "it was fine", 3, true)
	if step.Kind != StepCompleted || !step.Record {
		t.Fatalf("input on the final callback answers the last question, got %+v", step)
	}
	if step := Transition(3, "", 3, false); step.Record {
		t.Fatalf("silence on the final callback records nothing")
	}
}

func TestTransitionIntroduction(t *testing.T) {
	step := Transition(0, "", 3, false)
	if step.Kind != StepIntroduction || step.Ordinal != 1 {
		t.Fatalf("expected introduction asking question 1, got %+v", step)
	}
}

func TestTransitionIntroReplyAdvancesWithoutRecording(t *testing.T) {
	for _, input := range []string{"yes", "sure go ahead", "5"} {
		step := Transition(0, input, 3, true)
		if step.Kind != StepQuestion || step.Ordinal != 1 || step.Record {
			t.Fatalf("input %q at ordinal 0: expected unrecorded question 1, got %+v", input, step)
		}
	}
}

func TestTransitionIntroConfirmationReissue(t *testing.T) {
	step := Transition(1, "yes", 3, false)
	if step.Kind != StepQuestion || step.Ordinal != 1 || step.Record {
		t.Fatalf("bare affirmation without confidence must re-issue question 1, got %+v", step)
	}
}

func TestTransitionConfidentYesIsAnAnswer(t *testing.T) {
	step := Transition(1, "yes", 3, true)
	if step.Kind != StepQuestion || step.Ordinal != 2 || !step.Record {
		t.Fatalf("yes with a confidence signal answers question 1, got %+v", step)
	}
}

func TestTransitionSilenceReissues(t *testing.T) {
	step := Transition(2, "", 3, false)
	if step.Kind != StepQuestion || step.Ordinal != 2 || step.Record {
		t.Fatalf("silence must re-issue the same question, got %+v", step)
	}
}

func TestTransitionAnswerAdvances(t *testing.T) {
	step := Transition(1, "5", 3, false)
	if step.Kind != StepQuestion || step.Ordinal != 2 || !step.Record {
		t.Fatalf("expected recorded advance to question 2, got %+v", step)
	}
}

func TestTransitionEmptySurveyCompletesImmediately(t *testing.T) {
	if step := Transition(0, "", 0, false); step.Kind != StepCompleted {
		t.Fatalf("zero questions must complete immediately, got %+v", step)
	}
}
