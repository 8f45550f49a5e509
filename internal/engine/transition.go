// Package engine is the call turn state machine. The conversation's program
// counter travels inside the webhook callback URL, so each turn is computed
// from (ordinal, input, total) plus the stored attempt; no per-call state
// lives in server memory between callbacks.
package engine

import "voicesurvey/internal/interpret"

type StepKind int

const (
	// StepIntroduction greets the recipient, states the survey length and
	// asks question 1, gathering back to ordinal 0.
	StepIntroduction StepKind = iota
	// StepQuestion asks question Ordinal and gathers back to it.
	StepQuestion
	// StepCompleted plays the closing remark and hangs up.
	StepCompleted
)

// Step is the outcome of one transition.
type Step struct {
	Kind StepKind

	// Ordinal is the 1-based question asked next. Zero for StepCompleted.
	Ordinal int

	// Record reports whether the input answers the request's own ordinal
	// and must be persisted as a response row.
	Record bool
}

// Transition maps one gather callback onto the next conversation state.
//
// ordinal is the 1-based question the gather was listening for; 0 means the
// introduction. Rules apply in order:
//
//  1. ordinal >= total ends the call regardless of input. Input present on
//     this final callback still answers question `ordinal`.
//  2. ordinal 0 with no input plays the introduction.
//  3. ordinal 0 with input advances to question 1 without recording; the
//     reply confirmed the introduction, it did not answer anything.
//  4. silence at a question re-issues that question.
//  5. a bare affirmation at question 1 with no confidence signal reads as a
//     late "yes, go ahead" and re-issues question 1 instead of recording an
//     answer of yes.
//  6. anything else answers question `ordinal` and advances.
func Transition(ordinal int, input string, total int, hasConfidence bool) Step {
	switch {
	case ordinal >= total:
		return Step{Kind: StepCompleted, Record: ordinal >= 1 && ordinal <= total && input != ""}
	case ordinal == 0 && input == "":
		return Step{Kind: StepIntroduction, Ordinal: 1}
	case ordinal == 0:
		return Step{Kind: StepQuestion, Ordinal: 1}
	case input == "":
		return Step{Kind: StepQuestion, Ordinal: ordinal}
	case ordinal == 1 && !hasConfidence && interpret.IsAffirmation(input):
		return Step{Kind: StepQuestion, Ordinal: 1}
	default:
		return Step{Kind: StepQuestion, Ordinal: ordinal + 1, Record: true}
	}
}
