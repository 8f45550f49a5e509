package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"voicesurvey/internal/callqueue"
	"voicesurvey/internal/interpret"
	"voicesurvey/internal/survey"
)

// AttemptStore is the subset of the call queue repository the engine needs to
// resolve and advance an attempt mid-call.
type AttemptStore interface {
	Get(ctx context.Context, id string) (callqueue.CallAttempt, error)
	GetByCallSID(ctx context.Context, sid string) (callqueue.CallAttempt, error)
	Update(ctx context.Context, a callqueue.CallAttempt) error
}

// SurveyStore is the subset of the survey repository the engine consumes.
type SurveyStore interface {
	GetSurvey(ctx context.Context, id string) (survey.Survey, error)
	QuestionsForSurvey(ctx context.Context, surveyID string) ([]survey.Question, error)
	GetRecipient(ctx context.Context, id string) (survey.Recipient, error)
	UpdateRecipientName(ctx context.Context, id, name string) error
	AppendResponse(ctx context.Context, r survey.Response) error
}

// ScriptPreparer renders a batch of prompt texts to playable audio URLs.
// Implemented by the speech synthesizer; nil disables audio mode entirely.
type ScriptPreparer interface {
	PrepareScript(ctx context.Context, texts []string, voiceID string) ([]string, error)
}

var ErrUnknownAttempt = errors.New("engine: unknown call attempt")

const (
	closingRemark = "That was the last question. Thank you so much for your time. Goodbye."
	repromptLead  = "Sorry, I didn't catch that. "
)

// TurnRequest is one decoded gather callback from the telephony gateway.
type TurnRequest struct {
	AttemptID string
	CallSID   string

	// Ordinal is the question the previous gather was listening for; 0 is
	// the introduction. Total is advisory only: the stored survey's question
	// count is authoritative.
	Ordinal int
	Total   int

	// Input is the recognized speech, empty when the gather timed out.
	// Digits is keypad entry and takes precedence when present.
	Input  string
	Digits string

	// HasConfidence is true when the gateway attached a recognition
	// confidence score to the input.
	HasConfidence bool

	// SayOnly means synthesis already failed earlier in this call; the turn
	// stays in gateway <Say> mode rather than retrying audio every round.
	SayOnly bool
}

// PromptSegment is one utterance in a turn. AudioURL empty means the gateway
// speaks Text itself.
type PromptSegment struct {
	Text     string
	AudioURL string
}

// GatherSpec describes the listen-and-call-back block of a turn, including
// the single embedded re-prompt spoken if the first gather hears nothing.
type GatherSpec struct {
	AttemptID string
	Ordinal   int
	Total     int
	SayOnly   bool
	Reprompt  []PromptSegment
}

// TurnInstruction is what the adapter renders into gateway markup.
type TurnInstruction struct {
	Segments []PromptSegment
	Gather   *GatherSpec
	Hangup   bool
}

// Service executes turns: it records answers, advances the attempt and
// produces the next turn's instruction.
type Service struct {
	attempts AttemptStore
	store    SurveyStore
	script   ScriptPreparer
	interp   *interpret.Interpreter
	names    interpret.NameExtractor

	log   *slog.Logger
	clock func() time.Time
	newID func() string
}

func NewService(attempts AttemptStore, store SurveyStore, script ScriptPreparer, names interpret.NameExtractor, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		attempts: attempts,
		store:    store,
		script:   script,
		interp:   interpret.New(),
		names:    names,
		log:      log,
		clock:    time.Now,
		newID:    uuid.NewString,
	}
}

// NextTurn computes the turn for one webhook callback. Recording failures
// are logged and swallowed: a live call is never dropped over bookkeeping.
func (s *Service) NextTurn(ctx context.Context, req TurnRequest) (TurnInstruction, error) {
	attempt, err := s.loadAttempt(ctx, req)
	if err != nil {
		return TurnInstruction{}, err
	}

	questions, err := s.store.QuestionsForSurvey(ctx, attempt.SurveyID)
	if err != nil {
		return TurnInstruction{}, fmt.Errorf("engine: load questions: %w", err)
	}
	total := len(questions)

	input := strings.TrimSpace(req.Input)
	if d := strings.TrimSpace(req.Digits); d != "" {
		input = d
	}

	step := Transition(req.Ordinal, input, total, req.HasConfidence)

	var followUp string
	if step.Record {
		followUp = s.record(ctx, &attempt, questions[req.Ordinal-1], req.Ordinal, input, req.CallSID)
	}

	var segments []PromptSegment
	if followUp != "" {
		segments = append(segments, PromptSegment{Text: followUp})
	}

	instr := TurnInstruction{}
	switch step.Kind {
	case StepIntroduction:
		segments = append(segments,
			PromptSegment{Text: s.introText(ctx, attempt, total)},
			PromptSegment{Text: questions[0].Prompt},
		)
		instr.Gather = s.gatherFor(attempt, 0, total, questions[0].Prompt)
	case StepQuestion:
		q := questions[step.Ordinal-1]
		segments = append(segments, PromptSegment{Text: q.Prompt})
		instr.Gather = s.gatherFor(attempt, step.Ordinal, total, q.Prompt)
	case StepCompleted:
		segments = append(segments, PromptSegment{Text: closingRemark})
		instr.Hangup = true
		s.markCompleted(ctx, attempt)
	}
	instr.Segments = segments

	s.prepareAudio(ctx, &instr, attempt.Voice, req.SayOnly)
	return instr, nil
}

// loadAttempt resolves the attempt by its id, falling back to the gateway's
// call-session id when the callback lost the attempt parameter.
func (s *Service) loadAttempt(ctx context.Context, req TurnRequest) (callqueue.CallAttempt, error) {
	if req.AttemptID != "" {
		a, err := s.attempts.Get(ctx, req.AttemptID)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, callqueue.ErrNotFound) {
			return callqueue.CallAttempt{}, fmt.Errorf("engine: load attempt: %w", err)
		}
	}
	if req.CallSID != "" {
		a, err := s.attempts.GetByCallSID(ctx, req.CallSID)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, callqueue.ErrNotFound) {
			return callqueue.CallAttempt{}, fmt.Errorf("engine: load attempt by sid: %w", err)
		}
	}
	return callqueue.CallAttempt{}, ErrUnknownAttempt
}

// record persists the answer as an append-only response row, mirrors it into
// the attempt's progress cache and runs the best-effort name side channel.
// It returns the follow-up text to speak before the next prompt, if the
// question's trigger matched.
func (s *Service) record(ctx context.Context, attempt *callqueue.CallAttempt, q survey.Question, ordinal int, input, callSID string) string {
	res := s.interp.Interpret(input)

	if callSID == "" {
		callSID = attempt.CallSID
	}
	row := survey.Response{
		ID:           s.newID(),
		RecipientID:  attempt.RecipientID,
		QuestionID:   q.ID,
		RawText:      input,
		NumericValue: res.Numeric,
		Insight:      res.Insight,
		CallSID:      callSID,
		CreatedAt:    s.clock().UTC(),
	}
	if err := s.store.AppendResponse(ctx, row); err != nil {
		s.log.Error("response append failed", "attempt_id", attempt.ID, "question_id", q.ID, "err", err)
	}

	if attempt.Responses == nil {
		attempt.Responses = make(map[string]string)
	}
	attempt.Responses[q.ID] = input
	if ordinal > attempt.QuestionsAnswered {
		attempt.QuestionsAnswered = ordinal
	}
	attempt.UpdatedAt = s.clock().UTC()
	if err := s.attempts.Update(ctx, *attempt); err != nil {
		s.log.Error("attempt progress update failed", "attempt_id", attempt.ID, "err", err)
	}

	s.maybeExtractName(ctx, attempt.RecipientID, input)

	if q.FollowUpText != "" && followUpTriggered(q.FollowUpTrigger, input, res.Numeric) {
		return q.FollowUpText
	}
	return ""
}

// maybeExtractName overwrites a placeholder recipient name when the answer
// contains a self-introduction. Strictly best-effort.
func (s *Service) maybeExtractName(ctx context.Context, recipientID, input string) {
	if s.names == nil {
		return
	}
	name, ok := s.names.ExtractName(input)
	if !ok {
		return
	}
	rec, err := s.store.GetRecipient(ctx, recipientID)
	if err != nil || !rec.HasPlaceholderName() {
		return
	}
	if err := s.store.UpdateRecipientName(ctx, recipientID, name); err != nil {
		s.log.Warn("recipient name update failed", "recipient_id", recipientID, "err", err)
	}
}

func (s *Service) markCompleted(ctx context.Context, attempt callqueue.CallAttempt) {
	if attempt.Status.Terminal() {
		return
	}
	attempt.Status = callqueue.StatusCompleted
	attempt.UpdatedAt = s.clock().UTC()
	if err := s.attempts.Update(ctx, attempt); err != nil {
		s.log.Error("attempt completion update failed", "attempt_id", attempt.ID, "err", err)
	}
}

func (s *Service) introText(ctx context.Context, a callqueue.CallAttempt, total int) string {
	greeting := "Hello"
	if rec, err := s.store.GetRecipient(ctx, a.RecipientID); err == nil && !rec.HasPlaceholderName() {
		greeting = "Hello " + rec.Name
	}
	name := "a quick survey"
	if sv, err := s.store.GetSurvey(ctx, a.SurveyID); err == nil && sv.Name != "" {
		name = sv.Name
	}
	return fmt.Sprintf("%s, and thanks for picking up. This is %s, an automated call with %d short questions. Here is the first one.", greeting, name, total)
}

func (s *Service) gatherFor(a callqueue.CallAttempt, ordinal, total int, prompt string) *GatherSpec {
	return &GatherSpec{
		AttemptID: a.ID,
		Ordinal:   ordinal,
		Total:     total,
		Reprompt:  []PromptSegment{{Text: repromptLead + prompt}},
	}
}

// prepareAudio attaches synthesized asset URLs to every segment, including
// the embedded re-prompt. A whole-batch synthesis failure degrades the rest
// of the call to say mode, which the gather propagates through its callback
// URL.
func (s *Service) prepareAudio(ctx context.Context, instr *TurnInstruction, voice callqueue.VoiceOptions, sayOnly bool) {
	useAudio := voice.UseAudio && !sayOnly && s.script != nil
	if instr.Gather != nil {
		instr.Gather.SayOnly = !useAudio
	}
	if !useAudio {
		return
	}

	texts := make([]string, 0, len(instr.Segments)+1)
	for _, seg := range instr.Segments {
		texts = append(texts, seg.Text)
	}
	repromptStart := len(texts)
	if instr.Gather != nil {
		for _, seg := range instr.Gather.Reprompt {
			texts = append(texts, seg.Text)
		}
	}

	urls, err := s.script.PrepareScript(ctx, texts, voice.VoiceID)
	if err != nil {
		s.log.Warn("script synthesis failed, falling back to say mode", "err", err)
		if instr.Gather != nil {
			instr.Gather.SayOnly = true
		}
		return
	}
	for i := range instr.Segments {
		instr.Segments[i].AudioURL = urls[i]
	}
	if instr.Gather != nil {
		for i := range instr.Gather.Reprompt {
			instr.Gather.Reprompt[i].AudioURL = urls[repromptStart+i]
		}
	}
}

// followUpTriggered reports whether the recorded answer matches the
// question's follow-up trigger. Triggers compare case-insensitively against
// the answer's tokens and against the interpreted numeric value.
func followUpTriggered(trigger, raw string, numeric *int) bool {
	trigger = strings.ToLower(strings.TrimSpace(trigger))
	if trigger == "" {
		return false
	}
	if numeric != nil && trigger == strconv.Itoa(*numeric) {
		return true
	}
	for _, tok := range strings.Fields(strings.ToLower(raw)) {
		if strings.Trim(tok, ".,!?") == trigger {
			return true
		}
	}
	return false
}
