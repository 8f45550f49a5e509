package callqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Dialer places an outbound call and returns the gateway's call-session id.
// Implemented by internal/telephony.
type Dialer interface {
	PlaceCall(ctx context.Context, to, from, callbackURL string) (string, error)
}

// Limiter bounds concurrent outbound calls. Implemented over Redis in main;
// nil disables the cap.
type Limiter interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// RecipientSource is the subset of the survey repository the queue needs to
// resolve a recipient's phone number and a survey's question count.
type RecipientSource interface {
	GetRecipient(ctx context.Context, id string) (Recipient, error)
	QuestionCount(ctx context.Context, surveyID string) (int, error)
}

// Recipient mirrors survey.Recipient's dialing fields; re-declared here so
// the queue does not import the survey package wholesale.
type Recipient struct {
	ID    string
	Name  string
	Phone string
}

var (
	ErrAlreadyCompleted = errors.New("callqueue: attempt already completed")
	ErrCapacity         = errors.New("callqueue: concurrent call cap reached")
	ErrInvalidArgument  = errors.New("callqueue: invalid argument")
)

// Service owns the lifecycle of call attempts: enqueue, dial, retry,
// duplicate consolidation and the stale-attempt sweep.
//
// Failure semantics: queue bookkeeping is best-effort. A failed status update
// is logged and swallowed wherever aborting would kill a live phone call or
// leave a webhook unanswered.
type Service struct {
	repo       Repository
	dialer     Dialer
	limiter    Limiter
	recipients RecipientSource

	fromNumber    string
	publicBaseURL string

	log   *slog.Logger
	clock func() time.Time
}

type ServiceConfig struct {
	FromNumber    string
	PublicBaseURL string
}

func NewService(repo Repository, dialer Dialer, recipients RecipientSource, limiter Limiter, cfg ServiceConfig, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:          repo,
		dialer:        dialer,
		limiter:       limiter,
		recipients:    recipients,
		fromNumber:    cfg.FromNumber,
		publicBaseURL: cfg.PublicBaseURL,
		log:           log,
		clock:         time.Now,
	}
}

// Enqueue creates a call attempt, or updates the existing open attempt for
// the same (recipient, survey) pair in place. Repeated dashboard actions
// therefore cannot fan out duplicate attempts.
func (s *Service) Enqueue(ctx context.Context, recipientID, surveyID string, voice VoiceOptions, scheduleAt *time.Time) (CallAttempt, error) {
	if recipientID == "" || surveyID == "" {
		return CallAttempt{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	status := StatusPending
	if scheduleAt != nil {
		status = StatusScheduled
	}

	existing, ok, err := s.repo.FindOpen(ctx, recipientID, surveyID)
	if err != nil {
		return CallAttempt{}, err
	}
	if ok {
		existing.Status = status
		existing.Voice = voice
		existing.NextAttemptAt = scheduleAt
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, existing); err != nil {
			return CallAttempt{}, err
		}
		return existing, nil
	}

	a := CallAttempt{
		ID:            uuid.NewString(),
		RecipientID:   recipientID,
		SurveyID:      surveyID,
		Status:        status,
		Voice:         voice,
		NextAttemptAt: scheduleAt,
		Responses:     make(map[string]string),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return CallAttempt{}, err
	}
	return a, nil
}

// StartCall places the outbound call for an attempt and transitions it to
// in-progress. The concurrency cap, when configured, is checked first.
func (s *Service) StartCall(ctx context.Context, id string) (CallAttempt, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return CallAttempt{}, err
	}
	if a.Status == StatusCompleted {
		return CallAttempt{}, ErrAlreadyCompleted
	}

	rec, err := s.recipients.GetRecipient(ctx, a.RecipientID)
	if err != nil {
		return CallAttempt{}, fmt.Errorf("callqueue: recipient lookup: %w", err)
	}

	if s.limiter != nil {
		ok, err := s.limiter.Acquire(ctx)
		if err != nil {
			// The cap is protective, not load-bearing; log and dial anyway.
			s.log.Warn("call cap check failed", "attempt_id", id, "err", err)
		} else if !ok {
			return CallAttempt{}, ErrCapacity
		}
	}

	sid, err := s.dialer.PlaceCall(ctx, rec.Phone, s.fromNumber, s.initialTurnURL(ctx, a))
	if err != nil {
		s.markDialFailed(ctx, a, err)
		return CallAttempt{}, fmt.Errorf("callqueue: place call: %w", err)
	}

	s.MarkInProgress(ctx, id, sid)
	a, getErr := s.repo.Get(ctx, id)
	if getErr != nil {
		// Bookkeeping failed but the call is live; return what we know.
		a.CallSID = sid
		a.Status = StatusInProgress
	}
	return a, nil
}

// MarkInProgress increments the attempt counter, stamps last_attempt_at and
// transitions the attempt. It logs instead of failing: a live phone call
// cannot be aborted mid-ring over a bookkeeping error.
func (s *Service) MarkInProgress(ctx context.Context, id, callSID string) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		s.log.Error("mark in-progress: attempt lookup failed", "attempt_id", id, "err", err)
		return
	}

	now := s.clock().UTC()
	a.Status = StatusInProgress
	a.AttemptCount++
	a.LastAttemptAt = &now
	a.NextAttemptAt = nil
	if callSID != "" {
		a.CallSID = callSID
	}
	a.UpdatedAt = now

	if err := s.repo.Update(ctx, a); err != nil {
		s.log.Error("mark in-progress: update failed", "attempt_id", id, "err", err)
	}
}

// Retry re-validates the attempt and places a fresh outbound call using the
// stored recipient, survey and voice options. A retry is always a new call,
// never a resumption of a stale conversation.
func (s *Service) Retry(ctx context.Context, id string) (CallAttempt, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return CallAttempt{}, err
	}
	if a.Status == StatusCompleted {
		return CallAttempt{}, ErrAlreadyCompleted
	}
	return s.StartCall(ctx, id)
}

// Consolidate merges duplicate attempts sharing (recipient, survey) into the
// oldest one: attempt counts are summed, the newest duplicate contributes
// last_attempt_at, call_sid and voice options, and the rest are deleted.
//
// Enqueue's upsert makes this a no-op in steady state; it remains as a
// migration tool for duplicates created before the uniqueness rule existed.
// Running it twice yields the same surviving records.
func (s *Service) Consolidate(ctx context.Context) (int, error) {
	all, err := s.repo.List(ctx, Filter{})
	if err != nil {
		return 0, err
	}

	groups := make(map[string][]CallAttempt)
	for _, a := range all {
		key := a.RecipientID + "|" + a.SurveyID
		groups[key] = append(groups[key], a)
	}

	merged := 0
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].CreatedAt.Before(group[j].CreatedAt) })

		survivor := group[0]
		newest := group[len(group)-1]

		total := 0
		for _, a := range group {
			total += a.AttemptCount
		}
		survivor.AttemptCount = total
		survivor.LastAttemptAt = newest.LastAttemptAt
		if newest.CallSID != "" {
			survivor.CallSID = newest.CallSID
		}
		survivor.Voice = newest.Voice
		if survivor.Responses == nil {
			survivor.Responses = make(map[string]string)
		}
		for _, a := range group[1:] {
			for qid, raw := range a.Responses {
				survivor.Responses[qid] = raw
			}
			if a.QuestionsAnswered > survivor.QuestionsAnswered {
				survivor.QuestionsAnswered = a.QuestionsAnswered
			}
		}
		survivor.UpdatedAt = s.clock().UTC()

		if err := s.repo.Update(ctx, survivor); err != nil {
			s.log.Error("consolidate: survivor update failed", "attempt_id", survivor.ID, "err", err)
			continue
		}
		for _, a := range group[1:] {
			if err := s.repo.Delete(ctx, a.ID); err != nil {
				s.log.Error("consolidate: duplicate delete failed", "attempt_id", a.ID, "err", err)
				continue
			}
			merged++
		}
	}
	return merged, nil
}

// ResolveCallEnd maps a gateway call-status event onto the attempt's
// lifecycle. A call that ended while the attempt was still in progress was
// abandoned mid-survey; busy, no-answer and error statuses resolve to
// failed. Attempts the turn loop already completed are left alone.
func (s *Service) ResolveCallEnd(ctx context.Context, callSID, gatewayStatus string) {
	if callSID == "" {
		return
	}
	switch gatewayStatus {
	case "completed", "busy", "no-answer", "failed", "canceled":
	default:
		// Interim statuses (ringing, in-progress) carry no lifecycle change.
		return
	}

	a, err := s.repo.GetByCallSID(ctx, callSID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Error("call end: attempt lookup failed", "call_sid", callSID, "err", err)
		}
		return
	}

	// The call is over either way; the concurrency slot must come back even
	// when the turn loop already resolved the attempt.
	if s.limiter != nil {
		_ = s.limiter.Release(ctx)
	}
	if a.Status.Terminal() {
		return
	}

	switch gatewayStatus {
	case "completed":
		a.Status = StatusAbandoned
		a.ErrorMessage = "call ended before the last question"
	default:
		a.Status = StatusFailed
		a.ErrorMessage = "call not completed: " + gatewayStatus
	}
	a.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, a); err != nil {
		s.log.Error("call end: update failed", "attempt_id", a.ID, "err", err)
	}
}

// SweepStale ages out in-progress attempts that stopped receiving webhook
// callbacks (hang-up with no terminal event, gateway outage). They are
// resolved to failed; a later retry places a fresh call.
func (s *Service) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.clock().UTC().Add(-olderThan)
	stale, err := s.repo.StaleInProgress(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, a := range stale {
		a.Status = StatusFailed
		a.ErrorMessage = "no webhook callback received before deadline"
		a.UpdatedAt = s.clock().UTC()
		if err := s.repo.Update(ctx, a); err != nil {
			s.log.Error("sweep: update failed", "attempt_id", a.ID, "err", err)
			continue
		}
		if s.limiter != nil {
			_ = s.limiter.Release(ctx)
		}
		swept++
	}
	if swept > 0 {
		s.log.Info("stale attempts swept", "count", swept, "cutoff", cutoff)
	}
	return swept, nil
}

// List exposes filtered attempts for the management API.
func (s *Service) List(ctx context.Context, f Filter) ([]CallAttempt, error) {
	return s.repo.List(ctx, f)
}

// Get exposes a single attempt for the management API.
func (s *Service) Get(ctx context.Context, id string) (CallAttempt, error) {
	return s.repo.Get(ctx, id)
}

// initialTurnURL builds the first-turn callback the gateway fetches when the
// recipient answers. Ordinal 0 means the introduction has not played yet.
func (s *Service) initialTurnURL(ctx context.Context, a CallAttempt) string {
	total := 0
	if n, err := s.recipients.QuestionCount(ctx, a.SurveyID); err == nil {
		total = n
	} else {
		s.log.Warn("question count lookup failed", "survey_id", a.SurveyID, "err", err)
	}

	v := url.Values{}
	v.Set("attempt", a.ID)
	v.Set("q", "0")
	v.Set("total", fmt.Sprintf("%d", total))
	if !a.Voice.UseAudio {
		v.Set("say", "1")
	}
	return s.publicBaseURL + "/webhooks/twilio/voice/turn?" + v.Encode()
}

func (s *Service) markDialFailed(ctx context.Context, a CallAttempt, dialErr error) {
	a.Status = StatusFailed
	a.ErrorMessage = dialErr.Error()
	a.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, a); err != nil {
		s.log.Error("dial failure bookkeeping failed", "attempt_id", a.ID, "err", err)
	}
	if s.limiter != nil {
		_ = s.limiter.Release(ctx)
	}
}
