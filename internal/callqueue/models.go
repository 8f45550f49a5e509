package callqueue

import "time"

// Status is the lifecycle state of a call attempt.
type Status string

const (
	StatusPending    Status = "pending"
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusAbandoned  Status = "abandoned"
)

// Terminal reports whether the status ends the attempt's lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusAbandoned:
		return true
	default:
		return false
	}
}

// VoiceOptions select how prompts are rendered on a call.
// They are resolved once at enqueue time and re-derived identically on every
// webhook callback from the stored attempt, never re-decided per turn.
type VoiceOptions struct {
	VoiceID  string `json:"voice_id,omitempty"`
	Language string `json:"language,omitempty"`

	// UseAudio selects pre-rendered synthesis audio; false means the
	// gateway's phrase-level TTS (<Say>) is used instead.
	UseAudio bool `json:"use_audio"`
}

// CallAttempt is one queued/executed outbound survey call and its lifecycle.
//
// Invariants:
// - AttemptCount increases exactly once per distinct outbound call placed,
//   never per webhook callback, and is never decremented.
// - QuestionsAnswered is non-decreasing within one CallSID.
// - Responses is a denormalized progress cache (question id -> raw text);
//   the durable answer rows live in the responses table.
type CallAttempt struct {
	ID          string `json:"id" db:"id"`
	RecipientID string `json:"recipient_id" db:"recipient_id"`
	SurveyID    string `json:"survey_id" db:"survey_id"`

	Status Status `json:"status" db:"status"`

	AttemptCount  int        `json:"attempt_count" db:"attempt_count"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty" db:"next_attempt_at"`

	// CallSID is the external call-session identifier, assigned once the
	// telephony gateway accepts the call.
	CallSID string `json:"call_sid,omitempty" db:"call_sid"`

	Voice VoiceOptions `json:"voice" db:"voice"`

	Responses         map[string]string `json:"responses,omitempty" db:"responses"`
	QuestionsAnswered int               `json:"questions_answered" db:"questions_answered"`

	Notes        string `json:"notes,omitempty" db:"notes"`
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
