package survey

import "time"

// Survey is an ordered questionnaire delivered over an outbound phone call.
//
// Editing a survey after calls have started recording responses is allowed,
// but already-recorded responses keep the question they were answered
// against; nothing is rewritten retroactively.
type Survey struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type ResponseType string

const (
	ResponseTypeScale          ResponseType = "scale"
	ResponseTypeYesNo          ResponseType = "yes_no"
	ResponseTypeMultipleChoice ResponseType = "multiple_choice"
	ResponseTypeOpenEnded      ResponseType = "open_ended"
)

// Question is a single prompt in the question bank. Questions are shared:
// the survey ordering lives on SurveyQuestionLink, not here.
type Question struct {
	ID     string `json:"id" db:"id"`
	Prompt string `json:"prompt" db:"prompt"`

	// ResponseType is an optional hint for the interpreter; empty means
	// open-ended.
	ResponseType ResponseType `json:"response_type,omitempty" db:"response_type"`
	Options      []string     `json:"options,omitempty" db:"options"`

	// FollowUpTrigger, when it matches the recorded answer, causes
	// FollowUpText to be spoken before the next question.
	FollowUpTrigger string `json:"follow_up_trigger,omitempty" db:"follow_up_trigger"`
	FollowUpText    string `json:"follow_up_text,omitempty" db:"follow_up_text"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SurveyQuestionLink attaches a question to a survey at an explicit position.
// Position ties are broken by link creation order.
type SurveyQuestionLink struct {
	ID         string    `json:"id" db:"id"`
	SurveyID   string    `json:"survey_id" db:"survey_id"`
	QuestionID string    `json:"question_id" db:"question_id"`
	Position   int       `json:"position" db:"position"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Recipient is a person the platform calls.
type Recipient struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Phone     string    `json:"phone" db:"phone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// placeholderNames are values the import tooling writes when a contact's
// real name is unknown. Name extraction may overwrite these.
var placeholderNames = map[string]struct{}{
	"":          {},
	"unknown":   {},
	"recipient": {},
	"customer":  {},
	"contact":   {},
	"friend":    {},
}

// HasPlaceholderName reports whether the stored name may be replaced by the
// best-effort name extraction side channel.
func (r Recipient) HasPlaceholderName() bool {
	_, ok := placeholderNames[normalizeName(r.Name)]
	return ok
}

func normalizeName(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		if r == ' ' || r == '\t' {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// Response is one interpreted answer. Rows are append-only: re-answering the
// same question in a retried call attempt creates a new row.
type Response struct {
	ID          string `json:"id" db:"id"`
	RecipientID string `json:"recipient_id" db:"recipient_id"`
	QuestionID  string `json:"question_id" db:"question_id"`

	RawText string `json:"raw_text" db:"raw_text"`

	// NumericValue is nil when no numeric signal was found in the answer.
	NumericValue *int `json:"numeric_value,omitempty" db:"numeric_value"`

	// Insight is a templated presentation phrase bucketed by NumericValue.
	// It is not derived from the text beyond the numeric bucket.
	Insight string `json:"insight,omitempty" db:"insight"`

	// CallSID ties the row to the external call session that produced it.
	CallSID   string    `json:"call_sid" db:"call_sid"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
