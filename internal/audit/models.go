package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Actor and ip capture are best-effort; do not block queue flows on audit
//   failures.
type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated dashboard user causing the event.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress should capture the original client IP when available.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Target identifiers (optional, depending on the event type).
	AttemptID   string `json:"attempt_id,omitempty" db:"attempt_id"`
	SurveyID    string `json:"survey_id,omitempty" db:"survey_id"`
	RecipientID string `json:"recipient_id,omitempty" db:"recipient_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	// EventTypeQueueAction covers dashboard-initiated lifecycle mutations:
	// enqueue, start, retry.
	EventTypeQueueAction EventType = "queue_action"
	// EventTypeMaintenance covers consolidation and other admin maintenance.
	EventTypeMaintenance EventType = "maintenance"
)
