package callqueue

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("callqueue: not found")

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status      Status
	RecipientID string
	SurveyID    string
}

// Repository is the persistence contract for call attempts.
//
// FindOpen returns the single non-terminal attempt for a (recipient, survey)
// pair if one exists. Enqueue upserts through it (find, then update in
// place); the store's partial unique index over non-terminal attempts
// backstops racing creates by rejecting the second insert outright.
type Repository interface {
	Create(ctx context.Context, a CallAttempt) error
	Get(ctx context.Context, id string) (CallAttempt, error)
	GetByCallSID(ctx context.Context, sid string) (CallAttempt, error)
	FindOpen(ctx context.Context, recipientID, surveyID string) (CallAttempt, bool, error)
	Update(ctx context.Context, a CallAttempt) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter) ([]CallAttempt, error)

	// StaleInProgress returns in-progress attempts whose last_attempt_at is
	// before the cutoff. Used by the reconciliation sweep.
	StaleInProgress(ctx context.Context, cutoff time.Time) ([]CallAttempt, error)
}
