package survey

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("survey: not found")

// Repository is the persistence contract for surveys, questions, recipients
// and responses.
//
// Responses are append-only; there are no update or delete operations for
// them.
type Repository interface {
	CreateSurvey(ctx context.Context, s Survey) error
	GetSurvey(ctx context.Context, id string) (Survey, error)

	CreateQuestion(ctx context.Context, q Question) error
	GetQuestion(ctx context.Context, id string) (Question, error)
	LinkQuestion(ctx context.Context, link SurveyQuestionLink) error

	// CreateQuestionWithLink inserts the question and its survey link
	// atomically, so a failed link insert cannot strand an orphan question.
	CreateQuestionWithLink(ctx context.Context, q Question, link SurveyQuestionLink) error

	// QuestionsForSurvey returns the survey's questions ordered by link
	// position, ties broken by link creation order.
	QuestionsForSurvey(ctx context.Context, surveyID string) ([]Question, error)

	CreateRecipient(ctx context.Context, r Recipient) error
	GetRecipient(ctx context.Context, id string) (Recipient, error)
	UpdateRecipientName(ctx context.Context, id, name string) error

	AppendResponse(ctx context.Context, r Response) error
	ResponsesForRecipient(ctx context.Context, recipientID string) ([]Response, error)
}
