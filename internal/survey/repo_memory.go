package survey

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory Repository used by tests and by the turn engine's
// unit tests. It is not intended for production use.
type MemoryRepo struct {
	mu         sync.Mutex
	surveys    map[string]Survey
	questions  map[string]Question
	links      []SurveyQuestionLink
	recipients map[string]Recipient
	responses  []Response
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		surveys:    make(map[string]Survey),
		questions:  make(map[string]Question),
		recipients: make(map[string]Recipient),
	}
}

func (r *MemoryRepo) CreateSurvey(ctx context.Context, s Survey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surveys[s.ID] = s
	return nil
}

func (r *MemoryRepo) GetSurvey(ctx context.Context, id string) (Survey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.surveys[id]
	if !ok {
		return Survey{}, ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepo) CreateQuestion(ctx context.Context, q Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.questions[q.ID] = q
	return nil
}

func (r *MemoryRepo) GetQuestion(ctx context.Context, id string) (Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[id]
	if !ok {
		return Question{}, ErrNotFound
	}
	return q, nil
}

func (r *MemoryRepo) CreateQuestionWithLink(ctx context.Context, q Question, link SurveyQuestionLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.questions[q.ID] = q
	r.links = append(r.links, link)
	return nil
}

func (r *MemoryRepo) LinkQuestion(ctx context.Context, link SurveyQuestionLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links = append(r.links, link)
	return nil
}

func (r *MemoryRepo) QuestionsForSurvey(ctx context.Context, surveyID string) ([]Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	links := make([]SurveyQuestionLink, 0)
	for _, l := range r.links {
		if l.SurveyID == surveyID {
			links = append(links, l)
		}
	}
	sort.SliceStable(links, func(i, j int) bool {
		if links[i].Position != links[j].Position {
			return links[i].Position < links[j].Position
		}
		return links[i].CreatedAt.Before(links[j].CreatedAt)
	})

	out := make([]Question, 0, len(links))
	for _, l := range links {
		q, ok := r.questions[l.QuestionID]
		if !ok {
			return nil, ErrNotFound
		}
		out = append(out, q)
	}
	return out, nil
}

func (r *MemoryRepo) CreateRecipient(ctx context.Context, rec Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recipients[rec.ID] = rec
	return nil
}

func (r *MemoryRepo) GetRecipient(ctx context.Context, id string) (Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recipients[id]
	if !ok {
		return Recipient{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepo) UpdateRecipientName(ctx context.Context, id, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recipients[id]
	if !ok {
		return ErrNotFound
	}
	rec.Name = name
	r.recipients[id] = rec
	return nil
}

func (r *MemoryRepo) AppendResponse(ctx context.Context, resp Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, resp)
	return nil
}

func (r *MemoryRepo) ResponsesForRecipient(ctx context.Context, recipientID string) ([]Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Response, 0)
	for _, resp := range r.responses {
		if resp.RecipientID == recipientID {
			out = append(out, resp)
		}
	}
	return out, nil
}
