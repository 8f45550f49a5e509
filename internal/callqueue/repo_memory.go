package callqueue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository used by tests.
// It mirrors the Postgres behavior including the one-open-attempt rule
// exercised through FindOpen.
type MemoryRepo struct {
	mu       sync.Mutex
	attempts map[string]CallAttempt
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{attempts: make(map[string]CallAttempt)}
}

func (r *MemoryRepo) Create(ctx context.Context, a CallAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[a.ID] = cloneAttempt(a)
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (CallAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return CallAttempt{}, ErrNotFound
	}
	return cloneAttempt(a), nil
}

func (r *MemoryRepo) GetByCallSID(ctx context.Context, sid string) (CallAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sid == "" {
		return CallAttempt{}, ErrNotFound
	}
	for _, a := range r.attempts {
		if a.CallSID == sid {
			return cloneAttempt(a), nil
		}
	}
	return CallAttempt{}, ErrNotFound
}

func (r *MemoryRepo) FindOpen(ctx context.Context, recipientID, surveyID string) (CallAttempt, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found CallAttempt
	var ok bool
	for _, a := range r.attempts {
		if a.RecipientID != recipientID || a.SurveyID != surveyID || a.Status.Terminal() {
			continue
		}
		// Oldest wins, matching the partial-index upsert target.
		if !ok || a.CreatedAt.Before(found.CreatedAt) {
			found = a
			ok = true
		}
	}
	if !ok {
		return CallAttempt{}, false, nil
	}
	return cloneAttempt(found), true, nil
}

func (r *MemoryRepo) Update(ctx context.Context, a CallAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attempts[a.ID]; !ok {
		return ErrNotFound
	}
	r.attempts[a.ID] = cloneAttempt(a)
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attempts[id]; !ok {
		return ErrNotFound
	}
	delete(r.attempts, id)
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, f Filter) ([]CallAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallAttempt, 0)
	for _, a := range r.attempts {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.RecipientID != "" && a.RecipientID != f.RecipientID {
			continue
		}
		if f.SurveyID != "" && a.SurveyID != f.SurveyID {
			continue
		}
		out = append(out, cloneAttempt(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) StaleInProgress(ctx context.Context, cutoff time.Time) ([]CallAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallAttempt, 0)
	for _, a := range r.attempts {
		if a.Status != StatusInProgress {
			continue
		}
		if a.LastAttemptAt != nil && a.LastAttemptAt.Before(cutoff) {
			out = append(out, cloneAttempt(a))
		}
	}
	return out, nil
}

func cloneAttempt(a CallAttempt) CallAttempt {
	out := a
	if a.Responses != nil {
		out.Responses = make(map[string]string, len(a.Responses))
		for k, v := range a.Responses {
			out.Responses[k] = v
		}
	}
	return out
}
