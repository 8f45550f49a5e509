package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"voicesurvey/internal/callqueue"
	"voicesurvey/internal/survey"
)

type fakeDialer struct {
	calls int
	err   error
}

func (d *fakeDialer) PlaceCall(ctx context.Context, to, from, callbackURL string) (string, error) {
	d.calls++
	if d.err != nil {
		return "", d.err
	}
	return "CA-fake", nil
}

// recipientSource adapts the survey repository to the queue's narrow view.
type recipientSource struct {
	repo survey.Repository
}

func (s recipientSource) GetRecipient(ctx context.Context, id string) (callqueue.Recipient, error) {
	rec, err := s.repo.GetRecipient(ctx, id)
	if err != nil {
		return callqueue.Recipient{}, err
	}
	return callqueue.Recipient{ID: rec.ID, Name: rec.Name, Phone: rec.Phone}, nil
}

func (s recipientSource) QuestionCount(ctx context.Context, surveyID string) (int, error) {
	qs, err := s.repo.QuestionsForSurvey(ctx, surveyID)
	if err != nil {
		return 0, err
	}
	return len(qs), nil
}

type fixture struct {
	handlers Handlers
	surveys  *survey.MemoryRepo
	attempts *callqueue.MemoryRepo
	dialer   *fakeDialer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	surveys := survey.NewMemoryRepo()
	attempts := callqueue.NewMemoryRepo()
	dialer := &fakeDialer{}

	queue := callqueue.NewService(attempts, dialer, recipientSource{repo: surveys}, nil, callqueue.ServiceConfig{
		FromNumber:    "+15550009999",
		PublicBaseURL: "https://survey.example.com",
	}, slog.Default())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &fixture{
		handlers: Handlers{
			Queue:        queue,
			Surveys:      surveys,
			AllowSeeding: true,
			Now:          func() time.Time { return now },
		},
		surveys:  surveys,
		attempts: attempts,
		dialer:   dialer,
	}
}

func (f *fixture) seedSurvey(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := f.surveys.CreateSurvey(ctx, survey.Survey{ID: "sv-1", Name: "NPS"}); err != nil {
		t.Fatalf("seed survey: %v", err)
	}
	if err := f.surveys.CreateRecipient(ctx, survey.Recipient{ID: "r-1", Name: "Pat", Phone: "+15551230000"}); err != nil {
		t.Fatalf("seed recipient: %v", err)
	}
	for i, id := range []string{"q-1", "q-2"} {
		if err := f.surveys.CreateQuestion(ctx, survey.Question{ID: id, Prompt: "prompt " + id, ResponseType: survey.ResponseTypeScale}); err != nil {
			t.Fatalf("seed question: %v", err)
		}
		if err := f.surveys.LinkQuestion(ctx, survey.SurveyQuestionLink{ID: "l-" + id, SurveyID: "sv-1", QuestionID: id, Position: i + 1}); err != nil {
			t.Fatalf("seed link: %v", err)
		}
	}
}

func postJSON(t *testing.T, handler gin.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	r := gin.New()
	r.POST(path, handler)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, w.Body.String())
	}
}

func TestCreateQuestionLinksIntoSurvey(t *testing.T) {
	f := newFixture(t)
	f.seedSurvey(t)

	w := postJSON(t, f.handlers.CreateQuestion, "/questions", createQuestionRequest{
		SurveyID:     "sv-1",
		Position:     3,
		Prompt:       "Anything else?",
		ResponseType: "open_ended",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	qs, err := f.surveys.QuestionsForSurvey(context.Background(), "sv-1")
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(qs) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(qs))
	}
	if qs[2].Prompt != "Anything else?" {
		t.Fatalf("new question not in position 3: %+v", qs)
	}
}

func TestCreateQuestionUnknownSurvey(t *testing.T) {
	f := newFixture(t)

	w := postJSON(t, f.handlers.CreateQuestion, "/questions", createQuestionRequest{
		SurveyID: "missing", Position: 1, Prompt: "x",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestEnqueueCallValidatesInput(t *testing.T) {
	f := newFixture(t)

	w := postJSON(t, f.handlers.EnqueueCall, "/calls", enqueueRequest{RecipientID: "", SurveyID: ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestEnqueueCallCreatesPendingAttempt(t *testing.T) {
	f := newFixture(t)
	f.seedSurvey(t)

	w := postJSON(t, f.handlers.EnqueueCall, "/calls", enqueueRequest{
		RecipientID: "r-1",
		SurveyID:    "sv-1",
		VoiceID:     "rachel",
		UseAudio:    true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var a callqueue.CallAttempt
	decodeBody(t, w, &a)
	if a.Status != callqueue.StatusPending {
		t.Fatalf("expected pending, got %s", a.Status)
	}
	if a.Voice.VoiceID != "rachel" || !a.Voice.UseAudio {
		t.Fatalf("voice options lost: %+v", a.Voice)
	}
	if f.dialer.calls != 0 {
		t.Fatalf("enqueue alone must not dial, got %d calls", f.dialer.calls)
	}
}

func TestEnqueueCallStartNowDials(t *testing.T) {
	f := newFixture(t)
	f.seedSurvey(t)

	w := postJSON(t, f.handlers.EnqueueCall, "/calls", enqueueRequest{
		RecipientID: "r-1",
		SurveyID:    "sv-1",
		StartNow:    true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var a callqueue.CallAttempt
	decodeBody(t, w, &a)
	if a.Status != callqueue.StatusInProgress || a.CallSID != "CA-fake" {
		t.Fatalf("expected dialed in-progress attempt, got %+v", a)
	}
	if f.dialer.calls != 1 {
		t.Fatalf("expected 1 dial, got %d", f.dialer.calls)
	}
}

func TestEnqueueCallScheduledIgnoresStartNow(t *testing.T) {
	f := newFixture(t)
	f.seedSurvey(t)
	when := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	w := postJSON(t, f.handlers.EnqueueCall, "/calls", enqueueRequest{
		RecipientID: "r-1",
		SurveyID:    "sv-1",
		ScheduleAt:  &when,
		StartNow:    true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var a callqueue.CallAttempt
	decodeBody(t, w, &a)
	if a.Status != callqueue.StatusScheduled {
		t.Fatalf("expected scheduled, got %s", a.Status)
	}
	if f.dialer.calls != 0 {
		t.Fatalf("scheduled attempt must not dial, got %d calls", f.dialer.calls)
	}
}

func TestStartCallMapsQueueErrors(t *testing.T) {
	f := newFixture(t)
	f.seedSurvey(t)

	r := gin.New()
	r.POST("/calls/:attempt_id/start", f.handlers.StartCall)

	// Unknown attempt.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/calls/missing/start", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	// Completed attempt.
	ctx := context.Background()
	a, err := f.handlers.Queue.Enqueue(ctx, "r-1", "sv-1", callqueue.VoiceOptions{}, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	a.Status = callqueue.StatusCompleted
	if err := f.attempts.Update(ctx, a); err != nil {
		t.Fatalf("update: %v", err)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/calls/"+a.ID+"/start", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestListAttemptsFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	f.seedSurvey(t)
	ctx := context.Background()

	if _, err := f.handlers.Queue.Enqueue(ctx, "r-1", "sv-1", callqueue.VoiceOptions{}, nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	done := callqueue.CallAttempt{ID: "done", RecipientID: "r-2", SurveyID: "sv-1", Status: callqueue.StatusCompleted}
	if err := f.attempts.Create(ctx, done); err != nil {
		t.Fatalf("create: %v", err)
	}

	r := gin.New()
	r.GET("/calls", f.handlers.ListAttempts)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/calls?status=pending", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Attempts []callqueue.CallAttempt `json:"attempts"`
	}
	decodeBody(t, w, &body)
	if len(body.Attempts) != 1 || body.Attempts[0].Status != callqueue.StatusPending {
		t.Fatalf("unexpected attempts: %+v", body.Attempts)
	}
}

func TestSeedResponsesDisabledOutsideDemo(t *testing.T) {
	f := newFixture(t)
	f.handlers.AllowSeeding = false

	w := postJSON(t, f.handlers.SeedResponses, "/seed", seedRequest{SurveyID: "sv-1", RecipientID: "r-1"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestSeedResponsesFabricatesOnePerQuestion(t *testing.T) {
	f := newFixture(t)
	f.seedSurvey(t)

	w := postJSON(t, f.handlers.SeedResponses, "/seed", seedRequest{SurveyID: "sv-1", RecipientID: "r-1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	rows, err := f.surveys.ResponsesForRecipient(context.Background(), "r-1")
	if err != nil {
		t.Fatalf("responses: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 seeded responses, got %d", len(rows))
	}
	for _, row := range rows {
		if row.NumericValue == nil || *row.NumericValue < 1 || *row.NumericValue > 5 {
			t.Fatalf("seeded value out of range: %+v", row)
		}
		if row.CallSID != "seed" {
			t.Fatalf("seeded row must be marked, got call_sid %q", row.CallSID)
		}
	}
}
