package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"voicesurvey/internal/engine"
)

type fakeEngine struct {
	got   engine.TurnRequest
	instr engine.TurnInstruction
	err   error
}

func (f *fakeEngine) NextTurn(ctx context.Context, req engine.TurnRequest) (engine.TurnInstruction, error) {
	f.got = req
	return f.instr, f.err
}

type fakeEnder struct {
	sid    string
	status string
}

func (f *fakeEnder) ResolveCallEnd(ctx context.Context, callSID, gatewayStatus string) {
	f.sid = callSID
	f.status = gatewayStatus
}

func postForm(t *testing.T, r *gin.Engine, target, form string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)
	return w
}

func TestHandleTurnRendersInstruction(t *testing.T) {
	gin.SetMode(gin.TestMode)

	eng := &fakeEngine{instr: engine.TurnInstruction{
		Segments: []engine.PromptSegment{{Text: "How satisfied are you?"}},
		Gather: &engine.GatherSpec{
			AttemptID: "at-1",
			Ordinal:   1,
			Total:     3,
			SayOnly:   true,
			Reprompt:  []engine.PromptSegment{{Text: "How satisfied are you?"}},
		},
	}}
	h := WebhookHandler{Engine: eng, PublicBaseURL: "https://survey.example.com"}

	r := gin.New()
	r.POST(TurnPath, h.HandleTurn)

	w := postForm(t, r, TurnPath+"?attempt=at-1&q=0&total=3&say=1",
		"CallSid=CA-1&SpeechResult=yes&Confidence=0.91")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/xml") {
		t.Fatalf("expected xml content type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "<Gather") {
		t.Fatalf("expected gather markup: %s", w.Body.String())
	}

	if eng.got.AttemptID != "at-1" || eng.got.CallSID != "CA-1" {
		t.Fatalf("unexpected identifiers: %+v", eng.got)
	}
	if eng.got.Ordinal != 0 || eng.got.Total != 3 {
		t.Fatalf("unexpected counters: %+v", eng.got)
	}
	if eng.got.Input != "yes" || !eng.got.HasConfidence {
		t.Fatalf("unexpected input: %+v", eng.got)
	}
	if !eng.got.SayOnly {
		t.Fatalf("say flag must reach the engine")
	}
}

func TestHandleTurnFailureWritesFailsafe(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := WebhookHandler{Engine: &fakeEngine{err: errors.New("boom")}, PublicBaseURL: "https://survey.example.com"}
	r := gin.New()
	r.POST(TurnPath, h.HandleTurn)

	w := postForm(t, r, TurnPath+"?attempt=at-1&q=1&total=3", "CallSid=CA-1")
	if w.Code != http.StatusOK {
		t.Fatalf("failures must still answer 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<Hangup") || !strings.Contains(body, "<Say>") {
		t.Fatalf("expected failsafe document: %s", body)
	}
}

func TestHandleTurnTimeoutHasNoInput(t *testing.T) {
	gin.SetMode(gin.TestMode)

	eng := &fakeEngine{instr: engine.TurnInstruction{Hangup: true}}
	h := WebhookHandler{Engine: eng, PublicBaseURL: "https://survey.example.com"}
	r := gin.New()
	r.POST(TurnPath, h.HandleTurn)

	postForm(t, r, TurnPath+"?attempt=at-1&q=2&total=3", "CallSid=CA-1")
	if eng.got.Input != "" || eng.got.Digits != "" || eng.got.HasConfidence {
		t.Fatalf("timeout callback must carry no input: %+v", eng.got)
	}
}

func TestHandleStatusResolvesAttempt(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ender := &fakeEnder{}
	h := WebhookHandler{Engine: &fakeEngine{}, Queue: ender}
	r := gin.New()
	r.POST(StatusPath, h.HandleStatus)

	w := postForm(t, r, StatusPath, "CallSid=CA-9&CallStatus=no-answer")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if ender.sid != "CA-9" || ender.status != "no-answer" {
		t.Fatalf("call end not forwarded: %+v", ender)
	}
}

func TestHandleStatusIgnoresIncompleteForm(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ender := &fakeEnder{}
	h := WebhookHandler{Engine: &fakeEngine{}, Queue: ender}
	r := gin.New()
	r.POST(StatusPath, h.HandleStatus)

	w := postForm(t, r, StatusPath, "CallStatus=completed")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if ender.sid != "" {
		t.Fatalf("incomplete form must not resolve anything")
	}
}
