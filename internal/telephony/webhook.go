package telephony

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"voicesurvey/internal/engine"
	"voicesurvey/pkg/logger"
)

// GatherCallbackForm captures the subset of Twilio's gather callback we care
// about. Twilio sends application/x-www-form-urlencoded by default.
type GatherCallbackForm struct {
	CallSid      string
	SpeechResult string
	Digits       string
	Confidence   string
}

func ParseGatherCallback(r *http.Request) (GatherCallbackForm, error) {
	if err := r.ParseForm(); err != nil {
		return GatherCallbackForm{}, err
	}
	return GatherCallbackForm{
		CallSid:      r.PostFormValue("CallSid"),
		SpeechResult: r.PostFormValue("SpeechResult"),
		Digits:       r.PostFormValue("Digits"),
		Confidence:   r.PostFormValue("Confidence"),
	}, nil
}

// TurnEngine computes the next turn. Implemented by internal/engine.
type TurnEngine interface {
	NextTurn(ctx context.Context, req engine.TurnRequest) (engine.TurnInstruction, error)
}

// CallEnder resolves attempts when the gateway reports the call over.
// Implemented by the call queue service.
type CallEnder interface {
	ResolveCallEnd(ctx context.Context, callSID, gatewayStatus string)
}

// WebhookHandler converts Twilio webhooks to engine requests and writes
// TwiML back. Every failure path still answers with a valid document and
// status 200: an error page read out loud to the recipient is worse than a
// polite goodbye.
type WebhookHandler struct {
	Engine TurnEngine
	Queue  CallEnder

	PublicBaseURL string
}

func (h WebhookHandler) HandleTurn(c *gin.Context) {
	log := logger.FromGin(c)

	params := ParseTurnParams(c.Request.URL.Query())
	form, err := ParseGatherCallback(c.Request)
	if err != nil {
		log.Warn("gather callback parse failed", "err", err)
		writeTwiML(c, FailsafeTwiML())
		return
	}

	instr, err := h.Engine.NextTurn(c.Request.Context(), engine.TurnRequest{
		AttemptID:     params.AttemptID,
		CallSID:       form.CallSid,
		Ordinal:       params.Ordinal,
		Total:         params.Total,
		Input:         form.SpeechResult,
		Digits:        form.Digits,
		HasConfidence: form.Confidence != "",
		SayOnly:       params.SayOnly,
	})
	if err != nil {
		log.Error("turn failed", "attempt_id", params.AttemptID, "call_sid", form.CallSid, "err", err)
		writeTwiML(c, FailsafeTwiML())
		return
	}

	out, err := RenderTurn(instr, h.PublicBaseURL)
	if err != nil {
		log.Error("twiml render failed", "attempt_id", params.AttemptID, "err", err)
		writeTwiML(c, FailsafeTwiML())
		return
	}
	writeTwiML(c, out)
}

// HandleStatus receives the gateway's call-status events and resolves
// attempts the turn loop never got to finish (hang-ups, busy, no answer).
func (h WebhookHandler) HandleStatus(c *gin.Context) {
	log := logger.FromGin(c)

	if err := c.Request.ParseForm(); err != nil {
		log.Warn("status callback parse failed", "err", err)
		c.Status(http.StatusNoContent)
		return
	}
	sid := c.Request.PostFormValue("CallSid")
	status := c.Request.PostFormValue("CallStatus")
	if sid == "" || status == "" {
		c.Status(http.StatusNoContent)
		return
	}

	h.Queue.ResolveCallEnd(c.Request.Context(), sid, status)
	c.Status(http.StatusNoContent)
}

func writeTwiML(c *gin.Context, doc string) {
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, doc)
}
