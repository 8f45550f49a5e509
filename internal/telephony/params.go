package telephony

import (
	"net/url"
	"strconv"
)

// TurnPath is the gather-callback route. The call queue's initial-turn URL
// points at the same path with ordinal 0.
const TurnPath = "/webhooks/twilio/voice/turn"

// StatusPath receives the gateway's call-status events.
const StatusPath = "/webhooks/twilio/voice/status"

// TurnParams is the conversation's program counter, round-tripped through
// the gather action URL because no server-side session exists between
// callbacks.
type TurnParams struct {
	AttemptID string
	Ordinal   int
	Total     int
	SayOnly   bool
}

// ParseTurnParams decodes the query. Missing or malformed counters default
// to ordinal 1 / total 1, so a protocol error from the gateway degrades to a
// one-question turn followed by a clean completion instead of an error page
// read out loud.
func ParseTurnParams(q url.Values) TurnParams {
	p := TurnParams{
		AttemptID: q.Get("attempt"),
		Ordinal:   intParam(q.Get("q"), 1),
		Total:     intParam(q.Get("total"), 1),
		SayOnly:   q.Get("say") == "1",
	}
	return p
}

// ActionURL encodes the params onto the turn route.
func (p TurnParams) ActionURL(baseURL string) string {
	v := url.Values{}
	v.Set("attempt", p.AttemptID)
	v.Set("q", strconv.Itoa(p.Ordinal))
	v.Set("total", strconv.Itoa(p.Total))
	if p.SayOnly {
		v.Set("say", "1")
	}
	return baseURL + TurnPath + "?" + v.Encode()
}

func intParam(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
