// Package telephony is the provider adapter: it parses Twilio webhooks,
// renders TwiML and places outbound calls. Conversation logic lives in the
// engine; nothing here decides what to ask next.
package telephony

import (
	"bytes"
	"encoding/xml"

	"voicesurvey/internal/engine"
)

// TwiML primitives, limited to the verbs the turn loop needs.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlPlay struct {
	XMLName xml.Name `xml:"Play"`
	URL     string   `xml:",chardata"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr,omitempty"`
}

type twimlGather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr,omitempty"`
	Action        string   `xml:"action,attr,omitempty"`
	Method        string   `xml:"method,attr,omitempty"`
	Timeout       int      `xml:"timeout,attr,omitempty"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	NumDigits     int      `xml:"numDigits,attr,omitempty"`
	Verbs         []any    `xml:",any"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

const (
	gatherInput   = "speech dtmf"
	gatherTimeout = 5

	// Spoken after both gathers time out; the stale sweep resolves the
	// attempt later.
	noInputGoodbye = "We didn't catch a response. Thank you for your time. Goodbye."
)

// RenderTurn maps a turn instruction to TwiML. Prompt segments play inside
// the Gather so the recipient can answer over them; a second Gather with the
// re-prompt is embedded directly in the document, so recovering from one
// silence costs no extra webhook round-trip.
func RenderTurn(instr engine.TurnInstruction, baseURL string) (string, error) {
	var r twimlResponse

	if instr.Gather == nil {
		for _, seg := range instr.Segments {
			r.Verbs = append(r.Verbs, segmentVerb(seg))
		}
		if instr.Hangup {
			r.Verbs = append(r.Verbs, twimlHangup{})
		}
		return renderResponse(r)
	}

	action := TurnParams{
		AttemptID: instr.Gather.AttemptID,
		Ordinal:   instr.Gather.Ordinal,
		Total:     instr.Gather.Total,
		SayOnly:   instr.Gather.SayOnly,
	}.ActionURL(baseURL)

	first := twimlGather{
		Input:         gatherInput,
		Action:        action,
		Method:        "POST",
		Timeout:       gatherTimeout,
		SpeechTimeout: "auto",
	}
	for _, seg := range instr.Segments {
		first.Verbs = append(first.Verbs, segmentVerb(seg))
	}
	r.Verbs = append(r.Verbs, first)

	second := twimlGather{
		Input:         gatherInput,
		Action:        action,
		Method:        "POST",
		Timeout:       gatherTimeout,
		SpeechTimeout: "auto",
	}
	for _, seg := range instr.Gather.Reprompt {
		second.Verbs = append(second.Verbs, segmentVerb(seg))
	}
	r.Verbs = append(r.Verbs, second)

	// Both gathers heard nothing; end the call politely.
	r.Verbs = append(r.Verbs, twimlSay{Text: noInputGoodbye}, twimlHangup{})

	return renderResponse(r)
}

// FailsafeTwiML is returned on any internal error: the recipient hears a
// polite goodbye instead of a dropped line, and the gateway gets a valid
// document with status 200.
func FailsafeTwiML() string {
	r := twimlResponse{Verbs: []any{
		twimlSay{Text: "We're sorry, something went wrong on our end. Thank you for your time. Goodbye."},
		twimlHangup{},
	}}
	out, err := renderResponse(r)
	if err != nil {
		// Static document; encoding cannot fail at runtime.
		return xml.Header + "<Response><Hangup/></Response>"
	}
	return out
}

func segmentVerb(seg engine.PromptSegment) any {
	if seg.AudioURL != "" {
		return twimlPlay{URL: seg.AudioURL}
	}
	return twimlSay{Text: seg.Text}
}

func renderResponse(r twimlResponse) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
