package telephony

import (
	"net/url"
	"strings"
	"testing"

	"voicesurvey/internal/engine"
)

func TestRenderTurnEmbedsReprompt(t *testing.T) {
	instr := engine.TurnInstruction{
		Segments: []engine.PromptSegment{
			{Text: "Welcome to the survey."},
			{Text: "How satisfied are you?", AudioURL: "https://cdn.example.com/q1.mp3"},
		},
		Gather: &engine.GatherSpec{
			AttemptID: "at-1",
			Ordinal:   1,
			Total:     3,
			Reprompt:  []engine.PromptSegment{{Text: "Sorry, I didn't catch that. How satisfied are you?"}},
		},
	}

	out, err := RenderTurn(instr, "https://survey.example.com")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got := strings.Count(out, "<Gather"); got != 2 {
		t.Fatalf("expected two nested gathers, got %d: %s", got, out)
	}
	if !strings.Contains(out, "<Say>Welcome to the survey.</Say>") {
		t.Fatalf("expected say verb for plain segment: %s", out)
	}
	if !strings.Contains(out, "<Play>https://cdn.example.com/q1.mp3</Play>") {
		t.Fatalf("expected play verb for audio segment: %s", out)
	}
	if !strings.Contains(out, "attempt=at-1") || !strings.Contains(out, "q=1") || !strings.Contains(out, "total=3") {
		t.Fatalf("action url missing turn params: %s", out)
	}
	if !strings.Contains(out, "<Hangup") {
		t.Fatalf("expected trailing hangup after both gathers time out: %s", out)
	}
	if strings.Contains(out, "say=1") {
		t.Fatalf("audio-mode action url should not carry the say flag: %s", out)
	}
}

func TestRenderTurnSayOnlyPropagates(t *testing.T) {
	instr := engine.TurnInstruction{
		Segments: []engine.PromptSegment{{Text: "Question two."}},
		Gather: &engine.GatherSpec{
			AttemptID: "at-1",
			Ordinal:   2,
			Total:     3,
			SayOnly:   true,
			Reprompt:  []engine.PromptSegment{{Text: "Question two."}},
		},
	}
	out, err := RenderTurn(instr, "https://survey.example.com")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "say=1") {
		t.Fatalf("say mode must travel in the action url: %s", out)
	}
}

func TestRenderTurnCompleted(t *testing.T) {
	instr := engine.TurnInstruction{
		Segments: []engine.PromptSegment{{Text: "Thank you. Goodbye."}},
		Hangup:   true,
	}
	out, err := RenderTurn(instr, "https://survey.example.com")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(out, "<Gather") {
		t.Fatalf("terminal turn must not gather: %s", out)
	}
	if !strings.Contains(out, "<Say>Thank you. Goodbye.</Say>") || !strings.Contains(out, "<Hangup") {
		t.Fatalf("expected closing say and hangup: %s", out)
	}
}

func TestFailsafeTwiML(t *testing.T) {
	out := FailsafeTwiML()
	if !strings.Contains(out, "<Say>") || !strings.Contains(out, "<Hangup") {
		t.Fatalf("failsafe must speak and hang up: %s", out)
	}
}

func TestParseTurnParamsDefaults(t *testing.T) {
	p := ParseTurnParams(url.Values{})
	if p.Ordinal != 1 || p.Total != 1 {
		t.Fatalf("expected protocol-error defaults 1/1, got %d/%d", p.Ordinal, p.Total)
	}

	p = ParseTurnParams(url.Values{"q": {"abc"}, "total": {"-2"}})
	if p.Ordinal != 1 || p.Total != 1 {
		t.Fatalf("malformed counters must default, got %d/%d", p.Ordinal, p.Total)
	}

	p = ParseTurnParams(url.Values{"attempt": {"at-1"}, "q": {"0"}, "total": {"3"}, "say": {"1"}})
	if p.AttemptID != "at-1" || p.Ordinal != 0 || p.Total != 3 || !p.SayOnly {
		t.Fatalf("unexpected parse: %+v", p)
	}
}

func TestTurnParamsRoundTrip(t *testing.T) {
	in := TurnParams{AttemptID: "at-9", Ordinal: 2, Total: 5, SayOnly: true}
	u, err := url.Parse(in.ActionURL("https://survey.example.com"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Path != TurnPath {
		t.Fatalf("unexpected path %q", u.Path)
	}
	out := ParseTurnParams(u.Query())
	if out != in {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}
