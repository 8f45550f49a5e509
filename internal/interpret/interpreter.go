// Package interpret converts free-form recognized speech or keypad input
// into structured survey values.
package interpret

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Result is the structured reading of one spoken answer.
type Result struct {
	// Numeric is nil when the text carried no numeric signal. The turn loop
	// records the answer as-is; nothing is fabricated to fill the gap.
	Numeric *int

	// Insight is a templated presentation phrase selected by Numeric's
	// bucket. It is display sugar for the dashboard, not analysis of the
	// text.
	Insight string
}

// Interpreter extracts numeric values and insight phrases from raw answers.
// It is stateless and safe for concurrent use.
type Interpreter struct{}

func New() *Interpreter { return &Interpreter{} }

var numberWords = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

var affirmations = map[string]struct{}{
	"yes": {}, "yeah": {}, "yep": {}, "yup": {}, "sure": {}, "correct": {},
	"absolutely": {}, "definitely": {}, "ok": {}, "okay": {}, "right": {},
}

var negations = map[string]struct{}{
	"no": {}, "nope": {}, "nah": {}, "never": {}, "negative": {},
}

var positiveWords = map[string]struct{}{
	"great": {}, "good": {}, "excellent": {}, "amazing": {}, "fantastic": {},
	"wonderful": {}, "love": {}, "loved": {}, "happy": {}, "satisfied": {},
	"perfect": {}, "best": {},
}

var negativeWords = map[string]struct{}{
	"bad": {}, "terrible": {}, "awful": {}, "horrible": {}, "poor": {},
	"hate": {}, "hated": {}, "unhappy": {}, "disappointed": {},
	"frustrating": {}, "worst": {},
}

// Interpret extracts a numeric value from raw text using, in order of
// precedence:
//
//  1. a literal 0-10 digit token
//  2. a spelled-out number word
//  3. an affirmation/negation mapped to 1/0
//  4. a sentiment lexicon mapped onto a 1-5 scale
//
// When none applies, Numeric is nil and the insight comes from the neutral
// bucket.
func (i *Interpreter) Interpret(raw string) Result {
	tokens := tokenize(raw)

	if v, ok := digitToken(tokens); ok {
		return Result{Numeric: &v, Insight: insightFor(scaleBucket(v), raw)}
	}
	if v, ok := wordNumber(tokens); ok {
		return Result{Numeric: &v, Insight: insightFor(scaleBucket(v), raw)}
	}
	if v, ok := affirmationValue(tokens); ok {
		bucket := bucketAffirmative
		if v == 0 {
			bucket = bucketNegative
		}
		return Result{Numeric: &v, Insight: insightFor(bucket, raw)}
	}
	if v, ok := sentimentValue(tokens); ok {
		return Result{Numeric: &v, Insight: insightFor(scaleBucket(v), raw)}
	}
	return Result{Insight: insightFor(bucketNeutral, raw)}
}

func tokenize(raw string) []string {
	f := func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	}
	fields := strings.FieldsFunc(strings.ToLower(raw), f)
	return fields
}

func digitToken(tokens []string) (int, bool) {
	for _, tok := range tokens {
		if len(tok) > 2 {
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		if n >= 0 && n <= 10 {
			return n, true
		}
	}
	return 0, false
}

func wordNumber(tokens []string) (int, bool) {
	for _, tok := range tokens {
		if n, ok := numberWords[tok]; ok {
			return n, true
		}
	}
	return 0, false
}

func affirmationValue(tokens []string) (int, bool) {
	for _, tok := range tokens {
		if _, ok := affirmations[tok]; ok {
			return 1, true
		}
		if _, ok := negations[tok]; ok {
			return 0, true
		}
	}
	return 0, false
}

func sentimentValue(tokens []string) (int, bool) {
	pos, neg := 0, 0
	for _, tok := range tokens {
		if _, ok := positiveWords[tok]; ok {
			pos++
		}
		if _, ok := negativeWords[tok]; ok {
			neg++
		}
	}
	switch {
	case pos > 0 && neg > 0:
		return 3, true
	case pos > 1:
		return 5, true
	case pos == 1:
		return 4, true
	case neg > 1:
		return 1, true
	case neg == 1:
		return 2, true
	}
	// Neutral-lexicon words ("fine", "alright") deliberately yield no
	// numeric value; they only confirm the neutral insight bucket.
	return 0, false
}

type bucket int

const (
	bucketNeutral bucket = iota
	bucketLow
	bucketMedium
	bucketHigh
	bucketAffirmative
	bucketNegative
)

func scaleBucket(v int) bucket {
	switch {
	case v <= 2:
		return bucketLow
	case v <= 3:
		return bucketMedium
	default:
		return bucketHigh
	}
}

// Insight phrases are a small fixed pool per bucket. Selection is a stable
// hash of the raw text so repeated interpretation of the same answer yields
// the same phrase.
var insightPools = map[bucket][]string{
	bucketLow: {
		"Flags a poor experience worth following up on.",
		"Signals clear dissatisfaction.",
		"Indicates the experience fell short.",
	},
	bucketMedium: {
		"Suggests a mixed, middle-of-the-road experience.",
		"Reads as lukewarm overall.",
		"Points to room for improvement.",
	},
	bucketHigh: {
		"Reflects a strongly positive experience.",
		"Signals high satisfaction.",
		"Indicates things went well.",
	},
	bucketAffirmative: {
		"A clear yes.",
		"Confirmed in the affirmative.",
	},
	bucketNegative: {
		"A clear no.",
		"Declined outright.",
	},
	bucketNeutral: {
		"No strong signal either way.",
		"Neutral response; no numeric reading.",
	},
}

func insightFor(b bucket, raw string) string {
	pool := insightPools[b]
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.TrimSpace(strings.ToLower(raw))))
	return pool[int(h.Sum32())%len(pool)]
}

// IsAffirmation reports whether the text reads as a plain agreement. The
// turn engine uses it to tell "yes, go ahead" after the introduction apart
// from an actual first answer.
func IsAffirmation(raw string) bool {
	tokens := tokenize(raw)
	if len(tokens) == 0 {
		return false
	}
	for _, tok := range tokens {
		if _, ok := negations[tok]; ok {
			return false
		}
	}
	for _, tok := range tokens {
		if _, ok := affirmations[tok]; ok {
			return true
		}
	}
	return false
}
