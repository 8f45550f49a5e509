package interpret

import (
	"regexp"
	"strings"
)

// NameExtractor is the optional side channel the turn engine consults for
// self-introductions. It is best-effort enrichment: failures or misses must
// never affect turn progression, which is why the engine depends on this
// interface rather than on the heuristics directly.
type NameExtractor interface {
	ExtractName(raw string) (string, bool)
}

// PatternNameExtractor matches common self-introduction phrasings.
type PatternNameExtractor struct{}

var _ NameExtractor = PatternNameExtractor{}

var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy name is ([a-z]+(?: [a-z]+)?)`),
	regexp.MustCompile(`(?i)\bthis is ([a-z]+(?: [a-z]+)?)`),
	regexp.MustCompile(`(?i)\bi am ([a-z]+(?: [a-z]+)?)`),
	regexp.MustCompile(`(?i)\bi'm ([a-z]+(?: [a-z]+)?)`),
	regexp.MustCompile(`(?i)\bcall me ([a-z]+(?: [a-z]+)?)`),
	regexp.MustCompile(`(?i)\b([a-z]+) speaking\b`),
}

// Words that follow the trigger phrases without being names.
var nameStopwords = map[string]struct{}{
	"not": {}, "good": {}, "fine": {}, "sorry": {}, "busy": {},
	"calling": {}, "here": {}, "sure": {}, "okay": {}, "done": {},
	"the": {}, "a": {}, "just": {},
}

// ExtractName returns a title-cased name when the text contains a
// self-introduction phrase.
func (PatternNameExtractor) ExtractName(raw string) (string, bool) {
	for _, re := range namePatterns {
		m := re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		candidate := strings.TrimSpace(m[1])
		first := strings.ToLower(strings.Fields(candidate)[0])
		if _, stop := nameStopwords[first]; stop {
			continue
		}
		return titleCase(candidate), true
	}
	return "", false
}

func titleCase(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	for i, f := range fields {
		fields[i] = strings.ToUpper(f[:1]) + f[1:]
	}
	return strings.Join(fields, " ")
}
