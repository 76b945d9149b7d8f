package intent

import "strings"

// stopwords excluded from significance checks. Small on purpose: only
// words that carry no anchoring value for question scoring.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "can": {}, "do": {}, "for": {}, "from": {},
	"how": {}, "i": {}, "in": {}, "is": {}, "it": {}, "me": {}, "my": {},
	"of": {}, "on": {}, "or": {}, "our": {}, "should": {}, "that": {},
	"the": {}, "this": {}, "to": {}, "want": {}, "we": {}, "what": {},
	"which": {}, "will": {}, "with": {}, "would": {}, "you": {}, "your": {},
}

// tokenize lowercases s, splits on non-alphanumeric runes, and drops
// stopwords and fragments shorter than three characters.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, skip := stopwords[f]; skip {
			continue
		}
		out = append(out, f)
	}
	return out
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func sharedTokens(a, b map[string]struct{}) int {
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return n
}

// overlapRatio is the Jaccard ratio between the significant token sets
// of a and b.
func overlapRatio(a, b string) float64 {
	sa := tokenSet(tokenize(a))
	sb := tokenSet(tokenize(b))
	if len(sa) == 0 && len(sb) == 0 {
		return 0
	}
	inter := sharedTokens(sa, sb)
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// topicPhrase extracts up to max significant tokens from the user text
// as a short topic handle for deterministic templates.
func topicPhrase(userText string, max int) string {
	tokens := tokenize(userText)
	if len(tokens) == 0 {
		return "the request"
	}
	if len(tokens) > max {
		tokens = tokens[:max]
	}
	return strings.Join(tokens, " ")
}

// normalizeQuestionText is the case/whitespace-insensitive dedup key.
func normalizeQuestionText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, "?.! ")
	return strings.Join(strings.Fields(s), " ")
}
