package intent

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultGenericTemplates is the library of known generic questions
// that add nothing the analysis could not infer. Matching candidates
// are penalized so the surviving set stays anchored to the request.
var DefaultGenericTemplates = []string{
	"who is the intended audience",
	"what format should i produce",
	"what format would you like",
	"how long should it be",
	"what tone should i use",
	"do you have any other requirements",
	"is there anything else i should know",
	"what is the purpose of this request",
}

// domainSignalWords hint the question probes deliverable shape.
var domainSignalWords = []string{"structure", "depth", "examples", "scope", "detail", "level"}

// exclusionWords hint the question probes hard constraints.
var exclusionWords = []string{"avoid", "must", "exclude", "never", "require", "limit"}

const (
	minQuestions  = 3
	maxQuestions  = 6
	keepThreshold = 2
	maxOptions    = 6
)

// scoreQuestion rates one candidate question against the user text and
// inferred context terms. Specific, anchored questions score high;
// generic checklist questions go negative.
func scoreQuestion(text string, queryTokens, contextTokens map[string]struct{}, generics []string) int {
	score := 0
	if len(strings.Fields(text)) >= 8 {
		score += 2
	}
	qTokens := tokenSet(tokenize(text))
	if sharedTokens(qTokens, queryTokens) >= 2 {
		score += 2
	}
	if sharedTokens(qTokens, contextTokens) >= 2 {
		score += 2
	}
	lower := strings.ToLower(text)
	for _, w := range domainSignalWords {
		if strings.Contains(lower, w) {
			score++
			break
		}
	}
	for _, w := range exclusionWords {
		if strings.Contains(lower, w) {
			score++
			break
		}
	}
	norm := normalizeQuestionText(text)
	for _, tpl := range generics {
		if strings.Contains(norm, tpl) {
			score -= 3
			break
		}
	}
	return score
}

// filterQuestions scores, dedupes, backfills, and caps the candidate
// set so the result always has between three and six questions, each
// carrying the sentinel option.
func filterQuestions(candidates []Question, userText string, contextTerms []string, generics []string) []Question {
	queryTokens := tokenSet(tokenize(userText))
	contextTokens := tokenSet(tokenize(strings.Join(contextTerms, " ")))

	seen := map[string]struct{}{}
	kept := make([]Question, 0, len(candidates))
	for _, q := range candidates {
		text := strings.TrimSpace(q.Text)
		if text == "" {
			continue
		}
		key := normalizeQuestionText(text)
		if _, dup := seen[key]; dup {
			continue
		}
		if scoreQuestion(text, queryTokens, contextTokens, generics) < keepThreshold {
			continue
		}
		seen[key] = struct{}{}
		q.Text = text
		q.Options = normalizeOptions(q.Options)
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		kept = append(kept, q)
		if len(kept) == maxQuestions {
			return kept
		}
	}

	if len(kept) < minQuestions {
		for _, fb := range fallbackQuestions(userText) {
			key := normalizeQuestionText(fb.Text)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			kept = append(kept, fb)
			if len(kept) >= minQuestions {
				break
			}
		}
	}
	return kept
}

// normalizeOptions trims options, guarantees at least one substantive
// choice, caps the list, and makes sure the sentinel option is present.
func normalizeOptions(options []string) []string {
	out := make([]string, 0, len(options)+1)
	for _, o := range options {
		o = strings.TrimSpace(o)
		if o == "" || strings.EqualFold(o, OptionOther) {
			continue
		}
		out = append(out, o)
	}
	if len(out) == 0 {
		out = append(out, "Yes", "No")
	}
	if len(out) > maxOptions-1 {
		out = out[:maxOptions-1]
	}
	return append(out, OptionOther)
}

// fallbackQuestions builds deterministic, context-aware questions from
// keyword detection in the user text. Used when scoring leaves fewer
// than three candidates, or when no analysis object exists at all.
func fallbackQuestions(userText string) []Question {
	lower := strings.ToLower(userText)
	topic := topicPhrase(userText, 4)
	var out []Question

	if strings.Contains(lower, "series") || strings.Contains(lower, "episode") || strings.Contains(lower, "part ") {
		out = append(out, Question{
			ID:   uuid.NewString(),
			Text: fmt.Sprintf("Is this piece on %s standalone, or one installment that must connect to earlier and later parts?", topic),
			Options: []string{
				"Standalone piece",
				"Opens a series",
				"Continues an existing series",
				OptionOther,
			},
		})
	}

	audiencePhrase := detectAudience(lower)
	if audiencePhrase != "" {
		out = append(out, Question{
			ID:   uuid.NewString(),
			Text: fmt.Sprintf("You mentioned %s — how much existing background on %s can they be assumed to have?", audiencePhrase, topic),
			Options: []string{
				"Complete newcomers",
				"Some familiarity",
				"Already well versed",
				OptionOther,
			},
		})
	} else {
		out = append(out, Question{
			ID:   uuid.NewString(),
			Text: fmt.Sprintf("Who will actually read the result on %s, and how familiar are they with the subject?", topic),
			Options: []string{
				"General readers, new to the subject",
				"People with working knowledge",
				"Specialists who want depth",
				OptionOther,
			},
		})
	}

	out = append(out, Question{
		ID:   uuid.NewString(),
		Text: fmt.Sprintf("How deep should the treatment of %s go — a quick orientation or a thorough walk-through with examples?", topic),
		Options: []string{
			"Quick orientation",
			"Balanced overview with key examples",
			"Thorough deep dive",
			OptionOther,
		},
	})

	out = append(out, Question{
		ID:   uuid.NewString(),
		Text: fmt.Sprintf("What shape should the final piece on %s take — flowing prose, a structured document with headings, or something more list-like?", topic),
		Options: []string{
			"Flowing prose",
			"Structured document with headings",
			"Concise bullet-point brief",
			OptionOther,
		},
	})

	return out
}

// detectAudience pulls an explicit audience mention out of the text.
func detectAudience(lower string) string {
	markers := []string{"year-old", "year old", "beginner", "student", "my team", "executives", "kids", "children", "expert"}
	for _, m := range markers {
		if idx := strings.Index(lower, m); idx >= 0 {
			// widen to the containing phrase, bounded
			start := strings.LastIndex(lower[:idx], " for ")
			if start >= 0 && idx-start < 40 {
				return strings.TrimSpace(lower[start+5 : idx+len(m)])
			}
			return m
		}
	}
	return ""
}
