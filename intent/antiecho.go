package intent

import (
	"fmt"
	"strings"
)

// echoThreshold is the Jaccard overlap above which a generated field is
// treated as a near-verbatim duplicate of the user's own sentence.
const echoThreshold = 0.9

// isNearEcho reports whether candidate is effectively the user's own
// text handed back: very high token overlap at comparable length. Short
// fragments quoting the request are fine; full restatements are not.
func isNearEcho(candidate, source string) bool {
	if overlapRatio(candidate, source) < echoThreshold {
		return false
	}
	cw := len(strings.Fields(candidate))
	sw := len(strings.Fields(source))
	if cw == 0 || sw == 0 {
		return false
	}
	shorter, longer := cw, sw
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	return float64(shorter)/float64(longer) >= 0.5
}

// scrubEchoes replaces any display field that merely mirrors the user's
// sentence with a template built from extracted signals, so the system
// never presents a reformatted copy of the request as insight.
func scrubEchoes(draft *Draft, userText string) {
	rebuilt := false
	cleaned := draft.Understanding[:0]
	for _, bullet := range draft.Understanding {
		if isNearEcho(bullet, userText) {
			rebuilt = true
			continue
		}
		cleaned = append(cleaned, bullet)
	}
	draft.Understanding = cleaned
	if rebuilt || len(draft.Understanding) == 0 {
		draft.Understanding = append(draft.Understanding, templateUnderstanding(draft, userText)...)
	}

	if isNearEcho(draft.DisplaySummary, userText) || strings.TrimSpace(draft.DisplaySummary) == "" {
		draft.DisplaySummary = templateSummary(draft, userText)
	}
}

// templateUnderstanding builds understanding bullets from the draft's
// extracted signals rather than the user's wording.
func templateUnderstanding(draft *Draft, userText string) []string {
	topic := topicPhrase(userText, 4)
	bullets := []string{
		fmt.Sprintf("The request centers on %s, read as a %s task.", topic, strings.ReplaceAll(string(draft.Category), "_", " ")),
	}
	if draft.Audience != "" {
		bullets = append(bullets, fmt.Sprintf("The result needs to land with %s.", draft.Audience))
	}
	if draft.Deliverable.Format != "" || draft.Deliverable.Depth != "" {
		bullets = append(bullets, fmt.Sprintf("The deliverable leans toward %s treatment in %s form.",
			orDefault(draft.Deliverable.Depth, "standard"), orDefault(draft.Deliverable.Format, "prose")))
	}
	if draft.Quality.Rigor != "" {
		bullets = append(bullets, fmt.Sprintf("Quality emphasis: %s rigor with %s evidence expectations.",
			draft.Quality.Rigor, orDefault(draft.Quality.Evidence, "moderate")))
	}
	return bullets
}

func templateSummary(draft *Draft, userText string) string {
	topic := topicPhrase(userText, 5)
	summary := fmt.Sprintf("A %s request about %s", strings.ReplaceAll(string(draft.Category), "_", " "), topic)
	if draft.Audience != "" {
		summary += fmt.Sprintf(", aimed at %s", draft.Audience)
	}
	if draft.Deliverable.Depth != "" {
		summary += fmt.Sprintf(", at %s depth", draft.Deliverable.Depth)
	}
	return summary + "."
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
