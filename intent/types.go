// Package intent canonicalizes free-form analysis of a user request
// into a typed intent record and an anchored clarification question set.
package intent

import "strings"

// TaskCategory is the closed set of request categories.
type TaskCategory string

const (
	CategoryResearch    TaskCategory = "research"
	CategoryExplanation TaskCategory = "explanation"
	CategoryCreative    TaskCategory = "creative_writing"
	CategoryCoding      TaskCategory = "coding"
	CategoryPlanning    TaskCategory = "planning"
	CategoryAnalysis    TaskCategory = "analysis"
	CategoryAdvice      TaskCategory = "advice"
	CategoryGeneral     TaskCategory = "general"
)

// ParseTaskCategory maps loose model output onto the closed set,
// defaulting to general.
func ParseTaskCategory(s string) TaskCategory {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))) {
	case "research":
		return CategoryResearch
	case "explanation", "explain", "summary", "summarization":
		return CategoryExplanation
	case "creative_writing", "creative", "writing":
		return CategoryCreative
	case "coding", "code", "programming", "technical":
		return CategoryCoding
	case "planning", "plan", "strategy":
		return CategoryPlanning
	case "analysis", "analyze", "evaluation":
		return CategoryAnalysis
	case "advice", "recommendation", "guidance":
		return CategoryAdvice
	default:
		return CategoryGeneral
	}
}

// Confidence grades how sure the analysis is about the inferred intent.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// DeliverableSpec describes the expected shape of the final artifact.
type DeliverableSpec struct {
	Format           string   `json:"format"`
	Depth            string   `json:"depth"` // quick / standard / deep
	Tone             string   `json:"tone"`
	Structure        string   `json:"structure"`
	RequiredElements []string `json:"required_elements,omitempty"`
}

// Constraints partitions requirements by strength.
type Constraints struct {
	Must    []string `json:"must,omitempty"`
	Should  []string `json:"should,omitempty"`
	MustNot []string `json:"must_not,omitempty"`
}

// QualityBar captures how demanding the run should be.
type QualityBar struct {
	Rigor         string `json:"rigor"`
	Evidence      string `json:"evidence"`
	Completeness  string `json:"completeness"`
	RiskTolerance string `json:"risk_tolerance"`
}

// Draft is the canonical intent record produced once per user turn and
// consumed by every later stage. Immutable once finalized.
type Draft struct {
	PrimaryIntent  string          `json:"primary_intent"`
	Goal           string          `json:"goal"`
	Category       TaskCategory    `json:"category"`
	Deliverable    DeliverableSpec `json:"deliverable"`
	Audience       string          `json:"audience,omitempty"`
	Constraints    Constraints     `json:"constraints"`
	Quality        QualityBar      `json:"quality"`
	Confidence     Confidence      `json:"confidence"`
	Understanding  []string        `json:"understanding,omitempty"` // restated-understanding bullets shown back to the user
	DisplaySummary string          `json:"display_summary"`
}

// OptionOther is the sentinel option every clarification question ends
// with, so users always have an escape hatch.
const OptionOther = "Other (please specify)"

// Question is one clarification question with 2-6 selectable options.
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// Answer is the user's response to one question. Selected may be empty;
// FreeText overrides when the sentinel option was picked.
type Answer struct {
	QuestionID string   `json:"question_id"`
	Selected   []string `json:"selected,omitempty"`
	FreeText   string   `json:"free_text,omitempty"`
}
