package intent_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/council/intent"
	"github.com/BaSui01/council/llm"
	"github.com/BaSui01/council/structured"
	"github.com/BaSui01/council/testutil/mocks"
)

const analysisResponse = `{
  "primary_intent": "Produce a child-friendly summary of the French Revolution",
  "goal": "Give a 10-year-old a vivid, accurate picture of what happened and why",
  "task_type": "explanation",
  "deliverable": {"format": "short narrative", "depth": "quick", "tone": "playful but accurate"},
  "audience": "a 10-year-old reader",
  "confidence": "high",
  "understanding": [
    "The history needs translating into images and stakes a child can follow",
    "Accuracy matters but gore and politics should stay age-appropriate"
  ],
  "questions": [
    {"question": "Should the French Revolution summary focus on famous events and people, or daily life details children connect with?", "options": ["Famous events", "Daily life", "A mix"]},
    {"question": "How should the summary handle the violent parts of the French Revolution for a young reader?", "options": ["Mention briefly", "Soften heavily", "Skip entirely"]},
    {"question": "Should the French Revolution summary include simple comparisons to a child's modern experience for context?", "options": ["Yes, lean on them", "Only a few", "Keep it purely historical"]}
  ]
}`

func newNormalizer(provider *mocks.MockProvider) *intent.Normalizer {
	gateway := llm.NewGateway(provider, nil)
	engine := structured.NewEngine(nil, nil, nil)
	return intent.NewNormalizer(intent.Config{Models: []string{"analysis/model"}}, gateway, engine, nil)
}

func TestDraftFromAnalysis(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse(analysisResponse)
	n := newNormalizer(provider)

	userText := "Summarize the French Revolution for a 10-year-old"
	draft, questions := n.Draft(context.Background(), userText, nil)

	require.NotNil(t, draft)
	assert.Equal(t, intent.CategoryExplanation, draft.Category)
	assert.Equal(t, "quick", draft.Deliverable.Depth)
	assert.Equal(t, "a 10-year-old reader", draft.Audience)
	assert.Equal(t, intent.ConfidenceHigh, draft.Confidence)
	assert.NotEmpty(t, draft.DisplaySummary)

	require.GreaterOrEqual(t, len(questions), 3)
	require.LessOrEqual(t, len(questions), 6)
	for _, q := range questions {
		assert.NotEmpty(t, q.ID)
		require.NotEmpty(t, q.Options)
		assert.Equal(t, intent.OptionOther, q.Options[len(q.Options)-1])
	}
}

func TestDraftDegradesToDeterministicFallback(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse("I cannot answer in JSON, sorry.")
	n := newNormalizer(provider)

	userText := "Summarize the French Revolution for a 10-year-old"
	draft, questions := n.Draft(context.Background(), userText, nil)

	require.NotNil(t, draft)
	assert.Equal(t, userText, draft.PrimaryIntent, "fallback keeps the request verbatim")
	assert.Equal(t, intent.CategoryExplanation, draft.Category)
	assert.Equal(t, "quick", draft.Deliverable.Depth)
	assert.Equal(t, intent.ConfidenceLow, draft.Confidence)

	require.GreaterOrEqual(t, len(questions), 3)
	for _, q := range questions {
		norm := strings.ToLower(q.Text)
		for _, tpl := range intent.DefaultGenericTemplates {
			assert.NotContains(t, norm, tpl, "fallback produced a banned generic question")
		}
	}
}

func TestDraftFallbackOnTransportFailure(t *testing.T) {
	provider := mocks.NewMockProvider().WithError(&llm.Error{
		Code: llm.ErrUpstreamError, Message: "backend down", Retryable: false,
	})
	n := newNormalizer(provider)

	draft, questions := n.Draft(context.Background(), "plan a product launch roadmap", nil)

	require.NotNil(t, draft)
	assert.Equal(t, intent.CategoryPlanning, draft.Category)
	assert.GreaterOrEqual(t, len(questions), 3)
}

func TestFinalizeBriefWithAnswers(t *testing.T) {
	n := newNormalizer(mocks.NewMockProvider())
	draft := &intent.Draft{
		PrimaryIntent: "Summarize the French Revolution for a 10-year-old",
		Goal:          "Make history stick",
		Category:      intent.CategoryExplanation,
		Deliverable:   intent.DeliverableSpec{Format: "narrative", Depth: "quick", Tone: "playful", Structure: "chronological"},
		Quality:       intent.QualityBar{Rigor: "standard", Evidence: "moderate", Completeness: "thorough", RiskTolerance: "balanced"},
	}
	questions := []intent.Question{
		{ID: "q1", Text: "Handle the violent parts how?", Options: []string{"Soften", "Skip", intent.OptionOther}},
		{ID: "q2", Text: "Include modern comparisons?", Options: []string{"Yes", "No", intent.OptionOther}},
	}
	answers := []intent.Answer{
		{QuestionID: "q1", Selected: []string{"Soften"}},
		{QuestionID: "q2", FreeText: "only if they involve food"},
		{QuestionID: "unknown", Selected: []string{"ignored"}},
	}

	brief := n.FinalizeBrief(draft, questions, answers, false)

	assert.Contains(t, brief, "Primary intent: Summarize the French Revolution for a 10-year-old")
	assert.Contains(t, brief, "Handle the violent parts how? -> Soften")
	assert.Contains(t, brief, "only if they involve food")
	assert.NotContains(t, brief, "ignored", "answers to unknown questions are dropped")
}

func TestFinalizeBriefSkipped(t *testing.T) {
	n := newNormalizer(mocks.NewMockProvider())
	draft := &intent.Draft{
		PrimaryIntent: "compare rust and go",
		Goal:          "choose a language",
		Category:      intent.CategoryAnalysis,
		Deliverable:   intent.DeliverableSpec{Format: "prose", Depth: "standard", Tone: "neutral", Structure: "sections"},
		Quality:       intent.QualityBar{Rigor: "standard", Evidence: "moderate", Completeness: "thorough", RiskTolerance: "balanced"},
	}

	brief := n.FinalizeBrief(draft, nil, nil, true)

	assert.Contains(t, brief, "Clarifications: none provided")
}
