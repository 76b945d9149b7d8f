package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/council/llm"
	"github.com/BaSui01/council/structured"
)

// Config configures the normalizer. Model lists and the generic
// question library are injected so tests can substitute fixtures.
type Config struct {
	// Models are candidate backends for the analysis call, tried in order.
	Models           []string
	Timeout          time.Duration
	GenericTemplates []string
}

// Normalizer turns a raw analysis object plus the original user text
// into a canonical Draft and clarification question set. It never
// blocks the pipeline: with no usable analysis it degrades to a fully
// deterministic draft.
type Normalizer struct {
	cfg     Config
	gateway *llm.Gateway
	engine  *structured.Engine
	logger  *zap.Logger
}

// NewNormalizer creates a normalizer.
func NewNormalizer(cfg Config, gateway *llm.Gateway, engine *structured.Engine, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.GenericTemplates) == 0 {
		cfg.GenericTemplates = DefaultGenericTemplates
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Normalizer{
		cfg:     cfg,
		gateway: gateway,
		engine:  engine,
		logger:  logger.With(zap.String("component", "intent")),
	}
}

// rawAnalysis is the loosely-structured wire shape the analysis call is
// asked to emit. Every field is optional; normalization fills gaps.
type rawAnalysis struct {
	PrimaryIntent string `json:"primary_intent"`
	Goal          string `json:"goal"`
	TaskType      string `json:"task_type"`
	Deliverable   struct {
		Format           string   `json:"format"`
		Depth            string   `json:"depth"`
		Tone             string   `json:"tone"`
		Structure        string   `json:"structure"`
		RequiredElements []string `json:"required_elements"`
	} `json:"deliverable"`
	Audience    string `json:"audience"`
	Constraints struct {
		Must    []string `json:"must"`
		Should  []string `json:"should"`
		MustNot []string `json:"must_not"`
	} `json:"constraints"`
	Quality struct {
		Rigor         string `json:"rigor"`
		Evidence      string `json:"evidence"`
		Completeness  string `json:"completeness"`
		RiskTolerance string `json:"risk_tolerance"`
	} `json:"quality"`
	Confidence    string   `json:"confidence"`
	Understanding []string `json:"understanding"`
	Questions     []struct {
		Question string   `json:"question"`
		Options  []string `json:"options"`
	} `json:"questions"`
}

// Draft produces the canonical intent record and question set for one
// user turn.
func (n *Normalizer) Draft(ctx context.Context, userText string, history []string) (*Draft, []Question) {
	var raw rawAnalysis
	outcome := structured.Outcome{Status: structured.StatusEmptyContent}

	if n.gateway != nil && len(n.cfg.Models) > 0 {
		res := n.gateway.TryCandidates(ctx, n.cfg.Models, func(model string) *llm.ChatRequest {
			return &llm.ChatRequest{
				Model:    model,
				Messages: []llm.Message{{Role: llm.RoleUser, Content: buildAnalysisPrompt(userText, history)}},
				Timeout:  n.cfg.Timeout,
			}
		})
		outcome = n.engine.FromResult(ctx, res, analysisSchema, &raw)
	}

	if !outcome.Recovered() {
		n.logger.Warn("analysis unrecoverable, using deterministic draft",
			zap.String("status", string(outcome.Status)))
		draft := n.fallbackDraft(userText)
		return draft, fallbackQuestions(userText)
	}

	draft := n.normalize(&raw, userText)
	questions := n.buildQuestions(&raw, draft, userText)
	return draft, questions
}

// normalize canonicalizes the raw analysis, filling every gap with a
// deterministic default and scrubbing echoed display text.
func (n *Normalizer) normalize(raw *rawAnalysis, userText string) *Draft {
	draft := &Draft{
		PrimaryIntent: orDefault(strings.TrimSpace(raw.PrimaryIntent), userText),
		Goal:          orDefault(strings.TrimSpace(raw.Goal), "Fully address the request as stated"),
		Category:      ParseTaskCategory(raw.TaskType),
		Deliverable: DeliverableSpec{
			Format:           orDefault(raw.Deliverable.Format, "prose"),
			Depth:            normalizeDepth(raw.Deliverable.Depth),
			Tone:             orDefault(raw.Deliverable.Tone, "clear and direct"),
			Structure:        orDefault(raw.Deliverable.Structure, "logical sections"),
			RequiredElements: trimAll(raw.Deliverable.RequiredElements),
		},
		Audience: strings.TrimSpace(raw.Audience),
		Constraints: Constraints{
			Must:    trimAll(raw.Constraints.Must),
			Should:  trimAll(raw.Constraints.Should),
			MustNot: trimAll(raw.Constraints.MustNot),
		},
		Quality: QualityBar{
			Rigor:         orDefault(raw.Quality.Rigor, "standard"),
			Evidence:      orDefault(raw.Quality.Evidence, "moderate"),
			Completeness:  orDefault(raw.Quality.Completeness, "thorough"),
			RiskTolerance: orDefault(raw.Quality.RiskTolerance, "balanced"),
		},
		Confidence:    parseConfidence(raw.Confidence),
		Understanding: trimAll(raw.Understanding),
	}
	if draft.Category == CategoryGeneral {
		draft.Category = inferCategory(userText)
	}
	scrubEchoes(draft, userText)
	return draft
}

// buildQuestions scores and filters the analysis's candidate questions
// against the request and the inferred context terms.
func (n *Normalizer) buildQuestions(raw *rawAnalysis, draft *Draft, userText string) []Question {
	candidates := make([]Question, 0, len(raw.Questions))
	for _, q := range raw.Questions {
		candidates = append(candidates, Question{Text: q.Question, Options: q.Options})
	}
	contextTerms := []string{
		draft.Audience,
		draft.Deliverable.Format,
		draft.Deliverable.Depth,
		draft.Deliverable.Tone,
		draft.Goal,
		string(draft.Category),
	}
	return filterQuestions(candidates, userText, contextTerms, n.cfg.GenericTemplates)
}

// fallbackDraft is the fully deterministic degraded path: verbatim
// primary intent, keyword-inferred category and depth, generic
// deliverable defaults.
func (n *Normalizer) fallbackDraft(userText string) *Draft {
	draft := &Draft{
		PrimaryIntent: userText,
		Goal:          "Fully address the request as stated",
		Category:      inferCategory(userText),
		Deliverable: DeliverableSpec{
			Format:    "prose",
			Depth:     inferDepth(userText),
			Tone:      "clear and direct",
			Structure: "logical sections",
		},
		Audience: detectAudience(strings.ToLower(userText)),
		Quality: QualityBar{
			Rigor:         "standard",
			Evidence:      "moderate",
			Completeness:  "thorough",
			RiskTolerance: "balanced",
		},
		Confidence: ConfidenceLow,
	}
	scrubEchoes(draft, userText)
	return draft
}

// FinalizeBrief merges clarification answers into the finalized intent
// brief consumed by every later stage. skipped marks an explicit skip
// from the clarification gate.
func (n *Normalizer) FinalizeBrief(draft *Draft, questions []Question, answers []Answer, skipped bool) string {
	var sb strings.Builder
	sb.WriteString("Primary intent: " + draft.PrimaryIntent + "\n")
	sb.WriteString("Goal: " + draft.Goal + "\n")
	sb.WriteString(fmt.Sprintf("Task category: %s\n", draft.Category))
	sb.WriteString(fmt.Sprintf("Deliverable: %s, %s depth, %s tone, structured as %s\n",
		draft.Deliverable.Format, draft.Deliverable.Depth, draft.Deliverable.Tone, draft.Deliverable.Structure))
	if len(draft.Deliverable.RequiredElements) > 0 {
		sb.WriteString("Required elements: " + strings.Join(draft.Deliverable.RequiredElements, "; ") + "\n")
	}
	if draft.Audience != "" {
		sb.WriteString("Audience: " + draft.Audience + "\n")
	}
	writeConstraintLine(&sb, "Must", draft.Constraints.Must)
	writeConstraintLine(&sb, "Should", draft.Constraints.Should)
	writeConstraintLine(&sb, "Must not", draft.Constraints.MustNot)
	sb.WriteString(fmt.Sprintf("Quality bar: %s rigor, %s evidence, %s completeness, %s risk tolerance\n",
		draft.Quality.Rigor, draft.Quality.Evidence, draft.Quality.Completeness, draft.Quality.RiskTolerance))

	if skipped || len(answers) == 0 {
		sb.WriteString("Clarifications: none provided; proceeding on the draft understanding.\n")
		return sb.String()
	}

	byID := make(map[string]Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	sb.WriteString("Clarifications:\n")
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			continue
		}
		answer := strings.Join(a.Selected, ", ")
		if a.FreeText != "" {
			if answer != "" {
				answer += "; "
			}
			answer += a.FreeText
		}
		if answer == "" {
			answer = "no preference"
		}
		sb.WriteString(fmt.Sprintf("- %s -> %s\n", q.Text, answer))
	}
	return sb.String()
}

// inferCategory keyword-detects the task category from the user text.
func inferCategory(userText string) TaskCategory {
	lower := strings.ToLower(userText)
	switch {
	case containsAnyWord(lower, "summarize", "summarise", "explain", "what is", "describe", "teach"):
		return CategoryExplanation
	case containsAnyWord(lower, "write a story", "poem", "script", "fiction", "creative"):
		return CategoryCreative
	case containsAnyWord(lower, "code", "implement", "debug", "function", "program", "api"):
		return CategoryCoding
	case containsAnyWord(lower, "plan", "roadmap", "schedule", "milestones"):
		return CategoryPlanning
	case containsAnyWord(lower, "compare", "analyze", "analyse", "evaluate", "pros and cons"):
		return CategoryAnalysis
	case containsAnyWord(lower, "should i", "recommend", "advice", "best way"):
		return CategoryAdvice
	case containsAnyWord(lower, "research", "investigate", "sources", "literature"):
		return CategoryResearch
	default:
		return CategoryGeneral
	}
}

// inferDepth keyword-detects the expected depth.
func inferDepth(userText string) string {
	lower := strings.ToLower(userText)
	switch {
	case containsAnyWord(lower, "summarize", "summarise", "brief", "quick", "overview", "short"):
		return "quick"
	case containsAnyWord(lower, "deep dive", "comprehensive", "detailed", "in depth", "thorough"):
		return "deep"
	default:
		return "standard"
	}
}

func normalizeDepth(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quick", "brief", "shallow":
		return "quick"
	case "deep", "comprehensive", "exhaustive":
		return "deep"
	case "":
		return "standard"
	default:
		return "standard"
	}
}

func parseConfidence(s string) Confidence {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ConfidenceHigh
	case "low":
		return ConfidenceLow
	default:
		return ConfidenceMedium
	}
}

func containsAnyWord(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}

func writeConstraintLine(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(label + ": " + strings.Join(items, "; ") + "\n")
}

// analysisSchema is the target shape handed to the recovery engine's
// repair step when the analysis output cannot be parsed textually.
const analysisSchema = `{
  "type": "object",
  "properties": {
    "primary_intent": {"type": "string"},
    "goal": {"type": "string"},
    "task_type": {"type": "string", "enum": ["research", "explanation", "creative_writing", "coding", "planning", "analysis", "advice", "general"]},
    "deliverable": {
      "type": "object",
      "properties": {
        "format": {"type": "string"},
        "depth": {"type": "string", "enum": ["quick", "standard", "deep"]},
        "tone": {"type": "string"},
        "structure": {"type": "string"},
        "required_elements": {"type": "array", "items": {"type": "string"}}
      }
    },
    "audience": {"type": "string"},
    "constraints": {
      "type": "object",
      "properties": {
        "must": {"type": "array", "items": {"type": "string"}},
        "should": {"type": "array", "items": {"type": "string"}},
        "must_not": {"type": "array", "items": {"type": "string"}}
      }
    },
    "quality": {
      "type": "object",
      "properties": {
        "rigor": {"type": "string"},
        "evidence": {"type": "string"},
        "completeness": {"type": "string"},
        "risk_tolerance": {"type": "string"}
      }
    },
    "confidence": {"type": "string", "enum": ["high", "medium", "low"]},
    "understanding": {"type": "array", "items": {"type": "string"}},
    "questions": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "question": {"type": "string"},
          "options": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`

// buildAnalysisPrompt asks for the raw analysis object. History gives
// conversational context without being restated in the draft.
func buildAnalysisPrompt(userText string, history []string) string {
	var sb strings.Builder
	sb.WriteString("Analyze the user's request and respond with ONLY a JSON object matching this schema:\n")
	sb.WriteString(analysisSchema)
	sb.WriteString("\n\nGuidance:\n")
	sb.WriteString("- understanding: 2-4 bullets restating what the request is really after, in YOUR OWN words, never copying the user's sentence.\n")
	sb.WriteString("- questions: 3-6 clarification questions anchored to THIS request. Each needs 2-5 concrete options. Skip generic checklist questions about audience or format unless this request makes them genuinely ambiguous.\n")
	if len(history) > 0 {
		sb.WriteString("\nConversation so far:\n")
		for _, h := range history {
			sb.WriteString(h + "\n")
		}
	}
	sb.WriteString("\nUser request:\n" + userText + "\n\nJSON:")
	return sb.String()
}
