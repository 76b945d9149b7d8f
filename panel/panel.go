// Package panel merges independently generated expert suggestions into
// an ordered, conflict-free panel of exactly K roles.
package panel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/council/llm"
	"github.com/BaSui01/council/structured"
)

// ExpertSpec is one panel seat: a role, its mandate, and a strict
// permutation index in [1..K] unique within the panel. Immutable after
// formation.
type ExpertSpec struct {
	Role       string   `json:"role"`
	Task       string   `json:"task"`
	Objectives []string `json:"objectives,omitempty"`
	Order      int      `json:"order"`
}

// Config configures panel formation. The default panel is injected
// configuration data, not package state, so tests can substitute
// fixtures.
type Config struct {
	Size             int
	SuggestionModels []string
	ChairmanModel    string
	Defaults         []ExpertSpec
	Timeout          time.Duration
}

// Former runs the two-phase formation: parallel suggestion gathering
// across all participating backends, then one chairman synthesis call.
type Former struct {
	cfg     Config
	gateway *llm.Gateway
	engine  *structured.Engine
	logger  *zap.Logger
}

// NewFormer creates a panel former.
func NewFormer(cfg Config, gateway *llm.Gateway, engine *structured.Engine, logger *zap.Logger) *Former {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Size <= 0 {
		cfg.Size = 6
	}
	if len(cfg.Defaults) == 0 {
		cfg.Defaults = DefaultPanel()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Former{
		cfg:     cfg,
		gateway: gateway,
		engine:  engine,
		logger:  logger.With(zap.String("component", "panel")),
	}
}

// Result carries the formed panel plus the brainstorm transcript shown
// to the client.
type Result struct {
	Display string
	Panel   []ExpertSpec
}

// Form produces exactly K ExpertSpec entries with a valid 1..K order
// permutation. Individual suggestion failures degrade to placeholders;
// a failed synthesis falls back to the default panel.
func (f *Former) Form(ctx context.Context, userQuery, intentBrief string) *Result {
	suggestions := f.gatherSuggestions(ctx, userQuery, intentBrief)

	display := formatBrainstorm(suggestions)
	synthesisInput := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		if s.failed {
			continue
		}
		synthesisInput = append(synthesisInput, fmt.Sprintf("=== Suggestions from %s ===\n%s", s.model, s.content))
	}

	var raw rawPanel
	outcome := structured.Outcome{Status: structured.StatusEmptyContent}
	if len(synthesisInput) > 0 {
		res := f.gateway.Invoke(ctx, &llm.ChatRequest{
			Model:    f.cfg.ChairmanModel,
			Messages: []llm.Message{{Role: llm.RoleUser, Content: buildSynthesisPrompt(userQuery, intentBrief, synthesisInput, f.cfg.Size)}},
			Timeout:  f.cfg.Timeout,
		})
		outcome = f.engine.FromResult(ctx, res, panelSchema, &raw)
	}

	if !outcome.Recovered() {
		f.logger.Warn("panel synthesis unrecoverable, using default panel",
			zap.String("status", string(outcome.Status)))
		return &Result{Display: display, Panel: clonePanel(f.cfg.Defaults, f.cfg.Size)}
	}

	entries := make([]ExpertSpec, 0, len(raw.Experts))
	for _, e := range raw.Experts {
		entries = append(entries, ExpertSpec{
			Role:       strings.TrimSpace(e.Role),
			Task:       strings.TrimSpace(e.Task),
			Objectives: e.Objectives,
			Order:      e.Order,
		})
	}
	panel := ResolveOrders(entries, f.cfg.Size, f.cfg.Defaults)

	if raw.TeamRationale != "" {
		display += "\n\n---\n\nChairman's team selection:\n" + raw.TeamRationale
	}
	return &Result{Display: display, Panel: panel}
}

type suggestion struct {
	model   string
	content string
	failed  bool
}

// gatherSuggestions fans out one brainstorm call per participating
// backend. Results land in disjoint slots of a pre-sized slice, joined
// before the dependent synthesis step runs; no ordering is guaranteed
// within the fan-out.
func (f *Former) gatherSuggestions(ctx context.Context, userQuery, intentBrief string) []suggestion {
	prompt := buildSuggestionPrompt(userQuery, intentBrief)
	results := make([]suggestion, len(f.cfg.SuggestionModels))

	g, gctx := errgroup.WithContext(ctx)
	for i, model := range f.cfg.SuggestionModels {
		i, model := i, model
		g.Go(func() error {
			res := f.gateway.Invoke(gctx, &llm.ChatRequest{
				Model:    model,
				Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
				Timeout:  f.cfg.Timeout,
			})
			if res.OK() {
				results[i] = suggestion{model: model, content: res.Text}
			} else {
				results[i] = suggestion{model: model, failed: true}
			}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures degrade in place
	return results
}

// ResolveOrders turns loosely-ordered entries into a strict 1..K
// permutation. An order is accepted only if it is in [1..K] and
// unclaimed; entries with missing, invalid, or duplicate orders queue
// up and take the remaining free slots in encounter order. Short
// panels pad from the defaults, keyed by order.
func ResolveOrders(entries []ExpertSpec, k int, defaults []ExpertSpec) []ExpertSpec {
	if len(entries) > k {
		entries = entries[:k]
	}

	claimed := make(map[int]ExpertSpec, k)
	var queue []ExpertSpec
	for _, e := range entries {
		if e.Order >= 1 && e.Order <= k {
			if _, taken := claimed[e.Order]; !taken {
				claimed[e.Order] = e
				continue
			}
		}
		queue = append(queue, e)
	}

	qi := 0
	for slot := 1; slot <= k && qi < len(queue); slot++ {
		if _, taken := claimed[slot]; taken {
			continue
		}
		e := queue[qi]
		e.Order = slot
		claimed[slot] = e
		qi++
	}

	out := make([]ExpertSpec, 0, k)
	for slot := 1; slot <= k; slot++ {
		if e, ok := claimed[slot]; ok {
			out = append(out, e)
			continue
		}
		out = append(out, defaultFor(defaults, slot))
	}
	return out
}

func defaultFor(defaults []ExpertSpec, order int) ExpertSpec {
	for _, d := range defaults {
		if d.Order == order {
			return d
		}
	}
	return ExpertSpec{
		Role:       fmt.Sprintf("Expert %d", order),
		Task:       "Contribute domain expertise and review prior work.",
		Objectives: []string{"Add value"},
		Order:      order,
	}
}

func clonePanel(defaults []ExpertSpec, k int) []ExpertSpec {
	out := make([]ExpertSpec, 0, k)
	for slot := 1; slot <= k; slot++ {
		out = append(out, defaultFor(defaults, slot))
	}
	return out
}

// DefaultPanel is the deterministic fallback team used when synthesis
// degrades or returns too few usable entries.
func DefaultPanel() []ExpertSpec {
	return []ExpertSpec{
		{Role: "Strategic Analyst", Task: "Set the strategic direction and define the overall approach.", Objectives: []string{"Define strategy"}, Order: 1},
		{Role: "Technical Architect", Task: "Lay the technical foundation and check feasibility.", Objectives: []string{"Ensure feasibility"}, Order: 2},
		{Role: "Domain Specialist", Task: "Bring subject-matter depth to the core questions.", Objectives: []string{"Add domain depth"}, Order: 3},
		{Role: "Implementation Expert", Task: "Translate the analysis into actionable guidance.", Objectives: []string{"Provide guidance"}, Order: 4},
		{Role: "Risk Analyst", Task: "Surface risks, edge cases, and unstated assumptions.", Objectives: []string{"Identify risks"}, Order: 5},
		{Role: "Quality Reviewer", Task: "Critically review the accumulated work for completeness.", Objectives: []string{"Ensure quality"}, Order: 6},
	}
}

type rawPanel struct {
	TeamRationale string `json:"team_rationale"`
	Experts       []struct {
		Role       string   `json:"role"`
		Task       string   `json:"task"`
		Objectives []string `json:"objectives"`
		Order      int      `json:"order"`
	} `json:"experts"`
}

const panelSchema = `{
  "type": "object",
  "properties": {
    "team_rationale": {"type": "string"},
    "experts": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "role": {"type": "string"},
          "task": {"type": "string"},
          "objectives": {"type": "array", "items": {"type": "string"}},
          "order": {"type": "integer"}
        },
        "required": ["role", "task", "order"]
      }
    }
  },
  "required": ["experts"]
}`

func formatBrainstorm(suggestions []suggestion) string {
	sections := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		name := shortModelName(s.model)
		if s.failed {
			sections = append(sections, fmt.Sprintf("### %s\n*Failed to respond*\n", name))
			continue
		}
		sections = append(sections, fmt.Sprintf("### %s\n%s\n", name, s.content))
	}
	return "## Expert Brainstorm Results\n\n" + strings.Join(sections, "\n---\n\n")
}

func shortModelName(model string) string {
	if idx := strings.LastIndex(model, "/"); idx >= 0 {
		return model[idx+1:]
	}
	return model
}

func buildSuggestionPrompt(userQuery, intentBrief string) string {
	var sb strings.Builder
	sb.WriteString("You are brainstorming the optimal expert team for this specific request. Suggest 2-3 experts whose expertise is essential for it.\n\n")
	sb.WriteString("User request:\n" + userQuery + "\n\n")
	sb.WriteString("Intent brief:\n" + intentBrief + "\n\n")
	sb.WriteString("For each expert give a specific professional title (not a generic one), why that expertise is critical here, 2-3 concrete goals, and the tangible output they will contribute.\n")
	return sb.String()
}

func buildSynthesisPrompt(userQuery, intentBrief string, suggestions []string, k int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are the chairman forming the final expert team from brainstorm suggestions. Select exactly %d complementary experts, each covering a different dimension, ordered so foundation builders come first and quality reviewers last.\n\n", k))
	sb.WriteString("User request:\n" + userQuery + "\n\n")
	sb.WriteString("Intent brief:\n" + intentBrief + "\n\n")
	sb.WriteString("Brainstorm suggestions:\n" + strings.Join(suggestions, "\n") + "\n\n")
	sb.WriteString("Respond with ONLY a JSON object matching:\n" + panelSchema + "\n")
	sb.WriteString(fmt.Sprintf("\nEach expert needs a detailed task description and an order value from 1 to %d.", k))
	return sb.String()
}
