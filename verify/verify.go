// Package verify grounds claims from expert contributions in external
// evidence: scope synthesis, dynamically-sized target selection,
// per-target search-augmented evidence gathering, and report assembly.
package verify

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/council/llm"
	"github.com/BaSui01/council/structured"
)

// Verdict is the closed set of per-claim conclusions.
type Verdict string

const (
	VerdictVerified           Verdict = "verified"
	VerdictPartiallyAccurate  Verdict = "partially_accurate"
	VerdictIncorrect          Verdict = "incorrect"
	VerdictNeedsClarification Verdict = "needs_clarification"
	VerdictUnclear            Verdict = "unclear"
)

// ParseVerdict maps loose model output onto the closed set.
func ParseVerdict(s string) Verdict {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))) {
	case "verified", "correct", "accurate":
		return VerdictVerified
	case "partially_accurate", "partially accurate", "partial", "mixed":
		return VerdictPartiallyAccurate
	case "incorrect", "false", "wrong":
		return VerdictIncorrect
	case "needs_clarification", "needs clarification":
		return VerdictNeedsClarification
	default:
		return VerdictUnclear
	}
}

// Scope is the categorized inventory of checkable material extracted
// from the contributions.
type Scope struct {
	Claims      []string `json:"claims"`
	Concerns    []string `json:"concerns"`
	Assumptions []string `json:"assumptions"`
	Entities    []string `json:"entities"`
	Metrics     []string `json:"metrics"`
}

// Target is one claim selected for evidence gathering. Ephemeral:
// generated fresh per run, never persisted.
type Target struct {
	Claim            string   `json:"claim"`
	Rationale        string   `json:"rationale"`
	Query            string   `json:"query"`
	PreferredSources []string `json:"preferred_sources,omitempty"`
}

// Finding is the evidence outcome for one target.
type Finding struct {
	Claim       string   `json:"claim"`
	Verdict     Verdict  `json:"verdict"`
	Summary     string   `json:"summary"`
	Correction  string   `json:"correction,omitempty"`
	Sources     []string `json:"sources,omitempty"`
	Reliability string   `json:"reliability,omitempty"`
}

// Report is the assembled verification report.
type Report struct {
	Text     string
	Findings []Finding
	Degraded bool
}

// Contribution is the read-only slice of one expert's output the
// verifier needs.
type Contribution struct {
	Order int
	Role  string
	Text  string
}

// Config configures the verification pipeline. BaseTargets and
// MaxTargets bound the dynamically computed target count.
type Config struct {
	BaseTargets     int
	MaxTargets      int
	ClaimsPerTarget int // risk items per search target
	ScopeModel      string
	ReportModel     string
	Search          llm.SearchConfig
	Timeout         time.Duration
}

// Pipeline runs the verification sub-pipeline for one deliberation run.
type Pipeline struct {
	cfg     Config
	gateway *llm.Gateway
	engine  *structured.Engine
	logger  *zap.Logger
}

// NewPipeline creates a verification pipeline.
func NewPipeline(cfg Config, gateway *llm.Gateway, engine *structured.Engine, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseTargets <= 0 {
		cfg.BaseTargets = 3
	}
	if cfg.MaxTargets < cfg.BaseTargets {
		cfg.MaxTargets = 8
	}
	if cfg.ClaimsPerTarget <= 0 {
		cfg.ClaimsPerTarget = 6
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Pipeline{
		cfg:     cfg,
		gateway: gateway,
		engine:  engine,
		logger:  logger.With(zap.String("component", "verify")),
	}
}

// Run executes the five verification stages. Every stage degrades
// rather than aborts: a missing scope, target list, or evidence set
// becomes a status note and the report is assembled on model knowledge
// alone.
func (p *Pipeline) Run(ctx context.Context, userQuery string, contributions []Contribution) *Report {
	var notes []string

	scope := p.synthesizeScope(ctx, userQuery, contributions)
	if scope == nil {
		notes = append(notes, "claim scope synthesis unavailable")
	}

	var targets []Target
	if scope != nil {
		count := p.TargetCount(scope)
		targets = p.selectTargets(ctx, userQuery, contributions, scope, count)
		if len(targets) == 0 {
			notes = append(notes, "target selection unavailable")
		}
	}

	var findings []Finding
	if len(targets) > 0 {
		findings = p.gatherEvidence(ctx, targets)
		if len(findings) == 0 {
			notes = append(notes, "no external evidence gathered")
		}
	}

	text := p.assembleReport(ctx, userQuery, contributions, findings, notes)
	return &Report{Text: text, Findings: findings, Degraded: len(notes) > 0}
}

// TargetCount scales search effort to the density of checkable claims:
// clamp(ceil(unique_risk_items / ClaimsPerTarget), BaseTargets,
// MaxTargets), where unique risk items are the case-folded,
// deduplicated union of all scope categories.
func (p *Pipeline) TargetCount(scope *Scope) int {
	unique := map[string]struct{}{}
	for _, category := range [][]string{scope.Claims, scope.Concerns, scope.Assumptions, scope.Entities, scope.Metrics} {
		for _, item := range category {
			key := strings.Join(strings.Fields(strings.ToLower(item)), " ")
			if key == "" {
				continue
			}
			unique[key] = struct{}{}
		}
	}
	count := int(math.Ceil(float64(len(unique)) / float64(p.cfg.ClaimsPerTarget)))
	if count < p.cfg.BaseTargets {
		count = p.cfg.BaseTargets
	}
	if count > p.cfg.MaxTargets {
		count = p.cfg.MaxTargets
	}
	return count
}

func (p *Pipeline) synthesizeScope(ctx context.Context, userQuery string, contributions []Contribution) *Scope {
	var scope Scope
	res := p.gateway.Invoke(ctx, &llm.ChatRequest{
		Model:    p.cfg.ScopeModel,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: buildScopePrompt(userQuery, contributions)}},
		Timeout:  p.cfg.Timeout,
	})
	outcome := p.engine.FromResult(ctx, res, scopeSchema, &scope)
	if !outcome.Recovered() {
		p.logger.Warn("scope synthesis degraded", zap.String("status", string(outcome.Status)))
		return nil
	}
	return &scope
}

func (p *Pipeline) selectTargets(ctx context.Context, userQuery string, contributions []Contribution, scope *Scope, count int) []Target {
	var raw struct {
		Targets []Target `json:"targets"`
	}
	res := p.gateway.Invoke(ctx, &llm.ChatRequest{
		Model:    p.cfg.ScopeModel,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: buildTargetPrompt(userQuery, scope, count)}},
		Timeout:  p.cfg.Timeout,
	})
	outcome := p.engine.FromResult(ctx, res, targetSchema, &raw)
	if !outcome.Recovered() {
		p.logger.Warn("target selection degraded", zap.String("status", string(outcome.Status)))
		return nil
	}

	targets := make([]Target, 0, count)
	for _, t := range raw.Targets {
		if strings.TrimSpace(t.Claim) == "" {
			continue
		}
		if t.Query == "" {
			t.Query = t.Claim
		}
		targets = append(targets, t)
		if len(targets) == count {
			break
		}
	}
	return targets
}

// gatherEvidence fans out one search-augmented invocation per target.
// Targets are independent, so results land in disjoint slots of a
// pre-sized slice and are joined by index before report assembly.
func (p *Pipeline) gatherEvidence(ctx context.Context, targets []Target) []Finding {
	findings := make([]Finding, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			findings[i] = p.checkTarget(gctx, target)
			return nil
		})
	}
	_ = g.Wait() // workers record degraded findings instead of failing

	usable := findings[:0]
	for _, f := range findings {
		if f.Claim != "" {
			usable = append(usable, f)
		}
	}
	return usable
}

// checkTarget gathers evidence for one claim. When the agent's JSON
// omits sources, provider-native citation annotations fill in.
func (p *Pipeline) checkTarget(ctx context.Context, target Target) Finding {
	res := p.gateway.Invoke(ctx, llm.NewSearchRequest(p.cfg.Search, []llm.Message{
		{Role: llm.RoleUser, Content: buildEvidencePrompt(target)},
	}))
	if !res.OK() {
		p.logger.Debug("evidence gathering failed for target",
			zap.String("claim", target.Claim), zap.String("status", string(res.Status)))
		return Finding{Claim: target.Claim, Verdict: VerdictUnclear, Summary: "No evidence could be gathered for this claim."}
	}

	var raw struct {
		Verdict     string   `json:"verdict"`
		Summary     string   `json:"summary"`
		Correction  string   `json:"correction"`
		Sources     []string `json:"sources"`
		Reliability string   `json:"reliability"`
	}
	outcome := p.engine.Recover(res.Text, &raw)
	if !outcome.Recovered() {
		// keep the prose as the summary rather than dropping the work
		return Finding{
			Claim:   target.Claim,
			Verdict: VerdictUnclear,
			Summary: strings.TrimSpace(res.Text),
			Sources: annotationSources(res.Annotations),
		}
	}

	finding := Finding{
		Claim:       target.Claim,
		Verdict:     ParseVerdict(raw.Verdict),
		Summary:     raw.Summary,
		Correction:  raw.Correction,
		Sources:     raw.Sources,
		Reliability: raw.Reliability,
	}
	if len(finding.Sources) == 0 {
		finding.Sources = annotationSources(res.Annotations)
	}
	return finding
}

func (p *Pipeline) assembleReport(ctx context.Context, userQuery string, contributions []Contribution, findings []Finding, notes []string) string {
	res := p.gateway.Invoke(ctx, &llm.ChatRequest{
		Model:    p.cfg.ReportModel,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: buildReportPrompt(userQuery, contributions, findings)}},
		Timeout:  p.cfg.Timeout,
	})

	var body string
	if res.OK() {
		body = res.Text
	} else {
		p.logger.Warn("report assembly degraded", zap.String("status", string(res.Status)))
		body = "## Factual Verification Report\n\nVerification unavailable for this run."
	}

	if len(notes) > 0 {
		return fmt.Sprintf("Search Status: %s; the report below relies on model knowledge alone.\n\n%s",
			strings.Join(notes, "; "), body)
	}
	return body
}

func annotationSources(annotations []llm.Annotation) []string {
	out := make([]string, 0, len(annotations))
	for _, a := range annotations {
		if a.URL != "" {
			out = append(out, a.URL)
		}
	}
	return out
}

const scopeSchema = `{
  "type": "object",
  "properties": {
    "claims": {"type": "array", "items": {"type": "string"}},
    "concerns": {"type": "array", "items": {"type": "string"}},
    "assumptions": {"type": "array", "items": {"type": "string"}},
    "entities": {"type": "array", "items": {"type": "string"}},
    "metrics": {"type": "array", "items": {"type": "string"}}
  }
}`

const targetSchema = `{
  "type": "object",
  "properties": {
    "targets": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "claim": {"type": "string"},
          "rationale": {"type": "string"},
          "query": {"type": "string"},
          "preferred_sources": {"type": "array", "items": {"type": "string"}}
        },
        "required": ["claim", "query"]
      }
    }
  }
}`

func buildScopePrompt(userQuery string, contributions []Contribution) string {
	var sb strings.Builder
	sb.WriteString("Extract every checkable claim, concern, assumption, named entity, and metric from the expert contributions below.\n\n")
	sb.WriteString("User request:\n" + userQuery + "\n\n")
	writeContributionSummaries(&sb, contributions, 300)
	sb.WriteString("\nRespond with ONLY a JSON object matching:\n" + scopeSchema)
	return sb.String()
}

func buildTargetPrompt(userQuery string, scope *Scope, count int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("From the risk inventory below, pick exactly %d highest-risk claims to verify with a web search. For each give the claim, why it is risky, one focused search query, and preferred source types.\n\n", count))
	sb.WriteString("User request:\n" + userQuery + "\n\n")
	writeScopeSection(&sb, "Claims", scope.Claims)
	writeScopeSection(&sb, "Concerns", scope.Concerns)
	writeScopeSection(&sb, "Assumptions", scope.Assumptions)
	writeScopeSection(&sb, "Entities", scope.Entities)
	writeScopeSection(&sb, "Metrics", scope.Metrics)
	sb.WriteString("\nRespond with ONLY a JSON object matching:\n" + targetSchema)
	return sb.String()
}

func buildEvidencePrompt(target Target) string {
	var sb strings.Builder
	sb.WriteString("Verify this claim against current, reliable sources.\n\n")
	sb.WriteString("Claim: " + target.Claim + "\n")
	if target.Rationale != "" {
		sb.WriteString("Why it matters: " + target.Rationale + "\n")
	}
	sb.WriteString("Suggested search: " + target.Query + "\n")
	if len(target.PreferredSources) > 0 {
		sb.WriteString("Prefer sources like: " + strings.Join(target.PreferredSources, ", ") + "\n")
	}
	sb.WriteString("\nRespond with ONLY a JSON object: {\"verdict\": \"verified|partially_accurate|incorrect|needs_clarification|unclear\", \"summary\": \"...\", \"correction\": \"...\", \"sources\": [\"url\", ...], \"reliability\": \"high|medium|low\"}")
	return sb.String()
}

func buildReportPrompt(userQuery string, contributions []Contribution, findings []Finding) string {
	var sb strings.Builder
	sb.WriteString("You are a meticulous fact-checker. Audit the expert contributions for factual errors and reasoning defects, using the gathered evidence where it exists and your own knowledge where it does not.\n\n")
	sb.WriteString("User request:\n" + userQuery + "\n\n")
	writeContributionSummaries(&sb, contributions, 300)
	if len(findings) > 0 {
		sb.WriteString("\nGathered evidence:\n")
		for _, f := range findings {
			sb.WriteString(fmt.Sprintf("- Claim: %s\n  Verdict: %s\n  Summary: %s\n", f.Claim, f.Verdict, f.Summary))
			if f.Correction != "" {
				sb.WriteString("  Correction: " + f.Correction + "\n")
			}
			if len(f.Sources) > 0 {
				sb.WriteString("  Sources: " + strings.Join(f.Sources, ", ") + "\n")
			}
		}
	}
	sb.WriteString("\nProduce a report with these sections: '## Factual Verification Report', then one '### Claim N' block per audited claim with Verdict and Evidence lines, then a '### Reasoning Quality' section.")
	return sb.String()
}

func writeScopeSection(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(label + ":\n")
	for _, it := range items {
		sb.WriteString("- " + it + "\n")
	}
}

func writeContributionSummaries(sb *strings.Builder, contributions []Contribution, limit int) {
	sb.WriteString("Expert contributions:\n")
	for _, c := range contributions {
		text := c.Text
		if runes := []rune(text); len(runes) > limit {
			text = string(runes[:limit]) + "..."
		}
		sb.WriteString(fmt.Sprintf("- Expert %d (%s): %s\n", c.Order, c.Role, text))
	}
}
