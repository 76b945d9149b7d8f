package council

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/council/intent"
	"github.com/BaSui01/council/llm"
	"github.com/BaSui01/council/panel"
	"github.com/BaSui01/council/verify"
)

// Placeholders substituted when a non-critical stage degrades. The run
// always reaches Complete with a final artifact; only the intent draft
// and final synthesis are run-fatal.
const (
	placeholderContribution = "Expert contribution unavailable."
	placeholderPlan         = "Synthesis plan unavailable."
	placeholderEditorial    = "Editorial guidelines unavailable."
	defaultTitle            = "New Conversation"
)

// Config configures the orchestrator. Model lists are injected
// configuration data.
type Config struct {
	PanelSize      int
	CouncilModels  []string // contribution backends, assigned round-robin by order
	ChairmanModel  string
	UtilityModel   string   // verification-adjacent and editorial utility calls
	FallbackModels []string // final synthesis cascade after the chairman
	Reasoning      llm.ReasoningConfig
	IntentTimeout  time.Duration // wall-clock bound on time-to-first-feedback
	StageTimeout   time.Duration
	TitleTimeout   time.Duration
}

// StageObserver receives one record per finished stage.
type StageObserver interface {
	ObserveStage(stage string, status string, duration time.Duration)
}

// Orchestrator sequences the deliberation stages, enforces the
// per-stage concurrency policy, and aggregates results into a Run.
type Orchestrator struct {
	cfg        Config
	gateway    *llm.Gateway
	normalizer *intent.Normalizer
	former     *panel.Former
	verifier   *verify.Pipeline
	observer   StageObserver
	logger     *zap.Logger
}

// NewOrchestrator wires the orchestrator. observer may be nil.
func NewOrchestrator(cfg Config, gateway *llm.Gateway, normalizer *intent.Normalizer, former *panel.Former, verifier *verify.Pipeline, observer StageObserver, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PanelSize <= 0 {
		cfg.PanelSize = 6
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 120 * time.Second
	}
	if cfg.TitleTimeout <= 0 {
		cfg.TitleTimeout = 30 * time.Second
	}
	return &Orchestrator{
		cfg:        cfg,
		gateway:    gateway,
		normalizer: normalizer,
		former:     former,
		verifier:   verifier,
		observer:   observer,
		logger:     logger.With(zap.String("component", "council")),
	}
}

// Execute drives one deliberation run to completion. gate owns the
// clarification pause; emit receives one ordered event per stage
// transition. The returned Run is fully populated unless a run-fatal
// stage failed.
func (o *Orchestrator) Execute(ctx context.Context, userQuery string, history []string, gate ClarificationGate, emit EventSink) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		UserQuery: userQuery,
		CreatedAt: time.Now().UTC(),
	}
	log := o.logger.With(zap.String("run_id", run.ID))

	// Stage: intent draft. The normalizer degrades internally, so the
	// only total failure here is cancellation.
	emit.emit(EventIntentStart, nil)
	stageStart := time.Now()
	intentCtx := ctx
	if o.cfg.IntentTimeout > 0 {
		var cancel context.CancelFunc
		intentCtx, cancel = context.WithTimeout(ctx, o.cfg.IntentTimeout)
		defer cancel()
	}
	draft, questions := o.normalizer.Draft(intentCtx, userQuery, history)
	if ctx.Err() != nil {
		return nil, fmt.Errorf("intent draft stage: %w", ctx.Err())
	}
	run.Draft = draft
	run.Questions = questions
	o.observeStage(StageIntentDraftPending, "ok", stageStart)
	emit.emit(EventIntentComplete, map[string]any{
		"draft":     draft,
		"questions": questions,
		"summary":   draft.DisplaySummary,
	})

	// Stage: clarification gate. The one externally-observable pause;
	// no internal timeout, the interaction layer owns it.
	emit.emit(EventClarificationRequest, ClarificationPrompt{
		Draft:          draft,
		DisplaySummary: draft.DisplaySummary,
		Questions:      questions,
	})
	stageStart = time.Now()
	resp, err := gate.Resolve(ctx, ClarificationPrompt{Draft: draft, DisplaySummary: draft.DisplaySummary, Questions: questions})
	if err != nil {
		return nil, fmt.Errorf("clarification gate: %w", err)
	}
	run.ClarificationSkipped = resp.Skip
	run.Brief = o.normalizer.FinalizeBrief(draft, questions, resp.Answers, resp.Skip)
	o.observeStage(StageClarificationGate, "ok", stageStart)
	emit.emit(EventClarificationComplete, map[string]any{"skipped": resp.Skip})

	// Stage: panel formation. Suggestion gathering fans out across
	// backends; the former joins before its synthesis call.
	emit.emit(EventBrainstormStart, nil)
	stageStart = time.Now()
	formation := o.former.Form(ctx, userQuery, run.Brief)
	run.BrainstormDisplay = formation.Display
	run.Panel = formation.Panel
	o.observeStage(StagePanelFormation, "ok", stageStart)
	emit.emit(EventBrainstormComplete, map[string]any{
		"brainstorm_content": formation.Display,
		"experts":            formation.Panel,
	})

	// Stage: sequential contributions. Intentionally serial: each
	// prompt embeds all prior contributions verbatim, so entry i+1 is
	// not issued until entry i exists.
	emit.emit(EventContributionsStart, nil)
	stageStart = time.Now()
	for _, expert := range run.Panel {
		emit.emit(EventExpertStart, map[string]any{"order": expert.Order, "expert": expert})
		entry := o.contribute(ctx, userQuery, run.Brief, expert, run.Contributions)
		run.Contributions = append(run.Contributions, entry)
		emit.emit(EventExpertComplete, entry)
	}
	o.observeStage(StageSequentialContribution, "ok", stageStart)
	emit.emit(EventContributionsComplete, map[string]any{"num_experts": len(run.Contributions)})

	// Stage: verification. Degrades to a status note, never aborts.
	emit.emit(EventVerificationStart, nil)
	stageStart = time.Now()
	report := o.verifier.Run(ctx, userQuery, verifyInput(run.Contributions))
	run.VerificationReport = report.Text
	run.VerificationDegraded = report.Degraded
	o.observeStage(StageVerification, stageStatus(!report.Degraded), stageStart)
	emit.emit(EventVerificationComplete, report.Text)

	// Stage: synthesis planning.
	emit.emit(EventPlanningStart, nil)
	stageStart = time.Now()
	run.SynthesisPlan = o.utilityCall(ctx, buildPlanningPrompt(run), placeholderPlan)
	o.observeStage(StageSynthesisPlanning, stageStatus(run.SynthesisPlan != placeholderPlan), stageStart)
	emit.emit(EventPlanningComplete, run.SynthesisPlan)

	// Stage: editorial guidelines.
	emit.emit(EventEditorialStart, nil)
	stageStart = time.Now()
	run.EditorialGuidelines = o.utilityCall(ctx, buildEditorialPrompt(run), placeholderEditorial)
	o.observeStage(StageEditorialGuidelines, stageStatus(run.EditorialGuidelines != placeholderEditorial), stageStart)
	emit.emit(EventEditorialComplete, run.EditorialGuidelines)

	// Stage: final synthesis. Run-fatal when the whole cascade fails.
	emit.emit(EventSynthesisStart, nil)
	stageStart = time.Now()
	artifact, model, err := o.synthesizeFinal(ctx, run)
	if err != nil {
		o.observeStage(StageFinalSynthesis, "failed", stageStart)
		emit.emit(EventError, map[string]any{"message": err.Error()})
		return nil, err
	}
	run.FinalArtifact = artifact
	run.FinalModel = model
	o.observeStage(StageFinalSynthesis, "ok", stageStart)
	emit.emit(EventSynthesisComplete, map[string]any{"model": model, "response": artifact})

	log.Info("deliberation run complete",
		zap.Int("experts", len(run.Contributions)),
		zap.Bool("verification_degraded", run.VerificationDegraded),
		zap.String("final_model", model))
	emit.emit(EventComplete, nil)
	return run, nil
}

// contribute issues one sequential contribution call. The prior slice
// is the read-only view of every earlier entry; failures degrade to a
// placeholder so one unresponsive panel member cannot stall the run.
func (o *Orchestrator) contribute(ctx context.Context, userQuery, brief string, expert panel.ExpertSpec, prior []Contribution) Contribution {
	if len(o.cfg.CouncilModels) == 0 {
		o.logger.Warn("contribution degraded", zap.Int("order", expert.Order), zap.String("reason", "no council models configured"))
		return Contribution{Order: expert.Order, Expert: expert, Text: placeholderContribution}
	}
	model := o.cfg.CouncilModels[(expert.Order-1)%len(o.cfg.CouncilModels)]
	req := &llm.ChatRequest{
		Model:    model,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: buildContributionPrompt(userQuery, brief, expert, prior, o.cfg.PanelSize)}},
		Timeout:  o.cfg.StageTimeout,
	}
	llm.ApplyReasoning(req, o.cfg.Reasoning)

	res := o.gateway.Invoke(ctx, req)
	text := placeholderContribution
	if res.OK() {
		text = res.Text
	} else {
		o.logger.Warn("contribution degraded",
			zap.Int("order", expert.Order),
			zap.String("model", model),
			zap.String("status", string(res.Status)))
	}
	return Contribution{Order: expert.Order, Expert: expert, Text: text, Model: model}
}

// utilityCall runs one non-critical generation and substitutes the
// placeholder on any failure.
func (o *Orchestrator) utilityCall(ctx context.Context, prompt, placeholder string) string {
	res := o.gateway.Invoke(ctx, &llm.ChatRequest{
		Model:    o.cfg.UtilityModel,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Timeout:  o.cfg.StageTimeout,
	})
	if !res.OK() {
		return placeholder
	}
	return res.Text
}

// synthesizeFinal runs the chairman synthesis, cascading to the
// configured fallback backends before declaring the run failed.
func (o *Orchestrator) synthesizeFinal(ctx context.Context, run *Run) (string, string, error) {
	candidates := append([]string{o.cfg.ChairmanModel}, o.cfg.FallbackModels...)
	prompt := buildFinalPrompt(run)
	res := o.gateway.TryCandidates(ctx, candidates, func(model string) *llm.ChatRequest {
		return &llm.ChatRequest{
			Model: model,
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: "You are the master synthesizer. Follow both the synthesis plan and the editorial guidelines precisely."},
				{Role: llm.RoleUser, Content: prompt},
			},
			Timeout: o.cfg.StageTimeout,
		}
	})
	if !res.OK() {
		return "", "", fmt.Errorf("final synthesis failed on every candidate: %w", res.Err)
	}
	return res.Text, res.Model, nil
}

// Title generates a short conversation title for a first message.
func (o *Orchestrator) Title(ctx context.Context, userQuery string) string {
	res := o.gateway.Invoke(ctx, &llm.ChatRequest{
		Model:    o.cfg.UtilityModel,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: buildTitlePrompt(userQuery)}},
		Timeout:  o.cfg.TitleTimeout,
	})
	if !res.OK() {
		return defaultTitle
	}
	title := strings.Trim(strings.TrimSpace(res.Text), `"'`)
	if title == "" {
		return defaultTitle
	}
	if runes := []rune(title); len(runes) > 50 {
		title = string(runes[:47]) + "..."
	}
	return title
}

func (o *Orchestrator) observeStage(stage Stage, status string, start time.Time) {
	if o.observer != nil {
		o.observer.ObserveStage(string(stage), status, time.Since(start))
	}
}

func stageStatus(ok bool) string {
	if ok {
		return "ok"
	}
	return "degraded"
}

func verifyInput(contributions []Contribution) []verify.Contribution {
	out := make([]verify.Contribution, 0, len(contributions))
	for _, c := range contributions {
		out = append(out, verify.Contribution{Order: c.Order, Role: c.Expert.Role, Text: c.Text})
	}
	return out
}
