// Package council drives one deliberation run through the fixed stage
// sequence, from intent drafting to final synthesis.
package council

import (
	"time"

	"github.com/BaSui01/council/intent"
	"github.com/BaSui01/council/panel"
)

// Stage identifies one state of the deliberation state machine. Each
// stage is gated by successful (possibly degraded) completion of the
// previous one.
type Stage string

const (
	StageIntentDraftPending     Stage = "intent_draft_pending"
	StageClarificationGate      Stage = "clarification_gate"
	StagePanelFormation         Stage = "panel_formation"
	StageSequentialContribution Stage = "sequential_contribution"
	StageVerification           Stage = "verification"
	StageSynthesisPlanning      Stage = "synthesis_planning"
	StageEditorialGuidelines    Stage = "editorial_guidelines"
	StageFinalSynthesis         Stage = "final_synthesis"
	StageComplete               Stage = "complete"
)

// Contribution is one panel member's output. The list is append-only:
// entry i+1 is created only after entries 1..i exist, and each
// invocation sees a read-only view of its predecessors.
type Contribution struct {
	Order  int              `json:"order"`
	Expert panel.ExpertSpec `json:"expert"`
	Text   string           `json:"contribution"`
	Model  string           `json:"model"`
}

// Run is the aggregate for one user turn. Each stage owns exactly the
// fields it writes; no stage mutates another stage's output.
type Run struct {
	ID        string    `json:"id"`
	UserQuery string    `json:"user_query"`
	CreatedAt time.Time `json:"created_at"`

	Draft                *intent.Draft     `json:"draft,omitempty"`
	Questions            []intent.Question `json:"questions,omitempty"`
	ClarificationSkipped bool              `json:"clarification_skipped"`
	Brief                string            `json:"brief,omitempty"`

	BrainstormDisplay string             `json:"brainstorm_display,omitempty"`
	Panel             []panel.ExpertSpec `json:"panel,omitempty"`
	Contributions     []Contribution     `json:"contributions,omitempty"`

	VerificationReport   string `json:"verification_report,omitempty"`
	VerificationDegraded bool   `json:"verification_degraded,omitempty"`
	SynthesisPlan        string `json:"synthesis_plan,omitempty"`
	EditorialGuidelines  string `json:"editorial_guidelines,omitempty"`

	FinalArtifact string `json:"final_artifact,omitempty"`
	FinalModel    string `json:"final_model,omitempty"`
}

// EventType names one progress event. The vocabulary mirrors the
// stream consumed by the web client.
type EventType string

const (
	EventIntentStart           EventType = "stage0_start"
	EventIntentComplete        EventType = "stage0_complete"
	EventClarificationRequest  EventType = "clarification_request"
	EventClarificationComplete EventType = "clarification_complete"
	EventBrainstormStart       EventType = "brainstorm_start"
	EventBrainstormComplete    EventType = "brainstorm_complete"
	EventContributionsStart    EventType = "contributions_start"
	EventExpertStart           EventType = "expert_start"
	EventExpertComplete        EventType = "expert_complete"
	EventContributionsComplete EventType = "contributions_complete"
	EventVerificationStart     EventType = "verification_start"
	EventVerificationComplete  EventType = "verification_complete"
	EventPlanningStart         EventType = "planning_start"
	EventPlanningComplete      EventType = "planning_complete"
	EventEditorialStart        EventType = "editorial_start"
	EventEditorialComplete     EventType = "editorial_complete"
	EventSynthesisStart        EventType = "stage3_start"
	EventSynthesisComplete     EventType = "stage3_complete"
	EventTitleComplete         EventType = "title_complete"
	EventComplete              EventType = "complete"
	EventError                 EventType = "error"
)

// Event is one ordered progress record. The orchestrator emits events
// but never depends on a consumer reacting to them.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// EventSink receives progress events. A nil sink is valid.
type EventSink func(Event)

func (s EventSink) emit(t EventType, data any) {
	if s != nil {
		s(Event{Type: t, Data: data})
	}
}
