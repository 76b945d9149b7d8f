package council

import (
	"context"
	"errors"

	"github.com/BaSui01/council/intent"
)

// ErrGateNotWaiting reports a Submit the gate cannot accept, either
// because the run already consumed a response or because one is still
// queued.
var ErrGateNotWaiting = errors.New("clarification gate is not waiting for a response")

// ClarificationPrompt is what the run exposes while paused at the
// clarification gate.
type ClarificationPrompt struct {
	Draft          *intent.Draft     `json:"draft_intent"`
	DisplaySummary string            `json:"display_summary"`
	Questions      []intent.Question `json:"question_list"`
}

// ClarificationResponse resumes a paused run: either answers or an
// explicit skip.
type ClarificationResponse struct {
	Answers []intent.Answer `json:"answers,omitempty"`
	Skip    bool            `json:"skip"`
}

// ClarificationGate owns the pipeline's one externally-observable
// pause. Resolve blocks until the interaction layer supplies a
// response; the run imposes no timeout of its own.
type ClarificationGate interface {
	Resolve(ctx context.Context, prompt ClarificationPrompt) (ClarificationResponse, error)
}

// SkipGate resolves immediately with an explicit skip, for headless
// runs and tests.
type SkipGate struct{}

func (SkipGate) Resolve(ctx context.Context, prompt ClarificationPrompt) (ClarificationResponse, error) {
	return ClarificationResponse{Skip: true}, nil
}

// ChannelGate bridges the gate to an external interaction layer: the
// run blocks in Resolve until Submit delivers a response.
type ChannelGate struct {
	prompts   chan ClarificationPrompt
	responses chan ClarificationResponse
}

// NewChannelGate creates an unresolved gate.
func NewChannelGate() *ChannelGate {
	return &ChannelGate{
		prompts:   make(chan ClarificationPrompt, 1),
		responses: make(chan ClarificationResponse, 1),
	}
}

// Prompt exposes the pending prompt once the run reaches the gate.
func (g *ChannelGate) Prompt() <-chan ClarificationPrompt { return g.prompts }

// Submit resumes the paused run. It never blocks: a second response
// delivered before the run drains the first is rejected with
// ErrGateNotWaiting.
func (g *ChannelGate) Submit(resp ClarificationResponse) error {
	select {
	case g.responses <- resp:
		return nil
	default:
		return ErrGateNotWaiting
	}
}

func (g *ChannelGate) Resolve(ctx context.Context, prompt ClarificationPrompt) (ClarificationResponse, error) {
	select {
	case g.prompts <- prompt:
	default:
	}
	select {
	case resp := <-g.responses:
		return resp, nil
	case <-ctx.Done():
		return ClarificationResponse{}, ctx.Err()
	}
}
