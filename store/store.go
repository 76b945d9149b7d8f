// Package store persists conversations and their deliberation records.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/council/council"
	"github.com/BaSui01/council/intent"
	"github.com/BaSui01/council/panel"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// MessageStatus marks the lifecycle of an assistant message that may
// be paused at the clarification gate.
type MessageStatus string

const (
	StatusClarificationPending   MessageStatus = "clarification_pending"
	StatusClarificationSubmitted MessageStatus = "clarification_submitted"
	StatusComplete               MessageStatus = "complete"
)

// Message is one conversation entry. User messages carry only Content;
// assistant messages carry the full deliberation record.
type Message struct {
	Role    string        `json:"role"`
	Content string        `json:"content,omitempty"`
	Status  MessageStatus `json:"status,omitempty"`

	Draft         *intent.Draft          `json:"intent_draft,omitempty"`
	Questions     []intent.Question      `json:"clarification_questions,omitempty"`
	Answers       []intent.Answer        `json:"clarification_answers,omitempty"`
	Experts       []panel.ExpertSpec     `json:"experts,omitempty"`
	Contributions []council.Contribution `json:"contributions,omitempty"`
	Verification  string                 `json:"verification,omitempty"`
	FinalModel    string                 `json:"final_model,omitempty"`
	Metadata      map[string]any         `json:"metadata,omitempty"`
}

// Conversation is the stored aggregate for one thread.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
}

// Summary is the listing view: metadata only, no message bodies.
type Summary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
}

// Store is the conversation persistence interface.
type Store interface {
	Create(ctx context.Context, id string) (*Conversation, error)
	Get(ctx context.Context, id string) (*Conversation, error)
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id string) error

	AddUserMessage(ctx context.Context, id, content string) error
	AddPendingIntent(ctx context.Context, id string, draft *intent.Draft, questions []intent.Question) error
	ResolvePendingIntent(ctx context.Context, id string, answers []intent.Answer) error
	FinalizeDeliberation(ctx context.Context, id string, run *council.Run) error
	UpdateTitle(ctx context.Context, id, title string) error
}

// deliberationMessage builds the stored assistant record from a
// completed run.
func deliberationMessage(run *council.Run) Message {
	return Message{
		Role:          "assistant",
		Status:        StatusComplete,
		Content:       run.FinalArtifact,
		Draft:         run.Draft,
		Experts:       run.Panel,
		Contributions: run.Contributions,
		Verification:  run.VerificationReport,
		FinalModel:    run.FinalModel,
		Metadata: map[string]any{
			"clarification_skipped": run.ClarificationSkipped,
			"verification_degraded": run.VerificationDegraded,
		},
	}
}

// finalizeInPlace overwrites the most recent pending assistant message
// with the completed record, or appends when no pending message
// exists. Returns the updated slice.
func finalizeInPlace(messages []Message, run *council.Run) []Message {
	done := deliberationMessage(run)
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role == "assistant" && (m.Status == StatusClarificationPending || m.Status == StatusClarificationSubmitted) {
			done.Questions = m.Questions
			done.Answers = m.Answers
			messages[i] = done
			return messages
		}
	}
	return append(messages, done)
}
