package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/council/council"
	"github.com/BaSui01/council/intent"
)

// MemoryStore keeps conversations in process memory. Used by tests and
// ephemeral deployments.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string]*Conversation)}
}

func (s *MemoryStore) Create(ctx context.Context, id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := &Conversation{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Title:     "New Conversation",
		Messages:  []Message{},
	}
	s.conversations[id] = conv
	return cloneConversation(conv), nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConversation(conv), nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, Summary{
			ID:           conv.ID,
			CreatedAt:    conv.CreatedAt,
			Title:        conv.Title,
			MessageCount: len(conv.Messages),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(s.conversations, id)
	return nil
}

func (s *MemoryStore) AddUserMessage(ctx context.Context, id, content string) error {
	return s.mutate(id, func(conv *Conversation) {
		conv.Messages = append(conv.Messages, Message{Role: "user", Content: content})
	})
}

func (s *MemoryStore) AddPendingIntent(ctx context.Context, id string, draft *intent.Draft, questions []intent.Question) error {
	return s.mutate(id, func(conv *Conversation) {
		conv.Messages = append(conv.Messages, Message{
			Role:      "assistant",
			Status:    StatusClarificationPending,
			Draft:     draft,
			Questions: questions,
		})
	})
}

func (s *MemoryStore) ResolvePendingIntent(ctx context.Context, id string, answers []intent.Answer) error {
	return s.mutate(id, func(conv *Conversation) {
		for i := len(conv.Messages) - 1; i >= 0; i-- {
			m := &conv.Messages[i]
			if m.Role == "assistant" && m.Status == StatusClarificationPending {
				m.Status = StatusClarificationSubmitted
				m.Answers = answers
				return
			}
		}
	})
}

func (s *MemoryStore) FinalizeDeliberation(ctx context.Context, id string, run *council.Run) error {
	return s.mutate(id, func(conv *Conversation) {
		conv.Messages = finalizeInPlace(conv.Messages, run)
	})
}

func (s *MemoryStore) UpdateTitle(ctx context.Context, id, title string) error {
	return s.mutate(id, func(conv *Conversation) { conv.Title = title })
}

func (s *MemoryStore) mutate(id string, fn func(*Conversation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	fn(conv)
	return nil
}

func cloneConversation(conv *Conversation) *Conversation {
	out := *conv
	out.Messages = make([]Message, len(conv.Messages))
	copy(out.Messages, conv.Messages)
	return &out
}
