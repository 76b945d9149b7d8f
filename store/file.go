package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/council/council"
	"github.com/BaSui01/council/intent"
)

// FileStore persists each conversation as one JSON document under a
// data directory. Writes go through a temp file and rename so a crash
// never leaves a half-written document.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{dir: dir, logger: logger.With(zap.String("component", "file_store"))}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) Create(ctx context.Context, id string) (*Conversation, error) {
	conv := &Conversation{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Title:     "New Conversation",
		Messages:  []Message{},
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *FileStore) Get(ctx context.Context, id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(id)
}

func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	out := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		conv, err := s.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			s.logger.Warn("skipping unreadable conversation", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
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

func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (s *FileStore) AddUserMessage(ctx context.Context, id, content string) error {
	return s.mutate(id, func(conv *Conversation) {
		conv.Messages = append(conv.Messages, Message{Role: "user", Content: content})
	})
}

func (s *FileStore) AddPendingIntent(ctx context.Context, id string, draft *intent.Draft, questions []intent.Question) error {
	return s.mutate(id, func(conv *Conversation) {
		conv.Messages = append(conv.Messages, Message{
			Role:      "assistant",
			Status:    StatusClarificationPending,
			Draft:     draft,
			Questions: questions,
		})
	})
}

func (s *FileStore) ResolvePendingIntent(ctx context.Context, id string, answers []intent.Answer) error {
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

func (s *FileStore) FinalizeDeliberation(ctx context.Context, id string, run *council.Run) error {
	return s.mutate(id, func(conv *Conversation) {
		conv.Messages = finalizeInPlace(conv.Messages, run)
	})
}

func (s *FileStore) UpdateTitle(ctx context.Context, id, title string) error {
	return s.mutate(id, func(conv *Conversation) { conv.Title = title })
}

func (s *FileStore) mutate(id string, fn func(*Conversation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.read(id)
	if err != nil {
		return err
	}
	fn(conv)
	return s.write(conv)
}

func (s *FileStore) read(id string) (*Conversation, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read conversation: %w", err)
	}
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return &conv, nil
}

func (s *FileStore) write(conv *Conversation) error {
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	tmp := s.path(conv.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write conversation: %w", err)
	}
	if err := os.Rename(tmp, s.path(conv.ID)); err != nil {
		return fmt.Errorf("commit conversation: %w", err)
	}
	return nil
}
