package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/council/council"
	"github.com/BaSui01/council/intent"
	"github.com/BaSui01/council/panel"
	"github.com/BaSui01/council/store"
)

func sampleRun() *council.Run {
	return &council.Run{
		ID:            "run-1",
		UserQuery:     "Explain the French Revolution",
		Panel:         []panel.ExpertSpec{{Role: "Historian", Order: 1}},
		Contributions: []council.Contribution{{Order: 1, Text: "The foundation."}},
		FinalArtifact: "# Final\n\nThe synthesized answer.",
		FinalModel:    "m/final",
	}
}

func sampleQuestions() []intent.Question {
	return []intent.Question{
		{ID: "q1", Text: "Which aspect matters most?", Options: []string{"Causes", "Consequences", intent.OptionOther}},
	}
}

// backends runs the same suite against every Store implementation.
func backends(t *testing.T) map[string]store.Store {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	return map[string]store.Store{
		"memory": store.NewMemoryStore(),
		"file":   fs,
	}
}

func TestStoreCRUD(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			conv, err := s.Create(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, "c1", conv.ID)
			assert.Equal(t, "New Conversation", conv.Title)
			assert.Empty(t, conv.Messages)

			got, err := s.Get(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, conv.ID, got.ID)

			_, err = s.Get(ctx, "missing")
			assert.ErrorIs(t, err, store.ErrNotFound)

			require.NoError(t, s.UpdateTitle(ctx, "c1", "Revolution Talk"))
			got, err = s.Get(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, "Revolution Talk", got.Title)

			require.NoError(t, s.Delete(ctx, "c1"))
			_, err = s.Get(ctx, "c1")
			assert.ErrorIs(t, err, store.ErrNotFound)
			assert.ErrorIs(t, s.Delete(ctx, "c1"), store.ErrNotFound)
		})
	}
}

func TestStoreList(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			summaries, err := s.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, summaries)

			_, err = s.Create(ctx, "c1")
			require.NoError(t, err)
			_, err = s.Create(ctx, "c2")
			require.NoError(t, err)
			require.NoError(t, s.AddUserMessage(ctx, "c2", "hello"))

			summaries, err = s.List(ctx)
			require.NoError(t, err)
			require.Len(t, summaries, 2)
			byID := map[string]store.Summary{}
			for _, sum := range summaries {
				byID[sum.ID] = sum
			}
			assert.Equal(t, 0, byID["c1"].MessageCount)
			assert.Equal(t, 1, byID["c2"].MessageCount)
		})
	}
}

func TestStorePendingIntentLifecycle(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Create(ctx, "c1")
			require.NoError(t, err)
			require.NoError(t, s.AddUserMessage(ctx, "c1", "Explain the French Revolution"))

			draft := &intent.Draft{PrimaryIntent: "Explain the French Revolution"}
			questions := sampleQuestions()
			require.NoError(t, s.AddPendingIntent(ctx, "c1", draft, questions))

			conv, err := s.Get(ctx, "c1")
			require.NoError(t, err)
			require.Len(t, conv.Messages, 2)
			pending := conv.Messages[1]
			assert.Equal(t, "assistant", pending.Role)
			assert.Equal(t, store.StatusClarificationPending, pending.Status)
			assert.Len(t, pending.Questions, 1)

			answers := []intent.Answer{{QuestionID: "q1", Selected: []string{"Causes"}}}
			require.NoError(t, s.ResolvePendingIntent(ctx, "c1", answers))

			conv, err = s.Get(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, store.StatusClarificationSubmitted, conv.Messages[1].Status)
			assert.Equal(t, answers, conv.Messages[1].Answers)

			// finalize overwrites the pending message in place and keeps
			// the clarification record
			require.NoError(t, s.FinalizeDeliberation(ctx, "c1", sampleRun()))
			conv, err = s.Get(ctx, "c1")
			require.NoError(t, err)
			require.Len(t, conv.Messages, 2)
			final := conv.Messages[1]
			assert.Equal(t, store.StatusComplete, final.Status)
			assert.Equal(t, "# Final\n\nThe synthesized answer.", final.Content)
			assert.Equal(t, "m/final", final.FinalModel)
			assert.Equal(t, questions, final.Questions)
			assert.Equal(t, answers, final.Answers)
		})
	}
}

func TestStoreFinalizeWithoutPendingAppends(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Create(ctx, "c1")
			require.NoError(t, err)
			require.NoError(t, s.AddUserMessage(ctx, "c1", "question"))

			require.NoError(t, s.FinalizeDeliberation(ctx, "c1", sampleRun()))

			conv, err := s.Get(ctx, "c1")
			require.NoError(t, err)
			require.Len(t, conv.Messages, 2)
			assert.Equal(t, "assistant", conv.Messages[1].Role)
			assert.Equal(t, store.StatusComplete, conv.Messages[1].Status)
		})
	}
}

func TestStoreMutationsOnMissingConversation(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			assert.ErrorIs(t, s.AddUserMessage(ctx, "nope", "x"), store.ErrNotFound)
			assert.ErrorIs(t, s.AddPendingIntent(ctx, "nope", nil, nil), store.ErrNotFound)
			assert.ErrorIs(t, s.ResolvePendingIntent(ctx, "nope", nil), store.ErrNotFound)
			assert.ErrorIs(t, s.FinalizeDeliberation(ctx, "nope", sampleRun()), store.ErrNotFound)
			assert.ErrorIs(t, s.UpdateTitle(ctx, "nope", "t"), store.ErrNotFound)
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	_, err := s.Create(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, s.AddUserMessage(ctx, "c1", "original"))

	conv, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	conv.Messages[0].Content = "tampered"
	conv.Title = "tampered"

	fresh, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "original", fresh.Messages[0].Content)
	assert.Equal(t, "New Conversation", fresh.Title)
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := store.NewFileStore(dir, nil)
	require.NoError(t, err)
	_, err = s.Create(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, s.AddUserMessage(ctx, "c1", "hello"))
	require.NoError(t, s.FinalizeDeliberation(ctx, "c1", sampleRun()))

	reopened, err := store.NewFileStore(dir, nil)
	require.NoError(t, err)
	conv, err := reopened.Get(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "hello", conv.Messages[0].Content)
	assert.Equal(t, "m/final", conv.Messages[1].FinalModel)
}

func TestFileStoreListSkipsCorruptDocuments(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := store.NewFileStore(dir, nil)
	require.NoError(t, err)
	_, err = s.Create(ctx, "good")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))

	summaries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "good", summaries[0].ID)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := store.NewFileStore(dir, nil)
	require.NoError(t, err)
	_, err = s.Create(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, s.AddUserMessage(ctx, "c1", "hello"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotEqual(t, ".tmp", filepath.Ext(entry.Name()), "stray temp file %s", entry.Name())
	}
}
