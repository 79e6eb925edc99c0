package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "payperwork.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPresentationLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := &Presentation{UserID: "user-1", Prompt: "villa concept deck"}
	require.NoError(t, s.CreatePresentation(ctx, p))
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, StatusGenerating, p.Status)

	require.NoError(t, s.SetPresentationTask(ctx, p.ID, "task-42"))
	require.NoError(t, s.SetPresentationTopics(ctx, p.ID, []string{"site", "massing"}))

	got, err := s.GetPresentation(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusTopicsGenerated, got.Status)
	assert.Equal(t, []string{"site", "massing"}, got.Topics)
	assert.Equal(t, "task-42", got.TaskID)

	byTask, err := s.GetPresentationByTask(ctx, "task-42")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byTask.ID)

	_, err = s.GetPresentation(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinishPresentationTransactional(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := &Presentation{UserID: "user-1", Prompt: "deck"}
	require.NoError(t, s.CreatePresentation(ctx, p))

	slides := []Slide{
		{Title: "Intro", Content: json.RawMessage(`{"bullets":["a"]}`)},
		{Title: "Site"},
		{Title: "Massing"},
	}
	require.NoError(t, s.FinishPresentation(ctx, p.ID, slides))

	got, err := s.GetPresentation(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, got.Status)
	assert.Equal(t, 3, got.SlidesCount)

	persisted, err := s.ListSlides(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, persisted, 3)
	assert.Equal(t, "Intro", persisted[0].Title)
	assert.Equal(t, 2, persisted[2].Position)

	// Unknown presentation: nothing committed, including slides.
	err = s.FinishPresentation(ctx, "ghost", []Slide{{Title: "orphan"}})
	assert.ErrorIs(t, err, ErrNotFound)
	orphans, err := s.ListSlides(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestCompleteTaskCAS(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := &Presentation{UserID: "user-1", Prompt: "deck"}
	require.NoError(t, s.CreatePresentation(ctx, p))
	require.NoError(t, s.CreateTask(ctx, &ManusTask{
		TaskID:         "task-1",
		PresentationID: p.ID,
		UserID:         "user-1",
	}))

	won, err := s.CompleteTask(ctx, "task-1", json.RawMessage(`{"via":"webhook"}`))
	require.NoError(t, err)
	assert.True(t, won)

	// Second writer (the poller) loses cleanly.
	won, err = s.CompleteTask(ctx, "task-1", json.RawMessage(`{"via":"poll"}`))
	require.NoError(t, err)
	assert.False(t, won)

	// Terminal state cannot be re-written to failed either.
	won, err = s.FailTask(ctx, "task-1", nil)
	require.NoError(t, err)
	assert.False(t, won)

	task, err := s.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, task.Status)
	assert.JSONEq(t, `{"via":"webhook"}`, string(task.WebhookData))
}

func TestCompleteTaskConcurrentSingleWinner(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := &Presentation{UserID: "user-1", Prompt: "deck"}
	require.NoError(t, s.CreatePresentation(ctx, p))
	require.NoError(t, s.CreateTask(ctx, &ManusTask{
		TaskID:         "task-race",
		PresentationID: p.ID,
		UserID:         "user-1",
	}))

	const writers = 8
	var wg sync.WaitGroup
	wins := make(chan bool, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.CompleteTask(ctx, "task-race", nil)
			if err == nil {
				wins <- won
			}
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestSaveTaskProgressOnlyWhileRunning(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := &Presentation{UserID: "u", Prompt: "deck"}
	require.NoError(t, s.CreatePresentation(ctx, p))
	require.NoError(t, s.CreateTask(ctx, &ManusTask{TaskID: "t", PresentationID: p.ID, UserID: "u"}))

	require.NoError(t, s.SaveTaskProgress(ctx, "t", json.RawMessage(`{"progress":40}`)))
	task, err := s.GetTask(ctx, "t")
	require.NoError(t, err)
	assert.JSONEq(t, `{"progress":40}`, string(task.WebhookData))

	_, err = s.CompleteTask(ctx, "t", json.RawMessage(`{"progress":100}`))
	require.NoError(t, err)
	require.NoError(t, s.SaveTaskProgress(ctx, "t", json.RawMessage(`{"progress":41}`)))

	task, err = s.GetTask(ctx, "t")
	require.NoError(t, err)
	assert.JSONEq(t, `{"progress":100}`, string(task.WebhookData))
}

func TestConversationExportImportRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := &Conversation{UserID: "user-1", Title: "Loft renovation"}
	require.NoError(t, s.CreateConversation(ctx, c))

	contents := []string{"hello", `{"json":"payload with é bytes"}`, "third message\nwith newline"}
	roles := []string{"user", "assistant", "user"}
	for i := range contents {
		require.NoError(t, s.AppendMessage(ctx, &Message{
			ConversationID: c.ID,
			Role:           roles[i],
			Content:        contents[i],
		}))
	}

	exp, err := s.ExportConversation(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, exp.Messages, 3)

	imported, err := s.ImportConversation(ctx, "user-2", exp)
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, imported.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		assert.Equal(t, contents[i], m.Content, "message %d content must round-trip byte-for-byte", i)
		assert.Equal(t, roles[i], m.Role)
		assert.Equal(t, i, m.Position)
	}
	assert.Equal(t, "Loft renovation", imported.Title)
}

func TestMediaAssets(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateMediaAsset(ctx, &MediaAsset{
		UserID: "user-1",
		Kind:   "image",
		URL:    "https://cdn.example.com/a.png",
		Prompt: "brutalist lobby",
	}))
	require.NoError(t, s.CreateMediaAsset(ctx, &MediaAsset{
		UserID: "user-1",
		Kind:   "video",
		URL:    "https://cdn.example.com/b.mp4",
	}))

	assets, err := s.ListMediaAssets(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, assets, 2)

	other, err := s.ListMediaAssets(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestLegacyCompletedNormalizedToReady(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := &Presentation{UserID: "u", Prompt: "deck"}
	require.NoError(t, s.CreatePresentation(ctx, p))
	_, err := s.db.ExecContext(ctx, `UPDATE presentations SET status = 'completed' WHERE id = ?`, p.ID)
	require.NoError(t, err)

	got, err := s.GetPresentation(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, got.Status)
}
