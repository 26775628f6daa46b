package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjregee/alterchat/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "alterchat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndGetThread(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	thread := &models.Thread{
		ID: "thread-1",
		Values: models.ThreadValues{Messages: []*models.Message{
			{ID: "h1", Role: models.RoleHuman, Content: models.TextContent("Hello")},
			{
				ID:      "a1",
				Role:    models.RoleAI,
				Content: models.TextContent("Hi!"),
				Usage:   &models.UsageMetadata{InputTokens: 5, OutputTokens: 3, TotalTokens: 8},
			},
		}},
	}
	require.NoError(t, store.SaveThread(ctx, thread))
	assert.NotZero(t, thread.CreatedAt)
	assert.NotZero(t, thread.UpdatedAt)

	loaded, err := store.GetThread(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, thread, loaded)
}

func TestGetMissingThread(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetThread(context.Background(), "nope")
	require.ErrorIs(t, err, ErrThreadNotFound)
}

func TestListThreadsNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.put([]byte(threadKeyPrefix+"a"), []byte(`{"thread_id":"a","values":{},"created_at":1,"updated_at":100}`)))
	require.NoError(t, store.put([]byte(threadKeyPrefix+"b"), []byte(`{"thread_id":"b","values":{},"created_at":1,"updated_at":200}`)))
	require.NoError(t, store.put([]byte("other:c"), []byte(`{"thread_id":"c"}`)))

	threads, err := store.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, "b", threads[0].ID)
	assert.Equal(t, "a", threads[1].ID)
}

func TestDeleteThread(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveThread(ctx, &models.Thread{ID: "abc"}))
	require.NoError(t, store.DeleteThread(ctx, "abc"))

	threads, err := store.ListThreads(ctx)
	require.NoError(t, err)
	assert.Empty(t, threads)

	require.ErrorIs(t, store.DeleteThread(ctx, "abc"), ErrThreadNotFound)
}

func TestCancelledContext(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, store.SaveThread(ctx, &models.Thread{ID: "x"}), context.Canceled)
	_, err := store.ListThreads(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCloseIsIdempotent(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "alterchat.db"))
	require.NoError(t, err)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}
