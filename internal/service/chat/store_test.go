package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjregee/alterchat/internal/models"
)

func textMessage(id string, role models.Role, text string) *models.Message {
	return &models.Message{ID: id, Role: role, Content: models.TextContent(text)}
}

func ids(messages []*models.Message) []string {
	out := make([]string, 0, len(messages))
	for _, msg := range messages {
		out = append(out, msg.ID)
	}
	return out
}

func TestStoreAppendKeepsOrder(t *testing.T) {
	store := NewStore(textMessage("h1", models.RoleHuman, "hi"))
	store.Append(textMessage("a1", models.RoleAI, "hello"), textMessage("h2", models.RoleHuman, "again"))

	assert.Equal(t, []string{"h1", "a1", "h2"}, ids(store.Current()))
	assert.Equal(t, 3, store.Len())
	assert.Equal(t, 1, store.IndexOf("a1"))
	assert.Equal(t, -1, store.IndexOf("missing"))
}

func TestStoreDuplicateIDPanics(t *testing.T) {
	store := NewStore(textMessage("h1", models.RoleHuman, "hi"))

	assert.Panics(t, func() {
		store.Append(textMessage("h1", models.RoleHuman, "again"))
	})
	assert.Panics(t, func() {
		store.ReplaceFrom(models.Checkpoint{MessageID: "h1"}, textMessage("x", models.RoleAI, "a"), textMessage("x", models.RoleAI, "b"))
	})
}

func TestStoreUpsertUpdatesInPlace(t *testing.T) {
	store := NewStore(
		textMessage("h1", models.RoleHuman, "hi"),
		textMessage("a1", models.RoleAI, "Hel"),
	)

	created := store.Upsert(textMessage("a1", models.RoleAI, "Hello"))
	assert.False(t, created)
	assert.Equal(t, "Hello", store.Get("a1").Content.String())
	assert.Equal(t, 2, store.Len())

	created = store.Upsert(textMessage("h2", models.RoleHuman, "next"))
	assert.True(t, created)
	assert.Equal(t, []string{"h1", "a1", "h2"}, ids(store.Current()))
}

func TestStoreReplaceFrom(t *testing.T) {
	store := NewStore(
		textMessage("h1", models.RoleHuman, "one"),
		textMessage("a1", models.RoleAI, "two"),
		textMessage("h2", models.RoleHuman, "three"),
		textMessage("a2", models.RoleAI, "four"),
	)

	err := store.ReplaceFrom(models.Checkpoint{MessageID: "h2"}, textMessage("a3", models.RoleAI, "five"))
	require.NoError(t, err)
	assert.Equal(t, []string{"h1", "a1", "h2", "a3"}, ids(store.Current()))

	// a2 was removed, so its id is free again.
	store.Append(textMessage("a2", models.RoleAI, "six"))
	assert.Equal(t, 4, store.IndexOf("a2"))
}

func TestStoreReplaceFromEmptyCheckpointClears(t *testing.T) {
	store := NewStore(textMessage("h1", models.RoleHuman, "one"))

	require.NoError(t, store.ReplaceFrom(models.Checkpoint{}))
	assert.Equal(t, 0, store.Len())
}

func TestStoreReplaceFromUnknownCheckpoint(t *testing.T) {
	store := NewStore(textMessage("h1", models.RoleHuman, "one"))

	err := store.ReplaceFrom(models.Checkpoint{MessageID: "nope"})
	require.ErrorIs(t, err, ErrCheckpointNotFound)
	assert.Equal(t, 1, store.Len())
}

func TestStoreRenderedHidesInternal(t *testing.T) {
	internal := textMessage("t1", models.RoleTool, "done")
	internal.Visibility = models.VisibilityInternal
	store := NewStore(textMessage("h1", models.RoleHuman, "one"), internal)

	assert.Equal(t, []string{"h1"}, ids(store.Rendered()))
	assert.Equal(t, []string{"h1", "t1"}, ids(store.Current()))
}

func TestStoreCurrentIsCopy(t *testing.T) {
	store := NewStore(textMessage("h1", models.RoleHuman, "one"))

	current := store.Current()
	current[0].Content = models.TextContent("changed")

	assert.Equal(t, "one", store.Get("h1").Content.String())
}

func TestStoreSeedReplacesEverything(t *testing.T) {
	store := NewStore(textMessage("h1", models.RoleHuman, "one"))
	store.Seed([]*models.Message{textMessage("x1", models.RoleHuman, "other")})

	assert.Equal(t, []string{"x1"}, ids(store.Current()))
	assert.Equal(t, -1, store.IndexOf("h1"))
}
