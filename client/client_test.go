package client

import (
	"context"
	"testing"

	"github.com/fearlessjoy/fridaynz/auth"
	"github.com/fearlessjoy/fridaynz/board"
	"github.com/fearlessjoy/fridaynz/docstore/memstore"
	"github.com/fearlessjoy/fridaynz/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *auth.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	authClient := auth.NewService(store, auth.NewJWTService("test-secret", 0), nil)
	c := New(store, authClient, nil)
	c.Start(context.Background())
	t.Cleanup(c.Stop)
	return c, authClient, store
}

func TestLifecycle_SignInBindsSignOutUnbinds(t *testing.T) {
	c, authClient, store := newTestClient(t)
	ctx := context.Background()

	require.True(t, c.Session.Initialized())

	_, err := authClient.SignUp(ctx, "jane@example.com", "Sup3rSecret!")
	require.NoError(t, err)
	identity, _, err := authClient.SignIn(ctx, "jane@example.com", "Sup3rSecret!")
	require.NoError(t, err)

	// Sign-in started the board subscription and refreshed the profile,
	// synthesizing one for the fresh identity.
	profile := c.Session.Profile()
	require.NotNil(t, profile)
	assert.Equal(t, identity.ID, profile.ID)

	created, err := c.Board.Create(ctx, models.Task{Title: "first task"}, identity.ID)
	require.NoError(t, err)
	_, ok := c.Board.Task(created.ID)
	assert.True(t, ok)

	conv, err := c.Chat.EnsureDirectConversation(ctx, identity.ID, "m-other")
	require.NoError(t, err)
	_, ok = c.Chat.Conversation(conv.ID)
	assert.True(t, ok)

	require.NoError(t, authClient.SignOut(ctx))

	assert.Nil(t, c.Session.Profile())
	assert.Empty(t, c.Board.Tasks())
	assert.Empty(t, c.Chat.Conversations())

	// The record itself is untouched; only the mirror is gone.
	var persisted models.Task
	require.NoError(t, store.Get(ctx, board.TasksCollection, created.ID, &persisted))
}

func TestTaskDocumentsRequireConfiguration(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.TaskDocuments(ctx, "t1")
	assert.Error(t, err)
	_, err = c.UploadTaskDocument(ctx, "t1", "plan.pdf", nil, 0, nil)
	assert.Error(t, err)
	assert.Error(t, c.DeleteTaskDocument(ctx, "tasks/t1/x"))
}

func TestRefreshConnectionRebindsSubscriptions(t *testing.T) {
	c, authClient, store := newTestClient(t)
	ctx := context.Background()

	_, err := authClient.SignUp(ctx, "jane@example.com", "Sup3rSecret!")
	require.NoError(t, err)

	assert.True(t, c.RefreshConnection(ctx))
	assert.Equal(t, 1, store.RefreshCount())

	// Subscriptions are live again after the refresh.
	identity := c.Session.CurrentIdentity()
	require.NotNil(t, identity)
	created, err := c.Board.Create(ctx, models.Task{Title: "after refresh"}, identity.ID)
	require.NoError(t, err)
	_, ok := c.Board.Task(created.ID)
	assert.True(t, ok)
}
