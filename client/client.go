// Package client assembles the collaboration core: session store, board and
// chat synchronizers, notification fanout. It owns the lifecycle rule that
// every subscription is torn down and re-established when the identity
// changes — never left running against a stale scope.
package client

import (
	"context"
	"fmt"
	"io"

	"github.com/fearlessjoy/fridaynz/auth"
	"github.com/fearlessjoy/fridaynz/blobs"
	"github.com/fearlessjoy/fridaynz/board"
	"github.com/fearlessjoy/fridaynz/chat"
	"github.com/fearlessjoy/fridaynz/docstore"
	"github.com/fearlessjoy/fridaynz/logging"
	"github.com/fearlessjoy/fridaynz/session"
)

type Client struct {
	Store   docstore.Store
	Auth    auth.Client
	Session *session.Store
	Board   *board.Synchronizer
	Chat    *chat.Synchronizer

	documents *blobs.Store

	ctx context.Context
}

func New(store docstore.Store, authClient auth.Client, notifier board.Notifier) *Client {
	return &Client{
		Store:   store,
		Auth:    authClient,
		Session: session.NewStore(authClient, store),
		Board:   board.NewSynchronizer(store, notifier),
		Chat:    chat.NewSynchronizer(store),
	}
}

// WithDocuments attaches the blob store for task attachments. Optional: the
// embedding application provides it when a direct database handle is
// available (see docstore.MongoStore.Database).
func (c *Client) WithDocuments(store *blobs.Store) *Client {
	c.documents = store
	return c
}

// UploadTaskDocument stores an attachment under the task's prefix.
func (c *Client) UploadTaskDocument(ctx context.Context, taskID, name string, blob io.Reader, size int64, onProgress blobs.ProgressFunc) (blobs.Entry, error) {
	if c.documents == nil {
		return blobs.Entry{}, fmt.Errorf("document storage is not configured")
	}
	return c.documents.Upload(ctx, name, blob, size, "tasks/"+taskID, map[string]string{"taskId": taskID}, onProgress)
}

// TaskDocuments lists the attachments stored for a task.
func (c *Client) TaskDocuments(ctx context.Context, taskID string) ([]blobs.Entry, error) {
	if c.documents == nil {
		return nil, fmt.Errorf("document storage is not configured")
	}
	return c.documents.List(ctx, "tasks/"+taskID)
}

// DeleteTaskDocument removes one stored attachment by its path.
func (c *Client) DeleteTaskDocument(ctx context.Context, path string) error {
	if c.documents == nil {
		return fmt.Errorf("document storage is not configured")
	}
	return c.documents.Delete(ctx, path)
}

// Start binds the session to the auth stream and rebinds both synchronizers
// on every identity change.
func (c *Client) Start(ctx context.Context) {
	c.ctx = ctx

	c.Session.OnIdentityChange(func(identity *auth.Identity) {
		if identity == nil {
			c.Board.Stop()
			c.Chat.Stop()
			return
		}
		if err := c.Board.Start(c.ctx); err != nil {
			logging.Logger.Errorf("Event ID: BOARD_SYNC_START_FAILED, Description: %v", err)
		}
		if err := c.Chat.Start(c.ctx, identity.ID); err != nil {
			logging.Logger.Errorf("Event ID: CHAT_SYNC_START_FAILED, Description: %v", err)
		}
		if err := c.Session.RefreshProfile(c.ctx); err != nil {
			logging.Logger.Warnf("Event ID: PROFILE_REFRESH_FAILED, Description: %v", err)
		}
	})

	c.Session.Init()
}

// Stop tears everything down.
func (c *Client) Stop() {
	c.Board.Stop()
	c.Chat.Stop()
	c.Session.Teardown()
}

// RefreshConnection rebuilds the document-store connection from the latest
// configuration and resets all active subscriptions. Returns false if any
// step fails.
func (c *Client) RefreshConnection(ctx context.Context) bool {
	if resetter, ok := c.Store.(docstore.Resetter); ok {
		if !resetter.RefreshConnection(ctx) {
			return false
		}
	}
	if err := c.Board.Resync(ctx); err != nil {
		return false
	}
	if identity := c.Session.CurrentIdentity(); identity != nil {
		if err := c.Chat.Start(ctx, identity.ID); err != nil {
			return false
		}
	}
	return true
}
