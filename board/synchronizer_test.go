package board

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fearlessjoy/fridaynz/docstore/memstore"
	"github.com/fearlessjoy/fridaynz/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	event      models.NotificationType
	actorID    string
	recipients []string
}

type fakeNotifier struct {
	events []recordedEvent
}

func (f *fakeNotifier) TaskEvent(ctx context.Context, event models.NotificationType, actorID, taskID, title, message string, recipients []string) {
	f.events = append(f.events, recordedEvent{event: event, actorID: actorID, recipients: recipients})
}

func setupSynchronizer(t *testing.T) (*Synchronizer, *memstore.Store, *fakeNotifier) {
	t.Helper()
	store := memstore.New()
	notifier := &fakeNotifier{}

	members := []models.Member{
		{ID: "m-admin", Name: "Ana Admin", UserRole: models.RoleAdmin, Active: true},
		{ID: "m-jane", Name: "Jane Doe", UserRole: models.RoleStaff, Active: true},
		{ID: "m-gone", Name: "Bob Left", UserRole: models.RoleStaff, Active: false},
	}
	for _, member := range members {
		if err := store.Set(context.Background(), MembersCollection, member.ID, member); err != nil {
			t.Fatalf("failed to seed member: %v", err)
		}
	}

	sync := NewSynchronizer(store, notifier)
	if err := sync.Start(context.Background()); err != nil {
		t.Fatalf("failed to start synchronizer: %v", err)
	}
	t.Cleanup(sync.Stop)
	return sync, store, notifier
}

func TestMembersMirror_ActiveOnlySortedByName(t *testing.T) {
	sync, _, _ := setupSynchronizer(t)

	members := sync.Members()
	require.Len(t, members, 2)
	assert.Equal(t, "Ana Admin", members[0].Name)
	assert.Equal(t, "Jane Doe", members[1].Name)
}

func TestStatusChangeRecomputesProgress(t *testing.T) {
	sync, _, _ := setupSynchronizer(t)
	ctx := context.Background()

	created, err := sync.Create(ctx, models.Task{Title: "ship it", AssignedTo: "m-jane"}, "m-admin")
	require.NoError(t, err)

	steps := []struct {
		status   models.TaskStatus
		progress int
	}{
		{models.StatusInProgress, 33},
		{models.StatusUnderReview, 66},
		{models.StatusCompleted, 100},
		{models.StatusTodo, 0},
	}
	for _, step := range steps {
		// A caller trying to smuggle a mismatched progress in is overridden.
		err := sync.Mutate(ctx, created.ID, map[string]interface{}{"status": step.status, "progress": 7})
		require.NoError(t, err)

		task, ok := sync.Task(created.ID)
		require.True(t, ok)
		assert.Equal(t, step.status, task.Status)
		assert.Equal(t, step.progress, task.Progress, "progress must follow status %s", step.status)
	}
}

func TestOptimisticStatusVisibleBeforeConfirmation(t *testing.T) {
	sync, store, _ := setupSynchronizer(t)
	ctx := context.Background()

	created, err := sync.Create(ctx, models.Task{Title: "draft release notes"}, "m-admin")
	require.NoError(t, err)

	// Remote write fails: the optimistic mirror state must survive and the
	// caller must still be told the write did not confirm.
	store.FailNext("update", errors.New("connection refused"))
	err = sync.Mutate(ctx, created.ID, map[string]interface{}{"status": models.StatusInProgress})
	require.Error(t, err)

	task, ok := sync.Task(created.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusInProgress, task.Status)
	assert.Equal(t, 33, task.Progress)

	// Retry succeeds; the snapshot echo must leave the record unchanged.
	require.NoError(t, sync.Mutate(ctx, created.ID, map[string]interface{}{"status": models.StatusInProgress}))
	task, ok = sync.Task(created.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusInProgress, task.Status)
	assert.Equal(t, 33, task.Progress)
}

func TestOptimisticCommentSurvivesUnrelatedSnapshot(t *testing.T) {
	sync, store, _ := setupSynchronizer(t)
	ctx := context.Background()

	created, err := sync.Create(ctx, models.Task{Title: "review budget"}, "m-admin")
	require.NoError(t, err)

	author := models.Member{ID: "m-jane", Name: "Jane Doe"}
	store.FailNext("update", errors.New("connection refused"))
	_, err = sync.AddComment(ctx, created.ID, author, "working on it")
	require.Error(t, err)

	// An unrelated write triggers a fresh snapshot that doesn't contain the
	// comment yet; reconciliation must keep the optimistic entry.
	_, err = sync.Create(ctx, models.Task{Title: "unrelated"}, "m-admin")
	require.NoError(t, err)

	task, ok := sync.Task(created.ID)
	require.True(t, ok)
	require.Len(t, task.Comments, 1)
	assert.Equal(t, "working on it", task.Comments[0].Content)
}

func TestSubtaskReadModifyWrite_NoLostUpdate(t *testing.T) {
	sync, store, _ := setupSynchronizer(t)
	ctx := context.Background()

	created, err := sync.Create(ctx, models.Task{Title: "two subtasks"}, "m-admin")
	require.NoError(t, err)

	first, err := sync.AddSubtask(ctx, created.ID, "write tests")
	require.NoError(t, err)
	second, err := sync.AddSubtask(ctx, created.ID, "write docs")
	require.NoError(t, err)

	// Back-to-back toggles: each fetches a fresh server copy, so neither
	// clobbers the other's list position.
	require.NoError(t, sync.ToggleSubtask(ctx, created.ID, first.ID))
	require.NoError(t, sync.ToggleSubtask(ctx, created.ID, second.ID))

	var persisted models.Task
	require.NoError(t, store.Get(ctx, TasksCollection, created.ID, &persisted))
	require.Len(t, persisted.Subtasks, 2)
	assert.True(t, persisted.Subtasks[0].Done)
	assert.True(t, persisted.Subtasks[1].Done)

	// Toggling the same subtask twice round-trips back to not-done.
	require.NoError(t, sync.ToggleSubtask(ctx, created.ID, first.ID))
	require.NoError(t, store.Get(ctx, TasksCollection, created.ID, &persisted))
	assert.False(t, persisted.Subtasks[0].Done)
}

func TestApprovalReplaceSemantics(t *testing.T) {
	sync, store, _ := setupSynchronizer(t)
	ctx := context.Background()

	created, err := sync.Create(ctx, models.Task{Title: "needs sign-off", NeedsApproval: true}, "m-admin")
	require.NoError(t, err)

	approver := models.Member{ID: "m-admin", Name: "Ana Admin"}
	require.NoError(t, sync.RecordApproval(ctx, created.ID, approver, models.DecisionApproved, ""))
	require.NoError(t, sync.RecordApproval(ctx, created.ID, approver, models.DecisionRejected, "budget changed"))

	var persisted models.Task
	require.NoError(t, store.Get(ctx, TasksCollection, created.ID, &persisted))
	require.Len(t, persisted.Approvals, 1)
	assert.Equal(t, models.DecisionRejected, persisted.Approvals[0].Decision)

	task, ok := sync.Task(created.ID)
	require.True(t, ok)
	require.Len(t, task.Approvals, 1)
	assert.Equal(t, models.DecisionRejected, task.Approvals[0].Decision)
}

func TestCommentMentionsResolveAgainstMembersMirror(t *testing.T) {
	sync, store, notifier := setupSynchronizer(t)
	ctx := context.Background()

	created, err := sync.Create(ctx, models.Task{Title: "kickoff"}, "m-admin")
	require.NoError(t, err)

	author := models.Member{ID: "m-admin", Name: "Ana Admin"}
	comment, err := sync.AddComment(ctx, created.ID, author, "hello @Jane")
	require.NoError(t, err)
	assert.Equal(t, []string{"m-jane"}, comment.Mentions)

	var persisted models.Task
	require.NoError(t, store.Get(ctx, TasksCollection, created.ID, &persisted))
	require.Len(t, persisted.Comments, 1)
	assert.Equal(t, []string{"m-jane"}, persisted.Comments[0].Mentions)

	var mentionEvents []recordedEvent
	for _, event := range notifier.events {
		if event.event == models.NotifyTaskMention {
			mentionEvents = append(mentionEvents, event)
		}
	}
	require.Len(t, mentionEvents, 1)
	assert.Equal(t, []string{"m-jane"}, mentionEvents[0].recipients)
}

func TestTasksMirrorOrderedByUpdatedAtDesc(t *testing.T) {
	sync, _, _ := setupSynchronizer(t)
	ctx := context.Background()

	older, err := sync.Create(ctx, models.Task{Title: "older"}, "m-admin")
	require.NoError(t, err)
	// BSON timestamps carry millisecond precision; keep the two creates apart.
	time.Sleep(5 * time.Millisecond)
	newer, err := sync.Create(ctx, models.Task{Title: "newer"}, "m-admin")
	require.NoError(t, err)

	tasks := sync.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, newer.ID, tasks[0].ID)
	assert.Equal(t, older.ID, tasks[1].ID)
}

func TestStreamErrorRetainsFlagAndEmptiesMirror(t *testing.T) {
	sync, _, _ := setupSynchronizer(t)

	sync.handleStreamError(errors.New("stream closed"))

	assert.Error(t, sync.Err())
	assert.Empty(t, sync.Tasks())

	// A manual resync recovers.
	require.NoError(t, sync.Resync(context.Background()))
	assert.NoError(t, sync.Err())
}

func TestDeleteRemovesFromMirrorAndBackend(t *testing.T) {
	sync, store, _ := setupSynchronizer(t)
	ctx := context.Background()

	created, err := sync.Create(ctx, models.Task{Title: "short-lived"}, "m-admin")
	require.NoError(t, err)

	require.NoError(t, sync.Delete(ctx, created.ID))

	_, ok := sync.Task(created.ID)
	assert.False(t, ok)
	var persisted models.Task
	err = store.Get(ctx, TasksCollection, created.ID, &persisted)
	assert.Error(t, err)
}
