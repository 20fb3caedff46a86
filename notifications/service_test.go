package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fearlessjoy/fridaynz/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepository struct {
	created   []models.Notification
	createErr error
}

func (f *fakeRepository) Create(ctx context.Context, notification *models.Notification) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, *notification)
	return nil
}

func (f *fakeRepository) ListForUser(ctx context.Context, userID string) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range f.created {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeRepository) MarkRead(ctx context.Context, userID, notificationID string, createdAt time.Time) error {
	for i, n := range f.created {
		if n.UserID == userID && n.ID == notificationID {
			f.created[i].Read = true
			return nil
		}
	}
	return errors.New("not found")
}

func TestTaskEvent_FansOutPerRecipient(t *testing.T) {
	repo := &fakeRepository{}
	svc := NewService(repo)

	svc.TaskEvent(context.Background(), models.NotifyTaskStatus, "m-actor", "t1", "ship it",
		"Status changed to Completed", []string{"m-jane", "m-john"})

	require.Len(t, repo.created, 2)
	assert.Equal(t, "m-jane", repo.created[0].UserID)
	assert.Equal(t, "m-john", repo.created[1].UserID)
	assert.Equal(t, "/tasks/t1", repo.created[0].Link)
}

func TestTaskEvent_SkipsActorDuplicatesAndEmpties(t *testing.T) {
	repo := &fakeRepository{}
	svc := NewService(repo)

	svc.TaskEvent(context.Background(), models.NotifyTaskComment, "m-actor", "t1", "ship it",
		"commented", []string{"m-actor", "m-jane", "m-jane", "", "m-john"})

	require.Len(t, repo.created, 2)
	assert.Equal(t, "m-jane", repo.created[0].UserID)
	assert.Equal(t, "m-john", repo.created[1].UserID)
}

func TestTaskEvent_WriteFailuresAreSwallowed(t *testing.T) {
	repo := &fakeRepository{createErr: errors.New("cassandra down")}
	svc := NewService(repo)

	// Must not panic or propagate; the triggering mutation already succeeded.
	svc.TaskEvent(context.Background(), models.NotifyTaskAssigned, "m-actor", "t1", "ship it",
		"assigned", []string{"m-jane"})
	assert.Empty(t, repo.created)
}
