// Package notifications fans task lifecycle events out to every relevant
// recipient at write time, excluding the actor who caused the event.
package notifications

import (
	"context"
	"time"

	"github.com/fearlessjoy/fridaynz/logging"
	"github.com/fearlessjoy/fridaynz/models"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// TaskEvent writes one notification per distinct recipient. Failures are
// logged, never propagated: fanout is a fire-and-forget side effect of the
// mutation that triggered it.
func (s *Service) TaskEvent(ctx context.Context, event models.NotificationType, actorID, taskID, title, message string, recipients []string) {
	now := time.Now()
	seen := make(map[string]bool)
	for _, recipient := range recipients {
		if recipient == "" || recipient == actorID || seen[recipient] {
			continue
		}
		seen[recipient] = true

		notification := &models.Notification{
			Type:      event,
			UserID:    recipient,
			Title:     title,
			Message:   message,
			TaskID:    taskID,
			Link:      "/tasks/" + taskID,
			CreatedAt: now,
		}
		if err := s.repo.Create(ctx, notification); err != nil {
			logging.Logger.Warnf("Event ID: NOTIFICATION_WRITE_FAILED, Description: Failed to notify %s about %s: %v", recipient, taskID, err)
		}
	}
}

// ListForUser returns the recipient's feed, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]models.Notification, error) {
	return s.repo.ListForUser(ctx, userID)
}

// MarkRead flips the read flag — the only mutation notifications support.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID string, createdAt time.Time) error {
	return s.repo.MarkRead(ctx, userID, notificationID, createdAt)
}
