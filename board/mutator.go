package board

import (
	"context"
	"fmt"
	"time"

	"github.com/fearlessjoy/fridaynz/logging"
	"github.com/fearlessjoy/fridaynz/models"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

// Mutate applies a partial update to a work item: mirror first, then the
// remote write. Callers observe the change before any network round-trip. On
// remote failure the optimistic state is retained — user input is never
// silently discarded — and the error is returned so the caller can surface a
// non-blocking warning.
func (s *Synchronizer) Mutate(ctx context.Context, id string, patch map[string]interface{}) error {
	// Status and progress are never allowed to diverge, not even transiently
	// in the mirror.
	if status, ok := patch["status"]; ok {
		patch["progress"] = models.ProgressForStatus(toStatus(status))
	}
	patch["updatedAt"] = time.Now()

	_, ok := s.updateMirror(id, func(task models.Task) models.Task {
		return applyPatch(task, patch)
	})
	if !ok {
		return fmt.Errorf("work item %s not found in mirror", id)
	}

	if err := s.store.Update(ctx, TasksCollection, id, patch); err != nil {
		logging.Logger.Warnf("Event ID: OPTIMISTIC_WRITE_UNCONFIRMED, Description: Remote update of work item %s failed, optimistic state retained: %v", id, err)
		return fmt.Errorf("change applied locally but not confirmed by the backend: %w", err)
	}
	return nil
}

// ChangeStatus moves a work item along the Todo → InProgress → UnderReview →
// Completed ladder and notifies the interested parties.
func (s *Synchronizer) ChangeStatus(ctx context.Context, id string, status models.TaskStatus, actorID string) error {
	if err := s.Mutate(ctx, id, map[string]interface{}{"status": status}); err != nil {
		return err
	}

	task, ok := s.Task(id)
	if !ok || s.notifier == nil {
		return nil
	}
	event := models.NotifyTaskStatus
	if status == models.StatusCompleted {
		event = models.NotifyTaskCompleted
	}
	recipients := append(s.adminAndManagerIDs(), task.AssignedTo, task.OwnerID)
	s.notifier.TaskEvent(ctx, event, actorID, id, task.Title,
		fmt.Sprintf("Status changed to %s", status), recipients)
	return nil
}

// Create persists a new work item and seeds the mirror optimistically. The
// new record goes to the front: it carries the newest updatedAt, and the
// mirror order follows the server's updatedAt-descending sort.
func (s *Synchronizer) Create(ctx context.Context, task models.Task, actorID string) (models.Task, error) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = models.StatusTodo
	}
	task.Progress = models.ProgressForStatus(task.Status)

	s.mu.Lock()
	s.tasks = append([]models.Task{task.Clone()}, s.tasks...)
	s.pending[task.ID] = task.Clone()
	s.mu.Unlock()

	if err := s.store.Set(ctx, TasksCollection, task.ID, task); err != nil {
		logging.Logger.Warnf("Event ID: OPTIMISTIC_WRITE_UNCONFIRMED, Description: Remote create of work item %s failed, optimistic state retained: %v", task.ID, err)
		return task, fmt.Errorf("work item created locally but not confirmed by the backend: %w", err)
	}

	if s.notifier != nil {
		recipients := append(s.adminAndManagerIDs(), task.AssignedTo)
		s.notifier.TaskEvent(ctx, models.NotifyTaskAssigned, actorID, task.ID, task.Title,
			fmt.Sprintf("New task assigned: %s", task.Title), recipients)
	}
	return task, nil
}

// Delete removes a work item. Deletion is admin-gated by the backend's
// security rules; the client only reflects the outcome.
func (s *Synchronizer) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := slices.IndexFunc(s.tasks, func(t models.Task) bool { return t.ID == id })
	if idx >= 0 {
		s.tasks = append(s.tasks[:idx:idx], s.tasks[idx+1:]...)
	}
	delete(s.pending, id)
	s.mu.Unlock()

	if err := s.store.Delete(ctx, TasksCollection, id); err != nil {
		return fmt.Errorf("failed to delete work item %s: %w", id, err)
	}
	return nil
}

func toStatus(value interface{}) models.TaskStatus {
	switch v := value.(type) {
	case models.TaskStatus:
		return v
	case string:
		return models.TaskStatus(v)
	default:
		return ""
	}
}

// applyPatch folds a partial update into a deep-cloned record. Only fields
// the mutation layer actually patches are handled.
func applyPatch(task models.Task, patch map[string]interface{}) models.Task {
	for field, value := range patch {
		switch field {
		case "title":
			task.Title, _ = value.(string)
		case "description":
			task.Description, _ = value.(string)
		case "category":
			if v, ok := value.(models.TaskCategory); ok {
				task.Category = v
			} else if v, ok := value.(string); ok {
				task.Category = models.TaskCategory(v)
			}
		case "status":
			task.Status = toStatus(value)
		case "priority":
			if v, ok := value.(models.TaskPriority); ok {
				task.Priority = v
			} else if v, ok := value.(string); ok {
				task.Priority = models.TaskPriority(v)
			}
		case "progress":
			if v, ok := value.(int); ok {
				task.Progress = v
			}
		case "assignedTo":
			task.AssignedTo, _ = value.(string)
		case "needsApproval":
			task.NeedsApproval, _ = value.(bool)
		case "comments":
			if v, ok := value.([]models.Comment); ok {
				task.Comments = models.CloneComments(v)
			}
		case "approvals":
			if v, ok := value.([]models.Approval); ok {
				task.Approvals = append([]models.Approval(nil), v...)
			}
		case "subtasks":
			if v, ok := value.([]models.Subtask); ok {
				task.Subtasks = append([]models.Subtask(nil), v...)
			}
		case "updatedAt":
			if v, ok := value.(time.Time); ok {
				task.UpdatedAt = v
			}
		}
	}
	return task
}
