package board

import (
	"context"
	"fmt"
	"time"

	"github.com/fearlessjoy/fridaynz/models"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

// Subtask and comment-removal mutations go through a read-modify-write
// guard: fetch the current server copy (not the mirror), compute the new
// list against it, write the whole field back, then update the mirror with a
// deep clone. Two back-to-back mutations each observe the other's effect at
// the cost of an extra round-trip — acceptable at this domain's per-record
// write concurrency.

func (s *Synchronizer) AddSubtask(ctx context.Context, taskID, title string) (models.Subtask, error) {
	subtask := models.Subtask{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: time.Now(),
	}
	err := s.rewriteSubtasks(ctx, taskID, func(subtasks []models.Subtask) ([]models.Subtask, error) {
		return append(subtasks, subtask), nil
	})
	return subtask, err
}

func (s *Synchronizer) ToggleSubtask(ctx context.Context, taskID, subtaskID string) error {
	return s.rewriteSubtasks(ctx, taskID, func(subtasks []models.Subtask) ([]models.Subtask, error) {
		idx := slices.IndexFunc(subtasks, func(st models.Subtask) bool { return st.ID == subtaskID })
		if idx < 0 {
			return nil, fmt.Errorf("subtask %s not found on work item %s", subtaskID, taskID)
		}
		subtasks[idx].Done = !subtasks[idx].Done
		return subtasks, nil
	})
}

func (s *Synchronizer) RenameSubtask(ctx context.Context, taskID, subtaskID, title string) error {
	return s.rewriteSubtasks(ctx, taskID, func(subtasks []models.Subtask) ([]models.Subtask, error) {
		idx := slices.IndexFunc(subtasks, func(st models.Subtask) bool { return st.ID == subtaskID })
		if idx < 0 {
			return nil, fmt.Errorf("subtask %s not found on work item %s", subtaskID, taskID)
		}
		subtasks[idx].Title = title
		return subtasks, nil
	})
}

func (s *Synchronizer) RemoveSubtask(ctx context.Context, taskID, subtaskID string) error {
	return s.rewriteSubtasks(ctx, taskID, func(subtasks []models.Subtask) ([]models.Subtask, error) {
		idx := slices.IndexFunc(subtasks, func(st models.Subtask) bool { return st.ID == subtaskID })
		if idx < 0 {
			return nil, fmt.Errorf("subtask %s not found on work item %s", subtaskID, taskID)
		}
		return append(subtasks[:idx:idx], subtasks[idx+1:]...), nil
	})
}

// DeleteComment removes a single comment through the same guard.
func (s *Synchronizer) DeleteComment(ctx context.Context, taskID, commentID string) error {
	var fresh models.Task
	if err := s.store.Get(ctx, TasksCollection, taskID, &fresh); err != nil {
		return fmt.Errorf("failed to fetch work item %s: %w", taskID, err)
	}

	comments := models.CloneComments(fresh.Comments)
	idx := slices.IndexFunc(comments, func(c models.Comment) bool { return c.ID == commentID })
	if idx < 0 {
		return fmt.Errorf("comment %s not found on work item %s", commentID, taskID)
	}
	comments = append(comments[:idx:idx], comments[idx+1:]...)

	now := time.Now()
	patch := map[string]interface{}{"comments": comments, "updatedAt": now}
	if err := s.store.Update(ctx, TasksCollection, taskID, patch); err != nil {
		return fmt.Errorf("failed to write comments of work item %s: %w", taskID, err)
	}

	s.mu.Lock()
	mirrorIdx := slices.IndexFunc(s.tasks, func(t models.Task) bool { return t.ID == taskID })
	if mirrorIdx >= 0 {
		s.tasks[mirrorIdx].Comments = models.CloneComments(comments)
		s.tasks[mirrorIdx].UpdatedAt = now
		delete(s.pending, taskID)
	}
	s.mu.Unlock()
	return nil
}

func (s *Synchronizer) rewriteSubtasks(ctx context.Context, taskID string, fn func([]models.Subtask) ([]models.Subtask, error)) error {
	var fresh models.Task
	if err := s.store.Get(ctx, TasksCollection, taskID, &fresh); err != nil {
		return fmt.Errorf("failed to fetch work item %s: %w", taskID, err)
	}

	subtasks, err := fn(append([]models.Subtask(nil), fresh.Subtasks...))
	if err != nil {
		return err
	}

	now := time.Now()
	patch := map[string]interface{}{"subtasks": subtasks, "updatedAt": now}
	if err := s.store.Update(ctx, TasksCollection, taskID, patch); err != nil {
		return fmt.Errorf("failed to write subtasks of work item %s: %w", taskID, err)
	}

	s.mu.Lock()
	idx := slices.IndexFunc(s.tasks, func(t models.Task) bool { return t.ID == taskID })
	if idx >= 0 {
		s.tasks[idx].Subtasks = append([]models.Subtask(nil), subtasks...)
		s.tasks[idx].UpdatedAt = now
	}
	s.mu.Unlock()
	return nil
}
