package board

import (
	"context"
	"fmt"
	"time"

	"github.com/fearlessjoy/fridaynz/logging"
	"github.com/fearlessjoy/fridaynz/models"

	"github.com/google/uuid"
)

// AddComment appends a comment optimistically, resolves @mentions against
// the members mirror, writes the list remotely against a fresh server copy,
// and fans out notifications. The comment is visible locally before the
// remote write completes; the merge resolver dedupes once the server echoes
// it back.
func (s *Synchronizer) AddComment(ctx context.Context, taskID string, author models.Member, content string) (models.Comment, error) {
	comment := models.Comment{
		ID:         uuid.New().String(),
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Content:    content,
		Mentions:   models.ExtractMentions(content, s.Members()),
		CreatedAt:  time.Now(),
	}

	_, ok := s.updateMirror(taskID, func(task models.Task) models.Task {
		task.Comments = append(task.Comments, comment)
		return task
	})
	if !ok {
		return models.Comment{}, fmt.Errorf("work item %s not found in mirror", taskID)
	}

	var fresh models.Task
	if err := s.store.Get(ctx, TasksCollection, taskID, &fresh); err != nil {
		logging.Logger.Warnf("Event ID: OPTIMISTIC_WRITE_UNCONFIRMED, Description: Comment on work item %s kept locally, fetch for remote write failed: %v", taskID, err)
		return comment, fmt.Errorf("comment added locally but not confirmed by the backend: %w", err)
	}
	comments := append(models.CloneComments(fresh.Comments), comment)
	patch := map[string]interface{}{"comments": comments, "updatedAt": time.Now()}
	if err := s.store.Update(ctx, TasksCollection, taskID, patch); err != nil {
		logging.Logger.Warnf("Event ID: OPTIMISTIC_WRITE_UNCONFIRMED, Description: Remote write of comment on work item %s failed, optimistic state retained: %v", taskID, err)
		return comment, fmt.Errorf("comment added locally but not confirmed by the backend: %w", err)
	}

	s.notifyComment(ctx, fresh, author, comment)
	return comment, nil
}

func (s *Synchronizer) notifyComment(ctx context.Context, task models.Task, author models.Member, comment models.Comment) {
	if s.notifier == nil {
		return
	}
	recipients := append(s.adminAndManagerIDs(), task.AssignedTo, task.OwnerID)
	s.notifier.TaskEvent(ctx, models.NotifyTaskComment, author.ID, task.ID, task.Title,
		fmt.Sprintf("%s commented on %s", author.Name, task.Title), recipients)
	if len(comment.Mentions) > 0 {
		s.notifier.TaskEvent(ctx, models.NotifyTaskMention, author.ID, task.ID, task.Title,
			fmt.Sprintf("%s mentioned you on %s", author.Name, task.Title), comment.Mentions)
	}
}

// RecordApproval registers an approval decision. A decision from an approver
// already present replaces the prior entry — at most one entry per approver,
// latest decision wins.
func (s *Synchronizer) RecordApproval(ctx context.Context, taskID string, approver models.Member, decision models.ApprovalDecision, note string) error {
	approval := models.Approval{
		ApproverID:   approver.ID,
		ApproverName: approver.Name,
		Decision:     decision,
		Note:         note,
		DecidedAt:    time.Now(),
	}

	_, ok := s.updateMirror(taskID, func(task models.Task) models.Task {
		task.Approvals = UpsertApproval(task.Approvals, approval)
		return task
	})
	if !ok {
		return fmt.Errorf("work item %s not found in mirror", taskID)
	}

	var fresh models.Task
	if err := s.store.Get(ctx, TasksCollection, taskID, &fresh); err != nil {
		logging.Logger.Warnf("Event ID: OPTIMISTIC_WRITE_UNCONFIRMED, Description: Approval on work item %s kept locally, fetch for remote write failed: %v", taskID, err)
		return fmt.Errorf("approval recorded locally but not confirmed by the backend: %w", err)
	}
	approvals := UpsertApproval(fresh.Approvals, approval)
	patch := map[string]interface{}{"approvals": approvals, "updatedAt": time.Now()}
	if err := s.store.Update(ctx, TasksCollection, taskID, patch); err != nil {
		logging.Logger.Warnf("Event ID: OPTIMISTIC_WRITE_UNCONFIRMED, Description: Remote write of approval on work item %s failed, optimistic state retained: %v", taskID, err)
		return fmt.Errorf("approval recorded locally but not confirmed by the backend: %w", err)
	}

	if s.notifier != nil {
		recipients := append(s.adminAndManagerIDs(), fresh.OwnerID, fresh.AssignedTo)
		s.notifier.TaskEvent(ctx, models.NotifyTaskApproval, approver.ID, taskID, fresh.Title,
			fmt.Sprintf("%s %s %s", approver.Name, decision, fresh.Title), recipients)
	}
	return nil
}
