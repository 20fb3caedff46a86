package models

import "time"

type NotificationType string

const (
	NotifyTaskAssigned  NotificationType = "task_assigned"
	NotifyTaskStatus    NotificationType = "task_status_changed"
	NotifyTaskComment   NotificationType = "task_comment"
	NotifyTaskMention   NotificationType = "task_mention"
	NotifyTaskApproval  NotificationType = "task_approval"
	NotifyTaskCompleted NotificationType = "task_completed"
)

type Notification struct {
	ID        string           `bson:"_id,omitempty" json:"id"`
	Type      NotificationType `bson:"type" json:"type"`
	UserID    string           `bson:"userId" json:"userId"`
	Title     string           `bson:"title" json:"title"`
	Message   string           `bson:"message" json:"message"`
	TaskID    string           `bson:"taskId,omitempty" json:"taskId,omitempty"`
	Link      string           `bson:"link,omitempty" json:"link,omitempty"`
	Read      bool             `bson:"read" json:"read"`
	CreatedAt time.Time        `bson:"createdAt" json:"createdAt"`
}
