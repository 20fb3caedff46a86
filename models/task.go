package models

import (
	"strings"
	"time"
)

type TaskStatus string

const (
	StatusTodo        TaskStatus = "Todo"
	StatusInProgress  TaskStatus = "In Progress"
	StatusUnderReview TaskStatus = "Under Review"
	StatusCompleted   TaskStatus = "Completed"
)

type TaskPriority string

const (
	PriorityLow    TaskPriority = "Low"
	PriorityMedium TaskPriority = "Medium"
	PriorityHigh   TaskPriority = "High"
	PriorityUrgent TaskPriority = "Urgent"
)

type TaskCategory string

const (
	CategoryDevelopment TaskCategory = "Development"
	CategoryDesign      TaskCategory = "Design"
	CategoryMarketing   TaskCategory = "Marketing"
	CategorySales       TaskCategory = "Sales"
	CategorySupport     TaskCategory = "Support"
	CategoryFinance     TaskCategory = "Finance"
	CategoryHR          TaskCategory = "HR"
	CategoryOperations  TaskCategory = "Operations"
)

// ProgressForStatus is the fixed status to progress mapping. Progress is
// never set independently; every status change recomputes it from here.
func ProgressForStatus(status TaskStatus) int {
	switch status {
	case StatusInProgress:
		return 33
	case StatusUnderReview:
		return 66
	case StatusCompleted:
		return 100
	default:
		return 0
	}
}

type ApprovalDecision string

const (
	DecisionApproved ApprovalDecision = "approved"
	DecisionRejected ApprovalDecision = "rejected"
)

type Comment struct {
	ID         string    `bson:"id" json:"id"`
	AuthorID   string    `bson:"authorId" json:"authorId"`
	AuthorName string    `bson:"authorName" json:"authorName"`
	Content    string    `bson:"content" json:"content"`
	Mentions   []string  `bson:"mentions,omitempty" json:"mentions,omitempty"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
}

type Approval struct {
	ApproverID   string           `bson:"approverId" json:"approverId"`
	ApproverName string           `bson:"approverName" json:"approverName"`
	Decision     ApprovalDecision `bson:"decision" json:"decision"`
	Note         string           `bson:"note,omitempty" json:"note,omitempty"`
	DecidedAt    time.Time        `bson:"decidedAt" json:"decidedAt"`
}

type Subtask struct {
	ID        string    `bson:"id" json:"id"`
	Title     string    `bson:"title" json:"title"`
	Done      bool      `bson:"done" json:"done"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

type Task struct {
	ID            string       `bson:"_id,omitempty" json:"id"`
	Title         string       `bson:"title" json:"title"`
	Description   string       `bson:"description" json:"description"`
	Category      TaskCategory `bson:"category" json:"category"`
	Status        TaskStatus   `bson:"status" json:"status"`
	Priority      TaskPriority `bson:"priority" json:"priority"`
	Progress      int          `bson:"progress" json:"progress"`
	AssignedTo    string       `bson:"assignedTo" json:"assignedTo"`
	OwnerID       string       `bson:"ownerId" json:"ownerId"`
	NeedsApproval bool         `bson:"needsApproval" json:"needsApproval"`
	Comments      []Comment    `bson:"comments" json:"comments"`
	Approvals     []Approval   `bson:"approvals" json:"approvals"`
	Subtasks      []Subtask    `bson:"subtasks" json:"subtasks"`
	CreatedAt     time.Time    `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time    `bson:"updatedAt" json:"updatedAt"`
}

// Clone returns a deep copy. Mirror entries and records handed out to the UI
// must never alias the lists of a record a mutation path is about to change.
func (t Task) Clone() Task {
	out := t
	out.Comments = CloneComments(t.Comments)
	out.Approvals = append([]Approval(nil), t.Approvals...)
	out.Subtasks = append([]Subtask(nil), t.Subtasks...)
	return out
}

func CloneComments(comments []Comment) []Comment {
	if comments == nil {
		return nil
	}
	out := make([]Comment, len(comments))
	for i, c := range comments {
		out[i] = c
		out[i].Mentions = append([]string(nil), c.Mentions...)
	}
	return out
}

// ExtractMentions resolves "@Name" tokens in a comment body to member ids.
// Matching is case-insensitive on the member's name; multi-word names match
// on their first word as well, since that's what people actually type.
func ExtractMentions(content string, members []Member) []string {
	var mentions []string
	seen := make(map[string]bool)
	for _, member := range members {
		if member.Name == "" {
			continue
		}
		candidates := []string{member.Name}
		if first, _, ok := strings.Cut(member.Name, " "); ok {
			candidates = append(candidates, first)
		}
		for _, candidate := range candidates {
			if containsMention(content, candidate) && !seen[member.ID] {
				seen[member.ID] = true
				mentions = append(mentions, member.ID)
			}
		}
	}
	return mentions
}

func containsMention(content, name string) bool {
	lower := strings.ToLower(content)
	token := "@" + strings.ToLower(name)
	idx := 0
	for {
		i := strings.Index(lower[idx:], token)
		if i < 0 {
			return false
		}
		end := idx + i + len(token)
		if end == len(lower) || !isNameRune(rune(lower[end])) {
			return true
		}
		idx = end
	}
}

func isNameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
