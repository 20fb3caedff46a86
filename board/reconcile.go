// Package board is the task-board core: the live collection synchronizer for
// work items and members, the optimistic mutation layer, and the array-field
// merge resolver that folds server-confirmed state back into locally-edited
// records.
package board

import (
	"reflect"

	"github.com/fearlessjoy/fridaynz/models"

	"golang.org/x/exp/slices"
)

// Reconcile merges a locally-optimistic version of a work item with the
// server-confirmed version arriving in a snapshot. Scalar fields and
// subtasks are server-is-truth; comments and approvals are merged so the
// optimistic edit that triggered the write is not discarded while the server
// catches up.
func Reconcile(optimistic, server models.Task) models.Task {
	merged := server.Clone()
	merged.Comments = MergeComments(server.Comments, optimistic.Comments)
	merged.Approvals = MergeApprovals(server.Approvals, optimistic.Approvals)
	return merged
}

// Confirmed reports whether the server copy already accounts for everything
// the optimistic copy carries, i.e. reconciling would change nothing.
func Confirmed(optimistic, server models.Task) bool {
	merged := Reconcile(optimistic, server)
	return reflect.DeepEqual(merged.Comments, server.Comments) &&
		reflect.DeepEqual(merged.Approvals, server.Approvals)
}

// MergeComments keeps the server list and appends any optimistic entry whose
// (id, content) composite key the server doesn't know yet. The composite key
// tolerates a locally-generated id racing the server-confirmed copy of the
// same logical comment.
func MergeComments(server, optimistic []models.Comment) []models.Comment {
	merged := models.CloneComments(server)
	for _, candidate := range optimistic {
		known := slices.ContainsFunc(server, func(c models.Comment) bool {
			return c.ID == candidate.ID && c.Content == candidate.Content
		})
		if !known {
			merged = append(merged, candidate)
		}
	}
	return merged
}

// MergeApprovals is last-write-wins per approver: an optimistic entry
// replaces the server entry with the same approver id, or appends if absent.
func MergeApprovals(server, optimistic []models.Approval) []models.Approval {
	merged := append([]models.Approval(nil), server...)
	for _, candidate := range optimistic {
		idx := slices.IndexFunc(merged, func(a models.Approval) bool {
			return a.ApproverID == candidate.ApproverID
		})
		if idx >= 0 {
			merged[idx] = candidate
		} else {
			merged = append(merged, candidate)
		}
	}
	return merged
}

// UpsertApproval enforces the at-most-one-entry-per-approver invariant when
// a new decision is recorded.
func UpsertApproval(approvals []models.Approval, approval models.Approval) []models.Approval {
	out := append([]models.Approval(nil), approvals...)
	idx := slices.IndexFunc(out, func(a models.Approval) bool {
		return a.ApproverID == approval.ApproverID
	})
	if idx >= 0 {
		out[idx] = approval
		return out
	}
	return append(out, approval)
}
