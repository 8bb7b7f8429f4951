package tracker

import (
	"context"
	"errors"

	"tracker/internal/models"
)

// checkParent validates parentID as the parent of taskID inside projectID.
// taskID is empty when the task is being created, in which case no cycle is
// possible and only the project and self checks apply.
func checkParent(ctx context.Context, r Reader, projectID, taskID, parentID string) error {
	if taskID != "" && parentID == taskID {
		return Invalid("parent_task_id", "a task cannot be its own parent")
	}
	parent, err := r.GetTask(ctx, projectID, parentID)
	if errors.Is(err, ErrNoRecord) {
		return Invalid("parent_task_id", "parent task not found in this project")
	}
	if err != nil {
		return Internal(err)
	}
	if taskID == "" {
		return nil
	}

	// Walk up from the candidate parent. Reaching taskID means the candidate
	// is one of its descendants.
	seen := map[string]struct{}{parent.ID: {}}
	cur := parent
	for cur.ParentTaskID != nil {
		next := *cur.ParentTaskID
		if next == taskID {
			return Invalid("parent_task_id", "parent task is a descendant of this task")
		}
		if _, ok := seen[next]; ok {
			return Invalid("parent_task_id", "parent chain already contains a cycle")
		}
		seen[next] = struct{}{}
		cur, err = r.GetTask(ctx, projectID, next)
		if errors.Is(err, ErrNoRecord) {
			return nil
		}
		if err != nil {
			return Internal(err)
		}
	}
	return nil
}

// checkDeletable refuses to delete a task that still has subtasks.
func checkDeletable(ctx context.Context, r Reader, task models.Task) error {
	n, err := r.CountSubtasks(ctx, task.ID)
	if err != nil {
		return Internal(err)
	}
	if n > 0 {
		return Invalid("task", "task has %d subtask(s); delete or reparent them first", n)
	}
	return nil
}
