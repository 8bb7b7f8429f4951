package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"tracker/internal/models"
	"tracker/internal/tracker"
)

const taskColumns = `id, project_id, title, description, type, status, priority, assigned_to, reporter,
        progress, estimate_hour, due_date, parent_task_id, created_at, updated_at`

// GetTask retrieves a task by id, scoped to its project.
func (s queries) GetTask(ctx context.Context, projectID, taskID string) (models.Task, error) {
	var t models.Task
	err := sqlx.GetContext(ctx, s.q, &t, `SELECT `+taskColumns+` FROM tasks WHERE id = ? AND project_id = ?`, taskID, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, tracker.ErrNoRecord
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns one filtered page of a project's tasks, newest first.
func (s queries) ListTasks(ctx context.Context, f tracker.TaskFilter) ([]models.Task, int, error) {
	where := []string{`project_id = ?`}
	args := []any{f.ProjectID}
	if f.Status != nil {
		where = append(where, `status = ?`)
		args = append(args, *f.Status)
	}
	if f.Priority != nil {
		where = append(where, `priority = ?`)
		args = append(args, *f.Priority)
	}
	if f.Type != nil {
		where = append(where, `type = ?`)
		args = append(args, *f.Type)
	}
	if f.AssignedTo != nil {
		where = append(where, `assigned_to = ?`)
		args = append(args, *f.AssignedTo)
	}
	if f.Search != "" {
		pattern := likePattern(f.Search)
		where = append(where, `(title LIKE ? ESCAPE '\' OR IFNULL(description, '') LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := sqlx.GetContext(ctx, s.q, &total, `SELECT COUNT(*) FROM tasks WHERE `+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	var tasks []models.Task
	err := sqlx.SelectContext(ctx, s.q, &tasks,
		`SELECT `+taskColumns+` FROM tasks WHERE `+clause+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, total, nil
}

// ListSubtasks returns the direct children of a task.
func (s queries) ListSubtasks(ctx context.Context, taskID string) ([]models.Task, error) {
	var tasks []models.Task
	err := sqlx.SelectContext(ctx, s.q, &tasks,
		`SELECT `+taskColumns+` FROM tasks WHERE parent_task_id = ? ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list subtasks: %w", err)
	}
	return tasks, nil
}

// CountSubtasks counts the direct children of a task.
func (s queries) CountSubtasks(ctx context.Context, taskID string) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, s.q, &n, `SELECT COUNT(*) FROM tasks WHERE parent_task_id = ?`, taskID); err != nil {
		return 0, fmt.Errorf("count subtasks: %w", err)
	}
	return n, nil
}

// InsertTask inserts a new task.
func (s queries) InsertTask(ctx context.Context, t models.Task) error {
	_, err := sqlx.NamedExecContext(ctx, s.q, `INSERT INTO tasks(`+taskColumns+`)
        VALUES(:id, :project_id, :title, :description, :type, :status, :priority, :assigned_to, :reporter,
        :progress, :estimate_hour, :due_date, :parent_task_id, :created_at, :updated_at)`, t)
	if err != nil {
		return fmt.Errorf("insert task: %w", translate(err))
	}
	return nil
}

// UpdateTask writes every mutable column of a task. project_id and reporter
// never change.
func (s queries) UpdateTask(ctx context.Context, t models.Task) error {
	res, err := sqlx.NamedExecContext(ctx, s.q, `UPDATE tasks SET title = :title, description = :description,
        type = :type, status = :status, priority = :priority, assigned_to = :assigned_to, progress = :progress,
        estimate_hour = :estimate_hour, due_date = :due_date, parent_task_id = :parent_task_id,
        updated_at = :updated_at WHERE id = :id AND project_id = :project_id`, t)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return affected(res.RowsAffected())
}

// DeleteTask removes a task by id. The parent_task_id constraint rejects the
// delete while children still point at it.
func (s queries) DeleteTask(ctx context.Context, projectID, taskID string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND project_id = ?`, taskID, projectID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return affected(res.RowsAffected())
}
