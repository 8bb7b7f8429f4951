package tracker

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"tracker/internal/models"
	"tracker/internal/util"
)

type CreateTaskInput struct {
	// ID lets the client choose the identifier; one is minted when absent.
	ID           *string              `json:"id" validate:"omitempty,uuid"`
	Title        string               `json:"title" validate:"required,min=2,max=255"`
	Description  *string              `json:"description" validate:"omitempty,max=5000"`
	Type         *models.TaskType     `json:"type" validate:"omitempty,enum"`
	Status       *models.TaskStatus   `json:"status" validate:"omitempty,enum"`
	Priority     *models.TaskPriority `json:"priority" validate:"omitempty,enum"`
	AssignedTo   *string              `json:"assigned_to" validate:"omitempty,len=0|uuid"`
	Progress     *int                 `json:"progress" validate:"omitempty,min=0,max=100"`
	EstimateHour *int                 `json:"estimate_hour" validate:"omitempty,min=0"`
	DueDate      *string              `json:"due_date" validate:"omitempty,len=0|datetime=2006-01-02"`
	ParentTaskID *string              `json:"parent_task_id" validate:"omitempty,len=0|uuid"`
}

// UpdateTaskInput is a partial update. Nil leaves a field alone; an empty
// string clears assigned_to, due_date and parent_task_id.
type UpdateTaskInput struct {
	Title        *string              `json:"title" validate:"omitempty,min=2,max=255"`
	Description  *string              `json:"description" validate:"omitempty,max=5000"`
	Type         *models.TaskType     `json:"type" validate:"omitempty,enum"`
	Status       *models.TaskStatus   `json:"status" validate:"omitempty,enum"`
	Priority     *models.TaskPriority `json:"priority" validate:"omitempty,enum"`
	AssignedTo   *string              `json:"assigned_to" validate:"omitempty,len=0|uuid"`
	Progress     *int                 `json:"progress" validate:"omitempty,min=0,max=100"`
	EstimateHour *int                 `json:"estimate_hour" validate:"omitempty,min=0"`
	DueDate      *string              `json:"due_date" validate:"omitempty,len=0|datetime=2006-01-02"`
	ParentTaskID *string              `json:"parent_task_id" validate:"omitempty,len=0|uuid"`
}

type ListTasksInput struct {
	Status     *models.TaskStatus   `json:"status" form:"status" validate:"omitempty,enum"`
	Priority   *models.TaskPriority `json:"priority" form:"priority" validate:"omitempty,enum"`
	Type       *models.TaskType     `json:"type" form:"type" validate:"omitempty,enum"`
	AssignedTo *string              `json:"assigned_to" form:"assigned_to" validate:"omitempty,uuid"`
	Search     string               `json:"search" form:"search" validate:"max=255"`
	Page       int                  `json:"page" form:"page" validate:"min=0"`
	Limit      int                  `json:"limit" form:"limit" validate:"min=0,max=100"`
}

type UpdateStatusInput struct {
	Status models.TaskStatus `json:"status" validate:"required,enum"`
}

type AddCommentInput struct {
	Content string `json:"content" validate:"required,min=1,max=5000"`
}

// CreateTask adds a task to the project. Any participant may create one and
// always becomes its reporter.
func (e *Engine) CreateTask(ctx context.Context, actorID, projectID string, in CreateTaskInput) (models.TaskDetail, error) {
	in.Title = strings.TrimSpace(in.Title)
	var task models.Task
	var project models.Project
	err := e.repo.WithinTx(ctx, func(tx Tx) error {
		acc, err := authorize(ctx, tx, actorID, projectID, ActionCreateTask)
		if err != nil {
			return err
		}
		project = acc.project
		if err := check(in); err != nil {
			return err
		}

		now := e.timestamp()
		task = models.Task{
			ID:           e.newID(),
			ProjectID:    projectID,
			Title:        in.Title,
			Description:  util.TrimPtr(in.Description),
			Type:         models.TypeTask,
			Status:       models.StatusTodo,
			Priority:     models.PriorityMedium,
			AssignedTo:   util.TrimPtr(in.AssignedTo),
			Reporter:     actorID,
			EstimateHour: in.EstimateHour,
			DueDate:      util.TrimPtr(in.DueDate),
			ParentTaskID: util.TrimPtr(in.ParentTaskID),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if in.ID != nil {
			task.ID = strings.ToLower(*in.ID)
		}
		if in.Type != nil {
			task.Type = *in.Type
		}
		if in.Status != nil {
			task.Status = *in.Status
		}
		if in.Priority != nil {
			task.Priority = *in.Priority
		}
		if in.Progress != nil {
			task.Progress = *in.Progress
		}

		var problems fieldErrors
		if task.AssignedTo != nil {
			problems.add(checkAssignee(ctx, tx, project, *task.AssignedTo))
		}
		if task.ParentTaskID != nil {
			problems.add(checkParent(ctx, tx, projectID, task.ID, *task.ParentTaskID))
		}
		if err := problems.result(); err != nil {
			return err
		}

		if err := tx.InsertTask(ctx, task); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return Invalid("id", "id is not available")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return models.TaskDetail{}, wrap(err)
	}

	e.logger.Info("task created",
		slog.String("project_id", projectID), slog.String("task_id", task.ID), slog.String("reporter", actorID))
	e.publish(ctx, project, Event{Type: EventTaskUpdate, TaskID: task.ID, Action: "created", ActorID: actorID})
	e.notifyAssignee(project, task, nil, actorID)
	return e.taskDetail(ctx, task)
}

// ListTasks returns one page of the project's tasks, newest first.
func (e *Engine) ListTasks(ctx context.Context, actorID, projectID string, in ListTasksInput) ([]models.Task, models.Pagination, error) {
	if _, err := authorize(ctx, e.repo, actorID, projectID, ActionViewTask); err != nil {
		return nil, models.Pagination{}, err
	}
	if err := check(in); err != nil {
		return nil, models.Pagination{}, err
	}
	page, limit := pageOf(in.Page, in.Limit, defaultTaskLimit)
	tasks, total, err := e.repo.ListTasks(ctx, TaskFilter{
		ProjectID:  projectID,
		Status:     in.Status,
		Priority:   in.Priority,
		Type:       in.Type,
		AssignedTo: in.AssignedTo,
		Search:     strings.TrimSpace(in.Search),
		Limit:      limit,
		Offset:     (page - 1) * limit,
	})
	if err != nil {
		return nil, models.Pagination{}, Internal(err)
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, models.NewPagination(total, page, limit), nil
}

// GetTask returns the task with its parent, subtasks and comments.
func (e *Engine) GetTask(ctx context.Context, actorID, projectID, taskID string) (models.TaskDetail, error) {
	if _, err := authorize(ctx, e.repo, actorID, projectID, ActionViewTask); err != nil {
		return models.TaskDetail{}, err
	}
	task, err := e.repo.GetTask(ctx, projectID, taskID)
	if err != nil {
		return models.TaskDetail{}, lookup(err, "task")
	}
	return e.taskDetail(ctx, task)
}

// UpdateTask applies a partial update in one transaction together with one
// audit batch. Status is set directly here without consulting the workflow.
func (e *Engine) UpdateTask(ctx context.Context, actorID, projectID, taskID string, in UpdateTaskInput) (models.TaskDetail, error) {
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		in.Title = &title
	}
	var before, after models.Task
	var project models.Project
	err := e.repo.WithinTx(ctx, func(tx Tx) error {
		acc, err := authorize(ctx, tx, actorID, projectID, ActionUpdateTask)
		if err != nil {
			return err
		}
		project = acc.project
		before, err = tx.GetTask(ctx, projectID, taskID)
		if err != nil {
			return lookup(err, "task")
		}
		if err := check(in); err != nil {
			return err
		}

		after = applyUpdate(before, in)
		var problems fieldErrors
		if in.AssignedTo != nil && after.AssignedTo != nil {
			problems.add(checkAssignee(ctx, tx, project, *after.AssignedTo))
		}
		if in.ParentTaskID != nil && after.ParentTaskID != nil {
			problems.add(checkParent(ctx, tx, projectID, taskID, *after.ParentTaskID))
		}
		if err := problems.result(); err != nil {
			return err
		}

		after.UpdatedAt = e.timestamp()
		if err := tx.UpdateTask(ctx, after); err != nil {
			return lookup(err, "task")
		}
		_, err = e.recorder.Record(ctx, tx, taskID, diffTask(before, after, in.Status != nil), actorID)
		return err
	})
	if err != nil {
		return models.TaskDetail{}, wrap(err)
	}

	e.publish(ctx, project, Event{Type: EventTaskUpdate, TaskID: taskID, Action: "updated", ActorID: actorID})
	e.notifyAssignee(project, after, before.AssignedTo, actorID)
	return e.taskDetail(ctx, after)
}

// UpdateTaskStatus moves a task along the guided workflow.
func (e *Engine) UpdateTaskStatus(ctx context.Context, actorID, projectID, taskID string, in UpdateStatusInput) (models.TaskDetail, error) {
	var task models.Task
	var project models.Project
	err := e.repo.WithinTx(ctx, func(tx Tx) error {
		acc, err := authorize(ctx, tx, actorID, projectID, ActionUpdateTaskStatus)
		if err != nil {
			return err
		}
		project = acc.project
		task, err = tx.GetTask(ctx, projectID, taskID)
		if err != nil {
			return lookup(err, "task")
		}
		if err := check(in); err != nil {
			return err
		}
		if err := checkTransition(task.Status, in.Status); err != nil {
			return err
		}

		from := task.Status
		task.Status = in.Status
		task.UpdatedAt = e.timestamp()
		if err := tx.UpdateTask(ctx, task); err != nil {
			return lookup(err, "task")
		}
		_, err = e.recorder.Record(ctx, tx, taskID, []Change{{
			Field: FieldStatus,
			Old:   display(string(from)),
			New:   display(string(in.Status)),
		}}, actorID)
		return err
	})
	if err != nil {
		return models.TaskDetail{}, wrap(err)
	}

	e.publish(ctx, project, Event{
		Type: EventTaskUpdate, TaskID: taskID, Action: "status_changed", ActorID: actorID,
		Payload: map[string]any{"status": in.Status},
	})
	return e.taskDetail(ctx, task)
}

// DeleteTask removes a task that has no subtasks. PM and LEADER only.
func (e *Engine) DeleteTask(ctx context.Context, actorID, projectID, taskID string) error {
	var project models.Project
	err := e.repo.WithinTx(ctx, func(tx Tx) error {
		acc, err := authorize(ctx, tx, actorID, projectID, ActionDeleteTask)
		if err != nil {
			return err
		}
		project = acc.project
		task, err := tx.GetTask(ctx, projectID, taskID)
		if err != nil {
			return lookup(err, "task")
		}
		if err := checkDeletable(ctx, tx, task); err != nil {
			return err
		}
		if err := tx.DeleteTask(ctx, projectID, taskID); err != nil {
			return lookup(err, "task")
		}
		return nil
	})
	if err != nil {
		return wrap(err)
	}

	e.logger.Info("task deleted",
		slog.String("project_id", projectID), slog.String("task_id", taskID), slog.String("actor_id", actorID))
	e.publish(ctx, project, Event{Type: EventTaskUpdate, TaskID: taskID, Action: "deleted", ActorID: actorID})
	return nil
}

// ListTaskHistory returns the audit trail in the order it was written.
func (e *Engine) ListTaskHistory(ctx context.Context, actorID, projectID, taskID string) ([]models.TaskHistory, error) {
	if _, err := authorize(ctx, e.repo, actorID, projectID, ActionViewTask); err != nil {
		return nil, err
	}
	if _, err := e.repo.GetTask(ctx, projectID, taskID); err != nil {
		return nil, lookup(err, "task")
	}
	rows, err := e.repo.ListHistory(ctx, taskID)
	if err != nil {
		return nil, Internal(err)
	}
	if rows == nil {
		rows = []models.TaskHistory{}
	}
	return rows, nil
}

func (e *Engine) AddComment(ctx context.Context, actorID, projectID, taskID string, in AddCommentInput) (models.TaskComment, error) {
	in.Content = strings.TrimSpace(in.Content)
	var comment models.TaskComment
	var project models.Project
	err := e.repo.WithinTx(ctx, func(tx Tx) error {
		acc, err := authorize(ctx, tx, actorID, projectID, ActionComment)
		if err != nil {
			return err
		}
		project = acc.project
		if _, err := tx.GetTask(ctx, projectID, taskID); err != nil {
			return lookup(err, "task")
		}
		if err := check(in); err != nil {
			return err
		}
		comment = models.TaskComment{
			ID:        e.newID(),
			TaskID:    taskID,
			UserID:    actorID,
			Content:   in.Content,
			CreatedAt: e.timestamp(),
		}
		return tx.InsertComment(ctx, comment)
	})
	if err != nil {
		return models.TaskComment{}, wrap(err)
	}
	e.publish(ctx, project, Event{Type: EventTaskUpdate, TaskID: taskID, Action: "commented", ActorID: actorID})
	return comment, nil
}

// applyUpdate returns task with every supplied field of in applied.
func applyUpdate(task models.Task, in UpdateTaskInput) models.Task {
	if in.Title != nil {
		task.Title = *in.Title
	}
	if in.Description != nil {
		task.Description = util.TrimPtr(in.Description)
	}
	if in.Type != nil {
		task.Type = *in.Type
	}
	if in.Status != nil {
		task.Status = *in.Status
	}
	if in.Priority != nil {
		task.Priority = *in.Priority
	}
	if in.AssignedTo != nil {
		task.AssignedTo = util.TrimPtr(in.AssignedTo)
	}
	if in.Progress != nil {
		task.Progress = *in.Progress
	}
	if in.EstimateHour != nil {
		task.EstimateHour = in.EstimateHour
	}
	if in.DueDate != nil {
		task.DueDate = util.TrimPtr(in.DueDate)
	}
	if in.ParentTaskID != nil {
		task.ParentTaskID = util.TrimPtr(in.ParentTaskID)
	}
	return task
}

// checkAssignee requires an existing user who participates in the project.
func checkAssignee(ctx context.Context, r Reader, project models.Project, userID string) error {
	if _, err := r.GetUser(ctx, userID); err != nil {
		if errors.Is(err, ErrNoRecord) {
			return Invalid("assigned_to", "assigned user not found")
		}
		return Internal(err)
	}
	role, err := RoleOf(ctx, r, project, userID)
	if err != nil {
		return err
	}
	if role == models.RoleNone {
		return Invalid("assigned_to", "assigned user is not a member of this project")
	}
	return nil
}

// fieldErrors gathers validation failures from independent checks so they
// are reported together. The first non-validation failure wins.
type fieldErrors struct {
	fields []FieldError
	err    error
}

func (c *fieldErrors) add(err error) {
	if err == nil {
		return
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == KindValidation {
		c.fields = append(c.fields, e.Fields...)
		return
	}
	if c.err == nil {
		c.err = err
	}
}

func (c *fieldErrors) result() error {
	if c.err != nil {
		return c.err
	}
	if len(c.fields) > 0 {
		return InvalidFields(c.fields)
	}
	return nil
}

func (e *Engine) notifyAssignee(project models.Project, task models.Task, previous *string, actorID string) {
	if task.AssignedTo == nil || *task.AssignedTo == actorID {
		return
	}
	if previous != nil && *previous == *task.AssignedTo {
		return
	}
	e.events.Publish([]string{*task.AssignedTo}, Event{
		ID: e.newID(), Type: EventTaskAssigned, ProjectID: project.ID, TaskID: task.ID,
		Action: "assigned", ActorID: actorID,
		Payload: map[string]any{"title": task.Title},
	})
}

func (e *Engine) taskDetail(ctx context.Context, task models.Task) (models.TaskDetail, error) {
	detail := models.TaskDetail{Task: task, Subtasks: []models.Task{}, Comments: []models.TaskComment{}}
	if task.ParentTaskID != nil {
		parent, err := e.repo.GetTask(ctx, task.ProjectID, *task.ParentTaskID)
		switch {
		case err == nil:
			detail.Parent = &parent
		case !errors.Is(err, ErrNoRecord):
			return models.TaskDetail{}, Internal(err)
		}
	}
	subtasks, err := e.repo.ListSubtasks(ctx, task.ID)
	if err != nil {
		return models.TaskDetail{}, Internal(err)
	}
	if subtasks != nil {
		detail.Subtasks = subtasks
	}
	comments, err := e.repo.ListComments(ctx, task.ID)
	if err != nil {
		return models.TaskDetail{}, Internal(err)
	}
	if comments != nil {
		detail.Comments = comments
	}
	return detail, nil
}
