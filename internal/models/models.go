package models

import "time"

// User mirrors an identity owned by the authentication provider.
type User struct {
	ID        string     `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Email     string     `json:"email" db:"email"`
	Status    UserStatus `json:"status" db:"status"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// UserRef is the compact user projection embedded in other payloads.
type UserRef struct {
	ID    string `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
}

// Project groups tasks under a single project manager.
type Project struct {
	ID          string        `json:"id" db:"id"`
	Name        string        `json:"name" db:"name"`
	Description *string       `json:"description" db:"description"`
	PMID        string        `json:"pm_id" db:"pm_id"`
	Status      ProjectStatus `json:"status" db:"status"`
	StartDate   *string       `json:"start_date" db:"start_date"`
	EndDate     *string       `json:"end_date" db:"end_date"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// ProjectDetail is the read projection of a project with its people.
type ProjectDetail struct {
	Project
	PM      *UserRef        `json:"pm"`
	Members []ProjectMember `json:"members"`
}

// ProjectMember is a stored membership row. The PM never has one.
type ProjectMember struct {
	ProjectID string    `json:"project_id" db:"project_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Role      Role      `json:"role" db:"role"`
	JoinedAt  time.Time `json:"joined_at" db:"joined_at"`
	User      *UserRef  `json:"user,omitempty" db:"-"`
}

// Task is a unit of work inside a project, optionally nested under a parent.
type Task struct {
	ID           string       `json:"id" db:"id"`
	ProjectID    string       `json:"project_id" db:"project_id"`
	Title        string       `json:"title" db:"title"`
	Description  *string      `json:"description" db:"description"`
	Type         TaskType     `json:"type" db:"type"`
	Status       TaskStatus   `json:"status" db:"status"`
	Priority     TaskPriority `json:"priority" db:"priority"`
	AssignedTo   *string      `json:"assigned_to" db:"assigned_to"`
	Reporter     string       `json:"reporter" db:"reporter"`
	Progress     int          `json:"progress" db:"progress"`
	EstimateHour *int         `json:"estimate_hour" db:"estimate_hour"`
	DueDate      *string      `json:"due_date" db:"due_date"`
	ParentTaskID *string      `json:"parent_task_id" db:"parent_task_id"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// TaskDetail is the read projection returned for a single task.
type TaskDetail struct {
	Task
	Parent   *Task         `json:"parent"`
	Subtasks []Task        `json:"subtasks"`
	Comments []TaskComment `json:"comments"`
}

// TaskHistory is one audited field change. Rows of one update share BatchID.
type TaskHistory struct {
	ID        string    `json:"id" db:"id"`
	TaskID    string    `json:"task_id" db:"task_id"`
	BatchID   string    `json:"batch_id" db:"batch_id"`
	Field     string    `json:"field" db:"field"`
	OldValue  *string   `json:"old_value" db:"old_value"`
	NewValue  *string   `json:"new_value" db:"new_value"`
	ChangedBy string    `json:"changed_by" db:"changed_by"`
	ChangedAt time.Time `json:"changed_at" db:"changed_at"`
}

// TaskComment is a free-form note left on a task.
type TaskComment struct {
	ID        string    `json:"id" db:"id"`
	TaskID    string    `json:"task_id" db:"task_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TaskReport is work-submission evidence attached to a task.
type TaskReport struct {
	ID          string       `json:"id" db:"id"`
	TaskID      string       `json:"task_id" db:"task_id"`
	SubmittedBy string       `json:"submitted_by" db:"submitted_by"`
	Content     string       `json:"content" db:"content"`
	Attachments []string     `json:"attachments" db:"-"`
	Status      ReportStatus `json:"status" db:"status"`
	ReviewedBy  *string      `json:"reviewed_by" db:"reviewed_by"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes the page count for total rows.
func NewPagination(total, page, limit int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Total: total, Page: page, Limit: limit, TotalPages: pages}
}
