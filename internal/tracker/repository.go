package tracker

import (
	"context"

	"tracker/internal/models"
)

// ProjectFilter narrows a project listing to one user's projects.
type ProjectFilter struct {
	UserID string
	Status *models.ProjectStatus
	Search string
	Limit  int
	Offset int
}

// TaskFilter narrows a task listing inside one project.
type TaskFilter struct {
	ProjectID  string
	Status     *models.TaskStatus
	Priority   *models.TaskPriority
	Type       *models.TaskType
	AssignedTo *string
	Search     string
	Limit      int
	Offset     int
}

// Reader is the read side of the repository. Missing rows yield ErrNoRecord.
type Reader interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	FindUsersByEmail(ctx context.Context, emails []string) ([]models.User, error)

	GetProject(ctx context.Context, id string) (models.Project, error)
	ListProjects(ctx context.Context, f ProjectFilter) ([]models.Project, int, error)
	GetMember(ctx context.Context, projectID, userID string) (models.ProjectMember, error)
	ListMembers(ctx context.Context, projectID string) ([]models.ProjectMember, error)

	// GetTask only matches a task owned by projectID.
	GetTask(ctx context.Context, projectID, taskID string) (models.Task, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, int, error)
	ListSubtasks(ctx context.Context, taskID string) ([]models.Task, error)
	CountSubtasks(ctx context.Context, taskID string) (int, error)
	ListHistory(ctx context.Context, taskID string) ([]models.TaskHistory, error)
	ListComments(ctx context.Context, taskID string) ([]models.TaskComment, error)
	GetReport(ctx context.Context, taskID, reportID string) (models.TaskReport, error)
	ListReports(ctx context.Context, taskID string) ([]models.TaskReport, error)
}

// Tx is a repository handle bound to one transaction.
type Tx interface {
	Reader

	UpsertUser(ctx context.Context, u models.User) error

	InsertProject(ctx context.Context, p models.Project) error
	UpdateProject(ctx context.Context, p models.Project) error
	// DeleteProject removes the project and, by cascade, everything it owns.
	DeleteProject(ctx context.Context, id string) error

	InsertMember(ctx context.Context, m models.ProjectMember) error
	UpdateMemberRole(ctx context.Context, projectID, userID string, role models.Role) error
	DeleteMember(ctx context.Context, projectID, userID string) error

	InsertTask(ctx context.Context, t models.Task) error
	UpdateTask(ctx context.Context, t models.Task) error
	DeleteTask(ctx context.Context, projectID, taskID string) error

	// InsertHistory stores one batch. A batch id that already exists is an error.
	InsertHistory(ctx context.Context, batchID string, rows []models.TaskHistory) error
	InsertComment(ctx context.Context, c models.TaskComment) error
	InsertReport(ctx context.Context, r models.TaskReport) error
	UpdateReport(ctx context.Context, r models.TaskReport) error
}

// Repository is the transactional store the engine runs against.
type Repository interface {
	Reader
	// WithinTx commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
