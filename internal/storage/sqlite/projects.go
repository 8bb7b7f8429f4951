package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"tracker/internal/models"
	"tracker/internal/tracker"
)

const userColumns = `id, name, IFNULL(email, '') AS email, status, created_at, updated_at`

// GetUser fetches a single user by id.
func (s queries) GetUser(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := sqlx.GetContext(ctx, s.q, &u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, tracker.ErrNoRecord
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// FindUsersByEmail matches emails case-insensitively.
func (s queries) FindUsersByEmail(ctx context.Context, emails []string) ([]models.User, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+userColumns+` FROM users WHERE email IN (?)`, emails)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	var users []models.User
	if err := sqlx.SelectContext(ctx, s.q, &users, s.q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	return users, nil
}

// UpsertUser inserts or refreshes a mirrored identity. Status is only set on insert.
func (s queries) UpsertUser(ctx context.Context, u models.User) error {
	if u.Status == "" {
		u.Status = models.UserActive
	}
	_, err := s.q.ExecContext(ctx, `INSERT INTO users(id, name, email, status, created_at, updated_at)
        VALUES(?, ?, NULLIF(?, ''), ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email, updated_at = excluded.updated_at`,
		u.ID, u.Name, strings.TrimSpace(u.Email), u.Status, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert user: %w", translate(err))
	}
	return nil
}

const projectColumns = `id, name, description, pm_id, status, start_date, end_date, created_at, updated_at`

// GetProject fetches a single project by id.
func (s queries) GetProject(ctx context.Context, id string) (models.Project, error) {
	var p models.Project
	err := sqlx.GetContext(ctx, s.q, &p, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, tracker.ErrNoRecord
	}
	if err != nil {
		return models.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// ListProjects returns projects the user manages or belongs to, newest first.
func (s queries) ListProjects(ctx context.Context, f tracker.ProjectFilter) ([]models.Project, int, error) {
	where := []string{`(pm_id = ? OR EXISTS (SELECT 1 FROM project_members m WHERE m.project_id = projects.id AND m.user_id = ?))`}
	args := []any{f.UserID, f.UserID}
	if f.Status != nil {
		where = append(where, `status = ?`)
		args = append(args, *f.Status)
	}
	if f.Search != "" {
		pattern := likePattern(f.Search)
		where = append(where, `(name LIKE ? ESCAPE '\' OR IFNULL(description, '') LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := sqlx.GetContext(ctx, s.q, &total, `SELECT COUNT(*) FROM projects WHERE `+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}

	var projects []models.Project
	err := sqlx.SelectContext(ctx, s.q, &projects,
		`SELECT `+projectColumns+` FROM projects WHERE `+clause+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}
	return projects, total, nil
}

// InsertProject persists a new project.
func (s queries) InsertProject(ctx context.Context, p models.Project) error {
	_, err := sqlx.NamedExecContext(ctx, s.q, `INSERT INTO projects(`+projectColumns+`)
        VALUES(:id, :name, :description, :pm_id, :status, :start_date, :end_date, :created_at, :updated_at)`, p)
	if err != nil {
		return fmt.Errorf("insert project: %w", translate(err))
	}
	return nil
}

// UpdateProject writes every mutable column. pm_id is never touched.
func (s queries) UpdateProject(ctx context.Context, p models.Project) error {
	res, err := sqlx.NamedExecContext(ctx, s.q, `UPDATE projects SET name = :name, description = :description,
        status = :status, start_date = :start_date, end_date = :end_date, updated_at = :updated_at WHERE id = :id`, p)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return affected(res.RowsAffected())
}

// DeleteProject removes a project; foreign keys cascade to everything it owns.
func (s queries) DeleteProject(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return affected(res.RowsAffected())
}

type memberRow struct {
	ProjectID string      `db:"project_id"`
	UserID    string      `db:"user_id"`
	Role      models.Role `db:"role"`
	JoinedAt  time.Time   `db:"joined_at"`
	UserName  string      `db:"user_name"`
	UserEmail string      `db:"user_email"`
}

func (r memberRow) member() models.ProjectMember {
	return models.ProjectMember{
		ProjectID: r.ProjectID,
		UserID:    r.UserID,
		Role:      r.Role,
		JoinedAt:  r.JoinedAt,
		User:      &models.UserRef{ID: r.UserID, Name: r.UserName, Email: r.UserEmail},
	}
}

const memberSelect = `SELECT m.project_id, m.user_id, m.role, m.joined_at,
        IFNULL(u.name, '') AS user_name, IFNULL(u.email, '') AS user_email
        FROM project_members m LEFT JOIN users u ON u.id = m.user_id`

// GetMember fetches one membership row.
func (s queries) GetMember(ctx context.Context, projectID, userID string) (models.ProjectMember, error) {
	var row memberRow
	err := sqlx.GetContext(ctx, s.q, &row, memberSelect+` WHERE m.project_id = ? AND m.user_id = ?`, projectID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ProjectMember{}, tracker.ErrNoRecord
	}
	if err != nil {
		return models.ProjectMember{}, fmt.Errorf("get member: %w", err)
	}
	return row.member(), nil
}

// ListMembers returns the project's membership rows in join order.
func (s queries) ListMembers(ctx context.Context, projectID string) ([]models.ProjectMember, error) {
	var rows []memberRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, memberSelect+` WHERE m.project_id = ? ORDER BY m.joined_at, m.user_id`, projectID); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	members := make([]models.ProjectMember, 0, len(rows))
	for _, r := range rows {
		members = append(members, r.member())
	}
	return members, nil
}

// InsertMember adds a membership row; a second row for the same user fails
// with tracker.ErrDuplicate.
func (s queries) InsertMember(ctx context.Context, m models.ProjectMember) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO project_members(project_id, user_id, role, joined_at) VALUES(?, ?, ?, ?)`,
		m.ProjectID, m.UserID, m.Role, m.JoinedAt)
	if err != nil {
		return fmt.Errorf("insert member: %w", translate(err))
	}
	return nil
}

func (s queries) UpdateMemberRole(ctx context.Context, projectID, userID string, role models.Role) error {
	res, err := s.q.ExecContext(ctx, `UPDATE project_members SET role = ? WHERE project_id = ? AND user_id = ?`, role, projectID, userID)
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	return affected(res.RowsAffected())
}

func (s queries) DeleteMember(ctx context.Context, projectID, userID string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM project_members WHERE project_id = ? AND user_id = ?`, projectID, userID)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return affected(res.RowsAffected())
}
