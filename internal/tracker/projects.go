package tracker

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"tracker/internal/models"
	"tracker/internal/util"
)

type CreateProjectInput struct {
	Name          string   `json:"name" validate:"required,min=2,max=255"`
	Description   *string  `json:"description" validate:"omitempty,max=5000"`
	StartDate     *string  `json:"start_date" validate:"omitempty,len=0|datetime=2006-01-02"`
	EndDate       *string  `json:"end_date" validate:"omitempty,len=0|datetime=2006-01-02"`
	MemberUserIDs []string `json:"member_user_ids" validate:"omitempty,dive,uuid"`
	MemberEmails  []string `json:"member_emails" validate:"omitempty,dive,email"`
}

type UpdateProjectInput struct {
	Name        *string               `json:"name" validate:"omitempty,min=2,max=255"`
	Description *string               `json:"description" validate:"omitempty,max=5000"`
	Status      *models.ProjectStatus `json:"status" validate:"omitempty,enum"`
	StartDate   *string               `json:"start_date" validate:"omitempty,len=0|datetime=2006-01-02"`
	EndDate     *string               `json:"end_date" validate:"omitempty,len=0|datetime=2006-01-02"`
}

type ListProjectsInput struct {
	Status *models.ProjectStatus `json:"status" form:"status" validate:"omitempty,enum"`
	Search string                `json:"search" form:"search" validate:"max=255"`
	Page   int                   `json:"page" form:"page" validate:"min=0"`
	Limit  int                   `json:"limit" form:"limit" validate:"min=0,max=100"`
}

type AddMemberInput struct {
	UserID string       `json:"user_id" validate:"required,uuid"`
	Role   *models.Role `json:"role" validate:"omitempty,enum"`
}

type UpdateMemberRoleInput struct {
	Role models.Role `json:"role" validate:"required,enum"`
}

const (
	defaultProjectLimit = 10
	defaultTaskLimit    = 50
)

// CreateProject makes actorID the PM of a new ACTIVE project and adds the
// listed users as MEMBERs. Unknown ids and emails are skipped and logged.
func (e *Engine) CreateProject(ctx context.Context, actorID string, in CreateProjectInput) (models.ProjectDetail, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := merge(check(in), checkDateOrder(in.StartDate, in.EndDate)); err != nil {
		return models.ProjectDetail{}, err
	}

	memberIDs, err := e.resolveMembers(ctx, actorID, in.MemberUserIDs, in.MemberEmails)
	if err != nil {
		return models.ProjectDetail{}, err
	}

	now := e.timestamp()
	project := models.Project{
		ID:          e.newID(),
		Name:        in.Name,
		Description: util.TrimPtr(in.Description),
		PMID:        actorID,
		Status:      models.ProjectActive,
		StartDate:   util.TrimPtr(in.StartDate),
		EndDate:     util.TrimPtr(in.EndDate),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = e.repo.WithinTx(ctx, func(tx Tx) error {
		if err := tx.InsertProject(ctx, project); err != nil {
			return err
		}
		for _, uid := range memberIDs {
			m := models.ProjectMember{ProjectID: project.ID, UserID: uid, Role: models.RoleMember, JoinedAt: now}
			if err := tx.InsertMember(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.ProjectDetail{}, wrap(err)
	}

	e.logger.Info("project created",
		slog.String("project_id", project.ID), slog.String("pm_id", actorID), slog.Int("members", len(memberIDs)))
	e.publish(ctx, project, Event{Type: EventProjectUpdate, Action: "created", ActorID: actorID})
	return e.projectDetail(ctx, project)
}

// resolveMembers turns ids and emails into existing user ids, excluding the PM.
func (e *Engine) resolveMembers(ctx context.Context, pmID string, ids, emails []string) ([]string, error) {
	var out []string
	emails = util.Dedupe(emails)
	if len(emails) > 0 {
		users, err := e.repo.FindUsersByEmail(ctx, emails)
		if err != nil {
			return nil, Internal(err)
		}
		found := make(map[string]struct{}, len(users))
		for _, u := range users {
			found[strings.ToLower(u.Email)] = struct{}{}
			out = append(out, u.ID)
		}
		var missing []string
		for _, email := range emails {
			if _, ok := found[strings.ToLower(email)]; !ok {
				missing = append(missing, email)
			}
		}
		if len(missing) > 0 {
			e.logger.Warn("users not found for member emails", slog.Any("emails", missing))
		}
	}

	for _, id := range util.Dedupe(ids) {
		_, err := e.repo.GetUser(ctx, id)
		if errors.Is(err, ErrNoRecord) {
			e.logger.Warn("user not found for member id", slog.String("user_id", id))
			continue
		}
		if err != nil {
			return nil, Internal(err)
		}
		out = append(out, id)
	}

	members := make([]string, 0, len(out))
	for _, id := range util.Dedupe(out) {
		if id != pmID {
			members = append(members, id)
		}
	}
	return members, nil
}

// ListProjects returns projects where actorID is the PM or a member.
func (e *Engine) ListProjects(ctx context.Context, actorID string, in ListProjectsInput) ([]models.Project, models.Pagination, error) {
	if err := check(in); err != nil {
		return nil, models.Pagination{}, err
	}
	page, limit := pageOf(in.Page, in.Limit, defaultProjectLimit)
	projects, total, err := e.repo.ListProjects(ctx, ProjectFilter{
		UserID: actorID,
		Status: in.Status,
		Search: strings.TrimSpace(in.Search),
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, models.Pagination{}, Internal(err)
	}
	if projects == nil {
		projects = []models.Project{}
	}
	return projects, models.NewPagination(total, page, limit), nil
}

func (e *Engine) GetProject(ctx context.Context, actorID, projectID string) (models.ProjectDetail, error) {
	acc, err := authorize(ctx, e.repo, actorID, projectID, ActionViewProject)
	if err != nil {
		return models.ProjectDetail{}, err
	}
	return e.projectDetail(ctx, acc.project)
}

// UpdateProject changes project fields. PM only; the PM itself is immutable.
func (e *Engine) UpdateProject(ctx context.Context, actorID, projectID string, in UpdateProjectInput) (models.ProjectDetail, error) {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		in.Name = &name
	}
	var p models.Project
	err := e.repo.WithinTx(ctx, func(tx Tx) error {
		acc, err := authorize(ctx, tx, actorID, projectID, ActionUpdateProject)
		if err != nil {
			return err
		}
		p = acc.project
		if in.StartDate != nil {
			p.StartDate = util.TrimPtr(in.StartDate)
		}
		if in.EndDate != nil {
			p.EndDate = util.TrimPtr(in.EndDate)
		}
		if err := merge(check(in), checkDateOrder(p.StartDate, p.EndDate)); err != nil {
			return err
		}
		if in.Name != nil {
			p.Name = *in.Name
		}
		if in.Description != nil {
			p.Description = util.TrimPtr(in.Description)
		}
		if in.Status != nil {
			p.Status = *in.Status
		}
		p.UpdatedAt = e.timestamp()
		return tx.UpdateProject(ctx, p)
	})
	if err != nil {
		return models.ProjectDetail{}, lookup(err, "project")
	}
	e.publish(ctx, p, Event{Type: EventProjectUpdate, Action: "updated", ActorID: actorID})
	return e.projectDetail(ctx, p)
}

// DeleteProject removes the project. Members, tasks, histories, comments and
// reports go with it through the store's cascade.
func (e *Engine) DeleteProject(ctx context.Context, actorID, projectID string) error {
	var audience []string
	err := e.repo.WithinTx(ctx, func(tx Tx) error {
		acc, err := authorize(ctx, tx, actorID, projectID, ActionDeleteProject)
		if err != nil {
			return err
		}
		audience = e.audience(ctx, tx, acc.project)
		return tx.DeleteProject(ctx, projectID)
	})
	if err != nil {
		return lookup(err, "project")
	}
	e.logger.Info("project deleted", slog.String("project_id", projectID), slog.String("actor_id", actorID))
	e.events.Publish(audience, Event{
		ID: e.newID(), Type: EventProjectUpdate, ProjectID: projectID, Action: "deleted", ActorID: actorID,
	})
	return nil
}

func (e *Engine) ListMembers(ctx context.Context, actorID, projectID string) ([]models.ProjectMember, error) {
	if _, err := authorize(ctx, e.repo, actorID, projectID, ActionViewMembers); err != nil {
		return nil, err
	}
	members, err := e.repo.ListMembers(ctx, projectID)
	if err != nil {
		return nil, Internal(err)
	}
	if members == nil {
		members = []models.ProjectMember{}
	}
	return members, nil
}

// AddMember adds an existing user to the project. PM and LEADER only.
func (e *Engine) AddMember(ctx context.Context, actorID, projectID string, in AddMemberInput) (models.ProjectMember, error) {
	role := models.RoleMember
	var project models.Project
	err := e.repo.WithinTx(ctx, func(tx Tx) error {
		acc, err := authorize(ctx, tx, actorID, projectID, ActionAddMember)
		if err != nil {
			return err
		}
		project = acc.project
		if err := check(in); err != nil {
			return err
		}
		if in.Role != nil {
			role = *in.Role
		}
		if !role.Assignable() {
			return Invalid("role", "must be LEADER or MEMBER")
		}

		existing, err := RoleOf(ctx, tx, project, in.UserID)
		if err != nil {
			return err
		}
		if existing != models.RoleNone {
			return Invalid("user_id", "user is already a member of this project")
		}
		if _, err := tx.GetUser(ctx, in.UserID); err != nil {
			if errors.Is(err, ErrNoRecord) {
				return Invalid("user_id", "user not found")
			}
			return err
		}

		m := models.ProjectMember{ProjectID: projectID, UserID: in.UserID, Role: role, JoinedAt: e.timestamp()}
		if err := tx.InsertMember(ctx, m); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return Invalid("user_id", "user is already a member of this project")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return models.ProjectMember{}, wrap(err)
	}
	e.publish(ctx, project, Event{
		Type: EventProjectUpdate, Action: "member_added", ActorID: actorID,
		Payload: map[string]any{"user_id": in.UserID, "role": role},
	})
	return e.memberView(ctx, projectID, in.UserID)
}

// UpdateMemberRole switches a member between LEADER and MEMBER. PM only.
func (e *Engine) UpdateMemberRole(ctx context.Context, actorID, projectID, userID string, in UpdateMemberRoleInput) (models.ProjectMember, error) {
	var project models.Project
	err := e.repo.WithinTx(ctx, func(tx Tx) error {
		acc, err := authorize(ctx, tx, actorID, projectID, ActionChangeMemberRole)
		if err != nil {
			return err
		}
		project = acc.project
		if _, err := tx.GetMember(ctx, projectID, userID); err != nil {
			return lookup(err, "member")
		}
		if err := check(in); err != nil {
			return err
		}
		if !in.Role.Assignable() {
			return Invalid("role", "must be LEADER or MEMBER")
		}
		return tx.UpdateMemberRole(ctx, projectID, userID, in.Role)
	})
	if err != nil {
		return models.ProjectMember{}, lookup(err, "member")
	}
	e.publish(ctx, project, Event{
		Type: EventProjectUpdate, Action: "member_role_changed", ActorID: actorID,
		Payload: map[string]any{"user_id": userID, "role": in.Role},
	})
	return e.memberView(ctx, projectID, userID)
}

// RemoveMember deletes a membership row. PM and LEADER only; the PM has no
// row and cannot be removed.
func (e *Engine) RemoveMember(ctx context.Context, actorID, projectID, userID string) error {
	var audience []string
	err := e.repo.WithinTx(ctx, func(tx Tx) error {
		acc, err := authorize(ctx, tx, actorID, projectID, ActionRemoveMember)
		if err != nil {
			return err
		}
		if userID == acc.project.PMID {
			return Invalid("user_id", "the project manager cannot be removed")
		}
		if _, err := tx.GetMember(ctx, projectID, userID); err != nil {
			return lookup(err, "member")
		}
		audience = e.audience(ctx, tx, acc.project)
		return tx.DeleteMember(ctx, projectID, userID)
	})
	if err != nil {
		return lookup(err, "member")
	}
	e.events.Publish(audience, Event{
		ID: e.newID(), Type: EventProjectUpdate, ProjectID: projectID, Action: "member_removed", ActorID: actorID,
		Payload: map[string]any{"user_id": userID},
	})
	return nil
}

func (e *Engine) projectDetail(ctx context.Context, p models.Project) (models.ProjectDetail, error) {
	detail := models.ProjectDetail{Project: p, Members: []models.ProjectMember{}}
	pm, err := e.repo.GetUser(ctx, p.PMID)
	switch {
	case err == nil:
		detail.PM = &models.UserRef{ID: pm.ID, Name: pm.Name, Email: pm.Email}
	case !errors.Is(err, ErrNoRecord):
		return models.ProjectDetail{}, Internal(err)
	}
	members, err := e.repo.ListMembers(ctx, p.ID)
	if err != nil {
		return models.ProjectDetail{}, Internal(err)
	}
	if members != nil {
		detail.Members = members
	}
	return detail, nil
}

func (e *Engine) memberView(ctx context.Context, projectID, userID string) (models.ProjectMember, error) {
	m, err := e.repo.GetMember(ctx, projectID, userID)
	if err != nil {
		return models.ProjectMember{}, lookup(err, "member")
	}
	return m, nil
}

// pageOf applies listing defaults: page 1 and the given default limit.
func pageOf(page, limit, def int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = def
	}
	return page, limit
}
