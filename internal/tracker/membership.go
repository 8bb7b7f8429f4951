package tracker

import (
	"context"
	"errors"

	"tracker/internal/models"
)

// RoleOf resolves userID's effective role in project. The PM is derived from
// project.PMID and never read from a membership row. Nothing is cached.
func RoleOf(ctx context.Context, r Reader, project models.Project, userID string) (models.Role, error) {
	if userID == "" {
		return models.RoleNone, nil
	}
	if project.PMID == userID {
		return models.RolePM, nil
	}
	m, err := r.GetMember(ctx, project.ID, userID)
	if errors.Is(err, ErrNoRecord) {
		return models.RoleNone, nil
	}
	if err != nil {
		return models.RoleNone, Internal(err)
	}
	switch m.Role {
	case models.RoleLeader, models.RoleMember:
		return m.Role, nil
	case models.RolePM, models.RoleNone:
		return models.RoleNone, nil
	}
	return models.RoleNone, nil
}

// access is a resolved project plus the actor's role in it.
type access struct {
	project models.Project
	role    models.Role
}

// authorize loads the project (NotFound first), resolves the actor's role and
// checks it against the policy for action.
func authorize(ctx context.Context, r Reader, actorID, projectID string, action Action) (access, error) {
	project, err := r.GetProject(ctx, projectID)
	if err != nil {
		return access{}, lookup(err, "project")
	}
	role, err := RoleOf(ctx, r, project, actorID)
	if err != nil {
		return access{}, err
	}
	if !Allowed(role, action) {
		return access{}, Forbidden()
	}
	return access{project: project, role: role}, nil
}
