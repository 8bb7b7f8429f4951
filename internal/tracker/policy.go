package tracker

import "tracker/internal/models"

// Action is something an actor may attempt inside a project.
type Action int

const (
	ActionViewProject Action = iota
	ActionUpdateProject
	ActionDeleteProject
	ActionViewMembers
	ActionAddMember
	ActionRemoveMember
	ActionChangeMemberRole
	ActionCreateTask
	ActionViewTask
	ActionUpdateTask
	ActionUpdateTaskStatus
	ActionDeleteTask
	ActionComment
	ActionSubmitReport
	ActionReviewReport
)

func (a Action) String() string {
	switch a {
	case ActionViewProject:
		return "view_project"
	case ActionUpdateProject:
		return "update_project"
	case ActionDeleteProject:
		return "delete_project"
	case ActionViewMembers:
		return "view_members"
	case ActionAddMember:
		return "add_member"
	case ActionRemoveMember:
		return "remove_member"
	case ActionChangeMemberRole:
		return "change_member_role"
	case ActionCreateTask:
		return "create_task"
	case ActionViewTask:
		return "view_task"
	case ActionUpdateTask:
		return "update_task"
	case ActionUpdateTaskStatus:
		return "update_task_status"
	case ActionDeleteTask:
		return "delete_task"
	case ActionComment:
		return "comment"
	case ActionSubmitReport:
		return "submit_report"
	case ActionReviewReport:
		return "review_report"
	}
	return "unknown"
}

var (
	participants = []models.Role{models.RolePM, models.RoleLeader, models.RoleMember}
	managers     = []models.Role{models.RolePM, models.RoleLeader}
	owner        = []models.Role{models.RolePM}
)

// policy maps each action to the roles allowed to perform it.
var policy = map[Action][]models.Role{
	ActionViewProject:      participants,
	ActionUpdateProject:    owner,
	ActionDeleteProject:    owner,
	ActionViewMembers:      participants,
	ActionAddMember:        managers,
	ActionRemoveMember:     managers,
	ActionChangeMemberRole: owner,
	ActionCreateTask:       participants,
	ActionViewTask:         participants,
	ActionUpdateTask:       participants,
	ActionUpdateTaskStatus: participants,
	ActionDeleteTask:       managers,
	ActionComment:          participants,
	ActionSubmitReport:     participants,
	ActionReviewReport:     managers,
}

// Allowed reports whether role may perform action. Unknown actions and
// RoleNone are always denied.
func Allowed(role models.Role, action Action) bool {
	if !role.Valid() {
		return false
	}
	for _, r := range policy[action] {
		if r == role {
			return true
		}
	}
	return false
}
