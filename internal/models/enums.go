package models

// Role is the effective role of a user inside one project.
type Role string

const (
	RoleNone   Role = ""
	RolePM     Role = "PM"
	RoleLeader Role = "LEADER"
	RoleMember Role = "MEMBER"
)

// Valid reports whether r is a role a user can hold.
func (r Role) Valid() bool {
	switch r {
	case RolePM, RoleLeader, RoleMember:
		return true
	case RoleNone:
		return false
	}
	return false
}

// Assignable reports whether r can be stored on a membership row.
func (r Role) Assignable() bool {
	switch r {
	case RoleLeader, RoleMember:
		return true
	case RolePM, RoleNone:
		return false
	}
	return false
}

type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "ACTIVE"
	ProjectArchived ProjectStatus = "ARCHIVED"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectActive, ProjectArchived:
		return true
	}
	return false
}

type UserStatus string

const (
	UserActive  UserStatus = "ACTIVE"
	UserBlocked UserStatus = "BLOCKED"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserActive, UserBlocked:
		return true
	}
	return false
}

// TaskStatus is a position in the task workflow.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusReview     TaskStatus = "REVIEW"
	StatusDone       TaskStatus = "DONE"
	StatusReject     TaskStatus = "REJECT"
)

// TaskStatuses lists every status in workflow order.
var TaskStatuses = []TaskStatus{StatusTodo, StatusInProgress, StatusReview, StatusDone, StatusReject}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusReview, StatusDone, StatusReject:
		return true
	}
	return false
}

type TaskPriority string

const (
	PriorityLow      TaskPriority = "LOW"
	PriorityMedium   TaskPriority = "MEDIUM"
	PriorityHigh     TaskPriority = "HIGH"
	PriorityCritical TaskPriority = "CRITICAL"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type TaskType string

const (
	TypeTask  TaskType = "TASK"
	TypeBug   TaskType = "BUG"
	TypeStory TaskType = "STORY"
	TypeEpic  TaskType = "EPIC"
)

func (t TaskType) Valid() bool {
	switch t {
	case TypeTask, TypeBug, TypeStory, TypeEpic:
		return true
	}
	return false
}

type ReportStatus string

const (
	ReportPending  ReportStatus = "PENDING"
	ReportApproved ReportStatus = "APPROVED"
	ReportRejected ReportStatus = "REJECTED"
)

func (s ReportStatus) Valid() bool {
	switch s {
	case ReportPending, ReportApproved, ReportRejected:
		return true
	}
	return false
}
