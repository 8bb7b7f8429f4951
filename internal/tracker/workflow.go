package tracker

import "tracker/internal/models"

// NextStatuses lists the guided transitions out of from. DONE and REJECT are
// terminal; REJECT is only reachable through a plain update.
func NextStatuses(from models.TaskStatus) []models.TaskStatus {
	switch from {
	case models.StatusTodo:
		return []models.TaskStatus{models.StatusInProgress}
	case models.StatusInProgress:
		return []models.TaskStatus{models.StatusReview, models.StatusTodo}
	case models.StatusReview:
		return []models.TaskStatus{models.StatusDone, models.StatusInProgress}
	case models.StatusDone, models.StatusReject:
		return nil
	}
	return nil
}

// CanTransition reports whether the guided workflow allows from -> to.
// There are no self loops.
func CanTransition(from, to models.TaskStatus) bool {
	for _, next := range NextStatuses(from) {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to models.TaskStatus) error {
	if !to.Valid() {
		return Invalid("status", "unknown status %q", to)
	}
	if !CanTransition(from, to) {
		return Invalid("status", "cannot transition task from %s to %s", from, to)
	}
	return nil
}
