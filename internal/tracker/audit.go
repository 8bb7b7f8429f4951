package tracker

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"tracker/internal/models"
)

// Tracked task fields. Only these produce history rows.
const (
	FieldTitle      = "title"
	FieldStatus     = "status"
	FieldPriority   = "priority"
	FieldAssignedTo = "assigned_to"
	FieldDueDate    = "due_date"
	FieldProgress   = "progress"
)

// Change is one audited field transition rendered as display strings.
type Change struct {
	Field string
	Old   *string
	New   *string
}

// Recorder appends immutable history batches.
type Recorder struct {
	newID func() string
	now   func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{newID: uuid.NewString, now: time.Now}
}

// Record writes changes as one batch under a freshly minted batch id and
// returns that id. Nothing is written when changes is empty.
func (rec *Recorder) Record(ctx context.Context, tx Tx, taskID string, changes []Change, changedBy string) (string, error) {
	if len(changes) == 0 {
		return "", nil
	}
	batchID := rec.newID()
	at := rec.now().UTC()
	rows := make([]models.TaskHistory, 0, len(changes))
	for _, c := range changes {
		rows = append(rows, models.TaskHistory{
			ID:        rec.newID(),
			TaskID:    taskID,
			BatchID:   batchID,
			Field:     c.Field,
			OldValue:  c.Old,
			NewValue:  c.New,
			ChangedBy: changedBy,
			ChangedAt: at,
		})
	}
	if err := tx.InsertHistory(ctx, batchID, rows); err != nil {
		return "", err
	}
	return batchID, nil
}

// diffTask lists tracked fields that differ between before and after. A
// status that was explicitly set is always recorded, even when unchanged.
func diffTask(before, after models.Task, statusSet bool) []Change {
	var changes []Change
	add := func(field string, old, new *string) {
		if equalPtr(old, new) {
			return
		}
		changes = append(changes, Change{Field: field, Old: old, New: new})
	}

	add(FieldTitle, display(before.Title), display(after.Title))
	if statusSet || before.Status != after.Status {
		changes = append(changes, Change{
			Field: FieldStatus,
			Old:   display(string(before.Status)),
			New:   display(string(after.Status)),
		})
	}
	add(FieldPriority, display(string(before.Priority)), display(string(after.Priority)))
	add(FieldAssignedTo, before.AssignedTo, after.AssignedTo)
	add(FieldDueDate, before.DueDate, after.DueDate)
	add(FieldProgress, display(strconv.Itoa(before.Progress)), display(strconv.Itoa(after.Progress)))
	return changes
}

func display(s string) *string { return &s }

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
