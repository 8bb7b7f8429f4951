package tracker

import (
	"context"
	"strings"

	"tracker/internal/models"
)

type SubmitReportInput struct {
	Content     string   `json:"content" validate:"required,min=1,max=10000"`
	Attachments []string `json:"attachments" validate:"omitempty,max=20,dive,required,max=2048"`
}

type ReviewReportInput struct {
	Status models.ReportStatus `json:"status" validate:"required,enum"`
}

// SubmitReport attaches PENDING work evidence to a task. It never changes the
// task's status.
func (e *Engine) SubmitReport(ctx context.Context, actorID, projectID, taskID string, in SubmitReportInput) (models.TaskReport, error) {
	in.Content = strings.TrimSpace(in.Content)
	var report models.TaskReport
	var project models.Project
	err := e.repo.WithinTx(ctx, func(tx Tx) error {
		acc, err := authorize(ctx, tx, actorID, projectID, ActionSubmitReport)
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
		now := e.timestamp()
		report = models.TaskReport{
			ID:          e.newID(),
			TaskID:      taskID,
			SubmittedBy: actorID,
			Content:     in.Content,
			Attachments: in.Attachments,
			Status:      models.ReportPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if report.Attachments == nil {
			report.Attachments = []string{}
		}
		return tx.InsertReport(ctx, report)
	})
	if err != nil {
		return models.TaskReport{}, wrap(err)
	}
	e.publish(ctx, project, Event{Type: EventTaskUpdate, TaskID: taskID, Action: "report_submitted", ActorID: actorID})
	return report, nil
}

func (e *Engine) ListReports(ctx context.Context, actorID, projectID, taskID string) ([]models.TaskReport, error) {
	if _, err := authorize(ctx, e.repo, actorID, projectID, ActionViewTask); err != nil {
		return nil, err
	}
	if _, err := e.repo.GetTask(ctx, projectID, taskID); err != nil {
		return nil, lookup(err, "task")
	}
	reports, err := e.repo.ListReports(ctx, taskID)
	if err != nil {
		return nil, Internal(err)
	}
	if reports == nil {
		reports = []models.TaskReport{}
	}
	return reports, nil
}

// ReviewReport approves or rejects a PENDING report. PM and LEADER only.
func (e *Engine) ReviewReport(ctx context.Context, actorID, projectID, taskID, reportID string, in ReviewReportInput) (models.TaskReport, error) {
	var report models.TaskReport
	var project models.Project
	err := e.repo.WithinTx(ctx, func(tx Tx) error {
		acc, err := authorize(ctx, tx, actorID, projectID, ActionReviewReport)
		if err != nil {
			return err
		}
		project = acc.project
		if _, err := tx.GetTask(ctx, projectID, taskID); err != nil {
			return lookup(err, "task")
		}
		report, err = tx.GetReport(ctx, taskID, reportID)
		if err != nil {
			return lookup(err, "report")
		}
		if err := check(in); err != nil {
			return err
		}
		if in.Status == models.ReportPending {
			return Invalid("status", "must be APPROVED or REJECTED")
		}
		if report.Status != models.ReportPending {
			return Invalid("status", "report has already been reviewed")
		}
		report.Status = in.Status
		report.ReviewedBy = &actorID
		report.UpdatedAt = e.timestamp()
		return tx.UpdateReport(ctx, report)
	})
	if err != nil {
		return models.TaskReport{}, wrap(err)
	}
	e.publish(ctx, project, Event{
		Type: EventTaskUpdate, TaskID: taskID, Action: "report_reviewed", ActorID: actorID,
		Payload: map[string]any{"report_id": reportID, "status": in.Status},
	})
	return report, nil
}
