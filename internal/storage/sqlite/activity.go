package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"tracker/internal/models"
	"tracker/internal/tracker"
)

// InsertHistory stores a batch header and its rows. The header's primary key
// makes every batch id single use.
func (s queries) InsertHistory(ctx context.Context, batchID string, rows []models.TaskHistory) error {
	if len(rows) == 0 {
		return nil
	}
	first := rows[0]
	_, err := s.q.ExecContext(ctx, `INSERT INTO task_history_batches(batch_id, task_id, changed_by, changed_at) VALUES(?, ?, ?, ?)`,
		batchID, first.TaskID, first.ChangedBy, first.ChangedAt)
	if err != nil {
		return fmt.Errorf("insert history batch: %w", translate(err))
	}
	for i, h := range rows {
		_, err := s.q.ExecContext(ctx, `INSERT INTO task_histories(id, task_id, batch_id, seq, field, old_value, new_value, changed_by, changed_at)
            VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			h.ID, h.TaskID, batchID, i, h.Field, h.OldValue, h.NewValue, h.ChangedBy, h.ChangedAt)
		if err != nil {
			return fmt.Errorf("insert history: %w", translate(err))
		}
	}
	return nil
}

// ListHistory returns a task's audit rows in write order.
func (s queries) ListHistory(ctx context.Context, taskID string) ([]models.TaskHistory, error) {
	var rows []models.TaskHistory
	err := sqlx.SelectContext(ctx, s.q, &rows, `SELECT h.id, h.task_id, h.batch_id, h.field, h.old_value, h.new_value,
        h.changed_by, h.changed_at
        FROM task_histories h JOIN task_history_batches b ON b.batch_id = h.batch_id
        WHERE h.task_id = ? ORDER BY b.changed_at, b.rowid, h.seq`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return rows, nil
}

func (s queries) InsertComment(ctx context.Context, c models.TaskComment) error {
	_, err := sqlx.NamedExecContext(ctx, s.q, `INSERT INTO task_comments(id, task_id, user_id, content, created_at)
        VALUES(:id, :task_id, :user_id, :content, :created_at)`, c)
	if err != nil {
		return fmt.Errorf("insert comment: %w", translate(err))
	}
	return nil
}

// ListComments returns a task's comments, newest first.
func (s queries) ListComments(ctx context.Context, taskID string) ([]models.TaskComment, error) {
	var comments []models.TaskComment
	err := sqlx.SelectContext(ctx, s.q, &comments, `SELECT id, task_id, user_id, content, created_at
        FROM task_comments WHERE task_id = ? ORDER BY created_at DESC, rowid DESC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

type reportRow struct {
	ID          string              `db:"id"`
	TaskID      string              `db:"task_id"`
	SubmittedBy string              `db:"submitted_by"`
	Content     string              `db:"content"`
	Attachments string              `db:"attachments"`
	Status      models.ReportStatus `db:"status"`
	ReviewedBy  *string             `db:"reviewed_by"`
	CreatedAt   time.Time           `db:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at"`
}

func newReportRow(r models.TaskReport) (reportRow, error) {
	attachments := r.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	raw, err := json.Marshal(attachments)
	if err != nil {
		return reportRow{}, fmt.Errorf("encode attachments: %w", err)
	}
	return reportRow{
		ID: r.ID, TaskID: r.TaskID, SubmittedBy: r.SubmittedBy, Content: r.Content,
		Attachments: string(raw), Status: r.Status, ReviewedBy: r.ReviewedBy,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}, nil
}

func (row reportRow) report() (models.TaskReport, error) {
	var attachments []string
	if err := json.Unmarshal([]byte(row.Attachments), &attachments); err != nil {
		return models.TaskReport{}, fmt.Errorf("decode attachments: %w", err)
	}
	if attachments == nil {
		attachments = []string{}
	}
	return models.TaskReport{
		ID: row.ID, TaskID: row.TaskID, SubmittedBy: row.SubmittedBy, Content: row.Content,
		Attachments: attachments, Status: row.Status, ReviewedBy: row.ReviewedBy,
		CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}, nil
}

const reportColumns = `id, task_id, submitted_by, content, attachments, status, reviewed_by, created_at, updated_at`

func (s queries) InsertReport(ctx context.Context, r models.TaskReport) error {
	row, err := newReportRow(r)
	if err != nil {
		return err
	}
	_, err = sqlx.NamedExecContext(ctx, s.q, `INSERT INTO task_reports(`+reportColumns+`)
        VALUES(:id, :task_id, :submitted_by, :content, :attachments, :status, :reviewed_by, :created_at, :updated_at)`, row)
	if err != nil {
		return fmt.Errorf("insert report: %w", translate(err))
	}
	return nil
}

// UpdateReport stores a review decision.
func (s queries) UpdateReport(ctx context.Context, r models.TaskReport) error {
	res, err := s.q.ExecContext(ctx, `UPDATE task_reports SET status = ?, reviewed_by = ?, updated_at = ? WHERE id = ? AND task_id = ?`,
		r.Status, r.ReviewedBy, r.UpdatedAt, r.ID, r.TaskID)
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	return affected(res.RowsAffected())
}

func (s queries) GetReport(ctx context.Context, taskID, reportID string) (models.TaskReport, error) {
	var row reportRow
	err := sqlx.GetContext(ctx, s.q, &row, `SELECT `+reportColumns+` FROM task_reports WHERE id = ? AND task_id = ?`, reportID, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TaskReport{}, tracker.ErrNoRecord
	}
	if err != nil {
		return models.TaskReport{}, fmt.Errorf("get report: %w", err)
	}
	return row.report()
}

// ListReports returns a task's reports, newest first.
func (s queries) ListReports(ctx context.Context, taskID string) ([]models.TaskReport, error) {
	var rows []reportRow
	err := sqlx.SelectContext(ctx, s.q, &rows, `SELECT `+reportColumns+` FROM task_reports
        WHERE task_id = ? ORDER BY created_at DESC, rowid DESC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	reports := make([]models.TaskReport, 0, len(rows))
	for _, row := range rows {
		r, err := row.report()
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}
