package repo

import (
	"context"
	"database/sql"
	"strings"

	"pulseboard/internal/domain"
)

// TimeEntryFilters narrows time-entry listings. Project scoping joins through
// the owning task.
type TimeEntryFilters struct {
	ProjectIDs  []string
	UserID      string
	TaskID      string
	WorkedAfter string
	Limit       int
}

func (r Repo) InsertTimeEntry(ctx context.Context, tx *sql.Tx, e domain.TimeEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO time_entries(id,task_id,user_id,hours_spent,billable,work_date,created_at) VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.TaskID, e.UserID, e.HoursSpent, boolToInt(e.Billable), e.WorkDate, e.CreatedAt)
	return err
}

func (r Repo) ListTimeEntries(ctx context.Context, f TimeEntryFilters) ([]domain.TimeEntry, error) {
	var clauses []string
	var args []any
	if len(f.ProjectIDs) > 0 {
		clauses = append(clauses, "t.project_id IN ("+placeholders(len(f.ProjectIDs))+")")
		args = append(args, toAnySlice(f.ProjectIDs)...)
	}
	if f.UserID != "" {
		clauses = append(clauses, "e.user_id=?")
		args = append(args, f.UserID)
	}
	if f.TaskID != "" {
		clauses = append(clauses, "e.task_id=?")
		args = append(args, f.TaskID)
	}
	if f.WorkedAfter != "" {
		clauses = append(clauses, "e.work_date >= ?")
		args = append(args, f.WorkedAfter)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT e.id,e.task_id,e.user_id,e.hours_spent,e.billable,e.work_date,e.created_at
FROM time_entries e JOIN tasks t ON t.id=e.task_id ` + where + ` ORDER BY e.work_date DESC, e.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TimeEntry
	for rows.Next() {
		var e domain.TimeEntry
		var billable int
		if err := rows.Scan(&e.ID, &e.TaskID, &e.UserID, &e.HoursSpent, &billable, &e.WorkDate, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Billable = billable != 0
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO comments(id,task_id,user_id,content,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.TaskID, c.UserID, c.Content, c.CreatedAt)
	return err
}

// ListComments returns the comments on one task, oldest first.
func (r Repo) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,user_id,content,created_at FROM comments WHERE task_id=? ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.UserID, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
