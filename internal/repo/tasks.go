package repo

import (
	"context"
	"database/sql"
	"strings"

	"pulseboard/internal/domain"
)

// TaskFilters narrows task listings. Empty fields are ignored.
type TaskFilters struct {
	ProjectIDs   []string
	StatusIn     []string
	PriorityIn   []string
	AssignedTo   string
	CreatedAfter string
	UpdatedAfter string
	Limit        int
	// OrderByUpdated sorts by updated_at instead of created_at.
	OrderByUpdated bool
}

const taskColumns = `id,project_id,title,description,status,priority,assigned_to,created_by,due_date,actual_hours,created_at,updated_at`

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Title, nullable(t.Description), t.Status, t.Priority,
		nullableStringPtr(t.AssignedTo), t.CreatedBy, nullableStringPtr(t.DueDate), nullableFloatPtr(t.ActualHours),
		t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, status=?, priority=?, assigned_to=?, due_date=?, actual_hours=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), t.Status, t.Priority, nullableStringPtr(t.AssignedTo),
		nullableStringPtr(t.DueDate), nullableFloatPtr(t.ActualHours), t.UpdatedAt, t.ID)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTaskRow(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if len(f.ProjectIDs) > 0 {
		clauses = append(clauses, "project_id IN ("+placeholders(len(f.ProjectIDs))+")")
		args = append(args, toAnySlice(f.ProjectIDs)...)
	}
	if len(f.StatusIn) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(f.StatusIn))+")")
		args = append(args, toAnySlice(f.StatusIn)...)
	}
	if len(f.PriorityIn) > 0 {
		clauses = append(clauses, "priority IN ("+placeholders(len(f.PriorityIn))+")")
		args = append(args, toAnySlice(f.PriorityIn)...)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	if f.CreatedAfter != "" {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.CreatedAfter)
	}
	if f.UpdatedAfter != "" {
		clauses = append(clauses, "updated_at >= ?")
		args = append(args, f.UpdatedAfter)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	order := "ORDER BY created_at DESC, id DESC"
	if f.OrderByUpdated {
		order = "ORDER BY updated_at DESC, id DESC"
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ` + order
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTaskRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// CountTasksByStatus groups task counts per status inside the project set.
func (r Repo) CountTasksByStatus(ctx context.Context, projectIDs []string) (map[string]int, error) {
	query := `SELECT status, count(*) FROM tasks`
	var args []any
	if len(projectIDs) > 0 {
		query += ` WHERE project_id IN (` + placeholders(len(projectIDs)) + `)`
		args = toAnySlice(projectIDs)
	}
	query += ` GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

func scanTaskRow(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var description, assignedTo, dueDate sql.NullString
	var actualHours sql.NullFloat64
	err := scan(&t.ID, &t.ProjectID, &t.Title, &description, &t.Status, &t.Priority,
		&assignedTo, &t.CreatedBy, &dueDate, &actualHours, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	if assignedTo.Valid {
		t.AssignedTo = &assignedTo.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	if actualHours.Valid {
		v := actualHours.Float64
		t.ActualHours = &v
	}
	return t, nil
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
