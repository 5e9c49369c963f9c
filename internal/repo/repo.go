package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"pulseboard/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// ProjectFilters narrows project listings. Empty fields are ignored.
type ProjectFilters struct {
	IDs          []string
	StatusIn     []string
	CreatedAfter string
	Limit        int
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,status,priority,start_date,end_date,created_by,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, p.Status, p.Priority, nullable(p.StartDate), nullableStringPtr(p.EndDate), p.CreatedBy, p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	var startDate, endDate sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,status,priority,start_date,end_date,created_by,created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.Status, &p.Priority, &startDate, &endDate, &p.CreatedBy, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if startDate.Valid {
		p.StartDate = startDate.String
	}
	if endDate.Valid {
		p.EndDate = &endDate.String
	}
	return p, nil
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	if len(f.IDs) > 0 {
		clauses = append(clauses, "id IN ("+placeholders(len(f.IDs))+")")
		args = append(args, toAnySlice(f.IDs)...)
	}
	if len(f.StatusIn) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(f.StatusIn))+")")
		args = append(args, toAnySlice(f.StatusIn)...)
	}
	if f.CreatedAfter != "" {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.CreatedAfter)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,name,status,priority,start_date,end_date,created_by,created_at FROM projects ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		var startDate, endDate sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &p.Status, &p.Priority, &startDate, &endDate, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		if startDate.Valid {
			p.StartDate = startDate.String
		}
		if endDate.Valid {
			p.EndDate = &endDate.String
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ListProjectIDs returns all project ids, newest first.
func (r Repo) ListProjectIDs(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, id string, status *string, endDate *string) error {
	var (
		fields []string
		args   []any
	)
	if status != nil {
		fields = append(fields, "status=?")
		args = append(args, *status)
	}
	if endDate != nil {
		fields = append(fields, "end_date=?")
		args = append(args, nullable(*endDate))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) AddMember(ctx context.Context, tx *sql.Tx, m domain.Membership) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO project_members(project_id,user_id,role,created_at) VALUES (?,?,?,?)`,
		m.ProjectID, m.UserID, string(m.Role), m.CreatedAt)
	return err
}

func (r Repo) RemoveMember(ctx context.Context, tx *sql.Tx, projectID, userID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MemberProjectIDs returns the ids of projects where the user holds a membership.
func (r Repo) MemberProjectIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id FROM project_members WHERE user_id=?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) ListMembers(ctx context.Context, projectID string) ([]domain.Membership, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id,user_id,role,created_at FROM project_members WHERE project_id=? ORDER BY created_at`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Membership
	for rows.Next() {
		var m domain.Membership
		var role string
		if err := rows.Scan(&m.ProjectID, &m.UserID, &role, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users(id,name,email,role,last_login_at,created_at) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Name, u.Email, string(u.Role), nullableStringPtr(u.LastLoginAt), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,name,email,role,last_login_at,created_at FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,name,email,role,last_login_at,created_at FROM users WHERE email=?`, email))
}

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var role string
	var lastLogin sql.NullString
	err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &lastLogin, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.Role = domain.Role(role)
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.String
	}
	return u, nil
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,email,role,last_login_at,created_at FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		var role string
		var lastLogin sql.NullString
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &role, &lastLogin, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Role = domain.Role(role)
		if lastLogin.Valid {
			u.LastLoginAt = &lastLogin.String
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// TouchLastLogin records a successful login timestamp.
func (r Repo) TouchLastLogin(ctx context.Context, userID, ts string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET last_login_at=? WHERE id=?`, ts, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- helpers ---

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
