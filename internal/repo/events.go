package repo

import (
	"context"
	"database/sql"
	"strings"

	"pulseboard/internal/domain"
)

// EventFilters narrows activity-event listings.
type EventFilters struct {
	ProjectIDs []string
	Type       string
	EntityKind string
	Limit      int
}

// ListRecentEvents returns events newest first.
func (r Repo) ListRecentEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if len(f.ProjectIDs) > 0 {
		clauses = append(clauses, "project_id IN ("+placeholders(len(f.ProjectIDs))+")")
		args = append(args, toAnySlice(f.ProjectIDs)...)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events ` + where + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var projectID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &projectID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if projectID.Valid {
			e.ProjectID = projectID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// CountEvents returns the number of events recorded for the project set.
func (r Repo) CountEvents(ctx context.Context, projectIDs []string) (int, error) {
	query := `SELECT count(*) FROM events`
	var args []any
	if len(projectIDs) > 0 {
		query += ` WHERE project_id IN (` + placeholders(len(projectIDs)) + `)`
		args = toAnySlice(projectIDs)
	}
	var n int
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}
