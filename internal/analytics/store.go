package analytics

import (
	"context"

	"pulseboard/internal/domain"
	"pulseboard/internal/repo"
)

// Store is the read-only persistence surface the analytics layer consumes.
// repo.Repo satisfies it; tests substitute an in-memory fake.
type Store interface {
	ListProjects(ctx context.Context, f repo.ProjectFilters) ([]domain.Project, error)
	ListProjectIDs(ctx context.Context) ([]string, error)
	MemberProjectIDs(ctx context.Context, userID string) ([]string, error)
	ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error)
	ListTimeEntries(ctx context.Context, f repo.TimeEntryFilters) ([]domain.TimeEntry, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
	GetProject(ctx context.Context, id string) (domain.Project, error)
	ListRecentEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error)
	ListMembers(ctx context.Context, projectID string) ([]domain.Membership, error)
	CountEvents(ctx context.Context, projectIDs []string) (int, error)
}

var _ Store = repo.Repo{}
