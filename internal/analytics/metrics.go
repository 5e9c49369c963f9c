package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"pulseboard/internal/domain"
	"pulseboard/internal/repo"
)

// ProjectSummary counts projects in scope created within the date filter.
type ProjectSummary struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Overdue   int `json:"overdue"`
	OnTrack   int `json:"on_track"`
}

// TaskSummary is the status/priority/overdue breakdown of tasks in scope.
type TaskSummary struct {
	Total                  int            `json:"total"`
	ByStatus               map[string]int `json:"by_status"`
	Overdue                int            `json:"overdue"`
	HighPriority           int            `json:"high_priority"`
	CompletionRate         int            `json:"completion_rate"`
	AverageCompletionHours int            `json:"average_completion_hours"`
}

// UserSummary aggregates over users; only privileged callers receive it.
type UserSummary struct {
	TotalUsers       int            `json:"total_users"`
	ActiveLast7Days  int            `json:"active_last_7_days"`
	RoleDistribution map[string]int `json:"role_distribution"`
}

// PersonalSummary is the caller-only variant for non-privileged roles.
type PersonalSummary struct {
	AssignedTasks  int `json:"assigned_tasks"`
	ActiveProjects int `json:"active_projects"`
	CompletionRate int `json:"completion_rate"`
}

// TimeSummary aggregates logged hours in scope within the date filter.
type TimeSummary struct {
	TotalHours      float64 `json:"total_hours"`
	BillableHours   float64 `json:"billable_hours"`
	BillablePercent float64 `json:"billable_percent"`
	EntryCount      int     `json:"entry_count"`
	AvgHoursPerDay  float64 `json:"avg_hours_per_day"`
}

// ProjectCount is one top-project row in the task distribution.
type ProjectCount struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Count     int    `json:"count"`
}

// TaskDistribution is the chart-oriented grouping of tasks in scope.
type TaskDistribution struct {
	ByStatus   map[string]int `json:"by_status"`
	ByPriority map[string]int `json:"by_priority"`
	ByProject  []ProjectCount `json:"by_project"`
}

// ProjectProgressEntry is the per-project completion row for active and
// planning projects.
type ProjectProgressEntry struct {
	ProjectID      string `json:"project_id"`
	Name           string `json:"name"`
	TotalTasks     int    `json:"total_tasks"`
	CompletedTasks int    `json:"completed_tasks"`
	Progress       int    `json:"progress"`
	OverdueTasks   int    `json:"overdue_tasks"`
	IsOverdue      bool   `json:"is_overdue"`
}

const topProjectCount = 5
const progressProjectCap = 10

// ProjectMetrics counts projects in scope created within the filter window.
func ProjectMetrics(ctx context.Context, store Store, scope Scope, f DateFilter) (ProjectSummary, error) {
	var s ProjectSummary
	if scope.Empty() {
		return s, nil
	}
	projects, err := store.ListProjects(ctx, repo.ProjectFilters{
		IDs:          scope.ProjectIDs,
		CreatedAfter: f.CutoffRFC3339(),
	})
	if err != nil {
		return s, err
	}
	for _, p := range projects {
		s.Total++
		switch p.Status {
		case domain.ProjectActive:
			s.Active++
		case domain.ProjectCompleted:
			s.Completed++
		}
		if p.OverdueAt(f.Now) {
			s.Overdue++
		}
	}
	// Overdue is counted over the whole window, not just active projects,
	// so the difference is clamped.
	s.OnTrack = s.Active - s.Overdue
	if s.OnTrack < 0 {
		s.OnTrack = 0
	}
	return s, nil
}

// TaskMetrics breaks down tasks in scope created within the filter window.
func TaskMetrics(ctx context.Context, store Store, scope Scope, f DateFilter) (TaskSummary, error) {
	s := TaskSummary{ByStatus: map[string]int{}}
	if scope.Empty() {
		return s, nil
	}
	tasks, err := store.ListTasks(ctx, repo.TaskFilters{
		ProjectIDs:   scope.ProjectIDs,
		CreatedAfter: f.CutoffRFC3339(),
	})
	if err != nil {
		return s, err
	}
	summarizeTasks(&s, tasks, f.Now)
	return s, nil
}

func summarizeTasks(s *TaskSummary, tasks []domain.Task, now time.Time) {
	var completionHours float64
	var completedWithHours int
	for _, t := range tasks {
		s.Total++
		s.ByStatus[t.Status]++
		if t.OverdueAt(now) {
			s.Overdue++
		}
		if t.HighPriority() {
			s.HighPriority++
		}
		if t.Status == domain.TaskDone && t.ActualHours != nil {
			completionHours += *t.ActualHours
			completedWithHours++
		}
	}
	s.CompletionRate = ratePercent(s.ByStatus[domain.TaskDone], s.Total)
	if completedWithHours > 0 {
		s.AverageCompletionHours = int(math.Round(completionHours / float64(completedWithHours)))
	}
}

// TeamUserMetrics aggregates the user population; reserved for admin and
// manager callers.
func TeamUserMetrics(ctx context.Context, store Store, now time.Time) (UserSummary, error) {
	s := UserSummary{RoleDistribution: map[string]int{}}
	users, err := store.ListUsers(ctx)
	if err != nil {
		return s, err
	}
	activeCutoff := now.AddDate(0, 0, -7)
	for _, u := range users {
		s.TotalUsers++
		s.RoleDistribution[string(u.Role)]++
		if u.LastLoginAt != nil {
			if login, err := time.Parse(time.RFC3339, *u.LastLoginAt); err == nil && !login.Before(activeCutoff) {
				s.ActiveLast7Days++
			}
		}
	}
	return s, nil
}

// PersonalMetrics computes caller-only figures for restricted roles. Other
// users' data is never consulted.
func PersonalMetrics(ctx context.Context, store Store, callerID string, scope Scope, f DateFilter) (PersonalSummary, error) {
	var s PersonalSummary
	if scope.Empty() {
		return s, nil
	}
	tasks, err := store.ListTasks(ctx, repo.TaskFilters{
		ProjectIDs:   scope.ProjectIDs,
		AssignedTo:   callerID,
		CreatedAfter: f.CutoffRFC3339(),
	})
	if err != nil {
		return s, err
	}
	done := 0
	for _, t := range tasks {
		s.AssignedTasks++
		if t.Status == domain.TaskDone {
			done++
		}
	}
	s.CompletionRate = ratePercent(done, s.AssignedTasks)
	active, err := store.ListProjects(ctx, repo.ProjectFilters{
		IDs:      scope.ProjectIDs,
		StatusIn: []string{domain.ProjectActive},
	})
	if err != nil {
		return s, err
	}
	s.ActiveProjects = len(active)
	return s, nil
}

// TimeMetrics aggregates hours logged in scope within the filter window.
func TimeMetrics(ctx context.Context, store Store, scope Scope, f DateFilter) (TimeSummary, error) {
	var s TimeSummary
	if scope.Empty() {
		return s, nil
	}
	entries, err := store.ListTimeEntries(ctx, repo.TimeEntryFilters{
		ProjectIDs:  scope.ProjectIDs,
		WorkedAfter: f.CutoffDate(),
	})
	if err != nil {
		return s, err
	}
	for _, e := range entries {
		s.EntryCount++
		s.TotalHours += e.HoursSpent
		if e.Billable {
			s.BillableHours += e.HoursSpent
		}
	}
	if s.TotalHours > 0 {
		s.BillablePercent = round2(s.BillableHours / s.TotalHours * 100)
	}
	if days := f.DaysBetween(); days > 0 {
		s.AvgHoursPerDay = round2(s.TotalHours / float64(days))
	}
	return s, nil
}

// Distribution groups tasks in scope by status, priority, and owning project
// (top five by count, ties kept in query order).
func Distribution(ctx context.Context, store Store, scope Scope, f DateFilter) (TaskDistribution, error) {
	d := TaskDistribution{
		ByStatus:   map[string]int{},
		ByPriority: map[string]int{},
		ByProject:  []ProjectCount{},
	}
	if scope.Empty() {
		return d, nil
	}
	tasks, err := store.ListTasks(ctx, repo.TaskFilters{
		ProjectIDs:   scope.ProjectIDs,
		CreatedAfter: f.CutoffRFC3339(),
	})
	if err != nil {
		return d, err
	}
	projects, err := store.ListProjects(ctx, repo.ProjectFilters{IDs: scope.ProjectIDs})
	if err != nil {
		return d, err
	}
	names := make(map[string]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}
	counts := map[string]int{}
	var order []string
	for _, t := range tasks {
		d.ByStatus[t.Status]++
		d.ByPriority[t.Priority]++
		if _, seen := counts[t.ProjectID]; !seen {
			order = append(order, t.ProjectID)
		}
		counts[t.ProjectID]++
	}
	for _, id := range order {
		d.ByProject = append(d.ByProject, ProjectCount{ProjectID: id, Name: names[id], Count: counts[id]})
	}
	sort.SliceStable(d.ByProject, func(i, j int) bool { return d.ByProject[i].Count > d.ByProject[j].Count })
	if len(d.ByProject) > topProjectCount {
		d.ByProject = d.ByProject[:topProjectCount]
	}
	return d, nil
}

// ProjectProgress computes per-project completion for active and planning
// projects in scope, capped to the ten most recently created.
func ProjectProgress(ctx context.Context, store Store, scope Scope, now time.Time) ([]ProjectProgressEntry, error) {
	if scope.Empty() {
		return []ProjectProgressEntry{}, nil
	}
	projects, err := store.ListProjects(ctx, repo.ProjectFilters{
		IDs:      scope.ProjectIDs,
		StatusIn: []string{domain.ProjectActive, domain.ProjectPlanning},
		Limit:    progressProjectCap,
	})
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return []ProjectProgressEntry{}, nil
	}
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	tasks, err := store.ListTasks(ctx, repo.TaskFilters{ProjectIDs: ids})
	if err != nil {
		return nil, err
	}
	type tally struct{ total, done, overdue int }
	tallies := map[string]*tally{}
	for _, t := range tasks {
		c := tallies[t.ProjectID]
		if c == nil {
			c = &tally{}
			tallies[t.ProjectID] = c
		}
		c.total++
		if t.Status == domain.TaskDone {
			c.done++
		}
		if t.OverdueAt(now) {
			c.overdue++
		}
	}
	res := make([]ProjectProgressEntry, 0, len(projects))
	for _, p := range projects {
		entry := ProjectProgressEntry{
			ProjectID: p.ID,
			Name:      p.Name,
			IsOverdue: p.OverdueAt(now),
		}
		if c := tallies[p.ID]; c != nil {
			entry.TotalTasks = c.total
			entry.CompletedTasks = c.done
			entry.OverdueTasks = c.overdue
			entry.Progress = ratePercent(c.done, c.total)
		}
		res = append(res, entry)
	}
	return res, nil
}

// ratePercent is the zero-guarded completion-rate formula: round(n/total*100),
// 0 when the set is empty.
func ratePercent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) / float64(total) * 100))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
