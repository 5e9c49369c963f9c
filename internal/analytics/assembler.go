package analytics

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"pulseboard/internal/domain"
	"pulseboard/internal/repo"
)

// DefaultTimeout bounds the fan-out/join of one report request.
const DefaultTimeout = 5 * time.Second

const defaultActivityLimit = 10

// Assembler orchestrates the aggregators for one report request. It holds no
// mutable state; every report is computed fresh.
type Assembler struct {
	Store         Store
	Now           func() time.Time
	Timeout       time.Duration
	ActivityLimit int
}

func NewAssembler(store Store) *Assembler {
	return &Assembler{
		Store:         store,
		Now:           time.Now,
		Timeout:       DefaultTimeout,
		ActivityLimit: defaultActivityLimit,
	}
}

// Request identifies the caller and narrows one report.
type Request struct {
	CallerID  string
	Role      domain.Role
	Range     string // symbolic day range; empty means default
	ProjectID string // optional project narrowing
}

type OverviewReport struct {
	GeneratedAt  string                 `json:"generated_at" format:"date-time"`
	RangeDays    int                    `json:"range_days"`
	Projects     ProjectSummary         `json:"projects"`
	Tasks        TaskSummary            `json:"tasks"`
	Time         TimeSummary            `json:"time"`
	Users        *UserSummary           `json:"users,omitempty"`
	Personal     *PersonalSummary       `json:"personal,omitempty"`
	Distribution TaskDistribution       `json:"distribution"`
	Progress     []ProjectProgressEntry `json:"progress"`
	Trend        []TrendPoint           `json:"trend"`
	Activity     []FeedEntry            `json:"activity"`
}

// MemberPerformance is one row of the team performance report.
type MemberPerformance struct {
	UserID         string  `json:"user_id"`
	Name           string  `json:"name"`
	Role           string  `json:"role"`
	AssignedTasks  int     `json:"assigned_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	CompletionRate int     `json:"completion_rate"`
	HoursLogged    float64 `json:"hours_logged"`
	Utilization    float64 `json:"utilization"`
}

type TeamReport struct {
	GeneratedAt string              `json:"generated_at" format:"date-time"`
	RangeDays   int                 `json:"range_days"`
	Users       UserSummary         `json:"users"`
	Members     []MemberPerformance `json:"members"`
}

type ProductivityReport struct {
	GeneratedAt string            `json:"generated_at" format:"date-time"`
	RangeDays   int               `json:"range_days"`
	Tasks       TaskSummary       `json:"tasks"`
	Trend       []TrendPoint      `json:"trend"`
	Allocation  []AllocationEntry `json:"allocation"`
}

type ProjectReport struct {
	GeneratedAt string               `json:"generated_at" format:"date-time"`
	RangeDays   int                  `json:"range_days"`
	Project     domain.Project       `json:"project"`
	Tasks       TaskSummary          `json:"tasks"`
	Time        TimeSummary          `json:"time"`
	Progress    ProjectProgressEntry `json:"progress"`
	MemberCount int                  `json:"member_count"`
	Activity    []FeedEntry          `json:"activity"`
}

type UserDashboard struct {
	GeneratedAt string           `json:"generated_at" format:"date-time"`
	RangeDays   int              `json:"range_days"`
	Personal    PersonalSummary  `json:"personal"`
	Tasks       TaskSummary      `json:"tasks"`
	Time        TimeSummary      `json:"time"`
	Activity    []FeedEntry      `json:"activity"`
}

type SystemReport struct {
	GeneratedAt string         `json:"generated_at" format:"date-time"`
	RangeDays   int            `json:"range_days"`
	Users       UserSummary    `json:"users"`
	Projects    ProjectSummary `json:"projects"`
	Tasks       TaskSummary    `json:"tasks"`
	Time        TimeSummary    `json:"time"`
	EventCount  int            `json:"event_count"`
}

func (a *Assembler) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *Assembler) timeout() time.Duration {
	if a.Timeout > 0 {
		return a.Timeout
	}
	return DefaultTimeout
}

func (a *Assembler) activityLimit() int {
	if a.ActivityLimit > 0 {
		return a.ActivityLimit
	}
	return defaultActivityLimit
}

// resolve validates the range and computes scope and filter; it runs before
// any aggregator work so range and access failures propagate unchanged.
func (a *Assembler) resolve(ctx context.Context, req Request) (Scope, DateFilter, error) {
	days, err := ParseRangeDays(req.Range)
	if err != nil {
		return Scope{}, DateFilter{}, err
	}
	f, err := NewDateFilter(days, a.now())
	if err != nil {
		return Scope{}, DateFilter{}, err
	}
	scope, err := ResolveScope(ctx, a.Store, req.CallerID, req.Role, req.ProjectID)
	if err != nil {
		return Scope{}, DateFilter{}, UnavailableError{Cause: AggregationError{Component: "scope", Cause: err}}
	}
	return scope, f, nil
}

// component tags an aggregator failure with its name for diagnostics.
func component(name string, fn func() error) func() error {
	return func() error {
		if err := fn(); err != nil {
			return AggregationError{Component: name, Cause: err}
		}
		return nil
	}
}

// Overview assembles the dashboard report. All aggregators run concurrently;
// the first failure cancels the rest and no partial data is returned.
func (a *Assembler) Overview(ctx context.Context, req Request) (*OverviewReport, error) {
	scope, f, err := a.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	rep := &OverviewReport{
		GeneratedAt: f.Now.Format(time.RFC3339),
		RangeDays:   f.RangeDays,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(component("projects", func() error {
		var err error
		rep.Projects, err = ProjectMetrics(gctx, a.Store, scope, f)
		return err
	}))
	g.Go(component("tasks", func() error {
		var err error
		rep.Tasks, err = TaskMetrics(gctx, a.Store, scope, f)
		return err
	}))
	g.Go(component("time", func() error {
		var err error
		rep.Time, err = TimeMetrics(gctx, a.Store, scope, f)
		return err
	}))
	if req.Role.Privileged() {
		g.Go(component("users", func() error {
			users, err := TeamUserMetrics(gctx, a.Store, f.Now)
			if err != nil {
				return err
			}
			rep.Users = &users
			return nil
		}))
	} else {
		g.Go(component("personal", func() error {
			personal, err := PersonalMetrics(gctx, a.Store, req.CallerID, scope, f)
			if err != nil {
				return err
			}
			rep.Personal = &personal
			return nil
		}))
	}
	g.Go(component("distribution", func() error {
		var err error
		rep.Distribution, err = Distribution(gctx, a.Store, scope, f)
		return err
	}))
	g.Go(component("progress", func() error {
		var err error
		rep.Progress, err = ProjectProgress(gctx, a.Store, scope, f.Now)
		return err
	}))
	g.Go(component("trend", func() error {
		var err error
		rep.Trend, err = CompletionTrend(gctx, a.Store, scope, f)
		return err
	}))
	g.Go(component("activity", func() error {
		var err error
		rep.Activity, err = RecentActivity(gctx, a.Store, scope, a.activityLimit())
		return err
	}))
	if err := g.Wait(); err != nil {
		return nil, UnavailableError{Cause: err}
	}
	return rep, nil
}

// TeamPerformance assembles per-member figures. The role gate fires before
// scope is consulted.
func (a *Assembler) TeamPerformance(ctx context.Context, req Request) (*TeamReport, error) {
	if !req.Role.Privileged() {
		return nil, AccessDeniedError{Report: "team", Role: req.Role}
	}
	scope, f, err := a.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	rep := &TeamReport{
		GeneratedAt: f.Now.Format(time.RFC3339),
		RangeDays:   f.RangeDays,
	}
	var (
		users   []domain.User
		tasks   []domain.Task
		entries []domain.TimeEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(component("users", func() error {
		var err error
		rep.Users, err = TeamUserMetrics(gctx, a.Store, f.Now)
		if err != nil {
			return err
		}
		users, err = a.Store.ListUsers(gctx)
		return err
	}))
	g.Go(component("tasks", func() error {
		if scope.Empty() {
			return nil
		}
		var err error
		tasks, err = a.Store.ListTasks(gctx, repo.TaskFilters{
			ProjectIDs:   scope.ProjectIDs,
			CreatedAfter: f.CutoffRFC3339(),
		})
		return err
	}))
	g.Go(component("time", func() error {
		if scope.Empty() {
			return nil
		}
		var err error
		entries, err = a.Store.ListTimeEntries(gctx, repo.TimeEntryFilters{
			ProjectIDs:  scope.ProjectIDs,
			WorkedAfter: f.CutoffDate(),
		})
		return err
	}))
	if err := g.Wait(); err != nil {
		return nil, UnavailableError{Cause: err}
	}
	rep.Members = memberPerformance(users, tasks, entries, f)
	return rep, nil
}

// memberPerformance joins task and time figures per user. Utilization is
// logged hours over an 8-hour weekday baseline across the range.
func memberPerformance(users []domain.User, tasks []domain.Task, entries []domain.TimeEntry, f DateFilter) []MemberPerformance {
	expected := float64(weekdaysBetween(f.Cutoff, f.Now)) * 8
	assigned := map[string]int{}
	completed := map[string]int{}
	for _, t := range tasks {
		if t.AssignedTo == nil {
			continue
		}
		assigned[*t.AssignedTo]++
		if t.Status == domain.TaskDone {
			completed[*t.AssignedTo]++
		}
	}
	hours := map[string]float64{}
	for _, e := range entries {
		hours[e.UserID] += e.HoursSpent
	}
	res := make([]MemberPerformance, 0, len(users))
	for _, u := range users {
		m := MemberPerformance{
			UserID:         u.ID,
			Name:           u.Name,
			Role:           string(u.Role),
			AssignedTasks:  assigned[u.ID],
			CompletedTasks: completed[u.ID],
			HoursLogged:    round2(hours[u.ID]),
		}
		m.CompletionRate = ratePercent(m.CompletedTasks, m.AssignedTasks)
		if expected > 0 {
			m.Utilization = round2(hours[u.ID] / expected * 100)
		}
		res = append(res, m)
	}
	return res
}

func weekdaysBetween(from, to time.Time) int {
	n := 0
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
		default:
			n++
		}
	}
	return n
}

// Productivity assembles the trend and time-allocation report.
func (a *Assembler) Productivity(ctx context.Context, req Request) (*ProductivityReport, error) {
	scope, f, err := a.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	rep := &ProductivityReport{
		GeneratedAt: f.Now.Format(time.RFC3339),
		RangeDays:   f.RangeDays,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(component("tasks", func() error {
		var err error
		rep.Tasks, err = TaskMetrics(gctx, a.Store, scope, f)
		return err
	}))
	g.Go(component("trend", func() error {
		var err error
		rep.Trend, err = CompletionTrend(gctx, a.Store, scope, f)
		return err
	}))
	g.Go(component("allocation", func() error {
		var err error
		rep.Allocation, err = TimeAllocation(gctx, a.Store, scope, f)
		return err
	}))
	if err := g.Wait(); err != nil {
		return nil, UnavailableError{Cause: err}
	}
	return rep, nil
}

// ProjectStatistics assembles the single-project report. Non-privileged
// callers must hold a membership; otherwise the request is denied before any
// aggregation, leaking nothing.
func (a *Assembler) ProjectStatistics(ctx context.Context, req Request) (*ProjectReport, error) {
	if req.ProjectID == "" {
		return nil, repo.ErrNotFound
	}
	scope, f, err := a.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if !scope.Contains(req.ProjectID) {
		return nil, AccessDeniedError{Report: "project", Role: req.Role}
	}
	project, err := a.Store.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	rep := &ProjectReport{
		GeneratedAt: f.Now.Format(time.RFC3339),
		RangeDays:   f.RangeDays,
		Project:     project,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(component("tasks", func() error {
		var err error
		rep.Tasks, err = TaskMetrics(gctx, a.Store, scope, f)
		return err
	}))
	g.Go(component("time", func() error {
		var err error
		rep.Time, err = TimeMetrics(gctx, a.Store, scope, f)
		return err
	}))
	g.Go(component("progress", func() error {
		tasks, err := a.Store.ListTasks(gctx, repo.TaskFilters{ProjectIDs: scope.ProjectIDs})
		if err != nil {
			return err
		}
		entry := ProjectProgressEntry{
			ProjectID: project.ID,
			Name:      project.Name,
			IsOverdue: project.OverdueAt(f.Now),
		}
		for _, t := range tasks {
			entry.TotalTasks++
			if t.Status == domain.TaskDone {
				entry.CompletedTasks++
			}
			if t.OverdueAt(f.Now) {
				entry.OverdueTasks++
			}
		}
		entry.Progress = ratePercent(entry.CompletedTasks, entry.TotalTasks)
		rep.Progress = entry
		return nil
	}))
	g.Go(component("activity", func() error {
		var err error
		rep.Activity, err = RecentActivity(gctx, a.Store, scope, a.activityLimit())
		return err
	}))
	if err := g.Wait(); err != nil {
		return nil, UnavailableError{Cause: err}
	}
	members, err := a.Store.ListMembers(ctx, req.ProjectID)
	if err != nil {
		return nil, UnavailableError{Cause: AggregationError{Component: "members", Cause: err}}
	}
	rep.MemberCount = len(members)
	return rep, nil
}

// Dashboard assembles the caller's personal dashboard.
func (a *Assembler) Dashboard(ctx context.Context, req Request) (*UserDashboard, error) {
	scope, f, err := a.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	rep := &UserDashboard{
		GeneratedAt: f.Now.Format(time.RFC3339),
		RangeDays:   f.RangeDays,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(component("personal", func() error {
		var err error
		rep.Personal, err = PersonalMetrics(gctx, a.Store, req.CallerID, scope, f)
		return err
	}))
	g.Go(component("tasks", func() error {
		rep.Tasks = TaskSummary{ByStatus: map[string]int{}}
		if scope.Empty() {
			return nil
		}
		tasks, err := a.Store.ListTasks(gctx, repo.TaskFilters{
			ProjectIDs:   scope.ProjectIDs,
			AssignedTo:   req.CallerID,
			CreatedAfter: f.CutoffRFC3339(),
		})
		if err != nil {
			return err
		}
		summarizeTasks(&rep.Tasks, tasks, f.Now)
		return nil
	}))
	g.Go(component("time", func() error {
		if scope.Empty() {
			return nil
		}
		entries, err := a.Store.ListTimeEntries(gctx, repo.TimeEntryFilters{
			ProjectIDs:  scope.ProjectIDs,
			UserID:      req.CallerID,
			WorkedAfter: f.CutoffDate(),
		})
		if err != nil {
			return err
		}
		for _, e := range entries {
			rep.Time.EntryCount++
			rep.Time.TotalHours += e.HoursSpent
			if e.Billable {
				rep.Time.BillableHours += e.HoursSpent
			}
		}
		if rep.Time.TotalHours > 0 {
			rep.Time.BillablePercent = round2(rep.Time.BillableHours / rep.Time.TotalHours * 100)
		}
		if days := f.DaysBetween(); days > 0 {
			rep.Time.AvgHoursPerDay = round2(rep.Time.TotalHours / float64(days))
		}
		return nil
	}))
	g.Go(component("activity", func() error {
		var err error
		rep.Activity, err = RecentActivity(gctx, a.Store, scope, a.activityLimit())
		return err
	}))
	if err := g.Wait(); err != nil {
		return nil, UnavailableError{Cause: err}
	}
	return rep, nil
}

// SystemAnalytics assembles instance-wide figures; admin only.
func (a *Assembler) SystemAnalytics(ctx context.Context, req Request) (*SystemReport, error) {
	if req.Role != domain.RoleAdmin {
		return nil, AccessDeniedError{Report: "system", Role: req.Role}
	}
	scope, f, err := a.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	rep := &SystemReport{
		GeneratedAt: f.Now.Format(time.RFC3339),
		RangeDays:   f.RangeDays,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(component("users", func() error {
		var err error
		rep.Users, err = TeamUserMetrics(gctx, a.Store, f.Now)
		return err
	}))
	g.Go(component("projects", func() error {
		var err error
		rep.Projects, err = ProjectMetrics(gctx, a.Store, scope, f)
		return err
	}))
	g.Go(component("tasks", func() error {
		var err error
		rep.Tasks, err = TaskMetrics(gctx, a.Store, scope, f)
		return err
	}))
	g.Go(component("time", func() error {
		var err error
		rep.Time, err = TimeMetrics(gctx, a.Store, scope, f)
		return err
	}))
	g.Go(component("events", func() error {
		var err error
		rep.EventCount, err = a.Store.CountEvents(gctx, scope.ProjectIDs)
		return err
	}))
	if err := g.Wait(); err != nil {
		return nil, UnavailableError{Cause: err}
	}
	return rep, nil
}
