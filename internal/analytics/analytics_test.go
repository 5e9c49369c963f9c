package analytics

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"pulseboard/internal/domain"
	"pulseboard/internal/repo"
)

// fakeStore is an in-memory Store applying the same filter semantics as the
// SQL layer.
type fakeStore struct {
	projects []domain.Project
	tasks    []domain.Task
	entries  []domain.TimeEntry
	users    []domain.User
	members  []domain.Membership
	events   []domain.Event
	failWith error
}

func (f *fakeStore) ListProjects(_ context.Context, fl repo.ProjectFilters) ([]domain.Project, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	var res []domain.Project
	for _, p := range f.projects {
		if len(fl.IDs) > 0 && !containsString(fl.IDs, p.ID) {
			continue
		}
		if len(fl.StatusIn) > 0 && !containsString(fl.StatusIn, p.Status) {
			continue
		}
		if fl.CreatedAfter != "" && p.CreatedAt < fl.CreatedAfter {
			continue
		}
		res = append(res, p)
	}
	if fl.Limit > 0 && len(res) > fl.Limit {
		res = res[:fl.Limit]
	}
	return res, nil
}

func (f *fakeStore) ListProjectIDs(_ context.Context) ([]string, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	ids := make([]string, 0, len(f.projects))
	for _, p := range f.projects {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (f *fakeStore) MemberProjectIDs(_ context.Context, userID string) ([]string, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	var ids []string
	for _, m := range f.members {
		if m.UserID == userID {
			ids = append(ids, m.ProjectID)
		}
	}
	return ids, nil
}

func (f *fakeStore) ListTasks(_ context.Context, fl repo.TaskFilters) ([]domain.Task, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	var res []domain.Task
	for _, t := range f.tasks {
		if len(fl.ProjectIDs) > 0 && !containsString(fl.ProjectIDs, t.ProjectID) {
			continue
		}
		if len(fl.StatusIn) > 0 && !containsString(fl.StatusIn, t.Status) {
			continue
		}
		if len(fl.PriorityIn) > 0 && !containsString(fl.PriorityIn, t.Priority) {
			continue
		}
		if fl.AssignedTo != "" && (t.AssignedTo == nil || *t.AssignedTo != fl.AssignedTo) {
			continue
		}
		if fl.CreatedAfter != "" && t.CreatedAt < fl.CreatedAfter {
			continue
		}
		if fl.UpdatedAfter != "" && t.UpdatedAt < fl.UpdatedAfter {
			continue
		}
		res = append(res, t)
	}
	if fl.Limit > 0 && len(res) > fl.Limit {
		res = res[:fl.Limit]
	}
	return res, nil
}

func (f *fakeStore) ListTimeEntries(_ context.Context, fl repo.TimeEntryFilters) ([]domain.TimeEntry, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	taskProject := map[string]string{}
	for _, t := range f.tasks {
		taskProject[t.ID] = t.ProjectID
	}
	var res []domain.TimeEntry
	for _, e := range f.entries {
		if len(fl.ProjectIDs) > 0 && !containsString(fl.ProjectIDs, taskProject[e.TaskID]) {
			continue
		}
		if fl.UserID != "" && e.UserID != fl.UserID {
			continue
		}
		if fl.TaskID != "" && e.TaskID != fl.TaskID {
			continue
		}
		if fl.WorkedAfter != "" && e.WorkDate < fl.WorkedAfter {
			continue
		}
		res = append(res, e)
	}
	if fl.Limit > 0 && len(res) > fl.Limit {
		res = res[:fl.Limit]
	}
	return res, nil
}

func (f *fakeStore) ListUsers(_ context.Context) ([]domain.User, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.users, nil
}

func (f *fakeStore) GetUser(_ context.Context, id string) (domain.User, error) {
	if f.failWith != nil {
		return domain.User{}, f.failWith
	}
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.User{}, repo.ErrNotFound
}

func (f *fakeStore) GetProject(_ context.Context, id string) (domain.Project, error) {
	if f.failWith != nil {
		return domain.Project{}, f.failWith
	}
	for _, p := range f.projects {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Project{}, repo.ErrNotFound
}

func (f *fakeStore) ListRecentEvents(_ context.Context, fl repo.EventFilters) ([]domain.Event, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	var res []domain.Event
	for _, e := range f.events {
		if len(fl.ProjectIDs) > 0 && !containsString(fl.ProjectIDs, e.ProjectID) {
			continue
		}
		if fl.Type != "" && e.Type != fl.Type {
			continue
		}
		if fl.EntityKind != "" && e.EntityKind != fl.EntityKind {
			continue
		}
		res = append(res, e)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	if fl.Limit > 0 && len(res) > fl.Limit {
		res = res[:fl.Limit]
	}
	return res, nil
}

func (f *fakeStore) ListMembers(_ context.Context, projectID string) ([]domain.Membership, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	var res []domain.Membership
	for _, m := range f.members {
		if m.ProjectID == projectID {
			res = append(res, m)
		}
	}
	return res, nil
}

func (f *fakeStore) CountEvents(_ context.Context, projectIDs []string) (int, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	n := 0
	for _, e := range f.events {
		if len(projectIDs) > 0 && !containsString(projectIDs, e.ProjectID) {
			continue
		}
		n++
	}
	return n, nil
}

var _ Store = (*fakeStore)(nil)

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func ts(daysAgo int) string {
	return testNow.AddDate(0, 0, -daysAgo).Format(time.RFC3339)
}

func strptr(s string) *string { return &s }

func floatptr(v float64) *float64 { return &v }

func TestResolveScope(t *testing.T) {
	store := &fakeStore{
		projects: []domain.Project{
			{ID: "p1", Status: domain.ProjectActive},
			{ID: "p2", Status: domain.ProjectActive},
			{ID: "p3", Status: domain.ProjectPlanning},
		},
		members: []domain.Membership{
			{ProjectID: "p1", UserID: "dev"},
			{ProjectID: "p2", UserID: "dev"},
		},
	}
	ctx := context.Background()

	scope, err := ResolveScope(ctx, store, "boss", domain.RoleAdmin, "")
	if err != nil {
		t.Fatalf("admin scope: %v", err)
	}
	if len(scope.ProjectIDs) != 3 {
		t.Fatalf("admin sees all projects, got %v", scope.ProjectIDs)
	}

	scope, err = ResolveScope(ctx, store, "boss", domain.RoleManager, "p2")
	if err != nil {
		t.Fatalf("manager scoped: %v", err)
	}
	if len(scope.ProjectIDs) != 1 || scope.ProjectIDs[0] != "p2" {
		t.Fatalf("manager project narrowing, got %v", scope.ProjectIDs)
	}

	scope, err = ResolveScope(ctx, store, "dev", domain.RoleDeveloper, "")
	if err != nil {
		t.Fatalf("developer scope: %v", err)
	}
	if len(scope.ProjectIDs) != 2 {
		t.Fatalf("developer sees memberships, got %v", scope.ProjectIDs)
	}

	// Requesting a project outside the membership yields an empty scope,
	// not an error.
	scope, err = ResolveScope(ctx, store, "dev", domain.RoleDeveloper, "p3")
	if err != nil {
		t.Fatalf("developer non-member: %v", err)
	}
	if !scope.Empty() {
		t.Fatalf("expected empty scope, got %v", scope.ProjectIDs)
	}
}

func TestParseRangeDays(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		invalid bool
	}{
		{"", DefaultRangeDays, false},
		{"7", 7, false},
		{"7d", 7, false},
		{"30d", 30, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseRangeDays(tc.in)
		if tc.invalid {
			if !IsInvalidRange(err) {
				t.Fatalf("%q: expected InvalidRangeError, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%q: got %d want %d", tc.in, got, tc.want)
		}
	}
}

func TestTaskMetrics(t *testing.T) {
	store := &fakeStore{
		projects: []domain.Project{{ID: "p1", Status: domain.ProjectActive}},
		tasks: []domain.Task{
			{ID: "t1", ProjectID: "p1", Status: domain.TaskDone, Priority: domain.PriorityHigh, CreatedAt: ts(2), UpdatedAt: ts(1), ActualHours: floatptr(8)},
			{ID: "t2", ProjectID: "p1", Status: domain.TaskDone, Priority: domain.PriorityLow, CreatedAt: ts(3), UpdatedAt: ts(2), ActualHours: floatptr(4)},
			{ID: "t3", ProjectID: "p1", Status: domain.TaskInProgress, Priority: domain.PriorityCritical, CreatedAt: ts(4), UpdatedAt: ts(1), DueDate: strptr(ts(1))},
		},
	}
	f, err := NewDateFilter(30, testNow)
	if err != nil {
		t.Fatal(err)
	}
	s, err := TaskMetrics(context.Background(), store, Scope{ProjectIDs: []string{"p1"}}, f)
	if err != nil {
		t.Fatal(err)
	}
	if s.Total != 3 {
		t.Fatalf("total: got %d", s.Total)
	}
	if s.ByStatus[domain.TaskDone] != 2 || s.ByStatus[domain.TaskInProgress] != 1 {
		t.Fatalf("by_status: %v", s.ByStatus)
	}
	// round(2/3*100) = 67
	if s.CompletionRate != 67 {
		t.Fatalf("completion rate: got %d want 67", s.CompletionRate)
	}
	if s.Overdue != 1 {
		t.Fatalf("overdue: got %d", s.Overdue)
	}
	if s.HighPriority != 2 {
		t.Fatalf("high priority: got %d", s.HighPriority)
	}
	// mean of 8 and 4 rounds to 6
	if s.AverageCompletionHours != 6 {
		t.Fatalf("avg completion hours: got %d", s.AverageCompletionHours)
	}
}

func TestTaskMetricsEmptyScope(t *testing.T) {
	store := &fakeStore{
		tasks: []domain.Task{{ID: "t1", ProjectID: "p1", Status: domain.TaskDone, CreatedAt: ts(1), UpdatedAt: ts(1)}},
	}
	f, _ := NewDateFilter(30, testNow)
	s, err := TaskMetrics(context.Background(), store, Scope{}, f)
	if err != nil {
		t.Fatal(err)
	}
	if s.Total != 0 || s.CompletionRate != 0 {
		t.Fatalf("empty scope must yield zeros, got %+v", s)
	}
}

func TestProjectMetricsOverdueAndOnTrack(t *testing.T) {
	store := &fakeStore{
		projects: []domain.Project{
			{ID: "p1", Status: domain.ProjectActive, CreatedAt: ts(5)},
			{ID: "p2", Status: domain.ProjectActive, CreatedAt: ts(5), EndDate: strptr(ts(1))},
			{ID: "p3", Status: domain.ProjectCompleted, CreatedAt: ts(5), EndDate: strptr(ts(1))},
		},
	}
	f, _ := NewDateFilter(30, testNow)
	s, err := ProjectMetrics(context.Background(), store, Scope{ProjectIDs: []string{"p1", "p2", "p3"}}, f)
	if err != nil {
		t.Fatal(err)
	}
	if s.Total != 3 || s.Active != 2 || s.Completed != 1 {
		t.Fatalf("counts: %+v", s)
	}
	// completed project past its end date is not overdue
	if s.Overdue != 1 {
		t.Fatalf("overdue: got %d", s.Overdue)
	}
	if s.OnTrack != 1 {
		t.Fatalf("on track: got %d", s.OnTrack)
	}
}

func TestDistributionTopProjects(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 7; i++ {
		id := string(rune('a' + i))
		store.projects = append(store.projects, domain.Project{ID: id, Name: "Project " + id, Status: domain.ProjectActive, CreatedAt: ts(10)})
		for j := 0; j <= i; j++ {
			store.tasks = append(store.tasks, domain.Task{
				ID: id + "-t" + string(rune('0'+j)), ProjectID: id,
				Status: domain.TaskTodo, Priority: domain.PriorityMedium,
				CreatedAt: ts(5), UpdatedAt: ts(5),
			})
		}
	}
	scope := Scope{ProjectIDs: []string{"a", "b", "c", "d", "e", "f", "g"}}
	f, _ := NewDateFilter(30, testNow)
	d, err := Distribution(context.Background(), store, scope, f)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.ByProject) != 5 {
		t.Fatalf("top projects capped at 5, got %d", len(d.ByProject))
	}
	if d.ByProject[0].ProjectID != "g" || d.ByProject[0].Count != 7 {
		t.Fatalf("largest project first, got %+v", d.ByProject[0])
	}
	if d.ByStatus[domain.TaskTodo] != 28 {
		t.Fatalf("by_status total: %v", d.ByStatus)
	}
}

func TestCompletionTrend(t *testing.T) {
	store := &fakeStore{
		tasks: []domain.Task{
			{ID: "t1", ProjectID: "p1", Status: domain.TaskDone, CreatedAt: ts(6), UpdatedAt: ts(2)},
			{ID: "t2", ProjectID: "p1", Status: domain.TaskDone, CreatedAt: ts(6), UpdatedAt: ts(2)},
			{ID: "t3", ProjectID: "p1", Status: domain.TaskInProgress, CreatedAt: ts(6), UpdatedAt: ts(2)},
			{ID: "t4", ProjectID: "p1", Status: domain.TaskDone, CreatedAt: ts(6), UpdatedAt: ts(0)},
		},
	}
	f, _ := NewDateFilter(7, testNow)
	series, err := CompletionTrend(context.Background(), store, Scope{ProjectIDs: []string{"p1"}}, f)
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 8 {
		t.Fatalf("7-day range yields 8 points, got %d", len(series))
	}
	for i := 1; i < len(series); i++ {
		if series[i].Date <= series[i-1].Date {
			t.Fatalf("series not oldest-first at %d: %s <= %s", i, series[i].Date, series[i-1].Date)
		}
	}
	twoDaysAgo := testNow.AddDate(0, 0, -2).Format("2006-01-02")
	var point TrendPoint
	for _, p := range series {
		if p.Date == twoDaysAgo {
			point = p
		}
	}
	if point.Total != 3 || point.Completed != 2 {
		t.Fatalf("bucket for %s: %+v", twoDaysAgo, point)
	}
	if point.CompletionRate != 67 {
		t.Fatalf("bucket rate: got %d", point.CompletionRate)
	}
	last := series[len(series)-1]
	if last.Date != testNow.Format("2006-01-02") || last.Completed != 1 {
		t.Fatalf("today's bucket: %+v", last)
	}
}

func TestRecentActivity(t *testing.T) {
	store := &fakeStore{
		projects: []domain.Project{{ID: "p1", Name: "Apollo", Status: domain.ProjectActive}},
		users:    []domain.User{{ID: "u1", Name: "Dana", Role: domain.RoleDeveloper}},
	}
	for i := 1; i <= 20; i++ {
		store.events = append(store.events, domain.Event{
			ID: int64(i), TS: ts(20 - i), Type: "task.created",
			ProjectID: "p1", EntityKind: "task", EntityID: "t", ActorID: "u1",
			Payload: `{"title":"Task ` + string(rune('a'+i%5)) + `"}`,
		})
	}
	store.events = append(store.events, domain.Event{
		ID: 21, TS: ts(0), Type: "project.created",
		ProjectID: "p1", EntityKind: "project", EntityID: "p1", ActorID: "u1",
		Payload: `{"name":"Apollo"}`,
	})
	feed, err := RecentActivity(context.Background(), store, Scope{ProjectIDs: []string{"p1"}}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(feed) != 10 {
		t.Fatalf("feed capped at 10, got %d", len(feed))
	}
	if feed[0].Type != "project_created" || feed[0].EntityName != "Apollo" {
		t.Fatalf("newest entry first: %+v", feed[0])
	}
	for i := 1; i < len(feed); i++ {
		if feed[i].OccurredAt > feed[i-1].OccurredAt {
			t.Fatalf("feed not newest-first at %d", i)
		}
	}
	if feed[1].UserName != "Dana" || feed[1].ProjectName != "Apollo" {
		t.Fatalf("name resolution: %+v", feed[1])
	}
}

func newTestAssembler(store Store) *Assembler {
	a := NewAssembler(store)
	a.Now = func() time.Time { return testNow }
	return a
}

func TestAssemblerRoleGates(t *testing.T) {
	store := &fakeStore{
		projects: []domain.Project{{ID: "p1", Name: "Apollo", Status: domain.ProjectActive, CreatedAt: ts(5)}},
		users:    []domain.User{{ID: "dev", Name: "Dana", Role: domain.RoleDeveloper, CreatedAt: ts(30)}},
	}
	a := newTestAssembler(store)
	ctx := context.Background()

	_, err := a.TeamPerformance(ctx, Request{CallerID: "dev", Role: domain.RoleDeveloper})
	if !IsAccessDenied(err) {
		t.Fatalf("developer team report: expected AccessDeniedError, got %v", err)
	}

	_, err = a.SystemAnalytics(ctx, Request{CallerID: "mgr", Role: domain.RoleManager})
	if !IsAccessDenied(err) {
		t.Fatalf("manager system report: expected AccessDeniedError, got %v", err)
	}

	// Viewer requesting a project they are not a member of is denied before
	// any aggregation.
	_, err = a.ProjectStatistics(ctx, Request{CallerID: "dev", Role: domain.RoleViewer, ProjectID: "p1"})
	if !IsAccessDenied(err) {
		t.Fatalf("non-member project report: expected AccessDeniedError, got %v", err)
	}
}

func TestAssemblerInvalidRange(t *testing.T) {
	a := newTestAssembler(&fakeStore{})
	_, err := a.Overview(context.Background(), Request{CallerID: "u", Role: domain.RoleAdmin, Range: "-5"})
	if !IsInvalidRange(err) {
		t.Fatalf("expected InvalidRangeError, got %v", err)
	}
}

func TestAssemblerStoreFailure(t *testing.T) {
	store := &fakeStore{
		projects: []domain.Project{{ID: "p1", Status: domain.ProjectActive, CreatedAt: ts(5)}},
	}
	a := newTestAssembler(store)
	ctx := context.Background()

	// Scope resolves first; fail afterwards so the aggregators hit the error.
	if _, err := ResolveScope(ctx, store, "u", domain.RoleAdmin, ""); err != nil {
		t.Fatal(err)
	}
	store.failWith = errors.New("disk on fire")
	_, err := a.Overview(ctx, Request{CallerID: "u", Role: domain.RoleAdmin})
	var unavailable UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
	var agg AggregationError
	if !errors.As(err, &agg) || agg.Component == "" {
		t.Fatalf("expected component-tagged AggregationError, got %v", err)
	}
	if !strings.Contains(err.Error(), "disk on fire") {
		t.Fatalf("cause not preserved: %v", err)
	}
}

func TestOverviewPrivilegedVsPersonal(t *testing.T) {
	store := &fakeStore{
		projects: []domain.Project{{ID: "p1", Name: "Apollo", Status: domain.ProjectActive, CreatedAt: ts(5)}},
		tasks: []domain.Task{
			{ID: "t1", ProjectID: "p1", Status: domain.TaskDone, Priority: domain.PriorityMedium, AssignedTo: strptr("dev"), CreatedAt: ts(3), UpdatedAt: ts(1)},
			{ID: "t2", ProjectID: "p1", Status: domain.TaskTodo, Priority: domain.PriorityMedium, AssignedTo: strptr("dev"), CreatedAt: ts(3), UpdatedAt: ts(3)},
		},
		users: []domain.User{
			{ID: "boss", Name: "Blake", Role: domain.RoleAdmin, LastLoginAt: strptr(ts(1)), CreatedAt: ts(60)},
			{ID: "dev", Name: "Dana", Role: domain.RoleDeveloper, CreatedAt: ts(60)},
		},
		members: []domain.Membership{{ProjectID: "p1", UserID: "dev"}},
	}
	a := newTestAssembler(store)
	ctx := context.Background()

	rep, err := a.Overview(ctx, Request{CallerID: "boss", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Users == nil || rep.Personal != nil {
		t.Fatalf("admin overview carries user stats, not personal: %+v", rep)
	}
	if rep.Users.TotalUsers != 2 || rep.Users.ActiveLast7Days != 1 {
		t.Fatalf("user summary: %+v", rep.Users)
	}
	if rep.Tasks.Total != 2 || rep.Tasks.CompletionRate != 50 {
		t.Fatalf("task summary: %+v", rep.Tasks)
	}

	rep, err = a.Overview(ctx, Request{CallerID: "dev", Role: domain.RoleDeveloper})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Personal == nil || rep.Users != nil {
		t.Fatalf("developer overview carries personal stats, not user stats: %+v", rep)
	}
	if rep.Personal.AssignedTasks != 2 || rep.Personal.CompletionRate != 50 {
		t.Fatalf("personal summary: %+v", rep.Personal)
	}
}

func TestTeamPerformanceUtilization(t *testing.T) {
	store := &fakeStore{
		projects: []domain.Project{{ID: "p1", Status: domain.ProjectActive, CreatedAt: ts(20)}},
		tasks: []domain.Task{
			{ID: "t1", ProjectID: "p1", Status: domain.TaskDone, Priority: domain.PriorityMedium, AssignedTo: strptr("dev"), CreatedAt: ts(5), UpdatedAt: ts(1)},
		},
		entries: []domain.TimeEntry{
			{ID: "e1", TaskID: "t1", UserID: "dev", HoursSpent: 10, Billable: true, WorkDate: testNow.AddDate(0, 0, -2).Format("2006-01-02")},
		},
		users: []domain.User{{ID: "dev", Name: "Dana", Role: domain.RoleDeveloper, CreatedAt: ts(60)}},
	}
	a := newTestAssembler(store)
	rep, err := a.TeamPerformance(context.Background(), Request{CallerID: "boss", Role: domain.RoleManager, Range: "7"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Members) != 1 {
		t.Fatalf("members: %+v", rep.Members)
	}
	m := rep.Members[0]
	if m.AssignedTasks != 1 || m.CompletedTasks != 1 || m.CompletionRate != 100 {
		t.Fatalf("member counts: %+v", m)
	}
	if m.HoursLogged != 10 {
		t.Fatalf("hours logged: %+v", m)
	}
	if m.Utilization <= 0 || m.Utilization > 100 {
		t.Fatalf("utilization out of range: %+v", m)
	}
}
