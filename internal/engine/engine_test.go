package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pulseboard/internal/config"
	"pulseboard/internal/db"
	"pulseboard/internal/domain"
	"pulseboard/internal/migrate"
	"pulseboard/internal/repo"
)

func newTestEnv(t *testing.T) Engine {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := New(conn, config.Default())
	e.Now = func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) }
	return e
}

func mustCreateUser(t *testing.T, e Engine, id, role string) domain.User {
	t.Helper()
	u, err := e.CreateUser(context.Background(), UserCreateOptions{
		ID:    id,
		Name:  "User " + id,
		Email: id + "@example.com",
		Role:  role,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
	return u
}

func mustCreateProject(t *testing.T, e Engine, id, actorID string) domain.Project {
	t.Helper()
	p, err := e.CreateProject(context.Background(), ProjectCreateOptions{
		ID:      id,
		Name:    "Project " + id,
		ActorID: actorID,
	})
	if err != nil {
		t.Fatalf("create project %s: %v", id, err)
	}
	return p
}

func TestCreateUserValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	if _, err := e.CreateUser(ctx, UserCreateOptions{Email: "a@b.c"}); err == nil {
		t.Fatal("missing name accepted")
	}
	if _, err := e.CreateUser(ctx, UserCreateOptions{Name: "A"}); err == nil {
		t.Fatal("missing email accepted")
	}
	if _, err := e.CreateUser(ctx, UserCreateOptions{Name: "A", Email: "a@b.c", Role: "wizard"}); err == nil {
		t.Fatal("unknown role accepted")
	}

	u := mustCreateUser(t, e, "u1", "")
	if u.Role != domain.RoleDeveloper {
		t.Fatalf("default role: %s", u.Role)
	}
	if u.CreatedAt != "2024-06-15T12:00:00Z" {
		t.Fatalf("created_at: %s", u.CreatedAt)
	}
}

func TestRecordLogin(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	mustCreateUser(t, e, "u1", "admin")

	if err := e.RecordLogin(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	u, err := e.Repo.GetUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if u.LastLoginAt == nil || *u.LastLoginAt != "2024-06-15T12:00:00Z" {
		t.Fatalf("last_login_at: %v", u.LastLoginAt)
	}
}

func TestCreateProjectAddsCreatorMembership(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	mustCreateUser(t, e, "u1", "manager")
	p := mustCreateProject(t, e, "p1", "u1")

	if p.Status != domain.ProjectPlanning {
		t.Fatalf("new project status: %s", p.Status)
	}
	ids, err := e.Repo.MemberProjectIDs(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "p1" {
		t.Fatalf("creator membership missing: %v", ids)
	}
	events, err := e.Repo.ListRecentEvents(ctx, repo.EventFilters{Type: "project.created"})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].ProjectID != "p1" || events[0].ActorID != "u1" {
		t.Fatalf("project.created event: %+v", events)
	}
}

func TestUpdateProjectStatus(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	mustCreateUser(t, e, "u1", "manager")
	mustCreateProject(t, e, "p1", "u1")

	if _, err := e.UpdateProjectStatus(ctx, "p1", "paused", "u1"); err == nil {
		t.Fatal("invalid status accepted")
	}
	p, err := e.UpdateProjectStatus(ctx, "p1", domain.ProjectActive, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != domain.ProjectActive {
		t.Fatalf("status: %s", p.Status)
	}
	stored, err := e.Repo.GetProject(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.ProjectActive {
		t.Fatalf("stored status: %s", stored.Status)
	}
}

func TestMembershipLifecycle(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	mustCreateUser(t, e, "boss", "manager")
	mustCreateUser(t, e, "dev", "developer")
	mustCreateProject(t, e, "p1", "boss")

	if _, err := e.AddMember(ctx, "p1", "ghost", "", "boss"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown user: %v", err)
	}
	m, err := e.AddMember(ctx, "p1", "dev", "", "boss")
	if err != nil {
		t.Fatal(err)
	}
	if m.Role != domain.RoleDeveloper {
		t.Fatalf("default member role: %s", m.Role)
	}
	members, err := e.Repo.ListMembers(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Fatalf("members: %+v", members)
	}
	if err := e.RemoveMember(ctx, "p1", "dev", "boss"); err != nil {
		t.Fatal(err)
	}
	ids, err := e.Repo.MemberProjectIDs(ctx, "dev")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Fatalf("membership not removed: %v", ids)
	}
}

func TestCreateAndUpdateTask(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	mustCreateUser(t, e, "boss", "manager")
	mustCreateUser(t, e, "dev", "developer")
	mustCreateProject(t, e, "p1", "boss")

	if _, err := e.CreateTask(ctx, TaskCreateOptions{ProjectID: "p1", ActorID: "boss"}); err == nil {
		t.Fatal("missing title accepted")
	}
	if _, err := e.CreateTask(ctx, TaskCreateOptions{ProjectID: "nope", Title: "x", ActorID: "boss"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown project: %v", err)
	}

	created, err := e.CreateTask(ctx, TaskCreateOptions{
		ProjectID:  "p1",
		Title:      "Fix login",
		AssignedTo: "dev",
		ActorID:    "boss",
	})
	if err != nil {
		t.Fatal(err)
	}
	if created.Status != domain.TaskTodo || created.Priority != domain.PriorityMedium {
		t.Fatalf("task defaults: %+v", created)
	}

	if _, err := e.UpdateTask(ctx, TaskUpdateOptions{ID: created.ID, Status: "blocked", ActorID: "dev"}); err == nil {
		t.Fatal("invalid status accepted")
	}
	neg := -1.0
	if _, err := e.UpdateTask(ctx, TaskUpdateOptions{ID: created.ID, ActualHours: &neg, ActorID: "dev"}); err == nil || !strings.Contains(err.Error(), "non-negative") {
		t.Fatalf("negative hours: %v", err)
	}

	hours := 6.5
	updated, err := e.UpdateTask(ctx, TaskUpdateOptions{
		ID:          created.ID,
		Status:      domain.TaskDone,
		ActualHours: &hours,
		ActorID:     "dev",
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != domain.TaskDone || updated.ActualHours == nil || *updated.ActualHours != 6.5 {
		t.Fatalf("updated task: %+v", updated)
	}

	events, err := e.Repo.ListRecentEvents(ctx, repo.EventFilters{ProjectIDs: []string{"p1"}, EntityKind: "task"})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("task events: %+v", events)
	}
	if events[0].Type != "task.updated" || events[1].Type != "task.created" {
		t.Fatalf("event order: %s then %s", events[0].Type, events[1].Type)
	}
}

func TestUpdateTaskUnassign(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	mustCreateUser(t, e, "boss", "manager")
	mustCreateUser(t, e, "dev", "developer")
	mustCreateProject(t, e, "p1", "boss")
	created, err := e.CreateTask(ctx, TaskCreateOptions{ProjectID: "p1", Title: "x", AssignedTo: "dev", ActorID: "boss"})
	if err != nil {
		t.Fatal(err)
	}

	empty := ""
	updated, err := e.UpdateTask(ctx, TaskUpdateOptions{ID: created.ID, Assign: &empty, ActorID: "boss"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.AssignedTo != nil {
		t.Fatalf("assignment not cleared: %+v", updated)
	}
}

func TestLogTime(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	mustCreateUser(t, e, "boss", "manager")
	mustCreateProject(t, e, "p1", "boss")
	task, err := e.CreateTask(ctx, TaskCreateOptions{ProjectID: "p1", Title: "x", ActorID: "boss"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.LogTime(ctx, TimeLogOptions{TaskID: task.ID, UserID: "boss", Hours: -1}); err == nil {
		t.Fatal("negative hours accepted")
	}
	if _, err := e.LogTime(ctx, TimeLogOptions{TaskID: task.ID, UserID: "boss", Hours: 1, WorkDate: "june 1st"}); err == nil {
		t.Fatal("invalid work date accepted")
	}
	if _, err := e.LogTime(ctx, TimeLogOptions{TaskID: task.ID, Hours: 1}); err == nil {
		t.Fatal("missing user accepted")
	}

	entry, err := e.LogTime(ctx, TimeLogOptions{TaskID: task.ID, UserID: "boss", Hours: 2.5, Billable: true})
	if err != nil {
		t.Fatal(err)
	}
	if entry.WorkDate != "2024-06-15" {
		t.Fatalf("default work date: %s", entry.WorkDate)
	}
	entries, err := e.Repo.ListTimeEntries(ctx, repo.TimeEntryFilters{TaskID: task.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].HoursSpent != 2.5 || !entries[0].Billable {
		t.Fatalf("entries: %+v", entries)
	}
}

func TestAddComment(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	mustCreateUser(t, e, "boss", "manager")
	mustCreateProject(t, e, "p1", "boss")
	task, err := e.CreateTask(ctx, TaskCreateOptions{ProjectID: "p1", Title: "x", ActorID: "boss"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.AddComment(ctx, task.ID, "   ", "boss"); err == nil {
		t.Fatal("blank comment accepted")
	}
	c, err := e.AddComment(ctx, task.ID, "looks good", "boss")
	if err != nil {
		t.Fatal(err)
	}
	comments, err := e.Repo.ListComments(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 1 || comments[0].ID != c.ID || comments[0].Content != "looks good" {
		t.Fatalf("comments: %+v", comments)
	}
}
