package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pulseboard/internal/config"
	"pulseboard/internal/domain"
	"pulseboard/internal/events"
	"pulseboard/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// UserCreateOptions are parameters for registering a user.
type UserCreateOptions struct {
	ID      string
	Name    string
	Email   string
	Role    string
	ActorID string
}

func (e Engine) CreateUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.User{}, errors.New("name is required")
	}
	if strings.TrimSpace(opts.Email) == "" {
		return domain.User{}, errors.New("email is required")
	}
	role := opts.Role
	if role == "" {
		role = string(domain.RoleDeveloper)
	}
	parsed, err := domain.ParseRole(role)
	if err != nil {
		return domain.User{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	u := domain.User{
		ID:        id,
		Name:      opts.Name,
		Email:     opts.Email,
		Role:      parsed,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "user.created", "", "user", u.ID, opts.ActorID, events.EventPayload{"role": string(u.Role)}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// RecordLogin stamps the user's last login, used by the 7-day-active metric.
func (e Engine) RecordLogin(ctx context.Context, userID string) error {
	return e.Repo.TouchLastLogin(ctx, userID, e.now().UTC().Format(time.RFC3339))
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	ID        string
	Name      string
	Priority  string
	StartDate string
	EndDate   string
	ActorID   string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Project{}, errors.New("name is required")
	}
	if opts.ActorID == "" {
		return domain.Project{}, errors.New("actor is required")
	}
	priority := opts.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !validPriority(priority) {
		return domain.Project{}, fmt.Errorf("invalid priority %q", priority)
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	p := domain.Project{
		ID:        id,
		Name:      opts.Name,
		Status:    domain.ProjectPlanning,
		Priority:  priority,
		StartDate: opts.StartDate,
		EndDate:   optionalString(opts.EndDate),
		CreatedBy: opts.ActorID,
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	// The creator always holds a membership so the project shows up in
	// their scope regardless of global role.
	creator, err := e.Repo.GetUser(ctx, opts.ActorID)
	memberRole := domain.RoleManager
	if err == nil && creator.Role != "" {
		memberRole = creator.Role
	}
	if err := e.Repo.AddMember(ctx, tx, domain.Membership{
		ProjectID: p.ID,
		UserID:    opts.ActorID,
		Role:      memberRole,
		CreatedAt: now,
	}); err != nil {
		return domain.Project{}, fmt.Errorf("add creator membership: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.ID, "project", p.ID, opts.ActorID, events.EventPayload{"name": p.Name, "status": p.Status}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) UpdateProjectStatus(ctx context.Context, id, status, actorID string) (domain.Project, error) {
	if !validProjectStatus(status) {
		return domain.Project{}, fmt.Errorf("invalid project status %q", status)
	}
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProject(ctx, tx, id, &status, nil); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.updated", id, "project", id, actorID, events.EventPayload{"from_status": p.Status, "to_status": status}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	p.Status = status
	return p, nil
}

func (e Engine) AddMember(ctx context.Context, projectID, userID string, role domain.Role, actorID string) (domain.Membership, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.Membership{}, err
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return domain.Membership{}, err
	}
	if role == "" {
		role = domain.RoleDeveloper
	}
	m := domain.Membership{
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.AddMember(ctx, tx, m); err != nil {
		return domain.Membership{}, err
	}
	if err := e.Events.Append(ctx, tx, "member.added", projectID, "membership", userID, actorID, events.EventPayload{"role": string(role)}); err != nil {
		return domain.Membership{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Membership{}, err
	}
	return m, nil
}

func (e Engine) RemoveMember(ctx context.Context, projectID, userID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RemoveMember(ctx, tx, projectID, userID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "member.removed", projectID, "membership", userID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	Priority    string
	AssignedTo  string
	DueDate     string
	ActorID     string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if opts.ProjectID == "" {
		return domain.Task{}, errors.New("project is required")
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Task{}, err
	}
	priority := opts.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !validPriority(priority) {
		return domain.Task{}, fmt.Errorf("invalid priority %q", priority)
	}
	id := opts.ID
	now := e.now().UTC().Format(time.RFC3339)
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.ProjectID+"|"+opts.Title+"|"+now)).String()
	}
	t := domain.Task{
		ID:          id,
		ProjectID:   opts.ProjectID,
		Title:       opts.Title,
		Description: opts.Description,
		Status:      domain.TaskTodo,
		Priority:    priority,
		AssignedTo:  optionalString(opts.AssignedTo),
		CreatedBy:   opts.ActorID,
		DueDate:     optionalString(opts.DueDate),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", t.ProjectID, "task", t.ID, opts.ActorID, events.EventPayload{"title": t.Title, "status": t.Status}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskUpdateOptions encapsulates allowed updates.
type TaskUpdateOptions struct {
	ID          string
	Status      string
	Priority    string
	Assign      *string
	DueDate     *string
	ActualHours *float64
	ActorID     string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return t, err
	}
	original := t
	if opts.Status != "" {
		if !validTaskStatus(opts.Status) {
			return t, fmt.Errorf("invalid task status %q", opts.Status)
		}
		t.Status = opts.Status
	}
	if opts.Priority != "" {
		if !validPriority(opts.Priority) {
			return t, fmt.Errorf("invalid priority %q", opts.Priority)
		}
		t.Priority = opts.Priority
	}
	if opts.Assign != nil {
		if *opts.Assign == "" {
			t.AssignedTo = nil
		} else {
			if _, err := e.Repo.GetUser(ctx, *opts.Assign); err != nil {
				return t, err
			}
			t.AssignedTo = opts.Assign
		}
	}
	if opts.DueDate != nil {
		if *opts.DueDate == "" {
			t.DueDate = nil
		} else {
			t.DueDate = opts.DueDate
		}
	}
	if opts.ActualHours != nil {
		if *opts.ActualHours < 0 {
			return t, errors.New("actual_hours must be non-negative")
		}
		t.ActualHours = opts.ActualHours
	}
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", t.ProjectID, "task", t.ID, opts.ActorID, events.EventPayload{
		"from_status": original.Status,
		"to_status":   t.Status,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// TimeLogOptions are parameters for logging hours against a task.
type TimeLogOptions struct {
	TaskID   string
	UserID   string
	Hours    float64
	Billable bool
	WorkDate string
}

func (e Engine) LogTime(ctx context.Context, opts TimeLogOptions) (domain.TimeEntry, error) {
	if opts.Hours < 0 {
		return domain.TimeEntry{}, errors.New("hours_spent must be non-negative")
	}
	if opts.UserID == "" {
		return domain.TimeEntry{}, errors.New("user is required")
	}
	t, err := e.Repo.GetTask(ctx, opts.TaskID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	workDate := opts.WorkDate
	if workDate == "" {
		workDate = e.now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", workDate); err != nil {
		return domain.TimeEntry{}, fmt.Errorf("invalid work_date %q", workDate)
	}
	entry := domain.TimeEntry{
		ID:         uuid.New().String(),
		TaskID:     opts.TaskID,
		UserID:     opts.UserID,
		HoursSpent: opts.Hours,
		Billable:   opts.Billable,
		WorkDate:   workDate,
		CreatedAt:  e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTimeEntry(ctx, tx, entry); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := e.Events.Append(ctx, tx, "time.logged", t.ProjectID, "time_entry", entry.ID, opts.UserID, events.EventPayload{"hours": opts.Hours, "billable": opts.Billable}); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}

func (e Engine) AddComment(ctx context.Context, taskID, content, actorID string) (domain.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Comment{}, errors.New("content is required")
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Comment{}, err
	}
	c := domain.Comment{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		UserID:    actorID,
		Content:   content,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Comment{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertComment(ctx, tx, c); err != nil {
		return domain.Comment{}, err
	}
	if err := e.Events.Append(ctx, tx, "comment.added", t.ProjectID, "comment", c.ID, actorID, events.EventPayload{"task_id": taskID}); err != nil {
		return domain.Comment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

// --- helpers ---

func validTaskStatus(s string) bool {
	switch s {
	case domain.TaskTodo, domain.TaskInProgress, domain.TaskInReview, domain.TaskDone:
		return true
	}
	return false
}

func validProjectStatus(s string) bool {
	switch s {
	case domain.ProjectPlanning, domain.ProjectActive, domain.ProjectOnHold, domain.ProjectCompleted, domain.ProjectCancelled:
		return true
	}
	return false
}

func validPriority(s string) bool {
	switch s {
	case domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh, domain.PriorityCritical:
		return true
	}
	return false
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
