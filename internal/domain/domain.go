package domain

import (
	"fmt"
	"time"
)

// Role is the closed set of caller roles. Admins and managers may inspect
// any project; other roles are scoped to their memberships.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleDeveloper Role = "developer"
	RoleViewer    Role = "viewer"
)

// ParseRole validates a role string against the closed set.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleManager, RoleDeveloper, RoleViewer:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Privileged reports whether the role may see all projects.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleManager
}

// Project statuses.
const (
	ProjectPlanning  = "planning"
	ProjectActive    = "active"
	ProjectOnHold    = "on_hold"
	ProjectCompleted = "completed"
	ProjectCancelled = "cancelled"
)

// Task statuses.
const (
	TaskTodo       = "todo"
	TaskInProgress = "in_progress"
	TaskInReview   = "in_review"
	TaskDone       = "done"
)

// Task priorities.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

type User struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	Role        Role    `json:"role" enum:"admin,manager,developer,viewer"`
	LastLoginAt *string `json:"last_login_at,omitempty" format:"date-time"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type Project struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Status    string  `json:"status" enum:"planning,active,on_hold,completed,cancelled"`
	Priority  string  `json:"priority" enum:"low,medium,high,critical"`
	StartDate string  `json:"start_date,omitempty" format:"date-time"`
	EndDate   *string `json:"end_date,omitempty" format:"date-time"`
	CreatedBy string  `json:"created_by"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

// OverdueAt reports whether the project end date has passed without the
// project reaching a terminal status.
func (p Project) OverdueAt(now time.Time) bool {
	if p.EndDate == nil || p.Status == ProjectCompleted || p.Status == ProjectCancelled {
		return false
	}
	end, err := time.Parse(time.RFC3339, *p.EndDate)
	return err == nil && end.Before(now)
}

// Membership links a user to a project. Unique per (project, user).
type Membership struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Role      Role   `json:"role" enum:"admin,manager,developer,viewer"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Task struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status" enum:"todo,in_progress,in_review,done"`
	Priority    string   `json:"priority" enum:"low,medium,high,critical"`
	AssignedTo  *string  `json:"assigned_to,omitempty"`
	CreatedBy   string   `json:"created_by"`
	DueDate     *string  `json:"due_date,omitempty" format:"date-time"`
	ActualHours *float64 `json:"actual_hours,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

// OverdueAt reports whether the task due date has passed without completion.
func (t Task) OverdueAt(now time.Time) bool {
	if t.DueDate == nil || t.Status == TaskDone {
		return false
	}
	due, err := time.Parse(time.RFC3339, *t.DueDate)
	return err == nil && due.Before(now)
}

// HighPriority reports whether the task counts toward the high-priority bucket.
func (t Task) HighPriority() bool {
	return t.Priority == PriorityHigh || t.Priority == PriorityCritical
}

type TimeEntry struct {
	ID         string  `json:"id"`
	TaskID     string  `json:"task_id"`
	UserID     string  `json:"user_id"`
	HoursSpent float64 `json:"hours_spent"`
	Billable   bool    `json:"billable"`
	WorkDate   string  `json:"work_date" format:"date"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type Comment struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
