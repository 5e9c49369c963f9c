package server

import (
	"pulseboard/internal/domain"
)

type CreateUserRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email" format:"email"`
	Role  string `json:"role,omitempty" enum:"admin,manager,developer,viewer"`
}

type UserResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	Role        string  `json:"role"`
	LastLoginAt *string `json:"last_login_at,omitempty" format:"date-time"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        string(u.Role),
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

func mapUsers(users []domain.User) []UserResponse {
	res := make([]UserResponse, 0, len(users))
	for _, u := range users {
		res = append(res, userResponse(u))
	}
	return res
}

type CreateProjectRequest struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Priority  string `json:"priority,omitempty" enum:"low,medium,high,critical"`
	StartDate string `json:"start_date,omitempty" format:"date-time"`
	EndDate   string `json:"end_date,omitempty" format:"date-time"`
}

type ProjectResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Priority  string  `json:"priority"`
	StartDate string  `json:"start_date,omitempty" format:"date-time"`
	EndDate   *string `json:"end_date,omitempty" format:"date-time"`
	CreatedBy string  `json:"created_by"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:        p.ID,
		Name:      p.Name,
		Status:    p.Status,
		Priority:  p.Priority,
		StartDate: p.StartDate,
		EndDate:   p.EndDate,
		CreatedBy: p.CreatedBy,
		CreatedAt: p.CreatedAt,
	}
}

func mapProjects(projects []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		res = append(res, projectResponse(p))
	}
	return res
}

type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty" enum:"admin,manager,developer,viewer"`
}

type MembershipResponse struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

func membershipResponse(m domain.Membership) MembershipResponse {
	return MembershipResponse{
		ProjectID: m.ProjectID,
		UserID:    m.UserID,
		Role:      string(m.Role),
		CreatedAt: m.CreatedAt,
	}
}

type CreateTaskRequest struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty" enum:"low,medium,high,critical"`
	AssignedTo  string `json:"assigned_to,omitempty"`
	DueDate     string `json:"due_date,omitempty" format:"date-time"`
}

type UpdateTaskRequest struct {
	Status      string   `json:"status,omitempty" enum:"todo,in_progress,in_review,done"`
	Priority    string   `json:"priority,omitempty" enum:"low,medium,high,critical"`
	AssignedTo  *string  `json:"assigned_to,omitempty"`
	DueDate     *string  `json:"due_date,omitempty" format:"date-time"`
	ActualHours *float64 `json:"actual_hours,omitempty"`
}

type TaskResponse struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	AssignedTo  *string  `json:"assigned_to,omitempty"`
	CreatedBy   string   `json:"created_by"`
	DueDate     *string  `json:"due_date,omitempty" format:"date-time"`
	ActualHours *float64 `json:"actual_hours,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		AssignedTo:  t.AssignedTo,
		CreatedBy:   t.CreatedBy,
		DueDate:     t.DueDate,
		ActualHours: t.ActualHours,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func mapTasks(tasks []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, taskResponse(t))
	}
	return res
}

type LogTimeRequest struct {
	UserID   string  `json:"user_id,omitempty"`
	Hours    float64 `json:"hours_spent" minimum:"0"`
	Billable bool    `json:"billable,omitempty"`
	WorkDate string  `json:"work_date,omitempty" format:"date"`
}

type TimeEntryResponse struct {
	ID         string  `json:"id"`
	TaskID     string  `json:"task_id"`
	UserID     string  `json:"user_id"`
	HoursSpent float64 `json:"hours_spent"`
	Billable   bool    `json:"billable"`
	WorkDate   string  `json:"work_date" format:"date"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

func timeEntryResponse(e domain.TimeEntry) TimeEntryResponse {
	return TimeEntryResponse{
		ID:         e.ID,
		TaskID:     e.TaskID,
		UserID:     e.UserID,
		HoursSpent: e.HoursSpent,
		Billable:   e.Billable,
		WorkDate:   e.WorkDate,
		CreatedAt:  e.CreatedAt,
	}
}

type AddCommentRequest struct {
	Content string `json:"content"`
}

type CommentResponse struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

func commentResponse(c domain.Comment) CommentResponse {
	return CommentResponse{
		ID:        c.ID,
		TaskID:    c.TaskID,
		UserID:    c.UserID,
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
	}
}

func mapComments(comments []domain.Comment) []CommentResponse {
	res := make([]CommentResponse, 0, len(comments))
	for _, c := range comments {
		res = append(res, commentResponse(c))
	}
	return res
}

type DevLoginRequest struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty" format:"email"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}
