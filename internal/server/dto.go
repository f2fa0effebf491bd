package server

import (
	"taskline/internal/domain"
)

// Request payloads

type SignupRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type ResetRequestRequest struct {
	Email string `json:"email" format:"email"`
}

type ResetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type TaskRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Deadline    string `json:"deadline" format:"date"`
}

// Response payloads

type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type TaskResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Deadline    string  `json:"deadline" format:"date"`
	Status      string  `json:"status" enum:"Pending,Completed"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
	Warning     string  `json:"warning,omitempty"`
}

type HistoryEntryResponse struct {
	TaskID      string   `json:"task_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Deadline    string   `json:"deadline" format:"date"`
	Days        []string `json:"days"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload,omitempty"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Deadline:    t.Deadline,
		Status:      t.Status,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
	}
}

func mapTasks(tasks []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskResponse(t))
	}
	return out
}

func historyResponse(e domain.CompletionLogEntry) HistoryEntryResponse {
	days := make([]string, 0, len(e.Days))
	for day, done := range e.Days {
		if done {
			days = append(days, day)
		}
	}
	return HistoryEntryResponse{
		TaskID:      e.TaskID,
		Name:        e.Name,
		Description: e.Description,
		Deadline:    e.Deadline,
		Days:        days,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Payload:    e.Payload,
	}
}
