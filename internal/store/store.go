package store

import (
	"context"
	"fmt"

	"taskline/internal/domain"
)

// TaskFields carries the writable task columns. Status and CompletedAt are
// set by lifecycle operations, never taken from client input directly.
type TaskFields struct {
	Name        string
	Description string
	Deadline    string
	Status      string
	CompletedAt *string
}

// LogSnapshot is the denormalized task state written into a completion log
// entry the first time a task completes.
type LogSnapshot struct {
	Name        string
	Description string
	Deadline    string
}

// TaskStore is the document-store contract the lifecycle engine depends on.
// Implementations must scope every read and write by owner where the
// signature carries an ownerID.
type TaskStore interface {
	// CreateTask inserts a new task and returns the store-assigned id.
	CreateTask(ctx context.Context, ownerID string, fields TaskFields) (string, error)
	GetTask(ctx context.Context, taskID string) (domain.Task, error)
	UpdateTask(ctx context.Context, taskID string, fields TaskFields) error
	DeleteTask(ctx context.Context, taskID string) error
	ListTasksByOwner(ctx context.Context, ownerID string) ([]domain.Task, error)
	FindByOwnerAndNormalizedName(ctx context.Context, ownerID, normalized string) ([]domain.Task, error)

	// SubscribeByOwner registers onSnapshot for an owner's full task list.
	// The callback fires once immediately with the current list and again
	// after every change. The returned unsubscribe is idempotent; the
	// callback never fires after it returns.
	SubscribeByOwner(ownerID string, onSnapshot func([]domain.Task)) (unsubscribe func())

	// UpsertCompletionLog merges dayKey into the entry for (ownerID, taskID),
	// creating it from snapshot when absent.
	UpsertCompletionLog(ctx context.Context, ownerID, taskID, dayKey string, snapshot LogSnapshot) error
	GetCompletionLog(ctx context.Context, ownerID, taskID string) (domain.CompletionLogEntry, error)
	ListCompletionLogByOwner(ctx context.Context, ownerID string) ([]domain.CompletionLogEntry, error)
}

// WriteError wraps a failed store mutation.
type WriteError struct {
	Op  string
	Err error
}

func (e WriteError) Error() string { return fmt.Sprintf("store write %s: %v", e.Op, e.Err) }
func (e WriteError) Unwrap() error { return e.Err }

// QueryError wraps a failed store read.
type QueryError struct {
	Op  string
	Err error
}

func (e QueryError) Error() string { return fmt.Sprintf("store query %s: %v", e.Op, e.Err) }
func (e QueryError) Unwrap() error { return e.Err }

// NotFoundError reports a missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }
