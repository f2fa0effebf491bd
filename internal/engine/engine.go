package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"taskline/internal/config"
	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/store"
	"taskline/internal/validate"
)

// Engine drives the task lifecycle on top of a TaskStore. All operations are
// owner scoped: a caller never sees or mutates another owner's tasks.
type Engine struct {
	Store  store.TaskStore
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(st store.TaskStore, ev events.Writer, cfg *config.Config) Engine {
	return Engine{
		Store:  st,
		Events: ev,
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

func (e Engine) policy() validate.Policy {
	return validate.Policy{Now: e.Now}
}

func (e Engine) guard() DuplicateGuard {
	return DuplicateGuard{Store: e.Store}
}

// TaskInput carries the user-editable fields of a task.
type TaskInput struct {
	Name        string
	Description string
	Deadline    string
}

func (in TaskInput) candidate() validate.Candidate {
	return validate.Candidate{Name: in.Name, Description: in.Description, Deadline: in.Deadline}
}

// CreateTask validates input, rejects duplicates by name within the owner's
// tasks, and persists a new pending task.
func (e Engine) CreateTask(ctx context.Context, ownerID string, in TaskInput) (domain.Task, error) {
	if ownerID == "" {
		return domain.Task{}, AuthRequiredError{Op: "create task"}
	}
	if errs := e.policy().Validate(in.candidate()); len(errs) > 0 {
		return domain.Task{}, ValidationError{Fields: errs}
	}
	dup, err := e.guard().Exists(ctx, ownerID, in.Name, "")
	if err != nil {
		return domain.Task{}, err
	}
	if dup {
		return domain.Task{}, DuplicateError{Name: in.Name}
	}
	id, err := e.Store.CreateTask(ctx, ownerID, store.TaskFields{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Deadline:    in.Deadline,
		Status:      domain.StatusPending,
	})
	if err != nil {
		return domain.Task{}, err
	}
	t, err := e.Store.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	e.appendEvent(ctx, "task.created", ownerID, id, events.EventPayload{"name": t.Name, "status": t.Status})
	return t, nil
}

// EditTask replaces the editable fields of an owner's task. Unless configured
// otherwise, any edit moves the task back to pending so the owner re-confirms
// completion after a content change.
func (e Engine) EditTask(ctx context.Context, ownerID, taskID string, in TaskInput) (domain.Task, error) {
	if ownerID == "" {
		return domain.Task{}, AuthRequiredError{Op: "edit task"}
	}
	t, err := e.ownedTask(ctx, ownerID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if errs := e.policy().Validate(in.candidate()); len(errs) > 0 {
		return domain.Task{}, ValidationError{Fields: errs}
	}
	if e.Config != nil && e.Config.Lifecycle.DuplicateCheckOnEdit {
		dup, err := e.guard().Exists(ctx, ownerID, in.Name, taskID)
		if err != nil {
			return domain.Task{}, err
		}
		if dup {
			return domain.Task{}, DuplicateError{Name: in.Name}
		}
	}
	fields := store.TaskFields{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Deadline:    in.Deadline,
		Status:      t.Status,
		CompletedAt: t.CompletedAt,
	}
	if e.Config == nil || e.Config.Lifecycle.ReopenOnEdit {
		fields.Status = domain.StatusPending
		fields.CompletedAt = nil
	}
	if err := e.Store.UpdateTask(ctx, taskID, fields); err != nil {
		return domain.Task{}, err
	}
	updated, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	e.appendEvent(ctx, "task.updated", ownerID, taskID, events.EventPayload{
		"from_status": t.Status,
		"to_status":   updated.Status,
	})
	return updated, nil
}

// CompleteTask marks a pending task completed and records the completion day
// in the owner's history. Re-completing a completed task keeps completed_at
// untouched but still merges today's day into the history. A history write
// failure does not roll the completion back; it surfaces as a
// CompletionLogError wrapping the completed task state.
func (e Engine) CompleteTask(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	if ownerID == "" {
		return domain.Task{}, AuthRequiredError{Op: "complete task"}
	}
	t, err := e.ownedTask(ctx, ownerID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.now()
	if t.Status != domain.StatusCompleted {
		completedAt := now.UTC().Format(time.RFC3339)
		if err := e.Store.UpdateTask(ctx, taskID, store.TaskFields{
			Name:        t.Name,
			Description: t.Description,
			Deadline:    t.Deadline,
			Status:      domain.StatusCompleted,
			CompletedAt: &completedAt,
		}); err != nil {
			return domain.Task{}, err
		}
		t.Status = domain.StatusCompleted
		t.CompletedAt = &completedAt
		e.appendEvent(ctx, "task.completed", ownerID, taskID, events.EventPayload{"completed_at": completedAt})
	}
	if err := e.Store.UpsertCompletionLog(ctx, ownerID, taskID, DayKey(now), store.LogSnapshot{
		Name:        t.Name,
		Description: t.Description,
		Deadline:    t.Deadline,
	}); err != nil {
		return t, CompletionLogError{TaskID: taskID, Err: err}
	}
	return t, nil
}

// DeleteTask removes an owner's task. Completion history is kept.
func (e Engine) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	if ownerID == "" {
		return AuthRequiredError{Op: "delete task"}
	}
	if _, err := e.ownedTask(ctx, ownerID, taskID); err != nil {
		return err
	}
	if err := e.Store.DeleteTask(ctx, taskID); err != nil {
		return err
	}
	e.appendEvent(ctx, "task.deleted", ownerID, taskID, nil)
	return nil
}

// ListTasks returns the owner's tasks in creation order.
func (e Engine) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	if ownerID == "" {
		return nil, AuthRequiredError{Op: "list tasks"}
	}
	return e.Store.ListTasksByOwner(ctx, ownerID)
}

// GetTask returns one of the owner's tasks.
func (e Engine) GetTask(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	if ownerID == "" {
		return domain.Task{}, AuthRequiredError{Op: "get task"}
	}
	return e.ownedTask(ctx, ownerID, taskID)
}

// History returns the owner's completion log entries.
func (e Engine) History(ctx context.Context, ownerID string) ([]domain.CompletionLogEntry, error) {
	if ownerID == "" {
		return nil, AuthRequiredError{Op: "history"}
	}
	return e.Store.ListCompletionLogByOwner(ctx, ownerID)
}

// TaskHistory returns the completion log entry for one task.
func (e Engine) TaskHistory(ctx context.Context, ownerID, taskID string) (domain.CompletionLogEntry, error) {
	if ownerID == "" {
		return domain.CompletionLogEntry{}, AuthRequiredError{Op: "task history"}
	}
	return e.Store.GetCompletionLog(ctx, ownerID, taskID)
}

// appendEvent writes an audit event. The audit log is best effort: a failed
// append never fails or reorders the task mutation it describes.
func (e Engine) appendEvent(ctx context.Context, evtType, ownerID, taskID string, payload events.EventPayload) {
	if err := e.Events.Append(ctx, nil, evtType, ownerID, "task", taskID, payload); err != nil {
		log.Printf("engine: append %s event for task %s: %v", evtType, taskID, err)
	}
}

// ownedTask fetches a task and hides it behind not-found when it belongs to
// a different owner.
func (e Engine) ownedTask(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	t, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.OwnerID != ownerID {
		return domain.Task{}, store.NotFoundError{Kind: "task", ID: taskID}
	}
	return t, nil
}

// DayKey renders the completion day bucket for a local time, one bucket per
// calendar day.
func DayKey(t time.Time) string {
	return t.Local().Format("Mon Jan 02 2006")
}

// DuplicateGuard answers whether an owner already has a task with the same
// name, ignoring case and surrounding whitespace.
type DuplicateGuard struct {
	Store store.TaskStore
}

// Exists reports a name collision within the owner's tasks. excludeID skips
// one task, so edits do not collide with themselves.
func (g DuplicateGuard) Exists(ctx context.Context, ownerID, name, excludeID string) (bool, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return false, nil
	}
	matches, err := g.Store.FindByOwnerAndNormalizedName(ctx, ownerID, normalized)
	if err != nil {
		return false, err
	}
	for _, t := range matches {
		if t.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

// ValidationError aggregates per-field validation failures.
type ValidationError struct {
	Fields []validate.FieldError
}

func (e ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

// DuplicateError reports a task name already in use by the same owner.
type DuplicateError struct {
	Name string
}

func (e DuplicateError) Error() string {
	return fmt.Sprintf("a task named %q already exists", e.Name)
}

// AuthRequiredError reports an operation attempted without a signed-in owner.
type AuthRequiredError struct {
	Op string
}

func (e AuthRequiredError) Error() string {
	return fmt.Sprintf("%s: authentication required", e.Op)
}

// CompletionLogError reports a completed task whose history entry failed to
// write. The completion itself stands.
type CompletionLogError struct {
	TaskID string
	Err    error
}

func (e CompletionLogError) Error() string {
	return fmt.Sprintf("task %s completed, but history logging failed: %v", e.TaskID, e.Err)
}

func (e CompletionLogError) Unwrap() error { return e.Err }
