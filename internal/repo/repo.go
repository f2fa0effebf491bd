package repo

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskline/internal/domain"
	"taskline/internal/store"
)

// Repo is the SQLite-backed implementation of store.TaskStore.
type Repo struct {
	DB  *sql.DB
	Now func() time.Time

	mu      sync.Mutex
	subs    map[string]map[int64]*subscriber
	nextSub int64
}

var ErrNotFound = errors.New("not found")

func New(db *sql.DB) *Repo {
	return &Repo{
		DB:   db,
		Now:  time.Now,
		subs: map[string]map[int64]*subscriber{},
	}
}

func (r *Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Repo) CreateTask(ctx context.Context, ownerID string, fields store.TaskFields) (string, error) {
	id := uuid.New().String()
	now := r.now().UTC().Format(time.RFC3339)
	status := fields.Status
	if status == "" {
		status = domain.StatusPending
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO tasks(id,owner_id,name,description,deadline,status,created_at,updated_at,completed_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		id, ownerID, fields.Name, fields.Description, fields.Deadline, status, now, now, nullableStringPtr(fields.CompletedAt))
	if err != nil {
		return "", store.WriteError{Op: "create task", Err: err}
	}
	r.notify(ctx, ownerID)
	return id, nil
}

func (r *Repo) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT id,owner_id,name,description,deadline,status,created_at,updated_at,completed_at FROM tasks WHERE id=?`, taskID), taskID)
}

func scanTask(row *sql.Row, id string) (domain.Task, error) {
	var t domain.Task
	var completedAt sql.NullString
	err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Description, &t.Deadline, &t.Status, &t.CreatedAt, &t.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return t, store.NotFoundError{Kind: "task", ID: id}
	}
	if err != nil {
		return t, store.QueryError{Op: "get task", Err: err}
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.String
	}
	return t, nil
}

func (r *Repo) UpdateTask(ctx context.Context, taskID string, fields store.TaskFields) error {
	t, err := r.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	now := r.now().UTC().Format(time.RFC3339)
	res, err := r.DB.ExecContext(ctx, `UPDATE tasks SET name=?, description=?, deadline=?, status=?, completed_at=?, updated_at=? WHERE id=?`,
		fields.Name, fields.Description, fields.Deadline, fields.Status, nullableStringPtr(fields.CompletedAt), now, taskID)
	if err != nil {
		return store.WriteError{Op: "update task", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.NotFoundError{Kind: "task", ID: taskID}
	}
	r.notify(ctx, t.OwnerID)
	return nil
}

func (r *Repo) DeleteTask(ctx context.Context, taskID string) error {
	t, err := r.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, taskID); err != nil {
		return store.WriteError{Op: "delete task", Err: err}
	}
	r.notify(ctx, t.OwnerID)
	return nil
}

// ListTasksByOwner returns the owner's tasks in insertion order.
func (r *Repo) ListTasksByOwner(ctx context.Context, ownerID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,owner_id,name,description,deadline,status,created_at,updated_at,completed_at FROM tasks WHERE owner_id=? ORDER BY rowid ASC`, ownerID)
	if err != nil {
		return nil, store.QueryError{Op: "list tasks", Err: err}
	}
	defer rows.Close()
	res := []domain.Task{}
	for rows.Next() {
		var t domain.Task
		var completedAt sql.NullString
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Description, &t.Deadline, &t.Status, &t.CreatedAt, &t.UpdatedAt, &completedAt); err != nil {
			return nil, store.QueryError{Op: "list tasks", Err: err}
		}
		if completedAt.Valid {
			t.CompletedAt = &completedAt.String
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, store.QueryError{Op: "list tasks", Err: err}
	}
	return res, nil
}

func (r *Repo) FindByOwnerAndNormalizedName(ctx context.Context, ownerID, normalized string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,owner_id,name,description,deadline,status,created_at,updated_at,completed_at FROM tasks WHERE owner_id=? AND lower(name)=? ORDER BY rowid ASC`, ownerID, normalized)
	if err != nil {
		return nil, store.QueryError{Op: "find by name", Err: err}
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		var completedAt sql.NullString
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Description, &t.Deadline, &t.Status, &t.CreatedAt, &t.UpdatedAt, &completedAt); err != nil {
			return nil, store.QueryError{Op: "find by name", Err: err}
		}
		if completedAt.Valid {
			t.CompletedAt = &completedAt.String
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, store.QueryError{Op: "find by name", Err: err}
	}
	return res, nil
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
