package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"taskline/internal/domain"
	"taskline/internal/store"
)

// LogKey builds the deterministic completion-log id for an owner/task pair.
func LogKey(ownerID, taskID string) string {
	return ownerID + "_" + taskID
}

// UpsertCompletionLog merges dayKey into the entry for (ownerID, taskID).
// A missing entry is created from the snapshot; an existing one only gains
// the new day flag, its snapshot fields stay frozen at completion time.
func (r *Repo) UpsertCompletionLog(ctx context.Context, ownerID, taskID, dayKey string, snapshot store.LogSnapshot) error {
	id := LogKey(ownerID, taskID)
	now := r.now().UTC().Format(time.RFC3339)

	var daysJSON string
	err := r.DB.QueryRowContext(ctx, `SELECT days_json FROM completion_log WHERE id=?`, id).Scan(&daysJSON)
	if err == sql.ErrNoRows {
		days := map[string]bool{dayKey: true}
		data, err := json.Marshal(days)
		if err != nil {
			return store.WriteError{Op: "upsert completion log", Err: err}
		}
		_, err = r.DB.ExecContext(ctx, `INSERT INTO completion_log(id,owner_id,task_id,name,description,deadline,days_json,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
			id, ownerID, taskID, snapshot.Name, snapshot.Description, snapshot.Deadline, string(data), now, now)
		if err != nil {
			return store.WriteError{Op: "upsert completion log", Err: err}
		}
		return nil
	}
	if err != nil {
		return store.QueryError{Op: "upsert completion log", Err: err}
	}

	days := map[string]bool{}
	if err := json.Unmarshal([]byte(daysJSON), &days); err != nil {
		return store.WriteError{Op: "upsert completion log", Err: err}
	}
	days[dayKey] = true
	data, err := json.Marshal(days)
	if err != nil {
		return store.WriteError{Op: "upsert completion log", Err: err}
	}
	if _, err := r.DB.ExecContext(ctx, `UPDATE completion_log SET days_json=?, updated_at=? WHERE id=?`, string(data), now, id); err != nil {
		return store.WriteError{Op: "upsert completion log", Err: err}
	}
	return nil
}

func (r *Repo) GetCompletionLog(ctx context.Context, ownerID, taskID string) (domain.CompletionLogEntry, error) {
	id := LogKey(ownerID, taskID)
	var e domain.CompletionLogEntry
	var daysJSON string
	err := r.DB.QueryRowContext(ctx, `SELECT id,owner_id,task_id,name,description,deadline,days_json,created_at,updated_at FROM completion_log WHERE id=?`, id).
		Scan(&e.ID, &e.OwnerID, &e.TaskID, &e.Name, &e.Description, &e.Deadline, &daysJSON, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return e, store.NotFoundError{Kind: "completion log", ID: id}
	}
	if err != nil {
		return e, store.QueryError{Op: "get completion log", Err: err}
	}
	if err := json.Unmarshal([]byte(daysJSON), &e.Days); err != nil {
		return e, store.QueryError{Op: "get completion log", Err: err}
	}
	return e, nil
}

func (r *Repo) ListCompletionLogByOwner(ctx context.Context, ownerID string) ([]domain.CompletionLogEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,owner_id,task_id,name,description,deadline,days_json,created_at,updated_at FROM completion_log WHERE owner_id=? ORDER BY rowid ASC`, ownerID)
	if err != nil {
		return nil, store.QueryError{Op: "list completion log", Err: err}
	}
	defer rows.Close()
	res := []domain.CompletionLogEntry{}
	for rows.Next() {
		var e domain.CompletionLogEntry
		var daysJSON string
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.TaskID, &e.Name, &e.Description, &e.Deadline, &daysJSON, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, store.QueryError{Op: "list completion log", Err: err}
		}
		if err := json.Unmarshal([]byte(daysJSON), &e.Days); err != nil {
			return nil, store.QueryError{Op: "list completion log", Err: err}
		}
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, store.QueryError{Op: "list completion log", Err: err}
	}
	return res, nil
}
