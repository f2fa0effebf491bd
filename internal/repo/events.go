package repo

import (
	"context"
	"database/sql"

	"taskline/internal/domain"
)

// LatestEvents returns the most recent audit events, newest first,
// optionally filtered by owner.
func (r *Repo) LatestEvents(ctx context.Context, limit int, ownerID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id,ts,type,owner_id,entity_kind,entity_id,payload_json FROM events`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id=?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var owner, entityID sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &owner, &e.EntityKind, &entityID, &e.Payload); err != nil {
			return nil, err
		}
		if owner.Valid {
			e.OwnerID = owner.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
