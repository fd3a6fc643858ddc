package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// nowUnix returns the current Unix timestamp in seconds.
func nowUnix() int64 { return time.Now().Unix() }

// RecordEvent appends one auth event and returns its id.
func (d *DB) RecordEvent(ctx context.Context, kind, detail, remoteIP string) (string, error) {
	if kind == "" {
		return "", errors.New("event kind is required")
	}
	id := uuid.NewString()
	_, err := d.sql.ExecContext(ctx, `
INSERT INTO auth_events(id, kind, detail, remote_ip, created_at) VALUES(?, ?, ?, ?, ?)
`, id, kind, detail, remoteIP, nowUnix())
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListEvents returns the most recent events, newest first.
func (d *DB) ListEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := d.sql.QueryContext(ctx, `
SELECT id, kind, detail, remote_ip, created_at FROM auth_events
ORDER BY created_at DESC, id LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Kind, &e.Detail, &e.RemoteIP, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneEvents deletes events older than the cutoff and reports how many.
func (d *DB) PruneEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	res, err := d.sql.ExecContext(ctx, "DELETE FROM auth_events WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
