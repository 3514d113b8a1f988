package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SyncCursor reads the current cursor for a resource, if a sync_state row
// exists. The sync worker defaults the lower bound itself when ok is false.
func (s *Store) SyncCursor(ctx context.Context, source, resourceType, resourceID string) (cursor string, ok bool, err error) {
	var c sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT cursor FROM sync_state WHERE source = ? AND resource_type = ? AND resource_id = ?
	`, source, resourceType, resourceID).Scan(&c)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: reading sync cursor: %w", err)
	}
	if !c.Valid {
		return "", false, nil
	}
	return c.String, true, nil
}

// AdvanceCursor writes the new cursor for a resource after all of its pages
// have been persisted. Never call this from the historical-day path.
func (s *Store) AdvanceCursor(ctx context.Context, id, source, resourceType, resourceID, cursor string, lastSyncAtMS int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (id, source, resource_type, resource_id, last_sync_at, cursor, status)
		VALUES (?, ?, ?, ?, ?, ?, 'complete')
		ON CONFLICT(source, resource_type, resource_id) DO UPDATE SET
			last_sync_at = excluded.last_sync_at,
			cursor = excluded.cursor,
			status = 'complete'
	`, id, source, resourceType, resourceID, lastSyncAtMS, cursor)
	if err != nil {
		return fmt.Errorf("store: advancing cursor for %s/%s/%s: %w", source, resourceType, resourceID, err)
	}
	return nil
}

// RecordSyncError marks a resource's sync_state as errored without touching
// its cursor.
func (s *Store) RecordSyncError(ctx context.Context, id, source, resourceType, resourceID, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (id, source, resource_type, resource_id, status, error_message)
		VALUES (?, ?, ?, ?, 'error', ?)
		ON CONFLICT(source, resource_type, resource_id) DO UPDATE SET
			status = 'error',
			error_message = excluded.error_message
	`, id, source, resourceType, resourceID, errMsg)
	if err != nil {
		return fmt.Errorf("store: recording sync error for %s/%s/%s: %w", source, resourceType, resourceID, err)
	}
	return nil
}
