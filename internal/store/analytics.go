package store

import (
	"context"
	"fmt"
)

// RecordEvent appends a local usage event (sync completed, digest viewed,
// credential rotated, ...). Events are append-only and never synced anywhere;
// they exist purely for the in-app data-stats view.
func (s *Store) RecordEvent(ctx context.Context, eventType string, eventData string, createdAtMS int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analytics (event_type, event_data, created_at) VALUES (?, ?, ?)
	`, eventType, eventData, createdAtMS)
	if err != nil {
		return fmt.Errorf("store: recording event %s: %w", eventType, err)
	}
	return nil
}

// CountEventsSince returns how many events of the given type were recorded
// at or after sinceMS.
func (s *Store) CountEventsSince(ctx context.Context, eventType string, sinceMS int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM analytics WHERE event_type = ? AND created_at >= ?
	`, eventType, sinceMS).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: counting events %s: %w", eventType, err)
	}
	return n, nil
}
