package store

import (
	"context"
	"fmt"
)

// DataStats summarizes table sizes for the in-app storage view.
type DataStats struct {
	ContentItems int64
	Summaries    int64
	SyncedSlack  int64
	SyncedJira   int64
	SyncedConfluence int64
	DBSizeBytes  int64
}

// Stats computes row counts across the content-bearing tables plus the
// on-disk database file size.
func (s *Store) Stats(ctx context.Context) (DataStats, error) {
	var st DataStats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM content_items`).Scan(&st.ContentItems); err != nil {
		return DataStats{}, fmt.Errorf("store: counting content items: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM ai_summaries`).Scan(&st.Summaries); err != nil {
		return DataStats{}, fmt.Errorf("store: counting summaries: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM content_items WHERE source = 'slack'`).Scan(&st.SyncedSlack); err != nil {
		return DataStats{}, fmt.Errorf("store: counting slack items: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM content_items WHERE source = 'jira'`).Scan(&st.SyncedJira); err != nil {
		return DataStats{}, fmt.Errorf("store: counting jira items: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM content_items WHERE source = 'confluence'`).Scan(&st.SyncedConfluence); err != nil {
		return DataStats{}, fmt.Errorf("store: counting confluence items: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`).Scan(&st.DBSizeBytes); err != nil {
		return DataStats{}, fmt.Errorf("store: sizing database: %w", err)
	}
	return st, nil
}

// ClearSyncedContent deletes all synced content, summaries and cursors but
// preserves credentials and preferences — the "clear data" command.
func (s *Store) ClearSyncedContent(ctx context.Context) error {
	tables := []string{"ai_summaries", "content_items", "sync_state", "slack_users"}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+t); err != nil {
			return fmt.Errorf("store: clearing %s: %w", t, err)
		}
	}
	return nil
}

// FactoryReset deletes every row from every table, including credentials and
// preferences. Callers are responsible for also wiping the OS keyring master
// key through the crypto vault; this only clears the sqlite store.
func (s *Store) FactoryReset(ctx context.Context) error {
	tables := []string{
		"ai_summaries", "content_items", "sync_state", "slack_users",
		"slack_selected_channels", "credentials", "preferences", "analytics",
	}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+t); err != nil {
			return fmt.Errorf("store: resetting %s: %w", t, err)
		}
	}
	return nil
}
