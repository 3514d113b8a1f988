package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ContentItem is a normalized unit of ingested content. Body is ciphertext;
// callers decrypt through the crypto vault.
type ContentItem struct {
	ID                string
	Source            string
	SourceID          string
	SourceURL         sql.NullString
	ContentType       string
	Title             sql.NullString
	Body              sql.NullString
	AuthorID          sql.NullString
	ChannelOrProject  sql.NullString
	ParentID          sql.NullString
	CreatedAt         int64
	UpdatedAt         int64
	SyncedAt          int64
	Metadata          sql.NullString
}

// UpsertContentItem inserts a new row, or — on a (source, source_id)
// conflict — updates body/updated_at/synced_at while leaving created_at
// immutable, per the spec's ContentItem invariant.
func (s *Store) UpsertContentItem(ctx context.Context, item ContentItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content_items
			(id, source, source_id, source_url, content_type, title, body, author_id, channel_or_project, parent_id, created_at, updated_at, synced_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, source_id) DO UPDATE SET
			body = excluded.body,
			updated_at = excluded.updated_at,
			synced_at = excluded.synced_at
	`,
		item.ID, item.Source, item.SourceID, item.SourceURL, item.ContentType, item.Title, item.Body,
		item.AuthorID, item.ChannelOrProject, item.ParentID, item.CreatedAt, item.UpdatedAt, item.SyncedAt, item.Metadata,
	)
	if err != nil {
		return fmt.Errorf("store: upserting content item %s/%s: %w", item.Source, item.SourceID, err)
	}
	return nil
}

// SourceURLsForIDs returns the source_url of every content item in ids that
// has one set, keyed by id. Used by the digest reader to attach links back
// to the original message/issue/page behind a group summary.
func (s *Store) SourceURLsForIDs(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string)
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, source_url FROM content_items WHERE id IN (%s) AND source_url IS NOT NULL`, placeholders,
	), args...)
	if err != nil {
		return nil, fmt.Errorf("store: batch looking up source urls: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, url string
		if err := rows.Scan(&id, &url); err != nil {
			return nil, fmt.Errorf("store: scanning source url: %w", err)
		}
		out[id] = url
	}
	return out, rows.Err()
}

// UnsummarizedItemsInWindow returns ContentItems created in [startMS, endMS)
// that have no corresponding item-type summary row yet, ordered oldest first.
func (s *Store) UnsummarizedItemsInWindow(ctx context.Context, startMS, endMS int64) ([]ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ci.id, ci.source, ci.source_id, ci.source_url, ci.content_type, ci.title, ci.body,
		       ci.author_id, ci.channel_or_project, ci.parent_id, ci.created_at, ci.updated_at, ci.synced_at, ci.metadata
		FROM content_items ci
		LEFT JOIN ai_summaries s ON s.content_item_id = ci.id AND s.summary_type = 'item'
		WHERE s.id IS NULL AND ci.created_at >= ? AND ci.created_at < ?
		ORDER BY ci.created_at ASC
	`, startMS, endMS)
	if err != nil {
		return nil, fmt.Errorf("store: querying unsummarized items: %w", err)
	}
	defer rows.Close()

	var items []ContentItem
	for rows.Next() {
		var it ContentItem
		if err := rows.Scan(&it.ID, &it.Source, &it.SourceID, &it.SourceURL, &it.ContentType, &it.Title, &it.Body,
			&it.AuthorID, &it.ChannelOrProject, &it.ParentID, &it.CreatedAt, &it.UpdatedAt, &it.SyncedAt, &it.Metadata); err != nil {
			return nil, fmt.Errorf("store: scanning content item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
