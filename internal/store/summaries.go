package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Summary types stored in ai_summaries.summary_type.
const (
	SummaryTypeItem  = "item"
	SummaryTypeGroup = "group"
	SummaryTypeDaily = "daily"
	SummaryTypeWeekly = "weekly"
)

// Summary is a row of ai_summaries. ContentItemID is only set for item-type
// rows; Category/Entities are only populated for summaries an LLM annotated.
type Summary struct {
	ID                 string
	ContentItemID      sql.NullString
	SummaryType         string
	Summary             string
	Highlights           sql.NullString
	Category             sql.NullString
	CategoryConfidence   sql.NullFloat64
	ImportanceScore      sql.NullFloat64
	Entities             sql.NullString
	GeneratedAt          int64
}

func scanSummary(row interface{ Scan(...any) error }) (Summary, error) {
	var s Summary
	err := row.Scan(&s.ID, &s.ContentItemID, &s.SummaryType, &s.Summary, &s.Highlights,
		&s.Category, &s.CategoryConfidence, &s.ImportanceScore, &s.Entities, &s.GeneratedAt)
	return s, err
}

const summaryColumns = `id, content_item_id, summary_type, summary, highlights, category, category_confidence, importance_score, entities, generated_at`

// SummaryExists reports whether a summary row with the given id is already
// present, used by topic-id collision detection.
func (s *Store) SummaryExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM ai_summaries WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: checking summary existence %s: %w", id, err)
	}
	return n > 0, nil
}

// UpsertSummary inserts a summary row, or replaces it in place if the id
// already exists (used for topic/group summaries that get re-merged as more
// messages arrive in the same window).
func (s *Store) UpsertSummary(ctx context.Context, sm Summary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_summaries (`+summaryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content_item_id = excluded.content_item_id,
			summary_type = excluded.summary_type,
			summary = excluded.summary,
			highlights = excluded.highlights,
			category = excluded.category,
			category_confidence = excluded.category_confidence,
			importance_score = excluded.importance_score,
			entities = excluded.entities,
			generated_at = excluded.generated_at
	`, sm.ID, sm.ContentItemID, sm.SummaryType, sm.Summary, sm.Highlights,
		sm.Category, sm.CategoryConfidence, sm.ImportanceScore, sm.Entities, sm.GeneratedAt)
	if err != nil {
		return fmt.Errorf("store: upserting summary %s: %w", sm.ID, err)
	}
	return nil
}

// GetSummary fetches a single summary row by id.
func (s *Store) GetSummary(ctx context.Context, id string) (Summary, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+summaryColumns+` FROM ai_summaries WHERE id = ?`, id)
	sm, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return Summary{}, false, nil
	}
	if err != nil {
		return Summary{}, false, fmt.Errorf("store: reading summary %s: %w", id, err)
	}
	return sm, true, nil
}

// GroupSummariesInWindow returns every group-type summary generated within
// [startMS, endMS), used to carry forward existing topics into a later
// merge pass on the same day.
func (s *Store) GroupSummariesInWindow(ctx context.Context, startMS, endMS int64) ([]Summary, error) {
	return s.querySummaries(ctx, `
		SELECT `+summaryColumns+` FROM ai_summaries
		WHERE summary_type = 'group' AND generated_at >= ? AND generated_at < ?
		ORDER BY generated_at ASC
	`, startMS, endMS)
}

// GroupSummariesInWindowByType returns every summary of the given type
// generated within [startMS, endMS), ordered oldest first. Used by the
// digest reader for both the 'daily' and (were it ever populated) 'weekly'
// summary types, generalizing GroupSummariesInWindow's 'group'-only query.
func (s *Store) GroupSummariesInWindowByType(ctx context.Context, summaryType string, startMS, endMS int64) ([]Summary, error) {
	return s.querySummaries(ctx, `
		SELECT `+summaryColumns+` FROM ai_summaries
		WHERE summary_type = ? AND generated_at >= ? AND generated_at < ?
		ORDER BY generated_at ASC
	`, summaryType, startMS, endMS)
}

// DigestForDate returns the daily or weekly digest summary whose generated_at
// falls on noon UTC of the given date, if one has already been produced.
func (s *Store) DigestForDate(ctx context.Context, summaryType string, generatedAtMS int64) (Summary, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+summaryColumns+` FROM ai_summaries WHERE summary_type = ? AND generated_at = ?
	`, summaryType, generatedAtMS)
	sm, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return Summary{}, false, nil
	}
	if err != nil {
		return Summary{}, false, fmt.Errorf("store: reading %s digest: %w", summaryType, err)
	}
	return sm, true, nil
}

func (s *Store) querySummaries(ctx context.Context, query string, args ...any) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: querying summaries: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		sm, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning summary: %w", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}
