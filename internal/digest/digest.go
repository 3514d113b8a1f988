package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"daybook/internal/store"
)

const maxTopItemsPerCategory = 3
const maxSourceURLsPerItem = 3

// Reader answers the get_daily_digest / get_weekly_digest surface by
// re-reading summaries the pipeline already produced. It never calls the
// LLM — a day or week with nothing synced and summarized yet just comes
// back with an empty Items slice.
type Reader struct {
	store *store.Store
	nowFn func() time.Time
}

// NewReader returns a Reader backed by st.
func NewReader(st *store.Store) *Reader {
	return &Reader{store: st, nowFn: time.Now}
}

// dayWindow computes the UTC millisecond range for local midnight-to-midnight
// on the given date (or today, if dateStr is empty), following the
// getTimezoneOffset() sign convention used throughout the sync/pipeline
// packages: offsetMinutes is positive west of UTC.
func (r *Reader) dayWindow(offsetMinutes int, dateStr string) (startMS, endMS int64, resolvedDate string, err error) {
	loc := time.FixedZone("local-offset", -offsetMinutes*60)

	var day time.Time
	if dateStr == "" {
		day = r.nowFn().In(loc)
	} else {
		day, err = time.ParseInLocation("2006-01-02", dateStr, loc)
		if err != nil {
			return 0, 0, "", fmt.Errorf("digest: parsing date %q: %w", dateStr, err)
		}
	}
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	startMS = midnight.UTC().UnixMilli()
	endMS = startMS + 86400*1000
	resolvedDate = midnight.Format("2006-01-02")
	return startMS, endMS, resolvedDate, nil
}

// weekWindow computes the UTC millisecond range covering the 7 local days
// starting at weekStr (or, if empty, the Monday on or before today).
func (r *Reader) weekWindow(offsetMinutes int, weekStr string) (startMS, endMS int64, resolvedWeekStart string, err error) {
	loc := time.FixedZone("local-offset", -offsetMinutes*60)

	var weekStart time.Time
	if weekStr == "" {
		today := r.nowFn().In(loc)
		daysSinceMonday := (int(today.Weekday()) + 6) % 7
		weekStart = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -daysSinceMonday)
	} else {
		weekStart, err = time.ParseInLocation("2006-01-02", weekStr, loc)
		if err != nil {
			return 0, 0, "", fmt.Errorf("digest: parsing week_start %q: %w", weekStr, err)
		}
		weekStart = time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day(), 0, 0, 0, 0, loc)
	}
	startMS = weekStart.UTC().UnixMilli()
	endMS = startMS + 7*86400*1000
	resolvedWeekStart = weekStart.Format("2006-01-02")
	return startMS, endMS, resolvedWeekStart, nil
}

// DailyDigest returns the digest for a single local day: its daily overview
// row (if the pipeline has produced one) followed by every group summary
// generated that day, bucketed by category.
func (r *Reader) DailyDigest(ctx context.Context, dateStr string, offsetMinutes int) (Response, error) {
	startMS, endMS, resolvedDate, err := r.dayWindow(offsetMinutes, dateStr)
	if err != nil {
		return Response{}, err
	}

	items, categories, err := r.groupItemsInWindow(ctx, startMS, endMS)
	if err != nil {
		return Response{}, err
	}

	dailyRows, err := r.dailySummariesInWindow(ctx, startMS, endMS)
	if err != nil {
		return Response{}, err
	}
	if len(dailyRows) > 0 {
		latest := dailyRows[len(dailyRows)-1]
		items = append([]Item{{
			ID:              "daily-summary",
			Title:           "Today's Overview",
			Summary:         latest.Summary,
			Highlights:      latest.highlights,
			Category:        "overview",
			Source:          "ai",
			ImportanceScore: 1.0,
			CreatedAt:       startMS,
		}}, items...)
	}

	return Response{Date: resolvedDate, Items: items, Categories: categories}, nil
}

// WeeklyDigest returns the digest for the 7 local days starting at
// weekStartStr: every group summary from the week, plus one overview item
// per day that already has a daily summary.
func (r *Reader) WeeklyDigest(ctx context.Context, weekStartStr string, offsetMinutes int) (Response, error) {
	startMS, endMS, resolvedWeekStart, err := r.weekWindow(offsetMinutes, weekStartStr)
	if err != nil {
		return Response{}, err
	}

	items, categories, err := r.groupItemsInWindow(ctx, startMS, endMS)
	if err != nil {
		return Response{}, err
	}

	loc := time.FixedZone("local-offset", -offsetMinutes*60)
	dailyRows, err := r.dailySummariesInWindow(ctx, startMS, endMS)
	if err != nil {
		return Response{}, err
	}
	for _, d := range dailyRows {
		dateDisplay := time.UnixMilli(d.generatedAt).In(loc).Format("Monday, Jan 2")
		items = append(items, Item{
			ID:              d.id,
			Title:           dateDisplay + " Overview",
			Summary:         d.Summary,
			Highlights:      d.highlights,
			Category:        "overview",
			Source:          "ai",
			ImportanceScore: 0.95,
			CreatedAt:       d.generatedAt,
		})
	}

	return Response{Date: resolvedWeekStart, Items: items, Categories: categories}, nil
}

type dailyRow struct {
	id          string
	Summary     string
	highlights  []string
	generatedAt int64
}

func (r *Reader) dailySummariesInWindow(ctx context.Context, startMS, endMS int64) ([]dailyRow, error) {
	rows, err := r.store.GroupSummariesInWindowByType(ctx, store.SummaryTypeDaily, startMS, endMS)
	if err != nil {
		return nil, err
	}
	out := make([]dailyRow, 0, len(rows))
	for _, row := range rows {
		var highlights []string
		if row.Highlights.Valid {
			_ = json.Unmarshal([]byte(row.Highlights.String), &highlights)
		}
		out = append(out, dailyRow{id: row.ID, Summary: row.Summary, highlights: highlights, generatedAt: row.GeneratedAt})
	}
	return out, nil
}

// groupItemsInWindow reads every group-type summary in [startMS, endMS),
// resolves a handful of source links per group, and buckets the resulting
// items by category.
func (r *Reader) groupItemsInWindow(ctx context.Context, startMS, endMS int64) ([]Item, []Category, error) {
	rows, err := r.store.GroupSummariesInWindow(ctx, startMS, endMS)
	if err != nil {
		return nil, nil, fmt.Errorf("digest: loading group summaries: %w", err)
	}

	var lookupIDs []string
	parsedByRow := make([]entities, len(rows))
	for i, row := range rows {
		var ent entities
		if row.Entities.Valid {
			_ = json.Unmarshal([]byte(row.Entities.String), &ent)
		}
		parsedByRow[i] = ent
		if len(ent.MessageIDs) > 0 {
			n := len(ent.MessageIDs)
			if n > maxSourceURLsPerItem {
				n = maxSourceURLsPerItem
			}
			lookupIDs = append(lookupIDs, ent.MessageIDs[:n]...)
		}
	}
	urlByID, err := r.store.SourceURLsForIDs(ctx, lookupIDs)
	if err != nil {
		return nil, nil, err
	}

	var items []Item
	byCategory := make(map[string]*Category)
	var order []string
	for i, row := range rows {
		ent := parsedByRow[i]
		category := "other"
		if row.Category.Valid && row.Category.String != "" {
			category = row.Category.String
		}
		importance := 0.5
		if row.ImportanceScore.Valid {
			importance = row.ImportanceScore.Float64
		}
		var highlights []string
		if row.Highlights.Valid {
			_ = json.Unmarshal([]byte(row.Highlights.String), &highlights)
		}

		var urls []string
		n := len(ent.MessageIDs)
		if n > maxSourceURLsPerItem {
			n = maxSourceURLsPerItem
		}
		for _, id := range ent.MessageIDs[:n] {
			if url, ok := urlByID[id]; ok {
				urls = append(urls, url)
			}
		}
		var primary string
		if len(urls) > 0 {
			primary = urls[0]
		}

		item := Item{
			ID:              row.ID,
			Title:           ent.Topic,
			Summary:         row.Summary,
			Highlights:      highlights,
			Category:        category,
			Source:          "slack",
			SourceURL:       primary,
			SourceURLs:      urls,
			ImportanceScore: importance,
			CreatedAt:       row.GeneratedAt,
			Channels:        ent.Channels,
			People:          ent.People,
			MessageCount:    len(ent.MessageIDs),
		}
		items = append(items, item)

		cat, ok := byCategory[category]
		if !ok {
			cat = &Category{Name: category}
			byCategory[category] = cat
			order = append(order, category)
		}
		cat.Count++
		if len(cat.TopItems) < maxTopItemsPerCategory {
			cat.TopItems = append(cat.TopItems, item)
		}
	}

	categories := make([]Category, 0, len(order))
	for _, name := range order {
		categories = append(categories, *byCategory[name])
	}
	return items, categories, nil
}
