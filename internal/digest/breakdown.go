package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"daybook/internal/prompt"
	"daybook/internal/store"
)

// llmClient is the subset of llmclient.Client the breakdown generator
// needs, narrowed to an interface so tests can substitute a fake model.
type llmClient interface {
	GenerateJSON(ctx context.Context, prompt string, v any) error
}

// Generator produces the on-demand weekly status-update breakdown: the one
// digest operation that still calls the LLM, since it buckets the week's
// daily summaries into major/focus/obstacles/informational rather than
// just replaying what was already generated.
type Generator struct {
	store *store.Store
	llm   llmClient
	nowFn func() time.Time
}

// NewGenerator returns a Generator backed by st and llm.
func NewGenerator(st *store.Store, llm llmClient) *Generator {
	return &Generator{store: st, llm: llm, nowFn: time.Now}
}

type dailySummaryForPrompt struct {
	Date       string   `json:"date"`
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
}

// Breakdown is the result of GenerateWeeklyBreakdown: the titled bucketed
// report plus the resolved week_start it was computed for.
type Breakdown struct {
	Title     string                 `json:"title"`
	WeekStart string                 `json:"week_start"`
	Result    prompt.WeeklyBreakdown `json:"result"`
}

// GenerateWeeklyBreakdown gathers every daily_<date> summary within the week
// starting at weekStartStr (or, if empty, the Monday on or before today),
// and asks the LLM to sort the week's activity into a status-update-style
// breakdown. It errors if no daily summaries exist yet for that week — there
// is nothing to bucket until at least one day has gone through the pipeline.
func (g *Generator) GenerateWeeklyBreakdown(ctx context.Context, weekStartStr string, offsetMinutes int) (Breakdown, error) {
	r := &Reader{store: g.store, nowFn: g.nowFn}
	_, _, resolvedWeekStart, err := r.weekWindow(offsetMinutes, weekStartStr)
	if err != nil {
		return Breakdown{}, err
	}

	weekStart, err := time.Parse("2006-01-02", resolvedWeekStart)
	if err != nil {
		return Breakdown{}, fmt.Errorf("digest: parsing resolved week_start: %w", err)
	}

	var input []dailySummaryForPrompt
	var minDate, maxDate string
	for i := 0; i < 7; i++ {
		date := weekStart.AddDate(0, 0, i).Format("2006-01-02")
		sm, ok, err := g.store.GetSummary(ctx, "daily_"+date)
		if err != nil {
			return Breakdown{}, fmt.Errorf("digest: loading daily summary for %s: %w", date, err)
		}
		if !ok {
			continue
		}
		var highlights []string
		if sm.Highlights.Valid {
			_ = json.Unmarshal([]byte(sm.Highlights.String), &highlights)
		}
		input = append(input, dailySummaryForPrompt{Date: date, Summary: sm.Summary, Highlights: highlights})
		if minDate == "" || date < minDate {
			minDate = date
		}
		if maxDate == "" || date > maxDate {
			maxDate = date
		}
	}

	if len(input) == 0 {
		return Breakdown{}, fmt.Errorf("digest: not enough weekly summaries to generate a breakdown yet; sync and generate daily summaries for this week first")
	}

	title := fmt.Sprintf("Update - %s - %s", formatLongDate(minDate), formatLongDate(maxDate))

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return Breakdown{}, fmt.Errorf("digest: encoding daily summaries: %w", err)
	}

	guidance, err := g.userGuidance(ctx)
	if err != nil {
		return Breakdown{}, err
	}

	p := prompt.WeeklyBreakdownPrompt(title, string(inputJSON), guidance)

	var result prompt.WeeklyBreakdown
	if err := g.llm.GenerateJSON(ctx, p, &result); err != nil {
		return Breakdown{}, fmt.Errorf("digest: generating weekly breakdown: %w", err)
	}
	result.Major = normalizeBreakdownItems(result.Major)
	result.Focus = normalizeBreakdownItems(result.Focus)
	result.Obstacles = normalizeBreakdownItems(result.Obstacles)
	result.Informational = normalizeBreakdownItems(result.Informational)

	return Breakdown{Title: title, WeekStart: resolvedWeekStart, Result: result}, nil
}

// userGuidance extracts the user's free-text steering preference from the
// "user_preferences" JSON blob, if one is set.
func (g *Generator) userGuidance(ctx context.Context) (string, error) {
	raw, ok, err := g.store.GetPreference(ctx, "user_preferences")
	if err != nil {
		return "", fmt.Errorf("digest: loading user preferences: %w", err)
	}
	if !ok {
		return "", nil
	}
	var prefs struct {
		UserGuidance string `json:"userGuidance"`
	}
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return "", nil
	}
	return strings.TrimSpace(prefs.UserGuidance), nil
}

func formatLongDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("January 2, 2006")
}

func normalizeBreakdownItems(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimPrefix(strings.TrimSpace(item), "- ")
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
