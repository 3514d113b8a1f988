package digest

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"daybook/internal/prompt"
	"daybook/internal/store"
)

type fakeBreakdownLLM struct {
	lastPrompt string
	result     prompt.WeeklyBreakdown
}

func (f *fakeBreakdownLLM) GenerateJSON(_ context.Context, p string, v any) error {
	f.lastPrompt = p
	b, _ := json.Marshal(f.result)
	return json.Unmarshal(b, v)
}

func TestGenerateWeeklyBreakdownErrorsWithoutAnyDailySummaries(t *testing.T) {
	st := newTestStore(t)
	g := NewGenerator(st, &fakeBreakdownLLM{})
	g.nowFn = func() time.Time { return time.Date(2023, 11, 16, 0, 0, 0, 0, time.UTC) }

	_, err := g.GenerateWeeklyBreakdown(context.Background(), "2023-11-13", 0)
	require.Error(t, err)
}

func TestGenerateWeeklyBreakdownBucketsAndTitlesFromDailySummaries(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertSummary(ctx, store.Summary{
		ID: "daily_2023-11-13", SummaryType: store.SummaryTypeDaily, Summary: "Shipped the launch",
		Highlights:  sql.NullString{String: `["launch"]`, Valid: true},
		GeneratedAt: 1,
	}))
	require.NoError(t, st.UpsertSummary(ctx, store.Summary{
		ID: "daily_2023-11-15", SummaryType: store.SummaryTypeDaily, Summary: "Investigated an outage",
		GeneratedAt: 2,
	}))
	require.NoError(t, st.SetPreference(ctx, "user_preferences", `{"userGuidance":"focus on customer impact"}`))

	llm := &fakeBreakdownLLM{result: prompt.WeeklyBreakdown{
		Major:     []string{"- Shipped the launch"},
		Obstacles: []string{"Investigated an outage"},
	}}
	g := NewGenerator(st, llm)
	g.nowFn = func() time.Time { return time.Date(2023, 11, 16, 0, 0, 0, 0, time.UTC) }

	breakdown, err := g.GenerateWeeklyBreakdown(ctx, "2023-11-13", 0)
	require.NoError(t, err)
	require.Equal(t, "2023-11-13", breakdown.WeekStart)
	require.Contains(t, breakdown.Title, "November 13, 2023")
	require.Contains(t, breakdown.Title, "November 15, 2023")
	require.Equal(t, []string{"Shipped the launch"}, breakdown.Result.Major)
	require.Equal(t, []string{"Investigated an outage"}, breakdown.Result.Obstacles)
	require.Contains(t, llm.lastPrompt, "customer impact")
}
