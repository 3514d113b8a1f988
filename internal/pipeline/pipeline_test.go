package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"daybook/internal/crypto"
	"daybook/internal/prompt"
	"daybook/internal/store"
)

func newTestPipeline(t *testing.T, llm llmClient) (*Pipeline, *store.Store) {
	t.Helper()
	keyring.MockInit()
	vault, err := crypto.New()
	require.NoError(t, err)

	dir := t.TempDir()
	st, err := store.Open(context.Background(), dir, "test.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	p := &Pipeline{llm: llm, store: st, vault: vault, nowMS: func() int64 { return 1_700_000_000_000 }}
	return p, st
}

type fakeLLM struct {
	responses []any
	calls     int
}

func (f *fakeLLM) GenerateJSON(_ context.Context, _ string, v any) error {
	resp := f.responses[f.calls]
	f.calls++
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func TestDayWindowComputesLocalMidnightInUTC(t *testing.T) {
	// 2024-01-15 23:30 UTC, PST offset (480 minutes west of UTC) -> local
	// date is still 2024-01-15 (15:30 local), so the window should start at
	// 2024-01-15 08:00 UTC (midnight PST) and run 24h.
	now := time.Date(2024, 1, 15, 23, 30, 0, 0, time.UTC)
	startMS, endMS, dateStr := dayWindow(480, now)

	require.Equal(t, "2024-01-15", dateStr)
	start := time.UnixMilli(startMS).UTC()
	require.Equal(t, time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC), start)
	require.Equal(t, startMS+86400*1000, endMS)
}

func TestDayWindowZeroOffsetIsUTCMidnight(t *testing.T) {
	now := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	startMS, _, dateStr := dayWindow(0, now)
	require.Equal(t, "2024-03-02", dateStr)
	require.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC).UnixMilli(), startMS)
}

func TestBuildMessagesForPromptSkipsEmptyBodies(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	empty, err := p.vault.EncryptString("   ")
	require.NoError(t, err)
	greeting, err := p.vault.EncryptString("hello team")
	require.NoError(t, err)

	items := []store.ContentItem{
		{ID: "ci1", Body: sql.NullString{String: empty, Valid: true}, CreatedAt: 1000},
		{
			ID: "ci2", Body: sql.NullString{String: greeting, Valid: true},
			AuthorID: sql.NullString{String: "U1", Valid: true},
			ChannelOrProject: sql.NullString{String: "general", Valid: true},
			CreatedAt: 1000,
		},
	}

	messages := p.buildMessagesForPrompt(items, map[string]string{"U1": "Alice"})
	require.Len(t, messages, 1)
	require.Equal(t, "ci2", messages[0].ID)
	require.Equal(t, "Alice", messages[0].Author)
	require.Equal(t, "general", messages[0].Channel)
	require.Equal(t, "hello team", messages[0].Text)
}

func TestBuildMessagesForPromptFallsBackToAuthorID(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	ct, err := p.vault.EncryptString("text")
	require.NoError(t, err)

	items := []store.ContentItem{
		{ID: "ci1", Body: sql.NullString{String: ct, Valid: true}, AuthorID: sql.NullString{String: "U9", Valid: true}, CreatedAt: 1000},
	}
	messages := p.buildMessagesForPrompt(items, map[string]string{})
	require.Len(t, messages, 1)
	require.Equal(t, "U9", messages[0].Author)
	require.Equal(t, "unknown", messages[0].Channel)
}

func TestStoreResultsCreatesNewTopicAndDailyRollup(t *testing.T) {
	p, st := newTestPipeline(t, nil)
	ctx := context.Background()

	result := prompt.GroupedAnalysisResult{
		Groups: []prompt.ContentGroup{
			{
				Topic: "Q1 Launch", Channels: []string{"#general"}, Summary: "Launch discussion",
				Category: "product", ImportanceScore: 0.8, MessageIDs: []string{"m1", "m2"},
			},
		},
		DailySummary: "Busy day",
		KeyThemes:    []string{"launch"},
	}

	stored, err := p.storeResults(ctx, result, "2024-01-15", map[string][]string{})
	require.NoError(t, err)
	require.Equal(t, 1, stored)

	topicID := generateTopicID("Q1 Launch", "2024-01-15")
	sm, ok, err := st.GetSummary(ctx, topicID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, store.SummaryTypeGroup, sm.SummaryType)
	require.InDelta(t, 0.9, sm.CategoryConfidence.Float64, 0.0001)

	daily, ok, err := st.GetSummary(ctx, "daily_2024-01-15")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Busy day", daily.Summary)
}

func TestStoreResultsMergesIntoRecognizedExistingTopic(t *testing.T) {
	p, st := newTestPipeline(t, nil)
	ctx := context.Background()

	entities, err := json.Marshal(topicEntities{Topic: "Q1 Launch", MessageIDs: []string{"m1"}})
	require.NoError(t, err)
	require.NoError(t, st.UpsertSummary(ctx, store.Summary{
		ID: "topic_existing", SummaryType: store.SummaryTypeGroup, Summary: "old",
		Entities: sql.NullString{String: string(entities), Valid: true}, GeneratedAt: 1,
	}))

	result := prompt.GroupedAnalysisResult{
		Groups: []prompt.ContentGroup{
			{TopicID: "topic_existing", Topic: "Q1 Launch", Summary: "updated", MessageIDs: []string{"m2"}},
		},
	}

	existingMap := map[string][]string{"topic_existing": {"m1"}}
	stored, err := p.storeResults(ctx, result, "2024-01-15", existingMap)
	require.NoError(t, err)
	require.Equal(t, 1, stored)

	sm, ok, err := st.GetSummary(ctx, "topic_existing")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "updated", sm.Summary)

	var ent topicEntities
	require.NoError(t, json.Unmarshal([]byte(sm.Entities.String), &ent))
	require.Equal(t, []string{"m1", "m2"}, ent.MessageIDs)
}

func TestStoreResultsHandlesTopicIDCollision(t *testing.T) {
	p, st := newTestPipeline(t, nil)
	ctx := context.Background()

	// A row already occupies the hash-derived id, but the model did NOT
	// claim this as an existing topic (no TopicID set) - this is a genuine
	// collision, not a merge.
	collidingID := generateTopicID("Unrelated Topic", "2024-01-15")
	require.NoError(t, st.UpsertSummary(ctx, store.Summary{
		ID: collidingID, SummaryType: store.SummaryTypeGroup, Summary: "unrelated", GeneratedAt: 1,
	}))

	result := prompt.GroupedAnalysisResult{
		Groups: []prompt.ContentGroup{
			{Topic: "Unrelated Topic", Summary: "new topic, same hash", MessageIDs: []string{"m1"}},
		},
	}

	stored, err := p.storeResults(ctx, result, "2024-01-15", map[string][]string{})
	require.NoError(t, err)
	require.Equal(t, 1, stored)

	// The original row must be untouched.
	original, ok, err := st.GetSummary(ctx, collidingID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "unrelated", original.Summary)
}

func TestProcessHierarchicalPartitionsByChannelSize(t *testing.T) {
	big := make([]messageForPrompt, hierarchicalChannelThreshold)
	for i := range big {
		big[i] = messageForPrompt{ID: "b", Channel: "#big", Text: "x"}
	}
	small := []messageForPrompt{{ID: "s1", Channel: "#small", Text: "y"}}

	llm := &fakeLLM{responses: []any{
		prompt.ChannelSummary{Channel: "#big", Summary: "big channel summary"},
		prompt.GroupedAnalysisResult{DailySummary: "rollup"},
	}}
	p, _ := newTestPipeline(t, llm)

	result, err := p.processHierarchical(context.Background(), "2024-01-15", map[string][]messageForPrompt{
		"#big": big, "#small": small,
	})
	require.NoError(t, err)
	require.Equal(t, "rollup", result.DailySummary)
	require.Equal(t, 2, llm.calls)
}
