package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"daybook/internal/store"
)

func TestDataStatsReportsZeroOnFreshStore(t *testing.T) {
	a := newTestApp(t)
	stats, err := a.DataStats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.ContentItems)
	require.Zero(t, stats.Summaries)
}

func TestClearSyncedDataDeletesContentAndSummaries(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.store.UpsertContentItem(ctx, store.ContentItem{
		ID: "c1", Source: "slack", SourceID: "C1:1700000100.0001", ContentType: "message",
		CreatedAt: 1_700_000_000_000, UpdatedAt: 1_700_000_000_000, SyncedAt: 1_700_000_000_000,
	}))

	result, err := a.ClearSyncedData(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), result.ItemsDeleted)

	stats, err := a.DataStats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.ContentItems)
}

func TestFactoryResetClearsPreferencesAndDisablesPipeline(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.SaveAPIKey(ctx, "sk-test"))
	require.NoError(t, a.FactoryReset(ctx))

	authType, err := a.GeminiAuthType(ctx)
	require.NoError(t, err)
	require.Equal(t, "none", authType)

	prefs, err := a.GetPreferences(ctx)
	require.NoError(t, err)
	require.Equal(t, defaultPreferences(), prefs)
}
