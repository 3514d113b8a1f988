package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"daybook/internal/crypto"
	atlassianapi "daybook/internal/sourceclient/atlassian"
	"daybook/internal/store"
)

// fakeAtlassianAPI is an in-memory stand-in for the Atlassian REST surface,
// returning one page of results then an empty page, used to exercise
// AtlassianWorker without a network round trip.
type fakeAtlassianAPI struct {
	resources    []atlassianapi.CloudResource
	issues       []atlassianapi.Issue
	pages        []atlassianapi.Page
	issuesCalls  int
	pagesCalls   int
	refreshCalls int
	refreshed    atlassianapi.Tokens
}

func (f *fakeAtlassianAPI) RefreshTokens(context.Context, string) (atlassianapi.Tokens, error) {
	f.refreshCalls++
	return f.refreshed, nil
}

func (f *fakeAtlassianAPI) AccessibleResources(context.Context, string) ([]atlassianapi.CloudResource, error) {
	return f.resources, nil
}

func (f *fakeAtlassianAPI) SearchIssues(_ context.Context, _, _, _ string, startAt, _ int) ([]atlassianapi.Issue, error) {
	f.issuesCalls++
	if startAt > 0 {
		return nil, nil
	}
	return f.issues, nil
}

func (f *fakeAtlassianAPI) SearchPages(_ context.Context, _, _, _ string, start, _ int) ([]atlassianapi.Page, error) {
	f.pagesCalls++
	if start > 0 {
		return nil, nil
	}
	return f.pages, nil
}

func newTestAtlassianWorker(t *testing.T, api *fakeAtlassianAPI) (*AtlassianWorker, *store.Store) {
	t.Helper()
	keyring.MockInit()
	vault, err := crypto.New()
	require.NoError(t, err)

	dir := t.TempDir()
	st, err := store.Open(context.Background(), dir, "test.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	w := &AtlassianWorker{
		client: api,
		store:  st,
		vault:  vault,
		nowMS:  func() int64 { return 1_700_000_000_000 },
	}
	return w, st
}

func TestAtlassianSyncAllReturnsNotConnectedWithoutCredential(t *testing.T) {
	w, _ := newTestAtlassianWorker(t, &fakeAtlassianAPI{})
	_, err := w.SyncAll(context.Background())
	require.ErrorIs(t, err, ErrAtlassianNotConnected)
}

func TestAtlassianSaveTokensResolvesCloudSite(t *testing.T) {
	api := &fakeAtlassianAPI{resources: []atlassianapi.CloudResource{
		{ID: "cloud-1", Name: "Acme", URL: "https://acme.atlassian.net"},
	}}
	w, st := newTestAtlassianWorker(t, api)

	ctx := context.Background()
	require.NoError(t, w.SaveTokens(ctx, atlassianapi.Tokens{AccessToken: "at1", RefreshToken: "rt1", ExpiresIn: 3600}))

	cred, ok, err := w.loadCredential(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "cloud-1", cred.CloudID)
	require.Equal(t, int64(1_700_000_000_000+3600*1000), cred.ExpiresAtMS)
	_ = st
}

func TestAtlassianSyncAllPersistsIssuesAndPagesWithMillisecondTimestamps(t *testing.T) {
	api := &fakeAtlassianAPI{
		resources: []atlassianapi.CloudResource{{ID: "cloud-1", Name: "Acme"}},
		issues: []atlassianapi.Issue{
			{Key: "TEST-1", Summary: "Fix bug", Description: "desc", Reporter: "Jane", ProjectKey: "TEST",
				Created: "2024-01-15T10:00:00Z", Updated: "2024-01-16T10:00:00Z", URL: "https://acme.atlassian.net/browse/TEST-1"},
		},
		pages: []atlassianapi.Page{
			{ID: "p1", Title: "Doc", Body: "<p>hi</p>", Author: "Jane", SpaceKey: "DOCS",
				Created: "2024-01-10T08:00:00Z", Updated: "2024-01-12T16:00:00Z", URL: "https://acme.atlassian.net/wiki/spaces/DOCS/pages/p1"},
		},
	}
	w, st := newTestAtlassianWorker(t, api)
	ctx := context.Background()

	require.NoError(t, w.SaveTokens(ctx, atlassianapi.Tokens{AccessToken: "at1", RefreshToken: "rt1", ExpiresIn: 3600}))

	result, err := w.SyncAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, result.ItemsSynced)
	require.Equal(t, 1, api.issuesCalls)
	require.Equal(t, 1, api.pagesCalls)

	items, err := st.UnsummarizedItemsInWindow(ctx, 0, 2_000_000_000_000)
	require.NoError(t, err)
	require.Len(t, items, 2)

	byType := map[string]int64{}
	for _, it := range items {
		byType[it.ContentType] = it.CreatedAt
	}
	require.Equal(t, int64(1705312800000), byType["jira_issue"])
	require.Equal(t, int64(1704873600000), byType["confluence_page"])
}

func TestAtlassianValidTokenRefreshesNearExpiry(t *testing.T) {
	api := &fakeAtlassianAPI{
		resources: []atlassianapi.CloudResource{{ID: "cloud-1", Name: "Acme"}},
		refreshed: atlassianapi.Tokens{AccessToken: "at2", RefreshToken: "rt2", ExpiresIn: 3600},
	}
	w, _ := newTestAtlassianWorker(t, api)
	ctx := context.Background()

	require.NoError(t, w.SaveTokens(ctx, atlassianapi.Tokens{AccessToken: "at1", RefreshToken: "rt1", ExpiresIn: 30}))

	cred, ok, err := w.loadCredential(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	refreshed, err := w.validToken(ctx, cred)
	require.NoError(t, err)
	require.Equal(t, "at2", refreshed.AccessToken)
	require.Equal(t, 1, api.refreshCalls)
}
