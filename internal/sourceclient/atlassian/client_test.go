package atlassian

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPKCEProducesValidChallenge(t *testing.T) {
	pkce, err := NewPKCE()
	require.NoError(t, err)
	require.NotEmpty(t, pkce.Verifier)
	require.NotEmpty(t, pkce.Challenge)
	require.NotEqual(t, pkce.Verifier, pkce.Challenge)
}

func TestAuthorizeURLIncludesPKCEAndAudience(t *testing.T) {
	c := New("client-id", "secret")
	pkce := PKCE{Verifier: "v", Challenge: "chal123"}
	raw := c.AuthorizeURL("http://127.0.0.1:8375/callback", "state-xyz", pkce)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	q := parsed.Query()
	require.Equal(t, "api.atlassian.com", q.Get("audience"))
	require.Equal(t, "chal123", q.Get("code_challenge"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "consent", q.Get("prompt"))
	require.Contains(t, q.Get("scope"), "offline_access")
}

func TestExchangeCodeSendsJSONWithVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body exchangeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "authorization_code", body.GrantType)
		require.Equal(t, "the-verifier", body.CodeVerifier)
		_ = json.NewEncoder(w).Encode(tokenResponse{
			AccessToken: "at-123", RefreshToken: "rt-456", ExpiresIn: 3600, Scope: "read:jira-work",
		})
	}))
	defer srv.Close()

	c := New("id", "secret")
	c.http = srv.Client()
	c.tokenURL = srv.URL

	tokens, err := c.ExchangeCode(context.Background(), "the-code", "http://localhost/cb", "the-verifier")
	require.NoError(t, err)
	require.Equal(t, "at-123", tokens.AccessToken)
	require.Equal(t, "rt-456", tokens.RefreshToken)
	require.Equal(t, int64(3600), tokens.ExpiresIn)
}

func TestExchangeCodeSurfacesOAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(tokenResponse{Error: "invalid_grant", ErrorDesc: "expired code"})
	}))
	defer srv.Close()

	c := New("id", "secret")
	c.http = srv.Client()
	c.tokenURL = srv.URL

	_, err := c.ExchangeCode(context.Background(), "bad", "http://localhost/cb", "v")
	require.ErrorIs(t, err, ErrOAuth)
}

func TestAccessibleResourcesParsesList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer at-123", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]accessibleResource{
			{ID: "cloud-1", Name: "My Site", URL: "https://my-site.atlassian.net", Scopes: []string{"read:jira-work"}},
		})
	}))
	defer srv.Close()

	c := New("id", "secret")
	c.http = srv.Client()
	c.resourcesURL = srv.URL

	resources, err := c.AccessibleResources(context.Background(), "at-123")
	require.NoError(t, err)
	require.Len(t, resources, 1)
	require.Equal(t, "cloud-1", resources[0].ID)
}

func TestSearchIssuesFlattensDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "/rest/api/3/search")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issues": []map[string]any{
				{
					"id": "10001", "key": "TEST-1",
					"fields": map[string]any{
						"summary": "Fix bug",
						"description": map[string]any{
							"content": []map[string]any{
								{"content": []map[string]any{{"text": "Detailed description"}}},
							},
						},
						"status":   map[string]any{"name": "Open"},
						"reporter": map[string]any{"displayName": "Jane"},
						"project":  map[string]any{"key": "TEST"},
						"created":  "2024-01-15T10:00:00Z",
						"updated":  "2024-01-16T10:00:00Z",
					},
				},
			},
		})
	}))
	defer srv.Close()

	c := New("id", "secret")
	c.http = srv.Client()
	c.apiBaseURL = srv.URL

	issues, err := c.SearchIssues(context.Background(), "at-123", "cloud-1", "project = TEST", 0, 10)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	require.Equal(t, "TEST-1", issues[0].Key)
	require.Equal(t, "Detailed description", issues[0].Description)
	require.Equal(t, "Jane", issues[0].Reporter)
}

func TestSearchIssuesHandlesMissingDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issues": []map[string]any{
				{
					"id": "10002", "key": "TEST-2",
					"fields": map[string]any{
						"summary":  "No description",
						"status":   map[string]any{"name": "Open"},
						"reporter": map[string]any{"displayName": "Bot"},
						"project":  map[string]any{"key": "TEST"},
						"created":  "2024-01-15T10:00:00Z",
						"updated":  "2024-01-15T10:00:00Z",
					},
				},
			},
		})
	}))
	defer srv.Close()

	c := New("id", "secret")
	c.http = srv.Client()
	c.apiBaseURL = srv.URL

	issues, err := c.SearchIssues(context.Background(), "at-123", "cloud-1", "project = TEST", 0, 10)
	require.NoError(t, err)
	require.Empty(t, issues[0].Description)
	require.Empty(t, issues[0].Assignee)
}

func TestSearchPagesUsesDistinctCreatedAndUpdatedFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "/wiki/rest/api/content/search")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{
					"id": "12345", "title": "Getting Started",
					"space": map[string]any{"key": "DOCS"},
					"body":  map[string]any{"storage": map[string]any{"value": "<p>Welcome</p>"}},
					"history": map[string]any{
						"createdBy":   map[string]any{"displayName": "Admin"},
						"createdDate": "2024-01-10T08:00:00Z",
					},
					"version": map[string]any{"when": "2024-01-12T16:00:00Z"},
					"_links":  map[string]any{"webui": "/spaces/DOCS/pages/12345"},
				},
			},
		})
	}))
	defer srv.Close()

	c := New("id", "secret")
	c.http = srv.Client()
	c.apiBaseURL = srv.URL

	pages, err := c.SearchPages(context.Background(), "at-123", "cloud-1", "space = DOCS", 0, 10)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Equal(t, "2024-01-10T08:00:00Z", pages[0].Created)
	require.Equal(t, "2024-01-12T16:00:00Z", pages[0].Updated)
	require.NotEqual(t, pages[0].Created, pages[0].Updated)
}
