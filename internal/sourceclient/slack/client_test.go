package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthorizeURLUsesUserScope(t *testing.T) {
	c := New("client-123", "secret")
	raw := c.AuthorizeURL("http://127.0.0.1:8374/callback", "state-abc")

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "slack.com", parsed.Host)
	q := parsed.Query()
	require.Equal(t, "client-123", q.Get("client_id"))
	require.Equal(t, "state-abc", q.Get("state"))
	require.Contains(t, q.Get("user_scope"), "channels:history")
	require.Empty(t, q.Get("scope"))
}

func TestExchangeCodeReturnsAuthedUserToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "the-code", r.Form.Get("code"))
		_ = json.NewEncoder(w).Encode(oauthResponse{
			OK:         true,
			Team:       &teamInfo{ID: "T1", Name: "Acme"},
			AuthedUser: &authedUser{ID: "U1", AccessToken: "xoxp-abc", TokenType: "bearer", Scope: "channels:read"},
		})
	}))
	defer srv.Close()

	c := New("id", "secret")
	c.http = srv.Client()
	c.tokenURL = srv.URL

	tokens, err := c.ExchangeCode(context.Background(), "the-code", "http://localhost/cb")
	require.NoError(t, err)
	require.Equal(t, "xoxp-abc", tokens.AccessToken)
	require.Equal(t, "Acme", tokens.TeamName)
	require.Equal(t, "U1", tokens.UserID)
}

func TestExchangeCodeSurfacesOAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(oauthResponse{OK: false, Error: "invalid_code"})
	}))
	defer srv.Close()

	c := New("id", "secret")
	c.http = srv.Client()
	c.tokenURL = srv.URL

	_, err := c.ExchangeCode(context.Background(), "bad", "http://localhost/cb")
	require.ErrorIs(t, err, ErrOAuth)
}

func TestListChannelsFollowsCursor(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("cursor") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok":                true,
				"channels":          []map[string]any{{"id": "C1", "name": "general"}},
				"response_metadata": map[string]string{"next_cursor": "page2"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":                true,
			"channels":          []map[string]any{{"id": "C2", "name": "random", "is_private": true}},
			"response_metadata": map[string]string{"next_cursor": ""},
		})
	}))
	defer srv.Close()

	c := New("id", "secret")
	c.http = srv.Client()
	c.apiBaseURL = srv.URL

	channels, err := c.ListChannels(context.Background(), "token")
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Len(t, channels, 2)
	require.Equal(t, "C1", channels[0].ID)
	require.True(t, channels[1].IsPrivate)
}

func TestChannelHistoryReturnsMessagesAndCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "C1", r.URL.Query().Get("channel"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"messages": []map[string]any{
				{"ts": "1.1", "user": "U1", "text": "hi", "thread_ts": "1.1", "reply_count": 2},
			},
			"response_metadata": map[string]string{"next_cursor": "next"},
		})
	}))
	defer srv.Close()

	c := New("id", "secret")
	c.http = srv.Client()
	c.apiBaseURL = srv.URL

	msgs, cursor, err := c.ChannelHistory(context.Background(), "token", "C1", "", "")
	require.NoError(t, err)
	require.Equal(t, "next", cursor)
	require.Len(t, msgs, 1)
	require.Equal(t, "hi", msgs[0].Text)
}

func TestThreadRepliesSkipsParentMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"messages": []map[string]any{
				{"ts": "1.0", "user": "U1", "text": "parent"},
				{"ts": "1.1", "user": "U2", "text": "reply"},
			},
			"response_metadata": map[string]string{"next_cursor": ""},
		})
	}))
	defer srv.Close()

	c := New("id", "secret")
	c.http = srv.Client()
	c.apiBaseURL = srv.URL

	replies, err := c.ThreadReplies(context.Background(), "token", "C1", "1.0")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	require.Equal(t, "reply", replies[0].Text)
}

func TestAuthTestExtractsSubdomain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "url": "https://acme-corp.slack.com/"})
	}))
	defer srv.Close()

	c := New("id", "secret")
	c.http = srv.Client()
	c.apiBaseURL = srv.URL

	domain, err := c.AuthTest(context.Background(), "token")
	require.NoError(t, err)
	require.Equal(t, "acme-corp", domain)
}

func TestListUsersFollowsCursor(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("cursor") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok":                true,
				"members":           []map[string]any{{"id": "U1", "name": "alice", "profile": map[string]any{"real_name": "Alice Smith"}}},
				"response_metadata": map[string]string{"next_cursor": "p2"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":                true,
			"members":           []map[string]any{{"id": "U2", "name": "bob"}},
			"response_metadata": map[string]string{"next_cursor": ""},
		})
	}))
	defer srv.Close()

	c := New("id", "secret")
	c.http = srv.Client()
	c.apiBaseURL = srv.URL

	users, err := c.ListUsers(context.Background(), "token")
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Len(t, users, 2)
	require.Equal(t, "Alice Smith", users[0].RealName)
}
