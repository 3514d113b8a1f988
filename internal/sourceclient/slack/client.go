// Package slack talks to the Slack Web API: OAuth v2 user-token exchange,
// conversation discovery, and paginated history/thread fetches. It holds no
// state about what has already been synced — that bookkeeping belongs to the
// store package's sync cursors.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"daybook/internal/observability"
)

const (
	defaultAuthorizeURL = "https://slack.com/oauth/v2/authorize"
	defaultTokenURL     = "https://slack.com/api/oauth.v2.access"
	defaultAPIBaseURL   = "https://slack.com/api"

	// pageSize bounds every paginated Web API call.
	pageSize = 100
)

// scopes is the fixed set of read-only user-token permissions the app
// requests. There is no per-install scope negotiation.
var scopes = []string{
	"channels:history", "channels:read",
	"groups:history", "groups:read",
	"im:history", "im:read",
	"mpim:history", "mpim:read",
	"users:read", "search:read",
}

// Client is a Slack Web API client bound to one app's OAuth client
// credentials. It is stateless across workspaces; callers pass the
// workspace's access token into every call.
type Client struct {
	http         *http.Client
	clientID     string
	clientSecret string

	// authorizeURL, tokenURL, and apiBaseURL default to Slack's real
	// endpoints; tests override them to point at an httptest.Server.
	authorizeURL string
	tokenURL     string
	apiBaseURL   string
}

// New returns a Client for the given Slack app's OAuth client credentials.
func New(clientID, clientSecret string) *Client {
	return &Client{
		http:         observability.NewHTTPClient(nil),
		clientID:     clientID,
		clientSecret: clientSecret,
		authorizeURL: defaultAuthorizeURL,
		tokenURL:     defaultTokenURL,
		apiBaseURL:   defaultAPIBaseURL,
	}
}

// AuthorizeURL builds the user-consent URL the browser is sent to. It uses
// user_scope (not scope) so the granted token acts as the authorizing user,
// not a bot identity.
func (c *Client) AuthorizeURL(redirectURI, state string) string {
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("user_scope", strings.Join(scopes, ","))
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	return c.authorizeURL + "?" + q.Encode()
}

// ExchangeCode trades an authorization code for a user access token.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (Tokens, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Tokens{}, fmt.Errorf("slack: building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return Tokens{}, fmt.Errorf("%w: %v", ErrOAuth, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Tokens{}, fmt.Errorf("slack: reading token response: %w", err)
	}

	var parsed oauthResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Tokens{}, fmt.Errorf("slack: decoding token response: %w", err)
	}
	if !parsed.OK {
		return Tokens{}, fmt.Errorf("%w: %s", ErrOAuth, parsed.Error)
	}
	if parsed.AuthedUser == nil || parsed.AuthedUser.AccessToken == "" {
		return Tokens{}, fmt.Errorf("%w: response carried no authed_user access token", ErrOAuth)
	}

	tokens := Tokens{
		AccessToken: parsed.AuthedUser.AccessToken,
		TokenType:   parsed.AuthedUser.TokenType,
		Scope:       parsed.AuthedUser.Scope,
		UserID:      parsed.AuthedUser.ID,
	}
	if parsed.Team != nil {
		tokens.TeamID = parsed.Team.ID
		tokens.TeamName = parsed.Team.Name
	}
	return tokens, nil
}

// ListChannels returns every conversation (channel, DM, or group DM) the
// token's user can see, paging through the full cursor-paginated result set.
func (c *Client) ListChannels(ctx context.Context, token string) ([]Channel, error) {
	var all []Channel
	cursor := ""
	for {
		q := url.Values{}
		q.Set("types", "public_channel,private_channel,im,mpim")
		q.Set("limit", strconv.Itoa(pageSize))
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var page channelListResponse
		if err := c.get(ctx, token, "conversations.list", q, &page); err != nil {
			return nil, err
		}
		if !page.OK {
			return nil, fmt.Errorf("%w: %s", ErrAPI, page.Error)
		}
		for _, ch := range page.Channels {
			all = append(all, Channel{
				ID: ch.ID, Name: ch.Name,
				IsPrivate: ch.IsPrivate, IsIM: ch.IsIM, IsMPIM: ch.IsMPIM,
			})
		}

		cursor = page.ResponseMetadata.NextCursor
		if cursor == "" {
			break
		}
	}
	return all, nil
}

// ChannelHistory fetches one page of a channel's messages newer than oldest
// (a Slack timestamp, or empty for the beginning of history), resuming from
// cursor if non-empty. The caller persists nextCursor via the store's sync
// cursor helpers to resume later.
func (c *Client) ChannelHistory(ctx context.Context, token, channelID, oldest, cursor string) (messages []Message, nextCursor string, err error) {
	q := url.Values{}
	q.Set("channel", channelID)
	q.Set("limit", strconv.Itoa(pageSize))
	if oldest != "" {
		q.Set("oldest", oldest)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var page historyResponse
	if err := c.get(ctx, token, "conversations.history", q, &page); err != nil {
		return nil, "", err
	}
	if !page.OK {
		return nil, "", fmt.Errorf("%w: %s", ErrAPI, page.Error)
	}

	for _, m := range page.Messages {
		messages = append(messages, Message{
			TS: m.TS, User: m.User, Text: m.Text, ThreadTS: m.ThreadTS, ReplyCount: m.ReplyCount,
		})
	}
	return messages, page.ResponseMetadata.NextCursor, nil
}

// ThreadReplies returns every reply in a thread, paging through the full
// cursor-paginated result set (threads rarely need resumable bookkeeping the
// way top-level history does).
func (c *Client) ThreadReplies(ctx context.Context, token, channelID, threadTS string) ([]Message, error) {
	var all []Message
	cursor := ""
	for {
		q := url.Values{}
		q.Set("channel", channelID)
		q.Set("ts", threadTS)
		q.Set("limit", strconv.Itoa(pageSize))
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var page historyResponse
		if err := c.get(ctx, token, "conversations.replies", q, &page); err != nil {
			return nil, err
		}
		if !page.OK {
			return nil, fmt.Errorf("%w: %s", ErrAPI, page.Error)
		}
		for _, m := range page.Messages {
			// The thread's parent message is included in conversations.replies;
			// skip it since it's already synced as regular channel history.
			if m.TS == threadTS {
				continue
			}
			all = append(all, Message{
				TS: m.TS, User: m.User, Text: m.Text, ThreadTS: m.ThreadTS, ReplyCount: m.ReplyCount,
			})
		}

		cursor = page.ResponseMetadata.NextCursor
		if cursor == "" {
			break
		}
	}
	return all, nil
}

// AuthTest resolves the workspace's subdomain (e.g. "acme-corp" from
// "https://acme-corp.slack.com/") via auth.test, used to build human-
// navigable permalinks for synced messages.
func (c *Client) AuthTest(ctx context.Context, token string) (teamDomain string, err error) {
	var resp struct {
		OK    bool   `json:"ok"`
		URL   string `json:"url"`
		Error string `json:"error"`
	}
	if err := c.get(ctx, token, "auth.test", url.Values{}, &resp); err != nil {
		return "", err
	}
	if !resp.OK {
		return "", fmt.Errorf("%w: %s", ErrAPI, resp.Error)
	}
	u, err := url.Parse(resp.URL)
	if err != nil {
		return "", nil
	}
	host := u.Hostname()
	return strings.TrimSuffix(host, ".slack.com"), nil
}

// User is a workspace member's directory entry.
type User struct {
	ID          string
	Name        string
	RealName    string
	DisplayName string
}

type usersListResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Members []struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Profile struct {
			RealName    string `json:"real_name"`
			DisplayName string `json:"display_name"`
		} `json:"profile"`
	} `json:"members"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// ListUsers returns every member of the workspace, paging through the full
// cursor-paginated result set.
func (c *Client) ListUsers(ctx context.Context, token string) ([]User, error) {
	var all []User
	cursor := ""
	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(pageSize))
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var page usersListResponse
		if err := c.get(ctx, token, "users.list", q, &page); err != nil {
			return nil, err
		}
		if !page.OK {
			return nil, fmt.Errorf("%w: %s", ErrAPI, page.Error)
		}
		for _, m := range page.Members {
			all = append(all, User{
				ID: m.ID, Name: m.Name,
				RealName: m.Profile.RealName, DisplayName: m.Profile.DisplayName,
			})
		}

		cursor = page.ResponseMetadata.NextCursor
		if cursor == "" {
			break
		}
	}
	return all, nil
}

func (c *Client) get(ctx context.Context, token, method string, q url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/"+method+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("slack: building %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAPI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: HTTP 429 from %s", ErrRateLimited, method)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("slack: decoding %s response: %w", method, err)
	}
	return nil
}
