// Package atlassian talks to Atlassian's OAuth 2.0 (3LO) + PKCE flow and the
// Jira/Confluence Cloud REST APIs reached through api.atlassian.com.
package atlassian

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"daybook/internal/observability"
)

const (
	defaultAuthorizeURL = "https://auth.atlassian.com/authorize"
	defaultTokenURL     = "https://auth.atlassian.com/oauth/token"
	defaultResourcesURL = "https://api.atlassian.com/oauth/token/accessible-resources"
	defaultAPIBaseURL   = "https://api.atlassian.com"

	audience = "api.atlassian.com"
)

var scopes = []string{
	"read:jira-work",
	"read:jira-user",
	"read:confluence-content.all",
	"read:confluence-space.summary",
	"offline_access",
}

// PKCE is a generated proof-key-for-code-exchange pair. The verifier is
// held by the caller across the redirect; the challenge is sent up front.
type PKCE struct {
	Verifier  string
	Challenge string
}

// NewPKCE generates a fresh verifier/challenge pair: a 32-byte random
// verifier, base64url-no-pad encoded, challenged via SHA-256 the same way.
func NewPKCE() (PKCE, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return PKCE{}, fmt.Errorf("atlassian: generating pkce verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(raw)

	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	return PKCE{Verifier: verifier, Challenge: challenge}, nil
}

// Client is an Atlassian OAuth 2.0 + REST client bound to one app's
// registered OAuth client credentials.
type Client struct {
	http         *http.Client
	clientID     string
	clientSecret string

	authorizeURL string
	tokenURL     string
	resourcesURL string
	apiBaseURL   string
}

// New returns a Client for the given Atlassian app's OAuth client
// credentials.
func New(clientID, clientSecret string) *Client {
	return &Client{
		http:         observability.NewHTTPClient(nil),
		clientID:     clientID,
		clientSecret: clientSecret,
		authorizeURL: defaultAuthorizeURL,
		tokenURL:     defaultTokenURL,
		resourcesURL: defaultResourcesURL,
		apiBaseURL:   defaultAPIBaseURL,
	}
}

// AuthorizeURL builds the user-consent URL for the given PKCE challenge and
// CSRF state.
func (c *Client) AuthorizeURL(redirectURI, state string, pkce PKCE) string {
	q := url.Values{}
	q.Set("audience", audience)
	q.Set("client_id", c.clientID)
	q.Set("scope", strings.Join(scopes, " "))
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	q.Set("response_type", "code")
	q.Set("prompt", "consent")
	q.Set("code_challenge", pkce.Challenge)
	q.Set("code_challenge_method", "S256")
	return c.authorizeURL + "?" + q.Encode()
}

type exchangeRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	CodeVerifier string `json:"code_verifier"`
}

// ExchangeCode trades an authorization code and its PKCE verifier for an
// access/refresh token pair.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (Tokens, error) {
	return c.requestToken(ctx, exchangeRequest{
		GrantType:    "authorization_code",
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Code:         code,
		RedirectURI:  redirectURI,
		CodeVerifier: codeVerifier,
	})
}

type refreshRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshTokens mints a new access token from a previously issued refresh
// token.
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (Tokens, error) {
	body, err := json.Marshal(refreshRequest{
		GrantType:    "refresh_token",
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		RefreshToken: refreshToken,
	})
	if err != nil {
		return Tokens{}, fmt.Errorf("atlassian: encoding refresh request: %w", err)
	}
	return c.postToken(ctx, body)
}

func (c *Client) requestToken(ctx context.Context, req exchangeRequest) (Tokens, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Tokens{}, fmt.Errorf("atlassian: encoding token request: %w", err)
	}
	return c.postToken(ctx, body)
}

func (c *Client) postToken(ctx context.Context, body []byte) (Tokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewReader(body))
	if err != nil {
		return Tokens{}, fmt.Errorf("atlassian: building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Tokens{}, fmt.Errorf("%w: %v", ErrOAuth, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Tokens{}, fmt.Errorf("atlassian: reading token response: %w", err)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Tokens{}, fmt.Errorf("atlassian: decoding token response: %w", err)
	}
	if parsed.Error != "" {
		return Tokens{}, fmt.Errorf("%w: %s: %s", ErrOAuth, parsed.Error, parsed.ErrorDesc)
	}
	if parsed.AccessToken == "" {
		return Tokens{}, fmt.Errorf("%w: response carried no access token", ErrOAuth)
	}

	return Tokens{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresIn:    parsed.ExpiresIn,
		Scope:        parsed.Scope,
	}, nil
}

type accessibleResource struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	URL    string   `json:"url"`
	Scopes []string `json:"scopes"`
}

// AccessibleResources returns every Jira/Confluence cloud site the token's
// user granted access to, each identified by a cloud id used in subsequent
// /ex/jira/{cloud_id}/... and /ex/confluence/{cloud_id}/... calls.
func (c *Client) AccessibleResources(ctx context.Context, accessToken string) ([]CloudResource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resourcesURL, nil)
	if err != nil {
		return nil, fmt.Errorf("atlassian: building resources request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAPI, err)
	}
	defer resp.Body.Close()

	var parsed []accessibleResource
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("atlassian: decoding resources response: %w", err)
	}

	out := make([]CloudResource, 0, len(parsed))
	for _, r := range parsed {
		out = append(out, CloudResource{ID: r.ID, Name: r.Name, URL: r.URL, Scopes: r.Scopes})
	}
	return out, nil
}

// SearchIssues runs a JQL query against a cloud site's Jira REST v3 search
// endpoint, returning at most maxResults issues starting at startAt, with
// descriptions flattened from Atlassian Document Format to plain text.
func (c *Client) SearchIssues(ctx context.Context, accessToken, cloudID, jql string, startAt, maxResults int) ([]Issue, error) {
	if maxResults <= 0 {
		maxResults = 50
	}
	q := url.Values{}
	q.Set("jql", jql)
	q.Set("startAt", fmt.Sprintf("%d", startAt))
	q.Set("maxResults", fmt.Sprintf("%d", maxResults))
	q.Set("fields", "summary,description,status,assignee,reporter,project,created,updated")

	endpoint := fmt.Sprintf("%s/ex/jira/%s/rest/api/3/search?%s", c.apiBaseURL, cloudID, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("atlassian: building jira search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAPI, err)
	}
	defer resp.Body.Close()

	var parsed jiraSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("atlassian: decoding jira search response: %w", err)
	}

	issues := make([]Issue, 0, len(parsed.Issues))
	for _, raw := range parsed.Issues {
		issue := Issue{
			ID:          raw.ID,
			Key:         raw.Key,
			Summary:     raw.Fields.Summary,
			Description: raw.Fields.Description.plainText(),
			Status:      raw.Fields.Status.Name,
			Reporter:    raw.Fields.Reporter.DisplayName,
			ProjectKey:  raw.Fields.Project.Key,
			Created:     raw.Fields.Created,
			Updated:     raw.Fields.Updated,
			URL:         fmt.Sprintf("https://%s.atlassian.net/browse/%s", cloudID, raw.Key),
		}
		if raw.Fields.Assignee != nil {
			issue.Assignee = raw.Fields.Assignee.DisplayName
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// SearchPages runs a CQL query against a cloud site's Confluence content
// search endpoint. Unlike the Jira search, created/updated are resolved from
// distinct fields: history.createdDate for the page's creation time and
// version.when for its most recent edit.
func (c *Client) SearchPages(ctx context.Context, accessToken, cloudID, cql string, start, limit int) ([]Page, error) {
	if limit <= 0 {
		limit = 25
	}
	q := url.Values{}
	q.Set("cql", cql)
	q.Set("start", fmt.Sprintf("%d", start))
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("expand", "body.storage,space,version,history")

	endpoint := fmt.Sprintf("%s/ex/confluence/%s/wiki/rest/api/content/search?%s", c.apiBaseURL, cloudID, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("atlassian: building confluence search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAPI, err)
	}
	defer resp.Body.Close()

	var parsed confluenceSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("atlassian: decoding confluence search response: %w", err)
	}

	pages := make([]Page, 0, len(parsed.Results))
	for _, raw := range parsed.Results {
		pages = append(pages, Page{
			ID:       raw.ID,
			Title:    raw.Title,
			SpaceKey: raw.Space.Key,
			Body:     raw.Body.Storage.Value,
			Author:   raw.History.CreatedBy.DisplayName,
			Created:  raw.History.CreatedDate,
			Updated:  raw.Version.When,
			URL:      fmt.Sprintf("https://%s.atlassian.net/wiki%s", cloudID, raw.Links.WebUI),
		})
	}
	return pages, nil
}
