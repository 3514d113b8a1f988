package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// ServiceAccountCredentials is the subset of a Google Cloud service-account
// JSON key file needed to mint a Vertex AI bearer token, plus an optional
// vertex_region extension for region-pinned deployments.
type ServiceAccountCredentials struct {
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`
	VertexRegion string `json:"vertex_region"`
}

// ParseServiceAccountJSON decodes a service-account key file.
func ParseServiceAccountJSON(data []byte) (ServiceAccountCredentials, error) {
	var c ServiceAccountCredentials
	if err := json.Unmarshal(data, &c); err != nil {
		return ServiceAccountCredentials{}, fmt.Errorf("llmclient: parsing service account JSON: %w", err)
	}
	if c.TokenURI == "" {
		c.TokenURI = "https://oauth2.googleapis.com/token"
	}
	return c, nil
}

// Region returns the Vertex AI region to target, defaulting to "global".
func (c ServiceAccountCredentials) Region() string {
	if c.VertexRegion == "" {
		return DefaultVertexRegion
	}
	return c.VertexRegion
}

// cachedToken is an OAuth2 bearer token and its expiry.
type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// tokenCache holds at most one cached Vertex AI bearer token, refreshed
// under a double-checked RWMutex lock. A token is reused until 5 minutes
// before it expires.
type tokenCache struct {
	mu    sync.RWMutex
	token *cachedToken
}

func (c *tokenCache) get() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil {
		return "", false
	}
	if time.Now().Add(5 * time.Minute).After(c.token.expiresAt) {
		return "", false
	}
	return c.token.accessToken, true
}

func (c *tokenCache) set(t cachedToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = &t
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// accessToken returns a Vertex AI bearer token, reusing a cached one when it
// has more than 5 minutes left, and otherwise signing a fresh JWT assertion
// and exchanging it at the credential's token_uri.
func accessToken(ctx context.Context, httpClient *http.Client, creds ServiceAccountCredentials, cache *tokenCache) (string, error) {
	if tok, ok := cache.get(); ok {
		return tok, nil
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    creds.ClientEmail,
		Audience:  jwt.ClaimStrings{creds.TokenURI},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, mapClaims(claims, cloudPlatformScope))

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(creds.PrivateKey))
	if err != nil {
		return "", &AuthError{Message: "invalid service account private key", Err: err}
	}
	signed, err := token.SignedString(key)
	if err != nil {
		return "", &AuthError{Message: "signing JWT assertion", Err: err}
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {signed},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Message: "building token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Message: "exchanging JWT for access token", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &AuthError{Message: "reading token response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{Message: fmt.Sprintf("token exchange failed (HTTP %d): %s", resp.StatusCode, string(body))}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", &AuthError{Message: "parsing token response", Err: err}
	}

	cache.set(cachedToken{
		accessToken: tr.AccessToken,
		expiresAt:   now.Add(time.Duration(tr.ExpiresIn) * time.Second),
	})
	return tr.AccessToken, nil
}

// mapClaims adds the non-standard "scope" claim jwt.RegisteredClaims doesn't
// carry, since Google's token endpoint requires it alongside iss/aud/iat/exp.
func mapClaims(reg jwt.RegisteredClaims, scope string) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   reg.Issuer,
		"aud":   reg.Audience[0],
		"iat":   reg.IssuedAt.Unix(),
		"exp":   reg.ExpiresAt.Unix(),
		"scope": scope,
	}
}
