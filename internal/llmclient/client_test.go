package llmclient

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVertexURLGlobalRegion(t *testing.T) {
	creds := ServiceAccountCredentials{ProjectID: "proj", VertexRegion: ""}
	url := vertexURL(creds, "gemini-3-pro-preview")
	require.Equal(t, "https://aiplatform.googleapis.com/v1/projects/proj/locations/global/publishers/google/models/gemini-3-pro-preview:generateContent", url)
}

func TestVertexURLCustomRegion(t *testing.T) {
	creds := ServiceAccountCredentials{ProjectID: "proj", VertexRegion: "europe-west1"}
	url := vertexURL(creds, "gemini-3-pro-preview")
	require.Equal(t, "https://europe-west1-aiplatform.googleapis.com/v1/projects/proj/locations/europe-west1/publishers/google/models/gemini-3-pro-preview:generateContent", url)
}

func TestGenerateTextWithAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.URL.Query().Get("key"))
		_ = json.NewEncoder(w).Encode(generateResponse{
			Candidates: []candidate{{Content: Content{Role: "model", Parts: []Part{{Text: "hello back"}}}}},
		})
	}))
	defer srv.Close()

	c := New("test-key", "gemini-3-pro-preview")
	c.http = srv.Client()

	resp, err := c.generateAt(context.Background(), srv.URL, generateRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: "hi"}}}},
	}, func(r *http.Request) {
		q := r.URL.Query()
		q.Set("key", "test-key")
		r.URL.RawQuery = q.Encode()
	})
	require.NoError(t, err)
	text, err := firstText(resp)
	require.NoError(t, err)
	require.Equal(t, "hello back", text)
}

func TestGenerateJSONParsesResponse(t *testing.T) {
	type result struct {
		Answer string `json:"answer"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(generateResponse{
			Candidates: []candidate{{Content: Content{Role: "model", Parts: []Part{{Text: `{"answer":"42"}`}}}}},
		})
	}))
	defer srv.Close()

	c := New("test-key", "")
	c.http = srv.Client()

	resp, err := c.generateAt(context.Background(), srv.URL, generateRequest{}, nil)
	require.NoError(t, err)
	text, err := firstText(resp)
	require.NoError(t, err)

	var r result
	require.NoError(t, json.Unmarshal([]byte(text), &r))
	require.Equal(t, "42", r.Answer)
}

func TestAPIErrorSurfacesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := New("test-key", "")
	c.http = srv.Client()

	_, err := c.generateAt(context.Background(), srv.URL, generateRequest{}, nil)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Equal(t, "rate limited", apiErr.Message)
}

func TestAccessTokenReusesCacheUntilNearExpiry(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-1", ExpiresIn: 3600, TokenType: "Bearer"})
	}))
	defer srv.Close()

	creds := ServiceAccountCredentials{
		ProjectID:   "proj",
		ClientEmail: "sa@proj.iam.gserviceaccount.com",
		PrivateKey:  string(pemKey),
		TokenURI:    srv.URL,
	}
	cache := &tokenCache{}

	tok1, err := accessToken(context.Background(), srv.Client(), creds, cache)
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok1)

	tok2, err := accessToken(context.Background(), srv.Client(), creds, cache)
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok2)
	require.Equal(t, 1, calls, "second call within the TTL window must reuse the cached token")
}
