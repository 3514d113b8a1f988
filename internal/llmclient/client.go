package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"daybook/internal/observability"
)

// auth selects which credential mode a Client uses. Exactly one of apiKey
// or serviceAccount is set; SaveLLM*Credential in the store package enforces
// that only one is ever persisted at a time.
type auth struct {
	apiKey         string
	serviceAccount *ServiceAccountCredentials
}

// Client generates text and structured JSON through the Gemini API, either
// via the public API-key endpoint or via Vertex AI service-account auth.
type Client struct {
	http  *http.Client
	auth  auth
	model string
	cache *tokenCache
}

// New returns a Client authenticating with a Generative Language API key.
func New(apiKey string, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		http:  observability.NewHTTPClient(nil),
		auth:  auth{apiKey: apiKey},
		model: model,
	}
}

// NewWithServiceAccount returns a Client authenticating against Vertex AI
// with a Google Cloud service account.
func NewWithServiceAccount(creds ServiceAccountCredentials, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		http:  observability.NewHTTPClient(nil),
		auth:  auth{serviceAccount: &creds},
		model: model,
		cache: &tokenCache{},
	}
}

// generate issues a :generateContent request and returns its decoded body.
func (c *Client) generate(ctx context.Context, req generateRequest) (generateResponse, error) {
	if c.auth.serviceAccount != nil {
		url := vertexURL(*c.auth.serviceAccount, c.model)
		log.Debug().Str("url", url).Msg("llmclient: vertex ai request")

		token, err := accessToken(ctx, c.http, *c.auth.serviceAccount, c.cache)
		if err != nil {
			return generateResponse{}, err
		}
		return c.generateAt(ctx, url, req, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+token)
		})
	}

	url := fmt.Sprintf("%s/%s:generateContent", GeminiAPIURL, c.model)
	log.Debug().Str("url", url).Msg("llmclient: generative language api request")

	return c.generateAt(ctx, url, req, func(r *http.Request) {
		q := r.URL.Query()
		q.Set("key", c.auth.apiKey)
		r.URL.RawQuery = q.Encode()
	})
}

// generateAt posts req to url, applying decorate to attach auth, and decodes
// the response. Split out from generate so tests can point it at an
// httptest server without an auth round trip.
func (c *Client) generateAt(ctx context.Context, url string, req generateRequest, decorate func(*http.Request)) (generateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return generateResponse{}, fmt.Errorf("llmclient: encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return generateResponse{}, fmt.Errorf("llmclient: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if decorate != nil {
		decorate(httpReq)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return generateResponse{}, fmt.Errorf("llmclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return generateResponse{}, fmt.Errorf("llmclient: reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return generateResponse{}, &APIError{StatusCode: resp.StatusCode, Message: apiErrorMessage(respBody)}
	}

	var out generateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return generateResponse{}, fmt.Errorf("llmclient: decoding response: %w", err)
	}
	return out, nil
}

// vertexURL builds the region-aware Vertex AI generateContent endpoint. The
// "global" region uses the shared aiplatform.googleapis.com host; any other
// region is addressed through its region-pinned host.
func vertexURL(creds ServiceAccountCredentials, model string) string {
	region := creds.Region()
	host := "aiplatform.googleapis.com"
	if region != DefaultVertexRegion {
		host = region + "-aiplatform.googleapis.com"
	}
	return fmt.Sprintf("https://%s/v1/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
		host, creds.ProjectID, region, model)
}

func apiErrorMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return string(body)
}

// GenerateText asks the model to produce free-form text from a prompt.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := c.generate(ctx, generateRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: prompt}}}},
		GenerationConfig: &GenerationConfig{
			Temperature: floatPtr(0.7),
		},
	})
	if err != nil {
		return "", err
	}
	return firstText(resp)
}

// GenerateJSON asks the model to produce JSON matching the caller's target
// type, sets responseMimeType to force a JSON-only reply, and decodes the
// result into v.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, v any) error {
	resp, err := c.generate(ctx, generateRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: prompt}}}},
		GenerationConfig: &GenerationConfig{
			Temperature:      floatPtr(0.3),
			ResponseMIMEType: "application/json",
		},
	})
	if err != nil {
		return err
	}
	text, err := firstText(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("llmclient: parsing JSON response: %w", err)
	}
	return nil
}

// VerifyConnection makes a minimal generateContent call to confirm that the
// configured credentials and model are reachable.
func (c *Client) VerifyConnection(ctx context.Context) error {
	maxTokens := int32(10)
	_, err := c.generate(ctx, generateRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: "Hello"}}}},
		GenerationConfig: &GenerationConfig{
			Temperature:     floatPtr(0),
			MaxOutputTokens: &maxTokens,
		},
	})
	return err
}
