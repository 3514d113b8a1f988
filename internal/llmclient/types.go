// Package llmclient talks to the Gemini generateContent API, either through
// the public Generative Language endpoint (API key) or through Vertex AI
// (Google Cloud service-account, JWT-bearer OAuth2 exchange).
package llmclient

import (
	"errors"
	"fmt"
)

// GeminiAPIURL is the base URL for the public Generative Language API.
const GeminiAPIURL = "https://generativelanguage.googleapis.com/v1beta/models"

// DefaultVertexRegion is used when a service account credential doesn't
// specify vertex_region.
const DefaultVertexRegion = "global"

// DefaultModel matches the model the teacher pins by default; callers
// override via config.
const DefaultModel = "gemini-3-pro-preview"

// ErrNoTextInResponse is returned when a generateContent response has no
// candidate or no text part to extract.
var ErrNoTextInResponse = errors.New("llmclient: no text in response")

// APIError wraps a non-2xx response from either the Generative Language API
// or Vertex AI, carrying the HTTP status for callers that need to
// distinguish rate limiting from a hard failure.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llmclient: API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// AuthError wraps a failure obtaining or exchanging OAuth2 credentials.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string { return "llmclient: auth error: " + e.Message }
func (e *AuthError) Unwrap() error { return e.Err }

// Content is a single turn of conversation (role + parts).
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts,omitempty"`
}

// Part is a union of text and function-call/response payloads. Only Text is
// populated for this client's use (no tool-calling), but the shape matches
// the wire format so decoding arbitrary responses never fails on extra
// fields.
type Part struct {
	Text             string          `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

type FunctionCall struct {
	Name string `json:"name"`
	Args any    `json:"args"`
}

type FunctionResponse struct {
	Name     string `json:"name"`
	Response any    `json:"response"`
}

// GenerationConfig controls sampling and output shape.
type GenerationConfig struct {
	Temperature      *float32 `json:"temperature,omitempty"`
	MaxOutputTokens  *int32   `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string   `json:"responseMimeType,omitempty"`
}

// generateRequest is the wire body for :generateContent.
type generateRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// generateResponse is the wire body returned by :generateContent.
type generateResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
}

type candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type usageMetadata struct {
	PromptTokenCount     int32 `json:"promptTokenCount"`
	CandidatesTokenCount int32 `json:"candidatesTokenCount"`
	TotalTokenCount      int32 `json:"totalTokenCount"`
}

func firstText(resp generateResponse) (string, error) {
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrNoTextInResponse
	}
	text := resp.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return "", ErrNoTextInResponse
	}
	return text, nil
}

func floatPtr(f float32) *float32 { return &f }
