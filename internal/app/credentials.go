package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"daybook/internal/llmclient"
	"daybook/internal/oauthloopback"
	atlassianapi "daybook/internal/sourceclient/atlassian"
	"daybook/internal/store"
)

// GeminiAuthType reports which Gemini credential, if any, is currently
// saved: "service_account", "api_key", or "none". Service account takes
// priority over a plain API key when, improbably, both are present.
func (a *App) GeminiAuthType(ctx context.Context) (string, error) {
	if _, ok, err := a.store.GetCredential(ctx, store.GeminiServiceAccountCredentialID); err != nil {
		return "", err
	} else if ok {
		return "service_account", nil
	}
	if _, ok, err := a.store.GetCredential(ctx, store.GeminiAPIKeyCredentialID); err != nil {
		return "", err
	} else if ok {
		return "api_key", nil
	}
	return "none", nil
}

// SaveAPIKey saves a plain Gemini API key, replacing any service-account
// credential so the key takes priority, and reloads the pipeline to pick it
// up immediately.
func (a *App) SaveAPIKey(ctx context.Context, apiKey string) error {
	ciphertext, err := a.vault.EncryptString(apiKey)
	if err != nil {
		return fmt.Errorf("app: encrypting api key: %w", err)
	}
	now := time.Now().UnixMilli()
	if err := a.store.SaveLLMAPIKeyCredential(ctx, store.Credential{
		ID: store.GeminiAPIKeyCredentialID, Service: "gemini", EncryptedData: ciphertext,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		return err
	}
	log.Info().Msg("app: saved gemini api key credential")
	return a.reloadPipeline(ctx)
}

// HasAPIKey reports whether any Gemini credential — service account or
// plain key — is currently saved.
func (a *App) HasAPIKey(ctx context.Context) (bool, error) {
	authType, err := a.GeminiAuthType(ctx)
	if err != nil {
		return false, err
	}
	return authType != "none", nil
}

// SaveGeminiServiceAccountCredentials validates and saves a Vertex AI
// service-account key, optionally pinning it to a specific region, and
// replaces any plain API-key credential.
func (a *App) SaveGeminiServiceAccountCredentials(ctx context.Context, jsonContent, region string) error {
	creds, err := llmclient.ParseServiceAccountJSON([]byte(jsonContent))
	if err != nil {
		return fmt.Errorf("app: invalid service account json: %w", err)
	}
	if region != "" {
		creds.VertexRegion = region
	}

	raw, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("app: encoding service account json: %w", err)
	}
	ciphertext, err := a.vault.EncryptString(string(raw))
	if err != nil {
		return fmt.Errorf("app: encrypting service account credential: %w", err)
	}
	now := time.Now().UnixMilli()
	if err := a.store.SaveLLMServiceAccountCredential(ctx, store.Credential{
		ID: store.GeminiServiceAccountCredentialID, Service: "gemini", EncryptedData: ciphertext,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		return err
	}
	log.Info().Str("region", creds.Region()).Msg("app: saved gemini service account credential")
	return a.reloadPipeline(ctx)
}

// VerifyGeminiConnection makes a minimal live call against whichever Gemini
// credential is currently saved, surfacing an error if none is saved or the
// call fails.
func (a *App) VerifyGeminiConnection(ctx context.Context) error {
	llm, err := loadLLMClient(ctx, a.Config, a.store, a.vault)
	if err != nil {
		return err
	}
	if llm == nil {
		return fmt.Errorf("app: no gemini credentials configured")
	}
	return llm.VerifyConnection(ctx)
}

// ConnectSlack runs the full Slack OAuth user-consent flow: binds a
// loopback listener, logs the authorize URL for the user to open in a
// browser (a headless caller, e.g. an SSH session, can copy it from the
// log), blocks until the browser redirects back, exchanges the code, and
// saves the resulting tokens.
func (a *App) ConnectSlack(ctx context.Context) error {
	listener, err := oauthloopback.Listen(a.Config.Slack.OAuthPort)
	if err != nil {
		return fmt.Errorf("app: binding slack oauth callback listener: %w", err)
	}
	redirectURI := fmt.Sprintf("http://127.0.0.1:%d/callback", listener.Port())
	state, err := randomState()
	if err != nil {
		return err
	}

	authorizeURL := a.slackClient.AuthorizeURL(redirectURI, state)
	log.Info().Str("url", authorizeURL).Msg("app: open this URL to authorize Slack access")

	result, err := listener.Await(ctx, state, 0)
	if err != nil {
		return fmt.Errorf("app: slack oauth callback: %w", err)
	}
	tokens, err := a.slackClient.ExchangeCode(ctx, result.Code, redirectURI)
	if err != nil {
		return fmt.Errorf("app: exchanging slack oauth code: %w", err)
	}
	if err := a.slackWorker.SaveTokens(ctx, tokens); err != nil {
		return err
	}
	log.Info().Str("team", tokens.TeamName).Msg("app: slack connected")
	return nil
}

// AtlassianConnectResult is what ConnectAtlassian returns once the OAuth
// dance completes: the sites the grant made accessible, for a caller that
// wants to confirm or let the user pick among several.
type AtlassianConnectResult struct {
	Resources []atlassianapi.CloudResource
}

// ConnectAtlassian runs the Atlassian OAuth 2.0 + PKCE consent flow the same
// way ConnectSlack does, then persists tokens through the worker (which
// resolves and stores the first accessible cloud site).
func (a *App) ConnectAtlassian(ctx context.Context) (AtlassianConnectResult, error) {
	listener, err := oauthloopback.Listen(a.Config.Atlassian.OAuthPort)
	if err != nil {
		return AtlassianConnectResult{}, fmt.Errorf("app: binding atlassian oauth callback listener: %w", err)
	}
	redirectURI := fmt.Sprintf("http://127.0.0.1:%d/callback", listener.Port())
	state, err := randomState()
	if err != nil {
		return AtlassianConnectResult{}, err
	}
	pkce, err := atlassianapi.NewPKCE()
	if err != nil {
		return AtlassianConnectResult{}, fmt.Errorf("app: generating pkce challenge: %w", err)
	}

	authorizeURL := a.atlassianClient.AuthorizeURL(redirectURI, state, pkce)
	log.Info().Str("url", authorizeURL).Msg("app: open this URL to authorize Atlassian access")

	result, err := listener.Await(ctx, state, 0)
	if err != nil {
		return AtlassianConnectResult{}, fmt.Errorf("app: atlassian oauth callback: %w", err)
	}
	tokens, err := a.atlassianClient.ExchangeCode(ctx, result.Code, redirectURI, pkce.Verifier)
	if err != nil {
		return AtlassianConnectResult{}, fmt.Errorf("app: exchanging atlassian oauth code: %w", err)
	}
	resources, err := a.atlassianClient.AccessibleResources(ctx, tokens.AccessToken)
	if err != nil {
		return AtlassianConnectResult{}, fmt.Errorf("app: resolving atlassian accessible resources: %w", err)
	}
	if err := a.atlassianWorker.SaveTokens(ctx, tokens); err != nil {
		return AtlassianConnectResult{}, err
	}
	log.Info().Int("sites", len(resources)).Msg("app: atlassian connected")
	return AtlassianConnectResult{Resources: resources}, nil
}

// SelectAtlassianResource records which cloud site the user picked when
// more than one was accessible. The sync worker always fetches from the
// first accessible resource resolved at connect time, so this is advisory
// bookkeeping surfaced back to the user rather than something the worker
// reads — multi-site selection would require AccessibleResources support
// for scoping the worker's own cloud_id, which isn't wired up.
func (a *App) SelectAtlassianResource(ctx context.Context, cloudID string) error {
	return a.store.SetPreference(ctx, "atlassian_cloud_id", cloudID)
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("app: generating oauth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
