package app

import (
	"context"
	"fmt"
	"os"

	"daybook/internal/config"
	"daybook/internal/crypto"
	"daybook/internal/llmclient"
	"daybook/internal/store"
)

// loadLLMClient resolves an LLM client from, in order: a saved service
// account credential, a saved plain API-key credential, or (only on a fresh
// install with nothing saved yet) the GOOGLE_SERVICE_ACCOUNT_JSON /
// GOOGLE_GEMINI_API_KEY bootstrap environment variables. Returns a nil
// client and nil error if none of these are available — callers treat that
// as "summarization not configured yet", not a startup failure.
func loadLLMClient(ctx context.Context, cfg config.Config, st *store.Store, vault *crypto.Vault) (*llmclient.Client, error) {
	if cred, ok, err := st.GetCredential(ctx, store.GeminiServiceAccountCredentialID); err != nil {
		return nil, err
	} else if ok {
		plaintext, err := vault.DecryptString(cred.EncryptedData)
		if err != nil {
			return nil, fmt.Errorf("app: decrypting service account credential: %w", err)
		}
		creds, err := llmclient.ParseServiceAccountJSON([]byte(plaintext))
		if err != nil {
			return nil, err
		}
		return llmclient.NewWithServiceAccount(creds, cfg.Google.Model), nil
	}

	if cred, ok, err := st.GetCredential(ctx, store.GeminiAPIKeyCredentialID); err != nil {
		return nil, err
	} else if ok {
		apiKey, err := vault.DecryptString(cred.EncryptedData)
		if err != nil {
			return nil, fmt.Errorf("app: decrypting api key credential: %w", err)
		}
		return llmclient.New(apiKey, cfg.Google.Model), nil
	}

	if cfg.Google.ServiceAccountJSONPath != "" {
		raw, err := os.ReadFile(cfg.Google.ServiceAccountJSONPath)
		if err != nil {
			return nil, fmt.Errorf("app: reading bootstrap service account file: %w", err)
		}
		creds, err := llmclient.ParseServiceAccountJSON(raw)
		if err != nil {
			return nil, err
		}
		return llmclient.NewWithServiceAccount(creds, cfg.Google.Model), nil
	}
	if cfg.Google.APIKey != "" {
		return llmclient.New(cfg.Google.APIKey, cfg.Google.Model), nil
	}

	return nil, nil
}
