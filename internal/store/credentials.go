package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Reserved credential ids. Exactly one of GeminiAPIKeyCredentialID and
// GeminiServiceAccountCredentialID exists at a time: SaveLLMAPIKeyCredential
// and SaveLLMServiceAccountCredential each delete the other before inserting.
const (
	GeminiAPIKeyCredentialID         = "gemini"
	GeminiServiceAccountCredentialID = "gemini_service_account"
	SlackCredentialID                = "slack"
	AtlassianCredentialID            = "atlassian"
)

// Credential is a per-service encrypted blob.
type Credential struct {
	ID            string
	Service       string
	EncryptedData string
	CreatedAt     int64
	UpdatedAt     int64
}

// GetCredential fetches a credential row by id. ok is false if absent.
func (s *Store) GetCredential(ctx context.Context, id string) (Credential, bool, error) {
	var c Credential
	err := s.db.QueryRowContext(ctx, `
		SELECT id, service, encrypted_data, created_at, updated_at FROM credentials WHERE id = ?
	`, id).Scan(&c.ID, &c.Service, &c.EncryptedData, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, fmt.Errorf("store: reading credential %s: %w", id, err)
	}
	return c, true, nil
}

// UpsertCredential inserts or replaces a credential row by id.
func (s *Store) UpsertCredential(ctx context.Context, c Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, service, encrypted_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			encrypted_data = excluded.encrypted_data,
			updated_at = excluded.updated_at
	`, c.ID, c.Service, c.EncryptedData, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: upserting credential %s: %w", c.ID, err)
	}
	return nil
}

// DeleteCredential removes a credential row if present.
func (s *Store) DeleteCredential(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: deleting credential %s: %w", id, err)
	}
	return nil
}

// SaveLLMAPIKeyCredential stores a plain API-key LLM credential, deleting any
// existing service-account credential so exactly one LLM auth mode is active.
func (s *Store) SaveLLMAPIKeyCredential(ctx context.Context, c Credential) error {
	if err := s.DeleteCredential(ctx, GeminiServiceAccountCredentialID); err != nil {
		return err
	}
	return s.UpsertCredential(ctx, c)
}

// SaveLLMServiceAccountCredential stores a service-account LLM credential,
// deleting any existing plain API-key credential.
func (s *Store) SaveLLMServiceAccountCredential(ctx context.Context, c Credential) error {
	if err := s.DeleteCredential(ctx, GeminiAPIKeyCredentialID); err != nil {
		return err
	}
	return s.UpsertCredential(ctx, c)
}
