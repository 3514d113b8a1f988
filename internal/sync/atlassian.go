package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"daybook/internal/crypto"
	atlassianapi "daybook/internal/sourceclient/atlassian"
	"daybook/internal/store"
)

// ErrAtlassianNotConnected is returned by AtlassianWorker methods when no
// Atlassian credential has been saved yet.
var ErrAtlassianNotConnected = fmt.Errorf("sync: atlassian is not connected")

const (
	jiraContentType       = "jira_issue"
	confluenceContentType = "confluence_page"
	jiraPageSize           = 50
	confluencePageSize     = 25

	// incrementalSyncDays bounds how far back each scheduled pass looks;
	// the scheduler runs every few minutes so this only needs to comfortably
	// outrun one missed cycle. UpsertContentItem is idempotent, so
	// re-fetching already-synced issues and pages on overlap is harmless.
	incrementalSyncDays = 1

	// tokenExpiryGrace refreshes the access token this far ahead of its
	// reported expiry rather than waiting for a request to fail.
	tokenExpiryGrace = 60 * time.Second
)

// atlassianCredential is the JSON shape persisted, encrypted, under
// store.AtlassianCredentialID.
type atlassianCredential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAtMS  int64  `json:"expires_at_ms"`
	CloudID      string `json:"cloud_id"`
	CloudName    string `json:"cloud_name"`
	CloudURL     string `json:"cloud_url"`
}

// atlassianAPI is the subset of sourceclient/atlassian.Client the worker
// needs, narrowed to an interface so tests can substitute a fake site.
type atlassianAPI interface {
	RefreshTokens(ctx context.Context, refreshToken string) (atlassianapi.Tokens, error)
	AccessibleResources(ctx context.Context, accessToken string) ([]atlassianapi.CloudResource, error)
	SearchIssues(ctx context.Context, accessToken, cloudID, jql string, startAt, maxResults int) ([]atlassianapi.Issue, error)
	SearchPages(ctx context.Context, accessToken, cloudID, cql string, start, limit int) ([]atlassianapi.Page, error)
}

// AtlassianWorker drives the Jira/Confluence API client against the store:
// token refresh, cloud-site resolution, and paginated issue/page search.
type AtlassianWorker struct {
	client atlassianAPI
	store  *store.Store
	vault  *crypto.Vault
	nowMS  func() int64
}

// NewAtlassianWorker returns an AtlassianWorker bound to the given API
// client, store, and decryption vault.
func NewAtlassianWorker(client *atlassianapi.Client, st *store.Store, vault *crypto.Vault) *AtlassianWorker {
	return &AtlassianWorker{
		client: client,
		store:  st,
		vault:  vault,
		nowMS:  func() int64 { return time.Now().UnixMilli() },
	}
}

// SaveTokens persists freshly exchanged OAuth tokens and resolves the
// accessible cloud site they grant access to. Atlassian issues exactly one
// site per consent grant for this app's scope set, so the first accessible
// resource is the one synced.
func (w *AtlassianWorker) SaveTokens(ctx context.Context, tokens atlassianapi.Tokens) error {
	resources, err := w.client.AccessibleResources(ctx, tokens.AccessToken)
	if err != nil {
		return fmt.Errorf("sync: resolving atlassian accessible resources: %w", err)
	}
	if len(resources) == 0 {
		return fmt.Errorf("sync: atlassian: no accessible sites granted")
	}
	site := resources[0]

	cred := atlassianCredential{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAtMS:  w.nowMS() + tokens.ExpiresIn*1000,
		CloudID:      site.ID,
		CloudName:    site.Name,
		CloudURL:     site.URL,
	}
	return w.saveCredential(ctx, cred)
}

func (w *AtlassianWorker) loadCredential(ctx context.Context) (atlassianCredential, bool, error) {
	row, ok, err := w.store.GetCredential(ctx, store.AtlassianCredentialID)
	if err != nil || !ok {
		return atlassianCredential{}, ok, err
	}
	plaintext, err := w.vault.DecryptString(row.EncryptedData)
	if err != nil {
		return atlassianCredential{}, false, fmt.Errorf("sync: decrypting atlassian credential: %w", err)
	}
	var cred atlassianCredential
	if err := json.Unmarshal([]byte(plaintext), &cred); err != nil {
		return atlassianCredential{}, false, fmt.Errorf("sync: decoding atlassian credential: %w", err)
	}
	return cred, true, nil
}

func (w *AtlassianWorker) saveCredential(ctx context.Context, cred atlassianCredential) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("sync: encoding atlassian credential: %w", err)
	}
	ciphertext, err := w.vault.EncryptString(string(raw))
	if err != nil {
		return fmt.Errorf("sync: encrypting atlassian credential: %w", err)
	}
	now := w.nowMS()
	existing, ok, err := w.store.GetCredential(ctx, store.AtlassianCredentialID)
	if err != nil {
		return err
	}
	createdAt := now
	if ok {
		createdAt = existing.CreatedAt
	}
	return w.store.UpsertCredential(ctx, store.Credential{
		ID: store.AtlassianCredentialID, Service: "atlassian", EncryptedData: ciphertext,
		CreatedAt: createdAt, UpdatedAt: now,
	})
}

// validToken returns a credential with a non-expiring access token, silently
// refreshing and persisting it if it is within tokenExpiryGrace of expiry.
func (w *AtlassianWorker) validToken(ctx context.Context, cred atlassianCredential) (atlassianCredential, error) {
	if w.nowMS() < cred.ExpiresAtMS-tokenExpiryGrace.Milliseconds() {
		return cred, nil
	}

	tokens, err := w.client.RefreshTokens(ctx, cred.RefreshToken)
	if err != nil {
		return cred, fmt.Errorf("sync: refreshing atlassian token: %w", err)
	}
	cred.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		cred.RefreshToken = tokens.RefreshToken
	}
	cred.ExpiresAtMS = w.nowMS() + tokens.ExpiresIn*1000
	if err := w.saveCredential(ctx, cred); err != nil {
		return cred, err
	}
	return cred, nil
}

// SyncAll syncs Jira issues and Confluence pages updated in the last
// incrementalSyncDays days.
func (w *AtlassianWorker) SyncAll(ctx context.Context) (Result, error) {
	result := Result{Source: "atlassian"}

	cred, ok, err := w.loadCredential(ctx)
	if err != nil {
		return result, err
	}
	if !ok {
		return result, ErrAtlassianNotConnected
	}
	cred, err = w.validToken(ctx, cred)
	if err != nil {
		return result, err
	}

	jiraJQL := fmt.Sprintf("updated >= -%dd ORDER BY updated DESC", incrementalSyncDays)
	n, err := w.syncJiraJQL(ctx, cred, jiraJQL)
	result.ItemsSynced += n
	if err != nil {
		result.addError(fmt.Errorf("jira: %w", err))
	}

	confluenceCQL := fmt.Sprintf("lastModified >= now('-%dd') ORDER BY lastModified DESC", incrementalSyncDays)
	n, err = w.syncConfluenceCQL(ctx, cred, confluenceCQL)
	result.ItemsSynced += n
	if err != nil {
		result.addError(fmt.Errorf("confluence: %w", err))
	}

	return result, nil
}

// SyncHistoricalDay re-syncs Jira issues and Confluence pages updated during
// one local calendar day.
func (w *AtlassianWorker) SyncHistoricalDay(ctx context.Context, dateStr string, timezoneOffsetMinutes int) (Result, error) {
	result := Result{Source: "atlassian"}

	cred, ok, err := w.loadCredential(ctx)
	if err != nil {
		return result, err
	}
	if !ok {
		return result, ErrAtlassianNotConnected
	}
	cred, err = w.validToken(ctx, cred)
	if err != nil {
		return result, err
	}

	day, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return result, fmt.Errorf("sync: parsing historical date %q: %w", dateStr, err)
	}
	start := day.Add(time.Duration(timezoneOffsetMinutes) * time.Minute)
	end := start.Add(24 * time.Hour)
	startStr, endStr := start.Format("2006-01-02 15:04"), end.Format("2006-01-02 15:04")

	jiraJQL := fmt.Sprintf(`updated >= "%s" AND updated < "%s" ORDER BY updated DESC`, startStr, endStr)
	n, err := w.syncJiraJQL(ctx, cred, jiraJQL)
	result.ItemsSynced += n
	if err != nil {
		result.addError(fmt.Errorf("jira: %w", err))
	}

	confluenceCQL := fmt.Sprintf(`lastModified >= "%s" AND lastModified < "%s" ORDER BY lastModified DESC`, startStr, endStr)
	n, err = w.syncConfluenceCQL(ctx, cred, confluenceCQL)
	result.ItemsSynced += n
	if err != nil {
		result.addError(fmt.Errorf("confluence: %w", err))
	}

	return result, nil
}

func (w *AtlassianWorker) syncJiraJQL(ctx context.Context, cred atlassianCredential, jql string) (int, error) {
	total := 0
	startAt := 0
	for {
		issues, err := w.client.SearchIssues(ctx, cred.AccessToken, cred.CloudID, jql, startAt, jiraPageSize)
		if err != nil {
			return total, fmt.Errorf("searching issues: %w", err)
		}
		if len(issues) == 0 {
			break
		}
		for _, issue := range issues {
			if err := w.storeJiraIssue(ctx, issue); err != nil {
				return total, err
			}
			total++
		}
		if len(issues) < jiraPageSize {
			break
		}
		startAt += jiraPageSize
	}
	return total, nil
}

func (w *AtlassianWorker) syncConfluenceCQL(ctx context.Context, cred atlassianCredential, cql string) (int, error) {
	total := 0
	start := 0
	for {
		pages, err := w.client.SearchPages(ctx, cred.AccessToken, cred.CloudID, cql, start, confluencePageSize)
		if err != nil {
			return total, fmt.Errorf("searching pages: %w", err)
		}
		if len(pages) == 0 {
			break
		}
		for _, page := range pages {
			if err := w.storeConfluencePage(ctx, page); err != nil {
				return total, err
			}
			total++
		}
		if len(pages) < confluencePageSize {
			break
		}
		start += confluencePageSize
	}
	return total, nil
}

// storeJiraIssue persists one Jira issue as a ContentItem. Unlike the Rust
// original, both created_at and updated_at are normalized to milliseconds
// here, matching the Slack path and the store schema's convention; seconds
// would silently undercount every window computed against it.
func (w *AtlassianWorker) storeJiraIssue(ctx context.Context, issue atlassianapi.Issue) error {
	now := w.nowMS()
	createdMS := parseRFC3339Millis(issue.Created, now)
	updatedMS := parseRFC3339Millis(issue.Updated, now)

	encryptedBody, err := w.vault.EncryptString(issue.Description)
	if err != nil {
		return fmt.Errorf("sync: encrypting jira issue %s: %w", issue.Key, err)
	}

	return w.store.UpsertContentItem(ctx, store.ContentItem{
		ID:               uuid.NewString(),
		Source:           "jira",
		SourceID:         issue.Key,
		SourceURL:        sql.NullString{String: issue.URL, Valid: issue.URL != ""},
		ContentType:      jiraContentType,
		Title:            sql.NullString{String: issue.Summary, Valid: true},
		Body:             sql.NullString{String: encryptedBody, Valid: true},
		AuthorID:         sql.NullString{String: issue.Reporter, Valid: issue.Reporter != ""},
		ChannelOrProject: sql.NullString{String: issue.ProjectKey, Valid: issue.ProjectKey != ""},
		CreatedAt:        createdMS,
		UpdatedAt:        updatedMS,
		SyncedAt:         now,
	})
}

// storeConfluencePage persists one Confluence page as a ContentItem, same
// millisecond-normalization rationale as storeJiraIssue.
func (w *AtlassianWorker) storeConfluencePage(ctx context.Context, page atlassianapi.Page) error {
	now := w.nowMS()
	createdMS := parseRFC3339Millis(page.Created, now)
	updatedMS := parseRFC3339Millis(page.Updated, now)

	encryptedBody, err := w.vault.EncryptString(page.Body)
	if err != nil {
		return fmt.Errorf("sync: encrypting confluence page %s: %w", page.ID, err)
	}

	return w.store.UpsertContentItem(ctx, store.ContentItem{
		ID:               uuid.NewString(),
		Source:           "confluence",
		SourceID:         page.ID,
		SourceURL:        sql.NullString{String: page.URL, Valid: page.URL != ""},
		ContentType:      confluenceContentType,
		Title:            sql.NullString{String: page.Title, Valid: true},
		Body:             sql.NullString{String: encryptedBody, Valid: true},
		AuthorID:         sql.NullString{String: page.Author, Valid: page.Author != ""},
		ChannelOrProject: sql.NullString{String: page.SpaceKey, Valid: page.SpaceKey != ""},
		CreatedAt:        createdMS,
		UpdatedAt:        updatedMS,
		SyncedAt:         now,
	})
}

// parseRFC3339Millis parses an Atlassian RFC3339 timestamp into Unix
// milliseconds, falling back to fallbackMS (typically "now") when the field
// is missing or malformed rather than failing the whole sync over one bad
// issue.
func parseRFC3339Millis(value string, fallbackMS int64) int64 {
	if value == "" {
		return fallbackMS
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		log.Warn().Str("value", value).Err(err).Msg("sync: parsing atlassian timestamp failed, using sync time")
		return fallbackMS
	}
	return t.UnixMilli()
}
