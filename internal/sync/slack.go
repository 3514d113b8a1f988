package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"daybook/internal/crypto"
	slackapi "daybook/internal/sourceclient/slack"
	"daybook/internal/store"
)

// ErrSlackNotConnected is returned by SlackWorker methods when no Slack
// credential has been saved yet.
var ErrSlackNotConnected = fmt.Errorf("sync: slack is not connected")

const (
	slackContentType     = "slack_message"
	slackMaxFetchRetries = 3
	slackRetryBaseDelay  = 2 * time.Second
	slackResourceType    = "channel"
	channelSyncFanout    = 2
	// slackAPICallDelay is the pause one channel sync takes between its own
	// requests: between pages, and before each thread-replies fetch. Channels
	// synced in parallel (up to channelSyncFanout) each pace only their own
	// calls; requests from different channels are not spaced by this delay.
	slackAPICallDelay = 500 * time.Millisecond
)

// slackCredential is the JSON shape persisted, encrypted, under
// store.SlackCredentialID.
type slackCredential struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	TeamID      string `json:"team_id"`
	TeamName    string `json:"team_name"`
	UserID      string `json:"user_id"`
	TeamDomain  string `json:"team_domain,omitempty"`
}

// slackAPI is the subset of sourceclient/slack.Client the worker needs,
// narrowed to an interface so tests can substitute a fake workspace.
type slackAPI interface {
	AuthTest(ctx context.Context, token string) (string, error)
	ListChannels(ctx context.Context, token string) ([]slackapi.Channel, error)
	ChannelHistory(ctx context.Context, token, channelID, oldest, cursor string) ([]slackapi.Message, string, error)
	ThreadReplies(ctx context.Context, token, channelID, threadTS string) ([]slackapi.Message, error)
	ListUsers(ctx context.Context, token string) ([]slackapi.User, error)
}

// SlackWorker drives the Slack API client against the store: channel
// history, thread replies, and the workspace user directory cache. It holds
// the workspace's access token in memory only for the duration of a sync
// pass, decrypting it fresh from the store each time.
type SlackWorker struct {
	client slackAPI
	store  *store.Store
	vault  *crypto.Vault
	nowMS  func() int64
	sleep  func(time.Duration)
}

// NewSlackWorker returns a SlackWorker bound to the given API client, store,
// and decryption vault.
func NewSlackWorker(client *slackapi.Client, st *store.Store, vault *crypto.Vault) *SlackWorker {
	return &SlackWorker{
		client: client,
		store:  st,
		vault:  vault,
		nowMS:  func() int64 { return time.Now().UnixMilli() },
		sleep:  time.Sleep,
	}
}

// SaveTokens persists freshly exchanged OAuth tokens and resolves the
// workspace's subdomain for permalink construction. A failure to resolve the
// subdomain is logged, not fatal — permalinks fall back to the generic
// app_redirect form.
func (w *SlackWorker) SaveTokens(ctx context.Context, tokens slackapi.Tokens) error {
	cred := slackCredential{
		AccessToken: tokens.AccessToken,
		TokenType:   tokens.TokenType,
		Scope:       tokens.Scope,
		TeamID:      tokens.TeamID,
		TeamName:    tokens.TeamName,
		UserID:      tokens.UserID,
	}
	if domain, err := w.client.AuthTest(ctx, tokens.AccessToken); err == nil {
		cred.TeamDomain = domain
	} else {
		log.Warn().Err(err).Msg("sync: resolving slack team domain failed, permalinks will use the generic redirect")
	}
	return w.saveCredential(ctx, cred)
}

func (w *SlackWorker) loadCredential(ctx context.Context) (slackCredential, bool, error) {
	row, ok, err := w.store.GetCredential(ctx, store.SlackCredentialID)
	if err != nil || !ok {
		return slackCredential{}, ok, err
	}
	plaintext, err := w.vault.DecryptString(row.EncryptedData)
	if err != nil {
		return slackCredential{}, false, fmt.Errorf("sync: decrypting slack credential: %w", err)
	}
	var cred slackCredential
	if err := json.Unmarshal([]byte(plaintext), &cred); err != nil {
		return slackCredential{}, false, fmt.Errorf("sync: decoding slack credential: %w", err)
	}
	return cred, true, nil
}

func (w *SlackWorker) saveCredential(ctx context.Context, cred slackCredential) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("sync: encoding slack credential: %w", err)
	}
	ciphertext, err := w.vault.EncryptString(string(raw))
	if err != nil {
		return fmt.Errorf("sync: encrypting slack credential: %w", err)
	}
	now := w.nowMS()
	existing, ok, err := w.store.GetCredential(ctx, store.SlackCredentialID)
	if err != nil {
		return err
	}
	createdAt := now
	if ok {
		createdAt = existing.CreatedAt
	}
	return w.store.UpsertCredential(ctx, store.Credential{
		ID: store.SlackCredentialID, Service: "slack", EncryptedData: ciphertext,
		CreatedAt: createdAt, UpdatedAt: now,
	})
}

// SyncAll incrementally syncs every enabled channel from its stored cursor,
// refreshing the workspace user directory first if it has gone stale.
func (w *SlackWorker) SyncAll(ctx context.Context) (Result, error) {
	result := Result{Source: "slack"}

	cred, ok, err := w.loadCredential(ctx)
	if err != nil {
		return result, err
	}
	if !ok {
		return result, ErrSlackNotConnected
	}

	if err := w.refreshUserDirectoryIfStale(ctx, cred); err != nil {
		log.Error().Err(err).Msg("sync: refreshing slack user directory failed, continuing with cached names")
	}

	channels, err := w.store.EnabledSlackChannels(ctx)
	if err != nil {
		return result, err
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := semaphore.NewWeighted(channelSyncFanout)

	for _, ch := range channels {
		ch := ch
		if err := sem.Acquire(ctx, 1); err != nil {
			return result, fmt.Errorf("sync: acquiring channel sync slot: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			n, err := w.syncChannel(ctx, cred, ch, "")

			mu.Lock()
			defer mu.Unlock()
			result.ItemsSynced += n
			if err != nil {
				result.addError(fmt.Errorf("channel %s: %w", ch.ChannelName, err))
				if recErr := w.store.RecordSyncError(ctx, uuid.NewString(), "slack", slackResourceType, ch.ChannelID, err.Error()); recErr != nil {
					log.Error().Err(recErr).Msg("sync: recording slack sync error failed")
				}
			}
		}()
	}
	wg.Wait()
	return result, nil
}

// SyncHistoricalDay re-syncs every enabled channel for one local calendar
// day, bounded by explicit oldest/latest Slack timestamps instead of the
// channel's incremental cursor. The cursor is left untouched.
func (w *SlackWorker) SyncHistoricalDay(ctx context.Context, dateStr string, timezoneOffsetMinutes int) (Result, error) {
	result := Result{Source: "slack"}

	cred, ok, err := w.loadCredential(ctx)
	if err != nil {
		return result, err
	}
	if !ok {
		return result, ErrSlackNotConnected
	}

	oldest, latest, err := slackDayWindow(dateStr, timezoneOffsetMinutes)
	if err != nil {
		return result, err
	}

	channels, err := w.store.EnabledSlackChannels(ctx)
	if err != nil {
		return result, err
	}

	for _, ch := range channels {
		n, err := w.syncChannelRange(ctx, cred, ch, oldest, latest)
		result.ItemsSynced += n
		if err != nil {
			result.addError(fmt.Errorf("channel %s: %w", ch.ChannelName, err))
		}
		w.sleep(slackAPICallDelay)
	}
	return result, nil
}

// syncChannel pages forward from the channel's stored cursor (or, when no
// cursor is stored yet, from the start of the current local day), persisting
// every message and its thread replies, and advances the cursor to the newest
// message seen.
func (w *SlackWorker) syncChannel(ctx context.Context, cred slackCredential, ch store.SlackChannel, forcedOldest string) (int, error) {
	oldest := forcedOldest
	if oldest == "" {
		if cursor, ok, err := w.store.SyncCursor(ctx, "slack", slackResourceType, ch.ChannelID); err != nil {
			return 0, err
		} else if ok {
			oldest = cursor
		} else {
			now := time.UnixMilli(w.nowMS())
			y, m, d := now.Date()
			oldest = fmt.Sprintf("%d.000000", time.Date(y, m, d, 0, 0, 0, 0, now.Location()).Unix())
		}
	}

	synced := 0
	cursor := ""
	firstPageFirstTS := ""
	firstPage := true

	for {
		messages, nextCursor, err := w.fetchHistoryWithRetry(ctx, cred.AccessToken, ch.ChannelID, oldest, cursor)
		if err != nil {
			return synced, err
		}
		if firstPage && len(messages) > 0 {
			firstPageFirstTS = messages[0].TS
		}
		firstPage = false

		for _, m := range messages {
			if err := w.storeMessage(ctx, cred, ch, m, ""); err != nil {
				return synced, err
			}
			synced++

			if m.ReplyCount > 0 {
				w.sleep(slackAPICallDelay)
				replies, err := w.fetchRepliesWithRetry(ctx, cred.AccessToken, ch.ChannelID, m.TS)
				if err != nil {
					log.Error().Err(err).Str("channel", ch.ChannelID).Str("thread_ts", m.TS).Msg("sync: fetching thread replies failed")
					continue
				}
				for _, r := range replies {
					if err := w.storeMessage(ctx, cred, ch, r, m.TS); err != nil {
						return synced, err
					}
					synced++
				}
			}
		}

		cursor = nextCursor
		if cursor == "" {
			break
		}
		w.sleep(slackAPICallDelay)
	}

	if firstPageFirstTS != "" {
		if err := w.store.AdvanceCursor(ctx, uuid.NewString(), "slack", slackResourceType, ch.ChannelID, firstPageFirstTS, w.nowMS()); err != nil {
			return synced, err
		}
	}
	return synced, nil
}

// syncChannelRange is syncChannel bounded by an explicit [oldest, latest]
// Slack timestamp window, used for historical-day resyncs. It never advances
// the channel's incremental cursor.
func (w *SlackWorker) syncChannelRange(ctx context.Context, cred slackCredential, ch store.SlackChannel, oldest, latest string) (int, error) {
	synced := 0
	cursor := ""
	for {
		messages, nextCursor, err := w.fetchHistoryWithRetry(ctx, cred.AccessToken, ch.ChannelID, oldest, cursor)
		if err != nil {
			return synced, err
		}
		for _, m := range messages {
			if m.TS > latest {
				continue
			}
			if err := w.storeMessage(ctx, cred, ch, m, ""); err != nil {
				return synced, err
			}
			synced++

			if m.ReplyCount > 0 {
				w.sleep(slackAPICallDelay)
				replies, err := w.fetchRepliesWithRetry(ctx, cred.AccessToken, ch.ChannelID, m.TS)
				if err != nil {
					log.Error().Err(err).Str("channel", ch.ChannelID).Str("thread_ts", m.TS).Msg("sync: fetching thread replies failed")
					continue
				}
				for _, r := range replies {
					if err := w.storeMessage(ctx, cred, ch, r, m.TS); err != nil {
						return synced, err
					}
					synced++
				}
			}
		}
		cursor = nextCursor
		if cursor == "" {
			break
		}
		w.sleep(slackAPICallDelay)
	}
	return synced, nil
}

func (w *SlackWorker) fetchHistoryWithRetry(ctx context.Context, token, channelID, oldest, cursor string) ([]slackapi.Message, string, error) {
	var lastErr error
	delay := slackRetryBaseDelay
	for attempt := 0; attempt <= slackMaxFetchRetries; attempt++ {
		messages, next, err := w.client.ChannelHistory(ctx, token, channelID, oldest, cursor)
		if err == nil {
			return messages, next, nil
		}
		lastErr = err
		if attempt == slackMaxFetchRetries || !errors.Is(err, slackapi.ErrRateLimited) {
			break
		}
		log.Warn().Err(err).Str("channel", channelID).Int("attempt", attempt+1).Msg("sync: slack history fetch rate limited, retrying")
		w.sleep(delay)
		delay *= 2
	}
	return nil, "", lastErr
}

func (w *SlackWorker) fetchRepliesWithRetry(ctx context.Context, token, channelID, threadTS string) ([]slackapi.Message, error) {
	var lastErr error
	delay := slackRetryBaseDelay
	for attempt := 0; attempt <= slackMaxFetchRetries; attempt++ {
		replies, err := w.client.ThreadReplies(ctx, token, channelID, threadTS)
		if err == nil {
			return replies, nil
		}
		lastErr = err
		if attempt == slackMaxFetchRetries || !errors.Is(err, slackapi.ErrRateLimited) {
			break
		}
		w.sleep(delay)
		delay *= 2
	}
	return nil, lastErr
}

// storeMessage persists one Slack message as a ContentItem. parentTS, when
// non-empty, marks the message as a thread reply.
func (w *SlackWorker) storeMessage(ctx context.Context, cred slackCredential, ch store.SlackChannel, m slackapi.Message, parentTS string) error {
	body, err := w.vault.EncryptString(m.Text)
	if err != nil {
		return fmt.Errorf("sync: encrypting slack message %s: %w", m.TS, err)
	}

	createdMS, err := slackTimestampToMillis(m.TS)
	if err != nil {
		return fmt.Errorf("sync: parsing slack timestamp %q: %w", m.TS, err)
	}

	var parentID sql.NullString
	if parentTS != "" {
		parentID = sql.NullString{String: parentTS, Valid: true}
	}

	return w.store.UpsertContentItem(ctx, store.ContentItem{
		ID:               uuid.NewString(),
		Source:           "slack",
		SourceID:         m.TS,
		SourceURL:        sql.NullString{String: w.permalink(cred, ch.ChannelID, m.TS), Valid: true},
		ContentType:      slackContentType,
		Body:             sql.NullString{String: body, Valid: true},
		AuthorID:         sql.NullString{String: m.User, Valid: m.User != ""},
		ChannelOrProject: sql.NullString{String: ch.ChannelID, Valid: true},
		ParentID:         parentID,
		CreatedAt:        createdMS,
		UpdatedAt:        createdMS,
		SyncedAt:         w.nowMS(),
	})
}

// permalink builds a human-navigable link to the message: the real
// workspace URL when the team domain is known, else Slack's generic
// app_redirect deep link.
func (w *SlackWorker) permalink(cred slackCredential, channelID, ts string) string {
	if cred.TeamDomain != "" {
		return fmt.Sprintf("https://%s.slack.com/archives/%s/p%s", cred.TeamDomain, channelID, strings.Replace(ts, ".", "", 1))
	}
	return fmt.Sprintf("https://app.slack.com/client/%s/%s", cred.TeamID, channelID)
}

// refreshUserDirectoryIfStale repopulates the slack_users cache from
// users.list when the token holder's own cached row is stale or missing.
// The freshness of other rows is not checked.
func (w *SlackWorker) refreshUserDirectoryIfStale(ctx context.Context, cred slackCredential) error {
	if _, fresh, err := w.store.SlackUser(ctx, cred.UserID, w.nowMS()); err == nil && fresh {
		return nil
	}

	users, err := w.client.ListUsers(ctx, cred.AccessToken)
	if err != nil {
		return fmt.Errorf("sync: listing slack users: %w", err)
	}

	now := w.nowMS()
	for _, u := range users {
		if err := w.store.UpsertSlackUser(ctx, store.SlackUser{
			UserID:      u.ID,
			TeamID:      sql.NullString{String: cred.TeamID, Valid: cred.TeamID != ""},
			Username:    sql.NullString{String: u.Name, Valid: u.Name != ""},
			RealName:    sql.NullString{String: u.RealName, Valid: u.RealName != ""},
			DisplayName: sql.NullString{String: u.DisplayName, Valid: u.DisplayName != ""},
			UpdatedAt:   now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// RefreshChannelList fetches every conversation visible to the token holder
// and records it, leaving any existing enabled flag untouched.
func (w *SlackWorker) RefreshChannelList(ctx context.Context) error {
	cred, ok, err := w.loadCredential(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSlackNotConnected
	}

	channels, err := w.client.ListChannels(ctx, cred.AccessToken)
	if err != nil {
		return fmt.Errorf("sync: listing slack channels: %w", err)
	}
	for _, ch := range channels {
		if err := w.store.UpsertSlackChannel(ctx, store.SlackChannel{
			ChannelID: ch.ID, ChannelName: ch.Name,
			TeamID: sql.NullString{String: cred.TeamID, Valid: cred.TeamID != ""},
			IsPrivate: ch.IsPrivate, IsIM: ch.IsIM, IsMPIM: ch.IsMPIM,
		}); err != nil {
			return err
		}
	}
	return nil
}

// slackTimestampToMillis parses a Slack message timestamp ("1699999999.000100")
// into Unix milliseconds.
func slackTimestampToMillis(ts string) (int64, error) {
	parts := strings.SplitN(ts, ".", 2)
	secs, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, err
	}
	millis := int64(0)
	if len(parts) == 2 {
		frac := parts[1]
		if len(frac) > 3 {
			frac = frac[:3]
		}
		for len(frac) < 3 {
			frac += "0"
		}
		ms, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, err
		}
		millis = ms
	}
	return secs*1000 + millis, nil
}

// slackDayWindow computes the Slack-format [oldest, latest] timestamp bounds
// for one local calendar day, adjusting for a JavaScript-style
// getTimezoneOffset() value (minutes to ADD to local time to reach UTC).
func slackDayWindow(dateStr string, timezoneOffsetMinutes int) (oldest, latest string, err error) {
	day, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return "", "", fmt.Errorf("sync: parsing historical date %q: %w", dateStr, err)
	}
	offset := time.Duration(timezoneOffsetMinutes) * time.Minute
	startUTC := day.Add(offset)
	endUTC := startUTC.Add(24 * time.Hour)
	oldest = fmt.Sprintf("%d.000000", startUTC.Unix())
	latest = fmt.Sprintf("%d.999999", endUTC.Unix()-1)
	return oldest, latest, nil
}
