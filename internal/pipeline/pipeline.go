package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"daybook/internal/crypto"
	"daybook/internal/llmclient"
	"daybook/internal/prompt"
	"daybook/internal/store"
)

// llmClient is the subset of llmclient.Client the pipeline needs; narrowed
// to an interface so tests can substitute a fake model.
type llmClient interface {
	GenerateJSON(ctx context.Context, prompt string, v any) error
}

// Pipeline turns synced content items into AI summaries and persists them
// back to the store.
type Pipeline struct {
	llm    llmClient
	store  *store.Store
	vault  *crypto.Vault
	nowMS  func() int64
}

// New returns a Pipeline backed by the given LLM client, store, and
// decryption vault.
func New(llm *llmclient.Client, st *store.Store, vault *crypto.Vault) *Pipeline {
	return &Pipeline{
		llm:   llm,
		store: st,
		vault: vault,
		nowMS: func() int64 { return time.Now().UnixMilli() },
	}
}

// loadUserMap builds a Slack user id -> display name map, preferring
// display name over real name over the bare id, for rendering message
// authors into prompts.
func (p *Pipeline) loadUserMap(ctx context.Context) (map[string]string, error) {
	rows, err := p.store.DB().QueryContext(ctx, `SELECT user_id, real_name, display_name FROM slack_users`)
	if err != nil {
		return nil, fmt.Errorf("pipeline: loading user map: %w", err)
	}
	defer rows.Close()

	userMap := make(map[string]string)
	for rows.Next() {
		var userID string
		var realName, displayName *string
		if err := rows.Scan(&userID, &realName, &displayName); err != nil {
			return nil, fmt.Errorf("pipeline: scanning slack user: %w", err)
		}
		name := userID
		if realName != nil && *realName != "" {
			name = *realName
		}
		if displayName != nil && *displayName != "" {
			name = *displayName
		}
		userMap[userID] = name
	}
	return userMap, rows.Err()
}

// dayWindow computes the UTC millisecond range [start, end) covering local
// midnight-to-midnight for the given day, plus the YYYY-MM-DD label for that
// local day. offsetMinutes follows JavaScript's Date.getTimezoneOffset
// convention: positive values are west of UTC (PST is 480).
func dayWindow(offsetMinutes int, now time.Time) (startMS, endMS int64, dateStr string) {
	loc := time.FixedZone("local-offset", -offsetMinutes*60)
	localNow := now.In(loc)
	today := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, loc)
	startMS = today.UTC().UnixMilli()
	endMS = startMS + 86400*1000
	dateStr = today.Format("2006-01-02")
	return
}

// ProcessDailyBatch summarizes every content item created during the local
// day identified by offsetMinutes that hasn't already been summarized,
// merging into any topic groups already produced earlier in that same day.
// It returns the number of topic groups and ungrouped items stored; the
// placeholder rows for grouped messages and the daily rollup are not counted.
func (p *Pipeline) ProcessDailyBatch(ctx context.Context, offsetMinutes int) (int, error) {
	startMS, endMS, dateStr := dayWindow(offsetMinutes, time.Now())
	return p.processWindow(ctx, startMS, endMS, dateStr)
}

// ProcessBatchForDate is ProcessDailyBatch for an explicit past local date
// rather than today, used by the historical resync path so a backfilled
// day gets summarized the same way a live one does.
func (p *Pipeline) ProcessBatchForDate(ctx context.Context, offsetMinutes int, dateStr string) (int, error) {
	loc := time.FixedZone("local-offset", -offsetMinutes*60)
	day, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		return 0, fmt.Errorf("pipeline: parsing date %q: %w", dateStr, err)
	}
	startMS := day.UTC().UnixMilli()
	endMS := startMS + 86400*1000
	return p.processWindow(ctx, startMS, endMS, dateStr)
}

func (p *Pipeline) processWindow(ctx context.Context, startMS, endMS int64, dateStr string) (int, error) {
	items, err := p.store.UnsummarizedItemsInWindow(ctx, startMS, endMS)
	if err != nil {
		return 0, fmt.Errorf("pipeline: fetching unprocessed items: %w", err)
	}
	if len(items) == 0 {
		log.Info().Msg("pipeline: no unprocessed items for today")
		return 0, nil
	}
	log.Info().Int("items", len(items)).Str("date", dateStr).Msg("pipeline: processing daily batch")

	userMap, err := p.loadUserMap(ctx)
	if err != nil {
		log.Error().Err(err).Msg("pipeline: loading user map failed, continuing without it")
		userMap = map[string]string{}
	}

	existingRows, err := p.store.GroupSummariesInWindow(ctx, startMS, endMS)
	if err != nil {
		return 0, fmt.Errorf("pipeline: loading existing topic groups: %w", err)
	}
	existingMessageIDs, existingTopics := convertExistingTopics(existingRows)
	log.Info().Int("count", len(existingTopics)).Msg("pipeline: found existing topic groups for today")

	messages := p.buildMessagesForPrompt(items, userMap)
	if len(messages) == 0 {
		log.Info().Msg("pipeline: all items were empty, nothing to process")
		return 0, nil
	}

	var result prompt.GroupedAnalysisResult
	if len(messages) >= hierarchicalTotalThreshold {
		log.Info().Int("messages", len(messages)).Msg("pipeline: using hierarchical summarization")
		byChannel := make(map[string][]messageForPrompt)
		for _, m := range messages {
			byChannel[m.Channel] = append(byChannel[m.Channel], m)
		}
		result, err = p.processHierarchical(ctx, dateStr, byChannel)
	} else {
		result, err = p.processBatchDirect(ctx, dateStr, messages, existingTopics)
	}
	if err != nil {
		return 0, err
	}

	storedCount, err := p.storeResults(ctx, result, dateStr, existingMessageIDs)
	if err != nil {
		return 0, err
	}

	log.Info().
		Int("groups", len(result.Groups)).
		Int("ungrouped", len(result.Ungrouped)).
		Int("action_items", len(result.ActionItems)).
		Msg("pipeline: batch processing complete")

	return storedCount, nil
}

// buildMessagesForPrompt decrypts each item's body and renders it into the
// flat prompt shape, skipping items whose decrypted text is empty or
// whitespace-only (nothing for the model to summarize).
func (p *Pipeline) buildMessagesForPrompt(items []store.ContentItem, userMap map[string]string) []messageForPrompt {
	var messages []messageForPrompt
	for _, item := range items {
		var text string
		if item.Body.Valid {
			decrypted, err := p.vault.DecryptString(item.Body.String)
			if err != nil {
				text = "[decryption failed]"
			} else {
				text = decrypted
			}
		}
		if isBlank(text) {
			continue
		}

		timestamp := ""
		if item.CreatedAt > 0 {
			timestamp = time.UnixMilli(item.CreatedAt).UTC().Format("15:04")
		}

		author := "unknown"
		if item.AuthorID.Valid {
			author = item.AuthorID.String
			if name, ok := userMap[item.AuthorID.String]; ok {
				author = name
			}
		}

		channel := "unknown"
		if item.ChannelOrProject.Valid {
			channel = item.ChannelOrProject.String
		}

		m := messageForPrompt{
			ID:      item.ID,
			Channel: channel,
			Author:  author,
			Time:    timestamp,
			Text:    text,
		}
		if item.SourceURL.Valid {
			m.URL = item.SourceURL.String
		}
		if item.ParentID.Valid {
			m.ThreadID = item.ParentID.String
		}
		messages = append(messages, m)
	}
	return messages
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

// processBatchDirect sends every message in one cross-channel grouping
// prompt, the strategy used for days under the hierarchical threshold.
func (p *Pipeline) processBatchDirect(ctx context.Context, dateStr string, messages []messageForPrompt, existingTopics []prompt.ExistingTopic) (prompt.GroupedAnalysisResult, error) {
	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return prompt.GroupedAnalysisResult{}, fmt.Errorf("pipeline: encoding messages: %w", err)
	}

	p1 := prompt.BatchAnalysisPromptWithExisting(dateStr, string(messagesJSON), existingTopics)

	log.Info().Int("messages", len(messages)).Int("existing_topics", len(existingTopics)).
		Msg("pipeline: sending batch to llm for analysis")

	var result prompt.GroupedAnalysisResult
	if err := p.llm.GenerateJSON(ctx, p1, &result); err != nil {
		return prompt.GroupedAnalysisResult{}, fmt.Errorf("pipeline: batch analysis: %w", err)
	}
	return result, nil
}

// storeResults persists groups, ungrouped items, and the daily digest from
// one analysis pass. generated_at is stamped with the wall-clock time the
// row was written, not a fixed time for the target date, so a group
// re-merged later in the day carries the timestamp of its latest update.
func (p *Pipeline) storeResults(ctx context.Context, result prompt.GroupedAnalysisResult, dateStr string, existingMessageIDs map[string][]string) (int, error) {
	now := p.nowMS()
	stored := 0

	for _, group := range result.Groups {
		aiRecognizedExisting := group.TopicID != ""
		topicID := group.TopicID
		if topicID == "" {
			topicID = generateTopicID(group.Topic, dateStr)
		}

		exists, err := p.store.SummaryExists(ctx, topicID)
		if err != nil {
			return stored, err
		}
		shouldUpdate := exists && aiRecognizedExisting

		var mergedIDs []string
		if shouldUpdate {
			ids, ok := existingMessageIDs[topicID]
			if !ok || len(ids) == 0 {
				log.Warn().Str("topic_id", topicID).Msg("pipeline: topic has empty or missing message_ids locally, fetching from database")
				ids, err = p.fetchMessageIDsFromDB(ctx, topicID)
				if err != nil {
					log.Error().Err(err).Str("topic_id", topicID).Msg("pipeline: failed to fetch message ids for topic")
					ids = nil
				}
			}
			mergedIDs = mergeMessageIDs(ids, group.MessageIDs)
		} else {
			mergedIDs = append([]string(nil), group.MessageIDs...)
		}

		finalTopicID := topicID
		if exists && !aiRecognizedExisting {
			finalTopicID = fmt.Sprintf("%s_%s", topicID, uuid.NewString()[:8])
			log.Warn().Str("topic", group.Topic).Str("new_id", finalTopicID).Msg("pipeline: topic id collision, generating unique id")
		}

		entitiesJSON, err := json.Marshal(topicEntities{
			Topic:      group.Topic,
			Channels:   group.Channels,
			People:     group.People,
			MessageIDs: mergedIDs,
		})
		if err != nil {
			return stored, fmt.Errorf("pipeline: encoding topic entities: %w", err)
		}
		highlightsJSON, err := json.Marshal(group.Highlights)
		if err != nil {
			return stored, fmt.Errorf("pipeline: encoding highlights: %w", err)
		}

		sm := store.Summary{
			ID:                 finalTopicID,
			SummaryType:        store.SummaryTypeGroup,
			Summary:            group.Summary,
			Highlights:         sqlString(string(highlightsJSON)),
			Category:           sqlString(group.Category),
			CategoryConfidence: sqlFloat(0.9),
			ImportanceScore:    sqlFloat(group.ImportanceScore),
			Entities:           sqlString(string(entitiesJSON)),
			GeneratedAt:        now,
		}
		if err := p.store.UpsertSummary(ctx, sm); err != nil {
			return stored, err
		}
		stored++

		for _, msgID := range group.MessageIDs {
			placeholder := store.Summary{
				ID:              uuid.NewString(),
				ContentItemID:   sqlString(msgID),
				SummaryType:     store.SummaryTypeItem,
				Summary:         fmt.Sprintf("Part of group: %s", group.Topic),
				Category:        sqlString(group.Category),
				ImportanceScore: sqlFloat(group.ImportanceScore),
				GeneratedAt:     now,
			}
			if err := p.insertItemPlaceholderIfAbsent(ctx, placeholder); err != nil {
				log.Error().Err(err).Str("message_id", msgID).Msg("pipeline: failed to mark message as processed")
			}
		}
	}

	for _, ungrouped := range result.Ungrouped {
		placeholder := store.Summary{
			ID:              uuid.NewString(),
			ContentItemID:   sqlString(ungrouped.MessageID),
			SummaryType:     store.SummaryTypeItem,
			Summary:         ungrouped.Summary,
			Category:        sqlString(ungrouped.Category),
			ImportanceScore: sqlFloat(ungrouped.ImportanceScore),
			GeneratedAt:     now,
		}
		if err := p.insertItemPlaceholderIfAbsent(ctx, placeholder); err != nil {
			return stored, err
		}
		stored++
	}

	dailyID := fmt.Sprintf("daily_%s", dateStr)
	keyThemesJSON, err := json.Marshal(result.KeyThemes)
	if err != nil {
		return stored, fmt.Errorf("pipeline: encoding key themes: %w", err)
	}
	daily := store.Summary{
		ID:          dailyID,
		SummaryType: store.SummaryTypeDaily,
		Summary:     result.DailySummary,
		Highlights:  sqlString(string(keyThemesJSON)),
		GeneratedAt: now,
	}
	if err := p.store.UpsertSummary(ctx, daily); err != nil {
		return stored, err
	}

	return stored, nil
}

// insertItemPlaceholderIfAbsent records that a message has been folded into
// a group or left ungrouped, so it drops out of the unsummarized-items
// query. A pre-existing row for the same id (extremely unlikely with a
// fresh uuid, but possible on retry) is left untouched rather than
// overwritten.
func (p *Pipeline) insertItemPlaceholderIfAbsent(ctx context.Context, sm store.Summary) error {
	exists, err := p.store.SummaryExists(ctx, sm.ID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return p.store.UpsertSummary(ctx, sm)
}

// fetchMessageIDsFromDB recovers a topic's message id list straight from its
// persisted entities JSON — used when the in-memory map built at the start
// of the batch doesn't have an entry for a topic that does exist in the
// database (e.g. its entities JSON was malformed on a previous run).
func (p *Pipeline) fetchMessageIDsFromDB(ctx context.Context, topicID string) ([]string, error) {
	sm, ok, err := p.store.GetSummary(ctx, topicID)
	if err != nil || !ok || !sm.Entities.Valid {
		return nil, err
	}
	var ent topicEntities
	if err := json.Unmarshal([]byte(sm.Entities.String), &ent); err != nil {
		return nil, nil
	}
	return ent.MessageIDs, nil
}

func sqlString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func sqlFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: true}
}
