package pipeline

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"daybook/internal/prompt"
	"daybook/internal/store"
)

// generateTopicID derives a deterministic id for a topic name on a given
// day, so the same topic surfaced twice in one day's batch collapses onto
// the same row instead of duplicating. The name is lowercased first so
// minor case variations from the model still group together.
func generateTopicID(topic, date string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(topic)))
	h.Write([]byte(date))
	sum := h.Sum(nil)

	var folded uint64
	for _, b := range sum[:8] {
		folded = (folded << 8) | uint64(b)
	}
	return fmt.Sprintf("topic_%016x", folded)
}

// mergeMessageIDs appends every id in newIDs that isn't already present in
// existing, preserving the original order of both slices.
func mergeMessageIDs(existing, newIDs []string) []string {
	merged := make([]string, len(existing), len(existing)+len(newIDs))
	copy(merged, existing)
	seen := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	for _, id := range newIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		merged = append(merged, id)
		seen[id] = struct{}{}
	}
	return merged
}

// topicEntities is the shape persisted into ai_summaries.entities for a
// group-type row: the only place a topic's name, channel list, participant
// list and message membership survive between processing runs.
type topicEntities struct {
	Topic      string   `json:"topic"`
	Channels   []string `json:"channels"`
	People     []string `json:"people"`
	MessageIDs []string `json:"message_ids"`
}

// convertExistingTopics turns a window of previously-stored group summaries
// into the prompt-facing ExistingTopic list plus a side map of each topic's
// current message ids, used later to merge in newly grouped messages. Rows
// whose entities are missing, unparseable, or lack a topic name are skipped
// entirely — they carry no information the model or the merge step can use.
func convertExistingTopics(rows []store.Summary) (map[string][]string, []prompt.ExistingTopic) {
	messageIDsByTopic := make(map[string][]string)
	var existing []prompt.ExistingTopic

	for _, row := range rows {
		if !row.Entities.Valid {
			continue
		}
		var ent topicEntities
		if err := json.Unmarshal([]byte(row.Entities.String), &ent); err != nil {
			continue
		}
		if ent.Topic == "" {
			continue
		}

		messageIDsByTopic[row.ID] = ent.MessageIDs

		category := "other"
		if row.Category.Valid && row.Category.String != "" {
			category = row.Category.String
		}
		importance := 0.5
		if row.ImportanceScore.Valid {
			importance = row.ImportanceScore.Float64
		}

		existing = append(existing, prompt.ExistingTopic{
			TopicID:         row.ID,
			Topic:           ent.Topic,
			Channels:        ent.Channels,
			Summary:         row.Summary,
			Category:        category,
			ImportanceScore: importance,
			MessageCount:    len(ent.MessageIDs),
			People:          ent.People,
		})
	}

	return messageIDsByTopic, existing
}
