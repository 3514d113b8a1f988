// Package prompt builds the exact prompt text sent to the LLM for
// per-item summarization, cross-channel grouping, and daily/weekly digests,
// and defines the structured JSON shapes those prompts ask the model to
// return.
package prompt

// SummaryResult is the structured reply an item-summarization prompt asks
// the model to return.
type SummaryResult struct {
	Summary            string   `json:"summary"`
	Highlights         []string `json:"highlights"`
	Category           string   `json:"category"`
	CategoryConfidence float64  `json:"category_confidence"`
	ImportanceScore    float64  `json:"importance_score"`
	Entities           Entities `json:"entities"`
}

// Entities are the named people, projects and topics an item summarization
// pass extracted.
type Entities struct {
	People   []string `json:"people"`
	Projects []string `json:"projects"`
	Topics   []string `json:"topics"`
}

// DigestSummary is the structured reply a daily or weekly digest prompt
// asks the model to return.
type DigestSummary struct {
	Summary     string    `json:"summary"`
	KeyThemes   []string  `json:"key_themes"`
	TopItems    []TopItem `json:"top_items"`
	ActionItems []string  `json:"action_items"`
}

// TopItem is one highlighted entry within a digest.
type TopItem struct {
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// WeeklyBreakdown is the structured reply the weekly-status-update prompt
// asks the model to return, bucketed by how the item should be reported.
type WeeklyBreakdown struct {
	Major         []string `json:"major"`
	Focus         []string `json:"focus"`
	Obstacles     []string `json:"obstacles"`
	Informational []string `json:"informational"`
}

// GroupedAnalysisResult is the structured reply a batch (cross-channel)
// analysis prompt asks the model to return: topic groups plus whatever
// didn't fit into any group.
type GroupedAnalysisResult struct {
	Groups       []ContentGroup   `json:"groups"`
	Ungrouped    []UngroupedItem  `json:"ungrouped"`
	DailySummary string           `json:"daily_summary"`
	KeyThemes    []string         `json:"key_themes"`
	ActionItems  []string         `json:"action_items"`
}

// ContentGroup is one cross-channel topic the model identified. TopicID is
// empty for a brand-new topic and set to an existing topic's id when the
// model merged new messages into it.
type ContentGroup struct {
	TopicID         string   `json:"topic_id,omitempty"`
	Topic           string   `json:"topic"`
	Channels        []string `json:"channels"`
	Summary         string   `json:"summary"`
	Highlights      []string `json:"highlights"`
	Category        string   `json:"category"`
	ImportanceScore float64  `json:"importance_score"`
	MessageIDs      []string `json:"message_ids"`
	KeyMessageIDs   []string `json:"key_message_ids"`
	People          []string `json:"people"`
}

// UngroupedItem is a message that didn't fit into any ContentGroup.
type UngroupedItem struct {
	MessageID       string  `json:"message_id"`
	Summary         string  `json:"summary"`
	Category        string  `json:"category"`
	ImportanceScore float64 `json:"importance_score"`
}

// ExistingTopic carries a previously-identified topic's state into a later
// merge pass on the same day, so the model can fold new messages into it
// instead of creating a duplicate.
type ExistingTopic struct {
	TopicID         string   `json:"topic_id"`
	Topic           string   `json:"topic"`
	Channels        []string `json:"channels"`
	Summary         string   `json:"summary"`
	Category        string   `json:"category"`
	ImportanceScore float64  `json:"importance_score"`
	MessageCount    int      `json:"message_count"`
	People          []string `json:"people"`
}

// ChannelSummary is one channel's per-channel summary, produced during the
// first pass of hierarchical (high-volume-day) summarization.
type ChannelSummary struct {
	Channel           string   `json:"channel"`
	Summary           string   `json:"summary"`
	KeyTopics         []string `json:"key_topics"`
	KeyPeople         []string `json:"key_people"`
	ImportanceScore   float64  `json:"importance_score"`
	NotableMessageIDs []string `json:"notable_message_ids"`
	MessageCount      int      `json:"message_count"`
}

// Categories the model is asked to classify every item into.
var Categories = []string{"sales", "marketing", "product", "engineering", "research", "other"}
