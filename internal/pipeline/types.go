// Package pipeline turns a day's worth of synced content items into AI
// summaries: one cross-channel grouping pass for ordinary days, or a two-pass
// per-channel-then-cross-channel summarization for high-volume ones, plus
// the daily digest that rolls all of it up.
package pipeline

// hierarchicalChannelThreshold is the message count at which a single
// channel gets its own summarization pass instead of being grouped directly
// with everything else.
const hierarchicalChannelThreshold = 50

// hierarchicalTotalThreshold is the message count at which a whole day's
// batch switches from direct cross-channel grouping to the two-pass
// hierarchical strategy.
const hierarchicalTotalThreshold = 200

// messageForPrompt is one content item rendered into the flat shape every
// summarization prompt expects.
type messageForPrompt struct {
	ID       string `json:"id"`
	Channel  string `json:"channel"`
	Author   string `json:"author"`
	Time     string `json:"timestamp"`
	Text     string `json:"text"`
	URL      string `json:"url,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
}
