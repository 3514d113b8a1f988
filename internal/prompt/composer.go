package prompt

import (
	"encoding/json"
	"fmt"
)

// maxBodyBytes bounds how much raw content is embedded in a single-item
// summarization prompt, generalizing the original confluence-only 8000-byte
// cap to every source.
const maxBodyBytes = 8000

// TruncateUTF8 returns the first n bytes of s, backing off to the nearest
// preceding rune boundary so a multi-byte character is never split. It is a
// no-op if s is already at most n bytes.
func TruncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && isUTF8ContinuationByte(s[n]) {
		n--
	}
	return s[:n]
}

func isUTF8ContinuationByte(b byte) bool {
	return b&0xC0 == 0x80
}

const itemResponseShape = `{
  "summary": "%s",
  "highlights": ["key point 1", "key point 2"%s],
  "category": "one of: sales, marketing, product, engineering, research, other",
  "category_confidence": 0.0-1.0,
  "importance_score": 0.0-1.0,
  "entities": {
    "people": ["mentioned people"],
    "projects": ["mentioned projects"],
    "topics": ["key topics"]
  }
}`

// SlackMessagePrompt builds the item-summarization prompt for a Slack
// conversation excerpt from one channel.
func SlackMessagePrompt(channel, messages string) string {
	messages = TruncateUTF8(messages, maxBodyBytes)
	shape := fmt.Sprintf(itemResponseShape, "2-3 sentence summary of the conversation", `, "key point 3"`)
	return fmt.Sprintf(`Analyze this Slack conversation from #%s and provide a JSON response:

%s

Return JSON with this structure:
%s`, channel, messages, shape)
}

// JiraIssuePrompt builds the item-summarization prompt for a single Jira
// issue.
func JiraIssuePrompt(key, summary, description string) string {
	description = TruncateUTF8(description, maxBodyBytes)
	shape := fmt.Sprintf(itemResponseShape, "2-3 sentence summary explaining what this issue is about and its significance", "")
	return fmt.Sprintf(`Analyze this Jira issue and provide a JSON response:

Issue: %s
Summary: %s
Description: %s

Return JSON with this structure:
%s`, key, summary, description, shape)
}

// ConfluencePagePrompt builds the item-summarization prompt for a single
// Confluence page.
func ConfluencePagePrompt(title, space, content string) string {
	content = TruncateUTF8(content, maxBodyBytes)
	shape := fmt.Sprintf(itemResponseShape, "2-3 sentence summary of the page content", `, "key point 3"`)
	return fmt.Sprintf(`Analyze this Confluence page and provide a JSON response:

Title: %s
Space: %s
Content: %s

Return JSON with this structure:
%s`, title, space, content, shape)
}

const digestResponseShape = `{
  "summary": "%s",
  "key_themes": ["theme 1", "theme 2", "theme 3"],
  "top_items": [
    {"title": "item title", "reason": "why this is important"},
    {"title": "item title", "reason": "why this is important"}
  ],
  "action_items": ["suggested action 1", "suggested action 2"]
}`

// DailyDigestPrompt builds the prompt asking the model to roll up a day's
// item and group summaries into an executive digest.
func DailyDigestPrompt(date, itemsJSON string) string {
	shape := fmt.Sprintf(digestResponseShape, "3-4 sentence executive summary of the day's key activities")
	return fmt.Sprintf(`Create a daily digest summary for %s from these items:

%s

Return JSON with this structure:
%s`, date, itemsJSON, shape)
}

// WeeklyDigestPrompt builds the prompt asking the model to roll up a week's
// daily digests into a single executive summary.
func WeeklyDigestPrompt(weekStart, dailySummaries string) string {
	shape := fmt.Sprintf(digestResponseShape, "4-5 sentence executive summary of the week's key activities and trends")
	return fmt.Sprintf(`Create a weekly digest summary for the week of %s:

%s

Return JSON with this structure:
%s`, weekStart, dailySummaries, shape)
}

// WeeklyBreakdownPrompt builds the prompt behind the status-update-style
// weekly breakdown: the same week's daily digests, bucketed into what
// matters for a stakeholder update rather than narrated as a digest.
// userGuidance, when non-empty, lets the caller steer which items count as
// "major" versus "informational" (e.g. "focus on customer-facing work").
func WeeklyBreakdownPrompt(title, dailySummariesJSON string, userGuidance string) string {
	guidance := ""
	if userGuidance != "" {
		guidance = fmt.Sprintf("\nAdditional guidance from the user on what to emphasize: %s\n", userGuidance)
	}
	return fmt.Sprintf(`You are preparing a weekly status update titled "%s" from the following daily summaries:

%s
%s
Sort every notable item from the week into exactly one of four buckets:
- major: significant outcomes, decisions, or launches worth calling out on their own
- focus: what the team spent most of its time on this week
- obstacles: blockers, risks, or open problems that need attention
- informational: smaller updates worth mentioning but not driving the narrative

Return JSON with this structure:
{
  "major": ["item 1", "item 2"],
  "focus": ["item 1", "item 2"],
  "obstacles": ["item 1"],
  "informational": ["item 1", "item 2"]
}

Guidelines:
- Every bullet should be a short, standalone statement, not a fragment
- Leave a bucket as an empty array if nothing from the week belongs in it
- Do not repeat the same item across multiple buckets`, title, dailySummariesJSON, guidance)
}

const batchAnalysisResponseShape = `{
  "groups": [
    {
      %s
      "topic": "Clear, descriptive topic name (e.g., 'Q1 Product Launch Planning')",
      "channels": ["#channel1", "#channel2", "DM: Person1 & Person2"],
      "summary": "2-4 sentence summary of this discussion across all channels",
      "highlights": ["key point 1", "key point 2", "key point 3"],
      "category": "one of: sales, marketing, product, engineering, research, other",
      "importance_score": 0.0-1.0,
      "message_ids": ["id1", "id2", "id3"],
      "key_message_ids": ["id1", "id2"],
      "people": ["person1", "person2"]
    }
  ],
  "ungrouped": [
    {
      "message_id": "id",
      "summary": "Brief 1-sentence summary",
      "category": "category",
      "importance_score": 0.0-1.0
    }
  ],
  "daily_summary": "3-4 sentence executive summary of the day's key activities and themes",
  "key_themes": ["theme 1", "theme 2", "theme 3"],
  "action_items": ["suggested action 1", "suggested action 2"]
}`

const batchAnalysisGuidelines = `Guidelines:
- Group messages that discuss the SAME topic, project, or issue, even across different channels
- A single message can only belong to ONE group (use message_ids to track)
- Low-content messages (just emojis, "ok", "thanks") should go in ungrouped with low importance
- importance_score: 0.9-1.0 for critical business decisions, 0.6-0.8 for important updates, 0.3-0.5 for routine, 0.0-0.2 for noise
- Identify action items that emerge from discussions
- The daily_summary should give an executive the key takeaways in 30 seconds
- topic_id: When updating an existing topic, copy the exact topic_id string from the existing topics list. For new topics, set topic_id to null
- key_message_ids: Select 1-3 of the MOST IMPORTANT messages that would be best for jumping back into the original conversation. Choose messages that provide the most context or contain key decisions/information. These will be shown as direct links to Slack.`

// BatchAnalysisPrompt is BatchAnalysisPromptWithExisting with no carried-over
// topics, for the first sync cycle of a day.
func BatchAnalysisPrompt(date, messagesJSON string) string {
	return BatchAnalysisPromptWithExisting(date, messagesJSON, nil)
}

// BatchAnalysisPromptWithExisting builds the flat cross-channel grouping
// prompt. When existingTopics is non-empty, the model is instructed to
// merge new messages into those topics by id rather than creating
// duplicates — the carry-over mechanism that keeps a topic's summary
// growing across sync cycles within the same day.
func BatchAnalysisPromptWithExisting(date, messagesJSON string, existingTopics []ExistingTopic) string {
	existingContext := ""
	topicIDInstruction := `"topic_id": null,`

	if len(existingTopics) > 0 {
		topicsJSON, _ := json.Marshal(existingTopics)
		existingContext = fmt.Sprintf(`
EXISTING TOPICS FROM EARLIER TODAY:
The following topics were already identified from earlier sync cycles today. When you encounter new messages that relate to these existing topics, you should MERGE them into the existing topic rather than creating a new one.

%s

IMPORTANT MERGING RULES:
- If new messages relate to an existing topic, include the existing topic_id in your response and UPDATE the summary/highlights to incorporate the new information
- For message_ids: only include the NEW message IDs from this batch (the system will automatically merge them with existing IDs)
- Update channels and people lists to include any new participants (combine with existing)
- Update the summary to reflect ALL information (existing + new)
- Only create a NEW topic if the discussion is genuinely different from all existing topics
- When updating an existing topic, use the SAME topic_id from the existing topic

`, string(topicsJSON))
		topicIDInstruction = `"topic_id": "topic_abc123",`
	}

	shape := fmt.Sprintf(batchAnalysisResponseShape, topicIDInstruction)

	return fmt.Sprintf(`You are analyzing all messages from %s across multiple Slack channels and direct messages.
%s
Your task is to:
1. Identify related discussions that span multiple channels (e.g., a product launch discussed in #product, #marketing, and #sales)
2. Group related messages together by topic/theme
3. Summarize each group
4. Categorize each group (sales, marketing, product, engineering, research, or other)
5. Identify standalone messages that don't fit into any group
6. Create an executive summary of the entire day (incorporating all topics, both existing and new)

Here are the NEW messages to process (each includes: id, channel, author, timestamp, and text):

%s

Return JSON with this exact structure:
%s

%s`, date, existingContext, messagesJSON, shape, batchAnalysisGuidelines)
}

// ChannelSummaryPrompt builds the first-pass prompt in hierarchical
// summarization: summarize one high-volume channel in isolation.
func ChannelSummaryPrompt(channel string, purpose string, messagesJSON string) string {
	purposeLine := ""
	if purpose != "" {
		purposeLine = fmt.Sprintf("Channel purpose: %s\n", purpose)
	}
	return fmt.Sprintf(`Summarize the discussion in #%s.
%s
Messages:
%s

Return JSON with this structure:
{
  "channel": "%s",
  "summary": "2-3 sentence summary of the key discussions in this channel",
  "key_topics": ["topic1", "topic2", "topic3"],
  "key_people": ["person1", "person2"],
  "importance_score": 0.0-1.0,
  "notable_message_ids": ["id1", "id2"]
}

Guidelines:
- Focus on the most significant discussions and decisions
- importance_score: 0.9-1.0 for critical decisions, 0.6-0.8 for important updates, 0.3-0.5 for routine
- notable_message_ids: include IDs of the 2-5 most important messages`, channel, purposeLine, messagesJSON, channel)
}

// CrossChannelGroupingPrompt builds the second-pass prompt in hierarchical
// summarization: combine per-channel summaries (plus any low-volume
// channels' raw messages) into cross-channel topic groups.
func CrossChannelGroupingPrompt(date string, channelSummariesJSON string, ungroupedMessagesJSON string) string {
	ungroupedSection := ""
	if ungroupedMessagesJSON != "" {
		ungroupedSection = fmt.Sprintf(`
MESSAGES FROM LOW-VOLUME CHANNELS (process directly):
%s
`, ungroupedMessagesJSON)
	}

	return fmt.Sprintf(`You are creating a daily digest for %s by combining summaries from multiple Slack channels.

CHANNEL SUMMARIES:
%s
%s
Your task is to:
1. Identify topics that span multiple channels (cross-channel themes)
2. Group related channel discussions together
3. Create an executive summary of the entire day

Return JSON with this structure:
{
  "groups": [
    {
      "topic": "Cross-channel topic name (e.g., 'Q1 Product Launch')",
      "channels": ["#channel1", "#channel2"],
      "summary": "2-4 sentence summary combining the related discussions",
      "highlights": ["key point 1", "key point 2"],
      "category": "one of: sales, marketing, product, engineering, research, other",
      "importance_score": 0.0-1.0,
      "message_ids": ["notable_id1", "notable_id2"],
      "key_message_ids": ["notable_id1"],
      "people": ["person1", "person2"]
    }
  ],
  "daily_summary": "3-4 sentence executive summary of the day",
  "key_themes": ["theme1", "theme2", "theme3"],
  "action_items": ["action1", "action2"]
}

Guidelines:
- Group discussions by TOPIC, not by channel
- A channel's content can be split across multiple topic groups
- importance_score: based on business impact, not just activity level
- Include action items that emerge from discussions
- key_message_ids: Select 1-3 of the MOST IMPORTANT messages for jumping back into the conversation`, date, channelSummariesJSON, ungroupedSection)
}
