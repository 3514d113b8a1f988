package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruncateUTF8NoOpUnderLimit(t *testing.T) {
	require.Equal(t, "hello", TruncateUTF8("hello", 100))
}

func TestTruncateUTF8RespectsRuneBoundary(t *testing.T) {
	prefix := strings.Repeat("x", 7998)
	content := prefix + "🎉🎉🎉"
	truncated := TruncateUTF8(content, maxBodyBytes)

	require.LessOrEqual(t, len(truncated), maxBodyBytes)
	require.True(t, strings.HasPrefix(truncated, strings.Repeat("x", 100)))
	// Every byte must decode cleanly; a split rune would corrupt the tail.
	for i := 0; i < len(truncated); {
		r := truncated[i]
		switch {
		case r < 0x80:
			i++
		case r&0xE0 == 0xC0:
			i += 2
		case r&0xF0 == 0xE0:
			i += 3
		case r&0xF8 == 0xF0:
			i += 4
		default:
			t.Fatalf("invalid utf8 lead byte at %d", i)
		}
		require.LessOrEqual(t, i, len(truncated))
	}
}

func TestSlackMessagePromptContainsChannelAndMessages(t *testing.T) {
	p := SlackMessagePrompt("general", "Hello world")
	require.Contains(t, p, "#general")
	require.Contains(t, p, "Hello world")
	require.Contains(t, p, "Slack conversation")
}

func TestJiraIssuePromptContainsFields(t *testing.T) {
	p := JiraIssuePrompt("PROJ-123", "Fix bug", "Description here")
	require.Contains(t, p, "PROJ-123")
	require.Contains(t, p, "Fix bug")
	require.Contains(t, p, "Description here")
	require.Contains(t, p, "Jira issue")
}

func TestConfluencePagePromptTruncatesLongContent(t *testing.T) {
	long := strings.Repeat("x", 10000)
	p := ConfluencePagePrompt("Title", "Space", long)
	require.Less(t, len(p), 10000)
	require.Contains(t, p, strings.Repeat("x", 100))
}

func TestDailyDigestPromptContainsDate(t *testing.T) {
	p := DailyDigestPrompt("2024-01-15", `[{"summary": "test"}]`)
	require.Contains(t, p, "2024-01-15")
	require.Contains(t, p, "daily digest")
}

func TestWeeklyDigestPromptContainsWeekStart(t *testing.T) {
	p := WeeklyDigestPrompt("2024-01-08", "Monday summary\nTuesday summary")
	require.Contains(t, p, "2024-01-08")
	require.Contains(t, p, "weekly digest")
	require.Contains(t, p, "Monday summary")
}

func TestBatchAnalysisPromptWithoutExistingTopics(t *testing.T) {
	p := BatchAnalysisPromptWithExisting("2024-01-15", `[{"id":"1","channel":"#general","text":"Hello"}]`, nil)
	require.NotContains(t, p, "EXISTING TOPICS FROM EARLIER TODAY")
	require.Contains(t, p, `"topic_id": null`)
	require.Contains(t, p, "groups")
	require.Contains(t, p, "ungrouped")
	require.Contains(t, p, "daily_summary")
}

func TestBatchAnalysisPromptWithExistingTopics(t *testing.T) {
	existing := []ExistingTopic{{TopicID: "topic_123", Topic: "Q1 Launch"}}
	p := BatchAnalysisPromptWithExisting("2024-01-15", `[{"id":"1","text":"More about the launch"}]`, existing)

	require.Contains(t, p, "EXISTING TOPICS FROM EARLIER TODAY")
	require.Contains(t, p, "topic_123")
	require.Contains(t, p, "MERGING RULES")
	require.Contains(t, p, `"topic_id": "topic_abc123"`)
}

func TestChannelSummaryPromptWithAndWithoutPurpose(t *testing.T) {
	p := ChannelSummaryPrompt("sales", "Sales team discussions", "[]")
	require.Contains(t, p, "#sales")
	require.Contains(t, p, "Channel purpose: Sales team discussions")

	p2 := ChannelSummaryPrompt("random", "", "[]")
	require.Contains(t, p2, "#random")
	require.NotContains(t, p2, "Channel purpose:")
}

func TestCrossChannelGroupingPromptWithAndWithoutUngrouped(t *testing.T) {
	p := CrossChannelGroupingPrompt("2024-01-20", "[]", "")
	require.Contains(t, p, "2024-01-20")
	require.Contains(t, p, "CHANNEL SUMMARIES")
	require.NotContains(t, p, "MESSAGES FROM LOW-VOLUME CHANNELS")

	p2 := CrossChannelGroupingPrompt("2024-01-20", "[]", `[{"id":"1"}]`)
	require.Contains(t, p2, "MESSAGES FROM LOW-VOLUME CHANNELS")
	require.Contains(t, p2, `[{"id":"1"}]`)
}

func TestWeeklyBreakdownPromptBucketsAndGuidance(t *testing.T) {
	p := WeeklyBreakdownPrompt("Week of Jan 8", `[{"date":"2024-01-08","summary":"x"}]`, "")
	require.Contains(t, p, "Week of Jan 8")
	require.Contains(t, p, `"major"`)
	require.Contains(t, p, `"informational"`)
	require.NotContains(t, p, "Additional guidance")

	p2 := WeeklyBreakdownPrompt("Week of Jan 8", `[]`, "focus on customer-facing work")
	require.Contains(t, p2, "focus on customer-facing work")
}
