package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"daybook/internal/prompt"
)

// hierarchicalFanout bounds how many per-channel summarization calls run at
// once during pass 1, so a day with many high-volume channels doesn't open
// one LLM request per channel simultaneously.
const hierarchicalFanout = 3

// processHierarchical runs the two-pass strategy for high-volume days: each
// channel at or above hierarchicalChannelThreshold is summarized on its own
// first (up to hierarchicalFanout concurrently), then those per-channel
// summaries are combined with whatever smaller channels contributed
// directly into one cross-channel grouping pass. This keeps a single prompt
// from having to hold every message of a busy day at once.
func (p *Pipeline) processHierarchical(ctx context.Context, dateStr string, messagesByChannel map[string][]messageForPrompt) (prompt.GroupedAnalysisResult, error) {
	var channelSummaries []prompt.ChannelSummary
	var smallChannelMessages []messageForPrompt
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := semaphore.NewWeighted(hierarchicalFanout)

	for channel, messages := range messagesByChannel {
		if len(messages) < hierarchicalChannelThreshold {
			smallChannelMessages = append(smallChannelMessages, messages...)
			continue
		}

		channel, messages := channel, messages
		if err := sem.Acquire(ctx, 1); err != nil {
			return prompt.GroupedAnalysisResult{}, fmt.Errorf("pipeline: acquiring channel summary slot: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			log.Info().Str("channel", channel).Int("messages", len(messages)).Msg("pipeline: summarizing high-volume channel")

			messagesJSON, err := json.Marshal(messages)
			if err != nil {
				log.Error().Err(err).Str("channel", channel).Msg("pipeline: encoding channel messages failed, falling back to direct inclusion")
				mu.Lock()
				smallChannelMessages = append(smallChannelMessages, messages...)
				mu.Unlock()
				return
			}

			channelPrompt := prompt.ChannelSummaryPrompt(channel, "", string(messagesJSON))

			var summary prompt.ChannelSummary
			if err := p.llm.GenerateJSON(ctx, channelPrompt, &summary); err != nil {
				log.Error().Err(err).Str("channel", channel).Msg("pipeline: failed to summarize channel, falling back to direct inclusion")
				mu.Lock()
				smallChannelMessages = append(smallChannelMessages, messages...)
				mu.Unlock()
				return
			}
			summary.MessageCount = len(messages)

			mu.Lock()
			channelSummaries = append(channelSummaries, summary)
			mu.Unlock()
		}()
	}
	wg.Wait()

	log.Info().Int("channel_summaries", len(channelSummaries)).Int("direct_messages", len(smallChannelMessages)).
		Msg("pipeline: hierarchical pass 1 complete")

	channelSummariesJSON, err := json.Marshal(channelSummaries)
	if err != nil {
		return prompt.GroupedAnalysisResult{}, fmt.Errorf("pipeline: encoding channel summaries: %w", err)
	}

	var ungroupedJSON string
	if len(smallChannelMessages) > 0 {
		b, err := json.Marshal(smallChannelMessages)
		if err != nil {
			return prompt.GroupedAnalysisResult{}, fmt.Errorf("pipeline: encoding ungrouped messages: %w", err)
		}
		ungroupedJSON = string(b)
	}

	groupingPrompt := prompt.CrossChannelGroupingPrompt(dateStr, string(channelSummariesJSON), ungroupedJSON)

	var result prompt.GroupedAnalysisResult
	if err := p.llm.GenerateJSON(ctx, groupingPrompt, &result); err != nil {
		return prompt.GroupedAnalysisResult{}, fmt.Errorf("pipeline: cross-channel grouping: %w", err)
	}
	return result, nil
}
