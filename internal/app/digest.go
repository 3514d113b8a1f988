package app

import (
	"context"
	"fmt"

	"daybook/internal/digest"
)

// GetDailyDigest reads back the group and daily-overview summaries for one
// local day (today, in offsetMinutes, if date is empty).
func (a *App) GetDailyDigest(ctx context.Context, date string, offsetMinutes int) (digest.Response, error) {
	return a.digestR.DailyDigest(ctx, date, offsetMinutes)
}

// GetWeeklyDigest reads back the group and per-day overview summaries for
// one local week (the week containing today, if weekStart is empty).
func (a *App) GetWeeklyDigest(ctx context.Context, weekStart string, offsetMinutes int) (digest.Response, error) {
	return a.digestR.WeeklyDigest(ctx, weekStart, offsetMinutes)
}

// GenerateWeeklyBreakdown calls the LLM to bucket a week's daily summaries
// into major/focus/obstacles/informational items. Errors if no Gemini
// credential is configured.
func (a *App) GenerateWeeklyBreakdown(ctx context.Context, weekStart string, offsetMinutes int) (digest.Breakdown, error) {
	if a.breakdown == nil {
		return digest.Breakdown{}, fmt.Errorf("app: no gemini credentials configured")
	}
	return a.breakdown.GenerateWeeklyBreakdown(ctx, weekStart, offsetMinutes)
}
