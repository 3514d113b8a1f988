package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"daybook/internal/store"
	"daybook/internal/sync"
)

// preferenceLastSync persists last_sync_at as a store preference, shared by
// the engine's own periodic cycles (via sync.LastSyncStore) and by
// on-demand StartSync calls, so both paths agree on when the last cycle
// completed.
type preferenceLastSync struct{ store *store.Store }

func (p preferenceLastSync) GetLastSyncAt(ctx context.Context) (ms int64, ok bool, err error) {
	raw, ok, err := p.store.GetPreference(ctx, "last_sync_at")
	if err != nil || !ok {
		return 0, false, err
	}
	ms, err = strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return ms, true, nil
}

func (p preferenceLastSync) SetLastSyncAt(ctx context.Context, ms int64) error {
	return p.store.SetPreference(ctx, "last_sync_at", strconv.FormatInt(ms, 10))
}

// SourceStatus reports the last known outcome for one sync source. Always
// empty for now: the engine doesn't yet track per-source state outside of
// one CycleResult, matching the same simplification the digest read surface
// made for per-item detail.
type SourceStatus struct {
	Name        string
	Status      string
	ItemsSynced int
	LastError   string
}

// SyncStatus mirrors the shape the CLI's get_sync_status reports.
type SyncStatus struct {
	IsSyncing  bool
	LastSyncAt *int64
	NextSyncAt *int64
	Sources    []SourceStatus
}

// StartSync runs one on-demand sync pass restricted to sources (nil or
// empty means every configured source), records the completion timestamp on
// success, and returns a result even when a cycle was already running —
// that case is reported as a result carrying a "Sync already in progress"
// error rather than a failed call, matching the daemon's own duplicate
// request handling.
func (a *App) StartSync(ctx context.Context, sources []string, offsetMinutes int) (sync.CycleResult, error) {
	result, ok := a.engine.RunFilteredOnce(ctx, sources, offsetMinutes)
	if !ok {
		return sync.CycleResult{Errors: []string{"Sync already in progress"}}, nil
	}
	if err := a.lastSync.SetLastSyncAt(ctx, time.Now().UnixMilli()); err != nil {
		return result, fmt.Errorf("app: saving last sync timestamp: %w", err)
	}
	return result, nil
}

// GetSyncStatus reports whether a cycle is in flight, when the last one
// completed, and when the background loop will next tick (nil if it isn't
// running).
func (a *App) GetSyncStatus(ctx context.Context) (SyncStatus, error) {
	status := SyncStatus{IsSyncing: a.engine.IsRunning()}

	if ms, ok, err := a.lastSync.GetLastSyncAt(ctx); err != nil {
		return SyncStatus{}, err
	} else if ok {
		status.LastSyncAt = &ms
	}

	if ms, ok := a.engine.NextSyncAt(); ok {
		status.NextSyncAt = &ms
	}

	return status, nil
}

// ResyncHistoricalDay re-syncs and re-summarizes one past local calendar
// day across every configured source without moving any sync cursor, so a
// live incremental sync afterward behaves exactly as if the resync never
// happened.
func (a *App) ResyncHistoricalDay(ctx context.Context, date string, timezoneOffsetMinutes int) (sync.CycleResult, error) {
	result, ok := a.engine.RunHistoricalOnce(ctx, date, timezoneOffsetMinutes)
	if !ok {
		return sync.CycleResult{Errors: []string{"Sync already in progress"}}, nil
	}
	return result, nil
}
