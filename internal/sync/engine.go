package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"daybook/internal/pipeline"
	"daybook/internal/taskboard"
)

// LastSyncStore persists the Unix-millisecond timestamp of the most
// recently completed sync cycle, so the engine can decide at startup
// whether enough time has passed to skip an immediate catch-up cycle.
type LastSyncStore interface {
	GetLastSyncAt(ctx context.Context) (ms int64, ok bool, err error)
	SetLastSyncAt(ctx context.Context, ms int64) error
}

// Engine ties the Slack/Atlassian workers, the retry queue, the
// summarization pipeline, and the task board into one background sync loop.
// One cycle runs at a time: a tick that lands while a cycle is still running
// is simply skipped rather than queued.
type Engine struct {
	slack     *SlackWorker
	atlassian *AtlassianWorker
	pipeline  *pipeline.Pipeline
	board     *taskboard.Board
	queue     *Queue
	lastSync  LastSyncStore

	running  sync.Mutex
	interval time.Duration
	resetCh  chan time.Duration
	nextTick atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NextSyncAt reports the Unix-millisecond time of the next scheduled
// background tick, ok false if the background loop isn't running.
func (e *Engine) NextSyncAt() (ms int64, ok bool) {
	ms = e.nextTick.Load()
	return ms, ms > 0
}

// IsRunning reports whether a sync cycle is currently in flight, without
// starting or affecting one.
func (e *Engine) IsRunning() bool {
	if e.running.TryLock() {
		e.running.Unlock()
		return false
	}
	return true
}

// NewEngine returns an Engine that ticks every interval. slack, atlassian,
// and pl may be nil when that integration hasn't been configured yet — the
// engine skips whatever it wasn't given. lastSync may be nil, in which case
// the startup catch-up check is skipped and every run starts by waiting out
// one full interval, as if the store had no prior sync recorded.
func NewEngine(slack *SlackWorker, atlassian *AtlassianWorker, pl *pipeline.Pipeline, board *taskboard.Board, queue *Queue, lastSync LastSyncStore, interval time.Duration) *Engine {
	return &Engine{
		slack: slack, atlassian: atlassian, pipeline: pl, board: board, queue: queue, lastSync: lastSync,
		interval: interval,
		resetCh:  make(chan time.Duration, 1),
	}
}

// Start launches the background loop in its own goroutine. Calling Start
// again before Stop is a no-op.
func (e *Engine) Start(ctx context.Context) {
	if e.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Add(1)
	go e.run(runCtx)
}

// Stop cancels the background loop and waits for any in-flight cycle to
// finish before returning.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	e.wg.Wait()
	e.cancel = nil
	e.nextTick.Store(0)
}

// SetPipeline swaps the summarization pipeline, nil to disable it. Used
// when an LLM credential is saved or removed after the engine was built, so
// the change takes effect without a process restart.
func (e *Engine) SetPipeline(pl *pipeline.Pipeline) {
	e.running.Lock()
	defer e.running.Unlock()
	e.pipeline = pl
}

// SetInterval changes the ticking interval. It takes effect immediately,
// restarting the current wait rather than waiting out the old interval first.
func (e *Engine) SetInterval(d time.Duration) {
	e.interval = d
	select {
	case e.resetCh <- d:
	default:
	}
}

// Interval reports the current ticking interval.
func (e *Engine) Interval() time.Duration { return e.interval }

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	if e.startupSyncNeeded(ctx) {
		log.Info().Msg("sync: last cycle is older than the tick interval, running a catch-up cycle before starting the timer")
		e.RunOnce(ctx)
	}

	timer := time.NewTimer(e.interval)
	defer timer.Stop()
	e.nextTick.Store(time.Now().Add(e.interval).UnixMilli())

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-e.resetCh:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(d)
			e.nextTick.Store(time.Now().Add(d).UnixMilli())
		case <-timer.C:
			e.RunOnce(ctx)
			timer.Reset(e.interval)
			e.nextTick.Store(time.Now().Add(e.interval).UnixMilli())
		}
	}
}

// startupSyncNeeded reports whether the persisted last_sync_at is missing or
// older than the current tick interval, meaning a cycle should run right
// away instead of waiting out a full interval first.
func (e *Engine) startupSyncNeeded(ctx context.Context) bool {
	if e.lastSync == nil {
		return false
	}
	lastMS, ok, err := e.lastSync.GetLastSyncAt(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("sync: reading last sync timestamp failed, skipping startup catch-up check")
		return false
	}
	if !ok {
		return true
	}
	return time.Since(time.UnixMilli(lastMS)) >= e.interval
}

// RunOnce performs one sync cycle — every configured source, then the
// summarization pipeline if anything new came in, then a drain of the
// historical resync queue — unless a cycle is already running, in which case
// it returns immediately without doing anything.
func (e *Engine) RunOnce(ctx context.Context) {
	if !e.running.TryLock() {
		log.Debug().Msg("sync: cycle already running, skipping tick")
		return
	}
	defer e.running.Unlock()

	itemsSynced := e.syncAllSources(ctx)
	if itemsSynced > 0 {
		e.runPipeline(ctx, e.localOffsetMinutes())
	}
	e.recordLastSyncAt(ctx)
	e.drainQueue(ctx)
}

// recordLastSyncAt stamps the completion of a periodic cycle, so the next
// process start can tell how stale the background loop's progress is.
// On-demand cycles (RunFilteredOnce, RunHistoricalOnce) are recorded by
// their own callers instead, since those already report success/failure to
// the caller and know whether recording a timestamp is appropriate.
func (e *Engine) recordLastSyncAt(ctx context.Context) {
	if e.lastSync == nil {
		return
	}
	if err := e.lastSync.SetLastSyncAt(ctx, time.Now().UnixMilli()); err != nil {
		log.Warn().Err(err).Msg("sync: saving last sync timestamp failed")
	}
}

func (e *Engine) syncAllSources(ctx context.Context) int {
	items, _ := e.syncSlack(ctx)
	atlassianItems, _ := e.syncAtlassian(ctx)
	return items + atlassianItems
}

func (e *Engine) syncSlack(ctx context.Context) (int, []string) {
	if e.slack == nil {
		return 0, nil
	}
	taskID := e.board.StartTask(taskboard.TypeSyncSlack, "Syncing Slack")
	result, err := e.slack.SyncAll(ctx)
	if err != nil {
		if errors.Is(err, ErrSlackNotConnected) {
			e.board.CompleteTask(taskID, "Slack not connected")
			return 0, nil
		}
		log.Error().Err(err).Msg("sync: slack sync failed")
		e.board.FailTask(taskID, err.Error())
		return result.ItemsSynced, []string{"slack: " + err.Error()}
	}
	for _, msg := range result.Errors {
		log.Error().Str("source", "slack").Msg(msg)
	}
	e.board.CompleteTask(taskID, fmt.Sprintf("Synced %d Slack messages", result.ItemsSynced))
	return result.ItemsSynced, result.Errors
}

// syncAtlassian syncs both Jira and Confluence in one pass, tracked under a
// single task — the two sources share one OAuth grant and one rate budget,
// so splitting them into separate taskboard entries would only double the
// bookkeeping without giving the user a more actionable signal.
func (e *Engine) syncAtlassian(ctx context.Context) (int, []string) {
	if e.atlassian == nil {
		return 0, nil
	}
	taskID := e.board.StartTask(taskboard.TypeSyncJira, "Syncing Jira & Confluence")
	result, err := e.atlassian.SyncAll(ctx)
	if err != nil {
		if errors.Is(err, ErrAtlassianNotConnected) {
			e.board.CompleteTask(taskID, "Atlassian not connected")
			return 0, nil
		}
		log.Error().Err(err).Msg("sync: atlassian sync failed")
		e.board.FailTask(taskID, err.Error())
		return result.ItemsSynced, []string{"atlassian: " + err.Error()}
	}
	for _, msg := range result.Errors {
		log.Error().Str("source", "atlassian").Msg(msg)
	}
	e.board.CompleteTask(taskID, fmt.Sprintf("Synced %d Jira/Confluence items", result.ItemsSynced))
	return result.ItemsSynced, result.Errors
}

// CycleResult aggregates what one on-demand sync invocation did across every
// source it touched, for callers (the CLI's sync/resync commands)
// that need a summary rather than just a task-board side effect.
type CycleResult struct {
	ItemsSynced int
	Errors      []string
}

// RunFilteredOnce runs one sync pass restricted to the given sources (an
// empty slice means every configured source), synchronously, returning once
// it's done. offsetMinutes controls the local-day boundary the follow-on
// summarization pass uses, in the same sign convention as JavaScript's
// getTimezoneOffset(); pass the host's own offset (Engine.HostOffsetMinutes)
// when the caller has no better answer. It shares the same running lock as
// the periodic loop: if a cycle is already in flight, ok is false and the
// caller should treat this as "try again shortly" rather than an error.
func (e *Engine) RunFilteredOnce(ctx context.Context, sources []string, offsetMinutes int) (result CycleResult, ok bool) {
	if !e.running.TryLock() {
		return CycleResult{}, false
	}
	defer e.running.Unlock()

	if wantsSource(sources, "slack") {
		items, errs := e.syncSlack(ctx)
		result.ItemsSynced += items
		result.Errors = append(result.Errors, errs...)
	}
	if wantsSource(sources, "atlassian") {
		items, errs := e.syncAtlassian(ctx)
		result.ItemsSynced += items
		result.Errors = append(result.Errors, errs...)
	}
	if result.ItemsSynced > 0 {
		e.runPipeline(ctx, offsetMinutes)
	}
	e.drainQueue(ctx)
	return result, true
}

// RunHistoricalOnce synchronously resyncs a single historical day across
// every configured source, then summarizes whatever that day's resync
// backfilled. Like RunFilteredOnce, it shares the periodic loop's running
// lock; ok is false if a cycle was already in flight, in which case the
// caller should fall back to EnqueueHistoricalResync instead of retrying
// immediately.
func (e *Engine) RunHistoricalOnce(ctx context.Context, dateStr string, timezoneOffsetMinutes int) (result CycleResult, ok bool) {
	if !e.running.TryLock() {
		return CycleResult{}, false
	}
	defer e.running.Unlock()

	if e.slack != nil {
		r, err := e.slack.SyncHistoricalDay(ctx, dateStr, timezoneOffsetMinutes)
		if err != nil && !errors.Is(err, ErrSlackNotConnected) {
			result.Errors = append(result.Errors, "slack: "+err.Error())
		}
		result.ItemsSynced += r.ItemsSynced
		result.Errors = append(result.Errors, r.Errors...)
	}
	if e.atlassian != nil {
		r, err := e.atlassian.SyncHistoricalDay(ctx, dateStr, timezoneOffsetMinutes)
		if err != nil && !errors.Is(err, ErrAtlassianNotConnected) {
			result.Errors = append(result.Errors, "atlassian: "+err.Error())
		}
		result.ItemsSynced += r.ItemsSynced
		result.Errors = append(result.Errors, r.Errors...)
	}

	if result.ItemsSynced > 0 && e.pipeline != nil {
		taskID := e.board.StartTask(taskboard.TypeAISummarize, fmt.Sprintf("Summarizing content for %s", dateStr))
		if _, err := e.pipeline.ProcessBatchForDate(ctx, timezoneOffsetMinutes, dateStr); err != nil {
			log.Error().Err(err).Str("date", dateStr).Msg("sync: historical summarization pass failed")
			e.board.FailTask(taskID, err.Error())
		} else {
			e.board.CompleteTask(taskID, fmt.Sprintf("Summarized backfilled content for %s", dateStr))
		}
	}
	return result, true
}

func wantsSource(sources []string, name string) bool {
	if len(sources) == 0 {
		return true
	}
	for _, s := range sources {
		if s == name {
			return true
		}
	}
	return false
}

func (e *Engine) runPipeline(ctx context.Context, offsetMinutes int) {
	if e.pipeline == nil {
		return
	}
	taskID := e.board.StartTask(taskboard.TypeAISummarize, "Summarizing new content")
	groups, err := e.pipeline.ProcessDailyBatch(ctx, offsetMinutes)
	if err != nil {
		log.Error().Err(err).Msg("sync: summarization pass failed")
		e.board.FailTask(taskID, err.Error())
		return
	}
	e.board.CompleteTask(taskID, fmt.Sprintf("Summarized into %d topic groups", groups))
}

// HostOffsetMinutes reports the host's current offset from UTC in the same
// sign convention as JavaScript's getTimezoneOffset() (minutes to ADD to
// local time to reach UTC), matching what the pipeline's window math expects.
// Callers with a caller-supplied offset (the CLI's -tz flag) should use that
// instead of this host default.
func (e *Engine) HostOffsetMinutes() int {
	_, offsetSeconds := time.Now().Zone()
	return -offsetSeconds / 60
}

func (e *Engine) localOffsetMinutes() int { return e.HostOffsetMinutes() }

// drainQueue processes queued requests (such as those added by
// EnqueueHistoricalResync), oldest first, until the queue is empty. It runs
// inside a cycle that already holds the running lock. A request that fails
// is put back at the end of the queue via RequeueFailed and retried later in
// the same pass, until RequeueFailed drops it past the retry limit.
func (e *Engine) drainQueue(ctx context.Context) {
	if e.queue == nil {
		return
	}
	for {
		req, ok := e.queue.Dequeue()
		if !ok {
			return
		}
		if err := e.runQueuedRequest(ctx, req); err != nil {
			log.Error().Err(err).Str("source", req.Source).Msg("sync: queued resync failed")
			if !e.queue.RequeueFailed(req) {
				log.Warn().Str("source", req.Source).Msg("sync: queued resync exceeded retry limit, dropping")
			}
		}
	}
}

func (e *Engine) runQueuedRequest(ctx context.Context, req Request) error {
	if !req.HasDate {
		return e.runQueuedIncremental(ctx, req.Source)
	}

	var errs []error
	if e.slack != nil {
		if _, err := e.slack.SyncHistoricalDay(ctx, req.Date, req.TimezoneOffset); err != nil && !errors.Is(err, ErrSlackNotConnected) {
			errs = append(errs, err)
		}
	}
	if e.atlassian != nil {
		if _, err := e.atlassian.SyncHistoricalDay(ctx, req.Date, req.TimezoneOffset); err != nil && !errors.Is(err, ErrAtlassianNotConnected) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) runQueuedIncremental(ctx context.Context, source string) error {
	switch source {
	case "slack":
		if e.slack == nil {
			return nil
		}
		_, err := e.slack.SyncAll(ctx)
		if errors.Is(err, ErrSlackNotConnected) {
			return nil
		}
		return err
	case "atlassian":
		if e.atlassian == nil {
			return nil
		}
		_, err := e.atlassian.SyncAll(ctx)
		if errors.Is(err, ErrAtlassianNotConnected) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("sync: unknown queued source %q", source)
	}
}

// EnqueueHistoricalResync queues a historical day for re-sync, to be picked
// up at the end of the next cycle (or immediately if nothing is running).
func (e *Engine) EnqueueHistoricalResync(dateStr string, timezoneOffsetMinutes int, nowUnix int64) {
	e.queue.Enqueue(NewHistoricalRequest(dateStr, timezoneOffsetMinutes, nowUnix))
}
