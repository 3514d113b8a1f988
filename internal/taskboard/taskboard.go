// Package taskboard tracks in-flight and recently-finished background work
// (syncs, summarization passes, digest generation) so a caller — a CLI
// status command, a future UI — can show what the daemon is doing right
// now without polling the sync engine or pipeline directly.
package taskboard

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxHistorySize bounds the ring buffer of finished tasks kept in memory.
const maxHistorySize = 50

// Type identifies the kind of work a Task represents.
type Type string

const (
	TypeSyncSlack            Type = "sync_slack"
	TypeSyncJira             Type = "sync_jira"
	TypeSyncConfluence       Type = "sync_confluence"
	TypeAISummarize          Type = "ai_summarize"
	TypeAICategorize         Type = "ai_categorize"
	TypeGenerateDailyDigest  Type = "generate_daily_digest"
	TypeGenerateWeeklyDigest Type = "generate_weekly_digest"
)

// DisplayName is the human-readable label for a task type.
func (t Type) DisplayName() string {
	switch t {
	case TypeSyncSlack:
		return "Syncing Slack"
	case TypeSyncJira:
		return "Syncing Jira"
	case TypeSyncConfluence:
		return "Syncing Confluence"
	case TypeAISummarize:
		return "Summarizing content"
	case TypeAICategorize:
		return "Categorizing items"
	case TypeGenerateDailyDigest:
		return "Generating daily digest"
	case TypeGenerateWeeklyDigest:
		return "Generating weekly digest"
	default:
		return string(t)
	}
}

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Task is one unit of tracked background work.
type Task struct {
	ID          string
	Type        Type
	Status      Status
	Message     string
	Progress    float32 // 0.0 to 1.0
	StartedAt   int64   // unix seconds
	CompletedAt int64   // unix seconds, zero while still active
	Error       string
}

// State is a point-in-time snapshot handed to subscribers and polling
// callers alike.
type State struct {
	ActiveTasks   []Task
	RecentHistory []Task
	Busy          bool
}

// Board tracks active tasks and a bounded history of finished ones, and
// fans out a State snapshot to subscribers on every change.
type Board struct {
	mu      sync.Mutex
	active  []Task
	history []Task // ring buffer, oldest first, capped at maxHistorySize

	subMu sync.Mutex
	subs  map[chan State]struct{}

	now func() time.Time
}

// New returns an empty Board.
func New() *Board {
	return &Board{
		subs: make(map[chan State]struct{}),
		now:  time.Now,
	}
}

// Subscribe registers a channel that receives a State snapshot after every
// change to the board. The returned func unregisters it; callers must call
// it to avoid leaking the channel. The channel is buffered so a slow
// subscriber drops old snapshots rather than blocking task updates.
func (b *Board) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	b.subMu.Lock()
	b.subs[ch] = struct{}{}
	b.subMu.Unlock()

	return ch, func() {
		b.subMu.Lock()
		delete(b.subs, ch)
		b.subMu.Unlock()
		close(ch)
	}
}

func (b *Board) broadcast() {
	b.mu.Lock()
	state := b.snapshotLocked()
	b.mu.Unlock()
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- state:
		default:
		}
	}
}

// StartTask registers a new running task and returns its id.
func (b *Board) StartTask(taskType Type, message string) string {
	b.mu.Lock()
	task := Task{
		ID:        uuid.NewString(),
		Type:      taskType,
		Status:    StatusRunning,
		Message:   message,
		Progress:  0,
		StartedAt: b.now().Unix(),
	}
	b.active = append(b.active, task)
	b.mu.Unlock()

	b.broadcast()
	return task.ID
}

// UpdateProgress sets a running task's progress (clamped to [0,1]) and,
// when message is non-empty, replaces its status message. A call for an
// unknown id is a no-op.
func (b *Board) UpdateProgress(taskID string, progress float32, message string) {
	b.mu.Lock()
	progress = clamp01(progress)
	for i := range b.active {
		if b.active[i].ID != taskID {
			continue
		}
		b.active[i].Progress = progress
		if message != "" {
			b.active[i].Message = message
		}
		break
	}
	b.mu.Unlock()

	b.broadcast()
}

// CompleteTask moves a running task into history as completed.
func (b *Board) CompleteTask(taskID string, message string) {
	b.finishTask(taskID, StatusCompleted, message, "")
}

// FailTask moves a running task into history as failed, recording errMsg.
func (b *Board) FailTask(taskID string, errMsg string) {
	b.finishTask(taskID, StatusFailed, "", errMsg)
}

func (b *Board) finishTask(taskID string, status Status, message, errMsg string) {
	b.mu.Lock()
	idx := -1
	for i := range b.active {
		if b.active[i].ID == taskID {
			idx = i
			break
		}
	}
	if idx >= 0 {
		task := b.active[idx]
		b.active = append(b.active[:idx], b.active[idx+1:]...)

		task.Status = status
		task.CompletedAt = b.now().Unix()
		task.Progress = 1
		if message != "" {
			task.Message = message
		}
		task.Error = errMsg

		b.history = append(b.history, task)
		if len(b.history) > maxHistorySize {
			b.history = b.history[len(b.history)-maxHistorySize:]
		}
	}
	b.mu.Unlock()

	b.broadcast()
}

// State returns the current snapshot: all active tasks and the most recent
// 10 finished tasks (newest first).
func (b *Board) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Board) snapshotLocked() State {
	active := append([]Task(nil), b.active...)

	recent := make([]Task, 0, 10)
	for i := len(b.history) - 1; i >= 0 && len(recent) < 10; i-- {
		recent = append(recent, b.history[i])
	}

	return State{
		ActiveTasks:   active,
		RecentHistory: recent,
		Busy:          len(active) > 0,
	}
}

// StatusMessage renders a one-line summary suitable for a status bar or log
// line: the idle app name, the single active task's message, or a count.
func (b *Board) StatusMessage() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch len(b.active) {
	case 0:
		return "daybook"
	case 1:
		return "⟳ " + b.active[0].Message
	default:
		return fmt.Sprintf("⟳ %d tasks running", len(b.active))
	}
}

func clamp01(f float32) float32 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
