package taskboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestBoard() *Board {
	b := New()
	b.now = func() time.Time { return time.Unix(1700000000, 0) }
	return b
}

func TestTaskLifecycle(t *testing.T) {
	b := newTestBoard()
	id := b.StartTask(TypeSyncSlack, "Syncing messages")

	state := b.State()
	require.Len(t, state.ActiveTasks, 1)
	require.True(t, state.Busy)

	b.UpdateProgress(id, 0.5, "50% complete")
	b.CompleteTask(id, "Done")

	state = b.State()
	require.Empty(t, state.ActiveTasks)
	require.False(t, state.Busy)
	require.Len(t, state.RecentHistory, 1)
	require.Equal(t, StatusCompleted, state.RecentHistory[0].Status)
	require.Equal(t, "Done", state.RecentHistory[0].Message)
}

func TestFailTaskStoresError(t *testing.T) {
	b := newTestBoard()
	id := b.StartTask(TypeSyncJira, "Syncing issues")
	b.FailTask(id, "Connection failed")

	state := b.State()
	require.Empty(t, state.ActiveTasks)
	require.Len(t, state.RecentHistory, 1)
	require.Equal(t, StatusFailed, state.RecentHistory[0].Status)
	require.Equal(t, "Connection failed", state.RecentHistory[0].Error)
}

func TestStatusMessageIdle(t *testing.T) {
	b := newTestBoard()
	require.Equal(t, "daybook", b.StatusMessage())
}

func TestStatusMessageSingleTask(t *testing.T) {
	b := newTestBoard()
	b.StartTask(TypeAISummarize, "Processing items")
	require.Equal(t, "⟳ Processing items", b.StatusMessage())
}

func TestStatusMessageMultipleTasks(t *testing.T) {
	b := newTestBoard()
	b.StartTask(TypeSyncSlack, "Task 1")
	b.StartTask(TypeSyncJira, "Task 2")
	require.Equal(t, "⟳ 2 tasks running", b.StatusMessage())
}

func TestProgressClampsToValidRange(t *testing.T) {
	b := newTestBoard()
	id := b.StartTask(TypeSyncSlack, "Test")

	b.UpdateProgress(id, 1.5, "")
	require.Equal(t, float32(1.0), b.State().ActiveTasks[0].Progress)

	b.UpdateProgress(id, -0.5, "")
	require.Equal(t, float32(0.0), b.State().ActiveTasks[0].Progress)
}

func TestUpdateNonexistentTaskIsNoop(t *testing.T) {
	b := newTestBoard()
	b.UpdateProgress("nonexistent", 0.5, "")
	b.CompleteTask("nonexistent", "")

	state := b.State()
	require.Empty(t, state.ActiveTasks)
	require.Empty(t, state.RecentHistory)
}

func TestHistoryRingBufferCapsAtMaxSize(t *testing.T) {
	b := newTestBoard()
	for i := 0; i < maxHistorySize+10; i++ {
		id := b.StartTask(TypeAICategorize, "task")
		b.CompleteTask(id, "")
	}

	b.mu.Lock()
	historyLen := len(b.history)
	b.mu.Unlock()
	require.Equal(t, maxHistorySize, historyLen)
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	b := newTestBoard()
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.StartTask(TypeSyncSlack, "Task 1")

	select {
	case state := <-ch:
		require.Len(t, state.ActiveTasks, 1)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber update")
	}
}

func TestDisplayNames(t *testing.T) {
	require.Equal(t, "Syncing Slack", TypeSyncSlack.DisplayName())
	require.Equal(t, "Generating daily digest", TypeGenerateDailyDigest.DisplayName())
}
