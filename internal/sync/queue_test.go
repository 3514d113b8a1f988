package sync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueOperations(t *testing.T) {
	q := NewQueue()
	q.Enqueue(NewRequest("slack", 1))
	q.Enqueue(NewRequest("jira", 1))
	require.Equal(t, 2, q.Len())

	req, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, "slack", req.Source)
	require.Equal(t, 1, q.Len())
}

func TestQueueNoDuplicates(t *testing.T) {
	q := NewQueue()
	q.Enqueue(NewRequest("slack", 1))
	q.Enqueue(NewRequest("slack", 2))
	require.Equal(t, 1, q.Len())
}

func TestQueueHistoricalRequestsDedupeByDate(t *testing.T) {
	q := NewQueue()
	q.Enqueue(NewHistoricalRequest("2024-01-15", 480, 1))
	q.Enqueue(NewHistoricalRequest("2024-01-15", 0, 2))
	q.Enqueue(NewHistoricalRequest("2024-01-16", 480, 3))
	require.Equal(t, 2, q.Len())
}

func TestQueueRetryLimit(t *testing.T) {
	q := NewQueueWithMaxRetries(2)
	req := NewRequest("slack", 1)
	req.RetryCount = 2
	require.False(t, q.RequeueFailed(req))
	require.Equal(t, 0, q.Len())
}

func TestQueueRetryWithinLimitRequeues(t *testing.T) {
	q := NewQueueWithMaxRetries(2)
	req := NewRequest("slack", 1)
	require.True(t, q.RequeueFailed(req))
	require.Equal(t, 1, q.Len())

	requeued, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, 1, requeued.RetryCount)
}

func TestQueueClear(t *testing.T) {
	q := NewQueue()
	q.Enqueue(NewRequest("slack", 1))
	q.Enqueue(NewRequest("jira", 1))
	q.Clear()
	require.Equal(t, 0, q.Len())
}
