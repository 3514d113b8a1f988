// Package sync drives the source clients against the store: incremental and
// historical Slack/Jira/Confluence ingestion, a FIFO retry queue for
// historical resyncs that arrive while a sync is already in flight, and the
// background scheduler that ties both to the summarization pipeline.
package sync

import (
	"sync"

	"github.com/google/uuid"
)

// maxQueueRetriesDefault bounds how many times a failed request is requeued
// before being dropped, when the caller doesn't override it via config.
const maxQueueRetriesDefault = 3

// Request is one unit of queued sync work: either an ad-hoc incremental sync
// (Date unset) or a historical day resync (Date/TimezoneOffset set).
type Request struct {
	ID             string
	Source         string
	CreatedAt      int64
	RetryCount     int
	Date           string
	HasDate        bool
	TimezoneOffset int
}

// NewRequest builds an incremental sync request for the given source.
func NewRequest(source string, nowUnix int64) Request {
	return Request{ID: uuid.NewString(), Source: source, CreatedAt: nowUnix}
}

// NewHistoricalRequest builds a historical-day resync request. Source is
// derived as "historical:<date>" so duplicate resyncs for the same day
// collapse into one queued entry.
func NewHistoricalRequest(date string, timezoneOffset int, nowUnix int64) Request {
	return Request{
		ID: uuid.NewString(), Source: "historical:" + date, CreatedAt: nowUnix,
		Date: date, HasDate: true, TimezoneOffset: timezoneOffset,
	}
}

// Queue is an in-memory FIFO of pending sync requests, deduplicated by
// Source so the same historical day is never queued twice.
type Queue struct {
	mu         sync.Mutex
	items      []Request
	maxRetries int
}

// NewQueue returns an empty Queue with the default retry limit.
func NewQueue() *Queue { return NewQueueWithMaxRetries(maxQueueRetriesDefault) }

// NewQueueWithMaxRetries returns an empty Queue with a custom retry limit.
func NewQueueWithMaxRetries(maxRetries int) *Queue {
	return &Queue{maxRetries: maxRetries}
}

// Enqueue appends a request unless one with the same Source is already
// pending.
func (q *Queue) Enqueue(req Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, existing := range q.items {
		if existing.Source == req.Source {
			return
		}
	}
	q.items = append(q.items, req)
}

// Dequeue removes and returns the oldest pending request, if any.
func (q *Queue) Dequeue() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Request{}, false
	}
	req := q.items[0]
	q.items = q.items[1:]
	return req, true
}

// Len reports the number of pending requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns a snapshot of every queued request, oldest first.
func (q *Queue) Pending() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Request(nil), q.items...)
}

// RequeueFailed increments a request's retry count and re-enqueues it at the
// back of the queue, unless it has exceeded maxRetries, in which case it is
// dropped and ok is false.
func (q *Queue) RequeueFailed(req Request) (ok bool) {
	req.RetryCount++
	if req.RetryCount > q.maxRetries {
		return false
	}
	q.mu.Lock()
	q.items = append(q.items, req)
	q.mu.Unlock()
	return true
}

// Clear discards every pending request.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}
