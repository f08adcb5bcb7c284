// Package buffer holds the text plumbing between the receive loop and the
// operator console: an unbounded hand-off queue and a bounded ring log.
package buffer

import "sync"

// Queue is an unbounded multi-producer, single-consumer text queue.
// Producers never block; the consumer drains whatever is queued.
type Queue struct {
	mu     sync.Mutex
	items  []string
	closed bool
}

// NewQueue returns an empty open queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends line. It reports false, dropping the line, once the queue is closed.
func (q *Queue) Push(line string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, line)
	return true
}

// Drain removes and returns everything queued so far without blocking.
func (q *Queue) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued lines.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close makes further pushes fail. Lines already queued can still be drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
