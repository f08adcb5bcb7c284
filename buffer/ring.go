package buffer

import "sync"

// DefaultCapacity is the retained history of each console pane.
const DefaultCapacity = 100

// Ring is an append-only log that keeps the newest Capacity lines.
type Ring struct {
	mu    sync.RWMutex
	lines []string
	cap   int
}

// NewRing returns a ring holding at most capacity lines. A non-positive
// capacity falls back to DefaultCapacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{lines: make([]string, 0, capacity), cap: capacity}
}

// Push appends one line, dropping the oldest on overflow.
func (r *Ring) Push(line string) {
	r.Append(line)
}

// Append appends lines in order, dropping the oldest on overflow.
func (r *Ring) Append(lines ...string) {
	if len(lines) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(lines) >= r.cap {
		r.lines = append(r.lines[:0], lines[len(lines)-r.cap:]...)
		return
	}
	if over := len(r.lines) + len(lines) - r.cap; over > 0 {
		n := copy(r.lines, r.lines[over:])
		r.lines = r.lines[:n]
	}
	r.lines = append(r.lines, lines...)
}

// Lines returns a copy of the retained lines, oldest first.
func (r *Ring) Lines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.lines...)
}

// Tail returns up to n of the newest lines, oldest first.
func (r *Ring) Tail(n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	if n > len(r.lines) {
		n = len(r.lines)
	}
	return append([]string(nil), r.lines[len(r.lines)-n:]...)
}

func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lines)
}

func (r *Ring) Cap() int { return r.cap }

func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = r.lines[:0]
}
