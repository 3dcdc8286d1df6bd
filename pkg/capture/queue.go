package capture

import (
	"fmt"
	"sync"
)

// DefaultLimit bounds each capture queue. The orchestrator consumes the
// newest entry in a batch, so the queues never need to hold more than a
// couple of paths.
const DefaultLimit = 2

// Which selects one of the two queues.
type Which int

const (
	Primary Which = iota
	Extra
)

// View mirrors the session view mode for read routing: the primary queue is
// active in the queue view, the extra queue in the solutions view.
type View string

const (
	ViewQueue     View = "queue"
	ViewSolutions View = "solutions"
)

// LimitExceededError is returned when an enqueue would exceed the bound.
// The queue is left unchanged.
type LimitExceededError struct {
	Which Which
	Limit int
}

func (e *LimitExceededError) Error() string {
	name := "primary"
	if e.Which == Extra {
		name = "extra"
	}
	return fmt.Sprintf("%s capture queue is full (limit %d)", name, e.Limit)
}

// Manager owns the two bounded FIFO capture queues. Every operation other
// than enqueue-over-limit is a soft no-op when there is nothing to do, so
// draining code paths never need error handling.
type Manager struct {
	mu      sync.Mutex
	limit   int
	primary []string
	extra   []string
}

// NewManager creates a manager with the given per-queue bound; values below
// one fall back to DefaultLimit.
func NewManager(limit int) *Manager {
	if limit < 1 {
		limit = DefaultLimit
	}
	return &Manager{limit: limit}
}

// EnqueuePrimary appends a path to the primary queue.
func (m *Manager) EnqueuePrimary(path string) error {
	return m.enqueue(Primary, path)
}

// EnqueueExtra appends a path to the extra queue.
func (m *Manager) EnqueueExtra(path string) error {
	return m.enqueue(Extra, path)
}

func (m *Manager) enqueue(which Which, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := &m.primary
	if which == Extra {
		q = &m.extra
	}
	if len(*q) >= m.limit {
		return &LimitExceededError{Which: which, Limit: m.limit}
	}
	*q = append(*q, path)
	return nil
}

// PeekActive returns a copy of the queue the given view reads from.
func (m *Manager) PeekActive(view View) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.primary
	if view == ViewSolutions {
		src = m.extra
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// TakeLatest returns the most recently enqueued path in the given queue
// without removing anything, or "" when the queue is empty. Only the newest
// capture in a batch is processed; the rest stay queued until a clear.
func (m *Manager) TakeLatest(which Which) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.primary
	if which == Extra {
		q = m.extra
	}
	if len(q) == 0 {
		return ""
	}
	return q[len(q)-1]
}

// Delete removes a specific path from whichever queue contains it. Misses
// are tolerated silently; deletion races with consumption are expected.
func (m *Manager) Delete(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.primary = remove(m.primary, path)
	m.extra = remove(m.extra, path)
}

func remove(q []string, path string) []string {
	for i, p := range q {
		if p == path {
			return append(q[:i], q[i+1:]...)
		}
	}
	return q
}

// Len reports the lengths of both queues.
func (m *Manager) Len() (primary, extra int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.primary), len(m.extra)
}

// ClearAll empties both queues unconditionally.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.primary = nil
	m.extra = nil
}
