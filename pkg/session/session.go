// Package session holds the per-application conversational state: the
// transcript store, the capture queues, the active view and the extracted
// problem context.
package session

import (
	"sync"

	"github.com/rubinapp/rubin/pkg/capture"
	"github.com/rubinapp/rubin/pkg/chat"
	"github.com/rubinapp/rubin/pkg/conversation"
)

// Session bundles the mutable state shared by the orchestrator and the
// command surface. View and problem have their own lock since the store
// and queues already synchronize themselves.
type Session struct {
	Store  *conversation.Store
	Queues *capture.Manager

	mu      sync.Mutex
	view    capture.View
	problem *chat.ProblemInfo
}

// New creates a session starting in the queue view.
func New(store *conversation.Store, queues *capture.Manager) *Session {
	return &Session{
		Store:  store,
		Queues: queues,
		view:   capture.ViewQueue,
	}
}

// View returns the currently active view.
func (s *Session) View() capture.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// SetView switches the active view.
func (s *Session) SetView(view capture.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = view
}

// Problem returns the most recently extracted problem context, or nil.
func (s *Session) Problem() *chat.ProblemInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.problem
}

// SetProblem records the extracted problem context.
func (s *Session) SetProblem(problem *chat.ProblemInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.problem = problem
}

// Reset returns the session to its initial state: empty transcript, empty
// queues, queue view and no problem context.
func (s *Session) Reset() {
	s.Store.Clear()
	s.Queues.ClearAll()
	s.mu.Lock()
	s.view = capture.ViewQueue
	s.problem = nil
	s.mu.Unlock()
}
