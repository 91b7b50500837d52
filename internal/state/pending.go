// Package state holds the per-thread runtime state of the agent: the
// pending-action store and the conversation thread state. Both live in
// memory for the lifetime of the process; nothing here is persisted.
package state

import (
	"sync"
	"time"
)

// PendingStatus is the only status a stored action can have. Actions
// leave the store when resolved; they are never marked done in place.
const PendingStatus = "pending"

// PendingAction is a deferred side-effecting request awaiting a
// confirm/cancel/edit reply on its thread.
type PendingAction struct {
	ID        string
	ThreadID  string
	Action    string
	Operation string
	Args      map[string]string
	Query     string
	Outcome   string
	CreatedAt time.Time
	Status    string
}

// clone returns a deep copy so callers never share the stored arg map.
func (a PendingAction) clone() PendingAction {
	out := a
	out.Args = make(map[string]string, len(a.Args))
	for k, v := range a.Args {
		out.Args[k] = v
	}
	return out
}

// PendingStore keeps the ordered pending-action list for each thread.
// Every mutation replaces the thread's whole list (copy-on-write), so a
// reader holding a stale snapshot never observes a half-updated list.
type PendingStore struct {
	mu      sync.RWMutex
	threads map[string][]PendingAction
}

func NewPendingStore() *PendingStore {
	return &PendingStore{threads: make(map[string][]PendingAction)}
}

// Append adds an action to the end of the thread's pending list. The
// action's status is forced to pending and its thread id to threadID.
func (s *PendingStore) Append(threadID string, action PendingAction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action.ThreadID = threadID
	action.Status = PendingStatus
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}

	current := s.threads[threadID]
	next := make([]PendingAction, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, action.clone())
	s.threads[threadID] = next
}

// List returns a copy of the thread's pending actions in append order.
func (s *PendingStore) List(threadID string) []PendingAction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.threads[threadID]
	out := make([]PendingAction, 0, len(current))
	for _, a := range current {
		out = append(out, a.clone())
	}
	return out
}

// Remove drops the actions with the given ids from the thread and
// returns how many were removed.
func (s *PendingStore) Remove(threadID string, ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	current := s.threads[threadID]
	next := make([]PendingAction, 0, len(current))
	removed := 0
	for _, a := range current {
		if drop[a.ID] {
			removed++
			continue
		}
		next = append(next, a)
	}
	if len(next) == 0 {
		delete(s.threads, threadID)
	} else {
		s.threads[threadID] = next
	}
	return removed
}

// Replace swaps the thread's entire pending list. Used for in-place
// edits: the caller lists, mutates its copy, and writes the result back.
func (s *PendingStore) Replace(threadID string, actions []PendingAction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(actions) == 0 {
		delete(s.threads, threadID)
		return
	}
	next := make([]PendingAction, 0, len(actions))
	for _, a := range actions {
		a.ThreadID = threadID
		a.Status = PendingStatus
		next = append(next, a.clone())
	}
	s.threads[threadID] = next
}
