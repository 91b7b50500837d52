package state

import "sync"

// ThreadState is the per-thread conversation memory the resolver keeps
// between turns: what the user last asked for, where it was routed, and
// a snapshot of the last pipeline run.
type ThreadState struct {
	LastUserText     string
	LastAction       string
	LastWebQuery     string
	LastPipeline     []StepSnapshot
	LastClearedCount int
}

// StepSnapshot is the minimal record of one executed step kept on the
// thread for follow-up turns.
type StepSnapshot struct {
	Action  string
	Status  string
	Reason  string
	Success bool
}

// ThreadStore keeps ThreadState per thread id. Reads return copies;
// writes replace the whole entry.
type ThreadStore struct {
	mu      sync.RWMutex
	threads map[string]ThreadState
}

func NewThreadStore() *ThreadStore {
	return &ThreadStore{threads: make(map[string]ThreadState)}
}

// Get returns the thread's state, zero-valued when the thread is new.
func (s *ThreadStore) Get(threadID string) ThreadState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.threads[threadID]
	snapshot := make([]StepSnapshot, len(st.LastPipeline))
	copy(snapshot, st.LastPipeline)
	st.LastPipeline = snapshot
	return st
}

// Put replaces the thread's state.
func (s *ThreadStore) Put(threadID string, st ThreadState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]StepSnapshot, len(st.LastPipeline))
	copy(snapshot, st.LastPipeline)
	st.LastPipeline = snapshot
	s.threads[threadID] = st
}

// Update applies fn to the thread's state under the write lock.
func (s *ThreadStore) Update(threadID string, fn func(*ThreadState)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.threads[threadID]
	fn(&st)
	s.threads[threadID] = st
}
