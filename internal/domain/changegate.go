package domain

import "sync"

// ChangeState remembers the most recent post id seen for each handle. It is
// safe for concurrent use; work on a single handle is serialized with Lock
// while different handles proceed independently.
type ChangeState struct {
	mu          sync.Mutex
	lastPostIDs map[string]string
	handleLocks map[string]*sync.Mutex
}

// NewChangeState returns an empty ChangeState.
func NewChangeState() *ChangeState {
	return &ChangeState{
		lastPostIDs: make(map[string]string),
		handleLocks: make(map[string]*sync.Mutex),
	}
}

// LastPostID returns the remembered post id for handle.
func (s *ChangeState) LastPostID(handle string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.lastPostIDs[handle]
	return id, ok
}

// Remember records postID as the latest post processed for handle.
func (s *ChangeState) Remember(handle, postID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPostIDs[handle] = postID
}

// Seed loads previously persisted ids. Existing entries are overwritten.
func (s *ChangeState) Seed(ids map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for handle, id := range ids {
		s.lastPostIDs[handle] = id
	}
}

// Snapshot returns a copy of the remembered ids.
func (s *ChangeState) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.lastPostIDs))
	for handle, id := range s.lastPostIDs {
		out[handle] = id
	}
	return out
}

// Lock acquires the lock scoped to handle and returns its release func.
func (s *ChangeState) Lock(handle string) func() {
	s.mu.Lock()
	l, ok := s.handleLocks[handle]
	if !ok {
		l = &sync.Mutex{}
		s.handleLocks[handle] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// ShouldSkip reports whether processing of handle can be skipped because
// its latest post was already persisted. A classification without a post id
// always proceeds.
func ShouldSkip(handle string, c Classification, state *ChangeState) bool {
	if c.LatestPostID == nil {
		return false
	}
	last, ok := state.LastPostID(handle)
	return ok && last == *c.LatestPostID
}
