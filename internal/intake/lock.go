package intake

import "sync"

// senderLocks serializes intake processing per sender. The active-draft
// lookup and the subsequent write are not transactional in the store; holding
// the sender's lock across the whole transition closes that gap. Locks are
// created on first use and never evicted; the key space is bounded by the
// number of distinct reporters.
type senderLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSenderLocks() *senderLocks {
	return &senderLocks{locks: make(map[string]*sync.Mutex)}
}

func (s *senderLocks) lock(sender string) func() {
	s.mu.Lock()
	l, ok := s.locks[sender]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sender] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}
