package relay

import "sync"

// sequencer hands out per-key turns so updates for the same chat run
// strictly in arrival order while different chats stay independent. Keys
// with no pending work hold no memory.
type sequencer struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newSequencer() *sequencer {
	return &sequencer{tails: make(map[string]chan struct{})}
}

// enqueue registers a new turn for key. The returned channel is closed when
// all earlier turns for the same key have finished (nil when this turn is
// first in line). done must be called exactly once, after the work for this
// turn completes, to release the successor.
func (s *sequencer) enqueue(key string) (turn <-chan struct{}, done func()) {
	s.mu.Lock()
	prev := s.tails[key]
	cur := make(chan struct{})
	s.tails[key] = cur
	s.mu.Unlock()

	done = func() {
		s.mu.Lock()
		if s.tails[key] == cur {
			delete(s.tails, key)
		}
		s.mu.Unlock()
		close(cur)
	}
	return prev, done
}

// pending reports how many keys currently have queued work.
func (s *sequencer) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tails)
}
