package player

import (
	"math/rand/v2"

	"github.com/leeineian/chorus/track"
)

// Enqueue appends e and returns the new queue length. An entry that becomes
// the head starts immediately; its command reply already announces it, so
// its origin is dropped.
func (s *Session) Enqueue(e *Entry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return 0, ErrNotConnected
	}

	if len(s.queue) == 0 {
		e.Origin = nil
	}
	s.queue = append(s.queue, e)
	if len(s.queue) == 1 {
		s.startLocked(e)
	}
	return len(s.queue), nil
}

// Skip stops the head; the resulting track end advances the queue.
func (s *Session) Skip() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return ErrNoSession
	}
	if len(s.queue) == 0 {
		return ErrQueueEmpty
	}
	s.conn.Stop()
	return nil
}

// ClearPending drops everything behind the head. A queue holding only the
// head counts as empty.
func (s *Session) ClearPending() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return ErrNoSession
	}
	if len(s.queue) <= 1 {
		return ErrQueueEmpty
	}
	for i := 1; i < len(s.queue); i++ {
		s.queue[i] = nil
	}
	s.queue = s.queue[:1]
	return nil
}

// ShufflePending permutes the entries behind the head in place.
func (s *Session) ShufflePending() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return ErrNoSession
	}
	if len(s.queue) <= 1 {
		return ErrQueueEmpty
	}
	pending := s.queue[1:]
	rand.Shuffle(len(pending), func(i, j int) {
		pending[i], pending[j] = pending[j], pending[i]
	})
	return nil
}

// SnapshotPending returns the metadata of every entry behind the head.
func (s *Session) SnapshotPending() []track.Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) <= 1 {
		return nil
	}
	out := make([]track.Metadata, 0, len(s.queue)-1)
	for _, e := range s.queue[1:] {
		out = append(out, e.Metadata)
	}
	return out
}

// Head returns the entry that is playing or about to play.
func (s *Session) Head() (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	return s.queue[0], true
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
