package logstream

import "sync"

// Seen is the set of message identities already reflected in the log. The
// live stream and the transcript share one so a turn is written once.
type Seen struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewSeen() *Seen {
	return &Seen{ids: make(map[string]struct{})}
}

func (s *Seen) Add(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	s.ids[id] = struct{}{}
	s.mu.Unlock()
}

func (s *Seen) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}
