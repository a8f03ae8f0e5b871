package facade

import (
	"context"
	"sync"
)

// Superseder cancels an in-flight read when a newer read for the same view
// starts, so a slow stale response never overwrites a fresh one.
type Superseder struct {
	mu       sync.Mutex
	inflight map[string]*flight
}

type flight struct {
	cancel context.CancelFunc
}

func NewSuperseder() *Superseder {
	return &Superseder{inflight: make(map[string]*flight)}
}

// Begin derives a context for key, cancelling the previous one. The
// returned done func must be called when the read finishes.
func (s *Superseder) Begin(ctx context.Context, key string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	f := &flight{cancel: cancel}

	s.mu.Lock()
	if prev, ok := s.inflight[key]; ok {
		prev.cancel()
	}
	s.inflight[key] = f
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		if s.inflight[key] == f {
			delete(s.inflight, key)
		}
		s.mu.Unlock()
		cancel()
	}
}

// InFlight reports the number of tracked reads.
func (s *Superseder) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}
