package sink

import (
	"sync"

	"github.com/TheEntropyCollective/logtree/pkg/event"
)

// Locked serializes access to a factory shared by several independent
// reader tasks. One mutex guards stream creation, event consumption and
// the periodic update tick; sinks created through it share the same lock,
// which is all the concurrency model requires.
type Locked struct {
	mu   sync.Mutex
	next Factory
}

// NewLocked wraps next with a single mutex.
func NewLocked(next Factory) *Locked {
	return &Locked{next: next}
}

func (l *Locked) MakeStream() Sink {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &lockedSink{mu: &l.mu, next: l.next.MakeStream()}
}

func (l *Locked) Update() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.Update()
}

func (l *Locked) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next.Close()
}

type lockedSink struct {
	mu   *sync.Mutex
	next Sink
}

func (s *lockedSink) Consume(ev event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next.Consume(ev)
}
