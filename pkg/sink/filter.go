package sink

import (
	"sync/atomic"

	"github.com/TheEntropyCollective/logtree/pkg/event"
)

// SeverityGate holds the minimum severity messages must have to pass a
// severity filter. The level can be swapped at runtime (config hot reload)
// while readers keep consuming.
type SeverityGate struct {
	level atomic.Int32
}

// NewSeverityGate returns a gate admitting min and above.
func NewSeverityGate(min event.Severity) *SeverityGate {
	g := &SeverityGate{}
	g.Set(min)
	return g
}

// Set replaces the minimum severity.
func (g *SeverityGate) Set(min event.Severity) {
	g.level.Store(int32(min))
}

// Min returns the current minimum severity.
func (g *SeverityGate) Min() event.Severity {
	return event.Severity(g.level.Load())
}

// FilterFactory drops messages below the gate's severity before they reach
// the wrapped factory's sinks. Non-message events always pass; a stream of
// filtered-out messages still begins, heartbeats and finishes normally.
type FilterFactory struct {
	next Factory
	gate *SeverityGate
}

// NewFilterFactory wraps next with a severity filter.
func NewFilterFactory(next Factory, gate *SeverityGate) *FilterFactory {
	return &FilterFactory{next: next, gate: gate}
}

func (f *FilterFactory) MakeStream() Sink {
	return &filterSink{next: f.next.MakeStream(), gate: f.gate}
}

func (f *FilterFactory) Update() {
	f.next.Update()
}

func (f *FilterFactory) Close() error {
	return f.next.Close()
}

type filterSink struct {
	next Sink
	gate *SeverityGate
}

func (s *filterSink) Consume(ev event.Event) {
	if msg, ok := ev.(*event.MessageInfo); ok && msg.Severity < s.gate.Min() {
		return
	}
	s.next.Consume(ev)
}
