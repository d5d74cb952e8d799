package postgres

import (
	"github.com/TheEntropyCollective/logtree/pkg/event"
	"github.com/TheEntropyCollective/logtree/pkg/identifier"
	"github.com/TheEntropyCollective/logtree/pkg/sink"
)

// streamSink persists one stream. Events that cannot reach the database are
// kept in a per-stream FIFO backlog and replayed, in order, before anything
// newer is forwarded.
type streamSink struct {
	factory     *Factory
	id          uint64
	root        identifier.Identifier
	rootLatched bool
	rootPending bool
	backlog     []event.Event
	intervals   *sink.IntervalAggregator
}

func (s *streamSink) Consume(ev event.Event) {
	switch e := ev.(type) {
	case *event.MessageInfo:
		if !s.rootLatched {
			s.rootLatched = true
			s.rootPending = true
			s.root = e.Source
		}
		s.dispatch(ev)
	case *event.IntervalInfo:
		// only aggregates are persisted
		if agg := s.intervals.Update(e); agg != nil {
			s.dispatch(agg)
			s.intervals.Reset(agg)
		}
	default:
		s.dispatch(ev)
	}
}

func (s *streamSink) dispatch(ev event.Event) {
	if len(s.backlog) > 0 {
		s.flushBacklog()
		if len(s.backlog) > 0 {
			s.backlog = append(s.backlog, ev)
			return
		}
	}
	if !s.factory.consume(s, ev) {
		s.backlog = append(s.backlog, ev)
	}
}

// flushBacklog replays backlogged events in FIFO order, stopping at the
// first one the factory rejects.
func (s *streamSink) flushBacklog() {
	done := 0
	for _, ev := range s.backlog {
		if !s.factory.consume(s, ev) {
			break
		}
		done++
	}
	if done == len(s.backlog) {
		s.backlog = s.backlog[:0]
	} else if done > 0 {
		s.backlog = append(s.backlog[:0], s.backlog[done:]...)
	}
}
