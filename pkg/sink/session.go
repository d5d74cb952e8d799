package sink

import (
	"time"

	"github.com/TheEntropyCollective/logtree/pkg/event"
)

// Session normalizes the event sequence of one stream before it reaches a
// sink. Producers may omit the begin record; some disconnect without a
// finish. The wrapper guarantees the sink sees exactly one begin first,
// at most one finish last, and nothing after the finish.
type Session struct {
	sink     Sink
	begun    bool
	finished bool
	lastOfs  time.Duration
}

// NewSession wraps the given sink.
func NewSession(s Sink) *Session {
	return &Session{sink: s}
}

// Consume forwards one event, synthesizing an implicit begin when the
// stream starts with something else.
func (s *Session) Consume(ev event.Event) {
	if s.finished {
		return
	}
	if _, isBegin := ev.(*event.BeginInfo); isBegin {
		if s.begun {
			return
		}
		s.begun = true
		s.sink.Consume(ev)
		return
	}
	if !s.begun {
		s.begun = true
		s.sink.Consume(&event.BeginInfo{Start: time.Now()})
	}
	if fin, isFinish := ev.(*event.FinishInfo); isFinish {
		s.finished = true
		s.lastOfs = fin.Offset
	} else if ofs, ok := eventOffset(ev); ok {
		s.lastOfs = ofs
	}
	s.sink.Consume(ev)
}

// Close ends the session. A stream that was begun but never finished
// receives a synthetic unclean finish, so sinks always observe a closed
// stream even when the producer disconnects abruptly.
func (s *Session) Close() {
	if s.begun && !s.finished {
		s.finished = true
		s.sink.Consume(&event.FinishInfo{Offset: s.lastOfs, Clean: false})
	}
}

func eventOffset(ev event.Event) (time.Duration, bool) {
	switch e := ev.(type) {
	case *event.MessageInfo:
		return e.Offset, true
	case *event.HeartbeatInfo:
		return e.Offset, true
	case *event.IntervalInfo:
		return e.Offset, true
	case *event.DeclareStateInfo:
		return e.Offset, true
	case *event.ActiveStateInfo:
		return e.Offset, true
	case *event.DescriptionInfo:
		return e.Offset, true
	}
	return 0, false
}
