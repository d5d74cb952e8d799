package sink

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/TheEntropyCollective/logtree/pkg/event"
)

// WriterFactory renders events as plain text lines on an io.Writer: one
// line per event, plus one line per message argument; interval samples are
// printed only as batch aggregates. It is the simple alternative to the tree sink for
// non-interactive output (log files, pipes).
type WriterFactory struct {
	out   io.Writer
	idSeq atomic.Uint64
	agg   int
}

// NewWriterFactory returns a factory writing to out, aggregating intervals
// in batches of batchSize.
func NewWriterFactory(out io.Writer, batchSize int) *WriterFactory {
	if batchSize < 1 {
		batchSize = DefaultTTYBatchSize
	}
	return &WriterFactory{out: out, agg: batchSize}
}

func (f *WriterFactory) MakeStream() Sink {
	return &writerSink{
		id:        f.idSeq.Add(1),
		out:       f.out,
		intervals: NewIntervalAggregator(f.agg, DefaultHitInterval),
	}
}

func (f *WriterFactory) Update() {}

func (f *WriterFactory) Close() error { return nil }

type writerSink struct {
	id        uint64
	out       io.Writer
	root      string
	intervals *IntervalAggregator
}

func (s *writerSink) Consume(ev event.Event) {
	switch e := ev.(type) {
	case *event.BeginInfo:
		s.printf("stream %d: starting log session=%q identity=%q", s.id, e.Session, e.Identity)
	case *event.MessageInfo:
		if s.root == "" {
			s.root = e.Source.String()
		}
		s.printf("stream %d: %s [%s] %s/%s: %s",
			s.id, PaddedTo(10, FormatReltime(e.Offset)), e.Severity,
			e.Source, e.Tag, FormatMessage(e))
		for _, arg := range e.Args {
			s.printf("stream %d:   %s: %s", s.id, arg.Name, FormatValue(arg.Value))
		}
	case *event.IntervalInfo:
		if agg := s.intervals.Update(e); agg != nil {
			s.printf("stream %d: interval %s/%x min=%s avg=%s max=%s over %d hits",
				s.id, agg.Tag, agg.Instance,
				FormatReltime(agg.MinDuration), FormatReltime(agg.AvgDuration),
				FormatReltime(agg.MaxDuration), agg.HitCount)
			s.intervals.Reset(agg)
		}
	case *event.HeartbeatInfo:
		s.printf("stream %d: %s heart-beat", s.id, PaddedTo(10, FormatReltime(e.Offset)))
	case *event.DeclareStateInfo:
		s.printf("stream %d: declare state %s/%s [%s..%s]",
			s.id, e.Source, e.StateTag, e.BeginTag, e.EndTag)
	case *event.ActiveStateInfo:
		s.printf("stream %d: state %s/%s active", s.id, e.Source, e.Tag)
	case *event.DescriptionInfo:
		s.printf("stream %d: %s/%x is %q: %s", s.id, e.Source, e.Instance, e.DisplayName, e.Description)
	case *event.FinishInfo:
		outcome := "failed"
		if e.Clean {
			outcome = "success"
		}
		s.printf("stream %d: %s %s closing log (%s)",
			s.id, PaddedTo(10, FormatReltime(e.Offset)), s.root, outcome)
	}
}

func (s *writerSink) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format+"\n", args...)
}
