// Package tree renders interleaved log streams as a vertical tree diagram
// on a terminal. Each concurrently active stream owns one column of the
// connector gutter; messages, heartbeats, interval summaries and the
// opening/closing boxes hang off their stream's column.
package tree

import (
	"bufio"
	"io"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/term"

	"github.com/TheEntropyCollective/logtree/pkg/event"
	"github.com/TheEntropyCollective/logtree/pkg/identifier"
	"github.com/TheEntropyCollective/logtree/pkg/sink"
)

// Options tune the renderer.
type Options struct {
	// Condensed collapses the per-message heading box to a single row.
	Condensed bool
	// BatchSize is the interval aggregation threshold.
	BatchSize int
}

// Factory renders all streams into one shared output device.
type Factory struct {
	out       *bufio.Writer
	condensed bool
	width     int
	batch     int
	idSeq     atomic.Uint64
	active    []uint64 // column order of currently active streams
	begins    map[uint64]*event.BeginInfo
}

// NewFactory returns a tree sink factory writing to out. When out is a
// terminal its width is used to trim message rows.
func NewFactory(out io.Writer, opts Options) *Factory {
	f := &Factory{
		out:       bufio.NewWriter(out),
		condensed: opts.Condensed,
		batch:     opts.BatchSize,
		begins:    make(map[uint64]*event.BeginInfo),
	}
	if f.batch < 1 {
		f.batch = sink.DefaultTTYBatchSize
	}
	if file, ok := out.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		if w, _, err := term.GetSize(int(file.Fd())); err == nil {
			f.width = w
		}
	}
	f.write("╮\n")
	return f
}

func (f *Factory) MakeStream() sink.Sink {
	return &streamSink{
		id:        f.idSeq.Add(1),
		parent:    f,
		intervals: sink.NewIntervalAggregator(f.batch, sink.DefaultHitInterval),
	}
}

// Update flushes buffered output.
func (f *Factory) Update() {
	f.out.Flush()
}

// Close draws the bottom of the tree and flushes.
func (f *Factory) Close() error {
	f.write("╯\n")
	return f.out.Flush()
}

func (f *Factory) write(s string) *Factory {
	f.out.WriteString(s)
	return f
}

// connector rows; one two-glyph cell per active stream column

func (f *Factory) connI() *Factory {
	f.write("┊")
	for range f.active {
		f.write(" │")
	}
	return f
}

func (f *Factory) connT() *Factory {
	f.write("┝")
	for range f.active {
		f.write("━━")
	}
	return f.write("━┯━┥")
}

func (f *Factory) connZ(id uint64) *Factory {
	f.write("┊")
	conn := true
	for _, sid := range f.active {
		switch {
		case sid == id:
			f.write(" ┝")
			conn = false
		case conn:
			f.write(" │")
		default:
			f.write("━━")
		}
	}
	return f
}

func (f *Factory) connL(id uint64) *Factory {
	f.write("┊")
	conn := true
	for _, sid := range f.active {
		switch {
		case sid == id:
			f.write(" ┕")
			conn = false
		case conn:
			f.write(" │")
		default:
			f.write("━━")
		}
	}
	return f.write("━┥")
}

func (f *Factory) connS(id uint64) *Factory {
	f.write("┊")
	conn := true
	for _, sid := range f.active {
		switch {
		case sid == id:
			f.write("  ")
			conn = false
		case conn:
			f.write(" │")
		default:
			f.write("╭╯")
		}
	}
	return f
}

func (f *Factory) connLow(id uint64) *Factory {
	f.write("┊")
	conn := true
	for _, sid := range f.active {
		switch {
		case sid == id:
			f.write(" ")
			conn = false
		case conn:
			f.write(" │")
		default:
			f.write("╭╯")
		}
	}
	return f
}

func (f *Factory) consumeBegin(s *streamSink, info *event.BeginInfo) {
	f.connI().write("   ╭────────────╮\n")
	f.connT().write("starting log│\n")
	f.active = append(f.active, s.id)
	f.begins[s.id] = info
	f.connI().write(" ╰────────────╯\n")
}

func (f *Factory) consumeMessage(s *streamSink, info *event.MessageInfo) {
	f.headingRow(s, info)
	args := info.Args
	f.messageRow(s, sink.FormatMessage(info), len(args) > 0)
	for i := range args {
		f.argRow(s, &args[i], i+1 == len(args))
	}
}

func (f *Factory) headingRow(s *streamSink, info *event.MessageInfo) {
	if f.condensed {
		f.connZ(s.id).write("━┑")
	} else {
		if !info.Tag.IsZero() {
			f.connI().write(" ╭──────────┬──────────┬─────────┬")
			f.write("──────────┬──────────┬──────────┬────────────╮\n")
		} else {
			f.connI().write(" ╭──────────┬──────────┬─────────┬")
			f.write("──────────┬──────────┬────────────╮\n")
		}
		f.connZ(s.id).write("━┥")
	}
	f.write(sink.PaddedTo(10, sink.FormatReltime(info.Offset))).write("│")
	f.write(sink.PaddedTo(10, sink.FormatReltime(info.Offset-s.prevOffset))).write("│")
	f.write(sink.PaddedTo(9, info.Severity.String())).write("│")
	f.write(sink.PaddedTo(10, s.root.String())).write("│")
	f.write(sink.PaddedTo(10, info.Source.String())).write("│")
	if !info.Tag.IsZero() {
		f.write(sink.PaddedTo(10, info.Tag.String())).write("│")
	}
	f.write(sink.PaddedTo(12, sink.FormatInstance(info.Instance))).write("│\n")
	if f.condensed {
		return
	}
	if !info.Tag.IsZero() {
		f.connI().write(" ╰┬─────────┴──────────┴─────────┴")
		f.write("──────────┴──────────┴──────────┴────────────╯\n")
	} else {
		f.connI().write(" ╰┬─────────┴──────────┴─────────┴")
		f.write("──────────┴──────────┴────────────╯\n")
	}
}

func (f *Factory) messageRow(s *streamSink, text string, continues bool) {
	f.connI().write("  ╰")
	if continues {
		f.write("─┐")
	} else {
		f.write("╼ ")
	}
	f.write(f.trim(text)).write("\n")
}

func (f *Factory) argRow(s *streamSink, arg *event.MessageArg, last bool) {
	f.connI().write("    ")
	if last {
		f.write("╰")
	} else {
		f.write("├")
	}
	f.write("─╼ ").write(arg.Name.String()).write(": ")
	f.write(f.trim(sink.FormatValue(arg.Value))).write("\n")
}

func (f *Factory) consumeAggregate(s *streamSink, agg *event.AggregateIntervalInfo) {
	f.connI().write(" ╭──────────┬──────────┬────────────╮\n")
	f.connZ(s.id).write("━┥")
	f.write(sink.PaddedTo(10, s.root.String())).write("│")
	f.write(sink.PaddedTo(10, agg.Tag.String())).write("│")
	f.write(sink.PaddedTo(12, sink.FormatInstance(agg.Instance))).write("│\n")
	f.connI().write(" ╰┬─────────┴──────────┴────────────╯\n")
	f.connI().write("  ├─╼ min: ").write(sink.FormatReltime(agg.MinDuration)).write("\n")
	f.connI().write("  ├─╼ avg: ").write(sink.FormatReltime(agg.AvgDuration)).write("\n")
	f.connI().write("  ╰─╼ max: ").write(sink.FormatReltime(agg.MaxDuration)).write("\n")
}

func (f *Factory) consumeHeartbeat(s *streamSink, info *event.HeartbeatInfo) {
	f.connI().write(" ╭──────────┬──────────┬──────────╮\n")
	f.connZ(s.id).write("━┥")
	f.write(sink.PaddedTo(10, sink.FormatReltime(info.Offset))).write("│")
	f.write(sink.PaddedTo(10, sink.FormatReltime(info.Offset-s.prevOffset)))
	f.write("│heart-beat│\n")
	f.connI().write(" ╰──────────┴──────────┴──────────╯\n")
}

func (f *Factory) consumeFinish(s *streamSink, info *event.FinishInfo) {
	f.connI().write(" ╭──────────┬──────────┬──────────┬───────────┬─────────╮\n")
	f.connL(s.id).write(sink.PaddedTo(10, sink.FormatReltime(info.Offset)))
	f.write("│").write(sink.PaddedTo(10, sink.FormatReltime(info.Offset-s.prevOffset)))
	f.write("│").write(sink.PaddedTo(10, s.root.String()))
	f.write("│closing log│")
	if info.Clean {
		f.write(" success ")
	} else {
		f.write(" failed  ")
	}
	f.write("│\n")
	f.connS(s.id).write(" ╰──────────┴──────────┴──────────┴───────────┴─────────╯\n")
	f.connLow(s.id).write("\n")
	f.remove(s.id)
	delete(f.begins, s.id)
	f.out.Flush()
}

func (f *Factory) remove(id uint64) {
	for i, sid := range f.active {
		if sid == id {
			f.active = append(f.active[:i], f.active[i+1:]...)
			return
		}
	}
}

// trim cuts a rendered row to the terminal width when one is known.
func (f *Factory) trim(s string) string {
	limit := f.width - 2*len(f.active) - 8
	if f.width == 0 || len(s) <= limit {
		return s
	}
	if limit < 1 {
		limit = 1
	}
	return sink.PaddedTo(limit, s)
}

// streamSink is the per-stream view; all rendering goes through the parent
// factory, which owns the output device and the column layout.
type streamSink struct {
	id         uint64
	parent     *Factory
	root       identifier.Identifier
	rootSet    bool
	prevOffset time.Duration
	intervals  *sink.IntervalAggregator
}

func (s *streamSink) Consume(ev event.Event) {
	switch e := ev.(type) {
	case *event.BeginInfo:
		s.parent.consumeBegin(s, e)
	case *event.MessageInfo:
		if !s.rootSet {
			s.rootSet = true
			s.root = e.Source
		}
		s.parent.consumeMessage(s, e)
		s.prevOffset = e.Offset
	case *event.IntervalInfo:
		if agg := s.intervals.Update(e); agg != nil {
			s.parent.consumeAggregate(s, agg)
			s.intervals.Reset(agg)
		}
	case *event.HeartbeatInfo:
		s.parent.consumeHeartbeat(s, e)
		s.prevOffset = e.Offset
	case *event.FinishInfo:
		s.parent.consumeFinish(s, e)
	}
}
