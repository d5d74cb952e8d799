package sink

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/logtree/pkg/event"
	"github.com/TheEntropyCollective/logtree/pkg/identifier"
)

type recordingSink struct {
	events []event.Event
}

func (r *recordingSink) Consume(ev event.Event) {
	r.events = append(r.events, ev)
}

type recordingFactory struct {
	sinks   []*recordingSink
	updates int
	closed  bool
}

func (f *recordingFactory) MakeStream() Sink {
	s := &recordingSink{}
	f.sinks = append(f.sinks, s)
	return s
}

func (f *recordingFactory) Update()      { f.updates++ }
func (f *recordingFactory) Close() error { f.closed = true; return nil }

func msg(src string, sev event.Severity) *event.MessageInfo {
	return &event.MessageInfo{Source: identifier.Identifier(src), Severity: sev}
}

func TestSessionImplicitBegin(t *testing.T) {
	rec := &recordingSink{}
	s := NewSession(rec)
	s.Consume(msg("App", event.SeverityInfo))

	require.Len(t, rec.events, 2)
	_, ok := rec.events[0].(*event.BeginInfo)
	assert.True(t, ok, "a missing begin record is synthesized")
	_, ok = rec.events[1].(*event.MessageInfo)
	assert.True(t, ok)
}

func TestSessionDuplicateBeginDropped(t *testing.T) {
	rec := &recordingSink{}
	s := NewSession(rec)
	s.Consume(&event.BeginInfo{})
	s.Consume(&event.BeginInfo{})
	assert.Len(t, rec.events, 1)
}

func TestSessionCloseSynthesizesUncleanFinish(t *testing.T) {
	rec := &recordingSink{}
	s := NewSession(rec)
	s.Consume(&event.BeginInfo{})
	s.Consume(&event.MessageInfo{Offset: 3 * time.Second, Source: identifier.Identifier("App")})
	s.Close()

	require.Len(t, rec.events, 3)
	fin, ok := rec.events[2].(*event.FinishInfo)
	require.True(t, ok)
	assert.False(t, fin.Clean)
	assert.Equal(t, 3*time.Second, fin.Offset)
}

func TestSessionCloseAfterFinishIsNoop(t *testing.T) {
	rec := &recordingSink{}
	s := NewSession(rec)
	s.Consume(&event.BeginInfo{})
	s.Consume(&event.FinishInfo{Clean: true})
	s.Close()
	assert.Len(t, rec.events, 2)

	s.Consume(msg("App", event.SeverityInfo))
	assert.Len(t, rec.events, 2, "events after finish are dropped")
}

func TestSessionCloseWithoutEventsIsSilent(t *testing.T) {
	rec := &recordingSink{}
	NewSession(rec).Close()
	assert.Empty(t, rec.events)
}

func TestFilterFactoryDropsBelowMinimum(t *testing.T) {
	next := &recordingFactory{}
	gate := NewSeverityGate(event.SeverityWarning)
	f := NewFilterFactory(next, gate)

	s := f.MakeStream()
	s.Consume(&event.BeginInfo{})
	s.Consume(msg("App", event.SeverityDebug))
	s.Consume(msg("App", event.SeverityError))
	s.Consume(&event.HeartbeatInfo{})

	rec := next.sinks[0]
	require.Len(t, rec.events, 3, "debug message is dropped, the rest passes")

	gate.Set(event.SeverityDebug)
	s.Consume(msg("App", event.SeverityDebug))
	assert.Len(t, rec.events, 4, "gate changes apply to live streams")
}

func TestMultiFansOut(t *testing.T) {
	a := &recordingFactory{}
	b := &recordingFactory{}
	m := NewMulti(a, b)

	s := m.MakeStream()
	s.Consume(&event.BeginInfo{})
	m.Update()
	require.NoError(t, m.Close())

	assert.Len(t, a.sinks[0].events, 1)
	assert.Len(t, b.sinks[0].events, 1)
	assert.Equal(t, 1, a.updates)
	assert.True(t, b.closed)
}

func TestFormatMessageSubstitution(t *testing.T) {
	info := &event.MessageInfo{
		Format: "hello ${who}, attempt ${n} of ${total}",
		Args: []event.MessageArg{
			{Name: identifier.Identifier("who"), Value: event.StringValue("world")},
			{Name: identifier.Identifier("n"), Value: event.UintValue(2)},
		},
	}
	assert.Equal(t, "hello world, attempt 2 of ${total}", FormatMessage(info))
}

func TestFormatReltime(t *testing.T) {
	assert.Equal(t, "0", FormatReltime(0))
	assert.Equal(t, "250μs", FormatReltime(250*time.Microsecond))
	assert.Equal(t, "15ms", FormatReltime(15*time.Millisecond))
	assert.Equal(t, "1.500s", FormatReltime(1500*time.Millisecond))
	assert.Equal(t, "2m 5.0s", FormatReltime(125*time.Second))
}

func TestPaddedTo(t *testing.T) {
	assert.Equal(t, "abc       ", PaddedTo(10, "abc"))
	assert.Equal(t, "abcdefghi…", PaddedTo(10, "abcdefghijkl"))
	assert.Equal(t, "exactlyten", PaddedTo(10, "exactlyten"))
}

func TestWriterSinkRendersLines(t *testing.T) {
	var buf bytes.Buffer
	f := NewWriterFactory(&buf, 2)
	s := f.MakeStream()

	s.Consume(&event.BeginInfo{Session: "s", Identity: "i"})
	m := msg("App", event.SeverityInfo)
	m.Format = "hi ${who}"
	m.Args = []event.MessageArg{{Name: identifier.Identifier("who"), Value: event.StringValue("me")}}
	s.Consume(m)
	s.Consume(&event.FinishInfo{Clean: true})

	out := buf.String()
	assert.Contains(t, out, "starting log")
	assert.Contains(t, out, "hi me")
	assert.Contains(t, out, "who: me")
	assert.Contains(t, out, "closing log (success)")
}
