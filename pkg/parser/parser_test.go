package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/logtree/pkg/event"
	"github.com/TheEntropyCollective/logtree/pkg/identifier"
)

type collector struct {
	events []event.Event
}

func (c *collector) Consume(ev event.Event) {
	c.events = append(c.events, ev)
}

func parseAll(t *testing.T, input string) (*collector, *Parser) {
	t.Helper()
	c := &collector{}
	p := New(c)
	p.Consume([]byte(input))
	p.Finish()
	return c, p
}

func TestParseWrappedMessage(t *testing.T) {
	input := `{"_":{"t":"begin"}}` +
		`{"_":{"t":"m","lvl":"info","src":"App","tag":"helloWrld","iid":1,` +
		`"ts":0.123,"f":"hello ${who}",` +
		`"a":[{"n":"who","t":"string","v":"world"}]}}` +
		`{"_":{"t":"end","ts":0.5,"clean":true}}`

	c, p := parseAll(t, input)
	require.Len(t, c.events, 3)
	assert.Equal(t, Stats{Records: 3}, p.Stats())

	_, ok := c.events[0].(*event.BeginInfo)
	require.True(t, ok, "first event should be begin")

	msg, ok := c.events[1].(*event.MessageInfo)
	require.True(t, ok, "second event should be a message")
	assert.Equal(t, identifier.Identifier("App"), msg.Source)
	assert.Equal(t, identifier.Identifier("helloWrld"), msg.Tag)
	assert.Equal(t, uint64(1), msg.Instance)
	assert.Equal(t, event.SeverityInfo, msg.Severity)
	assert.Equal(t, "hello ${who}", msg.Format)
	assert.InDelta(t, 0.123, msg.Offset.Seconds(), 1e-6)
	require.Len(t, msg.Args, 1)
	assert.Equal(t, identifier.Identifier("who"), msg.Args[0].Name)
	s, isStr := msg.Args[0].Value.AsString()
	require.True(t, isStr)
	assert.Equal(t, "world", s)

	fin, ok := c.events[2].(*event.FinishInfo)
	require.True(t, ok)
	assert.True(t, fin.Clean)
	assert.InDelta(t, 0.5, fin.Offset.Seconds(), 1e-6)
}

func TestParseTopLevelArrayOfBareRecords(t *testing.T) {
	input := `[{"t":"begin","time":"2024-03-01 10:20:30","session":"ssn","identity":"idy"}` +
		`,{"t":"m","lvl":"error","src":"Worker","iid":7,"ts":1,"f":"boom","a":[null` +
		`,{"n":"count","t":"int","v":42}]}` +
		`,{"t":"end","ts":2}]`

	c, _ := parseAll(t, input)
	require.Len(t, c.events, 3)

	begin, ok := c.events[0].(*event.BeginInfo)
	require.True(t, ok)
	assert.Equal(t, "ssn", begin.Session)
	assert.Equal(t, "idy", begin.Identity)
	assert.Equal(t, 2024, begin.Start.Year())

	msg := c.events[1].(*event.MessageInfo)
	assert.Equal(t, event.SeverityError, msg.Severity)
	require.Len(t, msg.Args, 1, "the leading null must not open an argument")
	n, isUint := msg.Args[0].Value.AsUint64()
	require.True(t, isUint)
	assert.Equal(t, uint64(42), n)

	fin := c.events[2].(*event.FinishInfo)
	assert.False(t, fin.Clean, "omitted clean flag defaults to false")
}

func TestChunkBoundaryReentrancy(t *testing.T) {
	input := `{"_":{"t":"m","lvl":"warning","src":"App","iid":3,"ts":0.25,"f":"x",` +
		`"a":[{"n":"big","t":"int","v":123456}]}}`

	for _, size := range []int{1, 2, 3, 7} {
		c := &collector{}
		p := New(c)
		for i := 0; i < len(input); i += size {
			end := i + size
			if end > len(input) {
				end = len(input)
			}
			p.Consume([]byte(input[i:end]))
		}
		p.Finish()
		require.Len(t, c.events, 1, "chunk size %d", size)
		msg := c.events[0].(*event.MessageInfo)
		assert.Equal(t, event.SeverityWarning, msg.Severity)
		v, ok := msg.Args[0].Value.AsUint64()
		require.True(t, ok)
		assert.Equal(t, uint64(123456), v)
	}
}

func TestNumericVariantFollowsTokenSpelling(t *testing.T) {
	input := `{"_":{"t":"m","src":"App","f":"x","a":[` +
		`{"n":"u","v":1},{"n":"i","v":-1},{"n":"f","v":1.0},{"n":"b","v":true}]}}`

	c, _ := parseAll(t, input)
	require.Len(t, c.events, 1)
	msg := c.events[0].(*event.MessageInfo)
	require.Len(t, msg.Args, 4)

	_, isUint := msg.Args[0].Value.AsUint64()
	assert.True(t, isUint, `"1" should parse as unsigned`)
	_, isInt := msg.Args[1].Value.AsInt64()
	assert.True(t, isInt, `"-1" should parse as signed`)
	_, isFloat := msg.Args[2].Value.AsFloat32()
	assert.True(t, isFloat, `"1.0" should parse as float`)
	_, isBool := msg.Args[3].Value.AsBool()
	assert.True(t, isBool)
}

func TestDurationUnitArgument(t *testing.T) {
	input := `{"_":{"t":"m","src":"App","f":"took ${time}","a":[` +
		`{"n":"time","t":"duration","u":"s","v":1.5}]}}`

	c, _ := parseAll(t, input)
	msg := c.events[0].(*event.MessageInfo)
	d, ok := msg.Args[0].Value.AsDuration()
	require.True(t, ok, "a seconds-unit value should become a duration")
	assert.Equal(t, 1500*time.Millisecond, d)
}

func TestMinMaxBounds(t *testing.T) {
	input := `{"_":{"t":"m","src":"App","f":"x","a":[` +
		`{"n":"load","t":"ratio","v":0.7,"min":0.0,"max":1.0},{"n":"bare","v":3}]}}`

	c, _ := parseAll(t, input)
	msg := c.events[0].(*event.MessageInfo)
	require.Len(t, msg.Args, 2)
	require.NotNil(t, msg.Args[0].Min)
	require.NotNil(t, msg.Args[0].Max)
	assert.InDelta(t, 0.0, float64(*msg.Args[0].Min), 1e-6)
	assert.InDelta(t, 1.0, float64(*msg.Args[0].Max), 1e-6)
	assert.Nil(t, msg.Args[1].Min)
	assert.Nil(t, msg.Args[1].Max)
}

func TestMalformedRecordIsSkipped(t *testing.T) {
	input := `{"_":{"t":"begin"}}` +
		`{"_":{"t":"m","lvl"` + // truncated record
		`{"_":{"t":"m","lvl":"info","src":"App","f":"ok"}}` +
		`{"_":{"t":"end","ts":1,"clean":true}}`

	c, p := parseAll(t, input)
	assert.Equal(t, uint64(1), p.Stats().Failures, "exactly one record should fail")
	require.Len(t, c.events, 3)
	msg, ok := c.events[1].(*event.MessageInfo)
	require.True(t, ok)
	assert.Equal(t, "ok", msg.Format)
	_, ok = c.events[2].(*event.FinishInfo)
	assert.True(t, ok)
}

func TestUnknownDiscriminatorSkipsRecord(t *testing.T) {
	input := `{"_":{"t":"nope","ts":1}}{"_":{"t":"hb","ts":2}}`
	c, p := parseAll(t, input)
	require.Len(t, c.events, 1)
	_, ok := c.events[0].(*event.HeartbeatInfo)
	assert.True(t, ok)
	assert.Equal(t, uint64(0), p.Stats().Failures)
}

func TestUnknownSeverityDefaultsToInfo(t *testing.T) {
	input := `{"_":{"t":"m","lvl":"Critical","src":"App","f":"x"}}`
	c, _ := parseAll(t, input)
	msg := c.events[0].(*event.MessageInfo)
	assert.Equal(t, event.SeverityInfo, msg.Severity)
}

func TestOversizeTokenFailsRecord(t *testing.T) {
	long := make([]byte, maxTokenSize+1)
	for i := range long {
		long[i] = 'x'
	}
	input := `{"_":{"t":"m","src":"App","f":"` + string(long) + `"}}` +
		`{"_":{"t":"hb","ts":1}}`

	c, p := parseAll(t, input)
	assert.Equal(t, uint64(1), p.Stats().Failures)
	require.Len(t, c.events, 1)
	_, ok := c.events[0].(*event.HeartbeatInfo)
	assert.True(t, ok)
}

func TestIntervalRecord(t *testing.T) {
	input := `{"_":{"t":"i","iid":9,"tag":"work","tns":2500000}}`
	c, _ := parseAll(t, input)
	require.Len(t, c.events, 1)
	iv := c.events[0].(*event.IntervalInfo)
	assert.Equal(t, identifier.Identifier("work"), iv.Tag)
	assert.Equal(t, uint64(9), iv.Instance)
	assert.Equal(t, 2500*time.Microsecond, iv.Duration)
}

func TestDeclareAndActiveState(t *testing.T) {
	input := `{"_":{"t":"ds","ts":0.5,"src":"App","tag":"busy","bgn":"busyBegin","end":"busyEnd","iid":4}}` +
		`{"_":{"t":"as","ts":0.6,"src":"App","tag":"busy"}}`

	c, _ := parseAll(t, input)
	require.Len(t, c.events, 2)
	ds := c.events[0].(*event.DeclareStateInfo)
	assert.Equal(t, identifier.Identifier("busy"), ds.StateTag)
	assert.Equal(t, identifier.Identifier("busyBegin"), ds.BeginTag)
	assert.Equal(t, identifier.Identifier("busyEnd"), ds.EndTag)
	assert.Equal(t, uint64(4), ds.Instance)
	as := c.events[1].(*event.ActiveStateInfo)
	assert.Equal(t, identifier.Identifier("busy"), as.Tag)
}

func TestDescriptionRecord(t *testing.T) {
	input := `{"_":{"t":"d","ts":0.1,"src":"App","iid":2,"dn":"Application","desc":"the main app object"}}`
	c, _ := parseAll(t, input)
	d := c.events[0].(*event.DescriptionInfo)
	assert.Equal(t, "Application", d.DisplayName)
	assert.Equal(t, "the main app object", d.Description)
}

func TestStringEscapes(t *testing.T) {
	input := `{"_":{"t":"m","src":"App","f":"quote \" slash \\ tab \t unicode A"}}`
	c, _ := parseAll(t, input)
	msg := c.events[0].(*event.MessageInfo)
	assert.Equal(t, "quote \" slash \\ tab \t unicode A", msg.Format)
}

func TestOrderPreservation(t *testing.T) {
	input := `{"_":{"t":"begin"}}` +
		`{"_":{"t":"m","src":"A","f":"1","ts":0.1}}` +
		`{"_":{"t":"hb","ts":0.2}}` +
		`{"_":{"t":"m","src":"A","f":"2","ts":0.3}}` +
		`{"_":{"t":"end","ts":0.4}}`

	c, _ := parseAll(t, input)
	require.Len(t, c.events, 5)
	kinds := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		switch e := ev.(type) {
		case *event.BeginInfo:
			kinds = append(kinds, "begin")
		case *event.MessageInfo:
			kinds = append(kinds, "m:"+e.Format)
		case *event.HeartbeatInfo:
			kinds = append(kinds, "hb")
		case *event.FinishInfo:
			kinds = append(kinds, "end")
		}
	}
	assert.Equal(t, []string{"begin", "m:1", "hb", "m:2", "end"}, kinds)
}
