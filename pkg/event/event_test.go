package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/logtree/pkg/identifier"
)

func TestSeverityOrdering(t *testing.T) {
	order := []Severity{
		SeverityBacktrace, SeverityTrace, SeverityDebug, SeverityStat,
		SeverityInfo, SeverityChange, SeverityWarning, SeverityError,
		SeverityFatal,
	}
	for i := 1; i < len(order); i++ {
		assert.Less(t, order[i-1], order[i])
	}
}

func TestSeverityParseRoundTrip(t *testing.T) {
	for s := SeverityBacktrace; s <= SeverityFatal; s++ {
		assert.Equal(t, s, ParseSeverity(s.String()))
	}
	assert.Equal(t, SeverityInfo, ParseSeverity("unknown"))
	assert.Equal(t, SeverityInfo, ParseSeverity("Warning"), "matching is case sensitive")
}

func TestArgValueAccessorsMatchVariant(t *testing.T) {
	v := IntValue(-5)
	i, ok := v.AsInt64()
	require.True(t, ok)
	assert.Equal(t, int64(-5), i)
	_, ok = v.AsUint64()
	assert.False(t, ok)
	_, ok = v.AsString()
	assert.False(t, ok)

	d := DurationValue(2 * time.Second)
	dur, ok := d.AsDuration()
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, dur)
	_, ok = d.AsFloat32()
	assert.False(t, ok)
}

func TestArgValueDefaultIsEmptyString(t *testing.T) {
	var v ArgValue
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "", s)
	assert.Equal(t, KindString, v.Kind())
}

func TestFindArg(t *testing.T) {
	msg := &MessageInfo{Args: []MessageArg{
		{Name: identifier.Identifier("a"), Value: UintValue(1)},
		{Name: identifier.Identifier("b"), Value: UintValue(2)},
	}}
	arg, ok := msg.FindArg(identifier.Identifier("b"))
	require.True(t, ok)
	v, _ := arg.Value.AsUint64()
	assert.Equal(t, uint64(2), v)

	_, ok = msg.FindArg(identifier.Identifier("c"))
	assert.False(t, ok)
}
