package parser

import (
	"math"
	"time"

	"github.com/TheEntropyCollective/logtree/pkg/event"
	"github.com/TheEntropyCollective/logtree/pkg/identifier"
)

// recordParser assembles one record type from path-keyed tokens. Unknown
// paths are ignored silently; every add method tolerates partial records so
// that emit can always produce an event with defaulted fields.
type recordParser interface {
	reset()
	addArg()
	addBool(path string, v bool)
	addInt(path string, v int64)
	addUint(path string, v uint64)
	addFloat(path string, v float64)
	addString(path string, v string)
	emit(c Consumer)
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

// wallclockLayout is the format the producers use for the begin timestamp.
const wallclockLayout = "2006-01-02 15:04:05"

type baseParser struct{}

func (baseParser) reset()                   {}
func (baseParser) addArg()                  {}
func (baseParser) addBool(string, bool)     {}
func (baseParser) addInt(string, int64)     {}
func (baseParser) addUint(string, uint64)   {}
func (baseParser) addFloat(string, float64) {}
func (baseParser) addString(string, string) {}

// begin

type beginParser struct {
	baseParser
	info event.BeginInfo
}

func (p *beginParser) reset() { p.info = event.BeginInfo{} }

func (p *beginParser) addString(path, v string) {
	switch path {
	case "_/time":
		if ts, err := time.Parse(wallclockLayout, v); err == nil {
			p.info.Start = ts
		}
	case "_/session":
		p.info.Session = v
	case "_/identity":
		p.info.Identity = v
	}
}

func (p *beginParser) emit(c Consumer) {
	info := p.info
	c.Consume(&info)
}

// message

type messageParser struct {
	info     event.MessageInfo
	unitSecs []bool // per argument: value carries a seconds unit
}

func (p *messageParser) reset() {
	p.info = event.MessageInfo{Severity: event.SeverityInfo}
	p.unitSecs = p.unitSecs[:0]
}

func (p *messageParser) addArg() {
	p.info.Args = append(p.info.Args, event.MessageArg{})
	p.unitSecs = append(p.unitSecs, false)
}

func (p *messageParser) lastArg() *event.MessageArg {
	if len(p.info.Args) == 0 {
		p.addArg()
	}
	return &p.info.Args[len(p.info.Args)-1]
}

func (p *messageParser) addBool(path string, v bool) {
	if path == "_/a/_/v" {
		p.lastArg().Value = event.BoolValue(v)
	}
}

func (p *messageParser) addInt(path string, v int64) {
	switch path {
	case "_/ts":
		p.info.Offset = secondsToDuration(float64(v))
	case "_/a/_/v":
		if p.argIsSeconds() {
			p.lastArg().Value = event.DurationValue(secondsToDuration(float64(v)))
		} else {
			p.lastArg().Value = event.IntValue(v)
		}
	case "_/a/_/min":
		p.setMin(float32(v))
	case "_/a/_/max":
		p.setMax(float32(v))
	}
}

func (p *messageParser) addUint(path string, v uint64) {
	switch path {
	case "_/ts":
		p.info.Offset = secondsToDuration(float64(v))
	case "_/iid":
		p.info.Instance = v
	case "_/a/_/v":
		if p.argIsSeconds() {
			p.lastArg().Value = event.DurationValue(secondsToDuration(float64(v)))
		} else {
			p.lastArg().Value = event.UintValue(v)
		}
	case "_/a/_/min":
		p.setMin(float32(v))
	case "_/a/_/max":
		p.setMax(float32(v))
	}
}

func (p *messageParser) addFloat(path string, v float64) {
	switch path {
	case "_/ts":
		p.info.Offset = secondsToDuration(v)
	case "_/a/_/v":
		if p.argIsSeconds() {
			p.lastArg().Value = event.DurationValue(secondsToDuration(v))
		} else {
			p.lastArg().Value = event.FloatValue(float32(v))
		}
	case "_/a/_/min":
		p.setMin(float32(v))
	case "_/a/_/max":
		p.setMax(float32(v))
	}
}

func (p *messageParser) addString(path, v string) {
	switch path {
	case "_/f":
		p.info.Format = v
	case "_/lvl":
		p.info.Severity = event.ParseSeverity(v)
	case "_/src":
		p.info.Source = identifier.Clean(v)
	case "_/tag":
		p.info.Tag = identifier.Clean(v)
	case "_/a/_/n":
		p.lastArg().Name = identifier.Clean(v)
	case "_/a/_/t":
		p.lastArg().Tag = identifier.Clean(v)
	case "_/a/_/u":
		if v == "s" && len(p.unitSecs) > 0 {
			p.unitSecs[len(p.unitSecs)-1] = true
		}
	case "_/a/_/v":
		p.lastArg().Value = event.StringValue(v)
	}
}

func (p *messageParser) argIsSeconds() bool {
	return len(p.unitSecs) > 0 && p.unitSecs[len(p.unitSecs)-1]
}

func (p *messageParser) setMin(v float32) {
	if !math.IsNaN(float64(v)) {
		f := v
		p.lastArg().Min = &f
	}
}

func (p *messageParser) setMax(v float32) {
	if !math.IsNaN(float64(v)) {
		f := v
		p.lastArg().Max = &f
	}
}

func (p *messageParser) emit(c Consumer) {
	info := p.info
	info.Args = append([]event.MessageArg(nil), p.info.Args...)
	c.Consume(&info)
}

// declare state

type declareStateParser struct {
	baseParser
	info event.DeclareStateInfo
}

func (p *declareStateParser) reset() { p.info = event.DeclareStateInfo{} }

func (p *declareStateParser) addInt(path string, v int64) {
	if path == "_/ts" {
		p.info.Offset = secondsToDuration(float64(v))
	}
}

func (p *declareStateParser) addUint(path string, v uint64) {
	switch path {
	case "_/ts":
		p.info.Offset = secondsToDuration(float64(v))
	case "_/iid":
		p.info.Instance = v
	}
}

func (p *declareStateParser) addFloat(path string, v float64) {
	if path == "_/ts" {
		p.info.Offset = secondsToDuration(v)
	}
}

func (p *declareStateParser) addString(path, v string) {
	switch path {
	case "_/src":
		p.info.Source = identifier.Clean(v)
	case "_/tag":
		p.info.StateTag = identifier.Clean(v)
	case "_/bgn":
		p.info.BeginTag = identifier.Clean(v)
	case "_/end":
		p.info.EndTag = identifier.Clean(v)
	}
}

func (p *declareStateParser) emit(c Consumer) {
	info := p.info
	c.Consume(&info)
}

// active state

type activeStateParser struct {
	baseParser
	info event.ActiveStateInfo
}

func (p *activeStateParser) reset() { p.info = event.ActiveStateInfo{} }

func (p *activeStateParser) addInt(path string, v int64) {
	if path == "_/ts" {
		p.info.Offset = secondsToDuration(float64(v))
	}
}

func (p *activeStateParser) addUint(path string, v uint64) {
	if path == "_/ts" {
		p.info.Offset = secondsToDuration(float64(v))
	}
}

func (p *activeStateParser) addFloat(path string, v float64) {
	if path == "_/ts" {
		p.info.Offset = secondsToDuration(v)
	}
}

func (p *activeStateParser) addString(path, v string) {
	switch path {
	case "_/src":
		p.info.Source = identifier.Clean(v)
	case "_/tag":
		p.info.Tag = identifier.Clean(v)
	}
}

func (p *activeStateParser) emit(c Consumer) {
	info := p.info
	c.Consume(&info)
}

// interval

type intervalParser struct {
	baseParser
	info event.IntervalInfo
}

func (p *intervalParser) reset() { p.info = event.IntervalInfo{} }

func (p *intervalParser) addInt(path string, v int64) {
	switch path {
	case "_/ts":
		p.info.Offset = secondsToDuration(float64(v))
	case "_/tns":
		p.info.Duration = time.Duration(v)
	}
}

func (p *intervalParser) addUint(path string, v uint64) {
	switch path {
	case "_/ts":
		p.info.Offset = secondsToDuration(float64(v))
	case "_/iid":
		p.info.Instance = v
	case "_/tns":
		p.info.Duration = time.Duration(v)
	}
}

func (p *intervalParser) addFloat(path string, v float64) {
	switch path {
	case "_/ts":
		p.info.Offset = secondsToDuration(v)
	case "_/tns":
		p.info.Duration = time.Duration(v)
	}
}

func (p *intervalParser) addString(path, v string) {
	if path == "_/tag" {
		p.info.Tag = identifier.Clean(v)
	}
}

func (p *intervalParser) emit(c Consumer) {
	info := p.info
	c.Consume(&info)
}

// heartbeat

type heartbeatParser struct {
	baseParser
	info event.HeartbeatInfo
}

func (p *heartbeatParser) reset() { p.info = event.HeartbeatInfo{} }

func (p *heartbeatParser) addInt(path string, v int64) {
	if path == "_/ts" {
		p.info.Offset = secondsToDuration(float64(v))
	}
}

func (p *heartbeatParser) addUint(path string, v uint64) {
	if path == "_/ts" {
		p.info.Offset = secondsToDuration(float64(v))
	}
}

func (p *heartbeatParser) addFloat(path string, v float64) {
	if path == "_/ts" {
		p.info.Offset = secondsToDuration(v)
	}
}

func (p *heartbeatParser) emit(c Consumer) {
	info := p.info
	c.Consume(&info)
}

// finish

type finishParser struct {
	baseParser
	info event.FinishInfo
}

func (p *finishParser) reset() { p.info = event.FinishInfo{} }

func (p *finishParser) addBool(path string, v bool) {
	if path == "_/clean" {
		p.info.Clean = v
	}
}

func (p *finishParser) addInt(path string, v int64) {
	if path == "_/ts" {
		p.info.Offset = secondsToDuration(float64(v))
	}
}

func (p *finishParser) addUint(path string, v uint64) {
	if path == "_/ts" {
		p.info.Offset = secondsToDuration(float64(v))
	}
}

func (p *finishParser) addFloat(path string, v float64) {
	if path == "_/ts" {
		p.info.Offset = secondsToDuration(v)
	}
}

func (p *finishParser) emit(c Consumer) {
	info := p.info
	c.Consume(&info)
}

// description

type descriptionParser struct {
	baseParser
	info event.DescriptionInfo
}

func (p *descriptionParser) reset() { p.info = event.DescriptionInfo{} }

func (p *descriptionParser) addInt(path string, v int64) {
	if path == "_/ts" {
		p.info.Offset = secondsToDuration(float64(v))
	}
}

func (p *descriptionParser) addUint(path string, v uint64) {
	switch path {
	case "_/ts":
		p.info.Offset = secondsToDuration(float64(v))
	case "_/iid":
		p.info.Instance = v
	}
}

func (p *descriptionParser) addFloat(path string, v float64) {
	if path == "_/ts" {
		p.info.Offset = secondsToDuration(v)
	}
}

func (p *descriptionParser) addString(path, v string) {
	switch path {
	case "_/src":
		p.info.Source = identifier.Clean(v)
	case "_/dn":
		p.info.DisplayName = v
	case "_/desc":
		p.info.Description = v
	}
}

func (p *descriptionParser) emit(c Consumer) {
	info := p.info
	c.Consume(&info)
}
