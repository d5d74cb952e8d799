package sink

import "github.com/TheEntropyCollective/logtree/pkg/event"

// NullFactory produces sinks that discard everything. Useful as a
// measurement baseline and in tests.
type NullFactory struct{}

func NewNullFactory() *NullFactory { return &NullFactory{} }

func (*NullFactory) MakeStream() Sink { return nullSink{} }
func (*NullFactory) Update()          {}
func (*NullFactory) Close() error     { return nil }

type nullSink struct{}

func (nullSink) Consume(event.Event) {}
