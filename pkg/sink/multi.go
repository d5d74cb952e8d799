package sink

import (
	"errors"

	"github.com/TheEntropyCollective/logtree/pkg/event"
)

// Multi fans every stream out to several factories, so one input can feed
// the terminal renderer and the database at the same time.
type Multi struct {
	factories []Factory
}

// NewMulti returns a factory forwarding to all given factories.
func NewMulti(factories ...Factory) *Multi {
	return &Multi{factories: factories}
}

func (m *Multi) MakeStream() Sink {
	sinks := make([]Sink, len(m.factories))
	for i, f := range m.factories {
		sinks[i] = f.MakeStream()
	}
	return &multiSink{sinks: sinks}
}

func (m *Multi) Update() {
	for _, f := range m.factories {
		f.Update()
	}
}

func (m *Multi) Close() error {
	var errs []error
	for _, f := range m.factories {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type multiSink struct {
	sinks []Sink
}

func (s *multiSink) Consume(ev event.Event) {
	for _, next := range s.sinks {
		next.Consume(ev)
	}
}
