// Package sink defines the per-stream consumers of reconstructed log events
// and the factories that own sink-wide resources. It also provides the
// generic building blocks between the parser and the concrete sinks: the
// session wrapper, the interval aggregator, a severity filter, and the
// null, line-writer, locking and fan-out variants.
package sink

import "github.com/TheEntropyCollective/logtree/pkg/event"

// Sink consumes the events of one stream, in order. Implementations are
// single-threaded; wrap the owning factory with Locked when several readers
// share it.
type Sink interface {
	Consume(ev event.Event)
}

// Factory produces stream sinks and owns the resources they share (database
// connection, output device). Update is ticked periodically by the reader
// loop; Close releases the shared resources.
type Factory interface {
	MakeStream() Sink
	Update()
	Close() error
}
