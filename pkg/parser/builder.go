// Package parser translates a chunked byte stream of JSON log records into
// typed stream events. The tokenizer is push-based and re-entrant across
// arbitrary chunk boundaries; records may arrive as elements of one
// top-level array, as a whitespace-separated sequence of objects, or wrapped
// in a {"_": {...}} envelope. A malformed record is dropped and parsing
// resumes at the start of the next record.
package parser

import "github.com/TheEntropyCollective/logtree/pkg/event"

// Consumer receives the reconstructed events of one stream, in order.
type Consumer interface {
	Consume(ev event.Event)
}

// Builder receives typed tokens keyed by slash-joined paths relative to the
// record root. The root object contributes the component "_" and array
// elements are normalized to "_", so the argument name of a message always
// arrives at the constant path "_/a/_/n" regardless of input framing.
type Builder interface {
	// Begin is called once, before the first token of the input.
	Begin()
	// AddObject is called when a nested object opens at the given path.
	AddObject(path string)
	// FinishObject is called when the object at the given path closes. The
	// record root closes with path "_".
	FinishObject(path string)
	AddNull(path string)
	AddBool(path string, v bool)
	AddInt(path string, v int64)
	AddUint(path string, v uint64)
	AddFloat(path string, v float64)
	AddString(path string, v string)
	// Finish is called when the input ends cleanly.
	Finish()
	// Failed is called once for every record dropped due to a syntax error
	// or an oversized token.
	Failed()
}
