// Package reader pumps bytes from an input source into the JSON parser and
// ticks the sink factory. One Reader serves exactly one producer stream;
// the TCP server spawns a Reader per accepted connection against a shared,
// lock-wrapped factory.
package reader

import (
	"errors"
	"io"

	"github.com/TheEntropyCollective/logtree/pkg/logging"
	"github.com/TheEntropyCollective/logtree/pkg/parser"
	"github.com/TheEntropyCollective/logtree/pkg/sink"
)

// chunkSize is the fixed read size of the pump loop.
const chunkSize = 4096

// Reader pumps one byte source into one parsed stream.
type Reader struct {
	src     io.Reader
	parser  *parser.Parser
	session *sink.Session
	factory sink.Factory
	log     *logging.Logger
}

// New binds a source to a fresh stream of the given factory.
func New(src io.Reader, factory sink.Factory, log *logging.Logger) *Reader {
	session := sink.NewSession(factory.MakeStream())
	return &Reader{
		src:     src,
		parser:  parser.New(session),
		session: session,
		factory: factory,
		log:     log.WithComponent("reader"),
	}
}

// Run pumps until EOF or a source error. It returns true on clean EOF and
// false when the source hard-fails; either way the stream session is
// closed, so an abruptly disconnected producer still yields an unclean
// finish event.
func (r *Reader) Run() bool {
	buf := make([]byte, chunkSize)
	for {
		n, err := r.src.Read(buf)
		if n > 0 {
			r.parser.Consume(buf[:n])
		}
		r.factory.Update()
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.parser.Finish()
				r.session.Close()
				return true
			}
			r.log.Error("input source failed", map[string]interface{}{"error": err.Error()})
			r.session.Close()
			return false
		}
	}
}

// Stats returns the parser counters of this reader.
func (r *Reader) Stats() parser.Stats {
	return r.parser.Stats()
}
