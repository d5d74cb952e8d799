package parser

import "sync/atomic"

// Stats counts parser activity. Counters are cumulative for the lifetime of
// the parser and safe to read from other goroutines.
type Stats struct {
	Records  uint64
	Failures uint64
}

// recordBuilder dispatches path-keyed tokens to the sub-parser selected by
// the record discriminator at path "_/t". Records with an unknown
// discriminator are skipped whole.
type recordBuilder struct {
	consumer Consumer
	parsers  map[string]recordParser
	current  recordParser

	records  atomic.Uint64
	failures atomic.Uint64
}

func newRecordBuilder(consumer Consumer) *recordBuilder {
	return &recordBuilder{
		consumer: consumer,
		parsers: map[string]recordParser{
			"begin": &beginParser{},
			"m":     &messageParser{},
			"ds":    &declareStateParser{},
			"as":    &activeStateParser{},
			"i":     &intervalParser{},
			"hb":    &heartbeatParser{},
			"end":   &finishParser{},
			"d":     &descriptionParser{},
		},
	}
}

func (b *recordBuilder) Begin() {}

func (b *recordBuilder) AddObject(path string) {
	switch path {
	case "_":
		b.current = nil
	case "_/a/_":
		if b.current != nil {
			b.current.addArg()
		}
	}
}

func (b *recordBuilder) FinishObject(path string) {
	if path == "_" && b.current != nil {
		b.current.emit(b.consumer)
		b.current = nil
		b.records.Add(1)
	}
}

func (b *recordBuilder) AddNull(string) {}

func (b *recordBuilder) AddBool(path string, v bool) {
	if b.current != nil {
		b.current.addBool(path, v)
	}
}

func (b *recordBuilder) AddInt(path string, v int64) {
	if b.current != nil {
		b.current.addInt(path, v)
	}
}

func (b *recordBuilder) AddUint(path string, v uint64) {
	if b.current != nil {
		b.current.addUint(path, v)
	}
}

func (b *recordBuilder) AddFloat(path string, v float64) {
	if b.current != nil {
		b.current.addFloat(path, v)
	}
}

func (b *recordBuilder) AddString(path string, v string) {
	if path == "_/t" {
		b.current = b.parsers[v]
		if b.current != nil {
			b.current.reset()
		}
		return
	}
	if b.current != nil {
		b.current.addString(path, v)
	}
}

func (b *recordBuilder) Finish() {}

func (b *recordBuilder) Failed() {
	b.current = nil
	b.failures.Add(1)
}

// Parser turns a chunked byte stream of JSON log records into events
// delivered, in input order, to the bound consumer.
type Parser struct {
	tok     *Tokenizer
	builder *recordBuilder
}

// New returns a parser bound to the given consumer.
func New(consumer Consumer) *Parser {
	b := newRecordBuilder(consumer)
	return &Parser{tok: NewTokenizer(b), builder: b}
}

// Consume feeds one chunk of input bytes.
func (p *Parser) Consume(data []byte) {
	p.tok.Consume(data)
}

// Finish signals clean end of input. A trailing partial record is dropped.
func (p *Parser) Finish() {
	p.tok.Finish()
}

// Stats returns cumulative record and failure counts.
func (p *Parser) Stats() Stats {
	return Stats{
		Records:  p.builder.records.Load(),
		Failures: p.builder.failures.Load(),
	}
}
