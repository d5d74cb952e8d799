// Package identifier implements the short interned labels used throughout
// the log event model for sources, tags and argument names.
//
// An identifier is at most 10 characters long and restricted to a 63
// character alphabet (letters, digits and underscore, ordered by letter
// frequency). Every identifier has a stable unsigned integer encoding
// obtained by packing the 6-bit alphabet positions of its characters, which
// makes identifiers cheap map keys without interning tables.
package identifier

import (
	"fmt"
	"strings"
)

// MaxLength is the maximum number of characters in an identifier.
const MaxLength = 10

// Alphabet is the restricted identifier character set, ordered so that the
// most frequent English letters get the smallest encodings.
const Alphabet = "_etaoinsrhldcumfpgwybvkxjqzTAISOWHBCMFPDRLEGNYUKVJQXZ0123456789"

// padCode marks character positions past the end of the identifier in the
// packed integer representation.
const padCode = 0x3F

var charCode = func() map[byte]uint64 {
	m := make(map[byte]uint64, len(Alphabet))
	for i := 0; i < len(Alphabet); i++ {
		m[Alphabet[i]] = uint64(i)
	}
	return m
}()

// Identifier is a short label with value equality. The zero value is the
// empty identifier.
type Identifier string

// New validates s and returns it as an Identifier.
func New(s string) (Identifier, error) {
	if len(s) > MaxLength {
		return "", fmt.Errorf("identifier %q is longer than %d characters", s, MaxLength)
	}
	if i := strings.IndexFunc(s, func(r rune) bool { return !isAlphabet(r) }); i >= 0 {
		return "", fmt.Errorf("identifier %q contains invalid character %q", s, s[i])
	}
	return Identifier(s), nil
}

// Clean returns the identifier obtained from s by dropping characters
// outside the alphabet and truncating to MaxLength. Producers occasionally
// send labels with stray punctuation; parsing must not reject the record
// over it.
func Clean(s string) Identifier {
	var b strings.Builder
	for _, r := range s {
		if b.Len() == MaxLength {
			break
		}
		if isAlphabet(r) {
			b.WriteRune(r)
		}
	}
	return Identifier(b.String())
}

func isAlphabet(r rune) bool {
	return r < 128 && hasCode(byte(r))
}

func hasCode(c byte) bool {
	_, ok := charCode[c]
	return ok
}

// IsZero reports whether the identifier is empty.
func (id Identifier) IsZero() bool {
	return id == ""
}

// String returns the identifier text.
func (id Identifier) String() string {
	return string(id)
}

// Value returns the packed unsigned integer encoding of the identifier.
// Each character contributes 6 bits; positions past the end of the text are
// filled with a pad code, so distinct identifiers always have distinct
// values and the empty identifier is distinct from "_".
func (id Identifier) Value() uint64 {
	var v uint64
	for i := 0; i < MaxLength; i++ {
		code := uint64(padCode)
		if i < len(id) {
			if c, ok := charCode[id[i]]; ok {
				code = c
			}
		}
		v = v<<6 | code
	}
	return v
}

// Value returns the packed encoding of s without constructing an
// Identifier. Useful for building lookup tables keyed by encoded values.
func Value(s string) uint64 {
	return Identifier(s).Value()
}
