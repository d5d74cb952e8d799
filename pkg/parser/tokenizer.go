package parser

import (
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// maxTokenSize bounds the materialized size of any single token. Longer
// tokens abort the current record.
const maxTokenSize = 256

// maxDepth bounds container nesting within one record.
const maxDepth = 32

type tokState int

const (
	stTop         tokState = iota // between records
	stRecFirstKey                 // after a top-level '{', before its first key
	stKeyStr                      // inside a key string
	stColon                       // expecting ':'
	stValue                       // expecting a value
	stValStr                      // inside a string value
	stNumber                      // inside a number
	stLiteral                     // inside true/false/null
	stAfterVal                    // expecting ',' or a container close
	stObjKey                      // expecting '"' of a key or '}'
	stSkip                        // resynchronizing after a failure
)

type frame struct {
	isObj    bool
	comp     string // path component contributed by this container
	key      string // pending key, object frames only
	firstKey bool   // record-root frame whose shape is still undecided
}

// Tokenizer incrementally scans JSON bytes and drives a Builder. All state
// lives in the struct; Consume may be called with chunks split at any byte
// position.
type Tokenizer struct {
	b Builder

	stack   []frame
	state   tokState
	pathStr string

	token   []byte // current string/number/literal text
	inKey   bool
	escape  bool
	unicode []byte // pending \uXXXX hex digits, nil when inactive
	highSur rune   // pending high surrogate, 0 when none

	window    []byte // trailing bytes used for resynchronization
	arrayWrap bool
	begun     bool
	failedRec bool
}

// NewTokenizer returns a tokenizer driving the given builder.
func NewTokenizer(b Builder) *Tokenizer {
	return &Tokenizer{b: b}
}

// Consume scans one chunk of input. It never fails: malformed content drops
// the current record and arms resynchronization.
func (t *Tokenizer) Consume(data []byte) {
	if !t.begun {
		t.begun = true
		t.b.Begin()
	}
	for _, c := range data {
		wasSkipping := t.state == stSkip
		t.consumeByte(c)
		if !wasSkipping && t.state == stSkip {
			// the byte that broke the record may open the next one
			t.scanResync(c)
		}
	}
}

// Finish flushes a trailing number token and reports clean end of input to
// the builder. An input ending mid-record drops that record first.
func (t *Tokenizer) Finish() {
	if t.state == stNumber {
		t.finishNumber()
	}
	if t.state != stTop && t.state != stSkip {
		t.fail()
	}
	t.b.Finish()
}

func (t *Tokenizer) consumeByte(c byte) {
	switch t.state {
	case stSkip:
		t.scanResync(c)
	case stTop:
		t.topByte(c)
	case stRecFirstKey:
		switch {
		case isSpace(c):
		case c == '"':
			t.startString(true)
		case c == '}':
			// empty record, nothing to emit
			t.stack = t.stack[:0]
			t.rebuildPath()
			t.state = stTop
		default:
			t.fail()
		}
	case stObjKey:
		switch {
		case isSpace(c):
		case c == '"':
			t.startString(true)
		case c == '}':
			t.closeContainer(true)
		default:
			t.fail()
		}
	case stKeyStr, stValStr:
		t.stringByte(c)
	case stColon:
		switch {
		case isSpace(c):
		case c == ':':
			t.state = stValue
		default:
			t.fail()
		}
	case stValue:
		t.valueByte(c)
	case stNumber:
		if isNumberByte(c) {
			t.tokenByte(c)
			return
		}
		if !t.finishNumber() {
			return
		}
		t.consumeByte(c)
	case stLiteral:
		if c >= 'a' && c <= 'z' {
			t.tokenByte(c)
			return
		}
		if !t.finishLiteral() {
			return
		}
		t.consumeByte(c)
	case stAfterVal:
		switch {
		case isSpace(c):
		case c == ',':
			top := &t.stack[len(t.stack)-1]
			if top.isObj {
				t.state = stObjKey
			} else {
				t.state = stValue
			}
		case c == '}':
			t.closeContainer(true)
		case c == ']':
			t.closeContainer(false)
		default:
			t.fail()
		}
	}
}

func (t *Tokenizer) topByte(c byte) {
	switch {
	case isSpace(c) || c == ',':
	case c == '[':
		t.arrayWrap = true
	case c == ']':
		t.arrayWrap = false
	case c == '{':
		if t.arrayWrap {
			// array elements are records rooted at "_"
			t.push(frame{isObj: true, comp: "_"})
			t.b.AddObject(t.pathStr)
			t.state = stObjKey
		} else {
			// shape decided when the first key is read
			t.push(frame{isObj: true, firstKey: true})
			t.state = stRecFirstKey
		}
	default:
		t.fail()
	}
}

func (t *Tokenizer) valueByte(c byte) {
	switch {
	case isSpace(c):
	case c == '"':
		t.startString(false)
	case c == '{':
		t.push(frame{isObj: true, comp: t.childComp()})
		t.b.AddObject(t.pathStr)
		t.state = stObjKey
	case c == '[':
		t.push(frame{isObj: false, comp: t.childComp()})
		t.state = stValue
	case c == ']':
		// empty array
		top := t.stack[len(t.stack)-1]
		if top.isObj {
			t.fail()
			return
		}
		t.closeContainer(false)
	case c == '-' || (c >= '0' && c <= '9'):
		t.token = t.token[:0]
		t.token = append(t.token, c)
		t.state = stNumber
	case c == 't' || c == 'f' || c == 'n':
		t.token = t.token[:0]
		t.token = append(t.token, c)
		t.state = stLiteral
	default:
		t.fail()
	}
}

// childComp returns the path component a child value of the current
// container receives.
func (t *Tokenizer) childComp() string {
	top := &t.stack[len(t.stack)-1]
	if top.isObj {
		return top.key
	}
	return "_"
}

func (t *Tokenizer) valuePath() string {
	comp := t.childComp()
	if t.pathStr == "" {
		return comp
	}
	return t.pathStr + "/" + comp
}

func (t *Tokenizer) push(f frame) {
	if len(t.stack) >= maxDepth {
		t.fail()
		return
	}
	t.stack = append(t.stack, f)
	t.rebuildPath()
}

func (t *Tokenizer) rebuildPath() {
	var sb strings.Builder
	for _, f := range t.stack {
		if f.comp == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('/')
		}
		sb.WriteString(f.comp)
	}
	t.pathStr = sb.String()
}

func (t *Tokenizer) closeContainer(obj bool) {
	if len(t.stack) == 0 {
		t.fail()
		return
	}
	top := t.stack[len(t.stack)-1]
	if top.isObj != obj {
		t.fail()
		return
	}
	if top.isObj && top.comp != "" {
		t.b.FinishObject(t.pathStr)
	}
	t.stack = t.stack[:len(t.stack)-1]
	t.rebuildPath()
	if len(t.stack) == 0 {
		t.state = stTop
		t.failedRec = false
	} else {
		t.state = stAfterVal
	}
}

func (t *Tokenizer) startString(key bool) {
	t.token = t.token[:0]
	t.inKey = key
	t.escape = false
	t.unicode = nil
	t.highSur = 0
	if key {
		t.state = stKeyStr
	} else {
		t.state = stValStr
	}
}

func (t *Tokenizer) stringByte(c byte) {
	if t.unicode != nil {
		if !isHexByte(c) {
			t.fail()
			return
		}
		t.unicode = append(t.unicode, c)
		if len(t.unicode) == 4 {
			t.finishUnicodeEscape()
		}
		return
	}
	if t.escape {
		t.escape = false
		switch c {
		case '"', '\\', '/':
			t.tokenByte(c)
		case 'b':
			t.tokenByte('\b')
		case 'f':
			t.tokenByte('\f')
		case 'n':
			t.tokenByte('\n')
		case 'r':
			t.tokenByte('\r')
		case 't':
			t.tokenByte('\t')
		case 'u':
			t.unicode = make([]byte, 0, 4)
		default:
			t.fail()
		}
		return
	}
	switch c {
	case '\\':
		t.escape = true
	case '"':
		t.finishString()
	default:
		t.tokenByte(c)
	}
}

func (t *Tokenizer) finishUnicodeEscape() {
	n, err := strconv.ParseUint(string(t.unicode), 16, 32)
	t.unicode = nil
	if err != nil {
		t.fail()
		return
	}
	r := rune(n)
	if utf16.IsSurrogate(r) {
		if t.highSur != 0 {
			r = utf16.DecodeRune(t.highSur, r)
			t.highSur = 0
		} else {
			t.highSur = r
			return
		}
	}
	var buf [4]byte
	for _, b := range buf[:utf8.EncodeRune(buf[:], r)] {
		t.tokenByte(b)
	}
}

func (t *Tokenizer) tokenByte(c byte) {
	if len(t.token) >= maxTokenSize {
		t.fail()
		return
	}
	t.token = append(t.token, c)
}

func (t *Tokenizer) finishString() {
	text := string(t.token)
	if t.inKey {
		top := &t.stack[len(t.stack)-1]
		if top.firstKey {
			top.firstKey = false
			if text != "_" {
				// bare record object: the object itself is the record root
				top.comp = "_"
				t.rebuildPath()
				t.b.AddObject(t.pathStr)
			}
		}
		top.key = text
		t.state = stColon
		return
	}
	t.b.AddString(t.valuePath(), text)
	t.state = stAfterVal
}

func (t *Tokenizer) finishNumber() bool {
	text := string(t.token)
	path := t.valuePath()
	if strings.ContainsAny(text, ".eE") {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			t.fail()
			return false
		}
		t.b.AddFloat(path, f)
	} else if strings.HasPrefix(text, "-") {
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			t.fail()
			return false
		}
		t.b.AddInt(path, i)
	} else {
		u, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			t.fail()
			return false
		}
		t.b.AddUint(path, u)
	}
	t.state = stAfterVal
	return true
}

func (t *Tokenizer) finishLiteral() bool {
	path := t.valuePath()
	switch string(t.token) {
	case "true":
		t.b.AddBool(path, true)
	case "false":
		t.b.AddBool(path, false)
	case "null":
		t.b.AddNull(path)
	default:
		t.fail()
		return false
	}
	t.state = stAfterVal
	return true
}

// fail drops the current record and arms resynchronization. Failed is
// reported once per dropped record.
func (t *Tokenizer) fail() {
	if !t.failedRec {
		t.failedRec = true
		t.b.Failed()
	}
	t.stack = t.stack[:0]
	t.rebuildPath()
	t.token = t.token[:0]
	t.unicode = nil
	t.highSur = 0
	t.escape = false
	t.window = t.window[:0]
	t.state = stSkip
}

// resync patterns: the standalone record envelope and the bare record form.
var (
	resyncWrapped = []byte(`{"_"`)
	resyncBare    = []byte(`{"t":"`)
)

func (t *Tokenizer) scanResync(c byte) {
	t.window = append(t.window, c)
	if len(t.window) > len(resyncBare) {
		copy(t.window, t.window[1:])
		t.window = t.window[:len(resyncBare)]
	}
	for _, pat := range [][]byte{resyncWrapped, resyncBare} {
		if hasSuffix(t.window, pat) {
			t.window = t.window[:0]
			t.state = stTop
			t.failedRec = false
			for _, b := range pat {
				t.consumeByte(b)
			}
			return
		}
	}
}

func hasSuffix(s, suffix []byte) bool {
	if len(s) < len(suffix) {
		return false
	}
	s = s[len(s)-len(suffix):]
	for i := range suffix {
		if s[i] != suffix[i] {
			return false
		}
	}
	return true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isNumberByte(c byte) bool {
	return (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E'
}

func isHexByte(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
