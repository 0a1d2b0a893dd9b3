package gotreesitter

import (
	"math"
	"unsafe"
)

// Point is a row/column position in source text. Columns count code units
// of the input encoding (bytes for UTF-8 and UTF-16 alike).
type Point struct {
	Row    uint32
	Column uint32
}

// Token is a lexed token with position info. Custom TokenSources produce
// Tokens; a Token with Symbol == SymbolEnd marks the end of input.
type Token struct {
	Symbol     Symbol
	Text       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
}

func bytesToStringNoCopy(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// lexedToken is what the lexer hands to the parser for one lookahead.
type lexedToken struct {
	symbol         Symbol
	padding        Length
	size           Length
	lookaheadBytes uint32
	keyword        Symbol // keyword candidate when symbol is the word token
	external       bool
	externalState  []byte
}

var fullRange = Range{
	StartByte:  0,
	EndByte:    math.MaxUint32,
	StartPoint: Point{},
	EndPoint:   Point{Row: math.MaxUint32, Column: math.MaxUint32},
}

// lexer tokenizes an Input using the table-driven DFAs of a Language. It
// reads text lazily in chunks, decodes UTF-8 or UTF-16, and jumps over gaps
// between included ranges.
type lexer struct {
	lang  *Language
	input Input

	chunk      []byte
	chunkStart uint32

	pos           Length
	lookahead     rune
	lookaheadSize int
	eof           bool

	ranges   []Range
	rangeIdx int

	tokenStart Length
	tokenEnd   Length
	maxReach   uint32

	// zero-width external tokens are accepted once per position
	lastZeroWidth uint32
	zeroWidthSet  bool

	ext ExternalLexer
}

func newLexer(lang *Language) *lexer {
	l := &lexer{lang: lang, ranges: []Range{fullRange}}
	l.ext.l = l
	return l
}

func (l *lexer) setInput(input Input) {
	l.input = input
	l.chunk = nil
	l.chunkStart = 0
	l.zeroWidthSet = false
}

func (l *lexer) setIncludedRanges(ranges []Range) {
	if len(ranges) == 0 {
		l.ranges = []Range{fullRange}
		return
	}
	l.ranges = ranges
}

// seek moves the lexer to an absolute position, snapping forward into the
// next included range when the position falls in a gap.
func (l *lexer) seek(pos Length) {
	l.pos = pos
	l.eof = false
	l.rangeIdx = 0
	for l.rangeIdx < len(l.ranges) && l.ranges[l.rangeIdx].EndByte <= pos.Bytes {
		l.rangeIdx++
	}
	if l.rangeIdx >= len(l.ranges) {
		l.eof = true
		l.lookahead = 0
		l.lookaheadSize = 0
		return
	}
	if r := l.ranges[l.rangeIdx]; r.StartByte > pos.Bytes {
		l.pos = Length{Bytes: r.StartByte, Extent: r.StartPoint}
	}
	l.decode()
}

func (l *lexer) readChunk() {
	l.chunkStart = l.pos.Bytes
	if l.input.Read == nil {
		l.chunk = nil
		return
	}
	l.chunk = l.input.Read(l.pos.Bytes, l.pos.Extent)
}

// decode loads the character at the current position into lookahead.
func (l *lexer) decode() {
	if l.eof {
		return
	}
	if l.pos.Bytes < l.chunkStart || l.pos.Bytes >= l.chunkStart+uint32(len(l.chunk)) {
		l.readChunk()
	}
	offset := l.pos.Bytes - l.chunkStart
	if int(offset) >= len(l.chunk) {
		l.eof = true
		l.lookahead = 0
		l.lookaheadSize = 0
		l.reach(l.pos.Bytes + 1)
		return
	}
	r, size, needMore := decodeRune(l.chunk[offset:], l.input.Encoding)
	if needMore {
		l.readChunk()
		if len(l.chunk) > 0 {
			r, size, _ = decodeRune(l.chunk, l.input.Encoding)
		}
		if size == 0 {
			size = 1
		}
	}
	if end := l.ranges[l.rangeIdx].EndByte; l.pos.Bytes+uint32(size) > end && end > l.pos.Bytes {
		size = int(end - l.pos.Bytes)
	}
	l.lookahead = r
	l.lookaheadSize = size
	l.reach(l.pos.Bytes + uint32(size))
}

func (l *lexer) reach(b uint32) {
	if b > l.maxReach {
		l.maxReach = b
	}
}

// advance consumes the lookahead character.
func (l *lexer) advance(skip bool) {
	if l.eof {
		return
	}
	size := uint32(l.lookaheadSize)
	if l.lookahead == '\n' {
		l.pos = Length{Bytes: l.pos.Bytes + size, Extent: Point{Row: l.pos.Extent.Row + 1}}
	} else {
		l.pos = Length{Bytes: l.pos.Bytes + size, Extent: Point{Row: l.pos.Extent.Row, Column: l.pos.Extent.Column + size}}
	}
	if r := l.ranges[l.rangeIdx]; l.pos.Bytes >= r.EndByte {
		l.rangeIdx++
		if l.rangeIdx >= len(l.ranges) {
			l.eof = true
			l.lookahead = 0
			l.lookaheadSize = 0
			return
		}
		next := l.ranges[l.rangeIdx]
		l.pos = Length{Bytes: next.StartByte, Extent: next.StartPoint}
	}
	if skip {
		l.tokenStart = l.pos
	}
	l.decode()
}

func (l *lexer) markEnd() {
	l.tokenEnd = l.pos
}

// runDFA runs a lexer DFA from start at the current position and returns the
// accepted symbol, leaving tokenEnd at the end of the longest match. A token
// accept beats a whitespace accept of the same length.
func (l *lexer) runDFA(states []LexState, start int) (sym Symbol, skip, ok bool) {
	if start < 0 || start >= len(states) {
		return 0, false, false
	}
	l.tokenEnd = l.pos
	cur := start
	if st := &states[cur]; st.AcceptToken > 0 || st.Skip {
		sym, skip, ok = st.AcceptToken, st.Skip && st.AcceptToken == 0, true
	}
	for {
		st := &states[cur]
		if l.eof {
			if st.EOF >= 0 && st.EOF < len(states) && st.EOF != cur {
				if ns := &states[st.EOF]; ns.AcceptToken > 0 || ns.Skip {
					sym, skip, ok = ns.AcceptToken, ns.Skip && ns.AcceptToken == 0, true
					l.markEnd()
				}
			}
			break
		}
		next := -1
		for i := range st.Transitions {
			tr := &st.Transitions[i]
			if l.lookahead >= tr.Lo && l.lookahead <= tr.Hi {
				next = tr.NextState
				break
			}
		}
		if next < 0 && st.Default >= 0 {
			next = st.Default
		}
		if next < 0 || next >= len(states) {
			break
		}
		l.advance(false)
		cur = next
		if ns := &states[cur]; ns.AcceptToken > 0 || ns.Skip {
			sym, skip, ok = ns.AcceptToken, ns.Skip && ns.AcceptToken == 0, true
			l.markEnd()
		}
	}
	return sym, skip, ok
}

// next lexes one token at position pos for a parser in state. The padding of
// the token is everything skipped between pos and the token start.
func (l *lexer) next(pos Length, state StateID, externalState []byte) lexedToken {
	mode := l.lang.lexMode(state)
	l.seek(pos)
	l.maxReach = pos.Bytes

	if tok, ok := l.scanExternal(pos, mode, externalState); ok {
		return tok
	}

	for {
		start := l.pos
		if l.eof {
			return lexedToken{
				symbol:         SymbolEnd,
				padding:        start.sub(pos),
				lookaheadBytes: l.lookaheadFrom(start),
			}
		}
		l.tokenStart = start
		sym, skip, ok := l.runDFA(l.lang.LexStates, int(mode.LexState))
		if ok && skip && l.tokenEnd.Bytes > start.Bytes {
			l.seek(l.tokenEnd)
			continue
		}
		if ok && !skip && l.tokenEnd.Bytes > start.Bytes {
			end := l.tokenEnd
			tok := lexedToken{
				symbol:  sym,
				padding: start.sub(pos),
				size:    end.sub(start),
			}
			if sym == l.lang.KeywordCaptureToken && sym != 0 && len(l.lang.KeywordLexStates) > 0 {
				l.seek(start)
				if kw, kwSkip, kwOK := l.runDFA(l.lang.KeywordLexStates, 0); kwOK && !kwSkip && l.tokenEnd == end {
					tok.keyword = kw
				}
			}
			l.tokenEnd = end
			tok.lookaheadBytes = l.lookaheadFrom(end)
			l.seek(end)
			return tok
		}
		return l.errorToken(pos, start, mode)
	}
}

// errorToken consumes characters until the lexer could start a token again
// and returns the skipped span as an ERROR token.
func (l *lexer) errorToken(pos, start Length, mode LexMode) lexedToken {
	l.seek(start)
	l.advance(false)
	for !l.eof {
		at := l.pos
		_, _, ok := l.runDFA(l.lang.LexStates, int(mode.LexState))
		matched := ok && l.tokenEnd.Bytes > at.Bytes
		l.seek(at)
		if matched {
			break
		}
		l.advance(false)
	}
	end := l.pos
	return lexedToken{
		symbol:         errorSymbol,
		padding:        start.sub(pos),
		size:           end.sub(start),
		lookaheadBytes: l.lookaheadFrom(end),
	}
}

func (l *lexer) lookaheadFrom(end Length) uint32 {
	if l.maxReach > end.Bytes {
		return l.maxReach - end.Bytes
	}
	return 0
}

// scanExternal runs the language's external scanner when the lex mode
// enables any external token.
func (l *lexer) scanExternal(pos Length, mode LexMode, externalState []byte) (lexedToken, bool) {
	scanner := l.lang.ExternalScanner
	valid := l.lang.validExternalSymbols(mode.ExternalLexState)
	if scanner == nil || valid == nil {
		return lexedToken{}, false
	}
	payload := scanner.Create()
	defer scanner.Destroy(payload)
	scanner.Deserialize(payload, externalState)

	l.ext.reset()
	l.tokenStart = l.pos
	l.tokenEnd = l.pos
	if !scanner.Scan(payload, &l.ext, valid) || !l.ext.hasResult {
		l.seek(pos)
		return lexedToken{}, false
	}
	start, end := l.tokenStart, l.tokenEnd
	if end.Bytes < start.Bytes {
		end = start
	}
	if end.Bytes == start.Bytes {
		if l.zeroWidthSet && l.lastZeroWidth == start.Bytes {
			l.seek(pos)
			return lexedToken{}, false
		}
		l.zeroWidthSet = true
		l.lastZeroWidth = start.Bytes
	}

	sym := l.ext.resultSymbol
	if int(sym) < len(l.lang.ExternalSymbolMap) {
		sym = l.lang.ExternalSymbolMap[sym]
	}
	buf := make([]byte, externalStateBufferSize)
	n := scanner.Serialize(payload, buf)
	if n < 0 {
		n = 0
	}
	if n > len(buf) {
		n = len(buf)
	}
	tok := lexedToken{
		symbol:         sym,
		padding:        start.sub(pos),
		size:           end.sub(start),
		lookaheadBytes: l.lookaheadFrom(end),
		external:       true,
		externalState:  buf[:n:n],
	}
	l.seek(end)
	return tok, true
}
