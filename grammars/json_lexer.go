package grammars

import (
	"fmt"

	"github.com/odvcencio/sitter/gotreesitter"
)

// JSONTokenSource is a hand-written JSON scanner that feeds the parser
// directly. It emits punctuation and literals as single tokens and splits
// strings into open quote, string_content / escape_sequence chunks, and
// close quote. Comments are recognized when the language defines a
// "comment" token.
type JSONTokenSource struct {
	cur     sourceCursor
	pending []gotreesitter.Token

	lbrace, rbrace    gotreesitter.Symbol
	lbrack, rbrack    gotreesitter.Symbol
	colon, comma      gotreesitter.Symbol
	quote             gotreesitter.Symbol
	content, escape   gotreesitter.Symbol
	number            gotreesitter.Symbol
	trueSym, falseSym gotreesitter.Symbol
	null              gotreesitter.Symbol
	comment           gotreesitter.Symbol
}

// NewJSONTokenSource creates a token source for JSON.
func NewJSONTokenSource(src []byte, lang *gotreesitter.Language) (*JSONTokenSource, error) {
	if lang == nil {
		return nil, fmt.Errorf("json lexer: language is nil")
	}
	tl := newTokenLookup(lang, "json")
	ts := &JSONTokenSource{
		cur:      newSourceCursor(src),
		lbrace:   tl.require("{"),
		rbrace:   tl.require("}"),
		lbrack:   tl.require("["),
		rbrack:   tl.require("]"),
		colon:    tl.require(":"),
		comma:    tl.require(","),
		quote:    tl.require(`"`),
		content:  tl.require("string_content"),
		escape:   tl.require("escape_sequence"),
		number:   tl.require("number"),
		trueSym:  tl.require("true"),
		falseSym: tl.require("false"),
		null:     tl.require("null"),
		comment:  tl.optional("comment"),
	}
	if err := tl.err(); err != nil {
		return nil, err
	}
	return ts, nil
}

// NewJSONTokenSourceOrEOF returns a token source for callers that cannot
// surface constructor errors through their API.
func NewJSONTokenSourceOrEOF(src []byte, lang *gotreesitter.Language) gotreesitter.TokenSource {
	ts, err := NewJSONTokenSource(src, lang)
	if err != nil {
		return tokenSourceInitError{sourceLen: uint32(len(src))}
	}
	return ts
}

// Next returns the next token. Unrecognized bytes come back as skipped text:
// symbol 0 with a non-empty span.
func (ts *JSONTokenSource) Next() gotreesitter.Token {
	if len(ts.pending) > 0 {
		tok := ts.pending[0]
		ts.pending = ts.pending[1:]
		return tok
	}
	c := &ts.cur
	c.skipWhitespace()
	if c.eof() {
		return ts.eofToken()
	}

	switch b := c.peekByte(); b {
	case '{':
		return ts.single(ts.lbrace)
	case '}':
		return ts.single(ts.rbrace)
	case '[':
		return ts.single(ts.lbrack)
	case ']':
		return ts.single(ts.rbrack)
	case ':':
		return ts.single(ts.colon)
	case ',':
		return ts.single(ts.comma)
	case '"':
		return ts.stringTokens()
	case '/':
		if tok, ok := ts.commentToken(); ok {
			return tok
		}
	case 't':
		if tok, ok := ts.literal("true", ts.trueSym); ok {
			return tok
		}
	case 'f':
		if tok, ok := ts.literal("false", ts.falseSym); ok {
			return tok
		}
	case 'n':
		if tok, ok := ts.literal("null", ts.null); ok {
			return tok
		}
	default:
		if b == '-' || isASCIIDigit(b) {
			if tok, ok := ts.numberToken(); ok {
				return tok
			}
		}
	}
	return ts.unknown()
}

// SkipToByte discards buffered tokens and resumes scanning at offset.
func (ts *JSONTokenSource) SkipToByte(offset uint32) gotreesitter.Token {
	ts.pending = nil
	ts.cur.seek(int(offset))
	return ts.Next()
}

func (ts *JSONTokenSource) single(sym gotreesitter.Symbol) gotreesitter.Token {
	c := &ts.cur
	start, sp := c.offset, c.point()
	c.advanceByte()
	return makeToken(sym, c.src, start, c.offset, sp, c.point())
}

func (ts *JSONTokenSource) unknown() gotreesitter.Token {
	c := &ts.cur
	start, sp := c.offset, c.point()
	c.advanceRune()
	return makeToken(0, c.src, start, c.offset, sp, c.point())
}

func (ts *JSONTokenSource) stringTokens() gotreesitter.Token {
	c := &ts.cur
	open := ts.single(ts.quote)

	segStart, segPoint := c.offset, c.point()
	flush := func() {
		if segStart < c.offset {
			ts.pending = append(ts.pending, makeToken(ts.content, c.src, segStart, c.offset, segPoint, c.point()))
		}
	}
	for !c.eof() {
		switch c.peekByte() {
		case '"':
			flush()
			ts.pending = append(ts.pending, ts.single(ts.quote))
			return open
		case '\n':
			// Strings cannot span lines; leave the newline to the parser.
			flush()
			return open
		case '\\':
			flush()
			escStart, escPoint := c.offset, c.point()
			c.advanceByte()
			if c.peekByte() == 'u' {
				c.advanceByte()
				for i := 0; i < 4 && isASCIIHex(c.peekByte()); i++ {
					c.advanceByte()
				}
			} else {
				c.advanceRune()
			}
			ts.pending = append(ts.pending, makeToken(ts.escape, c.src, escStart, c.offset, escPoint, c.point()))
			segStart, segPoint = c.offset, c.point()
		default:
			c.advanceRune()
		}
	}
	flush()
	return open
}

func (ts *JSONTokenSource) numberToken() (gotreesitter.Token, bool) {
	c := &ts.cur
	saved := *c
	start, sp := c.offset, c.point()
	fail := func() (gotreesitter.Token, bool) {
		*c = saved
		return gotreesitter.Token{}, false
	}
	digits := func() int {
		n := 0
		for isASCIIDigit(c.peekByte()) {
			c.advanceByte()
			n++
		}
		return n
	}

	if c.peekByte() == '-' {
		c.advanceByte()
	}
	switch {
	case c.peekByte() == '0':
		c.advanceByte()
	case digits() == 0:
		return fail()
	}
	if c.peekByte() == '.' {
		c.advanceByte()
		if digits() == 0 {
			return fail()
		}
	}
	if b := c.peekByte(); b == 'e' || b == 'E' {
		c.advanceByte()
		if b := c.peekByte(); b == '+' || b == '-' {
			c.advanceByte()
		}
		if digits() == 0 {
			return fail()
		}
	}
	return makeToken(ts.number, c.src, start, c.offset, sp, c.point()), true
}

func (ts *JSONTokenSource) literal(lit string, sym gotreesitter.Symbol) (gotreesitter.Token, bool) {
	c := &ts.cur
	end := c.offset + len(lit)
	if end > len(c.src) || string(c.src[c.offset:end]) != lit {
		return gotreesitter.Token{}, false
	}
	if end < len(c.src) && isASCIIWordPart(c.src[end]) {
		return gotreesitter.Token{}, false
	}
	start, sp := c.offset, c.point()
	for c.offset < end {
		c.advanceByte()
	}
	return makeToken(sym, c.src, start, c.offset, sp, c.point()), true
}

func (ts *JSONTokenSource) commentToken() (gotreesitter.Token, bool) {
	c := &ts.cur
	if ts.comment == 0 {
		return gotreesitter.Token{}, false
	}
	start, sp := c.offset, c.point()
	switch c.peekAt(1) {
	case '/':
		for !c.eof() && c.peekByte() != '\n' {
			c.advanceRune()
		}
	case '*':
		c.advanceByte()
		c.advanceByte()
		for !c.eof() {
			if c.peekByte() == '*' && c.peekAt(1) == '/' {
				c.advanceByte()
				c.advanceByte()
				break
			}
			c.advanceRune()
		}
	default:
		return gotreesitter.Token{}, false
	}
	return makeToken(ts.comment, c.src, start, c.offset, sp, c.point()), true
}

func (ts *JSONTokenSource) eofToken() gotreesitter.Token {
	n := len(ts.cur.src)
	pt := ts.cur.point()
	return makeToken(0, ts.cur.src, n, n, pt, pt)
}
