package grammars

import (
	"fmt"
	"unicode/utf8"

	"github.com/odvcencio/sitter/gotreesitter"
)

// sourceCursor tracks byte offset and row/column while scanning source bytes.
// Columns count bytes, matching the parser's points.
type sourceCursor struct {
	src    []byte
	offset int
	row    uint32
	col    uint32
}

func newSourceCursor(src []byte) sourceCursor {
	return sourceCursor{src: src}
}

func (c *sourceCursor) eof() bool {
	return c.offset >= len(c.src)
}

func (c *sourceCursor) point() gotreesitter.Point {
	return gotreesitter.Point{Row: c.row, Column: c.col}
}

func (c *sourceCursor) peekByte() byte {
	if c.eof() {
		return 0
	}
	return c.src[c.offset]
}

func (c *sourceCursor) peekAt(i int) byte {
	if c.offset+i >= len(c.src) {
		return 0
	}
	return c.src[c.offset+i]
}

func (c *sourceCursor) advanceByte() {
	if c.eof() {
		return
	}
	b := c.src[c.offset]
	c.offset++
	if b == '\n' {
		c.row++
		c.col = 0
		return
	}
	c.col++
}

func (c *sourceCursor) advanceRune() {
	if c.eof() {
		return
	}
	r, size := utf8.DecodeRune(c.src[c.offset:])
	c.offset += size
	if r == '\n' {
		c.row++
		c.col = 0
		return
	}
	c.col += uint32(size)
}

// seek moves to target, rescanning from the start when target is behind.
func (c *sourceCursor) seek(target int) {
	target = max(0, min(target, len(c.src)))
	if target < c.offset {
		*c = newSourceCursor(c.src)
	}
	for c.offset < target {
		c.advanceRune()
	}
}

func (c *sourceCursor) skipWhitespace() {
	for !c.eof() {
		switch c.peekByte() {
		case ' ', '\t', '\n', '\r', '\f':
			c.advanceByte()
		default:
			return
		}
	}
}

func isASCIIDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isASCIIHex(b byte) bool {
	return isASCIIDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func isASCIIWordPart(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || isASCIIDigit(b) || b == '_' || b == '$'
}

func makeToken(sym gotreesitter.Symbol, src []byte, startOffset, endOffset int, startPoint, endPoint gotreesitter.Point) gotreesitter.Token {
	return gotreesitter.Token{
		Symbol:     sym,
		Text:       string(src[startOffset:endOffset]),
		StartByte:  uint32(startOffset),
		EndByte:    uint32(endOffset),
		StartPoint: startPoint,
		EndPoint:   endPoint,
	}
}

type tokenLookup struct {
	lang      *gotreesitter.Language
	lexerName string
	firstErr  error
}

func newTokenLookup(lang *gotreesitter.Language, lexerName string) *tokenLookup {
	return &tokenLookup{lang: lang, lexerName: lexerName}
}

func (tl *tokenLookup) require(name string) gotreesitter.Symbol {
	syms := tl.lang.TokenSymbolsByName(name)
	if len(syms) == 0 {
		if tl.firstErr == nil {
			tl.firstErr = fmt.Errorf("%s lexer: token symbol %q not found", tl.lexerName, name)
		}
		return 0
	}
	return syms[0]
}

func (tl *tokenLookup) optional(names ...string) gotreesitter.Symbol {
	for _, name := range names {
		syms := tl.lang.TokenSymbolsByName(name)
		if len(syms) > 0 {
			return syms[0]
		}
	}
	return 0
}

func (tl *tokenLookup) err() error {
	return tl.firstErr
}

// tokenSourceInitError stands in for a token source whose language lacks
// the symbols it needs. It reports EOF immediately.
type tokenSourceInitError struct {
	sourceLen uint32
}

func (e tokenSourceInitError) Next() gotreesitter.Token {
	return gotreesitter.Token{
		StartByte: e.sourceLen,
		EndByte:   e.sourceLen,
	}
}

func (e tokenSourceInitError) SkipToByte(offset uint32) gotreesitter.Token {
	return e.Next()
}
