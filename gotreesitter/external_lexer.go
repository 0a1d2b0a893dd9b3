package gotreesitter

// externalStateBufferSize bounds the serialized state of an external scanner.
const externalStateBufferSize = 1024

// ExternalLexer is the scanner-facing lexer API used by external scanners.
// It mirrors the essential tree-sitter scanner API: lookahead, advance,
// mark_end, and result_symbol.
type ExternalLexer struct {
	l *lexer

	resultSymbol Symbol
	hasResult    bool
	marked       bool
}

func (e *ExternalLexer) reset() {
	e.resultSymbol = 0
	e.hasResult = false
	e.marked = false
}

// Lookahead returns the current rune or 0 at EOF.
func (e *ExternalLexer) Lookahead() rune {
	if e.l.eof {
		return 0
	}
	return e.l.lookahead
}

// Advance consumes one rune. When skip is true, consumed bytes are excluded
// from the token span (scanner whitespace skipping behavior).
func (e *ExternalLexer) Advance(skip bool) {
	e.l.advance(skip)
	if !e.marked {
		e.l.tokenEnd = e.l.pos
	}
}

// MarkEnd marks the current scanner position as the token end.
func (e *ExternalLexer) MarkEnd() {
	e.marked = true
	e.l.markEnd()
}

// SetResultSymbol sets the external token index to emit when Scan returns
// true.
func (e *ExternalLexer) SetResultSymbol(sym Symbol) {
	e.resultSymbol = sym
	e.hasResult = true
}

// GetColumn returns the current column (0-based) at the scanner cursor.
func (e *ExternalLexer) GetColumn() uint32 {
	return e.l.pos.Extent.Column
}

// EOF reports whether the scanner reached the end of the input.
func (e *ExternalLexer) EOF() bool {
	return e.l.eof
}

// IsAtIncludedRangeStart reports whether the cursor sits at the start of an
// included range.
func (e *ExternalLexer) IsAtIncludedRangeStart() bool {
	if e.l.rangeIdx >= len(e.l.ranges) {
		return false
	}
	return e.l.ranges[e.l.rangeIdx].StartByte == e.l.pos.Bytes
}
