package gotreesitter

import "sort"

// tokenSourceProvider adapts a forward-only TokenSource to the parser, which
// may ask for the token at a position more than once when versions fork.
type tokenSourceProvider struct {
	src     TokenSource
	skipper ByteSkippableTokenSource

	tokens []Token
	done   bool
}

func newTokenSourceProvider(ts TokenSource) *tokenSourceProvider {
	p := &tokenSourceProvider{src: ts}
	p.skipper, _ = ts.(ByteSkippableTokenSource)
	return p
}

func isSkipToken(t Token) bool { return t.Symbol == 0 && t.EndByte > t.StartByte }

func (p *tokenSourceProvider) fetch(target uint32) {
	if p.done {
		return
	}
	var t Token
	if n := len(p.tokens); p.skipper != nil && (n == 0 || p.tokens[n-1].EndByte < target) && target > 0 {
		t = p.skipper.SkipToByte(target)
	} else {
		t = p.src.Next()
	}
	if t.Symbol == 0 && t.EndByte <= t.StartByte {
		p.done = true
	}
	if n := len(p.tokens); n > 0 && t.StartByte < p.tokens[n-1].StartByte {
		// A source that moves backwards is treated as finished.
		t = Token{StartByte: p.tokens[n-1].EndByte, EndByte: p.tokens[n-1].EndByte, StartPoint: p.tokens[n-1].EndPoint, EndPoint: p.tokens[n-1].EndPoint}
		p.done = true
	}
	p.tokens = append(p.tokens, t)
}

// token returns the first real token starting at or after pos, with the
// text in between as padding.
func (p *tokenSourceProvider) token(pos Length) lexedToken {
	for {
		i := sort.Search(len(p.tokens), func(i int) bool { return p.tokens[i].StartByte >= pos.Bytes })
		for i < len(p.tokens) && isSkipToken(p.tokens[i]) {
			i++
		}
		if i < len(p.tokens) {
			t := p.tokens[i]
			start := Length{Bytes: t.StartByte, Extent: t.StartPoint}
			end := Length{Bytes: t.EndByte, Extent: t.EndPoint}
			if t.Symbol == 0 {
				return lexedToken{symbol: SymbolEnd, padding: start.saturatingSub(pos)}
			}
			return lexedToken{symbol: t.Symbol, padding: start.saturatingSub(pos), size: end.sub(start)}
		}
		if p.done {
			return lexedToken{symbol: SymbolEnd}
		}
		p.fetch(pos.Bytes)
	}
}
