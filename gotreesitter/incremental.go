package gotreesitter

import "go.uber.org/zap"

type reuseFrame struct {
	subtree *Subtree
	start   Length // absolute start of the subtree's padding
}

func (f reuseFrame) endBytes() uint32 {
	return f.start.Bytes + f.subtree.totalBytes()
}

// reuseCursor walks the subtrees of an old tree in pre-order, yielding the
// ones that start at the parser's current position. Subtrees that end before
// the position are skipped without descending into them.
type reuseCursor struct {
	stack []reuseFrame

	cachedStart      uint32
	cachedStartValid bool
	cached           []reuseFrame
}

func newReuseCursor(old *Tree) *reuseCursor {
	if old == nil || old.root == nil {
		return nil
	}
	return &reuseCursor{stack: []reuseFrame{{subtree: old.root}}}
}

// candidates returns the subtrees whose padding starts at start, outermost
// first. Positions must be requested in non-decreasing order.
func (c *reuseCursor) candidates(start uint32) []reuseFrame {
	if c == nil {
		return nil
	}
	if c.cachedStartValid {
		if start == c.cachedStart {
			return c.cached
		}
		if start < c.cachedStart {
			return nil
		}
	}
	c.cached = c.cached[:0]
	c.cachedStart = start
	c.cachedStartValid = true

	for len(c.stack) > 0 {
		last := len(c.stack) - 1
		top := c.stack[last]
		if top.start.Bytes > start {
			break
		}
		c.stack = c.stack[:last]
		if top.start.Bytes < start {
			if top.endBytes() > start {
				c.pushChildren(top)
			}
			continue
		}
		c.cached = append(c.cached, top)
		c.pushChildren(top)
	}
	return c.cached
}

func (c *reuseCursor) pushChildren(f reuseFrame) {
	children := f.subtree.children
	if len(children) == 0 {
		return
	}
	starts := make([]Length, len(children))
	pos := f.start
	for i, child := range children {
		starts[i] = pos
		pos = pos.add(child.totalSize())
	}
	for i := len(children) - 1; i >= 0; i-- {
		c.stack = append(c.stack, reuseFrame{subtree: children[i], start: starts[i]})
	}
}

// reuseNode returns a subtree of the old tree that can stand in for the
// next lookahead of v, or nil.
func (p *Parser) reuseNode(v *stackVersion) *Subtree {
	s := p.session
	state := v.state()
	pos := v.position()
	for _, f := range s.reuse.candidates(pos.Bytes) {
		if f.start != pos || !p.canReuse(f.subtree, state) {
			continue
		}
		s.stats.ReusedNodes++
		s.stats.ReusedBytes += f.subtree.totalBytes()
		if p.debug {
			p.log("reuse", zap.String("symbol", p.language.SymbolName(f.subtree.symbol)),
				zap.Uint32("start", pos.Bytes), zap.Uint32("bytes", f.subtree.totalBytes()))
		}
		return f.subtree
	}
	return nil
}

// canReuse reports whether an old subtree would be parsed the same way in
// state: it must be untouched by edits, error free, and start with a token
// that the lexer would produce identically here.
func (p *Parser) canReuse(t *Subtree, state StateID) bool {
	lang := p.language
	if t.hasChanges() || t.hasError() || t.isError() || t.isMissing() || t.isFragile() {
		return false
	}
	if t.size.Bytes == 0 {
		return false
	}
	if t.is(flagHasExternalTokens) && lang.ExternalScanner != nil {
		return false
	}

	leafSym := t.leafSymbol()
	leafState := t.leafParseState()
	if lang.lexMode(leafState) != lang.lexMode(state) {
		return false
	}
	if leafSym == lang.KeywordCaptureToken && leafSym != 0 && t.parseState != state {
		return false
	}
	if !lang.hasActions(state, leafSym) {
		return false
	}
	if len(t.children) > 0 {
		if _, ok := lang.nextState(state, t.symbol); !ok {
			return false
		}
	}
	return true
}

// breakdownTop replaces a reused node on top of v's stack with its
// children, repeating while the new top is itself a reused node. The
// children's states are recomputed from the state below. It reports
// whether the stack changed.
func (p *Parser) breakdownTop(v *stackVersion) bool {
	lang := p.language
	changed := false
	for v.head.pending && v.head.prev != nil {
		top := v.head
		base := top.prev
		children := top.subtree.children
		states := make([]StateID, len(children))
		state := base.state
		for i, child := range children {
			if !child.isExtra() {
				next, ok := lang.nextState(state, child.symbol)
				if !ok {
					return changed
				}
				state = next
			}
			states[i] = state
		}

		v.head = base
		for i, child := range children {
			p.push(v, child, states[i])
			v.head.pending = len(child.children) > 0
		}
		changed = true
		if p.debug {
			p.log("breakdown_stack", zap.Uint32("version", v.id),
				zap.String("symbol", lang.SymbolName(top.subtree.symbol)), zap.Int("children", len(children)))
		}
	}
	return changed
}
