package gotreesitter

import "sync/atomic"

// Length is a span of text measured in bytes and in rows/columns.
type Length struct {
	Bytes  uint32
	Extent Point
}

func (a Length) add(b Length) Length {
	out := Length{Bytes: a.Bytes + b.Bytes}
	if b.Extent.Row > 0 {
		out.Extent = Point{Row: a.Extent.Row + b.Extent.Row, Column: b.Extent.Column}
	} else {
		out.Extent = Point{Row: a.Extent.Row, Column: a.Extent.Column + b.Extent.Column}
	}
	return out
}

// sub returns the length from b to a. b must not be after a.
func (a Length) sub(b Length) Length {
	out := Length{}
	if a.Bytes > b.Bytes {
		out.Bytes = a.Bytes - b.Bytes
	}
	if a.Extent.Row > b.Extent.Row {
		out.Extent = Point{Row: a.Extent.Row - b.Extent.Row, Column: a.Extent.Column}
	} else if a.Extent.Column > b.Extent.Column {
		out.Extent = Point{Column: a.Extent.Column - b.Extent.Column}
	}
	return out
}

// saturatingSub is sub, clamped to zero when b is after a.
func (a Length) saturatingSub(b Length) Length {
	if b.Bytes >= a.Bytes {
		return Length{}
	}
	return a.sub(b)
}

func (p Point) less(o Point) bool {
	return p.Row < o.Row || (p.Row == o.Row && p.Column < o.Column)
}

// Error costs used to rank recovery strategies.
const (
	ErrorCostPerRecovery    = 500
	ErrorCostPerMissingTree = 110
	ErrorCostPerSkippedTree = 100
	ErrorCostPerSkippedLine = 30
	ErrorCostPerSkippedChar = 1
)

type subtreeFlags uint16

const (
	flagVisible subtreeFlags = 1 << iota
	flagNamed
	flagExtra
	flagMissing
	flagKeyword
	flagHasChanges
	flagFragileLeft
	flagFragileRight
	flagHasExternalTokens
	flagHasError
	flagDependsOnColumn
)

// Subtree is an immutable, reference-counted syntax node. Positions are
// relative: padding is the whitespace before the node and size is the
// extent of its content, so one Subtree can appear at different offsets in
// different trees.
type Subtree struct {
	symbol     Symbol
	parseState StateID
	flags      subtreeFlags

	padding        Length
	size           Length
	lookaheadBytes uint32

	children          []*Subtree
	productionID      uint16
	errorCost         uint32
	dynamicPrecedence int32
	visibleChildCount uint32
	namedChildCount   uint32

	// externalState is the serialized scanner state after an external token.
	externalState []byte

	refs int32
}

func (s *Subtree) is(f subtreeFlags) bool { return s.flags&f != 0 }

func (s *Subtree) set(f subtreeFlags, on bool) {
	if on {
		s.flags |= f
	} else {
		s.flags &^= f
	}
}

func (s *Subtree) isVisible() bool    { return s.is(flagVisible) }
func (s *Subtree) isNamed() bool      { return s.is(flagNamed) }
func (s *Subtree) isExtra() bool      { return s.is(flagExtra) }
func (s *Subtree) isMissing() bool    { return s.is(flagMissing) }
func (s *Subtree) hasChanges() bool   { return s.is(flagHasChanges) }
func (s *Subtree) hasError() bool     { return s.is(flagHasError) }
func (s *Subtree) isError() bool      { return s.symbol == errorSymbol }
func (s *Subtree) isFragile() bool    { return s.is(flagFragileLeft | flagFragileRight) }
func (s *Subtree) childCount() int    { return len(s.children) }
func (s *Subtree) totalSize() Length  { return s.padding.add(s.size) }
func (s *Subtree) totalBytes() uint32 { return s.padding.Bytes + s.size.Bytes }

func (s *Subtree) retain() {
	atomic.AddInt32(&s.refs, 1)
}

// release drops one reference and releases the children of a subtree that
// is no longer held anywhere.
func (s *Subtree) release() {
	stack := []*Subtree{s}
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if atomic.AddInt32(&t.refs, -1) > 0 {
			continue
		}
		stack = append(stack, t.children...)
	}
}

func (s *Subtree) shared() bool {
	return atomic.LoadInt32(&s.refs) > 1
}

// leafSymbol returns the symbol of the first leaf.
func (s *Subtree) leafSymbol() Symbol {
	for len(s.children) > 0 {
		s = s.children[0]
	}
	return s.symbol
}

func (s *Subtree) leafParseState() StateID {
	for len(s.children) > 0 {
		s = s.children[0]
	}
	return s.parseState
}

// lastExternalState returns the scanner state after the last external token
// inside s, or nil.
func (s *Subtree) lastExternalState() []byte {
	for s != nil && s.is(flagHasExternalTokens) {
		if len(s.children) == 0 {
			return s.externalState
		}
		var next *Subtree
		for i := len(s.children) - 1; i >= 0; i-- {
			if s.children[i].is(flagHasExternalTokens) {
				next = s.children[i]
				break
			}
		}
		s = next
	}
	return nil
}

// clone returns an unshared copy of s that holds its own references to the
// children.
func (s *Subtree) clone() *Subtree {
	c := *s
	c.refs = 0
	if len(s.children) > 0 {
		c.children = make([]*Subtree, len(s.children))
		copy(c.children, s.children)
		for _, child := range c.children {
			child.retain()
		}
	}
	return &c
}

func symbolFlags(lang *Language, sym Symbol) subtreeFlags {
	var f subtreeFlags
	if lang.IsVisibleSymbol(sym) {
		f |= flagVisible
	}
	if lang.IsNamedSymbol(sym) {
		f |= flagNamed
	}
	return f
}

// newLeaf builds a terminal subtree.
func newLeaf(a *subtreeArena, lang *Language, sym Symbol, padding, size Length, lookaheadBytes uint32, state StateID) *Subtree {
	s := a.alloc()
	s.symbol = sym
	s.parseState = state
	s.flags = symbolFlags(lang, sym)
	s.padding = padding
	s.size = size
	s.lookaheadBytes = lookaheadBytes
	if sym == errorSymbol {
		s.flags |= flagHasError
		s.errorCost = ErrorCostPerRecovery + ErrorCostPerSkippedChar*size.Bytes + ErrorCostPerSkippedLine*size.Extent.Row
	}
	return s
}

// newMissingLeaf builds a zero-width token inserted by error recovery.
func newMissingLeaf(a *subtreeArena, lang *Language, sym Symbol, padding Length, lookaheadBytes uint32, state StateID) *Subtree {
	s := newLeaf(a, lang, sym, padding, Length{}, lookaheadBytes, state)
	s.flags |= flagMissing | flagHasError
	s.errorCost = ErrorCostPerMissingTree + ErrorCostPerRecovery
	return s
}

// newNode builds an internal node over children and retains them.
func newNode(a *subtreeArena, lang *Language, sym Symbol, children []*Subtree, productionID uint16) *Subtree {
	s := a.alloc()
	s.symbol = sym
	s.flags = symbolFlags(lang, sym)
	s.children = children
	s.productionID = productionID
	for _, c := range children {
		c.retain()
	}
	s.summarize(lang)
	return s
}

// newErrorNode wraps children in an ERROR node.
func newErrorNode(a *subtreeArena, lang *Language, children []*Subtree, extra bool) *Subtree {
	s := newNode(a, lang, errorSymbol, children, 0)
	s.set(flagExtra, extra)
	return s
}

// summarize recomputes the cached span, counts, error cost and flags of an
// internal node from its children.
func (s *Subtree) summarize(lang *Language) {
	s.visibleChildCount = 0
	s.namedChildCount = 0
	s.errorCost = 0
	s.dynamicPrecedence = 0
	s.padding = Length{}
	s.size = Length{}
	s.lookaheadBytes = 0
	s.flags &^= flagHasError | flagHasExternalTokens | flagDependsOnColumn | flagFragileLeft | flagFragileRight

	var lookaheadEnd uint32
	structural := uint32(0)
	for i, child := range s.children {
		if i == 0 {
			s.padding = child.padding
			s.size = child.size
		} else {
			s.size = s.size.add(child.totalSize())
		}
		end := s.padding.Bytes + s.size.Bytes + child.lookaheadBytes
		if end > lookaheadEnd {
			lookaheadEnd = end
		}

		s.errorCost += child.errorCost
		s.dynamicPrecedence += child.dynamicPrecedence
		if child.hasError() {
			s.flags |= flagHasError
		}
		if child.is(flagHasExternalTokens) {
			s.flags |= flagHasExternalTokens
		}
		if child.is(flagDependsOnColumn) {
			s.flags |= flagDependsOnColumn
		}

		alias := Symbol(0)
		if !child.isExtra() {
			alias = lang.aliasAt(s.productionID, structural)
			structural++
		}
		switch {
		case alias != 0 && lang.IsVisibleSymbol(alias):
			s.visibleChildCount++
			if lang.IsNamedSymbol(alias) {
				s.namedChildCount++
			}
		case child.isVisible():
			s.visibleChildCount++
			if child.isNamed() {
				s.namedChildCount++
			}
		case len(child.children) > 0:
			s.visibleChildCount += child.visibleChildCount
			s.namedChildCount += child.namedChildCount
		}

		if s.symbol == errorSymbol && !child.isExtra() && !(child.isError() && len(child.children) == 0) {
			if child.isVisible() {
				s.errorCost += ErrorCostPerSkippedTree
			} else if len(child.children) > 0 {
				s.errorCost += ErrorCostPerSkippedTree * child.visibleChildCount
			}
		}
	}
	if total := s.padding.Bytes + s.size.Bytes; lookaheadEnd > total {
		s.lookaheadBytes = lookaheadEnd - total
	}

	if s.symbol == errorSymbol {
		s.flags |= flagHasError
		s.errorCost += ErrorCostPerRecovery + ErrorCostPerSkippedChar*s.size.Bytes + ErrorCostPerSkippedLine*s.size.Extent.Row
	}
	if n := len(s.children); n > 0 {
		if s.children[0].is(flagFragileLeft) {
			s.flags |= flagFragileLeft
		}
		if s.children[n-1].is(flagFragileRight) {
			s.flags |= flagFragileRight
		}
	}
}

// leafKey identifies leaves that may be shared within one parse.
type leafKey struct {
	symbol         Symbol
	state          StateID
	flags          subtreeFlags
	padding        Length
	size           Length
	lookaheadBytes uint32
}

// leafCache deduplicates structurally identical leaves produced during one
// parse, such as repeated punctuation.
type leafCache struct {
	leaves map[leafKey]*Subtree
	hits   int
}

func newLeafCache() *leafCache {
	return &leafCache{leaves: make(map[leafKey]*Subtree)}
}

func (c *leafCache) intern(s *Subtree) *Subtree {
	if c == nil || len(s.children) > 0 || s.externalState != nil || s.isMissing() || s.isError() {
		return s
	}
	key := leafKey{
		symbol:         s.symbol,
		state:          s.parseState,
		flags:          s.flags,
		padding:        s.padding,
		size:           s.size,
		lookaheadBytes: s.lookaheadBytes,
	}
	if hit, ok := c.leaves[key]; ok {
		c.hits++
		return hit
	}
	c.leaves[key] = s
	return s
}
