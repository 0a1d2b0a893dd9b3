package gotreesitter

// TreeCursor walks a syntax tree more efficiently than repeated Node
// navigation. Hidden nodes are stepped through transparently.
type TreeCursor struct {
	tree  *Tree
	stack []cursorEntry
}

type cursorEntry struct {
	subtree              *Subtree
	offset               Length
	childIndex           int
	structuralChildIndex int
	alias                Symbol
}

// NewTreeCursor creates a cursor positioned at n. The cursor cannot move
// above n.
func NewTreeCursor(n *Node) *TreeCursor {
	c := &TreeCursor{}
	c.Reset(n)
	return c
}

// Reset moves the cursor to n and makes it the new root of the walk.
func (c *TreeCursor) Reset(n *Node) {
	c.tree = n.tree
	c.stack = append(c.stack[:0], cursorEntry{subtree: n.subtree, offset: n.offset, alias: n.alias})
}

// Copy returns an independent cursor at the same position.
func (c *TreeCursor) Copy() *TreeCursor {
	return &TreeCursor{tree: c.tree, stack: append([]cursorEntry(nil), c.stack...)}
}

// CurrentNode returns the node under the cursor.
func (c *TreeCursor) CurrentNode() *Node {
	e := c.stack[len(c.stack)-1]
	return &Node{subtree: e.subtree, tree: c.tree, offset: e.offset, alias: e.alias}
}

// Depth returns the number of visible ancestors between the cursor's node
// and the node the cursor was created at.
func (c *TreeCursor) Depth() int {
	d := 0
	for i := 1; i < len(c.stack)-1; i++ {
		if c.visible(i) {
			d++
		}
	}
	if len(c.stack) > 1 {
		d++
	}
	return d
}

func (c *TreeCursor) visible(i int) bool {
	if i == 0 {
		return true
	}
	e := &c.stack[i]
	if e.alias != 0 {
		return c.tree.language.IsVisibleSymbol(e.alias)
	}
	return e.subtree.isVisible()
}

func (c *TreeCursor) entryVisible(e *cursorEntry) bool {
	if e.alias != 0 {
		return c.tree.language.IsVisibleSymbol(e.alias)
	}
	return e.subtree.isVisible()
}

// childIter steps over the direct children of one subtree.
type childIter struct {
	lang       *Language
	parent     *Subtree
	index      int
	structural int
	offset     Length
}

func (c *TreeCursor) iterate(parent cursorEntry) childIter {
	return childIter{lang: c.tree.language, parent: parent.subtree, offset: parent.offset}
}

func (it *childIter) next() (cursorEntry, bool) {
	if it.index >= len(it.parent.children) {
		return cursorEntry{}, false
	}
	child := it.parent.children[it.index]
	e := cursorEntry{
		subtree:              child,
		offset:               it.offset,
		childIndex:           it.index,
		structuralChildIndex: it.structural,
	}
	if !child.isExtra() {
		e.alias = it.lang.aliasAt(it.parent.productionID, uint32(it.structural))
		it.structural++
	}
	it.index++
	it.offset = it.offset.add(child.totalSize())
	return e, true
}

// GotoFirstChild moves to the first child. It returns false if the node
// has no children.
func (c *TreeCursor) GotoFirstChild() bool {
	for {
		it := c.iterate(c.stack[len(c.stack)-1])
		descended := false
		for {
			e, ok := it.next()
			if !ok {
				break
			}
			if c.entryVisible(&e) {
				c.stack = append(c.stack, e)
				return true
			}
			if e.subtree.visibleChildCount > 0 {
				c.stack = append(c.stack, e)
				descended = true
				break
			}
		}
		if !descended {
			return false
		}
	}
}

type cursorStep uint8

const (
	stepNone cursorStep = iota
	stepVisible
	stepHidden
)

func (c *TreeCursor) nextSibling() cursorStep {
	initial := len(c.stack)
	for len(c.stack) > 1 {
		entry := c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]
		if len(c.stack)+1 < initial && c.entryVisible(&entry) {
			break
		}
		parent := c.stack[len(c.stack)-1]
		it := childIter{
			lang:       c.tree.language,
			parent:     parent.subtree,
			index:      entry.childIndex + 1,
			structural: entry.structuralChildIndex,
			offset:     entry.offset.add(entry.subtree.totalSize()),
		}
		if !entry.subtree.isExtra() {
			it.structural++
		}
		for {
			e, ok := it.next()
			if !ok {
				break
			}
			if c.entryVisible(&e) {
				c.stack = append(c.stack, e)
				return stepVisible
			}
			if e.subtree.visibleChildCount > 0 {
				c.stack = append(c.stack, e)
				return stepHidden
			}
		}
	}
	c.stack = c.stack[:initial]
	return stepNone
}

// GotoNextSibling moves to the next sibling. It returns false if there is
// none.
func (c *TreeCursor) GotoNextSibling() bool {
	switch c.nextSibling() {
	case stepHidden:
		c.GotoFirstChild()
		return true
	case stepVisible:
		return true
	default:
		return false
	}
}

// GotoParent moves to the parent. It returns false at the cursor's root.
func (c *TreeCursor) GotoParent() bool {
	for i := len(c.stack) - 2; i >= 0; i-- {
		if c.visible(i) {
			c.stack = c.stack[:i+1]
			return true
		}
	}
	return false
}

// GotoFirstChildForByte moves to the first child that extends beyond the
// byte offset and returns its index, or -1 if there is no such child.
func (c *TreeCursor) GotoFirstChildForByte(goal uint32) int {
	initial := len(c.stack)
	visibleIndex := 0
	for {
		it := c.iterate(c.stack[len(c.stack)-1])
		descended := false
		for {
			e, ok := it.next()
			if !ok {
				break
			}
			end := e.offset.Bytes + e.subtree.totalBytes()
			visible := c.entryVisible(&e)
			if end > goal {
				if visible {
					c.stack = append(c.stack, e)
					return visibleIndex
				}
				if e.subtree.visibleChildCount > 0 {
					c.stack = append(c.stack, e)
					descended = true
					break
				}
			} else if visible {
				visibleIndex++
			} else {
				visibleIndex += int(e.subtree.visibleChildCount)
			}
		}
		if !descended {
			c.stack = c.stack[:initial]
			return -1
		}
	}
}

// CurrentFieldID returns the field of the current node, or 0. Fields
// assigned through hidden wrapper nodes are found as well.
func (c *TreeCursor) CurrentFieldID() FieldID {
	lang := c.tree.language
	for i := len(c.stack) - 1; i > 0; i-- {
		e := &c.stack[i]
		if i != len(c.stack)-1 && c.visible(i) {
			break
		}
		if e.subtree.isExtra() {
			break
		}
		parent := &c.stack[i-1]
		for _, f := range lang.fieldMap(parent.subtree.productionID) {
			if !f.Inherited && int(f.ChildIndex) == e.structuralChildIndex {
				return f.FieldID
			}
		}
	}
	return 0
}

// CurrentFieldName returns the name of CurrentFieldID, or "".
func (c *TreeCursor) CurrentFieldName() string {
	id := c.CurrentFieldID()
	if id == 0 {
		return ""
	}
	return c.tree.language.FieldName(id)
}

// siblingStatus describes the visible siblings that follow the cursor's
// node, looking through hidden parents.
type siblingStatus struct {
	field              FieldID
	hasLater           bool
	hasLaterNamed      bool
	laterWithSameField bool
}

func (c *TreeCursor) status() siblingStatus {
	st := siblingStatus{field: c.CurrentFieldID()}
	lang := c.tree.language
	for i := len(c.stack) - 1; i > 0; i-- {
		e := &c.stack[i]
		parent := c.stack[i-1].subtree
		fields := lang.fieldMap(parent.productionID)
		structural := e.structuralChildIndex
		if !e.subtree.isExtra() {
			structural++
		}
		for j := e.childIndex + 1; j < len(parent.children); j++ {
			sib := parent.children[j]
			visible, named := sib.isVisible(), sib.isNamed()
			if !sib.isExtra() {
				if alias := lang.aliasAt(parent.productionID, uint32(structural)); alias != 0 {
					visible, named = lang.IsVisibleSymbol(alias), lang.IsNamedSymbol(alias)
				}
				if st.field != 0 {
					for _, f := range fields {
						if f.FieldID == st.field && int(f.ChildIndex) == structural {
							st.laterWithSameField = true
						}
					}
				}
				structural++
			}
			if visible {
				st.hasLater = true
				if named {
					st.hasLaterNamed = true
				}
			} else if sib.visibleChildCount > 0 {
				st.hasLater = true
				if sib.namedChildCount > 0 {
					st.hasLaterNamed = true
				}
			}
		}
		if c.visible(i - 1) {
			break
		}
	}
	return st
}
