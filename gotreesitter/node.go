package gotreesitter

import "strings"

// Node is a handle to a syntax node at a concrete position in a Tree. Nodes
// are cheap to create and hold no back-pointers; parents and siblings are
// found again from the root.
type Node struct {
	subtree *Subtree
	tree    *Tree
	offset  Length // absolute start of the node's padding
	alias   Symbol
}

func (n *Node) lang() *Language { return n.tree.language }

// Symbol returns the node's public symbol, taking aliases into account.
func (n *Node) Symbol() Symbol {
	if n.alias != 0 {
		return n.lang().PublicSymbol(n.alias)
	}
	return n.lang().PublicSymbol(n.subtree.symbol)
}

// GrammarSymbol returns the symbol the grammar produced, ignoring aliases.
func (n *Node) GrammarSymbol() Symbol { return n.subtree.symbol }

// Kind returns the node's type name.
func (n *Node) Kind() string { return n.lang().SymbolName(n.Symbol()) }

// Type returns the node's type name from lang, or from the tree's language
// when lang is nil.
func (n *Node) Type(lang *Language) string {
	if lang == nil {
		lang = n.lang()
	}
	return lang.SymbolName(n.Symbol())
}

// GrammarType returns the type name of GrammarSymbol.
func (n *Node) GrammarType() string { return n.lang().SymbolName(n.subtree.symbol) }

// Tree returns the tree the node belongs to.
func (n *Node) Tree() *Tree { return n.tree }

// IsNamed reports whether this is a named node (as opposed to anonymous
// syntax like punctuation).
func (n *Node) IsNamed() bool {
	if n.alias != 0 {
		return n.lang().IsNamedSymbol(n.alias)
	}
	return n.subtree.isNamed()
}

func (n *Node) isVisible() bool {
	if n.alias != 0 {
		return n.lang().IsVisibleSymbol(n.alias)
	}
	return n.subtree.isVisible()
}

// IsExtra reports whether the node is an extra, such as a comment.
func (n *Node) IsExtra() bool { return n.subtree.isExtra() }

// IsError reports whether the node is an ERROR node.
func (n *Node) IsError() bool { return n.subtree.isError() }

// IsMissing reports whether the parser inserted this node to recover from
// an error. Missing nodes are zero-width.
func (n *Node) IsMissing() bool { return n.subtree.isMissing() }

// HasError reports whether the node is or contains an ERROR or MISSING node.
func (n *Node) HasError() bool { return n.subtree.hasError() }

// HasChanges reports whether the node was touched by an edit since it was
// parsed.
func (n *Node) HasChanges() bool { return n.subtree.hasChanges() }

// ParseState returns the parse state the node was built in.
func (n *Node) ParseState() StateID { return n.subtree.parseState }

func (n *Node) start() Length { return n.offset.add(n.subtree.padding) }

func (n *Node) end() Length { return n.start().add(n.subtree.size) }

// StartByte returns the byte offset of the node's first character.
func (n *Node) StartByte() uint32 { return n.offset.Bytes + n.subtree.padding.Bytes }

// EndByte returns the byte offset just past the node.
func (n *Node) EndByte() uint32 { return n.StartByte() + n.subtree.size.Bytes }

// StartPoint returns the node's start position.
func (n *Node) StartPoint() Point { return n.start().Extent }

// EndPoint returns the node's end position.
func (n *Node) EndPoint() Point { return n.end().Extent }

// Range returns the node's span.
func (n *Node) Range() Range {
	s, e := n.start(), n.end()
	return Range{StartByte: s.Bytes, EndByte: e.Bytes, StartPoint: s.Extent, EndPoint: e.Extent}
}

// Equal reports whether two handles refer to the same node.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	return n.subtree == o.subtree && n.offset == o.offset && n.tree == o.tree
}

// Text returns the source text covered by this node.
func (n *Node) Text(source []byte) string {
	start, end := n.StartByte(), n.EndByte()
	if int(end) > len(source) || start > end {
		return ""
	}
	return string(source[start:end])
}

// Content is Text.
func (n *Node) Content(source []byte) string { return n.Text(source) }

// rawChild is a direct child of a subtree placed at an absolute offset.
type rawChild struct {
	subtree    *Subtree
	offset     Length
	alias      Symbol
	structural int // -1 for extras
}

// rawChildren lists the direct children of n, hidden ones included.
func (n *Node) rawChildren() []rawChild {
	children := n.subtree.children
	if len(children) == 0 {
		return nil
	}
	lang := n.lang()
	out := make([]rawChild, len(children))
	pos := n.offset
	structural := 0
	for i, c := range children {
		rc := rawChild{subtree: c, offset: pos, structural: -1}
		if !c.isExtra() {
			rc.alias = lang.aliasAt(n.subtree.productionID, uint32(structural))
			rc.structural = structural
			structural++
		}
		out[i] = rc
		pos = pos.add(c.totalSize())
	}
	return out
}

func (n *Node) child(rc rawChild) *Node {
	return &Node{subtree: rc.subtree, tree: n.tree, offset: rc.offset, alias: rc.alias}
}

// visibleChildren appends the visible children of n to out, looking through
// hidden nodes.
func (n *Node) visibleChildren(out []*Node, namedOnly bool) []*Node {
	for _, rc := range n.rawChildren() {
		c := n.child(rc)
		if c.isVisible() {
			if !namedOnly || c.IsNamed() {
				out = append(out, c)
			}
			continue
		}
		if len(rc.subtree.children) > 0 {
			out = c.visibleChildren(out, namedOnly)
		}
	}
	return out
}

// ChildCount returns the number of children, named and anonymous.
func (n *Node) ChildCount() int { return int(n.subtree.visibleChildCount) }

// NamedChildCount returns the number of named children.
func (n *Node) NamedChildCount() int { return int(n.subtree.namedChildCount) }

// Children returns all visible children.
func (n *Node) Children() []*Node { return n.visibleChildren(nil, false) }

// NamedChildren returns the named children.
func (n *Node) NamedChildren() []*Node { return n.visibleChildren(nil, true) }

// Child returns the i-th child, or nil if i is out of range.
func (n *Node) Child(i int) *Node {
	if i < 0 || i >= n.ChildCount() {
		return nil
	}
	children := n.Children()
	if i >= len(children) {
		return nil
	}
	return children[i]
}

// NamedChild returns the i-th named child, or nil if i is out of range.
func (n *Node) NamedChild(i int) *Node {
	if i < 0 || i >= n.NamedChildCount() {
		return nil
	}
	children := n.NamedChildren()
	if i >= len(children) {
		return nil
	}
	return children[i]
}

// ChildByFieldName returns the first child assigned to the named field.
func (n *Node) ChildByFieldName(name string) *Node {
	fid, ok := n.lang().FieldByName(name)
	if !ok {
		return nil
	}
	return n.ChildByFieldID(fid)
}

// ChildByFieldID returns the first child assigned to the field.
func (n *Node) ChildByFieldID(id FieldID) *Node {
	if id == 0 {
		return nil
	}
	fields := n.lang().fieldMap(n.subtree.productionID)
	if len(fields) == 0 {
		return nil
	}
	for _, rc := range n.rawChildren() {
		if rc.structural < 0 {
			continue
		}
		for _, f := range fields {
			if f.FieldID != id || int(f.ChildIndex) != rc.structural {
				continue
			}
			c := n.child(rc)
			if c.isVisible() {
				return c
			}
			if f.Inherited {
				if found := c.ChildByFieldID(id); found != nil {
					return found
				}
				continue
			}
			if kids := c.Children(); len(kids) > 0 {
				return kids[0]
			}
		}
	}
	return nil
}

// ChildrenByFieldName returns every child assigned to the named field.
func (n *Node) ChildrenByFieldName(name string) []*Node {
	fid, ok := n.lang().FieldByName(name)
	if !ok || fid == 0 {
		return nil
	}
	var out []*Node
	c := NewTreeCursor(n)
	if !c.GotoFirstChild() {
		return nil
	}
	for {
		if c.CurrentFieldID() == fid {
			out = append(out, c.CurrentNode())
		}
		if !c.GotoNextSibling() {
			return out
		}
	}
}

// FieldNameForChild returns the field name of the i-th child, or "".
func (n *Node) FieldNameForChild(i int) string {
	c := NewTreeCursor(n)
	if !c.GotoFirstChild() {
		return ""
	}
	for j := 0; j < i; j++ {
		if !c.GotoNextSibling() {
			return ""
		}
	}
	return c.CurrentFieldName()
}

// Parent returns the node's parent, or nil for the root.
func (n *Node) Parent() *Node {
	root := n.tree.RootNode()
	if root == nil || root.Equal(n) {
		return nil
	}
	return findParent(root, n)
}

func findParent(cur, target *Node) *Node {
	ts, te := target.StartByte(), target.EndByte()
	for _, c := range cur.Children() {
		if c.Equal(target) {
			return cur
		}
		if c.StartByte() > ts || c.EndByte() < te || len(c.subtree.children) == 0 {
			continue
		}
		if p := findParent(c, target); p != nil {
			return p
		}
	}
	return nil
}

func (n *Node) siblings() ([]*Node, int) {
	parent := n.Parent()
	if parent == nil {
		return nil, -1
	}
	kids := parent.Children()
	for i, c := range kids {
		if c.Equal(n) {
			return kids, i
		}
	}
	return nil, -1
}

// NextSibling returns the next child of the node's parent.
func (n *Node) NextSibling() *Node {
	kids, i := n.siblings()
	if i < 0 || i+1 >= len(kids) {
		return nil
	}
	return kids[i+1]
}

// PrevSibling returns the previous child of the node's parent.
func (n *Node) PrevSibling() *Node {
	kids, i := n.siblings()
	if i <= 0 {
		return nil
	}
	return kids[i-1]
}

// NextNamedSibling returns the next named child of the node's parent.
func (n *Node) NextNamedSibling() *Node {
	kids, i := n.siblings()
	if i < 0 {
		return nil
	}
	for _, c := range kids[i+1:] {
		if c.IsNamed() {
			return c
		}
	}
	return nil
}

// PrevNamedSibling returns the previous named child of the node's parent.
func (n *Node) PrevNamedSibling() *Node {
	kids, i := n.siblings()
	for j := i - 1; j >= 0; j-- {
		if kids[j].IsNamed() {
			return kids[j]
		}
	}
	return nil
}

// DescendantForByteRange returns the smallest node that spans the byte
// range.
func (n *Node) DescendantForByteRange(start, end uint32) *Node {
	return n.descendantFor(start, end, func(c *Node) (uint32, uint32) { return c.StartByte(), c.EndByte() }, false)
}

// NamedDescendantForByteRange returns the smallest named node that spans
// the byte range.
func (n *Node) NamedDescendantForByteRange(start, end uint32) *Node {
	return n.descendantFor(start, end, func(c *Node) (uint32, uint32) { return c.StartByte(), c.EndByte() }, true)
}

// DescendantForPointRange returns the smallest node that spans the point
// range.
func (n *Node) DescendantForPointRange(start, end Point) *Node {
	last := n
	node := n
	for {
		descended := false
		for _, rc := range node.rawChildren() {
			c := node.child(rc)
			cs, ce := c.StartPoint(), c.EndPoint()
			if ce.less(end) {
				continue
			}
			empty := cs == ce
			if empty && ce.less(start) || !empty && !start.less(ce) {
				continue
			}
			if start.less(cs) {
				break
			}
			node = c
			if c.isVisible() {
				last = c
			}
			descended = true
			break
		}
		if !descended {
			return last
		}
	}
}

func (n *Node) descendantFor(start, end uint32, span func(*Node) (uint32, uint32), named bool) *Node {
	last := n
	node := n
	for {
		descended := false
		for _, rc := range node.rawChildren() {
			c := node.child(rc)
			cs, ce := span(c)
			if ce < end {
				continue
			}
			if cs == ce {
				if ce < start {
					continue
				}
			} else if ce <= start {
				continue
			}
			if start < cs {
				break
			}
			node = c
			if c.isVisible() && (!named || c.IsNamed()) {
				last = c
			}
			descended = true
			break
		}
		if !descended {
			return last
		}
	}
}

// String renders the node as an S-expression of its named descendants,
// with field labels and MISSING markers.
func (n *Node) String() string {
	var b strings.Builder
	writeSubtree(&b, n.lang(), n.subtree, n.alias, "", true)
	return b.String()
}

func writeSubtree(b *strings.Builder, lang *Language, s *Subtree, alias Symbol, field string, isRoot bool) {
	aliasNamed := alias != 0 && lang.IsNamedSymbol(alias)
	visible := s.isMissing()
	if alias != 0 {
		visible = visible || aliasNamed
	} else {
		visible = visible || (s.isVisible() && s.isNamed())
	}

	sym := s.symbol
	if alias != 0 {
		sym = alias
	}
	name := lang.SymbolName(sym)
	switch {
	case visible:
		if !isRoot {
			b.WriteByte(' ')
		}
		if field != "" {
			b.WriteString(field)
			b.WriteString(": ")
		}
		if s.isMissing() {
			b.WriteString("(MISSING ")
			if aliasNamed || s.isNamed() {
				b.WriteString(name)
			} else {
				b.WriteString(`"` + name + `"`)
			}
		} else {
			b.WriteString("(" + name)
		}
	case isRoot:
		if lang.IsNamedSymbol(sym) || len(s.children) > 0 {
			b.WriteString("(" + name)
		} else {
			b.WriteString(`("` + name + `"`)
		}
	}

	if len(s.children) > 0 {
		fields := lang.fieldMap(s.productionID)
		structural := uint32(0)
		for _, c := range s.children {
			if c.isExtra() {
				writeSubtree(b, lang, c, 0, "", false)
				continue
			}
			childAlias := lang.aliasAt(s.productionID, structural)
			childField := ""
			if !visible {
				childField = field
			}
			for _, f := range fields {
				if !f.Inherited && uint32(f.ChildIndex) == structural {
					childField = lang.FieldName(f.FieldID)
					break
				}
			}
			writeSubtree(b, lang, c, childAlias, childField, false)
			structural++
		}
	}
	if visible || isRoot {
		b.WriteByte(')')
	}
}
