package gotreesitter

// Range is a span of source text.
type Range struct {
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
}

// Tree holds a complete syntax tree along with its language and, when the
// parse was given one, its source text. Trees share unchanged subtrees with
// the trees they were reparsed from.
type Tree struct {
	root           *Subtree
	language       *Language
	includedRanges []Range
	source         []byte
	encoding       InputEncoding
	edits          []InputEdit
}

func newTree(root *Subtree, lang *Language, includedRanges []Range, source []byte) *Tree {
	root.retain()
	t := &Tree{root: root, language: lang, source: source}
	if len(includedRanges) > 0 {
		t.includedRanges = append([]Range(nil), includedRanges...)
	}
	return t
}

// RootNode returns the tree's root node.
func (t *Tree) RootNode() *Node {
	if t == nil || t.root == nil {
		return nil
	}
	return &Node{subtree: t.root, tree: t, offset: Length{}}
}

// Source returns the source text the tree was parsed from, if known. Edit
// clears it, since the text no longer matches the edited spans.
func (t *Tree) Source() []byte { return t.source }

// Language returns the language used to parse this tree.
func (t *Tree) Language() *Language { return t.language }

// Encoding returns the encoding of the parsed text.
func (t *Tree) Encoding() InputEncoding { return t.encoding }

// IncludedRanges returns the ranges the tree was parsed from.
func (t *Tree) IncludedRanges() []Range {
	if len(t.includedRanges) == 0 {
		return []Range{fullRange}
	}
	return append([]Range(nil), t.includedRanges...)
}

// Edits returns the edits recorded on this tree since it was parsed.
func (t *Tree) Edits() []InputEdit { return t.edits }

// Copy returns a tree that shares this tree's nodes. Editing either tree
// leaves the other untouched.
func (t *Tree) Copy() *Tree {
	c := *t
	if c.root != nil {
		c.root.retain()
	}
	c.includedRanges = append([]Range(nil), t.includedRanges...)
	c.edits = append([]InputEdit(nil), t.edits...)
	return &c
}

// Close releases the tree's references to its nodes. The tree must not be
// used afterwards.
func (t *Tree) Close() {
	if t == nil || t.root == nil {
		return
	}
	t.root.release()
	t.root = nil
}

// Walk visits every node of the tree in pre-order. Returning false from fn
// skips the children of that node.
func (t *Tree) Walk(fn func(n *Node, depth int) bool) {
	root := t.RootNode()
	if root == nil {
		return
	}
	c := NewTreeCursor(root)
	depth := 0
	descend := fn(c.CurrentNode(), depth)
	for {
		if descend && c.GotoFirstChild() {
			depth++
			descend = fn(c.CurrentNode(), depth)
			continue
		}
		for !c.GotoNextSibling() {
			if !c.GotoParent() {
				return
			}
			depth--
		}
		descend = fn(c.CurrentNode(), depth)
	}
}
