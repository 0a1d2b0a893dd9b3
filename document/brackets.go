package document

// bracketPairs maps each bracket token to its matching partner.
var bracketPairs = map[string]string{
	"(": ")",
	")": "(",
	"{": "}",
	"}": "{",
	"[": "]",
	"]": "[",
}

// openBrackets is the set of opening bracket tokens.
var openBrackets = map[string]bool{
	"(": true,
	"{": true,
	"[": true,
}

// MatchingBracket finds the bracket paired with the bracket token at byte
// offset. Pairs come from the syntax tree: the partner is the sibling token
// under the same parent, so brackets inside strings and comments are never
// paired. Returns false if offset is not on a bracket or the partner is
// missing from the source.
func (d *Document) MatchingBracket(offset int) (int, bool) {
	if d.tree == nil || offset < 0 || offset >= len(d.text) {
		return 0, false
	}
	leaf := d.tree.RootNode().DescendantForByteRange(uint32(offset), uint32(offset+1))
	if leaf == nil || leaf.ChildCount() > 0 || int(leaf.StartByte()) != offset {
		return 0, false
	}
	partner, ok := bracketPairs[leaf.Kind()]
	if !ok {
		return 0, false
	}
	parent := leaf.Parent()
	if parent == nil {
		return 0, false
	}

	siblings := parent.Children()
	at := -1
	for i, c := range siblings {
		if c.Equal(leaf) {
			at = i
			break
		}
	}
	if at < 0 {
		return 0, false
	}

	step := 1
	if !openBrackets[leaf.Kind()] {
		step = -1
	}
	depth := 0
	for i := at + step; i >= 0 && i < len(siblings); i += step {
		switch siblings[i].Kind() {
		case leaf.Kind():
			depth++
		case partner:
			if depth > 0 {
				depth--
				continue
			}
			if siblings[i].IsMissing() {
				return 0, false
			}
			return int(siblings[i].StartByte()), true
		}
	}
	return 0, false
}
