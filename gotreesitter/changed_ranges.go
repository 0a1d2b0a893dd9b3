package gotreesitter

import "sort"

// ChangedRanges compares this tree, edited to match the new text, with a
// tree reparsed from that text. It returns the ordered, disjoint ranges
// whose syntactic structure differs.
func (t *Tree) ChangedRanges(newTree *Tree) []Range {
	return ChangedRanges(t, newTree)
}

// ChangedRanges compares an edited old tree with the tree reparsed from it.
func ChangedRanges(oldTree, newTree *Tree) []Range {
	if oldTree == nil || newTree == nil || oldTree.root == nil || newTree.root == nil {
		return nil
	}
	var out []Range
	diffSubtrees(oldTree.root, Length{}, newTree.root, Length{}, &out)
	return mergeRanges(out)
}

func subtreeRange(s *Subtree, offset Length) Range {
	start := offset.add(s.padding)
	end := start.add(s.size)
	return Range{StartByte: start.Bytes, EndByte: end.Bytes, StartPoint: start.Extent, EndPoint: end.Extent}
}

func unionRange(a, b Range) Range {
	if b.StartByte < a.StartByte {
		a.StartByte, a.StartPoint = b.StartByte, b.StartPoint
	}
	if b.EndByte > a.EndByte {
		a.EndByte, a.EndPoint = b.EndByte, b.EndPoint
	}
	return a
}

// diffSubtrees records where two subtrees placed at the given offsets
// differ. Subtrees shared by both trees are skipped outright; untouched
// leaves with the same kind and span match; nodes of the same kind are
// compared child by child, aligned on start position.
func diffSubtrees(a *Subtree, aOff Length, b *Subtree, bOff Length, out *[]Range) {
	if a == b && aOff.Bytes == bOff.Bytes {
		return
	}
	ar, br := subtreeRange(a, aOff), subtreeRange(b, bOff)
	sameShape := a.symbol == b.symbol && a.isExtra() == b.isExtra() && a.isMissing() == b.isMissing()
	if sameShape && len(a.children) == 0 && len(b.children) == 0 &&
		!a.hasChanges() && !a.isError() && ar.StartByte == br.StartByte && ar.EndByte == br.EndByte {
		return
	}
	if !sameShape || len(a.children) == 0 || len(b.children) == 0 {
		*out = append(*out, unionRange(ar, br))
		return
	}

	ac := childOffsets(a, aOff)
	bc := childOffsets(b, bOff)
	i, j := 0, 0
	for i < len(ac) && j < len(bc) {
		as := ac[i].offset.Bytes + ac[i].subtree.padding.Bytes
		bs := bc[j].offset.Bytes + bc[j].subtree.padding.Bytes
		switch {
		case as == bs:
			diffSubtrees(ac[i].subtree, ac[i].offset, bc[j].subtree, bc[j].offset, out)
			i++
			j++
		case as < bs:
			*out = append(*out, subtreeRange(ac[i].subtree, ac[i].offset))
			i++
		default:
			*out = append(*out, subtreeRange(bc[j].subtree, bc[j].offset))
			j++
		}
	}
	for ; i < len(ac); i++ {
		*out = append(*out, subtreeRange(ac[i].subtree, ac[i].offset))
	}
	for ; j < len(bc); j++ {
		*out = append(*out, subtreeRange(bc[j].subtree, bc[j].offset))
	}
}

type placedSubtree struct {
	subtree *Subtree
	offset  Length
}

func childOffsets(s *Subtree, offset Length) []placedSubtree {
	out := make([]placedSubtree, len(s.children))
	pos := offset
	for i, c := range s.children {
		out[i] = placedSubtree{subtree: c, offset: pos}
		pos = pos.add(c.totalSize())
	}
	return out
}

// mergeRanges sorts ranges and joins the ones that overlap or touch. Empty
// ranges are dropped.
func mergeRanges(ranges []Range) []Range {
	kept := ranges[:0]
	for _, r := range ranges {
		if r.EndByte > r.StartByte {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].StartByte < kept[j].StartByte })
	out := []Range{kept[0]}
	for _, r := range kept[1:] {
		last := &out[len(out)-1]
		if r.StartByte <= last.EndByte {
			if r.EndByte > last.EndByte {
				last.EndByte, last.EndPoint = r.EndByte, r.EndPoint
			}
			continue
		}
		out = append(out, r)
	}
	return out
}
