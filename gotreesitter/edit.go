package gotreesitter

import (
	"math"
	"sync/atomic"
)

// InputEdit describes a single edit to the source text: the byte range
// [StartByte, OldEndByte) was replaced by text ending at NewEndByte.
type InputEdit struct {
	StartByte   uint32
	OldEndByte  uint32
	NewEndByte  uint32
	StartPoint  Point
	OldEndPoint Point
	NewEndPoint Point
}

type subtreeEdit struct {
	start  Length
	oldEnd Length
	newEnd Length
}

type editEntry struct {
	slot *(*Subtree)
	edit subtreeEdit
}

// Edit adjusts the tree for an edit to its source text so it can be passed
// to ParseIncremental. Nodes before the edit are unchanged, nodes after it
// are shifted, and nodes that touch it are marked as changed. Subtrees the
// tree shares with other trees are copied before being modified. The tree
// forgets its source text.
func (t *Tree) Edit(edit InputEdit) {
	t.edits = append(t.edits, edit)
	t.source = nil
	for i := range t.includedRanges {
		editRange(&t.includedRanges[i], edit)
	}
	if t.root == nil {
		return
	}
	stack := []editEntry{{
		slot: &t.root,
		edit: subtreeEdit{
			start:  Length{Bytes: edit.StartByte, Extent: edit.StartPoint},
			oldEnd: Length{Bytes: edit.OldEndByte, Extent: edit.OldEndPoint},
			newEnd: Length{Bytes: edit.NewEndByte, Extent: edit.NewEndPoint},
		},
	}}

	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		e := entry.edit
		self := *entry.slot

		isNoop := e.oldEnd.Bytes == e.start.Bytes && e.newEnd.Bytes == e.start.Bytes
		isPureInsertion := e.oldEnd.Bytes == e.start.Bytes

		size := self.size
		padding := self.padding
		total := padding.add(size)
		endByte := total.Bytes + self.lookaheadBytes
		if e.start.Bytes > endByte || (isNoop && e.start.Bytes == endByte) {
			continue
		}

		switch {
		case e.oldEnd.Bytes <= padding.Bytes:
			// The edit lies in the whitespace before this subtree.
			padding = e.newEnd.add(padding.sub(e.oldEnd))
		case e.start.Bytes < padding.Bytes:
			// The edit starts in the whitespace and runs into the content.
			size = size.saturatingSub(e.oldEnd.sub(padding))
			padding = e.newEnd
		case e.start.Bytes < total.Bytes || (e.start.Bytes == total.Bytes && isPureInsertion):
			size = e.newEnd.sub(padding).add(total.saturatingSub(e.oldEnd))
		}

		mut := makeMutable(self)
		mut.padding = padding
		mut.size = size
		mut.flags |= flagHasChanges
		*entry.slot = mut

		invalidateFirstRow := mut.is(flagDependsOnColumn)
		var childLeft, childRight Length
		for i := range mut.children {
			child := mut.children[i]
			childSize := child.totalSize()
			childLeft = childRight
			childRight = childLeft.add(childSize)

			if childRight.Bytes+child.lookaheadBytes < e.start.Bytes {
				continue
			}
			if (childLeft.Bytes > e.oldEnd.Bytes || (childLeft.Bytes == e.oldEnd.Bytes && childSize.Bytes > 0 && i > 0)) &&
				(!invalidateFirstRow || childLeft.Extent.Row > mut.padding.Extent.Row) {
				break
			}

			childEdit := subtreeEdit{
				start:  e.start.saturatingSub(childLeft),
				oldEnd: e.oldEnd.saturatingSub(childLeft),
				newEnd: e.newEnd.saturatingSub(childLeft),
			}
			// Inserted text belongs to the first child that touches the edit;
			// later children are only shrunk.
			if childRight.Bytes > e.start.Bytes || (childRight.Bytes == e.start.Bytes && isPureInsertion) {
				e.newEnd = e.start
			} else {
				childEdit.oldEnd = childEdit.start
				childEdit.newEnd = childEdit.start
			}
			stack = append(stack, editEntry{slot: &mut.children[i], edit: childEdit})
		}
	}
}

// makeMutable returns s itself when only one holder references it, and
// otherwise an unshared copy that replaces s for that holder.
func makeMutable(s *Subtree) *Subtree {
	if atomic.LoadInt32(&s.refs) <= 1 {
		return s
	}
	c := s.clone()
	c.refs = 1
	s.release()
	return c
}

func editRange(r *Range, edit InputEdit) {
	if r.EndByte >= edit.OldEndByte {
		if r.EndByte != math.MaxUint32 {
			r.EndByte = edit.NewEndByte + (r.EndByte - edit.OldEndByte)
			r.EndPoint = pointAdd(edit.NewEndPoint, pointSub(r.EndPoint, edit.OldEndPoint))
			if r.EndByte < edit.NewEndByte {
				r.EndByte = math.MaxUint32
				r.EndPoint = Point{Row: math.MaxUint32, Column: math.MaxUint32}
			}
		}
	} else if r.EndByte > edit.StartByte {
		r.EndByte = edit.StartByte
		r.EndPoint = edit.StartPoint
	}
	if r.StartByte >= edit.OldEndByte {
		r.StartByte = edit.NewEndByte + (r.StartByte - edit.OldEndByte)
		r.StartPoint = pointAdd(edit.NewEndPoint, pointSub(r.StartPoint, edit.OldEndPoint))
		if r.StartByte < edit.NewEndByte {
			r.StartByte = math.MaxUint32
			r.StartPoint = Point{Row: math.MaxUint32, Column: math.MaxUint32}
		}
	} else if r.StartByte > edit.StartByte {
		r.StartByte = edit.StartByte
		r.StartPoint = edit.StartPoint
	}
}

func pointAdd(a, b Point) Point {
	if b.Row > 0 {
		return Point{Row: a.Row + b.Row, Column: b.Column}
	}
	return Point{Row: a.Row, Column: a.Column + b.Column}
}

func pointSub(a, b Point) Point {
	if a.Row > b.Row {
		return Point{Row: a.Row - b.Row, Column: a.Column}
	}
	if a.Column > b.Column {
		return Point{Column: a.Column - b.Column}
	}
	return Point{}
}
