package gotreesitter

import "math"

// DefaultMatchLimit bounds the number of matches a QueryCursor keeps in
// progress at once.
const DefaultMatchLimit = 1 << 16

// QueryCursor runs a Query over a tree. All patterns advance together in a
// single depth-first walk; a match is reported as soon as its last node has
// been seen and no longer alternative for it is still in progress.
type QueryCursor struct {
	query  *Query
	cursor *TreeCursor
	parent []*Node
	depth  uint32

	states   []*queryState
	finished []*queryState
	nextID   uint32

	ascending bool
	halted    bool

	startByte, endByte   uint32
	startPoint, endPoint Point
	maxStartDepth        uint32
	matchLimit           int
	didExceedMatchLimit  bool
}

type queryState struct {
	id           uint32
	hasID        bool
	pattern      int
	step         int
	startDepth   uint32
	captures     []QueryCapture
	consumed     int
	seekingImmed bool
	hasLonger    bool
	dead         bool
}

func (s *queryState) copy() *queryState {
	c := *s
	c.captures = append([]QueryCapture(nil), s.captures...)
	c.hasID = false
	return &c
}

// NewQueryCursor creates a cursor with no range restriction.
func NewQueryCursor() *QueryCursor {
	return &QueryCursor{
		endByte:       math.MaxUint32,
		endPoint:      Point{Row: math.MaxUint32, Column: math.MaxUint32},
		maxStartDepth: math.MaxUint32,
		matchLimit:    DefaultMatchLimit,
	}
}

// SetByteRange restricts matches to nodes intersecting [start, end).
func (qc *QueryCursor) SetByteRange(start, end uint32) {
	if end == 0 {
		end = math.MaxUint32
	}
	qc.startByte, qc.endByte = start, end
}

// SetPointRange restricts matches to nodes intersecting [start, end).
func (qc *QueryCursor) SetPointRange(start, end Point) {
	if end == (Point{}) {
		end = Point{Row: math.MaxUint32, Column: math.MaxUint32}
	}
	qc.startPoint, qc.endPoint = start, end
}

// SetMaxStartDepth stops patterns from starting deeper than depth below
// the node the cursor was started on.
func (qc *QueryCursor) SetMaxStartDepth(depth uint32) { qc.maxStartDepth = depth }

// SetMatchLimit bounds the in-progress matches. When the limit is hit the
// oldest match is dropped.
func (qc *QueryCursor) SetMatchLimit(limit int) {
	if limit <= 0 {
		limit = DefaultMatchLimit
	}
	qc.matchLimit = limit
}

// MatchLimit returns the current match limit.
func (qc *QueryCursor) MatchLimit() int { return qc.matchLimit }

// DidExceedMatchLimit reports whether matches were dropped during the last
// run.
func (qc *QueryCursor) DidExceedMatchLimit() bool { return qc.didExceedMatchLimit }

// Exec starts running q over the subtree rooted at node.
func (qc *QueryCursor) Exec(q *Query, node *Node) {
	qc.query = q
	qc.cursor = NewTreeCursor(node)
	qc.parent = qc.parent[:0]
	qc.depth = 0
	qc.states = qc.states[:0]
	qc.finished = qc.finished[:0]
	qc.ascending = false
	qc.halted = false
	qc.didExceedMatchLimit = false
}

// NextMatch returns the next complete match. Text predicates are not
// evaluated; use Matches for that.
func (qc *QueryCursor) NextMatch() (QueryMatch, bool) {
	if qc.query == nil {
		return QueryMatch{}, false
	}
	for len(qc.finished) == 0 {
		if !qc.advance() && len(qc.finished) == 0 {
			return QueryMatch{}, false
		}
	}
	st := qc.finished[0]
	qc.finished = qc.finished[1:]
	return qc.matchFor(st), true
}

// NextCapture returns the next capture in document order together with
// the match it belongs to. Captures are ordered by start position, then
// outer nodes before inner ones, then by pattern.
func (qc *QueryCursor) NextCapture() (QueryMatch, uint32, bool) {
	if qc.query == nil {
		return QueryMatch{}, 0, false
	}
	for {
		var best *queryState
		var bestKey captureKey
		for i := 0; i < len(qc.finished); {
			st := qc.finished[i]
			if st.consumed >= len(st.captures) {
				qc.finished = append(qc.finished[:i], qc.finished[i+1:]...)
				continue
			}
			n := st.captures[st.consumed].Node
			if !qc.nodeIntersectsRange(n) {
				st.consumed++
				continue
			}
			k := keyFor(n, st.pattern)
			if best == nil || k.less(bestKey) {
				best, bestKey = st, k
			}
			i++
		}
		if best != nil && (qc.halted || qc.precedesInProgress(bestKey)) {
			m := qc.matchFor(best)
			idx := uint32(best.consumed)
			best.consumed++
			return m, idx, true
		}
		if qc.halted && best == nil {
			return QueryMatch{}, 0, false
		}
		qc.advance()
	}
}

// RemoveMatch drops a match that was returned earlier so that its
// remaining captures are not reported.
func (qc *QueryCursor) RemoveMatch(id uint32) {
	for i, st := range qc.finished {
		if st.hasID && st.id == id {
			qc.finished = append(qc.finished[:i], qc.finished[i+1:]...)
			return
		}
	}
	for i, st := range qc.states {
		if st.hasID && st.id == id {
			qc.states = append(qc.states[:i], qc.states[i+1:]...)
			return
		}
	}
}

func (qc *QueryCursor) matchFor(st *queryState) QueryMatch {
	if !st.hasID {
		st.id = qc.nextID
		st.hasID = true
		qc.nextID++
	}
	return QueryMatch{ID: st.id, PatternIndex: st.pattern, Captures: st.captures}
}

type captureKey struct {
	start, end uint32
	pattern    int
}

func keyFor(n *Node, pattern int) captureKey {
	return captureKey{start: n.StartByte(), end: n.EndByte(), pattern: pattern}
}

func (a captureKey) less(b captureKey) bool {
	if a.start != b.start {
		return a.start < b.start
	}
	if a.end != b.end {
		return a.end > b.end
	}
	return a.pattern < b.pattern
}

// precedesInProgress reports whether no in-progress match holds a capture
// ordered before k.
func (qc *QueryCursor) precedesInProgress(k captureKey) bool {
	for _, st := range qc.states {
		for _, c := range st.captures {
			if keyFor(c.Node, st.pattern).less(k) {
				return false
			}
		}
	}
	return true
}

func (qc *QueryCursor) nodeIntersectsRange(n *Node) bool {
	return !qc.precedesRange(n) && !qc.followsRange(n)
}

func (qc *QueryCursor) precedesRange(n *Node) bool {
	end, endPt := n.EndByte(), n.EndPoint()
	if end < qc.startByte || (end == qc.startByte && n.StartByte() < end) {
		return true
	}
	return pointLess(endPt, qc.startPoint) || (endPt == qc.startPoint && n.StartPoint() != endPt)
}

func (qc *QueryCursor) followsRange(n *Node) bool {
	return n.StartByte() >= qc.endByte || !pointLess(n.StartPoint(), qc.endPoint)
}

func pointLess(a, b Point) bool {
	return a.Row < b.Row || (a.Row == b.Row && a.Column < b.Column)
}

// advance walks the tree until at least one match finishes or the walk
// ends. It returns whether a match finished.
func (qc *QueryCursor) advance() bool {
	didMatch := false
	for {
		if qc.halted {
			qc.states = qc.states[:0]
		}
		if didMatch || qc.halted {
			return didMatch
		}

		if qc.ascending {
			if qc.cursor.GotoNextSibling() {
				qc.ascending = false
			} else if qc.cursor.GotoParent() {
				qc.depth--
				qc.parent = qc.parent[:len(qc.parent)-1]
			} else {
				qc.halted = true
			}

			// Drop states that needed more of the node just left, and finish
			// the ones that were waiting for longer alternatives inside it.
			kept := qc.states[:0]
			for _, st := range qc.states {
				step := &qc.query.steps[st.step]
				switch {
				case step.done() && (st.startDepth > qc.depth || qc.depth == 0):
					qc.finished = append(qc.finished, st)
					didMatch = true
				case !step.done() && st.startDepth+uint32(step.depth) > qc.depth:
				default:
					kept = append(kept, st)
				}
			}
			qc.states = kept
			continue
		}

		didMatch = qc.enterNode() || didMatch

		if !qc.shouldDescend() {
			qc.ascending = true
			continue
		}
		node := qc.cursor.CurrentNode()
		if qc.cursor.GotoFirstChild() {
			qc.parent = append(qc.parent, node)
			qc.depth++
		} else {
			qc.ascending = true
		}
	}
}

func (qc *QueryCursor) shouldDescend() bool {
	if qc.nodeIntersectsRange(qc.cursor.CurrentNode()) {
		return true
	}
	for _, st := range qc.states {
		step := &qc.query.steps[st.step]
		if !step.done() && st.startDepth+uint32(step.depth) > qc.depth {
			return true
		}
	}
	return false
}

// enterNode starts new states at the current node and advances the states
// in progress. It returns whether any state finished.
func (qc *QueryCursor) enterNode() bool {
	q := qc.query
	node := qc.cursor.CurrentNode()
	var parent *Node
	if len(qc.parent) > 0 {
		parent = qc.parent[len(qc.parent)-1]
	}
	parentIntersects := parent == nil || qc.nodeIntersectsRange(parent)
	nodeIntersects := parentIntersects && qc.nodeIntersectsRange(node)
	parentIsError := parent != nil && parent.IsError()

	sym := node.Symbol()
	isNamed := node.IsNamed()
	isMissing := node.IsMissing()
	isError := sym == errorSymbol
	status := qc.cursor.status()

	startOK := func(e *patternEntry) bool {
		step := &q.steps[e.step]
		if q.patterns[e.pattern].disabled {
			return false
		}
		if e.rooted {
			if !nodeIntersects {
				return false
			}
		} else if !parentIntersects || parentIsError {
			return false
		}
		if step.field != 0 && step.field != status.field {
			return false
		}
		return uint32(step.depth) <= qc.depth && qc.depth-uint32(step.depth) <= qc.maxStartDepth
	}
	if !isError {
		for _, ei := range q.rootFallbackCandidates {
			if e := &q.entries[ei]; startOK(e) {
				qc.addState(e)
			}
		}
	}
	for _, ei := range q.rootPatternCandidates(sym) {
		if e := &q.entries[ei]; startOK(e) {
			qc.addState(e)
		}
	}

	for j := 0; j < len(qc.states); j++ {
		st := qc.states[j]
		step := &q.steps[st.step]
		st.hasLonger = false
		if st.dead || step.done() || st.startDepth+uint32(step.depth) != qc.depth {
			continue
		}

		var matches bool
		if step.symbol == wildcardSymbol {
			matches = !isError && (isNamed || !step.isNamed)
		} else {
			matches = sym == step.symbol
		}
		if step.isMissing && !isMissing {
			matches = false
		}
		laterCanMatch := status.hasLater
		if (step.isImmediate && isNamed) || st.seekingImmed {
			laterCanMatch = false
		}
		if step.isLastChild && status.hasLaterNamed {
			matches = false
		}
		if step.field != 0 {
			if step.field == status.field {
				if !status.laterWithSameField {
					laterCanMatch = false
				}
			} else {
				matches = false
			}
		}
		for _, f := range step.negatedFields {
			if node.ChildByFieldID(f) != nil {
				matches = false
				break
			}
		}

		if !matches {
			if !laterCanMatch {
				qc.states = append(qc.states[:j], qc.states[j+1:]...)
				j--
			}
			continue
		}

		// A step that could also match a later sibling keeps a copy of
		// the state that skips this node.
		copies := 0
		if laterCanMatch && (step.containsCaptures || q.stepIsFallible(st.step)) {
			qc.insertState(j+1, st.copy())
			copies++
		}

		if len(step.captureIDs) > 0 {
			qc.capture(st, step, node)
		}
		if st.dead {
			qc.states = append(qc.states[:j], qc.states[j+1:]...)
			j += copies - 1
			continue
		}

		st.step++
		st.seekingImmed = false

		// Follow alternatives. Dead ends jump; pass-through steps split and
		// advance; everything else splits into the alternative.
		end := j + 1
		for k := j; k < end; k++ {
			child := qc.states[k]
			cs := &q.steps[child.step]
			if cs.alternative == noAlternative {
				continue
			}
			if cs.isDeadEnd {
				child.step = cs.alternative
				k--
				continue
			}
			if cs.isPassThrough {
				child.step++
				k--
			}
			c := child.copy()
			c.step = cs.alternative
			if cs.alternativeIsImmediate {
				c.seekingImmed = true
			}
			qc.insertState(k+1, c)
			copies++
			end++
		}
		j += copies
	}

	return qc.settleStates()
}

// settleStates removes redundant states and moves the completed ones to
// the finished list.
func (qc *QueryCursor) settleStates() bool {
	q := qc.query
	didMatch := false
	for j := 0; j < len(qc.states); j++ {
		st := qc.states[j]
		if st.dead {
			qc.states = append(qc.states[:j], qc.states[j+1:]...)
			j--
			continue
		}

		// Among states of the same pattern and root, keep the one whose
		// captures include the other's.
		removed := false
		for k := j + 1; k < len(qc.states); k++ {
			other := qc.states[k]
			if other.startDepth != st.startDepth || other.pattern != st.pattern {
				break
			}
			leftHasRight, rightHasLeft := compareCaptures(st.captures, other.captures)
			if leftHasRight {
				if st.step == other.step {
					qc.states = append(qc.states[:k], qc.states[k+1:]...)
					k--
					continue
				}
				other.hasLonger = true
			}
			if rightHasLeft {
				if st.step == other.step {
					qc.states = append(qc.states[:j], qc.states[j+1:]...)
					j--
					removed = true
					break
				}
				st.hasLonger = true
			}
		}
		if removed {
			continue
		}
		if q.steps[st.step].done() && !st.hasLonger {
			qc.finished = append(qc.finished, st)
			qc.states = append(qc.states[:j], qc.states[j+1:]...)
			j--
			didMatch = true
		}
	}
	return didMatch
}

// addState starts a pattern at the current node, keeping states ordered
// by start depth and then pattern index.
func (qc *QueryCursor) addState(e *patternEntry) {
	step := &qc.query.steps[e.step]
	startDepth := qc.depth - uint32(step.depth)
	index := len(qc.states)
	for index > 0 {
		prev := qc.states[index-1]
		if prev.startDepth < startDepth {
			break
		}
		if prev.startDepth == startDepth {
			if prev.pattern == e.pattern && prev.step == e.step {
				return
			}
			if prev.pattern <= e.pattern {
				break
			}
		}
		index--
	}
	qc.insertState(index, &queryState{
		pattern:      e.pattern,
		step:         e.step,
		startDepth:   startDepth,
		seekingImmed: true,
	})
}

func (qc *QueryCursor) insertState(i int, st *queryState) {
	qc.states = append(qc.states, nil)
	copy(qc.states[i+1:], qc.states[i:])
	qc.states[i] = st
}

// capture records node under each capture of step. A state's first
// capture counts against the match limit; at the limit the state with the
// earliest capture is dropped.
func (qc *QueryCursor) capture(st *queryState, step *queryStep, node *Node) {
	if st.captures == nil {
		holders := 0
		var earliest *queryState
		for _, s := range qc.states {
			if s.dead || len(s.captures) == 0 {
				continue
			}
			holders++
			if earliest == nil || keyFor(s.captures[0].Node, s.pattern).less(keyFor(earliest.captures[0].Node, earliest.pattern)) {
				earliest = s
			}
		}
		if holders+len(qc.finished) >= qc.matchLimit {
			qc.didExceedMatchLimit = true
			if earliest == nil {
				st.dead = true
				return
			}
			earliest.dead = true
		}
		st.captures = make([]QueryCapture, 0, len(step.captureIDs))
	}
	for _, id := range step.captureIDs {
		st.captures = append(st.captures, QueryCapture{Name: qc.query.captures[id], Index: id, Node: node})
	}
}

// compareCaptures reports whether each capture list contains the other.
// Lists are in document order.
func compareCaptures(left, right []QueryCapture) (leftHasRight, rightHasLeft bool) {
	leftHasRight, rightHasLeft = true, true
	i, j := 0, 0
	for {
		if i >= len(left) {
			if j < len(right) {
				leftHasRight = false
			}
			return
		}
		if j >= len(right) {
			rightHasLeft = false
			return
		}
		l, r := left[i], right[j]
		if l.Node.Equal(r.Node) && l.Index == r.Index {
			i++
			j++
			continue
		}
		switch compareNodes(l.Node, r.Node) {
		case -1:
			rightHasLeft = false
			i++
		case 1:
			leftHasRight = false
			j++
		default:
			rightHasLeft = false
			leftHasRight = false
			i++
			j++
		}
	}
}

func compareNodes(a, b *Node) int {
	if a.Equal(b) {
		return 0
	}
	as, bs := a.StartByte(), b.StartByte()
	if as != bs {
		if as < bs {
			return -1
		}
		return 1
	}
	ae, be := a.EndByte(), b.EndByte()
	if ae != be {
		if ae > be {
			return -1
		}
		return 1
	}
	return 0
}

// QueryMatches iterates over matches whose text predicates hold. Once Next
// reports false it keeps doing so.
type QueryMatches struct {
	cursor *QueryCursor
	text   TextProvider
	done   bool
}

// Matches starts q on node and returns an iterator over its matches. A nil
// text provider skips text predicates.
func (qc *QueryCursor) Matches(q *Query, node *Node, text TextProvider) *QueryMatches {
	qc.Exec(q, node)
	return &QueryMatches{cursor: qc, text: text}
}

// Next returns the next match.
func (it *QueryMatches) Next() (QueryMatch, bool) {
	if it.done {
		return QueryMatch{}, false
	}
	q := it.cursor.query
	for {
		m, ok := it.cursor.NextMatch()
		if !ok {
			it.done = true
			return QueryMatch{}, false
		}
		if q.satisfiesTextPredicates(&m, it.text) {
			m.Properties = q.patterns[m.PatternIndex].properties
			return m, true
		}
	}
}

// QueryCaptures iterates over captures in document order, skipping the
// captures of matches whose text predicates fail. Once Next reports false
// it keeps doing so.
type QueryCaptures struct {
	cursor  *QueryCursor
	text    TextProvider
	checked map[uint32]bool
	done    bool
}

// Captures starts q on node and returns an iterator over its captures.
func (qc *QueryCursor) Captures(q *Query, node *Node, text TextProvider) *QueryCaptures {
	qc.Exec(q, node)
	return &QueryCaptures{cursor: qc, text: text, checked: make(map[uint32]bool)}
}

// Next returns the next capture's match and the index of the capture
// within it.
func (it *QueryCaptures) Next() (QueryMatch, uint32, bool) {
	if it.done {
		return QueryMatch{}, 0, false
	}
	q := it.cursor.query
	for {
		m, idx, ok := it.cursor.NextCapture()
		if !ok {
			it.done = true
			return QueryMatch{}, 0, false
		}
		pass, seen := it.checked[m.ID]
		if !seen {
			pass = q.satisfiesTextPredicates(&m, it.text)
			it.checked[m.ID] = pass
		}
		if !pass {
			it.cursor.RemoveMatch(m.ID)
			continue
		}
		m.Properties = q.patterns[m.PatternIndex].properties
		return m, idx, true
	}
}
