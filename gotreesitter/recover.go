package gotreesitter

import (
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
)

// maxSimulatedSteps bounds the reductions followed when checking whether a
// token could be shifted from a stack.
const maxSimulatedSteps = 256

// recoveryCandidate is one way of getting a paused version going again.
type recoveryCandidate struct {
	kind    string
	head    *stackNode
	missing bool
}

// recover resumes a paused version. It builds every applicable repair for
// the failed lookahead: inserting a missing token, popping stack entries into
// an ERROR node, or skipping the lookahead. The cheapest repair continues the
// version and the others are forked so later input can decide between them.
func (p *Parser) recover(v *stackVersion) {
	s := p.session
	lang := p.language
	la := v.lookahead
	v.lookahead = nil
	v.status = versionActive

	pos := v.position().Bytes
	if v.recoverPos != pos {
		v.recoverPos = pos
		v.recoverCount = 0
	}
	v.recoverCount++
	s.stats.Recoveries++
	s.recoveriesLeft--

	p.log("recover", zap.Uint32("version", v.id), zap.Uint32("position", pos),
		zap.String("lookahead", lang.SymbolName(la.symbol)), zap.Int("attempt", v.recoverCount))

	if s.recoveriesLeft <= 0 {
		p.log("recovery_budget_exhausted", zap.Int("limit", MaxRecoveryAttempts))
		s.skipAll = true
		p.skipRest(v, la)
		return
	}

	var candidates []recoveryCandidate
	if v.recoverCount <= maxRecoveriesPerPosition {
		if !(v.hasMissing && v.missingPos == pos) && la.symbol != errorSymbol {
			if head, ok := p.insertMissing(v, la); ok {
				candidates = append(candidates, recoveryCandidate{kind: "missing", head: head, missing: true})
			}
		}
		if head, ok := p.popToRecoverable(v, la); ok {
			candidates = append(candidates, recoveryCandidate{kind: "pop", head: head})
		}
	}
	if la.symbol != SymbolEnd {
		candidates = append(candidates, recoveryCandidate{kind: "skip", head: p.skipped(v.head, la)})
	}

	if len(candidates) == 0 {
		p.wrapStack(v)
		return
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].head.errorCost < candidates[j].head.errorCost
	})
	for i, c := range candidates {
		target := v
		if i > 0 {
			if len(s.versions) >= maxVersionCount {
				break
			}
			target = v.fork(p.newVersionID())
			s.versions = append(s.versions, target)
		}
		target.head = c.head
		if c.missing {
			target.hasMissing = true
			target.missingPos = pos
		}
		p.log("recover_with", zap.Uint32("version", target.id), zap.String("strategy", c.kind),
			zap.Uint32("error_cost", c.head.errorCost))
	}
}

// insertMissing looks for a terminal which, inserted as a zero-width MISSING
// token, lets the lookahead be shifted.
func (p *Parser) insertMissing(v *stackVersion, la *Subtree) (*stackNode, bool) {
	lang := p.language
	state := v.state()
	for sym := Symbol(1); uint32(sym) < lang.TokenCount; sym++ {
		if sym == la.symbol {
			continue
		}
		entry := lang.lookupAction(state, sym)
		if entry == nil {
			continue
		}
		for _, act := range entry.Actions {
			if act.Type != ParseActionShift || act.Extra || act.Repetition {
				continue
			}
			if !p.simulate(v.head, []StateID{act.State}, la.symbol) {
				continue
			}
			leaf := newMissingLeaf(p.session.subtrees, lang, sym, Length{}, la.totalBytes()+la.lookaheadBytes, state)
			tmp := &stackVersion{head: v.head}
			p.push(tmp, leaf, act.State)
			return tmp.head, true
		}
	}
	return nil, false
}

// popToRecoverable pops entries off the stack until the lookahead can be
// shifted, and pushes the popped subtrees back as one ERROR node.
func (p *Parser) popToRecoverable(v *stackVersion, la *Subtree) (*stackNode, bool) {
	var popped []*Subtree
	nonExtra := 0
	link := v.head
	for depth := 0; depth < maxRecoverDepth && link.prev != nil; depth++ {
		popped = append(popped, link.subtree)
		if !link.subtree.isExtra() {
			nonExtra++
		}
		link = link.prev
		if link.prev != nil && link.subtree.isExtra() {
			continue
		}
		if nonExtra == 0 || !p.simulate(link, nil, la.symbol) {
			continue
		}
		for i, j := 0, len(popped)-1; i < j; i, j = i+1, j-1 {
			popped[i], popped[j] = popped[j], popped[i]
		}
		errNode := newErrorNode(p.session.subtrees, p.language, flattenErrors(popped), true)
		tmp := &stackVersion{head: link}
		p.push(tmp, errNode, link.state)
		return tmp.head, true
	}
	return nil, false
}

// flattenErrors splices the children of nested ERROR extras into their
// parent list.
func flattenErrors(subtrees []*Subtree) []*Subtree {
	out := make([]*Subtree, 0, len(subtrees))
	for _, t := range subtrees {
		if t.isError() && t.isExtra() && len(t.children) > 0 {
			out = append(out, t.children...)
			continue
		}
		out = append(out, t)
	}
	return out
}

// skipped returns a stack with la folded into an ERROR extra on top. A fresh
// ERROR extra already on top absorbs la instead of nesting.
func (p *Parser) skipped(head *stackNode, la *Subtree) *stackNode {
	s := p.session
	lang := p.language
	base := head
	var children []*Subtree
	if top := head.subtree; head.prev != nil && top.isError() && top.isExtra() && len(top.children) > 0 && atomic.LoadInt32(&top.refs) == 0 {
		base = head.prev
		children = append(children, top.children...)
	}
	if len(children) == 0 && la.isError() && len(la.children) == 0 {
		leaf := la.clone()
		leaf.set(flagExtra, true)
		tmp := &stackVersion{head: head}
		p.push(tmp, leaf, head.state)
		return tmp.head
	}
	children = append(children, la)
	errNode := newErrorNode(s.subtrees, lang, children, true)
	tmp := &stackVersion{head: base}
	p.push(tmp, errNode, base.state)
	return tmp.head
}

// skipRest is used once the recovery budget is spent: every remaining token
// is folded into a single ERROR node and the stack is wrapped at the end.
func (p *Parser) skipRest(v *stackVersion, la *Subtree) {
	if la.symbol == SymbolEnd {
		p.wrapStack(v)
		return
	}
	v.head = p.skipped(v.head, la)
	v.status = versionActive
}

// wrapStack finishes a version by wrapping everything on its stack in an
// ERROR root.
func (p *Parser) wrapStack(v *stackVersion) {
	v.status = versionHalted
	root := newErrorNode(p.session.subtrees, p.language, flattenErrors(popAll(v.head)), false)
	p.log("wrap_stack", zap.Uint32("version", v.id), zap.Uint32("error_cost", root.errorCost))
	p.finishVersion(v, root)
}

// simStack is a read-only view of a parse stack with extra states pushed on
// top, used to test actions without building subtrees.
type simStack struct {
	link    *stackNode
	overlay []simEntry
}

type simEntry struct {
	state StateID
	extra bool
}

func (st *simStack) top() StateID {
	if n := len(st.overlay); n > 0 {
		return st.overlay[n-1].state
	}
	return st.link.state
}

func (st *simStack) pop(count int) bool {
	for count > 0 {
		if n := len(st.overlay); n > 0 {
			if !st.overlay[n-1].extra {
				count--
			}
			st.overlay = st.overlay[:n-1]
			continue
		}
		if st.link.prev == nil {
			return false
		}
		if !st.link.subtree.isExtra() {
			count--
		}
		st.link = st.link.prev
	}
	return true
}

// simulate reports whether sym could be shifted or accepted on the stack
// made of link plus pushed, following the first reduction at each step.
func (p *Parser) simulate(link *stackNode, pushed []StateID, sym Symbol) bool {
	lang := p.language
	st := simStack{link: link}
	for _, s := range pushed {
		st.overlay = append(st.overlay, simEntry{state: s})
	}
	for step := 0; step < maxSimulatedSteps; step++ {
		entry := lang.lookupAction(st.top(), sym)
		if entry == nil {
			return false
		}
		var reduce *ParseAction
		for i := range entry.Actions {
			act := &entry.Actions[i]
			switch act.Type {
			case ParseActionShift:
				if !act.Repetition && !act.Extra {
					return true
				}
			case ParseActionAccept:
				return true
			case ParseActionReduce:
				if reduce == nil {
					reduce = act
				}
			}
		}
		if reduce == nil {
			return false
		}
		if !st.pop(int(reduce.ChildCount)) {
			return false
		}
		next, ok := lang.nextState(st.top(), reduce.Symbol)
		if !ok {
			return false
		}
		st.overlay = append(st.overlay, simEntry{state: next})
	}
	return false
}
