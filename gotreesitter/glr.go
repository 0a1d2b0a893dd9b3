package gotreesitter

import (
	"sort"

	"go.uber.org/zap"
)

// maxVersionCount caps the number of stack versions kept alive at once.
const maxVersionCount = 6

// maxCostDifference is how far behind the best version a version's error
// cost may fall before it is dropped.
const maxCostDifference = 16 * ErrorCostPerSkippedTree

// stackNode is one link of a persistent parse stack. Versions share their
// common prefix, so forking a version is a pointer copy.
type stackNode struct {
	state    StateID
	subtree  *Subtree
	prev     *stackNode
	position Length // absolute end of subtree

	errorCost     uint32
	dynPrec       int32
	externalState []byte

	// pending marks a node reused whole from an old tree; it is broken
	// back into its children if the next token does not fit after it.
	pending bool
}

type versionStatus uint8

const (
	versionActive versionStatus = iota
	versionPaused
	versionHalted
)

// stackVersion is one branch of the GLR parse.
type stackVersion struct {
	id     uint32
	head   *stackNode
	status versionStatus

	// lookahead that made a paused version fail
	lookahead *Subtree

	// recovery bookkeeping for the current position
	recoverPos   uint32
	recoverCount int
	missingPos   uint32
	hasMissing   bool
}

func (v *stackVersion) state() StateID        { return v.head.state }
func (v *stackVersion) position() Length      { return v.head.position }
func (v *stackVersion) externalState() []byte { return v.head.externalState }

func (v *stackVersion) cost() uint32 {
	c := v.head.errorCost
	if v.status == versionPaused {
		c += ErrorCostPerRecovery
	}
	return c
}

// fork copies a version; the copy shares the stack.
func (v *stackVersion) fork(id uint32) *stackVersion {
	c := *v
	c.id = id
	return &c
}

func (p *Parser) push(v *stackVersion, s *Subtree, state StateID) {
	n := p.arena.allocNode()
	n.state = state
	n.subtree = s
	n.prev = v.head
	n.position = v.head.position.add(s.totalSize())
	n.errorCost = v.head.errorCost + s.errorCost
	n.dynPrec = v.head.dynPrec + s.dynamicPrecedence
	n.externalState = v.head.externalState
	if s.is(flagHasExternalTokens) {
		n.externalState = s.lastExternalState()
	}
	v.head = n
}

// pop removes count non-extra subtrees (and any extras interleaved with
// them) from the top of the stack. It returns the subtrees in stack order
// and the link below them.
func popCount(head *stackNode, count int) ([]*Subtree, *stackNode) {
	var popped []*Subtree
	n := head
	for count > 0 && n.prev != nil {
		popped = append(popped, n.subtree)
		if !n.subtree.isExtra() {
			count--
		}
		n = n.prev
	}
	for i, j := 0, len(popped)-1; i < j; i, j = i+1, j-1 {
		popped[i], popped[j] = popped[j], popped[i]
	}
	return popped, n
}

// popAll returns every subtree on the stack in order.
func popAll(head *stackNode) []*Subtree {
	var out []*Subtree
	for n := head; n.prev != nil; n = n.prev {
		out = append(out, n.subtree)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// betterVersion reports whether a should be kept over b: lower error cost
// first, then higher dynamic precedence, then the version created first.
func betterVersion(a, b *stackVersion) bool {
	if ca, cb := a.cost(), b.cost(); ca != cb {
		return ca < cb
	}
	if a.head.dynPrec != b.head.dynPrec {
		return a.head.dynPrec > b.head.dynPrec
	}
	return a.id < b.id
}

// condense drops halted versions, merges versions that reached the same
// state at the same position, and caps the number of versions. It returns
// the surviving versions ordered best first.
func (p *Parser) condense(versions []*stackVersion) []*stackVersion {
	alive := versions[:0]
	for _, v := range versions {
		if v.status != versionHalted {
			alive = append(alive, v)
		}
	}
	if len(alive) <= 1 {
		return alive
	}

	sort.SliceStable(alive, func(i, j int) bool { return betterVersion(alive[i], alive[j]) })

	result := make([]*stackVersion, 0, len(alive))
	for _, v := range alive {
		merged := false
		for _, kept := range result {
			if kept.status != v.status || kept.state() != v.state() ||
				kept.position().Bytes != v.position().Bytes ||
				!externalStatesEqual(kept.externalState(), v.externalState()) {
				continue
			}
			// kept is ordered before v, so it wins.
			p.log("merge", zap.Uint32("version", v.id), zap.Uint32("into", kept.id))
			merged = true
			break
		}
		if !merged {
			result = append(result, v)
		}
	}

	minCost := result[0].cost()
	out := result[:0]
	for _, v := range result {
		if v.status == versionActive && v.cost() > minCost+maxCostDifference {
			continue
		}
		out = append(out, v)
	}
	if len(out) > maxVersionCount {
		out = out[:maxVersionCount]
	}
	return out
}
