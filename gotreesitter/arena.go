package gotreesitter

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

const (
	// incrementalArenaSlab is sized for steady-state edits where only a small
	// frontier of the stack is rebuilt.
	incrementalArenaSlab = 16 * 1024
	// fullParseArenaSlab holds the stack links of a full parse of a
	// medium-sized file without growing.
	fullParseArenaSlab = 256 * 1024
	minArenaNodeCap    = 64

	subtreeSlabLen = 256
)

type arenaClass uint8

const (
	arenaClassIncremental arenaClass = iota
	arenaClassFull
)

// stackArena is a slab-backed allocator for GLR stack links. Stack links
// never escape a parse, so the whole slab is recycled once the parser that
// owns it finishes or is reset.
type stackArena struct {
	class arenaClass
	nodes []stackNode
	used  int
	refs  atomic.Int32
}

var (
	incrementalArenaPool = sync.Pool{
		New: func() any {
			return newStackArena(arenaClassIncremental, incrementalArenaSlab)
		},
	}
	fullArenaPool = sync.Pool{
		New: func() any {
			return newStackArena(arenaClassFull, fullParseArenaSlab)
		},
	}
)

func nodeCapacityForBytes(slabBytes int) int {
	nodeSize := int(unsafe.Sizeof(stackNode{}))
	if nodeSize <= 0 {
		return minArenaNodeCap
	}
	capacity := slabBytes / nodeSize
	if capacity < minArenaNodeCap {
		return minArenaNodeCap
	}
	return capacity
}

func newStackArena(class arenaClass, slabBytes int) *stackArena {
	return &stackArena{
		class: class,
		nodes: make([]stackNode, nodeCapacityForBytes(slabBytes)),
	}
}

func acquireStackArena(class arenaClass) *stackArena {
	var a *stackArena
	switch class {
	case arenaClassIncremental:
		a = incrementalArenaPool.Get().(*stackArena)
	default:
		a = fullArenaPool.Get().(*stackArena)
	}
	a.refs.Store(1)
	return a
}

func (a *stackArena) Retain() {
	if a == nil {
		return
	}
	a.refs.Add(1)
}

func (a *stackArena) Release() {
	if a == nil {
		return
	}
	if a.refs.Add(-1) != 0 {
		return
	}
	a.reset()
	switch a.class {
	case arenaClassIncremental:
		incrementalArenaPool.Put(a)
	default:
		fullArenaPool.Put(a)
	}
}

func (a *stackArena) reset() {
	for i := 0; i < a.used; i++ {
		a.nodes[i] = stackNode{}
	}
	a.used = 0
}

func (a *stackArena) allocNode() *stackNode {
	if a == nil {
		return &stackNode{}
	}
	if a.used < len(a.nodes) {
		n := &a.nodes[a.used]
		a.used++
		*n = stackNode{}
		return n
	}
	// Fallback when slab is exhausted.
	return &stackNode{}
}

// subtreeArena hands out Subtrees from fixed-size slabs. Subtrees outlive the
// parse that built them and may be shared by later trees, so slabs are never
// recycled; the garbage collector frees a slab once no subtree in it is
// reachable.
type subtreeArena struct {
	slab []Subtree
	used int
}

func (a *subtreeArena) alloc() *Subtree {
	if a == nil {
		return &Subtree{}
	}
	if a.used == len(a.slab) {
		a.slab = make([]Subtree, subtreeSlabLen)
		a.used = 0
	}
	s := &a.slab[a.used]
	a.used++
	return s
}
