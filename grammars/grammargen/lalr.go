package grammargen

import (
	"math/bits"
	"sort"
	"strconv"
	"strings"
)

// bitset is a set of terminal symbols.
type bitset []uint64

func newBitset(n int) bitset { return make(bitset, (n+63)/64) }

func (b bitset) add(i int)      { b[i/64] |= 1 << (uint(i) % 64) }
func (b bitset) has(i int) bool { return b[i/64]&(1<<(uint(i)%64)) != 0 }

// union adds o to b and reports whether b changed.
func (b bitset) union(o bitset) bool {
	changed := false
	for i := range b {
		if n := b[i] | o[i]; n != b[i] {
			b[i] = n
			changed = true
		}
	}
	return changed
}

func (b bitset) clone() bitset { return append(bitset(nil), b...) }

func (b bitset) each(fn func(int)) {
	for i, w := range b {
		for w != 0 {
			t := bits.TrailingZeros64(w)
			fn(i*64 + t)
			w &= w - 1
		}
	}
}

type item struct {
	prod int
	dot  int
}

// lrState is an LALR(1) state: LR(0) kernel items with merged lookaheads.
type lrState struct {
	kernel    []item
	lookahead map[item]bitset
	next      map[int]int
	queued    bool
}

type closedState struct {
	items     []item
	lookahead map[item]bitset
}

// automaton builds LALR(1) states by merging LR(1) states with equal cores
// as they are discovered, and reprocessing a state whenever its lookaheads
// grow.
type automaton struct {
	p        *prepared
	prods    []production // grammar productions plus the augmented start
	aug      int
	first    []bitset
	nullable []bool

	states []*lrState
	cores  map[string]int
}

func newAutomaton(p *prepared) *automaton {
	a := &automaton{p: p, cores: make(map[string]int)}
	a.prods = append(append([]production(nil), p.productions...), production{
		lhs:   len(p.symbols),
		steps: []step{{sym: p.start}},
	})
	a.aug = len(a.prods) - 1
	a.computeFirst()
	return a
}

func (a *automaton) computeFirst() {
	n := len(a.p.symbols) + 1
	a.first = make([]bitset, n)
	a.nullable = make([]bool, n)
	for sym := range a.first {
		a.first[sym] = newBitset(a.p.tokenCount)
		if sym < a.p.tokenCount {
			a.first[sym].add(sym)
		}
	}
	for changed := true; changed; {
		changed = false
		for _, prod := range a.prods {
			lhs := prod.lhs
			allNullable := true
			for _, s := range prod.steps {
				if a.first[lhs].union(a.first[s.sym]) {
					changed = true
				}
				if !a.nullable[s.sym] {
					allNullable = false
					break
				}
			}
			if allNullable && !a.nullable[lhs] {
				a.nullable[lhs] = true
				changed = true
			}
		}
	}
}

// firstOf returns FIRST(steps) plus follow when every step is nullable.
func (a *automaton) firstOf(steps []step, follow bitset) bitset {
	out := newBitset(a.p.tokenCount)
	for _, s := range steps {
		out.union(a.first[s.sym])
		if !a.nullable[s.sym] {
			return out
		}
	}
	out.union(follow)
	return out
}

func (a *automaton) nextSymbol(it item) (int, bool) {
	steps := a.prods[it.prod].steps
	if it.dot >= len(steps) {
		return 0, false
	}
	return steps[it.dot].sym, true
}

func (a *automaton) closure(s *lrState) closedState {
	cs := closedState{lookahead: make(map[item]bitset, len(s.kernel)*2)}
	for _, it := range s.kernel {
		cs.items = append(cs.items, it)
		cs.lookahead[it] = s.lookahead[it].clone()
	}
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(cs.items); i++ {
			it := cs.items[i]
			sym, ok := a.nextSymbol(it)
			if !ok || a.p.isTerminal(sym) {
				continue
			}
			la := a.firstOf(a.prods[it.prod].steps[it.dot+1:], cs.lookahead[it])
			for _, prod := range a.p.byLHS[sym] {
				ni := item{prod: prod}
				if existing, ok := cs.lookahead[ni]; ok {
					if existing.union(la) {
						changed = true
					}
					continue
				}
				cs.items = append(cs.items, ni)
				cs.lookahead[ni] = la.clone()
				changed = true
			}
		}
	}
	return cs
}

func coreKey(kernel []item) string {
	var b strings.Builder
	for _, it := range kernel {
		b.WriteString(strconv.Itoa(it.prod))
		b.WriteByte('.')
		b.WriteString(strconv.Itoa(it.dot))
		b.WriteByte(';')
	}
	return b.String()
}

func sortItems(items []item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].prod != items[j].prod {
			return items[i].prod < items[j].prod
		}
		return items[i].dot < items[j].dot
	})
}

func (a *automaton) build() {
	startLA := newBitset(a.p.tokenCount)
	startLA.add(0)
	start := item{prod: a.aug}
	a.addState([]item{start}, map[item]bitset{start: startLA})

	var queue []int
	queue = append(queue, 0)
	a.states[0].queued = true
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		s := a.states[idx]
		s.queued = false
		cs := a.closure(s)

		bySym := make(map[int][]item)
		var syms []int
		for _, it := range cs.items {
			sym, ok := a.nextSymbol(it)
			if !ok {
				continue
			}
			if _, seen := bySym[sym]; !seen {
				syms = append(syms, sym)
			}
			bySym[sym] = append(bySym[sym], item{prod: it.prod, dot: it.dot + 1})
		}
		sort.Ints(syms)
		for _, sym := range syms {
			kernel := bySym[sym]
			sortItems(kernel)
			la := make(map[item]bitset, len(kernel))
			for _, ni := range kernel {
				prev := cs.lookahead[item{prod: ni.prod, dot: ni.dot - 1}]
				if existing, ok := la[ni]; ok {
					existing.union(prev)
				} else {
					la[ni] = prev.clone()
				}
			}
			target, grew := a.mergeState(kernel, la)
			s.next[sym] = target
			if grew && !a.states[target].queued {
				a.states[target].queued = true
				queue = append(queue, target)
			}
		}
	}
}

func (a *automaton) addState(kernel []item, la map[item]bitset) int {
	a.states = append(a.states, &lrState{kernel: kernel, lookahead: la, next: make(map[int]int)})
	idx := len(a.states) - 1
	a.cores[coreKey(kernel)] = idx
	return idx
}

// mergeState finds or creates the state with the given kernel and reports
// whether its lookaheads grew.
func (a *automaton) mergeState(kernel []item, la map[item]bitset) (int, bool) {
	if idx, ok := a.cores[coreKey(kernel)]; ok {
		s := a.states[idx]
		grew := false
		for it, set := range la {
			if s.lookahead[it].union(set) {
				grew = true
			}
		}
		return idx, grew
	}
	return a.addState(kernel, la), true
}
