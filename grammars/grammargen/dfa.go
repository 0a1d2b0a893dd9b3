package grammargen

import (
	"sort"
	"strconv"
	"strings"

	"github.com/odvcencio/sitter/gotreesitter"
)

// skipAccept marks NFA states that accept skipped whitespace.
const skipAccept = -2

// closure returns the sorted epsilon closure of a set of NFA states.
func (n *nfa) closure(set []int) []int {
	seen := make(map[int]bool, len(set))
	stack := append([]int(nil), set...)
	for _, s := range set {
		seen[s] = true
	}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, t := range n.states[s].eps {
			if !seen[t] {
				seen[t] = true
				stack = append(stack, t)
			}
		}
	}
	out := make([]int, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

func (n *nfa) move(set []int, c rune) []int {
	var out []int
	for _, s := range set {
		for _, t := range n.states[s].trans {
			if c >= t.r.lo && c <= t.r.hi {
				out = append(out, t.to)
			}
		}
	}
	return out
}

// matches reports whether the automaton entered at start accepts all of s.
func (n *nfa) matches(start int, s string) bool {
	cur := n.closure([]int{start})
	for _, c := range s {
		cur = n.closure(n.move(cur, c))
		if len(cur) == 0 {
			return false
		}
	}
	for _, st := range cur {
		if n.states[st].accept != -1 {
			return true
		}
	}
	return false
}

func setKey(set []int) string {
	var b strings.Builder
	for _, s := range set {
		b.WriteString(strconv.Itoa(s))
		b.WriteByte(',')
	}
	return b.String()
}

// lexBuilder accumulates the DFAs of every lex mode into one LexState table.
type lexBuilder struct {
	p      *prepared
	n      nfa
	starts map[int]int // terminal symbol -> NFA start
	skip   []int       // NFA starts of skipped patterns
	states []gotreesitter.LexState
	modes  map[string]int
}

func newLexBuilder(p *prepared) *lexBuilder {
	lb := &lexBuilder{p: p, starts: make(map[int]int), modes: make(map[string]int)}
	for sym := 1; sym < p.tokenCount; sym++ {
		s, e := lb.n.build(p.symbols[sym].pattern)
		lb.n.states[e].accept = sym
		lb.starts[sym] = s
	}
	for _, pattern := range p.skips {
		s, e := lb.n.build(pattern)
		lb.n.states[e].accept = skipAccept
		lb.skip = append(lb.skip, s)
	}
	return lb
}

// better reports whether terminal a wins over b when both accept the same
// text: higher lexical precedence, then strings over patterns, then the
// earlier symbol.
func (lb *lexBuilder) better(a, b int) bool {
	sa, sb := lb.p.symbols[a], lb.p.symbols[b]
	if sa.lexPrec != sb.lexPrec {
		return sa.lexPrec > sb.lexPrec
	}
	if sa.isString != sb.isString {
		return sa.isString
	}
	return a < b
}

// mode returns the start state of the DFA recognizing tokens, building it
// on first use. Skipped patterns are included unless noSkip is set.
func (lb *lexBuilder) mode(tokens []int, noSkip bool) int {
	key := setKey(tokens)
	if noSkip {
		key += "i"
	}
	if start, ok := lb.modes[key]; ok {
		return start
	}
	var starts []int
	for _, sym := range tokens {
		starts = append(starts, lb.starts[sym])
	}
	if !noSkip {
		starts = append(starts, lb.skip...)
	}
	start := lb.determinize(starts, &lb.states)
	lb.modes[key] = start
	return start
}

// determinize runs the subset construction from the given NFA starts,
// appending DFA states to out, and returns the index of the first one.
func (lb *lexBuilder) determinize(starts []int, out *[]gotreesitter.LexState) int {
	n := &lb.n
	base := len(*out)
	index := make(map[string]int)
	var sets [][]int

	add := func(set []int) int {
		key := setKey(set)
		if i, ok := index[key]; ok {
			return i
		}
		i := base + len(sets)
		index[key] = i
		sets = append(sets, set)
		*out = append(*out, lb.acceptState(set))
		return i
	}
	add(n.closure(starts))

	for k := 0; k < len(sets); k++ {
		set := sets[k]
		var ranges []runeRange
		for _, s := range set {
			for _, t := range n.states[s].trans {
				ranges = append(ranges, t.r)
			}
		}
		var transitions []gotreesitter.LexTransition
		for _, iv := range partition(ranges) {
			target := n.move(set, iv.lo)
			if len(target) == 0 {
				continue
			}
			next := add(n.closure(target))
			if m := len(transitions); m > 0 && transitions[m-1].NextState == next && transitions[m-1].Hi+1 == iv.lo {
				transitions[m-1].Hi = iv.hi
				continue
			}
			transitions = append(transitions, gotreesitter.LexTransition{Lo: iv.lo, Hi: iv.hi, NextState: next})
		}
		(*out)[base+k].Transitions = transitions
	}
	return base
}

func (lb *lexBuilder) acceptState(set []int) gotreesitter.LexState {
	st := gotreesitter.LexState{Default: -1, EOF: -1}
	best := -1
	skip := false
	for _, s := range set {
		switch a := lb.n.states[s].accept; {
		case a == skipAccept:
			skip = true
		case a > 0:
			if best < 0 || lb.better(a, best) {
				best = a
			}
		}
	}
	if best > 0 {
		st.AcceptToken = gotreesitter.Symbol(best)
	} else if skip {
		st.Skip = true
	}
	return st
}

// partition splits the union of ranges into disjoint intervals such that
// every input range is a union of output intervals.
func partition(ranges []runeRange) []runeRange {
	if len(ranges) == 0 {
		return nil
	}
	points := make([]rune, 0, 2*len(ranges))
	for _, r := range ranges {
		points = append(points, r.lo, r.hi+1)
	}
	sort.Slice(points, func(i, j int) bool { return points[i] < points[j] })
	uniq := points[:1]
	for _, p := range points[1:] {
		if p != uniq[len(uniq)-1] {
			uniq = append(uniq, p)
		}
	}
	covered := normalizeRanges(append([]runeRange(nil), ranges...))
	var out []runeRange
	for i := 0; i+1 < len(uniq); i++ {
		iv := runeRange{uniq[i], uniq[i+1] - 1}
		if inRanges(covered, iv.lo) {
			out = append(out, iv)
		}
	}
	return out
}

func inRanges(ranges []runeRange, c rune) bool {
	i := sort.Search(len(ranges), func(i int) bool { return ranges[i].hi >= c })
	return i < len(ranges) && ranges[i].lo <= c
}

// keywordStates builds the keyword DFA, which starts at state 0.
func (lb *lexBuilder) keywordStates() []gotreesitter.LexState {
	if len(lb.p.keywords) == 0 {
		return nil
	}
	var starts []int
	for _, kw := range lb.p.keywords {
		starts = append(starts, lb.starts[kw])
	}
	var out []gotreesitter.LexState
	lb.determinize(starts, &out)
	return out
}
