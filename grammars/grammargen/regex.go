package grammargen

import (
	"fmt"
	"strconv"
	"unicode/utf8"
)

const maxRune = utf8.MaxRune

type runeRange struct{ lo, hi rune }

type rxKind uint8

const (
	rxEmpty rxKind = iota
	rxClass
	rxConcat
	rxAlt
	rxRepeat
)

// rx is a parsed regular expression.
type rx struct {
	kind   rxKind
	ranges []runeRange
	subs   []*rx
	min    int
	max    int // -1 for unbounded
}

// RegexError reports a malformed token pattern.
type RegexError struct {
	Pattern string
	Offset  int
	Message string
}

func (e *RegexError) Error() string {
	return fmt.Sprintf("grammargen: pattern /%s/ at offset %d: %s", e.Pattern, e.Offset, e.Message)
}

type regexParser struct {
	src []rune
	pos int
	pat string
}

func parseRegex(pattern string) (*rx, error) {
	p := &regexParser{src: []rune(pattern), pat: pattern}
	r, err := p.alternation()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected %q", p.src[p.pos])
	}
	return r, nil
}

func (p *regexParser) errorf(format string, args ...any) error {
	return &RegexError{Pattern: p.pat, Offset: p.pos, Message: fmt.Sprintf(format, args...)}
}

func (p *regexParser) more() bool { return p.pos < len(p.src) }
func (p *regexParser) peek() rune { return p.src[p.pos] }

func (p *regexParser) alternation() (*rx, error) {
	var alts []*rx
	for {
		c, err := p.concatenation()
		if err != nil {
			return nil, err
		}
		alts = append(alts, c)
		if !p.more() || p.peek() != '|' {
			break
		}
		p.pos++
	}
	if len(alts) == 1 {
		return alts[0], nil
	}
	return &rx{kind: rxAlt, subs: alts}, nil
}

func (p *regexParser) concatenation() (*rx, error) {
	var parts []*rx
	for p.more() && p.peek() != '|' && p.peek() != ')' {
		atom, err := p.atom()
		if err != nil {
			return nil, err
		}
		atom, err = p.quantified(atom)
		if err != nil {
			return nil, err
		}
		parts = append(parts, atom)
	}
	switch len(parts) {
	case 0:
		return &rx{kind: rxEmpty}, nil
	case 1:
		return parts[0], nil
	}
	return &rx{kind: rxConcat, subs: parts}, nil
}

func (p *regexParser) quantified(atom *rx) (*rx, error) {
	for p.more() {
		switch p.peek() {
		case '*':
			p.pos++
			atom = &rx{kind: rxRepeat, subs: []*rx{atom}, min: 0, max: -1}
		case '+':
			p.pos++
			atom = &rx{kind: rxRepeat, subs: []*rx{atom}, min: 1, max: -1}
		case '?':
			p.pos++
			atom = &rx{kind: rxRepeat, subs: []*rx{atom}, min: 0, max: 1}
		case '{':
			lo, hi, ok := p.counted()
			if !ok {
				return atom, nil
			}
			atom = &rx{kind: rxRepeat, subs: []*rx{atom}, min: lo, max: hi}
		default:
			return atom, nil
		}
	}
	return atom, nil
}

// counted parses {n}, {n,} or {n,m}. A brace that does not start a valid
// count is left for the caller to treat as a literal.
func (p *regexParser) counted() (lo, hi int, ok bool) {
	start := p.pos
	p.pos++
	readInt := func() (int, bool) {
		s := p.pos
		for p.more() && p.peek() >= '0' && p.peek() <= '9' {
			p.pos++
		}
		if s == p.pos {
			return 0, false
		}
		n, err := strconv.Atoi(string(p.src[s:p.pos]))
		return n, err == nil
	}
	lo, ok = readInt()
	if !ok {
		p.pos = start
		return 0, 0, false
	}
	hi = lo
	if p.more() && p.peek() == ',' {
		p.pos++
		if p.more() && p.peek() == '}' {
			hi = -1
		} else if hi, ok = readInt(); !ok {
			p.pos = start
			return 0, 0, false
		}
	}
	if !p.more() || p.peek() != '}' || (hi >= 0 && hi < lo) {
		p.pos = start
		return 0, 0, false
	}
	p.pos++
	return lo, hi, true
}

func (p *regexParser) atom() (*rx, error) {
	c := p.peek()
	switch c {
	case '(':
		p.pos++
		if p.pos+1 < len(p.src) && p.src[p.pos] == '?' && p.src[p.pos+1] == ':' {
			p.pos += 2
		}
		inner, err := p.alternation()
		if err != nil {
			return nil, err
		}
		if !p.more() || p.peek() != ')' {
			return nil, p.errorf("missing )")
		}
		p.pos++
		return inner, nil
	case '[':
		return p.class()
	case '.':
		p.pos++
		return classOf(negateRanges([]runeRange{{'\n', '\n'}})), nil
	case '\\':
		p.pos++
		ranges, err := p.escape(false)
		if err != nil {
			return nil, err
		}
		return classOf(ranges), nil
	case '*', '+', '?':
		return nil, p.errorf("nothing to repeat")
	case '^', '$':
		return nil, p.errorf("anchors are not supported in token patterns")
	}
	p.pos++
	return classOf([]runeRange{{c, c}}), nil
}

func (p *regexParser) class() (*rx, error) {
	p.pos++
	negate := false
	if p.more() && p.peek() == '^' {
		negate = true
		p.pos++
	}
	var ranges []runeRange
	first := true
	for {
		if !p.more() {
			return nil, p.errorf("missing ]")
		}
		c := p.peek()
		if c == ']' && !first {
			p.pos++
			break
		}
		first = false
		var lo []runeRange
		if c == '\\' {
			p.pos++
			esc, err := p.escape(true)
			if err != nil {
				return nil, err
			}
			lo = esc
		} else {
			p.pos++
			lo = []runeRange{{c, c}}
		}
		// a-z range, only between single characters
		if len(lo) == 1 && lo[0].lo == lo[0].hi && p.pos+1 < len(p.src) && p.peek() == '-' && p.src[p.pos+1] != ']' {
			p.pos++
			hc := p.peek()
			var hi rune
			if hc == '\\' {
				p.pos++
				esc, err := p.escape(true)
				if err != nil {
					return nil, err
				}
				if len(esc) != 1 || esc[0].lo != esc[0].hi {
					return nil, p.errorf("invalid class range")
				}
				hi = esc[0].lo
			} else {
				p.pos++
				hi = hc
			}
			if hi < lo[0].lo {
				return nil, p.errorf("invalid class range %c-%c", lo[0].lo, hi)
			}
			lo = []runeRange{{lo[0].lo, hi}}
		}
		ranges = append(ranges, lo...)
	}
	ranges = normalizeRanges(ranges)
	if negate {
		ranges = negateRanges(ranges)
	}
	return classOf(ranges), nil
}

var (
	digitRanges = []runeRange{{'0', '9'}}
	wordRanges  = []runeRange{{'0', '9'}, {'A', 'Z'}, {'_', '_'}, {'a', 'z'}}
	spaceRanges = []runeRange{{'\t', '\r'}, {' ', ' '}, {0x85, 0x85}, {0xA0, 0xA0}, {0x2028, 0x2029}, {0xFEFF, 0xFEFF}}
)

func (p *regexParser) escape(inClass bool) ([]runeRange, error) {
	if !p.more() {
		return nil, p.errorf("trailing backslash")
	}
	c := p.peek()
	p.pos++
	single := func(r rune) []runeRange { return []runeRange{{r, r}} }
	switch c {
	case 'd':
		return digitRanges, nil
	case 'D':
		return negateRanges(digitRanges), nil
	case 'w':
		return wordRanges, nil
	case 'W':
		return negateRanges(wordRanges), nil
	case 's':
		return spaceRanges, nil
	case 'S':
		return negateRanges(spaceRanges), nil
	case 'n':
		return single('\n'), nil
	case 'r':
		return single('\r'), nil
	case 't':
		return single('\t'), nil
	case 'f':
		return single('\f'), nil
	case 'v':
		return single('\v'), nil
	case '0':
		return single(0), nil
	case 'b':
		if inClass {
			return single('\b'), nil
		}
		return nil, p.errorf("word boundaries are not supported in token patterns")
	case 'x', 'u':
		n := 2
		if c == 'u' {
			n = 4
		}
		if p.pos+n > len(p.src) {
			return nil, p.errorf("short \\%c escape", c)
		}
		v, err := strconv.ParseUint(string(p.src[p.pos:p.pos+n]), 16, 32)
		if err != nil {
			return nil, p.errorf("invalid \\%c escape", c)
		}
		p.pos += n
		return single(rune(v)), nil
	}
	return single(c), nil
}

func classOf(ranges []runeRange) *rx { return &rx{kind: rxClass, ranges: ranges} }

// literalRx matches s exactly.
func literalRx(s string) *rx {
	var parts []*rx
	for _, c := range s {
		parts = append(parts, classOf([]runeRange{{c, c}}))
	}
	switch len(parts) {
	case 0:
		return &rx{kind: rxEmpty}
	case 1:
		return parts[0]
	}
	return &rx{kind: rxConcat, subs: parts}
}

// normalizeRanges sorts ranges and merges the ones that touch or overlap.
func normalizeRanges(in []runeRange) []runeRange {
	if len(in) == 0 {
		return nil
	}
	ranges := make([]runeRange, 0, len(in))
	for _, r := range in {
		if r.hi < r.lo || r.hi < 0 || r.lo > maxRune {
			continue
		}
		r.lo = max(r.lo, 0)
		r.hi = min(r.hi, maxRune)
		ranges = append(ranges, r)
	}
	sortRanges(ranges)
	out := ranges[:0]
	for _, r := range ranges {
		if n := len(out); n > 0 && r.lo <= out[n-1].hi+1 {
			out[n-1].hi = max(out[n-1].hi, r.hi)
			continue
		}
		out = append(out, r)
	}
	return out
}

func sortRanges(ranges []runeRange) {
	for i := 1; i < len(ranges); i++ {
		for j := i; j > 0 && (ranges[j].lo < ranges[j-1].lo ||
			(ranges[j].lo == ranges[j-1].lo && ranges[j].hi < ranges[j-1].hi)); j-- {
			ranges[j], ranges[j-1] = ranges[j-1], ranges[j]
		}
	}
}

func negateRanges(in []runeRange) []runeRange {
	in = normalizeRanges(append([]runeRange(nil), in...))
	var out []runeRange
	next := rune(0)
	for _, r := range in {
		if r.lo > next {
			out = append(out, runeRange{next, r.lo - 1})
		}
		next = r.hi + 1
	}
	if next <= maxRune {
		out = append(out, runeRange{next, maxRune})
	}
	return out
}

// nfa is a Thompson automaton shared by every token of a grammar. Each
// token owns a start state; accepting states record the token index.
type nfa struct {
	states []nfaState
}

type nfaState struct {
	eps    []int
	trans  []nfaTrans
	accept int // token index, -1 if none
}

type nfaTrans struct {
	r  runeRange
	to int
}

func (n *nfa) add() int {
	n.states = append(n.states, nfaState{accept: -1})
	return len(n.states) - 1
}

func (n *nfa) epsilon(from, to int) {
	n.states[from].eps = append(n.states[from].eps, to)
}

// build adds the fragment for r and returns its entry and exit states.
func (n *nfa) build(r *rx) (start, end int) {
	switch r.kind {
	case rxEmpty:
		s := n.add()
		return s, s
	case rxClass:
		s, e := n.add(), n.add()
		for _, rg := range r.ranges {
			n.states[s].trans = append(n.states[s].trans, nfaTrans{r: rg, to: e})
		}
		return s, e
	case rxConcat:
		start, end = n.build(r.subs[0])
		for _, sub := range r.subs[1:] {
			s, e := n.build(sub)
			n.epsilon(end, s)
			end = e
		}
		return start, end
	case rxAlt:
		start, end = n.add(), n.add()
		for _, sub := range r.subs {
			s, e := n.build(sub)
			n.epsilon(start, s)
			n.epsilon(e, end)
		}
		return start, end
	case rxRepeat:
		return n.buildRepeat(r)
	}
	s := n.add()
	return s, s
}

func (n *nfa) buildRepeat(r *rx) (start, end int) {
	start = n.add()
	end = start
	for i := 0; i < r.min; i++ {
		s, e := n.build(r.subs[0])
		n.epsilon(end, s)
		end = e
	}
	if r.max < 0 {
		s, e := n.build(r.subs[0])
		loopEnd := n.add()
		n.epsilon(end, s)
		n.epsilon(end, loopEnd)
		n.epsilon(e, s)
		n.epsilon(e, loopEnd)
		return start, loopEnd
	}
	final := n.add()
	n.epsilon(end, final)
	for i := r.min; i < r.max; i++ {
		s, e := n.build(r.subs[0])
		n.epsilon(end, s)
		n.epsilon(e, final)
		end = e
	}
	return start, final
}
