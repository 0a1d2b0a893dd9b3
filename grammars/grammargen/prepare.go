package grammargen

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrEmptyGrammar is returned for a grammar with no rules.
var ErrEmptyGrammar = errors.New("grammargen: grammar has no rules")

type symbolKind uint8

const (
	symEnd symbolKind = iota
	symTerminal
	symNonterminal
	symAlias
)

type symbolInfo struct {
	name      string
	kind      symbolKind
	visible   bool
	named     bool
	supertype bool
	owner     string // rule an auxiliary symbol was generated for

	// terminals
	pattern   *rx
	lexPrec   int
	isString  bool
	immediate bool
}

// step is one symbol on the right-hand side of a production.
type step struct {
	sym        int
	field      string
	alias      string
	aliasNamed bool
}

type production struct {
	lhs     int
	steps   []step
	prec    int
	assoc   Assoc
	hasPrec bool
	dynamic int
	infoID  int
}

// alt is a production body under construction.
type alt struct {
	steps   []step
	prec    int
	assoc   Assoc
	hasPrec bool
	dynamic int
}

// prepared is a grammar lowered to numbered symbols and flat productions.
type prepared struct {
	name        string
	symbols     []symbolInfo
	tokenCount  int
	productions []production
	byLHS       map[int][]int
	start       int

	extras   []int
	skips    []*rx
	word     int
	keywords []int

	conflicts [][]string
}

type preparer struct {
	g *Grammar
	p *prepared

	ruleSyms  map[string]int
	literals  map[string]int
	anonToken map[*Rule]int
	ruleDefs  map[string]*Rule
	auxCount  map[string]int
}

func prepare(g *Grammar) (*prepared, error) {
	if len(g.rules) == 0 {
		return nil, ErrEmptyGrammar
	}
	pr := &preparer{
		g: g,
		p: &prepared{
			name:      g.Name,
			byLHS:     make(map[int][]int),
			conflicts: g.conflicts,
		},
		ruleSyms:  make(map[string]int),
		literals:  make(map[string]int),
		anonToken: make(map[*Rule]int),
		ruleDefs:  make(map[string]*Rule),
		auxCount:  make(map[string]int),
	}
	pr.p.symbols = append(pr.p.symbols, symbolInfo{name: "end", kind: symEnd, named: true})
	for _, nr := range g.rules {
		pr.ruleDefs[nr.name] = nr.rule
	}
	if g.rules[0].rule.isLexical() {
		return nil, fmt.Errorf("grammargen: start rule %q must not be a token", g.rules[0].name)
	}

	if err := pr.collectTerminals(); err != nil {
		return nil, err
	}
	pr.p.tokenCount = len(pr.p.symbols)

	for _, nr := range g.rules {
		if nr.rule.isLexical() {
			continue
		}
		hidden := strings.HasPrefix(nr.name, "_")
		pr.ruleSyms[nr.name] = pr.addSymbol(symbolInfo{
			name:    nr.name,
			kind:    symNonterminal,
			visible: !hidden,
			named:   true,
		})
	}
	for _, name := range g.supertypes {
		sym, ok := pr.ruleSyms[name]
		if !ok {
			return nil, fmt.Errorf("grammargen: supertype %q is not a rule", name)
		}
		pr.p.symbols[sym].supertype = true
	}
	pr.p.start = pr.ruleSyms[g.rules[0].name]

	for _, nr := range g.rules {
		if nr.rule.isLexical() {
			continue
		}
		alts, err := pr.expand(nr.rule, nr.name)
		if err != nil {
			return nil, fmt.Errorf("grammargen: rule %q: %w", nr.name, err)
		}
		pr.addProductions(pr.ruleSyms[nr.name], alts)
	}

	if err := pr.resolveExtras(); err != nil {
		return nil, err
	}
	if err := pr.resolveWord(); err != nil {
		return nil, err
	}
	pr.addAliasSymbols()
	return pr.p, nil
}

func (pr *preparer) addSymbol(info symbolInfo) int {
	pr.p.symbols = append(pr.p.symbols, info)
	return len(pr.p.symbols) - 1
}

// collectTerminals numbers every token: named lexical rules first, then
// anonymous strings and patterns in order of appearance.
func (pr *preparer) collectTerminals() error {
	for _, nr := range pr.g.rules {
		if !nr.rule.isLexical() {
			continue
		}
		info, err := pr.terminalInfo(nr.rule)
		if err != nil {
			return fmt.Errorf("grammargen: token %q: %w", nr.name, err)
		}
		info.name = nr.name
		info.named = true
		info.visible = !strings.HasPrefix(nr.name, "_")
		pr.ruleSyms[nr.name] = pr.addSymbol(info)
	}
	var walk func(r *Rule, owner string) error
	walk = func(r *Rule, owner string) error {
		switch r.kind {
		case ruleString:
			return pr.literal(r.value)
		case rulePattern, ruleToken, ruleImmediateToken:
			if _, ok := pr.anonToken[r]; ok {
				return nil
			}
			info, err := pr.terminalInfo(r)
			if err != nil {
				return fmt.Errorf("grammargen: rule %q: %w", owner, err)
			}
			if r.kind != rulePattern && info.isString {
				return pr.literal(stringValue(r))
			}
			pr.auxCount[owner+"_token"]++
			info.name = owner + "_token" + strconv.Itoa(pr.auxCount[owner+"_token"])
			info.owner = owner
			pr.anonToken[r] = pr.addSymbol(info)
			return nil
		}
		for _, m := range r.members {
			if err := walk(m, owner); err != nil {
				return err
			}
		}
		return nil
	}
	for _, nr := range pr.g.rules {
		if nr.rule.isLexical() {
			continue
		}
		if err := walk(nr.rule, nr.name); err != nil {
			return err
		}
	}
	for _, r := range pr.g.extras {
		if r.kind == ruleString {
			if err := pr.literal(r.value); err != nil {
				return err
			}
		}
	}
	return nil
}

// stringValue returns the literal of a token(...) wrapper around a string.
func stringValue(r *Rule) string {
	for r.kind == ruleToken || r.kind == ruleImmediateToken || r.kind == rulePrec {
		r = r.members[0]
	}
	return r.value
}

func (pr *preparer) literal(s string) error {
	if s == "" {
		return errors.New("grammargen: empty string token")
	}
	if _, ok := pr.literals[s]; ok {
		return nil
	}
	pr.literals[s] = pr.addSymbol(symbolInfo{
		name:     s,
		kind:     symTerminal,
		visible:  true,
		pattern:  literalRx(s),
		isString: true,
	})
	return nil
}

// terminalInfo lowers a lexical rule to a regular expression, collecting
// its lexical precedence and immediacy.
func (pr *preparer) terminalInfo(r *Rule) (symbolInfo, error) {
	info := symbolInfo{kind: symTerminal}
	var lower func(r *Rule) (*rx, error)
	lower = func(r *Rule) (*rx, error) {
		switch r.kind {
		case ruleBlank:
			return &rx{kind: rxEmpty}, nil
		case ruleString:
			if r.value == "" {
				return nil, errors.New("empty string token")
			}
			return literalRx(r.value), nil
		case rulePattern:
			return parseRegex(r.value)
		case ruleToken:
			return lower(r.members[0])
		case ruleImmediateToken:
			info.immediate = true
			return lower(r.members[0])
		case rulePrec:
			if r.hasPrec {
				info.lexPrec = r.prec
			}
			return lower(r.members[0])
		case ruleSeq, ruleChoice:
			out := &rx{kind: rxConcat}
			if r.kind == ruleChoice {
				out.kind = rxAlt
			}
			for _, m := range r.members {
				sub, err := lower(m)
				if err != nil {
					return nil, err
				}
				out.subs = append(out.subs, sub)
			}
			if len(out.subs) == 0 {
				return &rx{kind: rxEmpty}, nil
			}
			return out, nil
		case ruleRepeat, ruleRepeat1:
			sub, err := lower(r.members[0])
			if err != nil {
				return nil, err
			}
			lo := 0
			if r.kind == ruleRepeat1 {
				lo = 1
			}
			return &rx{kind: rxRepeat, subs: []*rx{sub}, min: lo, max: -1}, nil
		}
		return nil, fmt.Errorf("%s is not allowed inside a token", r)
	}
	pattern, err := lower(r)
	if err != nil {
		return info, err
	}
	info.pattern = pattern
	inner := r
	for inner.kind == ruleToken || inner.kind == ruleImmediateToken || inner.kind == rulePrec {
		inner = inner.members[0]
	}
	info.isString = inner.kind == ruleString
	return info, nil
}

func (pr *preparer) symbolFor(name string) (int, error) {
	if sym, ok := pr.ruleSyms[name]; ok {
		return sym, nil
	}
	return 0, fmt.Errorf("undefined symbol %q", name)
}

func (pr *preparer) expand(r *Rule, owner string) ([]alt, error) {
	switch r.kind {
	case ruleBlank:
		return []alt{{}}, nil
	case ruleString:
		return []alt{{steps: []step{{sym: pr.literals[r.value]}}}}, nil
	case rulePattern, ruleToken, ruleImmediateToken:
		if sym, ok := pr.anonToken[r]; ok {
			return []alt{{steps: []step{{sym: sym}}}}, nil
		}
		return []alt{{steps: []step{{sym: pr.literals[stringValue(r)]}}}}, nil
	case ruleSymbol:
		sym, err := pr.symbolFor(r.value)
		if err != nil {
			return nil, err
		}
		return []alt{{steps: []step{{sym: sym}}}}, nil
	case ruleSeq:
		out := []alt{{}}
		for _, m := range r.members {
			parts, err := pr.expand(m, owner)
			if err != nil {
				return nil, err
			}
			next := make([]alt, 0, len(out)*len(parts))
			for _, a := range out {
				for _, b := range parts {
					next = append(next, joinAlts(a, b))
				}
			}
			out = next
		}
		return out, nil
	case ruleChoice:
		var out []alt
		for _, m := range r.members {
			parts, err := pr.expand(m, owner)
			if err != nil {
				return nil, err
			}
			out = append(out, parts...)
		}
		return out, nil
	case ruleRepeat, ruleRepeat1:
		aux, err := pr.repeatSymbol(r.members[0], owner)
		if err != nil {
			return nil, err
		}
		one := alt{steps: []step{{sym: aux}}}
		if r.kind == ruleRepeat {
			return []alt{{}, one}, nil
		}
		return []alt{one}, nil
	case ruleField:
		alts, err := pr.expand(r.members[0], owner)
		if err != nil {
			return nil, err
		}
		for i := range alts {
			for j := range alts[i].steps {
				if alts[i].steps[j].field == "" {
					alts[i].steps[j].field = r.value
				}
			}
		}
		return alts, nil
	case ruleAlias:
		alts, err := pr.expand(r.members[0], owner)
		if err != nil {
			return nil, err
		}
		for i := range alts {
			if len(alts[i].steps) != 1 {
				return nil, fmt.Errorf("alias %q must wrap a single symbol", r.value)
			}
			alts[i].steps[0].alias = r.value
			alts[i].steps[0].aliasNamed = r.named
		}
		return alts, nil
	case rulePrec:
		alts, err := pr.expand(r.members[0], owner)
		if err != nil {
			return nil, err
		}
		for i := range alts {
			if r.hasPrec && !alts[i].hasPrec {
				alts[i].prec = r.prec
				alts[i].assoc = r.assoc
				alts[i].hasPrec = true
			}
			alts[i].dynamic += r.dynamic
		}
		return alts, nil
	}
	return nil, fmt.Errorf("unknown rule %s", r)
}

func joinAlts(a, b alt) alt {
	out := alt{
		steps:   make([]step, 0, len(a.steps)+len(b.steps)),
		prec:    a.prec,
		assoc:   a.assoc,
		hasPrec: a.hasPrec,
		dynamic: a.dynamic + b.dynamic,
	}
	out.steps = append(out.steps, a.steps...)
	out.steps = append(out.steps, b.steps...)
	if b.hasPrec {
		out.prec, out.assoc, out.hasPrec = b.prec, b.assoc, true
	}
	return out
}

// repeatSymbol creates a hidden left-recursive rule aux -> aux r | r.
func (pr *preparer) repeatSymbol(r *Rule, owner string) (int, error) {
	pr.auxCount[owner+"_repeat"]++
	aux := pr.addSymbol(symbolInfo{
		name:  owner + "_repeat" + strconv.Itoa(pr.auxCount[owner+"_repeat"]),
		kind:  symNonterminal,
		owner: owner,
	})
	body, err := pr.expand(r, owner)
	if err != nil {
		return 0, err
	}
	alts := make([]alt, 0, 2*len(body))
	for _, b := range body {
		alts = append(alts, joinAlts(alt{steps: []step{{sym: aux}}}, b))
	}
	alts = append(alts, body...)
	pr.addProductions(aux, alts)
	return aux, nil
}

func (pr *preparer) addProductions(lhs int, alts []alt) {
	seen := make(map[string]bool)
	for _, prod := range pr.p.byLHS[lhs] {
		seen[stepsKey(pr.p.productions[prod].steps)] = true
	}
	for _, a := range alts {
		key := stepsKey(a.steps)
		if seen[key] {
			continue
		}
		seen[key] = true
		pr.p.productions = append(pr.p.productions, production{
			lhs:     lhs,
			steps:   a.steps,
			prec:    a.prec,
			assoc:   a.assoc,
			hasPrec: a.hasPrec,
			dynamic: a.dynamic,
		})
		pr.p.byLHS[lhs] = append(pr.p.byLHS[lhs], len(pr.p.productions)-1)
	}
}

func stepsKey(steps []step) string {
	var b strings.Builder
	for _, s := range steps {
		fmt.Fprintf(&b, "%d:%s:%s:%t;", s.sym, s.field, s.alias, s.aliasNamed)
	}
	return b.String()
}

func (pr *preparer) resolveExtras() error {
	for _, r := range pr.g.extras {
		switch r.kind {
		case rulePattern:
			pattern, err := parseRegex(r.value)
			if err != nil {
				return err
			}
			pr.p.skips = append(pr.p.skips, pattern)
		case ruleString:
			pr.p.extras = append(pr.p.extras, pr.literals[r.value])
		case ruleSymbol:
			sym, err := pr.symbolFor(r.value)
			if err != nil {
				return fmt.Errorf("grammargen: extra: %w", err)
			}
			if pr.p.symbols[sym].kind != symTerminal {
				return fmt.Errorf("grammargen: extra %q must be a token", r.value)
			}
			pr.p.extras = append(pr.p.extras, sym)
		default:
			return fmt.Errorf("grammargen: unsupported extra %s", r)
		}
	}
	return nil
}

// resolveWord finds the keywords: string tokens the word token matches in
// full.
func (pr *preparer) resolveWord() error {
	if pr.g.word == "" {
		return nil
	}
	word, err := pr.symbolFor(pr.g.word)
	if err != nil {
		return fmt.Errorf("grammargen: word: %w", err)
	}
	if pr.p.symbols[word].kind != symTerminal {
		return fmt.Errorf("grammargen: word %q must be a token", pr.g.word)
	}
	pr.p.word = word
	var n nfa
	start, end := n.build(pr.p.symbols[word].pattern)
	n.states[end].accept = word
	for sym := 1; sym < pr.p.tokenCount; sym++ {
		info := pr.p.symbols[sym]
		if sym == word || !info.isString {
			continue
		}
		if n.matches(start, info.name) {
			pr.p.keywords = append(pr.p.keywords, sym)
		}
	}
	return nil
}

// addAliasSymbols gives every alias name that is not already a symbol of
// the same namedness its own symbol.
func (pr *preparer) addAliasSymbols() {
	type key struct {
		name  string
		named bool
	}
	existing := make(map[key]bool)
	for _, s := range pr.p.symbols {
		if s.kind != symEnd && (s.visible || s.named) {
			existing[key{s.name, s.named}] = true
		}
	}
	var pending []key
	for _, prod := range pr.p.productions {
		for _, s := range prod.steps {
			k := key{s.alias, s.aliasNamed}
			if s.alias == "" || existing[k] {
				continue
			}
			existing[k] = true
			pending = append(pending, k)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].name < pending[j].name })
	for _, k := range pending {
		pr.addSymbol(symbolInfo{name: k.name, kind: symAlias, visible: true, named: k.named})
	}
}

// aliasSymbol returns the symbol a step's alias resolves to, preferring a
// visible symbol of the same name and namedness.
func (p *prepared) aliasSymbol(name string, named bool) int {
	fallback := 0
	for i, s := range p.symbols {
		if s.kind == symEnd || s.name != name || s.named != named {
			continue
		}
		if s.visible {
			return i
		}
		if fallback == 0 {
			fallback = i
		}
	}
	return fallback
}

func (p *prepared) isTerminal(sym int) bool { return sym < p.tokenCount }

func (p *prepared) isKeyword(sym int) bool {
	for _, k := range p.keywords {
		if k == sym {
			return true
		}
	}
	return false
}
