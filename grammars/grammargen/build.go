package grammargen

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/odvcencio/sitter/gotreesitter"
)

// DefaultLargeStateCount is the number of leading parse states stored in the
// dense table; the rest use the compressed table.
const DefaultLargeStateCount = 2

// Conflict describes a parse table entry left with more than one action.
// The parser forks on it at runtime.
type Conflict struct {
	State    int
	Symbol   string
	Rules    []string
	Actions  []string
	Expected bool
}

func (c Conflict) String() string {
	return fmt.Sprintf("state %d on %q between %s: %s", c.State, c.Symbol,
		strings.Join(c.Rules, ", "), strings.Join(c.Actions, " | "))
}

// Report summarizes a generated language.
type Report struct {
	States      int
	LexStates   int
	Productions int
	Keywords    []string
	Conflicts   []Conflict
}

// Unexpected returns the conflicts not covered by a Conflicts declaration.
func (r *Report) Unexpected() []Conflict {
	var out []Conflict
	for _, c := range r.Conflicts {
		if !c.Expected {
			out = append(out, c)
		}
	}
	return out
}

// Option configures Build.
type Option func(*options)

type options struct {
	largeStates int
	logger      *zap.Logger
}

// WithLargeStateCount sets how many leading states use the dense table.
func WithLargeStateCount(n int) Option {
	return func(o *options) { o.largeStates = n }
}

// WithLogger logs undeclared conflicts as warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Build compiles g into a Language.
func Build(g *Grammar, opts ...Option) (*gotreesitter.Language, error) {
	lang, _, err := BuildReport(g, opts...)
	return lang, err
}

// MustBuild is Build for grammars known to be valid; it panics on error.
func MustBuild(g *Grammar, opts ...Option) *gotreesitter.Language {
	lang, err := Build(g, opts...)
	if err != nil {
		panic(err)
	}
	return lang
}

// BuildReport compiles g and also returns a report of the generated tables.
func BuildReport(g *Grammar, opts ...Option) (*gotreesitter.Language, *Report, error) {
	o := options{largeStates: DefaultLargeStateCount, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	p, err := prepare(g)
	if err != nil {
		return nil, nil, err
	}
	if len(p.symbols) >= math.MaxUint16 {
		return nil, nil, fmt.Errorf("grammargen: %d symbols exceed the table limit", len(p.symbols))
	}
	a := newAutomaton(p)
	a.build()
	if len(a.states)+1 >= math.MaxUint16 {
		return nil, nil, fmt.Errorf("grammargen: %d states exceed the table limit", len(a.states)+1)
	}

	tb := &tableBuilder{p: p, a: a, o: o, report: &Report{Productions: len(p.productions)}}
	if err := tb.assignProductionInfo(); err != nil {
		return nil, nil, err
	}
	tb.buildRows()
	lang := tb.language()
	tb.report.States = int(lang.StateCount)
	tb.report.LexStates = len(lang.LexStates)
	for _, kw := range p.keywords {
		tb.report.Keywords = append(tb.report.Keywords, p.symbols[kw].name)
	}
	return lang, tb.report, nil
}

type cell struct {
	shift     int // target state, -1 for none
	shiftPrec int
	shiftLHS  []int
	reduces   []int
	accept    bool
	extra     bool
}

type tableBuilder struct {
	p      *prepared
	a      *automaton
	o      options
	report *Report

	fieldNames []string
	fieldIDs   map[string]int
	infos      []prodInfo

	rows [][]gotreesitter.ParseActionEntry // indexed by output state
}

// prodInfo is the field and alias layout shared by productions.
type prodInfo struct {
	fields  []gotreesitter.FieldMapEntry
	aliases []gotreesitter.Symbol
}

func (tb *tableBuilder) assignProductionInfo() error {
	names := make(map[string]bool)
	for _, prod := range tb.p.productions {
		for _, s := range prod.steps {
			if s.field != "" {
				names[s.field] = true
			}
		}
	}
	for name := range names {
		tb.fieldNames = append(tb.fieldNames, name)
	}
	sort.Strings(tb.fieldNames)
	tb.fieldIDs = make(map[string]int, len(tb.fieldNames))
	for i, name := range tb.fieldNames {
		tb.fieldIDs[name] = i + 1
	}

	tb.infos = []prodInfo{{}}
	index := map[string]int{"": 0}
	for i := range tb.p.productions {
		prod := &tb.p.productions[i]
		if len(prod.steps) > math.MaxUint8 {
			return fmt.Errorf("grammargen: rule %q has a production with %d children", tb.p.symbols[prod.lhs].name, len(prod.steps))
		}
		var info prodInfo
		var key strings.Builder
		for j, s := range prod.steps {
			if s.field != "" {
				info.fields = append(info.fields, gotreesitter.FieldMapEntry{
					FieldID:    gotreesitter.FieldID(tb.fieldIDs[s.field]),
					ChildIndex: uint8(j),
				})
				fmt.Fprintf(&key, "f%d=%s;", j, s.field)
			}
			if s.alias != "" {
				if info.aliases == nil {
					info.aliases = make([]gotreesitter.Symbol, len(prod.steps))
				}
				info.aliases[j] = gotreesitter.Symbol(tb.p.aliasSymbol(s.alias, s.aliasNamed))
				fmt.Fprintf(&key, "a%d=%s/%t;", j, s.alias, s.aliasNamed)
			}
		}
		sort.SliceStable(info.fields, func(x, y int) bool { return info.fields[x].FieldID < info.fields[y].FieldID })
		id, ok := index[key.String()]
		if !ok {
			id = len(tb.infos)
			index[key.String()] = id
			tb.infos = append(tb.infos, info)
		}
		prod.infoID = id
	}
	if len(tb.infos) > math.MaxUint16 {
		return fmt.Errorf("grammargen: too many production layouts (%d)", len(tb.infos))
	}
	return nil
}

// buildRows computes the action entries of every state. Output state 0 is
// left empty for error recovery; automaton state i becomes state i+1.
func (tb *tableBuilder) buildRows() {
	p := tb.p
	nsyms := len(p.symbols)
	tb.rows = make([][]gotreesitter.ParseActionEntry, len(tb.a.states)+1)
	tb.rows[0] = make([]gotreesitter.ParseActionEntry, nsyms)

	for i, st := range tb.a.states {
		out := i + 1
		cs := tb.a.closure(st)
		cells := make(map[int]*cell)
		get := func(sym int) *cell {
			c, ok := cells[sym]
			if !ok {
				c = &cell{shift: -1}
				cells[sym] = c
			}
			return c
		}
		row := make([]gotreesitter.ParseActionEntry, nsyms)

		for _, it := range cs.items {
			prod := tb.a.prods[it.prod]
			if sym, ok := tb.a.nextSymbol(it); ok {
				target := st.next[sym] + 1
				if !p.isTerminal(sym) {
					row[sym] = gotreesitter.ParseActionEntry{Reusable: true, Actions: []gotreesitter.ParseAction{{
						Type:  gotreesitter.ParseActionShift,
						State: gotreesitter.StateID(target),
					}}}
					continue
				}
				c := get(sym)
				if c.shift < 0 {
					c.shiftPrec = prod.prec
				} else {
					c.shiftPrec = max(c.shiftPrec, prod.prec)
				}
				c.shift = target
				c.shiftLHS = appendUnique(c.shiftLHS, prod.lhs)
				continue
			}
			if it.prod == tb.a.aug {
				if cs.lookahead[it].has(0) {
					get(0).accept = true
				}
				continue
			}
			cs.lookahead[it].each(func(t int) {
				c := get(t)
				c.reduces = appendUnique(c.reduces, it.prod)
			})
		}

		for _, e := range p.extras {
			if _, ok := cells[e]; !ok {
				get(e).extra = true
			}
		}

		syms := make([]int, 0, len(cells))
		for sym := range cells {
			syms = append(syms, sym)
		}
		sort.Ints(syms)
		for _, sym := range syms {
			row[sym] = tb.resolve(out, sym, cells[sym])
		}
		tb.rows[out] = row
	}
}

func appendUnique(list []int, v int) []int {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// resolve turns a cell into an action entry, applying precedence and
// associativity. Conflicts that survive are kept as multiple actions with
// the reductions first, so the parser forks on them and then shifts.
func (tb *tableBuilder) resolve(state, sym int, c *cell) gotreesitter.ParseActionEntry {
	entry := gotreesitter.ParseActionEntry{Reusable: true}
	if c.extra {
		entry.Actions = []gotreesitter.ParseAction{{Type: gotreesitter.ParseActionShift, Extra: true}}
		return entry
	}

	reduces := append([]int(nil), c.reduces...)
	shift := c.shift >= 0
	if shift && len(reduces) > 0 {
		kept := reduces[:0]
		shiftWins, reduceWins := false, false
		for _, r := range reduces {
			prod := tb.p.productions[r]
			switch {
			case prod.prec > c.shiftPrec:
				reduceWins = true
				kept = append(kept, r)
			case prod.prec < c.shiftPrec:
				shiftWins = true
			case prod.hasPrec && prod.assoc == AssocLeft:
				reduceWins = true
				kept = append(kept, r)
			case prod.hasPrec && prod.assoc == AssocRight:
				shiftWins = true
			default:
				kept = append(kept, r)
			}
		}
		reduces = kept
		if reduceWins && !shiftWins {
			shift = false
		}
	}
	if len(reduces) > 1 {
		best := math.MinInt
		for _, r := range reduces {
			best = max(best, tb.p.productions[r].prec)
		}
		kept := reduces[:0]
		for _, r := range reduces {
			if tb.p.productions[r].prec == best {
				kept = append(kept, r)
			}
		}
		reduces = kept
	}
	sort.Ints(reduces)

	for _, r := range reduces {
		prod := tb.p.productions[r]
		entry.Actions = append(entry.Actions, gotreesitter.ParseAction{
			Type:              gotreesitter.ParseActionReduce,
			Symbol:            gotreesitter.Symbol(prod.lhs),
			ChildCount:        uint8(len(prod.steps)),
			DynamicPrecedence: int16(prod.dynamic),
			ProductionID:      uint16(prod.infoID),
		})
	}
	if c.accept {
		entry.Actions = append(entry.Actions, gotreesitter.ParseAction{Type: gotreesitter.ParseActionAccept})
	}
	if shift {
		entry.Actions = append(entry.Actions, gotreesitter.ParseAction{
			Type:  gotreesitter.ParseActionShift,
			State: gotreesitter.StateID(c.shift),
		})
	}
	if len(entry.Actions) > 1 {
		tb.recordConflict(state, sym, reduces, shift, c)
	}
	return entry
}

func (tb *tableBuilder) ruleName(sym int) string {
	if s := tb.p.symbols[sym]; s.owner != "" {
		return s.owner
	}
	return tb.p.symbols[sym].name
}

func (tb *tableBuilder) recordConflict(state, sym int, reduces []int, shift bool, c *cell) {
	conflict := Conflict{State: state, Symbol: tb.p.symbols[sym].name}
	rules := make(map[string]bool)
	for _, r := range reduces {
		prod := tb.p.productions[r]
		name := tb.ruleName(prod.lhs)
		rules[name] = true
		conflict.Actions = append(conflict.Actions, fmt.Sprintf("reduce %s/%d", tb.p.symbols[prod.lhs].name, len(prod.steps)))
	}
	if shift {
		for _, lhs := range c.shiftLHS {
			if lhs < len(tb.p.symbols) {
				rules[tb.ruleName(lhs)] = true
			}
		}
		conflict.Actions = append(conflict.Actions, "shift")
	}
	if c.accept {
		conflict.Actions = append(conflict.Actions, "accept")
	}
	for name := range rules {
		conflict.Rules = append(conflict.Rules, name)
	}
	sort.Strings(conflict.Rules)
	conflict.Expected = tb.declared(conflict.Rules)
	if !conflict.Expected {
		tb.o.logger.Warn("unresolved conflict",
			zap.String("grammar", tb.p.name),
			zap.Int("state", state),
			zap.String("symbol", conflict.Symbol),
			zap.Strings("rules", conflict.Rules),
			zap.Strings("actions", conflict.Actions))
	}
	tb.report.Conflicts = append(tb.report.Conflicts, conflict)
}

// declared reports whether a Conflicts group names every rule involved.
func (tb *tableBuilder) declared(rules []string) bool {
	for _, group := range tb.p.conflicts {
		all := true
		for _, r := range rules {
			found := false
			for _, g := range group {
				if g == r {
					found = true
					break
				}
			}
			if !found {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// validTokens returns the terminals a state's lexer must recognize, with
// keywords replaced by the word token, and whether whitespace may be
// skipped before them.
func (tb *tableBuilder) validTokens(row []gotreesitter.ParseActionEntry) ([]int, bool) {
	p := tb.p
	var tokens []int
	immediate := false
	hasKeyword := false
	for sym := 1; sym < p.tokenCount; sym++ {
		if len(row[sym].Actions) == 0 {
			continue
		}
		if p.isKeyword(sym) {
			hasKeyword = true
			continue
		}
		tokens = append(tokens, sym)
		if p.symbols[sym].immediate {
			immediate = true
		}
	}
	if hasKeyword && p.word != 0 {
		tokens = appendUnique(tokens, p.word)
		sort.Ints(tokens)
	}
	if immediate {
		kept := tokens[:0]
		for _, sym := range tokens {
			isExtra := false
			for _, e := range p.extras {
				if e == sym {
					isExtra = true
				}
			}
			if !isExtra {
				kept = append(kept, sym)
			}
		}
		tokens = kept
	}
	return tokens, !immediate
}

func (tb *tableBuilder) language() *gotreesitter.Language {
	p := tb.p
	nsyms := len(p.symbols)
	nstates := len(tb.rows)
	large := min(max(tb.o.largeStates, 1), nstates)

	lang := &gotreesitter.Language{
		Name:              p.name,
		ABIVersion:        gotreesitter.LanguageVersion,
		SymbolCount:       uint32(nsyms),
		TokenCount:        uint32(p.tokenCount),
		StateCount:        uint32(nstates),
		LargeStateCount:   uint32(large),
		FieldCount:        uint32(len(tb.fieldNames)),
		ProductionIDCount: uint32(len(tb.infos)),
		InitialState:      1,
	}

	for _, s := range p.symbols {
		lang.SymbolNames = append(lang.SymbolNames, s.name)
		lang.SymbolMetadata = append(lang.SymbolMetadata, gotreesitter.SymbolMetadata{
			Name:      s.name,
			Visible:   s.visible,
			Named:     s.named,
			Supertype: s.supertype,
		})
	}
	lang.FieldNames = append([]string{""}, tb.fieldNames...)

	lang.ParseActions = []gotreesitter.ParseActionEntry{{}}
	actionIndex := map[string]uint16{}
	indexOf := func(e gotreesitter.ParseActionEntry) uint16 {
		if len(e.Actions) == 0 {
			return 0
		}
		key := fmt.Sprint(e.Actions)
		if idx, ok := actionIndex[key]; ok {
			return idx
		}
		idx := uint16(len(lang.ParseActions))
		actionIndex[key] = idx
		lang.ParseActions = append(lang.ParseActions, e)
		return idx
	}

	for state, row := range tb.rows {
		if state < large {
			dense := make([]uint16, nsyms)
			for sym := range row {
				dense[sym] = indexOf(row[sym])
			}
			lang.ParseTable = append(lang.ParseTable, dense)
			continue
		}
		lang.SmallParseTableMap = append(lang.SmallParseTableMap, uint32(len(lang.SmallParseTable)))
		var values []uint16
		groups := make(map[uint16][]uint16)
		for sym := range row {
			v := indexOf(row[sym])
			if v == 0 {
				continue
			}
			if _, ok := groups[v]; !ok {
				values = append(values, v)
			}
			groups[v] = append(groups[v], uint16(sym))
		}
		lang.SmallParseTable = append(lang.SmallParseTable, uint16(len(values)))
		for _, v := range values {
			lang.SmallParseTable = append(lang.SmallParseTable, v, uint16(len(groups[v])))
			lang.SmallParseTable = append(lang.SmallParseTable, groups[v]...)
		}
	}

	lb := newLexBuilder(p)
	lang.LexModes = make([]gotreesitter.LexMode, nstates)
	var all []int
	for sym := 1; sym < p.tokenCount; sym++ {
		if !p.isKeyword(sym) {
			all = append(all, sym)
		}
	}
	lang.LexModes[0] = gotreesitter.LexMode{LexState: uint16(lb.mode(all, false))}
	for state := 1; state < nstates; state++ {
		tokens, skip := tb.validTokens(tb.rows[state])
		lang.LexModes[state] = gotreesitter.LexMode{LexState: uint16(lb.mode(tokens, !skip))}
	}
	lang.LexStates = lb.states
	lang.KeywordLexStates = lb.keywordStates()
	if len(lang.KeywordLexStates) > 0 {
		lang.KeywordCaptureToken = gotreesitter.Symbol(p.word)
	}

	for _, info := range tb.infos {
		lang.FieldMapSlices = append(lang.FieldMapSlices, [2]uint16{uint16(len(lang.FieldMapEntries)), uint16(len(info.fields))})
		lang.FieldMapEntries = append(lang.FieldMapEntries, info.fields...)
		lang.AliasSequences = append(lang.AliasSequences, info.aliases)
	}

	lang.PrimaryStateIDs = make([]gotreesitter.StateID, nstates)
	for i := range lang.PrimaryStateIDs {
		lang.PrimaryStateIDs[i] = gotreesitter.StateID(i)
	}
	return lang
}
