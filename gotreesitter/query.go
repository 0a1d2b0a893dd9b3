package gotreesitter

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Query holds compiled patterns parsed from a tree-sitter .scm query file.
// Patterns compile to a flat list of steps; a QueryCursor runs all of them
// at once in a single walk over the tree.
type Query struct {
	language *Language
	source   string

	steps    []queryStep
	patterns []queryPattern
	entries  []patternEntry
	captures []string // capture name by id
	strings  []string // string literals used by predicates, by id

	rootCandidatesBySymbol map[Symbol][]int
	rootFallbackCandidates []int
}

const (
	wildcardSymbol   Symbol = 0
	patternDoneDepth        = math.MaxUint16
	noAlternative           = -1
)

// queryStep is one node a pattern has to see. depth is relative to the
// pattern's root; alternative is the step to continue with instead of this
// one, which is how optional, repeated and alternated nodes are expressed.
type queryStep struct {
	symbol        Symbol // 0 matches any node
	field         FieldID
	negatedFields []FieldID
	captureIDs    []uint32
	depth         uint16
	alternative   int

	isNamed                bool
	isMissing              bool
	isImmediate            bool
	isLastChild            bool
	isPassThrough          bool
	isDeadEnd              bool
	alternativeIsImmediate bool
	containsCaptures       bool
}

func newQueryStep(sym Symbol, depth uint16, immediate bool) queryStep {
	return queryStep{symbol: sym, depth: depth, alternative: noAlternative, isImmediate: immediate}
}

func (s *queryStep) done() bool { return s.depth == patternDoneDepth }

func (s *queryStep) addCapture(id uint32) {
	for _, c := range s.captureIDs {
		if c == id {
			return
		}
	}
	s.captureIDs = append(s.captureIDs, id)
}

type queryPattern struct {
	stepStart, stepEnd int
	startByte, endByte uint32

	textPredicates     []TextPredicate
	properties         []QueryProperty
	propertyPredicates []PropertyPredicate
	generalPredicates  []QueryPredicate
	quantifiers        captureQuantifiers

	rooted   bool
	disabled bool
}

// patternEntry is a place where matching a pattern can begin.
type patternEntry struct {
	step    int
	pattern int
	rooted  bool
}

// QueryMatch represents a successful pattern match with its captures.
type QueryMatch struct {
	ID           uint32
	PatternIndex int
	Captures     []QueryCapture
	// Properties holds the pattern's #set! directives.
	Properties []QueryProperty
}

// QueryCapture is a single captured node within a match.
type QueryCapture struct {
	Name  string
	Index uint32
	Node  *Node
}

// NodesFor returns the nodes captured under the given capture id.
func (m *QueryMatch) NodesFor(id uint32) []*Node {
	var out []*Node
	for _, c := range m.Captures {
		if c.Index == id {
			out = append(out, c.Node)
		}
	}
	return out
}

// QueryErrorKind classifies query compilation failures.
type QueryErrorKind uint8

const (
	QueryErrorSyntax QueryErrorKind = iota + 1
	QueryErrorNodeType
	QueryErrorField
	QueryErrorCapture
	QueryErrorPredicate
	QueryErrorStructure
	QueryErrorLanguage
)

func (k QueryErrorKind) String() string {
	switch k {
	case QueryErrorSyntax:
		return "syntax"
	case QueryErrorNodeType:
		return "node type"
	case QueryErrorField:
		return "field"
	case QueryErrorCapture:
		return "capture"
	case QueryErrorPredicate:
		return "predicate"
	case QueryErrorStructure:
		return "structure"
	case QueryErrorLanguage:
		return "language"
	default:
		return "unknown"
	}
}

// QueryError describes where and why a query failed to compile. Row and
// Column are zero-based; Column counts bytes.
type QueryError struct {
	Kind    QueryErrorKind
	Offset  uint32
	Row     uint32
	Column  uint32
	Name    string // the offending node type, field, capture or predicate
	Message string

	line string
}

func (e *QueryError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "query: %s error at row %d, column %d: %s", e.Kind, e.Row, e.Column, e.Message)
	if e.line != "" {
		b.WriteByte('\n')
		b.WriteString(e.line)
		b.WriteByte('\n')
		b.WriteString(strings.Repeat(" ", int(e.Column)))
		b.WriteByte('^')
	}
	return b.String()
}

func newQueryError(source string, kind QueryErrorKind, offset int, name, msg string) *QueryError {
	if offset > len(source) {
		offset = len(source)
	}
	e := &QueryError{Kind: kind, Offset: uint32(offset), Name: name, Message: msg}
	lineStart := strings.LastIndexByte(source[:offset], '\n') + 1
	e.Row = uint32(strings.Count(source[:lineStart], "\n"))
	e.Column = uint32(offset - lineStart)
	lineEnd := strings.IndexByte(source[lineStart:], '\n')
	if lineEnd < 0 {
		e.line = source[lineStart:]
	} else {
		e.line = source[lineStart : lineStart+lineEnd]
	}
	return e
}

// NewQuery compiles query source (tree-sitter .scm format) against a language.
// It returns a *QueryError if the query syntax is invalid or references
// unknown node types, fields or captures.
func NewQuery(source string, lang *Language) (*Query, error) {
	if err := lang.checkVersion(); err != nil {
		return nil, newQueryError(source, QueryErrorLanguage, 0, "", err.Error())
	}
	p := &queryParser{
		input: source,
		lang:  lang,
		q: &Query{
			language: lang,
			source:   source,
			captures: []string{},
		},
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	p.q.analyzeSteps()
	p.q.buildRootPatternIndex()
	return p.q, nil
}

// Language returns the language the query was compiled for.
func (q *Query) Language() *Language { return q.language }

// PatternCount returns the number of patterns in the query.
func (q *Query) PatternCount() int {
	return len(q.patterns)
}

// CaptureNames returns the list of unique capture names used in the query.
func (q *Query) CaptureNames() []string {
	return q.captures
}

// CaptureCount returns the number of distinct capture names.
func (q *Query) CaptureCount() int { return len(q.captures) }

// CaptureNameForID returns the name of a capture id, or "".
func (q *Query) CaptureNameForID(id uint32) string {
	if int(id) < len(q.captures) {
		return q.captures[id]
	}
	return ""
}

// CaptureIndexForName returns the id of a capture name.
func (q *Query) CaptureIndexForName(name string) (uint32, bool) {
	for i, c := range q.captures {
		if c == name {
			return uint32(i), true
		}
	}
	return 0, false
}

// StringCount returns the number of string literals used by predicates.
func (q *Query) StringCount() int { return len(q.strings) }

// StringValueForID returns a predicate string literal by id.
func (q *Query) StringValueForID(id uint32) string {
	if int(id) < len(q.strings) {
		return q.strings[id]
	}
	return ""
}

// CaptureQuantifier reports how many times a capture can occur in one
// match of a pattern.
func (q *Query) CaptureQuantifier(patternIndex int, captureID uint32) Quantifier {
	if patternIndex < 0 || patternIndex >= len(q.patterns) {
		return QuantifierZero
	}
	return q.patterns[patternIndex].quantifiers[captureID]
}

// StartByteForPattern returns where a pattern begins in the query source.
func (q *Query) StartByteForPattern(i int) uint32 { return q.patterns[i].startByte }

// EndByteForPattern returns where a pattern ends in the query source.
func (q *Query) EndByteForPattern(i int) uint32 { return q.patterns[i].endByte }

// TextPredicates returns the text predicates attached to a pattern.
func (q *Query) TextPredicates(i int) []TextPredicate { return q.patterns[i].textPredicates }

// PropertySettings returns the #set! directives attached to a pattern.
func (q *Query) PropertySettings(i int) []QueryProperty { return q.patterns[i].properties }

// PropertyPredicates returns the #is? and #is-not? predicates of a pattern.
func (q *Query) PropertyPredicates(i int) []PropertyPredicate {
	return q.patterns[i].propertyPredicates
}

// GeneralPredicates returns predicates the query engine does not
// interpret itself.
func (q *Query) GeneralPredicates(i int) []QueryPredicate { return q.patterns[i].generalPredicates }

// IsPatternRooted reports whether a pattern has a single root node.
func (q *Query) IsPatternRooted(i int) bool { return q.patterns[i].rooted }

// IsPatternNonLocal reports whether a pattern matches a sequence of
// sibling nodes rather than a single subtree.
func (q *Query) IsPatternNonLocal(i int) bool { return !q.patterns[i].rooted }

// DisableCapture stops the named capture from being recorded. The pattern
// still has to match the node.
func (q *Query) DisableCapture(name string) {
	id, ok := q.CaptureIndexForName(name)
	if !ok {
		return
	}
	for i := range q.steps {
		ids := q.steps[i].captureIDs
		for j, c := range ids {
			if c == id {
				q.steps[i].captureIDs = append(ids[:j:j], ids[j+1:]...)
				break
			}
		}
	}
}

// DisablePattern stops a pattern from starting new matches.
func (q *Query) DisablePattern(i int) {
	if i >= 0 && i < len(q.patterns) {
		q.patterns[i].disabled = true
	}
}

// Execute runs the query against a syntax tree and returns all matches
// whose text predicates hold.
func (q *Query) Execute(tree *Tree) []QueryMatch {
	if tree == nil {
		return nil
	}
	return q.executeNode(tree.RootNode(), TreeText(tree))
}

// ExecuteNode runs the query starting from a specific node. Text
// predicates are evaluated against source when it is non-nil.
func (q *Query) ExecuteNode(node *Node, source []byte) []QueryMatch {
	var text TextProvider
	if source != nil {
		text = SourceText(source)
	}
	return q.executeNode(node, text)
}

func (q *Query) executeNode(root *Node, text TextProvider) []QueryMatch {
	if root == nil {
		return nil
	}
	var matches []QueryMatch
	it := NewQueryCursor().Matches(q, root, text)
	for {
		m, ok := it.Next()
		if !ok {
			return matches
		}
		matches = append(matches, m)
	}
}

func (q *Query) rootPatternCandidates(sym Symbol) []int {
	return q.rootCandidatesBySymbol[sym]
}

// analyzeSteps marks the steps whose subpattern records captures.
func (q *Query) analyzeSteps() {
	for i := range q.steps {
		step := &q.steps[i]
		if step.done() {
			continue
		}
		step.containsCaptures = len(step.captureIDs) > 0
		for j := i + 1; j < len(q.steps); j++ {
			next := &q.steps[j]
			if next.done() || next.depth <= step.depth {
				break
			}
			if len(next.captureIDs) > 0 {
				step.containsCaptures = true
				break
			}
		}
	}
}

// stepIsFallible reports whether a state at step can still fail after the
// step itself matched, because the next step needs a child.
func (q *Query) stepIsFallible(i int) bool {
	next := &q.steps[i+1]
	return !next.done() && next.depth > q.steps[i].depth
}

func (q *Query) buildRootPatternIndex() {
	q.rootCandidatesBySymbol = make(map[Symbol][]int)
	q.rootFallbackCandidates = nil
	for pi := range q.patterns {
		pat := &q.patterns[pi]
		pat.rooted = true
		start := pat.stepStart
		for {
			step := &q.steps[start]
			if step.done() {
				break
			}
			rooted := step.depth == 0
			for j := start + 1; j < len(q.steps); j++ {
				s := &q.steps[j]
				if s.isDeadEnd || s.done() {
					break
				}
				if s.depth == step.depth {
					rooted = false
					break
				}
			}
			if !rooted {
				pat.rooted = false
			}
			idx := len(q.entries)
			q.entries = append(q.entries, patternEntry{step: start, pattern: pi, rooted: rooted})
			if step.symbol == wildcardSymbol {
				q.rootFallbackCandidates = append(q.rootFallbackCandidates, idx)
			} else {
				q.rootCandidatesBySymbol[step.symbol] = append(q.rootCandidatesBySymbol[step.symbol], idx)
			}
			if step.alternative == noAlternative {
				break
			}
			start = step.alternative
		}
	}
}

// --------------------------------------------------------------------------
// S-expression parser
// --------------------------------------------------------------------------

// errParentDone is returned by parsePattern when it meets the closing
// bracket of the enclosing expression instead of a pattern.
var errParentDone = errors.New("query: parent done")

// queryParser parses tree-sitter .scm query files into a Query.
type queryParser struct {
	input   string
	pos     int
	lang    *Language
	q       *Query
	pattern int
}

func (p *queryParser) errorf(kind QueryErrorKind, offset int, name, format string, args ...any) error {
	return newQueryError(p.input, kind, offset, name, fmt.Sprintf(format, args...))
}

func (p *queryParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *queryParser) parse() error {
	for {
		p.skipWhitespaceAndComments()
		if p.pos >= len(p.input) {
			return nil
		}
		p.pattern = len(p.q.patterns)
		start := len(p.q.steps)
		p.q.patterns = append(p.q.patterns, queryPattern{stepStart: start, startByte: uint32(p.pos)})
		quants := captureQuantifiers{}

		err := p.parsePattern(0, false, quants)
		p.q.steps = append(p.q.steps, newQueryStep(0, patternDoneDepth, false))
		if errors.Is(err, errParentDone) {
			err = p.errorf(QueryErrorSyntax, p.pos, "", "unexpected %q", string(p.peek()))
		}
		if err != nil {
			return err
		}

		pat := &p.q.patterns[p.pattern]
		pat.stepEnd = len(p.q.steps)
		pat.endByte = uint32(p.pos)
		pat.quantifiers = quants
		if pat.stepEnd-pat.stepStart == 1 {
			return p.errorf(QueryErrorStructure, int(pat.startByte), "", "pattern matches no nodes")
		}
	}
}

// parsePattern parses one pattern with its suffixes, appending its steps.
// depth is the nesting depth for the steps produced.
func (p *queryParser) parsePattern(depth uint16, immediate bool, quants captureQuantifiers) error {
	p.skipWhitespaceAndComments()
	if p.pos >= len(p.input) {
		return p.errorf(QueryErrorSyntax, p.pos, "", "unexpected end of query")
	}
	ch := p.peek()
	if ch == ')' || ch == ']' {
		return errParentDone
	}
	start := len(p.q.steps)

	switch {
	case ch == '[':
		if err := p.parseAlternationPattern(depth, immediate, quants); err != nil {
			return err
		}

	case ch == '(':
		p.pos++
		p.skipWhitespaceAndComments()
		switch next := p.peek(); {
		case next == '(' || next == '"' || next == '[':
			if err := p.parseGroup(depth, immediate, quants); err != nil {
				return err
			}
		case next == '#':
			return p.parsePredicate()
		default:
			if err := p.parseNodePattern(depth, immediate, quants); err != nil {
				return err
			}
		}

	case ch == '_':
		p.pos++
		p.q.steps = append(p.q.steps, newQueryStep(wildcardSymbol, depth, immediate))

	case ch == '"':
		if err := p.parseStringPattern(depth, immediate); err != nil {
			return err
		}

	case ch == '.':
		return p.errorf(QueryErrorStructure, p.pos, "", "anchor must appear between child patterns")

	case isIdentStart(ch):
		if err := p.parseFieldPattern(depth, immediate, quants); err != nil {
			return err
		}

	default:
		return p.errorf(QueryErrorSyntax, p.pos, "", "unexpected %q", string(ch))
	}

	return p.parseSuffixes(start, depth, quants)
}

// parseSuffixes applies quantifiers and captures that follow a pattern
// whose steps begin at start.
func (p *queryParser) parseSuffixes(start int, depth uint16, quants captureQuantifiers) error {
	steps := &p.q.steps
	quantifier := QuantifierOne
	for {
		p.skipWhitespaceAndComments()
		switch p.peek() {
		case '+':
			p.pos++
			quantifier = quantifier.join(QuantifierOneOrMore)
			repeat := newQueryStep(wildcardSymbol, depth, false)
			repeat.alternative = start
			repeat.isPassThrough = true
			repeat.alternativeIsImmediate = true
			*steps = append(*steps, repeat)

		case '*':
			p.pos++
			quantifier = quantifier.join(QuantifierZeroOrMore)
			repeat := newQueryStep(wildcardSymbol, depth, false)
			repeat.alternative = start
			repeat.isPassThrough = true
			repeat.alternativeIsImmediate = true
			*steps = append(*steps, repeat)
			i := start
			for (*steps)[i].alternative != noAlternative && (*steps)[i].alternative < len(*steps)-1 {
				i = (*steps)[i].alternative
			}
			(*steps)[i].alternative = len(*steps)

		case '?':
			p.pos++
			quantifier = quantifier.join(QuantifierZeroOrOne)
			i := start
			for (*steps)[i].alternative != noAlternative && (*steps)[i].alternative < len(*steps) {
				i = (*steps)[i].alternative
			}
			(*steps)[i].alternative = len(*steps)

		case '@':
			name, err := p.readCapture()
			if err != nil {
				return err
			}
			id := p.ensureCapture(name)
			quants.addFor(id, QuantifierOne)
			for i := start; ; {
				(*steps)[i].addCapture(id)
				alt := (*steps)[i].alternative
				if alt == noAlternative || alt <= i || alt >= len(*steps) {
					break
				}
				i = alt
			}

		default:
			quants.mul(quantifier)
			return nil
		}
	}
}

// parseAlternationPattern parses [a b c]. Branches are laid out one after
// another; each branch's first step points at the next branch and a dead
// end step after each branch jumps past the rest.
func (p *queryParser) parseAlternationPattern(depth uint16, immediate bool, quants captureQuantifiers) error {
	open := p.pos
	p.pos++
	start := len(p.q.steps)
	var branches []int
	branchQuants := captureQuantifiers{}
	for {
		branchStart := len(p.q.steps)
		err := p.parsePattern(depth, immediate, branchQuants)
		if errors.Is(err, errParentDone) {
			if p.peek() == ']' && len(branches) > 0 {
				p.pos++
				break
			}
			if p.peek() == ']' {
				return p.errorf(QueryErrorSyntax, open, "", "empty alternation")
			}
			return p.errorf(QueryErrorSyntax, p.pos, "", "unexpected %q in alternation", string(p.peek()))
		}
		if err != nil {
			return err
		}
		if branchStart == start {
			quants.replace(branchQuants)
		} else {
			quants.joinAll(branchQuants)
		}
		branches = append(branches, branchStart)
		p.q.steps = append(p.q.steps, newQueryStep(0, depth, false))
		branchQuants = captureQuantifiers{}
	}
	p.q.steps = p.q.steps[:len(p.q.steps)-1]

	for i := 0; i < len(branches)-1; i++ {
		next := branches[i+1]
		p.q.steps[branches[i]].alternative = next
		end := &p.q.steps[next-1]
		end.alternative = len(p.q.steps)
		end.isDeadEnd = true
	}
	return nil
}

// parseGroup parses a parenthesized sequence of sibling patterns. The
// opening parenthesis has been consumed.
func (p *queryParser) parseGroup(depth uint16, immediate bool, quants captureQuantifiers) error {
	childImmediate := immediate
	childQuants := captureQuantifiers{}
	for {
		p.skipWhitespaceAndComments()
		if p.peek() == '.' {
			childImmediate = true
			p.pos++
		}
		err := p.parsePattern(depth, childImmediate, childQuants)
		if errors.Is(err, errParentDone) {
			if p.peek() == ')' {
				p.pos++
				return nil
			}
			return p.errorf(QueryErrorSyntax, p.pos, "", "unexpected %q in group", string(p.peek()))
		}
		if err != nil {
			return err
		}
		quants.addAll(childQuants)
		childQuants = captureQuantifiers{}
		childImmediate = false
	}
}

// parseNodePattern parses (type child...) after the opening parenthesis.
func (p *queryParser) parseNodePattern(depth uint16, immediate bool, quants captureQuantifiers) error {
	start := len(p.q.steps)
	nameStart := p.pos
	name, err := p.readIdentifier()
	if err != nil {
		return err
	}

	var sym Symbol
	missing := false
	switch name {
	case "_":
		sym = wildcardSymbol
	case "MISSING":
		missing = true
		p.skipWhitespaceAndComments()
		switch ch := p.peek(); {
		case isIdentStart(ch):
			at := p.pos
			inner, _ := p.readIdentifier()
			s, ok := p.lang.SymbolForName(inner, true)
			if !ok {
				return p.errorf(QueryErrorNodeType, at, inner, "unknown node type %q", inner)
			}
			sym = s
		case ch == '"':
			at := p.pos + 1
			lit, err := p.readString()
			if err != nil {
				return err
			}
			s, ok := p.lang.SymbolForName(lit, false)
			if !ok {
				return p.errorf(QueryErrorNodeType, at, lit, "unknown node type %q", lit)
			}
			sym = s
		case ch == ')':
			sym = wildcardSymbol
		default:
			return p.errorf(QueryErrorSyntax, p.pos, "", "unexpected %q after MISSING", string(ch))
		}
	default:
		s, _, err := p.resolveSymbol(name, nameStart)
		if err != nil {
			return err
		}
		sym = s
	}

	step := newQueryStep(sym, depth, immediate)
	step.isMissing = missing
	if sym == wildcardSymbol {
		step.isNamed = true
	}
	p.q.steps = append(p.q.steps, step)

	childImmediate := false
	lastChild := -1
	var negated []FieldID
	childQuants := captureQuantifiers{}
	for {
		p.skipWhitespaceAndComments()
		if p.peek() == '!' {
			p.pos++
			p.skipWhitespaceAndComments()
			at := p.pos
			field, err := p.readIdentifier()
			if err != nil {
				return err
			}
			fid, err := p.resolveField(field, at)
			if err != nil {
				return err
			}
			negated = append(negated, fid)
			continue
		}
		if p.peek() == '.' {
			childImmediate = true
			p.pos++
		}

		childStart := len(p.q.steps)
		err := p.parsePattern(depth+1, childImmediate, childQuants)
		if errors.Is(err, errParentDone) {
			if p.peek() != ')' {
				return p.errorf(QueryErrorSyntax, p.pos, "", "unexpected %q in node pattern", string(p.peek()))
			}
			if childImmediate {
				if lastChild < 0 {
					return p.errorf(QueryErrorStructure, p.pos-1, "", "anchor must follow a child pattern")
				}
				p.q.steps[lastChild].isLastChild = true
			}
			p.q.steps[start].negatedFields = negated
			p.pos++
			return nil
		}
		if err != nil {
			return err
		}
		quants.addAll(childQuants)
		childQuants = captureQuantifiers{}
		if childStart < len(p.q.steps) {
			lastChild = childStart
		}
		childImmediate = false
	}
}

// parseStringPattern parses an anonymous node such as "func".
func (p *queryParser) parseStringPattern(depth uint16, immediate bool) error {
	at := p.pos + 1
	lit, err := p.readString()
	if err != nil {
		return err
	}
	sym, ok := p.lang.SymbolForName(lit, false)
	if !ok {
		return p.errorf(QueryErrorNodeType, at, lit, "unknown node type %q", lit)
	}
	p.q.steps = append(p.q.steps, newQueryStep(sym, depth, immediate))
	return nil
}

// parseFieldPattern parses name: pattern. The field applies to the
// pattern's first step and every alternative of it.
func (p *queryParser) parseFieldPattern(depth uint16, immediate bool, quants captureQuantifiers) error {
	start := len(p.q.steps)
	at := p.pos
	name, err := p.readIdentifier()
	if err != nil {
		return err
	}
	p.skipWhitespaceAndComments()
	if p.peek() != ':' {
		return p.errorf(QueryErrorSyntax, at, name, "expected ':' after field name %q", name)
	}
	p.pos++

	fieldQuants := captureQuantifiers{}
	if err := p.parsePattern(depth, immediate, fieldQuants); err != nil {
		if errors.Is(err, errParentDone) {
			return p.errorf(QueryErrorSyntax, p.pos, "", "expected pattern after field %q", name)
		}
		return err
	}
	fid, err := p.resolveField(name, at)
	if err != nil {
		return err
	}
	for i := start; ; {
		p.q.steps[i].field = fid
		alt := p.q.steps[i].alternative
		if alt == noAlternative || alt <= i || alt >= len(p.q.steps) {
			break
		}
		i = alt
	}
	quants.addAll(fieldQuants)
	return nil
}

// parsePredicate parses (#name args...) after the opening parenthesis and
// attaches it to the current pattern.
func (p *queryParser) parsePredicate() error {
	at := p.pos
	p.pos++ // consume '#'
	name, err := p.readIdentifier()
	if err != nil {
		return p.errorf(QueryErrorSyntax, at, "", "expected predicate name")
	}
	var args []QueryPredicateArg
	for {
		p.skipWhitespaceAndComments()
		switch ch := p.peek(); {
		case ch == ')':
			p.pos++
			return p.addPredicate(name, args, at)
		case ch == '@':
			capAt := p.pos
			capName, err := p.readCapture()
			if err != nil {
				return err
			}
			id, ok := p.q.CaptureIndexForName(capName)
			if !ok {
				return p.errorf(QueryErrorCapture, capAt+1, capName, "unknown capture @%s", capName)
			}
			args = append(args, QueryPredicateArg{Capture: true, CaptureID: id, Value: capName})
		case ch == '"':
			lit, err := p.readString()
			if err != nil {
				return err
			}
			args = append(args, QueryPredicateArg{Value: lit, StringID: p.ensureString(lit)})
		case isIdentStart(ch):
			ident, _ := p.readIdentifier()
			args = append(args, QueryPredicateArg{Value: ident, StringID: p.ensureString(ident)})
		case ch == 0:
			return p.errorf(QueryErrorSyntax, p.pos, name, "unterminated predicate #%s", name)
		default:
			return p.errorf(QueryErrorSyntax, p.pos, name, "unexpected %q in predicate #%s", string(ch), name)
		}
	}
}

// readIdentifier reads an identifier (node type name, field name,
// predicate name). Identifiers can contain letters, digits, underscores,
// dots, hyphens and the ?/! suffixes of predicate names.
func (p *queryParser) readIdentifier() (string, error) {
	start := p.pos
	if !isIdentStart(p.peek()) {
		return "", p.errorf(QueryErrorSyntax, p.pos, "", "expected identifier")
	}
	for p.pos < len(p.input) {
		ch := p.input[p.pos]
		if isIdentStart(ch) || (ch >= '0' && ch <= '9') || ch == '.' || ch == '?' || ch == '!' {
			p.pos++
			continue
		}
		break
	}
	return p.input[start:p.pos], nil
}

// readCapture reads a @capture_name token. It consumes the '@' and the name.
func (p *queryParser) readCapture() (string, error) {
	at := p.pos
	p.pos++ // consume '@'
	if !isIdentStart(p.peek()) {
		return "", p.errorf(QueryErrorSyntax, at, "", "expected capture name after '@'")
	}
	return p.readIdentifier()
}

// readString reads a quoted string like "func". Consumes the quotes.
func (p *queryParser) readString() (string, error) {
	open := p.pos
	p.pos++ // consume opening '"'
	var sb strings.Builder
	for p.pos < len(p.input) {
		ch := p.input[p.pos]
		switch ch {
		case '\\':
			if p.pos+1 >= len(p.input) {
				return "", p.errorf(QueryErrorSyntax, open, "", "unterminated string")
			}
			p.pos++
			switch esc := p.input[p.pos]; esc {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case '0':
				sb.WriteByte(0)
			default:
				sb.WriteByte(esc)
			}
			p.pos++
		case '"':
			p.pos++ // consume closing '"'
			return sb.String(), nil
		case '\n':
			return "", p.errorf(QueryErrorSyntax, open, "", "unterminated string")
		default:
			sb.WriteByte(ch)
			p.pos++
		}
	}
	return "", p.errorf(QueryErrorSyntax, open, "", "unterminated string")
}

// skipWhitespaceAndComments skips whitespace and ;-style line comments.
func (p *queryParser) skipWhitespaceAndComments() {
	for p.pos < len(p.input) {
		ch := p.input[p.pos]
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f' {
			p.pos++
			continue
		}
		if ch == ';' {
			// Skip to end of line.
			for p.pos < len(p.input) && p.input[p.pos] != '\n' {
				p.pos++
			}
			continue
		}
		break
	}
}

// resolveSymbol looks up a named node type in the language, returning the
// symbol ID and whether it's a named symbol.
func (p *queryParser) resolveSymbol(name string, at int) (Symbol, bool, error) {
	sym, ok := p.lang.SymbolForName(name, true)
	if !ok {
		return 0, false, p.errorf(QueryErrorNodeType, at, name, "unknown node type %q", name)
	}
	return sym, true, nil
}

// resolveField looks up a field name in the language.
func (p *queryParser) resolveField(name string, at int) (FieldID, error) {
	fid, ok := p.lang.FieldByName(name)
	if !ok {
		return 0, p.errorf(QueryErrorField, at, name, "unknown field name %q", name)
	}
	return fid, nil
}

// ensureCapture returns the id for a capture name, adding it if new.
func (p *queryParser) ensureCapture(name string) uint32 {
	if id, ok := p.q.CaptureIndexForName(name); ok {
		return id
	}
	p.q.captures = append(p.q.captures, name)
	return uint32(len(p.q.captures) - 1)
}

func (p *queryParser) ensureString(s string) uint32 {
	for i, v := range p.q.strings {
		if v == s {
			return uint32(i)
		}
	}
	p.q.strings = append(p.q.strings, s)
	return uint32(len(p.q.strings) - 1)
}

// isIdentStart reports whether a byte can start an identifier.
func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch == '-'
}
