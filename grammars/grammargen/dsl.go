// Package grammargen compiles grammars written in a small tree-sitter-like
// DSL into gotreesitter Language tables: LALR(1) parse tables that keep
// unresolved conflicts as GLR multi-actions, and a lexer DFA per lex mode.
package grammargen

import "fmt"

type ruleKind uint8

const (
	ruleBlank ruleKind = iota
	ruleString
	rulePattern
	ruleSymbol
	ruleSeq
	ruleChoice
	ruleRepeat
	ruleRepeat1
	ruleToken
	ruleImmediateToken
	ruleField
	ruleAlias
	rulePrec
)

// Assoc is the associativity attached by PrecLeft and PrecRight.
type Assoc uint8

const (
	AssocNone Assoc = iota
	AssocLeft
	AssocRight
)

// Rule is one node of a grammar rule expression. Rules are built with the
// constructor functions in this file and are immutable once built.
type Rule struct {
	kind    ruleKind
	value   string
	named   bool
	members []*Rule

	prec    int
	assoc   Assoc
	dynamic int
	hasPrec bool
}

// Blank matches the empty string.
func Blank() *Rule { return &Rule{kind: ruleBlank} }

// Str matches a literal string. Strings become anonymous tokens named by
// their text.
func Str(s string) *Rule { return &Rule{kind: ruleString, value: s} }

// Pat matches a regular expression.
func Pat(re string) *Rule { return &Rule{kind: rulePattern, value: re} }

// Sym refers to another rule by name.
func Sym(name string) *Rule { return &Rule{kind: ruleSymbol, value: name} }

// Seq matches its members in order.
func Seq(members ...*Rule) *Rule { return &Rule{kind: ruleSeq, members: members} }

// Choice matches any one of its members.
func Choice(members ...*Rule) *Rule { return &Rule{kind: ruleChoice, members: members} }

// Optional matches r or nothing.
func Optional(r *Rule) *Rule { return Choice(r, Blank()) }

// Repeat matches r zero or more times.
func Repeat(r *Rule) *Rule { return &Rule{kind: ruleRepeat, members: []*Rule{r}} }

// Repeat1 matches r one or more times.
func Repeat1(r *Rule) *Rule { return &Rule{kind: ruleRepeat1, members: []*Rule{r}} }

// CommaSep1 matches one or more r separated by commas.
func CommaSep1(r *Rule) *Rule { return Seq(r, Repeat(Seq(Str(","), r))) }

// CommaSep matches zero or more r separated by commas.
func CommaSep(r *Rule) *Rule { return Optional(CommaSep1(r)) }

// Token turns a composite lexical rule into a single token.
func Token(r *Rule) *Rule { return &Rule{kind: ruleToken, members: []*Rule{r}} }

// ImmediateToken is a token that must start right where the previous one
// ended: whitespace and extras are not skipped before it.
func ImmediateToken(r *Rule) *Rule { return &Rule{kind: ruleImmediateToken, members: []*Rule{r}} }

// Field names the child (or children) produced by r.
func Field(name string, r *Rule) *Rule {
	return &Rule{kind: ruleField, value: name, members: []*Rule{r}}
}

// Alias renames the node produced by r. r must produce a single symbol.
func Alias(r *Rule, name string, named bool) *Rule {
	return &Rule{kind: ruleAlias, value: name, named: named, members: []*Rule{r}}
}

// Prec gives r a precedence used to resolve shift/reduce and
// reduce/reduce conflicts. Inside a token it sets lexical precedence.
func Prec(n int, r *Rule) *Rule {
	return &Rule{kind: rulePrec, prec: n, hasPrec: true, members: []*Rule{r}}
}

// PrecLeft is Prec with left associativity.
func PrecLeft(n int, r *Rule) *Rule {
	return &Rule{kind: rulePrec, prec: n, assoc: AssocLeft, hasPrec: true, members: []*Rule{r}}
}

// PrecRight is Prec with right associativity.
func PrecRight(n int, r *Rule) *Rule {
	return &Rule{kind: rulePrec, prec: n, assoc: AssocRight, hasPrec: true, members: []*Rule{r}}
}

// PrecDynamic adds n to the dynamic precedence of nodes built from r. The
// parser prefers the alternative with the higher total when a GLR
// ambiguity survives to the end.
func PrecDynamic(n int, r *Rule) *Rule {
	return &Rule{kind: rulePrec, dynamic: n, members: []*Rule{r}}
}

func (r *Rule) String() string {
	switch r.kind {
	case ruleBlank:
		return "blank"
	case ruleString:
		return fmt.Sprintf("%q", r.value)
	case rulePattern:
		return "/" + r.value + "/"
	case ruleSymbol:
		return r.value
	default:
		return fmt.Sprintf("rule(%d)", r.kind)
	}
}

// isLexical reports whether r describes text only, with no references to
// other rules.
func (r *Rule) isLexical() bool {
	switch r.kind {
	case ruleString, rulePattern, ruleBlank, ruleToken, ruleImmediateToken:
		return true
	case ruleSymbol, ruleField, ruleAlias:
		return false
	}
	for _, m := range r.members {
		if !m.isLexical() {
			return false
		}
	}
	return true
}

type namedRule struct {
	name string
	rule *Rule
}

// Grammar is a set of named rules. The first rule defined is the start
// rule. Rules whose names begin with an underscore are hidden: their nodes
// do not appear in the tree API, but their children do.
type Grammar struct {
	Name string

	rules      []namedRule
	extras     []*Rule
	word       string
	conflicts  [][]string
	supertypes []string
}

// NewGrammar creates an empty grammar. Whitespace is the only extra until
// Extras is called.
func NewGrammar(name string) *Grammar {
	return &Grammar{Name: name, extras: []*Rule{Pat(`\s`)}}
}

// Define adds a rule. Redefining a name replaces the earlier rule but keeps
// its position.
func (g *Grammar) Define(name string, r *Rule) *Grammar {
	for i := range g.rules {
		if g.rules[i].name == name {
			g.rules[i].rule = r
			return g
		}
	}
	g.rules = append(g.rules, namedRule{name: name, rule: r})
	return g
}

// Extras sets the tokens that may appear anywhere between other tokens.
// Patterns are skipped as whitespace; symbols appear in the tree as extra
// nodes.
func (g *Grammar) Extras(rules ...*Rule) *Grammar {
	g.extras = rules
	return g
}

// Word names the token that keywords are lexed as. Keywords are string
// tokens the word token also matches; they are recognized by a second
// DFA after the word token is lexed.
func (g *Grammar) Word(name string) *Grammar {
	g.word = name
	return g
}

// Conflicts declares groups of rules that are expected to conflict. Their
// conflicts become GLR forks without being reported.
func (g *Grammar) Conflicts(groups ...[]string) *Grammar {
	g.conflicts = append(g.conflicts, groups...)
	return g
}

// Supertypes marks hidden rules that queries may use as abstract node
// kinds.
func (g *Grammar) Supertypes(names ...string) *Grammar {
	g.supertypes = append(g.supertypes, names...)
	return g
}

// RuleNames returns the rule names in definition order.
func (g *Grammar) RuleNames() []string {
	out := make([]string, len(g.rules))
	for i, r := range g.rules {
		out[i] = r.name
	}
	return out
}
