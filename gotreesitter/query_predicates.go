package gotreesitter

import (
	"slices"

	"github.com/dlclark/regexp2"
)

// QueryPredicateArg is one argument of a predicate: a capture or a string.
type QueryPredicateArg struct {
	Capture   bool
	CaptureID uint32
	StringID  uint32
	// Value is the capture name for captures and the text for strings.
	Value string
}

// QueryPredicate is a predicate the engine leaves to the caller, such as
// (#select-adjacent! @a @b).
type QueryPredicate struct {
	Name string
	Args []QueryPredicateArg
}

// TextPredicateKind identifies the comparison a TextPredicate makes.
type TextPredicateKind uint8

const (
	TextPredicateEq TextPredicateKind = iota
	TextPredicateMatch
	TextPredicateAnyOf
)

// TextPredicate constrains the text of a capture. Supported forms:
//   - (#eq? @a @b), (#eq? @a "literal") and their not-/any- variants
//   - (#match? @a "regex") and its not-/any- variants
//   - (#any-of? @a "x" "y"), (#not-any-of? @a "x" "y")
//
// When a capture holds several nodes, every node must satisfy the
// predicate unless it has the any- prefix.
type TextPredicate struct {
	Kind      TextPredicateKind
	CaptureID uint32
	Negated   bool
	AnyNode   bool

	// OtherCapture is set when the eq? operand is a capture.
	OtherCapture   bool
	OtherCaptureID uint32

	Value  string
	Values []string

	regex *regexp2.Regexp
}

// QueryProperty is a key, optional value and optional capture given by
// #set!, #is? or #is-not?.
type QueryProperty struct {
	Key      string
	Value    string
	HasValue bool

	Capture   bool
	CaptureID uint32
}

// PropertyPredicate is an #is? or #is-not? assertion.
type PropertyPredicate struct {
	Property QueryProperty
	Positive bool
}

func (p *queryParser) addPredicate(name string, args []QueryPredicateArg, at int) error {
	pat := &p.q.patterns[p.pattern]
	bad := func(usage string) error {
		return p.errorf(QueryErrorPredicate, at, name, "#%s expects %s", name, usage)
	}
	switch name {
	case "eq?", "not-eq?", "any-eq?", "any-not-eq?":
		if len(args) != 2 || !args[0].Capture {
			return bad("a capture and a capture or string")
		}
		tp := TextPredicate{
			Kind:      TextPredicateEq,
			CaptureID: args[0].CaptureID,
			Negated:   name == "not-eq?" || name == "any-not-eq?",
			AnyNode:   name == "any-eq?" || name == "any-not-eq?",
		}
		if args[1].Capture {
			tp.OtherCapture = true
			tp.OtherCaptureID = args[1].CaptureID
		} else {
			tp.Value = args[1].Value
		}
		pat.textPredicates = append(pat.textPredicates, tp)

	case "match?", "not-match?", "any-match?", "any-not-match?":
		if len(args) != 2 || !args[0].Capture || args[1].Capture {
			return bad("a capture and a regular expression string")
		}
		re, err := regexp2.Compile(args[1].Value, regexp2.RE2)
		if err != nil {
			return p.errorf(QueryErrorPredicate, at, name, "invalid regular expression %q: %v", args[1].Value, err)
		}
		pat.textPredicates = append(pat.textPredicates, TextPredicate{
			Kind:      TextPredicateMatch,
			CaptureID: args[0].CaptureID,
			Negated:   name == "not-match?" || name == "any-not-match?",
			AnyNode:   name == "any-match?" || name == "any-not-match?",
			Value:     args[1].Value,
			regex:     re,
		})

	case "any-of?", "not-any-of?":
		if len(args) < 2 || !args[0].Capture {
			return bad("a capture followed by strings")
		}
		values := make([]string, 0, len(args)-1)
		for _, a := range args[1:] {
			if a.Capture {
				return bad("a capture followed by strings")
			}
			values = append(values, a.Value)
		}
		pat.textPredicates = append(pat.textPredicates, TextPredicate{
			Kind:      TextPredicateAnyOf,
			CaptureID: args[0].CaptureID,
			Negated:   name == "not-any-of?",
			Values:    values,
		})

	case "set!", "is?", "is-not?":
		prop, ok := parseProperty(args)
		if !ok {
			return bad("an optional capture, a key and an optional value")
		}
		if name == "set!" {
			pat.properties = append(pat.properties, prop)
		} else {
			pat.propertyPredicates = append(pat.propertyPredicates, PropertyPredicate{
				Property: prop,
				Positive: name == "is?",
			})
		}

	default:
		pat.generalPredicates = append(pat.generalPredicates, QueryPredicate{Name: name, Args: args})
	}
	return nil
}

// parseProperty accepts (key), (key value), (@cap key) and (@cap key value).
func parseProperty(args []QueryPredicateArg) (QueryProperty, bool) {
	var prop QueryProperty
	if len(args) > 0 && args[0].Capture {
		prop.Capture = true
		prop.CaptureID = args[0].CaptureID
		args = args[1:]
	}
	if len(args) == 0 || len(args) > 2 {
		return prop, false
	}
	for _, a := range args {
		if a.Capture {
			return prop, false
		}
	}
	prop.Key = args[0].Value
	if len(args) == 2 {
		prop.Value = args[1].Value
		prop.HasValue = true
	}
	return prop, true
}

// satisfiesTextPredicates evaluates the pattern's text predicates against
// a match. A nil text provider accepts every match.
func (q *Query) satisfiesTextPredicates(m *QueryMatch, text TextProvider) bool {
	if text == nil {
		return true
	}
	for i := range q.patterns[m.PatternIndex].textPredicates {
		if !q.patterns[m.PatternIndex].textPredicates[i].satisfied(m, text) {
			return false
		}
	}
	return true
}

// satisfied reports whether the predicate holds for a match. Captures that
// matched no nodes satisfy every predicate.
func (tp *TextPredicate) satisfied(m *QueryMatch, text TextProvider) bool {
	nodes := m.NodesFor(tp.CaptureID)
	if len(nodes) == 0 {
		return true
	}
	var others []*Node
	if tp.OtherCapture {
		others = m.NodesFor(tp.OtherCaptureID)
		if len(others) == 0 {
			return true
		}
	}
	test := func(i int, n *Node) bool {
		s := string(text(n))
		var ok bool
		switch tp.Kind {
		case TextPredicateEq:
			if tp.OtherCapture {
				ok = s == string(text(others[min(i, len(others)-1)]))
			} else {
				ok = s == tp.Value
			}
		case TextPredicateMatch:
			matched, err := tp.regex.MatchString(s)
			ok = err == nil && matched
		case TextPredicateAnyOf:
			ok = slices.Contains(tp.Values, s)
		}
		return ok != tp.Negated
	}
	if tp.AnyNode {
		for i, n := range nodes {
			if test(i, n) {
				return true
			}
		}
		return false
	}
	for i, n := range nodes {
		if !test(i, n) {
			return false
		}
	}
	return true
}
