package gotreesitter_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/sitter/gotreesitter"
	"github.com/odvcencio/sitter/grammars"
)

type matchSummary struct {
	pattern int
	text    []string
}

func collectMatches(tree *gotreesitter.Tree, q *gotreesitter.Query) []matchSummary {
	var out []matchSummary
	src := tree.Source()
	it := gotreesitter.NewQueryCursor().Matches(q, tree.RootNode(), gotreesitter.TreeText(tree))
	for {
		m, ok := it.Next()
		if !ok {
			return out
		}
		s := matchSummary{pattern: m.PatternIndex}
		for _, c := range m.Captures {
			s.text = append(s.text, c.Node.Text(src))
		}
		out = append(out, s)
	}
}

func collectCaptures(tree *gotreesitter.Tree, q *gotreesitter.Query) []string {
	var out []string
	src := tree.Source()
	it := gotreesitter.NewQueryCursor().Captures(q, tree.RootNode(), gotreesitter.TreeText(tree))
	for {
		m, idx, ok := it.Next()
		if !ok {
			return out
		}
		c := m.Captures[idx]
		out = append(out, c.Name+"="+c.Node.Text(src))
	}
}

func TestQueryMatchesInDiscoveryOrder(t *testing.T) {
	tree := parseJS(t, "return a + b - c;")
	q := mustQuery(t, `
(return_statement (_) @the-return-value)
(binary_expression operator: _ @the-operator)
`)
	assert.Equal(t, []matchSummary{
		{0, []string{"a + b - c"}},
		{1, []string{"+"}},
		{1, []string{"-"}},
	}, collectMatches(tree, q))
}

func TestQueryCapturesOrderedBySpan(t *testing.T) {
	tree := parseJS(t, "f(a + b);")
	q := mustQuery(t, `
(identifier) @id
(call_expression) @call
(binary_expression) @bin
`)
	assert.Equal(t, []string{"call=f(a + b)", "id=f", "bin=a + b", "id=a", "id=b"}, collectCaptures(tree, q))
}

func TestQueryNotMatchFiltersCaptures(t *testing.T) {
	tree := parseJS(t, "toad; load; panda; lambda;")
	q := mustQuery(t, `((identifier) @variable (#not-match? @variable "^(lambda|load)$"))`)
	assert.Equal(t, []string{"variable=toad", "variable=panda"}, collectCaptures(tree, q))
}

func TestQueryTextPredicates(t *testing.T) {
	tree := parseJS(t, "a = a; b = c; d = 1;")
	tests := []struct {
		query string
		want  []string
	}{
		{`((assignment_expression left: (_) @l right: (_) @r) (#eq? @l @r))`, []string{"l=a", "r=a"}},
		{`((assignment_expression left: (_) @l right: (identifier) @r) (#not-eq? @l @r))`, []string{"l=b", "r=c"}},
		{`((identifier) @id (#any-of? @id "c" "d"))`, []string{"id=c", "id=d"}},
		{`((identifier) @id (#eq? @id "b"))`, []string{"id=b"}},
		{`((number) @n (#match? @n "^\\d$"))`, []string{"n=1"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, collectCaptures(tree, mustQuery(t, tt.query)))
		})
	}
}

func TestQueryNilTextProviderSkipsPredicates(t *testing.T) {
	tree := parseJS(t, "x; y;")
	q := mustQuery(t, `((identifier) @id (#eq? @id "x"))`)
	matches := q.ExecuteNode(tree.RootNode(), nil)
	assert.Len(t, matches, 2)
	assert.Len(t, q.Execute(tree), 1)
}

func TestQueryDisablePattern(t *testing.T) {
	tree := parseJS(t, "a = 1 + b;")
	q := mustQuery(t, "(identifier) @id\n(number) @num")
	require.Len(t, collectMatches(tree, q), 3)

	q.DisablePattern(0)
	assert.Equal(t, []matchSummary{{1, []string{"1"}}}, collectMatches(tree, q))
}

func TestQueryDisableCapture(t *testing.T) {
	tree := parseJS(t, "x = a * b;")
	q := mustQuery(t, `(binary_expression left: (_) @left right: (_) @right)`)
	q.DisableCapture("left")
	assert.Equal(t, []matchSummary{{0, []string{"b"}}}, collectMatches(tree, q))
}

func TestQueryIteratorsAreFused(t *testing.T) {
	tree := parseJS(t, "a; b;")
	q := mustQuery(t, "(identifier) @id")
	qc := gotreesitter.NewQueryCursor()

	matches := qc.Matches(q, tree.RootNode(), gotreesitter.TreeText(tree))
	for {
		if _, ok := matches.Next(); !ok {
			break
		}
	}
	for i := 0; i < 3; i++ {
		_, ok := matches.Next()
		assert.False(t, ok)
	}

	captures := qc.Captures(q, tree.RootNode(), gotreesitter.TreeText(tree))
	n := 0
	for {
		if _, _, ok := captures.Next(); !ok {
			break
		}
		n++
	}
	assert.Equal(t, 2, n)
	_, _, ok := captures.Next()
	assert.False(t, ok)
}

func TestQueryFieldsQuantifiersAndAnchors(t *testing.T) {
	tree := parseJS(t, "function f(a, b, c) { return; }\nfunction g() {}")
	tests := []struct {
		query string
		want  []matchSummary
	}{
		{
			`(formal_parameters . (identifier) @first)`,
			[]matchSummary{{0, []string{"a"}}},
		},
		{
			`(formal_parameters (identifier) @last .)`,
			[]matchSummary{{0, []string{"c"}}},
		},
		{
			`(function_declaration name: (identifier) @name body: (statement_block (return_statement)?) @body)`,
			[]matchSummary{{0, []string{"f", "{ return; }"}}, {0, []string{"g", "{}"}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, collectMatches(tree, mustQuery(t, tt.query)))
		})
	}
}

func TestQueryRepetitionCollectsSiblings(t *testing.T) {
	tree := parseJS(t, "a; b; c;")
	q := mustQuery(t, `(program (expression_statement)+ @stmts)`)
	assert.Equal(t, []matchSummary{{0, []string{"a;", "b;", "c;"}}}, collectMatches(tree, q))
}

func TestQueryNegatedFieldAndAlternation(t *testing.T) {
	tree := parseJS(t, "let a; let b = 2; run(1);")
	q := mustQuery(t, `
(variable_declarator name: (identifier) @bare !value)
[(number) (call_expression function: (identifier) @fn)] @any
`)
	assert.Equal(t, []string{"bare=a", "any=2", "any=run(1)", "fn=run", "any=1"}, collectCaptures(tree, q))
}

func TestQueryByteRange(t *testing.T) {
	tree := parseJS(t, "a; b; c;")
	q := mustQuery(t, "(identifier) @id")
	qc := gotreesitter.NewQueryCursor()
	qc.SetByteRange(3, 4)
	it := qc.Captures(q, tree.RootNode(), nil)
	m, idx, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, "b", m.Captures[idx].Node.Text(tree.Source()))
	_, _, ok = it.Next()
	assert.False(t, ok)
}

func TestQueryMatchLimit(t *testing.T) {
	tree := parseJS(t, "f(a, b, c, d, e, g, h);")
	q := mustQuery(t, "(arguments (identifier) @a (identifier) @b)")
	qc := gotreesitter.NewQueryCursor()
	qc.SetMatchLimit(2)
	it := qc.Matches(q, tree.RootNode(), nil)
	for {
		if _, ok := it.Next(); !ok {
			break
		}
	}
	assert.Equal(t, 2, qc.MatchLimit())
	assert.True(t, qc.DidExceedMatchLimit())
}

func TestQueryPredicateBuckets(t *testing.T) {
	q := mustQuery(t, `
((identifier) @id
  (#eq? @id "x")
  (#set! priority "10")
  (#is? @id local)
  (#is-not? global)
  (#select-adjacent! @id "y"))
`)
	require.Equal(t, 1, q.PatternCount())
	assert.Len(t, q.TextPredicates(0), 1)
	assert.Equal(t, []gotreesitter.QueryProperty{{Key: "priority", Value: "10", HasValue: true}}, q.PropertySettings(0))

	props := q.PropertyPredicates(0)
	require.Len(t, props, 2)
	assert.True(t, props[0].Positive)
	assert.True(t, props[0].Property.Capture)
	assert.Equal(t, "local", props[0].Property.Key)
	assert.False(t, props[1].Positive)

	general := q.GeneralPredicates(0)
	require.Len(t, general, 1)
	assert.Equal(t, "select-adjacent!", general[0].Name)
	require.Len(t, general[0].Args, 2)
	assert.True(t, general[0].Args[0].Capture)
	assert.Equal(t, "y", general[0].Args[1].Value)

	tree := parseJS(t, "x;")
	matches := q.Execute(tree)
	require.Len(t, matches, 1)
	assert.Equal(t, q.PropertySettings(0), matches[0].Properties)
}

func TestQueryMetadata(t *testing.T) {
	src := "(identifier) @a\n((number)+ @b)"
	q := mustQuery(t, src)
	assert.Equal(t, []string{"a", "b"}, q.CaptureNames())
	id, ok := q.CaptureIndexForName("b")
	require.True(t, ok)
	assert.Equal(t, gotreesitter.QuantifierOneOrMore, q.CaptureQuantifier(1, id))
	assert.Equal(t, gotreesitter.QuantifierZero, q.CaptureQuantifier(0, id))
	assert.EqualValues(t, 0, q.StartByteForPattern(0))
	assert.EqualValues(t, 16, q.StartByteForPattern(1))
	assert.True(t, q.IsPatternRooted(0))
}

func TestQueryErrors(t *testing.T) {
	tests := []struct {
		query string
		kind  gotreesitter.QueryErrorKind
		name  string
		row   uint32
	}{
		{"(identifier", gotreesitter.QueryErrorSyntax, "", 0},
		{"(identifier) @a\n(nonexistent)", gotreesitter.QueryErrorNodeType, "nonexistent", 1},
		{`(binary_expression nope: (_))`, gotreesitter.QueryErrorField, "nope", 0},
		{`((identifier) @a (#eq? @b "x"))`, gotreesitter.QueryErrorCapture, "b", 0},
		{`((identifier) @a (#eq? @a))`, gotreesitter.QueryErrorPredicate, "eq?", 0},
		{`((identifier) @a (#match? "x" @a))`, gotreesitter.QueryErrorPredicate, "match?", 0},
		{`(binary_expression left:)`, gotreesitter.QueryErrorSyntax, "", 0},
		{`(identifier) )`, gotreesitter.QueryErrorSyntax, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, err := gotreesitter.NewQuery(tt.query, grammars.JavaScriptLanguage())
			assert.Nil(t, q)
			var qerr *gotreesitter.QueryError
			require.True(t, errors.As(err, &qerr), "got %v", err)
			assert.Equal(t, tt.kind, qerr.Kind, qerr.Error())
			assert.Equal(t, tt.row, qerr.Row)
			if tt.name != "" {
				assert.Equal(t, tt.name, qerr.Name)
			}
			assert.Contains(t, qerr.Error(), "^")
		})
	}
}

func TestQueryRejectsIncompatibleLanguage(t *testing.T) {
	_, err := gotreesitter.NewQuery("(x)", &gotreesitter.Language{ABIVersion: 99})
	var qerr *gotreesitter.QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, gotreesitter.QueryErrorLanguage, qerr.Kind)
}
