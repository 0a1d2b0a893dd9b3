package grammargen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/odvcencio/sitter/gotreesitter"
)

func calcGrammar() *Grammar {
	expr := Sym("_expression")
	return NewGrammar("calc").
		Define("program", expr).
		Define("_expression", Choice(Sym("number"), Sym("binary_expression"), Sym("parenthesized_expression"))).
		Define("binary_expression", Choice(
			PrecLeft(1, Seq(Field("left", expr), Field("operator", Choice(Str("+"), Str("-"))), Field("right", expr))),
			PrecLeft(2, Seq(Field("left", expr), Field("operator", Choice(Str("*"), Str("/"))), Field("right", expr))),
		)).
		Define("parenthesized_expression", Seq(Str("("), expr, Str(")"))).
		Define("number", Pat(`\d+`))
}

func parse(t *testing.T, lang *gotreesitter.Language, src string) *gotreesitter.Tree {
	t.Helper()
	p := gotreesitter.NewParser()
	require.NoError(t, p.SetLanguage(lang))
	tree := p.Parse([]byte(src))
	require.NotNil(t, tree)
	t.Cleanup(tree.Close)
	return tree
}

func TestBuildPrecedenceAndAssociativity(t *testing.T) {
	lang, report, err := BuildReport(calcGrammar())
	require.NoError(t, err)
	assert.Empty(t, report.Conflicts)
	assert.True(t, lang.CompatibleWithRuntime())
	assert.EqualValues(t, 1, lang.InitialState)

	tests := []struct {
		src  string
		want string
	}{
		{"1 + 2 * 3", "(program (binary_expression left: (number) right: (binary_expression left: (number) right: (number))))"},
		{"1 * 2 + 3", "(program (binary_expression left: (binary_expression left: (number) right: (number)) right: (number)))"},
		{"1 - 2 - 3", "(program (binary_expression left: (binary_expression left: (number) right: (number)) right: (number)))"},
		{"(1 + 2) * 3", "(program (binary_expression left: (parenthesized_expression (binary_expression left: (number) right: (number))) right: (number)))"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			tree := parse(t, lang, tt.src)
			assert.Equal(t, tt.want, tree.RootNode().String())
			assert.False(t, tree.RootNode().HasError())
		})
	}
}

func TestBuildFields(t *testing.T) {
	lang := MustBuild(calcGrammar())
	src := []byte("10 / 5")
	tree := parse(t, lang, string(src))
	bin := tree.RootNode().NamedChild(0)
	require.NotNil(t, bin)
	assert.Equal(t, "binary_expression", bin.Kind())
	assert.Equal(t, "10", bin.ChildByFieldName("left").Text(src))
	assert.Equal(t, "/", bin.ChildByFieldName("operator").Text(src))
	assert.Equal(t, "5", bin.ChildByFieldName("right").Text(src))
	assert.Equal(t, "operator", bin.FieldNameForChild(1))
}

func TestBuildDenseAndCompressedTablesAgree(t *testing.T) {
	compressed := MustBuild(calcGrammar())
	dense := MustBuild(calcGrammar(), WithLargeStateCount(1<<15))
	assert.Equal(t, dense.StateCount, dense.LargeStateCount)
	assert.Less(t, compressed.LargeStateCount, compressed.StateCount)

	for _, src := range []string{"1", "1 + (2 - 3) * 4", "((7))"} {
		a := parse(t, compressed, src).RootNode().String()
		b := parse(t, dense, src).RootNode().String()
		assert.Equal(t, a, b, src)
	}
}

func TestBuildKeywords(t *testing.T) {
	g := NewGrammar("mini").
		Word("identifier").
		Define("program", Repeat(Sym("_statement"))).
		Define("_statement", Choice(Sym("declaration"), Sym("expression_statement"))).
		Define("declaration", Seq(Str("let"), Field("name", Sym("identifier")), Str(";"))).
		Define("expression_statement", Seq(Sym("identifier"), Str(";"))).
		Define("identifier", Pat(`[a-z]+`))

	lang, report, err := BuildReport(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"let"}, report.Keywords)
	require.NotEmpty(t, lang.KeywordLexStates)

	tree := parse(t, lang, "let x;\nletter;")
	assert.Equal(t, "(program (declaration name: (identifier)) (expression_statement (identifier)))", tree.RootNode().String())
}

func TestBuildImmediateTokens(t *testing.T) {
	g := NewGrammar("strings").
		Define("document", Repeat(Sym("string"))).
		Define("string", Seq(Str(`"`), Repeat(Choice(Sym("string_content"), Sym("escape_sequence"))), Str(`"`))).
		Define("string_content", ImmediateToken(Prec(1, Pat(`[^"\\]+`)))).
		Define("escape_sequence", ImmediateToken(Seq(Str(`\`), Pat(`.`))))

	lang := MustBuild(g)
	src := []byte(`"a b"  "c\n"`)
	tree := parse(t, lang, string(src))
	root := tree.RootNode()
	assert.Equal(t, "(document (string (string_content)) (string (string_content) (escape_sequence)))", root.String())
	assert.Equal(t, "a b", root.NamedChild(0).NamedChild(0).Text(src))
	assert.Equal(t, `\n`, root.NamedChild(1).NamedChild(1).Text(src))
}

func TestBuildExtrasAndAliases(t *testing.T) {
	g := NewGrammar("list").
		Extras(Pat(`\s`), Sym("comment")).
		Define("list", Seq(Str("["), CommaSep(Sym("_item")), Str("]"))).
		Define("_item", Choice(Sym("number"), Alias(Sym("word"), "symbol", true))).
		Define("number", Pat(`\d+`)).
		Define("word", Pat(`[a-z]+`)).
		Define("comment", Token(Seq(Str("#"), Pat(`[^\n]*`))))

	lang := MustBuild(g)
	tree := parse(t, lang, "[1, # one\n abc]")
	root := tree.RootNode()
	assert.Equal(t, "(list (number) (comment) (symbol))", root.String())
	comment := root.NamedChild(1)
	require.NotNil(t, comment)
	assert.True(t, comment.IsExtra())
	assert.Equal(t, "symbol", root.NamedChild(2).Kind())
}

func ambiguousGrammar(preferCall bool) *Grammar {
	call, decl := Sym("call"), Sym("declaration")
	var statement *Rule
	if preferCall {
		statement = Choice(PrecDynamic(1, call), decl)
	} else {
		statement = Choice(call, PrecDynamic(1, decl))
	}
	return NewGrammar("ambiguous").
		Define("program", Repeat(Sym("statement"))).
		Define("statement", statement).
		Define("call", Seq(Sym("identifier"), Str("("), Sym("identifier"), Str(")"), Str(";"))).
		Define("declaration", Seq(Sym("identifier"), Str("("), Sym("identifier"), Str(")"), Str(";"))).
		Define("identifier", Pat(`[a-z]+`)).
		Conflicts([]string{"call", "declaration"})
}

func TestBuildDynamicPrecedenceSelectsAmbiguousParse(t *testing.T) {
	lang, report, err := BuildReport(ambiguousGrammar(true))
	require.NoError(t, err)
	require.NotEmpty(t, report.Conflicts)
	assert.Empty(t, report.Unexpected())

	tree := parse(t, lang, "f(x);")
	assert.Equal(t, "(program (statement (call (identifier) (identifier))))", tree.RootNode().String())

	tree = parse(t, MustBuild(ambiguousGrammar(false)), "f(x);")
	assert.Equal(t, "(program (statement (declaration (identifier) (identifier))))", tree.RootNode().String())
}

func TestBuildLogsUndeclaredConflicts(t *testing.T) {
	g := NewGrammar("sums").
		Define("program", Sym("_expression")).
		Define("_expression", Choice(Sym("number"), Sym("sum"))).
		Define("sum", Seq(Sym("_expression"), Str("+"), Sym("_expression"))).
		Define("number", Pat(`\d+`))

	core, logs := observer.New(zapcore.WarnLevel)
	lang, report, err := BuildReport(g, WithLogger(zap.New(core)))
	require.NoError(t, err)
	require.NotEmpty(t, report.Unexpected())
	assert.Equal(t, len(report.Unexpected()), logs.FilterMessage("unresolved conflict").Len())

	tree := parse(t, lang, "1 + 2 + 3")
	assert.False(t, tree.RootNode().HasError())
	assert.Equal(t, "program", tree.RootNode().Kind())
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(NewGrammar("empty"))
	assert.ErrorIs(t, err, ErrEmptyGrammar)

	_, err = Build(NewGrammar("bad").Define("start", Seq(Sym("missing"))))
	assert.ErrorContains(t, err, `undefined symbol "missing"`)

	_, err = Build(NewGrammar("tok").Define("start", Pat(`a+`)))
	assert.ErrorContains(t, err, "must not be a token")

	_, err = Build(NewGrammar("regex").Define("start", Seq(Pat(`[a`), Str(";"))))
	var rerr *RegexError
	assert.ErrorAs(t, err, &rerr)

	_, err = Build(NewGrammar("word").Word("nope").Define("start", Str("x")))
	assert.Error(t, err)
}
