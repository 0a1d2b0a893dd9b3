package grammars

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/sitter/gotreesitter"
)

func parseWith(t *testing.T, lang *gotreesitter.Language, src string) *gotreesitter.Node {
	t.Helper()
	p := gotreesitter.NewParser()
	require.NoError(t, p.SetLanguage(lang))
	tree := p.Parse([]byte(src))
	require.NotNil(t, tree)
	t.Cleanup(tree.Close)
	return tree.RootNode()
}

func TestJavaScriptTrees(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			"declaration",
			"let x = 1 + 2;",
			"(program (lexical_declaration (variable_declarator name: (identifier) value: (binary_expression left: (number) right: (number)))))",
		},
		{
			"multiple declarators",
			"var a, b = 'q';",
			"(program (variable_declaration (variable_declarator name: (identifier)) (variable_declarator name: (identifier) value: (string))))",
		},
		{
			"function",
			"function add(a, b) { return a + b; }",
			"(program (function_declaration name: (identifier) parameters: (formal_parameters (identifier) (identifier)) body: (statement_block (return_statement (binary_expression left: (identifier) right: (identifier))))))",
		},
		{
			"calls bind tighter than operators",
			"console.log(a + f(1, 2));",
			"(program (expression_statement (call_expression function: (member_expression object: (identifier) property: (property_identifier)) arguments: (arguments (binary_expression left: (identifier) right: (call_expression function: (identifier) arguments: (arguments (number) (number))))))))",
		},
		{
			"operator precedence",
			"a = b * 2 + 1 < c;",
			"(program (expression_statement (assignment_expression left: (identifier) right: (binary_expression left: (binary_expression left: (binary_expression left: (identifier) right: (number)) right: (number)) right: (identifier)))))",
		},
		{
			"dangling else",
			"if (a) if (b) x; else y;",
			"(program (if_statement condition: (parenthesized_expression (identifier)) consequence: (if_statement condition: (parenthesized_expression (identifier)) consequence: (expression_statement (identifier)) alternative: (expression_statement (identifier)))))",
		},
		{
			"keywords need a boundary",
			"letter = null; returned;",
			"(program (expression_statement (assignment_expression left: (identifier) right: (null))) (expression_statement (identifier)))",
		},
		{
			"comments",
			"x = 1; // one\n/* two */ while (x) x = x - 1;",
			"(program (expression_statement (assignment_expression left: (identifier) right: (number))) (comment) (comment) (while_statement condition: (parenthesized_expression (identifier)) body: (expression_statement (assignment_expression left: (identifier) right: (binary_expression left: (identifier) right: (number))))))",
		},
	}
	lang := JavaScriptLanguage()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := parseWith(t, lang, tt.src)
			assert.Equal(t, tt.want, root.String())
			assert.False(t, root.HasError())
		})
	}
}

func TestJavaScriptFieldsAndKinds(t *testing.T) {
	src := []byte("const answer = 42;")
	root := parseWith(t, JavaScriptLanguage(), string(src))
	decl := root.NamedChild(0)
	require.NotNil(t, decl)
	assert.Equal(t, "const", decl.ChildByFieldName("kind").Text(src))
	assert.False(t, decl.ChildByFieldName("kind").IsNamed())

	declarator := decl.NamedChild(0)
	assert.Equal(t, "answer", declarator.ChildByFieldName("name").Text(src))
	assert.Equal(t, "42", declarator.ChildByFieldName("value").Text(src))
}

func TestJavaScriptSyntaxErrors(t *testing.T) {
	lang := JavaScriptLanguage()
	for _, src := range []string{"let = 5;", "f(1;", "x = ;", "}"} {
		root := parseWith(t, lang, src)
		assert.True(t, root.HasError(), src)
		assert.Equal(t, uint32(len(src)), root.EndByte(), src)
	}
}

func TestJSONTrees(t *testing.T) {
	root := parseWith(t, JSONLanguage(), `{"a": [1, true, null], "b\n": -2.5e3}`)
	assert.Equal(t,
		"(document (object (pair key: (string (string_content)) value: (array (number) (true) (null))) (pair key: (string (string_content) (escape_sequence)) value: (number))))",
		root.String())

	root = parseWith(t, JSONLanguage(), `"" {}`)
	assert.Equal(t, "(document (string) (object))", root.String())
}

func TestJSONStringsDoNotSkipWhitespace(t *testing.T) {
	src := []byte(`" a "`)
	root := parseWith(t, JSONLanguage(), string(src))
	content := root.NamedChild(0).NamedChild(0)
	require.NotNil(t, content)
	assert.Equal(t, "string_content", content.Kind())
	assert.Equal(t, " a ", content.Text(src))
}

func TestArithmeticTrees(t *testing.T) {
	root := parseWith(t, ArithmeticLanguage(), "x = 1 + 2 * 3;\n-x ^ 2; # square\n2 ^ 3 ^ 2;")
	assert.Equal(t,
		"(program (assignment name: (variable) value: (binary_expression left: (number) right: (binary_expression left: (number) right: (number)))) "+
			"(binary_expression left: (unary_expression operand: (variable)) right: (number)) (comment) "+
			"(binary_expression left: (number) right: (binary_expression left: (number) right: (number))))",
		root.String())
}

func TestHighlightJavaScript(t *testing.T) {
	h, err := Lookup("javascript").NewHighlighter()
	require.NoError(t, err)

	got := h.Highlight([]byte(`let x = "hi"; // c`))
	assert.Equal(t, []gotreesitter.HighlightRange{
		{StartByte: 0, EndByte: 3, Capture: "keyword"},
		{StartByte: 4, EndByte: 5, Capture: "variable"},
		{StartByte: 6, EndByte: 7, Capture: "operator"},
		{StartByte: 8, EndByte: 12, Capture: "string"},
		{StartByte: 12, EndByte: 13, Capture: "punctuation.delimiter"},
		{StartByte: 14, EndByte: 18, Capture: "comment"},
	}, got)

	got = h.Highlight([]byte("MAX_SIZE; run();"))
	assert.Contains(t, got, gotreesitter.HighlightRange{StartByte: 0, EndByte: 8, Capture: "constant"})
	assert.Contains(t, got, gotreesitter.HighlightRange{StartByte: 10, EndByte: 13, Capture: "function.call"})
}

func TestHighlightJSONUsesTokenSource(t *testing.T) {
	h, err := Lookup("json").NewHighlighter()
	require.NoError(t, err)

	got := h.Highlight([]byte(`{"k": "v\t"}`))
	assert.Equal(t, []gotreesitter.HighlightRange{
		{StartByte: 0, EndByte: 1, Capture: "punctuation.bracket"},
		{StartByte: 1, EndByte: 4, Capture: "property"},
		{StartByte: 4, EndByte: 5, Capture: "punctuation.delimiter"},
		{StartByte: 6, EndByte: 8, Capture: "string"},
		{StartByte: 8, EndByte: 10, Capture: "string.escape"},
		{StartByte: 10, EndByte: 11, Capture: "string"},
		{StartByte: 11, EndByte: 12, Capture: "punctuation.bracket"},
	}, got)
}
