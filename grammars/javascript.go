package grammars

import (
	"sync"

	"github.com/odvcencio/sitter/gotreesitter"
	. "github.com/odvcencio/sitter/grammars/grammargen"
)

// JavaScriptGrammar describes a statement-level subset of JavaScript:
// declarations, functions, control flow, calls, member access and binary
// operators.
func JavaScriptGrammar() *Grammar {
	expr := Sym("_expression")
	stmt := Sym("_statement")
	ident := Sym("identifier")
	return NewGrammar("javascript").
		Word("identifier").
		Extras(Pat(`\s`), Sym("comment")).
		Supertypes("_statement", "_expression").
		Define("program", Repeat(stmt)).
		Define("_statement", Choice(
			Sym("lexical_declaration"),
			Sym("variable_declaration"),
			Sym("function_declaration"),
			Sym("expression_statement"),
			Sym("return_statement"),
			Sym("if_statement"),
			Sym("while_statement"),
			Sym("statement_block"),
		)).
		Define("lexical_declaration", Seq(
			Field("kind", Choice(Str("let"), Str("const"))),
			CommaSep1(Sym("variable_declarator")),
			Str(";"),
		)).
		Define("variable_declaration", Seq(Str("var"), CommaSep1(Sym("variable_declarator")), Str(";"))).
		Define("variable_declarator", Seq(
			Field("name", ident),
			Optional(Seq(Str("="), Field("value", expr))),
		)).
		Define("function_declaration", Seq(
			Str("function"),
			Field("name", ident),
			Field("parameters", Sym("formal_parameters")),
			Field("body", Sym("statement_block")),
		)).
		Define("formal_parameters", Seq(Str("("), CommaSep(ident), Str(")"))).
		Define("statement_block", Seq(Str("{"), Repeat(stmt), Str("}"))).
		Define("expression_statement", Seq(expr, Str(";"))).
		Define("return_statement", Seq(Str("return"), Optional(expr), Str(";"))).
		Define("if_statement", PrecRight(0, Seq(
			Str("if"),
			Field("condition", Sym("parenthesized_expression")),
			Field("consequence", stmt),
			Optional(Seq(Str("else"), Field("alternative", stmt))),
		))).
		Define("while_statement", Seq(
			Str("while"),
			Field("condition", Sym("parenthesized_expression")),
			Field("body", stmt),
		)).
		Define("_expression", Choice(
			ident,
			Sym("number"),
			Sym("string"),
			Sym("true"),
			Sym("false"),
			Sym("null"),
			Sym("parenthesized_expression"),
			Sym("assignment_expression"),
			Sym("binary_expression"),
			Sym("call_expression"),
			Sym("member_expression"),
		)).
		Define("parenthesized_expression", Seq(Str("("), expr, Str(")"))).
		Define("assignment_expression", PrecRight(-1, Seq(
			Field("left", Choice(ident, Sym("member_expression"))),
			Str("="),
			Field("right", expr),
		))).
		Define("binary_expression", Choice(
			binaryLevel(1, expr, "==", "===", "!=", "!==", "<", ">", "<=", ">="),
			binaryLevel(2, expr, "+", "-"),
			binaryLevel(3, expr, "*", "/", "%"),
		)).
		Define("call_expression", Seq(
			Field("function", expr),
			Field("arguments", Sym("arguments")),
		)).
		Define("arguments", Prec(5, Seq(Str("("), CommaSep(expr), Str(")")))).
		Define("member_expression", Prec(6, Seq(
			Field("object", expr),
			Str("."),
			Field("property", Alias(ident, "property_identifier", true)),
		))).
		Define("identifier", Pat(`[a-zA-Z_$][a-zA-Z0-9_$]*`)).
		Define("number", Pat(`\d+(\.\d+)?`)).
		Define("string", Token(Choice(
			Pat(`"([^"\\\n]|\\.)*"`),
			Pat(`'([^'\\\n]|\\.)*'`),
		))).
		Define("true", Str("true")).
		Define("false", Str("false")).
		Define("null", Str("null")).
		Define("comment", Token(Choice(
			Seq(Str("//"), Pat(`[^\n]*`)),
			Seq(Str("/*"), Pat(`[^*]*\*+([^/*][^*]*\*+)*`), Str("/")),
		)))
}

func binaryLevel(prec int, expr *Rule, ops ...string) *Rule {
	choices := make([]*Rule, len(ops))
	for i, op := range ops {
		choices[i] = Str(op)
	}
	return PrecLeft(prec, Seq(
		Field("left", expr),
		Field("operator", Choice(choices...)),
		Field("right", expr),
	))
}

// JavaScriptHighlightQuery maps the JavaScript grammar onto highlight
// captures. Later patterns override earlier ones on identical spans.
const JavaScriptHighlightQuery = `
(identifier) @variable

((identifier) @constant
  (#match? @constant "^[A-Z][A-Z0-9_]+$"))

(property_identifier) @property

(function_declaration name: (identifier) @function)
(call_expression function: (identifier) @function.call)
(call_expression
  function: (member_expression property: (property_identifier) @function.method))

(formal_parameters (identifier) @variable.parameter)

(comment) @comment
(string) @string
(number) @number

[(true) (false) (null)] @constant.builtin

["let" "const" "var" "function" "return" "if" "else" "while"] @keyword

["=" "==" "===" "!=" "!==" "<" ">" "<=" ">=" "+" "-" "*" "/" "%"] @operator

["(" ")" "{" "}"] @punctuation.bracket
["," ";" "."] @punctuation.delimiter
`

var (
	javascriptOnce sync.Once
	javascriptLang *gotreesitter.Language
)

// JavaScriptLanguage returns the generated JavaScript language, building its
// tables on first use.
func JavaScriptLanguage() *gotreesitter.Language {
	javascriptOnce.Do(func() {
		javascriptLang = MustBuild(JavaScriptGrammar(), WithLogger(logger()))
	})
	return javascriptLang
}

func init() {
	Register(LangEntry{
		Name:           "javascript",
		Extensions:     []string{".js", ".mjs", ".cjs"},
		Shebangs:       []string{"#!/usr/bin/env node", "#!/usr/bin/node"},
		Language:       JavaScriptLanguage,
		HighlightQuery: JavaScriptHighlightQuery,
	})
}
