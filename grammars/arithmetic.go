package grammars

import (
	"sync"

	"github.com/odvcencio/sitter/gotreesitter"
	. "github.com/odvcencio/sitter/grammars/grammargen"
)

// ArithmeticGrammar describes calculator input: assignments and expressions
// over numbers and variables, each terminated by a semicolon.
func ArithmeticGrammar() *Grammar {
	expr := Sym("_expression")
	return NewGrammar("arithmetic").
		Extras(Pat(`\s`), Sym("comment")).
		Define("program", Repeat(Seq(Sym("_statement"), Str(";")))).
		Define("_statement", Choice(Sym("assignment"), expr)).
		Define("assignment", Seq(Field("name", Sym("variable")), Str("="), Field("value", expr))).
		Define("_expression", Choice(
			Sym("number"),
			Sym("variable"),
			Sym("unary_expression"),
			Sym("binary_expression"),
			Sym("parenthesized_expression"),
		)).
		Define("unary_expression", Prec(4, Seq(Field("operator", Str("-")), Field("operand", expr)))).
		Define("binary_expression", Choice(
			PrecLeft(1, Seq(Field("left", expr), Field("operator", Choice(Str("+"), Str("-"))), Field("right", expr))),
			PrecLeft(2, Seq(Field("left", expr), Field("operator", Choice(Str("*"), Str("/"))), Field("right", expr))),
			PrecRight(3, Seq(Field("left", expr), Field("operator", Str("^")), Field("right", expr))),
		)).
		Define("parenthesized_expression", Seq(Str("("), expr, Str(")"))).
		Define("number", Pat(`\d+(\.\d+)?`)).
		Define("variable", Pat(`[a-zA-Z_]\w*`)).
		Define("comment", Token(Seq(Str("#"), Pat(`[^\n]*`))))
}

// ArithmeticHighlightQuery maps the arithmetic grammar onto highlight captures.
const ArithmeticHighlightQuery = `
(variable) @variable
(assignment name: (variable) @variable.definition)
(number) @number
(comment) @comment
["+" "-" "*" "/" "^" "="] @operator
["(" ")"] @punctuation.bracket
";" @punctuation.delimiter
`

var (
	arithmeticOnce sync.Once
	arithmeticLang *gotreesitter.Language
)

// ArithmeticLanguage returns the generated arithmetic language.
func ArithmeticLanguage() *gotreesitter.Language {
	arithmeticOnce.Do(func() {
		arithmeticLang = MustBuild(ArithmeticGrammar(), WithLogger(logger()))
	})
	return arithmeticLang
}

func init() {
	Register(LangEntry{
		Name:           "arithmetic",
		Extensions:     []string{".calc"},
		Language:       ArithmeticLanguage,
		HighlightQuery: ArithmeticHighlightQuery,
	})
}
