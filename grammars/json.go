package grammars

import (
	"sync"

	"github.com/odvcencio/sitter/gotreesitter"
	. "github.com/odvcencio/sitter/grammars/grammargen"
)

// JSONGrammar describes RFC 8259 JSON. A document may hold several values.
func JSONGrammar() *Grammar {
	value := Sym("_value")
	return NewGrammar("json").
		Supertypes("_value").
		Define("document", Repeat(value)).
		Define("_value", Choice(
			Sym("object"),
			Sym("array"),
			Sym("number"),
			Sym("string"),
			Sym("true"),
			Sym("false"),
			Sym("null"),
		)).
		Define("object", Seq(Str("{"), CommaSep(Sym("pair")), Str("}"))).
		Define("pair", Seq(Field("key", Sym("string")), Str(":"), Field("value", value))).
		Define("array", Seq(Str("["), CommaSep(value), Str("]"))).
		Define("string", Seq(
			Str(`"`),
			Repeat(Choice(Sym("string_content"), Sym("escape_sequence"))),
			Str(`"`),
		)).
		Define("string_content", ImmediateToken(Prec(1, Pat(`[^"\\\n]+`)))).
		Define("escape_sequence", ImmediateToken(Seq(
			Str(`\`),
			Pat(`(["\\/bfnrt]|u[0-9a-fA-F]{4})`),
		))).
		Define("number", Pat(`-?(0|[1-9]\d*)(\.\d+)?([eE][+-]?\d+)?`)).
		Define("true", Str("true")).
		Define("false", Str("false")).
		Define("null", Str("null"))
}

// JSONHighlightQuery maps the JSON grammar onto highlight captures.
const JSONHighlightQuery = `
(string) @string
(pair key: (string) @property)
(escape_sequence) @string.escape
(number) @number
[(true) (false)] @boolean
(null) @constant.builtin
["{" "}" "[" "]"] @punctuation.bracket
["," ":"] @punctuation.delimiter
`

var (
	jsonOnce sync.Once
	jsonLang *gotreesitter.Language
)

// JSONLanguage returns the generated JSON language.
func JSONLanguage() *gotreesitter.Language {
	jsonOnce.Do(func() {
		jsonLang = MustBuild(JSONGrammar(), WithLogger(logger()))
	})
	return jsonLang
}

func init() {
	Register(LangEntry{
		Name:           "json",
		Extensions:     []string{".json"},
		Language:       JSONLanguage,
		HighlightQuery: JSONHighlightQuery,
	})
}
