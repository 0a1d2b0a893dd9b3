package gotreesitter_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odvcencio/sitter/gotreesitter"
	"github.com/odvcencio/sitter/grammars"
)

func newParser(t testing.TB, lang *gotreesitter.Language) *gotreesitter.Parser {
	t.Helper()
	p := gotreesitter.NewParser()
	require.NoError(t, p.SetLanguage(lang))
	return p
}

func parseJS(t testing.TB, src string) *gotreesitter.Tree {
	t.Helper()
	tree := newParser(t, grammars.JavaScriptLanguage()).Parse([]byte(src))
	require.NotNil(t, tree)
	t.Cleanup(tree.Close)
	return tree
}

func mustQuery(t testing.TB, src string) *gotreesitter.Query {
	t.Helper()
	q, err := gotreesitter.NewQuery(src, grammars.JavaScriptLanguage())
	require.NoError(t, err)
	return q
}

// checkSpans asserts that every node starts with its first child, ends with
// its last child, and that siblings do not overlap.
func checkSpans(t testing.TB, n *gotreesitter.Node) {
	t.Helper()
	count := n.ChildCount()
	if count == 0 {
		return
	}
	first, last := n.Child(0), n.Child(count-1)
	require.Equal(t, n.StartByte(), first.StartByte(), "start of %s", n.Kind())
	require.Equal(t, n.EndByte(), last.EndByte(), "end of %s", n.Kind())
	for i := 0; i < count; i++ {
		c := n.Child(i)
		if i+1 < count {
			require.LessOrEqual(t, c.EndByte(), n.Child(i+1).StartByte(), "siblings in %s", n.Kind())
		}
		checkSpans(t, c)
	}
}

type sexpCase struct {
	name string
	src  string
}

var jsSamples = []sexpCase{
	{"declaration", "let x = 1;"},
	{"function", "function add(a, b) {\n  return a + b;\n}\n"},
	{"calls", "console.log(add(1, 2), 'three');"},
	{"control flow", "while (i < 10) { if (i == 5) break1(); else i = i + 1; }"},
	{"comments", "// lead\nx = 1; /* mid */ y = x * 2;\n"},
	{"errors", "let = ; f(1,"},
}
