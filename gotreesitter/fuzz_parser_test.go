package gotreesitter_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odvcencio/sitter/gotreesitter"
	"github.com/odvcencio/sitter/grammars"
)

// requireSameTree asserts that two trees have the same shape, kinds and
// spans, node by node.
func requireSameTree(t testing.TB, want, got *gotreesitter.Node) {
	t.Helper()
	require.Equal(t, want.Kind(), got.Kind())
	require.Equal(t, want.Range(), got.Range(), "span of %s", want.Kind())
	require.Equal(t, want.IsMissing(), got.IsMissing(), "missing flag of %s", want.Kind())
	require.Equal(t, want.ChildCount(), got.ChildCount(), "children of %s", want.Kind())
	for i := 0; i < want.ChildCount(); i++ {
		requireSameTree(t, want.Child(i), got.Child(i))
	}
}

func FuzzParseDoesNotPanic(f *testing.F) {
	for _, s := range jsSamples {
		f.Add([]byte(s.src))
	}
	f.Add([]byte("function f() { if ( }"))
	f.Add([]byte("/* unterminated"))
	f.Add([]byte("\"unterminated"))
	f.Add([]byte("((((((((((((((\n"))
	f.Add([]byte{0xff, 0xfe, 'x', ';'})

	p := newParser(f, grammars.JavaScriptLanguage())

	f.Fuzz(func(t *testing.T, src []byte) {
		if len(src) > 1<<16 {
			t.Skip()
		}
		tree := p.Parse(src)
		require.NotNil(t, tree)
		defer tree.Close()

		root := tree.RootNode()
		require.NotNil(t, root)
		require.LessOrEqual(t, int(root.EndByte()), len(src))
		checkSpans(t, root)
	})
}

func FuzzIncrementalMatchesFreshParse(f *testing.F) {
	f.Add([]byte("a == 1;"), uint16(3), uint16(4), []byte(""))
	f.Add([]byte("x = a == b;"), uint16(7), uint16(8), []byte(""))
	f.Add([]byte("let x = 1; f(x);"), uint16(4), uint16(5), []byte("total"))
	f.Add([]byte("function f(a) { return a; }"), uint16(25), uint16(26), []byte(""))
	f.Add([]byte("a = 1;\nb = 2;"), uint16(7), uint16(7), []byte("c = a * b;\n"))
	f.Add([]byte("let = ; f(1,"), uint16(9), uint16(9), []byte(""))
	f.Add([]byte("while (i < 10) { i = i + 1; }"), uint16(9), uint16(10), []byte(">"))

	p := newParser(f, grammars.JavaScriptLanguage())

	f.Fuzz(func(t *testing.T, src []byte, start, end uint16, text []byte) {
		if len(src) > 1<<12 || len(text) > 1<<8 {
			t.Skip()
		}
		s, e := int(start), int(end)
		if s > len(src) {
			s = len(src)
		}
		if e > len(src) {
			e = len(src)
		}
		if s > e {
			s, e = e, s
		}

		old := p.Parse(src)
		require.NotNil(t, old)
		defer old.Close()

		edit, newSrc := replace(string(src), s, e, string(text))
		old.Edit(edit)
		reparsed := p.ParseIncremental([]byte(newSrc), old)
		require.NotNil(t, reparsed)
		defer reparsed.Close()

		fresh := p.Parse([]byte(newSrc))
		require.NotNil(t, fresh)
		defer fresh.Close()

		require.Equal(t, fresh.RootNode().String(), reparsed.RootNode().String())
		requireSameTree(t, fresh.RootNode(), reparsed.RootNode())
	})
}
