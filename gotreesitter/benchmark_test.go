package gotreesitter_test

import (
	"strings"
	"testing"

	"github.com/odvcencio/sitter/gotreesitter"
	"github.com/odvcencio/sitter/grammars"
)

func benchmarkStatementCount() int {
	if testing.Short() {
		return 100
	}
	return 500
}

func BenchmarkParseFull(b *testing.B) {
	p := newParser(b, grammars.JavaScriptLanguage())
	src := []byte(largeProgram(benchmarkStatementCount()))

	b.ReportAllocs()
	b.SetBytes(int64(len(src)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		tree := p.Parse(src)
		if tree == nil {
			b.Fatal("parse returned nil tree")
		}
		tree.Close()
	}
}

func BenchmarkParseIncrementalSingleByteEdit(b *testing.B) {
	p := newParser(b, grammars.JavaScriptLanguage())
	src := []byte(largeProgram(benchmarkStatementCount()))

	at := strings.LastIndex(string(src), "b + c")
	if at < 0 {
		b.Fatal("edit marker not found")
	}
	edit, _ := replace(string(src), at, at+1, "q")

	tree := p.Parse(src)
	if tree == nil {
		b.Fatal("initial parse returned nil tree")
	}

	b.ReportAllocs()
	b.SetBytes(int64(len(src)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		// Toggle one identifier in place so byte and point ranges stay stable.
		if src[at] == 'b' {
			src[at] = 'q'
		} else {
			src[at] = 'b'
		}
		tree.Edit(edit)
		next := p.ParseIncremental(src, tree)
		if next == nil {
			b.Fatal("incremental parse returned nil tree")
		}
		tree.Close()
		tree = next
	}
	tree.Close()
}

func BenchmarkParseIncrementalNoEdit(b *testing.B) {
	p := newParser(b, grammars.JavaScriptLanguage())
	src := []byte(largeProgram(benchmarkStatementCount()))

	tree := p.Parse(src)
	if tree == nil {
		b.Fatal("initial parse returned nil tree")
	}

	b.ReportAllocs()
	b.SetBytes(int64(len(src)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		next := p.ParseIncremental(src, tree)
		if next == nil {
			b.Fatal("incremental parse returned nil tree")
		}
		tree.Close()
		tree = next
	}
	tree.Close()
}

func BenchmarkQueryCaptures(b *testing.B) {
	tree := parseJS(b, largeProgram(benchmarkStatementCount()))
	q := mustQuery(b, "(call_expression function: (identifier) @fn) (identifier) @id")

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		caps := gotreesitter.NewQueryCursor().Captures(q, tree.RootNode(), gotreesitter.TreeText(tree))
		for {
			if _, _, ok := caps.Next(); !ok {
				break
			}
		}
	}
}
