package gotreesitter_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/odvcencio/sitter/gotreesitter"
	"github.com/odvcencio/sitter/grammars"
)

func TestSetLanguageRejectsIncompatibleVersions(t *testing.T) {
	p := gotreesitter.NewParser()
	assert.ErrorIs(t, p.SetLanguage(nil), gotreesitter.ErrNoLanguage)

	for _, v := range []uint32{gotreesitter.MinCompatibleLanguageVersion - 1, gotreesitter.LanguageVersion + 1} {
		err := p.SetLanguage(&gotreesitter.Language{Name: "old", ABIVersion: v})
		var verr *gotreesitter.VersionError
		require.True(t, errors.As(err, &verr), "version %d", v)
		assert.Equal(t, v, verr.Version)
		assert.Nil(t, p.Language())
	}

	lang := grammars.JavaScriptLanguage()
	require.NoError(t, p.SetLanguage(lang))
	assert.Same(t, lang, p.Language())
}

func TestParseWithoutLanguage(t *testing.T) {
	p := gotreesitter.NewParser()
	assert.Nil(t, p.Parse([]byte("x;")))
	_, err := p.ParseString(context.Background(), nil, []byte("x;"))
	assert.ErrorIs(t, err, gotreesitter.ErrNoLanguage)
}

func TestParseRejectsTreeFromOtherLanguage(t *testing.T) {
	jsonTree := newParser(t, grammars.JSONLanguage()).Parse([]byte("[]"))
	require.NotNil(t, jsonTree)
	defer jsonTree.Close()

	p := newParser(t, grammars.JavaScriptLanguage())
	_, err := p.ParseString(context.Background(), jsonTree, []byte("x;"))
	assert.ErrorIs(t, err, gotreesitter.ErrLanguageMismatch)
}

func TestParseIsDeterministicAndNested(t *testing.T) {
	p := newParser(t, grammars.JavaScriptLanguage())
	for _, tc := range jsSamples {
		t.Run(tc.name, func(t *testing.T) {
			first := p.Parse([]byte(tc.src))
			second := p.Parse([]byte(tc.src))
			require.NotNil(t, first)
			require.NotNil(t, second)
			defer first.Close()
			defer second.Close()

			assert.Equal(t, first.RootNode().String(), second.RootNode().String())
			assert.Equal(t, "program", first.RootNode().Kind())
			assert.LessOrEqual(t, int(first.RootNode().EndByte()), len(tc.src))
			checkSpans(t, first.RootNode())
		})
	}
}

func TestParseEmptySource(t *testing.T) {
	tree := parseJS(t, "")
	root := tree.RootNode()
	assert.Equal(t, "(program)", root.String())
	assert.Zero(t, root.ChildCount())
	assert.False(t, root.HasError())
}

func TestParseRecoversFromErrors(t *testing.T) {
	for _, src := range []string{"let = ; f(1,", "f(1;", "x = = 2;", "while (x { y; }"} {
		t.Run(src, func(t *testing.T) {
			tree := parseJS(t, src)
			root := tree.RootNode()
			require.True(t, root.HasError())
			assert.Equal(t, "program", root.Kind())

			var flagged int
			tree.Walk(func(n *gotreesitter.Node, _ int) bool {
				if n.IsError() || n.IsMissing() {
					flagged++
				}
				return true
			})
			assert.NotZero(t, flagged)
			checkSpans(t, root)
		})
	}
}

func TestMissingNodesAreZeroWidth(t *testing.T) {
	tree := parseJS(t, "f(1;")
	tree.Walk(func(n *gotreesitter.Node, _ int) bool {
		if n.IsMissing() {
			assert.Equal(t, n.StartByte(), n.EndByte())
			assert.Contains(t, tree.RootNode().String(), "(MISSING")
		}
		return true
	})
}

func TestParseInputChunks(t *testing.T) {
	src := []byte("function add(a, b) {\n  return a + b;\n}\nadd(1, 2);")
	want := parseJS(t, string(src)).RootNode().String()

	p := newParser(t, grammars.JavaScriptLanguage())
	var reads int
	input := gotreesitter.Input{
		Read: func(offset uint32, _ gotreesitter.Point) []byte {
			reads++
			if int(offset) >= len(src) {
				return nil
			}
			end := min(int(offset)+3, len(src))
			return src[offset:end]
		},
	}
	tree, err := p.ParseInput(context.Background(), nil, input)
	require.NoError(t, err)
	defer tree.Close()

	assert.Equal(t, want, tree.RootNode().String())
	assert.Greater(t, reads, len(src)/3)
	assert.Nil(t, tree.Source())
}

func TestParseUTF16(t *testing.T) {
	text := "let s = \"héllo\";\nf(s);"
	want := parseJS(t, text).RootNode().String()

	for _, enc := range []gotreesitter.InputEncoding{gotreesitter.InputEncodingUTF16LE, gotreesitter.InputEncodingUTF16BE} {
		t.Run(enc.String(), func(t *testing.T) {
			src, err := gotreesitter.EncodeUTF16(text, enc)
			require.NoError(t, err)

			p := newParser(t, grammars.JavaScriptLanguage())
			tree, err := p.ParseStringEncoding(context.Background(), nil, src, enc)
			require.NoError(t, err)
			defer tree.Close()

			assert.Equal(t, enc, tree.Encoding())
			assert.Equal(t, want, tree.RootNode().String())

			str := tree.RootNode().NamedChild(0).NamedChild(0).ChildByFieldName("value")
			require.NotNil(t, str)
			assert.EqualValues(t, 16, str.StartByte())
			assert.EqualValues(t, 30, str.EndByte())
			assert.Equal(t, `"héllo"`, string(gotreesitter.TreeText(tree)(str)))

			call := tree.RootNode().NamedChild(1)
			assert.Equal(t, gotreesitter.Point{Row: 1, Column: 0}, call.StartPoint())
			decoded, err := gotreesitter.DecodeUTF16(src, enc)
			require.NoError(t, err)
			assert.Equal(t, text, string(decoded))
		})
	}
}

func TestIncludedRanges(t *testing.T) {
	src := "let x = 1; ### f(x);"
	ranges := []gotreesitter.Range{
		{StartByte: 0, EndByte: 10, EndPoint: gotreesitter.Point{Column: 10}},
		{StartByte: 15, EndByte: 20, StartPoint: gotreesitter.Point{Column: 15}, EndPoint: gotreesitter.Point{Column: 20}},
	}
	p := newParser(t, grammars.JavaScriptLanguage())
	require.NoError(t, p.SetIncludedRanges(ranges))
	assert.Equal(t, ranges, p.IncludedRanges())

	tree := p.Parse([]byte(src))
	require.NotNil(t, tree)
	defer tree.Close()

	root := tree.RootNode()
	assert.False(t, root.HasError(), root.String())
	require.Equal(t, 2, root.NamedChildCount())
	assert.Equal(t, "f(x);", root.NamedChild(1).Text(tree.Source()))
	assert.Equal(t, ranges, tree.IncludedRanges())

	require.NoError(t, p.SetIncludedRanges(nil))
	assert.Len(t, p.IncludedRanges(), 1)
}

func TestIncludedRangesMustBeOrdered(t *testing.T) {
	p := newParser(t, grammars.JavaScriptLanguage())
	ok := []gotreesitter.Range{{StartByte: 0, EndByte: 4}}
	require.NoError(t, p.SetIncludedRanges(ok))

	err := p.SetIncludedRanges([]gotreesitter.Range{
		{StartByte: 0, EndByte: 10},
		{StartByte: 5, EndByte: 12},
	})
	var rerr *gotreesitter.IncludedRangesError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 1, rerr.Index)
	assert.Equal(t, ok, p.IncludedRanges())

	err = p.SetIncludedRanges([]gotreesitter.Range{{StartByte: 8, EndByte: 2}})
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 0, rerr.Index)
}

func largeProgram(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString("let v = a * (b + c) - f(d, e);\n")
	}
	return b.String()
}

func TestCancellationFlagStopsAndResumes(t *testing.T) {
	src := []byte(largeProgram(50))
	want := parseJS(t, string(src)).RootNode().String()

	p := newParser(t, grammars.JavaScriptLanguage())
	var flag atomic.Bool
	flag.Store(true)
	p.SetCancellationFlag(&flag)
	assert.Same(t, &flag, p.CancellationFlag())

	tree, err := p.ParseString(context.Background(), nil, src)
	assert.Nil(t, tree)
	assert.ErrorIs(t, err, gotreesitter.ErrParseCanceled)

	flag.Store(false)
	tree, err = p.ParseString(context.Background(), nil, src)
	require.NoError(t, err)
	defer tree.Close()
	assert.Equal(t, want, tree.RootNode().String())
}

func TestContextCancellation(t *testing.T) {
	p := newParser(t, grammars.JavaScriptLanguage())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ParseString(ctx, nil, []byte("x;"))
	assert.ErrorIs(t, err, gotreesitter.ErrParseCanceled)
	assert.ErrorIs(t, err, context.Canceled)

	ctx, cancel = context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err = p.ParseString(ctx, nil, []byte("x;"))
	assert.ErrorIs(t, err, gotreesitter.ErrParseTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTimeoutThenReset(t *testing.T) {
	src := []byte(largeProgram(2000))
	p := newParser(t, grammars.JavaScriptLanguage())

	p.SetTimeoutMicros(1)
	assert.EqualValues(t, 1, p.TimeoutMicros())
	tree, err := p.ParseString(context.Background(), nil, src)
	assert.Nil(t, tree)
	require.ErrorIs(t, err, gotreesitter.ErrParseTimeout)

	p.SetTimeout(0)
	p.Reset()
	other := []byte("y;")
	tree, err = p.ParseString(context.Background(), nil, other)
	require.NoError(t, err)
	defer tree.Close()
	assert.Equal(t, "(program (expression_statement (identifier)))", tree.RootNode().String())
}

func TestParseStats(t *testing.T) {
	p := newParser(t, grammars.JavaScriptLanguage())
	tree := p.Parse([]byte("let x = 1; y = x + 2;"))
	require.NotNil(t, tree)
	defer tree.Close()

	stats := p.Stats()
	assert.GreaterOrEqual(t, stats.Tokens, 11)
	assert.Zero(t, stats.ReusedNodes)
	assert.Zero(t, stats.Recoveries)
	assert.GreaterOrEqual(t, stats.MaxVersions, 1)

	bad := p.Parse([]byte("let = ;"))
	require.NotNil(t, bad)
	defer bad.Close()
	assert.NotZero(t, p.Stats().Recoveries)
}

func TestParserLogsDebugEvents(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := newParser(t, grammars.JavaScriptLanguage())
	p.SetLogger(zap.New(core))

	tree := p.Parse([]byte("x = 1;"))
	require.NotNil(t, tree)
	defer tree.Close()

	assert.NotZero(t, logs.FilterMessage("new_parse").Len())
	assert.NotZero(t, logs.FilterMessage("shift").Len())
	assert.NotZero(t, logs.FilterMessage("reduce").Len())
	assert.NotZero(t, logs.FilterMessage("accept").Len())
	assert.Equal(t, 1, logs.FilterMessage("done").Len())

	logs.TakeAll()
	p.SetLogger(nil)
	tree2 := p.Parse([]byte("x = 1;"))
	require.NotNil(t, tree2)
	defer tree2.Close()
	assert.Zero(t, logs.Len())
}

func TestParserSkipsDebugWhenLoggerIsQuiet(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := newParser(t, grammars.JavaScriptLanguage())
	p.SetLogger(zap.New(core))

	tree := p.Parse([]byte("x;"))
	require.NotNil(t, tree)
	defer tree.Close()
	assert.Zero(t, logs.Len())
}

func TestTreeCopyOutlivesOriginal(t *testing.T) {
	p := newParser(t, grammars.JavaScriptLanguage())
	tree := p.Parse([]byte("a + b;"))
	require.NotNil(t, tree)
	cp := tree.Copy()
	want := tree.RootNode().String()
	tree.Close()
	defer cp.Close()

	assert.Equal(t, want, cp.RootNode().String())
	assert.Equal(t, []byte("a + b;"), cp.Source())
}

func TestCopyOfClosedTree(t *testing.T) {
	tree := parseJS(t, "a;")
	tree.Close()
	cp := tree.Copy()
	assert.Nil(t, cp.RootNode())
	cp.Close()
}
