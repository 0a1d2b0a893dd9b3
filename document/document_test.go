package document

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/odvcencio/sitter/gotreesitter"
	"github.com/odvcencio/sitter/grammars"
)

func newJS(t *testing.T, text string) *Document {
	t.Helper()
	d, err := New(context.Background(), grammars.Lookup("javascript"), text)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

// freshTree parses text from scratch for comparison with the document's tree.
func freshTree(t *testing.T, d *Document) string {
	t.Helper()
	p, err := d.Entry().NewParser()
	require.NoError(t, err)
	tree := d.Entry().Parse(p, []byte(d.Text()), nil)
	require.NotNil(t, tree)
	defer tree.Close()
	return tree.RootNode().String()
}

func TestNewDocument(t *testing.T) {
	d := newJS(t, "let x = 1;")
	assert.Equal(t, "javascript", d.Language())
	assert.Len(t, d.ID(), 26)
	assert.True(t, d.Untitled())
	assert.Equal(t, "untitled", d.Title())
	assert.False(t, d.Dirty())
	assert.Equal(t, freshTree(t, d), d.SExpression())
	assert.Contains(t, d.SExpression(), "(lexical_declaration")

	other := newJS(t, "")
	assert.NotEqual(t, d.ID(), other.ID())
}

func TestNewRejectsMissingLanguage(t *testing.T) {
	_, err := New(context.Background(), nil, "x")
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}

func TestOpenDetectsLanguage(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		file, content, lang, kind string
	}{
		{"main.js", "f(1);\n", "javascript", "(call_expression"},
		{"data.json", `{"a": [1, 2]}`, "json", "(object"},
		{"run", "#!/usr/bin/env node\nx;\n", "javascript", "(program"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			d, err := Open(context.Background(), path)
			require.NoError(t, err)
			defer d.Close()
			assert.Equal(t, tt.lang, d.Language())
			assert.True(t, filepath.IsAbs(d.Path()))
			assert.Equal(t, tt.file, d.Title())
			assert.Equal(t, tt.content, d.Text())
			assert.Contains(t, d.SExpression(), tt.kind)
		})
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	_, err := Open(context.Background(), path)
	assert.ErrorIs(t, err, ErrUnknownLanguage)

	_, err = Open(context.Background(), filepath.Join(dir, "missing.js"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestApplyEditReparses(t *testing.T) {
	d := newJS(t, "let x = 1; f(x);")
	change, err := d.ApplyEdit(context.Background(), 4, "x", "total")
	require.NoError(t, err)

	assert.Equal(t, "let total = 1; f(x);", d.Text())
	assert.True(t, d.Dirty())
	assert.Equal(t, freshTree(t, d), d.SExpression())
	assert.Equal(t, gotreesitter.InputEdit{
		StartByte:   4,
		OldEndByte:  5,
		NewEndByte:  9,
		StartPoint:  gotreesitter.Point{Column: 4},
		OldEndPoint: gotreesitter.Point{Column: 5},
		NewEndPoint: gotreesitter.Point{Column: 9},
	}, change.Edit)
	require.NotEmpty(t, change.Ranges)
	assert.LessOrEqual(t, change.Ranges[0].StartByte, uint32(4))
}

func TestApplyEditAcrossLines(t *testing.T) {
	d := newJS(t, "a;\nb;\nc;")
	change, err := d.ApplyEdit(context.Background(), 3, "b;\n", "if (b) {\n  d;\n}\n")
	require.NoError(t, err)

	assert.Equal(t, gotreesitter.Point{Row: 1}, change.Edit.StartPoint)
	assert.Equal(t, gotreesitter.Point{Row: 2}, change.Edit.OldEndPoint)
	assert.Equal(t, gotreesitter.Point{Row: 4}, change.Edit.NewEndPoint)
	assert.Equal(t, freshTree(t, d), d.SExpression())

	last := d.Tree().RootNode().NamedChild(2)
	assert.Equal(t, gotreesitter.Point{Row: 4}, last.StartPoint())
}

func TestApplyEditMismatch(t *testing.T) {
	d := newJS(t, "a;")
	before := d.SExpression()

	_, err := d.ApplyEdit(context.Background(), 0, "zz", "")
	assert.ErrorIs(t, err, ErrEditMismatch)
	_, err = d.ApplyEdit(context.Background(), 10, "", "x")
	assert.ErrorIs(t, err, ErrEditMismatch)
	_, err = d.ApplyEdit(context.Background(), -1, "", "x")
	assert.ErrorIs(t, err, ErrEditMismatch)

	assert.Equal(t, "a;", d.Text())
	assert.Equal(t, before, d.SExpression())
	assert.False(t, d.Dirty())
}

func TestApplyEditCanceledLeavesDocument(t *testing.T) {
	d := newJS(t, "a;")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.ApplyEdit(ctx, 0, "a", "b")
	require.Error(t, err)
	assert.ErrorIs(t, err, gotreesitter.ErrParseCanceled)
	assert.Equal(t, "a;", d.Text())

	_, err = d.ApplyEdit(context.Background(), 0, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, freshTree(t, d), d.SExpression())
}

func TestUndoRedo(t *testing.T) {
	ctx := context.Background()
	d := newJS(t, "x = 1;")
	original := d.SExpression()

	_, err := d.ApplyEdit(ctx, 4, "1", "f(2)")
	require.NoError(t, err)
	edited := d.SExpression()

	change, err := d.Undo(ctx)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, "x = 1;", d.Text())
	assert.Equal(t, original, d.SExpression())
	assert.False(t, d.Dirty())

	change, err = d.Undo(ctx)
	require.NoError(t, err)
	assert.Nil(t, change)

	change, err = d.Redo(ctx)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, "x = f(2);", d.Text())
	assert.Equal(t, edited, d.SExpression())

	change, err = d.Redo(ctx)
	require.NoError(t, err)
	assert.Nil(t, change)
}

func TestNewEditClearsRedo(t *testing.T) {
	ctx := context.Background()
	d := newJS(t, "a;")
	_, err := d.ApplyEdit(ctx, 0, "a", "b")
	require.NoError(t, err)
	_, err = d.Undo(ctx)
	require.NoError(t, err)
	_, err = d.ApplyEdit(ctx, 0, "a", "c")
	require.NoError(t, err)

	change, err := d.Redo(ctx)
	require.NoError(t, err)
	assert.Nil(t, change)
	assert.Equal(t, "c;", d.Text())
}

func TestFindAndReplaceAll(t *testing.T) {
	ctx := context.Background()
	d := newJS(t, "a; a; b;")
	assert.Equal(t, []Range{{0, 1}, {3, 4}}, d.Find("a"))
	assert.Nil(t, d.Find(""))
	assert.Nil(t, d.Find("zz"))

	n, err := d.ReplaceAll(ctx, "a", "cc")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "cc; cc; b;", d.Text())
	assert.Equal(t, freshTree(t, d), d.SExpression())

	for i := 0; i < 2; i++ {
		_, err := d.Undo(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, "a; a; b;", d.Text())

	n, err = d.ReplaceAll(ctx, "zz", "y")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSaveAndSaveAs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	d := newJS(t, "a;")
	assert.ErrorIs(t, d.Save(), ErrNoPath)

	path := filepath.Join(dir, "out.js")
	require.NoError(t, d.SaveAs(path))
	assert.Equal(t, "out.js", d.Title())
	assert.False(t, d.Untitled())

	_, err := d.ApplyEdit(ctx, 2, "", " b;")
	require.NoError(t, err)
	assert.True(t, d.Dirty())
	require.NoError(t, d.Save())
	assert.False(t, d.Dirty())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a; b;", string(data))
}

func TestJSONDocumentEdits(t *testing.T) {
	d, err := New(context.Background(), grammars.Lookup("json"), `{"a": 1}`)
	require.NoError(t, err)
	defer d.Close()

	_, err = d.ApplyEdit(context.Background(), 6, "1", `[true, null]`)
	require.NoError(t, err)
	assert.Equal(t, freshTree(t, d), d.SExpression())
	assert.Contains(t, d.SExpression(), "(array")
	assert.Empty(t, d.Diagnostics())
}

func TestDocumentLogsReparse(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	d, err := New(context.Background(), grammars.Lookup("javascript"), "a;", WithLogger(zap.New(core)))
	require.NoError(t, err)
	defer d.Close()

	_, err = d.ApplyEdit(context.Background(), 0, "a", "b")
	require.NoError(t, err)

	entries := logs.FilterMessage("reparsed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, d.ID(), entries[0].ContextMap()["doc"])
	assert.NotZero(t, logs.FilterMessage("accept").Len())
}
