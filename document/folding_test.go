package document

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/sitter/grammars"
)

func TestFoldToggle(t *testing.T) {
	fs := NewFoldState()
	fs.SetRegions([]FoldRegion{
		{StartLine: 0, EndLine: 5},
		{StartLine: 10, EndLine: 15},
	})

	assert.True(t, fs.Toggle(0))
	assert.True(t, fs.Regions()[0].Folded)
	assert.True(t, fs.Toggle(0))
	assert.False(t, fs.Regions()[0].Folded)
	assert.False(t, fs.Toggle(99))
}

func TestFoldAllUnfoldAll(t *testing.T) {
	fs := NewFoldState()
	fs.SetRegions([]FoldRegion{
		{StartLine: 0, EndLine: 5},
		{StartLine: 10, EndLine: 15},
	})

	fs.FoldAll()
	for _, r := range fs.Regions() {
		assert.True(t, r.Folded, "line %d", r.StartLine)
	}
	fs.UnfoldAll()
	for _, r := range fs.Regions() {
		assert.False(t, r.Folded, "line %d", r.StartLine)
	}
}

func TestIsLineHidden(t *testing.T) {
	fs := NewFoldState()
	fs.SetRegions([]FoldRegion{{StartLine: 2, EndLine: 5, Folded: true}})

	tests := []struct {
		line   int
		hidden bool
	}{
		{0, false},
		{1, false},
		{2, false}, // start line is visible
		{3, true},
		{4, true},
		{5, true},
		{6, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.hidden, fs.IsLineHidden(tt.line), "line %d", tt.line)
	}
	assert.Equal(t, []int{0, 1, 2, 6}, fs.VisibleLines(7))
}

func TestSetRegionsPreservesFoldState(t *testing.T) {
	fs := NewFoldState()
	fs.SetRegions([]FoldRegion{
		{StartLine: 0, EndLine: 5},
		{StartLine: 10, EndLine: 15},
	})
	fs.Toggle(0)

	fs.SetRegions([]FoldRegion{
		{StartLine: 0, EndLine: 6},
		{StartLine: 10, EndLine: 20},
		{StartLine: 25, EndLine: 30},
	})
	regions := fs.Regions()
	assert.True(t, regions[0].Folded)
	assert.False(t, regions[1].Folded)
	assert.False(t, regions[2].Folded)
}

func TestFoldAtLine(t *testing.T) {
	fs := NewFoldState()
	fs.SetRegions([]FoldRegion{
		{StartLine: 0, EndLine: 10},
		{StartLine: 2, EndLine: 5},
	})

	require.True(t, fs.FoldAtLine(3))
	assert.True(t, fs.Regions()[1].Folded, "innermost region folds")
	assert.False(t, fs.Regions()[0].Folded)

	require.True(t, fs.UnfoldAtLine(4))
	assert.False(t, fs.Regions()[1].Folded)
	assert.False(t, fs.UnfoldAtLine(20))
}

func TestSyntaxFoldRegions(t *testing.T) {
	d := newJS(t, "function f(a) {\n  if (a) {\n    g(\n      a);\n  }\n}\nx;")
	assert.Equal(t, []FoldRegion{
		{StartLine: 0, EndLine: 5},
		{StartLine: 1, EndLine: 4},
		{StartLine: 2, EndLine: 3},
	}, d.Folds().Regions())
}

func TestSyntaxFoldRegionsJSON(t *testing.T) {
	d, err := New(context.Background(), grammars.Lookup("json"), "{\n  \"a\": [\n    1\n  ]\n}")
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, []FoldRegion{
		{StartLine: 0, EndLine: 4},
		{StartLine: 1, EndLine: 3},
	}, d.Folds().Regions())
}

func TestFoldsSurviveEdits(t *testing.T) {
	d := newJS(t, "while (a) {\n  b;\n}\nc;")
	require.True(t, d.Folds().Toggle(0))

	_, err := d.ApplyEdit(context.Background(), len(d.Text())-2, "c", "done")
	require.NoError(t, err)
	regions := d.Folds().Regions()
	require.Len(t, regions, 1)
	assert.True(t, regions[0].Folded)
	assert.True(t, d.Folds().IsLineHidden(1))

	_, err = d.ApplyEdit(context.Background(), 0, "while (a) {\n  b;\n}\n", "")
	require.NoError(t, err)
	assert.Empty(t, d.Folds().Regions())
}
