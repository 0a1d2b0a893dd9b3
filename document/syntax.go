package document

import (
	"fmt"

	"github.com/odvcencio/sitter/gotreesitter"
)

// Capture is one query capture resolved against the document text.
type Capture struct {
	Pattern    int
	Name       string
	Kind       string
	StartByte  uint32
	EndByte    uint32
	StartPoint gotreesitter.Point
	EndPoint   gotreesitter.Point
	Text       string
}

// Diagnostic reports an ERROR or MISSING node in the tree.
type Diagnostic struct {
	Range   gotreesitter.Range
	Message string
}

// Query runs a query over the whole document and returns its captures in
// document order.
func (d *Document) Query(source string) ([]Capture, error) {
	return d.QueryRange(source, Range{})
}

// QueryRange is Query restricted to captures intersecting r. A zero Range
// covers the whole document.
func (d *Document) QueryRange(source string, r Range) ([]Capture, error) {
	q, err := gotreesitter.NewQuery(source, d.entry.Language())
	if err != nil {
		return nil, err
	}
	qc := gotreesitter.NewQueryCursor()
	if d.matchLimit > 0 {
		qc.SetMatchLimit(d.matchLimit)
	}
	if r != (Range{}) {
		if r.Start < 0 || r.End < r.Start {
			return nil, fmt.Errorf("document: bad range [%d, %d)", r.Start, r.End)
		}
		qc.SetByteRange(uint32(r.Start), uint32(r.End))
	}

	var out []Capture
	it := qc.Captures(q, d.tree.RootNode(), gotreesitter.TreeText(d.tree))
	for {
		m, idx, ok := it.Next()
		if !ok {
			break
		}
		c := m.Captures[idx]
		out = append(out, Capture{
			Pattern:    m.PatternIndex,
			Name:       c.Name,
			Kind:       c.Node.Kind(),
			StartByte:  c.Node.StartByte(),
			EndByte:    c.Node.EndByte(),
			StartPoint: c.Node.StartPoint(),
			EndPoint:   c.Node.EndPoint(),
			Text:       d.text[c.Node.StartByte():c.Node.EndByte()],
		})
	}
	return out, nil
}

// Highlights returns non-overlapping highlight ranges for the current tree
// using the language's highlight query.
func (d *Document) Highlights() ([]gotreesitter.HighlightRange, error) {
	if d.highlighter == nil {
		h, err := d.entry.NewHighlighter()
		if err != nil {
			return nil, err
		}
		d.highlighter = h
	}
	return d.highlighter.HighlightTree(d.tree), nil
}

// Diagnostics lists the syntax errors in the current tree in document order.
func (d *Document) Diagnostics() []Diagnostic {
	var out []Diagnostic
	d.tree.Walk(func(n *gotreesitter.Node, _ int) bool {
		switch {
		case n.IsMissing():
			out = append(out, Diagnostic{Range: n.Range(), Message: fmt.Sprintf("missing %q", n.Kind())})
			return false
		case n.IsError():
			out = append(out, Diagnostic{Range: n.Range(), Message: "syntax error"})
			return false
		}
		return n.HasError()
	})
	return out
}

// NodeAt returns the smallest named node spanning [start, end).
func (d *Document) NodeAt(start, end int) *gotreesitter.Node {
	if d.tree == nil {
		return nil
	}
	return d.tree.RootNode().NamedDescendantForByteRange(uint32(start), uint32(end))
}

// SExpression renders the current tree.
func (d *Document) SExpression() string {
	if d.tree == nil {
		return ""
	}
	return d.tree.RootNode().String()
}
