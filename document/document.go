// Package document keeps an open source file and its syntax tree in sync.
//
// Every edit is applied to the text, mirrored onto the tree as an
// InputEdit and followed by an incremental reparse, so the tree always
// describes the current text. A Document is not safe for concurrent use.
package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/odvcencio/sitter/gotreesitter"
	"github.com/odvcencio/sitter/grammars"
)

var (
	// ErrUnknownLanguage is returned when no registered language matches a file.
	ErrUnknownLanguage = errors.New("document: unknown language")
	// ErrEditMismatch is returned when an edit's old text does not match the
	// document at the given offset.
	ErrEditMismatch = errors.New("document: edit does not match text")
	// ErrNoPath is returned by Save on an untitled document.
	ErrNoPath = errors.New("document: no path; use SaveAs")
)

// Range represents a byte range [Start, End) within document text.
type Range struct {
	Start, End int
}

// Change describes one applied edit and the parts of the tree it affected.
type Change struct {
	Edit   gotreesitter.InputEdit
	Ranges []gotreesitter.Range
}

// editOp records a single edit for undo/redo support.
type editOp struct {
	offset  int
	oldText string
	newText string
}

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the logger for the document and its parser.
func WithLogger(l *zap.Logger) Option {
	return func(d *Document) {
		if l != nil {
			d.log = l
		}
	}
}

// WithTimeout bounds every parse the document runs.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Document) { d.timeout = timeout }
}

// WithMatchLimit caps the number of in-progress matches a query may hold.
func WithMatchLimit(n int) Option {
	return func(d *Document) { d.matchLimit = n }
}

// Document is a text buffer bound to a language and its current syntax tree.
type Document struct {
	id        ulid.ULID
	path      string // absolute path, or "" if untitled
	text      string
	savedText string
	undoStack []editOp
	redoStack []editOp

	entry       *grammars.LangEntry
	parser      *gotreesitter.Parser
	tree        *gotreesitter.Tree
	highlighter *gotreesitter.Highlighter
	folds       *FoldState

	timeout    time.Duration
	matchLimit int
	log        *zap.Logger
}

// New creates an untitled document holding text in the given language and
// parses it.
func New(ctx context.Context, entry *grammars.LangEntry, text string, opts ...Option) (*Document, error) {
	if entry == nil {
		return nil, ErrUnknownLanguage
	}
	d := &Document{
		id:    ulid.Make(),
		text:  text,
		entry: entry,
		folds: NewFoldState(),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With(zap.String("doc", d.id.String()), zap.String("language", entry.Name))

	p, err := entry.NewParser()
	if err != nil {
		return nil, fmt.Errorf("document: %w", err)
	}
	p.SetLogger(d.log.Named("parser"))
	p.SetTimeout(d.timeout)
	d.parser = p

	tree, err := d.parse(ctx, nil)
	if err != nil {
		return nil, err
	}
	d.setTree(tree)
	d.savedText = d.text
	return d, nil
}

// Open reads the file at path, detects its language from the name or a
// shebang line and parses it.
func Open(ctx context.Context, path string, opts ...Option) (*Document, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	entry := grammars.Detect(absPath, data)
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLanguage, filepath.Base(absPath))
	}
	d, err := New(ctx, entry, string(data), opts...)
	if err != nil {
		return nil, err
	}
	d.path = absPath
	d.log.Debug("opened", zap.String("path", absPath), zap.Int("bytes", len(data)))
	return d, nil
}

func (d *Document) parse(ctx context.Context, old *gotreesitter.Tree) (*gotreesitter.Tree, error) {
	tree, err := d.entry.ParseContext(ctx, d.parser, []byte(d.text), old)
	if err != nil {
		// Drop the suspended session; the next parse starts over.
		d.parser.Reset()
		return nil, fmt.Errorf("document: parse: %w", err)
	}
	return tree, nil
}

func (d *Document) setTree(tree *gotreesitter.Tree) {
	if d.tree != nil {
		d.tree.Close()
	}
	d.tree = tree
	d.folds.SetRegions(foldRegions(tree.RootNode()))
}

// ID returns the document's unique identifier.
func (d *Document) ID() string { return d.id.String() }

// Language returns the name of the document's language.
func (d *Document) Language() string { return d.entry.Name }

// Entry returns the registry entry for the document's language.
func (d *Document) Entry() *grammars.LangEntry { return d.entry }

// Tree returns the current syntax tree. It stays owned by the document and
// is replaced on the next edit.
func (d *Document) Tree() *gotreesitter.Tree { return d.tree }

// Folds returns the fold state derived from the current tree.
func (d *Document) Folds() *FoldState { return d.folds }

// Stats returns statistics for the most recent parse.
func (d *Document) Stats() gotreesitter.ParseStats { return d.parser.Stats() }

// Save writes the current text to the stored path.
// Returns an error if the document has no path (untitled).
func (d *Document) Save() error {
	if d.path == "" {
		return ErrNoPath
	}
	if err := os.WriteFile(d.path, []byte(d.text), 0644); err != nil {
		return err
	}
	d.savedText = d.text
	return nil
}

// SaveAs writes the current text to the given path, updates the stored path,
// and marks the document as clean.
func (d *Document) SaveAs(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(absPath, []byte(d.text), 0644); err != nil {
		return err
	}
	d.path = absPath
	d.savedText = d.text
	return nil
}

// Path returns the absolute file path, or "" if the document is untitled.
func (d *Document) Path() string { return d.path }

// Text returns the current text content.
func (d *Document) Text() string { return d.text }

// Dirty reports whether the text differs from the last saved/opened text.
func (d *Document) Dirty() bool { return d.text != d.savedText }

// Untitled reports whether the document has no associated file path.
func (d *Document) Untitled() bool { return d.path == "" }

// Title returns the base filename, or "untitled" if the document has no path.
func (d *Document) Title() string {
	if d.path == "" {
		return "untitled"
	}
	return filepath.Base(d.path)
}

// ApplyEdit replaces the text at [offset, offset+len(oldText)) with newText,
// reparses incrementally and records the edit for undo. If the reparse
// fails the document is left unchanged.
func (d *Document) ApplyEdit(ctx context.Context, offset int, oldText, newText string) (*Change, error) {
	change, err := d.apply(ctx, offset, oldText, newText)
	if err != nil {
		return nil, err
	}
	d.undoStack = append(d.undoStack, editOp{offset: offset, oldText: oldText, newText: newText})
	d.redoStack = nil
	return change, nil
}

// Undo reverses the last edit. It returns nil if the undo stack is empty.
func (d *Document) Undo(ctx context.Context) (*Change, error) {
	if len(d.undoStack) == 0 {
		return nil, nil
	}
	op := d.undoStack[len(d.undoStack)-1]
	change, err := d.apply(ctx, op.offset, op.newText, op.oldText)
	if err != nil {
		return nil, err
	}
	d.undoStack = d.undoStack[:len(d.undoStack)-1]
	d.redoStack = append(d.redoStack, op)
	return change, nil
}

// Redo reapplies the last undone edit. It returns nil if the redo stack is
// empty.
func (d *Document) Redo(ctx context.Context) (*Change, error) {
	if len(d.redoStack) == 0 {
		return nil, nil
	}
	op := d.redoStack[len(d.redoStack)-1]
	change, err := d.apply(ctx, op.offset, op.oldText, op.newText)
	if err != nil {
		return nil, err
	}
	d.redoStack = d.redoStack[:len(d.redoStack)-1]
	d.undoStack = append(d.undoStack, op)
	return change, nil
}

func (d *Document) apply(ctx context.Context, offset int, oldText, newText string) (*Change, error) {
	end := offset + len(oldText)
	if offset < 0 || end > len(d.text) || d.text[offset:end] != oldText {
		return nil, fmt.Errorf("%w at offset %d", ErrEditMismatch, offset)
	}
	updated := d.text[:offset] + newText + d.text[end:]
	edit := gotreesitter.InputEdit{
		StartByte:   uint32(offset),
		OldEndByte:  uint32(end),
		NewEndByte:  uint32(offset + len(newText)),
		StartPoint:  pointAt(d.text, offset),
		OldEndPoint: pointAt(d.text, end),
		NewEndPoint: pointAt(updated, offset+len(newText)),
	}

	old := d.tree.Copy()
	defer old.Close()
	old.Edit(edit)

	prev := d.text
	d.text = updated
	tree, err := d.parse(ctx, old)
	if err != nil {
		d.text = prev
		return nil, err
	}
	change := &Change{Edit: edit, Ranges: old.ChangedRanges(tree)}
	d.setTree(tree)

	stats := d.parser.Stats()
	d.log.Debug("reparsed",
		zap.Int("offset", offset),
		zap.Int("changed", len(change.Ranges)),
		zap.Int("reused_nodes", stats.ReusedNodes),
		zap.Uint32("reused_bytes", stats.ReusedBytes),
	)
	return change, nil
}

// pointAt returns the row and byte column of offset in text.
func pointAt(text string, offset int) gotreesitter.Point {
	before := text[:offset]
	row := strings.Count(before, "\n")
	col := offset - (strings.LastIndexByte(before, '\n') + 1)
	return gotreesitter.Point{Row: uint32(row), Column: uint32(col)}
}

// Find returns all byte ranges where query appears as a substring in the
// text. Returns nil if query is empty or not found.
func (d *Document) Find(query string) []Range {
	if query == "" {
		return nil
	}
	var results []Range
	start := 0
	for {
		idx := strings.Index(d.text[start:], query)
		if idx < 0 {
			break
		}
		absIdx := start + idx
		results = append(results, Range{Start: absIdx, End: absIdx + len(query)})
		start = absIdx + len(query)
	}
	return results
}

// ReplaceAll replaces all occurrences of query with replacement and returns
// the number of replacements. Each replacement is a separate undo step,
// applied back to front so earlier offsets stay valid.
func (d *Document) ReplaceAll(ctx context.Context, query, replacement string) (int, error) {
	ranges := d.Find(query)
	for i := len(ranges) - 1; i >= 0; i-- {
		if _, err := d.ApplyEdit(ctx, ranges[i].Start, query, replacement); err != nil {
			return len(ranges) - 1 - i, err
		}
	}
	return len(ranges), nil
}

// Close releases the document's tree.
func (d *Document) Close() {
	if d.tree != nil {
		d.tree.Close()
		d.tree = nil
	}
}
