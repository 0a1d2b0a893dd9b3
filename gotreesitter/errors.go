package gotreesitter

import (
	"errors"
	"fmt"
)

var (
	// ErrNoLanguage is returned when parsing without a language.
	ErrNoLanguage = errors.New("gotreesitter: no language set")
	// ErrLanguageMismatch is returned when an old tree was produced by a
	// different language than the parser's.
	ErrLanguageMismatch = errors.New("gotreesitter: old tree was parsed with a different language")
	// ErrParseCanceled is returned when a parse stops because its context
	// was canceled or its cancellation flag was set. No tree is produced.
	ErrParseCanceled = errors.New("gotreesitter: parse canceled")
	// ErrParseTimeout is returned when a parse exceeds its time budget. No
	// tree is produced.
	ErrParseTimeout = errors.New("gotreesitter: parse timed out")
)

// IncludedRangesError reports the first included range that overlaps or
// precedes the range before it.
type IncludedRangesError struct {
	Index int
	Range Range
}

func (e *IncludedRangesError) Error() string {
	return fmt.Sprintf("gotreesitter: included range %d [%d, %d) is out of order or overlapping",
		e.Index, e.Range.StartByte, e.Range.EndByte)
}
