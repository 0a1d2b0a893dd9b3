package grammars

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/odvcencio/sitter/gotreesitter"
)

// LangEntry holds a registered language with its grammar, extensions, and highlight query.
type LangEntry struct {
	Name               string
	Extensions         []string                      // e.g. [".js", ".mjs"]
	Shebangs           []string                      // e.g. ["#!/usr/bin/env node"]
	Language           func() *gotreesitter.Language // lazy loader
	HighlightQuery     string
	TokenSourceFactory func(src []byte, lang *gotreesitter.Language) gotreesitter.TokenSource // nil = use DFA
}

// NewParser returns a parser bound to the entry's language.
func (e *LangEntry) NewParser() (*gotreesitter.Parser, error) {
	p := gotreesitter.NewParser()
	if err := p.SetLanguage(e.Language()); err != nil {
		return nil, err
	}
	p.SetLogger(logger())
	return p, nil
}

// Parse parses src with the entry's token source when it has one, and with
// the generated lexer otherwise. old may be nil.
func (e *LangEntry) Parse(p *gotreesitter.Parser, src []byte, old *gotreesitter.Tree) *gotreesitter.Tree {
	if e.TokenSourceFactory != nil {
		ts := e.TokenSourceFactory(src, p.Language())
		if old != nil {
			return p.ParseIncrementalWithTokenSource(src, old, ts)
		}
		return p.ParseWithTokenSource(src, ts)
	}
	if old != nil {
		return p.ParseIncremental(src, old)
	}
	return p.Parse(src)
}

// ParseContext is Parse with cancellation: ctx, the parser's timeout and
// its cancellation flag can stop the parse early.
func (e *LangEntry) ParseContext(ctx context.Context, p *gotreesitter.Parser, src []byte, old *gotreesitter.Tree) (*gotreesitter.Tree, error) {
	if e.TokenSourceFactory != nil {
		return p.ParseTokens(ctx, old, src, e.TokenSourceFactory(src, p.Language()))
	}
	return p.ParseString(ctx, old, src)
}

// NewHighlighter builds a highlighter from the entry's highlight query.
func (e *LangEntry) NewHighlighter() (*gotreesitter.Highlighter, error) {
	lang := e.Language()
	var opts []gotreesitter.HighlighterOption
	if e.TokenSourceFactory != nil {
		factory := e.TokenSourceFactory
		opts = append(opts, gotreesitter.WithTokenSourceFactory(func(src []byte) gotreesitter.TokenSource {
			return factory(src, lang)
		}))
	}
	h, err := gotreesitter.NewHighlighter(lang, e.HighlightQuery, opts...)
	if err != nil {
		return nil, err
	}
	h.Parser().SetLogger(logger())
	return h, nil
}

var (
	registry []LangEntry

	logMu   sync.RWMutex
	baseLog = zap.NewNop()
)

// SetLogger sets the logger used by grammar builds and by parsers created
// from registry entries.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logMu.Lock()
	baseLog = l
	logMu.Unlock()
}

func logger() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return baseLog
}

// Register adds a language to the registry.
func Register(entry LangEntry) {
	if entry.TokenSourceFactory == nil {
		entry.TokenSourceFactory = defaultTokenSourceFactory(entry.Name)
	}
	registry = append(registry, entry)
}

// Lookup returns the entry registered under name, or nil.
func Lookup(name string) *LangEntry {
	for i := range registry {
		if strings.EqualFold(registry[i].Name, name) {
			return &registry[i]
		}
	}
	return nil
}

// DetectLanguage returns the LangEntry for a filename, or nil if unknown.
func DetectLanguage(filename string) *LangEntry {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return nil
	}
	for i := range registry {
		for _, e := range registry[i].Extensions {
			if e == ext {
				return &registry[i]
			}
		}
	}
	return nil
}

// DetectLanguageByShebang checks the first line of content for shebang matches.
func DetectLanguageByShebang(firstLine string) *LangEntry {
	for i := range registry {
		for _, shebang := range registry[i].Shebangs {
			if strings.HasPrefix(firstLine, shebang) {
				return &registry[i]
			}
		}
	}
	return nil
}

// Detect tries the filename first and then the first line of content.
func Detect(filename string, content []byte) *LangEntry {
	if entry := DetectLanguage(filename); entry != nil {
		return entry
	}
	first, _, _ := strings.Cut(string(content[:min(len(content), 256)]), "\n")
	return DetectLanguageByShebang(first)
}

// AllLanguages returns all registered languages.
func AllLanguages() []LangEntry {
	return registry
}
