package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/sitter/document"
	"github.com/odvcencio/sitter/grammars"
)

// collectFiles expands directories into the files below them that belong
// to a registered language. Files named directly are kept as is.
func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		err := filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if path == p || grammars.DetectLanguage(path) != nil {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func (a *app) docOptions() []document.Option {
	return []document.Option{
		document.WithLogger(a.log.Named("document")),
		document.WithTimeout(a.cfg.ParseTimeout),
		document.WithMatchLimit(a.cfg.MatchLimit),
	}
}

// openAll parses every file in parallel, at most cfg.Workers at a time.
// Documents come back in the order of files; the caller closes them.
func (a *app) openAll(ctx context.Context, files []string) ([]*document.Document, error) {
	docs := make([]*document.Document, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(a.cfg.Workers, 1))
	for i, file := range files {
		g.Go(func() error {
			d, err := document.Open(ctx, file, a.docOptions()...)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			a.log.Debug("parsed", zap.String("file", file), zap.Int("tokens", d.Stats().Tokens))
			docs[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeAll(docs)
		return nil, err
	}
	return docs, nil
}

func closeAll(docs []*document.Document) {
	for _, d := range docs {
		if d != nil {
			d.Close()
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
