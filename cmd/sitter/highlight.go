package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/odvcencio/sitter/gotreesitter"
)

var defaultTheme = map[string]string{
	"keyword":          "magenta",
	"string":           "green",
	"number":           "yellow",
	"comment":          "hi-black",
	"function":         "blue",
	"variable":         "",
	"constant":         "red",
	"constant.builtin": "bold red",
	"property":         "cyan",
	"operator":         "hi-white",
}

var colorAttributes = map[string]color.Attribute{
	"bold":       color.Bold,
	"italic":     color.Italic,
	"underline":  color.Underline,
	"black":      color.FgBlack,
	"red":        color.FgRed,
	"green":      color.FgGreen,
	"yellow":     color.FgYellow,
	"blue":       color.FgBlue,
	"magenta":    color.FgMagenta,
	"cyan":       color.FgCyan,
	"white":      color.FgWhite,
	"hi-black":   color.FgHiBlack,
	"hi-red":     color.FgHiRed,
	"hi-green":   color.FgHiGreen,
	"hi-yellow":  color.FgHiYellow,
	"hi-blue":    color.FgHiBlue,
	"hi-magenta": color.FgHiMagenta,
	"hi-cyan":    color.FgHiCyan,
	"hi-white":   color.FgHiWhite,
}

// palette resolves capture names to terminal colors. A capture without its
// own entry falls back to its parent name: "function.call" uses "function".
type palette map[string]*color.Color

func newPalette(overrides map[string]string) (palette, error) {
	specs := make(map[string]string, len(defaultTheme)+len(overrides))
	for k, v := range defaultTheme {
		specs[k] = v
	}
	for k, v := range overrides {
		specs[k] = v
	}
	p := make(palette, len(specs))
	for name, spec := range specs {
		var attrs []color.Attribute
		for _, word := range strings.Fields(spec) {
			attr, ok := colorAttributes[word]
			if !ok {
				return nil, fmt.Errorf("theme %s: unknown color %q", name, word)
			}
			attrs = append(attrs, attr)
		}
		if len(attrs) == 0 {
			p[name] = nil
			continue
		}
		p[name] = color.New(attrs...)
	}
	return p, nil
}

func (p palette) lookup(capture string) *color.Color {
	for name := capture; name != ""; {
		if c, ok := p[name]; ok {
			return c
		}
		i := strings.LastIndexByte(name, '.')
		if i < 0 {
			break
		}
		name = name[:i]
	}
	return nil
}

// render writes src with each highlight range colored.
func (p palette) render(w io.Writer, src string, ranges []gotreesitter.HighlightRange) error {
	pos := 0
	for _, r := range ranges {
		start, end := int(r.StartByte), int(r.EndByte)
		if start < pos || end > len(src) {
			continue
		}
		if _, err := io.WriteString(w, src[pos:start]); err != nil {
			return err
		}
		text := src[start:end]
		if c := p.lookup(r.Capture); c != nil {
			text = c.Sprint(text)
		}
		if _, err := io.WriteString(w, text); err != nil {
			return err
		}
		pos = end
	}
	_, err := io.WriteString(w, src[pos:])
	return err
}

type highlightResult struct {
	Path   string                        `json:"path"`
	Ranges []gotreesitter.HighlightRange `json:"ranges"`
}

func newHighlightCmd(a *app) *cobra.Command {
	var noColor bool
	cmd := &cobra.Command{
		Use:   "highlight [paths...]",
		Short: "Print files with syntax highlighting",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errNoPaths
			}
			if noColor {
				color.NoColor = true
			}
			pal, err := newPalette(a.cfg.Theme)
			if err != nil {
				return err
			}
			files, err := collectFiles(args)
			if err != nil {
				return err
			}
			docs, err := a.openAll(cmd.Context(), files)
			if err != nil {
				return err
			}
			defer closeAll(docs)

			out := cmd.OutOrStdout()
			var results []highlightResult
			for i, d := range docs {
				ranges, err := d.Highlights()
				if err != nil {
					return fmt.Errorf("%s: %w", files[i], err)
				}
				if a.format == "json" {
					results = append(results, highlightResult{Path: files[i], Ranges: ranges})
					continue
				}
				if len(docs) > 1 {
					fmt.Fprintf(out, "==> %s <==\n", files[i])
				}
				if err := pal.render(out, d.Text(), ranges); err != nil {
					return err
				}
			}
			if a.format == "json" {
				return writeJSON(out, results)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	return cmd
}
