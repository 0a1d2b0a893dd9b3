package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/sitter/document"
)

var errNoPaths = errors.New("provide file or directory paths")

type parseResult struct {
	Path        string                `json:"path"`
	Language    string                `json:"language"`
	Tree        string                `json:"tree,omitempty"`
	HasError    bool                  `json:"hasError"`
	Diagnostics []document.Diagnostic `json:"diagnostics,omitempty"`
}

func newParseCmd(a *app) *cobra.Command {
	var quiet, stats bool
	cmd := &cobra.Command{
		Use:   "parse [paths...]",
		Short: "Parse files and print their syntax trees",
		Long:  "Parses each file with the language detected from its name and prints the tree as an S-expression. Exits non-zero if any file has syntax errors.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errNoPaths
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
			results := make([]parseResult, 0, len(docs))
			failed := 0
			for i, d := range docs {
				res := parseResult{
					Path:     files[i],
					Language: d.Language(),
					HasError: d.Tree().RootNode().HasError(),
				}
				if !quiet {
					res.Tree = d.SExpression()
				}
				if res.HasError {
					failed++
					res.Diagnostics = d.Diagnostics()
				}
				results = append(results, res)

				if a.format == "json" {
					continue
				}
				if !quiet {
					fmt.Fprintf(out, "%s\n%s\n", res.Path, res.Tree)
				}
				if stats {
					s := d.Stats()
					fmt.Fprintf(out, "  tokens=%d recoveries=%d max_versions=%d\n", s.Tokens, s.Recoveries, s.MaxVersions)
				}
				for _, diag := range res.Diagnostics {
					p := diag.Range.StartPoint
					fmt.Fprintf(out, "%s:%d:%d: %s\n", res.Path, p.Row+1, p.Column+1, diag.Message)
				}
			}
			if a.format == "json" {
				if err := writeJSON(out, results); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files have syntax errors", failed, len(docs))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only report syntax errors")
	cmd.Flags().BoolVar(&stats, "stats", false, "print parse statistics")
	return cmd
}
