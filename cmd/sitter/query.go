package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/sitter/document"
)

type queryResult struct {
	Path     string             `json:"path"`
	Captures []document.Capture `json:"captures"`
}

func newQueryCmd(a *app) *cobra.Command {
	var expr string
	cmd := &cobra.Command{
		Use:   "query [query-file] [paths...]",
		Short: "Run a tree query over files",
		Long:  "Runs a query, read from a file or given with --expr, over each file and prints the captures in document order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			source := expr
			if source == "" {
				if len(args) == 0 {
					return fmt.Errorf("provide a query file or --expr")
				}
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				source = string(data)
				args = args[1:]
			}
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
			var results []queryResult
			for i, d := range docs {
				caps, err := d.Query(source)
				if err != nil {
					return fmt.Errorf("%s: %w", files[i], err)
				}
				if a.format == "json" {
					results = append(results, queryResult{Path: files[i], Captures: caps})
					continue
				}
				for _, c := range caps {
					text, _, _ := strings.Cut(c.Text, "\n")
					fmt.Fprintf(out, "%s:%d:%d\t@%s\t%s\n", files[i], c.StartPoint.Row+1, c.StartPoint.Column+1, c.Name, text)
				}
			}
			if a.format == "json" {
				return writeJSON(out, results)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&expr, "expr", "e", "", "query source given inline")
	return cmd
}
