// Command sitter parses, queries and highlights source files and serves
// live documents over WebSocket.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/odvcencio/sitter/grammars"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sitter: %v\n", err)
		os.Exit(1)
	}
}

// app carries the state shared by every subcommand of one invocation.
type app struct {
	cfgFile string
	verbose bool
	format  string

	cfg Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{log: zap.NewNop()}
	root := &cobra.Command{
		Use:           "sitter",
		Short:         "Incremental parsing and syntax queries",
		Long:          "sitter parses source files into concrete syntax trees, runs tree queries over them and keeps documents parsed while they are edited.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Sync()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default "+defaultConfigFile+" if present)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log parser events at debug level")
	root.PersistentFlags().StringVar(&a.format, "format", "text", "output format: text|json")

	root.AddCommand(
		newParseCmd(a),
		newQueryCmd(a),
		newHighlightCmd(a),
		newServeCmd(a),
		newLanguagesCmd(a),
		newInitCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	switch a.format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown format %q (want text or json)", a.format)
	}

	cfg, err := loadConfig(a.cfgFile)
	if err != nil && !(cmd.Name() == "init" && errors.Is(err, fs.ErrNotExist)) {
		return err
	}
	a.cfg = cfg

	level := zapcore.WarnLevel
	if a.verbose {
		level = zapcore.DebugLevel
	} else if cfg.LogLevel != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.LogLevel))); err != nil {
			return fmt.Errorf("config: log_level: %w", err)
		}
	}
	zcfg := zap.NewProductionConfig()
	if a.verbose {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := zcfg.Build()
	if err != nil {
		return err
	}
	a.log = logger
	grammars.SetLogger(logger.Named("grammars"))
	return nil
}

func newLanguagesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List registered languages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			reports := grammars.AuditParseSupport()
			if a.format == "json" {
				return writeJSON(out, reports)
			}
			for _, r := range reports {
				entry := grammars.Lookup(r.Name)
				fmt.Fprintf(out, "%-12s %-10s %s\n", r.Name, r.Backend, strings.Join(entry.Extensions, " "))
			}
			return nil
		},
	}
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfgFile
			if path == "" {
				path = defaultConfigFile
			}
			if err := writeConfig(path, defaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created: %s\n", path)
			return nil
		},
	}
}
