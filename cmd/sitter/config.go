package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigFile = ".sitter.yaml"

// Config is the on-disk configuration shared by all subcommands.
type Config struct {
	// Addr is the listen address for `sitter serve`.
	Addr string `yaml:"addr"`
	// Root limits which files the server may open.
	Root string `yaml:"root"`
	// ParseTimeout bounds each parse; zero disables the limit.
	ParseTimeout time.Duration `yaml:"parse_timeout"`
	// MatchLimit caps in-progress query matches; zero leaves the default.
	MatchLimit int `yaml:"match_limit"`
	// Workers is the number of files parsed in parallel.
	Workers int `yaml:"workers"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// Theme maps highlight captures to color names.
	Theme map[string]string `yaml:"theme,omitempty"`
}

func defaultConfig() Config {
	return Config{
		Addr:     "localhost:7777",
		Root:     ".",
		Workers:  runtime.NumCPU(),
		LogLevel: "warn",
	}
}

// loadConfig reads path on top of the defaults. A missing file is only an
// error when the path was given explicitly.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}

	f, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.ParseTimeout < 0 {
		return cfg, fmt.Errorf("config %s: parse_timeout must not be negative", path)
	}
	return cfg, nil
}

// writeConfig writes cfg to path as YAML.
func writeConfig(path string, cfg Config) error {
	d, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, d, 0644)
}
