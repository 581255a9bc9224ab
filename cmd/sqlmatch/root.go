// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/canonical/sqlmatch/internal/config"
)

// rootOptions holds the global flags and the state loaded from them before
// any subcommand runs.
type rootOptions struct {
	configPath string
	logLevel   string
	format     string
	dialect    string

	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "sqlmatch",
		Short: "Render and run composed SQL queries",
		Long: `sqlmatch compiles the query of a YAML query document into SQL for a
dialect, and runs it against the configured database.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "config file (default: sqlmatch.yaml in the working directory)")
	f.StringVar(&opts.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	f.StringVar(&opts.format, "format", "", "output format (text|json)")
	f.StringVar(&opts.dialect, "dialect", "", "SQL dialect (canonical|sqlite|postgres)")

	cmd.AddCommand(newRenderCommand(opts))
	cmd.AddCommand(newQueryCommand(opts))
	return cmd
}

// load reads the configuration, applies the flags that were set on the
// command line and sets up the logger.
func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, path, err := config.LoadConfig(o.configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("format") {
		cfg.Render.Format = o.format
	}
	if flags.Changed("dialect") {
		cfg.Render.Dialect = o.dialect
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	o.cfg = cfg

	level, _ := cfg.LogLevel()
	o.logger = newLogger(cmd.ErrOrStderr(), cfg.Log.Format, level)
	o.logger.Debug().Str("path", path).Msg("configuration loaded")
	return nil
}

func newLogger(w io.Writer, format string, level zerolog.Level) zerolog.Logger {
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
