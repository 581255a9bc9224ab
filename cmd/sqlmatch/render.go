// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/canonical/sqlmatch/internal/expr"
	"github.com/canonical/sqlmatch/internal/schema"
)

// rendered is the output of the render command.
type rendered struct {
	Dialect string `json:"dialect"`
	Query   string `json:"query"`
	SQL     string `json:"sql"`
	Args    []any  `json:"args"`
}

func newRenderCommand(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "render -f FILE",
		Short: "Print the SQL of a query document",
		Example: `  # Render for postgres
  sqlmatch render -f query.yaml --dialect postgres`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := opts.cfg.Dialect()
			if err != nil {
				return err
			}
			r, err := compile(file, d)
			if err != nil {
				return err
			}
			text, driverArgs, err := r.DriverSQL()
			if err != nil {
				return err
			}
			opts.logger.Debug().Str("file", file).Str("dialect", d.Name()).Msg("rendered")
			out := rendered{Dialect: d.Name(), Query: r.Text, SQL: text, Args: driverArgs}
			if out.Args == nil {
				out.Args = []any{}
			}
			return writeRendered(cmd.OutOrStdout(), opts.cfg.Render.Format, out)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "query document")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// compile loads a query document and builds its query for d.
func compile(file string, d expr.Dialect) (*expr.Rendered, error) {
	doc, err := schema.Load(file)
	if err != nil {
		return nil, err
	}
	q, err := doc.Compile()
	if err != nil {
		return nil, err
	}
	return q.Build(d)
}

func writeRendered(w io.Writer, format string, out rendered) error {
	if format == "json" {
		return writeJSON(w, out)
	}
	_, err := fmt.Fprintf(w, "dialect: %s\nsql: %s\nargs: %v\n", out.Dialect, out.SQL, out.Args)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
