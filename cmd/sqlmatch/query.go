// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/canonical/sqlmatch/internal/store"
)

// table is the output of the query command.
type table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func newQueryCommand(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "query -f FILE",
		Short: "Run a query document against the configured database",
		Example: `  # Print matching rows as a table
  sqlmatch query -f query.yaml --config sqlmatch.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := store.Open(ctx, opts.cfg.Database, opts.logger)
			if err != nil {
				return err
			}
			defer s.Close()

			if opts.cfg.Render.Dialect != "" && opts.cfg.Render.Dialect != s.Dialect.Name() {
				opts.logger.Warn().Str("dialect", opts.cfg.Render.Dialect).Str("driver", opts.cfg.Database.Driver).
					Msg("ignoring dialect, queries use the dialect of the database driver")
			}
			r, err := compile(file, s.Dialect)
			if err != nil {
				return err
			}
			text, driverArgs, err := r.DriverSQL()
			if err != nil {
				return err
			}
			opts.logger.Debug().Str("sql", text).Int("args", len(driverArgs)).Msg("query")

			rows, err := s.DB.QueryContext(ctx, text, driverArgs...)
			if err != nil {
				return fmt.Errorf("cannot run query: %w", err)
			}
			t, err := readTable(rows)
			if err != nil {
				return fmt.Errorf("cannot read rows: %w", err)
			}
			opts.logger.Info().Int("rows", len(t.Rows)).Msg("query done")

			if opts.cfg.Render.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), t)
			}
			writeTable(cmd.OutOrStdout(), t)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "query document")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readTable(rows *sql.Rows) (*table, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	t := &table{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		t.Rows = append(t.Rows, vals)
	}
	return t, rows.Err()
}

func writeTable(w io.Writer, t *table) {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetHeader(t.Columns)
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprint(v)
		}
		tw.Append(cells)
	}
	tw.Render()
}
