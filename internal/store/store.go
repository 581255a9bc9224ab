// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package store opens the database configured for the sqlmatch tool.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/canonical/sqlmatch/internal/config"
	"github.com/canonical/sqlmatch/internal/expr"
)

// Store is an open database along with the dialect it speaks.
type Store struct {
	DB      *sql.DB
	Dialect expr.Dialect

	// closers run in reverse order on Close.
	closers []func() error
}

// Open opens and pings the database described by cfg.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*Store, error) {
	dialect, err := config.DriverDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	s := &Store{Dialect: dialect}

	switch cfg.Driver {
	case config.DriverSQLite, config.DriverPgx:
		s.DB, err = sql.Open(cfg.Driver, cfg.DSN)
	case config.DriverDqlite:
		err = openDqlite(ctx, s, cfg, logger)
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("cannot open %s database: %w", cfg.Driver, err)
	}
	s.closers = append(s.closers, s.DB.Close)

	if err := s.DB.PingContext(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("cannot reach %s database: %w", cfg.Driver, err)
	}
	logger.Debug().Str("driver", cfg.Driver).Str("dialect", dialect.Name()).Msg("database open")
	return s, nil
}

// Close closes the database and whatever node was started to serve it.
func (s *Store) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
