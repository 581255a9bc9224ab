// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

//go:build dqlite

package store

import (
	"context"
	"time"

	"github.com/canonical/go-dqlite/app"
	"github.com/rs/zerolog"

	"github.com/canonical/sqlmatch/internal/config"
)

const readyTimeout = 30 * time.Second

// openDqlite starts a dqlite node in cfg.Dir, joining cfg.Cluster when set,
// and opens the cfg.Name database on it.
func openDqlite(ctx context.Context, s *Store, cfg config.DatabaseConfig, logger zerolog.Logger) error {
	opts := []app.Option{app.WithAddress(cfg.Address)}
	if len(cfg.Cluster) > 0 {
		opts = append(opts, app.WithCluster(cfg.Cluster))
	}
	node, err := app.New(cfg.Dir, opts...)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, func() error {
		hctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
		defer cancel()
		node.Handover(hctx)
		return node.Close()
	})

	rctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := node.Ready(rctx); err != nil {
		return err
	}
	logger.Debug().Str("address", node.Address()).Uint64("id", node.ID()).Msg("dqlite node ready")

	s.DB, err = node.Open(ctx, cfg.Name)
	return err
}
