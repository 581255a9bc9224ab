// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

//go:build !dqlite

package store

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/canonical/sqlmatch/internal/config"
)

// ErrNoDqlite is returned when opening a dqlite database from a binary built
// without the dqlite tag.
var ErrNoDqlite = errors.New("built without dqlite support, rebuild with -tags dqlite")

func openDqlite(context.Context, *Store, config.DatabaseConfig, zerolog.Logger) error {
	return ErrNoDqlite
}
