// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmatch

import (
	"context"
	"database/sql"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/canonical/sqlmatch/internal/expr"
)

// preparer is anything a driver statement can be prepared on, such as a
// sql.DB or a sql.Conn.
type preparer interface {
	PrepareContext(context.Context, string) (*sql.Stmt, error)
}

// prepared holds the driver statements prepared for each [Statement] on each
// [DB]. Statements and databases are registered when they are created and
// are dropped from the cache by finalizers once they are garbage collected:
//   - a collected Statement closes its driver statement on every database;
//   - a collected DB closes every driver statement prepared on it, then the
//     sql.DB itself.
//
// A Statement can be rendered differently for each DB dialect, so the driver
// statements are keyed by both IDs.
var prepared = &preparedCache{
	onStmt: map[uint64]map[uint64]*sql.Stmt{},
	onDB:   map[uint64]map[uint64]struct{}{},
}

var lastStmtID, lastDBID uint64

type preparedCache struct {
	mu sync.RWMutex
	// onStmt maps a statement ID to the driver statements prepared for it,
	// by database ID.
	onStmt map[uint64]map[uint64]*sql.Stmt
	// onDB maps a database ID to the statement IDs prepared on it.
	onDB map[uint64]map[uint64]struct{}
}

// statement registers a new Statement for the rendered query.
func (pc *preparedCache) statement(r *expr.Rendered, naming Naming) *Statement {
	s := &Statement{rendered: r, naming: naming, cacheID: atomic.AddUint64(&lastStmtID, 1)}
	pc.mu.Lock()
	pc.onStmt[s.cacheID] = map[uint64]*sql.Stmt{}
	pc.mu.Unlock()
	runtime.SetFinalizer(s, pc.dropStatement)
	return s
}

// database registers a new DB wrapping sqldb.
func (pc *preparedCache) database(sqldb *sql.DB) *DB {
	db := &DB{sqldb: sqldb, cacheID: atomic.AddUint64(&lastDBID, 1)}
	pc.mu.Lock()
	pc.onDB[db.cacheID] = map[uint64]struct{}{}
	pc.mu.Unlock()
	runtime.SetFinalizer(db, pc.dropDatabase)
	return db
}

// lookup returns the driver statement prepared for s on the database dbID.
func (pc *preparedCache) lookup(dbID uint64, s *Statement) (*sql.Stmt, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	sqlstmt, ok := pc.onStmt[s.cacheID][dbID]
	return sqlstmt, ok
}

// prepare returns the driver statement for s on the database dbID, preparing
// driverSQL on p if it is not cached yet. p must belong to the database dbID.
func (pc *preparedCache) prepare(ctx context.Context, dbID uint64, p preparer, s *Statement, driverSQL string) (*sql.Stmt, error) {
	if sqlstmt, ok := pc.lookup(dbID, s); ok {
		return sqlstmt, nil
	}
	sqlstmt, err := p.PrepareContext(ctx, driverSQL)
	if err != nil {
		return nil, err
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()
	// Another query may have prepared the same statement in the meantime.
	if existing, ok := pc.onStmt[s.cacheID][dbID]; ok {
		sqlstmt.Close()
		return existing, nil
	}
	pc.onStmt[s.cacheID][dbID] = sqlstmt
	pc.onDB[dbID][s.cacheID] = struct{}{}
	return sqlstmt, nil
}

func (pc *preparedCache) dropStatement(s *Statement) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for dbID, sqlstmt := range pc.onStmt[s.cacheID] {
		sqlstmt.Close()
		delete(pc.onDB[dbID], s.cacheID)
	}
	delete(pc.onStmt, s.cacheID)
}

func (pc *preparedCache) dropDatabase(db *DB) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for stmtID := range pc.onDB[db.cacheID] {
		byDB := pc.onStmt[stmtID]
		byDB[db.cacheID].Close()
		delete(byDB, db.cacheID)
	}
	delete(pc.onDB, db.cacheID)
	db.sqldb.Close()
}
