// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmatch

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-sqlite3"
)

// trackedDriverName is a SQLite driver that records, per test, the driver
// statements prepared and closed and the queries run on connections and on
// prepared statements. The test name is read from the testName DSN
// parameter. The cache tests use the records to look for statement leaks.
const trackedDriverName = "sqlite3_tracked"

const testNameParam = "testName"

// tracker holds what the tracked driver has seen. Statements are keyed by a
// sequence number rather than held by reference so that keeping the record
// does not stop the finalizers under test from running.
type tracker struct {
	mu      sync.RWMutex
	opened  map[string]map[uint64]string
	closed  map[string]map[uint64]bool
	connRun map[string]int
	stmtRun map[string]int
}

var tracked = &tracker{}

var trackedStmtSeq uint64

func init() {
	tracked.reset()
	sql.Register(trackedDriverName, &trackedDriver{base: &sqlite3.SQLiteDriver{}})
}

func (t *tracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opened = map[string]map[uint64]string{}
	t.closed = map[string]map[uint64]bool{}
	t.connRun = map[string]int{}
	t.stmtRun = map[string]int{}
}

func (t *tracker) prepared(test string, id uint64, query string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.opened[test] == nil {
		t.opened[test] = map[uint64]string{}
	}
	t.opened[test][id] = query
}

func (t *tracker) closedStmt(test string, id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed[test] == nil {
		t.closed[test] = map[uint64]bool{}
	}
	t.closed[test][id] = true
}

func (t *tracker) ran(counts map[string]int, test string, err error) {
	if err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	counts[test]++
}

// stmts returns the number of driver statements prepared and closed in test.
func (t *tracker) stmts(test string) (opened, closed int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.opened[test]), len(t.closed[test])
}

// queries returns the number of queries test ran on connections and on
// prepared statements.
func (t *tracker) queries(test string) (onConn, onStmt int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connRun[test], t.stmtRun[test]
}

type trackedDriver struct {
	base *sqlite3.SQLiteDriver
}

func (d *trackedDriver) Open(dsn string) (driver.Conn, error) {
	_, rawQuery, _ := strings.Cut(dsn, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("cannot parse DSN %q: %w", dsn, err)
	}
	test := params.Get(testNameParam)
	if test == "" {
		panic("internal error: tracked driver DSN has no " + testNameParam)
	}
	conn, err := d.base.Open(dsn)
	if err != nil {
		return nil, err
	}
	sc, ok := conn.(*sqlite3.SQLiteConn)
	if !ok {
		panic(fmt.Sprintf("internal error: base driver is not SQLite, got %T", conn))
	}
	return &trackedConn{SQLiteConn: sc, test: test}, nil
}

type trackedConn struct {
	*sqlite3.SQLiteConn
	test string
}

func (c *trackedConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *trackedConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	s, err := c.SQLiteConn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	ss, ok := s.(*sqlite3.SQLiteStmt)
	if !ok {
		panic(fmt.Sprintf("internal error: base driver is not SQLite, got %T", s))
	}
	ts := &trackedStmt{SQLiteStmt: ss, test: c.test, id: atomic.AddUint64(&trackedStmtSeq, 1)}
	tracked.prepared(c.test, ts.id, query)
	return ts, nil
}

func (c *trackedConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	rows, err := c.SQLiteConn.QueryContext(ctx, query, args)
	tracked.ran(tracked.connRun, c.test, err)
	return rows, err
}

func (c *trackedConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	res, err := c.SQLiteConn.ExecContext(ctx, query, args)
	tracked.ran(tracked.connRun, c.test, err)
	return res, err
}

type trackedStmt struct {
	*sqlite3.SQLiteStmt
	test string
	id   uint64
}

func (s *trackedStmt) Close() error {
	tracked.closedStmt(s.test, s.id)
	return s.SQLiteStmt.Close()
}

func (s *trackedStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	rows, err := s.SQLiteStmt.QueryContext(ctx, args)
	tracked.ran(tracked.stmtRun, s.test, err)
	return rows, err
}

func (s *trackedStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	res, err := s.SQLiteStmt.ExecContext(ctx, args)
	tracked.ran(tracked.stmtRun, s.test, err)
	return res, err
}
