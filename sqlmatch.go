// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmatch

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/canonical/sqlmatch/internal/expr"
	"github.com/canonical/sqlmatch/internal/typeinfo"
)

var ErrNoRows = sql.ErrNoRows
var ErrTXDone = sql.ErrTxDone

// Statement represents a rendered query ready to be run on a database. A
// statement can be used with any [DB].
type Statement struct {
	// cacheID is used to look up the driver prepared statements associated with
	// this Statement.
	cacheID uint64
	// rendered holds the query text with ?N placeholders and the bound
	// values.
	rendered *expr.Rendered
	// naming is used to match result columns to struct fields.
	naming Naming
}

// SQL returns the rendered query text with ?N placeholders.
func (s *Statement) SQL() string {
	return s.rendered.Text
}

// Params returns the values bound to the placeholders, in order.
func (s *Statement) Params() []any {
	return s.rendered.Bindings.Values()
}

// wholeReferent reports whether the statement selects exactly the whole
// referent, so that rows are read into a struct.
func (s *Statement) wholeReferent() bool {
	items := s.rendered.Items
	return len(items) == 1 && items[0].Whole && items[0].Aggregate == expr.NoAggregate
}

type DB struct {
	// cacheID is used to look up the cached driver prepared statements prepared
	// on this database.
	cacheID uint64
	// sqldb is the underlying database/sql DB object.
	sqldb   *sql.DB
	dialect Dialect
	logger  zerolog.Logger
}

// Option configures a [DB].
type Option func(*DB)

// WithDialect sets the placeholder dialect of the database driver. The
// default is [SQLite].
func WithDialect(d Dialect) Option {
	return func(db *DB) {
		db.dialect = d
	}
}

// WithLogger sets the logger queries are logged to at debug level. Nothing is
// logged by default.
func WithLogger(logger zerolog.Logger) Option {
	return func(db *DB) {
		db.logger = logger
	}
}

// NewDB creates a new [DB] from a [sql.DB].
func NewDB(sqldb *sql.DB, opts ...Option) *DB {
	if sqldb == nil {
		return nil
	}
	db := prepared.database(sqldb)
	db.dialect = expr.SQLite
	db.logger = zerolog.Nop()
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// PlainDB returns the underlying database object.
func (db *DB) PlainDB() *sql.DB {
	return db.sqldb
}

// Dialect returns the dialect of the database.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Query represents a query on a database. It is designed to be run once.
type Query struct {
	// run executes the Query against the DB or the TX.
	run  func(context.Context) (*sql.Rows, error)
	ctx  context.Context
	err  error
	stmt *Statement
	sql  string
}

// Iterator is used to iterate over the results of the query.
type Iterator struct {
	stmt    *Statement
	sql     string
	rows    *sql.Rows
	cols    []string
	err     error
	started bool
}

// driverSQL rewrites the statement for the dialect of db and logs it.
func (db *DB) driverSQL(s *Statement) (string, []any, error) {
	if s == nil {
		return "", nil, fmt.Errorf("cannot run nil statement")
	}
	text, args, err := db.dialect.Substitute(s.rendered.Text, s.rendered.Bindings)
	if err != nil {
		return "", nil, err
	}
	db.logger.Debug().Str("dialect", db.dialect.Name()).Str("sql", text).Int("args", len(args)).Msg("query")
	return text, args, nil
}

// Query builds a new query from a context and a [Statement]. The query is
// run on the database when one of [Query.Iter], [Query.Run], [Query.Get] or
// [Query.GetAll] is executed.
func (db *DB) Query(ctx context.Context, s *Statement) *Query {
	if ctx == nil {
		ctx = context.Background()
	}

	text, args, err := db.driverSQL(s)
	if err != nil {
		return &Query{ctx: ctx, err: err}
	}

	run := func(innerCtx context.Context) (*sql.Rows, error) {
		sqlstmt, err := prepared.prepare(innerCtx, db.cacheID, db.sqldb, s, text)
		if err != nil {
			return nil, err
		}
		return sqlstmt.QueryContext(innerCtx, args...)
	}

	return &Query{stmt: s, sql: text, run: run, ctx: ctx}
}

// Run runs the query and disregards any results.
func (q *Query) Run() error {
	if q.err != nil {
		return q.err
	}
	return q.Iter().Close()
}

// Get runs the query and decodes the first row returned into the provided
// output arguments. It returns [ErrNoRows] if no results were found.
//
// A pointer to an empty [Outcome] struct may be provided as the first output
// variable to fill it with information about query execution.
func (q *Query) Get(outputArgs ...any) error {
	if q.err != nil {
		return q.err
	}
	var outcome *Outcome
	if len(outputArgs) > 0 {
		if oc, ok := outputArgs[0].(*Outcome); ok {
			outcome = oc
			outputArgs = outputArgs[1:]
		}
	}

	var err error
	iter := q.Iter()
	if outcome != nil {
		err = iter.Get(outcome)
	}
	if err == nil && !iter.Next() {
		err = iter.Close()
		if err == nil {
			err = ErrNoRows
		}
		return err
	}
	if err == nil {
		err = iter.Get(outputArgs...)
	}
	if cerr := iter.Close(); err == nil {
		err = cerr
	}
	return err
}

// Iter returns an [Iterator] to iterate through the results row by row.
// [Iterator.Close] must be run once iteration is finished.
func (q *Query) Iter() *Iterator {
	if q.err != nil {
		return &Iterator{err: q.err}
	}

	var cols []string
	rows, err := q.run(q.ctx)
	if err == nil {
		cols, err = rows.Columns()
	}
	if err != nil {
		if rows != nil {
			rows.Close()
		}
		return &Iterator{stmt: q.stmt, err: err}
	}

	return &Iterator{stmt: q.stmt, sql: q.sql, rows: rows, cols: cols}
}

// Next prepares the next row for [Iterator.Get]. If an error occurs during
// iteration it will be returned with [Iterator.Close].
func (iter *Iterator) Next() bool {
	iter.started = true
	if iter.err != nil || iter.rows == nil {
		return false
	}
	return iter.rows.Next()
}

// Get decodes the result from the previous [Iterator.Next] call into the
// provided output arguments. When the statement selects the whole referent a
// single pointer to the referent struct is expected, otherwise one pointer per
// selected item.
//
// Before the first call of [Iterator.Next] a pointer to an empty [Outcome]
// struct may be passed to Get as the only argument to fill it information
// about query execution.
func (iter *Iterator) Get(outputArgs ...any) (err error) {
	if iter.err != nil {
		return iter.err
	}
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot get result: %s", err)
		}
	}()

	if !iter.started {
		if len(outputArgs) == 1 {
			if oc, ok := outputArgs[0].(*Outcome); ok {
				oc.sql = iter.sql
				oc.columns = iter.cols
				return nil
			}
		}
		return fmt.Errorf("cannot call Get before Next unless getting outcome")
	}

	if iter.rows == nil {
		return fmt.Errorf("iteration ended")
	}

	ptrs, proxies, err := iter.scanTargets(outputArgs)
	if err != nil {
		return err
	}
	if err := iter.rows.Scan(ptrs...); err != nil {
		return err
	}
	for _, p := range proxies {
		p.OnSuccess()
	}
	return nil
}

func (iter *Iterator) scanTargets(outputArgs []any) ([]any, []*typeinfo.ScanProxy, error) {
	if iter.stmt.wholeReferent() {
		if len(outputArgs) != 1 {
			return nil, nil, fmt.Errorf("need one pointer to %s, got %d output values", iter.stmt.rendered.Referent.Name(), len(outputArgs))
		}
		v := reflect.ValueOf(outputArgs[0])
		if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
			return nil, nil, fmt.Errorf("need pointer to struct, got %T", outputArgs[0])
		}
		info, err := typeinfo.TypeInfo(v.Elem().Type())
		if err != nil {
			return nil, nil, err
		}
		if expr.Referent(info) != iter.stmt.rendered.Referent {
			return nil, nil, fmt.Errorf("cannot read %s into %s", iter.stmt.rendered.Referent.Name(), info.Name())
		}
		return typeinfo.StructTargets(v, iter.stmt.naming, iter.cols)
	}
	if len(outputArgs) != len(iter.cols) {
		return nil, nil, fmt.Errorf("need %d output values, got %d", len(iter.cols), len(outputArgs))
	}
	return typeinfo.OutputTargets(outputArgs)
}

// Close finishes the iteration and returns any errors encountered. Close can
// be called multiple times on the [Iterator] and the same error will be
// returned.
func (iter *Iterator) Close() error {
	iter.started = true
	if iter.rows == nil {
		return iter.err
	}
	err := iter.rows.Close()
	if rerr := iter.rows.Err(); err == nil {
		err = rerr
	}
	iter.rows = nil
	if iter.err != nil {
		return iter.err
	}
	iter.err = err
	return err
}

// Outcome holds metadata about executed queries, and can be provided as the
// first output argument to any of the Get methods to populate it with
// information about the query execution.
type Outcome struct {
	sql     string
	columns []string
}

// SQL returns the query text sent to the database driver.
func (o *Outcome) SQL() string {
	return o.sql
}

// Columns returns the names of the result columns.
func (o *Outcome) Columns() []string {
	return o.columns
}

// GetAll iterates over the query and scans all rows into the provided slices.
// When the statement selects the whole referent sliceArgs must contain one
// pointer to a slice of the referent struct (or of pointers to it); otherwise
// one pointer to a slice per selected item. A pointer to an empty [Outcome]
// struct may be provided as the first output variable to get information
// about query execution.
//
// [ErrNoRows] will be returned if no rows are found.
func (q *Query) GetAll(sliceArgs ...any) (err error) {
	if q.err != nil {
		return q.err
	}

	var outcome *Outcome
	if len(sliceArgs) > 0 {
		if oc, ok := sliceArgs[0].(*Outcome); ok {
			outcome = oc
			sliceArgs = sliceArgs[1:]
		}
	}
	// Check slice inputs are valid using reflection.
	var slicePtrVals = []reflect.Value{}
	var sliceVals = []reflect.Value{}
	for _, ptr := range sliceArgs {
		ptrVal := reflect.ValueOf(ptr)
		if ptrVal.Kind() != reflect.Pointer {
			return fmt.Errorf("need pointer to slice, got %s", ptrVal.Kind())
		}
		if ptrVal.IsNil() {
			return fmt.Errorf("need pointer to slice, got nil")
		}
		slicePtrVals = append(slicePtrVals, ptrVal)
		sliceVal := ptrVal.Elem()
		if sliceVal.Kind() != reflect.Slice {
			return fmt.Errorf("need pointer to slice, got pointer to %s", sliceVal.Kind())
		}
		sliceVals = append(sliceVals, sliceVal)
	}

	// Iterate over the query results.
	rowsReturned := false
	iter := q.Iter()
	if outcome != nil {
		if err := iter.Get(outcome); err != nil {
			iter.Close()
			return err
		}
	}
	for iter.Next() {
		rowsReturned = true
		var outputArgs = []any{}
		for _, sliceVal := range sliceVals {
			elemType := sliceVal.Type().Elem()
			if elemType.Kind() == reflect.Pointer {
				elemType = elemType.Elem()
			}
			outputArgs = append(outputArgs, reflect.New(elemType).Interface())
		}
		if err := iter.Get(outputArgs...); err != nil {
			iter.Close()
			return err
		}
		for i, outputArg := range outputArgs {
			if sliceVals[i].Type().Elem().Kind() == reflect.Pointer {
				sliceVals[i] = reflect.Append(sliceVals[i], reflect.ValueOf(outputArg))
			} else {
				sliceVals[i] = reflect.Append(sliceVals[i], reflect.ValueOf(outputArg).Elem())
			}
		}
	}
	err = iter.Close()
	if err != nil {
		return err
	} else if !rowsReturned {
		return ErrNoRows
	}

	for i, ptrVal := range slicePtrVals {
		ptrVal.Elem().Set(sliceVals[i])
	}

	return nil
}

// TX represents a transaction on the database.
type TX struct {
	sqltx *sql.Tx
	db    *DB
	done  int32
}

func (tx *TX) isDone() bool {
	return atomic.LoadInt32(&tx.done) == 1
}

func (tx *TX) setDone() error {
	if !atomic.CompareAndSwapInt32(&tx.done, 0, 1) {
		return ErrTXDone
	}
	return nil
}

// Begin starts a transaction. A transaction must be ended
// with a [TX.Commit] or [TX.Rollback].
func (db *DB) Begin(ctx context.Context, opts *TXOptions) (*TX, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sqltx, err := db.sqldb.BeginTx(ctx, opts.plainTXOptions())
	if err != nil {
		return nil, err
	}
	return &TX{sqltx: sqltx, db: db}, nil
}

// PlainTX returns the underlying database/sql transaction.
func (tx *TX) PlainTX() *sql.Tx {
	return tx.sqltx
}

// Commit commits the transaction.
func (tx *TX) Commit() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Commit()
	}
	return err
}

// Rollback aborts the transaction.
func (tx *TX) Rollback() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Rollback()
	}
	return err
}

// TXOptions holds the transaction options to be used in [DB.Begin].
type TXOptions struct {
	// Isolation is the transaction isolation level.
	// If zero, the driver or database's default level is used.
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

func (txopts *TXOptions) plainTXOptions() *sql.TxOptions {
	if txopts == nil {
		return nil
	}
	return &sql.TxOptions{Isolation: txopts.Isolation, ReadOnly: txopts.ReadOnly}
}

// Query builds a new query from a context and a [Statement]. The query is
// run on the database when one of [Query.Iter], [Query.Run], [Query.Get] or
// [Query.GetAll] is executed.
func (tx *TX) Query(ctx context.Context, s *Statement) *Query {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx.isDone() {
		return &Query{ctx: ctx, err: ErrTXDone}
	}

	text, args, err := tx.db.driverSQL(s)
	if err != nil {
		return &Query{ctx: ctx, err: err}
	}

	run := func(innerCtx context.Context) (*sql.Rows, error) {
		sqlstmt, ok := prepared.lookup(tx.db.cacheID, s)
		if ok {
			// Register the prepared statement on the transaction. Note that
			// this does not re-prepare the statement on the driver.
			// The txstmt is closed by database/sql when the transaction is
			// commited or rolled back.
			txstmt := tx.sqltx.Stmt(sqlstmt)
			return txstmt.QueryContext(innerCtx, args...)
		}
		return tx.sqltx.QueryContext(innerCtx, text, args...)
	}

	return &Query{stmt: s, sql: text, ctx: ctx, run: run}
}
