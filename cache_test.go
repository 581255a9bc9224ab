// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmatch_test

import (
	"context"
	"database/sql"

	. "gopkg.in/check.v1"

	"github.com/canonical/sqlmatch"
)

// CacheSuite checks that the driver statements prepared for a Statement are
// reused while it is alive and closed once the Statement or the DB is
// garbage collected. The tracking driver records, per test, what reached
// SQLite.
type CacheSuite struct{}

var _ = Suite(&CacheSuite{})

type cacheItem struct {
	ID   int
	Name string
}

func itemByID(id int) *sqlmatch.QueryBuilder {
	return sqlmatch.From(cacheItem{}).Where(sqlmatch.Matching("ID", sqlmatch.Eq(id)))
}

func itemsIn(ids ...int) *sqlmatch.QueryBuilder {
	return sqlmatch.From(cacheItem{}).
		Where(sqlmatch.Matching("ID", sqlmatch.In(ids))).
		OrderBy(sqlmatch.Asc(sqlmatch.Prop("ID")))
}

func (s *CacheSuite) TearDownTest(c *C) {
	sqlmatch.CollectGarbage()
	stmts, dbs := sqlmatch.CacheSize()
	c.Check(stmts, Equals, 0, Commentf("statements left in the cache"))
	c.Check(dbs, Equals, 0, Commentf("databases left in the cache"))
	opened, closed := sqlmatch.TrackedStmts(c.TestName())
	c.Check(opened, Equals, closed, Commentf("driver statements left open"))
}

func (s *CacheSuite) TearDownSuite(_ *C) {
	sqlmatch.ResetTracker()
}

func (s *CacheSuite) openDB(c *C, opts ...sqlmatch.Option) *sqlmatch.DB {
	driverName, dsn := sqlmatch.TrackedDSN(c.TestName())
	db, err := sql.Open(driverName, dsn)
	c.Assert(err, IsNil)
	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS cacheItem (ID integer, Name text);
DELETE FROM cacheItem;
INSERT INTO cacheItem VALUES (1, 'one'), (2, 'two'), (3, 'three'), (4, 'four'), (5, 'five');`)
	c.Assert(err, IsNil)
	return sqlmatch.NewDB(db, opts...)
}

func (s *CacheSuite) TestStatementReusedUntilCollected(c *C) {
	db := s.openDB(c)

	var stmtID uint64
	// The statement only leaves the cache once it is unreachable, so it is
	// confined to this function.
	func() {
		stmt, err := itemByID(1).Prepare()
		c.Assert(err, IsNil)
		stmtID = stmt.CacheID()

		c.Assert(db.Query(nil, stmt).Run(), IsNil)
		c.Check(sqlmatch.CacheHolds(db.CacheID(), stmtID), Equals, true)
		c.Check(sqlmatch.PreparedOn(db.CacheID()), Equals, 1)

		c.Assert(db.Query(nil, stmt).Run(), IsNil)
		c.Check(sqlmatch.PreparedOn(db.CacheID()), Equals, 1)
		opened, _ := sqlmatch.TrackedStmts(c.TestName())
		c.Check(opened, Equals, 1)
	}()

	sqlmatch.CollectGarbage()
	c.Check(sqlmatch.CacheKnowsStmt(stmtID), Equals, false)
	c.Check(sqlmatch.PreparedOn(db.CacheID()), Equals, 0)
}

func (s *CacheSuite) TestDriverSeesSubstitutedSQL(c *C) {
	db := s.openDB(c)

	stmt, err := itemByID(2).Prepare()
	c.Assert(err, IsNil)
	c.Check(stmt.SQL(), Equals, "SELECT cacheitem.* FROM cacheItem cacheitem WHERE cacheitem.ID = ?0")

	var item cacheItem
	c.Assert(db.Query(context.Background(), stmt).Get(&item), IsNil)
	c.Check(item, Equals, cacheItem{2, "two"})

	c.Check(sqlmatch.TrackedSQL(c.TestName()), DeepEquals, []string{
		"SELECT cacheitem.* FROM cacheItem cacheitem WHERE cacheitem.ID = ?1",
	})
}

func (s *CacheSuite) TestCollectedDBDropsItsStatements(c *C) {
	stmt, err := itemByID(1).Prepare()
	c.Assert(err, IsNil)

	var dbID uint64
	func() {
		db := s.openDB(c)
		dbID = db.CacheID()
		c.Assert(db.Query(nil, stmt).Run(), IsNil)
		c.Check(sqlmatch.CacheHolds(dbID, stmt.CacheID()), Equals, true)
	}()

	sqlmatch.CollectGarbage()
	c.Check(sqlmatch.CacheKnowsDB(dbID), Equals, false)
	opened, closed := sqlmatch.TrackedStmts(c.TestName())
	c.Check(closed, Equals, opened)

	// The statement outlives the database and prepares again on a new one.
	db := s.openDB(c)
	c.Assert(db.Query(nil, stmt).Run(), IsNil)
	c.Check(sqlmatch.CacheHolds(db.CacheID(), stmt.CacheID()), Equals, true)
	c.Check(sqlmatch.PreparedOn(db.CacheID()), Equals, 1)
	opened, _ = sqlmatch.TrackedStmts(c.TestName())
	c.Check(opened, Equals, 2)
}

func (s *CacheSuite) TestStatementOnTwoDatabases(c *C) {
	stmt, err := itemByID(3).Prepare()
	c.Assert(err, IsNil)

	first := s.openDB(c)
	second := s.openDB(c)
	c.Assert(first.Query(nil, stmt).Run(), IsNil)
	c.Assert(second.Query(nil, stmt).Run(), IsNil)

	c.Check(sqlmatch.CacheHolds(first.CacheID(), stmt.CacheID()), Equals, true)
	c.Check(sqlmatch.CacheHolds(second.CacheID(), stmt.CacheID()), Equals, true)
	opened, _ := sqlmatch.TrackedStmts(c.TestName())
	c.Check(opened, Equals, 2)
}

func (s *CacheSuite) TestTransactionReusesPreparedStatement(c *C) {
	db := s.openDB(c)

	stmt, err := itemByID(1).Prepare()
	c.Assert(err, IsNil)

	tx, err := db.Begin(context.Background(), nil)
	c.Assert(err, IsNil)

	// A transaction never prepares a statement itself, so before the DB has
	// prepared one the query runs on the connection. The table set up in
	// openDB was the first query on the connection.
	c.Assert(tx.Query(context.Background(), stmt).Run(), IsNil)
	c.Check(sqlmatch.PreparedOn(db.CacheID()), Equals, 0)
	s.checkQueries(c, 2, 0)

	c.Assert(db.Query(context.Background(), stmt).Run(), IsNil)
	c.Check(sqlmatch.PreparedOn(db.CacheID()), Equals, 1)
	s.checkQueries(c, 2, 1)

	// Now the transaction runs the statement prepared on the DB.
	c.Assert(tx.Query(context.Background(), stmt).Run(), IsNil)
	s.checkQueries(c, 2, 2)

	c.Assert(tx.Commit(), IsNil)
}

// TestQueryOutlivesStatement checks that a pending query keeps its driver
// statement open after everything else is collected.
func (s *CacheSuite) TestQueryOutlivesStatement(c *C) {
	var q *sqlmatch.Query
	func() {
		db := s.openDB(c)
		stmt, err := itemByID(1).Prepare()
		c.Assert(err, IsNil)
		q = db.Query(nil, stmt)
	}()

	sqlmatch.CollectGarbage()
	c.Assert(q.Run(), IsNil)
}

func (s *CacheSuite) TestTXQueryOutlivesStatement(c *C) {
	var q *sqlmatch.Query
	func() {
		db := s.openDB(c)
		stmt, err := itemByID(1).Prepare()
		c.Assert(err, IsNil)
		tx, err := db.Begin(nil, nil)
		c.Assert(err, IsNil)
		q = tx.Query(nil, stmt)
	}()

	sqlmatch.CollectGarbage()
	c.Assert(q.Run(), IsNil)
}

// TestSlicesOfDifferentLengths checks that each IN list length gets its own
// driver statement with one placeholder per element.
func (s *CacheSuite) TestSlicesOfDifferentLengths(c *C) {
	db := s.openDB(c)

	odd, err := itemsIn(1, 3, 5).Prepare()
	c.Assert(err, IsNil)
	even, err := itemsIn(2, 4).Prepare()
	c.Assert(err, IsNil)

	var items []cacheItem
	c.Assert(db.Query(context.Background(), odd).GetAll(&items), IsNil)
	c.Check(items, DeepEquals, []cacheItem{{1, "one"}, {3, "three"}, {5, "five"}})

	items = nil
	c.Assert(db.Query(context.Background(), even).GetAll(&items), IsNil)
	c.Check(items, DeepEquals, []cacheItem{{2, "two"}, {4, "four"}})

	c.Check(sqlmatch.PreparedOn(db.CacheID()), Equals, 2)
	texts := sqlmatch.TrackedSQL(c.TestName())
	c.Check(texts, HasLen, 2)
	for _, text := range texts {
		c.Check(text, Matches, `SELECT cacheitem\.\* FROM cacheItem cacheitem WHERE cacheitem\.ID IN \((\?1, \?2, \?3|\?1, \?2)\) ORDER BY cacheitem\.ID ASC`)
	}

	items = nil
	c.Assert(db.Query(context.Background(), odd).GetAll(&items), IsNil)
	opened, _ := sqlmatch.TrackedStmts(c.TestName())
	c.Check(opened, Equals, 2)
}

func (s *CacheSuite) checkQueries(c *C, onConn, onStmt int) {
	gotConn, gotStmt := sqlmatch.TrackedQueries(c.TestName())
	c.Check(gotConn, Equals, onConn, Commentf("queries on the connection"))
	c.Check(gotStmt, Equals, onStmt, Commentf("queries on prepared statements"))
}
