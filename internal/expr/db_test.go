package expr_test

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	. "gopkg.in/check.v1"

	"github.com/canonical/sqlmatch/internal/expr"
)

type DBSuite struct{}

var _ = Suite(&DBSuite{})

func setupDB() (*sql.DB, error) {
	return sql.Open("sqlite3", ":memory:")
}

func createExampleDB(createTables string, inserts []string) (*sql.DB, error) {
	db, err := setupDB()
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(createTables)
	if err != nil {
		return nil, err
	}
	for _, insert := range inserts {
		_, err := db.Exec(insert)
		if err != nil {
			return nil, err
		}
	}

	return db, nil
}

func testClassDB(c *C) *sql.DB {
	db, err := createExampleDB(`CREATE TABLE TestClass (foo integer, bar text);`, []string{
		"INSERT INTO TestClass VALUES (5, 'Hello');",
		"INSERT INTO TestClass VALUES (3, 'Bye');",
	})
	c.Assert(err, IsNil)
	return db
}

type testRow struct {
	foo int
	bar string
}

func runRendered(c *C, db *sql.DB, q *expr.Query) []testRow {
	r, err := q.Build(expr.SQLite)
	c.Assert(err, IsNil)
	text, args, err := r.DriverSQL()
	c.Assert(err, IsNil)

	rows, err := db.Query(text, args...)
	c.Assert(err, IsNil)
	defer rows.Close()
	var out []testRow
	for rows.Next() {
		var row testRow
		c.Assert(rows.Scan(&row.foo, &row.bar), IsNil)
		out = append(out, row)
	}
	c.Assert(rows.Err(), IsNil)
	return out
}

func (s *DBSuite) TestScenarios(c *C) {
	db := testClassDB(c)
	defer db.Close()

	tests := []struct {
		summary  string
		query    *expr.Query
		expected []testRow
	}{{
		summary:  "single equality",
		query:    expr.NewQuery(testClass, naming{}).Where(expr.Matching("bar", expr.Equal("Hello"))),
		expected: []testRow{{5, "Hello"}},
	}, {
		summary:  "merged conjunction",
		query:    expr.NewQuery(testClass, naming{}).Where(expr.Matching("foo", expr.Less(4)).AndMatching("bar", expr.Equal("Bye"))),
		expected: []testRow{{3, "Bye"}},
	}, {
		summary:  "disjunction",
		query:    expr.NewQuery(testClass, naming{}).Where(expr.Matching("bar", expr.Equal("Hello").Or(expr.Equal("Bye")))).OrderBy(expr.NewOrderItem(expr.Binding{Property: "foo"}, expr.Ascending)),
		expected: []testRow{{3, "Bye"}, {5, "Hello"}},
	}, {
		summary:  "in expands to every element",
		query:    expr.NewQuery(testClass, naming{}).Where(expr.Matching("foo", expr.In([]int{1, 3, 4}))),
		expected: []testRow{{3, "Bye"}},
	}, {
		summary:  "negated between",
		query:    expr.NewQuery(testClass, naming{}).Where(expr.Matching("foo", expr.Not(expr.Between(4, 6)))),
		expected: []testRow{{3, "Bye"}},
	}, {
		summary:  "no match",
		query:    expr.NewQuery(testClass, naming{}).Where(expr.Matching("bar", expr.Like("Z%"))),
		expected: nil,
	}}
	for i, t := range tests {
		c.Logf("test %d: %s", i, t.summary)
		c.Check(runRendered(c, db, t.query), DeepEquals, t.expected)
	}
}
