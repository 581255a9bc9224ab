/*
Package sqlmatch composes SQL queries from Go expressions and runs them on
SQL databases.

Queries are built from small predicate expressions rather than from query
text. The referent (table) of a query is given by a Go struct and the
property (column) of each predicate by a struct field name, or by a pointer to
a field of a probe value. The composed query is rendered to SQL with
positional placeholders and its bound values, and can be run on any database
supported by database/sql.

# Basics

Given the struct:

	type Person struct {
		ID   int
		Name string
		Team string
	}

the query

	stmt, err := sqlmatch.From(Person{}).
		Where(sqlmatch.Matching("Team", sqlmatch.Eq("engineering"))).
		Where(sqlmatch.Matching("Name", sqlmatch.Like("A%").Or(sqlmatch.Like("B%")))).
		Prepare()

renders as

	SELECT person.* FROM Person person WHERE person.Team = ?0 AND (person.Name LIKE ?1 OR person.Name LIKE ?2)

The alias of a table is always its lower-cased name.

# Composition

Leaf predicates are created with [Eq], [Like], [Gt], [Lt], [In], [Between],
[IsNull] and [JoinOn] and combined with the And and Or methods, [Not] and
[Closure]. A predicate that is composed into another is consumed and must not
be used again; doing so is reported as [ErrConsumed] when the query is
prepared.

Predicates do not need to know their property when they are created. The
property given to [Matching] is handed to every term of the predicate that has
none, so

	sqlmatch.Matching("Name", sqlmatch.Eq("Fred").Or(sqlmatch.Eq("Mary")))

compares both values against the Name column. A term that is given a property
keeps it.

Composite predicates grafted with And or Or are parenthesised, so that mixing
connectives keeps the precedence of the expression as it was written. [Not]
negates every comparison in a predicate and leaves the connectives alone.

# Probes

Rather than naming properties with strings, a probe value can be used:

	reg := sqlmatch.NewRegistry()
	p := sqlmatch.MustProbe[Person](reg)
	name := sqlmatch.MustField(reg, &p.Name)

	stmt, err := sqlmatch.From(p).Where(sqlmatch.On(name, sqlmatch.Eq("Fred"))).Prepare()

# Naming

By default tables and columns are named after the struct type and its fields.
[WithNaming] and [TagNaming] name tables by a TableName method and columns by
the "db" tag of the field instead.

# Running queries

A [DB] wraps a *sql.DB together with the [Dialect] of its driver. The dialect
only changes the placeholders of the rendered SQL. Results are read with
[Query.Get], [Query.GetAll] or [Query.Iter]. When the whole referent is
selected, rows are read into a pointer to the struct; otherwise each selected
item is read into its own output pointer.
*/
package sqlmatch
