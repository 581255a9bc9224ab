// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmatch

import (
	"fmt"

	"github.com/canonical/sqlmatch/internal/capture"
	"github.com/canonical/sqlmatch/internal/expr"
	"github.com/canonical/sqlmatch/internal/typeinfo"
)

// Expr is a composable expression: a predicate, or an item of a SELECT,
// GROUP BY or ORDER BY list.
type Expr = expr.Builder

// Binding is the referent and property an expression applies to.
type Binding = expr.Binding

// Naming maps referents and properties to tables and columns.
type Naming = expr.Naming

// Dialect rewrites placeholders into the syntax of a database driver.
type Dialect = expr.Dialect

// Aggregate is a function applied to a column.
type Aggregate = expr.Aggregate

// Rendered is a rendered query along with its bound values.
type Rendered = expr.Rendered

var (
	Canonical = expr.Canonical
	SQLite    = expr.SQLite
	Postgres  = expr.Postgres
)

var (
	AggCount = expr.Count
	AggSum   = expr.Sum
	AggAvg   = expr.Avg
	AggMin   = expr.Min
	AggMax   = expr.Max
)

var (
	ErrConsumed     = expr.ErrConsumed
	ErrUnbound      = expr.ErrUnbound
	ErrAlreadyBuilt = expr.ErrAlreadyBuilt
)

var (
	// IdentityNaming names tables after struct types and columns after
	// fields. It is the default.
	IdentityNaming Naming = typeinfo.IdentityNaming{}
	// TagNaming names tables with the TableName method of the type and
	// columns with the "db" tag of the field.
	TagNaming Naming = typeinfo.TagNaming{}
)

// DialectByName returns the dialect called name.
func DialectByName(name string) (Dialect, error) {
	return expr.DialectByName(name)
}

// Prop returns a binding to the named property of the referent of the query
// it is used in.
func Prop(name string) Binding {
	return Binding{Property: name}
}

// Eq matches values equal to v. A nil v matches NULL.
func Eq(v any) *Expr { return expr.Equal(v) }

// IsNull matches NULL.
func IsNull() *Expr { return expr.Equal(nil) }

// Like matches values against a LIKE pattern.
func Like(pattern string) *Expr { return expr.Like(pattern) }

// Gt matches values greater than v.
func Gt(v any) *Expr { return expr.Greater(v) }

// Lt matches values less than v.
func Lt(v any) *Expr { return expr.Less(v) }

// In matches values in the slice or array values.
func In(values any) *Expr { return expr.In(values) }

// Between matches values between lo and hi inclusive.
func Between(lo, hi any) *Expr { return expr.Between(lo, hi) }

// JoinOn matches rows whose property equals the property other of another
// referent.
func JoinOn(other Binding) *Expr { return expr.Join(other) }

// Not negates every comparison of e.
func Not(e *Expr) *Expr { return expr.Not(e) }

// Closure parenthesises e.
func Closure(e *Expr) *Expr { return expr.Closure(e) }

// Matching binds the terms of e that have no property to the named property.
func Matching(property string, e *Expr) *Expr { return expr.Matching(property, e) }

// On binds the terms of e that have no referent or property to b.
func On(b Binding, e *Expr) *Expr { return expr.MatchingBinding(b, e) }

// Aggregated binds e to b and applies agg to its column. It is used for
// HAVING predicates.
func Aggregated(agg Aggregate, b Binding, e *Expr) *Expr {
	return On(b, e).Aggregate(agg)
}

// All selects the whole referent.
func All() *Expr { return expr.NewSelectItem(Binding{}, expr.NoAggregate) }

// Col selects a property.
func Col(b Binding) *Expr { return expr.NewSelectItem(b, expr.NoAggregate) }

// Count selects the number of rows, or of non-NULL values of b when it names
// a property.
func Count(b Binding) *Expr { return expr.NewSelectItem(b, expr.Count) }

// Sum selects the sum of a property.
func Sum(b Binding) *Expr { return expr.NewSelectItem(b, expr.Sum) }

// Avg selects the average of a property.
func Avg(b Binding) *Expr { return expr.NewSelectItem(b, expr.Avg) }

// Min selects the minimum of a property.
func Min(b Binding) *Expr { return expr.NewSelectItem(b, expr.Min) }

// Max selects the maximum of a property.
func Max(b Binding) *Expr { return expr.NewSelectItem(b, expr.Max) }

// Group groups by a property.
func Group(b Binding) *Expr { return expr.NewGroupItem(b) }

// Asc orders by a property, ascending.
func Asc(b Binding) *Expr { return expr.NewOrderItem(b, expr.Ascending) }

// Desc orders by a property, descending.
func Desc(b Binding) *Expr { return expr.NewOrderItem(b, expr.Descending) }

// Registry hands out probe values.
type Registry = capture.Registry

// NewRegistry returns an empty probe registry.
func NewRegistry() *Registry {
	return capture.NewRegistry()
}

// Probe returns the probe value for the struct type T.
func Probe[T any](reg *Registry) (*T, error) {
	return capture.Probe[T](reg)
}

// MustProbe is like Probe but panics on error.
func MustProbe[T any](reg *Registry) *T {
	return capture.MustProbe[T](reg)
}

// Field returns the binding of the probe field fieldPtr points to.
func Field(reg *Registry, fieldPtr any) (Binding, error) {
	return reg.Capture(fieldPtr)
}

// MustField is like Field but panics on error.
func MustField(reg *Registry, fieldPtr any) Binding {
	b, err := reg.Capture(fieldPtr)
	if err != nil {
		panic(err)
	}
	return b
}

// QueryBuilder composes the clauses of a query over one referent. Usage
// errors are kept until the query is rendered or prepared.
type QueryBuilder struct {
	q      *expr.Query
	naming Naming
	err    error
}

// QueryOption configures a QueryBuilder.
type QueryOption func(*QueryBuilder)

// WithNaming sets the naming used to render the query.
func WithNaming(n Naming) QueryOption {
	return func(qb *QueryBuilder) {
		qb.naming = n
	}
}

// From starts a query over the struct type of sample, which may be a value,
// a pointer or a probe.
func From(sample any, opts ...QueryOption) *QueryBuilder {
	qb := &QueryBuilder{naming: IdentityNaming}
	for _, opt := range opts {
		opt(qb)
	}
	info, err := typeinfo.GetTypeInfo(sample)
	if err != nil {
		qb.err = fmt.Errorf("cannot use %T as referent: %s", sample, err)
		return qb
	}
	qb.q = expr.NewQuery(info, qb.naming)
	return qb
}

// Select sets the items of the SELECT list. Without items the whole
// referent is selected.
func (qb *QueryBuilder) Select(items ...*Expr) *QueryBuilder {
	if qb.err == nil {
		qb.q.Select(items...)
	}
	return qb
}

// Where adds a predicate to the WHERE clause, joined with AND.
func (qb *QueryBuilder) Where(pred *Expr) *QueryBuilder {
	if qb.err == nil {
		qb.q.Where(pred)
	}
	return qb
}

// GroupBy adds items to the GROUP BY list.
func (qb *QueryBuilder) GroupBy(items ...*Expr) *QueryBuilder {
	if qb.err == nil {
		qb.q.GroupBy(items...)
	}
	return qb
}

// Having adds a predicate to the HAVING clause, joined with AND.
func (qb *QueryBuilder) Having(pred *Expr) *QueryBuilder {
	if qb.err == nil {
		qb.q.Having(pred)
	}
	return qb
}

// OrderBy adds items to the ORDER BY list.
func (qb *QueryBuilder) OrderBy(items ...*Expr) *QueryBuilder {
	if qb.err == nil {
		qb.q.OrderBy(items...)
	}
	return qb
}

// Render renders the query with the ?N placeholders and the SELECT syntax of
// the dialect. The dialect can then rewrite the placeholders with
// [Rendered.DriverSQL]. A query can be rendered or prepared once.
func (qb *QueryBuilder) Render(d Dialect) (*Rendered, error) {
	if qb.err != nil {
		return nil, qb.err
	}
	return qb.q.Build(d)
}

// Prepare renders the query into a [Statement] that can be run on any [DB].
func (qb *QueryBuilder) Prepare() (*Statement, error) {
	// Every SQL dialect selects a referent as alias.*, only the
	// placeholders differ and those are rewritten per DB.
	r, err := qb.Render(expr.SQLite)
	if err != nil {
		return nil, err
	}
	return prepared.statement(r, qb.naming), nil
}

// MustPrepare is the same as [QueryBuilder.Prepare] except that it panics on
// error.
func (qb *QueryBuilder) MustPrepare() *Statement {
	s, err := qb.Prepare()
	if err != nil {
		panic(err)
	}
	return s
}
