// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"strings"
)

// Clause is a kind of query clause. It fixes the prefix written before a
// non-empty body and the separator placed between rendered expressions.
type Clause struct {
	name   string
	prefix string
	sep    string
}

var (
	SelectClause  = &Clause{name: "SELECT", prefix: "SELECT ", sep: ", "}
	WhereClause   = &Clause{name: "WHERE", prefix: "WHERE ", sep: " "}
	GroupByClause = &Clause{name: "GROUP BY", prefix: "GROUP BY ", sep: ", "}
	HavingClause  = &Clause{name: "HAVING", prefix: "HAVING ", sep: " "}
	OrderByClause = &Clause{name: "ORDER BY", prefix: "ORDER BY ", sep: ", "}
)

// Name returns the keyword of the clause.
func (c *Clause) Name() string {
	return c.name
}

// Clause returns the kind of clause the builder renders.
func (b *Builder) Clause() *Clause {
	return b.clause
}

// Then links next after b in a clause chain and returns next, so that chains
// read in clause order: where.Then(groupBy).Then(having).
func (b *Builder) Then(next *Builder) *Builder {
	if next == nil || next == b {
		b.setErr(fmt.Errorf("cannot chain a clause to itself or to nil"))
		return b
	}
	b.next = next
	next.prev = b
	return next
}

// BuildChain renders every builder of the chain b belongs to, starting from
// its head. Each non-empty body is written with its clause prefix and the
// bodies are joined with a single space. The FROM fragments of the chain are
// returned in rendering order.
func (b *Builder) BuildChain(r *Renderer) (string, []string, error) {
	head := b
	for head.prev != nil {
		head = head.prev
	}
	var parts, from []string
	for c := head; c != nil; c = c.next {
		body, frag, err := c.Build(r)
		if err != nil {
			return "", nil, fmt.Errorf("cannot build %s clause: %w", c.clause.name, err)
		}
		if body != "" {
			parts = append(parts, c.clause.prefix+body)
		}
		if frag != "" {
			from = append(from, frag)
		}
	}
	return strings.Join(parts, " "), from, nil
}

// SelectItem describes one item of a rendered SELECT list.
type SelectItem struct {
	Binding   Binding
	Aggregate Aggregate
	// Whole is set when the item selects the whole referent.
	Whole bool
}

// selectItems returns the SELECT items of the tree in rendering order.
func (b *Builder) selectItems() []SelectItem {
	var items []SelectItem
	b.a.walkTerms(b.root, func(n *node) {
		if n.op.kind == kindSelect {
			items = append(items, SelectItem{Binding: n.binding, Aggregate: n.agg, Whole: n.whole})
		}
	})
	return items
}

// Query is the matching context of one query. It supplies its referent as
// the leading referent of every clause attached to it.
type Query struct {
	referent Referent
	naming   Naming

	sel     *Builder
	where   *Builder
	groupBy *Builder
	having  *Builder
	orderBy *Builder

	err   error
	built bool
}

// NewQuery returns a query over ref that maps names with naming.
func NewQuery(ref Referent, naming Naming) *Query {
	q := &Query{referent: ref, naming: naming}
	if ref == nil {
		q.err = fmt.Errorf("query needs a referent")
	}
	if naming == nil {
		q.setErr(fmt.Errorf("query needs a naming"))
	}
	return q
}

// Referent returns the leading referent of the query.
func (q *Query) Referent() Referent {
	return q.referent
}

// Naming returns the naming used to render the query.
func (q *Query) Naming() Naming {
	return q.naming
}

func (q *Query) setErr(err error) {
	if q.err == nil {
		q.err = err
	}
}

// Err returns the first usage error recorded on the query.
func (q *Query) Err() error {
	return q.err
}

// attach appends item to the list held in *slot.
func (q *Query) attach(slot **Builder, clause *Clause, items []*Builder) {
	for _, item := range items {
		if item == nil {
			q.setErr(fmt.Errorf("cannot add nil %s item", clause.name))
			return
		}
		if item.clause != clause {
			q.setErr(fmt.Errorf("cannot use %s item in %s clause", item.clause.name, clause.name))
			return
		}
		if *slot == nil {
			*slot = item
			continue
		}
		(*slot).Append(item)
	}
}

// Select adds items to the SELECT list. A query without SELECT items selects
// its whole referent.
func (q *Query) Select(items ...*Builder) *Query {
	q.attach(&q.sel, SelectClause, items)
	return q
}

// Where adds a predicate to the WHERE clause. Successive predicates are
// joined with AND.
func (q *Query) Where(pred *Builder) *Query {
	q.where = q.predicate(q.where, WhereClause, pred)
	return q
}

// Having adds a predicate to the HAVING clause. Successive predicates are
// joined with AND.
func (q *Query) Having(pred *Builder) *Query {
	q.having = q.predicate(q.having, HavingClause, pred)
	return q
}

func (q *Query) predicate(cur *Builder, clause *Clause, pred *Builder) *Builder {
	if pred == nil {
		q.setErr(fmt.Errorf("cannot add nil %s predicate", clause.name))
		return cur
	}
	if pred.clause != WhereClause && pred.clause != HavingClause {
		q.setErr(fmt.Errorf("cannot use %s item as %s predicate", pred.clause.name, clause.name))
		return cur
	}
	pred.clause = clause
	if cur == nil {
		return pred
	}
	return Conjunct(cur).And(pred)
}

// GroupBy adds items to the GROUP BY list.
func (q *Query) GroupBy(items ...*Builder) *Query {
	q.attach(&q.groupBy, GroupByClause, items)
	return q
}

// OrderBy adds items to the ORDER BY list.
func (q *Query) OrderBy(items ...*Builder) *Query {
	q.attach(&q.orderBy, OrderByClause, items)
	return q
}

// Rendered is the output of building a query: the query text with ?N
// placeholders and the values bound to them.
type Rendered struct {
	Text     string
	Bindings *Bindings
	Dialect  Dialect
	Referent Referent
	// Items describes the SELECT list in order.
	Items []SelectItem
}

// DriverSQL returns the text in the placeholder syntax of the dialect along
// with the matching driver arguments.
func (r *Rendered) DriverSQL() (string, []any, error) {
	return r.Dialect.Substitute(r.Text, r.Bindings)
}

// Build renders the query. A query can only be built once.
func (q *Query) Build(d Dialect) (*Rendered, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.built {
		return nil, ErrAlreadyBuilt
	}
	q.built = true

	if q.sel == nil {
		q.sel = NewSelectItem(Binding{}, NoAggregate)
	}
	var chain []*Builder
	for _, c := range []*Builder{q.where, q.groupBy, q.having, q.orderBy} {
		if c != nil {
			chain = append(chain, c)
		}
	}
	for _, c := range append([]*Builder{q.sel}, chain...) {
		c.BindReferent(q.referent)
	}
	for i := 1; i < len(chain); i++ {
		chain[i-1].Then(chain[i])
	}

	r := NewRenderer(q.naming, d)
	selBody, selFrom, err := q.sel.Build(r)
	if err != nil {
		return nil, fmt.Errorf("cannot build SELECT clause: %w", err)
	}
	from := []string{}
	if selFrom != "" {
		from = append(from, selFrom)
	}
	var rest string
	if len(chain) > 0 {
		var frags []string
		rest, frags, err = chain[0].BuildChain(r)
		if err != nil {
			return nil, err
		}
		from = append(from, frags...)
	}

	text := "SELECT " + selBody + " FROM " + strings.Join(from, fromSep) + " " + rest
	return &Rendered{
		Text:     normalizeSpace(text),
		Bindings: r.Bindings,
		Dialect:  d,
		Referent: q.referent,
		Items:    q.sel.selectItems(),
	}, nil
}

// normalizeSpace collapses runs of whitespace into one space and trims the
// ends.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// String returns a textual representation of the clauses of the query for
// debugging and testing purposes.
func (q *Query) String() string {
	var parts []string
	for _, c := range []*Builder{q.sel, q.where, q.groupBy, q.having, q.orderBy} {
		if c != nil {
			parts = append(parts, c.clause.name+c.String())
		}
	}
	return "Query[" + strings.Join(parts, " ") + "]"
}
