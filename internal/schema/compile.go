// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import (
	"fmt"
	"strings"

	"github.com/canonical/sqlmatch/internal/expr"
)

// Compile turns the query of the document into an expression query ready to
// be built with a dialect.
func (d *Document) Compile() (*expr.Query, error) {
	from, err := d.Referent(d.Query.From)
	if err != nil {
		return nil, err
	}
	q := expr.NewQuery(from, Naming{})

	for _, item := range d.Query.Select {
		b, err := d.binding(item.Referent, item.Property)
		if err != nil {
			return nil, fmt.Errorf("cannot compile select item: %w", err)
		}
		agg, err := aggregate(item.Aggregate)
		if err != nil {
			return nil, fmt.Errorf("cannot compile select item: %w", err)
		}
		sel := expr.NewSelectItem(b, agg)
		if err := sel.Err(); err != nil {
			return nil, fmt.Errorf("cannot compile select item: %w", err)
		}
		q.Select(sel)
	}
	if d.Query.Where != nil {
		pred, err := d.predicate(d.Query.Where)
		if err != nil {
			return nil, fmt.Errorf("cannot compile where: %w", err)
		}
		q.Where(pred)
	}
	for _, item := range d.Query.GroupBy {
		b, err := d.binding(item.Referent, item.Property)
		if err != nil {
			return nil, fmt.Errorf("cannot compile group by item: %w", err)
		}
		group := expr.NewGroupItem(b)
		if err := group.Err(); err != nil {
			return nil, fmt.Errorf("cannot compile group by item: %w", err)
		}
		q.GroupBy(group)
	}
	if d.Query.Having != nil {
		pred, err := d.predicate(d.Query.Having)
		if err != nil {
			return nil, fmt.Errorf("cannot compile having: %w", err)
		}
		q.Having(pred)
	}
	for _, item := range d.Query.OrderBy {
		b, err := d.binding(item.Referent, item.Property)
		if err != nil {
			return nil, fmt.Errorf("cannot compile order by item: %w", err)
		}
		dir := expr.Ascending
		if item.Desc {
			dir = expr.Descending
		}
		order := expr.NewOrderItem(b, dir)
		if err := order.Err(); err != nil {
			return nil, fmt.Errorf("cannot compile order by item: %w", err)
		}
		q.OrderBy(order)
	}
	if err := q.Err(); err != nil {
		return nil, err
	}
	return q, nil
}

// binding resolves a referent name. An empty name leaves the referent to be
// filled in by propagation.
func (d *Document) binding(referent, property string) (expr.Binding, error) {
	b := expr.Binding{Property: property}
	if referent != "" {
		ref, err := d.Referent(referent)
		if err != nil {
			return expr.Binding{}, err
		}
		b.Referent = ref
	}
	return b, nil
}

func aggregate(name string) (expr.Aggregate, error) {
	switch agg := expr.Aggregate(strings.ToUpper(name)); agg {
	case expr.NoAggregate, expr.Count, expr.Sum, expr.Avg, expr.Min, expr.Max:
		return agg, nil
	}
	return expr.NoAggregate, fmt.Errorf("unknown aggregate %q", name)
}

func (d *Document) predicate(p *Predicate) (*expr.Builder, error) {
	var set int
	for _, ok := range []bool{p.Op != "", len(p.And) > 0, len(p.Or) > 0} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("predicate needs exactly one of op, and, or")
	}

	var b *expr.Builder
	var err error
	switch {
	case p.Op != "":
		b, err = d.leaf(p)
	case len(p.And) > 0:
		b, err = d.connect(p.And, true)
	default:
		b, err = d.connect(p.Or, false)
	}
	if err != nil {
		return nil, err
	}

	target, err := d.binding(p.Referent, p.Property)
	if err != nil {
		return nil, err
	}
	if !target.IsZero() {
		b = expr.MatchingBinding(target, b)
	}
	agg, err := aggregate(p.Aggregate)
	if err != nil {
		return nil, err
	}
	if agg != expr.NoAggregate {
		b = b.Aggregate(agg)
	}
	if p.Not {
		b = expr.Not(b)
	}
	if p.Closure {
		b = expr.Closure(b)
	}
	return b, b.Err()
}

// connect joins preds left to right with AND, or with OR when and is false.
// Later operands are parenthesised by the graft itself; the first one only
// needs parentheses when an OR inside it would otherwise bind the AND.
func (d *Document) connect(preds []*Predicate, and bool) (*expr.Builder, error) {
	var b *expr.Builder
	for _, p := range preds {
		next, err := d.predicate(p)
		if err != nil {
			return nil, err
		}
		switch {
		case b == nil && and:
			b = expr.Conjunct(next)
		case b == nil:
			b = next
		case and:
			b = b.And(next)
		default:
			b = b.Or(next)
		}
	}
	return b, b.Err()
}

func (d *Document) leaf(p *Predicate) (*expr.Builder, error) {
	switch strings.ToLower(p.Op) {
	case "eq":
		return expr.Equal(p.Value), nil
	case "null":
		return expr.Equal(nil), nil
	case "like":
		pattern, ok := p.Value.(string)
		if !ok {
			return nil, fmt.Errorf("like needs a string pattern, got %T", p.Value)
		}
		return expr.Like(pattern), nil
	case "gt":
		return expr.Greater(p.Value), nil
	case "lt":
		return expr.Less(p.Value), nil
	case "in":
		return expr.In(p.Values), nil
	case "between":
		if len(p.Values) != 2 {
			return nil, fmt.Errorf("between needs two values, got %d", len(p.Values))
		}
		return expr.Between(p.Values[0], p.Values[1]), nil
	case "join":
		if p.Join == nil {
			return nil, fmt.Errorf("join needs a join target")
		}
		if p.Join.Referent == "" {
			return nil, fmt.Errorf("join target needs a referent")
		}
		other, err := d.binding(p.Join.Referent, p.Join.Property)
		if err != nil {
			return nil, err
		}
		return expr.Join(other), nil
	}
	return nil, fmt.Errorf("unknown operator %q", p.Op)
}
