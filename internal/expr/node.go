// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
)

// Referent identifies the table a predicate applies to. Referents are compared
// with == when the FROM clause is deduplicated so implementations must be
// comparable, typically pointers.
type Referent interface {
	// Name returns a name for the referent used in error messages.
	Name() string
}

// Naming maps referents and their properties to table and column names.
type Naming interface {
	// TableName returns the name of the table backing the referent.
	TableName(r Referent) (string, error)
	// ColumnName returns the name of the column backing the property. An
	// error is returned if the referent has no such property.
	ColumnName(r Referent, property string) (string, error)
}

// Binding is the referent and property a term applies to. Either half may be
// unset until it is filled in by propagation.
type Binding struct {
	Referent Referent
	Property string
}

// IsZero reports whether neither half of the binding is set.
func (b Binding) IsZero() bool {
	return b.Referent == nil && b.Property == ""
}

// complete reports whether both halves of the binding are set.
func (b Binding) complete() bool {
	return b.Referent != nil && b.Property != ""
}

// String returns the binding as "Referent.property" for debugging.
func (b Binding) String() string {
	ref := "?"
	if b.Referent != nil {
		ref = b.Referent.Name()
	}
	prop := "?"
	if b.Property != "" {
		prop = b.Property
	}
	return ref + "." + prop
}

// overwriteNull sets the unset halves of the binding from src. Halves that
// are already set are never changed.
func (b *Binding) overwriteNull(src Binding) {
	if b.Referent == nil {
		b.Referent = src.Referent
	}
	if b.Property == "" {
		b.Property = src.Property
	}
}

type nodeID int

// node is an entry in an arena. A group node owns an ordered list of
// expressions (terms and markers) and an ordered list of child groups. Every
// other node is a term.
type node struct {
	group    bool
	exprs    []nodeID
	children []nodeID

	op Operator
	// value is the compared value of a qualifier. It is a [2]any for
	// BETWEEN and a slice for IN.
	value   any
	binding Binding
	// other is the far side of a join.
	other Binding
	agg   Aggregate
	dir   Direction
	// whole marks a SELECT item for the whole referent. Only its referent
	// is filled in by propagation.
	whole bool
}

// bindable reports whether the expression carries a binding. Connectives
// and parentheses do not.
func (n *node) bindable() bool {
	switch n.op.kind {
	case kindConnective, kindOpen, kindClose:
		return false
	}
	return true
}

// fill sets the unset halves of the binding of the expression from src.
func (n *node) fill(src Binding) {
	if n.whole {
		src.Property = ""
	}
	n.binding.overwriteNull(src)
}

// arena stores the nodes of one composition. Nodes are addressed by their
// index and never removed; grafting copies the nodes of one arena into
// another.
type arena struct {
	nodes []node
}

func (a *arena) add(n node) nodeID {
	a.nodes = append(a.nodes, n)
	return nodeID(len(a.nodes) - 1)
}

func (a *arena) get(id nodeID) *node {
	return &a.nodes[id]
}

func (a *arena) newGroup() nodeID {
	return a.add(node{group: true})
}

// adopt copies the tree rooted at root in src into a and returns the index of
// the copied root.
func (a *arena) adopt(src *arena, root nodeID) nodeID {
	n := *src.get(root)
	if !n.group {
		return a.add(n)
	}
	exprs := make([]nodeID, len(n.exprs))
	for i, e := range n.exprs {
		exprs[i] = a.add(*src.get(e))
	}
	children := make([]nodeID, len(n.children))
	for i, c := range n.children {
		children[i] = a.adopt(src, c)
	}
	n.exprs = exprs
	n.children = children
	return a.add(n)
}

// walkTerms calls f on every expression of the tree rooted at id in
// pre-order: the expressions of a group, then its children.
func (a *arena) walkTerms(id nodeID, f func(*node)) {
	g := a.get(id)
	for _, e := range g.exprs {
		f(a.get(e))
	}
	for _, c := range g.children {
		a.walkTerms(c, f)
	}
}

// overwriteNull fills in unset bindings across the whole tree rooted at id.
// Terms that already carry a binding keep it.
func (a *arena) overwriteNull(id nodeID, b Binding) {
	a.walkTerms(id, func(n *node) {
		if n.bindable() {
			n.fill(b)
		}
	})
}

// negate flips the polarity of every negatable operator in the tree rooted at
// id. Connectives and parentheses are left alone.
func (a *arena) negate(id nodeID) {
	a.walkTerms(id, func(n *node) {
		n.op = n.op.Negate()
	})
}

// lastGroup returns the right-most, deepest group of the tree rooted at id.
func (a *arena) lastGroup(id nodeID) nodeID {
	for {
		g := a.get(id)
		if len(g.children) == 0 {
			return id
		}
		id = g.children[len(g.children)-1]
	}
}

// closure parenthesises the tree rooted at id.
func (a *arena) closure(id nodeID) {
	open := a.add(node{op: OpOpen})
	closeID := a.add(node{op: OpClose})
	root := a.get(id)
	root.exprs = append([]nodeID{open}, root.exprs...)
	last := a.get(a.lastGroup(id))
	last.exprs = append(last.exprs, closeID)
}

// looseOr reports whether the tree rooted at id renders an OR outside of
// any parentheses.
func (a *arena) looseOr(id nodeID) bool {
	depth, found := 0, false
	a.walkTerms(id, func(n *node) {
		switch {
		case n.op.kind == kindOpen:
			depth++
		case n.op.kind == kindClose:
			depth--
		case depth == 0 && n.op.kind == kindConnective && n.op.symbol == OpOr.symbol:
			found = true
		}
	})
	return found
}

// initializeBindings propagates bindings group by group. A group takes the
// binding of its first expression, falling back to the binding inherited from
// its parent, and hands it to the unset terms of the group.
func (a *arena) initializeBindings(id nodeID, inherited Binding) {
	g := a.get(id)
	b := inherited
	first := true
	for _, e := range g.exprs {
		n := a.get(e)
		if !n.bindable() {
			continue
		}
		n.fill(b)
		if first {
			b = n.binding
			first = false
		}
	}
	for _, c := range g.children {
		a.initializeBindings(c, b)
	}
}

// checkBound returns an error naming the first term that lacks a referent or
// property.
func (a *arena) checkBound(id nodeID) error {
	var err error
	a.walkTerms(id, func(n *node) {
		if err != nil {
			return
		}
		switch n.op.kind {
		case kindQualifier, kindJoin, kindOrder:
			if !n.binding.complete() {
				err = fmt.Errorf("%w: %s %s", ErrUnbound, n.binding, n.op.affirmed)
			}
		case kindSelect:
			if n.binding.Referent == nil {
				err = fmt.Errorf("%w: select item %s", ErrUnbound, n.binding)
			}
		}
		if err == nil && n.op.kind == kindJoin && !n.other.complete() {
			err = fmt.Errorf("%w: join target %s", ErrUnbound, n.other)
		}
	})
	return err
}

// Renderer carries the state of one render pass.
type Renderer struct {
	Naming   Naming
	Dialect  Dialect
	Bindings *Bindings
	// seen holds the referents already written to the FROM clause.
	seen map[Referent]bool
}

// NewRenderer returns a Renderer with fresh bindings and an empty seen set.
func NewRenderer(naming Naming, dialect Dialect) *Renderer {
	return &Renderer{
		Naming:   naming,
		Dialect:  dialect,
		Bindings: NewBindings(),
		seen:     map[Referent]bool{},
	}
}

// alias returns the table alias of a referent.
func (r *Renderer) alias(ref Referent) (string, error) {
	table, err := r.Naming.TableName(ref)
	if err != nil {
		return "", err
	}
	return strings.ToLower(table), nil
}

// column renders "alias.column" for the binding.
func (r *Renderer) column(b Binding) (string, error) {
	alias, err := r.alias(b.Referent)
	if err != nil {
		return "", err
	}
	col, err := r.Naming.ColumnName(b.Referent, b.Property)
	if err != nil {
		return "", err
	}
	return alias + "." + col, nil
}

// resolve renders a single expression. Markers render their symbol and BIND
// renders nothing.
func (r *Renderer) resolve(n *node) (string, error) {
	switch n.op.kind {
	case kindBind:
		return "", nil
	case kindConnective, kindOpen, kindClose:
		return n.op.symbol, nil
	case kindJoin:
		left, err := r.column(n.binding)
		if err != nil {
			return "", err
		}
		right, err := r.column(n.other)
		if err != nil {
			return "", err
		}
		return left + " " + n.op.symbol + " " + right, nil
	case kindSelect:
		if n.whole {
			if n.agg != NoAggregate {
				return n.agg.apply("*"), nil
			}
			alias, err := r.alias(n.binding.Referent)
			if err != nil {
				return "", err
			}
			return r.Dialect.referent(alias), nil
		}
		col, err := r.column(n.binding)
		if err != nil {
			return "", err
		}
		return n.agg.apply(col), nil
	case kindOrder:
		col, err := r.column(n.binding)
		if err != nil {
			return "", err
		}
		return col + " " + string(n.dir), nil
	case kindQualifier:
		return r.resolveQualifier(n)
	}
	return "", fmt.Errorf("internal error: unknown operator kind %d", n.op.kind)
}

func (r *Renderer) resolveQualifier(n *node) (string, error) {
	col, err := r.column(n.binding)
	if err != nil {
		return "", err
	}
	col = n.agg.apply(col)
	switch n.op.affirmed {
	case OpEqual.affirmed:
		if n.value == nil {
			if n.op.isNeg {
				return col + " IS NOT NULL", nil
			}
			return col + r.Bindings.CreateParam(nil), nil
		}
	case OpBetween.affirmed:
		bounds, ok := n.value.([2]any)
		if !ok {
			return "", fmt.Errorf("internal error: BETWEEN value is %T", n.value)
		}
		lo := r.Bindings.CreateParam(bounds[0])
		hi := r.Bindings.CreateParam(bounds[1])
		return col + " " + n.op.symbol + " " + lo + " AND " + hi, nil
	case OpIn.affirmed:
		return col + " " + n.op.symbol + " (" + r.Bindings.CreateParam(n.value) + ")", nil
	}
	if n.value == nil {
		return "", fmt.Errorf("cannot compare %s with NULL using %s", n.binding, n.op.symbol)
	}
	return col + " " + n.op.symbol + " " + r.Bindings.CreateParam(n.value), nil
}

// resolveFromClause renders "table alias" for every referent of the
// expression not yet written in this render pass. Joins contribute both of
// their referents.
func (r *Renderer) resolveFromClause(n *node) (string, error) {
	var refs []Referent
	switch n.op.kind {
	case kindQualifier, kindSelect, kindOrder:
		refs = []Referent{n.binding.Referent}
	case kindJoin:
		refs = []Referent{n.binding.Referent, n.other.Referent}
	default:
		return "", nil
	}
	var out []string
	for _, ref := range refs {
		if ref == nil || r.seen[ref] {
			continue
		}
		r.seen[ref] = true
		table, err := r.Naming.TableName(ref)
		if err != nil {
			return "", err
		}
		out = append(out, table+" "+strings.ToLower(table))
	}
	return strings.Join(out, ", "), nil
}

// String returns a textual representation of the tree rooted at id for
// debugging and testing purposes.
func (a *arena) String(id nodeID) string {
	var out bytes.Buffer
	a.writeTree(&out, id)
	return out.String()
}

func (a *arena) writeTree(out *bytes.Buffer, id nodeID) {
	g := a.get(id)
	out.WriteString("[")
	for i, e := range g.exprs {
		if i > 0 {
			out.WriteString(" ")
		}
		out.WriteString(a.get(e).String())
	}
	for _, c := range g.children {
		out.WriteString(" ")
		a.writeTree(out, c)
	}
	out.WriteString("]")
}

// String returns a textual representation of the expression.
func (n *node) String() string {
	switch n.op.kind {
	case kindBind:
		return "Bind[" + n.binding.String() + "]"
	case kindConnective, kindOpen, kindClose:
		return n.op.symbol
	case kindJoin:
		return "Join[" + n.binding.String() + " " + n.other.String() + "]"
	case kindSelect:
		return "Select[" + string(n.agg) + " " + n.binding.String() + "]"
	case kindOrder:
		return "Order[" + n.binding.String() + " " + string(n.dir) + "]"
	}
	return fmt.Sprintf("%s[%s %v]", n.op.symbol, n.binding, formatValue(n.value))
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = fmt.Sprint(rv.Index(i).Interface())
		}
		return "(" + strings.Join(parts, " ") + ")"
	}
	if bounds, ok := v.([2]any); ok {
		return fmt.Sprintf("%v..%v", bounds[0], bounds[1])
	}
	return fmt.Sprint(v)
}
