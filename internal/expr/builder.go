// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"
	"strings"
)

// Builder owns one expression tree and composes it with other trees. A
// builder grafted into another builder is consumed and cannot be used again.
// Builders are not safe for concurrent use.
type Builder struct {
	clause *Clause
	a      *arena
	root   nodeID
	// leading is the default binding handed to terms that have none.
	leading Binding

	// prev and next link the builders of one query in clause order.
	prev *Builder
	next *Builder

	// err is the first usage error met while composing.
	err      error
	consumed bool
	built    bool
}

func newBuilder(clause *Clause, terms ...node) *Builder {
	a := &arena{}
	root := a.newGroup()
	for _, t := range terms {
		id := a.add(t)
		g := a.get(root)
		g.exprs = append(g.exprs, id)
	}
	return &Builder{clause: clause, a: a, root: root}
}

// failed returns a builder that carries err.
func failed(clause *Clause, err error) *Builder {
	b := newBuilder(clause)
	b.err = err
	return b
}

// NewQualifier returns a leaf builder comparing an unbound property against
// value with the given qualifier.
func NewQualifier(op Operator, value any) *Builder {
	if op.kind != kindQualifier {
		return failed(WhereClause, fmt.Errorf("internal error: %q is not a qualifier", op.symbol))
	}
	switch op.affirmed {
	case OpEqual.affirmed:
	case OpBetween.affirmed:
		bounds, ok := value.([2]any)
		if !ok || bounds[0] == nil || bounds[1] == nil {
			return failed(WhereClause, fmt.Errorf("BETWEEN needs two non-NULL bounds"))
		}
	case OpIn.affirmed:
		if value == nil {
			return failed(WhereClause, fmt.Errorf("IN needs a collection, got NULL"))
		}
		k := reflect.TypeOf(value).Kind()
		if k != reflect.Slice && k != reflect.Array {
			return failed(WhereClause, fmt.Errorf("IN needs a slice or array, got %s", k))
		}
		if reflect.ValueOf(value).Len() == 0 {
			return failed(WhereClause, fmt.Errorf("IN needs at least one value"))
		}
	default:
		if value == nil {
			return failed(WhereClause, fmt.Errorf("cannot use NULL with %s", op.symbol))
		}
	}
	return newBuilder(WhereClause, node{op: op, value: value})
}

// Equal returns a leaf builder for "= value". A nil value renders IS NULL.
func Equal(value any) *Builder {
	return NewQualifier(OpEqual, value)
}

// Like returns a leaf builder for "LIKE pattern".
func Like(pattern string) *Builder {
	return NewQualifier(OpLike, pattern)
}

// Greater returns a leaf builder for "> value".
func Greater(value any) *Builder {
	return NewQualifier(OpGreater, value)
}

// Less returns a leaf builder for "< value".
func Less(value any) *Builder {
	return NewQualifier(OpLess, value)
}

// In returns a leaf builder for "IN (values)". values must be a non-empty
// slice or array.
func In(values any) *Builder {
	return NewQualifier(OpIn, values)
}

// Between returns a leaf builder for "BETWEEN lo AND hi".
func Between(lo, hi any) *Builder {
	return NewQualifier(OpBetween, [2]any{lo, hi})
}

// Join returns a leaf builder equating an unbound property with the property
// of another referent. Joins never bind parameters.
func Join(other Binding) *Builder {
	if !other.complete() {
		return failed(WhereClause, fmt.Errorf("%w: join target %s", ErrUnbound, other))
	}
	return newBuilder(WhereClause, node{op: opJoin, other: other})
}

// NewSelectItem returns a SELECT builder for a property, or for the whole
// referent when the property is empty.
func NewSelectItem(b Binding, agg Aggregate) *Builder {
	if b.Property == "" && agg != NoAggregate && agg != Count {
		return failed(SelectClause, fmt.Errorf("%s needs a property", agg))
	}
	return newBuilder(SelectClause, node{op: opSelect, binding: b, agg: agg, whole: b.Property == ""})
}

// NewGroupItem returns a GROUP BY builder for a property.
func NewGroupItem(b Binding) *Builder {
	if b.Property == "" {
		return failed(GroupByClause, fmt.Errorf("cannot group by a whole referent"))
	}
	return newBuilder(GroupByClause, node{op: opSelect, binding: b})
}

// NewOrderItem returns an ORDER BY builder for a property.
func NewOrderItem(b Binding, dir Direction) *Builder {
	if b.Property == "" {
		return failed(OrderByClause, fmt.Errorf("cannot order by a whole referent"))
	}
	return newBuilder(OrderByClause, node{op: opOrder, binding: b, dir: dir})
}

// Err returns the first usage error recorded on the builder.
func (b *Builder) Err() error {
	if b.err == nil && b.consumed {
		return ErrConsumed
	}
	return b.err
}

// Leading returns the default binding of the builder.
func (b *Builder) Leading() Binding {
	return b.leading
}

// setErr records err unless an error is already recorded.
func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// usable checks that b can absorb other, recording a usage error on b if
// not.
func (b *Builder) usable(other *Builder) bool {
	switch {
	case b.err != nil:
		return false
	case b.consumed:
		b.err = ErrConsumed
		return false
	case other == nil:
		b.setErr(errNilExpr)
		return false
	case other == b:
		b.setErr(fmt.Errorf("cannot compose an expression with itself"))
		return false
	case other.consumed:
		b.setErr(ErrConsumed)
		return false
	case other.err != nil:
		b.setErr(other.err)
		return false
	}
	return true
}

// consume marks the builder as grafted. Its nodes now belong to another
// arena.
func (b *Builder) consume() {
	b.consumed = true
	b.a = nil
}

// composite reports whether the tree holds more than one predicate joined by
// a connective, and so needs parentheses when grafted.
func (b *Builder) composite() bool {
	g := b.a.get(b.root)
	if len(g.children) > 0 {
		return true
	}
	for _, e := range g.exprs {
		if b.a.get(e).op.kind == kindConnective {
			return true
		}
	}
	return false
}

// And grafts other as the last child of b, joined with AND. Composite trees
// are parenthesised first. other is consumed.
func (b *Builder) And(other *Builder) *Builder {
	return b.graft(other, &OpAnd)
}

// Or grafts other as the last child of b, joined with OR. Composite trees
// are parenthesised first. other is consumed.
func (b *Builder) Or(other *Builder) *Builder {
	return b.graft(other, &OpOr)
}

// Append grafts other as the last child of b without a connective. It is used
// to build SELECT, GROUP BY and ORDER BY lists.
func (b *Builder) Append(other *Builder) *Builder {
	return b.graft(other, nil)
}

func (b *Builder) graft(other *Builder, op *Operator) *Builder {
	if !b.usable(other) {
		return b
	}
	if op != nil && other.composite() {
		other.a.closure(other.root)
	}
	prefix := []nodeID{other.a.add(node{op: OpBind, binding: b.leading})}
	if op != nil {
		prefix = append(prefix, other.a.add(node{op: *op}))
	}
	g := other.a.get(other.root)
	g.exprs = append(prefix, g.exprs...)

	child := b.a.adopt(other.a, other.root)
	root := b.a.get(b.root)
	root.children = append(root.children, child)
	other.consume()
	return b
}

// AndMatching appends other to the expressions of b, joined with AND, with
// its unbound terms bound to property on the leading referent of b. Unlike
// And, the expressions are flattened into b rather than grafted as a child.
func (b *Builder) AndMatching(property string, other *Builder) *Builder {
	return b.Merge(Binding{Referent: b.leading.Referent, Property: property}, other, &OpAnd)
}

// OrMatching is like AndMatching but joins with OR.
func (b *Builder) OrMatching(property string, other *Builder) *Builder {
	return b.Merge(Binding{Referent: b.leading.Referent, Property: property}, other, &OpOr)
}

// Merge binds the unset terms of other to target and appends the
// connective, if any, and every expression of other to the expressions of b.
func (b *Builder) Merge(target Binding, other *Builder, op *Operator) *Builder {
	if !b.usable(other) {
		return b
	}
	other.a.overwriteNull(other.root, target)
	if op != nil && other.composite() {
		other.a.closure(other.root)
	}
	var ids []nodeID
	if op != nil {
		ids = append(ids, b.a.add(node{op: *op}))
	}
	other.a.walkTerms(other.root, func(n *node) {
		ids = append(ids, b.a.add(*n))
	})
	root := b.a.get(b.root)
	root.exprs = append(root.exprs, ids...)
	other.consume()
	return b
}

// Aggregate applies agg to the column of every qualifier in the tree that
// has no aggregate yet. It is used for HAVING predicates.
func (b *Builder) Aggregate(agg Aggregate) *Builder {
	if !b.check() {
		return b
	}
	b.a.walkTerms(b.root, func(n *node) {
		if n.op.kind == kindQualifier && n.agg == NoAggregate {
			n.agg = agg
		}
	})
	return b
}

// check reports whether b can still be used, recording ErrConsumed if not.
func (b *Builder) check() bool {
	if b.consumed {
		b.setErr(ErrConsumed)
	}
	return b.err == nil
}

// Not negates every qualifier in the tree of b. Connectives and parentheses
// are unchanged, so Not(Not(b)) renders as b.
func Not(b *Builder) *Builder {
	if b == nil {
		return failed(WhereClause, errNilExpr)
	}
	if b.check() {
		b.a.negate(b.root)
	}
	return b
}

// Closure parenthesises the whole tree of b.
func Closure(b *Builder) *Builder {
	if b == nil {
		return failed(WhereClause, errNilExpr)
	}
	if b.check() {
		b.a.closure(b.root)
	}
	return b
}

// Conjunct prepares b to be the left operand of an AND. A tree with an OR
// outside parentheses is parenthesised, anything else is left as it is.
func Conjunct(b *Builder) *Builder {
	if b == nil {
		return failed(WhereClause, errNilExpr)
	}
	if b.check() && b.a.looseOr(b.root) {
		b.a.closure(b.root)
	}
	return b
}

// Matching sets the leading property of b and binds it to every term of b
// that has no property yet.
func Matching(property string, b *Builder) *Builder {
	return MatchingBinding(Binding{Property: property}, b)
}

// MatchingBinding sets the leading binding of b and binds it to every term
// of b that has none yet. Bindings already set are kept.
func MatchingBinding(target Binding, b *Builder) *Builder {
	if b == nil {
		return failed(WhereClause, errNilExpr)
	}
	if target.IsZero() {
		b.setErr(fmt.Errorf("cannot match an empty property"))
	}
	if b.check() {
		b.leading.overwriteNull(target)
		b.a.overwriteNull(b.root, b.leading)
	}
	return b
}

// BindReferent supplies the referent to the leading binding and to every
// term of b that has no referent yet.
func (b *Builder) BindReferent(ref Referent) *Builder {
	if b.check() {
		b.leading.overwriteNull(Binding{Referent: ref})
		b.a.overwriteNull(b.root, Binding{Referent: ref})
	}
	return b
}

// Build propagates bindings through the tree and renders the body of the
// clause along with the FROM fragment of the referents it mentions.
// Placeholders are allocated from r.Bindings in text order.
func (b *Builder) Build(r *Renderer) (body string, from string, err error) {
	if !b.check() {
		return "", "", b.err
	}
	if b.built {
		return "", "", ErrAlreadyBuilt
	}
	b.built = true

	b.a.initializeBindings(b.root, b.leading)
	if err := b.a.checkBound(b.root); err != nil {
		return "", "", err
	}

	var tokens []string
	if err := b.tokens(b.root, r, &tokens); err != nil {
		return "", "", err
	}
	body = joinTokens(tokens, b.clause.sep)

	var sb strings.Builder
	var fromErr error
	b.a.walkTerms(b.root, func(n *node) {
		if fromErr != nil {
			return
		}
		frag, err := r.resolveFromClause(n)
		if err != nil {
			fromErr = err
			return
		}
		if frag != "" {
			sb.WriteString(frag)
			sb.WriteString(fromSep)
		}
	})
	if fromErr != nil {
		return "", "", fromErr
	}
	return body, strings.TrimSuffix(sb.String(), fromSep), nil
}

const fromSep = ", "

func (b *Builder) tokens(id nodeID, r *Renderer, out *[]string) error {
	g := b.a.get(id)
	for _, e := range g.exprs {
		s, err := r.resolve(b.a.get(e))
		if err != nil {
			return err
		}
		if s != "" {
			*out = append(*out, s)
		}
	}
	for _, c := range g.children {
		if err := b.tokens(c, r, out); err != nil {
			return err
		}
	}
	return nil
}

// joinTokens joins the rendered expressions with sep. Parentheses are not
// padded on the inside.
func joinTokens(tokens []string, sep string) string {
	var sb strings.Builder
	for i, t := range tokens {
		if i > 0 && tokens[i-1] != OpOpen.symbol && t != OpClose.symbol {
			sb.WriteString(sep)
		}
		sb.WriteString(t)
	}
	return sb.String()
}

// String returns a textual representation of the tree for debugging and
// testing purposes.
func (b *Builder) String() string {
	if b.consumed {
		return "Consumed[]"
	}
	return b.a.String(b.root)
}
