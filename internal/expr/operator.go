// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

// opKind distinguishes qualifiers, which compare a property against a value,
// from the structural markers that only shape the rendered text.
type opKind int

const (
	kindQualifier opKind = iota
	kindConnective
	kindOpen
	kindClose
	kindBind
	kindJoin
	kindSelect
	kindOrder
)

// Operator is an immutable symbol placed in an expression. Qualifiers carry
// an affirmed and a negated symbol; negating an Operator returns the other one
// of the pair.
type Operator struct {
	kind     opKind
	symbol   string
	affirmed string
	negated  string
	isNeg    bool
}

// Symbol returns the text the operator renders as.
func (op Operator) Symbol() string {
	return op.symbol
}

// Negatable reports whether the operator has a negated form.
func (op Operator) Negatable() bool {
	return op.negated != ""
}

// Negated reports whether the operator currently renders its negated form.
func (op Operator) Negated() bool {
	return op.isNeg
}

// Negate returns the operator with the opposite polarity. Operators that are
// not negatable are returned unchanged.
func (op Operator) Negate() Operator {
	if !op.Negatable() {
		return op
	}
	op.isNeg = !op.isNeg
	if op.isNeg {
		op.symbol = op.negated
	} else {
		op.symbol = op.affirmed
	}
	return op
}

// String returns the operator symbol.
func (op Operator) String() string {
	return op.symbol
}

func qualifier(affirmed, negated string) Operator {
	return Operator{kind: kindQualifier, symbol: affirmed, affirmed: affirmed, negated: negated}
}

func marker(kind opKind, symbol string) Operator {
	return Operator{kind: kind, symbol: symbol, affirmed: symbol}
}

// Qualifiers.
var (
	OpEqual   = qualifier("=", "!=")
	OpLike    = qualifier("LIKE", "NOT LIKE")
	OpGreater = qualifier(">", "<=")
	OpLess    = qualifier("<", ">=")
	OpIn      = qualifier("IN", "NOT IN")
	OpBetween = qualifier("BETWEEN", "NOT BETWEEN")
)

// Structural markers.
var (
	OpAnd   = marker(kindConnective, "AND")
	OpOr    = marker(kindConnective, "OR")
	OpOpen  = marker(kindOpen, "(")
	OpClose = marker(kindClose, ")")
	OpBind  = marker(kindBind, "")

	// opJoin relates two referents and never binds a parameter.
	opJoin = marker(kindJoin, "=")
	// opSelect and opOrder mark projection and ordering items.
	opSelect = marker(kindSelect, "")
	opOrder  = marker(kindOrder, "")
)

// Aggregate is a function applied to a column in SELECT and HAVING clauses.
type Aggregate string

const (
	NoAggregate Aggregate = ""
	Count       Aggregate = "COUNT"
	Sum         Aggregate = "SUM"
	Avg         Aggregate = "AVG"
	Min         Aggregate = "MIN"
	Max         Aggregate = "MAX"
)

// apply wraps the column in the aggregate function.
func (a Aggregate) apply(column string) string {
	if a == NoAggregate {
		return column
	}
	return string(a) + "(" + column + ")"
}

// Direction is the sort direction of an ORDER BY item.
type Direction string

const (
	Ascending  Direction = "ASC"
	Descending Direction = "DESC"
)
