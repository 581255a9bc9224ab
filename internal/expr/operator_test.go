package expr

// check.v1 is imported by name because it exports Not, which this package
// declares too.
import (
	check "gopkg.in/check.v1"
)

type OperatorSuite struct{}

var _ = check.Suite(&OperatorSuite{})

func (s *OperatorSuite) TestNegate(c *check.C) {
	pairs := []struct {
		op       Operator
		negated  string
		affirmed string
	}{
		{OpEqual, "!=", "="},
		{OpLike, "NOT LIKE", "LIKE"},
		{OpGreater, "<=", ">"},
		{OpLess, ">=", "<"},
		{OpIn, "NOT IN", "IN"},
		{OpBetween, "NOT BETWEEN", "BETWEEN"},
	}
	for _, p := range pairs {
		c.Check(p.op.Negatable(), check.Equals, true)
		n := p.op.Negate()
		c.Check(n.Symbol(), check.Equals, p.negated)
		c.Check(n.Negated(), check.Equals, true)
		c.Check(n.Negate(), check.Equals, p.op)
		c.Check(n.Negate().Symbol(), check.Equals, p.affirmed)
		// The registry values themselves never change.
		c.Check(p.op.Symbol(), check.Equals, p.affirmed)
	}
}

func (s *OperatorSuite) TestMarkersAreNotNegatable(c *check.C) {
	for _, op := range []Operator{OpAnd, OpOr, OpOpen, OpClose, OpBind, opJoin, opSelect, opOrder} {
		c.Check(op.Negatable(), check.Equals, false)
		c.Check(op.Negate(), check.Equals, op)
	}
}

func (s *OperatorSuite) TestAggregate(c *check.C) {
	c.Check(NoAggregate.apply("t.c"), check.Equals, "t.c")
	c.Check(Count.apply("*"), check.Equals, "COUNT(*)")
	c.Check(Avg.apply("t.c"), check.Equals, "AVG(t.c)")
}

func (s *OperatorSuite) TestNegateLeavesStructure(c *check.C) {
	a := &arena{}
	root := a.newGroup()
	push(a, root, node{op: OpOpen}, node{op: OpEqual, value: 1}, node{op: OpOr}, node{op: OpLess, value: 2}, node{op: OpClose})
	a.negate(root)
	c.Check(a.String(root), check.Equals, "[( !=[?.? 1] OR >=[?.? 2] )]")
	a.negate(root)
	c.Check(a.String(root), check.Equals, "[( =[?.? 1] OR <[?.? 2] )]")
}

func (s *OperatorSuite) TestLooseOr(c *check.C) {
	tests := []struct {
		nodes []node
		loose bool
	}{
		{[]node{{op: OpEqual, value: 1}}, false},
		{[]node{{op: OpEqual, value: 1}, {op: OpOr}, {op: OpLess, value: 2}}, true},
		{[]node{{op: OpEqual, value: 1}, {op: OpAnd}, {op: OpLess, value: 2}}, false},
		{[]node{{op: OpOpen}, {op: OpEqual, value: 1}, {op: OpOr}, {op: OpLess, value: 2}, {op: OpClose}}, false},
		{[]node{{op: OpOpen}, {op: OpEqual, value: 1}, {op: OpClose}, {op: OpOr}, {op: OpOpen}, {op: OpLess, value: 2}, {op: OpClose}}, true},
	}
	for i, t := range tests {
		a := &arena{}
		root := a.newGroup()
		push(a, root, t.nodes...)
		c.Check(a.looseOr(root), check.Equals, t.loose, check.Commentf("test %d: %s", i, a.String(root)))
	}
}

func (s *OperatorSuite) TestInitializeBindings(c *check.C) {
	ref := fakeRef("T")
	a := &arena{}
	root := a.newGroup()
	push(a, root, node{op: OpEqual, value: 1, binding: Binding{Property: "x"}})
	child := a.newGroup()
	push(a, child, node{op: OpBind}, node{op: OpAnd}, node{op: OpLess, value: 2})
	g := a.get(root)
	g.children = append(g.children, child)

	a.initializeBindings(root, Binding{Referent: ref})
	c.Assert(a.checkBound(root), check.IsNil)
	c.Check(a.String(root), check.Equals, "[=[T.x 1] [Bind[T.x] AND <[T.x 2]]]")
}

type fakeRef string

func (r fakeRef) Name() string { return string(r) }

// push adds the nodes to the expressions of group.
func push(a *arena, group nodeID, nodes ...node) {
	for _, n := range nodes {
		id := a.add(n)
		g := a.get(group)
		g.exprs = append(g.exprs, id)
	}
}
