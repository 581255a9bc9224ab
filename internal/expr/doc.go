/*
Package expr composes relational predicates into expression trees and renders
them into query text with positional placeholders. It does not interact with
databases; the rendered text and bound values are handed to the caller.

The package is split up into three stages: the Composition stage, the Binding
stage, and the Render stage.

# Composition stage

Leaf builders are created by the qualifier factories (Equal, Like, Greater,
Less, In, Between and Join) and composed with And, Or, Not and Closure. All the
nodes of one composition live in a single arena addressed by index. Grafting
one builder into another copies its nodes into the receiving arena and
consumes the grafted builder, which cannot be used afterwards.

A composite tree grafted with And or Or is parenthesised first so that mixing
connectives at different depths keeps its precedence. Negation only flips the
polarity of qualifiers, connectives are left alone.

# Binding stage

Terms do not need to know their referent (table) or property (column) when
they are created. Matching and Query supply a leading binding that is handed
to every term that has none. Bindings only ever go from unset to set: the
first writer wins.

# Render stage

Each clause walks its tree in pre-order, own expressions first and then child
groups, and joins the rendered expressions with the separator of the clause.
Values are bound through Bindings, which issues ?N placeholders in text order.
The FROM clause is derived from the referents seen during the walk, each
written once. A Dialect finally rewrites the placeholders into the syntax of
the database driver.
*/
package expr
