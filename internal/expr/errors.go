// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import "errors"

var (
	// ErrConsumed is returned when a builder is used after it has been
	// grafted into another builder.
	ErrConsumed = errors.New("builder already composed into another expression")
	// ErrUnbound is returned when a term has no referent or property after
	// binding propagation.
	ErrUnbound = errors.New("expression has no referent or property")
	// ErrAlreadyBuilt is returned when a builder or query is built twice.
	ErrAlreadyBuilt = errors.New("expression already built")

	errNilExpr = errors.New("cannot use a nil expression")
)
