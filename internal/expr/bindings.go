// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"regexp"
	"strconv"
)

// nullParam is rendered in place of a placeholder for a NULL value.
const nullParam = " IS NULL"

// placeholderRx matches the positional placeholders issued by CreateParam.
var placeholderRx = regexp.MustCompile(`\?([0-9]+)`)

// Bindings is the ordered list of values bound to the placeholders of one
// rendered query.
type Bindings struct {
	values  []any
	counter int
}

// NewBindings returns an empty Bindings.
func NewBindings() *Bindings {
	return &Bindings{}
}

// CreateParam binds the value to the next placeholder and returns the
// placeholder text. A nil value takes no slot; the NULL test is returned
// instead.
func (b *Bindings) CreateParam(value any) string {
	if value == nil {
		return nullParam
	}
	b.values = append(b.values, value)
	n := b.counter
	b.counter++
	return "?" + strconv.Itoa(n)
}

// Values returns the bound values in placeholder order.
func (b *Bindings) Values() []any {
	return b.values
}

// Len returns the number of placeholders issued.
func (b *Bindings) Len() int {
	return b.counter
}

// ParamTarget receives bound values from ResolveParams.
type ParamTarget interface {
	// SetParameter binds value to the placeholder numbered position.
	SetParameter(position int, value any) error
}

// ResolveParams scans text for placeholders and binds the nth placeholder
// found to the nth bound value on the target. The number of placeholders in
// the text must match the number of bound values.
func (b *Bindings) ResolveParams(text string, target ParamTarget) error {
	matches := placeholderRx.FindAllStringSubmatch(text, -1)
	if len(matches) != len(b.values) {
		return fmt.Errorf("internal error: found %d placeholders for %d bound values", len(matches), len(b.values))
	}
	for i, m := range matches {
		position, err := strconv.Atoi(m[1])
		if err != nil {
			return fmt.Errorf("internal error: bad placeholder %q: %s", m[0], err)
		}
		if err := target.SetParameter(position, b.values[i]); err != nil {
			return err
		}
	}
	return nil
}
