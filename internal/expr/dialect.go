// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Dialect controls the two places where rendered text differs between
// databases: the placeholder syntax and how a whole referent is selected.
type Dialect struct {
	name string
	// placeholder returns the driver placeholder for the nth (zero based)
	// driver argument. It is nil for dialects that keep ?N placeholders.
	placeholder func(n int) string
	// selectAll renders a whole-referent SELECT item.
	selectAll func(alias string) string
}

var (
	// Canonical keeps the ?N placeholders and selects a referent by its alias.
	Canonical = Dialect{
		name:      "canonical",
		selectAll: func(alias string) string { return alias },
	}
	// SQLite uses numbered ?NNN placeholders, which start at 1.
	SQLite = Dialect{
		name:        "sqlite",
		placeholder: func(n int) string { return "?" + strconv.Itoa(n+1) },
		selectAll:   func(alias string) string { return alias + ".*" },
	}
	// Postgres uses $N placeholders, which start at 1.
	Postgres = Dialect{
		name:        "postgres",
		placeholder: func(n int) string { return "$" + strconv.Itoa(n+1) },
		selectAll:   func(alias string) string { return alias + ".*" },
	}
)

// DialectByName returns the dialect with the given name.
func DialectByName(name string) (Dialect, error) {
	for _, d := range []Dialect{Canonical, SQLite, Postgres} {
		if d.name == strings.ToLower(name) {
			return d, nil
		}
	}
	return Dialect{}, fmt.Errorf("unknown dialect %q", name)
}

// Name returns the name of the dialect.
func (d Dialect) Name() string {
	return d.name
}

func (d Dialect) referent(alias string) string {
	if d.selectAll == nil {
		return alias
	}
	return d.selectAll(alias)
}

// argCollector is a ParamTarget that records the values in placeholder order.
type argCollector struct {
	values []any
}

func (ac *argCollector) SetParameter(_ int, value any) error {
	ac.values = append(ac.values, value)
	return nil
}

// Substitute rewrites the ?N placeholders of text into the driver syntax of
// the dialect and returns the matching driver arguments. A slice value is
// expanded into one driver argument per element.
func (d Dialect) Substitute(text string, b *Bindings) (string, []any, error) {
	ac := &argCollector{}
	if err := b.ResolveParams(text, ac); err != nil {
		return "", nil, err
	}
	if d.placeholder == nil {
		return text, ac.values, nil
	}

	var args []any
	var sb strings.Builder
	last := 0
	for i, loc := range placeholderRx.FindAllStringIndex(text, -1) {
		sb.WriteString(text[last:loc[0]])
		last = loc[1]
		elems, ok := expand(ac.values[i])
		if !ok {
			sb.WriteString(d.placeholder(len(args)))
			args = append(args, ac.values[i])
			continue
		}
		if len(elems) == 0 {
			return "", nil, fmt.Errorf("cannot bind empty collection to placeholder %s", text[loc[0]:loc[1]])
		}
		for j, elem := range elems {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.placeholder(len(args)))
			args = append(args, elem)
		}
	}
	sb.WriteString(text[last:])
	return sb.String(), args, nil
}

// expand returns the elements of a slice or array value. Byte slices are
// treated as a single value.
func expand(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
	default:
		return nil, false
	}
	elems := make([]any, rv.Len())
	for i := range elems {
		elems[i] = rv.Index(i).Interface()
	}
	return elems, true
}
