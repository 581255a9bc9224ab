// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"fmt"

	"github.com/canonical/sqlmatch/internal/expr"
)

// IdentityNaming names tables after their Go type and columns after their Go
// field.
type IdentityNaming struct{}

var _ expr.Naming = IdentityNaming{}

// TableName returns the name of the struct type.
func (IdentityNaming) TableName(r expr.Referent) (string, error) {
	info, err := asInfo(r)
	if err != nil {
		return "", err
	}
	return info.Type.Name(), nil
}

// ColumnName returns the name of the struct field.
func (IdentityNaming) ColumnName(r expr.Referent, property string) (string, error) {
	f, err := field(r, property)
	if err != nil {
		return "", err
	}
	return f.Name, nil
}

// TagNaming names tables with the TableName method of the type and columns
// with the "db" tag of the field. Types without the method and fields without
// the tag fall back to identity naming.
type TagNaming struct{}

var _ expr.Naming = TagNaming{}

// TableName returns the result of the TableName method of the referent type,
// or the type name.
func (TagNaming) TableName(r expr.Referent) (string, error) {
	info, err := asInfo(r)
	if err != nil {
		return "", err
	}
	if info.table != "" {
		return info.table, nil
	}
	return info.Type.Name(), nil
}

// ColumnName returns the "db" tag of the field, or the field name.
func (TagNaming) ColumnName(r expr.Referent, property string) (string, error) {
	f, err := field(r, property)
	if err != nil {
		return "", err
	}
	if f.Tag != "" {
		return f.Tag, nil
	}
	return f.Name, nil
}

func asInfo(r expr.Referent) (*Info, error) {
	info, ok := r.(*Info)
	if !ok || info.Type == nil {
		name := "<nil>"
		if r != nil {
			name = r.Name()
		}
		return nil, fmt.Errorf("referent %q is not a struct type", name)
	}
	return info, nil
}

func field(r expr.Referent, property string) (Field, error) {
	info, err := asInfo(r)
	if err != nil {
		return Field{}, err
	}
	f, ok := info.Field(property)
	if !ok {
		return Field{}, fmt.Errorf("type %q has no property %q", info.Name(), property)
	}
	return f, nil
}

// ColumnFields relates the column names of the referent under naming to its
// fields.
func ColumnFields(naming expr.Naming, info *Info) (map[string]Field, error) {
	columns := make(map[string]Field, len(info.Fields))
	for _, f := range info.Fields {
		col, err := naming.ColumnName(info, f.Name)
		if err != nil {
			return nil, err
		}
		if dup, ok := columns[col]; ok {
			return nil, fmt.Errorf("fields %q and %q of type %q share column %q", dup.Name, f.Name, info.Name(), col)
		}
		columns[col] = f
	}
	return columns, nil
}
