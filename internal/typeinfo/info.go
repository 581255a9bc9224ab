package typeinfo

import (
	"reflect"
)

// Field represents a single field from a struct type.
type Field struct {
	Type reflect.Type

	// Name is the name of the struct field. It is the property name used in
	// expressions.
	Name string

	// Index of this field in the structure.
	Index int

	// Tag is the column name from the field's "db" tag, if any.
	Tag string

	// OmitEmpty is true when "omitempty" is
	// a property of the field's "db" tag.
	OmitEmpty bool
}

// Info represents reflected information about a struct type. An Info is a
// referent: expressions bound to it render against its table.
type Info struct {
	Type reflect.Type

	// Fields holds the exported fields in declaration order.
	Fields []Field

	// Relate field names to fields.
	nameToField map[string]int

	// table is the result of the TableName method, if the type has one.
	table string
}

// Name returns the name of the struct type.
func (info *Info) Name() string {
	return info.Type.Name()
}

// Field returns the field with the given name.
func (info *Info) Field(name string) (Field, bool) {
	i, ok := info.nameToField[name]
	if !ok {
		return Field{}, false
	}
	return info.Fields[i], true
}

// Tabler is implemented by referent types that name their own table.
type Tabler interface {
	TableName() string
}
