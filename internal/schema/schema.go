// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package schema reads referents and queries declared in YAML documents, for
// tables that have no Go type.
package schema

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/canonical/sqlmatch/internal/expr"
)

// Document is a YAML query document: the referents it mentions and one
// query over them.
type Document struct {
	Referents []ReferentSpec `yaml:"referents"`
	Query     QuerySpec      `yaml:"query"`

	referents map[string]*Referent
}

// ReferentSpec declares a table and the properties it exposes.
type ReferentSpec struct {
	Name       string         `yaml:"name"`
	Table      string         `yaml:"table,omitempty"`
	Properties []PropertySpec `yaml:"properties"`
}

// PropertySpec maps a property to a column. The column defaults to the
// property name.
type PropertySpec struct {
	Name   string `yaml:"name"`
	Column string `yaml:"column,omitempty"`
}

// QuerySpec is a query over the From referent.
type QuerySpec struct {
	From    string     `yaml:"from"`
	Select  []Item     `yaml:"select,omitempty"`
	Where   *Predicate `yaml:"where,omitempty"`
	GroupBy []Item     `yaml:"groupBy,omitempty"`
	Having  *Predicate `yaml:"having,omitempty"`
	OrderBy []Item     `yaml:"orderBy,omitempty"`
}

// Item is an entry of a SELECT, GROUP BY or ORDER BY list. An item without a
// property selects the whole referent.
type Item struct {
	Referent  string `yaml:"referent,omitempty"`
	Property  string `yaml:"property,omitempty"`
	Aggregate string `yaml:"aggregate,omitempty"`
	Desc      bool   `yaml:"desc,omitempty"`
}

// Predicate is a node of a WHERE or HAVING tree. Exactly one of Op, And and
// Or is set. Referent and Property bind the terms below that are not bound
// further down.
type Predicate struct {
	Referent string `yaml:"referent,omitempty"`
	Property string `yaml:"property,omitempty"`

	// Op is one of eq, null, like, gt, lt, in, between and join.
	Op     string `yaml:"op,omitempty"`
	Value  any    `yaml:"value,omitempty"`
	Values []any  `yaml:"values,omitempty"`
	// Join names the property the join matches against.
	Join *Item `yaml:"join,omitempty"`

	And []*Predicate `yaml:"and,omitempty"`
	Or  []*Predicate `yaml:"or,omitempty"`

	Aggregate string `yaml:"aggregate,omitempty"`
	Not       bool   `yaml:"not,omitempty"`
	Closure   bool   `yaml:"closure,omitempty"`
}

// Load reads and parses the document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read query document: %w", err)
	}
	return Parse(data)
}

// Parse parses a document and checks its referents. Unknown fields are
// rejected.
func Parse(data []byte) (*Document, error) {
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("cannot parse query document: %w", err)
	}
	if err := doc.index(); err != nil {
		return nil, fmt.Errorf("invalid query document: %w", err)
	}
	return &doc, nil
}

func (d *Document) index() error {
	d.referents = make(map[string]*Referent, len(d.Referents))
	for _, rs := range d.Referents {
		if rs.Name == "" {
			return fmt.Errorf("referent needs a name")
		}
		if _, ok := d.referents[rs.Name]; ok {
			return fmt.Errorf("referent %q declared twice", rs.Name)
		}
		ref, err := newReferent(rs)
		if err != nil {
			return err
		}
		d.referents[rs.Name] = ref
	}
	if d.Query.From == "" {
		return fmt.Errorf("query needs a from referent")
	}
	return nil
}

// Referent returns the declared referent called name.
func (d *Document) Referent(name string) (*Referent, error) {
	ref, ok := d.referents[name]
	if !ok {
		return nil, fmt.Errorf("unknown referent %q", name)
	}
	return ref, nil
}

// Referent is a table declared in a document.
type Referent struct {
	name    string
	table   string
	columns map[string]string
	props   []string
}

var _ expr.Referent = (*Referent)(nil)

func newReferent(rs ReferentSpec) (*Referent, error) {
	ref := &Referent{
		name:    rs.Name,
		table:   rs.Table,
		columns: make(map[string]string, len(rs.Properties)),
	}
	if ref.table == "" {
		ref.table = rs.Name
	}
	for _, p := range rs.Properties {
		if p.Name == "" {
			return nil, fmt.Errorf("referent %q has a property without a name", rs.Name)
		}
		if _, ok := ref.columns[p.Name]; ok {
			return nil, fmt.Errorf("referent %q declares property %q twice", rs.Name, p.Name)
		}
		col := p.Column
		if col == "" {
			col = p.Name
		}
		ref.columns[p.Name] = col
		ref.props = append(ref.props, p.Name)
	}
	return ref, nil
}

// Name returns the name of the referent.
func (r *Referent) Name() string {
	return r.name
}

// Properties returns the declared properties in declaration order.
func (r *Referent) Properties() []string {
	return r.props
}

// Naming maps document referents to the tables and columns they declare.
type Naming struct{}

var _ expr.Naming = Naming{}

func (Naming) referent(r expr.Referent) (*Referent, error) {
	ref, ok := r.(*Referent)
	if !ok || ref == nil {
		name := "<nil>"
		if r != nil {
			name = r.Name()
		}
		return nil, fmt.Errorf("referent %q is not declared in a query document", name)
	}
	return ref, nil
}

// TableName returns the declared table of r.
func (n Naming) TableName(r expr.Referent) (string, error) {
	ref, err := n.referent(r)
	if err != nil {
		return "", err
	}
	return ref.table, nil
}

// ColumnName returns the declared column of property.
func (n Naming) ColumnName(r expr.Referent, property string) (string, error) {
	ref, err := n.referent(r)
	if err != nil {
		return "", err
	}
	col, ok := ref.columns[property]
	if !ok {
		return "", fmt.Errorf("referent %q has no property %q", ref.name, property)
	}
	return col, nil
}
