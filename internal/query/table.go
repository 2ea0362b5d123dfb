// Package query builds parameterized SQL for a fixed table definition.
//
// Identifiers that reach the generated text (table, column names and sort
// direction) can only come from a Table declared in code; every value is
// emitted as a "?" placeholder and returned in Statement.Args. Callers turn
// untrusted names into Columns with Table.Column or Table.Resolve, which
// reject anything outside the declared column list.
package query

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind describes how values of a column are represented in Go.
type Kind int

const (
	KindInt Kind = iota
	KindText
	KindTime
)

// Dialect selects the few keywords that differ between supported stores.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// Valid reports whether d is a supported dialect.
func (d Dialect) Valid() bool {
	return d == MySQL || d == SQLite
}

// Def declares one column of a table.
type Def struct {
	Name string
	Kind Kind
}

// Column is an allow-listed column of a Table.
type Column struct {
	table *Table
	name  string
	kind  Kind
}

// Name returns the column name.
func (c Column) Name() string { return c.name }

// Kind returns the value kind of the column.
func (c Column) Kind() Kind { return c.kind }

// UnknownColumnError reports a column name that is not part of the table.
type UnknownColumnError struct {
	Table string
	Name  string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("invalid field name: %s", e.Name)
}

// Table is a fixed table definition whose columns form the allow-list.
type Table struct {
	name    string
	columns []Column
	index   map[string]Column
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// NewTable declares a table. It panics on malformed identifiers or duplicate
// columns since definitions are package-level constants.
func NewTable(name string, defs ...Def) *Table {
	if !identRe.MatchString(name) {
		panic(fmt.Sprintf("query: invalid table name %q", name))
	}
	t := &Table{name: name, index: make(map[string]Column, len(defs))}
	for _, d := range defs {
		if !identRe.MatchString(d.Name) {
			panic(fmt.Sprintf("query: invalid column name %q", d.Name))
		}
		if _, dup := t.index[d.Name]; dup {
			panic(fmt.Sprintf("query: duplicate column %q", d.Name))
		}
		c := Column{table: t, name: d.Name, kind: d.Kind}
		t.columns = append(t.columns, c)
		t.index[d.Name] = c
	}
	return t
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Columns returns the declared columns in declaration order.
func (t *Table) Columns() []Column {
	out := make([]Column, len(t.columns))
	copy(out, t.columns)
	return out
}

// Column looks up an allow-listed column by exact name.
func (t *Table) Column(name string) (Column, bool) {
	c, ok := t.index[name]
	return c, ok
}

// MustColumn is Column for names known at compile time.
func (t *Table) MustColumn(name string) Column {
	c, ok := t.index[name]
	if !ok {
		panic(fmt.Sprintf("query: table %s has no column %q", t.name, name))
	}
	return c
}

// Resolve maps every name to a column and fails on the first unknown one.
func (t *Table) Resolve(names []string) ([]Column, error) {
	out := make([]Column, 0, len(names))
	for _, n := range names {
		c, ok := t.index[n]
		if !ok {
			return nil, &UnknownColumnError{Table: t.name, Name: n}
		}
		out = append(out, c)
	}
	return out, nil
}

// ParseFieldList splits a comma separated projection string, trimming blanks,
// and resolves each entry against the table. An empty string yields nil.
func (t *Table) ParseFieldList(fields string) ([]Column, error) {
	var names []string
	for _, f := range strings.Split(fields, ",") {
		if f = strings.TrimSpace(f); f != "" {
			names = append(names, f)
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	return t.Resolve(names)
}

func (t *Table) owns(c Column) error {
	if c.table != t || c.name == "" {
		return fmt.Errorf("query: column %q does not belong to table %s", c.name, t.name)
	}
	return nil
}
