package query

import (
	"errors"
	"fmt"
	"strings"
)

// Direction is a validated sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// ErrInvalidDirection is returned by ParseDirection for anything other than
// asc or desc.
var ErrInvalidDirection = errors.New("invalid sort order")

// ParseDirection accepts "asc" or "desc" in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc":
		return Asc, nil
	case "desc":
		return Desc, nil
	}
	return "", ErrInvalidDirection
}

// Statement is generated SQL text plus its bound arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Assignment binds a value to a column for INSERT and UPDATE.
type Assignment struct {
	Column Column
	Value  any
}

// Set is shorthand for building an Assignment.
func Set(c Column, v any) Assignment {
	return Assignment{Column: c, Value: v}
}

type cond struct {
	col Column
	val any
}

func writeWhere(sb *strings.Builder, conds []cond, args []any) []any {
	if len(conds) == 0 {
		return args
	}
	sb.WriteString(" WHERE ")
	for i, c := range conds {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		sb.WriteString(c.col.name)
		sb.WriteString(" = ?")
		args = append(args, c.val)
	}
	return args
}

func (t *Table) checkConds(conds []cond) error {
	for _, c := range conds {
		if err := t.owns(c.col); err != nil {
			return err
		}
	}
	return nil
}

// SelectBuilder assembles a SELECT (or its COUNT form) over one table.
type SelectBuilder struct {
	table    *Table
	cols     []Column
	conds    []cond
	order    *Column
	dir      Direction
	limit    int
	offset   int
	hasLimit bool
}

// Select starts a SELECT of the given columns; no columns means every
// declared column, in declaration order.
func (t *Table) Select(cols ...Column) *SelectBuilder {
	return &SelectBuilder{table: t, cols: cols}
}

// Where adds an equality condition bound as a parameter.
func (b *SelectBuilder) Where(c Column, v any) *SelectBuilder {
	b.conds = append(b.conds, cond{col: c, val: v})
	return b
}

// OrderBy sets the single sort key.
func (b *SelectBuilder) OrderBy(c Column, d Direction) *SelectBuilder {
	b.order = &c
	b.dir = d
	return b
}

// Page applies LIMIT and OFFSET, both bound as parameters.
func (b *SelectBuilder) Page(limit, offset int) *SelectBuilder {
	b.limit, b.offset, b.hasLimit = limit, offset, true
	return b
}

// Projection returns the columns the statement will return.
func (b *SelectBuilder) Projection() []Column {
	if len(b.cols) == 0 {
		return b.table.Columns()
	}
	out := make([]Column, len(b.cols))
	copy(out, b.cols)
	return out
}

// Build renders the SELECT statement.
func (b *SelectBuilder) Build() (Statement, error) {
	t := b.table
	cols := b.Projection()
	for _, c := range cols {
		if err := t.owns(c); err != nil {
			return Statement{}, err
		}
	}
	if err := t.checkConds(b.conds); err != nil {
		return Statement{}, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.name)
	}
	sb.WriteString(" FROM ")
	sb.WriteString(t.name)
	args := writeWhere(&sb, b.conds, nil)

	if b.order != nil {
		if err := t.owns(*b.order); err != nil {
			return Statement{}, err
		}
		if b.dir != Asc && b.dir != Desc {
			return Statement{}, ErrInvalidDirection
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(b.order.name)
		sb.WriteString(" ")
		sb.WriteString(string(b.dir))
	}
	if b.hasLimit {
		if b.limit < 0 || b.offset < 0 {
			return Statement{}, fmt.Errorf("query: negative limit or offset")
		}
		sb.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, b.limit, b.offset)
	}
	return Statement{SQL: sb.String(), Args: args}, nil
}

// Count renders SELECT COUNT(*) with the same conditions, ignoring
// projection, order and paging.
func (b *SelectBuilder) Count() (Statement, error) {
	if err := b.table.checkConds(b.conds); err != nil {
		return Statement{}, err
	}
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) FROM ")
	sb.WriteString(b.table.name)
	args := writeWhere(&sb, b.conds, nil)
	return Statement{SQL: sb.String(), Args: args}, nil
}

// InsertBuilder assembles an INSERT.
type InsertBuilder struct {
	table   *Table
	assigns []Assignment
	replace bool
}

// Insert starts an INSERT of the given assignments.
func (t *Table) Insert(assigns ...Assignment) *InsertBuilder {
	return &InsertBuilder{table: t, assigns: assigns}
}

// OrReplace turns the statement into an insert-or-replace keyed by the
// table's unique keys.
func (b *InsertBuilder) OrReplace() *InsertBuilder {
	b.replace = true
	return b
}

// Build renders the INSERT for the dialect.
func (b *InsertBuilder) Build(d Dialect) (Statement, error) {
	if len(b.assigns) == 0 {
		return Statement{}, fmt.Errorf("query: insert into %s without columns", b.table.name)
	}
	var sb strings.Builder
	switch {
	case !b.replace:
		sb.WriteString("INSERT INTO ")
	case d == SQLite:
		sb.WriteString("INSERT OR REPLACE INTO ")
	case d == MySQL:
		sb.WriteString("REPLACE INTO ")
	default:
		return Statement{}, fmt.Errorf("query: unsupported dialect %q", d)
	}
	sb.WriteString(b.table.name)
	sb.WriteString(" (")
	args := make([]any, 0, len(b.assigns))
	seen := make(map[string]bool, len(b.assigns))
	for i, a := range b.assigns {
		if err := b.table.owns(a.Column); err != nil {
			return Statement{}, err
		}
		if seen[a.Column.name] {
			return Statement{}, fmt.Errorf("query: column %s assigned twice", a.Column.name)
		}
		seen[a.Column.name] = true
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a.Column.name)
		args = append(args, a.Value)
	}
	sb.WriteString(") VALUES (")
	sb.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(b.assigns)), ", "))
	sb.WriteString(")")
	return Statement{SQL: sb.String(), Args: args}, nil
}

// UpdateBuilder assembles an UPDATE.
type UpdateBuilder struct {
	table   *Table
	assigns []Assignment
	touch   *Column
	conds   []cond
}

// Update starts an UPDATE of the given assignments.
func (t *Table) Update(assigns ...Assignment) *UpdateBuilder {
	return &UpdateBuilder{table: t, assigns: assigns}
}

// Touch sets c to CURRENT_TIMESTAMP on every update. A caller supplied value
// for the same column is dropped.
func (b *UpdateBuilder) Touch(c Column) *UpdateBuilder {
	b.touch = &c
	return b
}

// Where adds an equality condition.
func (b *UpdateBuilder) Where(c Column, v any) *UpdateBuilder {
	b.conds = append(b.conds, cond{col: c, val: v})
	return b
}

// Build renders the UPDATE. Updates without a WHERE clause are refused.
func (b *UpdateBuilder) Build() (Statement, error) {
	t := b.table
	if len(b.conds) == 0 {
		return Statement{}, fmt.Errorf("query: update of %s without condition", t.name)
	}
	if err := t.checkConds(b.conds); err != nil {
		return Statement{}, err
	}
	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(t.name)
	sb.WriteString(" SET ")
	args := make([]any, 0, len(b.assigns)+len(b.conds))
	n := 0
	seen := make(map[string]bool, len(b.assigns))
	for _, a := range b.assigns {
		if err := t.owns(a.Column); err != nil {
			return Statement{}, err
		}
		if b.touch != nil && a.Column.name == b.touch.name {
			continue
		}
		if seen[a.Column.name] {
			return Statement{}, fmt.Errorf("query: column %s assigned twice", a.Column.name)
		}
		seen[a.Column.name] = true
		if n > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a.Column.name)
		sb.WriteString(" = ?")
		args = append(args, a.Value)
		n++
	}
	if b.touch != nil {
		if err := t.owns(*b.touch); err != nil {
			return Statement{}, err
		}
		if n > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(b.touch.name)
		sb.WriteString(" = CURRENT_TIMESTAMP")
		n++
	}
	if n == 0 {
		return Statement{}, fmt.Errorf("query: update of %s without assignments", t.name)
	}
	args = writeWhere(&sb, b.conds, args)
	return Statement{SQL: sb.String(), Args: args}, nil
}

// DeleteBuilder assembles a DELETE.
type DeleteBuilder struct {
	table *Table
	conds []cond
}

// Delete starts a DELETE.
func (t *Table) Delete() *DeleteBuilder {
	return &DeleteBuilder{table: t}
}

// Where adds an equality condition.
func (b *DeleteBuilder) Where(c Column, v any) *DeleteBuilder {
	b.conds = append(b.conds, cond{col: c, val: v})
	return b
}

// Build renders the DELETE. Deletes without a WHERE clause are refused.
func (b *DeleteBuilder) Build() (Statement, error) {
	if len(b.conds) == 0 {
		return Statement{}, fmt.Errorf("query: delete from %s without condition", b.table.name)
	}
	if err := b.table.checkConds(b.conds); err != nil {
		return Statement{}, err
	}
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(b.table.name)
	args := writeWhere(&sb, b.conds, nil)
	return Statement{SQL: sb.String(), Args: args}, nil
}
