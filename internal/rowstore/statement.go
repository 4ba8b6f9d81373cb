package rowstore

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// CheckIdentifier validates a table or column name before it is spliced into statement text.
func CheckIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// Quote returns a validated, double-quoted identifier.
func Quote(name string) (string, error) {
	if err := CheckIdentifier(name); err != nil {
		return "", err
	}
	return `"` + name + `"`, nil
}

// SortedColumns returns the keys of m in lexical order so placeholders and values line up deterministically.
func SortedColumns[M ~map[string]any](m M) []string {
	cols := make([]string, 0, len(m))
	for col := range m {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// Placeholder renders the bind marker for the n-th (1-based) argument.
type Placeholder func(n int) string

// QuestionMark is the CQL bind marker.
func QuestionMark(int) string { return "?" }

// Dollar is the postgres bind marker.
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// Builder accumulates statement fragments and their bound arguments.
type Builder struct {
	ph   Placeholder
	args []any
}

func NewBuilder(ph Placeholder) *Builder {
	return &Builder{ph: ph}
}

func (b *Builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.ph(len(b.args))
}

// Args returns arguments in bind order.
func (b *Builder) Args() []any {
	return b.args
}

// Table returns the quoted table name.
func (b *Builder) Table(name string) (string, error) {
	return Quote(name)
}

// ColumnList renders a select list; an empty list selects every column.
func (b *Builder) ColumnList(columns []string) (string, error) {
	if len(columns) == 0 {
		return "*", nil
	}
	quoted := make([]string, 0, len(columns))
	for _, col := range columns {
		q, err := Quote(col)
		if err != nil {
			return "", err
		}
		quoted = append(quoted, q)
	}
	return strings.Join(quoted, ", "), nil
}

// Values renders "(cols) VALUES (markers)" for an insert.
func (b *Builder) Values(row Row) (string, error) {
	if len(row) == 0 {
		return "", ErrEmptyRow
	}
	cols := SortedColumns(row)
	quoted := make([]string, 0, len(cols))
	markers := make([]string, 0, len(cols))
	for _, col := range cols {
		q, err := Quote(col)
		if err != nil {
			return "", err
		}
		quoted = append(quoted, q)
		markers = append(markers, b.bind(row[col]))
	}
	return fmt.Sprintf("(%s) VALUES (%s)", strings.Join(quoted, ", "), strings.Join(markers, ", ")), nil
}

// Assignments renders `"a" = ?, "b" = ?` for an update.
func (b *Builder) Assignments(set Row) (string, error) {
	if len(set) == 0 {
		return "", ErrEmptyRow
	}
	return b.pairs(set, ", ")
}

// Equalities renders `"a" = ? AND "b" = ?`.
func (b *Builder) Equalities(conds Conditions) (string, error) {
	if len(conds) == 0 {
		return "", ErrNoConditions
	}
	return b.pairs(conds, " AND ")
}

func (b *Builder) pairs(m map[string]any, sep string) (string, error) {
	parts := make([]string, 0, len(m))
	for _, col := range SortedColumns(m) {
		q, err := Quote(col)
		if err != nil {
			return "", err
		}
		parts = append(parts, q+" = "+b.bind(m[col]))
	}
	return strings.Join(parts, sep), nil
}
