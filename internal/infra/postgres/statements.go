package postgres

import (
	"quiz-gateway/internal/rowstore"
)

func insertStatement(table string, row rowstore.Row) (string, []any, error) {
	b := rowstore.NewBuilder(rowstore.Dollar)
	t, err := b.Table(table)
	if err != nil {
		return "", nil, err
	}
	values, err := b.Values(row)
	if err != nil {
		return "", nil, err
	}
	return "INSERT INTO " + t + " " + values + " ON CONFLICT DO NOTHING", b.Args(), nil
}

func selectStatement(table string, columns []string, where rowstore.Conditions) (string, []any, error) {
	b := rowstore.NewBuilder(rowstore.Dollar)
	t, err := b.Table(table)
	if err != nil {
		return "", nil, err
	}
	cols, err := b.ColumnList(columns)
	if err != nil {
		return "", nil, err
	}
	stmt := "SELECT " + cols + " FROM " + t
	if len(where) > 0 {
		cond, err := b.Equalities(where)
		if err != nil {
			return "", nil, err
		}
		stmt += " WHERE " + cond
	}
	return stmt, b.Args(), nil
}

// updateStatement renders a guarded UPDATE when expect is non-empty.
func updateStatement(table string, set rowstore.Row, where, expect rowstore.Conditions) (string, []any, error) {
	b := rowstore.NewBuilder(rowstore.Dollar)
	t, err := b.Table(table)
	if err != nil {
		return "", nil, err
	}
	assignments, err := b.Assignments(set)
	if err != nil {
		return "", nil, err
	}
	cond, err := b.Equalities(where)
	if err != nil {
		return "", nil, err
	}
	stmt := "UPDATE " + t + " SET " + assignments + " WHERE " + cond
	if len(expect) > 0 {
		guard, err := b.Equalities(expect)
		if err != nil {
			return "", nil, err
		}
		stmt += " AND " + guard
	}
	return stmt, b.Args(), nil
}

func deleteStatement(table string, where rowstore.Conditions) (string, []any, error) {
	b := rowstore.NewBuilder(rowstore.Dollar)
	t, err := b.Table(table)
	if err != nil {
		return "", nil, err
	}
	cond, err := b.Equalities(where)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + t + " WHERE " + cond, b.Args(), nil
}
