package scylla

import "quiz-gateway/internal/rowstore"

func insertStatement(table string, row rowstore.Row, ifAbsent bool) (string, []any, error) {
	b := rowstore.NewBuilder(rowstore.QuestionMark)
	t, err := b.Table(table)
	if err != nil {
		return "", nil, err
	}
	values, err := b.Values(row)
	if err != nil {
		return "", nil, err
	}
	stmt := "INSERT INTO " + t + " " + values
	if ifAbsent {
		stmt += " IF NOT EXISTS"
	}
	return stmt, b.Args(), nil
}

func selectStatement(table string, columns []string, where rowstore.Conditions) (string, []any, error) {
	b := rowstore.NewBuilder(rowstore.QuestionMark)
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

// updateStatement renders a lightweight transaction when expect is non-empty.
func updateStatement(table string, set rowstore.Row, where, expect rowstore.Conditions) (string, []any, error) {
	b := rowstore.NewBuilder(rowstore.QuestionMark)
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
		stmt += " IF " + guard
	}
	return stmt, b.Args(), nil
}

func deleteStatement(table string, where rowstore.Conditions) (string, []any, error) {
	b := rowstore.NewBuilder(rowstore.QuestionMark)
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
