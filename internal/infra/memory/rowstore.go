package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"quiz-gateway/internal/rowstore"
)

// RowStore is an in-process rowstore.Store. Every operation runs under one lock, so CompareAndSwap is atomic.
type RowStore struct {
	keys map[string][]string

	mu     sync.RWMutex
	tables map[string]map[string]rowstore.Row
}

// NewRowStore builds a store for the given tables (table name -> primary key columns).
func NewRowStore(keys map[string][]string) *RowStore {
	s := &RowStore{
		keys:   make(map[string][]string, len(keys)),
		tables: make(map[string]map[string]rowstore.Row, len(keys)),
	}
	for table, cols := range keys {
		s.keys[table] = append([]string(nil), cols...)
		s.tables[table] = make(map[string]rowstore.Row)
	}
	return s
}

func (s *RowStore) Insert(_ context.Context, table string, row rowstore.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, key, err := s.locate(table, row)
	if err != nil {
		return err
	}
	if _, ok := rows[key]; ok {
		return fmt.Errorf("%w: %s", rowstore.ErrDuplicate, table)
	}
	rows[key] = copyRow(row)
	return nil
}

func (s *RowStore) InsertIfAbsent(_ context.Context, table string, row rowstore.Row) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, key, err := s.locate(table, row)
	if err != nil {
		return false, err
	}
	if _, ok := rows[key]; ok {
		return false, nil
	}
	rows[key] = copyRow(row)
	return true, nil
}

func (s *RowStore) Select(_ context.Context, table string, columns []string, where rowstore.Conditions) ([]rowstore.Row, error) {
	if err := checkColumns(columns, where); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.tables[table]
	if !ok {
		return nil, unknownTable(table)
	}
	out := make([]rowstore.Row, 0)
	for _, row := range rows {
		if !matches(row, where) {
			continue
		}
		out = append(out, project(row, columns))
	}
	return out, nil
}

func (s *RowStore) Update(_ context.Context, table string, set rowstore.Row, where rowstore.Conditions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched, err := s.matching(table, set, where)
	if err != nil {
		return err
	}
	for _, row := range matched {
		for col, v := range set {
			row[col] = v
		}
	}
	return nil
}

func (s *RowStore) CompareAndSwap(_ context.Context, table string, set rowstore.Row, where, expect rowstore.Conditions) (bool, error) {
	if err := checkColumns(nil, expect); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	matched, err := s.matching(table, set, where)
	if err != nil {
		return false, err
	}
	if len(matched) == 0 {
		return false, nil
	}
	for _, row := range matched {
		if !matches(row, expect) {
			return false, nil
		}
	}
	for _, row := range matched {
		for col, v := range set {
			row[col] = v
		}
	}
	return true, nil
}

func (s *RowStore) Delete(_ context.Context, table string, where rowstore.Conditions) error {
	if len(where) == 0 {
		return rowstore.ErrNoConditions
	}
	if err := checkColumns(nil, where); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table]
	if !ok {
		return unknownTable(table)
	}
	for key, row := range rows {
		if matches(row, where) {
			delete(rows, key)
		}
	}
	return nil
}

func (s *RowStore) Close() error { return nil }

func (s *RowStore) locate(table string, row rowstore.Row) (map[string]rowstore.Row, string, error) {
	if len(row) == 0 {
		return nil, "", rowstore.ErrEmptyRow
	}
	if err := checkColumns(rowstore.SortedColumns(row), nil); err != nil {
		return nil, "", err
	}
	rows, ok := s.tables[table]
	if !ok {
		return nil, "", unknownTable(table)
	}
	key, err := s.keyOf(table, row)
	if err != nil {
		return nil, "", err
	}
	return rows, key, nil
}

// matching returns the live rows selected by where, refusing writes to key columns.
func (s *RowStore) matching(table string, set rowstore.Row, where rowstore.Conditions) ([]rowstore.Row, error) {
	if len(set) == 0 {
		return nil, rowstore.ErrEmptyRow
	}
	if len(where) == 0 {
		return nil, rowstore.ErrNoConditions
	}
	if err := checkColumns(rowstore.SortedColumns(set), where); err != nil {
		return nil, err
	}
	rows, ok := s.tables[table]
	if !ok {
		return nil, unknownTable(table)
	}
	for _, col := range s.keys[table] {
		if _, ok := set[col]; ok {
			return nil, fmt.Errorf("memory rowstore: cannot update key column %q of %s", col, table)
		}
	}
	var out []rowstore.Row
	for _, row := range rows {
		if matches(row, where) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *RowStore) keyOf(table string, row rowstore.Row) (string, error) {
	parts := make([]string, 0, len(s.keys[table]))
	for _, col := range s.keys[table] {
		v, ok := row[col]
		if !ok || v == nil {
			return "", fmt.Errorf("memory rowstore: missing key column %q for %s", col, table)
		}
		parts = append(parts, keyPart(v))
	}
	return strings.Join(parts, "\x00"), nil
}

func keyPart(v any) string {
	if t, ok := v.(time.Time); ok {
		return fmt.Sprint(t.UnixNano())
	}
	return fmt.Sprint(v)
}

func matches(row rowstore.Row, conds rowstore.Conditions) bool {
	for col, want := range conds {
		if !equal(row[col], want) {
			return false
		}
	}
	return true
}

func equal(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if ia, ok := asInt64(a); ok {
		ib, ok := asInt64(b)
		return ok && ia == ib
	}
	return a == b
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

func project(row rowstore.Row, columns []string) rowstore.Row {
	if len(columns) == 0 {
		return copyRow(row)
	}
	out := make(rowstore.Row, len(columns))
	for _, col := range columns {
		out[col] = row[col]
	}
	return out
}

func copyRow(row rowstore.Row) rowstore.Row {
	out := make(rowstore.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func checkColumns(columns []string, conds rowstore.Conditions) error {
	for _, col := range columns {
		if err := rowstore.CheckIdentifier(col); err != nil {
			return err
		}
	}
	for col := range conds {
		if err := rowstore.CheckIdentifier(col); err != nil {
			return err
		}
	}
	return nil
}

func unknownTable(table string) error {
	return fmt.Errorf("memory rowstore: unknown table %q", table)
}
