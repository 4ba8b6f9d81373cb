package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"quiz-gateway/internal/rowstore"
)

// RowStore implements rowstore.Store with CQL. InsertIfAbsent and CompareAndSwap are lightweight
// transactions; plain Insert is an upsert.
type RowStore struct {
	session *gocql.Session
}

func NewRowStore(session *gocql.Session) *RowStore {
	return &RowStore{session: session}
}

func (s *RowStore) Insert(ctx context.Context, table string, row rowstore.Row) error {
	stmt, args, err := insertStatement(table, row, false)
	if err != nil {
		return err
	}
	if err := s.session.Query(stmt, args...).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func (s *RowStore) InsertIfAbsent(ctx context.Context, table string, row rowstore.Row) (bool, error) {
	stmt, args, err := insertStatement(table, row, true)
	if err != nil {
		return false, err
	}
	applied, err := s.session.Query(stmt, args...).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("insert %s: %w", table, err)
	}
	return applied, nil
}

func (s *RowStore) Select(ctx context.Context, table string, columns []string, where rowstore.Conditions) ([]rowstore.Row, error) {
	stmt, args, err := selectStatement(table, columns, where)
	if err != nil {
		return nil, err
	}
	iter := s.session.Query(stmt, args...).WithContext(ctx).Iter()
	out := make([]rowstore.Row, 0)
	for {
		row := make(map[string]interface{})
		if !iter.MapScan(row) {
			break
		}
		out = append(out, row)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return out, nil
}

func (s *RowStore) Update(ctx context.Context, table string, set rowstore.Row, where rowstore.Conditions) error {
	stmt, args, err := updateStatement(table, set, where, nil)
	if err != nil {
		return err
	}
	if err := s.session.Query(stmt, args...).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

func (s *RowStore) CompareAndSwap(ctx context.Context, table string, set rowstore.Row, where, expect rowstore.Conditions) (bool, error) {
	if len(expect) == 0 {
		return false, rowstore.ErrNoConditions
	}
	stmt, args, err := updateStatement(table, set, where, expect)
	if err != nil {
		return false, err
	}
	applied, err := s.session.Query(stmt, args...).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("conditional update %s: %w", table, err)
	}
	return applied, nil
}

func (s *RowStore) Delete(ctx context.Context, table string, where rowstore.Conditions) error {
	stmt, args, err := deleteStatement(table, where)
	if err != nil {
		return err
	}
	if err := s.session.Query(stmt, args...).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

func (s *RowStore) Close() error {
	s.session.Close()
	return nil
}
