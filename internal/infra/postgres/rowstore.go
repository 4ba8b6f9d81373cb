package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-gateway/internal/rowstore"
)

// RowStore implements rowstore.Store on Postgres. Conditional writes are plain guarded UPDATEs; Postgres
// row locks make the check and the write atomic.
type RowStore struct {
	pool *pgxpool.Pool
}

func NewRowStore(pool *pgxpool.Pool) *RowStore {
	return &RowStore{pool: pool}
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, url string) (*RowStore, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewRowStore(pool), nil
}

func (s *RowStore) Insert(ctx context.Context, table string, row rowstore.Row) error {
	applied, err := s.InsertIfAbsent(ctx, table, row)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: %s", rowstore.ErrDuplicate, table)
	}
	return nil
}

func (s *RowStore) InsertIfAbsent(ctx context.Context, table string, row rowstore.Row) (bool, error) {
	stmt, args, err := insertStatement(table, row)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("insert %s: %w", table, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *RowStore) Select(ctx context.Context, table string, columns []string, where rowstore.Conditions) ([]rowstore.Row, error) {
	stmt, args, err := selectStatement(table, columns, where)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := make([]rowstore.Row, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		row := make(rowstore.Row, len(values))
		for i, v := range values {
			row[string(fields[i].Name)] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return out, nil
}

func (s *RowStore) Update(ctx context.Context, table string, set rowstore.Row, where rowstore.Conditions) error {
	stmt, args, err := updateStatement(table, set, where, nil)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

func (s *RowStore) CompareAndSwap(ctx context.Context, table string, set rowstore.Row, where, expect rowstore.Conditions) (bool, error) {
	stmt, args, err := updateStatement(table, set, where, expect)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("conditional update %s: %w", table, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *RowStore) Delete(ctx context.Context, table string, where rowstore.Conditions) error {
	stmt, args, err := deleteStatement(table, where)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

func (s *RowStore) Close() error {
	s.pool.Close()
	return nil
}
