// Package rowstore defines the generic table/column/condition contract the scoring core uses to talk to a
// column-family style row store. It holds no business logic.
package rowstore

import (
	"context"
	"errors"
)

// Row is one record keyed by column name.
type Row map[string]any

// Conditions are column equality predicates joined with AND.
type Conditions map[string]any

var (
	// ErrInvalidIdentifier rejects table or column names outside [a-z_][a-z0-9_]*.
	ErrInvalidIdentifier = errors.New("rowstore: invalid identifier")
	// ErrDuplicate is returned by Insert on stores without upsert semantics when the key already exists.
	ErrDuplicate = errors.New("rowstore: duplicate key")
	// ErrNoConditions refuses unbounded deletes and updates.
	ErrNoConditions = errors.New("rowstore: no conditions specified")
	// ErrEmptyRow refuses inserts and updates that carry no columns.
	ErrEmptyRow = errors.New("rowstore: no data")
)

// Store is a parameterized insert/select/update/delete surface over named tables.
//
// Insert on Scylla is an upsert; the other backends reject an existing key with ErrDuplicate. Callers that
// need a definite answer use InsertIfAbsent.
type Store interface {
	Insert(ctx context.Context, table string, row Row) error
	InsertIfAbsent(ctx context.Context, table string, row Row) (bool, error)
	// Select returns all columns when columns is empty.
	Select(ctx context.Context, table string, columns []string, where Conditions) ([]Row, error)
	Update(ctx context.Context, table string, set Row, where Conditions) error
	// CompareAndSwap applies set to the row matched by where only if every column in expect still holds
	// the expected value. It reports whether the write was applied.
	CompareAndSwap(ctx context.Context, table string, set Row, where, expect Conditions) (bool, error)
	Delete(ctx context.Context, table string, where Conditions) error
	Close() error
}
