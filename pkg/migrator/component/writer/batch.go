// Package writer provides the write batch the migration engine stages bound records into.
package writer

import (
	"context"
	"fmt"

	"github.com/tigerroll/dbmigrator/pkg/migrator/core/tx"
)

// Batch accumulates bound argument sets for one write statement and executes them together.
// The pending sets are cleared after every Execute, whether it succeeded or not.
// A Batch is owned by one job and is not safe for concurrent use.
type Batch struct {
	query      string  // query is the destination write statement.
	size       int     // size is the write-batch size. A size of 1 means every write runs immediately.
	pending    [][]any // pending holds the argument sets staged since the last Execute.
	executions int     // executions counts non-empty Execute calls that succeeded.
}

// NewBatch creates a new Batch for query.
//
// Parameters:
//
//	query: The destination write statement, with driver placeholders.
//	size: The write-batch size. Values below 1 are treated as 1.
//
// Returns:
//
//	A new Batch instance.
func NewBatch(query string, size int) *Batch {
	if size < 1 {
		size = 1
	}
	return &Batch{query: query, size: size}
}

// Size returns the write-batch size.
func (b *Batch) Size() int { return b.size }

// Pending returns the number of staged argument sets.
func (b *Batch) Pending() int { return len(b.pending) }

// Executions returns how many non-empty batches have been executed without error.
func (b *Batch) Executions() int { return b.executions }

// Add stages one bound argument set.
func (b *Batch) Add(args ...any) {
	b.pending = append(b.pending, args)
}

// Due reports whether the batch must be executed after the record at ordinal: when ordinal is an
// exact multiple of the batch size, or when the record is the last one the cursor will yield.
func (b *Batch) Due(ordinal int, last bool) bool {
	return last || ordinal%b.size == 0
}

// Clear drops every staged argument set.
func (b *Batch) Clear() {
	b.pending = b.pending[:0]
}

// Execute runs every staged argument set against exec, stopping at the first failure.
// The batch is cleared in every case.
//
// Parameters:
//
//	ctx: The context for the operation.
//	exec: The connection or transaction the current record runs in.
//
// Returns:
//
//	The total number of affected rows and the first error encountered.
func (b *Batch) Execute(ctx context.Context, exec tx.Executor) (int64, error) {
	defer b.Clear()
	if len(b.pending) == 0 {
		return 0, nil
	}

	var affected int64
	for i, args := range b.pending {
		res, err := exec.ExecContext(ctx, b.query, args...)
		if err != nil {
			return affected, fmt.Errorf("batch entry %d of %d failed: %w", i+1, len(b.pending), err)
		}
		if n, err := res.RowsAffected(); err == nil {
			affected += n
		}
	}
	b.executions++
	return affected, nil
}

// ExecuteOne runs a single write immediately, bypassing the staged sets.
func (b *Batch) ExecuteOne(ctx context.Context, exec tx.Executor, args ...any) (int64, error) {
	res, err := exec.ExecContext(ctx, b.query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
