// Package migration drives a migration job: it streams the source query, lets a Definition bind
// each record onto the destination write statement, and writes the records in batches under the
// job's transaction mode.
package migration

import (
	"context"

	"github.com/tigerroll/dbmigrator/pkg/migrator/component/reader"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/hook"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/tx"
)

// Definition supplies the table-specific behavior of one migration.
type Definition interface {
	// OtherWork runs before the write of rec is staged, with the destination the record's
	// statements run on. It may return an error or a hook.Result.
	OtherWork(ctx context.Context, rec reader.Record, dst tx.Executor) (hook.Result, error)
	// Bind maps rec onto the placeholders of the write statement.
	// Returning hook.Reject abandons the record; hook.SkipWrite suppresses its write.
	Bind(ctx context.Context, rec reader.Record) (hook.Result, []any, error)
	// Identifier describes rec for diagnostics. It is called after Bind.
	Identifier(rec reader.Record) string
}

// Funcs adapts plain functions to a Definition. Nil functions do nothing.
type Funcs struct {
	OtherWorkFunc  func(ctx context.Context, rec reader.Record, dst tx.Executor) (hook.Result, error)
	BindFunc       func(ctx context.Context, rec reader.Record) (hook.Result, []any, error)
	IdentifierFunc func(rec reader.Record) string
}

// OtherWork calls OtherWorkFunc.
func (f Funcs) OtherWork(ctx context.Context, rec reader.Record, dst tx.Executor) (hook.Result, error) {
	if f.OtherWorkFunc == nil {
		return hook.Proceed(), nil
	}
	return f.OtherWorkFunc(ctx, rec, dst)
}

// Bind calls BindFunc. Without one, the record's values are bound in column order.
func (f Funcs) Bind(ctx context.Context, rec reader.Record) (hook.Result, []any, error) {
	if f.BindFunc == nil {
		return hook.Proceed(), rec.Values(), nil
	}
	return f.BindFunc(ctx, rec)
}

// Identifier calls IdentifierFunc. Without one, the first column is used.
func (f Funcs) Identifier(rec reader.Record) string {
	if f.IdentifierFunc == nil {
		return reader.Text(rec.Value(0))
	}
	return f.IdentifierFunc(rec)
}

var _ Definition = Funcs{}
