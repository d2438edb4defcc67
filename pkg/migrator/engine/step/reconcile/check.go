// Package reconcile drives a reconciliation job: for every source record it looks up the paired
// destination row and lets a Check compare the two.
package reconcile

import (
	"context"
	"fmt"

	"github.com/tigerroll/dbmigrator/pkg/migrator/component/reader"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/hook"
)

// Check supplies the table-specific behavior of one reconciliation.
type Check interface {
	// PrepareLookup derives the lookup parameters from the source record.
	// hook.SkipWrite suppresses the lookup; hook.Reject abandons the record.
	PrepareLookup(ctx context.Context, src reader.Record) (hook.Result, []any, error)
	// Compare inspects the destination row paired with src. A mismatch is reported with
	// hook.Reject and a descriptive reason.
	Compare(ctx context.Context, src, dst reader.Record) (hook.Result, error)
	SourceIdentifier(src reader.Record) string
	DestinationIdentifier(dst reader.Record) string
}

// Funcs adapts plain functions to a Check.
type Funcs struct {
	PrepareLookupFunc         func(ctx context.Context, src reader.Record) (hook.Result, []any, error)
	CompareFunc               func(ctx context.Context, src, dst reader.Record) (hook.Result, error)
	SourceIdentifierFunc      func(src reader.Record) string
	DestinationIdentifierFunc func(dst reader.Record) string
}

// PrepareLookup calls PrepareLookupFunc. Without one, the first source column is the only parameter.
func (f Funcs) PrepareLookup(ctx context.Context, src reader.Record) (hook.Result, []any, error) {
	if f.PrepareLookupFunc == nil {
		return hook.Proceed(), []any{src.Value(0)}, nil
	}
	return f.PrepareLookupFunc(ctx, src)
}

// Compare calls CompareFunc. Without one, the columns both records share must hold the same text.
func (f Funcs) Compare(ctx context.Context, src, dst reader.Record) (hook.Result, error) {
	if f.CompareFunc == nil {
		return CompareColumns(src, dst), nil
	}
	return f.CompareFunc(ctx, src, dst)
}

// SourceIdentifier calls SourceIdentifierFunc, or renders the first column.
func (f Funcs) SourceIdentifier(src reader.Record) string {
	if f.SourceIdentifierFunc == nil {
		return reader.Text(src.Value(0))
	}
	return f.SourceIdentifierFunc(src)
}

// DestinationIdentifier calls DestinationIdentifierFunc, or renders the first column.
func (f Funcs) DestinationIdentifier(dst reader.Record) string {
	if f.DestinationIdentifierFunc == nil {
		return reader.Text(dst.Value(0))
	}
	return f.DestinationIdentifierFunc(dst)
}

var _ Check = Funcs{}

// CompareColumns rejects the pair at the first column present in both records whose text differs.
func CompareColumns(src, dst reader.Record) hook.Result {
	for _, name := range src.Columns() {
		want, ok := dst.Get(name)
		if !ok {
			continue
		}
		got, _ := src.Get(name)
		if reader.Text(got) != reader.Text(want) {
			return hook.Reject(fmt.Sprintf("%s differs: source '%s' destination '%s'", name, reader.Text(got), reader.Text(want)))
		}
	}
	return hook.Proceed()
}
