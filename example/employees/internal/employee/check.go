package employee

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/dbmigrator/pkg/migrator/component/reader"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/hook"
)

// Check compares an EMP row with the employee row of the same id.
// The lookup query yields id, full_name, hired_on.
type Check struct{}

// NewCheck creates a Check.
func NewCheck() *Check {
	return &Check{}
}

// PrepareLookup looks up by employee number. Retired employees were never migrated.
func (c *Check) PrepareLookup(ctx context.Context, src reader.Record) (hook.Result, []any, error) {
	if src.String("STATUS") == StatusRetired {
		return hook.SkipWrite(), nil, nil
	}
	return hook.Proceed(), []any{src.String("EMP_NO")}, nil
}

// Compare checks the name and the hire date.
func (c *Check) Compare(ctx context.Context, src, dst reader.Record) (hook.Result, error) {
	want := FullName(src.String("FIRST_NM"), src.String("LAST_NM"))
	if got := dst.String("full_name"); got != want {
		return hook.Reject(fmt.Sprintf("full_name differs: source '%s' destination '%s'", want, got)), nil
	}
	hired, err := ParseHireDate(src.String("HIRE_YMD"))
	if err != nil {
		return hook.Reject(err.Error()), nil
	}
	v, _ := dst.Get("hired_on")
	if !sameDay(hired, v) {
		return hook.Reject(fmt.Sprintf("hired_on differs: source '%s' destination '%s'", hired.Format("2006-01-02"), reader.Text(v))), nil
	}
	return hook.Proceed(), nil
}

// SourceIdentifier returns the employee number.
func (c *Check) SourceIdentifier(src reader.Record) string {
	return "EMP_NO=" + src.String("EMP_NO")
}

// DestinationIdentifier returns the employee id.
func (c *Check) DestinationIdentifier(dst reader.Record) string {
	return "id=" + dst.String("id")
}

func sameDay(want time.Time, v any) bool {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01-02") == want.Format("2006-01-02")
	default:
		s := reader.Text(v)
		return len(s) >= 10 && s[:10] == want.Format("2006-01-02")
	}
}
