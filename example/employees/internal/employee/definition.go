// Package employee holds the hooks that move the legacy EMP table into the employee table and
// reconcile the two afterwards.
package employee

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tigerroll/dbmigrator/pkg/migrator/component/reader"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/hook"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/tx"
)

// Registry keys used in application.yaml.
const (
	MigrationKey = "employees"
	CheckKey     = "employees"
)

// StatusRetired marks legacy rows that are not carried over.
const StatusRetired = "R"

// departmentQuery must be rewritten when the destination is not PostgreSQL.
const departmentQuery = "SELECT id FROM department WHERE code = $1"

// Definition migrates one EMP row. The source select yields
// EMP_NO, FIRST_NM, LAST_NM, HIRE_YMD, DEPT_CD, STATUS in that order.
type Definition struct{}

// NewDefinition creates a Definition.
func NewDefinition() *Definition {
	return &Definition{}
}

// OtherWork resolves the department of rec on the destination. Employees of a department that
// has not been migrated are rejected.
func (d *Definition) OtherWork(ctx context.Context, rec reader.Record, dst tx.Executor) (hook.Result, error) {
	code := strings.TrimSpace(rec.String("DEPT_CD"))
	if code == "" {
		return hook.Proceed(), nil
	}
	var id int64
	err := dst.QueryRowContext(ctx, departmentQuery, code).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return hook.Reject(fmt.Sprintf("department '%s' is not migrated", code)), nil
	}
	if err != nil {
		return hook.Result{}, err
	}
	return hook.Proceed(), nil
}

// Bind maps rec onto (id, full_name, hired_on, department_code).
func (d *Definition) Bind(ctx context.Context, rec reader.Record) (hook.Result, []any, error) {
	if rec.String("STATUS") == StatusRetired {
		return hook.SkipWrite().WithNote(" retired"), nil, nil
	}
	last := strings.TrimSpace(rec.String("LAST_NM"))
	if last == "" {
		return hook.Reject("last name is empty"), nil, nil
	}
	hired, err := ParseHireDate(rec.String("HIRE_YMD"))
	if err != nil {
		return hook.Reject(err.Error()), nil, nil
	}
	var dept any
	if code := strings.TrimSpace(rec.String("DEPT_CD")); code != "" {
		dept = code
	}
	return hook.Proceed(), []any{
		rec.String("EMP_NO"),
		FullName(rec.String("FIRST_NM"), last),
		hired,
		dept,
	}, nil
}

// Identifier returns the employee number.
func (d *Definition) Identifier(rec reader.Record) string {
	return "EMP_NO=" + rec.String("EMP_NO")
}

// FullName joins the trimmed name parts with a single space.
func FullName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// ParseHireDate parses the legacy YYYYMMDD hire date.
func ParseHireDate(v string) (time.Time, error) {
	t, err := time.Parse("20060102", strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("hire date '%s' is not YYYYMMDD", v)
	}
	return t, nil
}
