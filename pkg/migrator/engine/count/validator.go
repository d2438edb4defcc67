// Package count runs the optional pre-flight count query and compares its result with the number
// of records the cursor actually yielded.
package count

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tigerroll/dbmigrator/pkg/migrator/component/reader"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/tx"
)

// Column is the preferred column name of the count result. Without it the first column is used.
const Column = "cnt"

// ErrInvalidCount is returned when the count query yields no usable integer.
var ErrInvalidCount = errors.New("count query returned no usable count")

// Expectation is the outcome of the count query.
type Expectation struct {
	// Expected is the parsed count. Meaningless unless Present is true.
	Expected int
	// Present is false when no count query was configured.
	Present bool
}

// Empty reports whether the count query ran and returned zero.
func (e Expectation) Empty() bool {
	return e.Present && e.Expected == 0
}

// String renders the expected count for progress lines, "-" when absent.
func (e Expectation) String() string {
	if !e.Present {
		return "-"
	}
	return strconv.Itoa(e.Expected)
}

// Verdict compares the processed count with the expected count.
type Verdict int

const (
	// Match means the processed count equals the expected count.
	Match Verdict = iota
	// Fewer means fewer records were processed than expected.
	Fewer
	// More means more records were processed than expected.
	More
)

func (v Verdict) String() string {
	switch v {
	case Fewer:
		return "fewer than count"
	case More:
		return "more than count"
	default:
		return "matched"
	}
}

// Compare returns the verdict for processed. The second value is false when there is no expected
// count, in which case no verdict applies.
func (e Expectation) Compare(processed int) (Verdict, bool) {
	if !e.Present {
		return Match, false
	}
	switch {
	case processed < e.Expected:
		return Fewer, true
	case processed > e.Expected:
		return More, true
	default:
		return Match, true
	}
}

// Validate runs query on q and parses its single integer result.
// An empty query skips validation and returns an Expectation with Present == false.
//
// Parameters:
//
//	ctx: The context for the operation.
//	q: The source connection.
//	query: The count query text. May be empty.
//
// Returns:
//
//	The Expectation, or an error wrapping ErrInvalidCount when the result is missing, NULL, empty
//	or not numeric. Database errors are returned as they are.
func Validate(ctx context.Context, q tx.Executor, query string) (Expectation, error) {
	if strings.TrimSpace(query) == "" {
		return Expectation{}, nil
	}
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return Expectation{}, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Expectation{}, err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Expectation{}, err
		}
		return Expectation{}, fmt.Errorf("%w: no row", ErrInvalidCount)
	}
	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(values))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return Expectation{}, err
	}
	rec := reader.NewRecord(columns, values)
	raw, ok := rec.Get(Column)
	if !ok {
		raw = rec.Value(0)
	}
	n, err := parse(raw)
	if err != nil {
		return Expectation{}, err
	}
	return Expectation{Expected: n, Present: true}, nil
}

func parse(raw interface{}) (int, error) {
	switch v := raw.(type) {
	case nil:
		return 0, fmt.Errorf("%w: NULL", ErrInvalidCount)
	case int64:
		return int(v), nil
	case int32:
		return int(v), nil
	case int:
		return v, nil
	case uint64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidCount, v)
		}
		return int(v), nil
	}
	text := strings.TrimSpace(reader.Text(raw))
	if text == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidCount)
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%w: '%s' is not numeric", ErrInvalidCount, text)
	}
	return n, nil
}
