package reader

import (
	"fmt"
	"strings"
	"time"
)

// Record is one row yielded by a Cursor. Its values are owned by the Record and stay valid after
// the cursor advances.
type Record struct {
	columns []string
	values  []interface{}
}

// NewRecord creates a Record from column names and matching values.
func NewRecord(columns []string, values []interface{}) Record {
	return Record{columns: columns, values: values}
}

// Columns returns the column names in select order.
func (r Record) Columns() []string { return r.columns }

// Values returns the column values in select order.
func (r Record) Values() []interface{} { return r.values }

// Len returns the number of columns.
func (r Record) Len() int { return len(r.values) }

// Value returns the i-th value, or nil if i is out of range.
func (r Record) Value(i int) interface{} {
	if i < 0 || i >= len(r.values) {
		return nil
	}
	return r.values[i]
}

// Get returns the value of the named column, matched case-insensitively.
func (r Record) Get(name string) (interface{}, bool) {
	for i, c := range r.columns {
		if strings.EqualFold(c, name) {
			return r.values[i], true
		}
	}
	return nil, false
}

// String returns the named column rendered as text. NULL and unknown columns render as "".
func (r Record) String(name string) string {
	v, _ := r.Get(name)
	return Text(v)
}

// Text renders a scanned value as text.
func Text(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(t)
	}
}
