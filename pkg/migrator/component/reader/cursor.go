// Package reader provides the forward-only streaming cursor the engines read source rows from.
package reader

import (
	"fmt"
	"strings"
)

// rowSource is the minimal row iteration surface of *sql.Rows.
type rowSource interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
	Close() error
}

// Cursor is a lazy, finite, non-restartable sequence of records.
// A row is read from the driver only when Next is called, so nothing past the current record has
// been fetched from the result set when the caller stops.
// It is owned by one job and is not safe for concurrent use.
type Cursor struct {
	src   rowSource
	names []string

	current Record
	done    bool

	yielded int
	err     error
	closed  bool
	closeFn func() error
}

func newCursor(src rowSource, names []string, closeFn func() error) (*Cursor, error) {
	return &Cursor{src: src, names: names, closeFn: closeFn}, nil
}

// Next advances to the next record. It returns false at end of stream or on error; check Err.
func (c *Cursor) Next() bool {
	if c.closed || c.done {
		return false
	}
	if !c.src.Next() {
		c.done = true
		c.err = c.src.Err()
		return false
	}
	values := make([]interface{}, len(c.names))
	ptrs := make([]interface{}, len(values))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := c.src.Scan(ptrs...); err != nil {
		c.done = true
		c.err = fmt.Errorf("failed to scan row %d: %w", c.yielded+1, err)
		return false
	}
	c.current = Record{columns: c.names, values: values}
	c.yielded++
	return true
}

// Record returns the current record.
func (c *Cursor) Record() Record {
	return c.current
}

// Count returns the number of records yielded so far.
func (c *Cursor) Count() int {
	return c.yielded
}

// Columns returns the column names captured when the cursor opened.
func (c *Cursor) Columns() []string {
	return c.names
}

// Describe renders the column names for debug output.
func (c *Cursor) Describe() string {
	return strings.Join(c.names, ", ")
}

// Err returns the error that ended iteration, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the cursor. Only the first call has an effect.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.src.Close()
	if c.closeFn != nil {
		if cerr := c.closeFn(); err == nil {
			err = cerr
		}
	}
	return err
}
