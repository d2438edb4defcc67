// Package tx implements the transaction granularity of a migration job on its destination connection.
// A job runs in one of three modes: None (the connection auto-commits each write), ByRecord (an explicit
// transaction per record) and All (one transaction for the whole job with a savepoint per record).
package tx

import (
	"fmt"
	"strings"
)

// Mode is the granularity at which commit and rollback decisions are made.
type Mode int

const (
	// None lets the destination connection auto-commit every write.
	None Mode = iota
	// ByRecord commits or rolls back after every record and forces the write-batch size to 1.
	ByRecord
	// All spans the whole job with one transaction and takes a savepoint per record.
	All
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case None:
		return "None"
	case ByRecord:
		return "ByRecord"
	case All:
		return "All"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a configuration value into a Mode. The empty string means None.
//
// Parameters:
//
//	s: "None", "ByRecord" or "All", case-insensitive. "by_record" is accepted as well.
//
// Returns:
//
//	The Mode, or an error if s names no mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "byrecord", "by_record":
		return ByRecord, nil
	case "all":
		return All, nil
	default:
		return None, fmt.Errorf("unknown transaction mode '%s' (expected None, ByRecord or All)", s)
	}
}

// BatchSize returns the write-batch size that applies under m.
// ByRecord always yields 1; None and All yield the configured size.
func (m Mode) BatchSize(configured int) int {
	if m == ByRecord {
		return 1
	}
	return configured
}

// SavepointName returns the savepoint name used for the record at the given 1-based ordinal.
func SavepointName(ordinal int) string {
	return fmt.Sprintf("sp_%d", ordinal)
}
