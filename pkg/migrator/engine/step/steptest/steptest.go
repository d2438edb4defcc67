// Package steptest provides in-memory collaborators for testing the engines with go-sqlmock.
package steptest

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/logger"
)

// NewDB returns a sqlmock database matching queries verbatim. It is closed when t ends.
func NewDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// Acquirer hands out connections of DB, or Err when it is set.
type Acquirer struct {
	DB  *sql.DB
	Err error

	mu       sync.Mutex
	acquired int
}

// Acquire implements tx.Acquirer.
func (a *Acquirer) Acquire(ctx context.Context) (*sql.Conn, error) {
	a.mu.Lock()
	a.acquired++
	a.mu.Unlock()
	if a.Err != nil {
		return nil, a.Err
	}
	return a.DB.Conn(ctx)
}

// Acquired returns how many times Acquire was called.
func (a *Acquirer) Acquired() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acquired
}

// Loader serves query texts from a map keyed by location.
type Loader map[string]string

// Load implements step.QueryLoader.
func (l Loader) Load(ctx context.Context, location string) (string, error) {
	q, ok := l[location]
	if !ok {
		return "", fmt.Errorf("no query at '%s'", location)
	}
	return q, nil
}

// Entry is one decoded JSON log line.
type Entry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Log captures the lines written through Logger.
type Log struct {
	buf bytes.Buffer
	log logger.Logger
}

// NewLog returns an empty Log.
func NewLog() *Log {
	l := &Log{}
	l.log = logger.New(&l.buf, logger.FormatJSON)
	return l
}

// Logger returns the logger writing into l.
func (l *Log) Logger() logger.Logger {
	return l.log
}

// Entries decodes every captured line.
func (l *Log) Entries(t *testing.T) []Entry {
	t.Helper()
	var out []Entry
	for _, line := range strings.Split(strings.TrimSpace(l.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e Entry
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		out = append(out, e)
	}
	return out
}

// Matching returns the captured entries whose message contains substr.
func (l *Log) Matching(t *testing.T, substr string) []Entry {
	t.Helper()
	var out []Entry
	for _, e := range l.Entries(t) {
		if strings.Contains(e.Message, substr) {
			out = append(out, e)
		}
	}
	return out
}

// Levels returns the captured entries logged at level.
func (l *Log) Levels(t *testing.T, level string) []Entry {
	t.Helper()
	var out []Entry
	for _, e := range l.Entries(t) {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}
