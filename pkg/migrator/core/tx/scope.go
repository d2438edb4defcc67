package tx

import (
	"context"
	"database/sql"
	"fmt"
)

// Executor runs statements either directly on a connection or inside a transaction.
// *sql.Conn, *sql.Tx and *sql.DB all satisfy it.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Conn is a connection able to start transactions. *sql.Conn satisfies it.
type Conn interface {
	Executor
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Stats counts the transaction calls a Scope issued.
type Stats struct {
	Commits            int
	Rollbacks          int
	SavepointReleases  int
	SavepointRollbacks int
}

// Scope applies one Mode to a destination connection for the lifetime of a job.
// It is not safe for concurrent use; a job owns its Scope exclusively.
type Scope struct {
	mode      Mode
	conn      Conn
	tx        *sql.Tx
	point     string
	flush     bool
	noRelease bool
	stats     Stats
}

// ScopeOption customises a Scope.
type ScopeOption func(*Scope)

// WithoutRelease makes a successful savepoint end without a RELEASE SAVEPOINT statement, for
// databases that have none (Oracle). The savepoint stays until the transaction ends and is still
// counted as released.
func WithoutRelease() ScopeOption {
	return func(s *Scope) { s.noRelease = true }
}

// NewScope creates a Scope for mode on conn.
func NewScope(mode Mode, conn Conn, opts ...ScopeOption) *Scope {
	s := &Scope{mode: mode, conn: conn}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode returns the mode the scope applies.
func (s *Scope) Mode() Mode {
	return s.mode
}

// Begin opens the job-wide transaction under All. It does nothing for the other modes.
func (s *Scope) Begin(ctx context.Context) error {
	if s.mode != All {
		return nil
	}
	t, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin job transaction: %w", err)
	}
	s.tx = t
	return nil
}

// BeginRecord prepares the transaction state for the record at ordinal.
// ByRecord begins a new transaction; All takes the record's savepoint.
func (s *Scope) BeginRecord(ctx context.Context, ordinal int) error {
	switch s.mode {
	case ByRecord:
		t, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for record %d: %w", ordinal, err)
		}
		s.tx = t
	case All:
		if s.tx == nil {
			return fmt.Errorf("savepoint requested for record %d without an open transaction", ordinal)
		}
		name := SavepointName(ordinal)
		if _, err := s.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
			return fmt.Errorf("failed to create savepoint %s: %w", name, err)
		}
		s.point = name
	}
	return nil
}

// Executor returns where the current record's statements must run: the open transaction if there
// is one, otherwise the connection itself.
func (s *Scope) Executor() Executor {
	if s.tx != nil {
		return s.tx
	}
	return s.conn
}

// EndRecord closes the current record's transaction state.
// On success ByRecord commits and All releases the savepoint; on failure ByRecord rolls back and
// All rolls back to the savepoint, keeping earlier records of the same transaction.
// None issues nothing.
func (s *Scope) EndRecord(ctx context.Context, ok bool) error {
	switch s.mode {
	case ByRecord:
		if s.tx == nil {
			return nil
		}
		t := s.tx
		s.tx = nil
		if ok {
			s.stats.Commits++
			if err := t.Commit(); err != nil {
				return fmt.Errorf("failed to commit record: %w", err)
			}
			return nil
		}
		s.stats.Rollbacks++
		if err := t.Rollback(); err != nil {
			return fmt.Errorf("failed to roll back record: %w", err)
		}
	case All:
		if s.point == "" {
			return nil
		}
		name := s.point
		s.point = ""
		if ok {
			s.stats.SavepointReleases++
			if s.noRelease {
				return nil
			}
			if _, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
				return fmt.Errorf("failed to release savepoint %s: %w", name, err)
			}
			return nil
		}
		s.stats.SavepointRollbacks++
		if _, err := s.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
			return fmt.Errorf("failed to roll back to savepoint %s: %w", name, err)
		}
	}
	return nil
}

// FlushSavepoint guards the writes still pending after the last record under All.
const FlushSavepoint = "sp_flush"

// BeginFlush takes the flush savepoint under All. Flush savepoints are not records and are not
// counted in Stats. The other modes issue nothing.
func (s *Scope) BeginFlush(ctx context.Context) error {
	if s.mode != All || s.tx == nil {
		return nil
	}
	if _, err := s.tx.ExecContext(ctx, "SAVEPOINT "+FlushSavepoint); err != nil {
		return fmt.Errorf("failed to create savepoint %s: %w", FlushSavepoint, err)
	}
	s.flush = true
	return nil
}

// EndFlush releases the flush savepoint on success and rolls back to it on failure.
func (s *Scope) EndFlush(ctx context.Context, ok bool) error {
	if !s.flush {
		return nil
	}
	s.flush = false
	if ok && s.noRelease {
		return nil
	}
	stmt := "RELEASE SAVEPOINT "
	if !ok {
		stmt = "ROLLBACK TO SAVEPOINT "
	}
	if _, err := s.tx.ExecContext(ctx, stmt+FlushSavepoint); err != nil {
		return fmt.Errorf("failed to end savepoint %s: %w", FlushSavepoint, err)
	}
	return nil
}

// Finish commits the job-wide transaction under All. It does nothing for the other modes.
func (s *Scope) Finish(ctx context.Context) error {
	if s.mode != All || s.tx == nil {
		return nil
	}
	t := s.tx
	s.tx = nil
	s.stats.Commits++
	if err := t.Commit(); err != nil {
		return fmt.Errorf("failed to commit job transaction: %w", err)
	}
	return nil
}

// Abort rolls back whatever transaction is still open. It is called on the fatal path, where the
// connection is usually already gone, so the error is informational.
func (s *Scope) Abort(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	t := s.tx
	s.tx = nil
	s.point = ""
	s.flush = false
	s.stats.Rollbacks++
	if err := t.Rollback(); err != nil {
		return fmt.Errorf("failed to roll back open transaction: %w", err)
	}
	return nil
}

// Stats returns the transaction calls issued so far.
func (s *Scope) Stats() Stats {
	return s.stats
}

// Acquirer hands out dedicated connections from a datasource's pool. The caller owns the returned
// connection and must close it.
type Acquirer interface {
	Acquire(ctx context.Context) (*sql.Conn, error)
}
