package step

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tigerroll/dbmigrator/pkg/migrator/component/reader"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/tx"
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/count"
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/diag"
	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/exception"
)

const moduleName = "step"

// QueryLoader resolves a query location to the query text.
type QueryLoader interface {
	Load(ctx context.Context, location string) (string, error)
}

// Session owns the connections and the source cursor of one run.
// Release closes them exactly once, on every exit path.
type Session struct {
	Reporter    *diag.Reporter
	Source      *sql.Conn
	Destination *sql.Conn
	Cursor      *reader.Cursor

	released bool
}

// Open acquires the source connection, then the destination connection. If the destination
// cannot be acquired the source is released before returning.
//
// Returns:
//
//	The Session, or a ConnectionAcquisitionError.
func Open(ctx context.Context, rep *diag.Reporter, source, destination tx.Acquirer) (*Session, error) {
	s := &Session{Reporter: rep}
	src, err := source.Acquire(ctx)
	if err != nil {
		return nil, acquisitionError("source", err)
	}
	s.Source = src
	rep.Logger().Infof("source database connected")

	dst, err := destination.Acquire(ctx)
	if err != nil {
		s.Release()
		return nil, acquisitionError("destination", err)
	}
	s.Destination = dst
	rep.Logger().Infof("destination database connected")
	return s, nil
}

func acquisitionError(which string, err error) error {
	if errors.Is(err, exception.ErrConnectionAcquisition) {
		return err
	}
	return exception.New(exception.KindConnectionAcquisition, moduleName, "failed to acquire "+which+" connection", err)
}

// Release closes the cursor, the destination and the source, in that order. Close errors are
// logged at WARN and otherwise ignored. Calling Release again does nothing.
func (s *Session) Release() {
	if s.released {
		return
	}
	s.released = true
	if s.Cursor != nil {
		if err := s.Cursor.Close(); err != nil {
			s.Reporter.CloseFailed("source cursor", err)
		}
	}
	if s.Destination != nil {
		if err := s.Destination.Close(); err != nil {
			s.Reporter.CloseFailed("destination connection", err)
		}
	}
	if s.Source != nil {
		if err := s.Source.Close(); err != nil {
			s.Reporter.CloseFailed("source connection", err)
		}
	}
}

// Preflight runs the optional count query on the source connection.
// It returns StatusCompleted when the loop may run, StatusNothingToDo when the count is zero and
// StatusFailed, with the error, when the count query cannot be loaded or yields no usable count.
func (s *Session) Preflight(ctx context.Context, loader QueryLoader, countLocation string) (count.Expectation, Status, error) {
	if countLocation == "" {
		s.Reporter.CountSkipped()
		return count.Expectation{}, StatusCompleted, nil
	}
	query, err := LoadQuery(ctx, loader, countLocation)
	if err != nil {
		return count.Expectation{}, StatusFailed, err
	}
	exp, err := count.Validate(ctx, s.Source, query)
	if err != nil {
		s.Reporter.CountFailed(err)
		return count.Expectation{}, StatusFailed, err
	}
	if exp.Empty() {
		s.Reporter.CountEmpty()
		return exp, StatusNothingToDo, nil
	}
	s.Reporter.SetExpectation(exp)
	s.Reporter.Logger().Infof("source count=[%d]", exp.Expected)
	return exp, StatusCompleted, nil
}

// OpenCursor runs query on the source connection and keeps the cursor for Release.
func (s *Session) OpenCursor(ctx context.Context, opener reader.Opener, query string, fetchSize int) error {
	cur, err := opener.Open(ctx, s.Source, query, fetchSize)
	if err != nil {
		return err
	}
	s.Cursor = cur
	s.Reporter.Logger().Infof("source query started (fetch size %d)", fetchSize)
	s.Reporter.Columns(cur.Describe())
	return nil
}

// LoadQuery loads the query at location. Failures are QueryLoadErrors.
func LoadQuery(ctx context.Context, loader QueryLoader, location string) (string, error) {
	query, err := loader.Load(ctx, location)
	if err != nil {
		if errors.Is(err, exception.ErrQueryLoad) {
			return "", err
		}
		return "", exception.Newf(exception.KindQueryLoad, moduleName, "failed to load query '%s'", location, err)
	}
	return query, nil
}
