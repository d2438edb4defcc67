package reader

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tigerroll/dbmigrator/pkg/migrator/core/tx"
)

// Opener opens a Cursor on a connection, bounding driver-side buffering with fetchSize.
type Opener interface {
	Open(ctx context.Context, conn tx.Conn, query string, fetchSize int, args ...interface{}) (*Cursor, error)
}

// StreamingOpener runs the query directly. It suits drivers that already stream result sets row by
// row (MySQL, SQLite) or take their prefetch size from the connection string (Oracle).
type StreamingOpener struct{}

var _ Opener = StreamingOpener{}

// Open runs query on conn and returns a cursor positioned before the first record.
func (StreamingOpener) Open(ctx context.Context, conn tx.Conn, query string, fetchSize int, args ...interface{}) (*Cursor, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	names, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read column metadata: %w", err)
	}
	return newCursor(rows, names, nil)
}

// DefaultCursorName is the server-side cursor name used by ChunkedOpener.
const DefaultCursorName = "migrator_cursor"

// ChunkedOpener declares a server-side cursor inside a read-only transaction and pulls fetchSize
// rows per round trip with FETCH FORWARD. It is meant for PostgreSQL, whose drivers otherwise
// materialize the whole result set. Parameterized queries fall back to StreamingOpener.
type ChunkedOpener struct {
	CursorName string
}

var _ Opener = ChunkedOpener{}

// Open declares the cursor and fetches the first chunk.
func (o ChunkedOpener) Open(ctx context.Context, conn tx.Conn, query string, fetchSize int, args ...interface{}) (*Cursor, error) {
	if len(args) > 0 || fetchSize <= 0 {
		return StreamingOpener{}.Open(ctx, conn, query, fetchSize, args...)
	}
	name := o.CursorName
	if name == "" {
		name = DefaultCursorName
	}

	t, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin cursor transaction: %w", err)
	}
	if _, err := t.ExecContext(ctx, fmt.Sprintf("DECLARE %s NO SCROLL CURSOR FOR %s", name, query)); err != nil {
		_ = t.Rollback()
		return nil, err
	}

	src := &chunkSource{
		ctx:   ctx,
		t:     t,
		fetch: fmt.Sprintf("FETCH FORWARD %d FROM %s", fetchSize, name),
		size:  fetchSize,
	}
	if err := src.load(); err != nil {
		_ = t.Rollback()
		return nil, err
	}
	names, err := src.rows.Columns()
	if err != nil {
		src.Close()
		_ = t.Rollback()
		return nil, fmt.Errorf("failed to read column metadata: %w", err)
	}

	closeFn := func() error {
		if _, err := t.ExecContext(ctx, "CLOSE "+name); err != nil {
			_ = t.Rollback()
			return fmt.Errorf("failed to close cursor %s: %w", name, err)
		}
		return t.Commit()
	}
	return newCursor(src, names, closeFn)
}

// chunkSource iterates FETCH FORWARD results chunk by chunk.
type chunkSource struct {
	ctx     context.Context
	t       *sql.Tx
	fetch   string
	size    int
	rows    *sql.Rows
	inChunk int
	err     error
}

func (s *chunkSource) load() error {
	rows, err := s.t.QueryContext(s.ctx, s.fetch)
	if err != nil {
		return err
	}
	s.rows = rows
	s.inChunk = 0
	return nil
}

func (s *chunkSource) Next() bool {
	for s.rows != nil {
		if s.rows.Next() {
			s.inChunk++
			return true
		}
		if err := s.rows.Err(); err != nil {
			s.err = err
			return false
		}
		s.rows.Close()
		if s.inChunk < s.size {
			s.rows = nil
			return false
		}
		if err := s.load(); err != nil {
			s.err = err
			s.rows = nil
			return false
		}
	}
	return false
}

func (s *chunkSource) Scan(dest ...interface{}) error {
	if s.rows == nil {
		return sql.ErrNoRows
	}
	return s.rows.Scan(dest...)
}

func (s *chunkSource) Err() error {
	return s.err
}

func (s *chunkSource) Close() error {
	if s.rows == nil {
		return nil
	}
	err := s.rows.Close()
	s.rows = nil
	return err
}
