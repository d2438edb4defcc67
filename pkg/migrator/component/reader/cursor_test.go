package reader_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/dbmigrator/pkg/migrator/component/reader"
)

func newConn(t *testing.T) (*sql.Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	return conn, mock
}

func TestStreamingCursor_YieldsAndCounts(t *testing.T) {
	ctx := context.Background()
	conn, mock := newConn(t)
	mock.ExpectQuery("SELECT id, name FROM employees").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "alice").AddRow(2, []byte("bob")))

	cur, err := reader.StreamingOpener{}.Open(ctx, conn, "SELECT id, name FROM employees", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, cur.Columns())
	assert.Equal(t, "id, name", cur.Describe())

	require.True(t, cur.Next())
	first := cur.Record()
	assert.Equal(t, 1, cur.Count())

	require.True(t, cur.Next())
	assert.Equal(t, "bob", cur.Record().String("NAME"))

	assert.False(t, cur.Next())
	assert.NoError(t, cur.Err())
	assert.Equal(t, 2, cur.Count())
	assert.Equal(t, "alice", first.String("name"), "earlier records stay valid after advancing")

	require.NoError(t, cur.Close())
	require.NoError(t, cur.Close())
	assert.False(t, cur.Next())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStreamingCursor_EmptyResult(t *testing.T) {
	ctx := context.Background()
	conn, mock := newConn(t)
	mock.ExpectQuery("SELECT id FROM employees").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	cur, err := reader.StreamingOpener{}.Open(ctx, conn, "SELECT id FROM employees", 10)
	require.NoError(t, err)
	assert.False(t, cur.Next())
	assert.Equal(t, 0, cur.Count())
	require.NoError(t, cur.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStreamingCursor_RowErrorEndsIteration(t *testing.T) {
	ctx := context.Background()
	conn, mock := newConn(t)
	boom := errors.New("read failed")
	mock.ExpectQuery("SELECT id FROM employees").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2).RowError(1, boom))

	cur, err := reader.StreamingOpener{}.Open(ctx, conn, "SELECT id FROM employees", 10)
	require.NoError(t, err)
	require.True(t, cur.Next())
	assert.NoError(t, cur.Err())
	assert.False(t, cur.Next())
	assert.ErrorIs(t, cur.Err(), boom)
	require.NoError(t, cur.Close())
}

func TestStreamingCursor_ReadsOnlyWhenAdvanced(t *testing.T) {
	ctx := context.Background()
	conn, mock := newConn(t)
	boom := errors.New("read failed")
	rows := sqlmock.NewRows([]string{"id"})
	for i := 1; i <= 10; i++ {
		rows.AddRow(i)
	}
	mock.ExpectQuery("SELECT id FROM employees").WillReturnRows(rows.RowError(7, boom))

	cur, err := reader.StreamingOpener{}.Open(ctx, conn, "SELECT id FROM employees", 10)
	require.NoError(t, err)
	for i := 1; i <= 7; i++ {
		require.True(t, cur.Next(), "row %d", i)
	}
	// Row 8 is broken but has not been read yet.
	assert.NoError(t, cur.Err())
	assert.Equal(t, 7, cur.Count())

	assert.False(t, cur.Next())
	assert.ErrorIs(t, cur.Err(), boom)
	assert.Equal(t, 7, cur.Count())
	require.NoError(t, cur.Close())
}

func TestChunkedCursor_FetchesInChunks(t *testing.T) {
	ctx := context.Background()
	conn, mock := newConn(t)
	mock.ExpectBegin()
	mock.ExpectExec("DECLARE migrator_cursor NO SCROLL CURSOR FOR SELECT id FROM employees").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FETCH FORWARD 2 FROM migrator_cursor").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectQuery("FETCH FORWARD 2 FROM migrator_cursor").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectExec("CLOSE migrator_cursor").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	cur, err := reader.ChunkedOpener{}.Open(ctx, conn, "SELECT id FROM employees", 2)
	require.NoError(t, err)

	var ids []int64
	for cur.Next() {
		v, _ := cur.Record().Get("id")
		ids = append(ids, v.(int64))
	}
	require.NoError(t, cur.Err())
	assert.Equal(t, []int64{1, 2, 3}, ids)
	require.NoError(t, cur.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkedOpener_ParameterizedQueryStreams(t *testing.T) {
	ctx := context.Background()
	conn, mock := newConn(t)
	mock.ExpectQuery("SELECT id FROM employees WHERE id = $1").WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	cur, err := reader.ChunkedOpener{}.Open(ctx, conn, "SELECT id FROM employees WHERE id = $1", 10, 7)
	require.NoError(t, err)
	require.True(t, cur.Next())
	require.NoError(t, cur.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordText(t *testing.T) {
	rec := reader.NewRecord([]string{"id", "name", "note"}, []interface{}{int64(3), []byte("carol"), nil})
	assert.Equal(t, "3", rec.String("id"))
	assert.Equal(t, "carol", rec.String("name"))
	assert.Equal(t, "", rec.String("note"))
	assert.Equal(t, "", rec.String("missing"))
	assert.Nil(t, rec.Value(9))
	assert.Equal(t, 3, rec.Len())
}
