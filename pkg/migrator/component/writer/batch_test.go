package writer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/dbmigrator/pkg/migrator/component/writer"
)

const insert = "INSERT INTO employees (id, name) VALUES (?, ?)"

func TestBatch_Due(t *testing.T) {
	b := writer.NewBatch(insert, 5)
	assert.False(t, b.Due(4, false))
	assert.True(t, b.Due(5, false))
	assert.True(t, b.Due(7, true))
	assert.True(t, b.Due(10, false))

	one := writer.NewBatch(insert, 0)
	assert.Equal(t, 1, one.Size())
	assert.True(t, one.Due(3, false))
}

func TestBatch_ExecuteRunsStagedSetsAndClears(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(insert).WithArgs(1, "alice").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insert).WithArgs(2, "bob").WillReturnResult(sqlmock.NewResult(2, 1))

	b := writer.NewBatch(insert, 2)
	b.Add(1, "alice")
	b.Add(2, "bob")
	assert.Equal(t, 2, b.Pending())

	n, err := b.Execute(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 0, b.Pending())
	assert.Equal(t, 1, b.Executions())

	n, err = b.Execute(context.Background(), db)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, b.Executions(), "an empty batch is not an execution")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatch_ExecuteClearsOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	dup := errors.New("duplicate entry")
	mock.ExpectExec(insert).WithArgs(1, "alice").WillReturnError(dup)

	b := writer.NewBatch(insert, 3)
	b.Add(1, "alice")
	b.Add(2, "bob")

	_, err = b.Execute(context.Background(), db)
	assert.ErrorIs(t, err, dup)
	assert.Contains(t, err.Error(), "batch entry 1 of 2")
	assert.Equal(t, 0, b.Pending())
	assert.NoError(t, mock.ExpectationsWereMet())
}
