package migration_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/dbmigrator/pkg/migrator/component/reader"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/config"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/hook"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/tx"
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/classify"
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/count"
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/step"
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/step/migration"
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/step/steptest"
	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/exception"
)

const (
	countSQL  = "SELECT COUNT(*) AS cnt FROM employees"
	selectSQL = "SELECT id, name FROM employees ORDER BY id"
	insertSQL = "INSERT INTO employees (id, name) VALUES (?, ?)"
)

var linkFailure = &mysql.MySQLError{Number: 1158, SQLState: [5]byte{'0', '8', 'S', '0', '1'}, Message: "communication link failure"}

var duplicateKey = &mysql.MySQLError{Number: 1062, SQLState: [5]byte{'2', '3', '0', '0', '0'}, Message: "Duplicate entry"}

type fixture struct {
	job *migration.Job
	src sqlmock.Sqlmock
	dst sqlmock.Sqlmock
	log *steptest.Log
}

func newFixture(t *testing.T, mode tx.Mode, batchSize int, withCount bool) *fixture {
	t.Helper()
	srcDB, src := steptest.NewDB(t)
	dstDB, dst := steptest.NewDB(t)
	log := steptest.NewLog()
	queries := migration.Queries{Select: "employees/select.sql", Write: "employees/insert.sql"}
	if withCount {
		queries.Count = "employees/count.sql"
	}
	job := &migration.Job{
		Config: config.NewJobConfig("employees", config.KindMigration, mode, batchSize, 100, 100, "UTF-8"),
		Definition: migration.Funcs{
			IdentifierFunc: func(rec reader.Record) string { return "#" + reader.Text(rec.Value(0)) },
		},
		Queries:     queries,
		Source:      &steptest.Acquirer{DB: srcDB},
		Destination: &steptest.Acquirer{DB: dstDB},
		Loader: steptest.Loader{
			"employees/count.sql":  countSQL,
			"employees/select.sql": selectSQL,
			"employees/insert.sql": insertSQL,
		},
		Classifier: classify.New(),
		Log:        log.Logger(),
	}
	return &fixture{job: job, src: src, dst: dst, log: log}
}

func (f *fixture) expectCount(n int) {
	f.src.ExpectQuery(countSQL).WillReturnRows(sqlmock.NewRows([]string{"cnt"}).AddRow(int64(n)))
}

func (f *fixture) expectRows(n int) {
	rows := sqlmock.NewRows([]string{"id", "name"})
	for i := 1; i <= n; i++ {
		rows.AddRow(int64(i), fmt.Sprintf("emp%d", i))
	}
	f.src.ExpectQuery(selectSQL).WillReturnRows(rows)
}

func (f *fixture) expectRowsFailingAfter(n, after int, err error) {
	rows := sqlmock.NewRows([]string{"id", "name"})
	for i := 1; i <= n; i++ {
		rows.AddRow(int64(i), fmt.Sprintf("emp%d", i))
	}
	f.src.ExpectQuery(selectSQL).WillReturnRows(rows.RowError(after, err))
}

func (f *fixture) expectInsert(i int) *sqlmock.ExpectedExec {
	return f.dst.ExpectExec(insertSQL).WithArgs(int64(i), fmt.Sprintf("emp%d", i))
}

func (f *fixture) verify(t *testing.T) {
	t.Helper()
	assert.NoError(t, f.src.ExpectationsWereMet())
	assert.NoError(t, f.dst.ExpectationsWereMet())
}

func TestRun_NoneModeExecutesFullBatches(t *testing.T) {
	f := newFixture(t, tx.None, 5, true)
	f.expectCount(10)
	f.expectRows(10)
	for i := 1; i <= 10; i++ {
		f.expectInsert(i).WillReturnResult(sqlmock.NewResult(int64(i), 1))
	}

	sum, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, step.StatusCompleted, sum.Status)
	assert.Equal(t, 10, sum.Processed)
	assert.Equal(t, 10, sum.Succeeded)
	assert.Equal(t, 2, sum.Batches)
	assert.Equal(t, tx.Stats{}, sum.Tx)
	assert.Len(t, f.log.Matching(t, "inserting reserved"), 10)
	batches := f.log.Matching(t, "batch executed")
	require.Len(t, batches, 2)
	assert.Equal(t, "batch executed process:5 / 10", batches[0].Message)
	assert.Equal(t, "batch executed process:10 / 10", batches[1].Message)
	assert.Len(t, f.log.Matching(t, "matched: processed 10 / count 10"), 1)
	f.verify(t)
}

func TestRun_ByRecordForcesSingleWrites(t *testing.T) {
	f := newFixture(t, tx.ByRecord, 5, true)
	f.expectCount(10)
	f.expectRows(10)
	for i := 1; i <= 10; i++ {
		f.dst.ExpectBegin()
		f.expectInsert(i).WillReturnResult(sqlmock.NewResult(int64(i), 1))
		f.dst.ExpectCommit()
	}

	sum, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, f.job.Config.BatchSize())
	assert.Equal(t, 10, sum.Tx.Commits)
	assert.Equal(t, 0, sum.Tx.Rollbacks)
	assert.Equal(t, sum.Processed, sum.Tx.Commits+sum.Tx.Rollbacks)
	assert.Equal(t, 0, sum.Batches)
	assert.Len(t, f.log.Matching(t, " inserted #"), 10)
	f.verify(t)
}

func TestRun_ByRecordRollsBackFailedRecord(t *testing.T) {
	f := newFixture(t, tx.ByRecord, 1, false)
	f.expectRows(3)
	f.dst.ExpectBegin()
	f.expectInsert(1).WillReturnResult(sqlmock.NewResult(1, 1))
	f.dst.ExpectCommit()
	f.dst.ExpectBegin()
	f.expectInsert(2).WillReturnError(duplicateKey)
	f.dst.ExpectRollback()
	f.dst.ExpectBegin()
	f.expectInsert(3).WillReturnResult(sqlmock.NewResult(3, 1))
	f.dst.ExpectCommit()

	sum, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, step.StatusCompleted, sum.Status)
	assert.Equal(t, 2, sum.Tx.Commits)
	assert.Equal(t, 1, sum.Tx.Rollbacks)
	assert.Equal(t, 1, sum.Failed)
	failed := f.log.Matching(t, "failed [Recoverable-Log]")
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Message, "process:2 / - ")
	assert.Contains(t, failed[0].Message, "state=23000 code=1062 id=#2")
	f.verify(t)
}

func TestRun_AllModeRollsBackToFailedSavepoint(t *testing.T) {
	f := newFixture(t, tx.All, 1, true)
	f.expectCount(10)
	f.expectRows(10)
	f.dst.ExpectBegin()
	for i := 1; i <= 10; i++ {
		sp := tx.SavepointName(i)
		f.dst.ExpectExec("SAVEPOINT " + sp).WillReturnResult(sqlmock.NewResult(0, 0))
		if i == 7 {
			f.expectInsert(i).WillReturnError(duplicateKey)
			f.dst.ExpectExec("ROLLBACK TO SAVEPOINT " + sp).WillReturnResult(sqlmock.NewResult(0, 0))
			continue
		}
		f.expectInsert(i).WillReturnResult(sqlmock.NewResult(int64(i), 1))
		f.dst.ExpectExec("RELEASE SAVEPOINT " + sp).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	f.dst.ExpectCommit()

	sum, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, step.StatusCompleted, sum.Status)
	assert.Equal(t, 9, sum.Tx.SavepointReleases)
	assert.Equal(t, 1, sum.Tx.SavepointRollbacks)
	assert.Equal(t, sum.Processed, sum.Tx.SavepointReleases+sum.Tx.SavepointRollbacks)
	assert.Equal(t, 1, sum.Tx.Commits)
	assert.Equal(t, 9, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	f.verify(t)
}

func TestRun_AllModeFlushesPendingWritesAfterRejectedLastRecord(t *testing.T) {
	f := newFixture(t, tx.All, 5, false)
	f.job.Definition = migration.Funcs{
		BindFunc: func(ctx context.Context, rec reader.Record) (hook.Result, []any, error) {
			if reader.Text(rec.Value(0)) == "3" {
				return hook.Reject("name missing"), nil, nil
			}
			return hook.Proceed(), rec.Values(), nil
		},
	}
	f.expectRows(3)
	f.dst.ExpectBegin()
	for i := 1; i <= 2; i++ {
		f.dst.ExpectExec("SAVEPOINT " + tx.SavepointName(i)).WillReturnResult(sqlmock.NewResult(0, 0))
		f.dst.ExpectExec("RELEASE SAVEPOINT " + tx.SavepointName(i)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	f.dst.ExpectExec("SAVEPOINT sp_3").WillReturnResult(sqlmock.NewResult(0, 0))
	f.dst.ExpectExec("ROLLBACK TO SAVEPOINT sp_3").WillReturnResult(sqlmock.NewResult(0, 0))
	f.dst.ExpectExec("SAVEPOINT " + tx.FlushSavepoint).WillReturnResult(sqlmock.NewResult(0, 0))
	f.expectInsert(1).WillReturnResult(sqlmock.NewResult(1, 1))
	f.expectInsert(2).WillReturnResult(sqlmock.NewResult(2, 1))
	f.dst.ExpectExec("RELEASE SAVEPOINT " + tx.FlushSavepoint).WillReturnResult(sqlmock.NewResult(0, 0))
	f.dst.ExpectCommit()

	sum, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Rejected)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 1, sum.Batches)
	assert.Equal(t, sum.Processed, sum.Tx.SavepointReleases+sum.Tx.SavepointRollbacks)
	assert.Equal(t, 1, sum.Tx.Commits)
	rejected := f.log.Matching(t, "process:3 / - skipped 3: name missing")
	require.Len(t, rejected, 1)
	assert.Equal(t, "warn", rejected[0].Level)
	f.verify(t)
}

func TestRun_ConnectionLostStopsTheLoop(t *testing.T) {
	f := newFixture(t, tx.None, 1, true)
	f.expectCount(10)
	f.expectRows(10)
	for i := 1; i <= 6; i++ {
		f.expectInsert(i).WillReturnResult(sqlmock.NewResult(int64(i), 1))
	}
	f.expectInsert(7).WillReturnError(linkFailure)

	var bound []string
	f.job.Definition = migration.Funcs{
		BindFunc: func(ctx context.Context, rec reader.Record) (hook.Result, []any, error) {
			bound = append(bound, reader.Text(rec.Value(0)))
			return hook.Proceed(), rec.Values(), nil
		},
		IdentifierFunc: func(rec reader.Record) string { return "#" + reader.Text(rec.Value(0)) },
	}

	sum, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, step.StatusAborted, sum.Status)
	assert.Equal(t, 7, sum.Processed)
	assert.Equal(t, 6, sum.Succeeded)
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7"}, bound)
	fatal := f.log.Levels(t, "fatal")
	require.Len(t, fatal, 1)
	assert.Contains(t, fatal[0].Message, "Exit because connection has broken. process:7 / 10 id=#7")
	assert.Empty(t, f.log.Matching(t, "process:8"))
	assert.Empty(t, f.log.Matching(t, "processed 7 / count 10"))
	f.verify(t)
}

func TestRun_ZeroCountSkipsTheLoop(t *testing.T) {
	f := newFixture(t, tx.All, 5, true)
	f.expectCount(0)

	sum, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, step.StatusNothingToDo, sum.Status)
	assert.Equal(t, 0, sum.Processed)
	assert.Len(t, f.log.Matching(t, "count is 0"), 1)
	f.verify(t)
}

func TestRun_UnusableCountEndsTheJob(t *testing.T) {
	f := newFixture(t, tx.None, 5, true)
	f.src.ExpectQuery(countSQL).WillReturnRows(sqlmock.NewRows([]string{"cnt"}).AddRow(nil))

	sum, err := f.job.Run(context.Background())
	require.Error(t, err)

	assert.ErrorIs(t, err, count.ErrInvalidCount)
	assert.Equal(t, step.StatusFailed, sum.Status)
	assert.Len(t, f.log.Matching(t, "count query failed"), 1)
	f.verify(t)
}

func TestRun_CountMismatchStillCompletes(t *testing.T) {
	f := newFixture(t, tx.None, 5, true)
	f.expectCount(12)
	f.expectRows(10)
	for i := 1; i <= 10; i++ {
		f.expectInsert(i).WillReturnResult(sqlmock.NewResult(int64(i), 1))
	}

	sum, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, step.StatusCompleted, sum.Status)
	mismatch := f.log.Matching(t, "fewer than count: processed 10 / count 12")
	require.Len(t, mismatch, 1)
	assert.Equal(t, "warn", mismatch[0].Level)
	assert.Empty(t, f.log.Levels(t, "fatal"))
	f.verify(t)
}

func TestRun_SkipWriteAndRejectInBatches(t *testing.T) {
	f := newFixture(t, tx.None, 3, false)
	f.job.Definition = migration.Funcs{
		BindFunc: func(ctx context.Context, rec reader.Record) (hook.Result, []any, error) {
			switch reader.Text(rec.Value(0)) {
			case "2":
				return hook.Reject("invalid name"), nil, nil
			case "3":
				return hook.SkipWrite().WithNote(" (already present)"), nil, nil
			}
			return hook.Proceed(), rec.Values(), nil
		},
	}
	f.expectRows(4)
	f.expectInsert(1).WillReturnResult(sqlmock.NewResult(1, 1))
	f.expectInsert(4).WillReturnResult(sqlmock.NewResult(4, 1))

	sum, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, sum.Processed)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.Rejected)
	assert.Equal(t, 2, sum.Batches)
	assert.Len(t, f.log.Matching(t, "(already present) inserting reserved"), 1)
	assert.Len(t, f.log.Matching(t, "process:2 / - skipped 2: invalid name"), 1)
	f.verify(t)
}

func TestRun_OtherWorkRunsOnTheRecordTransaction(t *testing.T) {
	f := newFixture(t, tx.ByRecord, 1, false)
	f.job.Definition = migration.Funcs{
		OtherWorkFunc: func(ctx context.Context, rec reader.Record, dst tx.Executor) (hook.Result, error) {
			if reader.Text(rec.Value(0)) == "2" {
				return hook.Proceed(), exception.New(exception.KindRecordValidation, "employees", "retired employee", nil)
			}
			_, err := dst.ExecContext(ctx, "DELETE FROM employee_history WHERE id = ?", rec.Value(0))
			return hook.Proceed(), err
		},
	}
	f.expectRows(2)
	f.dst.ExpectBegin()
	f.dst.ExpectExec("DELETE FROM employee_history WHERE id = ?").WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	f.expectInsert(1).WillReturnResult(sqlmock.NewResult(1, 1))
	f.dst.ExpectCommit()
	f.dst.ExpectBegin()
	f.dst.ExpectRollback()

	sum, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 1, sum.Rejected)
	assert.Equal(t, 1, sum.Tx.Commits)
	assert.Equal(t, 1, sum.Tx.Rollbacks)
	assert.Len(t, f.log.Matching(t, "retired employee"), 1)
	f.verify(t)
}

func TestRun_DestinationAcquisitionFailure(t *testing.T) {
	f := newFixture(t, tx.None, 5, true)
	dst := &steptest.Acquirer{Err: errors.New("too many connections")}
	f.job.Destination = dst

	sum, err := f.job.Run(context.Background())
	require.Error(t, err)

	assert.ErrorIs(t, err, exception.ErrConnectionAcquisition)
	assert.Equal(t, step.StatusFailed, sum.Status)
	assert.Equal(t, 1, dst.Acquired())
	assert.Len(t, f.log.Matching(t, "source database connected"), 1)
	assert.Empty(t, f.log.Matching(t, "destination database connected"))
	f.verify(t)
}

func TestRun_QueryLoadFailure(t *testing.T) {
	f := newFixture(t, tx.None, 5, false)
	f.job.Queries.Write = "employees/missing.sql"

	sum, err := f.job.Run(context.Background())
	require.Error(t, err)

	assert.ErrorIs(t, err, exception.ErrQueryLoad)
	assert.Equal(t, step.StatusFailed, sum.Status)
	assert.Equal(t, 0, sum.Processed)
	f.verify(t)
}

func TestRun_ConnectionLostUnderAllRollsBackEverything(t *testing.T) {
	f := newFixture(t, tx.All, 1, true)
	f.expectCount(5)
	f.expectRows(5)
	f.dst.ExpectBegin()
	for i := 1; i <= 2; i++ {
		f.dst.ExpectExec("SAVEPOINT " + tx.SavepointName(i)).WillReturnResult(sqlmock.NewResult(0, 0))
		f.expectInsert(i).WillReturnResult(sqlmock.NewResult(int64(i), 1))
		f.dst.ExpectExec("RELEASE SAVEPOINT " + tx.SavepointName(i)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	f.dst.ExpectExec("SAVEPOINT sp_3").WillReturnResult(sqlmock.NewResult(0, 0))
	f.expectInsert(3).WillReturnError(linkFailure)
	f.dst.ExpectRollback()

	sum, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, step.StatusAborted, sum.Status)
	assert.Equal(t, 3, sum.Processed)
	assert.Equal(t, tx.Stats{Rollbacks: 1, SavepointReleases: 2}, sum.Tx)
	fatal := f.log.Levels(t, "fatal")
	require.Len(t, fatal, 1)
	assert.Contains(t, fatal[0].Message, "process:3 / 5 id=#3")
	f.verify(t)
}

func TestRun_ConnectionLostUnderByRecordEndsEveryTransaction(t *testing.T) {
	f := newFixture(t, tx.ByRecord, 1, true)
	f.expectCount(5)
	f.expectRows(5)
	for i := 1; i <= 2; i++ {
		f.dst.ExpectBegin()
		f.expectInsert(i).WillReturnResult(sqlmock.NewResult(int64(i), 1))
		f.dst.ExpectCommit()
	}
	f.dst.ExpectBegin()
	f.expectInsert(3).WillReturnError(linkFailure)
	f.dst.ExpectRollback()

	sum, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, step.StatusAborted, sum.Status)
	assert.Equal(t, 3, sum.Processed)
	assert.Equal(t, 2, sum.Tx.Commits)
	assert.Equal(t, 1, sum.Tx.Rollbacks)
	assert.Equal(t, sum.Processed, sum.Tx.Commits+sum.Tx.Rollbacks)
	assert.Empty(t, f.log.Matching(t, "process:4"))
	f.verify(t)
}

func TestRun_ConnectionLostInsideABatch(t *testing.T) {
	f := newFixture(t, tx.All, 3, true)
	f.expectCount(6)
	f.expectRows(6)
	f.dst.ExpectBegin()
	for i := 1; i <= 3; i++ {
		f.dst.ExpectExec("SAVEPOINT " + tx.SavepointName(i)).WillReturnResult(sqlmock.NewResult(0, 0))
		if i == 3 {
			for j := 1; j <= 3; j++ {
				f.expectInsert(j).WillReturnResult(sqlmock.NewResult(int64(j), 1))
			}
		}
		f.dst.ExpectExec("RELEASE SAVEPOINT " + tx.SavepointName(i)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	for i := 4; i <= 5; i++ {
		f.dst.ExpectExec("SAVEPOINT " + tx.SavepointName(i)).WillReturnResult(sqlmock.NewResult(0, 0))
		f.dst.ExpectExec("RELEASE SAVEPOINT " + tx.SavepointName(i)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	f.dst.ExpectExec("SAVEPOINT sp_6").WillReturnResult(sqlmock.NewResult(0, 0))
	f.expectInsert(4).WillReturnResult(sqlmock.NewResult(4, 1))
	f.expectInsert(5).WillReturnError(linkFailure)
	f.dst.ExpectRollback()

	sum, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, step.StatusAborted, sum.Status)
	assert.Equal(t, 6, sum.Processed)
	assert.Equal(t, 1, sum.Batches)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 0, sum.Tx.Commits)
	assert.Equal(t, 1, sum.Tx.Rollbacks)
	fatal := f.log.Levels(t, "fatal")
	require.Len(t, fatal, 1)
	assert.Contains(t, fatal[0].Message, "process:6 / 6 id=#6")
	assert.Contains(t, fatal[0].Message, "batch entry 2 of 3")
	f.verify(t)
}

func TestRun_SourceErrorMidStreamFailsTheJob(t *testing.T) {
	f := newFixture(t, tx.None, 1, true)
	f.expectCount(10)
	f.expectRowsFailingAfter(10, 7, errors.New("snapshot too old"))
	for i := 1; i <= 7; i++ {
		f.expectInsert(i).WillReturnResult(sqlmock.NewResult(int64(i), 1))
	}

	sum, err := f.job.Run(context.Background())
	require.Error(t, err)

	assert.Contains(t, err.Error(), "source query failed after record 7")
	assert.Contains(t, err.Error(), "snapshot too old")
	assert.Equal(t, step.StatusFailed, sum.Status)
	assert.Equal(t, 7, sum.Processed)
	assert.Equal(t, 7, sum.Succeeded)
	assert.Empty(t, f.log.Matching(t, "processed 7 / count 10"))
	f.verify(t)
}

func TestRun_SourceConnectionLostMidStreamAborts(t *testing.T) {
	f := newFixture(t, tx.All, 1, true)
	f.expectCount(4)
	f.expectRowsFailingAfter(4, 2, linkFailure)
	f.dst.ExpectBegin()
	for i := 1; i <= 2; i++ {
		f.dst.ExpectExec("SAVEPOINT " + tx.SavepointName(i)).WillReturnResult(sqlmock.NewResult(0, 0))
		f.expectInsert(i).WillReturnResult(sqlmock.NewResult(int64(i), 1))
		f.dst.ExpectExec("RELEASE SAVEPOINT " + tx.SavepointName(i)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	f.dst.ExpectRollback()

	sum, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, step.StatusAborted, sum.Status)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 0, sum.Tx.Commits)
	assert.Equal(t, 1, sum.Tx.Rollbacks)
	fatal := f.log.Levels(t, "fatal")
	require.Len(t, fatal, 1)
	assert.Contains(t, fatal[0].Message, "process:3 / 4")
	f.verify(t)
}

func TestRun_RejectedOtherWorkSkipsBind(t *testing.T) {
	f := newFixture(t, tx.ByRecord, 1, false)
	var bound []string
	f.job.Definition = migration.Funcs{
		OtherWorkFunc: func(ctx context.Context, rec reader.Record, dst tx.Executor) (hook.Result, error) {
			if reader.Text(rec.Value(0)) == "2" {
				return hook.Reject("retired"), nil
			}
			return hook.Proceed(), nil
		},
		BindFunc: func(ctx context.Context, rec reader.Record) (hook.Result, []any, error) {
			bound = append(bound, reader.Text(rec.Value(0)))
			return hook.Proceed(), rec.Values(), nil
		},
		IdentifierFunc: func(rec reader.Record) string { return "#" + reader.Text(rec.Value(0)) },
	}
	f.expectRows(2)
	f.dst.ExpectBegin()
	f.expectInsert(1).WillReturnResult(sqlmock.NewResult(1, 1))
	f.dst.ExpectCommit()
	f.dst.ExpectBegin()
	f.dst.ExpectRollback()

	sum, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"1"}, bound)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 1, sum.Rejected)
	rejected := f.log.Matching(t, "process:2 / - skipped")
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected[0].Message, "retired")
	assert.NotContains(t, rejected[0].Message, "#2")
	f.verify(t)
}
