package launcher_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/dbmigrator/pkg/migrator/adapter/database"
	"github.com/tigerroll/dbmigrator/pkg/migrator/component/reader"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/config"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/hook"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/launcher"
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/step"
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/step/migration"
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/step/steptest"
	"github.com/tigerroll/dbmigrator/pkg/migrator/infrastructure/repository"
	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/logger"
)

const (
	selectSQL = "SELECT id, name FROM employees ORDER BY id"
	insertSQL = "INSERT INTO employees (id, name) VALUES (?, ?)"
	lookupSQL = "SELECT id, name FROM employees WHERE id = ?"
)

type historyMock struct {
	mock.Mock
}

func (m *historyMock) RecordStart(ctx context.Context, run repository.Run) error {
	return m.Called(ctx, run).Error(0)
}

func (m *historyMock) RecordEnd(ctx context.Context, id string, sum step.Summary) error {
	return m.Called(ctx, id, sum).Error(0)
}

func (m *historyMock) FindRuns(ctx context.Context, job string, limit int) ([]repository.JobRunEntity, error) {
	args := m.Called(ctx, job, limit)
	return args.Get(0).([]repository.JobRunEntity), args.Error(1)
}

type fixture struct {
	cfg      *config.Config
	provider *database.Provider
	registry *launcher.Registry
	history  *historyMock
	mocks    map[string]sqlmock.Sqlmock
}

func newFixture(t *testing.T, datasources ...string) *fixture {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Migrator.File = config.FileConfig{Encoding: "UTF-8", Buffer: 4096}
	cfg.Migrator.Exec = config.ExecConfig{SelectChunkSize: 100, BatchChunkSize: 2}
	cfg.Migrator.Check = config.CheckConfig{SelectSourceChunkSize: 100, SelectDestinationChunkSize: 10}

	f := &fixture{
		cfg:      cfg,
		provider: database.NewProvider(cfg),
		registry: launcher.NewRegistry(),
		history:  &historyMock{},
		mocks:    make(map[string]sqlmock.Sqlmock),
	}
	for _, name := range datasources {
		db, m := steptest.NewDB(t)
		f.provider.Register(name, db, database.DatabaseConfig{Type: database.TypeMySQL})
		f.mocks[name] = m
	}
	return f
}

func (f *fixture) launcher() *launcher.Launcher {
	if !f.expects("FindRuns") {
		f.history.On("FindRuns", mock.Anything, mock.Anything, 1).Return([]repository.JobRunEntity(nil), nil).Maybe()
	}
	return launcher.NewLauncher(launcher.Params{
		Config:   f.cfg,
		Registry: f.registry,
		Provider: f.provider,
		Loader: steptest.Loader{
			"select.sql": selectSQL,
			"insert.sql": insertSQL,
			"lookup.sql": lookupSQL,
		},
		History: f.history,
	})
}

func (f *fixture) expects(method string) bool {
	for _, c := range f.history.ExpectedCalls {
		if c.Method == method {
			return true
		}
	}
	return false
}

func (f *fixture) verify(t *testing.T) {
	t.Helper()
	for name, m := range f.mocks {
		assert.NoError(t, m.ExpectationsWereMet(), name)
	}
	f.history.AssertExpectations(t)
}

func employeeRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "alice").AddRow(int64(2), "bob")
}

func migrationJob() config.JobDefinition {
	return config.JobDefinition{
		Name: "employees", Kind: config.KindMigration, Definition: launcher.PassthroughDefinition,
		Source: "legacy", Destination: "target",
		Queries: config.QueriesConfig{Select: "select.sql", Write: "insert.sql"},
	}
}

func checkJob() config.JobDefinition {
	return config.JobDefinition{
		Name: "employees-check", Kind: config.KindReconciliation, Definition: launcher.ColumnsCheck,
		Source: "legacy-check", Destination: "target-check",
		Queries: config.QueriesConfig{Select: "select.sql", Lookup: "lookup.sql"},
	}
}

func TestParseJobNames(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, launcher.ParseJobNames(" a, ,b "))
	assert.Nil(t, launcher.ParseJobNames(""))
}

func TestLauncher_RunsEveryJob(t *testing.T) {
	f := newFixture(t, "legacy", "target", "legacy-check", "target-check")
	f.cfg.Migrator.Jobs = []config.JobDefinition{migrationJob(), checkJob()}

	f.mocks["legacy"].ExpectQuery(selectSQL).WillReturnRows(employeeRows())
	f.mocks["target"].ExpectExec(insertSQL).WithArgs(int64(1), "alice").WillReturnResult(sqlmock.NewResult(1, 1))
	f.mocks["target"].ExpectExec(insertSQL).WithArgs(int64(2), "bob").WillReturnResult(sqlmock.NewResult(2, 1))
	f.mocks["legacy-check"].ExpectQuery(selectSQL).WillReturnRows(employeeRows())
	f.mocks["target-check"].ExpectQuery(lookupSQL).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "alice"))
	f.mocks["target-check"].ExpectQuery(lookupSQL).WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(2), "robert"))

	f.history.On("RecordStart", mock.Anything, mock.MatchedBy(func(r repository.Run) bool {
		return r.JobName == "employees" && r.Kind == config.KindMigration && r.TransactionMode == "None"
	})).Return(nil).Once()
	f.history.On("RecordStart", mock.Anything, mock.MatchedBy(func(r repository.Run) bool {
		return r.JobName == "employees-check" && r.Kind == config.KindReconciliation
	})).Return(nil).Once()
	f.history.On("RecordEnd", mock.Anything, mock.Anything, mock.MatchedBy(func(s step.Summary) bool {
		return s.Status == step.StatusCompleted
	})).Return(nil).Twice()

	results, err := f.launcher().Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "employees", results[0].Summary.Job)
	assert.Equal(t, step.StatusCompleted, results[0].Summary.Status)
	assert.Equal(t, 2, results[0].Summary.Succeeded)
	assert.Equal(t, 1, results[0].Summary.Batches)

	assert.Equal(t, "employees-check", results[1].Summary.Job)
	assert.Equal(t, 1, results[1].Summary.Succeeded)
	assert.Equal(t, 1, results[1].Summary.Rejected)

	for _, r := range results {
		_, err := uuid.Parse(r.RunID)
		assert.NoError(t, err)
	}
	assert.NotEqual(t, results[0].RunID, results[1].RunID)
	assert.False(t, launcher.Failed(results))
	f.verify(t)
}

func TestLauncher_RunsSelectedJobsOnly(t *testing.T) {
	f := newFixture(t, "legacy", "target")
	f.cfg.Migrator.Exec.Parallelism = 1
	f.cfg.Migrator.Jobs = []config.JobDefinition{migrationJob(), checkJob()}
	f.mocks["legacy"].ExpectQuery(selectSQL).WillReturnRows(employeeRows())
	f.mocks["target"].ExpectExec(insertSQL).WillReturnResult(sqlmock.NewResult(1, 1))
	f.mocks["target"].ExpectExec(insertSQL).WillReturnResult(sqlmock.NewResult(2, 1))
	f.history.On("RecordStart", mock.Anything, mock.Anything).Return(nil).Once()
	f.history.On("RecordEnd", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	results, err := f.launcher().Run(context.Background(), []string{"employees"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "employees", results[0].Summary.Job)
	f.verify(t)
}

func TestLauncher_UnknownJobIsAConfigurationError(t *testing.T) {
	f := newFixture(t)
	f.cfg.Migrator.Jobs = []config.JobDefinition{migrationJob()}

	_, err := f.launcher().Run(context.Background(), []string{"payroll"})
	require.Error(t, err)
	assert.True(t, launcher.IsConfigurationError(err))
	f.verify(t)
}

func TestLauncher_UnregisteredDefinitionStopsEveryJob(t *testing.T) {
	f := newFixture(t, "legacy", "target")
	broken := migrationJob()
	broken.Name = "payroll"
	broken.Definition = "payroll"
	f.cfg.Migrator.Jobs = []config.JobDefinition{migrationJob(), broken}

	results, err := f.launcher().Run(context.Background(), nil)
	require.Error(t, err)
	assert.Nil(t, results)
	assert.True(t, launcher.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "no migration definition registered as 'payroll'")
	f.verify(t)
}

func TestLauncher_UnknownSourceDatasource(t *testing.T) {
	f := newFixture(t)
	f.cfg.Migrator.Jobs = []config.JobDefinition{migrationJob()}

	_, err := f.launcher().Run(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, launcher.IsConfigurationError(err))
}

func TestLauncher_PanickingHookFailsOnlyItsJob(t *testing.T) {
	f := newFixture(t, "legacy", "target")
	f.registry.RegisterMigration("explosive", migration.Funcs{
		BindFunc: func(ctx context.Context, rec reader.Record) (hook.Result, []any, error) {
			panic("unexpected column layout")
		},
	})
	job := migrationJob()
	job.Definition = "explosive"
	f.cfg.Migrator.Jobs = []config.JobDefinition{job}
	f.mocks["legacy"].ExpectQuery(selectSQL).WillReturnRows(employeeRows())
	f.history.On("RecordStart", mock.Anything, mock.Anything).Return(nil).Once()
	f.history.On("RecordEnd", mock.Anything, mock.Anything, mock.MatchedBy(func(s step.Summary) bool {
		return s.Status == step.StatusFailed && s.Err != nil
	})).Return(nil).Once()

	results, err := f.launcher().Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, step.StatusFailed, results[0].Summary.Status)
	assert.Contains(t, results[0].Summary.Err.Error(), "unexpected column layout")
	assert.True(t, launcher.Failed(results))
	f.verify(t)
}

func TestLauncher_ReportsThePreviousRun(t *testing.T) {
	var buf bytes.Buffer
	logger.Configure(&buf, logger.FormatJSON)
	defer logger.Configure(&bytes.Buffer{}, logger.FormatConsole)

	f := newFixture(t, "legacy", "target", "legacy-check", "target-check")
	f.cfg.Migrator.Exec.Parallelism = 1
	f.cfg.Migrator.Jobs = []config.JobDefinition{migrationJob(), checkJob()}
	f.mocks["legacy"].ExpectQuery(selectSQL).WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	f.mocks["legacy-check"].ExpectQuery(selectSQL).WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	f.history.On("FindRuns", mock.Anything, "employees", 1).
		Return([]repository.JobRunEntity{{ID: "run-1", Status: repository.StatusStarted}}, nil).Once()
	f.history.On("FindRuns", mock.Anything, "employees-check", 1).
		Return([]repository.JobRunEntity(nil), errors.New("no such table")).Once()
	f.history.On("RecordStart", mock.Anything, mock.Anything).Return(nil).Twice()
	f.history.On("RecordEnd", mock.Anything, mock.Anything, mock.Anything).Return(nil).Twice()

	_, err := f.launcher().Run(context.Background(), nil)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Job 'employees': previous run run-1 did not finish.")
	assert.Contains(t, out, "Job 'employees-check': previous runs unavailable: no such table")
	f.verify(t)
}

func TestLauncher_ReportsAFinishedPreviousRun(t *testing.T) {
	var buf bytes.Buffer
	logger.Configure(&buf, logger.FormatJSON)
	defer logger.Configure(&bytes.Buffer{}, logger.FormatConsole)

	f := newFixture(t, "legacy", "target")
	f.cfg.Migrator.Jobs = []config.JobDefinition{migrationJob()}
	f.mocks["legacy"].ExpectQuery(selectSQL).WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	ended := time.Date(2026, 10, 16, 23, 0, 0, 0, time.UTC)
	f.history.On("FindRuns", mock.Anything, "employees", 1).
		Return([]repository.JobRunEntity{{ID: "run-1", Status: string(step.StatusCompleted), EndTime: &ended}}, nil).Once()
	f.history.On("RecordStart", mock.Anything, mock.Anything).Return(nil).Once()
	f.history.On("RecordEnd", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	_, err := f.launcher().Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "Job 'employees': previous run run-1 ended with status "+string(step.StatusCompleted)+" at 2026-10-16T23:00:00Z.")
	f.verify(t)
}

func TestRegistry(t *testing.T) {
	r := launcher.NewRegistry()
	_, err := r.Migration(launcher.PassthroughDefinition)
	assert.NoError(t, err)
	_, err = r.Check(launcher.ColumnsCheck)
	assert.NoError(t, err)
	_, err = r.Check("missing")
	assert.EqualError(t, err, "no reconciliation check registered as 'missing' (known: [columns])")
}
