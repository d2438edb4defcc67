package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/simukti/sqldb-logger/logadapter/zerologadapter"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/sijms/go-ora/v2"

	"github.com/tigerroll/dbmigrator/pkg/migrator/component/reader"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/config"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/tx"
	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/exception"
	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/logger"
)

const moduleName = "database"

// OpenFunc opens a pool for a driver and DSN. sql.Open is the default.
type OpenFunc func(driverName, dsn string) (*sql.DB, error)

type handle struct {
	db    *sql.DB
	cfg   DatabaseConfig
	fetch int
}

// Provider owns one *sql.DB pool per configured datasource. Pools are opened lazily and shared
// by every job that names the datasource.
type Provider struct {
	cfg  *config.Config
	open OpenFunc

	mu  sync.RWMutex
	dbs map[string]*handle
}

// NewProvider creates a Provider for the datasources of cfg.
func NewProvider(cfg *config.Config) *Provider {
	return &Provider{cfg: cfg, open: sql.Open, dbs: make(map[string]*handle)}
}

// NewProviderWithOpen creates a Provider that opens pools through open.
func NewProviderWithOpen(cfg *config.Config, open OpenFunc) *Provider {
	p := NewProvider(cfg)
	p.open = open
	return p
}

// Register installs an already opened pool under name. It replaces any pool of the same name
// without closing it.
func (p *Provider) Register(name string, db *sql.DB, cfg DatabaseConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dbs[name] = &handle{db: db, cfg: cfg}
}

// DB returns the pool of datasource name, opening it on first use.
func (p *Provider) DB(name string) (*sql.DB, DatabaseConfig, error) {
	return p.Pool(name, 0)
}

// Pool returns a pool of datasource name whose driver prefetches fetchSize rows per round trip.
// Only Oracle takes the prefetch from the DSN, so it gets one pool per distinct fetch size; every
// other type shares the pool of name. A fetchSize of 0 means the datasource default.
func (p *Provider) Pool(name string, fetchSize int) (*sql.DB, DatabaseConfig, error) {
	p.mu.RLock()
	h, ok := p.lookup(name, fetchSize)
	p.mu.RUnlock()
	if ok {
		return h.db, h.cfg, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double check (DCL)
	if h, ok = p.lookup(name, fetchSize); ok {
		return h.db, h.cfg, nil
	}
	// The first pool of a datasource is keyed by its bare name.
	key := name
	if _, found := p.dbs[name]; found {
		key = poolKey(name, fetchSize)
	}
	h, err := p.connect(name, fetchSize)
	if err != nil {
		return nil, DatabaseConfig{}, exception.New(exception.KindConnectionAcquisition, moduleName, fmt.Sprintf("failed to open datasource '%s'", name), err)
	}
	p.dbs[key] = h
	logger.Infof("Opened datasource: %s (%s, fetch=%d)", name, h.cfg.Type, h.fetch)
	return h.db, h.cfg, nil
}

// lookup finds an open pool of name serving fetchSize. Callers hold p.mu.
func (p *Provider) lookup(name string, fetchSize int) (*handle, bool) {
	base, ok := p.dbs[name]
	if !ok {
		return nil, false
	}
	if base.cfg.Type != TypeOracle || fetchSize <= 0 || base.fetch == 0 || base.fetch == fetchSize {
		return base, true
	}
	h, ok := p.dbs[poolKey(name, fetchSize)]
	return h, ok
}

func poolKey(name string, fetchSize int) string {
	if fetchSize <= 0 {
		return name
	}
	return fmt.Sprintf("%s@%d", name, fetchSize)
}

func (p *Provider) connect(name string, fetchSize int) (*handle, error) {
	raw, ok := p.cfg.Migrator.Datasources[name]
	if !ok {
		return nil, fmt.Errorf("datasource '%s' is not configured", name)
	}
	dc, err := DecodeConfig(name, raw)
	if err != nil {
		return nil, err
	}
	if fetchSize <= 0 {
		fetchSize = p.cfg.Migrator.Exec.SelectChunkSize
	}
	dsn, err := ConnectionString(dc, fetchSize)
	if err != nil {
		return nil, err
	}
	db, err := p.open(DriverName(dc.Type), dsn)
	if err != nil {
		return nil, err
	}
	if dc.LogQueries {
		db = withQueryLog(db, dsn, name)
	}

	if dc.Pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(dc.Pool.MaxOpenConns)
	}
	if dc.Pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(dc.Pool.MaxIdleConns)
	}
	if dc.Pool.ConnMaxLifetimeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(dc.Pool.ConnMaxLifetimeMinutes) * time.Minute)
	}
	return &handle{db: db, cfg: dc, fetch: fetchSize}, nil
}

// withQueryLog reopens db through sqldb-logger so that every statement is logged at DEBUG with the
// datasource name attached.
func withQueryLog(db *sql.DB, dsn, name string) *sql.DB {
	drv := db.Driver()
	_ = db.Close()
	adapter := zerologadapter.New(logger.Zerolog().With().Str("datasource", name).Logger())
	return sqldblogger.OpenDriver(dsn, drv, adapter,
		sqldblogger.WithWrapResult(false),
		sqldblogger.WithDurationFieldname("dur_ms"),
		sqldblogger.WithDurationUnit(sqldblogger.DurationMillisecond),
		sqldblogger.WithSQLQueryAsMessage(true),
		sqldblogger.WithSQLQueryFieldname("sql_query"),
		sqldblogger.WithExecerLevel(sqldblogger.LevelDebug),
		sqldblogger.WithQueryerLevel(sqldblogger.LevelDebug),
		sqldblogger.WithPreparerLevel(sqldblogger.LevelDebug),
	)
}

// Acquirer returns an Acquirer handing out connections of datasource name from the pool serving
// fetchSize (see Pool).
func (p *Provider) Acquirer(name string, fetchSize int) tx.Acquirer {
	return &datasource{provider: p, name: name, fetchSize: fetchSize}
}

// Opener returns the cursor opener suited to the type of datasource name: a server-side chunked
// cursor for PostgreSQL, plain streaming for the others.
func (p *Provider) Opener(name string) (reader.Opener, error) {
	_, dc, err := p.DB(name)
	if err != nil {
		return nil, err
	}
	return OpenerFor(dc.Type), nil
}

// OpenerFor returns the cursor opener for a datasource type.
func OpenerFor(dbType string) reader.Opener {
	switch dbType {
	case TypePostgres, TypePgx:
		return reader.ChunkedOpener{CursorName: reader.DefaultCursorName}
	default:
		return reader.StreamingOpener{}
	}
}

// CloseAll closes every pool. All close errors are reported.
func (p *Provider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result *multierror.Error
	for name, h := range p.dbs {
		if err := h.db.Close(); err != nil {
			logger.Errorf("Failed to close datasource '%s': %v", name, err)
			result = multierror.Append(result, fmt.Errorf("datasource '%s': %w", name, err))
		}
		delete(p.dbs, name)
	}
	return result.ErrorOrNil()
}

type datasource struct {
	provider  *Provider
	name      string
	fetchSize int
}

// Acquire takes a dedicated connection from the pool. Failures are ConnectionAcquisitionErrors.
func (d *datasource) Acquire(ctx context.Context) (*sql.Conn, error) {
	db, _, err := d.provider.Pool(d.name, d.fetchSize)
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, exception.New(exception.KindConnectionAcquisition, moduleName, fmt.Sprintf("failed to acquire connection from '%s'", d.name), err)
	}
	return conn, nil
}
