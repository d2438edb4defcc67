package database

import (
	"fmt"

	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialector returns a GORM dialector sharing the pool of datasource name. It backs the run-history
// store, which only supports MySQL, PostgreSQL and SQLite.
func (p *Provider) Dialector(name string) (gorm.Dialector, string, error) {
	db, dc, err := p.DB(name)
	if err != nil {
		return nil, "", err
	}
	switch dc.Type {
	case TypeMySQL:
		return gormmysql.New(gormmysql.Config{Conn: db, SkipInitializeWithVersion: true}), dc.Type, nil
	case TypePostgres, TypePgx:
		return gormpostgres.New(gormpostgres.Config{Conn: db}), dc.Type, nil
	case TypeSQLite:
		return &gormsqlite.Dialector{Conn: db}, dc.Type, nil
	default:
		return nil, "", fmt.Errorf("datasource '%s' of type '%s' cannot hold the run history", name, dc.Type)
	}
}
