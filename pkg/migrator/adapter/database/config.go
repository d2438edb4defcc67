package database

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/tigerroll/dbmigrator/pkg/migrator/core/config"
)

// Supported datasource types.
const (
	TypeMySQL    = "mysql"
	TypePostgres = "postgres" // lib/pq
	TypePgx      = "pgx"      // jackc/pgx stdlib
	TypeSQLite   = "sqlite3"
	TypeOracle   = "oracle" // sijms/go-ora
)

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds the settings of one datasource.
type DatabaseConfig struct {
	Type     string `yaml:"type"`     // Type is one of mysql, postgres, pgx, sqlite3, oracle.
	Host     string `yaml:"host"`     // Database host address.
	Port     int    `yaml:"port"`     // Database port number.
	Database string `yaml:"database"` // Database name, or the service name for Oracle.
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Schema   string `yaml:"schema,omitempty"` // Schema sets search_path on PostgreSQL.
	Sslmode  string `yaml:"sslmode"`
	Path     string `yaml:"path"` // Path is the database file for sqlite3.
	// Options are appended to the DSN as driver parameters.
	Options map[string]string `yaml:"options"`
	// LogQueries wraps the driver so that every statement is logged at DEBUG.
	LogQueries bool       `yaml:"log_queries"`
	Pool       PoolConfig `yaml:"pool"`
}

// DecodeConfig decodes the raw settings of datasource name and applies
// MIGRATOR_DATASOURCES_<NAME>_<FIELD> environment overrides on top.
func DecodeConfig(name string, raw interface{}) (DatabaseConfig, error) {
	var dc DatabaseConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		Result:           &dc,
	})
	if err != nil {
		return dc, err
	}
	if err := decoder.Decode(raw); err != nil {
		return dc, fmt.Errorf("failed to decode database config for '%s': %w", name, err)
	}
	if err := applyEnv(name, &dc); err != nil {
		return dc, err
	}
	dc.Type = strings.ToLower(dc.Type)
	switch dc.Type {
	case TypeMySQL, TypePostgres, TypePgx, TypeSQLite, TypeOracle:
	case "sqlite":
		dc.Type = TypeSQLite
	default:
		return dc, fmt.Errorf("datasource '%s' has unsupported type '%s'", name, dc.Type)
	}
	return dc, nil
}

func applyEnv(name string, dc *DatabaseConfig) error {
	prefix := config.EnvPrefix + "DATASOURCES_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name)) + "_"
	apply := func(v reflect.Value, prefix string) error {
		typ := v.Type()
		for i := 0; i < typ.NumField(); i++ {
			tag := strings.Split(typ.Field(i).Tag.Get("yaml"), ",")[0]
			value, ok := os.LookupEnv(prefix + strings.ToUpper(tag))
			if !ok {
				continue
			}
			if err := config.SetStructFieldFromEnv(v, tag, value); err != nil {
				return fmt.Errorf("datasource '%s': %s: %w", name, prefix+strings.ToUpper(tag), err)
			}
		}
		return nil
	}
	if err := apply(reflect.ValueOf(dc).Elem(), prefix); err != nil {
		return err
	}
	return apply(reflect.ValueOf(&dc.Pool).Elem(), prefix+"POOL_")
}
