package database

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	go_ora "github.com/sijms/go-ora/v2"
)

// DriverName returns the database/sql driver name registered for t.
func DriverName(t string) string {
	switch t {
	case TypeOracle:
		return "oracle"
	case TypeSQLite:
		return "sqlite3"
	default:
		return t
	}
}

// ConnectionString generates the DSN for c in the format its driver expects.
//
// Parameters:
//
//	c: The datasource settings.
//	fetchSize: The default row prefetch for Oracle; ignored by the other drivers.
func ConnectionString(c DatabaseConfig, fetchSize int) (string, error) {
	switch c.Type {
	case TypeMySQL:
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
		mc.DBName = c.Database
		if len(c.Options) > 0 {
			mc.Params = map[string]string{}
			for k, v := range c.Options {
				mc.Params[k] = v
			}
		}
		return mc.FormatDSN(), nil
	case TypePostgres, TypePgx:
		sslmode := c.Sslmode
		if sslmode == "" {
			sslmode = "disable"
		}
		parts := []string{
			fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
				pgQuote(c.Host), c.Port, pgQuote(c.User), pgQuote(c.Password), pgQuote(c.Database), pgQuote(sslmode)),
		}
		if c.Schema != "" {
			parts = append(parts, "search_path="+pgQuote(c.Schema))
		}
		for _, k := range sortedKeys(c.Options) {
			parts = append(parts, k+"="+pgQuote(c.Options[k]))
		}
		return strings.Join(parts, " "), nil
	case TypeSQLite:
		path := c.Path
		if path == "" {
			path = c.Database
		}
		if path == "" {
			return "", fmt.Errorf("sqlite3 datasource needs a path")
		}
		if len(c.Options) == 0 {
			return path, nil
		}
		q := url.Values{}
		for k, v := range c.Options {
			q.Set(k, v)
		}
		return "file:" + path + "?" + q.Encode(), nil
	case TypeOracle:
		opts := map[string]string{}
		for k, v := range c.Options {
			opts[strings.ToUpper(k)] = v
		}
		if _, ok := opts["PREFETCH_ROWS"]; !ok && fetchSize > 0 {
			opts["PREFETCH_ROWS"] = strconv.Itoa(fetchSize)
		}
		return go_ora.BuildUrl(c.Host, c.Port, c.Database, c.User, c.Password, opts), nil
	default:
		return "", fmt.Errorf("unsupported database type '%s'", c.Type)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var pgEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// pgQuote renders v as a single-quoted libpq keyword/value so that empty values and values
// holding spaces or quote characters survive.
func pgQuote(v string) string {
	return "'" + pgEscaper.Replace(v) + "'"
}
