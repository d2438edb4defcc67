package exception

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/sijms/go-ora/v2/network"
)

const (
	// SQLStateConnectionFailure is the status code for a broken communication link.
	SQLStateConnectionFailure = "08S01"
	// SQLStateDeadlock is the status code reported for a deadlock.
	SQLStateDeadlock = "41000"
)

// postgresConnectionStates are the PostgreSQL class 08 codes that mean the session is gone.
var postgresConnectionStates = map[string]bool{
	"08000": true, // connection_exception
	"08003": true, // connection_does_not_exist
	"08006": true, // connection_failure
}

// oracleConnectionCodes are the ORA- error numbers raised when the session is lost.
var oracleConnectionCodes = map[int]bool{
	3113:  true, // end-of-file on communication channel
	3114:  true, // not connected to ORACLE
	3135:  true, // connection lost contact
	12537: true, // TNS:connection closed
}

// Status is the vendor-level description of a database failure.
type Status struct {
	// State is the five character status code. Vendor specific connection failures are
	// reported as SQLStateConnectionFailure.
	State string
	// Code is the vendor error number or code, if the driver exposes one.
	Code string
}

// StatusOf extracts the status code of a database error.
// It understands go-sql-driver/mysql, lib/pq, pgx and go-ora errors, and reports connection-layer
// failures that carry no status (bad driver connection, closed connection, network errors) as
// SQLStateConnectionFailure.
//
// Parameters:
//
//	err: The error to inspect.
//
// Returns:
//
//	The Status and true if err is a recognized database failure, or a zero Status and false.
func StatusOf(err error) (Status, bool) {
	if err == nil {
		return Status{}, false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return Status{State: string(myErr.SQLState[:]), Code: strconv.Itoa(int(myErr.Number))}, true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return postgresStatus(pgErr.Code), true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return postgresStatus(string(pqErr.Code)), true
	}

	var oraErr *network.OracleError
	if errors.As(err, &oraErr) {
		status := Status{Code: "ORA-" + leftPad(strconv.Itoa(oraErr.ErrCode))}
		if oracleConnectionCodes[oraErr.ErrCode] {
			status.State = SQLStateConnectionFailure
		}
		return status, true
	}

	if isConnectionLayer(err) {
		return Status{State: SQLStateConnectionFailure}, true
	}
	return Status{}, false
}

func postgresStatus(code string) Status {
	if postgresConnectionStates[code] {
		return Status{State: SQLStateConnectionFailure, Code: code}
	}
	return Status{State: code, Code: code}
}

func isConnectionLayer(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func leftPad(code string) string {
	for len(code) < 5 {
		code = "0" + code
	}
	return code
}
