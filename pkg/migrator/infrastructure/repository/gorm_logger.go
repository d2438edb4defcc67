package repository

import (
	"fmt"
	"strings"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/logger"
)

// NewGormLogger returns a GORM logger writing through the process-wide sink. Statements are only
// printed when the system log level is DEBUG.
func NewGormLogger(level string) gormlogger.Interface {
	var gormLevel gormlogger.LogLevel
	switch strings.ToUpper(level) {
	case "DEBUG":
		gormLevel = gormlogger.Info
	case "ERROR", "FATAL":
		gormLevel = gormlogger.Error
	default:
		gormLevel = gormlogger.Warn
	}
	return gormlogger.New(gormWriter{}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormLevel,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// gormWriter forwards GORM output to the logger package. Statement traces go to DEBUG, anything
// else (slow queries, errors) to WARN.
type gormWriter struct{}

func (gormWriter) Printf(format string, v ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	if isStatementTrace(msg) {
		logger.Debugf("[GORM] %s", msg)
		return
	}
	logger.Warnf("[GORM] %s", msg)
}

func isStatementTrace(msg string) bool {
	if strings.Contains(msg, "SLOW SQL") || strings.Contains(msg, "Error") {
		return false
	}
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.Contains(msg, verb) {
			return true
		}
	}
	return false
}
