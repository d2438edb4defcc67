package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"
)

func TestIsStatementTrace(t *testing.T) {
	assert.True(t, isStatementTrace("repository.go:61 [0.512ms] [rows:1] INSERT INTO `migrator_job_run` ..."))
	assert.False(t, isStatementTrace("repository.go:61 SLOW SQL >= 200ms [210.1ms] [rows:1] SELECT 1"))
	assert.False(t, isStatementTrace("repository.go:61 Error 1146: table doesn't exist"))
	assert.False(t, isStatementTrace("connected"))
}

func TestNewGormLogger_Levels(t *testing.T) {
	assert.NotNil(t, NewGormLogger("debug"))
	assert.NotNil(t, NewGormLogger("ERROR"))
	assert.NotNil(t, NewGormLogger(""))
	var _ gormlogger.Interface = NewGormLogger("INFO")
}
