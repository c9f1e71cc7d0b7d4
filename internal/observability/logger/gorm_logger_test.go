package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("  select * from transactions"))
	assert.Equal(t, "DELETE", operationFromSQL("DELETE FROM bank_connections WHERE id = $1"))
	assert.Equal(t, "INSERT", operationFromSQL("(INSERT INTO journal_entries VALUES (1))"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestDescribeSQLFindsTable(t *testing.T) {
	op, table := describeSQL(`SELECT * FROM "journal_entries" WHERE transaction_id = $1`)
	assert.Equal(t, "SELECT", op)
	assert.Equal(t, "journal_entries", table)

	op, table = describeSQL("INSERT INTO bank_transactions (id) VALUES ($1)")
	assert.Equal(t, "INSERT", op)
	assert.Equal(t, "bank_transactions", table)

	op, table = describeSQL("UPDATE transactions SET version = version + 1")
	assert.Equal(t, "UPDATE", op)
	assert.Equal(t, "transactions", table)
}

func TestGormLoggerTraceLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewGormLogger(zap.New(core), GormLoggerConfig{
		Level:                gormlogger.Warn,
		SlowThreshold:        10 * time.Millisecond,
		IgnoreRecordNotFound: true,
	})

	query := func() (string, int64) { return "SELECT * FROM accounts", 1 }

	l.Trace(context.Background(), time.Now(), query, nil)
	assert.Equal(t, 0, logs.Len())

	l.Trace(context.Background(), time.Now().Add(-time.Second), query, nil)
	assert.Equal(t, 1, logs.FilterMessage("db.slow_query").Len())

	l.Trace(context.Background(), time.Now(), query, gormlogger.ErrRecordNotFound)
	assert.Equal(t, 0, logs.FilterMessage("db.query").Len())

	l.Trace(context.Background(), time.Now(), query, errors.New("boom"))
	assert.Equal(t, 1, logs.FilterMessage("db.query").Len())
}

func TestGormLoggerDropsParams(t *testing.T) {
	l := NewGormLogger(nil, DefaultGormLoggerConfig())
	sql, params := l.ParamsFilter(context.Background(), "SELECT ?", "secret-token")
	assert.Equal(t, "SELECT ?", sql)
	assert.Nil(t, params)
}
