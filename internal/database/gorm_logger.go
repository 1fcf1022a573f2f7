package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"authapp/pkg/logger"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// GormLogger forwards GORM's log output to a logger.Logger.
type GormLogger struct {
	log   logger.Logger
	level gormlogger.LogLevel
}

// NewGormLogger maps the service log level onto GORM's levels: debug logs
// every query, info and warn log slow queries and errors, error logs errors.
func NewGormLogger(log logger.Logger, level string) *GormLogger {
	l := &GormLogger{log: log.With("component", "gorm")}
	switch level {
	case "debug":
		l.level = gormlogger.Info
	case "error":
		l.level = gormlogger.Error
	default:
		l.level = gormlogger.Warn
	}
	return l
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.Info(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.Error(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.log.Error("Query failed", "sql", sql, "rows", rows, "elapsed", elapsed.String(), "error", err)
	case elapsed > slowQueryThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.log.Warn("Slow query", "sql", sql, "rows", rows, "elapsed", elapsed.String())
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.log.Debug("Query", "sql", sql, "rows", rows, "elapsed", elapsed.String())
	}
}
