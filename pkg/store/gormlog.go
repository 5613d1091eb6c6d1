package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/miniserver/internal/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// gormLogger forwards GORM's logging to the process logger.
type gormLogger struct {
	level gormlogger.LogLevel
}

func newGormLogger(level string) gormlogger.Interface {
	return &gormLogger{level: parseGormLevel(level)}
}

func parseGormLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		logger.DebugCtx(ctx, fmt.Sprintf(msg, data...), logger.Component("gorm"))
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		logger.WarnCtx(ctx, fmt.Sprintf(msg, data...), logger.Component("gorm"))
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		logger.ErrorCtx(ctx, fmt.Sprintf(msg, data...), logger.Component("gorm"))
	}
}

// Trace logs failed queries at error, slow queries at warn, and every
// query at debug when the level is info.
func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		logger.ErrorCtx(ctx, "Query failed",
			logger.Component("gorm"), logger.Err(err),
			"sql", sql, logger.KeyRows, rows, logger.DurationMs(float64(elapsed.Microseconds())/1000.0))
	case elapsed > slowQueryThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		logger.WarnCtx(ctx, "Slow query",
			logger.Component("gorm"),
			"sql", sql, logger.KeyRows, rows, logger.DurationMs(float64(elapsed.Microseconds())/1000.0))
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		logger.DebugCtx(ctx, "Query",
			logger.Component("gorm"),
			"sql", sql, logger.KeyRows, rows, logger.DurationMs(float64(elapsed.Microseconds())/1000.0))
	}
}
