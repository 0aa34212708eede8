package store

import (
	"context"
	"errors"
	"time"

	"github.com/mwantia/docvault/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// gormLogger forwards gorm's logging to a LoggerService.
type gormLogger struct {
	log   log.LoggerService
	level logger.LogLevel
}

func newGormLogger(l log.LoggerService, level logger.LogLevel) logger.Interface {
	return &gormLogger{log: l, level: level}
}

func (g *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &gormLogger{log: g.log, level: level}
}

func (g *gormLogger) Info(_ context.Context, msg string, args ...any) {
	if g.level >= logger.Info {
		g.log.Debug(msg, args...)
	}
}

func (g *gormLogger) Warn(_ context.Context, msg string, args ...any) {
	if g.level >= logger.Warn {
		g.log.Warn(msg, args...)
	}
}

func (g *gormLogger) Error(_ context.Context, msg string, args ...any) {
	if g.level >= logger.Error {
		g.log.Error(msg, args...)
	}
}

func (g *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && g.level >= logger.Error:
		sql, rows := fc()
		g.log.Error("%s [%s, %d rows]: %v", sql, elapsed, rows, err)
	case elapsed > slowQueryThreshold && g.level >= logger.Warn:
		sql, rows := fc()
		g.log.Warn("Slow query %s [%s, %d rows]", sql, elapsed, rows)
	case g.level >= logger.Info:
		sql, rows := fc()
		g.log.Debug("%s [%s, %d rows]", sql, elapsed, rows)
	}
}
