// Package db 提供 GORM/MySQL 初始化与连接池配置。
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wyfcoding/settlementengine/pkg/config"
)

// Open 按配置建立 MySQL 连接并配置连接池。
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gdb, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: NewSlogLogger(cfg.LogEnabled, time.Duration(cfg.SlowQueryThreshold)*time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := sqlDB.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return gdb, nil
}

// SlogLogger 把 GORM 日志桥接到 slog。
type SlogLogger struct {
	enabled            bool
	slowQueryThreshold time.Duration
}

func NewSlogLogger(enabled bool, slowQueryThreshold time.Duration) *SlogLogger {
	return &SlogLogger{enabled: enabled, slowQueryThreshold: slowQueryThreshold}
}

func (l *SlogLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface {
	return l
}

func (l *SlogLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.enabled {
		slog.InfoContext(ctx, msg, "data", data)
	}
}

func (l *SlogLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	slog.WarnContext(ctx, msg, "data", data)
}

func (l *SlogLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	slog.ErrorContext(ctx, msg, "data", data)
}

func (l *SlogLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sqlStr, rows := fc()
	args := []any{
		"duration", elapsed,
		"rows", rows,
		"sql", sqlStr,
	}
	switch {
	case err != nil:
		args = append(args, "error", err)
		slog.ErrorContext(ctx, "SQL execution failed", args...)
	case elapsed > l.slowQueryThreshold:
		slog.WarnContext(ctx, "Slow query detected", args...)
	case l.enabled:
		slog.DebugContext(ctx, "SQL executed", args...)
	}
}
