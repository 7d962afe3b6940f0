package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auditflow/internal/common"
	"auditflow/internal/logger"

	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"
)

// GormZapLogger GORM 日志适配器（输出到 Zap，附带请求上下文）
type GormZapLogger struct {
	ZapLogger                 *zap.Logger
	LogLevel                  gormLogger.LogLevel
	SlowThreshold             time.Duration
	IgnoreRecordNotFoundError bool
}

func (l *GormZapLogger) with(ctx context.Context) *zap.Logger {
	base := l.ZapLogger
	if base == nil {
		base = logger.Get()
	}
	return base.With(logger.Fields(ctx)...)
}

// LogMode 设置日志级别
func (l *GormZapLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	clone := *l
	clone.LogLevel = level
	return &clone
}

func (l *GormZapLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= gormLogger.Info {
		l.with(ctx).Info(fmt.Sprintf(msg, data...))
	}
}

func (l *GormZapLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= gormLogger.Warn {
		l.with(ctx).Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *GormZapLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= gormLogger.Error {
		l.with(ctx).Error(fmt.Sprintf(msg, data...))
	}
}

// Trace SQL 执行日志
// 唯一约束冲突由采集层重试处理，只记 Warn
func (l *GormZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormLogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && errors.Is(err, gormLogger.ErrRecordNotFound) && l.IgnoreRecordNotFoundError:
	case err != nil && common.IsUniqueViolation(err):
		l.with(ctx).Warn("SQL 唯一约束冲突", append(fields, zap.Error(err))...)
		return
	case err != nil:
		l.with(ctx).Error("SQL 执行错误", append(fields, zap.Error(err))...)
		return
	}

	if l.SlowThreshold > 0 && elapsed > l.SlowThreshold {
		l.with(ctx).Warn("SQL 慢查询", fields...)
		return
	}
	if l.LogLevel >= gormLogger.Info {
		l.with(ctx).Debug("SQL 执行", fields...)
	}
}
