package logx

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Logger 对外暴露给业务 / 组件使用的接口
type Logger interface {
	Debug(ctx context.Context, tag string, msg any, kv ...any)
	Info(ctx context.Context, tag string, msg any, kv ...any)
	Warn(ctx context.Context, tag string, msg any, kv ...any)
	Error(ctx context.Context, tag string, msg any, kv ...any)
}

type loggerImpl struct {
	slog *slog.Logger
	h    *handler
}

func (l *loggerImpl) Debug(ctx context.Context, tag string, msg any, kv ...any) {
	l.log(ctx, slog.LevelDebug, tag, msg, kv...)
}

func (l *loggerImpl) Info(ctx context.Context, tag string, msg any, kv ...any) {
	l.log(ctx, slog.LevelInfo, tag, msg, kv...)
}

func (l *loggerImpl) Warn(ctx context.Context, tag string, msg any, kv ...any) {
	l.log(ctx, slog.LevelWarn, tag, msg, kv...)
}

func (l *loggerImpl) Error(ctx context.Context, tag string, msg any, kv ...any) {
	l.log(ctx, slog.LevelError, tag, msg, kv...)
}

// Close 写完队列中的日志并关闭文件
func (l *loggerImpl) Close() error {
	if l == nil || l.h == nil {
		return nil
	}
	return l.h.close()
}

func (l *loggerImpl) log(ctx context.Context, level slog.Level, tag string, msg any, kv ...any) {
	if l == nil || l.slog == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.slog.Enabled(ctx, level) {
		return
	}

	attrs := encodeLog(ctx, tag, msg, kv...)
	rec := slog.NewRecord(time.Now(), level, "", 0)
	rec.AddAttrs(attrs...)

	_ = l.slog.Handler().Handle(ctx, rec)
}

// -------------------- 全局默认 logger --------------------

var defaultLogger atomic.Pointer[Logger]

// Init 根据 Config 初始化全局 logger（main 里调用一次）
func Init(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	SetDefault(l)
	return nil
}

// New 创建一个独立的 Logger 实例
func New(cfg Config) (Logger, error) {
	h, err := newHandler(cfg)
	if err != nil {
		return nil, err
	}
	return &loggerImpl{slog: slog.New(h), h: h}, nil
}

// SetDefault 替换全局 logger，nil 表示关闭全局日志
func SetDefault(l Logger) {
	if l == nil {
		defaultLogger.Store(nil)
		return
	}
	defaultLogger.Store(&l)
}

// L 返回全局 logger，未 Init 时为 nil
func L() Logger {
	if p := defaultLogger.Load(); p != nil {
		return *p
	}
	return nil
}

// Close 关闭全局 logger（如果支持）
func Close() error {
	if c, ok := L().(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// 方便业务直接调用的快捷函数

func Debug(ctx context.Context, tag string, msg any, kv ...any) {
	if l := L(); l != nil {
		l.Debug(ctx, tag, msg, kv...)
	}
}

func Info(ctx context.Context, tag string, msg any, kv ...any) {
	if l := L(); l != nil {
		l.Info(ctx, tag, msg, kv...)
	}
}

func Warn(ctx context.Context, tag string, msg any, kv ...any) {
	if l := L(); l != nil {
		l.Warn(ctx, tag, msg, kv...)
	}
}

func Error(ctx context.Context, tag string, msg any, kv ...any) {
	if l := L(); l != nil {
		l.Error(ctx, tag, msg, kv...)
	}
}
