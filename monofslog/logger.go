package monofslog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

func sprintf(format string, args ...any) string { return fmt.Sprintf(format, args...) }
func sprint(args ...any) string                 { return fmt.Sprint(args...) }

type loggerFactory struct {
	mu     sync.Mutex
	format string
	level  *slog.LevelVar
	out    io.Writer
	prefix string
}

func (f *loggerFactory) createJsonOrTextHandler(out io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	return newLineHandler(out, level, f.format, prefix)
}

func (f *loggerFactory) build() *slog.Logger {
	return slog.New(f.createJsonOrTextHandler(f.out, f.level, f.prefix))
}

var (
	defaultLoggerFactory = &loggerFactory{format: "text", level: &slog.LevelVar{}, out: os.Stderr}
	defaultLogger         = defaultLoggerFactory.build()
	defaultLoggerMu       sync.RWMutex
)

func setLoggingLevel(level string, v *slog.LevelVar) {
	v.Set(slogLevel(Level(level)))
}

// SetLoggingLevel adjusts the severity threshold of the default
// logger without rebuilding its handler or output destination.
func SetLoggingLevel(level Level) {
	setLoggingLevel(string(level), defaultLoggerFactory.level)
}

// SetLogFormat switches the default logger between "text" and "json"
// line rendering.
func SetLogFormat(format string) {
	defaultLoggerFactory.mu.Lock()
	defaultLoggerFactory.format = format
	defaultLoggerMu.Lock()
	defaultLogger = defaultLoggerFactory.build()
	defaultLoggerMu.Unlock()
	defaultLoggerFactory.mu.Unlock()
}

// UpdateDefaultLogger rebuilds the default logger with a new format
// and message prefix, e.g. to tag a per-mount log stream by bind
// label.
func UpdateDefaultLogger(format, prefix string) {
	defaultLoggerFactory.mu.Lock()
	defaultLoggerFactory.format = format
	defaultLoggerFactory.prefix = prefix
	defaultLoggerMu.Lock()
	defaultLogger = defaultLoggerFactory.build()
	defaultLoggerMu.Unlock()
	defaultLoggerFactory.mu.Unlock()
}

// InitLogFile redirects the default logger's output to a rotated log
// file backed by lumberjack, per path and rotation settings; an empty
// path leaves the logger writing to stderr.
func InitLogFile(cfg FileConfig) error {
	if cfg.Path == "" {
		return nil
	}

	w, err := newRotatedWriter(cfg)
	if err != nil {
		return err
	}

	defaultLoggerFactory.mu.Lock()
	defaultLoggerFactory.out = w
	defaultLoggerMu.Lock()
	defaultLogger = defaultLoggerFactory.build()
	defaultLoggerMu.Unlock()
	defaultLoggerFactory.mu.Unlock()
	return nil
}

func logger() *slog.Logger {
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

func Tracef(format string, args ...any) { logAt(slogLevelTrace, sprintf(format, args...)) }
func Debugf(format string, args ...any) { logger().Debug(sprintf(format, args...)) }
func Infof(format string, args ...any)  { logger().Info(sprintf(format, args...)) }
func Warnf(format string, args ...any)  { logger().Warn(sprintf(format, args...)) }
func Errorf(format string, args ...any) { logger().Error(sprintf(format, args...)) }

func Trace(args ...any) { logAt(slogLevelTrace, sprint(args...)) }
func Debug(args ...any) { logger().Debug(sprint(args...)) }
func Info(args ...any)  { logger().Info(sprint(args...)) }
func Warn(args ...any)  { logger().Warn(sprint(args...)) }
func Error(args ...any) { logger().Error(sprint(args...)) }

func logAt(level slog.Level, msg string) {
	logger().Log(context.Background(), level, msg)
}
