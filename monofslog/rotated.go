package monofslog

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig describes where and how the default logger's rotated
// file sink is written, mirroring the rotation knobs the teacher
// exposes through its mount-time logging config.
type FileConfig struct {
	Path          string
	MaxSizeMB     int
	MaxBackups    int
	MaxAgeDays    int
	Compress      bool
	AsyncBuffer   int // 0 disables the async wrapper
}

func newRotatedWriter(cfg FileConfig) (io.Writer, error) {
	lj := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	if cfg.AsyncBuffer <= 0 {
		return lj, nil
	}
	return NewAsyncLogger(lj, cfg.AsyncBuffer), nil
}
