package utils

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions configures where application logs go
type LogOptions struct {
	Output     string // stdout, file, both
	FilePath   string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// NewLogWriter returns stdout, a size-rotated file, or both
func NewLogWriter(opts LogOptions) io.Writer {
	if opts.Output == "stdout" || opts.Output == "" || opts.FilePath == "" {
		return os.Stdout
	}

	_ = os.MkdirAll(filepath.Dir(opts.FilePath), 0o755)
	file := &lumberjack.Logger{
		Filename:   opts.FilePath,
		MaxSize:    opts.MaxSize,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAge,
		Compress:   opts.Compress,
	}
	if opts.Output == "file" {
		return file
	}
	return io.MultiWriter(os.Stdout, file)
}

// NewLogger creates a UTC, microsecond-stamped logger with prefix
func NewLogger(w io.Writer, prefix string) *log.Logger {
	if w == nil {
		w = os.Stdout
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// ComponentLogger derives a logger for one component sharing base's output
func ComponentLogger(base *log.Logger, component string) *log.Logger {
	if base == nil {
		base = log.Default()
	}
	return log.New(base.Writer(), component+" ", base.Flags())
}
