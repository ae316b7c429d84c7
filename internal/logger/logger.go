package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rimkus-dev/sentiment/internal/env"
)

type options struct {
	level     slog.Leveler
	logToFile bool
	logFile   string
	console   io.Writer
}

// Option configures the logger.
type Option func(*options)

// WithLogToFile enables writing logs to a rotated file next to the console output.
func WithLogToFile(enabled bool) Option {
	return func(o *options) {
		o.logToFile = enabled
	}
}

// WithLogFile sets the path of the log file.
func WithLogFile(path string) Option {
	return func(o *options) {
		o.logFile = path
	}
}

// WithLevel overrides the minimum level.
func WithLevel(level slog.Leveler) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithConsole overrides the console writer (stderr by default).
func WithConsole(w io.Writer) Option {
	return func(o *options) {
		o.console = w
	}
}

// New creates a logger for the given environment. Development logs are
// colored text at debug level; production logs are JSON at info level. File
// output is always JSON.
func New(environment env.Environment, opts ...Option) *slog.Logger {
	o := options{
		logFile: "logs/sentimentd.log",
		console: os.Stderr,
	}
	if environment.IsProduction() {
		o.level = slog.LevelInfo
	} else {
		o.level = slog.LevelDebug
	}
	for _, opt := range opts {
		opt(&o)
	}

	var console slog.Handler
	if environment.IsProduction() {
		console = slog.NewJSONHandler(o.console, &slog.HandlerOptions{Level: o.level})
	} else {
		console = tint.NewHandler(o.console, &tint.Options{
			Level:      o.level,
			TimeFormat: time.Kitchen,
		})
	}

	if !o.logToFile {
		return slog.New(console)
	}

	file := &lumberjack.Logger{
		Filename:   o.logFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	return slog.New(fanout{
		console,
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: o.level}),
	})
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}

	return level
}
