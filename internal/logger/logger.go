// Package logger provides the structured zap logger shared by the service,
// the CLI and the pipeline packages.
package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.SugaredLogger
type Logger struct {
	*zap.SugaredLogger
	config *Config
}

// Config holds logger configuration options
type Config struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string

	// Format of the console output, "console" or "json"
	Format string

	// OutputPath is an additional log file. The file always receives JSON
	// lines whatever the console format.
	OutputPath string

	// Stderr sends console output to stderr instead of stdout, leaving stdout
	// free for command results.
	Stderr bool

	// EnableCaller adds caller information to log entries
	EnableCaller bool

	// EnableStacktrace adds stack traces to error-level logs
	EnableStacktrace bool
}

// DefaultConfig is used by New(nil) and by Get before Init
func DefaultConfig() *Config {
	return &Config{
		Level:            "info",
		Format:           "console",
		Stderr:           true,
		EnableStacktrace: true,
	}
}

var defaultLogger *Logger

// New creates a logger writing to the console and, when OutputPath is set,
// to a JSON log file.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	console := os.Stdout
	if cfg.Stderr {
		console = os.Stderr
	}
	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(cfg.Format), zapcore.Lock(console), level),
	}

	if cfg.OutputPath != "" {
		file, err := os.OpenFile(cfg.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.OutputPath, err)
		}
		cores = append(cores, zapcore.NewCore(newEncoder("json"), zapcore.AddSync(file), level))
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return &Logger{
		SugaredLogger: zap.New(zapcore.NewTee(cores...), opts...).Sugar(),
		config:        cfg,
	}, nil
}

func newEncoder(format string) zapcore.Encoder {
	if format == "json" {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeDuration = zapcore.MillisDurationEncoder
		return zapcore.NewJSONEncoder(cfg)
	}

	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{
		SugaredLogger: zap.NewNop().Sugar(),
		config:        &Config{Level: "error", Format: "console"},
	}
}

// Init initializes the global logger instance
func Init(cfg *Config) error {
	logger, err := New(cfg)
	if err != nil {
		return err
	}
	defaultLogger = logger
	return nil
}

// Get returns the global logger instance
func Get() *Logger {
	if defaultLogger == nil {
		logger, _ := New(nil)
		defaultLogger = logger
	}
	return defaultLogger
}

// Level returns the configured minimum level
func (l *Logger) Level() string {
	return l.config.Level
}

// WithFields returns a logger with the specified key/value pairs attached
func (l *Logger) WithFields(fields ...interface{}) *Logger {
	return &Logger{
		SugaredLogger: l.With(fields...),
		config:        l.config,
	}
}

// WithRequestID returns a logger with request_id attached
func (l *Logger) WithRequestID(id string) *Logger {
	return l.WithFields("request_id", id)
}

// WithOperation returns a logger with operation attached
func (l *Logger) WithOperation(operation string) *Logger {
	return l.WithFields("operation", operation)
}

// WithFile returns a logger with the uploaded file name attached
func (l *Logger) WithFile(name string) *Logger {
	return l.WithFields("file", name)
}

// WithDuration returns a logger with duration_ms attached
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return l.WithFields("duration_ms", d.Milliseconds())
}

// WithError returns a logger with error attached
func (l *Logger) WithError(err error) *Logger {
	return l.WithFields("error", err)
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", level)
	}
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.SugaredLogger.Sync()
}
