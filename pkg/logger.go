package pkg

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields is a map of fields attached to log entries.
type Fields map[string]any

// Logger wraps zerolog with field propagation and multi-writer output.
type Logger struct {
	*zerolog.Logger
	config *LoggerConfig
}

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string

	// Format is the output format (json, console).
	Format string

	// Console enables console output on stdout.
	Console bool

	// NoColor disables console color output.
	NoColor bool

	// FilePath enables rotated file output when non-empty.
	FilePath string

	// MaxSizeMB is the rotation threshold for the log file.
	MaxSizeMB int

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int

	// MaxAgeDays is the retention period for rotated files.
	MaxAgeDays int

	// AsyncWrite routes output through a diode writer so logging never
	// blocks request handling.
	AsyncWrite bool

	// BufferSize is the diode buffer size when AsyncWrite is set.
	BufferSize int
}

// DefaultLoggerConfig returns the configuration used by the node daemon
// unless overridden by flags.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:      "info",
		Format:     "console",
		Console:    true,
		MaxSizeMB:  100,
		MaxBackups: 10,
		MaxAgeDays: 30,
		BufferSize: 10000,
	}
}

var timeFormatOnce sync.Once

// NewLogger creates a logger from the given configuration. A nil config
// yields the defaults.
func NewLogger(config *LoggerConfig) (*Logger, error) {
	if config == nil {
		config = DefaultLoggerConfig()
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer

	if config.Console {
		if config.Format == "console" {
			writers = append(writers, zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: "15:04:05.000",
				NoColor:    config.NoColor,
			})
		} else {
			writers = append(writers, os.Stdout)
		}
	}

	if config.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   true,
		})
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	if config.AsyncWrite {
		writer = diode.NewWriter(writer, config.BufferSize, time.Second, func(missed int) {
			fmt.Fprintf(os.Stderr, "logger dropped %d messages\n", missed)
		})
	}

	timeFormatOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano
	})

	zl := zerolog.New(writer).Level(level).With().Timestamp().Logger()

	return &Logger{
		Logger: &zl,
		config: config,
	}, nil
}

// WithFields returns a child logger with the given fields attached to
// every entry.
func (l *Logger) WithFields(fields Fields) *Logger {
	ctx := l.Logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	zl := ctx.Logger()
	return &Logger{
		Logger: &zl,
		config: l.config,
	}
}
