package pkg

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *LoggerConfig
		check  func(*testing.T, *Logger)
	}{
		{
			name:   "nil config uses defaults",
			config: nil,
			check: func(t *testing.T, l *Logger) {
				assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
			},
		},
		{
			name:   "debug level",
			config: &LoggerConfig{Level: "debug", Format: "json", Console: true},
			check: func(t *testing.T, l *Logger) {
				assert.Equal(t, zerolog.DebugLevel, l.GetLevel())
			},
		},
		{
			name:   "bad level falls back to info",
			config: &LoggerConfig{Level: "shouting", Format: "json", Console: true},
			check: func(t *testing.T, l *Logger) {
				assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
			},
		},
		{
			name:   "no outputs configured",
			config: &LoggerConfig{Level: "info"},
			check: func(t *testing.T, l *Logger) {
				// Must not panic when logging to the discard writer.
				l.Info().Msg("discarded")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			require.NoError(t, err)
			require.NotNil(t, logger)
			tt.check(t, logger)
		})
	}
}

func TestNewLoggerFileOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "node.log")

	logger, err := NewLogger(&LoggerConfig{
		Level:    "info",
		FilePath: path,
	})
	require.NoError(t, err)

	logger.Info().Str("k", "v").Msg("file entry")

	// lumberjack creates the file lazily on first write
	assert.FileExists(t, path)
}

func TestLoggerWithFields(t *testing.T) {
	logger, err := NewLogger(&LoggerConfig{Level: "debug"})
	require.NoError(t, err)

	child := logger.WithFields(Fields{"node_id": "abc123", "component": "test"})
	require.NotNil(t, child)
	assert.NotSame(t, logger, child)

	// Parent level is inherited.
	assert.Equal(t, zerolog.DebugLevel, child.GetLevel())
}
