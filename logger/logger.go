// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Fenix46/VibeCLI/config"
	"github.com/Fenix46/VibeCLI/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger owns the optional log file behind the global logger.
type Logger struct {
	file *os.File
}

// Setup points log.Logger at stderr (and cfg.File when set) at the configured level.
// Diagnostics go to stderr so they never interleave with streamed model output.
func Setup(cfg config.Log, stderr io.Writer) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.WarnLevel
	}

	var console io.Writer = stderr
	if cfg.Pretty == nil || *cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen}
	}
	writers := []io.Writer{console}

	l := &Logger{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create log directory")
		}
		l.file, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open log file")
		}
		writers = append(writers, l.file)
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return l, nil
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
