// Package logging adapts logrus to the coordinator's key/value Logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Format selects the logrus formatter.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config selects level, format and destination. An empty File logs to stderr.
type Config struct {
	Level  string
	Format Format
	File   string
}

// Logger satisfies core.Logger on top of a logrus entry.
type Logger struct {
	entry *logrus.Entry
}

// New builds a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	level := logrus.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}

	base := logrus.New()
	base.SetLevel(level)

	switch cfg.Format {
	case "", FormatText:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case FormatJSON:
		base.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyMsg: "message",
			},
		})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		base.SetOutput(NewLogWriter(cfg.File))
	} else {
		base.SetOutput(os.Stderr)
	}
	return Wrap(base), nil
}

// Wrap adapts an existing logrus logger, used by tests with a hook attached.
func Wrap(l *logrus.Logger) *Logger {
	return &Logger{entry: logrus.NewEntry(l)}
}

// NewLogWriter returns a size-rotated file writer.
func NewLogWriter(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
		LocalTime:  true,
	}
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{entry: l.entry.WithFields(fields(args))}
}

func (l *Logger) Debug(msg string, args ...any) { l.entry.WithFields(fields(args)).Debug(msg) }
func (l *Logger) Info(msg string, args ...any)  { l.entry.WithFields(fields(args)).Info(msg) }
func (l *Logger) Warn(msg string, args ...any)  { l.entry.WithFields(fields(args)).Warn(msg) }
func (l *Logger) Error(msg string, args ...any) { l.entry.WithFields(fields(args)).Error(msg) }

// fields pairs alternating key/value args. A dangling value is kept under
// "!BADKEY" so nothing is silently dropped.
func fields(args []any) logrus.Fields {
	out := make(logrus.Fields, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			out["!BADKEY"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		value := args[i+1]
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		out[key] = value
	}
	return out
}
