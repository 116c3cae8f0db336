package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options selects where log lines go and how verbose they are.
type Options struct {
	// Level is a logrus level name; empty means info.
	Level string
	// File, when set, appends log lines to this path instead of Output.
	File string
	// Output receives log lines when File is empty. Defaults to stderr.
	Output io.Writer
	// JSON switches to logrus' JSON formatter.
	JSON bool
}

// Logger writes structured, leveled lines. A nil *Logger discards
// everything, so passes can log unconditionally.
type Logger struct {
	entry *logrus.Entry
	file  *os.File
}

// New builds a logger from opts.
func New(opts Options) (*Logger, error) {
	level := logrus.InfoLevel
	if name := strings.TrimSpace(opts.Level); name != "" {
		parsed, err := logrus.ParseLevel(name)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		level = parsed
	}
	base := logrus.New()
	base.SetLevel(level)
	if opts.JSON {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}

	logger := &Logger{}
	switch {
	case opts.File != "":
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("logging: ensure log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: open log file: %w", err)
		}
		base.SetOutput(f)
		logger.file = f
	case opts.Output != nil:
		base.SetOutput(opts.Output)
	default:
		base.SetOutput(os.Stderr)
	}
	logger.entry = logrus.NewEntry(base)
	return logger, nil
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// WithField returns a logger that tags every line with key=value.
func (l *Logger) WithField(key string, value any) *Logger {
	if l == nil || l.entry == nil {
		return l
	}
	return &Logger{entry: l.entry.WithField(key, value), file: l.file}
}

// WithFields is WithField for several keys at once.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	if l == nil || l.entry == nil {
		return l
	}
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields)), file: l.file}
}

// Printf writes a single line at info level.
func (l *Logger) Printf(format string, args ...any) {
	l.log(logrus.InfoLevel, format, args...)
}

// Debugf writes a diagnostic line.
func (l *Logger) Debugf(format string, args ...any) {
	l.log(logrus.DebugLevel, format, args...)
}

// Warnf writes a warning line.
func (l *Logger) Warnf(format string, args ...any) {
	l.log(logrus.WarnLevel, format, args...)
}

func (l *Logger) log(level logrus.Level, format string, args ...any) {
	if l == nil || l.entry == nil {
		return
	}
	line := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	l.entry.Log(level, line)
}
