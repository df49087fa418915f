package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/platinummonkey/agora/pkg/contextkeys"
	"github.com/sirupsen/logrus"
)

// LogLevel is the minimum severity a Logger emits
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = map[LogLevel]string{
	DebugLevel: "debug",
	InfoLevel:  "info",
	WarnLevel:  "warn",
	ErrorLevel: "error",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// UnmarshalText parses AGORA_OBSERVABILITY_LOG_LEVEL. Unknown names are an
// error so a typo fails start-up instead of silently logging at info.
func (l *LogLevel) UnmarshalText(text []byte) error {
	level, err := ParseLogLevel(string(text))
	if err != nil {
		return err
	}
	*l = level
	return nil
}

// ParseLogLevel accepts debug, info, warn (or warning) and error in any case
func ParseLogLevel(s string) (LogLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warning" {
		return WarnLevel, nil
	}
	for level, n := range levelNames {
		if n == name {
			return level, nil
		}
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

func (l LogLevel) logrusLevel() logrus.Level {
	switch l {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Logger writes JSON lines through logrus. Derived loggers share the
// output and level of the logger they were built from.
type Logger struct {
	entry *logrus.Entry
}

// NewLogger creates a logger writing to output, or stdout when output is nil
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	base := logrus.New()
	base.SetOutput(output)
	base.SetLevel(level.logrusLevel())
	base.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{logrus.FieldKeyMsg: "msg"},
	})
	return &Logger{entry: logrus.NewEntry(base)}
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(fields)}
}

// WithComponent tags every entry with the subsystem that wrote it
func (l *Logger) WithComponent(name string) *Logger {
	return l.WithField("component", name)
}

// WithError adds err as a string field. A nil err returns l unchanged.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *Logger) Debug(message string) { l.entry.Debug(message) }
func (l *Logger) Info(message string)  { l.entry.Info(message) }
func (l *Logger) Warn(message string)  { l.entry.Warn(message) }
func (l *Logger) Error(message string) { l.entry.Error(message) }

func (l *Logger) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

var (
	loggerKey = contextkeys.New[*Logger]("logger")

	// fallbackLogger serves code running outside LoggerMiddleware, such as
	// tests that build bare requests
	fallbackLogger = NewLogger(InfoLevel, os.Stderr)
)

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return loggerKey.With(ctx, logger)
}

// GetLogger returns the context's logger without request fields
func GetLogger(ctx context.Context) *Logger {
	if logger := loggerKey.Get(ctx); logger != nil {
		return logger
	}
	return fallbackLogger
}

// FromContext returns the context logger with request_id, user_id and the
// active trace and span IDs attached when present
func FromContext(ctx context.Context) *Logger {
	logger := GetLogger(ctx)
	if id := contextkeys.RequestID.Get(ctx); id != "" {
		logger = logger.WithField("request_id", id)
	}
	if id := contextkeys.UserID.Get(ctx); id != "" {
		logger = logger.WithField("user_id", id)
	}
	return withTraceContext(ctx, logger)
}
