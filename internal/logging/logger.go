// Package logging builds the structured loggers shared by every crier binary.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger represents a logger instance
type Logger = *logrus.Logger

// Fields represents structured logging fields
type Fields = logrus.Fields

// NewLogger creates a JSON logger at the given level ("debug", "info",
// "warn", "error"). An empty level falls back to LOG_LEVEL, then info.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	logger.SetLevel(ParseLevel(level))
	return logger
}

// NewLoggerWithService creates a logger whose entries all carry a service field.
func NewLoggerWithService(serviceName, level string) *logrus.Logger {
	logger := NewLogger(level)
	logger.AddHook(serviceHook{name: serviceName})
	return logger
}

// Discard returns a logger that drops everything. Used by tests and by
// commands whose output goes through the CLI formatter instead.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// ParseLevel maps a level name to a logrus level, defaulting to info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

type serviceHook struct {
	name string
}

func (h serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h serviceHook) Fire(e *logrus.Entry) error {
	if _, ok := e.Data["service"]; !ok {
		e.Data["service"] = h.name
	}
	return nil
}
