// Package logx provides the structured logger used across dcsd: a thin,
// component-tagged wrapper over logrus so every package logs with the same
// field conventions (component, plus whatever key/value pairs the call
// site supplies).
package logx

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is a component-scoped structured logger.
type Logger struct {
	entry *logrus.Entry
}

// NewLogger creates the root logger for a given component at the given
// level ("trace", "debug", "info", "warn", "error").
func NewLogger(level, component string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	base.SetLevel(parseLevel(level))

	return &Logger{entry: base.WithField("component", component)}
}

// SetOutput redirects where the underlying logrus logger writes.
func (l *Logger) SetOutput(w io.Writer) {
	l.entry.Logger.SetOutput(w)
}

func parseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// WithComponent returns a child logger tagged with a sub-component name,
// e.g. logger.WithComponent("dcs.scheduler").
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{entry: l.entry.WithField("component", name)}
}

// WithFields returns a child logger carrying the given fields for every
// subsequent call.
func (l *Logger) WithFields(kv ...interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(fields(kv))}
}

func fields(kv []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}

func (l *Logger) Trace(msg string, kv ...interface{}) { l.entry.WithFields(fields(kv)).Trace(msg) }
func (l *Logger) Debug(msg string, kv ...interface{}) { l.entry.WithFields(fields(kv)).Debug(msg) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.entry.WithFields(fields(kv)).Info(msg) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.entry.WithFields(fields(kv)).Warn(msg) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.entry.WithFields(fields(kv)).Error(msg) }

// Fatal logs at fatal level and terminates the process. Used exclusively
// for the fatal-invariant-violation error kind (see pkg/dcs/errors.go).
func (l *Logger) Fatal(msg string, kv ...interface{}) { l.entry.WithFields(fields(kv)).Fatal(msg) }
