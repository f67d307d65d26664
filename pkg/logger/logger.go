// Package logger carries a logrus entry through context so that every
// component logs with the fields of the operation that invoked it.
package logger

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// G returns the logger attached to ctx, or the global logger.
	G = FromContext
	// L is the global logger entry.
	L = logrus.NewEntry(newLogger())
)

type loggerKey struct{}

// WithLogger returns a context carrying entry
func WithLogger(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, entry.WithContext(ctx))
}

// WithFields returns a context whose logger carries the given fields in
// addition to those already attached to ctx
func WithFields(ctx context.Context, fields logrus.Fields) context.Context {
	return WithLogger(ctx, FromContext(ctx).WithFields(fields))
}

// FromContext returns the logger attached to ctx, falling back to L
func FromContext(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(loggerKey{}).(*logrus.Entry); ok {
		return entry
	}
	return L.WithContext(ctx)
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	applyFormat(l, "text")
	return l
}

func applyFormat(l *logrus.Logger, format string) {
	if format == "json" {
		l.Formatter = &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
			TimestampFormat: time.RFC3339Nano,
		}
		return
	}
	l.Formatter = &logrus.TextFormatter{
		TimestampFormat: time.RFC3339Nano,
		FullTimestamp:   true,
	}
}

// Configure sets level and format of the global logger. An empty level
// leaves the current level unchanged.
func Configure(level, format string) error {
	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", level)
		}
		L.Logger.SetLevel(lvl)
	}
	switch format {
	case "", "text", "fmt":
		applyFormat(L.Logger, "text")
	case "json":
		applyFormat(L.Logger, "json")
	default:
		return errors.Errorf("invalid log format %q, expected text or json", format)
	}
	return nil
}

// SetOutput redirects the global logger
func SetOutput(w io.Writer) {
	L.Logger.SetOutput(w)
}
