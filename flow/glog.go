package flow

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/goliatone/go-logger/glog"
)

// GlogLogger adapts a go-logger logger to the Logger contract.
type GlogLogger struct {
	logger glog.Logger
}

// NewGlogLogger builds a go-logger backed Logger. Format "json" selects
// structured output, anything else the console encoder.
func NewGlogLogger(out io.Writer, level, format string) *GlogLogger {
	if out == nil {
		out = os.Stdout
	}
	if level == "" {
		level = "info"
	}
	level = strings.ToLower(level)

	var l glog.Logger
	if strings.EqualFold(format, "json") {
		l = glog.NewLogger(glog.WithWriter(out), glog.WithLoggerTypeJSON(), glog.WithLevel(level))
	} else {
		l = glog.NewLogger(glog.WithWriter(out), glog.WithLevel(level))
	}
	return &GlogLogger{logger: l}
}

// WrapGlog adapts an existing go-logger logger.
func WrapGlog(l glog.Logger) *GlogLogger {
	return &GlogLogger{logger: l}
}

func (l *GlogLogger) Trace(msg string, args ...any) { l.base().Trace(msg, args...) }
func (l *GlogLogger) Debug(msg string, args ...any) { l.base().Debug(msg, args...) }
func (l *GlogLogger) Info(msg string, args ...any)  { l.base().Info(msg, args...) }
func (l *GlogLogger) Warn(msg string, args ...any)  { l.base().Warn(msg, args...) }
func (l *GlogLogger) Error(msg string, args ...any) { l.base().Error(msg, args...) }
func (l *GlogLogger) Fatal(msg string, args ...any) { l.base().Fatal(msg, args...) }

func (l *GlogLogger) WithContext(ctx context.Context) Logger {
	if l == nil || l.logger == nil {
		return NewFmtLogger(nil).WithContext(ctx)
	}
	return &GlogLogger{logger: l.logger.WithContext(ctx)}
}

func (l *GlogLogger) WithFields(fields map[string]any) Logger {
	if l == nil || l.logger == nil {
		return NewFmtLogger(nil).WithFields(fields)
	}
	if fl, ok := l.logger.(glog.FieldsLogger); ok {
		return &GlogLogger{logger: fl.WithFields(fields)}
	}
	return l
}

func (l *GlogLogger) base() glog.Logger {
	if l == nil || l.logger == nil {
		return fallbackGlog
	}
	return l.logger
}

var fallbackGlog glog.Logger = glog.NewLogger(glog.WithWriter(os.Stdout))
