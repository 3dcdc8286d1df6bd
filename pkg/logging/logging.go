package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Logger defines the logging interface used across the core packages.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// PrettyLogger writes human-oriented console output. Color is disabled
// automatically when stderr is not a terminal.
type PrettyLogger struct {
	tty bool
}

func NewPrettyLogger() *PrettyLogger {
	return &PrettyLogger{
		tty: isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()),
	}
}

func (p *PrettyLogger) InfoPretty(msg string) {
	if p.tty {
		fmt.Fprintln(os.Stderr, color.CyanString("•"), msg)
		return
	}
	fmt.Fprintln(os.Stderr, "•", msg)
}

func (p *PrettyLogger) Success(msg string) {
	if p.tty {
		fmt.Fprintln(os.Stderr, color.GreenString("✓"), msg)
		return
	}
	fmt.Fprintln(os.Stderr, "✓", msg)
}

func (p *PrettyLogger) ErrorPretty(msg string, err error) {
	line := msg
	if err != nil {
		line = fmt.Sprintf("%s: %v", msg, err)
	}
	if p.tty {
		fmt.Fprintln(os.Stderr, color.RedString("✗"), line)
		return
	}
	fmt.Fprintln(os.Stderr, "✗", line)
}

func (p *PrettyLogger) Blank() {
	fmt.Fprintln(os.Stderr)
}

// defaultLogger adapts logrus to the Logger interface, mirroring structured
// fields to a pretty console line when useful.
type defaultLogger struct {
	structuredLog *logrus.Entry
	prettyLog     *PrettyLogger
}

// NewLogger creates a named structured logger.
func NewLogger(component string) Logger {
	return &defaultLogger{
		structuredLog: logrus.WithField("component", component),
		prettyLog:     NewPrettyLogger(),
	}
}

// SetLevel configures the global log level from a string ("debug", "info", ...).
// Unknown values fall back to info.
func SetLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
}

func toFields(keysAndValues []interface{}) logrus.Fields {
	fields := make(logrus.Fields)
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
		}
	}
	return fields
}

func (l *defaultLogger) Info(msg string, keysAndValues ...interface{}) {
	if len(keysAndValues) > 0 {
		l.structuredLog.WithFields(toFields(keysAndValues)).Info(msg)
		return
	}
	l.structuredLog.Info(msg)
}

func (l *defaultLogger) Warn(msg string, keysAndValues ...interface{}) {
	if len(keysAndValues) > 0 {
		l.structuredLog.WithFields(toFields(keysAndValues)).Warn(msg)
		return
	}
	l.structuredLog.Warn(msg)
}

func (l *defaultLogger) Error(msg string, keysAndValues ...interface{}) {
	if len(keysAndValues) > 0 {
		fields := toFields(keysAndValues)
		l.structuredLog.WithFields(fields).Error(msg)
		var parts []string
		for k, v := range fields {
			parts = append(parts, fmt.Sprintf("%v=%v", k, v))
		}
		l.prettyLog.ErrorPretty(fmt.Sprintf("%s [%s]", msg, strings.Join(parts, " ")), nil)
		return
	}
	l.structuredLog.Error(msg)
	l.prettyLog.ErrorPretty(msg, nil)
}

func (l *defaultLogger) Debug(msg string, keysAndValues ...interface{}) {
	if len(keysAndValues) > 0 {
		l.structuredLog.WithFields(toFields(keysAndValues)).Debug(msg)
		return
	}
	l.structuredLog.Debug(msg)
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}
