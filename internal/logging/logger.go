package logging

import (
	"io"
	"log"
	"os"

	"github.com/rollbar/rollbar-go"
	rollbarerrors "github.com/rollbar/rollbar-go/errors"
)

// Logger is the operator-facing log sink shared by every component.
// args may carry an error and a map[string]interface{} of extra fields.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// Std writes to a standard library logger only.
type Std struct {
	std   *log.Logger
	debug bool
}

var _ Logger = (*Std)(nil)

// NewStd wraps std, or a stderr logger when nil.
func NewStd(std *log.Logger, debug bool) *Std {
	if std == nil {
		std = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Std{std: std, debug: debug}
}

// Discard drops everything; used by tests.
func Discard() *Std {
	return NewStd(log.New(io.Discard, "", 0), false)
}

func (l *Std) print(level, msg string, args []interface{}) {
	l.std.Printf("[%s] %s", level, msg)
	for _, arg := range args {
		if arg == nil {
			continue
		}
		l.std.Printf("  %+v", arg)
	}
}

func (l *Std) Debug(msg string, args ...interface{}) {
	if l.debug {
		l.print("DEBUG", msg, args)
	}
}

func (l *Std) Info(msg string, args ...interface{})  { l.print("INFO", msg, args) }
func (l *Std) Warn(msg string, args ...interface{})  { l.print("WARN", msg, args) }
func (l *Std) Error(msg string, args ...interface{}) { l.print("ERROR", msg, args) }

// Rollbar reports warnings and errors to Rollbar and mirrors everything to std.
type Rollbar struct {
	*Std
}

var _ Logger = (*Rollbar)(nil)

type RollbarOptions struct {
	Token       string
	Environment string
	Host        string
	Version     string
}

// NewRollbar reports warnings and errors to Rollbar when a token is set.
func NewRollbar(std *Std, opts RollbarOptions) *Rollbar {
	rollbar.SetToken(opts.Token)
	rollbar.SetEnvironment(opts.Environment)
	rollbar.SetServerHost(opts.Host)
	rollbar.SetCodeVersion(opts.Version)
	rollbar.SetStackTracer(rollbarerrors.StackTracer)
	rollbar.SetEnabled(opts.Token != "")
	return &Rollbar{Std: std}
}

func (l *Rollbar) Warn(msg string, args ...interface{}) {
	rollbar.Warning(append([]interface{}{msg}, args...)...)
	l.Std.Warn(msg, args...)
}

func (l *Rollbar) Error(msg string, args ...interface{}) {
	rollbar.Error(append([]interface{}{msg}, args...)...)
	l.Std.Error(msg, args...)
}

// Close flushes pending Rollbar reports.
func (l *Rollbar) Close() {
	rollbar.Close()
}
