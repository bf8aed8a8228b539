package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// TestLogger provides per-instance logging for test logic
type TestLogger interface {
	// Debug logs debug-level messages (only shown when debug=true)
	Debug(format string, args ...interface{})
	// Info logs info-level messages (shown when verbose=true or debug=true)
	Info(format string, args ...interface{})
	// Error logs error-level messages (always shown)
	Error(format string, args ...interface{})
	// IsDebugEnabled returns whether debug logging is enabled
	IsDebugEnabled() bool
	// IsVerboseEnabled returns whether verbose logging is enabled
	IsVerboseEnabled() bool
}

// stdoutLogger implements TestLogger for CLI mode, outputting to stdout/stderr
type stdoutLogger struct {
	out     io.Writer
	errOut  io.Writer
	verbose bool
	debug   bool
}

// NewStdoutLogger creates a logger that outputs to stdout/stderr
func NewStdoutLogger(verbose, debug bool) TestLogger {
	return NewWriterLogger(os.Stdout, os.Stderr, verbose, debug)
}

// NewWriterLogger is NewStdoutLogger with explicit destinations. Errors go to errOut.
func NewWriterLogger(out, errOut io.Writer, verbose, debug bool) TestLogger {
	return &stdoutLogger{
		out:     out,
		errOut:  errOut,
		verbose: verbose,
		debug:   debug,
	}
}

func (l *stdoutLogger) Debug(format string, args ...interface{}) {
	if l.debug {
		fmt.Fprintf(l.out, ensureNewline(format), args...)
	}
}

func (l *stdoutLogger) Info(format string, args ...interface{}) {
	if l.verbose || l.debug {
		fmt.Fprintf(l.out, ensureNewline(format), args...)
	}
}

func (l *stdoutLogger) Error(format string, args ...interface{}) {
	fmt.Fprintf(l.errOut, ensureNewline(format), args...)
}

func (l *stdoutLogger) IsDebugEnabled() bool {
	return l.debug
}

func (l *stdoutLogger) IsVerboseEnabled() bool {
	return l.verbose
}

// silentLogger suppresses all output, used when stdout carries machine-readable data
type silentLogger struct {
	verbose bool
	debug   bool
}

// NewSilentLogger creates a logger that suppresses all output
func NewSilentLogger(verbose, debug bool) TestLogger {
	return &silentLogger{
		verbose: verbose,
		debug:   debug,
	}
}

func (l *silentLogger) Debug(format string, args ...interface{}) {}

func (l *silentLogger) Info(format string, args ...interface{}) {}

func (l *silentLogger) Error(format string, args ...interface{}) {}

func (l *silentLogger) IsDebugEnabled() bool {
	return l.debug
}

func (l *silentLogger) IsVerboseEnabled() bool {
	return l.verbose
}

// prefixLogger tags every line with an instance id so parallel output stays
// attributable, and mirrors everything into an optional run log.
type prefixLogger struct {
	inner  TestLogger
	prefix string

	mu  sync.Mutex
	log io.Writer
}

// NewPrefixLogger wraps inner so each message starts with "[prefix] ". When
// runLog is non-nil every message, regardless of level, is also written to it
// with a timestamp.
func NewPrefixLogger(inner TestLogger, prefix string, runLog io.Writer) TestLogger {
	return &prefixLogger{inner: inner, prefix: "[" + prefix + "] ", log: runLog}
}

func (l *prefixLogger) Debug(format string, args ...interface{}) {
	l.record("DEBUG", format, args)
	l.inner.Debug(l.prefix+format, args...)
}

func (l *prefixLogger) Info(format string, args ...interface{}) {
	l.record("INFO", format, args)
	l.inner.Info(l.prefix+format, args...)
}

func (l *prefixLogger) Error(format string, args ...interface{}) {
	l.record("ERROR", format, args)
	l.inner.Error(l.prefix+format, args...)
}

func (l *prefixLogger) IsDebugEnabled() bool {
	return l.inner.IsDebugEnabled()
}

func (l *prefixLogger) IsVerboseEnabled() bool {
	return l.inner.IsVerboseEnabled()
}

func (l *prefixLogger) record(level, format string, args []interface{}) {
	if l.log == nil {
		return
	}
	msg := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.log, "%s %-5s %s\n", time.Now().Format("15:04:05.000"), level, msg)
}

func ensureNewline(format string) string {
	if strings.HasSuffix(format, "\n") {
		return format
	}
	return format + "\n"
}
