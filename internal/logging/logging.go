// Package logging provides the application loggers: a leveled stderr
// logger for foreground commands and an append-only file logger for the
// background daemon process.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Logger writes leveled messages to stderr. Debug output is gated on
// verbose mode.
type Logger struct {
	mu      sync.RWMutex
	verbose bool
	out     io.Writer
}

// New creates a stderr logger.
func New(verbose bool) *Logger {
	return &Logger{verbose: verbose, out: os.Stderr}
}

// NewWithWriter creates a logger writing to w (used by tests).
func NewWithWriter(w io.Writer, verbose bool) *Logger {
	return &Logger{verbose: verbose, out: w}
}

// SetVerbose toggles debug output.
func (l *Logger) SetVerbose(verbose bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = verbose
}

// IsVerbose reports whether debug output is enabled.
func (l *Logger) IsVerbose() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.verbose
}

// Debug logs a message only when verbose mode is enabled.
func (l *Logger) Debug(format string, args ...any) {
	if !l.IsVerbose() {
		return
	}
	fmt.Fprintf(l.out, "%s [DEBUG] %s\n", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	fmt.Fprintf(l.out, "[INFO] %s\n", fmt.Sprintf(format, args...))
}

// Warn logs a warning.
func (l *Logger) Warn(format string, args ...any) {
	fmt.Fprintf(l.out, "[WARN] %s\n", fmt.Sprintf(format, args...))
}

// Error logs an error.
func (l *Logger) Error(format string, args ...any) {
	fmt.Fprintf(l.out, "[ERROR] %s\n", fmt.Sprintf(format, args...))
}

// FileLogger appends timestamped lines to a log file. It degrades to
// io.Discard when the file cannot be opened so background duties keep
// running without log output.
type FileLogger struct {
	logger  *log.Logger
	file    *os.File
	path    string
	enabled bool
}

// NewFileLogger opens (or creates) the log file at path. The returned
// logger is usable even when err is non-nil.
func NewFileLogger(path string) (*FileLogger, error) {
	fl := &FileLogger{path: path}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		fl.logger = log.New(io.Discard, "", log.LstdFlags)
		return fl, err
	}

	fl.file = file
	fl.logger = log.New(file, "", log.LstdFlags)
	fl.enabled = true
	return fl, nil
}

// NewDiscardLogger returns a FileLogger that drops everything.
func NewDiscardLogger() *FileLogger {
	return &FileLogger{logger: log.New(io.Discard, "", log.LstdFlags)}
}

// Printf logs a formatted line.
func (fl *FileLogger) Printf(format string, args ...any) {
	if fl.logger != nil {
		fl.logger.Printf(format, args...)
	}
}

// Path returns the log file path.
func (fl *FileLogger) Path() string {
	return fl.path
}

// IsEnabled reports whether output reaches a real file.
func (fl *FileLogger) IsEnabled() bool {
	return fl.enabled
}

// Close closes the log file; further writes are discarded.
func (fl *FileLogger) Close() {
	if fl.file != nil {
		_ = fl.file.Close()
		fl.file = nil
	}
	fl.logger = log.New(io.Discard, "", log.LstdFlags)
	fl.enabled = false
}
