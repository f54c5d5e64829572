// Package logger is the process-wide log for handbook-rag.
//
// Debug, Info and Section lines trace ingestion and retrieval and appear only
// with --verbose. Warnings and errors always appear: they report skipped
// documents, degraded retrieval or failed generation.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr

	warnLabel  = color.New(color.FgYellow, color.Bold).Sprint("[WARN]")
	errorLabel = color.New(color.FgRed, color.Bold).Sprint("[ERROR]")
)

// SetVerbose turns the Debug, Info and Section lines on or off.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose reports whether --verbose is in effect.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput redirects the log. A nil writer restores stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	output = w
}

func Debug(format string, args ...any) {
	emit(false, "[DEBUG]", format, args)
}

func Info(format string, args ...any) {
	emit(false, "[INFO]", format, args)
}

func Warn(format string, args ...any) {
	emit(true, warnLabel, format, args)
}

func Error(format string, args ...any) {
	emit(true, errorLabel, format, args)
}

// Section starts a block of verbose output, e.g. "=== Retrieval ===".
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

// Timed returns a func that logs how long the step took at debug level.
// Use as: defer logger.Timed("Retrieval")()
func Timed(step string) func() {
	start := time.Now()
	return func() {
		Debug("%s took %s", step, time.Since(start).Round(time.Millisecond))
	}
}

func emit(always bool, label, format string, args []any) {
	mu.RLock()
	defer mu.RUnlock()
	if !always && !verbose {
		return
	}
	fmt.Fprintf(output, "%s %s\n", label, fmt.Sprintf(format, args...))
}
