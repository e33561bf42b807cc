// ABOUTME: Leveled logging with a verbosity switch wired to server debug mode
// ABOUTME: Debug lines carry internal detail and are opt-in only

package logger

import (
	"fmt"
	"io"
	"log"
	"os"
)

var std = log.New(os.Stderr, "", log.LstdFlags)

var verbose = false

// SetVerbose enables or disables verbose (DEBUG) logging.
func SetVerbose(v bool) {
	verbose = v
}

// IsVerbose returns the current verbose setting.
func IsVerbose() bool {
	return verbose
}

// SetOutput redirects log output, mainly for tests. Nil restores stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		std.SetOutput(os.Stderr)
		return
	}
	std.SetOutput(w)
}

// Debug logs internal detail, shown only when verbose.
func Debug(format string, args ...interface{}) {
	if verbose {
		std.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
	}
}

// Info logs at INFO level.
func Info(format string, args ...interface{}) {
	std.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs at WARN level.
func Warn(format string, args ...interface{}) {
	std.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs at ERROR level.
func Error(format string, args ...interface{}) {
	std.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}
