// Package errors provides structured CLI error types for Ember.
//
// CLIError wraps errors with user-facing messages, hints, and exit codes
// to provide consistent, actionable error output across all commands and
// across the embedded REPL's terminating failures.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Exit codes for CLI errors.
const (
	ExitSuccess  = 0  // Successful execution
	ExitGeneral  = 1  // General error
	ExitConfig   = 4  // Configuration error
	ExitTerminal = 5  // Terminal unavailable or unusable
	ExitSession  = 6  // REPL session could not run
	ExitUsage    = 64 // Command line usage error (BSD convention)
)

// Sentinel causes for the REPL's named failures. Match them with errors.Is.
var (
	// ErrReentrantEmbed marks an attempt to start a session while one is
	// already active for the same calling context.
	ErrReentrantEmbed = errors.New("reentrant embed")

	// ErrTerminalUnavailable marks a terminal that cannot host an
	// interactive input cycle.
	ErrTerminalUnavailable = errors.New("terminal unavailable")

	// ErrNestedScheduler marks a suspending evaluation requested in blocking
	// mode while a cooperative scheduler is already running.
	ErrNestedScheduler = errors.New("nested scheduler")
)

// CLIError represents a user-facing CLI error with actionable guidance.
type CLIError struct {
	// Message is the primary error message shown to the user.
	Message string

	// Hint provides actionable guidance on how to fix the error.
	Hint string

	// Cause is the underlying error, if any.
	Cause error

	// Code is the exit code for the CLI.
	Code int
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}

	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// New creates a new CLIError with the given message and exit code.
func New(code int, message string) *CLIError {
	return &CLIError{
		Message: message,
		Code:    code,
	}
}

// Wrap wraps an existing error with a CLIError.
func Wrap(code int, message string, cause error) *CLIError {
	return &CLIError{
		Message: message,
		Cause:   cause,
		Code:    code,
	}
}

// WithHint adds a hint to the error.
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

// As is a convenience function for errors.As with CLIError.
func As(err error, target **CLIError) bool {
	return errors.As(err, target)
}

// Is reports whether err matches target. It mirrors the standard library so
// callers importing this package under the errors name keep errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// --- Common error constructors ---

// ReentrantEmbed returns the error for starting a REPL session from inside
// an active one.
func ReentrantEmbed() *CLIError {
	return &CLIError{
		Message: "A REPL session is already active in this context",
		Hint:    "Return from the running session before embedding another one",
		Cause:   ErrReentrantEmbed,
		Code:    ExitSession,
	}
}

// TerminalUnavailable returns the error for a terminal that cannot run an
// interactive input cycle.
func TerminalUnavailable(cause error) *CLIError {
	wrapped := ErrTerminalUnavailable
	if cause != nil {
		wrapped = fmt.Errorf("%w: %w", ErrTerminalUnavailable, cause)
	}

	return &CLIError{
		Message: "Terminal is not interactive",
		Hint:    "Run ember from an interactive terminal, or run 'ember doctor' to inspect terminal capabilities",
		Cause:   wrapped,
		Code:    ExitTerminal,
	}
}

// NestedScheduler returns the error for a suspending evaluation requested in
// blocking mode while a cooperative scheduler is already running.
func NestedScheduler() *CLIError {
	return &CLIError{
		Message: "Cannot run a suspending expression from inside a running scheduler",
		Hint:    "Embed the REPL with EmbedAsync to evaluate wait() from a scheduler task",
		Cause:   ErrNestedScheduler,
		Code:    ExitSession,
	}
}

// CannotPrompt returns an error when interactive prompts are unavailable.
func CannotPrompt(envVar string) *CLIError {
	return &CLIError{
		Message: "Cannot prompt in non-interactive mode",
		Hint:    fmt.Sprintf("Set %s environment variable instead", envVar),
		Code:    ExitUsage,
	}
}

// ConfigFailed returns an error for configuration save failures.
func ConfigFailed(operation string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Failed to %s", operation),
		Hint:    "Check file permissions for your Ember config directory or run 'ember doctor'",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// StartupFileFailed returns an error for a startup file that could not be
// read or executed.
func StartupFileFailed(path string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Startup file failed: %s", path),
		Hint:    "Fix the file or remove it from repl.startup_files",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// InvalidPromptStyle returns an error for an unsupported prompt style.
func InvalidPromptStyle(style string, supported []string) *CLIError {
	hint := "No prompt styles registered"
	if len(supported) > 0 {
		hint = fmt.Sprintf("Supported prompt styles: %s", strings.Join(supported, ", "))
	}

	return &CLIError{
		Message: fmt.Sprintf("Invalid prompt style: %s", style),
		Hint:    hint,
		Code:    ExitUsage,
	}
}

// HistorySessionNotFound returns an error for an unknown history session.
func HistorySessionNotFound(id string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("History session not found: %s", id),
		Hint:    "Run 'ember history list' to see recorded sessions",
		Code:    ExitGeneral,
	}
}

// ShellCommandFailed returns an error for a failed '!' shell escape. It
// detects common failure patterns and provides specific hints.
func ShellCommandFailed(exitCode int, stderr string) *CLIError {
	msg := "Shell command failed"
	hint := ""

	switch {
	case containsAny(stderr, "command not found", "not recognized", "no such file"):
		msg = "Shell command not found"
		hint = "Check the command name and your PATH"
	case containsAny(stderr, "permission denied"):
		msg = "Shell command not permitted"
		hint = "Check the file permissions of the command"
	case exitCode == 1 && stderr == "":
		hint = "Run with --log-level=debug for more details"
	default:
		if stderr != "" {
			if len(stderr) > 200 {
				stderr = stderr[:200] + "..."
			}

			hint = stderr
		} else {
			hint = fmt.Sprintf("The command exited with status %d", exitCode)
		}
	}

	return &CLIError{
		Message: msg,
		Hint:    hint,
		Code:    ExitGeneral,
	}
}

// containsAny checks if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrings {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}

	return false
}
