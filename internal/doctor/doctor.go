// Package doctor provides diagnostic checks for Ember installations.
//
// This package implements a check framework that validates:
//   - Terminal capability for the interactive input cycle
//   - Configuration file validity
//   - History and log directory writability
//   - Shell availability for ! escapes
package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/musher-dev/ember/internal/buildinfo"
	"github.com/musher-dev/ember/internal/config"
	"github.com/musher-dev/ember/internal/paths"
	"github.com/musher-dev/ember/internal/terminal"
)

// Status represents the result of a diagnostic check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical failure.
	StatusFail
)

// Result holds the outcome of a single check.
type Result struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Check is a diagnostic check function.
type Check func(ctx context.Context) Result

// Runner executes diagnostic checks.
type Runner struct {
	checks []namedCheck
}

type namedCheck struct {
	name  string
	check Check
}

// New creates a runner with the default checks against cfg.
func New(cfg *config.Config) *Runner {
	r := &Runner{}

	historyDir, historyErr := paths.HistoryDir()
	logsDir, logsErr := paths.LogsDir()

	r.AddCheck("Terminal", CheckTerminal(terminal.Probe))
	r.AddCheck("Configuration", CheckConfig(cfg))
	r.AddCheck("History", CheckHistory(cfg, historyDir, historyErr))
	r.AddCheck("Log Directory", CheckLogDir(logsDir, logsErr))
	r.AddCheck("Shell", CheckShell(exec.LookPath))
	r.AddCheck("Version", checkVersion)

	return r
}

// AddCheck registers a diagnostic check.
func (r *Runner) AddCheck(name string, check Check) {
	r.checks = append(r.checks, namedCheck{name: name, check: check})
}

// Run executes all registered checks and returns the results.
func (r *Runner) Run(ctx context.Context) []Result {
	results := make([]Result, 0, len(r.checks))

	for _, nc := range r.checks {
		result := nc.check(ctx)
		result.Name = nc.name
		results = append(results, result)
	}

	return results
}

// Summary returns counts of passed, failed, and warning checks.
func Summary(results []Result) (passed, failed, warnings int) {
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			passed++
		case StatusFail:
			failed++
		case StatusWarn:
			warnings++
		}
	}

	return passed, failed, warnings
}

// CheckTerminal reports whether the input cycle can run on this terminal.
// A non-interactive terminal is a warning: scripts still run.
func CheckTerminal(probe func() error) Check {
	return func(context.Context) Result {
		if err := probe(); err != nil {
			return Result{
				Status:  StatusWarn,
				Message: "Not interactive",
				Detail:  err.Error(),
			}
		}

		return Result{
			Status:  StatusPass,
			Message: fmt.Sprintf("Interactive (%s)", terminal.Name()),
		}
	}
}

// CheckConfig validates the loaded configuration.
func CheckConfig(cfg *config.Config) Check {
	return func(context.Context) Result {
		source := "defaults"
		if path := cfg.Path(); path != "" {
			if _, err := os.Stat(path); err == nil {
				source = path
			}
		}

		if err := cfg.Validate(); err != nil {
			return Result{
				Status:  StatusFail,
				Message: fmt.Sprintf("Invalid (%s)", source),
				Detail:  err.Error(),
			}
		}

		return Result{
			Status:  StatusPass,
			Message: fmt.Sprintf("Valid (%s)", source),
		}
	}
}

// CheckHistory verifies the history directory can be written.
func CheckHistory(cfg *config.Config, dir string, dirErr error) Check {
	return func(context.Context) Result {
		if !cfg.HistoryEnabled() {
			return Result{
				Status:  StatusWarn,
				Message: "Disabled",
				Detail:  fmt.Sprintf("Set %s to true to record submissions", config.KeyHistoryEnabled),
			}
		}

		if dirErr != nil {
			return Result{
				Status:  StatusFail,
				Message: "Directory unavailable",
				Detail:  dirErr.Error(),
			}
		}

		if err := checkWritable(dir); err != nil {
			return Result{
				Status:  StatusFail,
				Message: dir,
				Detail:  err.Error(),
			}
		}

		return Result{
			Status:  StatusPass,
			Message: dir,
		}
	}
}

// CheckLogDir verifies the default log directory can be written. Logging to
// a file is optional, so failures are warnings.
func CheckLogDir(dir string, dirErr error) Check {
	return func(context.Context) Result {
		if dirErr == nil {
			dirErr = checkWritable(dir)
		}

		if dirErr != nil {
			return Result{
				Status:  StatusWarn,
				Message: "Not writable",
				Detail:  dirErr.Error(),
			}
		}

		return Result{
			Status:  StatusPass,
			Message: dir,
		}
	}
}

// CheckShell reports whether ! escapes have a shell to run in.
func CheckShell(lookPath func(string) (string, error)) Check {
	return func(context.Context) Result {
		name := "sh"
		if runtime.GOOS == "windows" {
			name = "cmd"
		}

		path, err := lookPath(name)
		if err != nil {
			return Result{
				Status:  StatusWarn,
				Message: fmt.Sprintf("%s not found in PATH", name),
				Detail:  "Shell escapes (!cmd) are unavailable",
			}
		}

		return Result{
			Status:  StatusPass,
			Message: path,
		}
	}
}

func checkVersion(context.Context) Result {
	if buildinfo.Version == "dev" {
		return Result{
			Status:  StatusWarn,
			Message: "Development build",
		}
	}

	return Result{
		Status:  StatusPass,
		Message: "v" + buildinfo.Version,
	}
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return fmt.Errorf("write probe file: %w", err)
	}

	name := f.Name()

	return errors.Join(f.Close(), os.Remove(filepath.Clean(name)))
}

// RenderResults formats diagnostic results to the given output writer.
func RenderResults(results []Result, printFn, successFn, warningFn, failureFn, mutedFn func(format string, args ...any)) {
	maxNameLen := 0
	for _, r := range results {
		if len(r.Name) > maxNameLen {
			maxNameLen = len(r.Name)
		}
	}

	for _, r := range results {
		symbol := r.Status.Symbol()
		padding := maxNameLen - len(r.Name) + 4

		switch r.Status {
		case StatusPass:
			successFn("%-*s%s", len(r.Name)+padding, r.Name, r.Message)
		case StatusWarn:
			warningFn("%-*s%s", len(r.Name)+padding, r.Name, r.Message)
		case StatusFail:
			failureFn("%-*s%s", len(r.Name)+padding, r.Name, r.Message)
		default:
			printFn("%s %-*s%s\n", symbol, len(r.Name)+padding, r.Name, r.Message)
		}

		if r.Detail != "" {
			mutedFn("    %s", r.Detail)
		}
	}
}

// Symbol returns the status symbol for display.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return checkMark
	case StatusWarn:
		return warningMark
	case StatusFail:
		return xMark
	default:
		return "?"
	}
}

// String returns the lowercase status name used in JSON output.
func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const (
	checkMark   = "\u2713" // ✓
	xMark       = "\u2717" // ✗
	warningMark = "\u26A0" // ⚠
)
