// Package main is the entry point for the Ember CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/musher-dev/ember/internal/buildinfo"
	clierrors "github.com/musher-dev/ember/internal/errors"
	"github.com/musher-dev/ember/internal/observability"
	"github.com/musher-dev/ember/internal/output"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() (exitCode int) {
	// The input cycle and spinners hide the cursor; restore it if we crash.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprint(os.Stderr, ansi.ShowCursor)
			panic(r)
		}
	}()

	buildinfo.Version = version
	buildinfo.Commit = commit

	out := output.Default()

	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		return handleError(out, err)
	}

	return 0
}

// handleError prints err and returns the process exit code. CLIErrors carry
// their own code and hint; cobra usage errors map to ExitUsage.
func handleError(out *output.Writer, err error) int {
	var cliErr *clierrors.CLIError
	if clierrors.As(err, &cliErr) {
		out.Failure("%s", cliErr.Message)

		if cliErr.Hint != "" {
			out.Info("%s", cliErr.Hint)
		}

		return cliErr.Code
	}

	errStr := err.Error()
	out.Failure("%s", errStr)

	if !isUsageError(errStr) {
		return clierrors.ExitGeneral
	}

	// Unknown command errors may already carry cobra's suggestions.
	if !strings.Contains(errStr, "--help") {
		out.Info("Run 'ember --help' for usage")
	}

	return clierrors.ExitUsage
}

// isUsageError matches cobra errors that escape SetFlagErrorFunc, such as
// unknown commands or flags on commands executed without the root.
func isUsageError(msg string) bool {
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag") ||
		strings.Contains(msg, "required flag")
}

func newRootCmd() *cobra.Command {
	var (
		jsonOutput bool
		quiet      bool
		noColor    bool
		noInput    bool
		logLevel   string
		logFormat  string
		logFile    string
		logStderr  string
		flags      runFlags
	)

	out := output.Default()

	rootCmd := &cobra.Command{
		Use:   "ember",
		Short: "Embeddable interactive Starlark REPL",
		Long: `Ember runs an interactive Starlark read-eval-print loop in your terminal.

Each submission is evaluated against a namespace that persists for the whole
session. Long results are paged, Ctrl-C cancels a running evaluation, and
lines starting with ! run in your shell.

With --async the session runs as a task of a host scheduler next to a
background ticker, so wait() can suspend on host work while output from
other tasks is kept clear of the prompt.`,
		Example: `  ember
  ember --prompt-style ipython
  ember --startup helpers.star --title "ember dev"
  ember --async --tick 10s`,
		Args:          noArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			out.JSON = pickBoolFlagOrEnv(jsonOutput, "EMBER_JSON")
			out.Quiet = pickBoolFlagOrEnv(quiet, "EMBER_QUIET")
			out.NoInput = pickBoolFlagOrEnv(noInput, "EMBER_NO_INPUT") || pickBoolFlagOrEnv(false, "CI")

			if noColor {
				out.SetNoColor(true)

				color.NoColor = true
			}

			logCfg := observability.Config{
				Level:          pickFlagOrEnv(logLevel, "EMBER_LOG_LEVEL", "info"),
				Format:         pickFlagOrEnv(logFormat, "EMBER_LOG_FORMAT", "json"),
				LogFile:        pickFlagOrEnv(logFile, "EMBER_LOG_FILE", ""),
				StderrMode:     pickFlagOrEnv(logStderr, "EMBER_LOG_STDERR", "auto"),
				InteractiveTTY: out.Terminal().IsTTY && isInteractiveCommand(cmd.CommandPath()),
				RunID:          uuid.NewString(),
				CommandPath:    cmd.CommandPath(),
				Version:        version,
				Commit:         commit,
			}

			logger, cleanup, err := observability.NewLogger(&logCfg)
			if err != nil {
				return &clierrors.CLIError{
					Message: fmt.Sprintf("Invalid logging configuration: %v", err),
					Hint:    "Use --log-level (error|warn|info|debug), --log-format (json|text), --log-stderr (auto|on|off), and/or --log-file",
					Code:    clierrors.ExitUsage,
				}
			}

			slog.SetDefault(logger)

			ctx := out.WithContext(cmd.Context())
			ctx = observability.WithLogger(ctx, logger)
			cmd.SetContext(ctx)

			if cleanup != nil {
				cmd.PostRunE = wrapPostRunCleanup(cmd.PostRunE, cleanup)
			}

			// Tracing is opt-in via OTEL_ENABLED.
			telemetryShutdown, telemetryErr := observability.SetupTelemetry(ctx, observability.TelemetryFromEnv(version, commit))
			if telemetryErr != nil {
				logger.Warn("telemetry initialization failed", slog.String("error", telemetryErr.Error()))
			}

			if telemetryShutdown != nil {
				cmd.PostRunE = wrapNamedPostRunCleanup(cmd.PostRunE, "telemetry resources", func() error {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()

					return telemetryShutdown(shutdownCtx)
				})
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(cmd, &flags)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Minimal output (for CI)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&noInput, "no-input", false, "Disable interactive prompts")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: error, warn, info, debug")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: json, text")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Optional structured log file path")
	rootCmd.PersistentFlags().StringVar(&logStderr, "log-stderr", "", "Structured logging to stderr: auto, on, off")

	flags.register(rootCmd)

	rootCmd.SuggestionsMinimumDistance = 2

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &clierrors.CLIError{
			Message: err.Error(),
			Hint:    fmt.Sprintf("Run '%s --help' for available flags", cmd.CommandPath()),
			Code:    clierrors.ExitUsage,
		}
	})

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newHistoryCmd())

	rootCmd.AddCommand(newDoctorCmd())
	rootCmd.AddCommand(newPathsCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func wrapPostRunCleanup(postRun func(*cobra.Command, []string) error, cleanup func() error) func(*cobra.Command, []string) error {
	return wrapNamedPostRunCleanup(postRun, "logger resources", cleanup)
}

func wrapNamedPostRunCleanup(postRun func(*cobra.Command, []string) error, name string, cleanup func() error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if postRun != nil {
			if err := postRun(cmd, args); err != nil {
				_ = cleanup()
				return err
			}
		}

		if err := cleanup(); err != nil {
			return fmt.Errorf("cleanup %s: %w", name, err) //nolint:rawerror // internal cleanup, not user-facing
		}

		return nil
	}
}

func pickBoolFlagOrEnv(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}

	v := strings.ToLower(strings.TrimSpace(os.Getenv(envKey)))

	return v == "1" || v == "true" || v == "yes"
}

func pickFlagOrEnv(flagValue, envKey, fallback string) string {
	trimmed := strings.TrimSpace(flagValue)
	if trimmed != "" {
		return trimmed
	}

	if envValue := strings.TrimSpace(os.Getenv(envKey)); envValue != "" {
		return envValue
	}

	return fallback
}

// isInteractiveCommand reports whether path owns the terminal, in which case
// stderr logging would corrupt the input cycle.
func isInteractiveCommand(path string) bool {
	return path == "ember"
}

// VersionInfo is the JSON shape of 'ember version'.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func versionInfo() VersionInfo {
	return VersionInfo{
		Version:   version,
		Commit:    commit,
		Date:      date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// noArgs returns a Cobra positional-arg validator that rejects any arguments
// with a clear, user-friendly message (unlike cobra.NoArgs which says "unknown command").
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return &clierrors.CLIError{
			Message: fmt.Sprintf("'%s' accepts no arguments", cmd.CommandPath()),
			Hint:    fmt.Sprintf("Run '%s --help' for usage", cmd.CommandPath()),
			Code:    clierrors.ExitUsage,
		}
	}

	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show version information",
		Long:    `Display the ember binary version, git commit, and build date.`,
		Example: `  ember version
  ember version --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			info := versionInfo()

			if out.JSON {
				return out.PrintJSON(info)
			}

			out.Print("ember %s\n", info.Version)
			out.Print("  commit:   %s\n", info.Commit)
			out.Print("  built:    %s\n", info.Date)
			out.Print("  go:       %s\n", info.GoVersion)
			out.Print("  platform: %s\n", info.Platform)

			return nil
		},
	}
}
