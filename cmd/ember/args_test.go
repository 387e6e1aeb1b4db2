package main

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"

	clierrors "github.com/musher-dev/ember/internal/errors"
)

// Every runnable command needs an Args validator so stray words are reported
// as usage errors instead of being ignored.
func TestAllRunnableCommandsHaveArgsValidator(t *testing.T) {
	root := newRootCmd()

	var missing []string

	for _, cmd := range collectAllCommands(root) {
		if !cmd.Runnable() {
			continue
		}

		if cmd.Args == nil {
			missing = append(missing, cmd.CommandPath())
		}
	}

	if len(missing) > 0 {
		t.Fatalf("runnable commands missing Args validator:\n  %s\n\nAdd Args: noArgs (or another validator) to each command.",
			strings.Join(missing, "\n  "))
	}
}

func collectAllCommands(root *cobra.Command) []*cobra.Command {
	var all []*cobra.Command

	var walk func(cmd *cobra.Command)

	walk = func(cmd *cobra.Command) {
		all = append(all, cmd)
		for _, child := range cmd.Commands() {
			walk(child)
		}
	}

	walk(root)

	return all
}

func TestUsageErrorsAreCLIErrors(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantMessage string
		wantHint    string
	}{
		{
			name:        "unknown flag",
			args:        []string{"version", "--bogus"},
			wantMessage: "unknown flag",
			wantHint:    "ember version --help",
		},
		{
			name:        "extra argument",
			args:        []string{"version", "extra"},
			wantMessage: "accepts no arguments",
			wantHint:    "--help",
		},
		{
			name:        "history prune with argument",
			args:        []string{"history", "prune", "now"},
			wantMessage: "'ember history prune' accepts no arguments",
			wantHint:    "ember history prune --help",
		},
		{
			name:        "bad repl flag value",
			args:        []string{"--tick", "soon"},
			wantMessage: "invalid argument",
			wantHint:    "'ember --help'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCmd()
			root.SetArgs(tt.args)

			err := root.Execute()

			var cliErr *clierrors.CLIError
			if !clierrors.As(err, &cliErr) {
				t.Fatalf("expected CLIError, got %T: %v", err, err)
			}

			if cliErr.Code != clierrors.ExitUsage {
				t.Fatalf("exit code = %d, want %d (ExitUsage)", cliErr.Code, clierrors.ExitUsage)
			}

			if !strings.Contains(cliErr.Message, tt.wantMessage) {
				t.Fatalf("message = %q, want to contain %q", cliErr.Message, tt.wantMessage)
			}

			if !strings.Contains(cliErr.Hint, tt.wantHint) {
				t.Fatalf("hint = %q, want to contain %q", cliErr.Hint, tt.wantHint)
			}
		})
	}
}
