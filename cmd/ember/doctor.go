package main

import (
	"github.com/spf13/cobra"

	"github.com/musher-dev/ember/internal/config"
	"github.com/musher-dev/ember/internal/doctor"
	clierrors "github.com/musher-dev/ember/internal/errors"
	"github.com/musher-dev/ember/internal/output"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose common issues",
		Long: `Run diagnostic checks to identify terminal and configuration issues.

Checks performed:
  - Terminal capability for the interactive prompt
  - Configuration file validity
  - History and log directory permissions
  - Shell availability for ! escapes`,
		Example: `  ember doctor
  ember doctor --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			runner := doctor.New(config.Load())

			var results []doctor.Result

			out.Busy("Running checks", func() {
				results = runner.Run(cmd.Context())
			})

			if out.JSON {
				return out.PrintJSON(results)
			}

			renderDoctor(out, results)

			if _, failed, _ := doctor.Summary(results); failed > 0 {
				return &clierrors.CLIError{
					Message: "One or more checks failed",
					Hint:    "Fix the failed checks above and run 'ember doctor' again",
					Code:    clierrors.ExitConfig,
				}
			}

			return nil
		},
	}
}

func renderDoctor(out *output.Writer, results []doctor.Result) {
	out.Heading("Ember Doctor")

	doctor.RenderResults(results, out.Print, out.Success, out.Warning, out.Failure, out.Muted)

	passed, failed, warnings := doctor.Summary(results)

	out.Println()
	out.Print("%d passed", passed)

	if failed > 0 {
		out.Print(", %d failed", failed)
	}

	if warnings > 0 {
		out.Print(", %d warning(s)", warnings)
	}

	out.Println()
}
