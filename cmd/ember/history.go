package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"

	"github.com/musher-dev/ember/internal/config"
	clierrors "github.com/musher-dev/ember/internal/errors"
	"github.com/musher-dev/ember/internal/eval"
	"github.com/musher-dev/ember/internal/history"
	"github.com/musher-dev/ember/internal/output"
	"github.com/musher-dev/ember/internal/prompt"
	"github.com/musher-dev/ember/internal/tui/render"
)

const minPreviewWidth = 10

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded REPL sessions",
		Long:  `List, show, and prune the submissions recorded by earlier REPL sessions.`,
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryPruneCmd())

	return cmd
}

func historyDir() (string, error) {
	dir, err := history.DefaultDir()
	if err != nil {
		return "", clierrors.Wrap(clierrors.ExitConfig, "Cannot locate history directory", err)
	}

	return dir, nil
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions",
		Long:  `List recorded REPL sessions, newest first, with a preview of the first submission.`,
		Example: `  ember history list
  ember history list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			dir, err := historyDir()
			if err != nil {
				return err
			}

			sessions, err := history.ListSessions(dir)
			if err != nil {
				return err
			}

			if out.JSON {
				return out.PrintJSON(sessions)
			}

			if len(sessions) == 0 {
				out.Muted("No history sessions found.")

				if hint := historyEnabledHint(config.Load()); hint != "" {
					out.Info("%s", hint)
				}

				return nil
			}

			renderSessions(out, dir, sessions, out.Terminal().Width)

			return nil
		},
	}
}

// renderSessions prints one line per session, fitting the preview of its
// first input into the remaining terminal width.
func renderSessions(out *output.Writer, dir string, sessions []history.Session, width int) {
	const (
		idWidth      = 36
		startedWidth = 20
		inputsWidth  = 6
	)

	previewWidth := max(width-idWidth-startedWidth-inputsWidth-6, minPreviewWidth)

	for _, s := range sessions {
		started := s.StartedAt.Local().Format("2006-01-02 15:04:05")

		status := "open"
		if s.ClosedAt != nil {
			status = "closed"
		}

		out.Print("%s  %s  %s  %s\n",
			render.PadRightVisible(s.SessionID, idWidth),
			render.PadRightVisible(started, startedWidth-1),
			render.PadRightVisible(fmt.Sprintf("%d in", s.Inputs), inputsWidth),
			render.Fit(firstInput(dir, s.SessionID, status), previewWidth),
		)
	}
}

func firstInput(dir, sessionID, status string) string {
	events, err := history.ReadEvents(dir, sessionID)
	if err != nil {
		return "(" + status + ", unreadable)"
	}

	for _, ev := range events {
		if ev.Kind == history.KindInput {
			return ev.Text
		}
	}

	return "(" + status + ", empty)"
}

func newHistoryShowCmd() *cobra.Command {
	var (
		search string
		follow bool
		raw    bool
	)

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show the submissions of a session",
		Long: `Print the inputs and results recorded for one session in prompt order.
Escape sequences are removed unless --raw is given.`,
		Example: `  ember history show 4f1c2d3e-0000-4000-8000-000000000000
  ember history show <session-id> --search load
  ember history show <session-id> --follow`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]
			out := output.FromContext(cmd.Context())

			dir, err := historyDir()
			if err != nil {
				return err
			}

			if _, err := os.Stat(filepath.Join(dir, filepath.Base(sessionID))); err != nil {
				return clierrors.HistorySessionNotFound(sessionID)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var lastSeq uint64

			for {
				events, err := history.ReadEvents(dir, sessionID)
				if err != nil {
					return err
				}

				for _, ev := range events {
					if ev.Seq <= lastSeq {
						continue
					}

					lastSeq = ev.Seq

					line, ok := formatEvent(ev, raw)
					if !ok {
						continue
					}

					if search != "" && !strings.Contains(strings.ToLower(line), strings.ToLower(search)) {
						continue
					}

					out.Print("%s\n", line)
				}

				if !follow {
					return nil
				}

				select {
				case <-ctx.Done():
					return nil
				case <-time.After(1 * time.Second):
				}
			}
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "Show only entries containing this substring")
	cmd.Flags().BoolVar(&follow, "follow", false, "Keep printing entries as the session records them")
	cmd.Flags().BoolVar(&raw, "raw", false, "Keep ANSI escape sequences")

	return cmd
}

// formatEvent renders ev with ipython-style prompts. Results without text
// are skipped.
func formatEvent(ev history.Event, raw bool) (string, bool) {
	text := strings.TrimRight(ev.Text, "\n")
	if !raw {
		text = ansi.Strip(text)
	}

	var label string

	switch {
	case ev.Kind == history.KindInput:
		label = fmt.Sprintf("In [%d]: ", ev.Index)
	case ev.Outcome == eval.KindCancelled.String():
		label, text = fmt.Sprintf("Err[%d]: ", ev.Index), "KeyboardInterrupt"
	case text == "":
		return "", false
	case ev.Outcome == eval.KindValue.String():
		label = fmt.Sprintf("Out[%d]: ", ev.Index)
	default:
		label = fmt.Sprintf("Err[%d]: ", ev.Index)
	}

	indent := strings.Repeat(" ", len(label))

	return label + strings.ReplaceAll(text, "\n", "\n"+indent), true
}

func newHistoryPruneCmd() *cobra.Command {
	var (
		olderThan string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete sessions older than a duration",
		Long: `Delete recorded sessions that closed before the retention window. The
default window is 720h; confirmation is asked on interactive terminals.`,
		Example: `  ember history prune
  ember history prune --older-than 168h --force`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			window := history.DefaultRetention()
			if olderThan != "" {
				d, err := time.ParseDuration(olderThan)
				if err != nil {
					return &clierrors.CLIError{
						Message: fmt.Sprintf("Invalid duration for --older-than: %s", olderThan),
						Hint:    "Use a Go duration such as 168h or 90m",
						Cause:   err,
						Code:    clierrors.ExitUsage,
					}
				}

				window = d
			}

			dir, err := historyDir()
			if err != nil {
				return err
			}

			if !force {
				p := prompt.New(out)
				if p.CanPrompt() {
					ok, err := p.Confirm(fmt.Sprintf("Delete sessions older than %s from %s?", window, dir), false)
					if err != nil && !prompt.IsCanceled(err) {
						return err
					}

					if !ok {
						out.Muted("Nothing removed.")
						return nil
					}
				}
			}

			removed, err := history.PruneOlderThan(dir, time.Now().Add(-window))
			if err != nil {
				return err
			}

			out.Success("Removed %d history session(s)", removed)

			return nil
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", "", "Override retention window (example: 168h)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the confirmation prompt")

	return cmd
}

// historyEnabledHint is shown when history is requested but recording is off.
func historyEnabledHint(cfg *config.Config) string {
	if cfg.HistoryEnabled() {
		return ""
	}

	return fmt.Sprintf("Recording is disabled; run 'ember config set %s true' to enable it", config.KeyHistoryEnabled)
}
