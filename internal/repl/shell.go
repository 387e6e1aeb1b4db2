package repl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"runtime"
	"strings"

	clierrors "github.com/musher-dev/ember/internal/errors"
)

// runShell runs a "!command" line. stdout and stderr are streamed to w; a
// failing command is reported as a CLIError carrying the captured stderr.
func runShell(ctx context.Context, line string, w io.Writer) error {
	command := strings.TrimSpace(strings.TrimPrefix(line, "!"))
	if command == "" {
		return nil
	}

	name, flag := "sh", "-c"
	if runtime.GOOS == "windows" {
		name, flag = "cmd", "/C"
	}

	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, flag, command) //nolint:gosec // the user typed this command
	cmd.Stdout = w
	cmd.Stderr = io.MultiWriter(w, &stderr)

	err := cmd.Run()
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return clierrors.ShellCommandFailed(exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
	}

	return clierrors.Wrap(clierrors.ExitGeneral, "Failed to start shell command", err)
}
