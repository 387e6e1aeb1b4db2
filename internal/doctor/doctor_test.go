package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/musher-dev/ember/internal/config"
)

func writeConfig(t *testing.T, body string) *config.Config {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return config.LoadFile(path)
}

func TestCheckTerminal(t *testing.T) {
	tests := []struct {
		name   string
		probe  func() error
		status Status
	}{
		{name: "interactive", probe: func() error { return nil }, status: StatusPass},
		{name: "not a tty", probe: func() error { return errors.New("input is not a terminal") }, status: StatusWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckTerminal(tt.probe)(context.Background())
			if got.Status != tt.status {
				t.Fatalf("Status = %v, want %v (%+v)", got.Status, tt.status, got)
			}
		})
	}
}

func TestCheckConfig(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  Status
		message string
	}{
		{name: "valid file", body: "repl:\n  prompt_style: ipython\n", status: StatusPass, message: "Valid ("},
		{name: "unknown prompt style", body: "repl:\n  prompt_style: fancy\n", status: StatusFail, message: "Invalid ("},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckConfig(writeConfig(t, tt.body))(context.Background())
			if got.Status != tt.status {
				t.Fatalf("Status = %v, want %v (%+v)", got.Status, tt.status, got)
			}

			if !strings.HasPrefix(got.Message, tt.message) {
				t.Fatalf("Message = %q, want prefix %q", got.Message, tt.message)
			}
		})
	}
}

func TestCheckConfigWithoutFileUsesDefaults(t *testing.T) {
	got := CheckConfig(config.LoadFile(""))(context.Background())
	if got.Status != StatusPass || got.Message != "Valid (defaults)" {
		t.Fatalf("got %+v, want pass with defaults", got)
	}
}

func TestCheckHistory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "history")

	got := CheckHistory(config.LoadFile(""), dir, nil)(context.Background())
	if got.Status != StatusPass {
		t.Fatalf("Status = %v, want pass (%+v)", got.Status, got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}

	if len(entries) != 0 {
		t.Fatalf("probe file left behind: %v", entries)
	}
}

func TestCheckHistoryDisabled(t *testing.T) {
	cfg := writeConfig(t, "history:\n  enabled: false\n")

	got := CheckHistory(cfg, t.TempDir(), nil)(context.Background())
	if got.Status != StatusWarn || got.Message != "Disabled" {
		t.Fatalf("got %+v, want disabled warning", got)
	}
}

func TestCheckHistoryUnwritable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	got := CheckHistory(config.LoadFile(""), filepath.Join(file, "history"), nil)(context.Background())
	if got.Status != StatusFail {
		t.Fatalf("Status = %v, want fail (%+v)", got.Status, got)
	}
}

func TestCheckLogDirResolveError(t *testing.T) {
	got := CheckLogDir("", errors.New("resolve user home directory"))(context.Background())
	if got.Status != StatusWarn {
		t.Fatalf("Status = %v, want warn", got.Status)
	}
}

func TestCheckShell(t *testing.T) {
	found := CheckShell(func(string) (string, error) { return "/bin/sh", nil })(context.Background())
	if found.Status != StatusPass || found.Message != "/bin/sh" {
		t.Fatalf("found = %+v", found)
	}

	missing := CheckShell(func(string) (string, error) { return "", errors.New("not found") })(context.Background())
	if missing.Status != StatusWarn {
		t.Fatalf("missing = %+v", missing)
	}
}

func TestRunnerNamesResults(t *testing.T) {
	r := &Runner{}
	r.AddCheck("First", func(context.Context) Result { return Result{Status: StatusPass} })
	r.AddCheck("Second", func(context.Context) Result { return Result{Status: StatusFail} })
	r.AddCheck("Third", func(context.Context) Result { return Result{Status: StatusWarn} })

	results := r.Run(context.Background())
	if len(results) != 3 || results[0].Name != "First" || results[2].Name != "Third" {
		t.Fatalf("results = %+v", results)
	}

	passed, failed, warnings := Summary(results)
	if passed != 1 || failed != 1 || warnings != 1 {
		t.Fatalf("Summary() = %d, %d, %d; want 1, 1, 1", passed, failed, warnings)
	}
}

func TestResultJSONUsesStatusNames(t *testing.T) {
	data, err := json.Marshal(Result{Name: "Shell", Status: StatusWarn, Message: "sh not found in PATH"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `{"name":"Shell","status":"warn","message":"sh not found in PATH"}`
	if string(data) != want {
		t.Fatalf("json = %s, want %s", data, want)
	}
}
