package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.starlark.net/starlark"

	"github.com/musher-dev/ember/internal/arbiter"
	"github.com/musher-dev/ember/internal/config"
	"github.com/musher-dev/ember/internal/history"
	"github.com/musher-dev/ember/internal/inputcycle"
	"github.com/musher-dev/ember/internal/observability"
	"github.com/musher-dev/ember/internal/repl"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

// linesRenderer submits lines in order, then ends input.
type linesRenderer struct {
	mu    sync.Mutex
	lines []string
}

func (r *linesRenderer) RenderPrompt(_ context.Context, _ inputcycle.Request, ev *inputcycle.Events) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.lines) == 0 {
		ev.EndOfInput()
		return nil
	}

	ev.Submit(r.lines[0])
	r.lines = r.lines[1:]

	return nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(chan<- os.Signal, ...os.Signal) {}
func (nopNotifier) Stop(chan<- os.Signal)                 {}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaultStartupFiles(t *testing.T) {
	home := isolateUserDirs(t)

	if got := defaultStartupFiles(); got != nil {
		t.Fatalf("defaultStartupFiles() = %v, want nil without a startup file", got)
	}

	path := filepath.Join(home, "config", "ember", "startup.star")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := os.WriteFile(path, []byte("greeting = 'hi'\n"), 0o600); err != nil {
		t.Fatalf("write startup file: %v", err)
	}

	got := defaultStartupFiles()
	if len(got) != 1 || got[0] != path {
		t.Fatalf("defaultStartupFiles() = %v, want [%s]", got, path)
	}
}

func TestOpenHistorySeedsFromEarlierSessions(t *testing.T) {
	dir := t.TempDir()

	earlier, err := history.NewStore(history.StoreOptions{SessionID: "earlier", Dir: dir})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	_ = earlier.RecordInput(1, "a = 1")
	_ = earlier.RecordInput(2, "a + 1")

	if err := earlier.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	store := openHistory(config.LoadFile(""), dir, discardLogger())
	if store == nil {
		t.Fatal("openHistory() = nil")
	}
	defer store.Close()

	got := store.Entries()
	if len(got) != 2 || got[0] != "a = 1" || got[1] != "a + 1" {
		t.Fatalf("Entries() = %v, want earlier inputs", got)
	}
}

func TestRunTickerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	var ticks atomic.Int64

	if err := runTicker(ctx, 10*time.Millisecond, discardLogger(), &ticks); err != nil {
		t.Fatalf("runTicker() error = %v, want nil on cancellation", err)
	}

	if ticks.Load() == 0 {
		t.Fatal("ticker never fired")
	}
}

func TestRunHostedInterleavesTicker(t *testing.T) {
	var term lockedBuffer

	arb := arbiter.New(&term)
	hostLogger := observability.WithTerminal(discardLogger(), arb.Writer(), slog.LevelInfo)

	renderer := &linesRenderer{lines: []string{"wait(sleep(0.1, 0))", "ticks() > 0"}}

	// Results reach the terminal through the arbiter, alongside the ticker's
	// log lines.
	opts := []repl.Option{
		repl.WithRenderer(renderer),
		repl.WithArbiter(arb),
		repl.WithCapabilityCheck(func() error { return nil }),
		repl.WithInterruptNotifier(nopNotifier{}),
		repl.WithPager(false),
	}

	if err := runHosted(context.Background(), starlark.StringDict{}, 10*time.Millisecond, hostLogger, opts); err != nil {
		t.Fatalf("runHosted() error = %v", err)
	}

	if err := arb.Close(); err != nil {
		t.Fatalf("arbiter Close() error = %v", err)
	}

	var results []string

	for _, line := range strings.Split(strings.TrimRight(term.String(), "\n"), "\n") {
		if !strings.HasPrefix(line, "level=") {
			results = append(results, line)
		}
	}

	if got := strings.Join(results, "\n"); got != "0\nTrue" {
		t.Fatalf("results = %q, want %q\nterminal:\n%s", got, "0\nTrue", term.String())
	}

	if !strings.Contains(term.String(), `msg="host tick"`) {
		t.Fatalf("ticker output missing from terminal:\n%s", term.String())
	}
}
