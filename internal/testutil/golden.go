// Package testutil holds golden file helpers shared by ember's tests.
package testutil

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/x/ansi"
)

// Usage: go test ./... -update
var update = flag.Bool("update", false, "update golden files")

// AssertGolden compares got against testdata/<goldenFile>. With -update it
// rewrites the file instead.
func AssertGolden(t testing.TB, got, goldenFile string) {
	t.Helper()

	goldenPath := filepath.Join("testdata", goldenFile)

	if *update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
			t.Fatalf("failed to create testdata directory: %v", err)
		}

		if err := os.WriteFile(goldenPath, []byte(got), 0o644); err != nil {
			t.Fatalf("failed to update golden file %s: %v", goldenPath, err)
		}

		t.Logf("updated golden file: %s", goldenPath)

		return
	}

	want, err := os.ReadFile(goldenPath)
	if err != nil {
		if os.IsNotExist(err) {
			t.Fatalf("golden file %s does not exist; run with -update to create it", goldenPath)
		}

		t.Fatalf("failed to read golden file %s: %v", goldenPath, err)
	}

	if got != string(want) {
		t.Errorf("output mismatch for %s\n\ngot:\n%s\n\nwant:\n%s\n\nrun with -update to refresh golden files", goldenPath, got, string(want))
	}
}

// AssertGoldenPlain is AssertGolden for styled terminal output. Escape
// sequences are removed first so the golden file holds only visible text.
func AssertGoldenPlain(t testing.TB, got, goldenFile string) {
	t.Helper()
	AssertGolden(t, ansi.Strip(got), goldenFile)
}

// ReadGolden returns the contents of testdata/<goldenFile>, or "" when it
// does not exist.
func ReadGolden(t testing.TB, goldenFile string) string {
	t.Helper()

	goldenPath := filepath.Join("testdata", goldenFile)

	data, err := os.ReadFile(goldenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}

		t.Fatalf("failed to read golden file %s: %v", goldenPath, err)
	}

	return string(data)
}
