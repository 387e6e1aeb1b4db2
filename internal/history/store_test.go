package history

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func newTestStore(t *testing.T, dir, id string, opts ...func(*StoreOptions)) *Store {
	t.Helper()

	o := StoreOptions{SessionID: id, Dir: dir}
	for _, opt := range opts {
		opt(&o)
	}

	s, err := NewStore(o)
	if err != nil {
		t.Fatalf("NewStore(%q) error = %v", id, err)
	}

	return s
}

func TestStoreRecordReadAndList(t *testing.T) {
	tmp := t.TempDir()
	s := newTestStore(t, tmp, "s-1")

	if err := s.RecordInput(1, "x = 1"); err != nil {
		t.Fatalf("RecordInput() error = %v", err)
	}

	if err := s.RecordResult(1, "no_value", ""); err != nil {
		t.Fatalf("RecordResult() error = %v", err)
	}

	if err := s.RecordInput(2, "x + 1"); err != nil {
		t.Fatalf("RecordInput() error = %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	evs, err := ReadEvents(tmp, "s-1")
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}

	if len(evs) != 3 {
		t.Fatalf("ReadEvents len = %d, want 3", len(evs))
	}

	if evs[0].Kind != KindInput || evs[0].Text != "x = 1" || evs[0].Seq != 1 {
		t.Fatalf("first event = %#v", evs[0])
	}

	if evs[1].Kind != KindResult || evs[1].Outcome != "no_value" {
		t.Fatalf("second event = %#v", evs[1])
	}

	list, err := ListSessions(tmp)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}

	if len(list) != 1 || list[0].SessionID != "s-1" || list[0].Inputs != 2 || list[0].ClosedAt == nil {
		t.Fatalf("ListSessions() = %#v", list)
	}
}

func TestEntriesSkipBlankAndRepeats(t *testing.T) {
	s := newTestStore(t, t.TempDir(), "s-1", func(o *StoreOptions) { o.MaxEntries = 3 })
	defer s.Close()

	for i, text := range []string{"a", "  ", "b", "b", "c", "d"} {
		if err := s.RecordInput(i, text); err != nil {
			t.Fatalf("RecordInput(%q) error = %v", text, err)
		}
	}

	if got, want := s.Entries(), []string{"b", "c", "d"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Entries() = %v, want %v", got, want)
	}
}

func TestSeedEntriesComeFirst(t *testing.T) {
	s := newTestStore(t, t.TempDir(), "s-1", func(o *StoreOptions) { o.Seed = []string{"old"} })
	defer s.Close()

	if err := s.RecordInput(1, "new"); err != nil {
		t.Fatalf("RecordInput() error = %v", err)
	}

	if got, want := s.Entries(), []string{"old", "new"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Entries() = %v, want %v", got, want)
	}
}

func TestReadEventsRecoversUnclosedSession(t *testing.T) {
	tmp := t.TempDir()
	s := newTestStore(t, tmp, "crashed")

	if err := s.RecordInput(1, "print(1)"); err != nil {
		t.Fatalf("RecordInput() error = %v", err)
	}

	// Never closed: only the live file is complete.
	evs, err := ReadEvents(tmp, "crashed")
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}

	if len(evs) != 1 || evs[0].Text != "print(1)" {
		t.Fatalf("ReadEvents() = %#v", evs)
	}

	_ = s.Close()
}

func TestReadEventsMissingSession(t *testing.T) {
	evs, err := ReadEvents(t.TempDir(), "nope")
	if err != nil || evs != nil {
		t.Fatalf("ReadEvents() = (%v, %v), want (nil, nil)", evs, err)
	}
}

func TestInvalidSessionIDs(t *testing.T) {
	for _, id := range []string{"", "../x", "a/b", `a\b`, ".."} {
		if _, err := NewStore(StoreOptions{SessionID: id, Dir: t.TempDir()}); err == nil {
			t.Errorf("NewStore(%q) succeeded, want error", id)
		}
	}
}

func TestLoadRecentAcrossSessions(t *testing.T) {
	tmp := t.TempDir()

	first := newTestStore(t, tmp, "first")
	_ = first.RecordInput(1, "a")
	_ = first.RecordInput(2, "b")
	_ = first.Close()

	time.Sleep(10 * time.Millisecond)

	second := newTestStore(t, tmp, "second")
	_ = second.RecordInput(1, "c")
	_ = second.Close()

	got, err := LoadRecent(tmp, 2)
	if err != nil {
		t.Fatalf("LoadRecent() error = %v", err)
	}

	if want := []string{"b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("LoadRecent() = %v, want %v", got, want)
	}

	all, err := LoadRecent(tmp, 10)
	if err != nil {
		t.Fatalf("LoadRecent() error = %v", err)
	}

	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(all, want) {
		t.Fatalf("LoadRecent() = %v, want %v", all, want)
	}
}

func TestPruneOlderThan(t *testing.T) {
	tmp := t.TempDir()

	for _, id := range []string{"old", "new"} {
		s := newTestStore(t, tmp, id)
		_ = s.RecordInput(1, id)

		if err := s.Close(); err != nil {
			t.Fatalf("Close %s error = %v", id, err)
		}
	}

	removed, err := PruneOlderThan(tmp, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneOlderThan error = %v", err)
	}

	if removed != 2 {
		t.Fatalf("PruneOlderThan removed = %d, want 2", removed)
	}

	if _, err := os.Stat(filepath.Join(tmp, "old")); !os.IsNotExist(err) {
		t.Fatalf("old session still present: %v", err)
	}

	kept, err := PruneOlderThan(tmp, time.Now().Add(-time.Hour))
	if err != nil || kept != 0 {
		t.Fatalf("PruneOlderThan() = (%d, %v), want (0, nil)", kept, err)
	}
}

func TestDefaultRetention(t *testing.T) {
	if got := DefaultRetention(); got != 30*24*time.Hour {
		t.Fatalf("DefaultRetention() = %v", got)
	}
}
