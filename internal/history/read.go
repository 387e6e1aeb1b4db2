package history

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Session describes one stored history session.
type Session struct {
	SessionID string     `json:"sessionId"`
	Path      string     `json:"path"`
	StartedAt time.Time  `json:"startedAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
	Inputs    int        `json:"inputs"`
}

func resolveRoot(rootDir string) (string, error) {
	if rootDir != "" {
		return rootDir, nil
	}

	return DefaultDir()
}

// ListSessions returns history sessions sorted by newest start time first.
func ListSessions(rootDir string) ([]Session, error) {
	rootDir, err := resolveRoot(rootDir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("list history sessions: %w", err)
	}

	sessions := make([]Session, 0, len(entries))
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}

		dir := filepath.Join(rootDir, ent.Name())

		data, err := os.ReadFile(filepath.Join(dir, metaFileName)) //nolint:gosec // controlled directory
		if err != nil {
			continue
		}

		var meta Meta
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}

		sessions = append(sessions, Session{
			SessionID: meta.SessionID,
			Path:      dir,
			StartedAt: meta.StartedAt,
			ClosedAt:  meta.ClosedAt,
			Inputs:    meta.Inputs,
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})

	return sessions, nil
}

// ReadEvents reads all events for a given session. A session that was never
// closed is read from its live file. A missing session yields no events.
func ReadEvents(rootDir, sessionID string) ([]Event, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	rootDir, err := resolveRoot(rootDir)
	if err != nil {
		return nil, err
	}

	events, err := readCompressed(filepath.Join(rootDir, sessionID, eventsFileName))
	if err == nil {
		return events, nil
	}

	// The compressed stream is only complete once Close ran.
	return readLive(filepath.Join(rootDir, sessionID, eventsLiveFileName))
}

func readCompressed(path string) (events []Event, err error) {
	file, err := os.Open(path) //nolint:gosec // controlled path
	if err != nil {
		return nil, err
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzipReader.Close() //nolint:errcheck // read-only

	return scanEvents(gzipReader)
}

func readLive(path string) (events []Event, err error) {
	file, err := os.Open(path) //nolint:gosec // controlled path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("open live history events: %w", err)
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return scanEvents(file)
}

func scanEvents(r io.Reader) ([]Event, error) {
	var events []Event

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		trimmed := bytes.TrimSpace(scanner.Bytes())
		if len(trimmed) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(trimmed, &event); err != nil {
			continue
		}

		events = append(events, event)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("scan history events: %w", err)
	}

	return events, nil
}

// LoadRecent returns up to limit inputs from the newest sessions, oldest
// first, for seeding recall in a new session.
func LoadRecent(rootDir string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	sessions, err := ListSessions(rootDir)
	if err != nil {
		return nil, err
	}

	var recent []string

	for _, session := range sessions {
		events, err := ReadEvents(filepath.Dir(session.Path), session.SessionID)
		if err != nil {
			continue
		}

		var inputs []string

		for _, ev := range events {
			if ev.Kind == KindInput {
				inputs = append(inputs, ev.Text)
			}
		}

		recent = append(inputs, recent...)
		if len(recent) >= limit {
			return recent[len(recent)-limit:], nil
		}
	}

	return recent, nil
}

// PruneOlderThan removes session directories older than the cutoff.
func PruneOlderThan(rootDir string, cutoff time.Time) (int, error) {
	sessions, err := ListSessions(rootDir)
	if err != nil {
		return 0, err
	}

	removed := 0

	for _, session := range sessions {
		referenceTime := session.StartedAt
		if session.ClosedAt != nil {
			referenceTime = *session.ClosedAt
		}

		if referenceTime.Before(cutoff) {
			if err := os.RemoveAll(session.Path); err != nil {
				return removed, fmt.Errorf("prune history session %q: %w", session.SessionID, err)
			}

			removed++
		}
	}

	return removed, nil
}

// DefaultRetention returns the default prune window.
func DefaultRetention() time.Duration {
	return defaultRetentionHours * time.Hour
}
