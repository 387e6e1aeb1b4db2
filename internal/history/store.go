// Package history records REPL submissions per session and serves them back
// for recall at the prompt.
//
// Each session lives in its own directory holding a gzip-compressed JSONL
// event log, an uncompressed live copy for crash recovery, and a meta.json
// used for listing and pruning.
package history

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/musher-dev/ember/internal/paths"
)

const (
	defaultMaxEntries     = 1000
	defaultRetentionHours = 24 * 30
	eventsFileName        = "events.jsonl.gz"
	eventsLiveFileName    = "events.live.jsonl"
	metaFileName          = "meta.json"
)

// Event kinds.
const (
	KindInput  = "input"
	KindResult = "result"
)

// Event is one history record.
type Event struct {
	SessionID string    `json:"sessionId"`
	Seq       uint64    `json:"seq"`
	TS        time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	Index     int       `json:"index,omitempty"`
	Text      string    `json:"text"`
	Outcome   string    `json:"outcome,omitempty"`
}

// Meta stores session metadata for discovery and pruning.
type Meta struct {
	SessionID string     `json:"sessionId"`
	StartedAt time.Time  `json:"startedAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
	Inputs    int        `json:"inputs"`
}

// StoreOptions controls history behavior.
type StoreOptions struct {
	SessionID  string
	Dir        string
	MaxEntries int

	// Seed entries, oldest first, offered for recall before anything is
	// recorded in this session.
	Seed []string
}

// Store appends one session's history and keeps recent inputs in memory.
type Store struct {
	mu sync.Mutex

	sessionID  string
	dir        string
	maxEntries int
	seq        uint64
	inputs     int
	startedAt  time.Time

	file     *os.File
	gz       *gzip.Writer
	bw       *bufio.Writer
	liveFile *os.File
	liveBW   *bufio.Writer

	entries []string
	closed  bool
}

// DefaultDir returns the default history directory.
func DefaultDir() (string, error) {
	dir, err := paths.HistoryDir()
	if err != nil {
		return "", fmt.Errorf("resolve history directory: %w", err)
	}

	return dir, nil
}

// NewStore creates a history store for one session.
func NewStore(opts StoreOptions) (*Store, error) {
	if err := validateSessionID(opts.SessionID); err != nil {
		return nil, err
	}

	dir := opts.Dir
	if dir == "" {
		var err error

		dir, err = DefaultDir()
		if err != nil {
			return nil, err
		}
	}

	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}

	sessionDir := filepath.Join(dir, opts.SessionID)
	if err := os.MkdirAll(sessionDir, 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(sessionDir, eventsFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // sessionDir/sessionID are validated and controlled
	if err != nil {
		return nil, fmt.Errorf("open history events: %w", err)
	}

	liveFile, err := os.OpenFile(filepath.Join(sessionDir, eventsLiveFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // sessionDir/sessionID are validated and controlled
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open live history events: %w", err)
	}

	gz := gzip.NewWriter(f)

	s := &Store{
		sessionID:  opts.SessionID,
		dir:        sessionDir,
		maxEntries: maxEntries,
		startedAt:  time.Now().UTC(),
		file:       f,
		gz:         gz,
		bw:         bufio.NewWriterSize(gz, 64*1024),
		liveFile:   liveFile,
		liveBW:     bufio.NewWriterSize(liveFile, 64*1024),
	}

	for _, text := range opts.Seed {
		s.rememberLocked(text)
	}

	if err := s.writeMeta(nil); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) writeMeta(closedAt *time.Time) error {
	data, err := json.Marshal(&Meta{
		SessionID: s.sessionID,
		StartedAt: s.startedAt,
		ClosedAt:  closedAt,
		Inputs:    s.inputs,
	})
	if err != nil {
		return fmt.Errorf("marshal history meta: %w", err)
	}

	if err := os.WriteFile(filepath.Join(s.dir, metaFileName), data, 0o600); err != nil {
		return fmt.Errorf("write history meta: %w", err)
	}

	return nil
}

// SessionID returns the store's session id.
func (s *Store) SessionID() string {
	return s.sessionID
}

// RecordInput appends a submitted source text. Blank text is not recorded.
func (s *Store) RecordInput(index int, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.appendLocked(Event{Kind: KindInput, Index: index, Text: text}); err != nil {
		return err
	}

	s.inputs++
	s.rememberLocked(text)

	return nil
}

// RecordResult appends the printed outcome of statement index.
func (s *Store) RecordResult(index int, outcome, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendLocked(Event{Kind: KindResult, Index: index, Outcome: outcome, Text: text})
}

func (s *Store) appendLocked(ev Event) error {
	if s.closed {
		return errors.New("history store is closed")
	}

	s.seq++
	ev.SessionID = s.sessionID
	ev.Seq = s.seq
	ev.TS = time.Now().UTC()

	line, err := json.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("marshal history event: %w", err)
	}

	line = append(line, '\n')
	if _, err := s.bw.Write(line); err != nil {
		return fmt.Errorf("encode history event: %w", err)
	}

	if _, err := s.liveBW.Write(line); err != nil {
		return fmt.Errorf("encode live history event: %w", err)
	}

	if err := s.liveBW.Flush(); err != nil {
		return fmt.Errorf("flush live history event: %w", err)
	}

	return nil
}

// rememberLocked keeps text for recall, dropping an immediate repeat and the
// oldest entry beyond the limit.
func (s *Store) rememberLocked(text string) {
	if n := len(s.entries); n > 0 && s.entries[n-1] == text {
		return
	}

	s.entries = append(s.entries, text)
	if over := len(s.entries) - s.maxEntries; over > 0 {
		s.entries = append(s.entries[:0:0], s.entries[over:]...)
	}
}

// Entries returns recallable inputs, oldest first.
func (s *Store) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.entries))
	copy(out, s.entries)

	return out
}

// Close flushes and closes the history files.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	now := time.Now().UTC()

	var errs []error
	if err := s.writeMeta(&now); err != nil {
		errs = append(errs, err)
	}

	if err := s.bw.Flush(); err != nil {
		errs = append(errs, err)
	}

	if err := s.liveBW.Flush(); err != nil {
		errs = append(errs, err)
	}

	if err := s.gz.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := s.file.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := s.liveFile.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateSessionID(sessionID string) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}

	if sessionID != filepath.Base(sessionID) || strings.Contains(sessionID, "..") || strings.ContainsAny(sessionID, `/\`) {
		return errors.New("invalid session id")
	}

	return nil
}
