package repl

import "sync"

const memoryHistoryLimit = 500

// memoryHistory is the recall list used when the host supplies none. It is
// lost when the session ends.
type memoryHistory struct {
	mu      sync.Mutex
	entries []string
}

func (h *memoryHistory) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]string(nil), h.entries...)
}

func (h *memoryHistory) RecordInput(_ int, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.entries); n > 0 && h.entries[n-1] == text {
		return nil
	}

	h.entries = append(h.entries, text)
	if over := len(h.entries) - memoryHistoryLimit; over > 0 {
		h.entries = h.entries[over:]
	}

	return nil
}

func (h *memoryHistory) RecordResult(int, string, string) error {
	return nil
}
