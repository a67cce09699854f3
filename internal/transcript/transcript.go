// Package transcript holds the in-memory transcript for the current session.
package transcript

import (
	"strings"
	"sync"
)

// Entry is a single transcript line at an offset from the session start.
type Entry struct {
	Time float64 // seconds since session start
	Text string
}

// Assembler accumulates transcript entries. Callers supply entries in time
// order; the assembler never re-sorts.
type Assembler struct {
	mu      sync.Mutex
	entries []Entry
}

// NewAssembler returns an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Append adds entries to the end of the transcript.
func (a *Assembler) Append(entries ...Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entries...)
}

// ReplaceAll swaps the transcript content for the non-empty lines of text,
// pairing each line with the timestamp of the existing entry at the same
// position. Lines beyond the existing entry count reuse the last timestamp;
// with no existing entries every line lands at time zero. Returns the new
// entries.
func (a *Assembler) ReplaceAll(text string) []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()

	template := a.entries
	var replaced []Entry
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var at float64
		switch {
		case len(replaced) < len(template):
			at = template[len(replaced)].Time
		case len(template) > 0:
			at = template[len(template)-1].Time
		}
		replaced = append(replaced, Entry{Time: at, Text: line})
	}

	a.entries = replaced
	return append([]Entry(nil), replaced...)
}

// Reset clears the transcript.
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = nil
}

// Entries returns a snapshot of the current transcript.
func (a *Assembler) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Entry(nil), a.entries...)
}

// Len returns the number of entries.
func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Text returns the transcript as one line per entry, the form handed to
// refinement and summarization.
func (a *Assembler) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	lines := make([]string, len(a.entries))
	for i, e := range a.entries {
		lines[i] = e.Text
	}
	return strings.Join(lines, "\n")
}
