// Package store persists recordings and transcripts in a local SQLite
// database. It holds both the crash-recovery chunk log and the saved
// sessions the TUI and MCP server read.
package store

import "time"

// Chunk is a durably logged audio fragment from an unfinished recording.
type Chunk struct {
	ID        int64
	SessionID string
	MIME      string
	Data      []byte
	CreatedAt time.Time
}

// Session represents a completed (or recovered) recording session.
type Session struct {
	ID        string
	Title     string
	Device    string
	StartedAt time.Time
	EndedAt   *time.Time
	Status    string
	CreatedAt time.Time
}

// Entry is a persisted transcript line.
type Entry struct {
	ID             string
	SessionID      string
	StartTime      float64 // seconds since session start
	Text           string
	SequenceNumber int
	CreatedAt      time.Time
}

// Summary is an LLM-generated summary of a session.
type Summary struct {
	ID          string
	SessionID   string
	Content     string
	SummaryType string
	ModelID     string
	CreatedAt   time.Time
}
