// Package daemon implements the notetakerd control surface: the NDJSON
// protocol spoken over a Unix socket, the serving loop, and the client used
// by the TUI.
package daemon

import "context"

// Command is sent from a client to the daemon.
type Command struct {
	Cmd       string   `json:"cmd"`
	Device    string   `json:"device,omitempty"`
	Streaming *bool    `json:"streaming,omitempty"`
	Path      string   `json:"path,omitempty"`
	Notes     string   `json:"notes,omitempty"`
	SessionID string   `json:"sessionId,omitempty"`
	Events    []string `json:"events,omitempty"`
}

// Response is returned by the daemon after processing a command.
type Response struct {
	OK              bool          `json:"ok"`
	Error           string        `json:"error,omitempty"`
	SessionID       string        `json:"sessionId,omitempty"`
	State           string        `json:"state,omitempty"`
	Device          string        `json:"device,omitempty"`
	Streaming       *bool         `json:"streaming,omitempty"`
	Processing      *bool         `json:"processing,omitempty"`
	ChunkCount      *int          `json:"chunkCount,omitempty"`
	PendingRecovery *bool         `json:"pendingRecovery,omitempty"`
	Devices         []string      `json:"devices,omitempty"`
	Entries         []Entry       `json:"entries,omitempty"`
	Sessions        []SessionInfo `json:"sessions,omitempty"`
	Summary         string        `json:"summary,omitempty"`
	Title           string        `json:"title,omitempty"`
	Path            string        `json:"path,omitempty"`
}

// Event is streamed from the daemon to subscribed clients.
type Event struct {
	Event          string   `json:"event"`
	State          string   `json:"state,omitempty"`
	Device         string   `json:"device,omitempty"`
	Processing     *bool    `json:"processing,omitempty"`
	SessionID      string   `json:"sessionId,omitempty"`
	Title          string   `json:"title,omitempty"`
	Text           string   `json:"text,omitempty"`
	Time           *float64 `json:"time,omitempty"`
	SequenceNumber *int     `json:"sequenceNumber,omitempty"`
	Entries        []Entry  `json:"entries,omitempty"`
	Summary        string   `json:"summary,omitempty"`
	Chunks         *int     `json:"chunks,omitempty"`
	Seconds        *float64 `json:"seconds,omitempty"`
	Message        string   `json:"message,omitempty"`
	Kind           string   `json:"kind,omitempty"`
	Transient      *bool    `json:"transient,omitempty"`
}

// Entry is one timestamped transcript line on the wire.
type Entry struct {
	Time float64 `json:"time"`
	Text string  `json:"text"`
}

// SessionInfo is a saved session as listed on the wire. Times are unix
// seconds, matching the store.
type SessionInfo struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	StartedAt float64  `json:"startedAt"`
	EndedAt   *float64 `json:"endedAt,omitempty"`
	Status    string   `json:"status"`
}

// Core is the engine surface the daemon serves. Execute handles one command;
// Subscribe returns a live event stream and a cancel func that releases it.
type Core interface {
	Execute(ctx context.Context, cmd Command) Response
	Subscribe() (<-chan Event, func())
}

// BoolPtr returns a pointer to a bool value. Convenience for building
// commands and events.
func BoolPtr(b bool) *bool { return &b }

// IntPtr returns a pointer to an int value.
func IntPtr(n int) *int { return &n }

// FloatPtr returns a pointer to a float64 value.
func FloatPtr(f float64) *float64 { return &f }
