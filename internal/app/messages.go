package app

import "github.com/sai-itkc2020/ai-notetaker/internal/daemon"

// DaemonConnectedMsg is sent when both daemon connections are established.
type DaemonConnectedMsg struct {
	Client   *daemon.Client // for commands
	EvClient *daemon.Client // for the event subscription
}

// DaemonConnectErrorMsg is sent when the daemon connection fails.
type DaemonConnectErrorMsg struct {
	Err error
}

// DaemonEventMsg wraps a streamed event from the daemon.
type DaemonEventMsg struct {
	Event daemon.Event
}

// DaemonEventErrorMsg is sent when the event stream encounters an error.
type DaemonEventErrorMsg struct {
	Err error
}

// StatusResponseMsg carries the response to a status command.
type StatusResponseMsg struct {
	Response daemon.Response
}

// DevicesResponseMsg carries the response to a devices command.
type DevicesResponseMsg struct {
	Response daemon.Response
}

// SessionsResponseMsg carries the saved-sessions listing.
type SessionsResponseMsg struct {
	Response daemon.Response
}

// StartResponseMsg carries the response to a start command.
type StartResponseMsg struct {
	Response daemon.Response
}

// StopResponseMsg carries the response to a stop request.
type StopResponseMsg struct {
	Response daemon.Response
}

// ConfirmResponseMsg carries the response to a confirmed stop.
type ConfirmResponseMsg struct {
	Response daemon.Response
}

// CancelResponseMsg carries the response to a canceled stop.
type CancelResponseMsg struct {
	Response daemon.Response
}

// ResolveResponseMsg carries the response to a resume or discard of an
// interrupted recording.
type ResolveResponseMsg struct {
	Response daemon.Response
}

// PostProcessResponseMsg carries the response to a refine or summarize
// command. The result itself arrives later as an event.
type PostProcessResponseMsg struct {
	Response daemon.Response
}

// LoadResponseMsg carries a loaded session's transcript.
type LoadResponseMsg struct {
	Response daemon.Response
}

// ExportResponseMsg carries the path a session was exported to.
type ExportResponseMsg struct {
	Response daemon.Response
}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}

// ReconnectTickMsg triggers a reconnection attempt.
type ReconnectTickMsg struct{}
