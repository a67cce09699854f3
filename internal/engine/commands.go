package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sai-itkc2020/ai-notetaker/internal/capture"
	"github.com/sai-itkc2020/ai-notetaker/internal/daemon"
	"github.com/sai-itkc2020/ai-notetaker/internal/export"
	"github.com/sai-itkc2020/ai-notetaker/internal/media"
	"github.com/sai-itkc2020/ai-notetaker/internal/store"
)

// Execute handles one protocol command. Commands are serialized; anything
// slow (transcription, refinement) is handed to a background goroutine and
// reported through events.
func (e *Engine) Execute(ctx context.Context, cmd daemon.Command) daemon.Response {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	switch cmd.Cmd {
	case "start":
		return e.handleStart(ctx, cmd)
	case "stop":
		return e.handleStop()
	case "confirm":
		return e.handleConfirm()
	case "cancel":
		return e.handleCancel()
	case "status":
		return e.handleStatus()
	case "devices":
		return e.handleDevices(ctx)
	case "transcribeFile":
		return e.handleTranscribeFile(cmd)
	case "resume":
		return e.handleResume()
	case "discard":
		return e.handleDiscard()
	case "refine":
		return e.handleRefine(cmd)
	case "summarize":
		return e.handleSummarize(cmd)
	case "load":
		return e.handleLoad(cmd)
	case "sessions":
		return e.handleSessions()
	case "transcript":
		return e.handleTranscript(cmd)
	case "export":
		return e.handleExport(cmd)
	default:
		return fail(fmt.Errorf("unknown command %q", cmd.Cmd))
	}
}

func fail(err error) daemon.Response {
	return daemon.Response{Error: err.Error()}
}

func (e *Engine) handleStart(ctx context.Context, cmd daemon.Command) daemon.Response {
	if e.recovery.Pending() != nil {
		return fail(ErrRecoveryPending)
	}
	if e.capture.State() != capture.StateIdle {
		return fail(capture.ErrBusy)
	}

	e.mu.Lock()
	if e.processing {
		e.mu.Unlock()
		return fail(ErrProcessing)
	}
	sessionID := uuid.NewString()
	startedAt := time.Now()
	streaming := cmd.Streaming != nil && *cmd.Streaming
	e.sessionID = sessionID
	e.title = "Meeting " + startedAt.Format("2006-01-02 15:04")
	e.device = cmd.Device
	e.startedAt = startedAt
	e.streaming = streaming
	e.seq = 0
	e.fragments = nil
	e.storageWarned = false
	e.mu.Unlock()

	e.assembler.Reset()
	e.dispatcher.Reset()
	// A resumed session whose clear failed may have left stale chunks.
	if err := e.store.ClearChunks(); err != nil {
		e.logger.Warnw("stale chunk log not cleared", "error", err)
	}

	if err := e.capture.Start(ctx, cmd.Device, e.makeSink(sessionID), e.captureFailed); err != nil {
		e.mu.Lock()
		e.sessionID, e.title, e.device = "", "", ""
		e.streaming = false
		e.mu.Unlock()
		return fail(err)
	}

	if streaming {
		e.startStreaming(sessionID)
	}

	e.logger.Infow("recording started", "session", sessionID, "device", cmd.Device, "streaming", streaming)
	e.emitStatus()
	return daemon.Response{
		OK:        true,
		SessionID: sessionID,
		State:     string(capture.StateRecording),
		Streaming: daemon.BoolPtr(streaming),
	}
}

func (e *Engine) handleStop() daemon.Response {
	if err := e.capture.RequestStop(); err != nil {
		return fail(err)
	}
	e.emitStatus()
	return daemon.Response{OK: true, State: string(capture.StateStopping)}
}

func (e *Engine) handleCancel() daemon.Response {
	if err := e.capture.CancelStop(); err != nil {
		return fail(err)
	}
	e.logger.Infow("stop canceled, recording continues")
	e.emitStatus()
	return daemon.Response{OK: true, State: string(capture.StateRecording)}
}

func (e *Engine) handleConfirm() daemon.Response {
	fragments, err := e.capture.ConfirmStop()
	if err != nil {
		return fail(err)
	}

	e.mu.Lock()
	done := e.stopStreamingLocked()
	sessionID, title, device, startedAt := e.sessionID, e.title, e.device, e.startedAt
	e.fragments = nil
	e.processing = true
	e.mu.Unlock()
	e.emitStatus()

	go func() {
		// Let any in-flight live pass drain before the final one rebuilds
		// the transcript.
		if done != nil {
			<-done
		}
		e.finalize(sessionID, title, device, startedAt, "completed", fragments)
	}()

	return daemon.Response{
		OK:         true,
		SessionID:  sessionID,
		State:      string(capture.StateIdle),
		Processing: daemon.BoolPtr(true),
	}
}

func (e *Engine) handleStatus() daemon.Response {
	e.mu.Lock()
	resp := daemon.Response{
		OK:              true,
		State:           string(e.capture.State()),
		Device:          e.device,
		SessionID:       e.sessionID,
		Title:           e.title,
		Streaming:       daemon.BoolPtr(e.streaming),
		Processing:      daemon.BoolPtr(e.processing),
		PendingRecovery: daemon.BoolPtr(e.recovery.Pending() != nil),
	}
	e.mu.Unlock()

	if count, err := e.store.ChunkCount(); err == nil {
		resp.ChunkCount = daemon.IntPtr(count)
	}
	return resp
}

func (e *Engine) handleDevices(ctx context.Context) daemon.Response {
	devices, err := e.capture.Devices(ctx)
	if err != nil {
		return fail(err)
	}
	return daemon.Response{OK: true, Devices: devices}
}

func (e *Engine) handleTranscribeFile(cmd daemon.Command) daemon.Response {
	if cmd.Path == "" {
		return fail(fmt.Errorf("transcribeFile: path required"))
	}
	if e.recovery.Pending() != nil {
		return fail(ErrRecoveryPending)
	}
	if e.capture.State() != capture.StateIdle {
		return fail(capture.ErrBusy)
	}

	e.mu.Lock()
	if e.processing {
		e.mu.Unlock()
		return fail(ErrProcessing)
	}
	sessionID := uuid.NewString()
	startedAt := time.Now()
	e.sessionID = sessionID
	e.title = "Import " + filepath.Base(cmd.Path)
	e.device = ""
	e.startedAt = startedAt
	e.streaming = false
	e.seq = 0
	e.fragments = nil
	e.processing = true
	title := e.title
	e.mu.Unlock()

	e.assembler.Reset()
	e.dispatcher.Reset()
	e.emitStatus()

	path := cmd.Path
	go func() {
		wav, err := media.TranscodeToWAV(context.Background(), path)
		if err != nil {
			e.logger.Errorw("import failed", "path", path, "error", err)
			e.emitError("service", false, err)
			e.setProcessing(false)
			return
		}
		e.finalize(sessionID, title, "", startedAt, "imported",
			[]media.Fragment{{Data: wav, MIME: media.MIMEWav}})
	}()

	return daemon.Response{OK: true, SessionID: sessionID, Processing: daemon.BoolPtr(true)}
}

func (e *Engine) handleResume() daemon.Response {
	if e.capture.State() != capture.StateIdle {
		return fail(capture.ErrBusy)
	}
	e.mu.Lock()
	if e.processing {
		e.mu.Unlock()
		return fail(ErrProcessing)
	}
	e.mu.Unlock()

	fragments, offer, err := e.recovery.Resume()
	if err != nil {
		return fail(err)
	}

	sessionID := offer.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	startedAt := offer.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	title := "Recovered " + startedAt.Format("2006-01-02 15:04")

	e.mu.Lock()
	e.sessionID = sessionID
	e.title = title
	e.device = ""
	e.startedAt = startedAt
	e.streaming = false
	e.seq = 0
	e.fragments = nil
	e.processing = true
	e.mu.Unlock()

	e.assembler.Reset()
	e.dispatcher.Reset()
	// The offer is resolved either way; tell subscribers to drop the prompt.
	e.broadcast(daemon.Event{Event: "recovery", Chunks: daemon.IntPtr(0)})
	e.emitStatus()

	go e.finalize(sessionID, title, "", startedAt, "recovered", fragments)

	return daemon.Response{OK: true, SessionID: sessionID, Processing: daemon.BoolPtr(true)}
}

func (e *Engine) handleDiscard() daemon.Response {
	if err := e.recovery.Discard(); err != nil {
		return fail(err)
	}
	e.broadcast(daemon.Event{Event: "recovery", Chunks: daemon.IntPtr(0)})
	return daemon.Response{OK: true}
}

func (e *Engine) handleRefine(cmd daemon.Command) daemon.Response {
	sessionID, err := e.beginPostProcess()
	if err != nil {
		return fail(err)
	}

	text := e.assembler.Text()
	notes := cmd.Notes
	go func() {
		defer e.setProcessing(false)
		refined, err := e.refiner.Refine(context.Background(), text, notes)
		if err != nil {
			e.logger.Warnw("refinement failed, transcript unchanged", "session", sessionID, "error", err)
			e.emitError("service", true, err)
			return
		}

		entries := e.assembler.ReplaceAll(refined)
		if err := e.store.ReplaceEntries(sessionID, storeEntries(sessionID, entries)); err != nil {
			// The refined text still lives in memory and on the wire.
			e.logger.Errorw("refined transcript not persisted", "session", sessionID, "error", err)
			e.emitError("storage", false, err)
		}
		e.broadcast(daemon.Event{
			Event:     "transcript",
			SessionID: sessionID,
			Entries:   wireEntries(entries),
		})
		e.logger.Infow("transcript refined", "session", sessionID, "entries", len(entries))
	}()

	return daemon.Response{OK: true, SessionID: sessionID, Processing: daemon.BoolPtr(true)}
}

func (e *Engine) handleSummarize(cmd daemon.Command) daemon.Response {
	sessionID, err := e.beginPostProcess()
	if err != nil {
		return fail(err)
	}

	text := e.assembler.Text()
	notes := cmd.Notes
	go func() {
		defer e.setProcessing(false)
		content, err := e.refiner.Summarize(context.Background(), text, notes)
		if err != nil {
			e.logger.Warnw("summarization failed", "session", sessionID, "error", err)
			e.emitError("service", true, err)
			return
		}

		sum := store.Summary{
			ID:          uuid.NewString(),
			SessionID:   sessionID,
			Content:     content,
			SummaryType: "meeting",
			ModelID:     e.refiner.Model(),
		}
		if err := e.store.SaveSummary(sum); err != nil {
			e.logger.Errorw("summary not persisted", "session", sessionID, "error", err)
			e.emitError("storage", false, err)
		}
		e.broadcast(daemon.Event{Event: "summary", SessionID: sessionID, Summary: content})
		e.logger.Infow("summary ready", "session", sessionID)
	}()

	return daemon.Response{OK: true, SessionID: sessionID, Processing: daemon.BoolPtr(true)}
}

// beginPostProcess validates that a loaded transcript can be post-processed
// and flips the processing flag on success.
func (e *Engine) beginPostProcess() (string, error) {
	if e.capture.State() != capture.StateIdle {
		return "", capture.ErrBusy
	}

	e.mu.Lock()
	if e.processing {
		e.mu.Unlock()
		return "", ErrProcessing
	}
	sessionID := e.sessionID
	e.mu.Unlock()

	if sessionID == "" {
		return "", ErrNoSession
	}
	if strings.TrimSpace(e.assembler.Text()) == "" {
		return "", ErrEmptyTranscript
	}

	e.mu.Lock()
	e.processing = true
	e.mu.Unlock()
	e.emitStatus()
	return sessionID, nil
}

func (e *Engine) handleLoad(cmd daemon.Command) daemon.Response {
	if cmd.SessionID == "" {
		return fail(fmt.Errorf("load: sessionId required"))
	}
	if e.capture.State() != capture.StateIdle {
		return fail(capture.ErrBusy)
	}
	e.mu.Lock()
	if e.processing {
		e.mu.Unlock()
		return fail(ErrProcessing)
	}
	e.mu.Unlock()

	sess, err := e.store.SessionByID(cmd.SessionID)
	if err != nil {
		return fail(err)
	}
	if sess == nil {
		return fail(fmt.Errorf("session not found: %s", cmd.SessionID))
	}
	stored, err := e.store.EntriesForSession(sess.ID)
	if err != nil {
		return fail(err)
	}

	entries := fromStoreEntries(stored)
	e.assembler.Reset()
	e.assembler.Append(entries...)

	e.mu.Lock()
	e.sessionID = sess.ID
	e.title = sess.Title
	e.device = sess.Device
	e.startedAt = sess.StartedAt
	e.streaming = false
	e.seq = len(entries)
	e.mu.Unlock()

	e.broadcast(daemon.Event{Event: "transcript", SessionID: sess.ID, Entries: wireEntries(entries)})
	e.emitStatus()

	return daemon.Response{
		OK:        true,
		SessionID: sess.ID,
		Title:     sess.Title,
		Entries:   wireEntries(entries),
	}
}

func (e *Engine) handleSessions() daemon.Response {
	sessions, err := e.store.Sessions()
	if err != nil {
		return fail(err)
	}

	infos := make([]daemon.SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		info := daemon.SessionInfo{
			ID:        sess.ID,
			Title:     sess.Title,
			StartedAt: float64(sess.StartedAt.Unix()),
			Status:    sess.Status,
		}
		if sess.EndedAt != nil {
			info.EndedAt = daemon.FloatPtr(float64(sess.EndedAt.Unix()))
		}
		infos = append(infos, info)
	}
	return daemon.Response{OK: true, Sessions: infos}
}

func (e *Engine) handleTranscript(cmd daemon.Command) daemon.Response {
	e.mu.Lock()
	current := e.sessionID
	e.mu.Unlock()

	id := cmd.SessionID
	if id == "" {
		id = current
	}
	if id == "" {
		return fail(ErrNoSession)
	}

	// The loaded session lives in the assembler, which may be ahead of the
	// store (live entries, unpersisted refinements).
	if id == current {
		entries := e.assembler.Entries()
		out := make([]daemon.Entry, 0, len(entries))
		for _, en := range entries {
			out = append(out, daemon.Entry{Time: en.Time, Text: en.Text})
		}
		return daemon.Response{OK: true, SessionID: id, Entries: out}
	}

	stored, err := e.store.EntriesForSession(id)
	if err != nil {
		return fail(err)
	}
	return daemon.Response{OK: true, SessionID: id, Entries: wireEntries(fromStoreEntries(stored))}
}

func (e *Engine) handleExport(cmd daemon.Command) daemon.Response {
	e.mu.Lock()
	id := cmd.SessionID
	if id == "" {
		id = e.sessionID
	}
	e.mu.Unlock()
	if id == "" {
		return fail(ErrNoSession)
	}

	sess, err := e.store.SessionByID(id)
	if err != nil {
		return fail(err)
	}
	if sess == nil {
		return fail(fmt.Errorf("session not found: %s", id))
	}
	entries, err := e.store.EntriesForSession(id)
	if err != nil {
		return fail(err)
	}
	summaries, err := e.store.SummariesForSession(id)
	if err != nil {
		return fail(err)
	}

	dir := cmd.Path
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(fmt.Errorf("export dir: %w", err))
	}
	path := filepath.Join(dir, export.Filename(*sess))
	doc := export.Render(*sess, entries, summaries)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return fail(fmt.Errorf("write export: %w", err))
	}

	e.logger.Infow("session exported", "session", id, "path", path)
	return daemon.Response{OK: true, SessionID: id, Path: path}
}
