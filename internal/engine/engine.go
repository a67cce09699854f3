// Package engine owns the recording pipeline: it drives capture,
// transcription, recovery and persistence, and serves the daemon protocol.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sai-itkc2020/ai-notetaker/internal/capture"
	"github.com/sai-itkc2020/ai-notetaker/internal/daemon"
	"github.com/sai-itkc2020/ai-notetaker/internal/media"
	"github.com/sai-itkc2020/ai-notetaker/internal/recovery"
	"github.com/sai-itkc2020/ai-notetaker/internal/store"
	"github.com/sai-itkc2020/ai-notetaker/internal/transcribe"
	"github.com/sai-itkc2020/ai-notetaker/internal/transcript"
)

var (
	ErrRecoveryPending = errors.New("interrupted recording pending: resume or discard it first")
	ErrProcessing      = errors.New("busy processing a transcript")
	ErrNoSession       = errors.New("no session loaded")
	ErrEmptyTranscript = errors.New("transcript is empty")
)

// Refiner is the transcript post-processing capability the engine calls.
type Refiner interface {
	Refine(ctx context.Context, transcript, notes string) (string, error)
	Summarize(ctx context.Context, transcript, notes string) (string, error)
	Model() string
}

// Deps are the collaborators an Engine is composed from.
type Deps struct {
	Store      *store.Store
	Capture    *capture.Session
	Dispatcher *transcribe.Dispatcher
	Assembler  *transcript.Assembler
	Recovery   *recovery.Coordinator
	Refiner    Refiner
	Logger     *zap.SugaredLogger
}

// Engine is the single owner of session state. All mutations go through
// Execute; subscribers observe them as events.
type Engine struct {
	store      *store.Store
	capture    *capture.Session
	dispatcher *transcribe.Dispatcher
	assembler  *transcript.Assembler
	recovery   *recovery.Coordinator
	refiner    Refiner
	logger     *zap.SugaredLogger

	// opMu serializes Execute so concurrent clients cannot interleave
	// state transitions; background work never holds it.
	opMu sync.Mutex

	mu            sync.Mutex
	sessionID     string
	title         string
	device        string
	startedAt     time.Time
	streaming     bool
	processing    bool
	seq           int
	fragments     []media.Fragment
	storageWarned bool
	streamPoke    chan struct{}
	streamCancel  context.CancelFunc
	streamDone    chan struct{}

	subMu   sync.Mutex
	subs    map[int]chan daemon.Event
	nextSub int
}

func New(d Deps) *Engine {
	return &Engine{
		store:      d.Store,
		capture:    d.Capture,
		dispatcher: d.Dispatcher,
		assembler:  d.Assembler,
		recovery:   d.Recovery,
		refiner:    d.Refiner,
		logger:     d.Logger,
		subs:       make(map[int]chan daemon.Event),
	}
}

// Subscribe registers an event stream. The channel is seeded with the
// current status (and a recovery offer, when one is pending) so new
// subscribers render correct state immediately.
func (e *Engine) Subscribe() (<-chan daemon.Event, func()) {
	ch := make(chan daemon.Event, 64)

	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subMu.Unlock()

	ch <- e.statusEvent()
	if offer := e.recovery.Pending(); offer != nil {
		ch <- recoveryEvent(offer)
	}

	cancel := func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if sub, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// broadcast delivers an event to every subscriber without blocking the
// pipeline; a subscriber that cannot keep up loses events.
func (e *Engine) broadcast(ev daemon.Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for id, sub := range e.subs {
		select {
		case sub <- ev:
		default:
			e.logger.Warnw("subscriber lagging, event dropped", "subscriber", id, "event", ev.Event)
		}
	}
}

func (e *Engine) statusEvent() daemon.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return daemon.Event{
		Event:      "status",
		State:      string(e.capture.State()),
		Device:     e.device,
		Processing: daemon.BoolPtr(e.processing),
		SessionID:  e.sessionID,
		Title:      e.title,
	}
}

func recoveryEvent(offer *recovery.Offer) daemon.Event {
	return daemon.Event{
		Event:     "recovery",
		SessionID: offer.SessionID,
		Chunks:    daemon.IntPtr(offer.Chunks),
		Seconds:   daemon.FloatPtr(offer.Seconds),
	}
}

func (e *Engine) emitStatus() {
	e.broadcast(e.statusEvent())
}

func (e *Engine) emitError(kind string, transient bool, err error) {
	e.broadcast(daemon.Event{
		Event:     "error",
		Message:   err.Error(),
		Kind:      kind,
		Transient: daemon.BoolPtr(transient),
	})
}

func (e *Engine) setProcessing(on bool) {
	e.mu.Lock()
	e.processing = on
	e.mu.Unlock()
	e.emitStatus()
}

// makeSink builds the per-session fragment sink: append to the durable
// chunk log first, then buffer in memory and poke the streaming worker.
// A failing log degrades to memory-only capture rather than stopping the
// recording.
func (e *Engine) makeSink(sessionID string) capture.FragmentSink {
	return func(frag media.Fragment) {
		if err := e.store.AppendChunk(sessionID, frag.MIME, frag.Data); err != nil {
			e.mu.Lock()
			warned := e.storageWarned
			e.storageWarned = true
			e.mu.Unlock()
			if !warned {
				e.logger.Warnw("chunk log unavailable, capture continues in memory", "error", err)
				e.emitError("storage", true, err)
			}
		}

		e.mu.Lock()
		e.fragments = append(e.fragments, frag)
		poke := e.streamPoke
		e.mu.Unlock()

		if poke != nil {
			select {
			case poke <- struct{}{}:
			default:
			}
		}
	}
}

// captureFailed handles a device dying mid-recording: back to idle, and the
// chunks already written become a recovery offer so nothing is lost.
func (e *Engine) captureFailed(err error) {
	e.mu.Lock()
	done := e.stopStreamingLocked()
	e.fragments = nil
	e.mu.Unlock()
	if done != nil {
		<-done
	}

	e.logger.Errorw("recording interrupted by device failure", "error", err)
	e.emitError("device", false, err)
	e.emitStatus()

	offer, derr := e.recovery.Detect()
	if derr != nil {
		e.logger.Warnw("recovery detection failed", "error", derr)
		return
	}
	if offer != nil {
		e.broadcast(recoveryEvent(offer))
	}
}

// startStreaming launches the live-transcription worker for the session.
func (e *Engine) startStreaming(sessionID string) {
	ctx, cancel := context.WithCancel(context.Background())
	poke := make(chan struct{}, 1)
	done := make(chan struct{})

	e.mu.Lock()
	e.streamPoke = poke
	e.streamCancel = cancel
	e.streamDone = done
	e.mu.Unlock()

	go func() {
		defer close(done)
		e.streamLoop(ctx, sessionID, poke)
	}()
}

// stopStreamingLocked cancels the live worker and returns a channel that
// closes once it has fully exited. Caller holds e.mu.
func (e *Engine) stopStreamingLocked() <-chan struct{} {
	done := e.streamDone
	if e.streamCancel != nil {
		e.streamCancel()
	}
	e.streamCancel = nil
	e.streamPoke = nil
	e.streamDone = nil
	return done
}

// streamLoop re-transcribes the whole accumulated audio after each new
// fragment and appends whatever text extends the previous pass. Failures
// are transient: the dispatcher keeps its last good state, so the next
// fragment retries the same span.
func (e *Engine) streamLoop(ctx context.Context, sessionID string, poke <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-poke:
		}

		e.mu.Lock()
		fragments := make([]media.Fragment, len(e.fragments))
		copy(fragments, e.fragments)
		e.mu.Unlock()

		whole, err := media.Concat(fragments)
		if err != nil {
			e.logger.Warnw("live pass skipped", "error", err)
			continue
		}

		entry, err := e.dispatcher.TranscribeWhole(ctx, whole)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Warnw("live transcription failed, will retry next fragment", "error", err)
			continue
		}
		// A pass that finished after shutdown must not touch the
		// transcript the final pass is about to rebuild.
		if ctx.Err() != nil {
			return
		}
		if entry == nil {
			continue
		}

		e.assembler.Append(*entry)
		e.mu.Lock()
		seq := e.seq
		e.seq++
		e.mu.Unlock()

		e.broadcast(daemon.Event{
			Event:          "entry",
			SessionID:      sessionID,
			Text:           entry.Text,
			Time:           daemon.FloatPtr(entry.Time),
			SequenceNumber: daemon.IntPtr(seq),
		})
	}
}

// finalize runs the windowed transcription over the full session audio,
// replaces any provisional live entries with the result, persists the
// session and clears the chunk log. Runs in the background after a
// confirmed stop, a file import, or a resumed recovery.
func (e *Engine) finalize(sessionID, title, device string, startedAt time.Time, status string, fragments []media.Fragment) {
	defer e.setProcessing(false)

	var entries []transcript.Entry
	if len(fragments) > 0 {
		whole, err := media.Concat(fragments)
		if err != nil {
			e.logger.Errorw("session audio unreadable", "session", sessionID, "error", err)
			e.emitError("service", false, err)
			return
		}
		entries, err = e.dispatcher.TranscribeChunked(context.Background(), whole)
		if err != nil {
			// Only cancellation lands here; keep whatever was transcribed.
			e.logger.Warnw("transcription cut short", "session", sessionID, "error", err)
		}
	}

	e.assembler.Reset()
	e.assembler.Append(entries...)
	e.mu.Lock()
	e.seq = len(entries)
	e.mu.Unlock()

	e.broadcast(daemon.Event{
		Event:     "transcript",
		SessionID: sessionID,
		Entries:   wireEntries(entries),
	})

	endedAt := time.Now()
	sess := store.Session{
		ID:        sessionID,
		Title:     title,
		Device:    device,
		StartedAt: startedAt,
		EndedAt:   &endedAt,
		Status:    status,
	}
	if err := e.store.SaveSession(sess, storeEntries(sessionID, entries)); err != nil {
		// The transcript stays in memory; the chunk log is kept so the
		// audio can still be recovered after a restart.
		e.logger.Errorw("session not persisted", "session", sessionID, "error", err)
		e.emitError("storage", false, err)
		return
	}
	if err := e.store.ClearChunks(); err != nil {
		e.logger.Warnw("chunk log not cleared", "error", err)
	}

	e.logger.Infow("session saved", "session", sessionID, "entries", len(entries), "status", status)
	e.broadcast(daemon.Event{Event: "saved", SessionID: sessionID, Title: title})
}

func storeEntries(sessionID string, entries []transcript.Entry) []store.Entry {
	out := make([]store.Entry, 0, len(entries))
	for i, en := range entries {
		out = append(out, store.Entry{
			SessionID:      sessionID,
			StartTime:      en.Time,
			Text:           en.Text,
			SequenceNumber: i,
		})
	}
	return out
}

func wireEntries(entries []transcript.Entry) []daemon.Entry {
	out := make([]daemon.Entry, 0, len(entries))
	for _, en := range entries {
		out = append(out, daemon.Entry{Time: en.Time, Text: en.Text})
	}
	return out
}

func fromStoreEntries(entries []store.Entry) []transcript.Entry {
	out := make([]transcript.Entry, 0, len(entries))
	for _, en := range entries {
		out = append(out, transcript.Entry{Time: en.StartTime, Text: en.Text})
	}
	return out
}
