package transcribe

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sai-itkc2020/ai-notetaker/internal/media"
	"github.com/sai-itkc2020/ai-notetaker/internal/transcript"
)

// Dispatcher feeds audio to a Recognizer in the two modes the pipeline
// needs: fixed windows for completed recordings, and whole-audio passes for
// live increments. It carries the per-session delta state for whole mode;
// Reset must be called when a new session begins.
type Dispatcher struct {
	rec    Recognizer
	window time.Duration
	pacing time.Duration
	logger *zap.SugaredLogger

	mu         sync.Mutex
	lastFull   string  // full transcript text from the last whole-mode pass
	coveredSec float64 // audio duration covered by lastFull
}

// NewDispatcher creates a dispatcher. window is the chunk length for
// completed recordings; pacing is the delay between consecutive service
// calls.
func NewDispatcher(rec Recognizer, window, pacing time.Duration, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{rec: rec, window: window, pacing: pacing, logger: logger}
}

// Reset clears the whole-mode delta state for a fresh session.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastFull = ""
	d.coveredSec = 0
}

// TranscribeChunked splits the audio into contiguous windows and transcribes
// them strictly one at a time, waiting the pacing delay between calls. Every
// window yields exactly one entry: recognized text, a silence placeholder, or
// a failure placeholder. A failed window never aborts the remaining ones; the
// only error returned is context cancellation.
func (d *Dispatcher) TranscribeChunked(ctx context.Context, audio []byte) ([]transcript.Entry, error) {
	windows, err := media.SplitByDuration(audio, d.window)
	if err != nil {
		return nil, err
	}

	entries := make([]transcript.Entry, 0, len(windows))
	for i, w := range windows {
		if i > 0 && d.pacing > 0 {
			select {
			case <-time.After(d.pacing):
			case <-ctx.Done():
				return entries, ctx.Err()
			}
		}
		if ctx.Err() != nil {
			return entries, ctx.Err()
		}

		text, err := d.rec.Recognize(ctx, w.WAV, media.MIMEWav)
		switch {
		case ctx.Err() != nil:
			return entries, ctx.Err()
		case err != nil:
			d.logger.Warnw("window transcription failed", "window", i, "offset", w.Offset, "error", err)
			entries = append(entries, transcript.Entry{Time: w.Offset, Text: FailurePlaceholder})
		case strings.TrimSpace(text) == "":
			entries = append(entries, transcript.Entry{Time: w.Offset, Text: SilencePlaceholder})
		default:
			entries = append(entries, transcript.Entry{Time: w.Offset, Text: strings.TrimSpace(text)})
		}
	}
	return entries, nil
}

// TranscribeWhole transcribes the full accumulated session audio and returns
// an entry for the text beyond what the previous pass already produced, or
// nil when nothing new was recognized. The entry is stamped with the offset
// where the previous pass left off. Errors leave the delta state untouched,
// so the next pass recovers the missed text.
func (d *Dispatcher) TranscribeWhole(ctx context.Context, audio []byte) (*transcript.Entry, error) {
	d.mu.Lock()
	offset := d.coveredSec
	last := d.lastFull
	d.mu.Unlock()

	text, err := d.rec.Recognize(ctx, audio, media.MIMEWav)
	if err != nil {
		return nil, err
	}

	full := strings.TrimSpace(text)
	var entry *transcript.Entry
	if len(full) > len(last) {
		delta := strings.TrimSpace(full[len(last):])
		if delta != "" {
			entry = &transcript.Entry{Time: offset, Text: delta}
		}
	}

	d.mu.Lock()
	d.lastFull = full
	d.coveredSec = media.DurationSeconds(audio)
	d.mu.Unlock()

	return entry, nil
}
