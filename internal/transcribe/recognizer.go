// Package transcribe turns captured audio into transcript entries by
// dispatching it to an external speech recognition service.
package transcribe

import "context"

// Placeholder entries stand in for windows that produced no usable text, so
// the transcript keeps one entry per window and timing stays aligned.
const (
	SilencePlaceholder = "(no speech detected)"
	FailurePlaceholder = "(transcription unavailable)"
)

// Recognizer transcribes a single piece of audio. An empty result is not an
// error; it means the service heard no speech.
type Recognizer interface {
	Recognize(ctx context.Context, audio []byte, mime string) (string, error)
}
