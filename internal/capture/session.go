package capture

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sai-itkc2020/ai-notetaker/internal/media"
)

// State is the capture lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	// StateStopping means a stop was requested but not yet confirmed.
	// Audio keeps flowing until ConfirmStop.
	StateStopping State = "stopping"
)

var (
	ErrBusy              = errors.New("capture already in progress")
	ErrNotRecording      = errors.New("not recording")
	ErrNotStopping       = errors.New("no stop pending")
	ErrDeviceUnavailable = errors.New("capture device unavailable")
)

// FragmentSink receives each completed audio fragment as it is cut.
type FragmentSink func(media.Fragment)

// Session manages a single audio capture at a time. Samples are read off
// the input continuously and cut into WAV fragments on a fixed interval so
// that at most one interval of audio is lost on a crash.
type Session struct {
	input    Input
	interval time.Duration
	logger   *zap.SugaredLogger

	mu        sync.Mutex
	state     State
	device    string
	reader    io.ReadCloser
	cancel    context.CancelFunc
	pending   []byte
	fragments []media.Fragment
	sink      FragmentSink
	onFailure func(error)
	gen       int
}

// New creates a capture session over the given input. interval controls how
// often buffered samples are cut into a fragment.
func New(input Input, interval time.Duration, logger *zap.SugaredLogger) *Session {
	return &Session{
		input:    input,
		interval: interval,
		logger:   logger,
		state:    StateIdle,
	}
}

// Devices lists the capture devices of the underlying input.
func (s *Session) Devices(ctx context.Context) ([]string, error) {
	return s.input.Devices(ctx)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Device returns the device of the active capture, or "" when idle.
func (s *Session) Device() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// Start opens the device and begins capturing. Fragments are delivered to
// sink as they are cut; onFailure is called once if the device fails
// mid-capture, after the session has returned to idle. Returns ErrBusy when
// a capture is already running.
func (s *Session) Start(ctx context.Context, device string, sink FragmentSink, onFailure func(error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrBusy
	}
	s.state = StateRecording
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	// The capture outlives the Start call, so the run context is detached
	// from the request context.
	runCtx, cancel := context.WithCancel(context.Background())
	reader, err := s.input.Open(runCtx, device)
	if err != nil {
		cancel()
		s.mu.Lock()
		if s.gen == gen {
			s.state = StateIdle
		}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.device = device
	s.reader = reader
	s.cancel = cancel
	s.pending = nil
	s.fragments = nil
	s.sink = sink
	s.onFailure = onFailure
	s.mu.Unlock()

	go s.readLoop(gen, reader)
	go s.tickLoop(gen, runCtx)
	return nil
}

// RequestStop moves a recording session to stopping. Capture continues until
// the stop is confirmed or canceled.
func (s *Session) RequestStop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording {
		return ErrNotRecording
	}
	s.state = StateStopping
	return nil
}

// CancelStop abandons a pending stop and resumes plain recording. No audio
// was lost while the stop was pending.
func (s *Session) CancelStop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopping {
		return ErrNotStopping
	}
	s.state = StateRecording
	return nil
}

// ConfirmStop halts the capture and returns every fragment cut during the
// session, including a final partial one for samples buffered since the
// last tick.
func (s *Session) ConfirmStop() ([]media.Fragment, error) {
	s.mu.Lock()
	if s.state != StateStopping {
		s.mu.Unlock()
		return nil, ErrNotStopping
	}
	frag, sink := s.cutLocked()
	fragments := s.fragments
	reader := s.reader
	cancel := s.cancel
	s.state = StateIdle
	s.device = ""
	s.reader = nil
	s.cancel = nil
	s.fragments = nil
	s.sink = nil
	s.onFailure = nil
	s.mu.Unlock()

	if sink != nil {
		sink(frag)
	}
	cancel()
	_ = reader.Close()

	s.logger.Infow("capture stopped", "fragments", len(fragments))
	return fragments, nil
}

// readLoop drains the device stream into the pending buffer.
func (s *Session) readLoop(gen int, reader io.ReadCloser) {
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			s.mu.Lock()
			if s.gen != gen || s.state == StateIdle {
				s.mu.Unlock()
				return
			}
			s.pending = append(s.pending, buf[:n]...)
			s.mu.Unlock()
		}
		if err != nil {
			s.fail(gen, err)
			return
		}
	}
}

// tickLoop cuts the pending buffer into a fragment every interval.
func (s *Session) tickLoop(gen int, ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.gen != gen || s.state == StateIdle {
				s.mu.Unlock()
				return
			}
			frag, sink := s.cutLocked()
			s.mu.Unlock()
			if sink != nil {
				sink(frag)
			}
		}
	}
}

// cutLocked wraps the pending samples into a fragment and records it.
// Returns a nil sink when there was nothing to cut. Caller holds s.mu.
func (s *Session) cutLocked() (media.Fragment, FragmentSink) {
	if len(s.pending) == 0 {
		return media.Fragment{}, nil
	}
	frag := media.Fragment{Data: media.WrapPCM(s.pending), MIME: media.MIMEWav}
	s.pending = nil
	s.fragments = append(s.fragments, frag)
	return frag, s.sink
}

// fail tears the session down after a device error. The fragments cut so
// far have already been delivered to the sink, so a later recovery can
// still pick them up.
func (s *Session) fail(gen int, err error) {
	s.mu.Lock()
	if s.gen != gen || s.state == StateIdle {
		// Normal shutdown: ConfirmStop closed the reader under us.
		s.mu.Unlock()
		return
	}
	frag, sink := s.cutLocked()
	onFailure := s.onFailure
	cancel := s.cancel
	reader := s.reader
	s.state = StateIdle
	s.device = ""
	s.reader = nil
	s.cancel = nil
	s.fragments = nil
	s.sink = nil
	s.onFailure = nil
	s.mu.Unlock()

	if sink != nil {
		sink(frag)
	}
	if cancel != nil {
		cancel()
	}
	if reader != nil {
		_ = reader.Close()
	}

	s.logger.Errorw("capture device failed", "error", err)
	if onFailure != nil {
		onFailure(err)
	}
}
