package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sai-itkc2020/ai-notetaker/internal/media"
)

func newTestLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Sync() })
	return logger.Sugar()
}

// stubInput hands out an in-memory pipe so tests can feed samples and
// simulate device failures.
type stubInput struct {
	devices []string
	openErr error
	opens   int
	pw      *io.PipeWriter
}

func (s *stubInput) Devices(ctx context.Context) ([]string, error) {
	return s.devices, nil
}

func (s *stubInput) Open(ctx context.Context, device string) (io.ReadCloser, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.opens++
	pr, pw := io.Pipe()
	s.pw = pw
	return pr, nil
}

func pcmBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func startSession(t *testing.T, input *stubInput, interval time.Duration) (*Session, chan media.Fragment, chan error) {
	t.Helper()
	sess := New(input, interval, newTestLogger(t))
	sinkCh := make(chan media.Fragment, 32)
	failCh := make(chan error, 1)
	err := sess.Start(context.Background(), "default",
		func(f media.Fragment) { sinkCh <- f },
		func(err error) { failCh <- err },
	)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return sess, sinkCh, failCh
}

func waitFragment(t *testing.T, ch chan media.Fragment) media.Fragment {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fragment")
		return media.Fragment{}
	}
}

func TestStartWhileActiveReturnsBusy(t *testing.T) {
	input := &stubInput{}
	sess, _, _ := startSession(t, input, time.Hour)

	err := sess.Start(context.Background(), "default", nil, nil)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("second start: got %v, want ErrBusy", err)
	}
	if input.opens != 1 {
		t.Fatalf("opens = %d, want 1", input.opens)
	}

	// Still busy while a stop is pending.
	if err := sess.RequestStop(); err != nil {
		t.Fatalf("request stop: %v", err)
	}
	if err := sess.Start(context.Background(), "default", nil, nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("start while stopping: got %v, want ErrBusy", err)
	}

	if _, err := sess.ConfirmStop(); err != nil {
		t.Fatalf("confirm stop: %v", err)
	}
}

func TestStopTransitions(t *testing.T) {
	input := &stubInput{}
	sess, _, _ := startSession(t, input, time.Hour)

	if got := sess.State(); got != StateRecording {
		t.Fatalf("state = %q, want %q", got, StateRecording)
	}
	if err := sess.RequestStop(); err != nil {
		t.Fatalf("request stop: %v", err)
	}
	if got := sess.State(); got != StateStopping {
		t.Fatalf("state = %q, want %q", got, StateStopping)
	}

	// A second request has nothing to do.
	if err := sess.RequestStop(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("request while stopping: got %v, want ErrNotRecording", err)
	}

	if err := sess.CancelStop(); err != nil {
		t.Fatalf("cancel stop: %v", err)
	}
	if got := sess.State(); got != StateRecording {
		t.Fatalf("state after cancel = %q, want %q", got, StateRecording)
	}

	if err := sess.RequestStop(); err != nil {
		t.Fatalf("request stop again: %v", err)
	}
	if _, err := sess.ConfirmStop(); err != nil {
		t.Fatalf("confirm stop: %v", err)
	}
	if got := sess.State(); got != StateIdle {
		t.Fatalf("state after confirm = %q, want %q", got, StateIdle)
	}
}

func TestStopRequiresActiveSession(t *testing.T) {
	sess := New(&stubInput{}, time.Hour, newTestLogger(t))

	if err := sess.RequestStop(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("request stop idle: got %v, want ErrNotRecording", err)
	}
	if err := sess.CancelStop(); !errors.Is(err, ErrNotStopping) {
		t.Fatalf("cancel stop idle: got %v, want ErrNotStopping", err)
	}
	if _, err := sess.ConfirmStop(); !errors.Is(err, ErrNotStopping) {
		t.Fatalf("confirm stop idle: got %v, want ErrNotStopping", err)
	}
}

func TestFragmentsCutOnInterval(t *testing.T) {
	input := &stubInput{}
	sess, sinkCh, _ := startSession(t, input, 20*time.Millisecond)

	want := pcmBytes(3200)
	if _, err := input.pw.Write(want); err != nil {
		t.Fatalf("write samples: %v", err)
	}

	frag := waitFragment(t, sinkCh)
	if frag.MIME != media.MIMEWav {
		t.Fatalf("mime = %q, want %q", frag.MIME, media.MIMEWav)
	}
	pcm, err := media.PCM(frag.Data)
	if err != nil {
		t.Fatalf("extract samples: %v", err)
	}
	if !bytes.Equal(pcm, want) {
		t.Fatalf("fragment carries %d bytes, want %d", len(pcm), len(want))
	}

	if err := sess.RequestStop(); err != nil {
		t.Fatalf("request stop: %v", err)
	}
	if _, err := sess.ConfirmStop(); err != nil {
		t.Fatalf("confirm stop: %v", err)
	}
}

func TestConfirmStopFlushesRemainder(t *testing.T) {
	input := &stubInput{}
	// Interval far in the future: only the confirm can cut a fragment.
	sess, sinkCh, _ := startSession(t, input, time.Hour)

	first := pcmBytes(1600)
	second := pcmBytes(800)
	if _, err := input.pw.Write(first); err != nil {
		t.Fatalf("write first: %v", err)
	}
	if err := sess.RequestStop(); err != nil {
		t.Fatalf("request stop: %v", err)
	}
	if _, err := input.pw.Write(second); err != nil {
		t.Fatalf("write second: %v", err)
	}
	// Pipe writes return once read; give the reader a beat to buffer them.
	time.Sleep(50 * time.Millisecond)

	fragments, err := sess.ConfirmStop()
	if err != nil {
		t.Fatalf("confirm stop: %v", err)
	}
	if len(fragments) != 1 {
		t.Fatalf("fragments = %d, want 1", len(fragments))
	}

	// The final partial also went through the sink.
	frag := waitFragment(t, sinkCh)
	pcm, err := media.PCM(frag.Data)
	if err != nil {
		t.Fatalf("extract samples: %v", err)
	}
	total := len(first) + len(second)
	if len(pcm) != total {
		t.Fatalf("recovered %d sample bytes, want %d", len(pcm), total)
	}
}

func TestCaptureContinuesWhileStopping(t *testing.T) {
	input := &stubInput{}
	sess, sinkCh, _ := startSession(t, input, 20*time.Millisecond)

	if err := sess.RequestStop(); err != nil {
		t.Fatalf("request stop: %v", err)
	}
	if _, err := input.pw.Write(pcmBytes(1600)); err != nil {
		t.Fatalf("write while stopping: %v", err)
	}

	// The ticker keeps cutting fragments while the stop is pending.
	waitFragment(t, sinkCh)

	if err := sess.CancelStop(); err != nil {
		t.Fatalf("cancel stop: %v", err)
	}
	if _, err := input.pw.Write(pcmBytes(1600)); err != nil {
		t.Fatalf("write after cancel: %v", err)
	}
	waitFragment(t, sinkCh)

	if err := sess.RequestStop(); err != nil {
		t.Fatalf("request stop: %v", err)
	}
	if _, err := sess.ConfirmStop(); err != nil {
		t.Fatalf("confirm stop: %v", err)
	}
}

func TestDeviceFailureReturnsToIdle(t *testing.T) {
	input := &stubInput{}
	sess, sinkCh, failCh := startSession(t, input, time.Hour)

	if _, err := input.pw.Write(pcmBytes(1600)); err != nil {
		t.Fatalf("write samples: %v", err)
	}
	input.pw.CloseWithError(fmt.Errorf("device unplugged"))

	select {
	case err := <-failCh:
		if err == nil {
			t.Fatal("failure callback got nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for failure callback")
	}

	if got := sess.State(); got != StateIdle {
		t.Fatalf("state after failure = %q, want %q", got, StateIdle)
	}

	// The buffered samples were still flushed for later recovery.
	frag := waitFragment(t, sinkCh)
	pcm, err := media.PCM(frag.Data)
	if err != nil {
		t.Fatalf("extract samples: %v", err)
	}
	if len(pcm) != 1600 {
		t.Fatalf("flushed %d sample bytes, want 1600", len(pcm))
	}

	// A fresh capture can start again.
	if err := sess.Start(context.Background(), "default", func(media.Fragment) {}, nil); err != nil {
		t.Fatalf("restart after failure: %v", err)
	}
	if err := sess.RequestStop(); err != nil {
		t.Fatalf("request stop: %v", err)
	}
	if _, err := sess.ConfirmStop(); err != nil {
		t.Fatalf("confirm stop: %v", err)
	}
}

func TestOpenFailureLeavesIdle(t *testing.T) {
	input := &stubInput{openErr: fmt.Errorf("no such device")}
	sess := New(input, time.Hour, newTestLogger(t))

	err := sess.Start(context.Background(), "bogus", nil, nil)
	if err == nil {
		t.Fatal("expected open error")
	}
	if got := sess.State(); got != StateIdle {
		t.Fatalf("state = %q, want %q", got, StateIdle)
	}

	input.openErr = nil
	if err := sess.Start(context.Background(), "default", func(media.Fragment) {}, nil); err != nil {
		t.Fatalf("start after failed open: %v", err)
	}
}

func TestDevicesPassthrough(t *testing.T) {
	input := &stubInput{devices: []string{"mic0", "monitor"}}
	sess := New(input, time.Hour, newTestLogger(t))

	devices, err := sess.Devices(context.Background())
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	if len(devices) != 2 || devices[0] != "mic0" {
		t.Fatalf("devices = %v, want [mic0 monitor]", devices)
	}
}
