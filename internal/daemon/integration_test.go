package daemon_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sai-itkc2020/ai-notetaker/internal/capture"
	"github.com/sai-itkc2020/ai-notetaker/internal/daemon"
	"github.com/sai-itkc2020/ai-notetaker/internal/engine"
	"github.com/sai-itkc2020/ai-notetaker/internal/media"
	"github.com/sai-itkc2020/ai-notetaker/internal/recovery"
	"github.com/sai-itkc2020/ai-notetaker/internal/store"
	"github.com/sai-itkc2020/ai-notetaker/internal/transcribe"
	"github.com/sai-itkc2020/ai-notetaker/internal/transcript"
)

// These tests run the real engine behind the real server over a throwaway
// socket, with only the microphone and the model calls stubbed out. They
// exercise the same path the TUI uses: commands on one connection, events
// on another.

type stubInput struct {
	pw *io.PipeWriter
}

func (s *stubInput) Devices(ctx context.Context) ([]string, error) {
	return []string{"default"}, nil
}

func (s *stubInput) Open(ctx context.Context, device string) (io.ReadCloser, error) {
	pr, pw := io.Pipe()
	s.pw = pw
	return pr, nil
}

type stubRecognizer struct {
	mu    sync.Mutex
	texts []string
	calls int
}

func (s *stubRecognizer) Recognize(ctx context.Context, audio []byte, mime string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.calls
	s.calls++
	if call < len(s.texts) {
		return s.texts[call], nil
	}
	n := int(media.DurationSeconds(audio)*10) + 1
	return strings.TrimSpace(strings.Repeat("word ", n)), nil
}

type stubRefiner struct{}

func (stubRefiner) Refine(ctx context.Context, transcript, notes string) (string, error) {
	return "Refined.", nil
}

func (stubRefiner) Summarize(ctx context.Context, transcript, notes string) (string, error) {
	return "## Overview\nShort.", nil
}

func (stubRefiner) Model() string { return "stub-model" }

type daemonHarness struct {
	sockPath string
	store    *store.Store
	input    *stubInput
	rec      *stubRecognizer
}

// startDaemon composes the full stack over dbPath the way notetakerd does,
// including the recovery scan at boot, and serves it on a temp socket.
func startDaemon(t *testing.T, dbPath string) *daemonHarness {
	t.Helper()
	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Sync() })
	sugar := logger.Sugar()

	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	input := &stubInput{}
	rec := &stubRecognizer{}
	coord := recovery.New(st, sugar)
	if _, err := coord.Detect(); err != nil {
		t.Fatalf("recovery scan: %v", err)
	}

	eng := engine.New(engine.Deps{
		Store:      st,
		Capture:    capture.New(input, 20*time.Millisecond, sugar),
		Dispatcher: transcribe.NewDispatcher(rec, time.Second, 0, sugar),
		Assembler:  transcript.NewAssembler(),
		Recovery:   coord,
		Refiner:    stubRefiner{},
		Logger:     sugar,
	})

	sockPath := filepath.Join(t.TempDir(), "notetakerd.sock")
	ctx, cancel := context.WithCancel(context.Background())
	srv := daemon.NewServer(eng, sugar)
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, sockPath) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(sockPath); err == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("socket never appeared")
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("server did not shut down")
		}
	})

	return &daemonHarness{sockPath: sockPath, store: st, input: input, rec: rec}
}

func (h *daemonHarness) connect(t *testing.T) *daemon.Client {
	t.Helper()
	client, err := daemon.Connect(h.sockPath)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// subscribeEvents dedicates a fresh connection to the event stream and pumps
// it into a channel so tests can wait with a deadline.
func (h *daemonHarness) subscribeEvents(t *testing.T) <-chan daemon.Event {
	t.Helper()
	client := h.connect(t)
	if err := client.Subscribe(nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	ch := make(chan daemon.Event, 64)
	go func() {
		defer close(ch)
		for {
			ev, err := client.ReadEvent()
			if err != nil {
				return
			}
			ch <- ev
		}
	}()
	return ch
}

func mustSend(t *testing.T, client *daemon.Client, cmd daemon.Command) daemon.Response {
	t.Helper()
	resp, err := client.SendCommand(cmd)
	if err != nil {
		t.Fatalf("%s: %v", cmd.Cmd, err)
	}
	if !resp.OK {
		t.Fatalf("%s failed: %s", cmd.Cmd, resp.Error)
	}
	return resp
}

func waitEvent(t *testing.T, events <-chan daemon.Event, name string) daemon.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event stream closed waiting for %q", name)
			}
			if ev.Event == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", name)
		}
	}
}

func waitChunks(t *testing.T, st *store.Store, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		count, err := st.ChunkCount()
		if err != nil {
			t.Fatalf("chunk count: %v", err)
		}
		if count >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d chunks", n)
}

func pcmSeconds(sec float64) []byte {
	return make([]byte, int(sec*float64(media.SampleRate)*2))
}

func TestDaemonRecordLifecycle(t *testing.T) {
	h := startDaemon(t, filepath.Join(t.TempDir(), "notetaker.db"))
	h.rec.texts = []string{"hello everyone", "second minute"}

	events := h.subscribeEvents(t)
	if ev := waitEvent(t, events, "status"); ev.State != "idle" {
		t.Fatalf("seeded status = %+v", ev)
	}

	cmds := h.connect(t)
	resp := mustSend(t, cmds, daemon.Command{Cmd: "start", Device: "default"})
	if resp.State != "recording" || resp.SessionID == "" {
		t.Fatalf("start resp = %+v", resp)
	}
	sessionID := resp.SessionID

	if _, err := h.input.pw.Write(pcmSeconds(1.5)); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	waitChunks(t, h.store, 1)

	if resp := mustSend(t, cmds, daemon.Command{Cmd: "stop"}); resp.State != "stopping" {
		t.Fatalf("stop resp = %+v", resp)
	}
	mustSend(t, cmds, daemon.Command{Cmd: "confirm"})

	final := waitEvent(t, events, "transcript")
	if len(final.Entries) != 2 || final.Entries[0].Text != "hello everyone" {
		t.Fatalf("transcript event = %+v", final)
	}
	saved := waitEvent(t, events, "saved")
	if saved.SessionID != sessionID {
		t.Fatalf("saved = %+v, want session %q", saved, sessionID)
	}

	resp = mustSend(t, cmds, daemon.Command{Cmd: "sessions"})
	if len(resp.Sessions) != 1 || resp.Sessions[0].ID != sessionID || resp.Sessions[0].Status != "completed" {
		t.Fatalf("sessions resp = %+v", resp.Sessions)
	}

	resp = mustSend(t, cmds, daemon.Command{Cmd: "transcript"})
	if len(resp.Entries) != 2 || resp.Entries[1].Text != "second minute" || resp.Entries[1].Time != 1 {
		t.Fatalf("transcript resp = %+v", resp.Entries)
	}

	exportDir := t.TempDir()
	resp = mustSend(t, cmds, daemon.Command{Cmd: "export", Path: exportDir})
	if filepath.Dir(resp.Path) != exportDir || !strings.HasSuffix(resp.Path, ".md") {
		t.Fatalf("export path = %q", resp.Path)
	}
	data, err := os.ReadFile(resp.Path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), "hello everyone") {
		t.Fatalf("export missing transcript:\n%s", data)
	}
}

func TestDaemonStatusAndDevices(t *testing.T) {
	h := startDaemon(t, filepath.Join(t.TempDir(), "notetaker.db"))
	cmds := h.connect(t)

	resp := mustSend(t, cmds, daemon.Command{Cmd: "status"})
	if resp.State != "idle" {
		t.Fatalf("status = %+v", resp)
	}
	if resp.PendingRecovery == nil || *resp.PendingRecovery {
		t.Fatalf("fresh daemon reports pending recovery: %+v", resp)
	}

	resp = mustSend(t, cmds, daemon.Command{Cmd: "devices"})
	if len(resp.Devices) != 1 || resp.Devices[0] != "default" {
		t.Fatalf("devices = %+v", resp.Devices)
	}
}
