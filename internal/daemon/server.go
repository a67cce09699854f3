package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Server accepts Unix-socket connections and speaks the NDJSON protocol,
// delegating commands to a Core and fanning its events out to subscribers.
type Server struct {
	core   Core
	logger *zap.SugaredLogger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewServer(core Core, logger *zap.SugaredLogger) *Server {
	return &Server{
		core:   core,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}
}

// ListenAndServe binds the socket and serves until ctx is canceled. A stale
// socket file from a crashed daemon is removed; a live one is an error.
func (s *Server) ListenAndServe(ctx context.Context, socketPath string) error {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return fmt.Errorf("socket dir: %w", err)
	}
	if conn, err := net.Dial("unix", socketPath); err == nil {
		conn.Close()
		return fmt.Errorf("socket %s in use: is notetakerd already running?", socketPath)
	}
	_ = os.Remove(socketPath)

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer os.Remove(socketPath)
	_ = os.Chmod(socketPath, 0o600)

	go func() {
		<-ctx.Done()
		ln.Close()
		s.closeConns()
	}()

	s.logger.Infow("listening", "socket", socketPath)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	s.track(conn)
	defer s.untrack(conn)
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB buffer

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var cmd Command
		if err := json.Unmarshal(line, &cmd); err != nil {
			s.logger.Warnw("malformed command", "error", err)
			if err := writeLine(conn, Response{Error: "malformed command"}); err != nil {
				return
			}
			continue
		}

		// Subscribing dedicates this connection to the event stream.
		if cmd.Cmd == "subscribe" {
			if err := writeLine(conn, Response{OK: true}); err != nil {
				return
			}
			s.streamEvents(ctx, conn, cmd.Events)
			return
		}

		resp := s.core.Execute(ctx, cmd)
		if err := writeLine(conn, resp); err != nil {
			return
		}
	}
}

// streamEvents forwards engine events to one subscriber until either side
// goes away. Event filtering is by event name; no filter means everything.
func (s *Server) streamEvents(ctx context.Context, conn net.Conn, filter []string) {
	events, cancel := s.core.Subscribe()
	defer cancel()

	want := make(map[string]bool, len(filter))
	for _, name := range filter {
		want[name] = true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if len(want) > 0 && !want[ev.Event] {
				continue
			}
			if err := writeLine(conn, ev); err != nil {
				return
			}
		}
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

func writeLine(conn net.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = conn.Write(data)
	return err
}
