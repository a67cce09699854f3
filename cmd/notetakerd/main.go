// Package main runs notetakerd, the recording daemon behind the notetaker TUI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sai-itkc2020/ai-notetaker/internal/capture"
	"github.com/sai-itkc2020/ai-notetaker/internal/config"
	"github.com/sai-itkc2020/ai-notetaker/internal/daemon"
	"github.com/sai-itkc2020/ai-notetaker/internal/engine"
	"github.com/sai-itkc2020/ai-notetaker/internal/recovery"
	"github.com/sai-itkc2020/ai-notetaker/internal/refine"
	"github.com/sai-itkc2020/ai-notetaker/internal/store"
	"github.com/sai-itkc2020/ai-notetaker/internal/transcribe"
	"github.com/sai-itkc2020/ai-notetaker/internal/transcript"
)

func main() {
	cfg := config.Load()

	logger, err := cfg.NewLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.OpenAIKey == "" {
		logger.Fatalw("OPENAI_API_KEY not set")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatalw("create data dir", "dir", cfg.DataDir, "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		logger.Infow("shutdown signal received", "signal", sig)
		cancel()
	}()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatalw("open store", "path", cfg.DBPath, "error", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Errorw("close store", "error", err)
		}
	}()

	coord := recovery.New(st, logger)
	offer, err := coord.Detect()
	if err != nil {
		logger.Fatalw("scan chunk log", "error", err)
	}
	if offer != nil {
		logger.Infow("interrupted recording found",
			"session", offer.SessionID, "chunks", offer.Chunks, "seconds", offer.Seconds)
	}

	recognizer := transcribe.NewOpenAIRecognizer(cfg.OpenAIKey, cfg.TranscribeModel)
	eng := engine.New(engine.Deps{
		Store:      st,
		Capture:    capture.New(capture.NewFFmpegInput(cfg.CaptureFormat, logger), cfg.ChunkInterval, logger),
		Dispatcher: transcribe.NewDispatcher(recognizer, cfg.Window, cfg.Pacing, logger),
		Assembler:  transcript.NewAssembler(),
		Recovery:   coord,
		Refiner:    refine.NewRefiner(cfg.OpenAIKey, cfg.ChatModel),
		Logger:     logger,
	})

	logger.Infow("notetakerd starting", "socket", cfg.SocketPath, "db", cfg.DBPath)

	srv := daemon.NewServer(eng, logger)
	if err := srv.ListenAndServe(ctx, cfg.SocketPath); err != nil {
		logger.Fatalw("daemon stopped", "error", err)
	}
	logger.Infow("notetakerd stopped")
}
