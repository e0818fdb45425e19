package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/narrator-go/internal/api"
	"github.com/dgnsrekt/narrator-go/internal/playback"
	"github.com/dgnsrekt/narrator-go/internal/queue"
)

func serveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and speak queued narration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	cfg, logger := a.cfg, a.logger
	logger.Info("starting narrator", "version", version)

	if cfg.AuthDisabled() {
		logger.Warn("HTTP bearer authentication is disabled (BEARER_TOKEN is empty)")
	}
	logger.Info("configuration loaded",
		"log_level", cfg.LogLevel,
		"http_port", cfg.HTTPPort,
		"tts_engine", cfg.TTSEngine,
		"playback_sink", cfg.PlaybackSink,
		"max_segment_length", cfg.MaxSegmentLength,
		"queue_capacity", cfg.QueueCapacity,
		"roster_file", cfg.RosterFile,
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(cfg, logger)
	if err != nil {
		logger.Error("failed to build narration pipeline", "error", err)
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Close(closeCtx); err != nil {
			logger.Error("failed to close pipeline", "error", err)
		}
	}()

	q := queue.NewQueue(cfg.QueueCapacity, cfg.AutoLeaveIdle, logger)
	q.SetHandler(playback.NewHandler(p.narrator, logger).Handle)
	q.SetJobCompletedCallback(func(job *queue.NarrationJob) {
		logger.Debug("job finished", "job_id", job.ID, "took", time.Since(job.CreatedAt))
	})
	q.SetIdleCallback(func() {
		if p.voice != nil && p.voice.IsConnected() {
			logger.Info("queue idle, leaving voice channel")
			if err := p.voice.Disconnect(); err != nil {
				logger.Error("failed to disconnect from voice", "error", err)
			}
		}
	})
	q.SetShutdownCallback(func() {
		if p.voice != nil && p.voice.IsConnected() {
			logger.Info("shutdown: leaving voice channel")
			if err := p.voice.Disconnect(); err != nil {
				logger.Error("failed to disconnect from voice during shutdown", "error", err)
			}
		}
	})
	q.Start()
	defer q.Stop()

	if sub := newFeed(cfg, q, p.metrics, logger); sub != nil {
		logger.Info("following ntfy topics", "server", cfg.NtfyServer, "topics", cfg.FeedTopics())
		feedDone := make(chan struct{})
		go func() {
			defer close(feedDone)
			sub.Run(ctx)
		}()
		defer func() {
			stop()
			<-feedDone
		}()
	}

	var metricsHandler http.Handler
	if p.provider != nil {
		metricsHandler = p.provider.Handler()
	}
	server := api.New(cfg, logger, q, p.narrator, p.metrics, metricsHandler)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server error", "error", err)
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}
