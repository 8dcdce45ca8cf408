// Infinite Cloud Server
//
// A Telegram bot that organizes content references into per-conversation
// directory trees:
// - Prometheus metrics & structured logging (zap)
// - Webhook command interpreter with per-conversation sessions
// - Chunked listing/content streaming with signed continuation tokens
// - Snapshot persistence (file, S3 or PostgreSQL)
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/infinitecloud/infinitecloud/internal/api"
	"github.com/infinitecloud/infinitecloud/internal/bot"
	"github.com/infinitecloud/infinitecloud/internal/config"
	"github.com/infinitecloud/infinitecloud/internal/fs"
	"github.com/infinitecloud/infinitecloud/internal/logging"
	"github.com/infinitecloud/infinitecloud/internal/metrics"
	"github.com/infinitecloud/infinitecloud/internal/session"
	"github.com/infinitecloud/infinitecloud/internal/snapshot"
	"github.com/infinitecloud/infinitecloud/internal/stream"
	"github.com/infinitecloud/infinitecloud/internal/telegram"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("Infinite Cloud Server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("snapshot_backend", cfg.SnapshotBackend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the snapshot backend and load persisted state. A corrupt
	// snapshot is fatal: silently starting empty would lose every tree.
	snapStore, err := snapshot.Open(ctx, cfg)
	if err != nil {
		logging.Fatal("snapshot backend init failed", zap.Error(err))
	}
	defer snapStore.Close()

	var trees *fs.Store
	var sessions *session.Store
	snap, err := snapStore.Load()
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		logging.Info("no snapshot found, starting fresh")
		trees = fs.NewStore()
		sessions = session.NewStore(cfg.MaxSessions)
	case err != nil:
		logging.Fatal("snapshot load failed", zap.Error(err))
	default:
		trees = fs.RestoreStore(snap.Trees)
		sessions = session.Restore(snap.Sessions, cfg.MaxSessions)
		logging.Info("snapshot restored",
			zap.Time("saved_at", snap.SavedAt),
			zap.Int("conversations", trees.Len()),
			zap.Int("sessions", sessions.Count()))
	}

	// Connect the Telegram Bot API client
	client, err := telegram.New(cfg.BotToken, cfg.BotAPIURL)
	if err != nil {
		logging.Fatal("telegram client init failed", zap.Error(err))
	}

	// Wire the streaming builder, interpreter and gateway
	tokenizer := stream.NewTokenizer(cfg.TokenSecret, cfg.TokenTTL)
	builder := stream.NewBuilder(trees, tokenizer, client, cfg.ListPageSize, cfg.ContentChunkSize)
	interpreter := bot.New(trees, sessions, builder)
	server := api.NewServer(cfg, trees, sessions, builder, interpreter, client, snapStore)

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	// Start HTTP server
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
		metricsServer.Close()
	}()

	logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("server error", zap.Error(err))
	}
	logging.Info("server stopped")
}
