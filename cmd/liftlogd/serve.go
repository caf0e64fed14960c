package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/liftlog/liftlog/internal/api"
	"github.com/liftlog/liftlog/internal/config"
	"github.com/liftlog/liftlog/internal/eventlog"
	"github.com/liftlog/liftlog/internal/merge"
	"github.com/liftlog/liftlog/internal/projection"
	"github.com/liftlog/liftlog/internal/snapshot"
	"github.com/liftlog/liftlog/internal/syncservice"
	"github.com/liftlog/liftlog/internal/worker"
	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	// 3. Initialize logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)
	slog.Info("logger initialized", "level", cfg.Log.Level)

	// 4. Initialize the event log (migrations, WAL mode)
	log, err := eventlog.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize event log: %w", err)
	}
	defer log.Close()
	slog.Info("event log initialized", "path", cfg.Database.Path)

	// 5. Wire the projection rebuilder against the same database
	rebuilder := projection.New(log.DB(), log, logger)

	// 6. Wire the sync service and merge operation
	syncSvc := syncservice.New(log, logger)
	merger := merge.New(log, func(ctx context.Context, userID string) error {
		_, err := rebuilder.Rebuild(ctx, userID)
		return err
	})

	// 7. Initialize snapshot uploader (S3-compatible storage, optional)
	uploader, err := snapshot.NewUploader(cfg.Snapshot)
	if err != nil {
		return fmt.Errorf("initialize snapshot uploader: %w", err)
	}
	if cfg.Snapshot.Bucket != "" {
		slog.Info("snapshot export enabled", "bucket", cfg.Snapshot.Bucket, "endpoint", cfg.Snapshot.Endpoint)
	}

	// 8. Initialize HTTP router
	handler := api.NewHandler(syncSvc, rebuilder, merger, cfg.Auth.APIKey, Version)
	router := api.NewRouter(handler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 9. Worker lifecycle
	var wg sync.WaitGroup
	rebuildCoordinator := worker.NewRebuildCoordinator(rebuilder, time.Duration(cfg.Worker.RebuildInterval), uploader, cfg.Database.Path)
	startWorker(ctx, &wg, rebuildCoordinator.Run)

	// 10. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// 11. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 12. Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	wg.Wait()

	slog.Info("shutdown complete")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects
// context cancellation. Workers are tracked via WaitGroup for graceful
// shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn(ctx)
	}()
}
