package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/soyoonlab/notare/config"
	"github.com/soyoonlab/notare/internal/adapter/pitch/aubio"
	"github.com/soyoonlab/notare/internal/adapter/separator/demucs"
	"github.com/soyoonlab/notare/internal/adapter/separator/remote"
	miniostore "github.com/soyoonlab/notare/internal/adapter/storage/minio"
	"github.com/soyoonlab/notare/internal/infrastructure/logger"
	"github.com/soyoonlab/notare/internal/port"
	"github.com/soyoonlab/notare/internal/service"

	HTTPAdapter "github.com/soyoonlab/notare/internal/adapter/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error.Printf("failed to load config: %v", err)
		os.Exit(1)
	}

	logger.Info.Printf("starting notare on port %d (separator=%s, max queue=%d)",
		cfg.Port, cfg.SeparatorMode, cfg.MaxQueueSize)

	blobs, err := miniostore.NewStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	if err != nil {
		logger.Error.Printf("failed to create blob store: %v", err)
		os.Exit(1)
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()
	for _, bucket := range []string{cfg.OriginalBucket, cfg.SeparatedBucket} {
		if err := blobs.EnsureBucket(startupCtx, bucket); err != nil {
			logger.Error.Printf("failed to ensure bucket %s: %v", bucket, err)
			os.Exit(1)
		}
	}

	var separator port.Separator
	switch cfg.SeparatorMode {
	case config.SeparatorLocal:
		separator = demucs.NewSeparator(cfg.SeparateCommand, blobs, cfg.OriginalBucket, cfg.SeparatedBucket)
	default:
		separator = remote.NewSeparator(cfg.AnalysisServerURL, blobs, cfg.OriginalBucket, cfg.SeparatedBucket, cfg.SeparateTimeout)
	}

	pitch := aubio.NewExtractor(cfg.PitchCommand, blobs, cfg.SeparatedBucket)
	pipeline := service.NewTranscriptionPipeline(separator, pitch, blobs, cfg.OriginalBucket, cfg.PresignTTL)
	queue := service.NewQueueService(pipeline, cfg.MaxQueueSize)

	server := HTTPAdapter.NewServer(queue, blobs, cfg.OriginalBucket, cfg.MaxFileSizeMB)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server,
		// Uploads can be large and slow; the status endpoint is quick.
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 1 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Periodic eviction of old terminal jobs so the in-memory store does not
	// grow without bound.
	if cfg.JobRetention > 0 {
		scheduler := cron.New()
		_, err := scheduler.AddFunc("@hourly", func() {
			if evicted := queue.EvictTerminal(cfg.JobRetention); evicted > 0 {
				logger.Info.Printf("evicted %d finished jobs older than %s", evicted, cfg.JobRetention)
			}
		})
		if err != nil {
			logger.Error.Printf("failed to schedule job eviction: %v", err)
			os.Exit(1)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		queue.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info.Printf("server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info.Printf("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error.Printf("server failed: %v", err)
		os.Exit(1)
	}

	logger.Info.Printf("shutdown complete")
}
