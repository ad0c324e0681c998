package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/strideworks/stride/pkg/analytics"
	"github.com/strideworks/stride/pkg/api"
	"github.com/strideworks/stride/pkg/backup"
	"github.com/strideworks/stride/pkg/config"
	"github.com/strideworks/stride/pkg/observability"
	"github.com/strideworks/stride/pkg/store"
	"github.com/strideworks/stride/pkg/syncqueue"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file (STRIDE_* env vars override)")
	runBackup  = flag.Bool("run-backup", false, "Create one snapshot and exit")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "stride: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.LogLevel(), os.Stdout)

	if dir := filepath.Dir(cfg.Data.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	st, err := store.Open(cfg.Data.DatabasePath)
	if err != nil {
		return err
	}
	logger.WithField("path", cfg.Data.DatabasePath).Info("metrics store opened")

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	aggregator := analytics.NewAggregator(st, logger, metrics)

	manager, err := backup.NewManager(st, aggregator, cfg.Backup.Dir, cfg.Data.DeviceName, logger, metrics)
	if err != nil {
		st.Close()
		return err
	}

	if cfg.Backup.S3Bucket != "" {
		uploader, err := backup.NewS3Uploader(context.Background(), backup.S3Config{
			Endpoint:     cfg.Backup.S3Endpoint,
			Region:       cfg.Backup.S3Region,
			Bucket:       cfg.Backup.S3Bucket,
			AccessKey:    cfg.Backup.S3AccessKey,
			SecretKey:    cfg.Backup.S3SecretKey,
			UsePathStyle: cfg.Backup.S3UsePathStyle,
		})
		if err != nil {
			st.Close()
			return err
		}
		manager.SetRemoteUploader(uploader)
		logger.WithField("bucket", cfg.Backup.S3Bucket).Info("remote snapshot upload enabled")
	}

	if *runBackup {
		defer st.Close()
		return backupOnce(manager, logger)
	}

	var queue *syncqueue.Queue
	if cfg.Sync.Endpoint != "" {
		deliverer := syncqueue.NewHTTPDeliverer(cfg.Sync.Endpoint, cfg.Sync.Timeout)
		queue = syncqueue.NewQueue(st, deliverer, syncqueue.NewLogReporter(logger),
			cfg.Sync.MaxAttempts, logger, metrics)
		queue.SetOnline(true)
		logger.WithField("endpoint", cfg.Sync.Endpoint).Info("sync delivery enabled")
	} else {
		logger.Info("no sync endpoint configured, sync queue disabled")
	}

	scheduler := backup.NewScheduler(manager, logger)
	if err := scheduler.Start(); err != nil {
		st.Close()
		return err
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewServer(aggregator, manager, queue, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	shutdown := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		scheduler.Stop()
		return nil
	})
	if queue != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			// Last chance to flush pending mutations before exit.
			queue.Drain(ctx)
			return nil
		})
	}
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return st.Close()
	})

	g, _ := errgroup.WithContext(context.Background())
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server failed: %w", err)
		}
		return nil
	})

	if err := shutdown.WaitForShutdown(); err != nil {
		return err
	}
	return g.Wait()
}

func backupOnce(manager *backup.Manager, logger *observability.Logger) error {
	ctx := context.Background()

	snap, err := manager.CreateSnapshot(ctx)
	if err != nil {
		return err
	}
	key, err := manager.PersistSnapshotLocally(ctx, snap)
	if err != nil {
		return err
	}
	logger.WithField("key", key).Info("snapshot created")
	return nil
}
