package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sleuthkit/drawsync/internal/catalog"
	"github.com/sleuthkit/drawsync/internal/config"
	"github.com/sleuthkit/drawsync/internal/dashboard"
	"github.com/sleuthkit/drawsync/internal/drawable"
	"github.com/sleuthkit/drawsync/internal/gallery"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync service with the WebSocket dashboard",
	Long: `Run the drawable index sync service.

The service watches the configured ingest directory, mirrors its
contents into the in-memory catalog, keeps the drawable index in step
with classification events, and broadcasts sync activity to dashboard
clients.

WebSocket messages include:
- sync_run: A bulk reconciliation run finished
- status_snapshot: Build status of every data source
- queue_depth: Sync task queue depth changed
- stale_notice: The possibly-stale notice changed
- incremental: A single file was synced

Example usage:
  drawsync serve                        # Use ./drawsync.yaml
  drawsync serve --config /etc/ds.yaml  # Explicit config file

Connect with a WebSocket client:
  ws://localhost:8090/ws`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runServe(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cfg *config.Config) error {
	logger := newLogger(cfg, "[drawsync] ")

	// Drawable store
	db, err := drawable.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening drawable store: %w", err)
	}
	defer db.Close()

	if err := db.InitSchema(); err != nil {
		return fmt.Errorf("initializing drawable store: %w", err)
	}

	// Catalog plus optional filesystem ingest
	cat := catalog.NewMemCatalog()
	defer cat.Close()

	var watcher *catalog.IngestWatcher
	if cfg.WatchRoot != "" {
		watcher, err = catalog.NewIngestWatcher(cat, cfg.WatchRoot, newLogger(cfg, "[ingest] "))
		if err != nil {
			return fmt.Errorf("creating ingest watcher: %w", err)
		}
	}

	// Controller
	metrics := gallery.NewMetrics(nil)
	ctrlCfg := &gallery.Config{
		BatchSize:       cfg.BatchSize,
		Yield:           cfg.Yield,
		ShutdownTimeout: cfg.ShutdownTimeout,
		TagCacheSize:    cfg.TagCacheSize,
		Metrics:         metrics,
		Logger:          logger,
	}

	// Dashboard
	var (
		server  *dashboard.Server
		handler *dashboard.Handler
	)
	if cfg.DashboardPort > 0 {
		server = dashboard.NewServer(&dashboard.Config{
			Port:   cfg.DashboardPort,
			Logger: newLogger(cfg, "[dashboard] "),
		})
		handler = dashboard.NewHandler(cfg.CaseID, server, logger)
		ctrlCfg.Notify = handler.BulkRunNotifier()
		ctrlCfg.NotifyStale = handler.OnStaleNotice
		ctrlCfg.NotifyIncremental = handler.OnIncrementalSync
	}

	ctrl, err := gallery.NewController(cfg.CaseID, db, cat, ctrlCfg)
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}

	registry := gallery.NewRegistry()
	if err := registry.Put(ctrl); err != nil {
		return err
	}

	dispatcher := gallery.NewEventDispatcher(ctrl, cat)
	if err := dispatcher.Start(); err != nil {
		return err
	}

	if server != nil {
		if err := server.Start(); err != nil {
			dispatcher.Stop()
			return fmt.Errorf("starting dashboard: %w", err)
		}
		fmt.Printf("Dashboard: http://localhost:%d (ws://localhost:%d/ws)\n",
			cfg.DashboardPort, cfg.DashboardPort)
	}

	if watcher != nil {
		if err := watcher.Start(); err != nil {
			dispatcher.Stop()
			return fmt.Errorf("starting ingest watcher: %w", err)
		}
		fmt.Printf("Watching %s for data sources\n", cfg.WatchRoot)
	}

	// Begin processing classification events; rebuild anything stale.
	ctrl.SetListeningEnabled(true)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Periodic status snapshots for dashboard clients.
	if handler != nil {
		go func() {
			ticker := time.NewTicker(cfg.SnapshotInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := handler.PublishSnapshot(ctx, ctrl); err != nil && ctx.Err() == nil {
						logger.Printf("Failed to publish status snapshot: %v", err)
					}
					handler.OnQueueDepth(ctrl.QueueDepth())
				}
			}
		}()
	}

	fmt.Printf("drawsync serving case %q (db %s)\n", cfg.CaseID, cfg.DBPath)
	fmt.Println("Press Ctrl+C to stop...")

	<-ctx.Done()

	fmt.Println("\nShutting down...")
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Printf("Ingest watcher shutdown error: %v", err)
		}
	}
	dispatcher.Stop()
	if server != nil {
		if err := server.Stop(); err != nil {
			logger.Printf("Dashboard shutdown error: %v", err)
		}
	}
	if err := registry.Remove(cfg.CaseID); err != nil {
		return fmt.Errorf("shutting down controller: %w", err)
	}

	fmt.Println("drawsync stopped")
	return nil
}
