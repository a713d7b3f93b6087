package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sleuthkit/drawsync/internal/catalog"
	"github.com/sleuthkit/drawsync/internal/config"
	"github.com/sleuthkit/drawsync/internal/drawable"
	"github.com/sleuthkit/drawsync/internal/gallery"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the drawable index from the ingest directory",
	Long: `Rebuild the drawable index by scanning the configured ingest
directory, then running a full reconciliation for each stale data
source (or every data source with --all).

Batches already committed are never undone, so an interrupted rebuild
leaves the data source marked REBUILT_STALE and resumes cheaply on the
next run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.WatchRoot == "" {
			return fmt.Errorf("watch_root must be configured for rebuild")
		}
		all, _ := cmd.Flags().GetBool("all")
		return runRebuild(cfg, all)
	},
}

func init() {
	rebuildCmd.Flags().Bool("all", false, "Rebuild every data source, not just stale ones")
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cfg *config.Config, all bool) error {
	logger := newLogger(cfg, "[rebuild] ")

	db, err := drawable.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening drawable store: %w", err)
	}
	defer db.Close()

	if err := db.InitSchema(); err != nil {
		return fmt.Errorf("initializing drawable store: %w", err)
	}

	cat := catalog.NewMemCatalog()
	defer cat.Close()

	// Ingest the directory contents once; no need to keep watching.
	watcher, err := catalog.NewIngestWatcher(cat, cfg.WatchRoot, logger)
	if err != nil {
		return fmt.Errorf("creating ingest watcher: %w", err)
	}
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("scanning %s: %w", cfg.WatchRoot, err)
	}
	defer watcher.Stop()

	ctrl, err := gallery.NewController(cfg.CaseID, db, cat, &gallery.Config{
		BatchSize:       cfg.BatchSize,
		Yield:           cfg.Yield,
		ShutdownTimeout: cfg.ShutdownTimeout,
		TagCacheSize:    cfg.TagCacheSize,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ctx := context.Background()

	var results []*gallery.Result
	if all {
		sources, err := cat.DataSources(ctx)
		if err != nil {
			return fmt.Errorf("listing data sources: %w", err)
		}
		for _, id := range sources {
			results = append(results, ctrl.Rebuild(id))
		}
	} else {
		results, err = ctrl.RebuildStale(ctx)
		if err != nil {
			return fmt.Errorf("finding stale data sources: %w", err)
		}
	}

	if len(results) == 0 {
		fmt.Println("Nothing to rebuild; index is current")
		return nil
	}

	fmt.Printf("Rebuilding %d data source(s)...\n", len(results))
	var failed int
	for _, res := range results {
		if err := res.Wait(ctx); err != nil {
			failed++
			logger.Printf("Rebuild failed: %v", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d rebuilds failed", failed, len(results))
	}

	fmt.Println("Rebuild complete")
	return nil
}
