package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sleuthkit/drawsync/internal/drawable"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the build status of every data source in the index",
	Long: `Show the drawable index build status recorded for each data source.

Statuses:
  UNKNOWN        Never fully built; trust only if no file has been classified
  IN_PROGRESS    A build or analysis run is underway
  COMPLETE       The index fully reflects the catalog
  REBUILT_STALE  A build was interrupted or failed; a rebuild is needed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		db, err := drawable.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening drawable store: %w", err)
		}
		defer db.Close()

		if err := db.InitSchema(); err != nil {
			return fmt.Errorf("initializing drawable store: %w", err)
		}

		ctx := context.Background()
		statuses, err := db.AllStatuses(ctx)
		if err != nil {
			return fmt.Errorf("reading build statuses: %w", err)
		}

		if len(statuses) == 0 {
			fmt.Println("No data sources recorded")
			return nil
		}

		ids := make([]int64, 0, len(statuses))
		for id := range statuses {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for _, id := range ids {
			count, err := db.CountDataSourceRecords(ctx, id)
			if err != nil {
				return fmt.Errorf("counting records for data source %d: %w", id, err)
			}
			fmt.Printf("data source %d: %-13s %d drawable files\n", id, statuses[id], count)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
