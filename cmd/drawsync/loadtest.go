package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sleuthkit/drawsync/internal/drawable/loadtest"
)

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Run a read/write load test against the drawable index",
	Long: `Run a load test against a throwaway drawable index.

This command seeds a temporary index with the requested number of
files, then simulates concurrent gallery viewers paging the index and
measures query latency. With --verify it also runs the viewers against
a live tag writer to check concurrent access stays consistent.

Examples:
  # Default load: 50 viewers, 10000 files
  drawsync loadtest

  # Heavier read load with JSON output
  drawsync loadtest --viewers 200 --files 50000 --json

  # Include the reader/writer consistency check
  drawsync loadtest --verify
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		viewers, _ := cmd.Flags().GetInt("viewers")
		files, _ := cmd.Flags().GetInt("files")
		sources, _ := cmd.Flags().GetInt("sources")
		queries, _ := cmd.Flags().GetInt("queries")
		tagged, _ := cmd.Flags().GetFloat64("tagged")
		verify, _ := cmd.Flags().GetBool("verify")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		if viewers <= 0 {
			return fmt.Errorf("--viewers must be positive")
		}
		if files <= 0 {
			return fmt.Errorf("--files must be positive")
		}
		if sources <= 0 {
			return fmt.Errorf("--sources must be positive")
		}
		if queries <= 0 {
			return fmt.Errorf("--queries must be positive")
		}
		if tagged < 0 || tagged > 1 {
			return fmt.Errorf("--tagged must be between 0.0 and 1.0")
		}

		return runLoadtest(viewers, files, sources, queries, tagged, verify, jsonOutput)
	},
}

func init() {
	loadtestCmd.Flags().Int("viewers", 50, "Number of concurrent viewers to simulate")
	loadtestCmd.Flags().Int("files", 10000, "Total number of files in the index")
	loadtestCmd.Flags().Int("sources", 4, "Number of data sources to spread files across")
	loadtestCmd.Flags().Int("queries", 20, "Number of queries per viewer")
	loadtestCmd.Flags().Float64("tagged", 0.05, "Share of files flagged as tagged (0.0-1.0)")
	loadtestCmd.Flags().Bool("verify", false, "Also run the reader/writer consistency check")
	loadtestCmd.Flags().Bool("json", false, "Output results as JSON")
	rootCmd.AddCommand(loadtestCmd)
}

func runLoadtest(viewers, files, sources, queries int, tagged float64, verify, jsonOutput bool) error {
	dbPath := filepath.Join(os.TempDir(), fmt.Sprintf("drawsync-loadtest-%d.db", os.Getpid()))
	defer os.Remove(dbPath)

	if !jsonOutput {
		fmt.Printf("Seeding index: %d files across %d data source(s)...\n", files, sources)
	}

	seedStart := time.Now()
	ti, err := loadtest.CreateTestIndex(dbPath, files, sources, tagged)
	if err != nil {
		return fmt.Errorf("seeding test index: %w", err)
	}
	defer ti.Close()
	seedTime := time.Since(seedStart)

	if !jsonOutput {
		fmt.Printf("Running %d viewers x %d queries...\n\n", viewers, queries)
	}

	queryStart := time.Now()
	stats, err := ti.RunConcurrentQueries(viewers, queries)
	if err != nil {
		return fmt.Errorf("running query load: %w", err)
	}
	queryTime := time.Since(queryStart)

	var verifyErr error
	if verify {
		if !jsonOutput {
			fmt.Println("Running reader/writer consistency check (5s)...")
		}
		verifyErr = ti.VerifyConcurrentAccess(viewers, 5*time.Second)
	}

	if jsonOutput {
		output := map[string]interface{}{
			"config": map[string]interface{}{
				"viewers": viewers,
				"files":   files,
				"sources": sources,
				"queries": queries,
				"tagged":  tagged,
			},
			"index": ti.GetStats(),
			"latency": map[string]interface{}{
				"min_us":  stats.Min.Microseconds(),
				"p50_us":  stats.P50.Microseconds(),
				"mean_us": stats.Mean.Microseconds(),
				"p95_us":  stats.P95.Microseconds(),
				"p99_us":  stats.P99.Microseconds(),
				"max_us":  stats.Max.Microseconds(),
			},
			"throughput": map[string]interface{}{
				"qps":     float64(stats.TotalQueries) / queryTime.Seconds(),
				"queries": stats.TotalQueries,
			},
			"seed_ms":  seedTime.Milliseconds(),
			"errors":   stats.Errors,
			"verified": verify && verifyErr == nil,
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(output); err != nil {
			return fmt.Errorf("encoding results: %w", err)
		}
	} else {
		stats.PrintStats()
		fmt.Printf("  Throughput:    %.0f queries/sec\n", float64(stats.TotalQueries)/queryTime.Seconds())
		fmt.Printf("  Seed time:     %v\n", seedTime.Round(time.Millisecond))
	}

	if verifyErr != nil {
		return fmt.Errorf("consistency check failed: %w", verifyErr)
	}
	if stats.Errors > 0 {
		return fmt.Errorf("%d queries failed", stats.Errors)
	}
	return nil
}
