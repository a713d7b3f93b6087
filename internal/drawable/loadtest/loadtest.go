// Package loadtest provides load testing utilities for the drawable index.
//
// This package simulates concurrent gallery viewers paging through the
// index while a sync run keeps writing, to validate that grouped reads
// stay fast while bulk rebuilds are in flight.
package loadtest

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sleuthkit/drawsync/internal/drawable"
)

// TestIndex represents a populated drawable index for load testing.
type TestIndex struct {
	DB            *drawable.DB
	DataSourceIDs []int64
	FileIDs       []int64
	TaggedIDs     []int64
	TotalFiles    int
	TaggedPct     float64
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration // Median
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Errors       int
	Durations    []time.Duration
}

// CreateTestIndex creates a new drawable index populated for load testing.
//
// The index is populated with:
//   - Files spread evenly across numSources data sources
//   - Paths grouped into per-source directories, ~100 files each
//   - A mix of image and video rows (1 in 8 is video)
//   - A taggedPct share of rows flagged as tagged (typical: 0.05)
//
// Every data source ends in the COMPLETE build state so reads see a
// fully synced index.
func CreateTestIndex(dbPath string, numFiles, numSources int, taggedPct float64) (*TestIndex, error) {
	db, err := drawable.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	// Reads and the writer share the pool during the contention check.
	db.RawDB().SetMaxOpenConns(150)
	db.RawDB().SetMaxIdleConns(50)
	db.RawDB().SetConnMaxLifetime(10 * time.Minute)

	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if numSources <= 0 {
		numSources = 1
	}

	ti := &TestIndex{
		DB:            db,
		DataSourceIDs: make([]int64, 0, numSources),
		FileIDs:       make([]int64, 0, numFiles),
		TaggedIDs:     make([]int64, 0),
		TotalFiles:    numFiles,
		TaggedPct:     taggedPct,
	}
	for s := 0; s < numSources; s++ {
		ti.DataSourceIDs = append(ti.DataSourceIDs, int64(s+1))
	}

	// Deterministic random for reproducible tagged sets.
	rng := rand.New(rand.NewSource(42))

	ctx := context.Background()
	tx, err := db.Begin(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	for i := 0; i < numFiles; i++ {
		fileID := int64(i + 1)
		dsID := ti.DataSourceIDs[i%numSources]
		tagged := taggedPct > 0 && rng.Float64() < taggedPct

		rec := &drawable.Record{
			FileID:       fileID,
			DataSourceID: dsID,
			Path:         fmt.Sprintf("/img/ds%d/%03d/", dsID, i/100),
			Name:         fmt.Sprintf("file-%05d.jpg", i),
			IsVideo:      i%8 == 0,
			HasExif:      i%3 == 0,
			Tagged:       tagged,
		}
		if err := tx.UpsertRecord(ctx, rec); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to seed record %d: %w", fileID, err)
		}

		ti.FileIDs = append(ti.FileIDs, fileID)
		if tagged {
			ti.TaggedIDs = append(ti.TaggedIDs, fileID)
		}
	}

	for _, dsID := range ti.DataSourceIDs {
		if err := tx.SetStatus(ctx, dsID, drawable.StatusComplete); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to seed status for data source %d: %w", dsID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to commit seed transaction: %w", err)
	}

	return ti, nil
}

// Close closes the test index connection.
func (ti *TestIndex) Close() error {
	if ti.DB != nil {
		return ti.DB.Close()
	}
	return nil
}

// RunConcurrentQueries simulates N concurrent viewers paging the index.
//
// Each viewer performs queriesPerViewer queries, alternating between a
// grouped ordering scan of one data source and a point lookup of a
// random file, recording latency for each. Returns aggregated latency
// statistics.
func (ti *TestIndex) RunConcurrentQueries(numViewers, queriesPerViewer int) (*LatencyStats, error) {
	var wg sync.WaitGroup
	var allDurations []time.Duration
	var errorCount int

	resultsChan := make(chan []time.Duration, numViewers)
	errorsChan := make(chan error, numViewers)

	for i := 0; i < numViewers; i++ {
		wg.Add(1)
		go func(viewerID int) {
			defer wg.Done()

			durations := make([]time.Duration, 0, queriesPerViewer)
			ctx := context.Background()
			rng := rand.New(rand.NewSource(int64(viewerID)))

			for j := 0; j < queriesPerViewer; j++ {
				start := time.Now()

				var err error
				if j%2 == 0 {
					dsID := ti.DataSourceIDs[rng.Intn(len(ti.DataSourceIDs))]
					_, err = ti.DB.RecordIDs(ctx, dsID)
				} else {
					fileID := ti.FileIDs[rng.Intn(len(ti.FileIDs))]
					_, err = ti.DB.GetRecord(ctx, fileID)
				}
				elapsed := time.Since(start)

				durations = append(durations, elapsed)

				if err != nil {
					errorsChan <- fmt.Errorf("viewer %d query %d failed: %w", viewerID, j, err)
					return
				}
			}

			resultsChan <- durations
		}(i)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	for err := range errorsChan {
		if err != nil {
			errorCount++
			fmt.Printf("Error: %v\n", err)
		}
	}

	for durations := range resultsChan {
		allDurations = append(allDurations, durations...)
	}

	if len(allDurations) == 0 {
		return nil, fmt.Errorf("no successful queries completed")
	}

	stats := computeLatencyStats(allDurations)
	stats.Errors = errorCount

	return stats, nil
}

// VerifyConcurrentAccess runs readers against a live writer.
//
// Readers page the index while a writer keeps flipping tag flags, to
// verify that concurrent access stays consistent: every row a reader
// sees must carry a positive file id and belong to the data source it
// was scanned from.
func (ti *TestIndex) VerifyConcurrentAccess(numViewers int, duration time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var wg sync.WaitGroup
	errorsChan := make(chan error, numViewers+1)

	// Writer keeps re-tagging a rotating slice of files.
	wg.Add(1)
	go func() {
		defer wg.Done()

		i := 0
		for {
			select {
			case <-ctx.Done():
				return
			default:
				fileID := ti.FileIDs[i%len(ti.FileIDs)]
				if err := ti.DB.SetTagged(ctx, fileID, i%2 == 0); err != nil && ctx.Err() == nil {
					errorsChan <- fmt.Errorf("writer retag of %d failed: %w", fileID, err)
					return
				}
				i++
				time.Sleep(time.Millisecond)
			}
		}
	}()

	for i := 0; i < numViewers; i++ {
		wg.Add(1)
		go func(viewerID int) {
			defer wg.Done()

			for {
				select {
				case <-ctx.Done():
					return
				default:
					dsID := ti.DataSourceIDs[viewerID%len(ti.DataSourceIDs)]
					ids, err := ti.DB.RecordIDs(ctx, dsID)
					if err != nil && ctx.Err() == nil {
						errorsChan <- fmt.Errorf("viewer %d scan failed: %w", viewerID, err)
						return
					}

					for _, id := range ids {
						if id <= 0 {
							errorsChan <- fmt.Errorf("viewer %d found non-positive file id %d", viewerID, id)
							return
						}
						rec, err := ti.DB.GetRecord(ctx, id)
						if err != nil && ctx.Err() == nil {
							errorsChan <- fmt.Errorf("viewer %d lookup of %d failed: %w", viewerID, id, err)
							return
						}
						if rec != nil && rec.DataSourceID != dsID {
							errorsChan <- fmt.Errorf("viewer %d found file %d filed under data source %d, want %d",
								viewerID, id, rec.DataSourceID, dsID)
							return
						}
					}

					time.Sleep(time.Millisecond)
				}
			}
		}(i)
	}

	wg.Wait()
	close(errorsChan)

	for err := range errorsChan {
		if err != nil {
			return err
		}
	}

	return nil
}

// GetStats returns statistics about the test index.
func (ti *TestIndex) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"total_files":    ti.TotalFiles,
		"data_sources":   len(ti.DataSourceIDs),
		"tagged_files":   len(ti.TaggedIDs),
		"tagged_percent": float64(len(ti.TaggedIDs)) / float64(ti.TotalFiles) * 100,
	}
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	mean := sum / time.Duration(len(durations))

	p50 := sorted[len(sorted)*50/100]
	p95 := sorted[len(sorted)*95/100]
	p99 := sorted[len(sorted)*99/100]

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         mean,
		P50:          p50,
		P95:          p95,
		P99:          p99,
		TotalQueries: len(durations),
		Durations:    sorted,
	}
}

// PrintStats formats and prints latency statistics.
func (s *LatencyStats) PrintStats() {
	fmt.Printf("Latency Statistics:\n")
	fmt.Printf("  Total Queries: %d\n", s.TotalQueries)
	fmt.Printf("  Errors:        %d\n", s.Errors)
	fmt.Printf("  Min:           %v\n", s.Min)
	fmt.Printf("  P50 (Median):  %v\n", s.P50)
	fmt.Printf("  Mean:          %v\n", s.Mean)
	fmt.Printf("  P95:           %v\n", s.P95)
	fmt.Printf("  P99:           %v\n", s.P99)
	fmt.Printf("  Max:           %v\n", s.Max)
}
