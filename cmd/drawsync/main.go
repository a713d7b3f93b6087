// Command drawsync keeps a case's drawable index synchronized with
// its file catalog and serves a real-time dashboard over the result.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sleuthkit/drawsync/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "drawsync",
	Short: "Drawable index synchronization for forensic cases",
	Long: `drawsync maintains a per-case SQLite index of drawable files (images
and videos) derived from the case's file catalog.

The index is rebuilt in bulk when stale, kept current incrementally
while analysis runs, and exposed for monitoring over a WebSocket
dashboard.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: ./drawsync.yaml)")
}

// loadConfig resolves the --config flag into a full configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

// newLogger builds the process logger, routing through a rotating file
// when one is configured.
func newLogger(cfg *config.Config, prefix string) *log.Logger {
	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			Compress:   true,
		}
	}
	return log.New(out, prefix, log.LstdFlags)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
