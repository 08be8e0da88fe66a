// Command spawner loads pedestrian scenarios, dissolves their agent clusters
// into a scene and records the result.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	dataDir    string
	tuningPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "spawner",
	Short: "Spawn pedestrian agents from scenario clusters",
	Long: `Spawner reads a scenario file, builds its waypoints and agent clusters,
dissolves every cluster into individual agents and writes a spawn log,
a snapshot and an SQLite index under the data directory.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "./data", "Runtime data directory")
	rootCmd.PersistentFlags().StringVar(&tuningPath, "tuning", "", "Path to tuning.yaml (built-in defaults if unset)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newLogger creates a structured logger with the configured verbosity.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
