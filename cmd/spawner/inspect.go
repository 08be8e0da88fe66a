package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"pedsim.ai/internal/persistence/snapshot"
	"pedsim.ai/internal/sim/agent"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <snapshot>",
	Short: "Print a snapshot header and agent counts per type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(cmd.OutOrStdout(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(w io.Writer, path string) error {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	h := snap.Header
	fmt.Fprintf(w, "scenario: %s\n", h.Scenario)
	fmt.Fprintf(w, "version:  %d\n", h.Version)
	fmt.Fprintf(w, "seed:     %d\n", h.Seed)
	fmt.Fprintf(w, "created:  %s\n", h.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "clusters: %d\n", len(snap.Clusters))
	fmt.Fprintf(w, "agents:   %d\n", len(snap.Agents))

	counts := map[string]int{}
	for _, a := range snap.Agents {
		counts[a.Type]++
	}
	for _, name := range agent.TypeNames() {
		if n := counts[name]; n > 0 {
			fmt.Fprintf(w, "  %-6s %d\n", name, n)
		}
	}
	return nil
}
