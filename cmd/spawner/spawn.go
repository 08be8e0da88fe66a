package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pedsim.ai/internal/sim/scene"
)

var (
	spawnScenarioPath string
	spawnSeed         int64
	spawnDisableDB    bool
)

var spawnCmd = &cobra.Command{
	Use:   "spawn",
	Short: "Dissolve every cluster of a scenario once",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		out, err := openSinks(dataDir, spawnDisableDB)
		if err != nil {
			return err
		}
		defer func() {
			if err := out.Close(); err != nil {
				log.Warn("close sinks", "err", err)
			}
		}()

		cfg := runConfig{
			ScenarioPath: spawnScenarioPath,
			TuningPath:   tuningPath,
			DataDir:      dataDir,
			Seed:         spawnSeed,
			SeedSet:      cmd.Flags().Changed("seed"),
		}
		res, err := spawnScenario(cmd.Context(), cfg, scene.New(), out, log, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d agents in %d batches, snapshot %s\n",
			res.Built.Name, len(res.Snapshot.Agents), len(res.Batches), res.SnapshotPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(spawnCmd)
	spawnCmd.Flags().StringVar(&spawnScenarioPath, "scenario", "", "Scenario file (yaml or json)")
	spawnCmd.Flags().Int64Var(&spawnSeed, "seed", 0, "Override the scenario seed")
	spawnCmd.Flags().BoolVar(&spawnDisableDB, "disable_db", false, "Disable the SQLite index")
	_ = spawnCmd.MarkFlagRequired("scenario")
}
