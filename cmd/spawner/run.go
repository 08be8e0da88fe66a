package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"pedsim.ai/internal/persistence/indexdb"
	persistlog "pedsim.ai/internal/persistence/log"
	"pedsim.ai/internal/persistence/snapshot"
	"pedsim.ai/internal/scenario"
	"pedsim.ai/internal/sim/rng"
	"pedsim.ai/internal/sim/scene"
	"pedsim.ai/internal/sim/spawner"
	"pedsim.ai/internal/sim/tuning"
)

type runConfig struct {
	ScenarioPath string
	TuningPath   string
	DataDir      string

	Seed    int64
	SeedSet bool
}

type runResult struct {
	Built        *scenario.Built
	Batches      []spawner.Batch
	Snapshot     snapshot.SnapshotV1
	SnapshotPath string
}

// sinks owns the persistent batch consumers of a run.
type sinks struct {
	spawnLog *persistlog.SpawnLogger
	index    *indexdb.SQLiteIndex
}

func openSinks(dir string, disableDB bool) (*sinks, error) {
	s := &sinks{spawnLog: persistlog.NewSpawnLogger(dir)}
	if disableDB {
		return s, nil
	}
	idx, err := indexdb.OpenSQLite(filepath.Join(dir, "index.db"))
	if err != nil {
		_ = s.spawnLog.Close()
		return nil, fmt.Errorf("open index: %w", err)
	}
	s.index = idx
	return s, nil
}

func (s *sinks) list() []spawner.BatchSink {
	out := []spawner.BatchSink{s.spawnLog}
	if s.index != nil {
		out = append(out, s.index)
	}
	return out
}

func (s *sinks) Close() error {
	err := s.spawnLog.Close()
	if s.index != nil {
		err = errors.Join(err, s.index.Close())
	}
	return err
}

func loadDefaults(path string) (tuning.ClusterDefaults, error) {
	if strings.TrimSpace(path) == "" {
		return tuning.Defaults(), nil
	}
	return tuning.Load(path)
}

// spawnScenario loads and builds the scenario, dissolves every cluster into
// sc and writes a snapshot. attach runs after the clusters are built and
// before any of them is dissolved.
func spawnScenario(ctx context.Context, cfg runConfig, sc *scene.Scene, out *sinks, logger *slog.Logger, attach func(*scenario.Built)) (*runResult, error) {
	built, r, err := prepareScenario(cfg, logger)
	if err != nil {
		return nil, err
	}
	if attach != nil {
		attach(built)
	}
	batches, err := dissolveScenario(ctx, built, r, sc, out, logger)
	if err != nil {
		return nil, err
	}
	res, err := commitSnapshot(cfg, built, sc, out, nil)
	if err != nil {
		return nil, err
	}
	res.Batches = batches
	logger.Info("scenario spawned",
		"scenario", built.Name,
		"batches", len(batches),
		"agents", sc.Len(),
		"snapshot", res.SnapshotPath,
	)
	return res, nil
}

// prepareScenario loads tuning and scenario and builds the clusters. It has
// no side effects outside the returned values.
func prepareScenario(cfg runConfig, logger *slog.Logger) (*scenario.Built, rng.Source, error) {
	defaults, err := loadDefaults(cfg.TuningPath)
	if err != nil {
		return nil, nil, err
	}
	doc, err := scenario.Load(cfg.ScenarioPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.SeedSet {
		doc.Seed = cfg.Seed
	}

	r := rng.NewLocked(rng.New(doc.Seed))
	built, err := scenario.Build(doc, scenario.Env{Rand: r, Defaults: &defaults})
	if err != nil {
		return nil, nil, fmt.Errorf("build %s: %w", doc.Name, err)
	}
	logger.Info("scenario built",
		"scenario", built.Name,
		"seed", built.Seed,
		"waypoints", built.Registry.Len(),
		"clusters", len(built.Clusters),
	)
	return built, r, nil
}

func dissolveScenario(ctx context.Context, built *scenario.Built, r rng.Source, sc *scene.Scene, out *sinks, logger *slog.Logger) ([]spawner.Batch, error) {
	var batchSinks []spawner.BatchSink
	if out != nil {
		batchSinks = out.list()
	}
	sp := spawner.New(sc, r, logger, batchSinks...)
	batches, err := sp.DissolveAll(ctx, built.Clusters)
	if err != nil && len(batches) < len(built.Clusters) {
		return nil, fmt.Errorf("dissolve %s: %w", built.Name, err)
	}
	if err != nil {
		logger.Warn("spawn recorded with sink errors", "scenario", built.Name, "err", err)
	}
	return batches, nil
}

// commitSnapshot writes the snapshot of sc next to its final path and renames
// it into place. beforeReplace runs once the new file is fully written and
// before the previous snapshot is replaced.
func commitSnapshot(cfg runConfig, built *scenario.Built, sc *scene.Scene, out *sinks, beforeReplace func()) (*runResult, error) {
	res := &runResult{Built: built}
	res.Snapshot = snapshot.FromScene(built.Name, built.Seed, built.Registry, built.Clusters, sc.Agents())
	res.SnapshotPath = filepath.Join(cfg.DataDir, "snapshots", built.Name+".snap.zst")

	tmp := res.SnapshotPath + ".tmp"
	if err := snapshot.WriteSnapshot(tmp, res.Snapshot); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("write snapshot: %w", err)
	}
	if beforeReplace != nil {
		beforeReplace()
	}
	if err := os.Rename(tmp, res.SnapshotPath); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("write snapshot: %w", err)
	}
	if out != nil && out.index != nil {
		abs, err := filepath.Abs(res.SnapshotPath)
		if err != nil {
			abs = res.SnapshotPath
		}
		out.index.RecordSnapshot(abs, res.Snapshot)
	}
	return res, nil
}
