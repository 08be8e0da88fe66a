package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pedsim.ai/internal/persistence/archive"
	persistlog "pedsim.ai/internal/persistence/log"
	"pedsim.ai/internal/persistence/snapshot"
	"pedsim.ai/internal/sim/scene"
	"pedsim.ai/internal/transport/observer"
)

const stationScenario = "../../configs/scenarios/station.yaml"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSpawnScenario_Station(t *testing.T) {
	dir := t.TempDir()
	out, err := openSinks(dir, false)
	require.NoError(t, err)

	sc := scene.New()
	cfg := runConfig{ScenarioPath: stationScenario, TuningPath: "../../configs/tuning.yaml", DataDir: dir}
	res, err := spawnScenario(context.Background(), cfg, sc, out, quietLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, out.Close())

	assert.Equal(t, "station", res.Built.Name)
	assert.Len(t, res.Batches, 3)
	assert.Equal(t, 28, sc.Len())
	assert.Equal(t, filepath.Join(dir, "snapshots", "station.snap.zst"), res.SnapshotPath)

	a, ok := sc.AgentByName("person_101")
	require.True(t, ok)
	assert.Equal(t, 101, a.AgentID)

	snap, err := snapshot.ReadSnapshot(res.SnapshotPath)
	require.NoError(t, err)
	assert.Equal(t, int64(42), snap.Header.Seed)
	assert.Len(t, snap.Agents, 28)

	logs, err := filepath.Glob(filepath.Join(dir, "spawns", "spawns-*.jsonl.zst"))
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	var entries int
	for _, p := range logs {
		es, err := persistlog.ReadSpawnLog(p)
		require.NoError(t, err)
		entries += len(es)
	}
	assert.Equal(t, 3, entries)

	_, err = os.Stat(filepath.Join(dir, "index.db"))
	assert.NoError(t, err)
}

func TestSpawnScenario_SeedOverrideIsDeterministic(t *testing.T) {
	positions := func() [][2]float64 {
		dir := t.TempDir()
		sc := scene.New()
		cfg := runConfig{ScenarioPath: stationScenario, DataDir: dir, Seed: 7, SeedSet: true}
		res, err := spawnScenario(context.Background(), cfg, sc, nil, quietLogger(), nil)
		require.NoError(t, err)
		assert.Equal(t, int64(7), res.Built.Seed)
		var out [][2]float64
		for _, a := range sc.Agents() {
			p := a.Position()
			out = append(out, [2]float64{p.X, p.Y})
		}
		return out
	}
	assert.Equal(t, positions(), positions())
}

func TestSpawnScenario_DisableDB(t *testing.T) {
	dir := t.TempDir()
	out, err := openSinks(dir, true)
	require.NoError(t, err)
	_, err = spawnScenario(context.Background(), runConfig{ScenarioPath: stationScenario, DataDir: dir}, scene.New(), out, quietLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, out.Close())

	_, err = os.Stat(filepath.Join(dir, "index.db"))
	assert.True(t, os.IsNotExist(err))
}

func TestSpawnScenario_BadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clusters:\n  - {id: 1, x: 0, y: 0, count: -1}\n"), 0o644))

	_, err := spawnScenario(context.Background(), runConfig{ScenarioPath: path, DataDir: t.TempDir()}, scene.New(), nil, quietLogger(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.yaml")
}

func TestReloader_RespawnReplacesScene(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plaza.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clusters:\n  - {id: 1, x: 0, y: 0, count: 4}\n"), 0o644))

	obs := observer.NewServer(quietLogger())
	r := &reloader{
		cfg:   runConfig{ScenarioPath: path, DataDir: dir},
		scene: scene.New(),
		obs:   obs,
		log:   quietLogger(),
	}
	require.NoError(t, r.spawn(context.Background()))
	defer r.detach()
	assert.Equal(t, 4, r.scene.Len())
	assert.Equal(t, 4, obs.Bootstrap().AgentCount)

	require.NoError(t, os.WriteFile(path, []byte("clusters:\n  - {id: 1, x: 0, y: 0, count: 2}\n  - {id: 2, x: 5, y: 5, count: 1}\n"), 0o644))
	require.NoError(t, r.respawn(context.Background()))
	assert.Equal(t, 3, r.scene.Len())
	boot := obs.Bootstrap()
	assert.Equal(t, 3, boot.AgentCount)
	assert.Len(t, boot.Clusters, 2)

	meta, err := archive.ReadMeta(filepath.Join(dir, "archives", "plaza", "gen_001"))
	require.NoError(t, err)
	assert.Equal(t, 4, meta.Agents)

	// An invalid edit leaves the previous scene in place.
	require.NoError(t, os.WriteFile(path, []byte("clusters: nope\n"), 0o644))
	require.Error(t, r.respawn(context.Background()))
	assert.Equal(t, 3, r.scene.Len())
}

func TestReloader_FailedRespawnKeepsScene(t *testing.T) {
	dir := t.TempDir()
	scenarioPath := filepath.Join(dir, "plaza.yaml")
	tuningFile := filepath.Join(dir, "tuning.yaml")
	require.NoError(t, os.WriteFile(scenarioPath, []byte("clusters:\n  - {id: 1, x: 0, y: 0, count: 4}\n"), 0o644))
	require.NoError(t, os.WriteFile(tuningFile, []byte("vmax_mean: 0.8\n"), 0o644))

	obs := observer.NewServer(quietLogger())
	r := &reloader{
		cfg:   runConfig{ScenarioPath: scenarioPath, TuningPath: tuningFile, DataDir: dir},
		scene: scene.New(),
		obs:   obs,
		log:   quietLogger(),
	}
	require.NoError(t, r.spawn(context.Background()))
	defer r.detach()
	live := r.scene
	last := r.last

	events, cancel := obs.Hub().Subscribe(16)
	defer cancel()

	require.NoError(t, os.WriteFile(tuningFile, []byte("chatting_probability: 5\n"), 0o644))
	require.NoError(t, os.WriteFile(scenarioPath, []byte("clusters:\n  - {id: 1, x: 0, y: 0, count: 2}\n"), 0o644))
	err := r.respawn(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chatting_probability")

	assert.Same(t, live, r.scene)
	assert.Equal(t, 4, r.scene.Len())
	assert.Equal(t, 4, obs.Bootstrap().AgentCount)
	assert.Same(t, last, r.last)
	assert.Zero(t, r.gen)
	assert.Empty(t, events)
	_, err = os.Stat(filepath.Join(dir, "archives"))
	assert.True(t, os.IsNotExist(err))

	snap, err := snapshot.ReadSnapshot(filepath.Join(dir, "snapshots", "plaza.snap.zst"))
	require.NoError(t, err)
	assert.Len(t, snap.Agents, 4)

	// Once tuning is fixed the edit goes through and the old scene is archived.
	require.NoError(t, os.WriteFile(tuningFile, []byte("vmax_mean: 0.8\n"), 0o644))
	require.NoError(t, r.respawn(context.Background()))
	assert.NotSame(t, live, r.scene)
	assert.Equal(t, 2, r.scene.Len())
	assert.Equal(t, 4, live.Len())
	assert.Equal(t, 1, r.gen)
	assert.Equal(t, 2, obs.Bootstrap().AgentCount)
	require.Len(t, events, 1)
}

func TestRunInspect(t *testing.T) {
	dir := t.TempDir()
	res, err := spawnScenario(context.Background(), runConfig{ScenarioPath: stationScenario, DataDir: dir}, scene.New(), nil, quietLogger(), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, runInspect(&buf, res.SnapshotPath))
	out := buf.String()
	assert.Contains(t, out, "scenario: station")
	assert.Contains(t, out, "seed:     42")
	assert.Contains(t, out, "agents:   28")
	assert.Contains(t, out, "  ADULT  3\n")
	assert.Contains(t, out, "  CHILD  20\n")
	assert.Contains(t, out, "  ELDER  5\n")
	assert.NotContains(t, out, "ROBOT")
}

func TestRunInspect_MissingFile(t *testing.T) {
	assert.Error(t, runInspect(io.Discard, filepath.Join(t.TempDir(), "nope.snap.zst")))
}
