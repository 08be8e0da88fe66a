package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pedsim.ai/internal/sim/cluster"
	"pedsim.ai/internal/sim/ids"
	"pedsim.ai/internal/sim/rng"
	"pedsim.ai/internal/sim/scene"
	"pedsim.ai/internal/sim/waypoint"
)

func TestSnapshotRoundTrip(t *testing.T) {
	reg := waypoint.NewRegistry()
	w := waypoint.NewWaypoint("w1", 3, 4, 1)
	q := waypoint.NewWaitingQueue("q1", 5, 6, 0, 2)
	require.NoError(t, reg.AddWaypoint(w))
	require.NoError(t, reg.AddWaitingQueue(q))

	r := rng.New(8)
	c, err := cluster.New(1, 10, 10, 4, nil, cluster.Options{Alloc: ids.NewAllocator(50), Rand: r})
	require.NoError(t, err)
	require.NoError(t, c.SetDistribution(2, 2))
	require.NoError(t, c.AddWaypoint(w))
	require.NoError(t, c.AddWaitingQueue(q))

	sc := scene.New()
	_, err = c.Dissolve(r, sc)
	require.NoError(t, err)

	snap := FromScene("plaza", 8, reg, []*cluster.AgentCluster{c}, sc.Agents())
	path := filepath.Join(t.TempDir(), "snapshots", "plaza.snap.zst")
	require.NoError(t, WriteSnapshot(path, snap))

	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, "plaza", got.Header.Scenario)
	assert.Equal(t, int64(8), got.Header.Seed)
	require.Len(t, got.Waypoints, 2)
	assert.Equal(t, "WAITING_QUEUE", got.Waypoints[1].Kind)
	require.Len(t, got.Clusters, 1)
	assert.Equal(t, []int{50, 51, 52, 53}, got.Clusters[0].AgentIDs)
	assert.Equal(t, [2]float64{2, 2}, got.Clusters[0].Distribution)
	require.Len(t, got.Agents, 4)

	a := got.Agents[2]
	assert.Equal(t, "person_52", a.Name)
	assert.Equal(t, a.Pos, a.InitialPos)
	assert.Equal(t, c.Vmax(), a.Vmax)
	assert.Equal(t, [3]float64{1, 2, 10}, a.ForceFactors)
	assert.Equal(t, [4]float64{6, 6, 6, 6}, a.BaseTimes)
	assert.Equal(t, []string{"w1", "q1"}, a.Waypoints)

	h, err := ReadHeader(path)
	require.NoError(t, err)
	assert.True(t, got.Header.CreatedAt.Equal(h.CreatedAt))
}

func TestReadSnapshot_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v9.snap.zst")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = enc.Write([]byte(`{"version":9}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	_, err = ReadSnapshot(path)
	assert.ErrorContains(t, err, "unsupported snapshot version 9")
}
