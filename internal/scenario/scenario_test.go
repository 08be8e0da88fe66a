package scenario

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pedsim.ai/internal/sim/agent"
	"pedsim.ai/internal/sim/geom"
	"pedsim.ai/internal/sim/ids"
	"pedsim.ai/internal/sim/rng"
	"pedsim.ai/internal/sim/tuning"
	"pedsim.ai/internal/sim/waypoint"
)

func TestLoad_StationScenario(t *testing.T) {
	sc, err := Load("../../configs/scenarios/station.yaml")
	require.NoError(t, err)
	assert.Equal(t, "station", sc.Name)
	assert.Equal(t, int64(42), sc.Seed)
	require.Len(t, sc.Clusters, 3)

	built, err := Build(sc, Env{Rand: rng.New(sc.Seed)})
	require.NoError(t, err)
	assert.Equal(t, 4, built.Registry.Len())
	require.Len(t, built.Clusters, 3)

	c1 := built.Clusters[0]
	assert.Equal(t, []int{101, 102, 103}, c1.AgentIDs())
	assert.Equal(t, []string{"entrance", "ticket_booth", "platform"}, waypoint.IDs(c1.Waypoints()))
	assert.Equal(t, waypoint.KindWaitingQueue, c1.Waypoints()[1].Kind())

	c2 := built.Clusters[1]
	assert.Equal(t, agent.Child, c2.Type())
	assert.Equal(t, agent.Once, c2.WaypointMode())
	assert.Equal(t, geom.Size{Width: 4, Height: 2}, c2.Distribution())
	// Synthesized ids start after the highest listed id.
	assert.Equal(t, 104, c2.AgentIDs()[0])
	assert.Len(t, c2.AgentIDs(), 20)

	c3 := built.Clusters[2]
	assert.Equal(t, 0.4, c3.Vmax())
	assert.False(t, c3.ShallCreateGroups())
	assert.Equal(t, agent.Random, c3.WaypointMode())
	assert.Equal(t, 124, c3.AgentIDs()[0])
}

func TestBuild_SharesRegistryReferences(t *testing.T) {
	sc, err := Parse([]byte(`
waypoints: [{id: a, x: 1, y: 1}]
clusters:
  - {id: 1, x: 0, y: 0, count: 1, waypoints: [a]}
  - {id: 2, x: 0, y: 0, count: 1, waypoints: [a, a]}
`))
	require.NoError(t, err)
	built, err := Build(sc, Env{Alloc: ids.NewAllocator(0), Rand: rng.New(1)})
	require.NoError(t, err)

	a, ok := built.Registry.Lookup("a")
	require.True(t, ok)
	assert.Same(t, a, built.Clusters[0].Waypoints()[0])
	assert.Len(t, built.Clusters[1].Waypoints(), 2)
	assert.Same(t, a, built.Clusters[1].Waypoints()[1])
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"empty":              ``,
		"not an object":      `[1, 2]`,
		"missing clusters":   `seed: 1`,
		"unknown field":      "clusters: []\nbogus: 1\n",
		"negative count":     "clusters: [{id: 1, x: 0, y: 0, count: -1}]\n",
		"bad type":           "clusters: [{id: 1, x: 0, y: 0, count: 1, type: DRAGON}]\n",
		"bad mode":           "clusters: [{id: 1, x: 0, y: 0, count: 1, waypoint_mode: BOUNCE}]\n",
		"negative footprint": "clusters: [{id: 1, x: 0, y: 0, count: 1, distribution: {w: -1, h: 0}}]\n",
		"unknown waypoint":   "clusters: [{id: 1, x: 0, y: 0, count: 1, waypoints: [nowhere]}]\n",
		"duplicate cluster":  "clusters: [{id: 1, x: 0, y: 0, count: 0}, {id: 1, x: 0, y: 0, count: 0}]\n",
		"duplicate waypoint": `
waypoints: [{id: a, x: 0, y: 0}]
queues: [{id: a, x: 0, y: 0}]
clusters: []
`,
		"shared agent ids": `
clusters:
  - {id: 1, x: 0, y: 0, count: 2, agent_ids: [1, 2]}
  - {id: 2, x: 0, y: 0, count: 1, agent_ids: [2]}
`,
		"missing x":              "clusters: [{id: 1, y: 0, count: 1}]\n",
		"probability above one":  "clusters: [{id: 1, x: 0, y: 0, count: 1, chatting_probability: 1.5}]\n",
		"negative talk distance": "clusters: [{id: 1, x: 0, y: 0, count: 1, max_talking_distance: -1}]\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestParse_MismatchedAgentIDsAccepted(t *testing.T) {
	sc, err := Parse([]byte("clusters: [{id: 1, x: 0, y: 0, count: 5, agent_ids: [9, 9]}]\n"))
	require.NoError(t, err)

	built, err := Build(sc, Env{Alloc: ids.NewAllocator(10), Rand: rng.New(1)})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 11, 12, 13, 14}, built.Clusters[0].AgentIDs())
}

func TestBuild_BehaviorOverrides(t *testing.T) {
	sc, err := Parse([]byte(`
clusters:
  - id: 1
    x: 0
    y: 0
    count: 2
    force_factor_social: 3.5
    chatting_probability: 0.4
    max_talking_distance: 2
  - {id: 2, x: 0, y: 0, count: 1}
`))
	require.NoError(t, err)

	defaults := tuning.Defaults()
	built, err := Build(sc, Env{Rand: rng.New(1), Defaults: &defaults})
	require.NoError(t, err)

	b := built.Clusters[0].Behavior()
	assert.Equal(t, 3.5, b.ForceFactorSocial)
	assert.Equal(t, 0.4, b.ChattingProbability)
	assert.Equal(t, 2.0, b.MaxTalkingDistance)
	assert.Equal(t, defaults.ForceFactorDesired, b.ForceFactorDesired)
	assert.Equal(t, defaults.TellStoryProbability, b.TellStoryProbability)

	untouched := built.Clusters[1].Behavior()
	assert.Equal(t, defaults.ForceFactorSocial, untouched.ForceFactorSocial)
	assert.Equal(t, defaults.ChattingProbability, untouched.ChattingProbability)
}

func TestValidate_ProbabilityOverrideRange(t *testing.T) {
	p := -0.1
	sc := Scenario{Clusters: []ClusterSpec{{ID: 4, Count: 1, GroupTalkingProbability: &p}}}
	err := sc.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "group_talking_probability")
}

func TestLoad_NamesFromFileAndWrapsErrors(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "plaza.yaml")
	require.NoError(t, os.WriteFile(good, []byte("clusters: []\n"), 0o644))
	sc, err := Load(good)
	require.NoError(t, err)
	assert.Equal(t, "plaza", sc.Name)

	bad := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("clusters: [{id: 1}]\n"), 0o644))
	_, err = Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.yaml")
}

func TestSchemaJSON(t *testing.T) {
	b, err := SchemaJSON()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, "object", doc["type"])
	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "clusters")
	assert.Contains(t, doc["required"], "clusters")
}
