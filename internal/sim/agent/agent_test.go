package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"pedsim.ai/internal/sim/waypoint"
)

func TestInitialPositionIsWriteOnce(t *testing.T) {
	a := New(0, DisplayName(7))
	assert.Equal(t, "person_7", a.Name)

	a.SetPosition(1, 2)
	require.True(t, a.SetInitialPosition(1, 2))
	require.False(t, a.SetInitialPosition(9, 9))

	a.SetPosition(4, 6)
	assert.Equal(t, 1.0, a.InitialPosition().X)
	assert.Equal(t, 2.0, a.InitialPosition().Y)
	assert.Equal(t, 5.0, a.Displacement())
}

func TestWaypointsAreSharedReferences(t *testing.T) {
	w := waypoint.NewWaypoint("w1", 0, 0, 1)
	a := New(0, "a")
	a.AddWaypoint(w)

	got := a.Waypoints()
	require.Len(t, got, 1)
	assert.Same(t, w, got[0])

	got[0] = nil
	assert.NotNil(t, a.Waypoints()[0])
}

func TestTypeText(t *testing.T) {
	var doc struct {
		Type Type         `yaml:"type"`
		Mode WaypointMode `yaml:"mode"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("type: child\nmode: RANDOM\n"), &doc))
	assert.Equal(t, Child, doc.Type)
	assert.Equal(t, Random, doc.Mode)

	err := yaml.Unmarshal([]byte("type: dragon\n"), &doc)
	require.Error(t, err)

	assert.Equal(t, "Type(9)", Type(9).String())
	_, err = ParseWaypointMode("bounce")
	assert.Error(t, err)
}
