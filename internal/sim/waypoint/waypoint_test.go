package waypoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddLookupRemove(t *testing.T) {
	r := NewRegistry()
	w1 := NewWaypoint("w1", 1, 2, 0.5)
	q1 := NewWaitingQueue("q1", 5, 5, 0, 3)

	require.NoError(t, r.AddWaypoint(w1))
	require.NoError(t, r.AddWaitingQueue(q1))
	require.Error(t, r.AddWaypoint(NewWaypoint("w1", 0, 0, 1)))
	require.Error(t, r.AddWaypoint(NewWaypoint("  ", 0, 0, 1)))
	require.Error(t, r.AddWaitingQueue(nil))

	got, ok := r.Lookup("q1")
	require.True(t, ok)
	assert.Same(t, q1, got)
	assert.Equal(t, KindWaitingQueue, got.Kind())

	assert.Equal(t, []string{"w1", "q1"}, IDs(r.All()))
	assert.True(t, r.Remove("w1"))
	assert.False(t, r.Remove("w1"))
	assert.Equal(t, 1, r.Len())
}

func TestWaitingQueueIsNavigable(t *testing.T) {
	var n Navigable = NewWaitingQueue("q", 1, 1, 1.57, 2)
	assert.Equal(t, "q", n.WaypointID())
	assert.Equal(t, 1.0, n.Position().X)
}
