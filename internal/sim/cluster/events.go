package cluster

import "pedsim.ai/internal/sim/agent"

type EventKind string

const (
	PositionChanged EventKind = "POSITION_CHANGED"
	TypeChanged     EventKind = "TYPE_CHANGED"
)

// Event is delivered to observers after the mutation it describes.
// X/Y are set for PositionChanged, Type for TypeChanged.
type Event struct {
	Kind      EventKind
	ClusterID int
	X, Y      float64
	Type      agent.Type
}

// Subscribe registers fn for position and type changes. Delivery is
// synchronous, in subscription order.
func (c *AgentCluster) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.subSeq++
	id := c.subSeq
	c.subs[id] = fn
	return func() { delete(c.subs, id) }
}

func (c *AgentCluster) emit(e Event) {
	e.ClusterID = c.id
	for i := 1; i <= c.subSeq; i++ {
		if fn, ok := c.subs[i]; ok {
			fn(e)
		}
	}
}
